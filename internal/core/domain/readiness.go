package domain

// ReadinessCode identifies why a readiness check did or did not pass.
// Callers branch on these values.
type ReadinessCode string

const (
	CodeSuccess           ReadinessCode = "SUCCESS"
	CodeESNotReady        ReadinessCode = "ES_NOT_READY"
	CodeKibanaNotReady    ReadinessCode = "KIBANA_NOT_READY"
	CodeESIPNotFound      ReadinessCode = "ES_IP_NOT_FOUND"
	CodeKibanaIPNotFound  ReadinessCode = "KIBANA_IP_NOT_FOUND"
	CodeCheckTimeout      ReadinessCode = "CHECK_TIMEOUT"
	CodeRequestFailed     ReadinessCode = "REQUEST_FAILED"
	CodeHandoffFailed     ReadinessCode = "PACKETBEAT_CONFIG_FAILED"
	CodeInvalidSelection  ReadinessCode = "INVALID_SELECTION"
	CodeEngineUnavailable ReadinessCode = "ENGINE_UNREACHABLE"
)

// ProbeState is the tri-state outcome of a single probe attempt.
type ProbeState string

const (
	ProbeReady             ProbeState = "ready"
	ProbeNotReady          ProbeState = "not-ready"
	ProbeEngineUnreachable ProbeState = "engine-unreachable"
)

// ReadinessResult is the outcome of one probe attempt against one target.
type ReadinessResult struct {
	Target string        `json:"target"`
	State  ProbeState    `json:"state"`
	Code   ReadinessCode `json:"code"`
	Detail string        `json:"detail"`
}

// Ready reports whether the attempt succeeded.
func (r ReadinessResult) Ready() bool {
	return r.State == ProbeReady
}
