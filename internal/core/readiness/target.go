package readiness

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
	"github.com/guan4tou2/Lnadlse/internal/core/ports"
)

// Observation is one probe attempt plus the address the target answered on.
type Observation struct {
	domain.ReadinessResult
	Address string
}

// Target is a single thing that can be probed for readiness.
type Target interface {
	Name() string
	Probe(ctx context.Context) Observation
}

// NewHTTPClient returns the client used for readiness probes. The lab's
// search engine uses a self-signed certificate, hence insecure.
func NewHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure}, //nolint:gosec
		},
	}
}

// ServiceTarget probes a service by resolving its container's current
// address through the engine, then issuing the configured check.
type ServiceTarget struct {
	engine  ports.EngineGateway
	client  *http.Client
	network string
	svc     domain.ServiceDescriptor
	creds   *domain.Credentials
}

// NewServiceTarget creates a target for svc. creds is only used when the
// service's check asks for credentials.
func NewServiceTarget(engine ports.EngineGateway, client *http.Client, network string, svc domain.ServiceDescriptor, creds *domain.Credentials) *ServiceTarget {
	return &ServiceTarget{engine: engine, client: client, network: network, svc: svc, creds: creds}
}

func (t *ServiceTarget) Name() string {
	return t.svc.Name
}

func (t *ServiceTarget) Probe(ctx context.Context) Observation {
	obs := Observation{ReadinessResult: domain.ReadinessResult{Target: t.svc.Name}}

	rec, err := t.engine.GetContainer(ctx, t.svc.Container())
	switch {
	case errors.Is(err, domain.ErrEngineUnreachable):
		return obs.fail(domain.ProbeEngineUnreachable, domain.CodeEngineUnavailable, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return obs.fail(domain.ProbeNotReady, t.svc.NotFoundCode(), fmt.Sprintf("container %s not found", t.svc.Container()))
	case err != nil:
		return obs.fail(domain.ProbeNotReady, domain.CodeRequestFailed, err.Error())
	}
	obs.Address = rec.Address(t.network)

	check := t.check()
	if check.Kind == domain.CheckRunning {
		if !rec.Running() {
			return obs.fail(domain.ProbeNotReady, t.svc.NotReadyCode(), fmt.Sprintf("container %s is %s", rec.Name, rec.Status))
		}
		return obs.ok()
	}

	if obs.Address == "" {
		return obs.fail(domain.ProbeNotReady, t.svc.NotFoundCode(), fmt.Sprintf("no address for %s on %s", rec.Name, t.network))
	}

	url := fmt.Sprintf("%s://%s:%d%s", check.Kind, obs.Address, check.Port, check.Path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return obs.fail(domain.ProbeNotReady, domain.CodeRequestFailed, err.Error())
	}
	if check.UseCredentials && t.creds != nil {
		req.SetBasicAuth(t.creds.Username, t.creds.Password)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return obs.fail(domain.ProbeNotReady, domain.CodeRequestFailed, err.Error())
	}
	resp.Body.Close()

	want := check.ExpectStatus
	if want == 0 {
		want = http.StatusOK
	}
	if resp.StatusCode != want {
		return obs.fail(domain.ProbeNotReady, t.svc.NotReadyCode(), fmt.Sprintf("%s returned %d, want %d", url, resp.StatusCode, want))
	}
	return obs.ok()
}

func (t *ServiceTarget) check() domain.ReadinessCheck {
	if t.svc.Readiness == nil {
		return domain.ReadinessCheck{Kind: domain.CheckRunning}
	}
	return *t.svc.Readiness
}

func (o Observation) fail(state domain.ProbeState, code domain.ReadinessCode, detail string) Observation {
	o.State = state
	o.Code = code
	o.Detail = detail
	return o
}

func (o Observation) ok() Observation {
	o.State = domain.ProbeReady
	o.Code = domain.CodeSuccess
	o.Detail = "ready"
	return o
}
