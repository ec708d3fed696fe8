package readiness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
)

// scriptedTarget returns a fixed sequence of observations; the last one repeats.
type scriptedTarget struct {
	name   string
	script []Observation
	calls  int
}

func (s *scriptedTarget) Name() string { return s.name }

func (s *scriptedTarget) Probe(ctx context.Context) Observation {
	i := s.calls
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	s.calls++
	obs := s.script[i]
	obs.Target = s.name
	return obs
}

func notReady(code domain.ReadinessCode) Observation {
	return Observation{ReadinessResult: domain.ReadinessResult{State: domain.ProbeNotReady, Code: code, Detail: string(code)}}
}

func ready(addr string) Observation {
	return Observation{ReadinessResult: domain.ReadinessResult{State: domain.ProbeReady, Code: domain.CodeSuccess}, Address: addr}
}

type recordingHandoff struct {
	calls   int
	address string
	err     error
}

func (r *recordingHandoff) Apply(ctx context.Context, spec domain.ConfigHandoff, address string) error {
	r.calls++
	r.address = address
	return r.err
}

func noSleep(time.Duration) {}

func TestWaitReadyAlwaysFailingMakesExactlyMaxAttempts(t *testing.T) {
	target := &scriptedTarget{name: "es01", script: []Observation{notReady(domain.CodeESNotReady)}}
	p := NewProber(nil, WithSleep(noSleep))

	res := p.WaitReady(context.Background(), Dependency{Name: "analytics", Targets: []Target{target}}, Budget{MaxAttempts: 3})

	assert.Equal(t, 3, target.calls)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, VerdictExhausted, res.Verdict)
	assert.Equal(t, domain.CodeESNotReady, res.Code)
	assert.NotEmpty(t, res.Code)

	var exhausted *domain.ReadinessExhaustedError
	require.True(t, errors.As(res.Err(), &exhausted))
	assert.Equal(t, domain.CodeESNotReady, exhausted.Code)
	assert.Equal(t, 3, exhausted.Attempts)
}

func TestWaitReadyCompositeReportsFirstFailure(t *testing.T) {
	es := &scriptedTarget{name: "es01", script: []Observation{notReady(domain.CodeESIPNotFound)}}
	kibana := &scriptedTarget{name: "kibana", script: []Observation{notReady(domain.CodeKibanaNotReady)}}
	p := NewProber(nil, WithSleep(noSleep))

	res := p.WaitReady(context.Background(), Dependency{Name: "analytics", Targets: []Target{es, kibana}}, Budget{MaxAttempts: 4})

	assert.Equal(t, 4, es.calls)
	assert.Equal(t, 0, kibana.calls)
	assert.Equal(t, domain.CodeESIPNotFound, res.Code)
	assert.Equal(t, map[string]int{"es01": 4}, res.Probes)
}

func TestWaitReadySecondTargetFailureCode(t *testing.T) {
	es := &scriptedTarget{name: "es01", script: []Observation{ready("172.18.0.2")}}
	kibana := &scriptedTarget{name: "kibana", script: []Observation{notReady(domain.CodeKibanaNotReady)}}
	p := NewProber(nil, WithSleep(noSleep))

	res := p.WaitReady(context.Background(), Dependency{Name: "analytics", Targets: []Target{es, kibana}}, Budget{MaxAttempts: 2})

	assert.False(t, res.Ready())
	assert.Equal(t, domain.CodeKibanaNotReady, res.Code)
	assert.Equal(t, 2, kibana.calls)
}

func TestWaitReadySleepsBetweenAttemptsOnly(t *testing.T) {
	target := &scriptedTarget{name: "es01", script: []Observation{
		notReady(domain.CodeRequestFailed),
		notReady(domain.CodeESNotReady),
		ready("172.18.0.2"),
	}}
	var slept []time.Duration
	p := NewProber(nil, WithSleep(func(d time.Duration) { slept = append(slept, d) }))

	res := p.WaitReady(context.Background(), Dependency{Name: "analytics", Targets: []Target{target}}, Budget{MaxAttempts: 5, Delay: 10 * time.Second})

	require.True(t, res.Ready())
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, slept)
	assert.Equal(t, domain.CodeSuccess, res.Code)
	assert.NoError(t, res.Err())
}

func TestWaitReadyEngineUnreachableIsRetried(t *testing.T) {
	target := &scriptedTarget{name: "es01", script: []Observation{
		{ReadinessResult: domain.ReadinessResult{State: domain.ProbeEngineUnreachable, Code: domain.CodeEngineUnavailable}},
		ready("172.18.0.2"),
	}}
	p := NewProber(nil, WithSleep(noSleep))

	res := p.WaitReady(context.Background(), Dependency{Name: "analytics", Targets: []Target{target}}, Budget{MaxAttempts: 3})
	assert.True(t, res.Ready())
	assert.Equal(t, 2, res.Attempts)
}

func TestWaitReadyHandoffOnceWithDiscoveredAddress(t *testing.T) {
	es := &scriptedTarget{name: "es01", script: []Observation{ready("172.18.0.2")}}
	kibana := &scriptedTarget{name: "kibana", script: []Observation{notReady(domain.CodeKibanaNotReady), ready("172.18.0.3")}}
	h := &recordingHandoff{}
	p := NewProber(h, WithSleep(noSleep))

	dep := Dependency{
		Name:        "analytics",
		Targets:     []Target{es, kibana},
		Handoff:     &domain.ConfigHandoff{File: "packetbeat.yml"},
		HandoffFrom: "es01",
	}
	res := p.WaitReady(context.Background(), dep, Budget{MaxAttempts: 3})

	require.True(t, res.Ready())
	assert.Equal(t, 1, h.calls)
	assert.Equal(t, "172.18.0.2", h.address)
	assert.NoError(t, res.HandoffErr)
}

func TestWaitReadyHandoffFailureKeepsReadyVerdict(t *testing.T) {
	es := &scriptedTarget{name: "es01", script: []Observation{ready("172.18.0.2")}}
	h := &recordingHandoff{err: errors.New("permission denied")}
	p := NewProber(h, WithSleep(noSleep))

	dep := Dependency{Name: "analytics", Targets: []Target{es}, Handoff: &domain.ConfigHandoff{File: "packetbeat.yml"}}
	res := p.WaitReady(context.Background(), dep, Budget{MaxAttempts: 1})

	assert.True(t, res.Ready())
	assert.NoError(t, res.Err())
	var he *domain.HandoffError
	require.True(t, errors.As(res.HandoffErr, &he))
	assert.Equal(t, "packetbeat.yml", he.File)
}

func TestWaitReadyCancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	target := &scriptedTarget{name: "es01", script: []Observation{notReady(domain.CodeESNotReady)}}
	p := NewProber(nil, WithSleep(func(time.Duration) { cancel() }))

	res := p.WaitReady(ctx, Dependency{Name: "analytics", Targets: []Target{target}}, Budget{MaxAttempts: 5})

	assert.Equal(t, 1, target.calls)
	assert.Equal(t, domain.CodeCheckTimeout, res.Code)
	assert.False(t, res.Ready())
}

func TestWaitReadyZeroBudget(t *testing.T) {
	target := &scriptedTarget{name: "es01", script: []Observation{ready("x")}}
	res := NewProber(nil).WaitReady(context.Background(), Dependency{Name: "analytics", Targets: []Target{target}}, Budget{})

	assert.Equal(t, 0, target.calls)
	assert.Equal(t, domain.CodeCheckTimeout, res.Code)
}
