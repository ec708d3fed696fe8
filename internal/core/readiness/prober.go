// Package readiness polls dependencies with a bounded, fixed-delay retry loop
// and performs the config handoff once a dependency is ready.
package readiness

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
	"github.com/guan4tou2/Lnadlse/internal/core/ports"
	"github.com/guan4tou2/Lnadlse/internal/metrics"
)

// Verdict is the terminal state of a wait.
type Verdict string

const (
	VerdictReady     Verdict = "ready"
	VerdictExhausted Verdict = "exhausted"
)

// Budget bounds a wait: at most MaxAttempts attempts, Delay apart.
type Budget struct {
	MaxAttempts int
	Delay       time.Duration
}

// Dependency is one or more targets probed in order within a single attempt.
type Dependency struct {
	Name    string
	Targets []Target
	// Handoff is applied once with the address of HandoffFrom (or the first
	// target) when the dependency becomes ready.
	Handoff     *domain.ConfigHandoff
	HandoffFrom string
}

// Result describes a finished wait.
type Result struct {
	Dependency string                   `json:"dependency"`
	Verdict    Verdict                  `json:"verdict"`
	Code       domain.ReadinessCode     `json:"code"`
	Detail     string                   `json:"detail"`
	Attempts   int                      `json:"attempts"`
	Probes     map[string]int           `json:"probes"`
	Addresses  map[string]string        `json:"addresses,omitempty"`
	Last       []domain.ReadinessResult `json:"last"`
	HandoffErr error                    `json:"-"`
}

// Ready reports whether the dependency became ready.
func (r Result) Ready() bool {
	return r.Verdict == VerdictReady
}

// Err returns a ReadinessExhaustedError for an exhausted wait, nil otherwise.
// A handoff failure never turns a ready result into an error.
func (r Result) Err() error {
	if r.Ready() {
		return nil
	}
	return &domain.ReadinessExhaustedError{
		Dependency: r.Dependency,
		Code:       r.Code,
		Detail:     r.Detail,
		Attempts:   r.Attempts,
	}
}

// Prober runs readiness waits.
type Prober struct {
	handoff ports.ConfigHandoff
	sleep   func(time.Duration)
	metrics *metrics.Metrics
}

// Option configures a Prober.
type Option func(*Prober)

// WithSleep replaces time.Sleep between attempts.
func WithSleep(sleep func(time.Duration)) Option {
	return func(p *Prober) { p.sleep = sleep }
}

// WithMetrics records probe attempts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Prober) { p.metrics = m }
}

// NewProber creates a prober. handoff may be nil when no dependency declares one.
func NewProber(handoff ports.ConfigHandoff, opts ...Option) *Prober {
	p := &Prober{handoff: handoff, sleep: time.Sleep}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WaitReady probes dep until every target is ready in the same attempt or
// the budget is used up. Within an attempt, targets are probed in order and
// the attempt stops at the first target that is not ready. ctx is checked
// between attempts; a sleep in progress is not interrupted.
func (p *Prober) WaitReady(ctx context.Context, dep Dependency, budget Budget) Result {
	res := Result{
		Dependency: dep.Name,
		Verdict:    VerdictExhausted,
		Code:       domain.CodeCheckTimeout,
		Detail:     "no probe attempt was made",
		Probes:     map[string]int{},
	}

	for attempt := 1; attempt <= budget.MaxAttempts; attempt++ {
		if attempt > 1 {
			p.sleep(budget.Delay)
		}
		if err := ctx.Err(); err != nil {
			res.Code = domain.CodeCheckTimeout
			res.Detail = "readiness wait cancelled: " + err.Error()
			return res
		}
		res.Attempts = attempt

		ready, addrs, last := p.attempt(ctx, dep, &res)
		res.Last = last
		if !ready {
			failed := last[len(last)-1]
			res.Code = failed.Code
			res.Detail = failed.Detail
			log.Debug().Str("dependency", dep.Name).Int("attempt", attempt).Str("target", failed.Target).
				Str("code", string(failed.Code)).Msg("dependency not ready")
			continue
		}

		res.Verdict = VerdictReady
		res.Code = domain.CodeSuccess
		res.Detail = "ready"
		res.Addresses = addrs
		log.Info().Str("dependency", dep.Name).Int("attempt", attempt).Msg("dependency ready")
		res.HandoffErr = p.applyHandoff(ctx, dep, addrs)
		return res
	}

	log.Warn().Str("dependency", dep.Name).Int("attempts", res.Attempts).Str("code", string(res.Code)).Msg("readiness budget exhausted")
	return res
}

func (p *Prober) attempt(ctx context.Context, dep Dependency, res *Result) (bool, map[string]string, []domain.ReadinessResult) {
	addrs := map[string]string{}
	var last []domain.ReadinessResult
	for _, t := range dep.Targets {
		obs := t.Probe(ctx)
		res.Probes[t.Name()]++
		p.metrics.ObserveProbe(t.Name(), string(obs.State))
		last = append(last, obs.ReadinessResult)
		if !obs.Ready() {
			return false, nil, last
		}
		addrs[t.Name()] = obs.Address
	}
	return true, addrs, last
}

func (p *Prober) applyHandoff(ctx context.Context, dep Dependency, addrs map[string]string) error {
	if dep.Handoff == nil || p.handoff == nil {
		return nil
	}
	from := dep.HandoffFrom
	if from == "" && len(dep.Targets) > 0 {
		from = dep.Targets[0].Name()
	}
	addr := addrs[from]
	if addr == "" {
		return &domain.HandoffError{File: dep.Handoff.File, Err: errors.New("no address discovered for " + from)}
	}

	if err := p.handoff.Apply(ctx, *dep.Handoff, addr); err != nil {
		log.Error().Err(err).Str("dependency", dep.Name).Str("file", dep.Handoff.File).Msg("config handoff failed")
		var he *domain.HandoffError
		if errors.As(err, &he) {
			return err
		}
		return &domain.HandoffError{File: dep.Handoff.File, Err: err}
	}
	return nil
}
