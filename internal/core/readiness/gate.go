package readiness

import (
	"context"
	"net/http"
	"time"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
	"github.com/guan4tou2/Lnadlse/internal/core/ports"
	"github.com/guan4tou2/Lnadlse/internal/metrics"
)

// GateConfig configures how group dependencies are probed.
type GateConfig struct {
	Budget  Budget
	Network string
	Client  *http.Client
	// Credentials are keyed by service name.
	Credentials map[string]domain.Credentials
	Metrics     *metrics.Metrics
}

// Gate turns service groups of a lab into probe dependencies.
type Gate struct {
	prober *Prober
	engine ports.EngineGateway
	lab    *domain.Lab
	cfg    GateConfig
}

// NewGate creates a gate over lab.
func NewGate(prober *Prober, engine ports.EngineGateway, lab *domain.Lab, cfg GateConfig) *Gate {
	if cfg.Client == nil {
		cfg.Client = NewHTTPClient(10*time.Second, true)
	}
	if cfg.Network == "" {
		cfg.Network = lab.Network
	}
	return &Gate{prober: prober, engine: engine, lab: lab, cfg: cfg}
}

// Dependency builds the composite dependency for group: every service with a
// readiness check, in declaration order. A group with no checks falls back to
// "is running" on every service.
func (g *Gate) Dependency(group string) (Dependency, error) {
	grp, err := g.lab.Group(group)
	if err != nil {
		return Dependency{}, err
	}
	dep := Dependency{Name: grp.Name}

	checked := make([]domain.ServiceDescriptor, 0, len(grp.Services))
	for _, s := range grp.Services {
		if s.Readiness != nil {
			checked = append(checked, s)
		}
	}
	if len(checked) == 0 {
		checked = grp.Services
	}
	for _, s := range checked {
		var creds *domain.Credentials
		if c, ok := g.cfg.Credentials[s.Name]; ok {
			creds = &c
		}
		dep.Targets = append(dep.Targets, NewServiceTarget(g.engine, g.cfg.Client, g.cfg.Network, s, creds))
	}
	for _, s := range grp.Services {
		if s.Handoff != nil {
			h := *s.Handoff
			dep.Handoff = &h
			dep.HandoffFrom = s.Name
			break
		}
	}
	return dep, nil
}

// Await waits for group to become ready and applies its handoff. The error
// is a ReadinessExhaustedError when the budget ran out.
func (g *Gate) Await(ctx context.Context, group string) (Result, error) {
	dep, err := g.Dependency(group)
	if err != nil {
		return Result{}, err
	}
	return g.wait(ctx, dep)
}

// Check runs the same wait as Await without the handoff side effect.
func (g *Gate) Check(ctx context.Context, group string) (Result, error) {
	dep, err := g.Dependency(group)
	if err != nil {
		return Result{}, err
	}
	dep.Handoff = nil
	return g.wait(ctx, dep)
}

func (g *Gate) wait(ctx context.Context, dep Dependency) (Result, error) {
	start := time.Now()
	res := g.prober.WaitReady(ctx, dep, g.cfg.Budget)
	g.cfg.Metrics.ObserveReadinessWait(dep.Name, string(res.Verdict), time.Since(start))
	return res, res.Err()
}
