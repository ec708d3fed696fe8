// Package lifecycle drives group-level start, stop and remove operations and
// the full teardown sweep.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
	"github.com/guan4tou2/Lnadlse/internal/core/ports"
	"github.com/guan4tou2/Lnadlse/internal/core/readiness"
	"github.com/guan4tou2/Lnadlse/internal/metrics"
)

// Awaiter blocks until a dependency group is ready.
type Awaiter interface {
	Await(ctx context.Context, group string) (readiness.Result, error)
}

// Mode summarizes what an operation did.
type Mode string

const (
	ModeCreated        Mode = "created"
	ModeResumed        Mode = "resumed"
	ModeAlreadyRunning Mode = "already-running"
	ModeStopped        Mode = "stopped"
	ModeRemoved        Mode = "removed"
	ModeNetworkCreated Mode = "network-created"
	ModeNetworkExists  Mode = "network-exists"
	ModeInstalled      Mode = "installed"
	ModeTornDown       Mode = "torn-down"
)

// ServiceOutcome is the per-service step taken by an operation.
type ServiceOutcome struct {
	Service   string `json:"service"`
	Container string `json:"container"`
	Image     string `json:"image,omitempty"`
	Step      string `json:"step"`
	Detail    string `json:"detail,omitempty"`
}

// Result reports a lifecycle operation.
type Result struct {
	ID        string            `json:"id"`
	Group     string            `json:"group"`
	Action    string            `json:"action"`
	Mode      Mode              `json:"mode"`
	Services  []ServiceOutcome  `json:"services,omitempty"`
	Readiness *readiness.Result `json:"readiness,omitempty"`
	// HandoffErr is set when the dependency became ready but its config
	// handoff failed. The operation itself still succeeded.
	HandoffErr error `json:"-"`
}

// Options configures a Controller.
type Options struct {
	Metrics *metrics.Metrics
	// SweepPrefixes lists, per group, the container name fragments the
	// teardown sweep force-removes.
	SweepPrefixes map[string][]string
}

// DefaultSweepPrefixes are the fragments of the stock lab groups.
func DefaultSweepPrefixes() map[string][]string {
	return map[string][]string{
		"analytics":  {"elk", "elasticsearch", "logstash", "kibana"},
		"simulation": {"target", "attacker"},
	}
}

// Controller applies lifecycle actions to the groups of a lab. Operations on
// the same group are serialized.
type Controller struct {
	engine  ports.EngineGateway
	builder ports.ImageBuilder
	awaiter Awaiter
	lab     *domain.Lab
	opts    Options

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewController wires a controller. awaiter may be nil when no group declares
// a dependency.
func NewController(engine ports.EngineGateway, builder ports.ImageBuilder, awaiter Awaiter, lab *domain.Lab, opts Options) *Controller {
	if opts.SweepPrefixes == nil {
		opts.SweepPrefixes = DefaultSweepPrefixes()
	}
	return &Controller{
		engine:  engine,
		builder: builder,
		awaiter: awaiter,
		lab:     lab,
		opts:    opts,
		locks:   map[string]*sync.Mutex{},
	}
}

func (c *Controller) mutex(group string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[group]
	if !ok {
		l = &sync.Mutex{}
		c.locks[group] = l
	}
	return l
}

func (c *Controller) lock(group string) func() {
	l := c.mutex(group)
	l.Lock()
	return l.Unlock
}

// lockAll takes the lock of every lab group in declaration order. Sweep
// prefixes can match containers of groups that were not named, so a
// teardown holds all of them.
func (c *Controller) lockAll() func() {
	names := c.lab.GroupNames()
	held := make([]*sync.Mutex, 0, len(names))
	for _, n := range names {
		l := c.mutex(n)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// Apply runs action against group. services narrows start, stop and remove
// to a subset; an empty list means the group's defaults for start and every
// service otherwise.
func (c *Controller) Apply(ctx context.Context, group string, action domain.Action, services ...string) (Result, error) {
	grp, err := c.lab.Group(group)
	if err != nil {
		return Result{}, err
	}
	unlock := c.lock(grp.Name)
	defer unlock()

	res := Result{ID: uuid.NewString(), Group: grp.Name, Action: action.String()}
	logger := log.With().Str("op", res.ID).Str("group", grp.Name).Str("action", action.String()).Logger()
	logger.Info().Strs("services", services).Msg("lifecycle operation started")

	switch action {
	case domain.ActionEnsureNetwork:
		err = c.ensureNetwork(ctx, &res)
	case domain.ActionStart:
		err = c.start(ctx, grp, services, &res)
	case domain.ActionStop:
		err = c.stop(ctx, grp, services, &res)
	case domain.ActionRemove:
		err = c.remove(ctx, grp, services, &res)
	default:
		err = &domain.InvalidSelectionError{What: "action", Value: action.String()}
	}

	outcome := string(res.Mode)
	if err != nil {
		outcome = "error"
		logger.Error().Err(err).Msg("lifecycle operation failed")
	} else {
		logger.Info().Str("mode", string(res.Mode)).Msg("lifecycle operation finished")
	}
	c.opts.Metrics.ObserveLifecycle(grp.Name, action.String(), outcome)
	return res, err
}

func (c *Controller) ensureNetwork(ctx context.Context, res *Result) error {
	networks, err := c.engine.ListNetworks(ctx)
	if err != nil {
		return err
	}
	for _, n := range networks {
		if n.Name == c.lab.Network {
			log.Info().Str("network", n.Name).Msg("network already exists")
			res.Mode = ModeNetworkExists
			return nil
		}
	}
	if err := c.engine.CreateNetwork(ctx, c.lab.Network); err != nil {
		return err
	}
	log.Info().Str("network", c.lab.Network).Msg("network created")
	res.Mode = ModeNetworkCreated
	return nil
}

func (c *Controller) start(ctx context.Context, grp domain.ServiceGroup, names []string, res *Result) error {
	selected, err := grp.Select(names...)
	if err != nil {
		return err
	}

	// Any existing member of the group, selected or not, means resume.
	existing := map[string]domain.ContainerRecord{}
	for _, svc := range grp.Services {
		rec, err := c.engine.GetContainer(ctx, svc.Container())
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		existing[svc.Name] = rec
	}

	if allRunning(selected, existing) {
		res.Mode = ModeAlreadyRunning
		for _, svc := range selected {
			res.Services = append(res.Services, ServiceOutcome{Service: svc.Name, Container: svc.Container(), Step: "running"})
		}
		return nil
	}

	if grp.DependsOn != "" && c.awaiter != nil {
		log.Info().Str("group", grp.Name).Str("dependency", grp.DependsOn).Msg("waiting for dependency")
		ready, err := c.awaiter.Await(ctx, grp.DependsOn)
		res.Readiness = &ready
		if err != nil {
			return err
		}
		res.HandoffErr = ready.HandoffErr
	}

	if len(existing) > 0 {
		return c.resume(ctx, selected, existing, res)
	}
	return c.create(ctx, grp, selected, res)
}

func allRunning(selected []domain.ServiceDescriptor, existing map[string]domain.ContainerRecord) bool {
	for _, svc := range selected {
		if rec, ok := existing[svc.Name]; !ok || !rec.Running() {
			return false
		}
	}
	return true
}

// resume starts existing containers in place. Containers already holding
// state are never recreated.
func (c *Controller) resume(ctx context.Context, selected []domain.ServiceDescriptor, existing map[string]domain.ContainerRecord, res *Result) error {
	res.Mode = ModeResumed
	for _, svc := range selected {
		out := ServiceOutcome{Service: svc.Name, Container: svc.Container()}
		rec, ok := existing[svc.Name]
		switch {
		case !ok:
			out.Step = "skipped"
			out.Detail = "container does not exist; remove the group to recreate it"
		case rec.Running():
			out.Step = "running"
		default:
			if err := c.engine.Start(ctx, svc.Container()); err != nil {
				return err
			}
			out.Step = "started"
		}
		res.Services = append(res.Services, out)
	}
	return nil
}

func (c *Controller) create(ctx context.Context, grp domain.ServiceGroup, selected []domain.ServiceDescriptor, res *Result) error {
	res.Mode = ModeCreated
	var scratch Result
	if err := c.ensureNetwork(ctx, &scratch); err != nil {
		return err
	}

	for _, svc := range selected {
		image, err := c.imageFor(ctx, svc, false)
		if err != nil {
			return err
		}
		rec, err := c.engine.CreateAndStart(ctx, domain.ContainerSpec{
			Name:       svc.Container(),
			Image:      image,
			Network:    c.lab.Network,
			Aliases:    []string{svc.Name},
			Env:        svc.Env,
			Command:    svc.Command,
			Ports:      svc.Ports,
			Volumes:    svc.Volumes,
			Privileged: svc.Privileged,
			CapAdd:     svc.CapAdd,
			Labels:     map[string]string{"range.group": grp.Name, "range.service": svc.Name},
		})
		if err != nil {
			return err
		}
		log.Info().Str("service", svc.Name).Str("container", rec.Name).Str("image", image).Msg("container created")
		res.Services = append(res.Services, ServiceOutcome{Service: svc.Name, Container: rec.Name, Image: image, Step: "created"})
	}
	return nil
}

// imageFor resolves the image of svc, building it when it is build-backed
// and either missing or force is set.
func (c *Controller) imageFor(ctx context.Context, svc domain.ServiceDescriptor, force bool) (string, error) {
	if svc.Build == nil {
		if !strings.Contains(svc.Image, domain.ArchPlaceholder) {
			return svc.Image, nil
		}
		arch, err := c.builder.Architecture()
		if err != nil {
			return "", err
		}
		return svc.ImageFor(arch), nil
	}

	tag := c.builder.Tag(svc)
	if !force {
		ok, err := c.engine.ImageExists(ctx, tag)
		if err != nil {
			return "", err
		}
		if ok {
			log.Debug().Str("service", svc.Name).Str("image", tag).Msg("reusing image")
			return tag, nil
		}
	}

	arch, err := c.builder.Architecture()
	if err != nil {
		return "", err
	}
	built, err := c.builder.Build(ctx, svc, arch)
	if err != nil {
		c.opts.Metrics.ObserveBuild(tag, "error")
		return "", err
	}
	c.opts.Metrics.ObserveBuild(built, "built")
	return built, nil
}

func (c *Controller) members(grp domain.ServiceGroup, names []string) ([]domain.ServiceDescriptor, error) {
	if len(names) == 0 {
		return grp.Services, nil
	}
	out := make([]domain.ServiceDescriptor, 0, len(names))
	for _, n := range names {
		svc, ok := grp.Service(n)
		if !ok {
			return nil, &domain.InvalidSelectionError{What: grp.Name + " service", Value: n, Allowed: grp.ServiceNames()}
		}
		out = append(out, svc)
	}
	return out, nil
}

func (c *Controller) stop(ctx context.Context, grp domain.ServiceGroup, names []string, res *Result) error {
	svcs, err := c.members(grp, names)
	if err != nil {
		return err
	}
	res.Mode = ModeStopped
	var errs []error
	for _, svc := range svcs {
		out := ServiceOutcome{Service: svc.Name, Container: svc.Container(), Step: "stopped"}
		if err := c.engine.Stop(ctx, svc.Container()); err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				errs = append(errs, err)
				out.Step = "failed"
				out.Detail = err.Error()
			} else {
				out.Step = "absent"
			}
		}
		res.Services = append(res.Services, out)
	}
	return errors.Join(errs...)
}

func (c *Controller) remove(ctx context.Context, grp domain.ServiceGroup, names []string, res *Result) error {
	svcs, err := c.members(grp, names)
	if err != nil {
		return err
	}
	res.Mode = ModeRemoved
	var errs []error
	for _, svc := range svcs {
		out := ServiceOutcome{Service: svc.Name, Container: svc.Container(), Step: "removed"}
		if err := c.engine.Remove(ctx, svc.Container()); err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				errs = append(errs, err)
				out.Step = "failed"
				out.Detail = err.Error()
			} else {
				out.Step = "absent"
			}
		}
		res.Services = append(res.Services, out)
	}
	return errors.Join(errs...)
}

// Install ensures the lab network and prepares every image of the selected
// services: build-backed images are rebuilt, the rest are pulled.
func (c *Controller) Install(ctx context.Context, group string, services ...string) (Result, error) {
	grp, err := c.lab.Group(group)
	if err != nil {
		return Result{}, err
	}
	unlock := c.lock(grp.Name)
	defer unlock()

	res := Result{ID: uuid.NewString(), Group: grp.Name, Action: "install", Mode: ModeInstalled}
	svcs, err := c.members(grp, services)
	if err != nil {
		return res, err
	}
	var scratch Result
	if err := c.ensureNetwork(ctx, &scratch); err != nil {
		return res, err
	}

	for _, svc := range svcs {
		image, err := c.imageFor(ctx, svc, true)
		if err != nil {
			c.opts.Metrics.ObserveLifecycle(grp.Name, "install", "error")
			return res, err
		}
		step := "built"
		if svc.Build == nil {
			if err := c.engine.PullImage(ctx, image); err != nil {
				c.opts.Metrics.ObserveLifecycle(grp.Name, "install", "error")
				return res, err
			}
			step = "pulled"
		}
		res.Services = append(res.Services, ServiceOutcome{Service: svc.Name, Container: svc.Container(), Image: image, Step: step})
	}
	c.opts.Metrics.ObserveLifecycle(grp.Name, "install", string(res.Mode))
	log.Info().Str("group", grp.Name).Int("images", len(res.Services)).Msg("install finished")
	return res, nil
}

// Teardown removes the named groups (every group when none are named) and
// then sweeps any leftover container whose name matches one of their prefix
// fragments. A failing container never stops the sweep; failures are
// returned together as a *domain.PartialCleanupError.
func (c *Controller) Teardown(ctx context.Context, groups ...string) (Result, error) {
	if len(groups) == 0 {
		groups = c.lab.GroupNames()
	}
	res := Result{ID: uuid.NewString(), Group: strings.Join(groups, ","), Action: "teardown", Mode: ModeTornDown}

	selected := make([]domain.ServiceGroup, 0, len(groups))
	for _, name := range groups {
		grp, err := c.lab.Group(name)
		if err != nil {
			return res, err
		}
		selected = append(selected, grp)
	}

	unlock := c.lockAll()
	defer unlock()

	var failures []domain.CleanupFailure
	var prefixes []string
	for i := len(selected) - 1; i >= 0; i-- {
		grp := selected[i]
		prefixes = append(prefixes, c.sweepPrefixes(grp)...)

		var removed Result
		err := c.remove(ctx, grp, nil, &removed)
		res.Services = append(res.Services, removed.Services...)
		for _, out := range removed.Services {
			if out.Step == "failed" {
				failures = append(failures, domain.CleanupFailure{Container: out.Container, Step: "remove", Error: out.Detail})
			}
		}
		if err != nil {
			log.Warn().Err(err).Str("group", grp.Name).Msg("declarative remove incomplete, sweeping")
		}
	}

	swept, err := c.sweep(ctx, prefixes)
	failures = append(failures, swept...)
	if err != nil {
		return res, err
	}

	outcome := string(res.Mode)
	if len(failures) > 0 {
		outcome = "partial"
	}
	c.opts.Metrics.ObserveLifecycle(res.Group, "teardown", outcome)
	if len(failures) > 0 {
		return res, &domain.PartialCleanupError{Failures: failures}
	}
	return res, nil
}

func (c *Controller) sweepPrefixes(grp domain.ServiceGroup) []string {
	if p, ok := c.opts.SweepPrefixes[grp.Name]; ok {
		return p
	}
	out := make([]string, 0, len(grp.Services))
	for _, s := range grp.Services {
		out = append(out, strings.ToLower(s.Container()))
	}
	return out
}

// sweep force-stops and force-removes every container matching prefixes.
// Only a failure to list containers aborts it.
func (c *Controller) sweep(ctx context.Context, prefixes []string) ([]domain.CleanupFailure, error) {
	if len(prefixes) == 0 {
		return nil, nil
	}
	records, err := c.engine.ListContainers(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}

	var failures []domain.CleanupFailure
	for _, rec := range records {
		if !matchesAny(rec.Name, prefixes) {
			continue
		}
		if err := c.engine.Stop(ctx, rec.Name); err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).Str("container", rec.Name).Msg("sweep: stop failed")
			failures = append(failures, domain.CleanupFailure{Container: rec.Name, Step: "stop", Error: err.Error()})
			c.opts.Metrics.ObserveSweepFailure()
		}
		if err := c.engine.Remove(ctx, rec.Name); err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).Str("container", rec.Name).Msg("sweep: remove failed")
			failures = append(failures, domain.CleanupFailure{Container: rec.Name, Step: "remove", Error: err.Error()})
			c.opts.Metrics.ObserveSweepFailure()
		}
	}
	return failures, nil
}

func matchesAny(name string, fragments []string) bool {
	lower := strings.ToLower(name)
	for _, f := range fragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}
