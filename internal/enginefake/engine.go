// Package enginefake provides an in-memory ports.EngineGateway for tests.
package enginefake

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
)

// Call is one recorded gateway invocation.
type Call struct {
	Method string
	Arg    string
}

// Engine keeps containers, networks and images in memory and records calls.
type Engine struct {
	mu         sync.Mutex
	containers map[string]*domain.ContainerRecord
	networks   map[string]domain.NetworkRecord
	images     map[string]bool
	calls      []Call
	seq        int

	// Fail maps "Method:arg" (or "Method:*") to the error that call returns.
	Fail map[string]error
	// Unreachable makes every call fail with domain.ErrEngineUnreachable.
	Unreachable bool
	// Hook, when set, runs at the start of every call before any state is
	// read or changed. Set it before the engine is shared.
	Hook func(method, arg string)
}

// New returns an empty engine.
func New() *Engine {
	return &Engine{
		containers: map[string]*domain.ContainerRecord{},
		networks:   map[string]domain.NetworkRecord{},
		images:     map[string]bool{},
		Fail:       map[string]error{},
	}
}

// AddContainer seeds a container. Missing id defaults to a generated one.
func (e *Engine) AddContainer(rec domain.ContainerRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec.ID == "" {
		e.seq++
		rec.ID = fmt.Sprintf("%064d", e.seq)
	}
	if rec.Addresses == nil {
		rec.Addresses = map[string]string{}
	}
	r := rec
	e.containers[rec.Name] = &r
}

// AddNetwork seeds a network.
func (e *Engine) AddNetwork(n domain.NetworkRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.networks[n.Name] = n
}

// AddImage marks an image as present.
func (e *Engine) AddImage(ref string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.images[ref] = true
}

// Calls returns a copy of the recorded calls.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// CallsTo returns the args of every call to method.
func (e *Engine) CallsTo(method string) []string {
	var out []string
	for _, c := range e.Calls() {
		if c.Method == method {
			out = append(out, c.Arg)
		}
	}
	return out
}

// Container returns the current record for name.
func (e *Engine) Container(name string) (domain.ContainerRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.containers[name]
	if !ok {
		return domain.ContainerRecord{}, false
	}
	return *c, true
}

func (e *Engine) record(method, arg string) error {
	if e.Hook != nil {
		e.Hook(method, arg)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, Call{Method: method, Arg: arg})
	if e.Unreachable {
		return domain.ErrEngineUnreachable
	}
	if err, ok := e.Fail[method+":"+arg]; ok {
		return err
	}
	if err, ok := e.Fail[method+":*"]; ok {
		return err
	}
	return nil
}

func (e *Engine) Ping(ctx context.Context) error {
	return e.record("Ping", "")
}

func (e *Engine) ListContainers(ctx context.Context, all bool) ([]domain.ContainerRecord, error) {
	if err := e.record("ListContainers", fmt.Sprint(all)); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.ContainerRecord, 0, len(e.containers))
	for _, c := range e.containers {
		if !all && !c.Running() {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (e *Engine) GetContainer(ctx context.Context, name string) (domain.ContainerRecord, error) {
	if err := e.record("GetContainer", name); err != nil {
		return domain.ContainerRecord{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.lookup(name)
	if !ok {
		return domain.ContainerRecord{}, fmt.Errorf("container %s: %w", name, domain.ErrNotFound)
	}
	return *c, nil
}

func (e *Engine) lookup(name string) (*domain.ContainerRecord, bool) {
	if c, ok := e.containers[name]; ok {
		return c, true
	}
	for _, c := range e.containers {
		if strings.HasPrefix(c.ID, name) {
			return c, true
		}
	}
	return nil, false
}

func (e *Engine) ListNetworks(ctx context.Context) ([]domain.NetworkRecord, error) {
	if err := e.record("ListNetworks", ""); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.NetworkRecord, 0, len(e.networks))
	for _, n := range e.networks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (e *Engine) CreateNetwork(ctx context.Context, name string) error {
	if err := e.record("CreateNetwork", name); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.networks[name] = domain.NetworkRecord{ID: "net-" + name, Name: name, Driver: "bridge"}
	return nil
}

func (e *Engine) ImageExists(ctx context.Context, ref string) (bool, error) {
	if err := e.record("ImageExists", ref); err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.images[ref], nil
}

func (e *Engine) PullImage(ctx context.Context, ref string) error {
	if err := e.record("PullImage", ref); err != nil {
		return err
	}
	e.AddImage(ref)
	return nil
}

func (e *Engine) BuildImage(ctx context.Context, contextPath, dockerfile, tag string) error {
	if err := e.record("BuildImage", tag); err != nil {
		return err
	}
	e.AddImage(tag)
	return nil
}

func (e *Engine) CreateAndStart(ctx context.Context, spec domain.ContainerSpec) (domain.ContainerRecord, error) {
	if err := e.record("CreateAndStart", spec.Name); err != nil {
		return domain.ContainerRecord{}, err
	}
	e.mu.Lock()
	e.seq++
	rec := domain.ContainerRecord{
		ID:        fmt.Sprintf("%064d", e.seq),
		Name:      spec.Name,
		Image:     spec.Image,
		Status:    domain.StatusRunning,
		State:     "running",
		Addresses: map[string]string{spec.Network: fmt.Sprintf("172.18.0.%d", e.seq+1)},
	}
	e.containers[spec.Name] = &rec
	e.mu.Unlock()
	return rec, nil
}

func (e *Engine) Start(ctx context.Context, name string) error {
	return e.setStatus("Start", name, domain.StatusRunning, "running")
}

func (e *Engine) Stop(ctx context.Context, name string) error {
	return e.setStatus("Stop", name, domain.StatusStopped, "exited")
}

func (e *Engine) setStatus(method, name string, status domain.ContainerStatus, state string) error {
	if err := e.record(method, name); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.lookup(name)
	if !ok {
		return fmt.Errorf("container %s: %w", name, domain.ErrNotFound)
	}
	c.Status = status
	c.State = state
	return nil
}

func (e *Engine) Remove(ctx context.Context, name string) error {
	if err := e.record("Remove", name); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.lookup(name)
	if !ok {
		return fmt.Errorf("container %s: %w", name, domain.ErrNotFound)
	}
	delete(e.containers, c.Name)
	return nil
}

// ContainerLogs returns a fixed log line for existing containers.
func (e *Engine) ContainerLogs(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := e.record("ContainerLogs", name); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.lookup(name); !ok {
		return nil, fmt.Errorf("container %s: %w", name, domain.ErrNotFound)
	}
	return io.NopCloser(strings.NewReader("log line from " + name + "\n")), nil
}
