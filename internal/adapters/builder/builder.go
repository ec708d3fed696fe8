package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
	"github.com/guan4tou2/Lnadlse/internal/core/ports"
)

// Adapter implements ports.ImageBuilder. Dockerfile templates are rendered
// into a scratch copy next to the template; the template itself is never
// modified.
type Adapter struct {
	engine  ports.EngineGateway
	machine string

	archOnce sync.Once
	arch     domain.Architecture
	archErr  error
}

// machineReporter is implemented by engines that know their host's
// architecture. runtime.GOARCH is only the fallback.
type machineReporter interface {
	Machine(ctx context.Context) (string, error)
}

// Option configures the builder.
type Option func(*Adapter)

// WithMachine overrides the detected host machine name.
func WithMachine(machine string) Option {
	return func(a *Adapter) { a.machine = machine }
}

// NewBuilderAdapter creates a builder that builds through engine.
func NewBuilderAdapter(engine ports.EngineGateway, opts ...Option) *Adapter {
	a := &Adapter{engine: engine}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Architecture detects the host architecture once per process.
func (a *Adapter) Architecture() (domain.Architecture, error) {
	a.archOnce.Do(func() {
		if a.machine == "" {
			a.machine = a.detectMachine()
		}
		a.arch, a.archErr = domain.ParseArchitecture(a.machine)
	})
	return a.arch, a.archErr
}

func (a *Adapter) detectMachine() string {
	if r, ok := a.engine.(machineReporter); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		machine, err := r.Machine(ctx)
		if err == nil && machine != "" {
			return machine
		}
		log.Warn().Err(err).Str("fallback", runtime.GOARCH).Msg("engine did not report its architecture")
	}
	return runtime.GOARCH
}

// Tag returns the image tag for a build-backed service.
func (a *Adapter) Tag(svc domain.ServiceDescriptor) string {
	if svc.Build == nil {
		return ""
	}
	return ImageTag(svc.Build.Prefix, svc.Build.Path)
}

// Build renders the Dockerfile template for arch into a scratch file and
// builds the image. The scratch file is removed on every return path.
func (a *Adapter) Build(ctx context.Context, svc domain.ServiceDescriptor, arch domain.Architecture) (string, error) {
	if svc.Build == nil {
		return "", fmt.Errorf("service %s has no build definition", svc.Name)
	}
	if _, err := domain.ParseArchitecture(string(arch)); err != nil {
		return "", err
	}

	contextDir := svc.Build.Path
	if svc.Build.Repo != "" {
		dir, cleanup, err := cloneContext(ctx, svc.Build.Repo, svc.Build.Ref)
		if err != nil {
			return "", err
		}
		defer cleanup()
		contextDir = filepath.Join(dir, svc.Build.Path)
	}

	tag := a.Tag(svc)
	dockerfile := svc.Build.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	scratch, err := renderScratch(filepath.Join(contextDir, dockerfile), contextDir, arch)
	if err != nil {
		return "", err
	}
	defer func() {
		if rmErr := os.Remove(scratch); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn().Err(rmErr).Str("file", scratch).Msg("failed to remove scratch Dockerfile")
		}
	}()

	log.Info().Str("tag", tag).Str("arch", string(arch)).Str("context", contextDir).Msg("building image")
	if err := a.engine.BuildImage(ctx, contextDir, filepath.Base(scratch), tag); err != nil {
		return "", err
	}
	return tag, nil
}

// renderScratch writes the rendered template to a new file inside dir and
// returns its path. On error no file is left behind.
func renderScratch(template, dir string, arch domain.Architecture) (path string, err error) {
	content, err := os.ReadFile(template)
	if err != nil {
		return "", fmt.Errorf("failed to read Dockerfile template: %w", err)
	}

	f, err := os.CreateTemp(dir, "Dockerfile.*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch Dockerfile: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()

	if _, err = f.WriteString(RenderDockerfile(string(content), arch)); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write scratch Dockerfile: %w", err)
	}
	if err = f.Close(); err != nil {
		return "", fmt.Errorf("failed to write scratch Dockerfile: %w", err)
	}
	return f.Name(), nil
}

// ImageTag is lower(prefix + "-" + basename(buildPath)).
func ImageTag(prefix, buildPath string) string {
	base := filepath.Base(filepath.Clean(buildPath))
	if prefix == "" {
		return strings.ToLower(base)
	}
	return strings.ToLower(prefix + "-" + base)
}

// RenderDockerfile replaces every architecture placeholder with arch.
func RenderDockerfile(content string, arch domain.Architecture) string {
	return strings.ReplaceAll(content, domain.ArchPlaceholder, string(arch))
}
