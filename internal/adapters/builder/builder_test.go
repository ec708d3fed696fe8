package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
	"github.com/guan4tou2/Lnadlse/internal/core/ports"
	"github.com/guan4tou2/Lnadlse/internal/enginefake"
)

// capturingEngine records the rendered Dockerfile seen at build time.
type capturingEngine struct {
	*enginefake.Engine
	rendered string
	err      error
}

func (c *capturingEngine) BuildImage(ctx context.Context, contextPath, dockerfile, tag string) error {
	b, err := os.ReadFile(filepath.Join(contextPath, dockerfile))
	if err != nil {
		return err
	}
	c.rendered = string(b)
	if c.err != nil {
		return c.err
	}
	return c.Engine.BuildImage(ctx, contextPath, dockerfile, tag)
}

const template = `FROM kalilinux/kali-rolling:{{ARCH}}
RUN echo building for {{ARCH}}
LABEL arch="{{ARCH}}"
`

func writeContext(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte(template), 0o644))
	return dir
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestBuildRendersEveryPlaceholder(t *testing.T) {
	for _, arch := range []domain.Architecture{domain.ArchX86_64, domain.ArchARM64} {
		t.Run(string(arch), func(t *testing.T) {
			dir := writeContext(t, "Kali-noVNC")
			eng := &capturingEngine{Engine: enginefake.New()}
			b := NewBuilderAdapter(eng)

			svc := domain.ServiceDescriptor{Name: "attacker", Build: &domain.BuildSpec{Path: dir, Prefix: "attacker"}}
			tag, err := b.Build(context.Background(), svc, arch)
			require.NoError(t, err)

			assert.Equal(t, "attacker-kali-novnc", tag)
			assert.NotContains(t, eng.rendered, domain.ArchPlaceholder)
			assert.Equal(t, 3, strings.Count(eng.rendered, string(arch)))
			assert.Equal(t, []string{"Dockerfile"}, dirEntries(t, dir))

			original, err := os.ReadFile(filepath.Join(dir, "Dockerfile"))
			require.NoError(t, err)
			assert.Equal(t, template, string(original))
		})
	}
}

func TestBuildFailureRemovesScratchFile(t *testing.T) {
	dir := writeContext(t, "nginx")
	buildErr := &domain.BuildError{Tag: "target-nginx", Stderr: "no space left", ExitCode: 1}
	eng := &capturingEngine{Engine: enginefake.New(), err: buildErr}
	b := NewBuilderAdapter(eng)

	svc := domain.ServiceDescriptor{Name: "nginx", Build: &domain.BuildSpec{Path: dir, Prefix: "target"}}
	_, err := b.Build(context.Background(), svc, domain.ArchARM64)

	var be *domain.BuildError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 1, be.ExitCode)
	assert.Equal(t, []string{"Dockerfile"}, dirEntries(t, dir))
}

func TestBuildMissingTemplateLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	eng := enginefake.New()
	b := NewBuilderAdapter(eng)

	svc := domain.ServiceDescriptor{Name: "httpd", Build: &domain.BuildSpec{Path: dir, Prefix: "target"}}
	_, err := b.Build(context.Background(), svc, domain.ArchX86_64)

	require.Error(t, err)
	assert.Empty(t, dirEntries(t, dir))
	assert.Empty(t, eng.CallsTo("BuildImage"))
}

func TestBuildRejectsUnknownArchitecture(t *testing.T) {
	dir := writeContext(t, "nginx")
	b := NewBuilderAdapter(enginefake.New())

	svc := domain.ServiceDescriptor{Name: "nginx", Build: &domain.BuildSpec{Path: dir, Prefix: "target"}}
	_, err := b.Build(context.Background(), svc, domain.Architecture("riscv64"))

	var ua *domain.UnsupportedArchitectureError
	assert.True(t, errors.As(err, &ua))
}

func TestArchitectureDetectedOnce(t *testing.T) {
	b := NewBuilderAdapter(enginefake.New(), WithMachine("aarch64"))
	arch, err := b.Architecture()
	require.NoError(t, err)
	assert.Equal(t, domain.ArchARM64, arch)

	b.machine = "x86_64"
	arch, err = b.Architecture()
	require.NoError(t, err)
	assert.Equal(t, domain.ArchARM64, arch)
}

type hostEngine struct {
	*enginefake.Engine
	machine string
	err     error
}

func (h *hostEngine) Machine(ctx context.Context) (string, error) {
	return h.machine, h.err
}

func TestArchitectureFromEngineHost(t *testing.T) {
	b := NewBuilderAdapter(&hostEngine{Engine: enginefake.New(), machine: "aarch64"})
	arch, err := b.Architecture()
	require.NoError(t, err)
	assert.Equal(t, domain.ArchARM64, arch)
}

func TestArchitectureFallsBackToRuntime(t *testing.T) {
	want, wantErr := domain.ParseArchitecture(runtime.GOARCH)

	for _, eng := range []ports.EngineGateway{
		enginefake.New(),
		&hostEngine{Engine: enginefake.New(), err: domain.ErrEngineUnreachable},
	} {
		arch, err := NewBuilderAdapter(eng).Architecture()
		assert.Equal(t, want, arch)
		assert.Equal(t, wantErr, err)
	}
}

func TestArchitectureUnsupported(t *testing.T) {
	b := NewBuilderAdapter(enginefake.New(), WithMachine("s390x"))
	_, err := b.Architecture()
	var ua *domain.UnsupportedArchitectureError
	require.True(t, errors.As(err, &ua))
	assert.Equal(t, "s390x", ua.Arch)
}

func TestImageTag(t *testing.T) {
	tests := []struct {
		prefix, path, want string
	}{
		{"attacker", "./simulation/Attacker/Kali-noVNC", "attacker-kali-novnc"},
		{"target", "simulation/Target/nginx/", "target-nginx"},
		{"Target", "HTTPD", "target-httpd"},
		{"", "Web", "web"},
	}
	for _, tt := range tests {
		got := ImageTag(tt.prefix, tt.path)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, ImageTag(tt.prefix, tt.path))
		assert.Equal(t, strings.ToLower(got), got)
	}
}

func TestFindDockerBuilds(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"nginx", "httpd", ".git/hooks", "docs"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}
	for _, d := range []string{"nginx", "httpd", ".git/hooks"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, d, "Dockerfile"), []byte("FROM scratch\n"), 0o644))
	}

	dirs, err := FindDockerBuilds(root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "httpd"), filepath.Join(root, "nginx")}, dirs)

	none, err := FindDockerBuilds(filepath.Join(root, "missing"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBuildFromGitRepository(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nginx"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nginx", "Dockerfile"), []byte(template), 0o644))

	repo, err := git.PlainInit(src, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("nginx/Dockerfile")
	require.NoError(t, err)
	_, err = wt.Commit("add nginx", &git.CommitOptions{
		Author: &object.Signature{Name: "range", Email: "range@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	eng := &capturingEngine{Engine: enginefake.New()}
	b := NewBuilderAdapter(eng)
	svc := domain.ServiceDescriptor{Name: "nginx", Build: &domain.BuildSpec{Path: "nginx", Prefix: "target", Repo: src}}
	tag, err := b.Build(context.Background(), svc, domain.ArchARM64)
	require.NoError(t, err)

	assert.Equal(t, "target-nginx", tag)
	assert.Equal(t, 3, strings.Count(eng.rendered, string(domain.ArchARM64)))
	assert.Equal(t, []string{"target-nginx"}, eng.CallsTo("BuildImage"))
	assert.Empty(t, dirEntries(t, tmp))
}

func TestBuildFromMissingRepository(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	eng := enginefake.New()
	svc := domain.ServiceDescriptor{Name: "nginx", Build: &domain.BuildSpec{Path: "nginx", Prefix: "target", Repo: filepath.Join(tmp, "nope")}}
	_, err := NewBuilderAdapter(eng).Build(context.Background(), svc, domain.ArchX86_64)

	require.Error(t, err)
	assert.Empty(t, eng.CallsTo("BuildImage"))
	assert.Empty(t, dirEntries(t, tmp))
}
