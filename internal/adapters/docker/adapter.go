package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/rs/zerolog/log"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
)

const stopTimeout = 10 * time.Second

// Adapter implements ports.EngineGateway and ports.LogReader using the Docker SDK.
type Adapter struct {
	cli *client.Client
}

// NewAdapter creates a Docker adapter. An empty host falls back to DOCKER_HOST
// and then to the first engine socket found on this machine.
func NewAdapter(host string) (*Adapter, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if h := resolveHost(host); h != "" {
		opts = append(opts, client.WithHost(h))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli}, nil
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	return a.cli.Close()
}

// Ping checks that the engine answers.
func (a *Adapter) Ping(ctx context.Context) error {
	if _, err := a.cli.Ping(ctx); err != nil {
		return wrap(err, "ping engine")
	}
	return nil
}

// Machine reports the engine host's CPU architecture (x86_64, aarch64).
func (a *Adapter) Machine(ctx context.Context) (string, error) {
	info, err := a.cli.Info(ctx)
	if err != nil {
		return "", wrap(err, "read engine info")
	}
	return info.Architecture, nil
}

// ListContainers returns containers with their per-network addresses.
func (a *Adapter) ListContainers(ctx context.Context, all bool) ([]domain.ContainerRecord, error) {
	containers, err := a.cli.ContainerList(ctx, types.ContainerListOptions{All: all})
	if err != nil {
		return nil, wrap(err, "list containers")
	}
	result := make([]domain.ContainerRecord, 0, len(containers))
	for _, c := range containers {
		result = append(result, fromSummary(c))
	}
	return result, nil
}

// GetContainer inspects a container by name or id.
func (a *Adapter) GetContainer(ctx context.Context, name string) (domain.ContainerRecord, error) {
	info, err := a.cli.ContainerInspect(ctx, name)
	if err != nil {
		return domain.ContainerRecord{}, wrap(err, "inspect container "+name)
	}
	return fromInspect(info), nil
}

// ListNetworks returns every engine network.
func (a *Adapter) ListNetworks(ctx context.Context) ([]domain.NetworkRecord, error) {
	networks, err := a.cli.NetworkList(ctx, types.NetworkListOptions{})
	if err != nil {
		return nil, wrap(err, "list networks")
	}
	result := make([]domain.NetworkRecord, 0, len(networks))
	for _, n := range networks {
		result = append(result, domain.NetworkRecord{ID: n.ID, Name: n.Name, Driver: n.Driver})
	}
	return result, nil
}

// CreateNetwork creates a bridge network.
func (a *Adapter) CreateNetwork(ctx context.Context, name string) error {
	if _, err := a.cli.NetworkCreate(ctx, name, types.NetworkCreate{Driver: "bridge"}); err != nil {
		return wrap(err, "create network "+name)
	}
	return nil
}

// ImageExists reports whether ref is present locally.
func (a *Adapter) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, _, err := a.cli.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return true, nil
	}
	if errdefs.IsNotFound(err) {
		return false, nil
	}
	return false, wrap(err, "inspect image "+ref)
}

// BuildImage tars contextPath and builds it with dockerfile (relative to the
// context). A failing build step is returned as *domain.BuildError.
func (a *Adapter) BuildImage(ctx context.Context, contextPath, dockerfile, tag string) error {
	tar, err := archive.TarWithOptions(contextPath, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("failed to create build context: %w", err)
	}
	defer tar.Close()

	resp, err := a.cli.ImageBuild(ctx, tar, types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: dockerfile,
		Remove:     true,
	})
	if err != nil {
		return wrap(err, "build image "+tag)
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, &out, 0, false, nil); err != nil {
		var jerr *jsonmessage.JSONError
		if errors.As(err, &jerr) {
			code := jerr.Code
			if code == 0 {
				code = 1
			}
			return &domain.BuildError{Tag: tag, Stderr: tail(out.String(), 2048) + jerr.Message, ExitCode: code}
		}
		return fmt.Errorf("failed to read build output for %s: %w", tag, err)
	}
	log.Debug().Str("tag", tag).Msg("image built")
	return nil
}

// CreateAndStart pulls the image when missing, then creates and starts the
// container attached to spec.Network.
func (a *Adapter) CreateAndStart(ctx context.Context, spec domain.ContainerSpec) (domain.ContainerRecord, error) {
	if err := a.PullImage(ctx, spec.Image); err != nil {
		return domain.ContainerRecord{}, err
	}

	exposed, bindings, err := portMaps(spec.Ports)
	if err != nil {
		return domain.ContainerRecord{}, err
	}

	cfg := &container.Config{
		Image:        spec.Image,
		Hostname:     spec.Name,
		Env:          envList(spec.Env),
		Cmd:          strslice.StrSlice(spec.Command),
		ExposedPorts: exposed,
		Labels:       spec.Labels,
	}
	hostCfg := &container.HostConfig{
		PortBindings:  bindings,
		Binds:         spec.Volumes,
		Privileged:    spec.Privileged,
		CapAdd:        strslice.StrSlice(spec.CapAdd),
		RestartPolicy: container.RestartPolicy{Name: "unless-stopped"},
	}
	var netCfg *network.NetworkingConfig
	if spec.Network != "" {
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {Aliases: spec.Aliases},
			},
		}
	}

	resp, err := a.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
	if err != nil {
		return domain.ContainerRecord{}, wrap(err, "create container "+spec.Name)
	}
	for _, w := range resp.Warnings {
		log.Warn().Str("container", spec.Name).Msg(w)
	}

	if err := a.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return domain.ContainerRecord{}, wrap(err, "start container "+spec.Name)
	}
	return a.GetContainer(ctx, resp.ID)
}

// PullImage pulls ref unless it is already present locally.
func (a *Adapter) PullImage(ctx context.Context, ref string) error {
	ok, err := a.ImageExists(ctx, ref)
	if err != nil || ok {
		return err
	}
	log.Info().Str("image", ref).Msg("pulling image")
	reader, err := a.cli.ImagePull(ctx, ref, types.ImagePullOptions{})
	if err != nil {
		return wrap(err, "pull image "+ref)
	}
	defer reader.Close()
	if err := jsonmessage.DisplayJSONMessagesStream(reader, io.Discard, 0, false, nil); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return nil
}

// Start resumes an existing container.
func (a *Adapter) Start(ctx context.Context, name string) error {
	if err := a.cli.ContainerStart(ctx, name, types.ContainerStartOptions{}); err != nil {
		return wrap(err, "start container "+name)
	}
	return nil
}

// Stop stops a running container.
func (a *Adapter) Stop(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, stopTimeout+5*time.Second)
	defer cancel()
	timeout := int(stopTimeout.Seconds())
	if err := a.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil {
		return wrap(err, "stop container "+name)
	}
	return nil
}

// Remove force-removes a container together with its anonymous volumes.
func (a *Adapter) Remove(ctx context.Context, name string) error {
	err := a.cli.ContainerRemove(ctx, name, types.ContainerRemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil {
		return wrap(err, "remove container "+name)
	}
	return nil
}

// ContainerLogs returns a stream of container logs
func (a *Adapter) ContainerLogs(ctx context.Context, name string) (io.ReadCloser, error) {
	options := types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     false,
		Timestamps: true,
		Tail:       "500",
	}
	rc, err := a.cli.ContainerLogs(ctx, name, options)
	if err != nil {
		return nil, wrap(err, "logs for "+name)
	}
	return rc, nil
}

// wrap maps SDK errors onto the domain taxonomy so callers never branch on
// engine-specific types.
func wrap(err error, op string) error {
	switch {
	case errdefs.IsNotFound(err):
		return fmt.Errorf("%s: %w", op, errors.Join(domain.ErrNotFound, err))
	case client.IsErrConnectionFailed(err):
		return fmt.Errorf("%s: %w", op, errors.Join(domain.ErrEngineUnreachable, err))
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
