package ports

import (
	"context"
	"io"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
)

// EngineGateway is the complete vocabulary the orchestrator uses to talk to
// the container engine. Implementations map engine errors onto
// domain.ErrNotFound and domain.ErrEngineUnreachable.
type EngineGateway interface {
	Ping(ctx context.Context) error
	ListContainers(ctx context.Context, all bool) ([]domain.ContainerRecord, error)
	GetContainer(ctx context.Context, name string) (domain.ContainerRecord, error)
	ListNetworks(ctx context.Context) ([]domain.NetworkRecord, error)
	CreateNetwork(ctx context.Context, name string) error
	ImageExists(ctx context.Context, ref string) (bool, error)
	PullImage(ctx context.Context, ref string) error
	BuildImage(ctx context.Context, contextPath, dockerfile, tag string) error
	CreateAndStart(ctx context.Context, spec domain.ContainerSpec) (domain.ContainerRecord, error)
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
}

// LogReader streams a container's logs.
type LogReader interface {
	ContainerLogs(ctx context.Context, name string) (io.ReadCloser, error)
}
