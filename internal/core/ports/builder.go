package ports

import (
	"context"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
)

// ImageBuilder produces architecture-correct images for build-backed services.
type ImageBuilder interface {
	// Architecture returns the host architecture, detected once per process.
	Architecture() (domain.Architecture, error)
	// Tag returns the deterministic image tag for a service.
	Tag(svc domain.ServiceDescriptor) string
	// Build renders the service's Dockerfile for arch and builds it.
	// It returns the built tag.
	Build(ctx context.Context, svc domain.ServiceDescriptor, arch domain.Architecture) (string, error)
}
