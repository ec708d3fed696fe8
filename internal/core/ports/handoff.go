package ports

import (
	"context"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
)

// ConfigHandoff writes a discovered address into a downstream config file.
type ConfigHandoff interface {
	Apply(ctx context.Context, spec domain.ConfigHandoff, address string) error
}
