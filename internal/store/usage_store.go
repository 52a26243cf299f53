package store

import (
	"context"

	"github.com/pixelgate/pixelgate/internal/domain"
)

// UsageStore records one accounting row per derivative the prewarm worker
// produces.
type UsageStore interface {
	CreateUsageLog(ctx context.Context, usage domain.UsageLog) error
}
