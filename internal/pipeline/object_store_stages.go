package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/pixelgate/pixelgate/internal/storage"
)

type ObjectStoreFetcher struct {
	Storage *storage.Client
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, key string) ([]byte, string, error) {
	if f.Storage == nil {
		return nil, "", errors.New("storage client is required")
	}
	return f.Storage.ReadObject(ctx, key)
}

// ObjectStorePublisher writes derivatives to the cache bucket with the
// cache-lifetime directive, a region provenance tag, and metadata recording
// the source key and the exact operations string used.
type ObjectStorePublisher struct {
	Storage         *storage.Client
	CacheTTLSeconds int
	Region          string
}

func (p ObjectStorePublisher) Publish(ctx context.Context, derivative Derivative) error {
	if p.Storage == nil {
		return errors.New("storage client is required")
	}

	return p.Storage.WriteObject(
		ctx,
		derivative.CacheKey,
		derivative.Bytes,
		derivative.ContentType,
		fmt.Sprintf("max-age=%d", p.CacheTTLSeconds),
		map[string]string{"transformedIn": p.Region},
		map[string]string{
			"original-image-key": derivative.SourceKey,
			"transformations":    derivative.Operations,
			"transformedin":      p.Region,
		},
	)
}
