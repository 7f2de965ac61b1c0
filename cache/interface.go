package cache

import (
	"context"
	"time"
)

// Store defines the interface for cache backends. Values are stored as
// JSON; Get decodes a hit into dest and reports whether there was one.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration)
	Delete(ctx context.Context, key string)
}
