// Package cache implements the two-tier cache sitting in front of all
// registry fetches: a bounded in-process LRU and a shared Redis tier with
// cross-instance invalidation over pub/sub.
package cache

import (
	"context"
	"strings"
	"time"
)

// Key builds the canonical cache key for a registry operation. Version is
// empty for version-independent operations.
func Key(ecosystem, operation, name, version string) string {
	return strings.Join([]string{ecosystem, operation, name, version}, ":")
}

// Remote is the shared tier plus its notification channel. Implemented by
// the Redis client in production and by in-memory fakes in tests.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a message stream for channel. The stream closes
	// when ctx is cancelled; the returned func unsubscribes.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error)

	Close() error
}
