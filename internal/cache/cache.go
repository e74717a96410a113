package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultExpiration is the default expiration time for cache entries
const DefaultExpiration = 30 * time.Minute

// DefaultCleanupInterval is how often expired items are removed from the cache
const DefaultCleanupInterval = 1 * time.Hour

// Cache is a read-through cache for hot catalog lookups.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, bool)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration)
	Delete(ctx context.Context, key string)
	DeleteByPrefix(ctx context.Context, prefix string)
	Flush(ctx context.Context)
}

// GenerateKey builds a tenant-scoped cache key from parts
func GenerateKey(prefix string, parts ...interface{}) string {
	b := strings.Builder{}
	b.WriteString(prefix)
	for _, part := range parts {
		b.WriteString(":")
		b.WriteString(fmt.Sprintf("%v", part))
	}
	return b.String()
}
