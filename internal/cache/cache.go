package cache

import (
	"fmt"
	"time"
)

// Cache is the memoization interface used for per-object vectorize results
// and concept commonness lookups. Values are arbitrary; callers own the
// type assertion.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
	Delete(key string)
	Clear()
}

// DocKey builds a cache key for a clusterable's derived data, scoped by a
// kind tag so text and concept vectors of the same object don't collide.
// The update timestamp is part of the key: a changed object never reuses a
// stale entry.
func DocKey(kind, id string, updatedAt time.Time) string {
	return fmt.Sprintf("%s:%s:%d", kind, id, updatedAt.UnixNano())
}
