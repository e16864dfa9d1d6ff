// Package cache stores per-shard extraction results so that re-runs and retry
// rounds skip shards that were already processed.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// CacheKey derives a cache key from a shard path and a fingerprint of the
// settings that produced the result. Changing either misses the cache.
func CacheKey(path, fingerprint string) string {
	hash := sha256.Sum256([]byte(fingerprint + "\x00" + path))
	return "biosbias-v1-" + hex.EncodeToString(hash[:])
}
