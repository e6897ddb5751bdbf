package cache

import "time"

// Cache is a bounded TTL cache. The monitor uses it for pending-transaction
// records; eviction under size pressure is handled by the implementation.
type Cache interface {
	// Get retrieves a value from the cache.
	Get(key string) (interface{}, bool)

	// Set stores a value with a TTL. Returns false if the value was dropped.
	Set(key string, value interface{}, ttl time.Duration) bool

	// Delete removes a value from the cache.
	Delete(key string)

	// Clear removes all values from the cache.
	Clear()

	// Close releases cache resources.
	Close()
}
