package repository

import "time"

// CacheRepository is a small key/value facade over the cache store. It backs
// the resend-cooldown throttle; failures here must never block the auth flow.
type CacheRepository interface {
	// SetNX sets the key only if it does not exist and returns whether it
	// was set.
	SetNX(key string, value interface{}, expiration time.Duration) (bool, error)

	// TTL returns the remaining lifetime of the key, or a non-positive
	// duration when the key does not exist.
	TTL(key string) (time.Duration, error)

	Delete(key string) error
}
