package formulas

import "time"

// FormulaCache holds the loaded coefficient table between calculations
type FormulaCache interface {
	// Get retrieves the cached rows, returns nil on a miss or after expiry
	Get() []Formula

	// Set stores rows in the cache
	Set(formulas []Formula)

	// Invalidate clears the cache, forcing a reload on next use
	Invalidate()

	// IsValid returns true if the cache holds rows
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for the cached table
	// Set to 0 for no expiration (the table lives for the process lifetime)
	TTL time.Duration
}

// DefaultCacheConfig returns the process-lifetime configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL: 0,
	}
}
