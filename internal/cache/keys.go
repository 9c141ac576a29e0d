package cache

import "fmt"

// ResolutionKey caches one SKU's resolution result.
func ResolutionKey(sku string) string {
	return fmt.Sprintf("spsync:resolve:%s", sku)
}

// RunLockKey is the single-writer lock serializing sync runs.
func RunLockKey() string {
	return "spsync:lock:run"
}

// RateLimitKey counts requests per API key prefix.
func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
