// Package cache provides the session cache used to remember active
// conversations. Entries are pointers only; callers revalidate them.
package cache

import (
	"context"
	"time"
)

// Cache is a string key/value store with per-entry expiry.
type Cache interface {
	// Get returns the value and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// SetWithExpiry stores a value that expires after ttl.
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes a key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error
}

// ConversationKey is the cache key for a tenant's counterparty.
func ConversationKey(tenantID, counterparty string) string {
	return "conversation:" + tenantID + ":" + counterparty
}
