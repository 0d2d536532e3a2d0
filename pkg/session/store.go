package session

import (
	"context"
	"time"
)

// DefaultTTL is how long session records live when no TTL is configured.
const DefaultTTL = 60 * time.Minute

// Store is the session cache capability injected into the protocol
// components. Implementations must be safe for concurrent use; per-key
// set/get/delete are atomic and last-writer-wins.
type Store interface {
	// Set stores value under key, overwriting any existing entry. The entry
	// expires after the store's TTL unless forever is true or the store is
	// configured with a zero TTL, in which case it never expires. A write
	// failure is fatal to the calling operation and is propagated.
	Set(ctx context.Context, key, value string, forever bool) error

	// Get returns the value stored under key, or def when the key is absent
	// or expired. A miss is not an error; only transport failures are.
	Get(ctx context.Context, key, def string) (string, error)

	// Forget deletes the entry under key. Deleting an absent key is a no-op.
	Forget(ctx context.Context, key string) error
}
