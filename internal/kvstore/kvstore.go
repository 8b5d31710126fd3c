package kvstore

import (
	"context"
	"time"
)

// Store is the key-value surface the coordination core runs on. It mirrors
// the small slice of Redis commands the session and subscriber layers need
// (GET/SET/SETEX/TTL plus an unordered string set), so a managed
// Redis-compatible backend can slot in without touching callers.
type Store interface {
	// Get returns the value for key. The second result is false when the key
	// is missing or has expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes key without a time-to-live, replacing any existing TTL.
	Set(ctx context.Context, key, value string) error

	// SetEx writes key with the given time-to-live.
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error

	// TTL reports the remaining time-to-live for key. The second result is
	// false when the key is missing or persists without a TTL.
	TTL(ctx context.Context, key string) (time.Duration, bool, error)

	// Del removes key. Removing a missing key is not an error.
	Del(ctx context.Context, key string) error

	// SAdd adds member to the set stored at key. Idempotent.
	SAdd(ctx context.Context, key, member string) error

	// SRem removes member from the set stored at key. Idempotent.
	SRem(ctx context.Context, key, member string) error

	// SMembers returns all members of the set stored at key, in no particular
	// order. A missing set yields an empty slice.
	SMembers(ctx context.Context, key string) ([]string, error)
}
