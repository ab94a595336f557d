package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// KeyIdempotencyPrefix namespaces stored idempotency records.
const KeyIdempotencyPrefix = "idem_"

// IdempotencyRecord is the stored outcome of a write performed under an
// Idempotency-Key. A retry with the same key replays Result instead of
// repeating the write.
type IdempotencyRecord struct {
	// Result is the handler-defined outcome, e.g. the cart line hash.
	Result string `json:"result"`
	// Status is the HTTP status of the original response.
	Status    int       `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the record can no longer be replayed at now.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// IdempotencyKey derives the storage key for (scope, key). The client key is
// hashed so arbitrary header values never end up in key space.
func IdempotencyKey(scope, key string) string {
	sum := sha256.Sum256([]byte(scope + "\n" + key))
	return KeyIdempotencyPrefix + hex.EncodeToString(sum[:])
}
