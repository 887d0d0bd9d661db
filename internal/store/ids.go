package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/google/uuid"
)

// NewID returns a fresh random identifier for a domain row.
func NewID() string {
	return uuid.NewString()
}

// DeterministicID computes a stable, content-addressed identifier from
// input, used wherever two devices must independently derive the same id
// for the same logical row (composite-key rows, idempotency keys).
// Grounded on the teacher's sha256-truncated-hex scheme.
func DeterministicID(prefix, input string) string {
	h := sha256.Sum256([]byte(input))
	return prefix + hex.EncodeToString(h[:])[:24]
}

// IdempotencyKey derives the idempotency key for an outbox row per spec
// §4.4.1: device_id + outbox row id, any stable injective function suffices.
func IdempotencyKey(deviceID string, outboxID int64) string {
	return DeterministicID("ik_", deviceID+"|"+strconv.FormatInt(outboxID, 10))
}
