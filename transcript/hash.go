package transcript

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeHash fingerprints an encoded transcript as lowercase hex SHA-256.
// Encoding is deterministic, so two runs with equal fields share a hash.
func ComputeHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
