// Package sha256 provides SHA-256 digests used for cache keys and content hashes.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hex returns the lowercase hex SHA-256 digest of data.
func Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HexString is Hex for strings.
func HexString(s string) string {
	return Hex([]byte(s))
}
