// Package sha256 provides SHA-256 fingerprints.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fieldSeparator keeps ("ab", "c") and ("a", "bc") from colliding.
const fieldSeparator = "\x00"

// Fingerprint returns the hex digest of the fields joined by a NUL separator.
func Fingerprint(fields ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(fields, fieldSeparator)))
	return hex.EncodeToString(sum[:])
}
