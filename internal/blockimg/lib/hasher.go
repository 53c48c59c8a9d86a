// Package lib contains the core, reusable services for the blockimg application.
package lib

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrHashMismatch is returned when content does not hash to the expected value.
var ErrHashMismatch = errors.New("hash mismatch")

// GetHash returns the lowercase hex SHA-1 of content. Transfer lists identify
// target blocks, source blocks and stashes by this digest.
func GetHash(content []byte) string {
	sum := sha1.Sum(content)
	return hex.EncodeToString(sum[:])
}

// VerifyHash checks content against a hex SHA-1 digest.
func VerifyHash(content []byte, expected string) error {
	if got := GetHash(content); got != expected {
		return fmt.Errorf("%w: expected %s, read %s", ErrHashMismatch, expected, got)
	}
	return nil
}
