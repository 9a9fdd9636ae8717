// Package util provides utility functions for the CartRescue application.
package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// RecoveryTokenBytes is the entropy of a recovery token. 16 bytes (128 bits)
// makes guessing or enumerating tokens infeasible.
const RecoveryTokenBytes = 16

// GenerateRecoveryToken generates an unguessable recovery token as a
// lowercase hex string. A failure of the system randomness source is a fatal
// process error, not a per-cart condition, so the error must abort the run.
func GenerateRecoveryToken() (string, error) {
	return GenerateSecureHex(RecoveryTokenBytes)
}

// GenerateSecureHex returns a hex string drawn from crypto/rand covering
// byteLen bytes of entropy. The returned string is 2*byteLen characters.
func GenerateSecureHex(byteLen int) (string, error) {
	if byteLen <= 0 {
		return "", fmt.Errorf("invalid token length: %d", byteLen)
	}
	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("randomness source failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateRandomID generates a random ID with the specified prefix and
// byteLen bytes of entropy, in the format "{prefix}{hex_string}".
func GenerateRandomID(prefix string, byteLen int) (string, error) {
	hexStr, err := GenerateSecureHex(byteLen)
	if err != nil {
		return "", err
	}
	return prefix + hexStr, nil
}
