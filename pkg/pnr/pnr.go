// Package pnr generates passenger name record codes for bookings.
package pnr

import (
	"crypto/rand"
	"fmt"
)

// Ambiguous characters (0/O, 1/I) are excluded so codes survive being
// read over the phone.
const alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const codeLength = 8

// Generate returns a new PNR such as "YT-7GQ2M4KX". Uniqueness is
// enforced by the bookings table; on a collision the caller generates
// again.
func Generate() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate pnr: %w", err)
	}
	code := make([]byte, codeLength)
	for i, b := range buf {
		code[i] = alphabet[int(b)%len(alphabet)]
	}
	return "YT-" + string(code), nil
}
