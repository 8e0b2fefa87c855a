// Package token implements the capability-token codec: opaque random tickets,
// their persisted hashes, and signed segment-checkout claims.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// ticketBytes is the entropy of a bridge ticket or replay grant token.
const ticketBytes = 32

// NewTicket returns a high-entropy opaque ticket. Only its hash is ever
// persisted; the ticket itself is handed to the caller exactly once.
func NewTicket() (string, error) {
	buf := make([]byte, ticketBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read ticket entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashTicket returns the hex SHA-256 digest persisted in place of a ticket.
func HashTicket(ticket string) string {
	sum := sha256.Sum256([]byte(ticket))
	return hex.EncodeToString(sum[:])
}

// HashClaim hashes an opaque payment claim blob for idempotency bookkeeping.
func HashClaim(claim []byte) string {
	sum := sha256.Sum256(claim)
	return hex.EncodeToString(sum[:])
}
