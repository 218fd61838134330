/*
invite.go - Invite code generation

PURPOSE:
  Produces the short code members type to join a house. Codes use an
  upper-case alphabet without 0/O and 1/I, and lookups ignore case.

SEE ALSO:
  - household.go: CreateHouse retries on a code collision
*/
package household

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	InviteCodeLength = 8

	// 32 symbols, so a random byte maps onto it without bias.
	inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// NewInviteCode returns a random invite code.
func NewInviteCode() (string, error) {
	buf := make([]byte, InviteCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
	}
	return string(buf), nil
}

// NormalizeInviteCode upper-cases and strips whitespace so codes typed by
// hand still match.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.Join(strings.Fields(code), ""))
}
