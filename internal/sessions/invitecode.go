package sessions

import (
	"crypto/rand"
	"fmt"
)

// InviteCodeLength is the length of generated invite codes.
const InviteCodeLength = 6

// inviteCodeAlphabet omits characters easy to misread when shared out loud
// or typed from a screen (0/O, 1/I/L).
const inviteCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateInviteCode returns a short human-enterable code. Uniqueness among
// open sessions is enforced by the database; callers retry on collision.
func GenerateInviteCode() (string, error) {
	buf := make([]byte, InviteCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = inviteCodeAlphabet[int(b)%len(inviteCodeAlphabet)]
	}
	return string(buf), nil
}
