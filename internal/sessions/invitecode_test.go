package sessions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInviteCode(t *testing.T) {
	code, err := GenerateInviteCode()
	require.NoError(t, err)
	assert.Len(t, code, InviteCodeLength)
	for _, r := range code {
		assert.True(t, strings.ContainsRune(inviteCodeAlphabet, r), "unexpected character %q", r)
	}
}

func TestGenerateInviteCodeExcludesAmbiguousCharacters(t *testing.T) {
	for _, r := range "0O1IL" {
		assert.False(t, strings.ContainsRune(inviteCodeAlphabet, r), "%q should not be in the alphabet", r)
	}
}

func TestGenerateInviteCodeVaries(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := GenerateInviteCode()
		require.NoError(t, err)
		seen[code] = true
	}
	// With 31^6 combinations, 200 draws colliding down to a handful would
	// mean the generator is broken.
	assert.Greater(t, len(seen), 190)
}
