package domain

import (
	"testing"

	"chat-relay/errors"

	"github.com/stretchr/testify/require"
)

func TestParseRoomKey_Valid(t *testing.T) {
	req := require.New(t)

	key, err := ParseRoomKey("alice_bob")

	req.NoError(err)
	req.Equal("alice_bob", key.String())

	a, b := key.Participants()
	req.Equal("alice", a)
	req.Equal("bob", b)
}

func TestParseRoomKey_RejectsBadShapes(t *testing.T) {
	req := require.New(t)

	for _, raw := range []string{
		"",
		"alice",
		"alice_bob_carol",
		"_bob",
		"alice_",
		"_",
		"undefined_bob",
		"alice_undefined",
	} {
		_, err := ParseRoomKey(raw)
		req.ErrorIs(err, errors.ErrMalformedRoomKey, "raw=%q", raw)
	}
}

func TestRoomKey_Other(t *testing.T) {
	req := require.New(t)
	key, err := ParseRoomKey("alice_bob")
	req.NoError(err)

	req.Equal("bob", key.Other("alice"))
	req.Equal("alice", key.Other("bob"))
	// A sender outside the room resolves to the first token,
	// same rule the clients apply.
	req.Equal("alice", key.Other("mallory"))
}

func TestRoomKey_Contains(t *testing.T) {
	req := require.New(t)
	key, err := ParseRoomKey("alice_bob")
	req.NoError(err)

	req.True(key.Contains("alice"))
	req.True(key.Contains("bob"))
	req.False(key.Contains("carol"))
}
