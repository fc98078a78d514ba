package validation

import (
	"strings"
	"testing"

	"tacticsrpg/pkg/game"
	"tacticsrpg/pkg/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCreateSession(t *testing.T) {
	v := New(DefaultLimits())

	tests := []struct {
		name          string
		cfg           protocol.SessionConfigWire
		expectError   bool
		errorContains string
	}{
		{name: "valid", cfg: protocol.SessionConfigWire{MaxPlayers: 4, TurnDeadlineSecond: 60, Difficulty: "normal"}},
		{name: "too few players", cfg: protocol.SessionConfigWire{MaxPlayers: 1}, expectError: true, errorContains: "max_players"},
		{name: "too many players", cfg: protocol.SessionConfigWire{MaxPlayers: 99}, expectError: true, errorContains: "max_players"},
		{name: "turn deadline too short", cfg: protocol.SessionConfigWire{MaxPlayers: 4, TurnDeadlineSecond: 1}, expectError: true, errorContains: "turn_deadline_seconds"},
		{name: "bad difficulty", cfg: protocol.SessionConfigWire{MaxPlayers: 4, Difficulty: "Very Hard!"}, expectError: true, errorContains: "difficulty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateCreateSession(protocol.CreateSessionPayload{Config: tt.cfg})
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateInviteCode(t *testing.T) {
	assert.NoError(t, ValidateInviteCode("AB12CD"))
	assert.Error(t, ValidateInviteCode("ab12cd"))
	assert.Error(t, ValidateInviteCode("AB12"))
	assert.Error(t, ValidateInviteCode(""))
}

func TestValidateJoinSession(t *testing.T) {
	v := New(DefaultLimits())

	require.NoError(t, v.ValidateJoinSession(protocol.JoinSessionPayload{InviteCode: "AB12CD", CharacterID: "char-1"}))

	err := v.ValidateJoinSession(protocol.JoinSessionPayload{InviteCode: "AB12CD"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "character_id")
}

func TestValidateIntent(t *testing.T) {
	v := New(DefaultLimits())

	t.Run("end_turn needs only a unit id", func(t *testing.T) {
		err := v.ValidateIntent(protocol.IntentPayload{Action: protocol.ActionWire{Kind: "end_turn", UnitID: "u1"}})
		assert.NoError(t, err)
	})

	t.Run("move requires a target", func(t *testing.T) {
		err := v.ValidateIntent(protocol.IntentPayload{Action: protocol.ActionWire{Kind: "move", UnitID: "u1"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "target position")

		pos := game.Position{X: 1, Y: 2}
		err = v.ValidateIntent(protocol.IntentPayload{Action: protocol.ActionWire{Kind: "move", UnitID: "u1", Target: &pos}})
		assert.NoError(t, err)
	})

	t.Run("attack requires a target id", func(t *testing.T) {
		err := v.ValidateIntent(protocol.IntentPayload{Action: protocol.ActionWire{Kind: "attack", UnitID: "u1"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "target_id")
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		err := v.ValidateIntent(protocol.IntentPayload{Action: protocol.ActionWire{Kind: "teleport", UnitID: "u1"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown action kind")
	})

	t.Run("missing unit id rejected", func(t *testing.T) {
		err := v.ValidateIntent(protocol.IntentPayload{Action: protocol.ActionWire{Kind: "end_turn"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unit_id")
	})
}

func TestValidateDMCommand(t *testing.T) {
	v := New(DefaultLimits())

	assert.NoError(t, v.ValidateDMCommand(protocol.DMCommandPayload{Command: "start_game"}))
	assert.NoError(t, v.ValidateDMCommand(protocol.DMCommandPayload{Command: "pause_game"}))

	err := v.ValidateDMCommand(protocol.DMCommandPayload{Command: "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dm command")

	err = v.ValidateDMCommand(protocol.DMCommandPayload{Command: "grant_xp", Args: map[string]interface{}{"amount": 10.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "character_id")

	err = v.ValidateDMCommand(protocol.DMCommandPayload{
		Command: "grant_xp",
		Args:    map[string]interface{}{"character_id": "c1", "amount": 10.0},
	})
	assert.NoError(t, err)
}

func TestValidateChat(t *testing.T) {
	v := New(DefaultLimits())

	text, err := v.ValidateChat(protocol.ChatPayload{Kind: "broadcast", Text: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)

	_, err = v.ValidateChat(protocol.ChatPayload{Kind: "whisper", Text: "psst"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recipient")

	text, err = v.ValidateChat(protocol.ChatPayload{Kind: "whisper", Recipient: "u2", Text: "psst"})
	require.NoError(t, err)
	assert.Equal(t, "psst", text)

	_, err = v.ValidateChat(protocol.ChatPayload{Kind: "broadcast", Text: "   \n\t  "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")

	_, err = v.ValidateChat(protocol.ChatPayload{Kind: "carrier-pigeon", Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown chat kind")
}

func TestSanitizeChatText(t *testing.T) {
	assert.Equal(t, "helloworld", SanitizeChatText("hello\tworld"))
	assert.Equal(t, "helloworld", SanitizeChatText("hello\x00\x07world"))
	assert.Equal(t, "", SanitizeChatText("\x01\x02\x03"))

	long := strings.Repeat("a", MaxChatLength+50)
	assert.Len(t, SanitizeChatText(long), MaxChatLength)
}
