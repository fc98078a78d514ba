package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"tacticsrpg/pkg/protocol"
)

// MaxChatLength is the cap applied to chat text after sanitization, per
// the wire chat contract.
const MaxChatLength = 500

// MaxEnvelopeSize is a 64 KiB bound on inbound frame size. No Validator
// method checks it; frame size is not enforced by this package.
const MaxEnvelopeSize = 64 * 1024

var inviteCodeRegex = regexp.MustCompile(`^[A-Z0-9]{6}$`)
var difficultyRegex = regexp.MustCompile(`^[a-z][a-z0-9_\-]{0,31}$`)

var validActionKinds = map[string]bool{
	"move":     true,
	"attack":   true,
	"end_turn": true,
}

var validDMCommands = map[string]bool{
	"start_game":     true,
	"pause_game":     true,
	"resume_game":    true,
	"end_game":       true,
	"skip_turn":      true,
	"kick_player":    true,
	"grant_gold":     true,
	"grant_xp":       true,
	"grant_weapon":   true,
	"spawn_monster":  true,
	"remove_monster": true,
	"modify_monster": true,
}

var validChatKinds = map[string]bool{
	"broadcast": true,
	"whisper":   true,
}

// Validator checks envelope payloads before they are turned into session
// actor messages. It is stateless and safe for concurrent use; a single
// instance is shared by every connection.
type Validator struct {
	maxPlayers      int
	minPlayers      int
	maxTurnDeadline int
	minTurnDeadline int
}

// Limits bounds the configurable portions of payload validation. Zero
// values fall back to DefaultLimits.
type Limits struct {
	MaxPlayers      int
	MinPlayers      int
	MaxTurnDeadline int
	MinTurnDeadline int
}

// DefaultLimits gives the default session lobby bounds: 2-8 players, a
// 10s-600s turn clock.
func DefaultLimits() Limits {
	return Limits{MaxPlayers: 8, MinPlayers: 2, MaxTurnDeadline: 600, MinTurnDeadline: 10}
}

// New builds a Validator from the given limits, filling any zero field from
// DefaultLimits.
func New(limits Limits) *Validator {
	d := DefaultLimits()
	if limits.MaxPlayers <= 0 {
		limits.MaxPlayers = d.MaxPlayers
	}
	if limits.MinPlayers <= 0 {
		limits.MinPlayers = d.MinPlayers
	}
	if limits.MaxTurnDeadline <= 0 {
		limits.MaxTurnDeadline = d.MaxTurnDeadline
	}
	if limits.MinTurnDeadline <= 0 {
		limits.MinTurnDeadline = d.MinTurnDeadline
	}
	return &Validator{
		maxPlayers:      limits.MaxPlayers,
		minPlayers:      limits.MinPlayers,
		maxTurnDeadline: limits.MaxTurnDeadline,
		minTurnDeadline: limits.MinTurnDeadline,
	}
}

// ValidateAuth checks the auth handshake payload.
func (v *Validator) ValidateAuth(p protocol.AuthPayload) error {
	if strings.TrimSpace(p.Token) == "" {
		return fmt.Errorf("auth requires a non-empty token")
	}
	if len(p.Token) > 4096 {
		return fmt.Errorf("auth token exceeds maximum length")
	}
	return nil
}

// ValidateCreateSession checks a create_session request's config block.
func (v *Validator) ValidateCreateSession(p protocol.CreateSessionPayload) error {
	cfg := p.Config
	if cfg.MaxPlayers < v.minPlayers || cfg.MaxPlayers > v.maxPlayers {
		return fmt.Errorf("max_players must be between %d and %d", v.minPlayers, v.maxPlayers)
	}
	if cfg.TurnDeadlineSecond != 0 {
		if cfg.TurnDeadlineSecond < v.minTurnDeadline || cfg.TurnDeadlineSecond > v.maxTurnDeadline {
			return fmt.Errorf("turn_deadline_seconds must be between %d and %d", v.minTurnDeadline, v.maxTurnDeadline)
		}
	}
	if cfg.Difficulty != "" && !difficultyRegex.MatchString(cfg.Difficulty) {
		return fmt.Errorf("difficulty %q is not a valid identifier", cfg.Difficulty)
	}
	return nil
}

// ValidateJoinSession checks a join_session request.
func (v *Validator) ValidateJoinSession(p protocol.JoinSessionPayload) error {
	if err := ValidateInviteCode(p.InviteCode); err != nil {
		return err
	}
	if strings.TrimSpace(p.CharacterID) == "" {
		return fmt.Errorf("join_session requires a character_id")
	}
	return nil
}

// ValidateInviteCode checks the 6-char [A-Z0-9] invite code format.
func ValidateInviteCode(code string) error {
	if !inviteCodeRegex.MatchString(code) {
		return fmt.Errorf("invite_code must be 6 characters from [A-Z0-9]")
	}
	return nil
}

// ValidateIntent checks an intent request's shape: a known action kind, a
// present unit id, and the target fields required by that kind. It does
// not check game-state legality (turn ownership, range, movement budget);
// that is the session actor's job.
func (v *Validator) ValidateIntent(p protocol.IntentPayload) error {
	action := p.Action
	if !validActionKinds[action.Kind] {
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
	if strings.TrimSpace(action.UnitID) == "" {
		return fmt.Errorf("intent requires a unit_id")
	}
	switch action.Kind {
	case "move":
		if action.Target == nil {
			return fmt.Errorf("move action requires a target position")
		}
	case "attack":
		if strings.TrimSpace(action.TargetID) == "" {
			return fmt.Errorf("attack action requires a target_id")
		}
	}
	return nil
}

// ValidateDMCommand checks that a dm_command names a known command and
// carries the arguments that command requires. Per-command argument type
// checking beyond presence is left to the DM command handler, which already
// must tolerate malformed JSON numbers decoding as float64.
func (v *Validator) ValidateDMCommand(p protocol.DMCommandPayload) error {
	if !validDMCommands[p.Command] {
		return fmt.Errorf("unknown dm command %q", p.Command)
	}

	required := dmCommandRequiredArgs[p.Command]
	for _, key := range required {
		if _, ok := p.Args[key]; !ok {
			return fmt.Errorf("dm command %q requires argument %q", p.Command, key)
		}
	}
	return nil
}

var dmCommandRequiredArgs = map[string][]string{
	"kick_player":    {"user_id"},
	"grant_gold":     {"amount"},
	"grant_xp":       {"character_id", "amount"},
	"grant_weapon":   {"weapon_id"},
	"spawn_monster":  {"monster_type", "x", "y"},
	"remove_monster": {"unit_id"},
	"modify_monster": {"unit_id"},
}

// ValidateChat checks a chat request's shape (kind, recipient-for-whisper)
// and returns the sanitized text to store and broadcast. Callers must use
// the returned text, not the original payload's.
func (v *Validator) ValidateChat(p protocol.ChatPayload) (string, error) {
	if !validChatKinds[p.Kind] {
		return "", fmt.Errorf("unknown chat kind %q", p.Kind)
	}
	if p.Kind == "whisper" && strings.TrimSpace(p.Recipient) == "" {
		return "", fmt.Errorf("whisper requires a recipient")
	}

	text := SanitizeChatText(p.Text)
	if text == "" {
		return "", fmt.Errorf("chat text cannot be empty after sanitization")
	}
	return text, nil
}

// SanitizeChatText strips control characters (everything unicode.IsControl
// reports, including raw newlines) and truncates to MaxChatLength runes.
func SanitizeChatText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	count := 0
	for _, r := range text {
		if unicode.IsControl(r) {
			continue
		}
		if count >= MaxChatLength {
			break
		}
		b.WriteRune(r)
		count++
	}
	return strings.TrimSpace(b.String())
}
