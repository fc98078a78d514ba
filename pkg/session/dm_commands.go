package session

import (
	"context"
	"fmt"
	"time"

	"tacticsrpg/pkg/game"
	"tacticsrpg/pkg/protocol"
	"tacticsrpg/pkg/ratelimit"
	"tacticsrpg/pkg/store"

	"github.com/google/uuid"
)

// handleDMCommand dispatches one privileged mutation. Every command is
// role-gated to the session host; a non-host sender gets FORBIDDEN.
func (a *Actor) handleDMCommand(msg Message) {
	p, ok := a.participants[msg.UserID]
	if !ok || p.Role != store.RoleDM {
		if msg.Conn != nil {
			msg.Conn.SendError(protocol.CodeForbidden, "dm commands require the host role", 0, msg.Seq)
		}
		return
	}
	if msg.Conn != nil {
		if d := a.limiter.Allow(msg.UserID, ratelimit.BucketDM); !d.Allowed {
			msg.Conn.SendError(protocol.CodeRateLimited, "dm command rate limit exceeded", d.RetryAfterMS, msg.Seq)
			return
		}
	}

	var err error
	switch msg.Command {
	case "start_game":
		err = a.dmStartGame(msg.Args)
	case "pause_game":
		err = a.dmPauseGame()
	case "resume_game":
		err = a.dmResumeGame()
	case "end_game":
		a.endSession("dm_ended")
		return
	case "skip_turn":
		err = a.dmSkipTurn()
	case "kick_player":
		err = a.dmKickPlayer(msg.Args)
	case "grant_gold":
		err = a.dmGrantGold(msg.Args)
	case "grant_xp":
		err = a.dmGrantXP(msg.Args)
	case "grant_weapon":
		err = a.dmGrantWeapon(msg.Args)
	case "spawn_monster":
		err = a.dmSpawnMonster(msg.Args)
	case "remove_monster":
		err = a.dmRemoveMonster(msg.Args)
	case "modify_monster":
		err = a.dmModifyMonster(msg.Args)
	default:
		err = fmt.Errorf("unknown dm command %q", msg.Command)
	}

	if err != nil {
		if msg.Conn != nil {
			msg.Conn.SendError(protocol.CodeInvalidAction, err.Error(), 0, msg.Seq)
		}
		return
	}

	// start_game, skip_turn, pause_game, and resume_game already bump
	// state_version themselves (via their own full_state_sync/
	// commitMutation/phase-transition paths, the last of which is shared
	// with the disconnect-triggered auto-pause); every other accepted
	// command is a mutation too and must still advance state_version,
	// even though it has no simulator events of its own to carry in a
	// state_update.
	switch msg.Command {
	case "start_game", "skip_turn", "pause_game", "resume_game":
	default:
		a.stateVersion++
	}
	a.broadcastAll(protocol.TypeDMEvent, protocol.DMEventPayload{Kind: msg.Command, Data: msg.Args, Version: a.stateVersion})
}

func (a *Actor) dmStartGame(args map[string]interface{}) error {
	if a.phase != store.PhaseLobby {
		return fmt.Errorf("session is not in lobby")
	}
	if len(a.participants) < 2 {
		return fmt.Errorf("at least 2 participants are required to start")
	}
	for _, p := range a.participants {
		if p.Role == store.RolePlayer && !p.Ready {
			return fmt.Errorf("all players must be ready to start")
		}
	}

	units := make([]game.Unit, 0, len(a.participants))
	width, height := 10, 10
	x, y := 0, 0
	for _, p := range a.participants {
		if p.Role != store.RolePlayer || p.CharacterID == "" {
			continue
		}
		char, err := a.store.GetCharacter(context.Background(), p.CharacterID)
		if err != nil {
			return fmt.Errorf("load character %s: %w", p.CharacterID, err)
		}
		units = append(units, game.Unit{
			ID:          char.ID,
			OwnerKind:   game.OwnerPlayer,
			OwnerUserID: p.UserID,
			Position:    game.Position{X: x % width, Y: y},
			Stats: game.Stats{
				HP: char.BaseStats.HP, MaxHP: char.BaseStats.MaxHP,
				Attack: char.BaseStats.Attack, Defense: char.BaseStats.Defense,
				Initiative: char.BaseStats.Initiative, MoveRange: char.BaseStats.MoveRange,
				AttackRange: char.BaseStats.AttackRange,
			},
		})
		x++
		if x%width == 0 {
			y++
		}
	}
	if len(units) == 0 {
		return fmt.Errorf("no players with characters attached")
	}

	a.state = game.GameState{
		Map:   game.NewGameMap(width, height),
		Units: units,
	}
	game.ComputeInitiative(&a.state)
	a.phase = store.PhasePlaying
	a.stateVersion++
	a.persistPhase()

	a.broadcastAll(protocol.TypeFullStateSync, protocol.FullStateSyncPayload{State: a.state, StateVersion: a.stateVersion})
	a.advanceTurn()
	return nil
}

func (a *Actor) dmPauseGame() error {
	if a.phase != store.PhasePlaying {
		return fmt.Errorf("session is not playing")
	}
	a.pauseForDisconnectedHost()
	return nil
}

func (a *Actor) dmResumeGame() error {
	if a.phase != store.PhasePaused {
		return fmt.Errorf("session is not paused")
	}
	a.phase = store.PhasePlaying
	a.stateVersion++
	a.persistPhase()
	remaining := a.pausedRemaining
	if remaining <= 0 {
		remaining = a.cfg.TurnDeadline
	}
	a.turn.Deadline = time.Now().Add(remaining)
	a.scheduleTurnTimer(remaining)
	return nil
}

func (a *Actor) dmSkipTurn() error {
	if a.phase != store.PhasePlaying || a.turn.CurrentUnitID == "" {
		return fmt.Errorf("no active turn to skip")
	}
	unitID := a.turn.CurrentUnitID
	next, events, err := a.simulator.ApplyAction(a.state, game.Action{Kind: game.ActionEndTurn, UnitID: unitID})
	if err != nil {
		return err
	}
	a.state = next
	a.commitMutation(events)
	a.advanceTurn()
	return nil
}

// dmKickPlayer closes the target's connection immediately but, during an
// active game, defers actually removing their seat and unit until the next
// turn boundary so the participant set and initiative order stay fixed for
// the remainder of the current turn.
func (a *Actor) dmKickPlayer(args map[string]interface{}) error {
	userID, _ := args["user_id"].(string)
	p, ok := a.participants[userID]
	if !ok {
		return fmt.Errorf("unknown participant %q", userID)
	}
	if p.Conn != nil {
		p.Conn.Close(protocol.CodeKicked)
	}
	a.cancelDisconnectGrace(userID)
	p.Connected = false
	p.Conn = nil

	if a.phase != store.PhasePlaying {
		delete(a.participants, userID)
		a.broadcastExcept("", protocol.TypeParticipantUpd, protocol.ParticipantUpdatePayload{Participants: a.participantsWire()})
		return nil
	}
	a.pendingKicks[userID] = struct{}{}
	a.broadcastExcept("", protocol.TypeParticipantUpd, protocol.ParticipantUpdatePayload{Participants: a.participantsWire()})
	return nil
}

func (a *Actor) dmGrantGold(args map[string]interface{}) error {
	amount, ok := args["amount"].(float64)
	if !ok {
		return fmt.Errorf("grant_gold requires numeric amount")
	}
	if amount <= 0 {
		return fmt.Errorf("gold grant must be positive")
	}
	a.state.Inventory.Gold += int(amount)
	return nil
}

func (a *Actor) dmGrantXP(args map[string]interface{}) error {
	characterID, _ := args["character_id"].(string)
	amount, ok := args["amount"].(float64)
	if !ok {
		return fmt.Errorf("grant_xp requires numeric amount")
	}
	if amount <= 0 {
		return fmt.Errorf("xp grant must be positive")
	}
	char, err := a.store.GetCharacter(context.Background(), characterID)
	if err != nil {
		return fmt.Errorf("load character %s: %w", characterID, err)
	}
	char.XP += int(amount)
	char.Level = game.LevelForXP(char.XP)
	if err := a.store.UpdateCharacter(context.Background(), char); err != nil {
		return fmt.Errorf("persist xp grant: %w", err)
	}
	return nil
}

func (a *Actor) dmGrantWeapon(args map[string]interface{}) error {
	weaponID, _ := args["weapon_id"].(string)
	tmpl, ok := game.LookupWeapon(weaponID)
	if !ok {
		return fmt.Errorf("unknown weapon %q", weaponID)
	}
	a.state.Inventory.Weapons = append(a.state.Inventory.Weapons, game.Weapon{
		InstanceID: uuid.NewString(), WeaponID: tmpl.ID, Name: tmpl.Name,
	})
	return nil
}

// dmSpawnMonster adds the new unit to the field immediately but leaves it
// out of the initiative order until the next turn boundary
// (applyPendingKicks runs the deferred game.ComputeInitiative there) so the
// turn currently in progress isn't disturbed.
func (a *Actor) dmSpawnMonster(args map[string]interface{}) error {
	monsterType, _ := args["monster_type"].(string)
	tmpl, ok := game.LookupMonster(monsterType)
	if !ok {
		return fmt.Errorf("unknown monster type %q", monsterType)
	}
	x, _ := args["x"].(float64)
	y, _ := args["y"].(float64)
	pos := game.Position{X: int(x), Y: int(y)}
	if a.state.Map != nil && !a.state.Map.Walkable(pos) {
		return fmt.Errorf("spawn position %+v is not walkable", pos)
	}
	if a.state.UnitAt(pos) != nil {
		return fmt.Errorf("spawn position %+v is already occupied", pos)
	}

	unit := game.Unit{ID: uuid.NewString(), OwnerKind: game.OwnerMonster, Position: pos, Stats: tmpl.Stats}
	a.state.Units = append(a.state.Units, unit)
	a.pendingInitiativeRecompute = true
	return nil
}

func (a *Actor) dmRemoveMonster(args map[string]interface{}) error {
	unitID, _ := args["unit_id"].(string)
	idx := -1
	for i, u := range a.state.Units {
		if u.ID == unitID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("unknown unit %q", unitID)
	}
	if a.state.Units[idx].OwnerKind != game.OwnerMonster {
		return fmt.Errorf("unit %q is not a monster", unitID)
	}
	wasCurrent := a.turn.CurrentUnitID == unitID
	a.state.Units = append(a.state.Units[:idx], a.state.Units[idx+1:]...)
	game.RemoveFromInitiative(&a.state.Combat, unitID)
	if wasCurrent {
		a.advanceTurn()
	}
	return nil
}

func (a *Actor) dmModifyMonster(args map[string]interface{}) error {
	unitID, _ := args["unit_id"].(string)
	unit := a.state.UnitByID(unitID)
	if unit == nil {
		return fmt.Errorf("unknown unit %q", unitID)
	}
	if unit.OwnerKind != game.OwnerMonster {
		return fmt.Errorf("unit %q is not a monster", unitID)
	}
	if hp, ok := args["hp"].(float64); ok {
		unit.Stats.HP = int(hp)
	}
	if attack, ok := args["attack"].(float64); ok {
		unit.Stats.Attack = int(attack)
	}
	if defense, ok := args["defense"].(float64); ok {
		unit.Stats.Defense = int(defense)
	}
	unit.Stats.Clamp()
	return nil
}
