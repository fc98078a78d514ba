package session

import (
	"time"

	"tacticsrpg/pkg/game"
	"tacticsrpg/pkg/protocol"
	"tacticsrpg/pkg/store"
)

// advanceTurn re-reads the current turn holder off the committed state's
// initiative pointer, (re)arms the turn deadline timer, and broadcasts the
// change. Called after every committed mutation that can move the
// initiative pointer (explicit or implicit end_turn, turn timeout, DM
// start_game and skip_turn, and DM removal of the acting monster).
func (a *Actor) advanceTurn() {
	a.cancelTurnTimer()
	a.applyPendingKicks()

	unitID := a.state.Combat.CurrentUnitID()
	if unitID == "" {
		a.endCombat()
		return
	}

	unit := a.state.UnitByID(unitID)
	moveRange := 0
	userID := ""
	if unit != nil {
		moveRange = unit.Stats.MoveRange
		userID = unit.OwnerUserID
	}

	a.turn = TurnState{
		CurrentUnitID:     unitID,
		MovementRemaining: moveRange,
		HasActed:          false,
		Deadline:          time.Now().Add(a.cfg.TurnDeadline),
	}
	a.scheduleTurnTimer(a.cfg.TurnDeadline)
	a.broadcastAll(protocol.TypeTurnChange, protocol.TurnChangePayload{
		CurrentUnitID: unitID,
		UserID:        userID,
		DeadlineUnix:  a.turn.Deadline.UnixMilli(),
	})
}

func (a *Actor) endCombat() {
	a.turn = TurnState{}
	a.phase = store.PhasePlaying
}

// scheduleTurnTimer arms a timer that posts a turn_deadline timer_tick back
// onto the actor's own inbox once d elapses.
func (a *Actor) scheduleTurnTimer(d time.Duration) {
	if d <= 0 {
		return
	}
	a.turnTimer = time.AfterFunc(d, func() {
		select {
		case a.inbox <- Message{Kind: MsgTimerTick, Command: "turn_deadline"}:
		case <-a.done:
		}
	})
}

func (a *Actor) cancelTurnTimer() {
	if a.turnTimer != nil {
		a.turnTimer.Stop()
		a.turnTimer = nil
	}
}

// onTurnTimeout auto-ends the current unit's turn when its deadline fires
// without an explicit end_turn intent.
func (a *Actor) onTurnTimeout() {
	if a.phase != store.PhasePlaying || a.turn.CurrentUnitID == "" {
		return
	}

	unitID := a.turn.CurrentUnitID
	unit := a.state.UnitByID(unitID)
	userID := ""
	if unit != nil {
		userID = unit.OwnerUserID
	}

	next, events, err := a.simulator.ApplyAction(a.state, game.Action{Kind: game.ActionEndTurn, UnitID: unitID})
	if err != nil {
		a.log.WithError(err).Warn("turn timeout auto end-turn failed")
		return
	}
	a.state = next
	a.commitMutation(events)

	a.broadcastAll(protocol.TypeTurnTimeout, protocol.TurnTimeoutPayload{UserID: userID, UnitID: unitID})
	a.advanceTurn()
}

// pauseForDisconnectedHost freezes the turn clock, preserving the
// remaining time so resume_game can re-arm it unchanged.
func (a *Actor) pauseForDisconnectedHost() {
	if a.phase != store.PhasePlaying {
		return
	}
	a.pausedRemaining = time.Until(a.turn.Deadline)
	if a.pausedRemaining < 0 {
		a.pausedRemaining = 0
	}
	a.cancelTurnTimer()
	a.phase = store.PhasePaused
	a.stateVersion++
	a.persistPhase()
	a.broadcastAll(protocol.TypeDMEvent, protocol.DMEventPayload{Kind: "auto_paused", Data: map[string]interface{}{"reason": "dm_disconnected"}, Version: a.stateVersion})
}
