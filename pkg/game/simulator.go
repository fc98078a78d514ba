// Package game implements the reference simulation adapter: the concrete
// applyAction(state, action) -> (state', events[]) function the session
// runtime treats as an external pure collaborator. The runtime depends only
// on the Simulator interface; this package's DefaultSimulator is one
// implementation of it, built around a simple stat block and damage model.
package game

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/slices"
)

// ActionKind enumerates the gameplay intents the simulator executes.
type ActionKind string

const (
	ActionMove    ActionKind = "move"
	ActionAttack  ActionKind = "attack"
	ActionEndTurn ActionKind = "end_turn"
)

// Action is one validated gameplay intent handed to the simulator by the
// session actor. UnitID is always the acting unit; Target is populated for
// move (destination) and TargetUnitID for attack.
type Action struct {
	Kind         ActionKind
	UnitID       string
	Target       *Position
	TargetUnitID string
}

// EventType enumerates the simulation-produced events broadcast alongside a
// state_update.
type EventType string

const (
	EventUnitMoved    EventType = "unit_moved"
	EventUnitAttacked EventType = "unit_attacked"
	EventUnitDied     EventType = "unit_died"
	EventTurnEnded    EventType = "turn_ended"
)

// Event is one fact the simulator reports happened during a step, forwarded
// to clients inside state_update.events.
type Event struct {
	Type     EventType      `json:"type"`
	UnitID   string         `json:"unit_id,omitempty"`
	TargetID string         `json:"target_id,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

var (
	// ErrUnitNotFound is returned when an action names a unit absent from the state.
	ErrUnitNotFound = errors.New("game: unit not found")
	// ErrOutOfRange is returned when a move exceeds the unit's move_range or an
	// attack target is outside attack_range.
	ErrOutOfRange = errors.New("game: target out of range")
	// ErrTileBlocked is returned when a move targets an occupied or non-walkable tile.
	ErrTileBlocked = errors.New("game: destination tile is blocked")
	// ErrUnknownAction is returned for an ActionKind the simulator does not implement.
	ErrUnknownAction = errors.New("game: unknown action kind")
)

// Simulator is the pure-function collaborator the session actor's
// Simulation Adapter invokes. Implementations must not retain or mutate the
// GameState argument; they return a new state alongside the events that
// occurred.
type Simulator interface {
	ApplyAction(state GameState, action Action) (GameState, []Event, error)
}

// DefaultSimulator is the reference implementation shipped with this
// module: orthogonal-plus-diagonal movement on the static map and
// max(0, attack-defense) damage resolution.
type DefaultSimulator struct{}

// NewDefaultSimulator constructs the reference Simulator.
func NewDefaultSimulator() *DefaultSimulator {
	return &DefaultSimulator{}
}

// ApplyAction executes one validated intent against state and returns the
// resulting state and the events it produced. The caller (Simulation
// Adapter) is responsible for invoking CheckInvariants on the result before
// committing it.
func (s *DefaultSimulator) ApplyAction(state GameState, action Action) (GameState, []Event, error) {
	next := state.Clone()

	switch action.Kind {
	case ActionMove:
		return s.applyMove(next, action)
	case ActionAttack:
		return s.applyAttack(next, action)
	case ActionEndTurn:
		return s.applyEndTurn(next, action)
	default:
		return state, nil, fmt.Errorf("%w: %s", ErrUnknownAction, action.Kind)
	}
}

func (s *DefaultSimulator) applyMove(state GameState, action Action) (GameState, []Event, error) {
	if action.Target == nil {
		return state, nil, fmt.Errorf("game: move action missing target")
	}

	unit := state.UnitByID(action.UnitID)
	if unit == nil {
		return state, nil, fmt.Errorf("%w: %s", ErrUnitNotFound, action.UnitID)
	}

	distance := ChebyshevDistance(unit.Position, *action.Target)
	if distance > unit.Stats.MoveRange {
		return state, nil, fmt.Errorf("%w: distance %d exceeds move_range %d", ErrOutOfRange, distance, unit.Stats.MoveRange)
	}

	if !state.Map.Walkable(*action.Target) {
		return state, nil, fmt.Errorf("%w: %+v not walkable", ErrTileBlocked, *action.Target)
	}
	if occupant := state.UnitAt(*action.Target); occupant != nil && occupant.ID != unit.ID {
		return state, nil, fmt.Errorf("%w: %+v occupied by %s", ErrTileBlocked, *action.Target, occupant.ID)
	}

	from := unit.Position
	unit.Position = *action.Target

	return state, []Event{{
		Type:   EventUnitMoved,
		UnitID: unit.ID,
		Data: map[string]any{
			"from":     from,
			"to":       *action.Target,
			"distance": distance,
		},
	}}, nil
}

func (s *DefaultSimulator) applyAttack(state GameState, action Action) (GameState, []Event, error) {
	attacker := state.UnitByID(action.UnitID)
	if attacker == nil {
		return state, nil, fmt.Errorf("%w: %s", ErrUnitNotFound, action.UnitID)
	}
	target := state.UnitByID(action.TargetUnitID)
	if target == nil {
		return state, nil, fmt.Errorf("%w: %s", ErrUnitNotFound, action.TargetUnitID)
	}

	distance := ChebyshevDistance(attacker.Position, target.Position)
	if distance > attacker.Stats.AttackRange {
		return state, nil, fmt.Errorf("%w: distance %d exceeds attack_range %d", ErrOutOfRange, distance, attacker.Stats.AttackRange)
	}

	damage := attacker.Stats.Attack - target.Stats.Defense
	if damage < 0 {
		damage = 0
	}
	target.Stats.HP -= damage
	target.Stats.Clamp()

	events := []Event{{
		Type:     EventUnitAttacked,
		UnitID:   attacker.ID,
		TargetID: target.ID,
		Data: map[string]any{
			"damage":       damage,
			"remaining_hp": target.Stats.HP,
		},
	}}

	if !target.Alive() {
		RemoveFromInitiative(&state.Combat, target.ID)
		events = append(events, Event{Type: EventUnitDied, UnitID: target.ID})
	}

	return state, events, nil
}

func (s *DefaultSimulator) applyEndTurn(state GameState, action Action) (GameState, []Event, error) {
	unit := state.UnitByID(action.UnitID)
	if unit == nil {
		return state, nil, fmt.Errorf("%w: %s", ErrUnitNotFound, action.UnitID)
	}

	advanceInitiative(&state.Combat)

	return state, []Event{{Type: EventTurnEnded, UnitID: unit.ID}}, nil
}

// RemoveFromInitiative drops unitID from the initiative order, keeping the
// current pointer valid; used the moment a unit's hp reaches zero and by
// the DM remove_monster command, which takes effect immediately rather
// than at a turn boundary.
func RemoveFromInitiative(combat *CombatBlock, unitID string) {
	idx := slices.Index(combat.InitiativeOrder, unitID)
	if idx < 0 {
		return
	}
	combat.InitiativeOrder = slices.Delete(combat.InitiativeOrder, idx, idx+1)
	if len(combat.InitiativeOrder) == 0 {
		combat.CurrentIndex = 0
		return
	}
	switch {
	case idx < combat.CurrentIndex:
		// Everything after the removed slot shifted down by one; follow it
		// so the pointer still names the same still-live unit.
		combat.CurrentIndex--
	case idx == combat.CurrentIndex && combat.CurrentIndex >= len(combat.InitiativeOrder):
		// The current unit itself died and was last in the order: wrap to
		// the top, same as a normal end-of-round advance.
		combat.CurrentIndex = 0
		combat.Round++
	}
}

// advanceInitiative moves the current-turn pointer to the next live unit,
// rolling the round counter over on wraparound.
func advanceInitiative(combat *CombatBlock) {
	if len(combat.InitiativeOrder) == 0 {
		return
	}
	combat.CurrentIndex++
	if combat.CurrentIndex >= len(combat.InitiativeOrder) {
		combat.CurrentIndex = 0
		combat.Round++
	}
}

// ComputeInitiative (re)builds the initiative order from the live units of
// state, sorted by initiative descending, ties broken by unit id
// lexicographic order then original insertion order; stable sort makes the
// second tie-break automatic.
func ComputeInitiative(state *GameState) {
	ids := state.LiveUnitIDs()
	slices.SortStableFunc(ids, func(a, b string) int {
		ua, ub := state.UnitByID(a), state.UnitByID(b)
		if ua.Stats.Initiative != ub.Stats.Initiative {
			return ub.Stats.Initiative - ua.Stats.Initiative
		}
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	})
	state.Combat.InitiativeOrder = ids
	state.Combat.CurrentIndex = 0
}

// LevelForXP computes character level from accumulated experience, taken
// verbatim from the progression rule the DM grant_xp command must honor.
func LevelForXP(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return int(math.Floor(math.Sqrt(float64(xp)/100.0))) + 1
}
