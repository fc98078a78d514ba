package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState() GameState {
	return GameState{
		Map: NewGameMap(5, 5),
		Units: []Unit{
			{ID: "u1", OwnerKind: OwnerPlayer, Position: Position{0, 0}, Stats: Stats{HP: 10, MaxHP: 10, Initiative: 5}},
			{ID: "u2", OwnerKind: OwnerMonster, Position: Position{1, 1}, Stats: Stats{HP: 8, MaxHP: 8, Initiative: 9}},
		},
		Combat: CombatBlock{InitiativeOrder: []string{"u2", "u1"}, CurrentIndex: 0, Round: 1},
	}
}

func TestGameState_UnitByIDAndUnitAt(t *testing.T) {
	s := newTestState()

	u := s.UnitByID("u1")
	require.NotNil(t, u)
	assert.Equal(t, "u1", u.ID)

	assert.Nil(t, s.UnitByID("no-such-unit"))

	occupant := s.UnitAt(Position{1, 1})
	require.NotNil(t, occupant)
	assert.Equal(t, "u2", occupant.ID)

	assert.Nil(t, s.UnitAt(Position{4, 4}))
}

func TestGameState_Clone_IsDeep(t *testing.T) {
	s := newTestState()
	clone := s.Clone()

	clone.UnitByID("u1").Stats.HP = 1
	clone.Map.Tiles[0][0].Walkable = false
	clone.Combat.InitiativeOrder[0] = "changed"

	assert.Equal(t, 10, s.UnitByID("u1").Stats.HP)
	assert.True(t, s.Map.Tiles[0][0].Walkable)
	assert.Equal(t, "u2", s.Combat.InitiativeOrder[0])
}

func TestGameState_CheckInvariants(t *testing.T) {
	s := newTestState()
	assert.NoError(t, s.CheckInvariants())

	dup := newTestState()
	dup.Units[1].ID = "u1"
	assert.Error(t, dup.CheckInvariants(), "duplicate unit ids must be rejected")

	badHP := newTestState()
	badHP.Units[0].Stats.HP = -1
	assert.Error(t, badHP.CheckInvariants(), "hp outside [0,max_hp] must be rejected")

	collision := newTestState()
	collision.Units[0].Position = collision.Units[1].Position
	assert.Error(t, collision.CheckInvariants(), "two units on the same tile must be rejected")

	danglingInitiative := newTestState()
	danglingInitiative.Combat.InitiativeOrder = append(danglingInitiative.Combat.InitiativeOrder, "ghost")
	assert.Error(t, danglingInitiative.CheckInvariants(), "initiative referencing a missing unit must be rejected")
}

func TestGameState_LiveUnitIDs(t *testing.T) {
	s := newTestState()
	s.Units[1].Stats.HP = 0

	ids := s.LiveUnitIDs()
	assert.Equal(t, []string{"u1"}, ids)
}
