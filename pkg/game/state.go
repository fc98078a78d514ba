package game

import "fmt"

// Weapon is one instance of a catalog weapon granted into a session's
// shared inventory.
type Weapon struct {
	InstanceID string `yaml:"instance_id" json:"instance_id"`
	WeaponID   string `yaml:"weapon_id" json:"weapon_id"`
	Name       string `yaml:"name" json:"name"`
}

// Inventory is the shared, session-wide loot pool.
type Inventory struct {
	Gold    int      `yaml:"gold" json:"gold"`
	Weapons []Weapon `yaml:"weapons" json:"weapons"`
}

// Clone returns a deep copy of the inventory.
func (inv Inventory) Clone() Inventory {
	weapons := append([]Weapon(nil), inv.Weapons...)
	return Inventory{Gold: inv.Gold, Weapons: weapons}
}

// CombatBlock is the initiative order and round counter, part of the opaque
// GameState the runtime validates around but does not interpret.
type CombatBlock struct {
	InitiativeOrder []string `yaml:"initiative_order" json:"initiative_order"`
	CurrentIndex    int      `yaml:"current_index" json:"current_index"`
	Round           int      `yaml:"round" json:"round"`
}

// CurrentUnitID returns the unit id at the current initiative pointer, or
// "" if the initiative order is empty.
func (c CombatBlock) CurrentUnitID() string {
	if len(c.InitiativeOrder) == 0 {
		return ""
	}
	idx := c.CurrentIndex % len(c.InitiativeOrder)
	return c.InitiativeOrder[idx]
}

// Clone returns a deep copy of the combat block.
func (c CombatBlock) Clone() CombatBlock {
	return CombatBlock{
		InitiativeOrder: append([]string(nil), c.InitiativeOrder...),
		CurrentIndex:    c.CurrentIndex,
		Round:           c.Round,
	}
}

// GameState is the opaque-to-the-runtime state the external simulation
// function reads and produces. The runtime never reaches into the map or
// combat block directly except to enforce the invariants documented below.
type GameState struct {
	Map       *GameMap    `yaml:"map" json:"map"`
	Units     []Unit      `yaml:"units" json:"units"`
	Combat    CombatBlock `yaml:"combat" json:"combat"`
	Inventory Inventory   `yaml:"inventory" json:"inventory"`
}

// Clone returns a deep copy of the state, used before every simulation step
// so a rejected/invariant-violating step never mutates the committed state.
func (s GameState) Clone() GameState {
	units := make([]Unit, len(s.Units))
	copy(units, s.Units)
	return GameState{
		Map:       s.Map.Clone(),
		Units:     units,
		Combat:    s.Combat.Clone(),
		Inventory: s.Inventory.Clone(),
	}
}

// UnitByID returns a pointer into s.Units for the given id, or nil.
func (s *GameState) UnitByID(id string) *Unit {
	for i := range s.Units {
		if s.Units[i].ID == id {
			return &s.Units[i]
		}
	}
	return nil
}

// UnitAt returns the unit occupying p, if any.
func (s *GameState) UnitAt(p Position) *Unit {
	for i := range s.Units {
		if s.Units[i].Position == p {
			return &s.Units[i]
		}
	}
	return nil
}

// CheckInvariants validates the runtime-owned invariants around GameState
// that must hold after every committed simulation step: unique unit ids,
// at most one unit per tile, and hp within [0, max_hp]. A violation here is
// treated as a simulation bug (INTERNAL_SIM_VIOLATION) and must force the
// owning session into paused rather than propagate.
func (s *GameState) CheckInvariants() error {
	seenIDs := make(map[string]bool, len(s.Units))
	seenTiles := make(map[Position]string, len(s.Units))

	for _, u := range s.Units {
		if seenIDs[u.ID] {
			return fmt.Errorf("duplicate unit id %q", u.ID)
		}
		seenIDs[u.ID] = true

		if u.Stats.HP < 0 || u.Stats.HP > u.Stats.MaxHP {
			return fmt.Errorf("unit %q hp %d out of bounds [0,%d]", u.ID, u.Stats.HP, u.Stats.MaxHP)
		}

		if owner, exists := seenTiles[u.Position]; exists {
			return fmt.Errorf("units %q and %q both occupy %+v", owner, u.ID, u.Position)
		}
		seenTiles[u.Position] = u.ID
	}

	for _, id := range s.Combat.InitiativeOrder {
		unit := s.UnitByID(id)
		if unit == nil {
			return fmt.Errorf("initiative order references missing unit %q", id)
		}
	}

	return nil
}

// LiveUnitIDs returns the ids of all units with hp > 0, in their current
// Units slice order; used to (re)compute initiative.
func (s *GameState) LiveUnitIDs() []string {
	ids := make([]string, 0, len(s.Units))
	for _, u := range s.Units {
		if u.Alive() {
			ids = append(ids, u.ID)
		}
	}
	return ids
}
