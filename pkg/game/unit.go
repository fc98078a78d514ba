package game

// OwnerKind distinguishes player-controlled units from DM-controlled monsters.
type OwnerKind string

const (
	OwnerPlayer  OwnerKind = "player"
	OwnerMonster OwnerKind = "monster"
)

// Stats is the unit stat block the runtime reasons about directly. It
// intentionally carries only the fields the session runtime needs to
// validate and execute intents; richer character-sheet detail belongs to
// the character-creation domain, which this system treats as out of scope.
type Stats struct {
	HP          int `yaml:"hp" json:"hp"`
	MaxHP       int `yaml:"max_hp" json:"max_hp"`
	Attack      int `yaml:"attack" json:"attack"`
	Defense     int `yaml:"defense" json:"defense"`
	Initiative  int `yaml:"initiative" json:"initiative"`
	MoveRange   int `yaml:"move_range" json:"move_range"`
	AttackRange int `yaml:"attack_range" json:"attack_range"`
}

// Clamp pins HP into [0, MaxHP], the invariant the runtime enforces around
// every simulation step, and floors every other stat at 0 -- the same
// "clamp resulting stats to >= 0" rule a DM's modify_monster command must
// honor for Attack/Defense.
func (s *Stats) Clamp() {
	if s.HP < 0 {
		s.HP = 0
	}
	if s.HP > s.MaxHP {
		s.HP = s.MaxHP
	}
	if s.MaxHP < 0 {
		s.MaxHP = 0
	}
	if s.Attack < 0 {
		s.Attack = 0
	}
	if s.Defense < 0 {
		s.Defense = 0
	}
	if s.Initiative < 0 {
		s.Initiative = 0
	}
	if s.MoveRange < 0 {
		s.MoveRange = 0
	}
	if s.AttackRange < 0 {
		s.AttackRange = 0
	}
}

// Unit is one actor on the map: a player's character or a DM-spawned monster.
type Unit struct {
	ID          string    `yaml:"id" json:"id"`
	OwnerKind   OwnerKind `yaml:"owner_kind" json:"owner_kind"`
	OwnerUserID string    `yaml:"owner_user_id,omitempty" json:"owner_user_id,omitempty"`
	Position    Position  `yaml:"position" json:"position"`
	Stats       Stats     `yaml:"stats" json:"stats"`
}

// Alive reports whether the unit still has hit points and belongs in the
// initiative order.
func (u *Unit) Alive() bool {
	return u.Stats.HP > 0
}

// Clone returns a deep copy of the unit.
func (u Unit) Clone() Unit {
	return u
}
