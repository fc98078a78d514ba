package game

// WeaponTemplate is one fixed entry a DM can grant via grant_weapon.
type WeaponTemplate struct {
	ID   string
	Name string
}

// MonsterTemplate is one fixed entry a DM can spawn via spawn_monster.
type MonsterTemplate struct {
	ID    string
	Name  string
	Stats Stats
}

// weaponCatalog is the fixed set of weapons grant_weapon may reference.
var weaponCatalog = map[string]WeaponTemplate{
	"short_sword": {ID: "short_sword", Name: "Short Sword"},
	"long_bow":    {ID: "long_bow", Name: "Longbow"},
	"battle_axe":  {ID: "battle_axe", Name: "Battle Axe"},
	"war_hammer":  {ID: "war_hammer", Name: "War Hammer"},
}

// monsterCatalog is the fixed set of monster types spawn_monster may reference.
var monsterCatalog = map[string]MonsterTemplate{
	"goblin": {
		ID:   "goblin",
		Name: "Goblin",
		Stats: Stats{
			HP: 7, MaxHP: 7, Attack: 3, Defense: 1,
			Initiative: 8, MoveRange: 4, AttackRange: 1,
		},
	},
	"skeleton": {
		ID:   "skeleton",
		Name: "Skeleton",
		Stats: Stats{
			HP: 10, MaxHP: 10, Attack: 4, Defense: 2,
			Initiative: 6, MoveRange: 3, AttackRange: 1,
		},
	},
	"orc_brute": {
		ID:   "orc_brute",
		Name: "Orc Brute",
		Stats: Stats{
			HP: 20, MaxHP: 20, Attack: 6, Defense: 3,
			Initiative: 4, MoveRange: 3, AttackRange: 1,
		},
	},
	"dire_wolf": {
		ID:   "dire_wolf",
		Name: "Dire Wolf",
		Stats: Stats{
			HP: 12, MaxHP: 12, Attack: 5, Defense: 1,
			Initiative: 10, MoveRange: 6, AttackRange: 1,
		},
	},
}

// LookupWeapon returns the catalog entry for weaponID, if any.
func LookupWeapon(weaponID string) (WeaponTemplate, bool) {
	w, ok := weaponCatalog[weaponID]
	return w, ok
}

// LookupMonster returns the catalog entry for monsterType, if any.
func LookupMonster(monsterType string) (MonsterTemplate, bool) {
	m, ok := monsterCatalog[monsterType]
	return m, ok
}
