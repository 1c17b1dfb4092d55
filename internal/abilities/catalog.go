package abilities

// TargetingType describes what an ability must be aimed at.
type TargetingType string

const (
	TargetingSelf     TargetingType = "SELF"
	TargetingPosition TargetingType = "POSITION"
	TargetingUnit     TargetingType = "UNIT"
)

// EffectType describes what an ability does when it resolves. The arbiter
// only understands these three shapes; concrete numbers live in the catalog.
type EffectType string

const (
	EffectDamage EffectType = "DAMAGE"
	EffectHeal   EffectType = "HEAL"
	EffectZone   EffectType = "ZONE"
)

// Ability is the declared contract of one ability: costs, reach and effect
// shape. The resolution engine never hardcodes ability numbers; it reads
// them from here.
type Ability struct {
	ID                string
	Name              string
	AuraCost          int
	Range             int
	Cooldown          int
	Targeting         TargetingType
	CanTargetFriendly bool
	CanTargetEnemy    bool
	Effect            EffectType
	Magnitude         int
	ZoneKind          string
	ZoneDuration      int
}

// Catalog is the ability content collaborator. Implementations are pure
// lookups; the engine treats a missing ID as a validation failure.
type Catalog interface {
	Get(abilityID string) (Ability, bool)
}

// StaticCatalog serves abilities from an in-memory map.
type StaticCatalog struct {
	abilities map[string]Ability
}

// NewStaticCatalog builds a catalog from the given ability definitions.
func NewStaticCatalog(defs []Ability) *StaticCatalog {
	m := make(map[string]Ability, len(defs))
	for _, a := range defs {
		m[a.ID] = a
	}
	return &StaticCatalog{abilities: m}
}

// Get returns the ability with the given ID.
func (c *StaticCatalog) Get(abilityID string) (Ability, bool) {
	a, ok := c.abilities[abilityID]
	return a, ok
}

// DefaultCatalog returns the stock ability set used when no external
// content pack is configured.
func DefaultCatalog() *StaticCatalog {
	return NewStaticCatalog([]Ability{
		{
			ID:             "strike",
			Name:           "Strike",
			AuraCost:       2,
			Range:          1,
			Targeting:      TargetingUnit,
			CanTargetEnemy: true,
			Effect:         EffectDamage,
			Magnitude:      5,
		},
		{
			ID:             "aura_bolt",
			Name:           "Aura Bolt",
			AuraCost:       3,
			Range:          4,
			Cooldown:       1,
			Targeting:      TargetingUnit,
			CanTargetEnemy: true,
			Effect:         EffectDamage,
			Magnitude:      4,
		},
		{
			ID:                "mend",
			Name:              "Mend",
			AuraCost:          2,
			Range:             3,
			Targeting:         TargetingUnit,
			CanTargetFriendly: true,
			Effect:            EffectHeal,
			Magnitude:         4,
		},
		{
			ID:           "scorch_field",
			Name:         "Scorch Field",
			AuraCost:     4,
			Range:        3,
			Cooldown:     2,
			Targeting:    TargetingPosition,
			Effect:       EffectZone,
			Magnitude:    2,
			ZoneKind:     "fire",
			ZoneDuration: 3,
		},
	})
}
