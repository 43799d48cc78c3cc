package game

import (
	"horde/internal/game/spatial"
)

// StructureKind selects the pickup a destroyed structure leaves behind.
type StructureKind uint8

const (
	StructureBarn StructureKind = iota
	StructureHouse
	StructureTower
)

// String returns the structure name.
func (k StructureKind) String() string {
	switch k {
	case StructureBarn:
		return "barn"
	case StructureHouse:
		return "house"
	case StructureTower:
		return "tower"
	default:
		return "unknown"
	}
}

// Structure is a neutral destructible building. Every team may attack it.
type Structure struct {
	ID uint32
	Body
	Kind  StructureKind
	HP    float64
	MaxHP float64
}

func (s *Structure) ref() spatial.Ref {
	return spatial.Ref{Kind: spatial.KindStructure, ID: s.ID}
}

// ObstacleKind is the terrain type. It has no effect on collision.
type ObstacleKind uint8

const (
	ObstacleForest ObstacleKind = iota
	ObstacleWater
)

// String returns the terrain name.
func (k ObstacleKind) String() string {
	if k == ObstacleForest {
		return "forest"
	}
	return "water"
}

// Obstacle is impassable static terrain.
type Obstacle struct {
	ID uint32
	Body
	Kind ObstacleKind
}

func (o *Obstacle) ref() spatial.Ref {
	return spatial.Ref{Kind: spatial.KindObstacle, ID: o.ID}
}

// Tier is the pickup strength.
type Tier uint8

const (
	TierLow Tier = iota
	TierMid
	TierHigh
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMid:
		return "mid"
	case TierHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Pickup is a collectible soul.
type Pickup struct {
	ID uint32
	Body
	Tier Tier
}

func (p *Pickup) ref() spatial.Ref {
	return spatial.Ref{Kind: spatial.KindPickup, ID: p.ID}
}

// PickupSize is the side of a pickup box.
const PickupSize = 20

// eligible reports whether a can consume a pickup of tier t: low tier for
// anyone, mid for level-1 melee followers, high for level-2 melee followers.
func eligible(a *Agent, t Tier) bool {
	switch t {
	case TierLow:
		return true
	case TierMid:
		return a.Role == RoleMelee && a.Level == 1
	case TierHigh:
		return a.Role == RoleMelee && a.Level == 2
	default:
		return false
	}
}

// dropTier maps a dying agent to the pickup it leaves.
func dropTier(a *Agent) Tier {
	if a.Role == RoleLeader {
		return TierHigh
	}
	switch a.Level {
	case 2:
		return TierMid
	case 3:
		return TierHigh
	default:
		return TierLow
	}
}

// structureTier maps a destroyed structure to its pickup.
func structureTier(k StructureKind) Tier {
	switch k {
	case StructureHouse:
		return TierMid
	case StructureTower:
		return TierHigh
	default:
		return TierLow
	}
}

// MarshalText encodes the kind by name.
func (k StructureKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// MarshalText encodes the kind by name.
func (k ObstacleKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// MarshalText encodes the tier by name.
func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }
