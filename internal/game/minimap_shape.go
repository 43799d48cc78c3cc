package game

import "iter"

// MinimapLayer orders minimap drawing from back to front.
type MinimapLayer uint8

const (
	LayerTerrain MinimapLayer = iota
	LayerStructure
	LayerPickup
	LayerAgent
)

// MinimapShape is how an entity appears on the minimap, in world units.
type MinimapShape struct {
	X, Y, W, H float64
	Layer      MinimapLayer
	Variant    uint8 // Kind, tier or role within the layer
	Team       int
	Leader     bool
	Player     bool
}

// MinimapDrawable is implemented by every snapshot entity the minimap can
// show. Simulation types stay free of rendering concerns.
type MinimapDrawable interface {
	MinimapShape() MinimapShape
}

func (a AgentSnapshot) MinimapShape() MinimapShape {
	return MinimapShape{
		X: a.X, Y: a.Y, W: a.W, H: a.H,
		Layer:   LayerAgent,
		Variant: uint8(a.Role),
		Team:    a.Team,
		Leader:  a.Role == RoleLeader,
		Player:  a.Player,
	}
}

func (s StructureSnapshot) MinimapShape() MinimapShape {
	return MinimapShape{X: s.X, Y: s.Y, W: s.Size, H: s.Size, Layer: LayerStructure, Variant: uint8(s.Kind)}
}

func (o ObstacleSnapshot) MinimapShape() MinimapShape {
	return MinimapShape{X: o.X, Y: o.Y, W: o.W, H: o.H, Layer: LayerTerrain, Variant: uint8(o.Kind)}
}

// Pickup snapshots are stored by center.
func (p PickupSnapshot) MinimapShape() MinimapShape {
	half := PickupSize / 2.0
	return MinimapShape{X: p.X - half, Y: p.Y - half, W: PickupSize, H: PickupSize, Layer: LayerPickup, Variant: uint8(p.Tier)}
}

// Drawables yields every minimap entity back to front.
func (s *Snapshot) Drawables() iter.Seq[MinimapDrawable] {
	return func(yield func(MinimapDrawable) bool) {
		for _, o := range s.Obstacles {
			if !yield(o) {
				return
			}
		}
		for _, st := range s.Structures {
			if !yield(st) {
				return
			}
		}
		for _, p := range s.Pickups {
			if !yield(p) {
				return
			}
		}
		// Leaders last so they stay visible inside their swarm.
		for _, a := range s.Agents {
			if a.Role != RoleLeader && !yield(a) {
				return
			}
		}
		for _, a := range s.Agents {
			if a.Role == RoleLeader && !yield(a) {
				return
			}
		}
	}
}
