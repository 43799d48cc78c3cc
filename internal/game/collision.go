package game

import (
	"math"

	"horde/internal/game/spatial"
)

// pairKey is an order-independent key for an agent pair.
func pairKey(a, b AgentID) uint64 {
	if a > b {
		a, b = b, a
	}
	return uint64(a)<<32 | uint64(b)
}

// separation returns the unit vector from a's center to b's center and the
// center distance. Coincident centers get a random unit vector instead.
func (w *World) separation(a, b Body) (ux, uy, d float64) {
	ax, ay := a.Center()
	bx, by := b.Center()
	dx, dy := bx-ax, by-ay
	d = math.Hypot(dx, dy)
	if d == 0 {
		angle := w.rng.Float64() * 2 * math.Pi
		return math.Cos(angle), math.Sin(angle), 0
	}
	return dx / d, dy / d, d
}

// resolveAgentCollisions pushes intersecting agents of different leaders
// apart, each by half the overlap along the line between their centers.
// Each pair is resolved at most once per frame.
func (w *World) resolveAgentCollisions() {
	clear(w.visited)
	for _, a := range w.agents {
		if !a.Alive() {
			continue
		}
		w.scratch = w.grid.QueryNeighbors(w.scratch[:0], a.ref())
		for _, ref := range w.scratch {
			if ref.Kind != spatial.KindAgent {
				continue
			}
			b, ok := w.agentByID[AgentID(ref.ID)]
			if !ok || !b.Alive() || a.LeaderID == b.LeaderID {
				continue
			}
			key := pairKey(a.ID, b.ID)
			if _, done := w.visited[key]; done {
				continue
			}
			w.visited[key] = struct{}{}
			if !a.Intersects(b.Body) {
				continue
			}
			ux, uy, d := w.separation(a.Body, b.Body)
			overlap := (a.W/2 + b.W/2) - d
			if overlap <= 0 {
				continue
			}
			push := overlap / 2
			a.X -= ux * push
			a.Y -= uy * push
			b.X += ux * push
			b.Y += uy * push
			w.syncAgent(a)
			w.syncAgent(b)
		}
	}
}

// resolveStructureCollisions pushes non-ranged agents fully out of any
// structure they intersect. Ranged followers walk through buildings.
func (w *World) resolveStructureCollisions() {
	for _, a := range w.agents {
		if !a.Alive() || a.Role == RoleRanged {
			continue
		}
		w.scratch = w.grid.QueryNeighbors(w.scratch[:0], a.ref())
		for _, ref := range w.scratch {
			if ref.Kind != spatial.KindStructure {
				continue
			}
			s, ok := w.structByID[ref.ID]
			if !ok {
				continue
			}
			w.pushOut(a, s.Body, s.W/2)
		}
	}
}

// resolveObstacleCollisions pushes agents out of terrain. The smaller side
// of the obstacle stands in for its radius so long strips do not fling
// agents across their full length.
func (w *World) resolveObstacleCollisions() {
	for _, a := range w.agents {
		if !a.Alive() {
			continue
		}
		w.scratch = w.grid.QueryNeighbors(w.scratch[:0], a.ref())
		for _, ref := range w.scratch {
			if ref.Kind != spatial.KindObstacle {
				continue
			}
			o, ok := w.obstByID[ref.ID]
			if !ok {
				continue
			}
			w.pushOut(a, o.Body, math.Min(o.W, o.H)/2)
		}
	}
}

// pushOut moves a away from a static body by the full overlap, measured
// against the given half-extent of the static body.
func (w *World) pushOut(a *Agent, static Body, halfExtent float64) {
	if !a.Intersects(static) {
		return
	}
	ux, uy, d := w.separation(static, a.Body)
	overlap := (a.W/2 + halfExtent) - d
	if overlap <= 0 {
		return
	}
	a.X += ux * overlap
	a.Y += uy * overlap
	w.syncAgent(a)
}

// applySeparation nudges every agent away from the averaged repulsion of
// all agents within the separation radius, of any team.
func (w *World) applySeparation() {
	cc := w.cfg.Combat
	r := cc.SeparationRadius
	for _, a := range w.agents {
		ax, ay := a.Center()
		var fx, fy float64
		count := 0
		w.scratch = w.grid.QueryRegion(w.scratch[:0], around(ax, ay, r))
		for _, ref := range w.scratch {
			if ref.Kind != spatial.KindAgent || ref.ID == uint32(a.ID) {
				continue
			}
			b, ok := w.agentByID[AgentID(ref.ID)]
			if !ok {
				continue
			}
			bx, by := b.Center()
			dx, dy := ax-bx, ay-by
			d := math.Hypot(dx, dy)
			if d > 0 && d < r {
				fx += dx / d * (r - d)
				fy += dy / d * (r - d)
				count++
			}
		}
		if count == 0 {
			continue
		}
		a.X += fx / float64(count) * cc.SeparationStrength
		a.Y += fy / float64(count) * cc.SeparationStrength
		w.syncAgent(a)
	}
}
