package game

import (
	"math"

	"horde/internal/game/spatial"
)

// Action is the kind of decision the target selector returns.
type Action uint8

const (
	ActionNone Action = iota
	ActionFollow
	ActionAttack
	ActionCollect
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionFollow:
		return "follow"
	case ActionAttack:
		return "attack"
	case ActionCollect:
		return "collect"
	default:
		return "none"
	}
}

// Decision is what an agent should approach this frame. X, Y is the point
// to move toward; Target names the leader, enemy or pickup involved.
type Decision struct {
	Action Action
	X, Y   float64
	Target spatial.Ref
}

// SelectTarget runs the priority heuristic for a, first match wins:
//
//  1. leash: too far from the leader, follow it
//  2. defend: nearest enemy within the protect radius of the leader
//  3. nearest enemy agent within detection radius
//  4. nearest eligible pickup within detection radius
//  5. nearest structure within detection radius
//  6. cached formation offset around the leader
//
// Enemy agents are only considered inside the safe zone. Pickups and
// structures are zone-filtered only while the leader itself is inside.
// Distance ties go to whichever candidate the index returned first, so the
// choice among exactly equidistant candidates is not deterministic.
func (w *World) SelectTarget(a *Agent) Decision {
	leader, ok := w.agentByID[a.LeaderID]
	if !ok {
		return Decision{}
	}
	cc := w.cfg.Combat
	ax, ay := a.Center()
	lx, ly := leader.Center()

	if dist(ax, ay, lx, ly) > cc.LeashDistance {
		return Decision{Action: ActionFollow, X: lx, Y: ly, Target: leader.ref()}
	}

	if e := w.nearestEnemy(leader.Team, lx, ly, cc.ProtectRadius); e != nil {
		ex, ey := e.Center()
		return Decision{Action: ActionAttack, X: ex, Y: ey, Target: e.ref()}
	}

	if e := w.nearestEnemy(a.Team, ax, ay, cc.DetectionRadius); e != nil {
		ex, ey := e.Center()
		return Decision{Action: ActionAttack, X: ex, Y: ey, Target: e.ref()}
	}

	leaderInside := w.zone.Contains(lx, ly)

	if p := w.nearestPickup(a, ax, ay, cc.DetectionRadius, leaderInside); p != nil {
		px, py := p.Center()
		return Decision{Action: ActionCollect, X: px, Y: py, Target: p.ref()}
	}

	if s := w.nearestStructure(ax, ay, cc.DetectionRadius, leaderInside); s != nil {
		sx, sy := s.Center()
		return Decision{Action: ActionAttack, X: sx, Y: sy, Target: s.ref()}
	}

	if a.IsLeader() {
		return Decision{}
	}
	dx, dy := w.formationOffset(a, leader)
	return Decision{Action: ActionFollow, X: lx + dx, Y: ly + dy, Target: leader.ref()}
}

// nearestEnemy finds the closest live agent of another team whose center
// lies within r of (cx, cy) and inside the safe zone. The search is a
// bounded index query centered on (cx, cy).
func (w *World) nearestEnemy(team int, cx, cy, r float64) *Agent {
	var best *Agent
	bestD := math.Inf(1)
	w.scratch = w.grid.QueryRegion(w.scratch[:0], around(cx, cy, r))
	for _, ref := range w.scratch {
		if ref.Kind != spatial.KindAgent {
			continue
		}
		o, ok := w.agentByID[AgentID(ref.ID)]
		if !ok || o.Team == team || !o.Alive() {
			continue
		}
		ox, oy := o.Center()
		if !w.zone.Contains(ox, oy) {
			continue
		}
		if d := dist(cx, cy, ox, oy); d < r && d < bestD {
			best, bestD = o, d
		}
	}
	return best
}

func (w *World) nearestPickup(a *Agent, cx, cy, r float64, zoneFilter bool) *Pickup {
	var best *Pickup
	bestD := math.Inf(1)
	w.scratch = w.grid.QueryRegion(w.scratch[:0], around(cx, cy, r))
	for _, ref := range w.scratch {
		if ref.Kind != spatial.KindPickup {
			continue
		}
		p, ok := w.pickupByID[ref.ID]
		if !ok || !eligible(a, p.Tier) {
			continue
		}
		px, py := p.Center()
		if zoneFilter && !w.zone.Contains(px, py) {
			continue
		}
		if d := dist(cx, cy, px, py); d < r && d < bestD {
			best, bestD = p, d
		}
	}
	return best
}

func (w *World) nearestStructure(cx, cy, r float64, zoneFilter bool) *Structure {
	var best *Structure
	bestD := math.Inf(1)
	w.scratch = w.grid.QueryRegion(w.scratch[:0], around(cx, cy, r))
	for _, ref := range w.scratch {
		if ref.Kind != spatial.KindStructure {
			continue
		}
		s, ok := w.structByID[ref.ID]
		if !ok || s.HP <= 0 {
			continue
		}
		sx, sy := s.Center()
		if zoneFilter && !w.zone.Contains(sx, sy) {
			continue
		}
		if d := dist(cx, cy, sx, sy); d < r && d < bestD {
			best, bestD = s, d
		}
	}
	return best
}

// nearestRangedTarget finds the closest enemy agent or structure a ranged
// follower can shoot from (cx, cy). Both must be inside the safe zone.
func (w *World) nearestRangedTarget(team int, cx, cy, r float64) (spatial.Ref, bool) {
	var best spatial.Ref
	found := false
	bestD := math.Inf(1)
	w.scratch = w.grid.QueryRegion(w.scratch[:0], around(cx, cy, r))
	for _, ref := range w.scratch {
		body, t, ok := w.resolveTarget(ref)
		if !ok || (ref.Kind == spatial.KindAgent && t == team) {
			continue
		}
		tx, ty := body.Center()
		if !w.zone.Contains(tx, ty) {
			continue
		}
		if d := dist(cx, cy, tx, ty); d < r && d < bestD {
			best, bestD, found = ref, d, true
		}
	}
	return best, found
}

// formationOffset returns a's cached standoff from its leader, sampling a
// new one if needed. Candidates lie within ±45° of the follower's current
// bearing from the leader, between the minimum radius and a radius that
// grows with follower count, and are rejected if closer than the minimum
// spacing to any sibling's cached offset. After the last attempt the final
// candidate is kept regardless.
func (w *World) formationOffset(a, leader *Agent) (float64, float64) {
	if a.hasOffset {
		return a.offsetX, a.offsetY
	}
	fc := w.cfg.Formation

	var siblings []*Agent
	for _, o := range w.agents {
		if o.LeaderID == leader.ID && !o.IsLeader() {
			siblings = append(siblings, o)
		}
	}
	outer := fc.MinRadius + float64(len(siblings))*fc.RadiusPerUnit

	ax, ay := a.Center()
	lx, ly := leader.Center()
	bearing := math.Atan2(ay-ly, ax-lx)

	var cx, cy float64
	for attempt := 0; attempt < fc.Attempts; attempt++ {
		angle := bearing - math.Pi/4 + w.rng.Float64()*math.Pi/2
		radius := fc.MinRadius + w.rng.Float64()*(outer-fc.MinRadius)
		cx, cy = radius*math.Cos(angle), radius*math.Sin(angle)
		if w.spacedFrom(a, siblings, cx, cy, fc.MinSpacing) {
			break
		}
	}
	a.offsetX, a.offsetY, a.hasOffset = cx, cy, true
	return cx, cy
}

func (w *World) spacedFrom(self *Agent, siblings []*Agent, x, y, spacing float64) bool {
	for _, s := range siblings {
		if s == self || !s.hasOffset {
			continue
		}
		if dist(x, y, s.offsetX, s.offsetY) < spacing {
			return false
		}
	}
	return true
}
