package game

import (
	"horde/internal/game/spatial"
)

// collectPickups lets the first eligible agent within the collect radius of
// each pickup consume it:
//
//   - low tier spawns a level-1 follower for the consumer's leader
//   - mid tier promotes a level-1 melee follower to level 2
//   - high tier promotes a level-2 melee follower to level 3
func (w *World) collectPickups() {
	r := w.cfg.Combat.PickupRadius
	n := 0
	for _, p := range w.pickups {
		if w.tryConsume(p, r) {
			w.grid.Remove(p.ref())
			delete(w.pickupByID, p.ID)
			continue
		}
		w.pickups[n] = p
		n++
	}
	clear(w.pickups[n:])
	w.pickups = w.pickups[:n]
}

func (w *World) tryConsume(p *Pickup, r float64) bool {
	px, py := p.Center()
	// Own buffer: spawning a follower below mutates the index mid-scan.
	w.pickupScratch = w.grid.QueryRegion(w.pickupScratch[:0], around(px, py, r))
	candidates := w.pickupScratch
	for _, ref := range candidates {
		if ref.Kind != spatial.KindAgent {
			continue
		}
		a, ok := w.agentByID[AgentID(ref.ID)]
		if !ok || !a.Alive() || !eligible(a, p.Tier) || !w.hasLiveLeader(a) {
			continue
		}
		ax, ay := a.Center()
		if dist(ax, ay, px, py) >= r {
			continue
		}
		w.consume(a, p.Tier)
		return true
	}
	return false
}

// hasLiveLeader reports whether a follower's leader is still alive. Leaders
// count as their own.
func (w *World) hasLiveLeader(a *Agent) bool {
	if a.IsLeader() {
		return true
	}
	leader, ok := w.agentByID[a.LeaderID]
	return ok && leader.Alive()
}

func (w *World) consume(a *Agent, t Tier) {
	switch t {
	case TierLow:
		if leader, ok := w.agentByID[a.LeaderID]; ok {
			w.spawnFollowerNear(leader)
		}
	case TierMid, TierHigh:
		w.promote(a)
	}
}

// promote raises a melee follower one level and grows its box.
func (w *World) promote(a *Agent) {
	a.Level++
	size := followerSize(w.cfg.Agent.BaseSize, a.Role, a.Level)
	a.Resize(size, size)
	w.syncAgent(a)
}
