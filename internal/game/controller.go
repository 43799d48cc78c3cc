package game

import (
	"math"

	"horde/internal/game/spatial"
)

// updateAgents runs movement and combat for every live agent, then syncs
// each agent's index membership before moving on to the next.
func (w *World) updateAgents(dt float64, in Input) {
	// Followers spawned mid-pass (none today) would wait for next frame.
	n := len(w.agents)
	for i := 0; i < n; i++ {
		a := w.agents[i]
		if !a.Alive() {
			continue
		}
		a.Slash.update(dt)

		switch a.Role {
		case RoleLeader:
			if a.Player {
				w.updatePlayerLeader(a, dt, in)
			} else {
				w.updateAILeader(a, dt)
			}
		case RoleMelee:
			w.updateMelee(a, dt)
		case RoleRanged:
			w.updateRanged(a, dt)
		}
		w.syncAgent(a)
	}
}

// step returns the distance a covers in dt.
func (w *World) step(a *Agent, dt float64) float64 {
	return a.Speed * dt / w.cfg.World.FrameMs
}

// moveToward walks a's center toward (tx, ty) without overshooting and
// reports whether it moved.
func (w *World) moveToward(a *Agent, tx, ty, dt float64) bool {
	cx, cy := a.Center()
	dx, dy := tx-cx, ty-cy
	d := math.Hypot(dx, dy)
	if d == 0 {
		return false
	}
	s := math.Min(w.step(a, dt), d)
	mx := dx / d * s
	a.face(mx)
	a.X += mx
	a.Y += dy / d * s
	return true
}

// moveAlong moves a by one step along the unit vector (ux, uy).
func (w *World) moveAlong(a *Agent, ux, uy, dt float64) {
	s := w.step(a, dt)
	a.face(ux * s)
	a.X += ux * s
	a.Y += uy * s
}

// followerPreamble handles the checks shared by both follower kinds and
// reports whether the regular AI should run this frame.
func (w *World) followerPreamble(a *Agent, dt float64) bool {
	leader, ok := w.agentByID[a.LeaderID]
	if !ok || !leader.Alive() {
		// Orphans cannot exist; retire them through normal death cleanup.
		a.HP = 0
		a.State = StateDead
		return false
	}
	cx, cy := a.Center()
	lx, ly := leader.Center()
	if !w.zone.Contains(cx, cy) && w.zone.Contains(lx, ly) {
		w.moveToward(a, w.zone.Current.X, w.zone.Current.Y, dt)
		a.State = StateFollowing
		a.cancelWindup()
		return false
	}
	return true
}

// updateMelee drives a melee follower: approach the selected point, wind up
// when within reach of an attack target.
func (w *World) updateMelee(a *Agent, dt float64) {
	if !w.followerPreamble(a, dt) {
		return
	}
	if a.State == StateMeleeWindup {
		w.advanceWindup(a, dt)
		return
	}

	dec := w.SelectTarget(a)
	switch dec.Action {
	case ActionAttack:
		if w.inMeleeReach(a, dec, w.cfg.Combat.MeleeThreshold) {
			w.startWindup(a, dec)
			w.advanceWindup(a, dt)
			return
		}
		w.moveToward(a, dec.X, dec.Y, dt)
		a.State = StatePursuing
	case ActionCollect:
		w.moveToward(a, dec.X, dec.Y, dt)
		a.State = StatePursuing
	case ActionFollow:
		w.approach(a, dec, dt)
		a.State = StateFollowing
	default:
		a.State = StateFollowing
	}
}

// updateRanged drives a ranged follower: shoot the nearest valid target in
// range whenever the cooldown allows, otherwise fall back to the selector.
func (w *World) updateRanged(a *Agent, dt float64) {
	a.rangedElapsed += dt
	if !w.followerPreamble(a, dt) {
		return
	}
	cc := w.cfg.Combat
	cx, cy := a.Center()

	if target, ok := w.nearestRangedTarget(a.Team, cx, cy, cc.RangedRange); ok {
		a.State = StateRangedCooldown
		if a.rangedElapsed < cc.RangedCooldownMs {
			return
		}
		body, _, _ := w.resolveTarget(target)
		tx, _ := body.Center()
		a.face(tx - cx)
		w.fireProjectile(a, target, body, cc.ArrowDamage)
		a.rangedElapsed = 0
		return
	}

	dec := w.SelectTarget(a)
	switch dec.Action {
	case ActionNone:
		a.State = StateFollowing
	case ActionFollow:
		w.approach(a, dec, dt)
		a.State = StateFollowing
	default:
		w.moveToward(a, dec.X, dec.Y, dt)
		a.State = StatePursuing
	}
}

// approach moves toward a follow point, stopping inside the deadband so idle
// followers do not jitter around their formation slot.
func (w *World) approach(a *Agent, dec Decision, dt float64) {
	cx, cy := a.Center()
	if dist(cx, cy, dec.X, dec.Y) <= w.cfg.Combat.FollowDeadband {
		return
	}
	w.moveToward(a, dec.X, dec.Y, dt)
}

// inMeleeReach compares center distance against the threshold, widened by
// how much larger the target is than a standard agent so big boxes can be
// hit from their edge.
func (w *World) inMeleeReach(a *Agent, dec Decision, threshold float64) bool {
	body, _, ok := w.resolveTarget(dec.Target)
	if !ok {
		return false
	}
	reach := threshold + math.Max(0, (body.W-w.cfg.Agent.BaseSize)/2)
	cx, cy := a.Center()
	return dist(cx, cy, dec.X, dec.Y) <= reach
}

func (w *World) startWindup(a *Agent, dec Decision) {
	cx, _ := a.Center()
	a.face(dec.X - cx)
	a.State = StateMeleeWindup
	a.windupLeft = w.cfg.Combat.MeleeWindupMs
	a.windupHit = false
	a.windupOn = dec.Target
}

func (a *Agent) cancelWindup() {
	a.windupLeft = 0
	a.windupHit = false
	a.windupOn = spatial.Ref{}
}

// advanceWindup counts the windup down. Damage lands once when the
// remaining time drops below the impact mark, only if the captured target
// is still alive. On expiry the agent returns to target selection.
func (w *World) advanceWindup(a *Agent, dt float64) {
	cc := w.cfg.Combat
	a.windupLeft -= dt
	if !a.windupHit && a.windupLeft < cc.MeleeImpactMs {
		a.windupHit = true
		cx, cy := a.Center()
		angle := math.Atan2(a.lastDirY, a.lastDirX)
		if body, _, ok := w.resolveTarget(a.windupOn); ok {
			tx, ty := body.Center()
			angle = math.Atan2(ty-cy, tx-cx)
		}
		if w.applyDamage(a.windupOn, cc.MeleeDamage, a.Team) {
			w.emit(CombatMelee, a, a.windupOn, cc.MeleeDamage)
		}
		if !a.Slash.Active {
			a.Slash = newSlash(cx, cy, angle)
		}
	}
	if a.windupLeft <= 0 {
		a.cancelWindup()
		a.State = StateFollowing
	}
}

// tickAbilities advances leader cooldowns and the shield timer.
func (w *World) tickAbilities(a *Agent, dt float64) {
	flash := w.cfg.Ability.ReadyFlashMs
	a.Dash.tick(dt, flash)
	a.Shield.tick(dt, flash)
	if a.ShieldActive {
		a.shieldLeft -= dt
		if a.shieldLeft <= 0 {
			a.ShieldActive = false
			a.shieldLeft = 0
		}
	}
}

// updatePlayerLeader applies input: normalized movement, dash along the last
// heading, shield activation, and automatic melee on adjacent enemies.
func (w *World) updatePlayerLeader(a *Agent, dt float64, in Input) {
	ab := w.cfg.Ability
	w.tickAbilities(a, dt)

	if mag := math.Hypot(in.MoveX, in.MoveY); mag > 0 {
		ux, uy := in.MoveX/mag, in.MoveY/mag
		a.lastDirX, a.lastDirY = ux, uy
		w.moveAlong(a, ux, uy, dt)
	}

	dashed := false
	if in.Dash && a.Dash.Ready() && (a.lastDirX != 0 || a.lastDirY != 0) {
		a.X += a.lastDirX * ab.DashDistance
		a.Y += a.lastDirY * ab.DashDistance
		a.Dash.use()
		dashed = true
	}
	if in.Shield && a.Shield.Ready() && !a.ShieldActive {
		a.ShieldActive = true
		a.shieldLeft = ab.ShieldDurationMs
		a.Shield.use()
	}

	w.leaderMelee(a, dt, false)
	if a.State != StateMeleeWindup {
		if dashed || a.ShieldActive {
			a.State = StateAbilityActive
		} else {
			a.State = StateFollowing
		}
	}
}

// leaderMelee advances or starts a leader's melee windup. With pursue set
// the leader walks toward out-of-reach attack targets. It reports whether
// the leader had an attack target this frame.
func (w *World) leaderMelee(a *Agent, dt float64, pursue bool) bool {
	if a.State == StateMeleeWindup {
		w.advanceWindup(a, dt)
		return true
	}
	dec := w.SelectTarget(a)
	if dec.Action != ActionAttack {
		return false
	}
	if w.inMeleeReach(a, dec, w.cfg.Combat.LeaderMeleeRange) {
		w.startWindup(a, dec)
		w.advanceWindup(a, dt)
		return true
	}
	if pursue {
		w.moveToward(a, dec.X, dec.Y, dt)
		a.State = StatePursuing
	}
	return true
}

// updateAILeader fights adjacent enemies, otherwise dodges projectiles and
// the zone edge, otherwise wanders toward a random idle point.
func (w *World) updateAILeader(a *Agent, dt float64) {
	w.tickAbilities(a, dt)
	if w.leaderMelee(a, dt, true) {
		return
	}
	a.State = StateFollowing

	ab := w.cfg.Ability
	cx, cy := a.Center()
	var vx, vy float64
	for _, p := range w.projectiles {
		if p.Team == a.Team || p.Grounded {
			continue
		}
		dx, dy := cx-p.X, cy-p.Y
		d := math.Hypot(dx, dy)
		if d > 0 && d < ab.ThreatRadius {
			weight := (ab.ThreatRadius - d) / ab.ThreatRadius
			vx += dx / d * weight
			vy += dy / d * weight
		}
	}
	z := w.zone.Current
	dx, dy := z.X-cx, z.Y-cy
	if d := math.Hypot(dx, dy); d > 0 && d > z.R-ab.EdgeMargin {
		weight := (d - (z.R - ab.EdgeMargin)) / ab.EdgeMargin
		vx += dx / d * weight
		vy += dy / d * weight
	}

	if mag := math.Hypot(vx, vy); mag > ab.DodgeThreshold {
		a.hasIdle = false
		w.moveAlong(a, vx/mag, vy/mag, dt)
		return
	}

	if !a.hasIdle || dist(cx, cy, a.idleX, a.idleY) < ab.IdleArrival {
		a.idleX = w.rng.Float64() * w.cfg.World.Width
		a.idleY = w.rng.Float64() * w.cfg.World.Height
		a.hasIdle = true
	}
	w.moveToward(a, a.idleX, a.idleY, dt)
}
