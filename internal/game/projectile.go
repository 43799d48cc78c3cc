package game

import (
	"math"

	"horde/internal/config"
	"horde/internal/game/spatial"
)

// MaxProjectiles is a hard cap on live projectiles; volleys beyond it are
// dropped.
const MaxProjectiles = 512

// Projectile is an arrow on a parabolic arc. X, Y is the ground-projected
// position and Z the height above it. Velocities are per nominal frame.
type Projectile struct {
	ID     uint32
	Owner  AgentID
	Team   int
	Target spatial.Ref
	Damage float64

	X, Y, Z    float64
	VX, VY, VZ float64
	Rotation   float64 // Heading on the ground plane (radians)
	Flight     float64 // Planned flight time in nominal frames

	Grounded    bool
	GroundedFor float64 // ms since landing
	Expired     bool

	// Trail positions (ring buffer for efficiency)
	TrailX   [4]float64
	TrailY   [4]float64
	TrailIdx int
}

// NewProjectile aims from (ox, oy) at (tx, ty). The aim point is jittered by
// up to cfg.Deviation; flight time grows with distance from a fixed floor,
// and the vertical launch speed is solved so the arc starting at
// LaunchHeight reaches the ground after exactly that many nominal frames.
func NewProjectile(cfg config.ProjectileConfig, jitterAngle, jitter float64, ox, oy, tx, ty float64) *Projectile {
	tx += math.Cos(jitterAngle) * jitter * cfg.Deviation
	ty += math.Sin(jitterAngle) * jitter * cfg.Deviation
	dx, dy := tx-ox, ty-oy
	d := math.Hypot(dx, dy)

	t := math.Max(cfg.MinFlightTicks, d*cfg.TicksPerUnit+cfg.FlightPadTicks)
	return &Projectile{
		X:        ox,
		Y:        oy,
		Z:        cfg.LaunchHeight,
		VX:       dx / t,
		VY:       dy / t,
		VZ:       (0.5*cfg.Gravity*t*t - cfg.LaunchHeight) / t,
		Rotation: math.Atan2(dy, dx),
		Flight:   t,
	}
}

// Advance integrates one step of dt ms (semi-implicit: vertical velocity
// first, then height). It reports whether the projectile touched down on
// this step.
func (p *Projectile) Advance(cfg config.ProjectileConfig, frameMs, dt float64) (landed bool) {
	if p.Expired {
		return false
	}
	if p.Grounded {
		p.GroundedFor += dt
		if p.GroundedFor >= cfg.GroundDwellMs {
			p.Expired = true
		}
		return false
	}

	p.TrailX[p.TrailIdx] = p.X
	p.TrailY[p.TrailIdx] = p.Y
	p.TrailIdx = (p.TrailIdx + 1) % len(p.TrailX)

	k := dt / frameMs
	p.X += p.VX * k
	p.Y += p.VY * k
	p.VZ -= cfg.Gravity * k
	p.Z += p.VZ * k
	if p.Z <= 0 {
		p.Z = 0
		p.VX, p.VY = 0, 0
		p.Grounded = true
		p.GroundedFor = 0
		return true
	}
	return false
}

// fireProjectile launches an arrow from a toward target.
func (w *World) fireProjectile(a *Agent, target spatial.Ref, targetBody Body, damage float64) {
	if len(w.projectiles) >= MaxProjectiles {
		return
	}
	ox, oy := a.Center()
	tx, ty := targetBody.Center()
	p := NewProjectile(w.cfg.Projectile, w.rng.Float64()*2*math.Pi, w.rng.Float64(), ox, oy, tx, ty)
	p.ID = w.allocID()
	p.Owner = a.ID
	p.Team = a.Team
	p.Target = target
	p.Damage = damage
	w.projectiles = append(w.projectiles, p)
	w.emit(CombatArrowFired, a, target, 0)
}

// advanceProjectiles moves every airborne projectile and resolves impacts.
// While airborne, including the step that grounds it, a projectile whose
// ground position comes within the hit radius of its live target's center
// deals damage once and expires. Grounded misses linger for the dwell time.
func (w *World) advanceProjectiles(dt float64) {
	pc := w.cfg.Projectile
	n := 0
	for _, p := range w.projectiles {
		wasAirborne := !p.Grounded
		p.Advance(pc, w.cfg.World.FrameMs, dt)

		if wasAirborne {
			if body, _, ok := w.resolveTarget(p.Target); ok {
				tx, ty := body.Center()
				if dist(p.X, p.Y, tx, ty) < pc.HitRadius {
					w.applyDamage(p.Target, p.Damage, p.Team)
					p.Expired = true
					if owner, ok := w.agentByID[p.Owner]; ok {
						w.emit(CombatArrowHit, owner, p.Target, p.Damage)
					} else if w.sink != nil {
						w.sink.OnCombat(CombatEvent{
							Kind: CombatArrowHit, Frame: w.frame, X: p.X, Y: p.Y,
							Actor: p.Owner, Role: RoleRanged, Level: 1, Team: p.Team,
							Target: p.Target, Damage: p.Damage,
						})
					}
				}
			}
		}

		if !p.Expired {
			w.projectiles[n] = p
			n++
		}
	}
	clear(w.projectiles[n:])
	w.projectiles = w.projectiles[:n]
}

// ProjectileSnapshot is an immutable copy of projectile state for rendering
type ProjectileSnapshot struct {
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	Z          float64    `json:"z"`
	Rotation   float64    `json:"rotation"`
	Grounded   bool       `json:"grounded"`
	Team       int        `json:"team"`
	TrailX     [4]float64 `json:"trailX"`
	TrailY     [4]float64 `json:"trailY"`
	TrailCount int        `json:"trailCount"`
}

// GetTrailPoints returns the trail positions in order (oldest to newest)
func (p *Projectile) GetTrailPoints() (xs, ys [4]float64, count int) {
	start := p.TrailIdx
	for i := range xs {
		idx := (start + i) % len(xs)
		xs[i] = p.TrailX[idx]
		ys[i] = p.TrailY[idx]
	}
	return xs, ys, len(xs)
}

// ToSnapshot creates an immutable snapshot for rendering
func (p *Projectile) ToSnapshot() ProjectileSnapshot {
	xs, ys, count := p.GetTrailPoints()
	return ProjectileSnapshot{
		X:          p.X,
		Y:          p.Y,
		Z:          p.Z,
		Rotation:   p.Rotation,
		Grounded:   p.Grounded,
		Team:       p.Team,
		TrailX:     xs,
		TrailY:     ys,
		TrailCount: count,
	}
}
