package game

import (
	"math"
	"math/rand"

	"horde/internal/config"
)

// ZonePhase is the safe-zone state.
type ZonePhase uint8

const (
	PhaseDelay ZonePhase = iota
	PhaseShrinking
	PhasePause
	PhaseMoving
)

// String returns the phase name.
func (p ZonePhase) String() string {
	switch p {
	case PhaseDelay:
		return "delay"
	case PhaseShrinking:
		return "shrinking"
	case PhasePause:
		return "pause"
	case PhaseMoving:
		return "moving"
	default:
		return "unknown"
	}
}

// MarshalText encodes the phase by name.
func (p ZonePhase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Circle is a center and radius.
type Circle struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	R float64 `json:"r"`
}

// Contains reports whether (x, y) lies on or inside the circle.
func (c Circle) Contains(x, y float64) bool {
	return dist(x, y, c.X, c.Y) <= c.R
}

// SafeZone is the shrinking play area:
//
//	Delay → Shrinking → Pause → {Shrinking | Moving} → Pause → …
//
// Transitions depend only on elapsed time and the current/target circles;
// only the choice of each new target is random. The radius never grows.
type SafeZone struct {
	Current Circle    `json:"current"`
	Target  Circle    `json:"target"`
	Phase   ZonePhase `json:"phase"`
	Timer   float64   `json:"timer"` // ms spent in Delay or Pause

	cfg            config.ZoneConfig
	worldW, worldH float64
}

// NewSafeZone starts in Delay with the starting circle at the world center.
func NewSafeZone(cfg config.ZoneConfig, worldW, worldH float64) SafeZone {
	start := Circle{X: worldW / 2, Y: worldH / 2, R: cfg.StartRadius}
	return SafeZone{
		Current: start,
		Target:  start,
		Phase:   PhaseDelay,
		cfg:     cfg,
		worldW:  worldW,
		worldH:  worldH,
	}
}

// Contains reports whether (x, y) is inside the current circle.
func (z *SafeZone) Contains(x, y float64) bool {
	return z.Current.Contains(x, y)
}

// Advance moves the zone forward by dt ms and reports whether the phase
// changed.
func (z *SafeZone) Advance(dt float64, rng *rand.Rand) bool {
	switch z.Phase {
	case PhaseDelay:
		z.Timer += dt
		if z.Timer < z.cfg.DelayMs {
			return false
		}
		z.Current = Circle{X: z.worldW / 2, Y: z.worldH / 2, R: z.cfg.StartRadius}
		z.beginShrink(rng)
		return true

	case PhaseShrinking:
		remaining := z.Current.R - z.Target.R
		rate := z.cfg.ShrinkRate * dt
		if rate >= remaining {
			z.arrive()
			return true
		}
		frac := rate / remaining
		z.Current.X += (z.Target.X - z.Current.X) * frac
		z.Current.Y += (z.Target.Y - z.Current.Y) * frac
		z.Current.R -= rate
		return false

	case PhasePause:
		z.Timer += dt
		if z.Timer < z.pauseDuration() {
			return false
		}
		if z.Current.R > z.cfg.MinRadius {
			z.beginShrink(rng)
		} else {
			z.beginMove(rng)
		}
		return true

	case PhaseMoving:
		dx, dy := z.Target.X-z.Current.X, z.Target.Y-z.Current.Y
		d := math.Hypot(dx, dy)
		rate := z.cfg.MoveRate * dt
		if rate >= d {
			z.arrive()
			return true
		}
		z.Current.X += dx / d * rate
		z.Current.Y += dy / d * rate
		return false
	}
	return false
}

// pauseDuration is long while the zone can still shrink, short once it has
// reached the minimum radius.
func (z *SafeZone) pauseDuration() float64 {
	if z.Current.R > z.cfg.MinRadius {
		return z.cfg.LongPauseMs
	}
	return z.cfg.ShortPauseMs
}

// arrive snaps exactly onto the target and pauses.
func (z *SafeZone) arrive() {
	z.Current = z.Target
	z.Phase = PhasePause
	z.Timer = 0
}

func (z *SafeZone) beginShrink(rng *rand.Rand) {
	r := math.Max(z.Current.R*z.cfg.ShrinkFactor, z.cfg.MinRadius)
	z.Target = z.offsetTarget(rng, r)
	z.Phase = PhaseShrinking
	z.Timer = 0
}

func (z *SafeZone) beginMove(rng *rand.Rand) {
	z.Target = z.offsetTarget(rng, z.Current.R)
	z.Phase = PhaseMoving
	z.Timer = 0
}

// offsetTarget picks a circle of radius r whose center is offset from the
// current one by up to ±OffsetFactor/2 of the current radius on each axis,
// kept inside the world.
func (z *SafeZone) offsetTarget(rng *rand.Rand, r float64) Circle {
	span := z.Current.R * z.cfg.OffsetFactor
	return Circle{
		X: clamp(z.Current.X+(rng.Float64()-0.5)*span, 0, z.worldW),
		Y: clamp(z.Current.Y+(rng.Float64()-0.5)*span, 0, z.worldH),
		R: r,
	}
}

// BoundaryDamage is the hp lost over dt ms outside the circle.
func (z *SafeZone) BoundaryDamage(dt float64, shielded bool) float64 {
	dmg := z.cfg.DamagePerMs * dt
	if shielded {
		dmg /= z.cfg.ShieldDivisor
	}
	return dmg
}

// advanceZone steps the zone and damages every agent whose center is
// outside the current circle.
func (w *World) advanceZone(dt float64) {
	if w.zone.Advance(dt, w.rng) {
		z := w.zone
		w.log.Info().
			Str("phase", z.Phase.String()).
			Float64("radius", z.Current.R).
			Float64("target_radius", z.Target.R).
			Uint64("frame", w.frame).
			Msg("🌀 safe zone phase")
		if w.onZone != nil {
			w.onZone(z)
		}
	}

	for _, a := range w.agents {
		if !a.Alive() {
			continue
		}
		cx, cy := a.Center()
		if w.zone.Contains(cx, cy) {
			continue
		}
		a.damage(w.zone.BoundaryDamage(dt, a.ShieldActive))
	}
}
