package game

import "math"

// SlashDuration is the lifetime of a melee slash visual in ms.
const SlashDuration = 500

// slashRotationOffset aligns the slash sprite with the attack direction.
const slashRotationOffset = 3 * math.Pi / 4

// SlashEffect is the per-agent melee visual descriptor. The core advances
// it; renderers only read it.
type SlashEffect struct {
	Active    bool
	X, Y      float64
	Rotation  float64
	Alpha     float64
	Scale     float64
	Remaining float64 // ms
}

func newSlash(x, y, angle float64) SlashEffect {
	return SlashEffect{
		Active:    true,
		X:         x,
		Y:         y,
		Rotation:  angle - slashRotationOffset,
		Alpha:     0.5,
		Scale:     0.5,
		Remaining: SlashDuration,
	}
}

// update fades the slash: alpha 0.5→0 over the whole lifetime, scale grows
// 0.5→1.2 in the first half and settles to 0.8 in the second.
func (s *SlashEffect) update(dt float64) {
	if !s.Active {
		return
	}
	s.Remaining -= dt
	if s.Remaining <= 0 {
		*s = SlashEffect{}
		return
	}
	progress := 1 - s.Remaining/SlashDuration
	s.Alpha = 0.5 * (1 - progress)
	if progress < 0.5 {
		s.Scale = 0.5 + 1.4*progress
	} else {
		s.Scale = 1.2 - 0.8*(progress-0.5)
	}
}

// EffectKind classifies short-lived world effects.
type EffectKind uint8

const (
	EffectHit EffectKind = iota
	EffectDeath
	EffectRubble
)

// String returns the effect name.
func (k EffectKind) String() string {
	switch k {
	case EffectHit:
		return "hit"
	case EffectDeath:
		return "death"
	case EffectRubble:
		return "rubble"
	default:
		return "unknown"
	}
}

// Effect is a transient world-space marker with an explicit lifetime.
type Effect struct {
	Kind     EffectKind
	X, Y     float64
	Age      float64 // ms since spawn
	Duration float64 // ms
}

// Intensity falls linearly from 1 to 0 over the lifetime.
func (e Effect) Intensity() float64 {
	if e.Duration <= 0 {
		return 0
	}
	return clamp(1-e.Age/e.Duration, 0, 1)
}

var effectDurations = [...]float64{
	EffectHit:    200,
	EffectDeath:  600,
	EffectRubble: 1500,
}

// EffectBuffer is a bounded arena of effects, pruned in place once per frame.
type EffectBuffer struct {
	items []Effect
	limit int
}

// NewEffectBuffer preallocates room for limit effects.
func NewEffectBuffer(limit int) *EffectBuffer {
	return &EffectBuffer{items: make([]Effect, 0, limit), limit: limit}
}

// Spawn adds an effect, dropping the oldest when full.
func (b *EffectBuffer) Spawn(kind EffectKind, x, y float64) {
	if b.limit <= 0 {
		return
	}
	e := Effect{Kind: kind, X: x, Y: y, Duration: effectDurations[kind]}
	if len(b.items) >= b.limit {
		copy(b.items, b.items[1:])
		b.items[len(b.items)-1] = e
		return
	}
	b.items = append(b.items, e)
}

// Advance ages every effect and drops the expired ones.
func (b *EffectBuffer) Advance(dt float64) {
	n := 0
	for _, e := range b.items {
		e.Age += dt
		if e.Age < e.Duration {
			b.items[n] = e
			n++
		}
	}
	b.items = b.items[:n]
}

// Items returns the live effects. The slice is reused after Advance.
func (b *EffectBuffer) Items() []Effect {
	return b.items
}

// MarshalText encodes the kind by name.
func (k EffectKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }
