package game

import (
	"sync/atomic"
	"time"

	"horde/internal/config"
)

// AgentSnapshot is an immutable copy of agent state for rendering
type AgentSnapshot struct {
	ID           AgentID     `json:"id"`
	X            float64     `json:"x"`
	Y            float64     `json:"y"`
	W            float64     `json:"w"`
	H            float64     `json:"h"`
	Team         int         `json:"team"`
	Role         Role        `json:"role"`
	Level        int         `json:"level"`
	HP           float64     `json:"hp"`
	MaxHP        float64     `json:"maxHp"`
	Leader       AgentID     `json:"leader"`
	Faction      Faction     `json:"faction"`
	State        string      `json:"state"`
	Facing       int         `json:"facing"`
	Player       bool        `json:"player,omitempty"`
	ShieldActive bool        `json:"shieldActive,omitempty"`
	DashReady    bool        `json:"dashReady,omitempty"`
	ShieldReady  bool        `json:"shieldReady,omitempty"`
	DashFlash    bool        `json:"dashFlash,omitempty"`
	ShieldFlash  bool        `json:"shieldFlash,omitempty"`
	Slash        *SlashState `json:"slash,omitempty"`
}

// SlashState is the render view of an active melee slash
type SlashState struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
	Alpha    float64 `json:"alpha"`
	Scale    float64 `json:"scale"`
}

// StructureSnapshot is an immutable copy of a building
type StructureSnapshot struct {
	ID    uint32        `json:"id"`
	X     float64       `json:"x"`
	Y     float64       `json:"y"`
	Size  float64       `json:"size"`
	Kind  StructureKind `json:"kind"`
	HP    float64       `json:"hp"`
	MaxHP float64       `json:"maxHp"`
}

// ObstacleSnapshot is an immutable copy of terrain
type ObstacleSnapshot struct {
	ID   uint32       `json:"id"`
	X    float64      `json:"x"`
	Y    float64      `json:"y"`
	W    float64      `json:"w"`
	H    float64      `json:"h"`
	Kind ObstacleKind `json:"kind"`
}

// PickupSnapshot is an immutable copy of a soul drop
type PickupSnapshot struct {
	ID   uint32  `json:"id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Tier Tier    `json:"tier"`
}

// EffectSnapshot is an immutable transient effect
type EffectSnapshot struct {
	Kind      EffectKind `json:"kind"`
	X         float64    `json:"x"`
	Y         float64    `json:"y"`
	Intensity float64    `json:"intensity"`
}

// Snapshot is a complete, immutable frame for renderers and clients.
// Uses value types only; nothing in it aliases live world state.
type Snapshot struct {
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	MatchID   string    `json:"matchId"`
	Frame     uint64    `json:"frame"`
	ElapsedMs float64   `json:"elapsedMs"`
	Outcome   Outcome   `json:"outcome"`
	WorldW    float64   `json:"worldW"`
	WorldH    float64   `json:"worldH"`

	Zone        SafeZone             `json:"zone"`
	Agents      []AgentSnapshot      `json:"agents"`
	Projectiles []ProjectileSnapshot `json:"projectiles"`
	Structures  []StructureSnapshot  `json:"structures"`
	Obstacles   []ObstacleSnapshot   `json:"obstacles"`
	Pickups     []PickupSnapshot     `json:"pickups"`
	Effects     []EffectSnapshot     `json:"effects"`
	Standings   []TeamStanding       `json:"standings"`

	AgentCount   int `json:"agentCount"` // Before limits were applied
	LeadersAlive int `json:"leadersAlive"`
}

// SnapshotStore publishes snapshots from the tick goroutine to any number
// of readers. A published snapshot is never written again, so readers may
// hold it as long as they like.
type SnapshotStore struct {
	latest   atomic.Pointer[Snapshot]
	sequence atomic.Uint64
	limits   config.ResourceLimits
}

// NewSnapshotStore creates an empty store.
func NewSnapshotStore(limits config.ResourceLimits) *SnapshotStore {
	return &SnapshotStore{limits: limits}
}

// Latest returns the most recently published snapshot, or nil before the
// first publish.
func (s *SnapshotStore) Latest() *Snapshot {
	return s.latest.Load()
}

// Limits returns the per-snapshot caps.
func (s *SnapshotStore) Limits() config.ResourceLimits {
	return s.limits
}

// Capture copies w into a fresh snapshot and publishes it. Slices are sized
// from the previous snapshot to keep reallocation rare.
func (s *SnapshotStore) Capture(w *World, matchID string, outcome Outcome) *Snapshot {
	prev := s.latest.Load()
	snap := &Snapshot{
		Sequence:  s.sequence.Add(1),
		Timestamp: time.Now(),
		MatchID:   matchID,
		Frame:     w.frame,
		ElapsedMs: w.elapsed,
		Outcome:   outcome,
		WorldW:    w.cfg.World.Width,
		WorldH:    w.cfg.World.Height,
		Zone:      w.zone,
		Standings: w.tally.Sorted(),
	}
	if prev != nil {
		snap.Agents = make([]AgentSnapshot, 0, cap(prev.Agents))
		snap.Structures = make([]StructureSnapshot, 0, len(w.structures))
		snap.Obstacles = make([]ObstacleSnapshot, 0, len(w.obstacles))
	}

	for _, a := range w.agents {
		snap.AgentCount++
		if a.IsLeader() {
			snap.LeadersAlive++
		}
		// Leaders always make it into the snapshot.
		if len(snap.Agents) >= s.limits.MaxAgents && !a.IsLeader() {
			continue
		}
		snap.Agents = append(snap.Agents, agentSnapshot(a))
	}
	for _, p := range w.projectiles {
		if len(snap.Projectiles) >= s.limits.MaxProjectiles {
			break
		}
		snap.Projectiles = append(snap.Projectiles, p.ToSnapshot())
	}
	for _, st := range w.structures {
		snap.Structures = append(snap.Structures, StructureSnapshot{
			ID: st.ID, X: st.X, Y: st.Y, Size: st.W, Kind: st.Kind, HP: st.HP, MaxHP: st.MaxHP,
		})
	}
	for _, o := range w.obstacles {
		snap.Obstacles = append(snap.Obstacles, ObstacleSnapshot{
			ID: o.ID, X: o.X, Y: o.Y, W: o.W, H: o.H, Kind: o.Kind,
		})
	}
	for _, p := range w.pickups {
		if len(snap.Pickups) >= s.limits.MaxPickups {
			break
		}
		cx, cy := p.Center()
		snap.Pickups = append(snap.Pickups, PickupSnapshot{ID: p.ID, X: cx, Y: cy, Tier: p.Tier})
	}
	for _, e := range w.effects.Items() {
		snap.Effects = append(snap.Effects, EffectSnapshot{Kind: e.Kind, X: e.X, Y: e.Y, Intensity: e.Intensity()})
	}

	s.latest.Store(snap)
	return snap
}

func agentSnapshot(a *Agent) AgentSnapshot {
	as := AgentSnapshot{
		ID:           a.ID,
		X:            a.X,
		Y:            a.Y,
		W:            a.W,
		H:            a.H,
		Team:         a.Team,
		Role:         a.Role,
		Level:        a.Level,
		HP:           a.HP,
		MaxHP:        a.MaxHP,
		Leader:       a.LeaderID,
		Faction:      a.Faction,
		State:        a.State.String(),
		Facing:       a.Facing,
		Player:       a.Player,
		ShieldActive: a.ShieldActive,
	}
	if a.IsLeader() {
		as.DashReady = a.Dash.Ready()
		as.ShieldReady = a.Shield.Ready()
		as.DashFlash = a.Dash.Flash > 0
		as.ShieldFlash = a.Shield.Flash > 0
	}
	if a.Slash.Active {
		as.Slash = &SlashState{
			X:        a.Slash.X,
			Y:        a.Slash.Y,
			Rotation: a.Slash.Rotation,
			Alpha:    a.Slash.Alpha,
			Scale:    a.Slash.Scale,
		}
	}
	return as
}
