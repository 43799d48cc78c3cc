package game

import (
	"fmt"

	"horde/internal/game/spatial"
)

// AgentID indexes the agent table. A leader's LeaderID equals its own ID.
type AgentID uint32

// Role is the closed set of agent kinds.
type Role uint8

const (
	RoleLeader Role = iota
	RoleMelee
	RoleRanged
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleLeader:
		return "leader"
	case RoleMelee:
		return "melee"
	case RoleRanged:
		return "ranged"
	default:
		return "unknown"
	}
}

// AgentState is the controller state of one agent.
type AgentState uint8

const (
	StateFollowing AgentState = iota
	StatePursuing
	StateMeleeWindup
	StateRangedCooldown
	StateAbilityActive
	StateDead
)

// String returns the state name.
func (s AgentState) String() string {
	switch s {
	case StateFollowing:
		return "following"
	case StatePursuing:
		return "pursuing"
	case StateMeleeWindup:
		return "melee_windup"
	case StateRangedCooldown:
		return "ranged_cooldown"
	case StateAbilityActive:
		return "ability_active"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Faction only selects cosmetics and audio downstream.
type Faction uint8

const (
	FactionHuman Faction = iota
	FactionElf
	FactionOrc
)

// Factions lists every faction in declaration order.
var Factions = []Faction{FactionHuman, FactionElf, FactionOrc}

// String returns the faction name.
func (f Faction) String() string {
	switch f {
	case FactionHuman:
		return "human"
	case FactionElf:
		return "elf"
	case FactionOrc:
		return "orc"
	default:
		return "unknown"
	}
}

// ParseFaction looks a faction up by name.
func ParseFaction(name string) (Faction, error) {
	for _, f := range Factions {
		if f.String() == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown faction %q", name)
}

// Ability is a cooldown-gated leader skill. Elapsed counts up from the last
// use; the skill is ready once it reaches Cooldown.
type Ability struct {
	Elapsed  float64
	Cooldown float64
	Flash    float64 // Remaining "just became ready" highlight
}

// Ready reports whether the cooldown has elapsed.
func (a Ability) Ready() bool {
	return a.Elapsed >= a.Cooldown
}

// tick advances the cooldown and starts the ready flash on the frame the
// cooldown completes.
func (a *Ability) tick(dt, flash float64) {
	wasReady := a.Ready()
	a.Elapsed += dt
	if !wasReady && a.Ready() {
		a.Flash = flash
	}
	if a.Flash > 0 {
		a.Flash -= dt
	}
}

func (a *Ability) use() {
	a.Elapsed = 0
}

// Agent is a leader or follower.
type Agent struct {
	ID AgentID
	Body
	Team     int
	Role     Role
	Level    int // 1-3 for followers, 0 for leaders
	HP       float64
	MaxHP    float64
	LeaderID AgentID
	Faction  Faction
	Speed    float64 // Units per nominal frame
	State    AgentState
	Facing   int  // +1 right, -1 left
	Player   bool // Driven by Input instead of AI

	Slash SlashEffect

	// Leader-only
	Dash         Ability
	Shield       Ability
	ShieldActive bool
	shieldLeft   float64
	lastDirX     float64
	lastDirY     float64
	idleX, idleY float64
	hasIdle      bool

	// Follower-only
	offsetX, offsetY float64
	hasOffset        bool
	rangedElapsed    float64

	// Melee windup shared by melee followers and leaders
	windupLeft float64
	windupHit  bool
	windupOn   spatial.Ref
}

// IsLeader reports whether the agent leads its own team.
func (a *Agent) IsLeader() bool {
	return a.LeaderID == a.ID
}

// Alive reports hp > 0.
func (a *Agent) Alive() bool {
	return a.HP > 0
}

// FormationOffset returns the cached idle offset relative to the leader.
func (a *Agent) FormationOffset() (dx, dy float64, ok bool) {
	return a.offsetX, a.offsetY, a.hasOffset
}

// ClearFormation drops the cached offset so it is recomputed on next use.
func (a *Agent) ClearFormation() {
	a.hasOffset = false
}

func (a *Agent) ref() spatial.Ref {
	return spatial.Ref{Kind: spatial.KindAgent, ID: uint32(a.ID)}
}

// damage subtracts amount and clamps hp to [0, MaxHP].
func (a *Agent) damage(amount float64) {
	a.HP = clamp(a.HP-amount, 0, a.MaxHP)
}

// followerSize returns the box side for a melee follower of the given level.
func followerSize(base float64, role Role, level int) float64 {
	if role != RoleMelee {
		return base
	}
	switch level {
	case 2:
		return base * 1.1
	case 3:
		return base * 1.2
	default:
		return base
	}
}

func (a *Agent) face(moveX float64) {
	if moveX > 0.1 {
		a.Facing = 1
	} else if moveX < -0.1 {
		a.Facing = -1
	}
}
