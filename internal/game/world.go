package game

import (
	"errors"
	"iter"
	"math/rand"

	"github.com/rs/zerolog"

	"horde/internal/config"
	"horde/internal/game/spatial"
)

// ErrUnknownAgent is returned when an id does not resolve to a live agent.
var ErrUnknownAgent = errors.New("unknown agent")

// MaxEffects bounds the world effect arena.
const MaxEffects = 256

// Input is the per-frame control snapshot for the player leader. Axes may
// be raw; the controller normalizes them.
type Input struct {
	MoveX  float64 `json:"moveX"`
	MoveY  float64 `json:"moveY"`
	Dash   bool    `json:"dash"`
	Shield bool    `json:"shield"`
}

// leaderTrack measures how long a leader has stayed near one spot.
type leaderTrack struct {
	anchorX, anchorY float64
	still            float64
}

// World owns every entity table, the spatial index and the safe zone. It is
// not safe for concurrent use; Engine serializes access.
type World struct {
	cfg  config.SimConfig
	grid *spatial.Grid
	rng  *rand.Rand
	log  zerolog.Logger
	sink CombatSink

	onZone func(SafeZone)

	frame   uint64
	elapsed float64 // simulated ms
	nextID  uint32
	teams   int

	agents     []*Agent
	agentByID  map[AgentID]*Agent
	structures []*Structure
	structByID map[uint32]*Structure
	obstacles  []*Obstacle
	obstByID   map[uint32]*Obstacle
	pickups    []*Pickup
	pickupByID map[uint32]*Pickup

	projectiles []*Projectile

	zone    SafeZone
	effects *EffectBuffer
	tracks  map[AgentID]*leaderTrack
	tally   *Standings

	playerID  AgentID
	hasPlayer bool

	scratch       []spatial.Ref
	pickupScratch []spatial.Ref
	visited       map[uint64]struct{}
}

// NewWorld creates an empty world. rng drives every random choice in the
// simulation; pass a seeded source for reproducible single-machine runs.
func NewWorld(cfg config.SimConfig, rng *rand.Rand, logger zerolog.Logger) *World {
	return &World{
		cfg:           cfg,
		grid:          spatial.NewGrid(cfg.World.Width, cfg.World.Height, cfg.World.CellSize),
		rng:           rng,
		log:           logger,
		agentByID:     make(map[AgentID]*Agent),
		structByID:    make(map[uint32]*Structure),
		obstByID:      make(map[uint32]*Obstacle),
		pickupByID:    make(map[uint32]*Pickup),
		zone:          NewSafeZone(cfg.Zone, cfg.World.Width, cfg.World.Height),
		effects:       NewEffectBuffer(MaxEffects),
		tracks:        make(map[AgentID]*leaderTrack),
		tally:         NewStandings(),
		scratch:       make([]spatial.Ref, 0, 64),
		pickupScratch: make([]spatial.Ref, 0, 16),
		visited:       make(map[uint64]struct{}),
	}
}

// SetCombatSink installs the receiver of combat events. nil disables them.
func (w *World) SetCombatSink(s CombatSink) {
	w.sink = s
}

// OnZonePhase registers fn to run after every safe-zone phase change.
func (w *World) OnZonePhase(fn func(SafeZone)) {
	w.onZone = fn
}

// Config returns the simulation configuration.
func (w *World) Config() config.SimConfig {
	return w.cfg
}

// Frame returns the number of completed steps.
func (w *World) Frame() uint64 {
	return w.frame
}

// Elapsed returns simulated time in ms.
func (w *World) Elapsed() float64 {
	return w.elapsed
}

// Grid exposes the spatial index for inspection.
func (w *World) Grid() *spatial.Grid {
	return w.grid
}

func (w *World) allocID() uint32 {
	w.nextID++
	return w.nextID
}

// =============================================================================
// POPULATION
// =============================================================================

// AddLeader creates a leader with a fresh team id. At most one leader may be
// the player; a second player request is downgraded to AI.
func (w *World) AddLeader(cx, cy float64, faction Faction, player bool) AgentID {
	ac := w.cfg.Agent
	size := ac.BaseSize * ac.LeaderScale
	w.teams++
	a := &Agent{
		ID:      AgentID(w.allocID()),
		Team:    w.teams,
		Role:    RoleLeader,
		HP:      ac.LeaderHP,
		MaxHP:   ac.LeaderHP,
		Faction: faction,
		Speed:   ac.LeaderSpeed,
		Facing:  1,
		Player:  player && !w.hasPlayer,
		Dash:    Ability{Cooldown: w.cfg.Ability.DashCooldownMs},
		Shield:  Ability{Cooldown: w.cfg.Ability.ShieldCooldownMs},
	}
	// Both skills start ready.
	a.Dash.Elapsed = a.Dash.Cooldown
	a.Shield.Elapsed = a.Shield.Cooldown
	a.LeaderID = a.ID
	a.W, a.H = size, size
	a.SetCenter(cx, cy)
	if a.Player {
		w.playerID = a.ID
		w.hasPlayer = true
	}
	w.tracks[a.ID] = &leaderTrack{anchorX: cx, anchorY: cy}
	w.tally.Register(a.Team, faction)
	w.insertAgent(a)
	return a.ID
}

// AddFollower binds a new follower to leader.
func (w *World) AddFollower(leader AgentID, role Role, level int, cx, cy float64) (AgentID, error) {
	l, ok := w.agentByID[leader]
	if !ok || !l.IsLeader() {
		return 0, ErrUnknownAgent
	}
	if role == RoleLeader {
		role = RoleMelee
	}
	level = max(1, min(level, 3))
	if role == RoleRanged {
		level = 1
	}
	ac := w.cfg.Agent
	speed := ac.MeleeSpeed
	if role == RoleRanged {
		speed = ac.RangedSpeed
	}
	size := followerSize(ac.BaseSize, role, level)
	a := &Agent{
		ID:       AgentID(w.allocID()),
		Team:     l.Team,
		Role:     role,
		Level:    level,
		HP:       ac.FollowerHP,
		MaxHP:    ac.FollowerHP,
		LeaderID: l.ID,
		Faction:  l.Faction,
		Speed:    speed,
		Facing:   1,
	}
	a.W, a.H = size, size
	a.SetCenter(cx, cy)
	w.insertAgent(a)
	return a.ID, nil
}

// spawnFollowerNear adds a level-1 follower scattered around the leader,
// ranged with the configured chance.
func (w *World) spawnFollowerNear(leader *Agent) (AgentID, error) {
	role := RoleMelee
	if w.rng.Float64() < w.cfg.World.RangedChance {
		role = RoleRanged
	}
	cx, cy := leader.Center()
	return w.AddFollower(leader.ID, role, 1, cx+(w.rng.Float64()-0.5)*50, cy+(w.rng.Float64()-0.5)*50)
}

func (w *World) insertAgent(a *Agent) {
	w.agents = append(w.agents, a)
	w.agentByID[a.ID] = a
	w.grid.Insert(a.ref(), a.Rect())
}

// AddStructure places a building with its top-left corner at (x, y).
func (w *World) AddStructure(kind StructureKind, x, y, size float64) uint32 {
	s := &Structure{
		ID:    w.allocID(),
		Body:  Body{X: x, Y: y, W: size, H: size},
		Kind:  kind,
		HP:    w.cfg.Combat.StructureHP,
		MaxHP: w.cfg.Combat.StructureHP,
	}
	w.structures = append(w.structures, s)
	w.structByID[s.ID] = s
	w.grid.Insert(s.ref(), s.Rect())
	return s.ID
}

// AddObstacle places terrain with its top-left corner at (x, y).
func (w *World) AddObstacle(kind ObstacleKind, x, y, width, height float64) uint32 {
	o := &Obstacle{ID: w.allocID(), Body: Body{X: x, Y: y, W: width, H: height}, Kind: kind}
	w.obstacles = append(w.obstacles, o)
	w.obstByID[o.ID] = o
	w.grid.Insert(o.ref(), o.Rect())
	return o.ID
}

// AddPickup drops a soul with its top-left corner at (x, y).
func (w *World) AddPickup(tier Tier, x, y float64) uint32 {
	p := &Pickup{ID: w.allocID(), Body: Body{X: x, Y: y, W: PickupSize, H: PickupSize}, Tier: tier}
	w.pickups = append(w.pickups, p)
	w.pickupByID[p.ID] = p
	w.grid.Insert(p.ref(), p.Rect())
	return p.ID
}

// =============================================================================
// READ-ONLY ACCESS
// =============================================================================

// Agent returns a copy of the agent with the given id.
func (w *World) Agent(id AgentID) (Agent, bool) {
	a, ok := w.agentByID[id]
	if !ok {
		return Agent{}, false
	}
	return *a, true
}

// Player returns the player leader id, if one is alive.
func (w *World) Player() (AgentID, bool) {
	if !w.hasPlayer {
		return 0, false
	}
	_, ok := w.agentByID[w.playerID]
	return w.playerID, ok
}

// Agents yields a copy of every live agent in table order.
func (w *World) Agents() iter.Seq[Agent] {
	return func(yield func(Agent) bool) {
		for _, a := range w.agents {
			if !yield(*a) {
				return
			}
		}
	}
}

// Structures yields a copy of every standing structure.
func (w *World) Structures() iter.Seq[Structure] {
	return func(yield func(Structure) bool) {
		for _, s := range w.structures {
			if !yield(*s) {
				return
			}
		}
	}
}

// Obstacles yields a copy of every obstacle.
func (w *World) Obstacles() iter.Seq[Obstacle] {
	return func(yield func(Obstacle) bool) {
		for _, o := range w.obstacles {
			if !yield(*o) {
				return
			}
		}
	}
}

// Pickups yields a copy of every uncollected pickup.
func (w *World) Pickups() iter.Seq[Pickup] {
	return func(yield func(Pickup) bool) {
		for _, p := range w.pickups {
			if !yield(*p) {
				return
			}
		}
	}
}

// Projectiles yields a copy of every live projectile.
func (w *World) Projectiles() iter.Seq[Projectile] {
	return func(yield func(Projectile) bool) {
		for _, p := range w.projectiles {
			if !yield(*p) {
				return
			}
		}
	}
}

// Effects returns the live transient effects. The slice is reused.
func (w *World) Effects() []Effect {
	return w.effects.Items()
}

// Zone returns the current safe-zone state.
func (w *World) Zone() SafeZone {
	return w.zone
}

// Standings returns per-team tallies sorted by score.
func (w *World) Standings() []TeamStanding {
	return w.tally.Sorted()
}

// Counts returns live entity counts.
func (w *World) Counts() (agents, projectiles, structures, pickups int) {
	return len(w.agents), len(w.projectiles), len(w.structures), len(w.pickups)
}

// LeadersAlive returns how many leaders are still in play.
func (w *World) LeadersAlive() int {
	n := 0
	for _, a := range w.agents {
		if a.IsLeader() {
			n++
		}
	}
	return n
}

// =============================================================================
// FRAME STEP
// =============================================================================

// Step advances the simulation by dt simulated milliseconds. Pass order is
// fixed; every pass that moves an entity updates the index before the next
// pass runs.
func (w *World) Step(dt float64, in Input) {
	if dt <= 0 {
		return
	}
	w.frame++
	w.elapsed += dt

	w.settleFormations(dt)
	w.updateAgents(dt, in)
	w.advanceProjectiles(dt)
	w.resolveAgentCollisions()
	w.resolveStructureCollisions()
	w.resolveObstacleCollisions()
	w.advanceZone(dt)
	w.collectPickups()
	w.removeDestroyedStructures()
	w.removeDeadAgents()
	w.applySeparation()
	w.effects.Advance(dt)
}

// syncAgent refreshes the index after a move.
func (w *World) syncAgent(a *Agent) {
	w.grid.Update(a.ref(), a.Rect())
}

func (w *World) emit(kind CombatKind, actor *Agent, target spatial.Ref, amount float64) {
	if w.sink == nil {
		return
	}
	x, y := actor.Center()
	w.sink.OnCombat(CombatEvent{
		Kind:    kind,
		Frame:   w.frame,
		X:       x,
		Y:       y,
		Actor:   actor.ID,
		Role:    actor.Role,
		Level:   actor.Level,
		Faction: actor.Faction,
		Team:    actor.Team,
		Target:  target,
		Damage:  amount,
	})
}

// resolveTarget returns the live body and team of a combat target. Team is
// zero for neutral structures.
func (w *World) resolveTarget(ref spatial.Ref) (Body, int, bool) {
	switch ref.Kind {
	case spatial.KindAgent:
		if a, ok := w.agentByID[AgentID(ref.ID)]; ok && a.Alive() {
			return a.Body, a.Team, true
		}
	case spatial.KindStructure:
		if s, ok := w.structByID[ref.ID]; ok && s.HP > 0 {
			return s.Body, 0, true
		}
	}
	return Body{}, 0, false
}

// applyDamage hits a live target and reports whether anything was damaged.
// Targets that died or vanished earlier in the frame are skipped. byTeam
// is credited with the kill if the hit is fatal.
func (w *World) applyDamage(ref spatial.Ref, amount float64, byTeam int) bool {
	switch ref.Kind {
	case spatial.KindAgent:
		a, ok := w.agentByID[AgentID(ref.ID)]
		if !ok || !a.Alive() {
			return false
		}
		a.damage(amount)
		if !a.Alive() {
			w.tally.Kill(byTeam, a.IsLeader())
		}
		cx, cy := a.Center()
		w.effects.Spawn(EffectHit, cx, cy)
		return true
	case spatial.KindStructure:
		s, ok := w.structByID[ref.ID]
		if !ok || s.HP <= 0 {
			return false
		}
		s.HP = clamp(s.HP-amount, 0, s.MaxHP)
		cx, cy := s.Center()
		w.effects.Spawn(EffectHit, cx, cy)
		return true
	}
	return false
}

// settleFormations clears every follower offset of a leader that has stayed
// within the still threshold of one spot for the settle interval.
func (w *World) settleFormations(dt float64) {
	fc := w.cfg.Formation
	for _, a := range w.agents {
		if !a.IsLeader() {
			continue
		}
		tr, ok := w.tracks[a.ID]
		if !ok {
			continue
		}
		cx, cy := a.Center()
		if dist(cx, cy, tr.anchorX, tr.anchorY) >= fc.StillThreshold {
			tr.anchorX, tr.anchorY = cx, cy
			tr.still = 0
			continue
		}
		tr.still += dt
		if tr.still < fc.SettleMs {
			continue
		}
		tr.still = 0
		for _, f := range w.agents {
			if f.LeaderID == a.ID && !f.IsLeader() {
				f.ClearFormation()
			}
		}
	}
}

// removeDeadAgents drops every agent with hp ≤ 0 from the tables and index,
// rolling for a pickup drop. Followers of a fallen leader go with it, so no
// follower outlives its leader past the frame boundary. Compacts in place.
func (w *World) removeDeadAgents() {
	w.retireOrphans()
	n := 0
	for _, a := range w.agents {
		if a.Alive() {
			w.agents[n] = a
			n++
			continue
		}
		a.State = StateDead
		w.grid.Remove(a.ref())
		delete(w.agentByID, a.ID)
		cx, cy := a.Center()
		w.effects.Spawn(EffectDeath, cx, cy)
		w.emit(CombatDeath, a, a.ref(), 0)
		w.tally.Loss(a.Team)

		if a.IsLeader() {
			delete(w.tracks, a.ID)
			w.log.Info().
				Uint32("leader", uint32(a.ID)).
				Int("team", a.Team).
				Bool("player", a.Player).
				Uint64("frame", w.frame).
				Msg("👑 leader fell")
		}

		if a.Role != RoleLeader && w.rng.Float64() < w.cfg.Combat.DropSkipChance {
			continue
		}
		w.AddPickup(dropTier(a), a.X, a.Y)
	}
	clear(w.agents[n:])
	w.agents = w.agents[:n]
}

// retireOrphans forces hp to 0 on every follower whose leader is dead or gone.
func (w *World) retireOrphans() {
	for _, a := range w.agents {
		if a.IsLeader() || !a.Alive() {
			continue
		}
		if leader, ok := w.agentByID[a.LeaderID]; !ok || !leader.Alive() {
			a.HP = 0
		}
	}
}

// removeDestroyedStructures drops structures with hp ≤ 0 and leaves the
// matching pickup behind.
func (w *World) removeDestroyedStructures() {
	n := 0
	for _, s := range w.structures {
		if s.HP > 0 {
			w.structures[n] = s
			n++
			continue
		}
		w.grid.Remove(s.ref())
		delete(w.structByID, s.ID)
		cx, cy := s.Center()
		w.effects.Spawn(EffectRubble, cx, cy)
		if w.sink != nil {
			w.sink.OnCombat(CombatEvent{
				Kind:   CombatStructureDestroyed,
				Frame:  w.frame,
				X:      cx,
				Y:      cy,
				Target: s.ref(),
			})
		}
		w.AddPickup(structureTier(s.Kind), s.X, s.Y)
	}
	clear(w.structures[n:])
	w.structures = w.structures[:n]
}
