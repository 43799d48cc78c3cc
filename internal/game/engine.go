package game

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horde/internal/config"
	"horde/internal/game/spatial"
)

// Outcome is the match result from the player leader's point of view.
type Outcome uint8

const (
	OutcomeRunning Outcome = iota
	OutcomeWon
	OutcomeLost
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeRunning:
		return "running"
	case OutcomeWon:
		return "won"
	case OutcomeLost:
		return "lost"
	default:
		return "unknown"
	}
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// TickStats describes one completed frame for metrics hooks.
type TickStats struct {
	Frame       uint64
	Duration    time.Duration
	Agents      int
	Projectiles int
	Structures  int
	Pickups     int
	ZoneRadius  float64
	ZonePhase   ZonePhase
}

// Engine runs a World on a fixed-rate ticker and publishes snapshots.
// All World access goes through the engine's lock.
type Engine struct {
	mu    sync.RWMutex
	world *World
	log   zerolog.Logger

	tickRate      int
	snapshotEvery uint64
	frameMs       float64

	matchID string
	seed    int64
	outcome Outcome

	input      Input
	inputDirty bool

	snapshots *SnapshotStore
	eventLog  *EventLog
	sinks     MultiSink

	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	onTick func(TickStats)
}

// NewEngine creates an engine around an empty world. A zero seed picks a
// time-based one.
func NewEngine(cfg config.AppConfig, logger zerolog.Logger) *Engine {
	seed := cfg.Server.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	tickRate := max(cfg.Server.TickRate, 1)
	every := uint64(max(tickRate/max(cfg.Server.BroadcastRate, 1), 1))

	log := logger.With().Str("component", "engine").Logger()
	e := &Engine{
		world:         NewWorld(cfg.Sim, rand.New(rand.NewSource(seed)), log),
		log:           log,
		tickRate:      tickRate,
		snapshotEvery: every,
		frameMs:       1000 / float64(tickRate),
		matchID:       uuid.NewString(),
		seed:          seed,
		snapshots:     NewSnapshotStore(cfg.Limits),
		eventLog:      NewEventLog(logger.With().Str("component", "eventlog").Logger()),
		stopChan:      make(chan struct{}),
	}
	e.eventLog.SetMatch(e.matchID)
	e.sinks = MultiSink{e.eventLog}
	e.world.SetCombatSink(e.sinks)
	e.world.OnZonePhase(e.recordZone)
	return e
}

// MatchID returns the id stamped on snapshots and log records.
func (e *Engine) MatchID() string {
	return e.matchID
}

// Seed returns the world rng seed.
func (e *Engine) Seed() int64 {
	return e.seed
}

// AddCombatSink registers an extra combat-event receiver. Call before Start.
func (e *Engine) AddCombatSink(s CombatSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, s)
	e.world.SetCombatSink(e.sinks)
}

// OnTick registers a hook run after every frame, outside the lock.
func (e *Engine) OnTick(fn func(TickStats)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTick = fn
}

// WithWorld runs fn with exclusive access to the world, e.g. to populate it.
func (e *Engine) WithWorld(fn func(w *World)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.world)
}

// StartEventLog opens the JSONL event log and records the match start.
func (e *Engine) StartEventLog(path string) error {
	if err := e.eventLog.Start(path); err != nil {
		return fmt.Errorf("event log: %w", err)
	}
	e.mu.RLock()
	payload := MatchPayload{
		Seed:    e.seed,
		Leaders: e.world.LeadersAlive(),
		Agents:  len(e.world.agents),
	}
	frame := e.world.frame
	e.mu.RUnlock()
	e.eventLog.EmitSimple(EventTypeMatchStart, frame, "engine", payload)
	return nil
}

// EventLogStats returns event log statistics for monitoring.
func (e *Engine) EventLogStats() EventLogStats {
	return e.eventLog.Stats()
}

// Start begins the game loop
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.done = make(chan struct{})
	e.mu.Unlock()

	e.ticker = time.NewTicker(time.Second / time.Duration(e.tickRate))
	e.log.Info().
		Str("match", e.matchID).
		Int64("seed", e.seed).
		Int("tick_rate", e.tickRate).
		Msg("🎮 engine started")

	go func() {
		defer close(e.done)
		for {
			select {
			case <-e.ticker.C:
				e.Tick()
			case <-e.stopChan:
				return
			}
		}
	}()
}

// Stop halts the game loop, records the match end and flushes the event
// log. An engine cannot be restarted after Stop.
func (e *Engine) Stop() {
	e.mu.Lock()
	wasRunning := e.running
	e.running = false
	e.mu.Unlock()

	if wasRunning {
		close(e.stopChan)
		e.ticker.Stop()
		<-e.done
	}

	e.stopOnce.Do(func() {
		e.mu.RLock()
		frame, outcome := e.world.frame, e.outcome
		e.mu.RUnlock()
		e.eventLog.EmitSimple(EventTypeMatchEnd, frame, "engine", MatchPayload{
			Seed:    e.seed,
			Outcome: outcome.String(),
		})
		e.eventLog.Stop()
		e.log.Info().Uint64("frame", frame).Str("outcome", outcome.String()).Msg("🛑 engine stopped")
	})
}

// SetInput replaces the player input. Dash and shield are edge triggers:
// they stay set until the next frame consumes them.
func (e *Engine) SetInput(in Input) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inputDirty {
		in.Dash = in.Dash || e.input.Dash
		in.Shield = in.Shield || e.input.Shield
	}
	e.input = in
	e.inputDirty = true
}

// Tick advances one frame at the engine's nominal frame time.
func (e *Engine) Tick() {
	e.Step(e.frameMs)
}

// Step advances the world by dt ms unless the match is decided.
func (e *Engine) Step(dt float64) {
	start := time.Now()

	e.mu.Lock()
	if e.outcome != OutcomeRunning {
		e.mu.Unlock()
		return
	}
	w := e.world
	w.Step(dt, e.input)
	e.input.Dash, e.input.Shield = false, false
	e.inputDirty = false

	e.updateOutcome()
	if w.frame%e.snapshotEvery == 0 || e.outcome != OutcomeRunning {
		e.snapshots.Capture(w, e.matchID, e.outcome)
	}

	stats := TickStats{
		Frame:       w.frame,
		Agents:      len(w.agents),
		Projectiles: len(w.projectiles),
		Structures:  len(w.structures),
		Pickups:     len(w.pickups),
		ZoneRadius:  w.zone.Current.R,
		ZonePhase:   w.zone.Phase,
	}
	hook := e.onTick
	e.mu.Unlock()

	if hook != nil {
		stats.Duration = time.Since(start)
		hook(stats)
	}
}

// updateOutcome decides the match once the player leader is gone (lost) or
// is the only leader left (won). Worlds without a player never end.
func (e *Engine) updateOutcome() {
	w := e.world
	if !w.hasPlayer {
		return
	}
	if _, alive := w.agentByID[w.playerID]; !alive {
		e.outcome = OutcomeLost
	} else if w.LeadersAlive() == 1 {
		e.outcome = OutcomeWon
	} else {
		return
	}
	e.log.Info().
		Str("outcome", e.outcome.String()).
		Uint64("frame", w.frame).
		Float64("elapsed_ms", w.elapsed).
		Msg("🏁 match decided")
}

// Outcome returns the current match result.
func (e *Engine) Outcome() Outcome {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.outcome
}

// Snapshot returns the latest published snapshot, capturing one if none
// exists yet.
func (e *Engine) Snapshot() *Snapshot {
	if s := e.snapshots.Latest(); s != nil {
		return s
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if s := e.snapshots.Latest(); s != nil {
		return s
	}
	return e.snapshots.Capture(e.world, e.matchID, e.outcome)
}

// Agent returns the current view of one agent.
func (e *Engine) Agent(id AgentID) (AgentSnapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.world.agentByID[id]
	if !ok {
		return AgentSnapshot{}, fmt.Errorf("agent %d: %w", id, ErrUnknownAgent)
	}
	return agentSnapshot(a), nil
}

// Zone returns the current safe-zone state.
func (e *Engine) Zone() SafeZone {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.world.zone
}

// EngineStats is the summary served by the stats endpoint.
type EngineStats struct {
	MatchID      string            `json:"matchId"`
	Frame        uint64            `json:"frame"`
	ElapsedMs    float64           `json:"elapsedMs"`
	Outcome      Outcome           `json:"outcome"`
	Agents       int               `json:"agents"`
	LeadersAlive int               `json:"leadersAlive"`
	Projectiles  int               `json:"projectiles"`
	Structures   int               `json:"structures"`
	Pickups      int               `json:"pickups"`
	Grid         spatial.GridStats `json:"grid"`
	EventLog     EventLogStats     `json:"eventLog"`
	Standings    []TeamStanding    `json:"standings"`
}

// Stats returns a point-in-time summary.
func (e *Engine) Stats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	w := e.world
	return EngineStats{
		MatchID:      e.matchID,
		Frame:        w.frame,
		ElapsedMs:    w.elapsed,
		Outcome:      e.outcome,
		Agents:       len(w.agents),
		LeadersAlive: w.LeadersAlive(),
		Projectiles:  len(w.projectiles),
		Structures:   len(w.structures),
		Pickups:      len(w.pickups),
		Grid:         w.grid.Stats(),
		EventLog:     e.eventLog.Stats(),
		Standings:    w.tally.Sorted(),
	}
}

// recordZone runs under the engine lock from inside World.Step.
func (e *Engine) recordZone(z SafeZone) {
	e.eventLog.EmitSimple(EventTypeZonePhase, e.world.frame, "zone", ZonePayload{
		Phase:   z.Phase.String(),
		X:       z.Current.X,
		Y:       z.Current.Y,
		Radius:  z.Current.R,
		TargetX: z.Target.X,
		TargetY: z.Target.Y,
		TargetR: z.Target.R,
	})
}

// Capture publishes a snapshot of the current frame and returns it.
func (e *Engine) Capture() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshots.Capture(e.world, e.matchID, e.outcome)
}
