// Package config provides centralized configuration management.
// This is the single source of truth for world geometry, combat tuning,
// safe-zone timing and server settings.
//
// Values are registered as viper defaults, then overridden by an optional
// horde.yaml/horde.json file and finally by HORDE_* environment variables
// (nested keys use underscores, e.g. HORDE_ZONE_DELAY_MS).
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ErrInvalid is wrapped by every validation failure returned from Load.
var ErrInvalid = errors.New("invalid configuration")

// =============================================================================
// WORLD & SPATIAL CONFIGURATION
// =============================================================================

// WorldConfig holds world bounds and spatial indexing settings.
type WorldConfig struct {
	Width        float64 `mapstructure:"width"`
	Height       float64 `mapstructure:"height"`
	CellSize     float64 `mapstructure:"cell_size"`     // Uniform grid cell size
	FrameMs      float64 `mapstructure:"frame_ms"`      // Nominal frame; speeds are per frame of this length
	SpawnMargin  float64 `mapstructure:"spawn_margin"`  // Leader perimeter inset
	LeaderCount  int     `mapstructure:"leader_count"`  // Including the player leader
	Followers    int     `mapstructure:"followers"`     // Starting followers per leader
	Obstacles    int     `mapstructure:"obstacles"`     // Terrain patches
	Clusters     int     `mapstructure:"clusters"`      // Building clusters
	RangedChance float64 `mapstructure:"ranged_chance"` // Share of spawned followers that are ranged
}

// DefaultWorld returns the default world configuration.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		Width:        9000,
		Height:       9000,
		CellSize:     200, // roughly the widest agent query radius
		FrameMs:      16,
		SpawnMargin:  200,
		LeaderCount:  11,
		Followers:    10,
		Obstacles:    20,
		Clusters:     80,
		RangedChance: 0.2,
	}
}

// =============================================================================
// AGENT CONFIGURATION
// =============================================================================

// AgentConfig holds per-role movement and sizing.
type AgentConfig struct {
	LeaderSpeed float64 `mapstructure:"leader_speed"` // Units per nominal frame
	MeleeSpeed  float64 `mapstructure:"melee_speed"`
	RangedSpeed float64 `mapstructure:"ranged_speed"`
	BaseSize    float64 `mapstructure:"base_size"`
	LeaderScale float64 `mapstructure:"leader_scale"`
	LeaderHP    float64 `mapstructure:"leader_hp"`
	FollowerHP  float64 `mapstructure:"follower_hp"`
}

// DefaultAgent returns the default agent configuration.
func DefaultAgent() AgentConfig {
	return AgentConfig{
		LeaderSpeed: 1.35 * 1.88,
		MeleeSpeed:  1.35 * 0.95 * 1.88,
		RangedSpeed: 1.2 * 1.88,
		BaseSize:    40,
		LeaderScale: 1.3,
		LeaderHP:    300,
		FollowerHP:  100,
	}
}

// =============================================================================
// COMBAT CONFIGURATION
// =============================================================================

// CombatConfig holds targeting radii, attack timing and damage.
type CombatConfig struct {
	LeashDistance      float64 `mapstructure:"leash_distance"`
	ProtectRadius      float64 `mapstructure:"protect_radius"`
	DetectionRadius    float64 `mapstructure:"detection_radius"`
	MeleeThreshold     float64 `mapstructure:"melee_threshold"`
	LeaderMeleeRange   float64 `mapstructure:"leader_melee_range"`
	MeleeWindupMs      float64 `mapstructure:"melee_windup_ms"`
	MeleeImpactMs      float64 `mapstructure:"melee_impact_ms"` // Damage lands once remaining windup drops below this
	MeleeDamage        float64 `mapstructure:"melee_damage"`
	RangedRange        float64 `mapstructure:"ranged_range"`
	RangedCooldownMs   float64 `mapstructure:"ranged_cooldown_ms"`
	ArrowDamage        float64 `mapstructure:"arrow_damage"`
	FollowDeadband     float64 `mapstructure:"follow_deadband"` // Followers stop this close to a follow point
	PickupRadius       float64 `mapstructure:"pickup_radius"`
	SeparationRadius   float64 `mapstructure:"separation_radius"`
	SeparationStrength float64 `mapstructure:"separation_strength"`
	DropSkipChance     float64 `mapstructure:"drop_skip_chance"` // Followers drop nothing this often
	StructureHP        float64 `mapstructure:"structure_hp"`
}

// DefaultCombat returns the default combat configuration.
func DefaultCombat() CombatConfig {
	return CombatConfig{
		LeashDistance:      750,
		ProtectRadius:      300,
		DetectionRadius:    300,
		MeleeThreshold:     50,
		LeaderMeleeRange:   60,
		MeleeWindupMs:      500,
		MeleeImpactMs:      250,
		MeleeDamage:        20,
		RangedRange:        300,
		RangedCooldownMs:   2000,
		ArrowDamage:        10,
		FollowDeadband:     5,
		PickupRadius:       40,
		SeparationRadius:   30,
		SeparationStrength: 0.05,
		DropSkipChance:     0.5,
		StructureHP:        100,
	}
}

// =============================================================================
// FORMATION CONFIGURATION
// =============================================================================

// FormationConfig controls idle standoff placement around a leader.
type FormationConfig struct {
	MinRadius      float64 `mapstructure:"min_radius"`
	RadiusPerUnit  float64 `mapstructure:"radius_per_unit"`
	MinSpacing     float64 `mapstructure:"min_spacing"`
	Attempts       int     `mapstructure:"attempts"`
	SettleMs       float64 `mapstructure:"settle_ms"`       // Stationary time before offsets are recomputed
	StillThreshold float64 `mapstructure:"still_threshold"` // Leader movement below this counts as stationary
}

// DefaultFormation returns the default formation configuration.
func DefaultFormation() FormationConfig {
	return FormationConfig{
		MinRadius:      100,
		RadiusPerUnit:  5,
		MinSpacing:     60,
		Attempts:       10,
		SettleMs:       10000,
		StillThreshold: 5,
	}
}

// =============================================================================
// ABILITY CONFIGURATION
// =============================================================================

// AbilityConfig holds leader dash/shield tuning and AI dodge weights.
type AbilityConfig struct {
	DashCooldownMs   float64 `mapstructure:"dash_cooldown_ms"`
	DashDistance     float64 `mapstructure:"dash_distance"`
	ShieldCooldownMs float64 `mapstructure:"shield_cooldown_ms"`
	ShieldDurationMs float64 `mapstructure:"shield_duration_ms"`
	ReadyFlashMs     float64 `mapstructure:"ready_flash_ms"`
	ThreatRadius     float64 `mapstructure:"threat_radius"` // AI leaders dodge projectiles inside this
	EdgeMargin       float64 `mapstructure:"edge_margin"`   // AI leaders pull inward this close to the zone edge
	DodgeThreshold   float64 `mapstructure:"dodge_threshold"`
	IdleArrival      float64 `mapstructure:"idle_arrival"`
}

// DefaultAbility returns the default ability configuration.
func DefaultAbility() AbilityConfig {
	return AbilityConfig{
		DashCooldownMs:   5000,
		DashDistance:     200,
		ShieldCooldownMs: 10000,
		ShieldDurationMs: 5000,
		ReadyFlashMs:     250,
		ThreatRadius:     150,
		EdgeMargin:       100,
		DodgeThreshold:   0.1,
		IdleArrival:      10,
	}
}

// =============================================================================
// SAFE ZONE CONFIGURATION
// =============================================================================

// ZoneConfig holds the shrinking circle timings and rates.
type ZoneConfig struct {
	StartRadius   float64 `mapstructure:"start_radius"`
	MinRadius     float64 `mapstructure:"min_radius"`
	DelayMs       float64 `mapstructure:"delay_ms"`
	ShrinkRate    float64 `mapstructure:"shrink_rate"` // Radius units per ms
	MoveRate      float64 `mapstructure:"move_rate"`   // Center units per ms
	ShrinkFactor  float64 `mapstructure:"shrink_factor"`
	OffsetFactor  float64 `mapstructure:"offset_factor"` // Target offset bound as a fraction of radius
	LongPauseMs   float64 `mapstructure:"long_pause_ms"`
	ShortPauseMs  float64 `mapstructure:"short_pause_ms"`
	DamagePerMs   float64 `mapstructure:"damage_per_ms"`
	ShieldDivisor float64 `mapstructure:"shield_divisor"`
}

// DefaultZone returns the default safe-zone configuration.
func DefaultZone() ZoneConfig {
	return ZoneConfig{
		StartRadius:   7000,
		MinRadius:     250,
		DelayMs:       120000,
		ShrinkRate:    0.05,
		MoveRate:      0.05,
		ShrinkFactor:  0.6,
		OffsetFactor:  0.5,
		LongPauseMs:   30000,
		ShortPauseMs:  15000,
		DamagePerMs:   0.05,
		ShieldDivisor: 2,
	}
}

// =============================================================================
// PROJECTILE CONFIGURATION
// =============================================================================

// ProjectileConfig holds ballistic constants. Velocities and gravity are
// expressed per nominal frame, matching WorldConfig.FrameMs.
type ProjectileConfig struct {
	Gravity        float64 `mapstructure:"gravity"`
	LaunchHeight   float64 `mapstructure:"launch_height"`
	Deviation      float64 `mapstructure:"deviation"`
	MinFlightTicks float64 `mapstructure:"min_flight_ticks"`
	TicksPerUnit   float64 `mapstructure:"ticks_per_unit"`
	FlightPadTicks float64 `mapstructure:"flight_pad_ticks"`
	HitRadius      float64 `mapstructure:"hit_radius"`
	GroundDwellMs  float64 `mapstructure:"ground_dwell_ms"`
	Size           float64 `mapstructure:"size"`
}

// DefaultProjectile returns the default projectile configuration.
func DefaultProjectile() ProjectileConfig {
	return ProjectileConfig{
		Gravity:        0.15,
		LaunchHeight:   30,
		Deviation:      10,
		MinFlightTicks: 20,
		TicksPerUnit:   1.0 / 9,
		FlightPadTicks: 5,
		HitRadius:      15,
		GroundDwellMs:  2000,
		Size:           8,
	}
}

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// SimConfig is everything the simulation core reads.
type SimConfig struct {
	World      WorldConfig      `mapstructure:"world"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Combat     CombatConfig     `mapstructure:"combat"`
	Formation  FormationConfig  `mapstructure:"formation"`
	Ability    AbilityConfig    `mapstructure:"ability"`
	Zone       ZoneConfig       `mapstructure:"zone"`
	Projectile ProjectileConfig `mapstructure:"projectile"`
}

// DefaultSim returns the default simulation configuration.
func DefaultSim() SimConfig {
	return SimConfig{
		World:      DefaultWorld(),
		Agent:      DefaultAgent(),
		Combat:     DefaultCombat(),
		Formation:  DefaultFormation(),
		Ability:    DefaultAbility(),
		Zone:       DefaultZone(),
		Projectile: DefaultProjectile(),
	}
}

// Validate reports every field that would break the simulation.
func (c SimConfig) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.World.Width > 0 && c.World.Height > 0, "world size %.0fx%.0f", c.World.Width, c.World.Height)
	check(c.World.CellSize > 0, "cell size %.1f", c.World.CellSize)
	check(c.World.FrameMs > 0, "frame ms %.1f", c.World.FrameMs)
	check(c.World.RangedChance >= 0 && c.World.RangedChance <= 1, "ranged chance %.2f", c.World.RangedChance)
	check(c.Zone.ShrinkRate > 0, "zone shrink rate %.3f", c.Zone.ShrinkRate)
	check(c.Zone.MoveRate > 0, "zone move rate %.3f", c.Zone.MoveRate)
	check(c.Zone.MinRadius > 0 && c.Zone.MinRadius < c.Zone.StartRadius,
		"zone min radius %.0f must be in (0, %.0f)", c.Zone.MinRadius, c.Zone.StartRadius)
	check(c.Zone.ShrinkFactor > 0 && c.Zone.ShrinkFactor < 1, "zone shrink factor %.2f", c.Zone.ShrinkFactor)
	check(c.Zone.ShieldDivisor >= 1, "shield divisor %.2f", c.Zone.ShieldDivisor)
	check(c.Combat.MeleeImpactMs < c.Combat.MeleeWindupMs, "melee impact %.0fms after windup %.0fms",
		c.Combat.MeleeImpactMs, c.Combat.MeleeWindupMs)
	check(c.Formation.Attempts > 0, "formation attempts %d", c.Formation.Attempts)
	check(c.Projectile.Gravity > 0, "projectile gravity %.3f", c.Projectile.Gravity)
	check(c.Projectile.MinFlightTicks > 0, "projectile min flight %.1f", c.Projectile.MinFlightTicks)

	return errors.Join(errs...)
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	DebugPort      int      `mapstructure:"debug_port"`
	TickRate       int      `mapstructure:"tick_rate"`      // Simulation frames per second
	BroadcastRate  int      `mapstructure:"broadcast_rate"` // Snapshot pushes per second
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	EventLogPath   string   `mapstructure:"event_log_path"`
	Seed           int64    `mapstructure:"seed"` // 0 picks a time-based seed
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:           3000,
		DebugPort:      6060,
		TickRate:       60,
		BroadcastRate:  10,
		AllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		EventLogPath:   "events.jsonl",
	}
}

// =============================================================================
// LOGGING CONFIGURATION
// =============================================================================

// LogConfig selects level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// DefaultLog returns the default logging configuration.
func DefaultLog() LogConfig {
	return LogConfig{Level: "info", Pretty: true}
}

// =============================================================================
// RESOURCE LIMITS
// =============================================================================

// ResourceLimits caps per-snapshot payloads and connection counts.
type ResourceLimits struct {
	MaxAgents      int `mapstructure:"max_agents"` // Rendered agents per snapshot
	MaxProjectiles int `mapstructure:"max_projectiles"`
	MaxPickups     int `mapstructure:"max_pickups"`
	MaxClients     int `mapstructure:"max_clients"`
	InputPerSecond int `mapstructure:"input_per_second"`
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxAgents:      400,
		MaxProjectiles: 200,
		MaxPickups:     200,
		MaxClients:     64,
		InputPerSecond: 60,
	}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Sim    SimConfig      `mapstructure:"sim"`
	Server ServerConfig   `mapstructure:"server"`
	Log    LogConfig      `mapstructure:"log"`
	Limits ResourceLimits `mapstructure:"limits"`
}

// Default returns the complete configuration without any overrides.
func Default() AppConfig {
	return AppConfig{
		Sim:    DefaultSim(),
		Server: DefaultServer(),
		Log:    DefaultLog(),
		Limits: DefaultLimits(),
	}
}

// Load returns the complete configuration with file and environment
// overrides applied. configPath may be empty, in which case horde.* is
// searched for in the working directory.
func Load(configPath string) (AppConfig, error) {
	v := viper.New()
	setDefaults(v, Default())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("horde")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return AppConfig{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("HORDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Sim.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// setDefaults registers every leaf of cfg so AutomaticEnv can see it;
// viper only resolves env vars for keys it already knows.
func setDefaults(v *viper.Viper, cfg AppConfig) {
	set := func(prefix string, pairs map[string]any) {
		for k, val := range pairs {
			v.SetDefault(prefix+"."+k, val)
		}
	}

	w := cfg.Sim.World
	set("sim.world", map[string]any{
		"width": w.Width, "height": w.Height, "cell_size": w.CellSize, "frame_ms": w.FrameMs,
		"spawn_margin": w.SpawnMargin, "leader_count": w.LeaderCount, "followers": w.Followers,
		"obstacles": w.Obstacles, "clusters": w.Clusters, "ranged_chance": w.RangedChance,
	})
	a := cfg.Sim.Agent
	set("sim.agent", map[string]any{
		"leader_speed": a.LeaderSpeed, "melee_speed": a.MeleeSpeed, "ranged_speed": a.RangedSpeed,
		"base_size": a.BaseSize, "leader_scale": a.LeaderScale, "leader_hp": a.LeaderHP, "follower_hp": a.FollowerHP,
	})
	c := cfg.Sim.Combat
	set("sim.combat", map[string]any{
		"leash_distance": c.LeashDistance, "protect_radius": c.ProtectRadius, "detection_radius": c.DetectionRadius,
		"melee_threshold": c.MeleeThreshold, "leader_melee_range": c.LeaderMeleeRange,
		"melee_windup_ms": c.MeleeWindupMs, "melee_impact_ms": c.MeleeImpactMs, "melee_damage": c.MeleeDamage,
		"ranged_range": c.RangedRange, "ranged_cooldown_ms": c.RangedCooldownMs, "arrow_damage": c.ArrowDamage,
		"follow_deadband": c.FollowDeadband, "pickup_radius": c.PickupRadius,
		"separation_radius": c.SeparationRadius, "separation_strength": c.SeparationStrength,
		"drop_skip_chance": c.DropSkipChance, "structure_hp": c.StructureHP,
	})
	f := cfg.Sim.Formation
	set("sim.formation", map[string]any{
		"min_radius": f.MinRadius, "radius_per_unit": f.RadiusPerUnit, "min_spacing": f.MinSpacing,
		"attempts": f.Attempts, "settle_ms": f.SettleMs, "still_threshold": f.StillThreshold,
	})
	ab := cfg.Sim.Ability
	set("sim.ability", map[string]any{
		"dash_cooldown_ms": ab.DashCooldownMs, "dash_distance": ab.DashDistance,
		"shield_cooldown_ms": ab.ShieldCooldownMs, "shield_duration_ms": ab.ShieldDurationMs,
		"ready_flash_ms": ab.ReadyFlashMs, "threat_radius": ab.ThreatRadius, "edge_margin": ab.EdgeMargin,
		"dodge_threshold": ab.DodgeThreshold, "idle_arrival": ab.IdleArrival,
	})
	z := cfg.Sim.Zone
	set("sim.zone", map[string]any{
		"start_radius": z.StartRadius, "min_radius": z.MinRadius, "delay_ms": z.DelayMs,
		"shrink_rate": z.ShrinkRate, "move_rate": z.MoveRate, "shrink_factor": z.ShrinkFactor,
		"offset_factor": z.OffsetFactor, "long_pause_ms": z.LongPauseMs, "short_pause_ms": z.ShortPauseMs,
		"damage_per_ms": z.DamagePerMs, "shield_divisor": z.ShieldDivisor,
	})
	p := cfg.Sim.Projectile
	set("sim.projectile", map[string]any{
		"gravity": p.Gravity, "launch_height": p.LaunchHeight, "deviation": p.Deviation,
		"min_flight_ticks": p.MinFlightTicks, "ticks_per_unit": p.TicksPerUnit,
		"flight_pad_ticks": p.FlightPadTicks, "hit_radius": p.HitRadius,
		"ground_dwell_ms": p.GroundDwellMs, "size": p.Size,
	})
	s := cfg.Server
	set("server", map[string]any{
		"port": s.Port, "debug_port": s.DebugPort, "tick_rate": s.TickRate, "broadcast_rate": s.BroadcastRate,
		"allowed_origins": s.AllowedOrigins, "event_log_path": s.EventLogPath, "seed": s.Seed,
	})
	set("log", map[string]any{"level": cfg.Log.Level, "pretty": cfg.Log.Pretty})
	l := cfg.Limits
	set("limits", map[string]any{
		"max_agents": l.MaxAgents, "max_projectiles": l.MaxProjectiles, "max_pickups": l.MaxPickups,
		"max_clients": l.MaxClients, "input_per_second": l.InputPerSecond,
	})
}
