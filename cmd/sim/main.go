// Command sim runs a match headless as fast as the CPU allows and reports
// the result. With -minimap it also writes a PNG of the arena every
// -every frames, which is handy for eyeballing zone and formation behavior.
//
// USAGE:
//
//	go run ./cmd/sim -frames 20000 -seed 42 -minimap out/
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"horde/internal/config"
	"horde/internal/game"
	"horde/internal/logging"
	"horde/internal/minimap"
)

func main() {
	configPath := flag.String("config", "", "config file (defaults to ./horde.yaml if present)")
	frames := flag.Int("frames", 36000, "maximum frames to simulate")
	seed := flag.Int64("seed", 0, "world seed (0 uses the configured seed)")
	factionName := flag.String("faction", "human", "player faction: human, elf or orc")
	minimapDir := flag.String("minimap", "", "directory for minimap PNGs (empty disables)")
	every := flag.Int("every", 600, "frames between minimap PNGs")
	size := flag.Int("size", minimap.DefaultSize, "minimap size in pixels")
	flag.Parse()

	_ = godotenv.Load(".env")

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *seed != 0 {
		cfg.Server.Seed = *seed
	}
	log := logging.New(cfg.Log, os.Stderr)

	faction, err := game.ParseFaction(*factionName)
	if err != nil {
		log.Fatal().Err(err).Msg("bad -faction")
	}

	var renderer *minimap.Renderer
	if *minimapDir != "" {
		if err := os.MkdirAll(*minimapDir, 0o755); err != nil {
			log.Fatal().Err(err).Msg("minimap directory")
		}
		renderer = minimap.NewRenderer(*size)
	}

	engine := game.NewEngine(cfg, log)
	var pop game.Population
	engine.WithWorld(func(w *game.World) {
		pop = game.PopulateWorld(w, faction)
	})
	if cfg.Server.EventLogPath != "" {
		if err := engine.StartEventLog(cfg.Server.EventLogPath); err != nil {
			log.Warn().Err(err).Msg("⚠️ event log disabled")
		}
	}
	log.Info().
		Str("match", engine.MatchID()).
		Int64("seed", engine.Seed()).
		Int("leaders", pop.Leaders).
		Int("followers", pop.Followers).
		Msg("🎮 simulating")

	frameMs := cfg.Sim.World.FrameMs
	start := time.Now()
	var slowest time.Duration
	frame := 0
	for ; frame < *frames && engine.Outcome() == game.OutcomeRunning; frame++ {
		t0 := time.Now()
		engine.Step(frameMs)
		slowest = max(slowest, time.Since(t0))

		if renderer != nil && frame%*every == 0 {
			path := filepath.Join(*minimapDir, fmt.Sprintf("frame_%06d.png", frame))
			if err := renderer.SavePNG(path, engine.Capture()); err != nil {
				log.Error().Err(err).Msg("❌ minimap write failed")
				renderer = nil
			}
		}
	}
	elapsed := time.Since(start)
	engine.Stop()

	stats := engine.Stats()
	ev := log.Info().
		Str("outcome", engine.Outcome().String()).
		Int("frames", frame).
		Float64("match_seconds", stats.ElapsedMs/1000).
		Dur("wall", elapsed).
		Dur("slowest_frame", slowest).
		Int("agents", stats.Agents).
		Int("leaders_alive", stats.LeadersAlive)
	if frame > 0 {
		ev = ev.Dur("avg_frame", elapsed/time.Duration(frame))
	}
	ev.Msg("🏁 simulation finished")

	for i, st := range stats.Standings {
		log.Info().
			Int("rank", i+1).
			Int("team", st.Team).
			Str("faction", st.Faction.String()).
			Int("kills", st.Kills).
			Int("leader_kills", st.LeaderKills).
			Float64("score", st.Score).
			Msg("🏆 standing")
	}
}
