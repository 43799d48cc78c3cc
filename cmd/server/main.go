package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"horde/internal/api"
	"horde/internal/config"
	"horde/internal/game"
	"horde/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "config file (defaults to ./horde.yaml if present)")
	factionName := flag.String("faction", "human", "player faction: human, elf or orc")
	noDebug := flag.Bool("no-debug", false, "disable the pprof/metrics server")
	flag.Parse()

	// Load .env file from parent directory, then the current one
	envErr := godotenv.Load("../.env")
	if envErr != nil {
		envErr = godotenv.Load(".env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log, os.Stderr)
	if envErr != nil {
		log.Debug().Msg("💡 no .env file found, using environment variables only")
	}

	faction, err := game.ParseFaction(*factionName)
	if err != nil {
		log.Fatal().Err(err).Msg("bad -faction")
	}

	log.Info().Msg("⚔️ ================================")
	log.Info().Msg("⚔️  HORDE - ARENA SERVER")
	log.Info().Msg("⚔️ ================================")

	engine := game.NewEngine(cfg, log)
	var pop game.Population
	engine.WithWorld(func(w *game.World) {
		pop = game.PopulateWorld(w, faction)
	})
	log.Info().
		Str("match", engine.MatchID()).
		Int64("seed", engine.Seed()).
		Int("leaders", pop.Leaders).
		Int("followers", pop.Followers).
		Int("structures", pop.Structures).
		Int("obstacles", pop.Obstacles).
		Msg("🗺️ world populated")
	log.Info().
		Int("agents", cfg.Limits.MaxAgents).
		Int("projectiles", cfg.Limits.MaxProjectiles).
		Int("clients", cfg.Limits.MaxClients).
		Msg("🛡️ resource limits")

	if cfg.Server.EventLogPath != "" {
		if err := engine.StartEventLog(cfg.Server.EventLogPath); err != nil {
			log.Warn().Err(err).Msg("⚠️ event log disabled")
		} else {
			log.Info().Str("path", cfg.Server.EventLogPath).Msg("📝 event log")
		}
	}

	debugCfg := api.DefaultObservabilityConfig(cfg.Server.DebugPort)
	debugCfg.Enabled = !*noDebug
	debugSrv := api.StartDebugServer(debugCfg, log)

	server := api.NewServer(engine, cfg, log)

	engine.Start()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(fmt.Sprintf(":%d", cfg.Server.Port))
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Int("port", cfg.Server.Port).Msg("✅ server ready, press Ctrl+C to stop")
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("❌ API server failed")
		}
	}

	log.Info().Msg("🛑 shutting down...")
	shutdown(server, debugSrv, engine, log)
	log.Info().Str("outcome", engine.Outcome().String()).Msg("👋 goodbye")
}

func shutdown(server *api.Server, debugSrv *http.Server, engine *game.Engine, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("⚠️ API shutdown")
	}
	if debugSrv != nil {
		if err := debugSrv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("⚠️ debug server shutdown")
		}
	}
	engine.Stop()
}
