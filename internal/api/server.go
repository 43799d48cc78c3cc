package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"horde/internal/config"
	"horde/internal/game"
	"horde/internal/minimap"
)

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with the WebSocket hub for real-time updates.
type Server struct {
	engine      *game.Engine
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	metrics     *MetricsSink
	log         zerolog.Logger

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates the API server for engine.
//
// IMPORTANT: Background workers do NOT start and the engine is not wired
// until Start is called, so tests can construct the server and use Router.
func NewServer(engine *game.Engine, cfg config.AppConfig, logger zerolog.Logger) *Server {
	log := logger.With().Str("component", "api").Logger()
	s := &Server{
		engine:      engine,
		rateLimiter: NewIPRateLimiter(DefaultRateLimitConfig),
		metrics:     NewMetricsSink(engine.EventLogStats),
		log:         log,
	}
	s.wsHub = NewWebSocketHub(engine, HubConfig{
		Origins:        cfg.Server.AllowedOrigins,
		MaxClients:     cfg.Limits.MaxClients,
		InputPerSecond: cfg.Limits.InputPerSecond,
		BroadcastRate:  cfg.Server.BroadcastRate,
	}, log)

	s.router = NewRouter(RouterConfig{
		Engine:      engine,
		Logger:      log,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.Server.AllowedOrigins,
		Minimap:     minimap.NewRenderer(minimap.DefaultSize),
	})

	// WebSocket routes need the hub instance, so they are added here
	// rather than in NewRouter.
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	return s
}

// Start wires metrics and the combat feed into the engine, starts the hub
// and serves HTTP on addr until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start(addr string) error {
	s.engine.AddCombatSink(s.metrics)
	s.engine.AddCombatSink(s.wsHub.Combat())
	s.engine.OnTick(s.metrics.ObserveTick)

	go s.wsHub.Run()
	s.wsHub.StartBroadcastLoop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()
	s.log.Info().Str("addr", addr).Msg("🌐 API server starting")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Shutdown stops background workers and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHub.Stop()
	s.rateLimiter.Stop()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}
