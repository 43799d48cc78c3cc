package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"horde/internal/game"
	"horde/internal/minimap"
)

// EngineInterface defines the engine methods used by the API.
// This interface enables fakes in tests without spinning up the game loop.
// Keep this minimal - only include methods the API layer actually calls.
type EngineInterface interface {
	// Snapshot returns the latest immutable snapshot
	Snapshot() *game.Snapshot
	// Zone returns the current safe-zone state
	Zone() game.SafeZone
	// Agent returns one agent or an error wrapping game.ErrUnknownAgent
	Agent(id game.AgentID) (game.AgentSnapshot, error)
	// Stats returns a point-in-time engine summary
	Stats() game.EngineStats
	// SetInput replaces the player leader's input
	SetInput(in game.Input)
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	router := api.NewRouter(api.RouterConfig{
//	    Engine: fakeEngine,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is the game engine (required)
	Engine EngineInterface

	// Logger receives request logs. The zero value discards them.
	Logger zerolog.Logger

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used if RateLimiter is nil. If both are nil,
	// DefaultRateLimitConfig applies.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is the list of allowed CORS origins. If nil, only local
	// development origins are allowed.
	CORSOrigins []string

	// Minimap renders /api/minimap.png. If nil, a DefaultSize renderer is used.
	Minimap *minimap.Renderer

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the handler dependencies.
type routerHandlers struct {
	engine      EngineInterface
	minimap     *minimap.Renderer
	rateLimiter *IPRateLimiter
	log         zerolog.Logger
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// NewRouter starts no goroutines except the rate limiter's cleanup loop
// (when it creates the limiter itself) and opens no listeners, so it is
// safe to use with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(requestLogger(cfg.Logger))
	}
	r.Use(middleware.Recoverer)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = DefaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	renderer := cfg.Minimap
	if renderer == nil {
		renderer = minimap.NewRenderer(minimap.DefaultSize)
	}

	h := &routerHandlers{
		engine:      cfg.Engine,
		minimap:     renderer,
		rateLimiter: rateLimiter,
		log:         cfg.Logger,
	}

	r.Route("/api", func(r chi.Router) {
		// Match state
		r.Get("/state", h.handleGetState)
		r.Get("/zone", h.handleGetZone)
		r.Get("/standings", h.handleGetStandings)
		r.Get("/stats", h.handleGetStats)
		r.Get("/agents/{id}", h.handleGetAgent)
		r.Get("/minimap.png", h.handleGetMinimap)

		// Player control
		r.Post("/input", h.handlePostInput)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/state", http.StatusFound)
	})

	return r
}

// requestLogger logs each request through zerolog and records the request
// metrics. The endpoint label is the chi route pattern, never the raw URL.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			endpoint := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				endpoint = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			RecordRequest(r.Method, endpoint, status, elapsed)

			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", elapsed).
				Msg("http request")
		})
	}
}
