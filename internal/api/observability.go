package api

import (
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"horde/internal/game"
)

// Metrics with bounded cardinality (no per-agent or per-team labels)
var (
	// Simulation metrics
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "game_tick_duration_seconds",
		Help:    "Time spent in one simulation frame",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.016, 0.033},
	})

	frameCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "game_frame",
		Help: "Frames simulated in the current match",
	})

	entityCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "game_entities",
		Help: "Live entities by kind",
	}, []string{"kind"}) // Bounded: "agent", "projectile", "structure", "pickup"

	zoneRadius = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "game_zone_radius",
		Help: "Current safe-zone radius in world units",
	})

	zonePhase = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "game_zone_phase",
		Help: "Safe-zone phase (0 delay, 1 shrinking, 2 pause, 3 moving)",
	})

	combatEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "game_combat_events_total",
		Help: "Combat events by kind",
	}, []string{"kind"}) // Bounded by game.CombatKind

	// Event log metrics
	eventLogTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "event_log_records",
		Help: "Events accepted by the event log this match",
	})

	eventLogDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "event_log_dropped",
		Help: "Events dropped due to rate limiting or buffer full",
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit", "input_rate"

	// HTTP metrics with bounded labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket messages broadcast",
	})
)

// eventLogSampleEvery is how many frames pass between event-log gauge updates.
const eventLogSampleEvery = 60

// MetricsSink feeds simulation metrics. Attach it with Engine.AddCombatSink
// and Engine.OnTick(sink.ObserveTick).
type MetricsSink struct {
	eventLog func() game.EventLogStats
}

// NewMetricsSink creates a sink. eventLog may be nil.
func NewMetricsSink(eventLog func() game.EventLogStats) *MetricsSink {
	return &MetricsSink{eventLog: eventLog}
}

// OnCombat counts one combat event.
func (m *MetricsSink) OnCombat(e game.CombatEvent) {
	combatEvents.WithLabelValues(e.Kind.String()).Inc()
}

// ObserveTick records one frame.
func (m *MetricsSink) ObserveTick(s game.TickStats) {
	tickDuration.Observe(s.Duration.Seconds())
	frameCount.Set(float64(s.Frame))
	entityCount.WithLabelValues("agent").Set(float64(s.Agents))
	entityCount.WithLabelValues("projectile").Set(float64(s.Projectiles))
	entityCount.WithLabelValues("structure").Set(float64(s.Structures))
	entityCount.WithLabelValues("pickup").Set(float64(s.Pickups))
	zoneRadius.Set(s.ZoneRadius)
	zonePhase.Set(float64(s.ZonePhase))

	if m.eventLog != nil && s.Frame%eventLogSampleEvery == 0 {
		st := m.eventLog()
		eventLogTotal.Set(float64(st.Total))
		eventLogDropped.Set(float64(st.Dropped))
	}
}

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // Loopback only unless AllowExternal
	AllowExternal bool
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults for the given port.
func DefaultObservabilityConfig(port int) ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: fmt.Sprintf("127.0.0.1:%d", port),
	}
}

// DebugHandler serves pprof, Prometheus metrics and a health check.
func DebugHandler(cfg ObservabilityConfig) http.Handler {
	mux := http.NewServeMux()

	// pprof endpoints for profiling
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.BasicAuthUser != "" {
		return basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}
	return mux
}

// StartDebugServer starts the internal observability server in the
// background and returns it for shutdown. It returns nil when disabled.
// CRITICAL: binds to loopback unless AllowExternal is set, since pprof
// can be used to stall the process.
func StartDebugServer(cfg ObservabilityConfig, log zerolog.Logger) *http.Server {
	if !cfg.Enabled {
		log.Info().Msg("📊 debug server disabled")
		return nil
	}

	if !cfg.AllowExternal && !isLoopback(cfg.ListenAddr) {
		_, port, err := net.SplitHostPort(cfg.ListenAddr)
		if err != nil {
			port = "6060"
		}
		log.Warn().Str("requested", cfg.ListenAddr).Msg("⚠️ debug server forced to loopback")
		cfg.ListenAddr = net.JoinHostPort("127.0.0.1", port)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           DebugHandler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().
			Str("pprof", "http://"+cfg.ListenAddr+"/debug/pprof/").
			Str("metrics", "http://"+cfg.ListenAddr+"/metrics").
			Msg("📊 debug server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("⚠️ debug server error")
		}
	}()
	return srv
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecordConnectionRejected increments the rejection counter.
// reason must be one of the bounded values listed on connectionRejected.
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments WebSocket message counter
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}
