package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"horde/internal/game"
)

const (
	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	// combatBacklog bounds combat events buffered between broadcasts
	combatBacklog = 512

	wsWriteWait     = 5 * time.Second
	wsMaxMessageLen = 1024
)

// Event names on the wire.
const (
	EventState  = "game:state"
	EventCombat = "combat"
	EventInput  = "input"
)

// wsMessage is the envelope for every message in both directions.
type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// wsClient tracks a WebSocket connection with its source IP
type wsClient struct {
	conn  *websocket.Conn
	ip    string
	input *rate.Limiter
}

// HubConfig sizes the WebSocket hub.
type HubConfig struct {
	Origins        []string // Allowed Origin header patterns, see OriginAllowed
	MaxClients     int
	InputPerSecond int
	BroadcastRate  int // game:state pushes per second
}

// CombatFeed buffers combat events from the tick goroutine until the next
// broadcast. It implements game.CombatSink.
type CombatFeed struct {
	mu      sync.Mutex
	pending []game.CombatEvent
	limit   int
	dropped atomic.Uint64
}

// NewCombatFeed creates a feed holding at most limit events.
func NewCombatFeed(limit int) *CombatFeed {
	return &CombatFeed{limit: limit}
}

// OnCombat queues e, dropping it when the backlog is full.
func (f *CombatFeed) OnCombat(e game.CombatEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) >= f.limit {
		f.dropped.Add(1)
		return
	}
	f.pending = append(f.pending, e)
}

// Drain hands over every queued event.
func (f *CombatFeed) Drain() []game.CombatEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending
	f.pending = nil
	return out
}

// Dropped returns how many events overflowed the backlog.
func (f *CombatFeed) Dropped() uint64 {
	return f.dropped.Load()
}

// WebSocketHub manages spectator and player connections with DoS protection.
// Only the Run goroutine writes to connections.
type WebSocketHub struct {
	engine   EngineInterface
	cfg      HubConfig
	log      zerolog.Logger
	upgrader websocket.Upgrader

	clients    map[*websocket.Conn]*wsClient
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *websocket.Conn
	mu         sync.RWMutex

	// Connection limiting per IP
	wsLimiter *WebSocketRateLimiter
	combat    *CombatFeed

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWebSocketHub creates a new hub. No goroutines start until Run and
// StartBroadcastLoop.
func NewWebSocketHub(engine EngineInterface, cfg HubConfig, log zerolog.Logger) *WebSocketHub {
	if cfg.BroadcastRate <= 0 {
		cfg.BroadcastRate = 10
	}
	if cfg.InputPerSecond <= 0 {
		cfg.InputPerSecond = 60
	}
	h := &WebSocketHub{
		engine:     engine,
		cfg:        cfg,
		log:        log,
		clients:    make(map[*websocket.Conn]*wsClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
		wsLimiter:  NewWebSocketRateLimiter(MaxWSConnectionsPerIP),
		combat:     NewCombatFeed(combatBacklog),
		stopChan:   make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Combat returns the sink to attach to the engine.
func (h *WebSocketHub) Combat() *CombatFeed {
	return h.combat
}

func (h *WebSocketHub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if OriginAllowed(origin, h.cfg.Origins) {
		return true
	}
	// Log rejected origin for security monitoring
	h.log.Warn().Str("origin", origin).Msg("⚠️ websocket origin rejected")
	RecordConnectionRejected("origin")
	return false
}

// Run owns the client set until Stop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.mu.Unlock()

			h.log.Info().Str("ip", client.ip).Int("clients", count).Msg("📱 client connected")
			UpdateWSConnections(count)

		case conn := <-h.unregister:
			h.drop(conn)

		case message := <-h.broadcast:
			h.mu.RLock()
			var failed []*websocket.Conn
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					failed = append(failed, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range failed {
				h.drop(conn)
			}
			IncrementWSMessages()

		case <-h.stopChan:
			h.mu.Lock()
			for conn, client := range h.clients {
				h.wsLimiter.Release(client.ip)
				conn.Close()
			}
			clear(h.clients)
			h.mu.Unlock()
			UpdateWSConnections(0)
			return
		}
	}
}

func (h *WebSocketHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	client, ok := h.clients[conn]
	if ok {
		// Release the connection slot for this IP
		h.wsLimiter.Release(client.ip)
		delete(h.clients, conn)
	}
	count := len(h.clients)
	h.mu.Unlock()

	conn.Close()
	if ok {
		h.log.Info().Int("clients", count).Msg("📱 client disconnected")
		UpdateWSConnections(count)
	}
}

// Stop disconnects every client and ends Run and the broadcast loop.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
	})
}

// Broadcast queues a message for every connected client. Messages are
// dropped when the queue is full.
func (h *WebSocketHub) Broadcast(event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.log.Warn().Err(err).Str("event", event).Msg("broadcast encode failed")
		return
	}
	msg, err := json.Marshal(wsMessage{Event: event, Data: payload})
	if err != nil {
		return
	}

	select {
	case h.broadcast <- msg:
	default:
		// Channel full, skip (backpressure)
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartBroadcastLoop pushes the latest snapshot and the combat events
// since the previous push at the configured rate.
func (h *WebSocketHub) StartBroadcastLoop() {
	ticker := time.NewTicker(time.Second / time.Duration(h.cfg.BroadcastRate))

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-h.stopChan:
				return
			case <-ticker.C:
			}

			events := h.combat.Drain()
			if h.ClientCount() == 0 {
				continue
			}
			h.Broadcast(EventState, h.engine.Snapshot())
			if len(events) > 0 {
				h.Broadcast(EventCombat, events)
			}
		}
	}()
}

// HandleWebSocket upgrades the request and reads player input until the
// client goes away.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if h.cfg.MaxClients > 0 && h.ClientCount() >= h.cfg.MaxClients {
		h.log.Warn().Int("limit", h.cfg.MaxClients).Msg("⚠️ websocket rejected: total limit reached")
		RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	if !h.wsLimiter.Allow(ip) {
		h.log.Warn().Str("ip", ip).Msg("⚠️ websocket rejected: per-IP limit reached")
		RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Str("ip", ip).Msg("websocket upgrade failed")
		h.wsLimiter.Release(ip) // Release the slot we reserved
		return
	}
	conn.SetReadLimit(wsMaxMessageLen)

	client := &wsClient{
		conn:  conn,
		ip:    ip,
		input: rate.NewLimiter(rate.Limit(h.cfg.InputPerSecond), h.cfg.InputPerSecond),
	}
	select {
	case h.register <- client:
	case <-h.stopChan:
		h.wsLimiter.Release(ip)
		conn.Close()
		return
	}

	go h.readLoop(client)
}

func (h *WebSocketHub) readLoop(c *wsClient) {
	defer func() {
		select {
		case h.unregister <- c.conn:
		case <-h.stopChan:
		}
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event != EventInput {
			continue
		}
		if !c.input.Allow() {
			RecordConnectionRejected("input_rate")
			continue
		}
		var in game.Input
		if err := json.Unmarshal(msg.Data, &in); err != nil || !validInput(in) {
			continue
		}
		h.engine.SetInput(in)
	}
}
