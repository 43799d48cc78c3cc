package game

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	EventBufferSize      = 1024                   // Circular buffer size
	MaxEventsPerSec      = 10000                  // Global rate limit
	MaxEventsPerSource   = 500                    // Per-team rate limit per second
	BatchFlushSize       = 64                     // Events per batch write
	BatchFlushInterval   = 100 * time.Millisecond // How often to flush
	SourceLimiterCleanup = 5 * time.Minute        // Cleanup interval for source limiters
)

// EventLog is a bounded, rate-limited JSONL log of match events. It
// implements CombatSink so it can be attached to a World directly.
type EventLog struct {
	// Circular buffer; oldest entries are overwritten under pressure
	mu        sync.Mutex
	buffer    [EventBufferSize]Event
	writeHead uint64
	readHead  uint64

	// Rate limiting keeps one brawling team from drowning the log
	globalLimiter  *rate.Limiter
	sourceLimiters sync.Map // map[string]*sourceLimiterEntry

	// Async writer
	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	matchID atomic.Value // string

	// File output
	file   *os.File
	out    *bufio.Writer
	fileMu sync.Mutex

	log zerolog.Logger

	droppedCount atomic.Uint64
	totalCount   atomic.Uint64
}

// sourceLimiterEntry tracks per-source rate limiting
type sourceLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // unix nano
}

// NewEventLog creates a new bounded event log
func NewEventLog(logger zerolog.Logger) *EventLog {
	el := &EventLog{
		globalLimiter: rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
		stopChan:      make(chan struct{}),
		log:           logger,
	}
	el.matchID.Store("")
	return el
}

// SetMatch stamps subsequent records with matchID.
func (el *EventLog) SetMatch(matchID string) {
	el.matchID.Store(matchID)
}

// Start opens filePath for append and begins the async writer goroutine.
// An empty path keeps events in memory only.
func (el *EventLog) Start(filePath string) error {
	if el.running.Load() {
		return nil
	}

	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open event log %s: %w", filePath, err)
		}
		el.file = file
		el.out = bufio.NewWriter(file)
	}

	el.running.Store(true)
	el.writerWg.Add(2)
	go el.writerLoop()
	go el.cleanupLoop()

	return nil
}

// Stop flushes pending events and closes the file.
func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
		if !el.running.Load() {
			return
		}
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()

		el.fileMu.Lock()
		defer el.fileMu.Unlock()
		if el.file != nil {
			if err := el.out.Flush(); err != nil {
				el.log.Error().Err(err).Msg("event log flush failed")
			}
			el.file.Close()
		}
	})
}

// Emit adds an event with rate limiting.
// Returns false if not running or rate limited.
func (el *EventLog) Emit(event Event) bool {
	if !el.running.Load() {
		return false
	}

	if !el.globalLimiter.Allow() {
		el.droppedCount.Add(1)
		return false
	}
	if event.Source != "" && !el.sourceLimiter(event.Source).Allow() {
		el.droppedCount.Add(1)
		return false
	}

	event.MatchID = el.matchID.Load().(string)
	el.push(event)
	el.totalCount.Add(1)
	return true
}

// push appends to the circular buffer, overwriting the oldest entry when
// the writer has fallen a full buffer behind.
func (el *EventLog) push(event Event) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.writeHead++
	if el.writeHead-el.readHead > EventBufferSize {
		el.readHead++
		el.droppedCount.Add(1)
	}
	event.Sequence = el.writeHead
	el.buffer[el.writeHead%EventBufferSize] = event
}

// EmitSimple is a convenience method to emit an event with automatic creation
func (el *EventLog) EmitSimple(eventType EventType, frame uint64, source string, payload any) bool {
	return el.Emit(NewEvent(eventType, frame, source, payload))
}

// OnCombat records a combat event keyed by the actor's team.
func (el *EventLog) OnCombat(e CombatEvent) {
	el.EmitSimple(EventTypeCombat, e.Frame, "team-"+strconv.Itoa(e.Team), e)
}

func (el *EventLog) sourceLimiter(source string) *rate.Limiter {
	now := time.Now().UnixNano()
	if entry, ok := el.sourceLimiters.Load(source); ok {
		e := entry.(*sourceLimiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}

	entry := &sourceLimiterEntry{limiter: rate.NewLimiter(MaxEventsPerSource, MaxEventsPerSource/10)}
	entry.lastUsed.Store(now)
	actual, _ := el.sourceLimiters.LoadOrStore(source, entry)
	return actual.(*sourceLimiterEntry).limiter
}

// writerLoop batches and writes events to disk asynchronously
func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)

	for {
		select {
		case <-el.stopChan:
			// Drain everything on shutdown
			for {
				batch = el.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				el.flushBatch(batch)
			}

		case <-ticker.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

// cleanupLoop removes stale source limiters
func (el *EventLog) cleanupLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(SourceLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			el.cleanupSourceLimiters()
		}
	}
}

func (el *EventLog) cleanupSourceLimiters() {
	cutoff := time.Now().Add(-SourceLimiterCleanup).UnixNano()
	el.sourceLimiters.Range(func(key, value any) bool {
		if value.(*sourceLimiterEntry).lastUsed.Load() < cutoff {
			el.sourceLimiters.Delete(key)
		}
		return true
	})
}

// collectBatch reads available events from the circular buffer
func (el *EventLog) collectBatch(batch []Event) []Event {
	el.mu.Lock()
	defer el.mu.Unlock()

	for el.readHead < el.writeHead && len(batch) < BatchFlushSize {
		el.readHead++
		batch = append(batch, el.buffer[el.readHead%EventBufferSize])
	}
	return batch
}

// flushBatch writes events as newline-delimited JSON
func (el *EventLog) flushBatch(batch []Event) {
	el.fileMu.Lock()
	defer el.fileMu.Unlock()

	if el.out == nil {
		return
	}

	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			el.log.Warn().Err(err).Str("type", event.Type.String()).Msg("event encode failed")
			continue
		}
		el.out.Write(data)
		el.out.WriteByte('\n')
	}
	if err := el.out.Flush(); err != nil {
		el.log.Error().Err(err).Msg("event log write failed")
	}
}

// EventLogStats is a point-in-time view of log throughput.
type EventLogStats struct {
	Total   uint64 `json:"total"`
	Dropped uint64 `json:"dropped"`
	Pending uint64 `json:"pending"`
	Running bool   `json:"running"`
}

// Stats returns counters for monitoring
func (el *EventLog) Stats() EventLogStats {
	el.mu.Lock()
	pending := el.writeHead - el.readHead
	el.mu.Unlock()

	return EventLogStats{
		Total:   el.totalCount.Load(),
		Dropped: el.droppedCount.Load(),
		Pending: pending,
		Running: el.running.Load(),
	}
}
