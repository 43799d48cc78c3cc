package game

import (
	"encoding/json"
	"time"

	"horde/internal/game/spatial"
)

// CombatKind classifies a combat moment.
type CombatKind uint8

const (
	CombatMelee CombatKind = iota // Melee damage landed
	CombatArrowFired
	CombatArrowHit
	CombatDeath
	CombatStructureDestroyed
)

// String returns the combat kind name.
func (k CombatKind) String() string {
	switch k {
	case CombatMelee:
		return "melee"
	case CombatArrowFired:
		return "arrow_fired"
	case CombatArrowHit:
		return "arrow_hit"
	case CombatDeath:
		return "death"
	case CombatStructureDestroyed:
		return "structure_destroyed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k CombatKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// CombatEvent carries enough context for audio/VFX selection downstream.
// Actor fields describe the attacker, or the victim for deaths.
type CombatEvent struct {
	Kind    CombatKind  `json:"kind"`
	Frame   uint64      `json:"frame"`
	X       float64     `json:"x"`
	Y       float64     `json:"y"`
	Actor   AgentID     `json:"actor"`
	Role    Role        `json:"role"`
	Level   int         `json:"level"`
	Faction Faction     `json:"faction"`
	Team    int         `json:"team"`
	Target  spatial.Ref `json:"target"`
	Damage  float64     `json:"damage,omitempty"`
}

// CombatSink receives combat events synchronously from inside a frame.
// Implementations must not call back into the world.
type CombatSink interface {
	OnCombat(CombatEvent)
}

// CombatSinkFunc adapts a function to CombatSink.
type CombatSinkFunc func(CombatEvent)

// OnCombat calls f(e).
func (f CombatSinkFunc) OnCombat(e CombatEvent) { f(e) }

// MultiSink fans one event out to several sinks in order.
type MultiSink []CombatSink

// OnCombat forwards e to every non-nil sink.
func (m MultiSink) OnCombat(e CombatEvent) {
	for _, s := range m {
		if s != nil {
			s.OnCombat(e)
		}
	}
}

// MarshalText encodes the role by name.
func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// MarshalText encodes the faction by name.
func (f Faction) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// EventType enum for event-log record classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeMatchStart
	EventTypeCombat
	EventTypeZonePhase
	EventTypeMatchEnd
)

// EventVersion for backwards compatibility of the log format
const EventVersion uint8 = 1

// Event is one event-log record.
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`  // Monotonic sequence
	Frame     uint64          `json:"frame"`
	MatchID   string          `json:"matchId"`
	Source    string          `json:"source"` // Rate-limit key, usually the team
	Payload   json.RawMessage `json:"payload"`
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeMatchStart:
		return "match_start"
	case EventTypeCombat:
		return "combat"
	case EventTypeZonePhase:
		return "zone_phase"
	case EventTypeMatchEnd:
		return "match_end"
	default:
		return "unknown"
	}
}

// MarshalText encodes the type by name.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// MatchPayload is written at match start and end.
type MatchPayload struct {
	Seed    int64  `json:"seed"`
	Leaders int    `json:"leaders"`
	Agents  int    `json:"agents"`
	Outcome string `json:"outcome,omitempty"`
}

// ZonePayload records a safe-zone phase transition.
type ZonePayload struct {
	Phase   string  `json:"phase"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Radius  float64 `json:"radius"`
	TargetX float64 `json:"targetX"`
	TargetY float64 `json:"targetY"`
	TargetR float64 `json:"targetR"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload any) json.RawMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, frame uint64, source string, payload any) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		Frame:     frame,
		Source:    source,
		Payload:   EncodePayload(payload),
	}
}
