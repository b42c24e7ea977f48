// Package mqtt mirrors webhouse telemetry and lifecycle events to an MQTT
// broker, with an abstraction for testing.
package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/webhouse/internal/protocol"
)

// Topic suffixes below the configured base topic.
const (
	SuffixTelemetry = "telemetry"
	SuffixSystem    = "system"
)

// Topics holds the full topic names a publisher writes to.
type Topics struct {
	Telemetry string
	System    string
}

// NewTopics derives the telemetry and system topics from a base topic.
func NewTopics(base string) Topics {
	base = strings.TrimRight(base, "/")
	return Topics{
		Telemetry: base + "/" + SuffixTelemetry,
		System:    base + "/" + SuffixSystem,
	}
}

// Publisher publishes telemetry and system events.
type Publisher interface {
	// Mirror sends changed telemetry values to the broker.
	// Returns error if publishing fails (should not crash the process).
	Mirror(ctx context.Context, at time.Time, t protocol.Telemetry) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the telemetry message body.
type Payload struct {
	Telemetry TelemetryPayload `json:"telemetry"`
}

// TelemetryPayload carries every reported value plus the names of the ones
// that changed.
type TelemetryPayload struct {
	Timestamp           string   `json:"timestamp"`
	MeasuredTemperature int      `json:"measured_temperature"`
	Heater              int      `json:"heater"`
	Burglar             bool     `json:"burglar"`
	Changed             []string `json:"changed"`
}

// FormatPayload creates the JSON payload for a telemetry update.
func FormatPayload(at time.Time, t protocol.Telemetry) ([]byte, error) {
	changed := []string{}
	if t.Flags.Temperature {
		changed = append(changed, "measured_temperature")
	}
	if t.Flags.Heater {
		changed = append(changed, "heater")
	}
	if t.Flags.Alarm {
		changed = append(changed, "burglar")
	}

	return json.Marshal(Payload{
		Telemetry: TelemetryPayload{
			Timestamp:           at.UTC().Format(time.RFC3339),
			MeasuredTemperature: t.Measured,
			Heater:              t.Heater,
			Burglar:             t.Burglar,
			Changed:             changed,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Nop discards everything. Used when no broker is configured.
type Nop struct{}

func (Nop) Mirror(context.Context, time.Time, protocol.Telemetry) error { return nil }
func (Nop) PublishSystem(SystemEvent) error                             { return nil }
func (Nop) Close() error                                                { return nil }
func (Nop) IsConnected() bool                                           { return false }
