// Package mqtt publishes capture and lifecycle events to an MQTT broker,
// with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"
)

// Default topics. A custom prefix replaces "lab/pedalcam".
const (
	DefaultPrefix = "lab/pedalcam"
	Topic         = DefaultPrefix + "/events"
	TopicSystem   = DefaultPrefix + "/system"
)

// Event types.
const (
	EventCapture            = "CAPTURE"
	EventCaptureFailed      = "CAPTURE_FAILED"
	EventTimelapseOn        = "TIMELAPSE_ON"
	EventTimelapseOff       = "TIMELAPSE_OFF"
	EventCameraConnected    = "CAMERA_CONNECTED"
	EventCameraDisconnected = "CAMERA_DISCONNECTED"
	EventUserChanged        = "USER_CHANGED"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a daemon event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Event is something the daemon did: a capture, a mode change, a camera
// state change or a user switch.
type Event struct {
	Timestamp time.Time
	Type      string
	Source    string
	User      string
	CaptureID string
	Files     int
	Uploaded  int
	Error     string
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Pedalcam EventPayload `json:"pedalcam"`
}

// EventPayload contains the event details.
type EventPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Source    string `json:"source,omitempty"`
	User      string `json:"user,omitempty"`
	CaptureID string `json:"capture_id,omitempty"`
	Files     int    `json:"files,omitempty"`
	Uploaded  int    `json:"uploaded,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FormatPayload creates the JSON payload for an event.
func FormatPayload(event Event) ([]byte, error) {
	payload := Payload{
		Pedalcam: EventPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Type,
			Source:    event.Source,
			User:      event.User,
			CaptureID: event.CaptureID,
			Files:     event.Files,
			Uploaded:  event.Uploaded,
			Error:     event.Error,
		},
	}
	return json.Marshal(payload)
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

// Topics holds the event and system topics for a prefix.
type Topics struct {
	Events string
	System string
}

// TopicsFor returns the topics under prefix. An empty prefix uses DefaultPrefix.
func TopicsFor(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{Events: prefix + "/events", System: prefix + "/system"}
}

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) error             { return nil }
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }
func (NopPublisher) Close() error                    { return nil }
func (NopPublisher) IsConnected() bool               { return false }
