package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Pedal         PedalJSON    `json:"pedal"`
	Camera        CameraJSON   `json:"camera"`
	Timelapse     bool         `json:"timelapse_active"`
	ActiveUser    UserJSON     `json:"active_user"`
	LastCapture   *CaptureJSON `json:"last_capture,omitempty"`
	Counts        CountsJSON   `json:"counts"`
	Token         *TokenJSON   `json:"token,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// PedalJSON reports the pedal.
type PedalJSON struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
}

// CameraJSON reports the camera.
type CameraJSON struct {
	State     string `json:"state"`
	Capturing bool   `json:"capturing"`
	CheckedAt string `json:"checked_at,omitempty"`
}

// UserJSON identifies the active user.
type UserJSON struct {
	ID   string `json:"username"`
	Name string `json:"display_name"`
}

// CaptureJSON is the JSON representation of the last capture.
type CaptureJSON struct {
	ID        string `json:"id,omitempty"`
	Source    string `json:"source"`
	User      string `json:"user,omitempty"`
	Timestamp string `json:"timestamp"`
	Files     int    `json:"files"`
	Uploaded  int    `json:"uploaded"`
	Error     string `json:"error,omitempty"`
}

// CountsJSON is the JSON representation of activity counts.
type CountsJSON struct {
	Presses       int `json:"presses"`
	Triggers      int `json:"triggers"`
	Debounced     int `json:"debounced"`
	Toggles       int `json:"toggles"`
	Captures      int `json:"captures"`
	CaptureErrors int `json:"capture_errors"`
}

// TokenJSON reports the access token expiry.
type TokenJSON struct {
	ExpiresAt string `json:"expires_at"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	CameraModel         string `json:"camera_model"`
	PollMs              int64  `json:"poll_ms"`
	DebounceMs          int64  `json:"debounce_ms"`
	BurstCount          int    `json:"burst_count"`
	BurstWindowMs       int64  `json:"burst_window_ms"`
	TimelapseIntervalMs int64  `json:"timelapse_interval_ms"`
	HeartbeatMs         int64  `json:"heartbeat_ms"`
	Broker              string `json:"broker"`
	HTTPAddr            string `json:"http_addr"`
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Pedal: PedalJSON{
			State:     orUnknown(string(snap.Pedal)),
			Connected: snap.PedalConnected,
		},
		Camera: CameraJSON{
			State:     orUnknown(snap.Camera),
			Capturing: snap.Capturing,
		},
		Timelapse:  snap.Timelapse,
		ActiveUser: UserJSON{ID: snap.ActiveUser, Name: snap.ActiveUserName},
		Counts: CountsJSON{
			Presses:       snap.Counts.Presses,
			Triggers:      snap.Counts.Captures,
			Debounced:     snap.Counts.Debounced,
			Toggles:       snap.Counts.Toggles,
			Captures:      snap.Captures,
			CaptureErrors: snap.CaptureErrors,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			CameraModel:         snap.Config.CameraModel,
			PollMs:              snap.Config.PollMs,
			DebounceMs:          snap.Config.DebounceMs,
			BurstCount:          snap.Config.BurstCount,
			BurstWindowMs:       snap.Config.BurstWindowMs,
			TimelapseIntervalMs: snap.Config.TimelapseIntervalMs,
			HeartbeatMs:         snap.Config.HeartbeatMs,
			Broker:              snap.Config.Broker,
			HTTPAddr:            snap.Config.HTTPAddr,
		},
	}

	if !snap.CameraCheckedAt.IsZero() {
		inner.Camera.CheckedAt = snap.CameraCheckedAt.UTC().Format(time.RFC3339)
	}
	if c := snap.LastCapture; c != nil {
		inner.LastCapture = &CaptureJSON{
			ID:        c.ID,
			Source:    c.Source,
			User:      c.User,
			Timestamp: c.Time.UTC().Format(time.RFC3339),
			Files:     c.Files,
			Uploaded:  c.Uploaded,
			Error:     c.Error,
		}
	}
	if !snap.TokenExpiry.IsZero() {
		inner.Token = &TokenJSON{ExpiresAt: snap.TokenExpiry.UTC().Format(time.RFC3339)}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
