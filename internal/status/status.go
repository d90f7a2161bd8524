// Package status provides a thread-safe status tracker for the pedalcam daemon.
// It is read by HTTP handlers, heartbeat events and the status LED.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/pedalcam/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	CameraModel         string
	PollMs              int64
	DebounceMs          int64
	BurstCount          int
	BurstWindowMs       int64
	TimelapseIntervalMs int64
	HeartbeatMs         int64
	Broker              string
	HTTPAddr            string
}

// CaptureInfo describes the most recent capture attempt.
type CaptureInfo struct {
	ID       string
	Source   string
	User     string
	Time     time.Time
	Files    int
	Uploaded int
	Error    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Pedal           logic.State
	PedalConnected  bool
	Camera          string
	CameraCheckedAt time.Time
	Timelapse       bool
	Capturing       bool
	ActiveUser      string
	ActiveUserName  string
	LastCapture     *CaptureInfo
	Counts          logic.Counts
	Captures        int
	CaptureErrors   int
	TokenExpiry     time.Time
	StartTime       time.Time
	Now             time.Time
	MQTTConnected   bool
	Network         *NetworkInfo
	Config          Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// UpdatePedal sets the pedal state and classifier counts.
// Called from the control loop after every report.
func (t *Tracker) UpdatePedal(state logic.State, counts logic.Counts) {
	t.mu.Lock()
	t.snap.Pedal = state
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetPedalConnected records whether the pedal device is open.
func (t *Tracker) SetPedalConnected(connected bool) {
	t.mu.Lock()
	t.snap.PedalConnected = connected
	t.mu.Unlock()
}

// SetCamera records the camera connection state and when it was observed.
func (t *Tracker) SetCamera(state string, at time.Time) {
	t.mu.Lock()
	t.snap.Camera = state
	t.snap.CameraCheckedAt = at
	t.mu.Unlock()
}

// SetTimelapse records whether timelapse mode is running.
func (t *Tracker) SetTimelapse(running bool) {
	t.mu.Lock()
	t.snap.Timelapse = running
	t.mu.Unlock()
}

// SetCapturing records whether a capture is in flight.
func (t *Tracker) SetCapturing(capturing bool) {
	t.mu.Lock()
	t.snap.Capturing = capturing
	t.mu.Unlock()
}

// SetActiveUser records the active user id and display name.
func (t *Tracker) SetActiveUser(id, name string) {
	t.mu.Lock()
	t.snap.ActiveUser = id
	t.snap.ActiveUserName = name
	t.mu.Unlock()
}

// RecordCapture stores the latest capture and updates the totals.
func (t *Tracker) RecordCapture(info CaptureInfo) {
	t.mu.Lock()
	t.snap.LastCapture = &info
	t.snap.Captures++
	if info.Error != "" {
		t.snap.CaptureErrors++
	}
	t.mu.Unlock()
}

// SetTokenExpiry records when the current access token expires.
func (t *Tracker) SetTokenExpiry(expiry time.Time) {
	t.mu.Lock()
	t.snap.TokenExpiry = expiry
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastCapture != nil {
		c := *s.LastCapture
		s.LastCapture = &c
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
