// Package control runs the pedal polling loop and coordinates the camera,
// the timelapse scheduler and every status side channel (tracker, metrics,
// MQTT, LED, alerts). The web panel drives the same operations.
package control

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sweeney/pedalcam/internal/auth"
	"github.com/sweeney/pedalcam/internal/camera"
	"github.com/sweeney/pedalcam/internal/gpio"
	"github.com/sweeney/pedalcam/internal/logic"
	"github.com/sweeney/pedalcam/internal/metrics"
	"github.com/sweeney/pedalcam/internal/mqtt"
	"github.com/sweeney/pedalcam/internal/notify"
	"github.com/sweeney/pedalcam/internal/pedal"
	"github.com/sweeney/pedalcam/internal/profile"
	"github.com/sweeney/pedalcam/internal/status"
	"github.com/sweeney/pedalcam/internal/timelapse"
)

// Loop defaults.
const (
	DefaultReadTimeout   = 100 * time.Millisecond
	DefaultIdle          = 10 * time.Millisecond
	DefaultCheckInterval = 300 * time.Second
	DefaultMaxReadErrors = 100
)

// ErrCaptureInFlight is returned by CaptureNow while another capture runs.
var ErrCaptureInFlight = errors.New("control: a capture is already in progress")

// ErrPedalLost is returned by Run when the pedal keeps failing to read.
var ErrPedalLost = errors.New("control: pedal lost")

// Camera is the capture device.
type Camera interface {
	Capture(ctx context.Context, timelapse bool) (*camera.Result, error)
	CheckConnection(ctx context.Context) bool
	State() camera.ConnectionState
}

// Profiles is the user profile store.
type Profiles interface {
	List() ([]profile.Entry, error)
	Get(id string) (profile.Profile, error)
	Active() (string, profile.Profile, error)
	SetActive(id string) error
	Save(id, displayName, cloudFolder string) (bool, error)
}

// Config configures the loop. Zero values fall back to defaults.
type Config struct {
	ReadTimeout       time.Duration
	Idle              time.Duration
	CheckInterval     time.Duration
	Heartbeat         time.Duration
	TimelapseInterval time.Duration
	// TimelapseStep is how often the timelapse wait checks for Stop.
	TimelapseStep time.Duration
	Classifier    logic.Config
	// MaxReadErrors consecutive read failures stop the loop.
	MaxReadErrors int
}

// Deps are the loop's collaborators. Publisher, LED and Notifier may be nil.
type Deps struct {
	Pedal      pedal.Reader
	Camera     Camera
	Profiles   Profiles
	Tracker    *status.Tracker
	Metrics    *metrics.Collector
	Publisher  mqtt.Publisher
	MQTTStatus mqtt.ConnectionStatus
	LED        gpio.Indicator
	Notifier   notify.Notifier
	// Network refreshes network details for status events.
	Network func() *status.NetworkInfo
	Now     func() time.Time
}

// Loop owns the pedal classifier and dispatches the work it decides on.
type Loop struct {
	cfg  Config
	deps Deps
	now  func() time.Time

	classifier *logic.Classifier
	timelapse  *timelapse.Scheduler

	// Owned by the polling goroutine.
	lastCheck     time.Time
	lastHeartbeat time.Time
	pedalOK       bool
	readErrors    int
	readErr       error

	capturing atomic.Bool
	checking  atomic.Bool
	wg        sync.WaitGroup
}

// New creates a Loop.
func New(cfg Config, deps Deps) *Loop {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Idle <= 0 {
		cfg.Idle = DefaultIdle
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.MaxReadErrors <= 0 {
		cfg.MaxReadErrors = DefaultMaxReadErrors
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Publisher == nil {
		deps.Publisher = mqtt.NopPublisher{}
	}
	if deps.LED == nil {
		deps.LED = gpio.Nop{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Tracker == nil {
		deps.Tracker = status.NewTracker(deps.Now(), status.Config{})
	}

	l := &Loop{
		cfg:        cfg,
		deps:       deps,
		now:        deps.Now,
		classifier: logic.NewClassifier(cfg.Classifier),
		pedalOK:    true,
	}

	var opts []timelapse.Option
	if cfg.TimelapseStep > 0 {
		opts = append(opts, timelapse.WithStep(cfg.TimelapseStep))
	}
	l.timelapse = timelapse.New(func(ctx context.Context) error {
		_, err := l.capture(ctx, metrics.SourceTimelapse)
		return err
	}, cfg.TimelapseInterval, opts...)

	start := l.now()
	l.lastCheck = start
	l.lastHeartbeat = start
	return l
}

// Run polls the pedal until ctx is done or a signal arrives, then shuts down.
// It returns ErrPedalLost once MaxReadErrors reads in a row have failed.
func (l *Loop) Run(ctx context.Context, sig <-chan os.Signal) error {
	l.startup(ctx)

	for {
		l.poll(ctx)
		if l.readErrors >= l.cfg.MaxReadErrors {
			log.Printf("pedal: %d consecutive read errors, giving up", l.readErrors)
			l.shutdown("PEDAL_LOST")
			return fmt.Errorf("%w: %v", ErrPedalLost, l.readErr)
		}

		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			l.shutdown(signalName(s))
			return nil
		case <-ctx.Done():
			l.shutdown("CONTEXT")
			return nil
		case <-time.After(l.cfg.Idle):
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// poll runs one iteration: periodic work, one bounded pedal read, classify, act.
func (l *Loop) poll(ctx context.Context) {
	now := l.now()

	if now.Sub(l.lastCheck) >= l.cfg.CheckInterval {
		l.lastCheck = now
		l.scheduleCheck(ctx)
	}
	if l.cfg.Heartbeat > 0 && now.Sub(l.lastHeartbeat) >= l.cfg.Heartbeat {
		l.lastHeartbeat = now
		l.heartbeat()
	}

	sample, ok, err := l.deps.Pedal.Read(l.cfg.ReadTimeout)
	if err != nil {
		l.readErrors++
		l.readErr = err
		if l.pedalOK {
			log.Printf("pedal read error: %v", err)
			l.pedalOK = false
			l.deps.Tracker.SetPedalConnected(false)
		}
		return
	}
	l.readErrors = 0
	if !l.pedalOK {
		log.Printf("pedal: reads recovered")
		l.pedalOK = true
		l.deps.Tracker.SetPedalConnected(true)
	}
	if !ok {
		return
	}

	button, err := sample.Button()
	if err != nil {
		log.Printf("pedal: %v", err)
		return
	}

	d := l.classifier.Process(logic.Input{
		Button:          button,
		TimelapseActive: l.timelapse.Running(),
		Time:            l.now(),
	})
	l.act(ctx, d)
	l.deps.Tracker.UpdatePedal(l.classifier.State(), l.classifier.CountsSnapshot())
}

func (l *Loop) act(ctx context.Context, d logic.Decision) {
	if d.Press == nil {
		return
	}
	l.deps.Metrics.RecordPress()

	switch d.Action {
	case logic.ActionToggle:
		log.Printf("pedal: burst of presses, toggling timelapse")
		l.spawn(func() { l.ToggleTimelapse(metrics.SourcePedal) })

	case logic.ActionCapture:
		if !l.capturing.CompareAndSwap(false, true) {
			log.Printf("pedal: capture in progress, press dropped")
			l.deps.Metrics.RecordDropped()
			return
		}
		log.Printf("pedal: pressed, capturing (burst %d)", d.BurstSize)
		cctx := context.WithoutCancel(ctx)
		l.spawn(func() {
			defer l.capturing.Store(false)
			l.capture(cctx, metrics.SourcePedal)
		})

	default:
		switch d.Reason {
		case logic.ReasonDebounced:
			l.deps.Metrics.RecordDebounced()
		case logic.ReasonTimelapse:
			log.Printf("pedal: press ignored while timelapse is running (burst %d)", d.BurstSize)
		}
	}
}

func (l *Loop) spawn(fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn()
	}()
}

func (l *Loop) scheduleCheck(ctx context.Context) {
	if l.capturing.Load() || !l.checking.CompareAndSwap(false, true) {
		return
	}
	l.spawn(func() {
		defer l.checking.Store(false)
		l.CheckCamera(ctx)
	})
}

// CaptureNow takes a photo for the control panel and waits for the result.
func (l *Loop) CaptureNow(ctx context.Context) (*camera.Result, error) {
	if !l.capturing.CompareAndSwap(false, true) {
		return nil, ErrCaptureInFlight
	}
	defer l.capturing.Store(false)
	return l.capture(ctx, metrics.SourcePanel)
}

// capture runs one capture and records its outcome everywhere.
func (l *Loop) capture(ctx context.Context, source string) (*camera.Result, error) {
	l.deps.Tracker.SetCapturing(true)
	defer l.deps.Tracker.SetCapturing(false)

	start := l.now()
	res, err := l.deps.Camera.Capture(ctx, source == metrics.SourceTimelapse)
	elapsed := l.now().Sub(start)

	info := status.CaptureInfo{Source: source, Time: start}
	ev := mqtt.Event{Timestamp: start, Type: mqtt.EventCapture, Source: source}
	if res != nil {
		info.ID, info.User = res.ID, res.User
		info.Files, info.Uploaded = len(res.Files), res.Uploaded()
		ev.CaptureID, ev.User = res.ID, res.User
		ev.Files, ev.Uploaded = info.Files, info.Uploaded
		l.deps.Metrics.RecordUploads(res.Uploaded(), len(res.Failures))
	}

	result := resultLabel(err)
	l.deps.Metrics.RecordCapture(source, result, elapsed)

	if err != nil {
		log.Printf("capture (%s) failed: %v", source, err)
		info.Error = err.Error()
		ev.Type = mqtt.EventCaptureFailed
		ev.Error = err.Error()
		if errors.Is(err, auth.ErrAuthFailure) {
			l.alert(fmt.Sprintf("cloud authorization failed, photos are only saved locally: %v", err))
		}
	} else {
		log.Printf("capture (%s) done: id=%s files=%d uploaded=%d in %v",
			source, info.ID, info.Files, info.Uploaded, elapsed.Round(time.Millisecond))
	}

	l.deps.Tracker.RecordCapture(info)
	l.publish(ev)
	return res, err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, auth.ErrAuthFailure):
		return "auth_failed"
	case errors.Is(err, camera.ErrDeviceUnavailable):
		return "unavailable"
	case errors.Is(err, camera.ErrTimeout):
		return "timeout"
	case errors.Is(err, camera.ErrNoFilesProduced):
		return "no_files"
	case errors.Is(err, camera.ErrUploadFailure):
		return "upload_failed"
	case errors.Is(err, camera.ErrDeviceError):
		return "device_error"
	}
	return "error"
}

// ToggleTimelapse starts or stops timelapse mode and returns the new state.
func (l *Loop) ToggleTimelapse(source string) bool {
	active := l.timelapse.Toggle()
	if active {
		log.Printf("timelapse: started (%s)", source)
	} else {
		log.Printf("timelapse: stopped (%s)", source)
	}

	l.deps.Metrics.RecordToggle(active)
	l.deps.Tracker.SetTimelapse(active)
	if err := l.deps.LED.Set(active); err != nil {
		log.Printf("led error: %v", err)
	}

	typ := mqtt.EventTimelapseOff
	if active {
		typ = mqtt.EventTimelapseOn
	}
	l.publish(mqtt.Event{Timestamp: l.now(), Type: typ, Source: source})
	return active
}

// TimelapseActive reports whether timelapse mode is running.
func (l *Loop) TimelapseActive() bool {
	return l.timelapse.Running()
}

// CheckCamera runs a connectivity check and reports whether the camera is
// connected.
func (l *Loop) CheckCamera(ctx context.Context) bool {
	connected := l.deps.Camera.CheckConnection(ctx)
	l.deps.Metrics.RecordCheck(connected)
	l.deps.Tracker.SetCamera(string(l.deps.Camera.State()), l.now())
	return connected
}

// CameraStateChanged records a connection change reported by the camera.
func (l *Loop) CameraStateChanged(state camera.ConnectionState) {
	now := l.now()
	l.deps.Tracker.SetCamera(string(state), now)
	l.deps.Metrics.SetCameraConnected(state == camera.Connected)

	typ := mqtt.EventCameraConnected
	if state == camera.Disconnected {
		typ = mqtt.EventCameraDisconnected
		go l.alert("camera disconnected")
	}
	l.publish(mqtt.Event{Timestamp: now, Type: typ})
}

// ActiveUser returns the active profile.
func (l *Loop) ActiveUser() (string, profile.Profile, error) {
	return l.deps.Profiles.Active()
}

// Users lists every profile.
func (l *Loop) Users() ([]profile.Entry, error) {
	return l.deps.Profiles.List()
}

// SetActiveUser switches the user that new photos are filed under.
func (l *Loop) SetActiveUser(id string) error {
	if err := l.deps.Profiles.SetActive(id); err != nil {
		return err
	}
	p, err := l.deps.Profiles.Get(id)
	if err != nil {
		return err
	}
	log.Printf("user: active user is now %s", id)
	l.deps.Tracker.SetActiveUser(id, p.DisplayName)
	l.publish(mqtt.Event{Timestamp: l.now(), Type: mqtt.EventUserChanged, User: id})
	return nil
}

// AddUser creates or updates a profile and optionally makes it active.
// It reports whether the profile was newly created.
func (l *Loop) AddUser(id, displayName, cloudFolder string, activate bool) (bool, error) {
	created, err := l.deps.Profiles.Save(id, displayName, cloudFolder)
	if err != nil {
		return false, err
	}
	if activate {
		if err := l.SetActiveUser(id); err != nil {
			return created, err
		}
	} else if active, _, _ := l.deps.Profiles.Active(); active == id {
		l.deps.Tracker.SetActiveUser(id, displayName)
	}
	return created, nil
}

func (l *Loop) publish(ev mqtt.Event) {
	if err := l.deps.Publisher.Publish(ev); err != nil {
		log.Printf("publish error: %v", err)
		// Don't crash on publish failure
	}
}

func (l *Loop) alert(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := l.deps.Notifier.Notify(ctx, text); err != nil {
		log.Printf("notify error: %v", err)
	}
}

// refresh pulls state not pushed by other components into the tracker.
func (l *Loop) refresh() {
	if l.deps.MQTTStatus != nil {
		l.deps.Tracker.SetMQTTConnected(l.deps.MQTTStatus.IsConnected())
	}
	if l.deps.Network != nil {
		if net := l.deps.Network(); net != nil {
			l.deps.Tracker.SetNetwork(net)
		}
	}
	l.deps.Tracker.UpdatePedal(l.classifier.State(), l.classifier.CountsSnapshot())
}

func (l *Loop) systemEvent(event, reason string, retained bool) {
	l.refresh()
	snap := l.deps.Tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  l.now(),
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := l.deps.Publisher.PublishSystem(ev); err != nil {
		log.Printf("failed to publish %s event: %v", event, err)
		return
	}
	log.Printf("published %s event", event)
}

func (l *Loop) startup(ctx context.Context) {
	if id, p, err := l.deps.Profiles.Active(); err == nil {
		l.deps.Tracker.SetActiveUser(id, p.DisplayName)
	} else {
		log.Printf("user: %v", err)
	}
	l.deps.Tracker.SetPedalConnected(true)
	if !l.CheckCamera(ctx) {
		log.Printf("camera: not connected at startup")
	}
	l.lastCheck = l.now()
	l.systemEvent("STARTUP", "", true)
}

func (l *Loop) heartbeat() {
	snap := l.deps.Tracker.Snapshot()
	log.Printf("heartbeat: uptime=%v presses=%d captures=%d errors=%d timelapse=%v",
		snap.Uptime().Round(time.Second), snap.Counts.Presses, snap.Captures, snap.CaptureErrors, snap.Timelapse)
	l.systemEvent("HEARTBEAT", "", false)
}

func (l *Loop) shutdown(reason string) {
	l.wg.Wait()
	if l.timelapse.Stop() {
		log.Printf("timelapse: stopped for shutdown")
		l.deps.Tracker.SetTimelapse(false)
	}

	if err := l.deps.LED.Set(false); err != nil {
		log.Printf("led error: %v", err)
	}
	if err := l.deps.Pedal.Close(); err != nil {
		log.Printf("pedal close error: %v", err)
	}
	l.deps.Tracker.SetPedalConnected(false)
	l.systemEvent("SHUTDOWN", reason, true)
}
