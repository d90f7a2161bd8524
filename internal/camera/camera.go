// Package camera drives the tethered DSLR: capture, connectivity checks,
// filing captured images per user and handing them to cloud storage.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sweeney/pedalcam/internal/profile"
)

// Defaults for the tethered camera.
const (
	DefaultModel          = "Canon EOS 700D"
	DefaultCaptureTimeout = 30 * time.Second
	DefaultSettle         = 5 * time.Second
	DefaultFreshness      = 5 * time.Second
)

// DefaultExtensions are the file types collected after a capture.
var DefaultExtensions = []string{".jpg", ".cr2"}

var (
	// ErrDeviceUnavailable means the camera is disconnected and did not come back.
	ErrDeviceUnavailable = errors.New("camera unavailable")
	// ErrDeviceError means the capture command exited non-zero.
	ErrDeviceError = errors.New("camera error")
	// ErrTimeout means the capture command did not finish in time.
	ErrTimeout = errors.New("camera timeout")
	// ErrNoFilesProduced means the capture succeeded but no image appeared.
	ErrNoFilesProduced = errors.New("no files produced")
	// ErrUploadFailure means images were saved locally but none were uploaded.
	ErrUploadFailure = errors.New("upload failed")
)

// UploadError records a failed upload of a single file.
type UploadError struct {
	Local  string
	Remote string
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s to %s: %v", e.Local, e.Remote, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// ConnectionState is the orchestrator's view of the camera link.
type ConnectionState string

const (
	Connected    ConnectionState = "CONNECTED"
	Disconnected ConnectionState = "DISCONNECTED"
)

// ProfileLookup resolves the active user's folders.
type ProfileLookup interface {
	Active() (string, profile.Profile, error)
}

// TokenSource provides cloud access tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Uploader sends a local file to a cloud path.
type Uploader interface {
	Upload(ctx context.Context, token, localPath, remotePath string) error
}

// Config configures the orchestrator. Zero values fall back to defaults.
type Config struct {
	Model string
	// Command is the capture tool, e.g. ["gphoto2"].
	Command []string
	// Sudo prefixes the capture command with sudo.
	Sudo           bool
	WorkDir        string
	Extensions     []string
	Freshness      time.Duration
	CaptureTimeout time.Duration
	// Settle is the wait after a reset. Negative disables it.
	Settle     time.Duration
	Signatures Signatures
}

// Deps are the orchestrator's collaborators.
type Deps struct {
	Runner   Runner
	Profiles ProfileLookup
	Tokens   TokenSource
	Uploader Uploader
	// Now defaults to time.Now.
	Now func() time.Time
	// OnStateChange is called after the connection state changes.
	OnStateChange func(ConnectionState)
}

// File is one captured image.
type File struct {
	Local    string
	Remote   string
	Uploaded bool
}

// Result describes a completed capture.
type Result struct {
	ID        string
	User      string
	Timelapse bool
	StartedAt time.Time
	Duration  time.Duration
	Files     []File
	Failures  []*UploadError
}

// Uploaded returns the number of files that reached cloud storage.
func (r *Result) Uploaded() int {
	n := 0
	for _, f := range r.Files {
		if f.Uploaded {
			n++
		}
	}
	return n
}

// Orchestrator owns the camera. Device commands are serialized.
type Orchestrator struct {
	cfg  Config
	deps Deps

	device sync.Mutex

	mu    sync.Mutex
	state ConnectionState
}

// New creates an orchestrator. The camera is assumed connected until a
// command says otherwise.
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if len(cfg.Command) == 0 {
		cfg.Command = []string{"gphoto2"}
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = DefaultFreshness
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = DefaultCaptureTimeout
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	} else if cfg.Settle == 0 {
		cfg.Settle = DefaultSettle
	}
	if len(cfg.Signatures.Disconnect) == 0 {
		cfg.Signatures = DefaultSignatures()
	}
	if deps.Runner == nil {
		deps.Runner = ExecRunner{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{cfg: cfg, deps: deps, state: Connected}
}

// State returns the current connection state.
func (o *Orchestrator) State() ConnectionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s ConnectionState) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	o.mu.Unlock()

	if prev != s {
		log.Printf("camera: %s -> %s", prev, s)
		if o.deps.OnStateChange != nil {
			o.deps.OnStateChange(s)
		}
	}
}

// Capture takes one photo, files it under the active user's local folder and
// uploads it. A Result is returned whenever images were saved locally, even
// if uploading failed. The device is released before uploading.
func (o *Orchestrator) Capture(ctx context.Context, timelapse bool) (*Result, error) {
	user, prof, err := o.deps.Profiles.Active()
	if err != nil {
		return nil, fmt.Errorf("resolve active user: %w", err)
	}

	res, err := o.shoot(ctx, timelapse, user, prof)
	if err != nil {
		return nil, err
	}
	err = o.upload(ctx, res)
	res.Duration = o.deps.Now().Sub(res.StartedAt)
	return res, err
}

func (o *Orchestrator) shoot(ctx context.Context, timelapse bool, user string, prof profile.Profile) (*Result, error) {
	o.device.Lock()
	defer o.device.Unlock()

	start := o.deps.Now()

	if o.State() == Disconnected {
		if !o.checkLocked(ctx) {
			return nil, ErrDeviceUnavailable
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.CaptureTimeout)
	out, err := o.deps.Runner.Run(runCtx, o.cfg.WorkDir, o.captureArgs()...)
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)
	cancel()

	switch {
	case err != nil && timedOut && ctx.Err() == nil:
		log.Printf("camera: capture timed out after %v", o.cfg.CaptureTimeout)
		o.setState(Disconnected)
		o.checkLocked(ctx)
		return nil, ErrTimeout
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrDeviceError, err)
	case out.ExitCode != 0:
		log.Printf("camera: capture failed exit=%d stderr=%q", out.ExitCode, out.Stderr)
		if sig, ok := o.cfg.Signatures.MatchDisconnect(out.Stderr); ok {
			log.Printf("camera: disconnect detected (%s)", sig)
			o.setState(Disconnected)
			o.checkLocked(ctx)
		}
		return nil, fmt.Errorf("%w: exit %d: %s", ErrDeviceError, out.ExitCode, firstLine(out.Stderr))
	}

	log.Printf("camera: photo captured")
	return o.store(start, timelapse, user, prof)
}

// CheckConnection probes the camera and, if it is missing, resets the
// link once and probes again. It reports whether the camera is connected.
func (o *Orchestrator) CheckConnection(ctx context.Context) bool {
	o.device.Lock()
	defer o.device.Unlock()
	return o.checkLocked(ctx)
}

func (o *Orchestrator) checkLocked(ctx context.Context) bool {
	if o.detect(ctx) {
		o.setState(Connected)
		return true
	}
	if ctx.Err() != nil {
		log.Printf("camera: check abandoned: %v", ctx.Err())
		return false
	}

	log.Printf("camera: %s not detected, resetting", o.cfg.Model)
	o.setState(Disconnected)

	resetCtx, cancel := context.WithTimeout(ctx, o.cfg.CaptureTimeout)
	if _, err := o.deps.Runner.Run(resetCtx, o.cfg.WorkDir, o.toolArgs("--reset")...); err != nil {
		log.Printf("camera: reset error: %v", err)
	}
	cancel()

	select {
	case <-ctx.Done():
		return false
	case <-time.After(o.cfg.Settle):
	}

	if o.detect(ctx) {
		log.Printf("camera: reconnected after reset")
		o.setState(Connected)
		return true
	}
	log.Printf("camera: could not reconnect")
	return false
}

func (o *Orchestrator) detect(ctx context.Context) bool {
	detectCtx, cancel := context.WithTimeout(ctx, o.cfg.CaptureTimeout)
	defer cancel()

	out, err := o.deps.Runner.Run(detectCtx, o.cfg.WorkDir, o.toolArgs("--auto-detect")...)
	if err != nil {
		log.Printf("camera: auto-detect error: %v", err)
		return false
	}
	return out.ExitCode == 0 && containsFold(out.Stdout, o.cfg.Model)
}

func (o *Orchestrator) toolArgs(action string) []string {
	args := make([]string, 0, len(o.cfg.Command)+2)
	args = append(args, o.cfg.Command...)
	return append(args, "--camera="+o.cfg.Model, action)
}

func (o *Orchestrator) captureArgs() []string {
	args := o.toolArgs("--capture-image-and-download")
	if o.cfg.Sudo {
		args = append([]string{"sudo"}, args...)
	}
	return args
}

// store moves freshly captured images from the work dir into the user's
// dated folder.
func (o *Orchestrator) store(start time.Time, timelapse bool, user string, prof profile.Profile) (*Result, error) {
	names, err := collect(o.cfg.WorkDir, o.cfg.Extensions, start.Add(-o.cfg.Freshness))
	if err != nil {
		return nil, fmt.Errorf("scan work dir: %w", err)
	}
	if len(names) == 0 {
		log.Printf("camera: no files found after capture")
		return nil, ErrNoFilesProduced
	}

	res := &Result{
		ID:        uuid.NewString(),
		User:      user,
		Timelapse: timelapse,
		StartedAt: start,
	}

	stamp := start.Format("20060102_150405")
	if timelapse {
		stamp = "timelapse_" + stamp
	}
	date := start.Format("2006-01-02")

	for _, name := range names {
		local, err := fileInto(o.cfg.WorkDir, name, localDir(prof.LocalFolder, date), stamp+"_"+name)
		if err != nil {
			log.Printf("camera: save %s: %v", name, err)
			continue
		}
		log.Printf("camera: saved %s", local)
		res.Files = append(res.Files, File{Local: local, Remote: remotePath(prof.CloudFolder, date, stamp+"_"+name)})
	}
	if len(res.Files) == 0 {
		return nil, fmt.Errorf("%w: could not move captured files", ErrNoFilesProduced)
	}
	return res, nil
}

// upload sends every filed image to cloud storage. It needs no device access,
// so a slow token refresh never holds up the camera.
func (o *Orchestrator) upload(ctx context.Context, res *Result) error {
	token, err := o.deps.Tokens.Token(ctx)
	if err != nil {
		log.Printf("camera: no access token, files kept locally: %v", err)
		return fmt.Errorf("%w: %w", ErrUploadFailure, err)
	}

	var errs []error
	for i := range res.Files {
		f := &res.Files[i]
		if err := o.deps.Uploader.Upload(ctx, token, f.Local, f.Remote); err != nil {
			ue := &UploadError{Local: f.Local, Remote: f.Remote, Err: err}
			log.Printf("camera: %v", ue)
			res.Failures = append(res.Failures, ue)
			errs = append(errs, ue)
			continue
		}
		f.Uploaded = true
		log.Printf("camera: uploaded %s", f.Remote)
	}

	if res.Uploaded() == 0 {
		return fmt.Errorf("%w: %w", ErrUploadFailure, errors.Join(errs...))
	}
	return nil
}
