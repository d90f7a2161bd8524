// Package timelapse runs periodic captures on a background goroutine.
package timelapse

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Defaults for the schedule.
const (
	DefaultInterval = 180 * time.Second
	DefaultStep     = time.Second
)

// State is the scheduler state.
type State string

const (
	Idle    State = "IDLE"
	Running State = "RUNNING"
)

// CaptureFunc takes one timelapse photo.
type CaptureFunc func(ctx context.Context) error

// Scheduler owns at most one capture goroutine. Start, Stop and Toggle are
// serialized; Running may be read from any goroutine.
type Scheduler struct {
	capture  CaptureFunc
	interval time.Duration
	step     time.Duration

	lifecycle sync.Mutex
	running   atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
	captures  atomic.Int64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithStep sets how often the wait checks for cancellation.
func WithStep(step time.Duration) Option {
	return func(s *Scheduler) { s.step = step }
}

// New creates an idle scheduler.
func New(capture CaptureFunc, interval time.Duration, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{capture: capture, interval: interval, step: DefaultStep}
	for _, opt := range opts {
		opt(s)
	}
	if s.step <= 0 || s.step > s.interval {
		s.step = s.interval
	}
	return s
}

// Running reports whether the schedule is active.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// State returns Running or Idle.
func (s *Scheduler) State() State {
	if s.Running() {
		return Running
	}
	return Idle
}

// Captures returns how many scheduled captures have been attempted.
func (s *Scheduler) Captures() int64 {
	return s.captures.Load()
}

// Start begins the schedule with an immediate capture. It returns false if
// the schedule was already running.
func (s *Scheduler) Start() bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.startLocked()
}

func (s *Scheduler) startLocked() bool {
	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.running.Store(true)

	go s.run(ctx, done)
	log.Printf("timelapse: started, interval=%v", s.interval)
	return true
}

// Stop cancels the schedule and waits for the goroutine to exit. A capture
// already in progress completes first. It returns false if nothing was
// running.
func (s *Scheduler) Stop() bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.stopLocked()
}

func (s *Scheduler) stopLocked() bool {
	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	s.running.Store(false)
	log.Printf("timelapse: stopped")
	return true
}

// Toggle starts or stops the schedule and returns whether it is now running.
func (s *Scheduler) Toggle() bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.running.Load() {
		s.stopLocked()
		return false
	}
	s.startLocked()
	return true
}

func (s *Scheduler) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	s.shoot(ctx)

	ticker := time.NewTicker(s.step)
	defer ticker.Stop()

	var waited time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		waited += s.step
		if waited < s.interval {
			if waited%time.Minute == 0 {
				log.Printf("timelapse: waited %v of %v", waited, s.interval)
			}
			continue
		}
		waited = 0

		if ctx.Err() != nil {
			return
		}
		s.shoot(ctx)
		ticker.Reset(s.step)
	}
}

// shoot runs one capture. The capture is detached from ctx so stopping the
// schedule never aborts a photo half way through.
func (s *Scheduler) shoot(ctx context.Context) {
	s.captures.Add(1)
	log.Printf("timelapse: taking scheduled photo")
	if err := s.capture(context.WithoutCancel(ctx)); err != nil {
		log.Printf("timelapse: capture failed: %v", err)
	}
}
