package logic

import "time"

// PressDetector turns a stream of button field values into press events.
// A press is a change from any non-pressed value (or no prior sample) to
// exactly pressed; holding the pedal never re-fires.
type PressDetector struct {
	last    byte
	hasLast bool
}

// Observe records a button value and reports whether it is a new press.
func (p *PressDetector) Observe(button byte) bool {
	armed := !p.hasLast || p.last != ButtonPressed
	p.last = button
	p.hasLast = true
	return armed && button == ButtonPressed
}

// State returns the logical pedal state derived from the last sample.
func (p *PressDetector) State() State {
	if !p.hasLast {
		return StateUnknown
	}
	if p.last == ButtonPressed {
		return StatePressed
	}
	return StateReleased
}

// BurstWindow holds press timestamps within a sliding window.
// When the threshold is reached the window is cleared and Add reports a burst.
type BurstWindow struct {
	window    time.Duration
	threshold int
	presses   []time.Time
}

// NewBurstWindow creates a burst window.
func NewBurstWindow(window time.Duration, threshold int) *BurstWindow {
	return &BurstWindow{
		window:    window,
		threshold: threshold,
		presses:   make([]time.Time, 0, threshold),
	}
}

// Add prunes expired presses, appends now, and reports whether the burst
// threshold was reached. A reached burst leaves the window empty.
func (b *BurstWindow) Add(now time.Time) bool {
	kept := b.presses[:0]
	for _, t := range b.presses {
		if now.Sub(t) <= b.window {
			kept = append(kept, t)
		}
	}
	b.presses = append(kept, now)

	if len(b.presses) >= b.threshold {
		b.presses = b.presses[:0]
		return true
	}
	return false
}

// Len returns the number of presses currently in the window.
func (b *BurstWindow) Len() int {
	return len(b.presses)
}

// Debouncer enforces a minimum spacing between accepted capture triggers.
type Debouncer struct {
	interval    time.Duration
	lastTrigger time.Time
	triggered   bool
}

// Allow reports whether a trigger at now is accepted and, if so, records it.
func (d *Debouncer) Allow(now time.Time) bool {
	if d.triggered && now.Sub(d.lastTrigger) <= d.interval {
		return false
	}
	d.lastTrigger = now
	d.triggered = true
	return true
}

// LastTrigger returns the time of the last accepted trigger.
func (d *Debouncer) LastTrigger() (time.Time, bool) {
	return d.lastTrigger, d.triggered
}

// Classifier combines press detection, burst detection and debounce.
// Not safe for concurrent use; the control loop owns it.
type Classifier struct {
	press    PressDetector
	burst    *BurstWindow
	debounce Debouncer
	counts   Counts
}

// Config configures a Classifier. Zero values fall back to defaults.
type Config struct {
	Debounce    time.Duration
	BurstCount  int
	BurstWindow time.Duration
}

// NewClassifier creates a classifier.
func NewClassifier(cfg Config) *Classifier {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.BurstCount <= 0 {
		cfg.BurstCount = DefaultBurstCount
	}
	if cfg.BurstWindow <= 0 {
		cfg.BurstWindow = DefaultBurstWindow
	}
	return &Classifier{
		burst:    NewBurstWindow(cfg.BurstWindow, cfg.BurstCount),
		debounce: Debouncer{interval: cfg.Debounce},
	}
}

// Process classifies one pedal report.
// Burst detection runs first; a toggle consumes the press. Debounce and the
// timelapse guard only apply to presses that were not a toggle.
func (c *Classifier) Process(in Input) Decision {
	if !c.press.Observe(in.Button) {
		return Decision{Action: ActionNone, Reason: ReasonNoPress, BurstSize: c.burst.Len()}
	}

	c.counts.Presses++
	d := Decision{Press: &PressEvent{Time: in.Time}}

	if c.burst.Add(in.Time) {
		c.counts.Toggles++
		d.Action = ActionToggle
		d.Reason = ReasonToggle
		return d
	}
	d.BurstSize = c.burst.Len()

	if in.TimelapseActive {
		d.Action = ActionNone
		d.Reason = ReasonTimelapse
		return d
	}

	if !c.debounce.Allow(in.Time) {
		c.counts.Debounced++
		d.Action = ActionNone
		d.Reason = ReasonDebounced
		return d
	}

	c.counts.Captures++
	d.Action = ActionCapture
	d.Reason = ReasonTrigger
	return d
}

// State returns the current logical pedal state.
func (c *Classifier) State() State {
	return c.press.State()
}

// BurstSize returns the number of presses in the burst window.
func (c *Classifier) BurstSize() int {
	return c.burst.Len()
}

// CountsSnapshot returns a copy of the activity counters.
func (c *Classifier) CountsSnapshot() Counts {
	return c.counts
}
