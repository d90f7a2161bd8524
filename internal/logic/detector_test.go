package logic

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// press feeds a release followed by a press at the given offset.
func press(c *Classifier, at time.Duration, timelapse bool) Decision {
	c.Process(Input{Button: ButtonReleased, Time: t0.Add(at - time.Millisecond), TimelapseActive: timelapse})
	return c.Process(Input{Button: ButtonPressed, Time: t0.Add(at), TimelapseActive: timelapse})
}

func TestPressDetectorTransitions(t *testing.T) {
	tests := []struct {
		name    string
		samples []byte
		want    []bool
	}{
		{"first sample pressed", []byte{3}, []bool{true}},
		{"first sample released", []byte{0}, []bool{false}},
		{"release then press", []byte{0, 3}, []bool{false, true}},
		{"held pedal fires once", []byte{0, 3, 3, 3}, []bool{false, true, false, false}},
		{"press release press", []byte{0, 3, 0, 3}, []bool{false, true, false, true}},
		{"other value arms", []byte{3, 1, 3}, []bool{true, false, true}},
		{"other value never fires", []byte{0, 1, 2, 4}, []bool{false, false, false, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p PressDetector
			for i, s := range tt.samples {
				if got := p.Observe(s); got != tt.want[i] {
					t.Errorf("sample %d (%d): got %v, want %v", i, s, got, tt.want[i])
				}
			}
		})
	}
}

func TestPressDetectorState(t *testing.T) {
	var p PressDetector
	if p.State() != StateUnknown {
		t.Errorf("initial state: got %s, want UNKNOWN", p.State())
	}
	p.Observe(ButtonPressed)
	if p.State() != StatePressed {
		t.Errorf("after press: got %s, want PRESSED", p.State())
	}
	p.Observe(ButtonReleased)
	if p.State() != StateReleased {
		t.Errorf("after release: got %s, want RELEASED", p.State())
	}
}

func TestBurstWindowTogglesOnFifthPress(t *testing.T) {
	b := NewBurstWindow(20*time.Second, 5)

	for i, at := range []time.Duration{0, 4, 8, 12} {
		if b.Add(t0.Add(at * time.Second)) {
			t.Fatalf("press %d: unexpected burst", i)
		}
	}
	if !b.Add(t0.Add(16 * time.Second)) {
		t.Fatal("5th press within window should report burst")
	}
	if b.Len() != 0 {
		t.Errorf("window should be empty after burst, got %d", b.Len())
	}

	// 6th press starts a fresh window
	if b.Add(t0.Add(17 * time.Second)) {
		t.Error("6th press should not report burst")
	}
	if b.Len() != 1 {
		t.Errorf("fresh window: got %d entries, want 1", b.Len())
	}
}

func TestBurstWindowPrunesExpired(t *testing.T) {
	b := NewBurstWindow(20*time.Second, 5)

	b.Add(t0)
	b.Add(t0.Add(1 * time.Second))
	b.Add(t0.Add(2 * time.Second))
	b.Add(t0.Add(3 * time.Second))

	// 25s later the first four have expired
	if b.Add(t0.Add(25 * time.Second)) {
		t.Error("expired presses must not count toward a burst")
	}
	if b.Len() != 1 {
		t.Errorf("expected 1 entry after pruning, got %d", b.Len())
	}
}

func TestBurstWindowBoundaryInclusive(t *testing.T) {
	b := NewBurstWindow(20*time.Second, 2)
	b.Add(t0)
	// exactly 20s later: now - t <= window keeps the first press
	if !b.Add(t0.Add(20 * time.Second)) {
		t.Error("press exactly at window edge should be kept")
	}
}

func TestDebounce(t *testing.T) {
	tests := []struct {
		name string
		gap  time.Duration
		want int
	}{
		{"0.3s apart", 300 * time.Millisecond, 1},
		{"0.6s apart", 600 * time.Millisecond, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(Config{})
			captures := 0
			for _, at := range []time.Duration{time.Second, time.Second + tt.gap} {
				if press(c, at, false).Action == ActionCapture {
					captures++
				}
			}
			if captures != tt.want {
				t.Errorf("captures: got %d, want %d", captures, tt.want)
			}
		})
	}
}

func TestDebouncedPressDoesNotExtendWindow(t *testing.T) {
	c := NewClassifier(Config{})

	if press(c, 1*time.Second, false).Action != ActionCapture {
		t.Fatal("first press should capture")
	}
	d := press(c, 1300*time.Millisecond, false)
	if d.Action != ActionNone || d.Reason != ReasonDebounced {
		t.Fatalf("second press: got %s/%s, want NONE/debounced", d.Action, d.Reason)
	}
	// 0.6s after the first accepted trigger, 0.3s after the suppressed one
	if press(c, 1600*time.Millisecond, false).Action != ActionCapture {
		t.Error("debounce should be measured from the last accepted trigger")
	}
}

func TestClassifierBurstConsumesPress(t *testing.T) {
	c := NewClassifier(Config{})

	var actions []Action
	for _, at := range []time.Duration{0, 4, 8, 12, 16} {
		actions = append(actions, press(c, at*time.Second+time.Second, false).Action)
	}

	for i := 0; i < 4; i++ {
		if actions[i] != ActionCapture {
			t.Errorf("press %d: got %s, want CAPTURE", i, actions[i])
		}
	}
	if actions[4] != ActionToggle {
		t.Errorf("press 4: got %s, want TOGGLE_TIMELAPSE", actions[4])
	}

	counts := c.CountsSnapshot()
	if counts.Presses != 5 || counts.Captures != 4 || counts.Toggles != 1 {
		t.Errorf("counts: got %+v", counts)
	}
	if c.BurstSize() != 0 {
		t.Errorf("burst window should be empty after toggle, got %d", c.BurstSize())
	}
}

func TestClassifierTimelapseSuppressesCapture(t *testing.T) {
	c := NewClassifier(Config{})

	d := press(c, time.Second, true)
	if d.Action != ActionNone {
		t.Errorf("got %s, want NONE while timelapse active", d.Action)
	}
	if d.Reason != ReasonTimelapse {
		t.Errorf("reason: got %q, want %q", d.Reason, ReasonTimelapse)
	}
	if d.Press == nil {
		t.Error("press event should still be reported")
	}
	if d.BurstSize != 1 {
		t.Errorf("press should count toward the burst, got %d", d.BurstSize)
	}
}

func TestClassifierTimelapseBurstStillToggles(t *testing.T) {
	c := NewClassifier(Config{BurstCount: 3})

	press(c, 1*time.Second, true)
	press(c, 2*time.Second, true)
	if d := press(c, 3*time.Second, true); d.Action != ActionToggle {
		t.Errorf("got %s, want TOGGLE_TIMELAPSE", d.Action)
	}
}

func TestClassifierNoPressNoAction(t *testing.T) {
	c := NewClassifier(Config{})

	d := c.Process(Input{Button: ButtonReleased, Time: t0})
	if d.Action != ActionNone || d.Press != nil {
		t.Errorf("release should not produce a press: %+v", d)
	}
	c.Process(Input{Button: ButtonPressed, Time: t0.Add(time.Second)})
	d = c.Process(Input{Button: ButtonPressed, Time: t0.Add(2 * time.Second)})
	if d.Press != nil {
		t.Error("held pedal should not produce a second press")
	}
	if c.State() != StatePressed {
		t.Errorf("state: got %s, want PRESSED", c.State())
	}
}

func TestNewClassifierDefaults(t *testing.T) {
	c := NewClassifier(Config{})
	if c.debounce.interval != DefaultDebounce {
		t.Errorf("debounce: got %v, want %v", c.debounce.interval, DefaultDebounce)
	}
	if c.burst.window != DefaultBurstWindow {
		t.Errorf("window: got %v, want %v", c.burst.window, DefaultBurstWindow)
	}
	if c.burst.threshold != DefaultBurstCount {
		t.Errorf("threshold: got %d, want %d", c.burst.threshold, DefaultBurstCount)
	}
}
