// Package logic contains the pure pedal classification rules: press detection,
// burst (mode-toggle) detection and capture debounce.
// This package has NO external dependencies (no HID, camera, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Button field values reported by the pedal.
const (
	ButtonIndex    = 4
	ButtonPressed  = 3
	ButtonReleased = 0
)

// Defaults used by the daemon.
const (
	DefaultDebounce    = 500 * time.Millisecond
	DefaultBurstCount  = 5
	DefaultBurstWindow = 20 * time.Second
)

// State is the logical pedal state.
type State string

const (
	StateUnknown  State = "UNKNOWN"
	StateReleased State = "RELEASED"
	StatePressed  State = "PRESSED"
)

// Action is what the control loop should do in response to a sample.
type Action string

const (
	ActionNone    Action = "NONE"
	ActionCapture Action = "CAPTURE"
	ActionToggle  Action = "TOGGLE_TIMELAPSE"
)

// Reason explains why a press did or did not produce a capture.
type Reason string

const (
	ReasonNoPress   Reason = ""
	ReasonToggle    Reason = "burst"
	ReasonTrigger   Reason = "trigger"
	ReasonDebounced Reason = "debounced"
	ReasonTimelapse Reason = "timelapse_active"
)

// PressEvent is a released->pressed transition.
type PressEvent struct {
	Time time.Time
}

// Input is a single pedal report plus the context the classifier needs.
type Input struct {
	// Button is the value of the button field of the report.
	Button byte
	// TimelapseActive suppresses single captures while timelapse runs.
	TimelapseActive bool
	Time            time.Time
}

// Decision is the classifier's verdict for one input.
type Decision struct {
	Action Action
	Reason Reason
	// Press is set when the input was a new press.
	Press *PressEvent
	// BurstSize is the number of presses in the window after this input.
	BurstSize int
}

// Counts tracks classifier activity since startup.
type Counts struct {
	Presses   int
	Captures  int
	Toggles   int
	Debounced int
}
