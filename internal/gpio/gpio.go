// Package gpio drives the optional status LED on the Pi header.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Indicator shows a single on/off status.
type Indicator interface {
	// Set switches the indicator on or off.
	Set(on bool) error

	// Close turns the indicator off and releases GPIO resources.
	Close() error
}

// DefaultLEDPin is the BCM pin for the timelapse LED. 0 disables it.
const DefaultLEDPin = 0

// Nop is an Indicator that does nothing; used when no LED is wired.
type Nop struct{}

// Set does nothing.
func (Nop) Set(bool) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }
