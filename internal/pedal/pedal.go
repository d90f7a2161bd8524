// Package pedal reads button reports from the USB HID foot pedal.
// The real implementation uses hidapi through go-hid.
// The fake implementation allows testing without hardware.
package pedal

import (
	"errors"
	"time"

	"github.com/sweeney/pedalcam/internal/logic"
)

// Default USB identifiers of the foot pedal.
const (
	DefaultVendorID  uint16 = 0x04b4
	DefaultProductID uint16 = 0x5555
)

// ReportSize is the maximum report length read per poll.
const ReportSize = 64

// ErrDeviceBusy is returned when another process already holds the pedal.
var ErrDeviceBusy = errors.New("pedal: device is held by another process")

// ErrShortReport is returned for a report too short to carry the button field.
var ErrShortReport = errors.New("pedal: report too short")

// Sample is one raw report from the pedal.
type Sample struct {
	Data []byte
}

// Button returns the button field of the report.
func (s Sample) Button() (byte, error) {
	if len(s.Data) <= logic.ButtonIndex {
		return 0, ErrShortReport
	}
	return s.Data[logic.ButtonIndex], nil
}

// Reader reads pedal reports.
type Reader interface {
	// Read waits up to timeout for a report.
	// ok is false when no report arrived; that is not a state change.
	Read(timeout time.Duration) (s Sample, ok bool, err error)

	// Close releases the device.
	Close() error
}

// DeviceInfo describes an attached HID device.
type DeviceInfo struct {
	Path         string
	VendorID     uint16
	ProductID    uint16
	Manufacturer string
	Product      string
	Serial       string
}
