package pedal

import (
	"errors"
	"fmt"
	"time"

	"github.com/sstallion/go-hid"
)

// HIDReader reads the pedal through hidapi.
type HIDReader struct {
	dev  *hid.Device
	lock *deviceLock
	buf  []byte
}

// OpenHID opens the first pedal matching vid/pid exclusively.
// A second process opening the same pedal gets ErrDeviceBusy.
func OpenHID(vid, pid uint16) (*HIDReader, error) {
	if err := hid.Init(); err != nil {
		return nil, fmt.Errorf("init hidapi: %w", err)
	}

	path, err := findPath(vid, pid)
	if err != nil {
		hid.Exit()
		return nil, err
	}

	lock, err := lockDevice(path)
	if err != nil {
		hid.Exit()
		return nil, err
	}

	dev, err := hid.OpenPath(path)
	if err != nil {
		lock.release()
		hid.Exit()
		return nil, fmt.Errorf("open pedal %04x:%04x at %s: %w", vid, pid, path, err)
	}

	return &HIDReader{
		dev:  dev,
		lock: lock,
		buf:  make([]byte, ReportSize),
	}, nil
}

func findPath(vid, pid uint16) (string, error) {
	var path string
	err := hid.Enumerate(vid, pid, func(info *hid.DeviceInfo) error {
		if path == "" {
			path = info.Path
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("enumerate hid devices: %w", err)
	}
	if path == "" {
		return "", fmt.Errorf("pedal %04x:%04x not found", vid, pid)
	}
	return path, nil
}

// Read waits up to timeout for a report.
func (r *HIDReader) Read(timeout time.Duration) (Sample, bool, error) {
	n, err := r.dev.ReadWithTimeout(r.buf, timeout)
	if errors.Is(err, hid.ErrTimeout) {
		return Sample{}, false, nil
	}
	if err != nil {
		return Sample{}, false, fmt.Errorf("read pedal: %w", err)
	}
	if n == 0 {
		return Sample{}, false, nil
	}

	data := make([]byte, n)
	copy(data, r.buf[:n])
	return Sample{Data: data}, true, nil
}

// Close releases the device, the exclusivity lock and hidapi.
func (r *HIDReader) Close() error {
	var errs []error
	if r.dev != nil {
		if err := r.dev.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close device: %w", err))
		}
	}
	if r.lock != nil {
		if err := r.lock.release(); err != nil {
			errs = append(errs, fmt.Errorf("release lock: %w", err))
		}
	}
	if err := hid.Exit(); err != nil {
		errs = append(errs, fmt.Errorf("exit hidapi: %w", err))
	}
	return errors.Join(errs...)
}

// ListDevices returns all attached HID devices.
func ListDevices() ([]DeviceInfo, error) {
	if err := hid.Init(); err != nil {
		return nil, fmt.Errorf("init hidapi: %w", err)
	}
	defer hid.Exit()

	var out []DeviceInfo
	err := hid.Enumerate(hid.VendorIDAny, hid.ProductIDAny, func(info *hid.DeviceInfo) error {
		out = append(out, DeviceInfo{
			Path:         info.Path,
			VendorID:     info.VendorID,
			ProductID:    info.ProductID,
			Manufacturer: info.MfrStr,
			Product:      info.ProductStr,
			Serial:       info.SerialNbr,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate hid devices: %w", err)
	}
	return out, nil
}
