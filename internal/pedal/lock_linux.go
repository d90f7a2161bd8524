//go:build linux

package pedal

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// deviceLock holds an advisory exclusive lock on the hidraw node.
// The kernel drops it when the process exits, so nothing persists on disk.
type deviceLock struct {
	f *os.File
}

func lockDevice(path string) (*deviceLock, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s for locking: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", path, ErrDeviceBusy)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return &deviceLock{f: f}, nil
}

func (l *deviceLock) release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
