//go:build !linux

package pedal

// deviceLock is a no-op on platforms where hidapi already opens exclusively.
type deviceLock struct{}

func lockDevice(path string) (*deviceLock, error) {
	return &deviceLock{}, nil
}

func (l *deviceLock) release() error {
	return nil
}
