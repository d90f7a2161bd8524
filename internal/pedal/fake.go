package pedal

import (
	"errors"
	"sync"
	"time"
)

// FakeReader is a test double that returns scripted pedal reports.
type FakeReader struct {
	mu sync.Mutex

	// Samples contains scripted button values. Each Read consumes one.
	// A negative value scripts a timeout (no report).
	Samples []int

	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error

	// Timeouts records the timeout passed to each Read call.
	Timeouts []time.Duration
}

// NoReport scripts a read timeout in FakeReader.Samples.
const NoReport = -1

// NewFakeReader creates a FakeReader with the given button values.
func NewFakeReader(samples ...int) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted report.
// Once samples are exhausted every read times out.
func (f *FakeReader) Read(timeout time.Duration) (Sample, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Timeouts = append(f.Timeouts, timeout)
	if f.Closed {
		return Sample{}, false, errors.New("pedal: read on closed device")
	}
	if f.ReadError != nil {
		return Sample{}, false, f.ReadError
	}
	if f.index >= len(f.Samples) {
		return Sample{}, false, nil
	}

	v := f.Samples[f.index]
	f.index++
	if v < 0 {
		return Sample{}, false, nil
	}

	data := make([]byte, 8)
	data[4] = byte(v)
	return Sample{Data: data}, true, nil
}

// Remaining returns the number of scripted samples not yet read.
func (f *FakeReader) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Samples) - f.index
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.mu.Lock()
	f.index = 0
	f.Closed = false
	f.Timeouts = nil
	f.mu.Unlock()
}
