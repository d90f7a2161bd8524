package pedal

import (
	"errors"
	"testing"
	"time"
)

func TestFakeReaderRead(t *testing.T) {
	f := NewFakeReader(0, 3, NoReport, 0)

	want := []struct {
		ok     bool
		button byte
	}{
		{true, 0},
		{true, 3},
		{false, 0},
		{true, 0},
	}

	for i, w := range want {
		s, ok, err := f.Read(100 * time.Millisecond)
		if err != nil {
			t.Fatalf("read %d: unexpected error: %v", i, err)
		}
		if ok != w.ok {
			t.Fatalf("read %d: ok got %v, want %v", i, ok, w.ok)
		}
		if !ok {
			continue
		}
		b, err := s.Button()
		if err != nil {
			t.Fatalf("read %d: button: %v", i, err)
		}
		if b != w.button {
			t.Errorf("read %d: button got %d, want %d", i, b, w.button)
		}
	}

	// Exhausted samples time out
	if _, ok, _ := f.Read(time.Millisecond); ok {
		t.Error("expected timeout after samples exhausted")
	}
	if f.Remaining() != 0 {
		t.Errorf("Remaining: got %d, want 0", f.Remaining())
	}
}

func TestFakeReaderRecordsTimeouts(t *testing.T) {
	f := NewFakeReader(0)
	f.Read(100 * time.Millisecond)
	if len(f.Timeouts) != 1 || f.Timeouts[0] != 100*time.Millisecond {
		t.Errorf("Timeouts: got %v", f.Timeouts)
	}
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader(3)
	f.ReadError = errors.New("simulated error")

	_, _, err := f.Read(time.Millisecond)
	if err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeReaderClose(t *testing.T) {
	f := NewFakeReader(3)
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
	if _, _, err := f.Read(time.Millisecond); err == nil {
		t.Error("read after close should fail")
	}
}

func TestFakeReaderReset(t *testing.T) {
	f := NewFakeReader(3, 0)
	f.Read(time.Millisecond)
	f.Reset()

	s, ok, _ := f.Read(time.Millisecond)
	if !ok {
		t.Fatal("expected report after reset")
	}
	if b, _ := s.Button(); b != 3 {
		t.Errorf("after reset: got %d, want 3", b)
	}
}

func TestSampleButtonShortReport(t *testing.T) {
	_, err := Sample{Data: []byte{1, 2, 3}}.Button()
	if !errors.Is(err, ErrShortReport) {
		t.Errorf("got %v, want ErrShortReport", err)
	}
}
