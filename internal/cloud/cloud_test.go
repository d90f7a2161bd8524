package cloud

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/Camera_Pedal_Photos/alice/2026-01-01/a.jpg", "/Camera_Pedal_Photos/alice/2026-01-01/a.jpg"},
		{"Camera_Pedal_Photos/alice//a.jpg", "/Camera_Pedal_Photos/alice/a.jpg"},
		{"/Lab/alice/", "/Lab/alice"},
		{`Lab\alice\a.jpg`, "/Lab/alice/a.jpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePath(tt.in), tt.in)
	}
}

func TestUploadCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewDropbox(false).Upload(ctx, "tok", "/nonexistent", "/x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUploadMissingFile(t *testing.T) {
	err := NewDropbox(false).Upload(context.Background(), "tok", "/nonexistent/file.jpg", "/x/file.jpg")
	assert.Error(t, err)
}

func TestFakeUploader(t *testing.T) {
	f := NewFakeUploader()
	require.NoError(t, f.Upload(context.Background(), "tok", "/tmp/a.jpg", "Lab//a.jpg"))

	got := f.Uploads()
	require.Len(t, got, 1)
	assert.Equal(t, Upload{Token: "tok", Local: "/tmp/a.jpg", Remote: "/Lab/a.jpg"}, got[0])

	f.Err = errors.New("offline")
	assert.Error(t, f.Upload(context.Background(), "tok", "/tmp/b.jpg", "/Lab/b.jpg"))
	assert.Len(t, f.Uploads(), 1)
}
