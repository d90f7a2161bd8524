package cloud

import (
	"context"
	"sync"
)

// Upload records one FakeUploader call.
type Upload struct {
	Token  string
	Local  string
	Remote string
}

// FakeUploader records uploads for test assertions.
type FakeUploader struct {
	mu      sync.Mutex
	uploads []Upload

	// Err, if set, is returned by Upload.
	Err error
}

// NewFakeUploader creates a FakeUploader.
func NewFakeUploader() *FakeUploader {
	return &FakeUploader{}
}

// Upload records the call.
func (f *FakeUploader) Upload(_ context.Context, token, localPath, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.uploads = append(f.uploads, Upload{Token: token, Local: localPath, Remote: NormalizePath(remotePath)})
	return nil
}

// Uploads returns the recorded uploads.
func (f *FakeUploader) Uploads() []Upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Upload(nil), f.uploads...)
}
