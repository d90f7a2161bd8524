package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// Record is the persisted token set. ExpiresAt is seconds since the epoch.
type Record struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token,omitempty"`
	ExpiresAt    float64 `json:"expires_at"`
}

// Expired reports whether the access token expires within margin of now.
func (r Record) Expired(now time.Time, margin time.Duration) bool {
	return r.ExpiresAt <= epochSeconds(now.Add(margin))
}

// Expiry returns ExpiresAt as a time.
func (r Record) Expiry() time.Time {
	sec := int64(r.ExpiresAt)
	nsec := int64((r.ExpiresAt - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// recordFromToken converts an endpoint response. A response without an
// expiry is treated as already expiring.
func recordFromToken(tok *oauth2.Token, now time.Time) Record {
	rec := Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    epochSeconds(now),
	}
	if !tok.Expiry.IsZero() {
		rec.ExpiresAt = epochSeconds(tok.Expiry)
	}
	return rec
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Store persists a Record.
type Store interface {
	// Load returns nil, nil when nothing has been stored yet.
	Load() (*Record, error)
	Save(Record) error
}

// FileStore keeps the record as JSON in a single file readable only by
// the owner.
type FileStore struct {
	Path string
}

// Load reads the record.
func (s FileStore) Load() (*Record, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	if rec.AccessToken == "" {
		return nil, nil
	}
	return &rec, nil
}

// Save writes the record atomically.
func (s FileStore) Save(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}
