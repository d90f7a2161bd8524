// Package auth keeps a valid cloud access token available: it loads the
// persisted token, refreshes it before expiry and falls back to the
// interactive authorization-code flow when nothing else works.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ExpiryMargin is how early a token is considered expired.
const ExpiryMargin = 300 * time.Second

// Dropbox OAuth endpoints.
const (
	DefaultAuthURL     = "https://www.dropbox.com/oauth2/authorize"
	DefaultTokenURL    = "https://api.dropboxapi.com/oauth2/token"
	DefaultRedirectURL = "http://localhost:8081/auth/callback"
)

// ErrAuthFailure means no usable access token could be obtained.
var ErrAuthFailure = errors.New("auth failure")

// Authorizer runs the interactive authorization flow.
type Authorizer interface {
	Authorize(ctx context.Context) (*oauth2.Token, error)
}

// OAuthConfig builds the client configuration. Client credentials are sent
// in the request body as the Dropbox endpoint expects.
func OAuthConfig(clientID, clientSecret, authURL, tokenURL, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// Manager hands out access tokens. Token calls are serialized so a token
// is never refreshed twice concurrently.
type Manager struct {
	mu        sync.Mutex
	store     Store
	conf      *oauth2.Config
	handshake Authorizer
	now       func() time.Time
	onRefresh func(Record)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithObserver is called with every record the manager persists.
func WithObserver(fn func(Record)) Option {
	return func(m *Manager) { m.onRefresh = fn }
}

// NewManager creates a Manager.
func NewManager(store Store, conf *oauth2.Config, handshake Authorizer, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		conf:      conf,
		handshake: handshake,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns a valid access token.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.Load()
	if err != nil {
		log.Printf("auth: %v", err)
		rec = nil
	}

	if rec == nil {
		log.Printf("auth: no token found, starting authorization")
		return m.authorize(ctx)
	}

	if !rec.Expired(m.now(), ExpiryMargin) {
		return rec.AccessToken, nil
	}

	if rec.RefreshToken == "" {
		log.Printf("auth: token expired and no refresh token, starting authorization")
		return m.authorize(ctx)
	}

	log.Printf("auth: access token expired, refreshing")
	fresh, err := m.refresh(ctx, *rec)
	if err != nil {
		log.Printf("auth: refresh failed: %v", err)
		return m.authorize(ctx)
	}
	if err := m.save(fresh); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}
	return fresh.AccessToken, nil
}

// Status returns the persisted record without refreshing it.
func (m *Manager) Status() (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Load()
}

func (m *Manager) refresh(ctx context.Context, rec Record) (Record, error) {
	src := m.conf.TokenSource(ctx, &oauth2.Token{
		RefreshToken: rec.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	if err != nil {
		return Record{}, err
	}

	fresh := recordFromToken(tok, m.now())
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = rec.RefreshToken
	}
	return fresh, nil
}

// authorize runs the handshake, persists the result and reloads it.
func (m *Manager) authorize(ctx context.Context) (string, error) {
	if m.handshake == nil {
		return "", fmt.Errorf("%w: authorization required", ErrAuthFailure)
	}
	tok, err := m.handshake.Authorize(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}
	if err := m.save(recordFromToken(tok, m.now())); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}

	rec, err := m.store.Load()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}
	if rec == nil {
		return "", fmt.Errorf("%w: no token after authorization", ErrAuthFailure)
	}
	log.Printf("auth: authorization successful")
	return rec.AccessToken, nil
}

func (m *Manager) save(rec Record) error {
	if err := m.store.Save(rec); err != nil {
		return err
	}
	log.Printf("auth: token saved, expires %s", rec.Expiry().Format(time.RFC3339))
	if m.onRefresh != nil {
		m.onRefresh(rec)
	}
	return nil
}
