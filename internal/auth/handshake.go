package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"
)

// DefaultHandshakeTimeout bounds the wait for the browser callback.
const DefaultHandshakeTimeout = 300 * time.Second

const (
	successPage = "<html><body><h1>Authorization Successful!</h1><p>You can close this window now.</p></body></html>"
	failurePage = "<html><body><h1>Authorization Failed</h1><p>No authorization code received.</p></body></html>"
)

// Handshake runs the authorization-code flow against a loopback callback
// listener on the redirect URL's host and port.
type Handshake struct {
	conf    *oauth2.Config
	timeout time.Duration
	open    func(string) error
}

// NewHandshake creates a Handshake. A zero timeout uses the default.
func NewHandshake(conf *oauth2.Config, timeout time.Duration) *Handshake {
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	return &Handshake{conf: conf, timeout: timeout, open: browser.OpenURL}
}

// Callback is the outcome of the redirect back from the provider.
type Callback struct {
	Code string
	Err  error
}

// CallbackHandler serves the redirect. A request carrying a code and the
// expected state gets the success page and is delivered on out; anything
// else gets the failure page. An explicit provider error is also
// delivered so the wait ends early.
func CallbackHandler(state string, out chan<- Callback) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "text/html")

		code := q.Get("code")
		if code != "" && q.Get("state") == state {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(successPage))
			deliver(out, Callback{Code: code})
			return
		}

		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(failurePage))
		if e := q.Get("error"); e != "" {
			deliver(out, Callback{Err: fmt.Errorf("provider returned %s: %s", e, q.Get("error_description"))})
		}
	})
}

func deliver(out chan<- Callback, cb Callback) {
	select {
	case out <- cb:
	default:
	}
}

// Authorize opens the authorization URL and exchanges the returned code.
// The callback listener is shut down before returning.
func (h *Handshake) Authorize(ctx context.Context) (*oauth2.Token, error) {
	redirect, err := url.Parse(h.conf.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("parse redirect url: %w", err)
	}
	path := redirect.Path
	if path == "" {
		path = "/"
	}

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("listen for callback: %w", err)
	}

	state := uuid.NewString()
	results := make(chan Callback, 1)
	mux := http.NewServeMux()
	mux.Handle(path, CallbackHandler(state, results))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("auth: callback server: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	authURL := h.conf.AuthCodeURL(state, oauth2.SetAuthURLParam("token_access_type", "offline"))
	log.Printf("auth: please visit this URL to authorize the app: %s", authURL)
	if err := h.open(authURL); err != nil {
		log.Printf("auth: could not open browser, copy the URL above: %v", err)
	}

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	var cb Callback
	select {
	case cb = <-results:
	case <-timer.C:
		return nil, fmt.Errorf("no callback within %v", h.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if cb.Err != nil {
		return nil, cb.Err
	}

	tok, err := h.conf.Exchange(ctx, cb.Code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return tok, nil
}
