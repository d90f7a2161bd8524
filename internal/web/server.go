// Package web serves the pedalcam control panel: status, user selection,
// manual capture and timelapse control.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sweeney/pedalcam/internal/camera"
	"github.com/sweeney/pedalcam/internal/control"
	"github.com/sweeney/pedalcam/internal/metrics"
	"github.com/sweeney/pedalcam/internal/profile"
	"github.com/sweeney/pedalcam/internal/status"
)

// Controller is what the panel drives.
type Controller interface {
	CaptureNow(ctx context.Context) (*camera.Result, error)
	ToggleTimelapse(source string) bool
	CheckCamera(ctx context.Context) bool
	ActiveUser() (string, profile.Profile, error)
	Users() ([]profile.Entry, error)
	SetActiveUser(id string) error
	AddUser(id, displayName, cloudFolder string, activate bool) (bool, error)
}

// Server serves the control panel over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	ctrl       Controller
}

// New creates a Server. gatherer may be nil to disable /metrics.
func New(addr string, tracker *status.Tracker, ctrl Controller, gatherer prometheus.Gatherer) *Server {
	s := &Server{tracker: tracker, ctrl: ctrl}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /index.html", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("POST /take_photo", s.handleTakePhoto)
	mux.HandleFunc("POST /toggle_timelapse", s.handleToggleTimelapse)
	mux.HandleFunc("POST /set_user", s.handleSetUser)
	mux.HandleFunc("POST /add_user", s.handleAddUser)
	mux.HandleFunc("GET /check_camera", s.handleCheckCamera)
	mux.HandleFunc("GET /api/current_user", s.handleCurrentUser)
	if gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(gatherer))
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page := panel{
		Snapshot: s.tracker.Snapshot(),
		Message:  r.URL.Query().Get("msg"),
	}
	users, err := s.ctrl.Users()
	if err != nil {
		log.Printf("web: list users: %v", err)
	}
	page.Users = users
	if id, p, err := s.ctrl.ActiveUser(); err == nil {
		page.ActiveID, page.Active = id, p
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, page)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

type photoResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	ID       string `json:"id,omitempty"`
	Files    int    `json:"files"`
	Uploaded int    `json:"uploaded"`
}

func (s *Server) handleTakePhoto(w http.ResponseWriter, r *http.Request) {
	// The capture outlives a dropped request; the device is not interrupted.
	res, err := s.ctrl.CaptureNow(context.WithoutCancel(r.Context()))

	resp := photoResponse{Success: err == nil, Message: "Photo captured successfully"}
	if res != nil {
		resp.ID, resp.Files, resp.Uploaded = res.ID, len(res.Files), res.Uploaded()
	}
	code := http.StatusOK
	if err != nil {
		resp.Message = "Error capturing photo: " + err.Error()
		if errors.Is(err, control.ErrCaptureInFlight) {
			code = http.StatusConflict
		}
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleToggleTimelapse(w http.ResponseWriter, r *http.Request) {
	active := s.ctrl.ToggleTimelapse(metrics.SourcePanel)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true, "timelapse_active": active})
}

func (s *Server) handleCheckCamera(w http.ResponseWriter, r *http.Request) {
	connected := s.ctrl.CheckCamera(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, map[string]bool{"connected": connected})
}

func (s *Server) handleSetUser(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.SetActiveUser(r.FormValue("username")); err != nil {
		log.Printf("web: set user: %v", err)
		http.Error(w, "Error setting user", http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	id := r.FormValue("username")
	created, err := s.ctrl.AddUser(id, r.FormValue("display_name"), r.FormValue("dropbox_folder"), r.FormValue("set_active") == "on")

	var msg string
	switch {
	case err != nil:
		log.Printf("web: add user %q: %v", id, err)
		msg = "Error: " + err.Error()
	case created:
		msg = "User '" + id + "' created"
	default:
		msg = "User '" + id + "' updated"
	}
	http.Redirect(w, r, "/?msg="+url.QueryEscape(msg), http.StatusSeeOther)
}

type currentUser struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	CloudFolder string `json:"dropbox_folder"`
	LocalFolder string `json:"local_folder"`
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	id, p, err := s.ctrl.ActiveUser()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	name := p.DisplayName
	if name == "" {
		name = id
	}
	writeJSON(w, http.StatusOK, currentUser{
		Username:    id,
		DisplayName: name,
		CloudFolder: p.CloudFolder,
		LocalFolder: p.LocalFolder,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: encode response: %v", err)
	}
}
