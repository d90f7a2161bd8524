package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sweeney/pedalcam/internal/camera"
	"github.com/sweeney/pedalcam/internal/control"
	"github.com/sweeney/pedalcam/internal/logic"
	"github.com/sweeney/pedalcam/internal/metrics"
	"github.com/sweeney/pedalcam/internal/profile"
	"github.com/sweeney/pedalcam/internal/status"
)

type fakeController struct {
	mu         sync.Mutex
	captureErr error
	captures   int
	timelapse  bool
	toggles    []string
	connected  bool
	checkErr   error
	active     string
	profiles   map[string]profile.Profile
}

func newFakeController() *fakeController {
	return &fakeController{
		connected: true,
		active:    "shared",
		profiles: map[string]profile.Profile{
			"shared": {DisplayName: "Shared Lab Account", CloudFolder: "/Camera_Pedal_Photos/shared", LocalFolder: "pedal_triggered_photos/shared"},
			"alice":  {DisplayName: "Alice", CloudFolder: "/Camera_Pedal_Photos/alice", LocalFolder: "pedal_triggered_photos/alice"},
		},
	}
}

func (c *fakeController) CaptureNow(context.Context) (*camera.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captures++
	if c.captureErr != nil {
		return nil, c.captureErr
	}
	return &camera.Result{ID: "abc", Files: []camera.File{{Uploaded: true}, {Uploaded: false}}}, nil
}

func (c *fakeController) ToggleTimelapse(source string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timelapse = !c.timelapse
	c.toggles = append(c.toggles, source)
	return c.timelapse
}

func (c *fakeController) CheckCamera(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkErr = ctx.Err()
	return c.connected
}

func (c *fakeController) set(fn func(c *fakeController)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

type controllerState struct {
	captures int
	active   string
	toggles  []string
}

func (c *fakeController) snapshot() controllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return controllerState{
		captures: c.captures,
		active:   c.active,
		toggles:  append([]string(nil), c.toggles...),
	}
}

func (c *fakeController) ActiveUser() (string, profile.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.profiles[c.active], nil
}

func (c *fakeController) Users() ([]profile.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []profile.Entry
	for id, p := range c.profiles {
		out = append(out, profile.Entry{ID: id, DisplayName: p.DisplayName})
	}
	return out, nil
}

func (c *fakeController) SetActiveUser(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.profiles[id]; !ok {
		return profile.ErrNotFound
	}
	c.active = id
	return nil
}

func (c *fakeController) AddUser(id, name, cloud string, activate bool) (bool, error) {
	if !profile.ValidID(id) {
		return false, profile.ErrInvalidID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, existed := c.profiles[id]
	c.profiles[id] = profile.Profile{DisplayName: name, CloudFolder: cloud}
	if activate {
		c.active = id
	}
	return !existed, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker, *fakeController) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		CameraModel: "Canon EOS 700D",
		PollMs:      100,
		DebounceMs:  500,
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":8080",
	}
	tr := status.NewTracker(start, cfg)
	ctrl := newFakeController()

	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg).RecordPress()

	srv := New(":0", tr, ctrl, reg)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr, ctrl
}

// noRedirect returns a client that reports redirects instead of following them.
func noRedirect() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.UpdatePedal(logic.StatePressed, logic.Counts{Presses: 5, Captures: 4, Toggles: 1})
	tr.SetCamera("CONNECTED", time.Now())
	tr.SetTimelapse(true)
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	decode(t, resp, &sj)

	if sj.Status.Pedal.State != "PRESSED" {
		t.Errorf("Pedal: got %q, want PRESSED", sj.Status.Pedal.State)
	}
	if sj.Status.Camera.State != "CONNECTED" {
		t.Errorf("Camera: got %q", sj.Status.Camera.State)
	}
	if !sj.Status.Timelapse {
		t.Error("expected timelapse_active=true")
	}
	if sj.Status.Counts.Presses != 5 || sj.Status.Counts.Toggles != 1 {
		t.Errorf("Counts: got %+v", sj.Status.Counts)
	}
	if !sj.Status.MQTT.Connected || sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT: got %+v", sj.Status.MQTT)
	}
	if sj.Status.Config.CameraModel != "Canon EOS 700D" {
		t.Errorf("Config.CameraModel: got %q", sj.Status.Config.CameraModel)
	}
}

func TestJSONUnknownStateAtStartup(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	var sj status.StatusJSON
	decode(t, resp, &sj)

	if sj.Status.Pedal.State != "UNKNOWN" {
		t.Errorf("Pedal at startup: got %q, want UNKNOWN", sj.Status.Pedal.State)
	}
	if sj.Status.LastCapture != nil {
		t.Errorf("LastCapture at startup: got %+v, want nil", sj.Status.LastCapture)
	}
}

func TestHTMLEndpoint(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.RecordCapture(status.CaptureInfo{Source: "pedal", Files: 1, Uploaded: 0, Error: "upload failed", Time: time.Now()})

	for _, path := range []string{"/", "/index.html"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != 200 {
			t.Errorf("%s status: got %d, want 200", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("%s Content-Type: got %q, want text/html", path, ct)
		}
		page := string(body)
		for _, want := range []string{"Shared Lab Account", `value="alice"`, "upload failed", "Canon EOS 700D"} {
			if !strings.Contains(page, want) {
				t.Errorf("%s: page missing %q", path, want)
			}
		}
	}
}

func TestHTMLShowsMessage(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/?msg=" + url.QueryEscape("User 'bob' created"))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "User &#39;bob&#39; created") {
		t.Errorf("message not rendered escaped")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestTakePhoto(t *testing.T) {
	ts, _, ctrl := newTestServer(t)

	resp, err := http.Post(ts.URL+"/take_photo", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	var got photoResponse
	decode(t, resp, &got)

	if !got.Success || got.ID != "abc" || got.Files != 2 || got.Uploaded != 1 {
		t.Errorf("response: got %+v", got)
	}
	if ctrl.snapshot().captures != 1 {
		t.Errorf("captures: got %d, want 1", ctrl.snapshot().captures)
	}
}

func TestTakePhotoFailure(t *testing.T) {
	ts, _, ctrl := newTestServer(t)
	ctrl.set(func(c *fakeController) { c.captureErr = camera.ErrDeviceUnavailable })

	resp, err := http.Post(ts.URL+"/take_photo", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	var got photoResponse
	decode(t, resp, &got)
	if got.Success || !strings.HasPrefix(got.Message, "Error capturing photo") {
		t.Errorf("response: got %+v", got)
	}
}

func TestTakePhotoInFlight(t *testing.T) {
	ts, _, ctrl := newTestServer(t)
	ctrl.set(func(c *fakeController) { c.captureErr = control.ErrCaptureInFlight })

	resp, err := http.Post(ts.URL+"/take_photo", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status: got %d, want 409", resp.StatusCode)
	}
}

func TestTakePhotoRequiresPost(t *testing.T) {
	ts, _, ctrl := newTestServer(t)

	resp, err := http.Get(ts.URL + "/take_photo")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
	if ctrl.snapshot().captures != 0 {
		t.Errorf("GET must not capture")
	}
}

func TestToggleTimelapse(t *testing.T) {
	ts, _, ctrl := newTestServer(t)

	for _, want := range []bool{true, false} {
		resp, err := http.Post(ts.URL+"/toggle_timelapse", "", nil)
		if err != nil {
			t.Fatal(err)
		}
		var got map[string]bool
		decode(t, resp, &got)
		if !got["success"] || got["timelapse_active"] != want {
			t.Errorf("response: got %v, want active=%v", got, want)
		}
	}
	if toggles := ctrl.snapshot().toggles; len(toggles) != 2 || toggles[0] != metrics.SourcePanel {
		t.Errorf("toggles: got %v", toggles)
	}
}

func TestCheckCamera(t *testing.T) {
	ts, _, ctrl := newTestServer(t)
	ctrl.set(func(c *fakeController) { c.connected = false })

	resp, err := http.Get(ts.URL + "/check_camera")
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]bool
	decode(t, resp, &got)
	if got["connected"] {
		t.Errorf("connected: got true, want false")
	}
}

func TestCheckCameraOutlivesRequest(t *testing.T) {
	ctrl := newFakeController()
	srv := New(":0", status.NewTracker(time.Now(), status.Config{}), ctrl, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/check_camera", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if ctrl.checkErr != nil {
		t.Errorf("check ran with a cancelled context: %v", ctrl.checkErr)
	}
}

func TestSetUser(t *testing.T) {
	ts, _, ctrl := newTestServer(t)
	client := noRedirect()

	resp, err := client.PostForm(ts.URL+"/set_user", url.Values{"username": {"alice"}})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		t.Errorf("redirect: got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	if ctrl.snapshot().active != "alice" {
		t.Errorf("active: got %q, want alice", ctrl.snapshot().active)
	}

	resp, err = client.PostForm(ts.URL+"/set_user", url.Values{"username": {"nobody"}})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown user: got %d, want 400", resp.StatusCode)
	}
}

func TestAddUser(t *testing.T) {
	ts, _, ctrl := newTestServer(t)
	client := noRedirect()

	resp, err := client.PostForm(ts.URL+"/add_user", url.Values{
		"username":     {"bob"},
		"display_name": {"Bob"},
		"set_active":   {"on"},
	})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status: got %d, want 303", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); !strings.Contains(loc, "created") {
		t.Errorf("location: got %q", loc)
	}
	if ctrl.snapshot().active != "bob" {
		t.Errorf("active: got %q, want bob", ctrl.snapshot().active)
	}

	resp, err = client.PostForm(ts.URL+"/add_user", url.Values{"username": {"bad name"}, "display_name": {"x"}})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if loc := resp.Header.Get("Location"); !strings.Contains(loc, "Error") {
		t.Errorf("invalid user location: got %q", loc)
	}
}

func TestCurrentUser(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/current_user")
	if err != nil {
		t.Fatal(err)
	}
	var got currentUser
	decode(t, resp, &got)

	want := currentUser{
		Username:    "shared",
		DisplayName: "Shared Lab Account",
		CloudFolder: "/Camera_Pedal_Photos/shared",
		LocalFolder: "pedal_triggered_photos/shared",
	}
	if got != want {
		t.Errorf("current user: got %+v, want %+v", got, want)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "pedalcam_pedal_presses_total 1") {
		t.Errorf("metrics missing press counter:\n%s", body)
	}
}
