package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollectorRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	require.NotNil(t, c)

	assert.Panics(t, func() { NewCollector(reg) }, "second registration must collide")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cameraConnected))
}

func TestCounters(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordPress()
	c.RecordPress()
	c.RecordDebounced()
	c.RecordDropped()
	c.RecordCapture(SourcePedal, "ok", 2*time.Second)
	c.RecordCapture(SourceTimelapse, "error", time.Second)
	c.RecordUploads(2, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.presses))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.debounced))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.captures.WithLabelValues(SourcePedal, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.captures.WithLabelValues(SourceTimelapse, "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.uploads.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.uploads.WithLabelValues("error")))
}

func TestGauges(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordToggle(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.timelapseActive))
	c.RecordToggle(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.timelapseActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.toggles))

	c.RecordCheck(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.cameraConnected))
	c.SetCameraConnected(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cameraConnected))

	exp := time.Unix(1_800_000_000, 0)
	c.RecordToken(exp)
	assert.Equal(t, 1.8e9, testutil.ToFloat64(c.tokenExpiry))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordPress()
		c.RecordDebounced()
		c.RecordDropped()
		c.RecordToggle(true)
		c.RecordCapture(SourcePanel, "ok", time.Second)
		c.RecordUploads(1, 0)
		c.SetCameraConnected(true)
		c.RecordCheck(true)
		c.RecordToken(time.Now())
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordPress()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pedalcam_pedal_presses_total 1")
	assert.Contains(t, string(body), "pedalcam_camera_connected 1")
}
