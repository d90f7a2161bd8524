// Package metrics exposes daemon activity as Prometheus metrics.
// All methods are safe to call on a nil *Collector.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Capture sources.
const (
	SourcePedal     = "pedal"
	SourcePanel     = "panel"
	SourceTimelapse = "timelapse"
)

// Collector holds the daemon's metrics.
type Collector struct {
	presses          prometheus.Counter
	debounced        prometheus.Counter
	dropped          prometheus.Counter
	toggles          prometheus.Counter
	captures         *prometheus.CounterVec
	captureDuration  prometheus.Histogram
	uploads          *prometheus.CounterVec
	timelapseActive  prometheus.Gauge
	cameraConnected  prometheus.Gauge
	tokenRefreshes   prometheus.Counter
	tokenExpiry      prometheus.Gauge
	connectionChecks *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		presses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pedalcam_pedal_presses_total",
			Help: "Total number of pedal presses detected",
		}),
		debounced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pedalcam_debounced_presses_total",
			Help: "Presses suppressed by the debounce interval",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pedalcam_dropped_presses_total",
			Help: "Presses dropped because a capture was already in progress",
		}),
		toggles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pedalcam_timelapse_toggles_total",
			Help: "Total number of timelapse mode toggles",
		}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pedalcam_captures_total",
			Help: "Capture attempts by source and result",
		}, []string{"source", "result"}),
		captureDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pedalcam_capture_duration_seconds",
			Help:    "Time from trigger to files stored and uploaded",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pedalcam_uploads_total",
			Help: "File uploads by result",
		}, []string{"result"}),
		timelapseActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pedalcam_timelapse_active",
			Help: "1 while timelapse mode is running",
		}),
		cameraConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pedalcam_camera_connected",
			Help: "1 while the camera is connected",
		}),
		tokenRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pedalcam_token_saves_total",
			Help: "Access tokens obtained by refresh or authorization",
		}),
		tokenExpiry: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pedalcam_token_expiry_timestamp_seconds",
			Help: "Expiry of the current access token as a Unix timestamp",
		}),
		connectionChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pedalcam_camera_checks_total",
			Help: "Camera connectivity checks by result",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.presses,
		c.debounced,
		c.dropped,
		c.toggles,
		c.captures,
		c.captureDuration,
		c.uploads,
		c.timelapseActive,
		c.cameraConnected,
		c.tokenRefreshes,
		c.tokenExpiry,
		c.connectionChecks,
	)
	c.cameraConnected.Set(1)
	return c
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordPress counts a detected press.
func (c *Collector) RecordPress() {
	if c == nil {
		return
	}
	c.presses.Inc()
}

// RecordDebounced counts a press suppressed by debounce.
func (c *Collector) RecordDebounced() {
	if c == nil {
		return
	}
	c.debounced.Inc()
}

// RecordDropped counts a press dropped while a capture was in flight.
func (c *Collector) RecordDropped() {
	if c == nil {
		return
	}
	c.dropped.Inc()
}

// RecordToggle counts a timelapse toggle and sets the active gauge.
func (c *Collector) RecordToggle(active bool) {
	if c == nil {
		return
	}
	c.toggles.Inc()
	c.timelapseActive.Set(boolGauge(active))
}

// RecordCapture counts a capture attempt and its duration.
func (c *Collector) RecordCapture(source, result string, d time.Duration) {
	if c == nil {
		return
	}
	c.captures.WithLabelValues(source, result).Inc()
	c.captureDuration.Observe(d.Seconds())
}

// RecordUploads counts uploaded and failed files.
func (c *Collector) RecordUploads(ok, failed int) {
	if c == nil {
		return
	}
	c.uploads.WithLabelValues("ok").Add(float64(ok))
	c.uploads.WithLabelValues("error").Add(float64(failed))
}

// SetCameraConnected sets the camera gauge.
func (c *Collector) SetCameraConnected(connected bool) {
	if c == nil {
		return
	}
	c.cameraConnected.Set(boolGauge(connected))
}

// RecordCheck counts a connectivity check.
func (c *Collector) RecordCheck(connected bool) {
	if c == nil {
		return
	}
	result := "connected"
	if !connected {
		result = "disconnected"
	}
	c.connectionChecks.WithLabelValues(result).Inc()
	c.cameraConnected.Set(boolGauge(connected))
}

// RecordToken records a newly persisted token.
func (c *Collector) RecordToken(expiry time.Time) {
	if c == nil {
		return
	}
	c.tokenRefreshes.Inc()
	c.tokenExpiry.Set(float64(expiry.Unix()))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
