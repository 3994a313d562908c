package api

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flockweigh/flockweigh-core/internal/calibration"
	"github.com/flockweigh/flockweigh-core/internal/events"
)

// Metrics holds the Prometheus collectors for the server.
//
// Each Metrics owns its registry, so several servers (or tests) can run in
// one process without duplicate-registration panics.
type Metrics struct {
	registry           *prometheus.Registry
	heartbeats         *prometheus.CounterVec
	calibrationReports *prometheus.CounterVec
	weightSubmissions  prometheus.Counter
	requestDuration    *prometheus.HistogramVec
}

// NewMetrics creates and registers the server's collectors together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flockweigh_heartbeats_total",
			Help: "Firmware heartbeats by the command returned.",
		}, []string{"outcome"}),
		calibrationReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flockweigh_calibration_reports_total",
			Help: "Firmware calibration step reports by reported step and decision.",
		}, []string{"step", "outcome"}),
		weightSubmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flockweigh_weight_submissions_total",
			Help: "Accepted operator calibration weight submissions.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flockweigh_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.heartbeats,
		m.calibrationReports,
		m.weightSubmissions,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeRequest(route string, d time.Duration) {
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) countHeartbeat(outcome string) {
	m.heartbeats.WithLabelValues(outcome).Inc()
}

// countCalibrationReport keeps the step label bounded: anything outside
// the known steps is recorded as "other".
func (m *Metrics) countCalibrationReport(step calibration.Step, outcome string) {
	label := "other"
	if step.Valid() {
		label = strconv.Itoa(int(step))
	}
	m.calibrationReports.WithLabelValues(label, outcome).Inc()
}

func (m *Metrics) countWeightSubmission() {
	m.weightSubmissions.Inc()
}

// SystemMetrics represents the JSON metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	InfluxDB      InfluxMetrics   `json:"influxdb"`
	Events        *events.Stats   `json:"events,omitempty"`
	Devices       DeviceMetrics   `json:"devices"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// InfluxMetrics contains InfluxDB client statistics.
type InfluxMetrics struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// DeviceMetrics summarises the device registry.
type DeviceMetrics struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	Calibrating  int `json:"calibrating"`
	PendingReset int `json:"pending_reset"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns a JSON summary of the running system.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	if s.hub != nil {
		metrics.WebSocket.ConnectedClients = s.hub.ClientCount()
	}

	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{Enabled: true, Connected: s.mqtt.IsConnected()}
	}
	if s.influx != nil {
		metrics.InfluxDB = InfluxMetrics{Enabled: true, Connected: s.influx.IsConnected()}
	}
	if s.bus != nil {
		stats := s.bus.Stats()
		metrics.Events = &stats
	}

	devices, err := s.registry.List(r.Context())
	if err != nil {
		s.logger.Warn("failed to list devices for metrics", "error", err)
	}
	metrics.Devices.Total = len(devices)
	for _, d := range devices {
		if d.Active {
			metrics.Devices.Active++
		}
		if d.CalibrationRunning {
			metrics.Devices.Calibrating++
		}
		if d.PendingReset {
			metrics.Devices.PendingReset++
		}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
