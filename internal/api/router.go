package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds the dependency checks behind /api/v1/health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Firmware polls. Plain text, @-enveloped.
	r.Route("/device", func(r chi.Router) {
		r.Post("/heartbeat", s.handleHeartbeat)
		r.Post("/calibration", s.handleCalibrationReport)
		r.Post("/config", s.handleConfig)
	})

	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleCreateDevice)

			r.Route("/{serial}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Patch("/", s.handleUpdateDevice)
				r.Post("/reset", s.handleResetDevice)
				r.Get("/events", s.handleDeviceEvents)
			})
		})

		r.Route("/calibration/{serial}", func(r chi.Router) {
			r.Get("/", s.handleCalibrationStatus)
			r.Post("/weight", s.handleSubmitWeight)
			r.Post("/cancel", s.handleCancelCalibration)
		})
	})

	r.Get(s.wsPath(), s.handleWebSocket)

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth reports the server and its dependencies. The database is
// required; MQTT and InfluxDB are reported but never fail the check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	checks := map[string]string{}

	if s.db != nil {
		checks["database"] = "ok"
		if err := s.db.HealthCheck(ctx); err != nil {
			checks["database"] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	if s.mqtt != nil {
		checks["mqtt"] = "ok"
		if err := s.mqtt.HealthCheck(ctx); err != nil {
			checks["mqtt"] = err.Error()
		}
	}
	if s.influx != nil {
		checks["influxdb"] = "ok"
		if err := s.influx.HealthCheck(ctx); err != nil {
			checks["influxdb"] = err.Error()
		}
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}
