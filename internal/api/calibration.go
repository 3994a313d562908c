package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flockweigh/flockweigh-core/internal/calibration"
	"github.com/flockweigh/flockweigh-core/internal/device"
)

// submitWeightRequest is the body of POST /calibration/{serial}/weight.
type submitWeightRequest struct {
	Weight *float64 `json:"weight"`
	Step   int      `json:"step"`
}

// operatorResult is the reply to operator calibration actions.
type operatorResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// handleCalibrationStatus returns the calibration snapshot for a device.
func (s *Server) handleCalibrationStatus(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	status, err := s.calibration.Status(r.Context(), serial)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to read calibration status", "serial", serial, "error", err)
		writeInternalError(w, "failed to read calibration status")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleSubmitWeight records the operator's reference weight.
func (s *Server) handleSubmitWeight(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	var req submitWeightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Weight == nil {
		writeValidationError(w, "weight is required")
		return
	}

	message, err := s.calibration.SubmitWeight(r.Context(), serial, *req.Weight, req.Step)
	if err != nil {
		s.writeCalibrationError(w, serial, err)
		return
	}

	s.metrics.countWeightSubmission()
	writeJSON(w, http.StatusOK, operatorResult{Success: true, Message: message})
}

// handleCancelCalibration returns a device to step 0 and stops calibrating.
func (s *Server) handleCancelCalibration(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	if err := s.calibration.Cancel(r.Context(), serial); err != nil {
		s.writeCalibrationError(w, serial, err)
		return
	}

	writeJSON(w, http.StatusOK, operatorResult{Success: true, Message: "calibration cancelled"})
}

func (s *Server) writeCalibrationError(w http.ResponseWriter, serial string, err error) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, calibration.ErrInvalidWeight):
		writeValidationError(w, "weight must be a non-negative number")
	case errors.Is(err, calibration.ErrInvalidStep):
		writeValidationError(w, "step must be between 0 and 6")
	case errors.Is(err, calibration.ErrDeviceInactive):
		writeConflict(w, "device is inactive")
	default:
		s.logger.Error("calibration update failed", "serial", serial, "error", err)
		writeInternalError(w, "failed to update calibration")
	}
}
