package api

import (
	"encoding/json"
	"net/http"

	"github.com/flockweigh/flockweigh-core/internal/wire"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest = "bad_request"
	ErrCodeNotFound   = "not_found"
	ErrCodeConflict   = "conflict"
	ErrCodeInternal   = "internal_error"
	ErrCodeValidation = "validation_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeValidationError writes a 400 error for a well-formed but invalid request.
func writeValidationError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeValidation, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeConflict writes a 409 error response.
func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// Firmware replies. These never use the JSON error body.

// writeFirmware writes an enveloped reply.
func writeFirmware(w http.ResponseWriter, status int, v any) {
	body, err := wire.Encode(v)
	if err != nil {
		writeFirmwareError(w)
		return
	}
	writeFirmwareRaw(w, status, body)
}

// writeFirmwareRaw writes an already enveloped body.
func writeFirmwareRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", wire.ContentType)
	w.WriteHeader(status)
	//nolint:errcheck // Best-effort write; firmware retries on its own cadence
	w.Write(body)
}

// writeFirmwareEmpty tells firmware to keep polling.
func writeFirmwareEmpty(w http.ResponseWriter) {
	w.Header().Set("Content-Type", wire.ContentType)
	w.WriteHeader(http.StatusOK)
}

// writeFirmwareError answers a request firmware should not have sent.
func writeFirmwareError(w http.ResponseWriter) {
	writeFirmwareRaw(w, http.StatusBadRequest, []byte(wire.ErrorToken))
}
