package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flockweigh/flockweigh-core/internal/audit"
	"github.com/flockweigh/flockweigh-core/internal/device"
	"github.com/flockweigh/flockweigh-core/internal/events"
)

// createDeviceRequest is the body of POST /devices.
// Omitted sensors start disabled; omitted active defaults to true.
type createDeviceRequest struct {
	SerialNumber  string          `json:"serial_number"`
	Name          string          `json:"name"`
	Active        *bool           `json:"active"`
	Sensors       *device.Sensors `json:"sensors"`
	SendFrequency *int            `json:"send_frequency"`
}

// updateDeviceRequest is the body of PATCH /devices/{serial}.
// Sensors may name any subset of sensor slots.
type updateDeviceRequest struct {
	Name          *string          `json:"name"`
	Active        *bool            `json:"active"`
	Sensors       *json.RawMessage `json:"sensors"`
	SendFrequency *int             `json:"send_frequency"`
}

// patch converts the request into a device patch against the current row.
// A partial sensors object is merged over the stored sensors, so slots the
// request does not name keep their current settings.
func (req updateDeviceRequest) patch(current *device.Device) (device.Patch, error) {
	p := device.Patch{
		Name:          req.Name,
		Active:        req.Active,
		SendFrequency: req.SendFrequency,
	}
	if req.Sensors != nil {
		// Unmarshalling into a copy only overwrites the named slots
		merged := current.Sensors
		if err := json.Unmarshal(*req.Sensors, &merged); err != nil {
			return device.Patch{}, errors.Join(device.ErrInvalidDevice, err)
		}
		p.Sensors = &merged
	}
	return p, nil
}

// handleListDevices returns all registered devices.
//
// Response: {"devices": [...], "count": N}, ordered by serial number.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleCreateDevice registers a new device.
//
// New devices start idle at step 0 with an unassigned calibration weight.
// Responds 201 with the stored device, 409 when the serial number is
// taken and 400 when validation fails.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	// Parse request body
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	// Build the device with defaults, then apply what the request set
	dev := &device.Device{
		SerialNumber:      req.SerialNumber,
		Name:              req.Name,
		Active:            true,
		CalibrationWeight: device.UnassignedWeight(),
		Sensors:           device.DisabledSensors(),
		SendFrequency:     req.SendFrequency,
	}
	if req.Active != nil {
		dev.Active = *req.Active
	}
	if req.Sensors != nil {
		dev.Sensors = *req.Sensors
	}

	// Create validates; map its errors onto HTTP statuses
	if err := s.registry.Create(r.Context(), dev); err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceExists):
			writeConflict(w, "a device with this serial number already exists")
		case isValidationError(err):
			writeValidationError(w, err.Error())
		default:
			s.logger.Error("failed to create device", "serial", req.SerialNumber, "error", err)
			writeInternalError(w, "failed to create device")
		}
		return
	}

	// Publish only after the row exists
	s.events.Publish(events.New(events.KindDeviceRegistered, dev.SerialNumber, events.SourceOperator, nil))
	writeJSON(w, http.StatusCreated, dev)
}

// handleGetDevice returns a single device.
// Responds 404 when the serial number is unknown.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	dev, err := s.registry.FindBySerial(r.Context(), serial)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to get device", "serial", serial, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleUpdateDevice applies a partial update to a device's settings.
// Calibration fields are owned by the calibration endpoints and cannot be
// patched here.
//
// The patch is built and validated inside the registry's Modify, so a
// sensors merge always starts from the row as it is at write time. An
// empty body is rejected with 400.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	// Parse request body
	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	updated, err := s.registry.Modify(r.Context(), serial, func(d *device.Device) (device.Patch, error) {
		p, err := req.patch(d)
		if err != nil {
			return device.Patch{}, err
		}
		if p.IsEmpty() {
			return device.Patch{}, errNoFields
		}
		// A validation error aborts the transaction before anything is written
		return p, device.ValidatePatch(p)
	})
	if err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceNotFound):
			writeNotFound(w, "device not found")
		case errors.Is(err, errNoFields):
			writeBadRequest(w, "no fields to update")
		case isValidationError(err):
			writeValidationError(w, err.Error())
		default:
			s.logger.Error("failed to update device", "serial", serial, "error", err)
			writeInternalError(w, "failed to update device")
		}
		return
	}

	s.events.Publish(events.New(events.KindDeviceUpdated, serial, events.SourceOperator, nil))
	writeJSON(w, http.StatusOK, updated)
}

// errNoFields vetoes an update whose body set nothing.
var errNoFields = errors.New("no fields to update")

// handleResetDevice queues a one-shot reset, delivered on the next
// heartbeat that finds no calibration running.
//
// Responds 202: the reset has been queued, not performed. Queuing again
// before the device polls is harmless.
func (s *Server) handleResetDevice(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	if err := s.registry.SetPendingReset(r.Context(), serial); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to queue reset", "serial", serial, "error", err)
		writeInternalError(w, "failed to queue reset")
		return
	}

	s.events.Publish(events.New(events.KindResetRequested, serial, events.SourceOperator, nil))
	writeJSON(w, http.StatusAccepted, operatorResult{Success: true, Message: "reset queued"})
}

// handleDeviceEvents returns the device's history, newest first.
//
// Query parameters:
//   - kind: filter by event kind (calibration.step, heartbeat.reset, ...)
//   - limit: page size (default 50, max 200)
//   - offset: entries to skip
func (s *Server) handleDeviceEvents(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	// An unknown device is a 404, not an empty page
	if _, err := s.registry.FindBySerial(r.Context(), serial); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	// Parse pagination; the repository clamps the values to its bounds
	q := r.URL.Query()
	filter := audit.Filter{Serial: serial, Kind: q.Get("kind")}
	var err error
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	result, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list device events", "serial", serial, "error", err)
		writeInternalError(w, "failed to list device events")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// queryInt parses an optional integer query parameter. Empty means 0.
func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// isValidationError reports whether err comes from device validation.
func isValidationError(err error) bool {
	return errors.Is(err, device.ErrInvalidDevice) ||
		errors.Is(err, device.ErrInvalidSerial)
}
