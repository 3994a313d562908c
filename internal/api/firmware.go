package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/flockweigh/flockweigh-core/internal/calibration"
	"github.com/flockweigh/flockweigh-core/internal/device"
	"github.com/flockweigh/flockweigh-core/internal/heartbeat"
	"github.com/flockweigh/flockweigh-core/internal/wire"
)

// readFirmwareBody reads a firmware request body, bounded by wire.MaxRequestSize.
func readFirmwareBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, wire.MaxRequestSize))
}

// handleHeartbeat answers the liveness poll with at most one command.
//
// Every outcome is a 200: firmware branches on the payload only.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	body, err := readFirmwareBody(w, r)
	if err != nil {
		writeFirmwareError(w)
		return
	}
	req, err := wire.DecodeHeartbeat(body)
	if err != nil {
		s.logger.Debug("malformed heartbeat", "error", err)
		s.metrics.countHeartbeat("malformed")
		writeFirmwareError(w)
		return
	}
	serial := string(req.Dev)

	res, err := s.heartbeat.Poll(r.Context(), serial)
	if err != nil {
		// Nothing to deliver if the row cannot be read; the next poll retries.
		s.logger.Error("heartbeat failed", "serial", serial, "error", err)
		s.metrics.countHeartbeat("error")
		writeFirmware(w, http.StatusOK, wire.IdleReply{Dev: serial})
		return
	}
	s.metrics.countHeartbeat(res.Command.String())

	switch res.Command {
	case heartbeat.CommandAbortUnknown:
		writeFirmware(w, http.StatusOK, wire.AbortReply{Dev: serial, Abort: true, Value: wire.ReasonUnknownDevice})
	case heartbeat.CommandAbortInactive:
		writeFirmware(w, http.StatusOK, wire.AbortReply{Dev: serial, Abort: true, Value: wire.ReasonInactiveDevice})
	case heartbeat.CommandCalibrate:
		writeFirmware(w, http.StatusOK, wire.CalibrateCommand{Dev: serial, Cal: true, Sen: res.Sensor})
	case heartbeat.CommandReset:
		writeFirmware(w, http.StatusOK, wire.ResetCommand{Dev: serial, Rst: true})
	default:
		writeFirmware(w, http.StatusOK, wire.IdleReply{Dev: serial})
	}
}

// handleCalibrationReport applies one firmware calibration step report.
//
// Unknown devices get a 404 abort payload. Every other failure, including
// one to persist the decision, is an abort inside a 200 so firmware never
// sees a 5xx for a business outcome.
func (s *Server) handleCalibrationReport(w http.ResponseWriter, r *http.Request) {
	body, err := readFirmwareBody(w, r)
	if err != nil {
		writeFirmwareError(w)
		return
	}
	req, err := wire.DecodeStepReport(body)
	if err != nil {
		s.logger.Debug("malformed calibration report", "error", err)
		writeFirmwareError(w)
		return
	}
	serial := string(req.Dev)
	report := calibration.Report{
		Step:      calibration.Step(*req.Step),
		Value:     req.Value,
		Error:     req.Error,
		Timestamp: req.Timestamp,
	}

	decision, err := s.calibration.Report(r.Context(), serial, report)
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		s.metrics.countCalibrationReport(report.Step, "unknown_device")
		writeFirmware(w, http.StatusNotFound, wire.StepReply{Dev: serial, Value: wire.ReasonUnknownDevice, Abort: true})
		return
	case errors.Is(err, calibration.ErrDeviceInactive):
		s.metrics.countCalibrationReport(report.Step, "inactive_device")
		writeFirmware(w, http.StatusOK, wire.StepReply{Dev: serial, Value: wire.ReasonInactiveDevice, Abort: true})
		return
	case err != nil:
		s.metrics.countCalibrationReport(report.Step, "error")
		writeFirmware(w, http.StatusOK, wire.StepReply{Dev: serial, Step: int(decision.Step), Abort: true})
		return
	}

	s.metrics.countCalibrationReport(report.Step, decision.Outcome.String())
	if decision.Outcome == calibration.OutcomeWait {
		writeFirmwareEmpty(w)
		return
	}
	writeFirmware(w, http.StatusOK, wire.StepReply{
		Dev:   serial,
		Step:  int(decision.Step),
		Value: decision.Value,
		Abort: wire.Flag(decision.Aborted()),
	})
}

// handleConfig sends a device its sensor configuration message.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	body, err := readFirmwareBody(w, r)
	if err != nil {
		writeFirmwareError(w)
		return
	}
	req, err := wire.DecodeConfigRequest(body)
	if err != nil {
		s.logger.Debug("malformed config request", "error", err)
		writeFirmwareError(w)
		return
	}
	serial := string(req.Dev)

	dev, err := s.registry.FindBySerial(r.Context(), serial)
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		writeFirmware(w, http.StatusNotFound, wire.AbortReply{Dev: serial, Abort: true, Value: wire.ReasonUnknownDevice})
		return
	case err != nil:
		s.logger.Error("config request failed", "serial", serial, "error", err)
		writeFirmware(w, http.StatusOK, wire.AbortReply{Dev: serial, Abort: true})
		return
	case !dev.Active:
		writeFirmware(w, http.StatusOK, wire.AbortReply{Dev: serial, Abort: true, Value: wire.ReasonInactiveDevice})
		return
	}

	writeFirmwareRaw(w, http.StatusOK, wire.WrapText(s.provisioning.Build(dev)))
}
