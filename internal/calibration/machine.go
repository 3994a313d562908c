package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/flockweigh/flockweigh-core/internal/device"
	"github.com/flockweigh/flockweigh-core/internal/events"
)

// Registry is the subset of device.Registry the machine needs.
// Every write goes through Modify so that the decision and the write
// happen under the device's lock.
type Registry interface {
	FindBySerial(ctx context.Context, serial string) (*device.Device, error)
	Modify(ctx context.Context, serial string, fn func(*device.Device) (device.Patch, error)) (*device.Device, error)
}

// Logger defines the logging interface used by the machine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Messages returned to the operator by SubmitWeight.
const (
	MessageRemovalConfirmed = "weight removal confirmed"
	MessageRestarted        = "calibration restarted"
	MessageWeightRecorded   = "weight recorded"
)

// Status is the operator's view of a device's calibration.
// StepName is derived from Step for display and is never stored.
type Status struct {
	Serial            string        `json:"serial_number"`
	Active            bool          `json:"active"`
	Step              int           `json:"calibration_step"`
	StepName          string        `json:"calibration_step_name"`
	Running           bool          `json:"calibration_running"`
	Error             int           `json:"calibration_error"`
	Weight            device.Weight `json:"calibration_weight"`
	LastCalibrationAt *time.Time    `json:"last_calibration_at,omitempty"`
	LastSeenAt        *time.Time    `json:"last_seen_at,omitempty"`
}

// Machine applies firmware step reports and operator input to device rows.
//
// All public methods are thread-safe; per-device ordering comes from the
// registry.
type Machine struct {
	registry  Registry
	publisher events.Publisher
	logger    Logger
	now       func() time.Time
}

// NewMachine creates a calibration machine.
// Events are discarded and logging is off until SetPublisher and
// SetLogger are called.
func NewMachine(registry Registry) *Machine {
	return &Machine{
		registry:  registry,
		publisher: events.Discard{},
		logger:    noopLogger{},
		now:       time.Now,
	}
}

// SetLogger sets the logger for the machine.
func (m *Machine) SetLogger(logger Logger) {
	m.logger = logger
}

// SetPublisher sets where calibration events are sent.
// Publish must not block; the events bus drops on a full queue.
func (m *Machine) SetPublisher(p events.Publisher) {
	m.publisher = p
}

// Report applies a firmware step report and returns the decision to send back.
//
// device.ErrDeviceNotFound and ErrDeviceInactive are returned unwrapped
// in meaning (check with errors.Is). Any other failure is wrapped in
// ErrPersistence and comes with an abort decision echoing the reported step.
//
// A wait decision (steps 1, 3 and 5) may still write: a non-zero firmware
// error code is stored even though the step does not change. Events are
// published only after the write commits.
func (m *Machine) Report(ctx context.Context, serial string, r Report) (Decision, error) {
	var decision Decision
	_, err := m.registry.Modify(ctx, serial, func(d *device.Device) (device.Patch, error) {
		// An inactive device is refused before any decision is made
		if !d.Active {
			return device.Patch{}, ErrDeviceInactive
		}
		// d is the row as read inside the transaction, before this
		// report's own write
		decision = Decide(*d, r, m.now())
		return decision.Patch, nil
	})
	if err != nil {
		// Lookup failures are answered by the caller with their own reply
		if errors.Is(err, device.ErrDeviceNotFound) || errors.Is(err, ErrDeviceInactive) {
			return Decision{}, err
		}
		// The write failed, so nothing changed: abort and leave the step
		// where the firmware reported it
		m.logger.Error("failed to persist calibration decision",
			"serial", serial,
			"step", int(r.Step),
			"error", err,
		)
		return abort(r.Step, device.Patch{}), fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	// Unknown steps and firmware errors are answered normally but logged
	// louder than routine progress
	switch {
	case !r.Step.Valid():
		m.logger.Warn("unknown calibration step reported", "serial", serial, "step", int(r.Step))
	case r.Error != 0:
		m.logger.Warn("firmware reported calibration error",
			"serial", serial,
			"step", r.Step.String(),
			"error_code", r.Error,
		)
	}
	m.logger.Debug("calibration decision",
		"serial", serial,
		"reported", r.Step.String(),
		"outcome", decision.Outcome.String(),
		"next", int(decision.Step),
	)

	m.publisher.Publish(events.New(events.KindCalibrationStep, serial, events.SourceFirmware, map[string]any{
		events.DataReportedStep: int(r.Step),
		events.DataNextStep:     int(decision.Step),
		events.DataErrorCode:    r.Error,
		events.DataOutcome:      decision.Outcome.String(),
	}))

	return decision, nil
}

// Status returns a read-only snapshot of the device's calibration fields.
// Returns device.ErrDeviceNotFound if the serial is unknown. Inactive
// devices are reported too; the Active field says so.
func (m *Machine) Status(ctx context.Context, serial string) (*Status, error) {
	d, err := m.registry.FindBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	return &Status{
		Serial:            d.SerialNumber,
		Active:            d.Active,
		Step:              d.CalibrationStep,
		StepName:          Step(d.CalibrationStep).String(),
		Running:           d.CalibrationRunning,
		Error:             d.CalibrationError,
		Weight:            d.CalibrationWeight,
		LastCalibrationAt: d.LastCalibrationAt,
		LastSeenAt:        d.LastSeenAt,
	}, nil
}

// SubmitWeight records operator input for a calibration.
//
// step is the step the operator's screen is showing. At step 5 the call
// confirms the weight has been removed. Otherwise a weight of 0 restarts
// the sequence from step 0 with no weight assigned, and a positive weight
// is recorded for firmware to pick up at step 2. Both start the
// calibration running.
func (m *Machine) SubmitWeight(ctx context.Context, serial string, weight float64, step int) (string, error) {
	// Reject bad input before taking the device lock
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight < 0 {
		return "", ErrInvalidWeight
	}
	if !Step(step).Valid() {
		return "", ErrInvalidStep
	}

	var message string
	_, err := m.registry.Modify(ctx, serial, func(d *device.Device) (device.Patch, error) {
		if !d.Active {
			return device.Patch{}, ErrDeviceInactive
		}
		// The removal confirmation wins over the weight value; it leaves
		// calibration_running as it is
		switch {
		case Step(step) == StepAwaitRemoval:
			message = MessageRemovalConfirmed
			return device.Patch{
				CalibrationWeight: device.Ptr(device.NoWeight()),
				CalibrationStep:   device.Ptr(int(StepAwaitRemoval)),
			}, nil
		// Zero starts over from step 0
		case weight == 0:
			message = MessageRestarted
			return device.Patch{
				CalibrationWeight:  device.Ptr(device.UnassignedWeight()),
				CalibrationStep:    device.Ptr(int(StepRequest)),
				CalibrationRunning: device.Ptr(true),
			}, nil
		// The step is untouched; firmware picks the weight up at step 2
		default:
			message = MessageWeightRecorded
			return device.Patch{
				CalibrationWeight:  device.Ptr(device.WeightOf(weight)),
				CalibrationRunning: device.Ptr(true),
			}, nil
		}
	})
	if err != nil {
		return "", err
	}

	m.logger.Info("calibration weight submitted",
		"serial", serial,
		"weight", weight,
		"step", step,
		"result", message,
	)
	m.publisher.Publish(events.New(events.KindWeightSubmitted, serial, events.SourceOperator, map[string]any{
		events.DataWeight:       weight,
		events.DataReportedStep: step,
		events.DataOutcome:      message,
	}))

	return message, nil
}

// Cancel returns the device to step 0 and stops the calibration.
// The weight is kept so a restart can reuse it.
// Cancelling an idle device is not an error; the same values are written
// again and an event is still published.
func (m *Machine) Cancel(ctx context.Context, serial string) error {
	_, err := m.registry.Modify(ctx, serial, func(*device.Device) (device.Patch, error) {
		return device.Patch{
			CalibrationStep:    device.Ptr(int(StepRequest)),
			CalibrationRunning: device.Ptr(false),
		}, nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("calibration cancelled", "serial", serial)
	m.publisher.Publish(events.New(events.KindCalibrationCancel, serial, events.SourceOperator, nil))
	return nil
}
