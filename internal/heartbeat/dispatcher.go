// Package heartbeat answers the firmware liveness poll.
//
// Each poll records last_seen_at and hands back at most one command, in
// priority order: enter calibration, then a queued reset, then nothing.
// A reset is never delivered while a calibration is running, and each
// queued reset is delivered exactly once.
package heartbeat

import (
	"context"
	"errors"
	"time"

	"github.com/flockweigh/flockweigh-core/internal/device"
	"github.com/flockweigh/flockweigh-core/internal/events"
)

// Command is what a poll tells the firmware to do.
type Command int

const (
	// CommandNone means nothing is pending.
	CommandNone Command = iota
	// CommandCalibrate tells firmware to enter the calibration flow.
	CommandCalibrate
	// CommandReset tells firmware to reset.
	CommandReset
	// CommandAbortUnknown answers a serial nobody registered.
	CommandAbortUnknown
	// CommandAbortInactive answers a device that has been switched off.
	CommandAbortInactive
)

func (c Command) String() string {
	switch c {
	case CommandNone:
		return "idle"
	case CommandCalibrate:
		return "calibrate"
	case CommandReset:
		return "reset"
	case CommandAbortUnknown:
		return "unknown_device"
	case CommandAbortInactive:
		return "inactive_device"
	default:
		return "invalid"
	}
}

// Result is the dispatcher's answer to one poll.
type Result struct {
	Command Command
	// Sensor is the sensor to calibrate, set with CommandCalibrate.
	Sensor int
}

// Registry is the subset of device.Registry the dispatcher needs.
type Registry interface {
	FindBySerial(ctx context.Context, serial string) (*device.Device, error)
	Touch(ctx context.Context, serial string, at time.Time) error
	TakePendingReset(ctx context.Context, serial string) (bool, error)
}

// Logger defines the logging interface used by the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Dispatcher decides the command for each heartbeat.
type Dispatcher struct {
	registry   Registry
	loadCellID int
	publisher  events.Publisher
	logger     Logger
	now        func() time.Time
}

// NewDispatcher creates a dispatcher. loadCellSensorID is sent with the
// calibrate command.
func NewDispatcher(registry Registry, loadCellSensorID int) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		loadCellID: loadCellSensorID,
		publisher:  events.Discard{},
		logger:     noopLogger{},
		now:        time.Now,
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// SetPublisher sets where delivered commands are reported.
func (d *Dispatcher) SetPublisher(p events.Publisher) {
	d.publisher = p
}

// Poll handles one heartbeat from serial.
//
// Errors are only returned for failures reading the device; a failed
// last_seen_at write or reset take is logged and answered as idle so the
// firmware simply polls again.
func (d *Dispatcher) Poll(ctx context.Context, serial string) (Result, error) {
	dev, err := d.registry.FindBySerial(ctx, serial)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			d.logger.Debug("heartbeat from unknown device", "serial", serial)
			return Result{Command: CommandAbortUnknown}, nil
		}
		return Result{}, err
	}
	if !dev.Active {
		return Result{Command: CommandAbortInactive}, nil
	}

	if err := d.registry.Touch(ctx, serial, d.now()); err != nil {
		d.logger.Warn("failed to record heartbeat", "serial", serial, "error", err)
	}

	if dev.CalibrationRunning {
		d.publisher.Publish(events.New(events.KindHeartbeatCalibrate, serial, events.SourceFirmware,
			map[string]any{events.DataSensor: d.loadCellID}))
		return Result{Command: CommandCalibrate, Sensor: d.loadCellID}, nil
	}

	// The take re-checks calibration_running, so a calibration started
	// since the read above still wins over the reset.
	taken, err := d.registry.TakePendingReset(ctx, serial)
	if err != nil {
		d.logger.Error("failed to take pending reset", "serial", serial, "error", err)
		return Result{Command: CommandNone}, nil
	}
	if taken {
		d.publisher.Publish(events.New(events.KindHeartbeatReset, serial, events.SourceFirmware, nil))
		return Result{Command: CommandReset}, nil
	}

	return Result{Command: CommandNone}, nil
}
