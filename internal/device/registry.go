package device

import (
	"context"
	"fmt"
	"time"
)

// Logger defines the logging interface used by the Registry.
// Any structured logger with these four methods fits, including the
// slog-backed logger from infrastructure/logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards everything until SetLogger is called.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the device-record interface the calibration and heartbeat
// logic depends on.
//
// Every write for a serial number runs under that serial's lock, and
// read-decide-write sequences additionally run in one repository
// transaction. Nothing is cached: each call reads the current row.
//
// All public methods are thread-safe.
type Registry struct {
	repo   Repository
	locks  *keyedMutex
	logger Logger
}

// NewRegistry creates a new device registry on top of repo.
// The repository owns persistence; the registry adds per-serial locking
// and logging. Logging is off until SetLogger is called.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		locks:  newKeyedMutex(),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
// Call it before the registry is shared between goroutines.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// FindBySerial returns the current device record.
// Returns ErrDeviceNotFound if the serial is unknown.
// The returned device is a fresh copy read from the repository; callers
// can modify it freely, but changes are only persisted through Update or
// Modify.
func (r *Registry) FindBySerial(ctx context.Context, serial string) (*Device, error) {
	// Reads take no lock: SQLite gives a consistent row snapshot and a
	// read never decides a write on its own.
	return r.repo.GetBySerial(ctx, serial)
}

// List returns all devices ordered by serial number.
// An empty registry yields an empty slice and no error.
func (r *Registry) List(ctx context.Context) ([]Device, error) {
	return r.repo.List(ctx)
}

// Create validates and registers a new device. A missing ID is generated;
// a new device starts idle with an unassigned weight.
//
// Returns a validation error for malformed input and
// ErrDeviceExists when the serial number is taken.
func (r *Registry) Create(ctx context.Context, d *Device) error {
	// Validate before touching the lock or the database
	if err := ValidateDevice(d); err != nil {
		return err
	}
	if d.ID == "" {
		d.ID = GenerateID()
	}

	// Hold the serial's lock so a firmware report for a half-created
	// device waits for the insert to finish
	unlock := r.locks.Lock(d.SerialNumber)
	defer unlock()

	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}

	r.logger.Info("device registered", "serial", d.SerialNumber, "id", d.ID)
	return nil
}

// Update applies a partial update under the device's lock.
// Only the fields set in patch are written; everything else keeps its
// stored value. Returns ErrDeviceNotFound if the serial is unknown.
//
// Update does not read the row first. Use Modify when the new values
// depend on the current ones.
func (r *Registry) Update(ctx context.Context, serial string, patch Patch) error {
	// Nothing to write; skip the lock and the round trip
	if patch.IsEmpty() {
		return nil
	}

	unlock := r.locks.Lock(serial)
	defer unlock()

	return r.repo.Update(ctx, serial, patch)
}

// Modify runs fn against the current record and persists the returned
// patch atomically, serialised with every other write for the serial.
// It returns the device as it is after the patch was applied.
//
// fn sees the row as it was read inside the transaction, so any decision
// it makes reflects the state before this call's own write. An error from
// fn aborts the transaction and is returned unchanged, which lets callers
// use sentinel errors to veto a write. An empty patch commits without
// touching the row.
func (r *Registry) Modify(ctx context.Context, serial string, fn func(*Device) (Patch, error)) (*Device, error) {
	// The in-process lock orders callers for one serial; the transaction
	// guards against writers outside this process sharing the file
	unlock := r.locks.Lock(serial)
	defer unlock()

	var after *Device
	err := r.repo.Transact(ctx, serial, func(d *Device) (Patch, error) {
		patch, err := fn(d)
		if err != nil {
			return Patch{}, err
		}
		// Apply locally so the caller gets the post-write view without a
		// second read
		patch.Apply(d)
		after = d
		return patch, nil
	})
	if err != nil {
		return nil, err
	}
	return after, nil
}

// Touch records that the device was seen at the given time.
// The timestamp is stored in UTC regardless of the caller's location.
func (r *Registry) Touch(ctx context.Context, serial string, at time.Time) error {
	at = at.UTC()
	return r.Update(ctx, serial, Patch{LastSeenAt: &at})
}

// SetPendingReset queues a one-shot reset command for the next heartbeat.
// Queuing twice before a heartbeat still delivers a single reset.
func (r *Registry) SetPendingReset(ctx context.Context, serial string) error {
	if err := r.Update(ctx, serial, Patch{PendingReset: Ptr(true)}); err != nil {
		return fmt.Errorf("queueing reset: %w", err)
	}
	r.logger.Info("reset queued", "serial", serial)
	return nil
}

// TakePendingReset atomically reads and clears the reset flag.
// It reports true at most once per SetPendingReset, and never while a
// calibration is running.
func (r *Registry) TakePendingReset(ctx context.Context, serial string) (bool, error) {
	unlock := r.locks.Lock(serial)
	defer unlock()

	// The repository clears the flag with one conditional UPDATE, so the
	// read and the clear cannot be split by another poll
	taken, err := r.repo.TakePendingReset(ctx, serial)
	if err != nil {
		return false, err
	}
	if taken {
		r.logger.Debug("reset taken", "serial", serial)
	}
	return taken, nil
}
