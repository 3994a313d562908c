// Package device holds the weighing controller record and the registry
// the calibration and heartbeat logic read and write it through.
//
// A Device is identified by its serial number, the only identity firmware
// knows. Its calibration fields are overwritten in place; there is no
// separate calibration session.
//
// # Concurrency
//
// Firmware polls and operator writes for the same device may arrive at the
// same time. The Registry serialises them per serial number with an
// in-process lock, and Registry.Modify runs each read-decide-write inside
// one SQLite write transaction. TakePendingReset consumes the one-shot
// reset flag with a single conditional UPDATE. Different devices never
// wait on each other's locks.
//
// # Weights
//
// calibration_weight stores -1 for "not assigned yet" and 0 for "skip
// weighing". In Go the column is the Weight type, so callers branch on
// IsUnassigned, IsNone or Value instead of comparing floats.
//
// Usage:
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//
//	d, err := registry.FindBySerial(ctx, "7001")
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // unknown controller
//	}
package device
