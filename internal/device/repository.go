package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines device persistence.
// Implementations must make Transact and TakePendingReset atomic with
// respect to every other write on the same serial number.
type Repository interface {
	// GetBySerial returns ErrDeviceNotFound if no device has the serial.
	GetBySerial(ctx context.Context, serial string) (*Device, error)

	List(ctx context.Context) ([]Device, error)

	// Create returns ErrDeviceExists if the serial is already registered.
	Create(ctx context.Context, device *Device) error

	// Update applies a partial update.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, serial string, patch Patch) error

	// Transact reads the device, hands it to fn and applies the returned
	// patch, all inside one write transaction. If fn returns an error
	// nothing is written and the error is returned unchanged.
	Transact(ctx context.Context, serial string, fn func(*Device) (Patch, error)) error

	// TakePendingReset clears pending_reset and reports true only if it was
	// set, the device is active and no calibration is running.
	TakePendingReset(ctx context.Context, serial string) (bool, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

const deviceColumns = `
	id, serial_number, name, active,
	calibration_step, calibration_running, calibration_error, calibration_weight,
	last_calibration_at, pending_reset, last_seen_at,
	sensor_temperature, sensor_load_cell, sensor_humidity,
	sensor_co2, sensor_ammonia, sensor_light, send_frequency,
	created_at, updated_at`

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// GetBySerial retrieves a device by its serial number.
func (r *SQLiteRepository) GetBySerial(ctx context.Context, serial string) (*Device, error) {
	return getBySerial(ctx, r.db, serial)
}

func getBySerial(ctx context.Context, q querier, serial string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE serial_number = ?`

	device, err := scanDeviceRow(q.QueryRowContext(ctx, query, serial))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by serial: %w", err)
	}
	return device, nil
}

// List retrieves all devices ordered by serial number.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY serial_number`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDeviceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	now := r.now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	query := `INSERT INTO devices (` + deviceColumns + `) VALUES (
		?, ?, ?, ?,
		?, ?, ?, ?,
		?, ?, ?,
		?, ?, ?,
		?, ?, ?, ?,
		?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		device.ID,
		device.SerialNumber,
		device.Name,
		boolToInt(device.Active),
		device.CalibrationStep,
		boolToInt(device.CalibrationRunning),
		device.CalibrationError,
		device.CalibrationWeight.Float(),
		nullableTime(device.LastCalibrationAt),
		boolToInt(device.PendingReset),
		nullableTime(device.LastSeenAt),
		device.Sensors.Temperature,
		device.Sensors.LoadCell,
		device.Sensors.Humidity,
		device.Sensors.CO2,
		device.Sensors.Ammonia,
		device.Sensors.Light,
		nullableInt(device.SendFrequency),
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// Update applies patch to the device with the given serial number.
func (r *SQLiteRepository) Update(ctx context.Context, serial string, patch Patch) error {
	return r.update(ctx, r.db, serial, patch)
}

func (r *SQLiteRepository) update(ctx context.Context, q querier, serial string, patch Patch) error {
	sets, args := patchAssignments(patch)
	sets = append(sets, "updated_at = ?")
	args = append(args, r.now().UTC().Format(time.RFC3339), serial)

	query := `UPDATE devices SET ` + strings.Join(sets, ", ") + ` WHERE serial_number = ?`

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Transact runs a read-decide-write sequence inside one transaction.
//
// The database is opened with _txlock=immediate, so the transaction holds
// the SQLite write lock from its first read and no other writer can
// change the row between the read and the update.
func (r *SQLiteRepository) Transact(ctx context.Context, serial string, fn func(*Device) (Patch, error)) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	d, err := getBySerial(ctx, tx, serial)
	if err != nil {
		return err
	}

	patch, err := fn(d)
	if err != nil {
		return err
	}

	if !patch.IsEmpty() {
		if err := r.update(ctx, tx, serial, patch); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// TakePendingReset consumes the one-shot reset flag with a single
// conditional UPDATE, so two concurrent polls can never both see it.
func (r *SQLiteRepository) TakePendingReset(ctx context.Context, serial string) (bool, error) {
	query := `
		UPDATE devices
		SET pending_reset = 0, updated_at = ?
		WHERE serial_number = ?
			AND pending_reset = 1
			AND calibration_running = 0
			AND active = 1`

	result, err := r.db.ExecContext(ctx, query, r.now().UTC().Format(time.RFC3339), serial)
	if err != nil {
		return false, fmt.Errorf("taking pending reset: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n == 1, nil
}

// patchAssignments renders the set fields of a patch as SQL assignments.
func patchAssignments(p Patch) ([]string, []any) { //nolint:gocyclo // one branch per column
	var sets []string
	var args []any

	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Active != nil {
		add("active", boolToInt(*p.Active))
	}
	if p.CalibrationStep != nil {
		add("calibration_step", *p.CalibrationStep)
	}
	if p.CalibrationRunning != nil {
		add("calibration_running", boolToInt(*p.CalibrationRunning))
	}
	if p.CalibrationError != nil {
		add("calibration_error", *p.CalibrationError)
	}
	if p.CalibrationWeight != nil {
		add("calibration_weight", p.CalibrationWeight.Float())
	}
	if p.LastCalibrationAt != nil {
		add("last_calibration_at", nullableTime(p.LastCalibrationAt))
	}
	if p.PendingReset != nil {
		add("pending_reset", boolToInt(*p.PendingReset))
	}
	if p.LastSeenAt != nil {
		add("last_seen_at", nullableTime(p.LastSeenAt))
	}
	if p.Sensors != nil {
		add("sensor_temperature", p.Sensors.Temperature)
		add("sensor_load_cell", p.Sensors.LoadCell)
		add("sensor_humidity", p.Sensors.Humidity)
		add("sensor_co2", p.Sensors.CO2)
		add("sensor_ammonia", p.Sensors.Ammonia)
		add("sensor_light", p.Sensors.Light)
	}
	if p.SendFrequency != nil {
		add("send_frequency", *p.SendFrequency)
	}

	return sets, args
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeviceRow(scanner rowScanner) (*Device, error) {
	var d Device
	var active, running, pendingReset int
	var weight float64
	var lastCalibrationAt, lastSeenAt sql.NullString
	var sendFrequency sql.NullInt64
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.SerialNumber,
		&d.Name,
		&active,
		&d.CalibrationStep,
		&running,
		&d.CalibrationError,
		&weight,
		&lastCalibrationAt,
		&pendingReset,
		&lastSeenAt,
		&d.Sensors.Temperature,
		&d.Sensors.LoadCell,
		&d.Sensors.Humidity,
		&d.Sensors.CO2,
		&d.Sensors.Ammonia,
		&d.Sensors.Light,
		&sendFrequency,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Active = active != 0
	d.CalibrationRunning = running != 0
	d.PendingReset = pendingReset != 0
	d.CalibrationWeight = WeightFromFloat(weight)

	if sendFrequency.Valid {
		f := int(sendFrequency.Int64)
		d.SendFrequency = &f
	}

	d.LastCalibrationAt = parseNullableTime(lastCalibrationAt)
	d.LastSeenAt = parseNullableTime(lastSeenAt)

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &d, nil
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func nullableInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
