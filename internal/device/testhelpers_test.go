package device

import (
	"context"
	"testing"

	"github.com/flockweigh/flockweigh-core/internal/infrastructure/database"
	_ "github.com/flockweigh/flockweigh-core/migrations"
)

// openTestDB returns a migrated in-memory database.
func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

func newTestRegistry(t *testing.T) (*Registry, *SQLiteRepository) {
	t.Helper()
	repo := NewSQLiteRepository(openTestDB(t).DB)
	return NewRegistry(repo), repo
}

// seedDevice registers an active device with an unassigned weight.
func seedDevice(t *testing.T, r *Registry, serial string) *Device {
	t.Helper()
	d := &Device{
		SerialNumber:      serial,
		Name:              "House " + serial,
		Active:            true,
		CalibrationWeight: UnassignedWeight(),
		Sensors:           DisabledSensors(),
	}
	if err := r.Create(context.Background(), d); err != nil {
		t.Fatalf("seeding device %s: %v", serial, err)
	}
	return d
}
