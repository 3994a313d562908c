package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/flockweigh/flockweigh-core/internal/infrastructure/database"
	_ "github.com/flockweigh/flockweigh-core/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
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
	return NewSQLiteRepository(db.DB)
}

func TestCreateAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	entry := &Entry{
		Serial:  "7001",
		Kind:    "calibration.step",
		Source:  "firmware",
		Details: map[string]any{"reported_step": 2, "next_step": 3},
	}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Fatal("Create() did not fill ID and CreatedAt")
	}

	result, err := repo.List(ctx, Filter{Serial: "7001"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 || len(result.Entries) != 1 {
		t.Fatalf("List() total = %d, entries = %d", result.Total, len(result.Entries))
	}

	got := result.Entries[0]
	if got.Kind != "calibration.step" || got.Source != "firmware" {
		t.Errorf("entry = %+v", got)
	}
	// JSON numbers come back as float64.
	if got.Details["next_step"] != float64(3) {
		t.Errorf("details = %v", got.Details)
	}
}

func TestList_NewestFirstAndFiltered(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		kind := "heartbeat.calibrate"
		if i%2 == 0 {
			kind = "calibration.step"
		}
		err := repo.Create(ctx, &Entry{
			Serial:    "7001",
			Kind:      kind,
			Source:    "firmware",
			Details:   map[string]any{"seq": i},
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	if err := repo.Create(ctx, &Entry{Serial: "7002", Kind: "calibration.step", Source: "firmware"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	result, err := repo.List(ctx, Filter{Serial: "7001", Kind: "calibration.step"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 3 {
		t.Fatalf("Total = %d, want 3", result.Total)
	}
	for i, want := range []float64{4, 2, 0} {
		if got := result.Entries[i].Details["seq"]; got != want {
			t.Errorf("entry %d seq = %v, want %v", i, got, want)
		}
	}
}

func TestList_Pagination(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if err := repo.Create(ctx, &Entry{Serial: fmt.Sprintf("70%02d", i), Kind: "device.reset_requested", Source: "operator"}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	page, err := repo.List(ctx, Filter{Limit: 3, Offset: 6})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 7 || len(page.Entries) != 1 {
		t.Errorf("total = %d, entries = %d, want 7 and 1", page.Total, len(page.Entries))
	}

	clamped, err := repo.List(ctx, Filter{Limit: 1000, Offset: -4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if clamped.Limit != maxLimit || clamped.Offset != 0 {
		t.Errorf("limit/offset = %d/%d, want %d/0", clamped.Limit, clamped.Offset, maxLimit)
	}
}

func TestList_Empty(t *testing.T) {
	repo := newTestRepo(t)

	result, err := repo.List(context.Background(), Filter{Serial: "none"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Entries == nil {
		t.Error("Entries should be an empty slice, not nil")
	}
}
