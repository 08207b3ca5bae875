package db

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/batmetrics/swing.report/internal/imu"
	"github.com/batmetrics/swing.report/internal/pipeline"
	"github.com/batmetrics/swing.report/internal/swing"
)

// The DB is the pipeline's persistence collaborator.
var _ pipeline.Store = (*DB)(nil)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "swing_test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testEvent() swing.Event {
	angle := 45.0
	return swing.Event{
		StartMicros:    1_000_000,
		EndMicros:      1_150_000,
		PeakGyro:       7.07,
		TipSpeed:       4.9,
		SampleCount:    31,
		SampleRate:     206.6,
		ImpactAngleDeg: &angle,
	}
}

func testBatch(n int) []pipeline.RawSample {
	samples := make([]pipeline.RawSample, n)
	for i := range samples {
		samples[i] = pipeline.RawSample{
			OffsetMicros: int64(i) * 5_000,
			Accel:        imu.Vec3{X: float64(i), Z: 9.8},
			Gyro:         imu.Vec3{X: 5, Y: 5},
		}
	}
	return samples
}

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("expected journal_mode=wal, got %s", journalMode)
	}

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("query busy_timeout: %v", err)
	}
	if busyTimeout != 5000 {
		t.Errorf("expected busy_timeout=5000, got %d", busyTimeout)
	}

	var foreignKeys int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("query foreign_keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Errorf("expected foreign_keys=1, got %d", foreignKeys)
	}
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	db := newTestDB(t) // NewDB already migrated

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("second MigrateUp failed: %v", err)
	}
	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Error("database reports dirty after clean migration")
	}
	if version == 0 {
		t.Error("expected a non-zero schema version")
	}
}

func TestSaveAndGetSwing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ev := testEvent()
	id, err := db.SaveSwing(ctx, ev)
	if err != nil {
		t.Fatalf("SaveSwing failed: %v", err)
	}
	if id == "" {
		t.Fatal("SaveSwing returned an empty id")
	}

	got, err := db.GetSwing(ctx, id)
	if err != nil {
		t.Fatalf("GetSwing failed: %v", err)
	}
	if got.StartMicros != ev.StartMicros || got.EndMicros != ev.EndMicros {
		t.Errorf("timestamps mismatch: got [%d, %d]", got.StartMicros, got.EndMicros)
	}
	if got.TipSpeed != ev.TipSpeed || got.PeakGyro != ev.PeakGyro {
		t.Errorf("metrics mismatch: got tip=%f peak=%f", got.TipSpeed, got.PeakGyro)
	}
	if got.ImpactAngleDeg == nil || *got.ImpactAngleDeg != 45.0 {
		t.Errorf("impact angle mismatch: got %v", got.ImpactAngleDeg)
	}
	if got.Degraded {
		t.Error("event was not degraded")
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at was not populated")
	}
}

func TestSaveSwingNilAngle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ev := testEvent()
	ev.ImpactAngleDeg = nil
	ev.Degraded = true
	id, err := db.SaveSwing(ctx, ev)
	if err != nil {
		t.Fatalf("SaveSwing failed: %v", err)
	}

	got, err := db.GetSwing(ctx, id)
	if err != nil {
		t.Fatalf("GetSwing failed: %v", err)
	}
	if got.ImpactAngleDeg != nil {
		t.Errorf("expected nil impact angle, got %f", *got.ImpactAngleDeg)
	}
	if !got.Degraded {
		t.Error("degraded flag lost")
	}
}

func TestGetSwingNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetSwing(context.Background(), "no-such-id")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRawBatchRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.SaveSwing(ctx, testEvent())
	if err != nil {
		t.Fatalf("SaveSwing failed: %v", err)
	}
	batch := testBatch(31)
	if err := db.SaveRawBatch(ctx, id, batch); err != nil {
		t.Fatalf("SaveRawBatch failed: %v", err)
	}

	got, err := db.RawSamples(ctx, id)
	if err != nil {
		t.Fatalf("RawSamples failed: %v", err)
	}
	if len(got) != len(batch) {
		t.Fatalf("expected %d samples, got %d", len(batch), len(got))
	}
	for i, s := range got {
		if s != batch[i] {
			t.Errorf("sample %d mismatch: got %+v want %+v", i, s, batch[i])
		}
	}
}

func TestRawBatchIsAtomic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// No parent swing row: the foreign key rejects the batch and the
	// transaction must leave nothing behind.
	err := db.SaveRawBatch(ctx, "orphan-id", testBatch(5))
	if err == nil {
		t.Fatal("expected a foreign key failure")
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM swing_samples").Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected an empty swing_samples table, got %d rows", count)
	}
}

func TestListSwingsNewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ev := testEvent()
		ev.StartMicros = int64(i) * 1_000_000
		ev.EndMicros = ev.StartMicros + 150_000
		if _, err := db.SaveSwing(ctx, ev); err != nil {
			t.Fatalf("SaveSwing %d failed: %v", i, err)
		}
	}

	swings, err := db.ListSwings(ctx, 3)
	if err != nil {
		t.Fatalf("ListSwings failed: %v", err)
	}
	if len(swings) != 3 {
		t.Fatalf("expected 3 swings, got %d", len(swings))
	}
	for i := 1; i < len(swings); i++ {
		if swings[i].StartMicros > swings[i-1].StartMicros {
			t.Errorf("swings out of order at %d", i)
		}
	}
	if swings[0].StartMicros != 4_000_000 {
		t.Errorf("expected the newest swing first, got start=%d", swings[0].StartMicros)
	}
}

func TestDeleteSwingCascadesToSamples(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.SaveSwing(ctx, testEvent())
	if err != nil {
		t.Fatalf("SaveSwing failed: %v", err)
	}
	if err := db.SaveRawBatch(ctx, id, testBatch(10)); err != nil {
		t.Fatalf("SaveRawBatch failed: %v", err)
	}

	if err := db.DeleteSwing(ctx, id); err != nil {
		t.Fatalf("DeleteSwing failed: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM swing_samples WHERE swing_id = ?", id).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected cascaded delete, %d sample rows remain", count)
	}

	if err := db.DeleteSwing(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tips := []float64{4.0, 5.0, 6.0}
	for _, tip := range tips {
		ev := testEvent()
		ev.TipSpeed = tip
		ev.PeakGyro = tip / 0.63
		if _, err := db.SaveSwing(ctx, ev); err != nil {
			t.Fatalf("SaveSwing failed: %v", err)
		}
	}
	// Degraded events are excluded from the distribution.
	degraded := testEvent()
	degraded.TipSpeed = 100
	degraded.Degraded = true
	if _, err := db.SaveSwing(ctx, degraded); err != nil {
		t.Fatalf("SaveSwing failed: %v", err)
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Count != 3 {
		t.Fatalf("expected 3 swings in stats, got %d", stats.Count)
	}
	if math.Abs(stats.MeanTipSpeed-5.0) > 1e-9 {
		t.Errorf("expected mean 5.0, got %f", stats.MeanTipSpeed)
	}
	if stats.MaxTipSpeed != 6.0 {
		t.Errorf("expected max 6.0, got %f", stats.MaxTipSpeed)
	}
	if stats.MedianTipSpeed != 5.0 {
		t.Errorf("expected median 5.0, got %f", stats.MedianTipSpeed)
	}
	if stats.StdDevTipSpeed <= 0 {
		t.Errorf("expected positive stddev, got %f", stats.StdDevTipSpeed)
	}
}

func TestStatsEmptyDatabase(t *testing.T) {
	db := newTestDB(t)

	stats, err := db.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Count != 0 {
		t.Errorf("expected empty stats, got count=%d", stats.Count)
	}
}
