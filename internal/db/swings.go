package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/batmetrics/swing.report/internal/pipeline"
	"github.com/batmetrics/swing.report/internal/swing"
)

// ErrNotFound is returned when a swing id does not exist.
var ErrNotFound = errors.New("swing not found")

// Swing is one persisted swing event row.
type Swing struct {
	ID             string    `json:"id"`
	StartMicros    int64     `json:"start_micros"`
	EndMicros      int64     `json:"end_micros"`
	PeakGyro       float64   `json:"peak_gyro"`
	TipSpeed       float64   `json:"tip_speed"`
	SampleCount    int       `json:"sample_count"`
	SampleRate     float64   `json:"sample_rate"`
	ImpactAngleDeg *float64  `json:"impact_angle_deg,omitempty"`
	Degraded       bool      `json:"degraded"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Swing) String() string {
	return fmt.Sprintf("Swing %s: tip %.2f m/s, peak %.2f rad/s, %d samples over %dµs",
		s.ID, s.TipSpeed, s.PeakGyro, s.SampleCount, s.EndMicros-s.StartMicros)
}

// SaveSwing inserts one completed swing event and returns its generated id.
func (db *DB) SaveSwing(ctx context.Context, ev swing.Event) (string, error) {
	id := uuid.NewString()
	_, err := db.ExecContext(ctx,
		`INSERT INTO swings (
			id, start_micros, end_micros, peak_gyro, tip_speed,
			sample_count, sample_rate, impact_angle_deg, degraded
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ev.StartMicros, ev.EndMicros, ev.PeakGyro, ev.TipSpeed,
		ev.SampleCount, ev.SampleRate, ev.ImpactAngleDeg, ev.Degraded,
	)
	if err != nil {
		return "", fmt.Errorf("insert swing: %w", err)
	}
	return id, nil
}

// SaveRawBatch stores all raw samples for one swing in a single transaction:
// either the full batch lands or none of it does.
func (db *DB) SaveRawBatch(ctx context.Context, id string, samples []pipeline.RawSample) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin raw batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO swing_samples (
			swing_id, offset_micros, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare raw batch: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.ExecContext(ctx, id, s.OffsetMicros,
			s.Accel.X, s.Accel.Y, s.Accel.Z,
			s.Gyro.X, s.Gyro.Y, s.Gyro.Z); err != nil {
			return fmt.Errorf("insert raw sample for swing %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// ListSwings returns the most recent swings, newest first. limit <= 0 selects
// a default page of 100.
func (db *DB) ListSwings(ctx context.Context, limit int) ([]Swing, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, start_micros, end_micros, peak_gyro, tip_speed,
			sample_count, sample_rate, impact_angle_deg, degraded, created_at
		FROM swings ORDER BY start_micros DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var swings []Swing
	for rows.Next() {
		s, err := scanSwing(rows)
		if err != nil {
			return nil, err
		}
		swings = append(swings, s)
	}
	return swings, rows.Err()
}

// GetSwing returns one swing by id, or ErrNotFound.
func (db *DB) GetSwing(ctx context.Context, id string) (Swing, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, start_micros, end_micros, peak_gyro, tip_speed,
			sample_count, sample_rate, impact_angle_deg, degraded, created_at
		FROM swings WHERE id = ?`, id)
	s, err := scanSwing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Swing{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, err
}

// RawSamples returns the raw batch for one swing in offset order. A swing
// whose batch write failed returns an empty slice, not an error.
func (db *DB) RawSamples(ctx context.Context, id string) ([]pipeline.RawSample, error) {
	if _, err := db.GetSwing(ctx, id); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT offset_micros, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z
		FROM swing_samples WHERE swing_id = ? ORDER BY offset_micros`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []pipeline.RawSample
	for rows.Next() {
		var s pipeline.RawSample
		if err := rows.Scan(&s.OffsetMicros,
			&s.Accel.X, &s.Accel.Y, &s.Accel.Z,
			&s.Gyro.X, &s.Gyro.Y, &s.Gyro.Z); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// DeleteSwing removes a swing and, via the cascade, its raw batch.
func (db *DB) DeleteSwing(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM swings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSwing(row rowScanner) (Swing, error) {
	var s Swing
	var angle sql.NullFloat64
	err := row.Scan(&s.ID, &s.StartMicros, &s.EndMicros, &s.PeakGyro, &s.TipSpeed,
		&s.SampleCount, &s.SampleRate, &angle, &s.Degraded, &s.CreatedAt)
	if err != nil {
		return Swing{}, err
	}
	if angle.Valid {
		s.ImpactAngleDeg = &angle.Float64
	}
	return s, nil
}
