package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"cloudpico-viewer/internal/types"
)

//go:embed sql/insert-snapshot.sql
var insertSnapshotSQL string

//go:embed sql/list-snapshots.sql
var listSnapshotsSQL string

//go:embed sql/list-devices.sql
var listDevicesSQL string

// timeLayout is fixed-width so that stored timestamps order lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Record is one archived snapshot.
type Record struct {
	ID            int64                 `json:"id"`
	DeviceAddress string                `json:"deviceAddress"`
	RecordedAt    time.Time             `json:"recordedAt"`
	Snapshot      types.WeatherSnapshot `json:"snapshot"`
}

// Device summarises the archive for one station address.
type Device struct {
	Address        string    `json:"address"`
	Snapshots      int       `json:"snapshots"`
	LastRecordedAt time.Time `json:"lastRecordedAt"`
}

// Query selects archived snapshots. Zero values disable a filter; Limit is required.
type Query struct {
	DeviceAddress string
	From          time.Time
	To            time.Time
	Limit         int
}

type ArchiveRepository interface {
	// InsertSnapshot stores s unless the same reading is already archived.
	InsertSnapshot(ctx context.Context, address string, recordedAt time.Time, s types.WeatherSnapshot) (bool, error)
	ListSnapshots(ctx context.Context, q Query) ([]Record, error)
	ListDevices(ctx context.Context) ([]Device, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) ArchiveRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) InsertSnapshot(ctx context.Context, address string, recordedAt time.Time, s types.WeatherSnapshot) (bool, error) {
	res, err := r.db.ExecContext(ctx, insertSnapshotSQL,
		address,
		s.Location,
		s.ObservedAt,
		formatTime(recordedAt),
		s.Temperature,
		s.Humidity,
		s.Pressure,
		s.Condition,
		s.WindSpeed,
		s.WindDirection,
		s.UVIndex,
		s.Visibility,
	)
	if err != nil {
		return false, fmt.Errorf("insert snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert snapshot rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *repositoryImpl) ListSnapshots(ctx context.Context, q Query) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, listSnapshotsSQL,
		q.DeviceAddress,
		formatOptionalTime(q.From),
		formatOptionalTime(q.To),
		q.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close snapshot rows", "error", err)
		}
	}()

	out := []Record{}
	for rows.Next() {
		var (
			rec        Record
			recordedAt string
			s          = &rec.Snapshot
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.DeviceAddress,
			&recordedAt,
			&s.Location,
			&s.ObservedAt,
			&s.Temperature,
			&s.Humidity,
			&s.Pressure,
			&s.Condition,
			&s.WindSpeed,
			&s.WindDirection,
			&s.UVIndex,
			&s.Visibility,
		); err != nil {
			return nil, err
		}
		if rec.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, listDevicesSQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close device rows", "error", err)
		}
	}()

	out := []Device{}
	for rows.Next() {
		var (
			d    Device
			last string
		)
		if err := rows.Scan(&d.Address, &d.Snapshots, &last); err != nil {
			return nil, err
		}
		if d.LastRecordedAt, err = parseTime(last); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatTime(t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse recorded_at %q: %w", s, err)
	}
	return t, nil
}
