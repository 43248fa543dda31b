package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/device-server/internal/infrastructure/database"
)

// Query limits for reading lookups.
const (
	DefaultReadingLimit = 10
	MaxReadingLimit     = 100

	// maxRangeRows caps Range so a wide window cannot load an unbounded result.
	maxRangeRows = 1000

	defaultCommandTimeout = 180 * time.Second
)

// ReadingRepository defines persistence for device readings.
// This abstraction allows handlers and the API to be tested without a database.
type ReadingRepository interface {
	// Insert stores a reading in its own transaction.
	Insert(ctx context.Context, r *Reading) error

	// Latest returns up to limit readings for a device, newest first.
	Latest(ctx context.Context, deviceID, limit int) ([]Reading, error)

	// Last returns the newest reading for a device.
	// Returns ErrReadingNotFound if the device has none.
	Last(ctx context.Context, deviceID int) (*Reading, error)

	// Range returns readings with start <= timestamp < end, oldest first.
	Range(ctx context.Context, deviceID int, start, end time.Time) ([]Reading, error)
}

// SQLReadingRepository implements ReadingRepository on SQLite or PostgreSQL.
type SQLReadingRepository struct {
	db      *database.DB
	timeout time.Duration
}

// NewSQLReadingRepository creates a repository whose statements run under
// commandTimeout. A non-positive timeout falls back to 180s.
func NewSQLReadingRepository(db *database.DB, commandTimeout time.Duration) *SQLReadingRepository {
	if commandTimeout <= 0 {
		commandTimeout = defaultCommandTimeout
	}
	return &SQLReadingRepository{db: db, timeout: commandTimeout}
}

// Insert stores r as a single unit of work.
//
// The transaction is rolled back on every path except a successful
// commit. A duplicate (timestamp, deviceId) pair fails the insert.
func (r *SQLReadingRepository) Insert(ctx context.Context, reading *Reading) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO device_readings (time, device_id, humidity, light_intensity, temperature)
		VALUES (?, ?, ?, ?, ?)`),
		reading.Timestamp.UTC(), reading.DeviceID,
		reading.Humidity, reading.LightIntensity, reading.Temperature,
	)
	if err != nil {
		return fmt.Errorf("inserting reading for device %d: %w", reading.DeviceID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reading: %w", err)
	}
	return nil
}

// Latest returns up to limit readings, newest first. limit is clamped to
// 1..MaxReadingLimit with DefaultReadingLimit for non-positive values.
func (r *SQLReadingRepository) Latest(ctx context.Context, deviceID, limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = DefaultReadingLimit
	}
	if limit > MaxReadingLimit {
		limit = MaxReadingLimit
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT time, device_id, humidity, light_intensity, temperature
		FROM device_readings
		WHERE device_id = ?
		ORDER BY time DESC
		LIMIT ?`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	return scanReadings(rows)
}

// Last returns the newest reading for deviceID.
func (r *SQLReadingRepository) Last(ctx context.Context, deviceID int) (*Reading, error) {
	readings, err := r.Latest(ctx, deviceID, 1)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, ErrReadingNotFound
	}
	return &readings[0], nil
}

// Range returns readings in [start, end), oldest first.
func (r *SQLReadingRepository) Range(ctx context.Context, deviceID int, start, end time.Time) ([]Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT time, device_id, humidity, light_intensity, temperature
		FROM device_readings
		WHERE device_id = ? AND time >= ? AND time < ?
		ORDER BY time ASC
		LIMIT ?`, deviceID, start.UTC(), end.UTC(), maxRangeRows)
	if err != nil {
		return nil, fmt.Errorf("querying reading range: %w", err)
	}
	defer rows.Close()

	return scanReadings(rows)
}

func scanReadings(rows *sql.Rows) ([]Reading, error) {
	readings := []Reading{}
	for rows.Next() {
		var rd Reading
		if err := rows.Scan(&rd.Timestamp, &rd.DeviceID, &rd.Humidity, &rd.LightIntensity, &rd.Temperature); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		rd.Timestamp = rd.Timestamp.UTC()
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return readings, nil
}
