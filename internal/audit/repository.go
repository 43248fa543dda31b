// Package audit records every inbound broker message in the append-only
// audit_logs table and lets operators page through that history.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/device-server/internal/infrastructure/database"
)

// Paging limits for List.
const (
	defaultListLimit = 50
	maxListLimit     = 200

	// timestampLayout is fixed width so created_at sorts lexically.
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Entry is a single audited broker message.
type Entry struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	DeviceID  *int      `json:"deviceId,omitempty"`
	Payload   string    `json:"payload"`
	SizeBytes int       `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// Filter controls which entries List returns.
type Filter struct {
	Topic    string // optional: exact topic match
	DeviceID *int   // optional: entries for one device
	Limit    int    // default 50, max 200
	Offset   int    // pagination offset
}

// ListResult contains a page of audit entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLRepository stores audit entries in SQLite or PostgreSQL.
type SQLRepository struct {
	db *database.DB
}

// NewSQLRepository creates a new audit log repository.
func NewSQLRepository(db *database.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// Create inserts a new entry. ID, CreatedAt and SizeBytes are filled if empty.
func (r *SQLRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = "aud-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.SizeBytes == 0 {
		e.SizeBytes = len(e.Payload)
	}

	var deviceID any
	if e.DeviceID != nil {
		deviceID = *e.DeviceID
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, topic, device_id, payload, size_bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Topic, deviceID, e.Payload, e.SizeBytes,
		e.CreatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// List returns entries matching the filter, most recent first.
func (r *SQLRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Topic != "" {
		conditions = append(conditions, "topic = ?")
		args = append(args, filter.Topic)
	}
	if filter.DeviceID != nil {
		conditions = append(conditions, "device_id = ?")
		args = append(args, *filter.DeviceID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_logs %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, topic, device_id, payload, size_bytes, created_at FROM audit_logs %s ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var deviceID *int64
		var createdAt string

		if err := rows.Scan(&e.ID, &e.Topic, &deviceID, &e.Payload, &e.SizeBytes, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		if deviceID != nil {
			id := int(*deviceID)
			e.DeviceID = &id
		}

		t, err := time.Parse(timestampLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing audit timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
