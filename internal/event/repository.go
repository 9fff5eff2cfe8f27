package event

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeFormat is fixed width so created_at compares correctly as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Repository defines the interface for event persistence.
type Repository interface {
	// Insert appends an event, assigning ID, Seq and CreatedAt as needed.
	Insert(ctx context.Context, ev *Event) error

	// ListByType returns up to limit events of eventType with a seq
	// greater than afterSeq, oldest first.
	ListByType(ctx context.Context, eventType string, afterSeq int64, limit int) ([]Event, error)

	// GetByID retrieves an event. Returns ErrEventNotFound if absent.
	GetByID(ctx context.Context, id string) (*Event, error)

	// DeleteBefore removes events created before cutoff and returns how
	// many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed event repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Insert appends an event.
func (r *SQLiteRepository) Insert(ctx context.Context, ev *Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	value := string(ev.Value)
	if value == "" {
		value = "null"
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO events (id, event_type, driver_type, driver_id, device_id, event, value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.Type,
		ev.DriverType,
		ev.DriverID,
		ev.DeviceID,
		ev.Name,
		value,
		ev.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading event seq: %w", err)
	}
	ev.Seq = seq
	return nil
}

const selectEvents = `
	SELECT seq, id, event_type, driver_type, driver_id, device_id, event, value, created_at
	FROM events`

// ListByType returns a page of events of one type in insertion order.
func (r *SQLiteRepository) ListByType(ctx context.Context, eventType string, afterSeq int64, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		selectEvents+" WHERE event_type = ? AND seq > ? ORDER BY seq LIMIT ?",
		eventType, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		ev, err := scanEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

// GetByID retrieves an event by its UUID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Event, error) {
	ev, err := scanEventRow(r.db.QueryRowContext(ctx, selectEvents+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("querying event by id: %w", err)
	}
	return ev, nil
}

// DeleteBefore removes events older than cutoff.
func (r *SQLiteRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM events WHERE created_at < ?", cutoff.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("deleting events: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEventRow(scanner rowScanner) (*Event, error) {
	var (
		ev        Event
		value     string
		createdAt string
	)
	err := scanner.Scan(
		&ev.Seq,
		&ev.ID,
		&ev.Type,
		&ev.DriverType,
		&ev.DriverID,
		&ev.DeviceID,
		&ev.Name,
		&value,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	ev.Value = []byte(value)

	if ev.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &ev, nil
}
