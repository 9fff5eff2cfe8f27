package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// Every method is a single atomic statement against the store.
type Repository interface {
	// Get retrieves a device by its ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Get(ctx context.Context, id string) (*Device, error)

	// ListAll retrieves every device.
	ListAll(ctx context.Context) ([]Device, error)

	// ListByType retrieves all devices of a type.
	ListByType(ctx context.Context, deviceType Type) ([]Device, error)

	// ListByTypeAndDriver retrieves the devices a driver owns for a type.
	ListByTypeAndDriver(ctx context.Context, deviceType Type, driverID string) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same ID already exists.
	Create(ctx context.Context, device *Device) error

	// Update overwrites the driver-reported fields of an existing device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// DeleteMany removes the given devices in one statement. Unknown IDs
	// are ignored and an empty list is a no-op.
	DeleteMany(ctx context.Context, ids []string) error

	// CountByDriver returns the number of devices owned by a driver.
	CountByDriver(ctx context.Context, driverID string) (int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectDevices = `
	SELECT id, type, driver_id, local_id, name, address, specs, created_at, updated_at
	FROM devices`

// Get retrieves a device by its ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectDevices+" WHERE id = ?", id)
	d, err := scanDeviceRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// ListAll retrieves every device, ordered by type then name.
func (r *SQLiteRepository) ListAll(ctx context.Context) ([]Device, error) {
	return r.queryDevices(ctx, selectDevices+" ORDER BY type, name, id")
}

// ListByType retrieves all devices of a type.
func (r *SQLiteRepository) ListByType(ctx context.Context, deviceType Type) ([]Device, error) {
	return r.queryDevices(ctx, selectDevices+" WHERE type = ? ORDER BY name, id", string(deviceType))
}

// ListByTypeAndDriver retrieves the devices a driver owns for a type.
func (r *SQLiteRepository) ListByTypeAndDriver(ctx context.Context, deviceType Type, driverID string) ([]Device, error) {
	return r.queryDevices(ctx,
		selectDevices+" WHERE type = ? AND driver_id = ? ORDER BY name, id",
		string(deviceType), driverID)
}

// Create inserts a new device. Timestamps are set when zero.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	if err := device.Validate(); err != nil {
		return err
	}

	specsJSON, err := json.Marshal(device.Specs)
	if err != nil {
		return fmt.Errorf("marshalling specs: %w", err)
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO devices (id, type, driver_id, local_id, name, address, specs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		device.ID,
		string(device.Type),
		device.DriverID,
		device.LocalID,
		device.Name,
		device.Address,
		string(specsJSON),
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

// Update overwrites name, address and specs of an existing device.
// The identity columns and created_at are left untouched.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	specsJSON, err := json.Marshal(device.Specs)
	if err != nil {
		return fmt.Errorf("marshalling specs: %w", err)
	}

	device.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE devices SET name = ?, address = ?, specs = ?, updated_at = ?
		WHERE id = ?`,
		device.Name,
		device.Address,
		string(specsJSON),
		device.UpdatedAt.Format(time.RFC3339),
		device.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// DeleteMany removes the given devices with a single DELETE ... IN statement.
func (r *SQLiteRepository) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("deleting devices: %w", err)
	}
	return nil
}

// CountByDriver returns the number of devices owned by a driver.
func (r *SQLiteRepository) CountByDriver(ctx context.Context, driverID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices WHERE driver_id = ?", driverID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting devices: %w", err)
	}
	return count, nil
}

// queryDevices executes a query and returns a slice of devices.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := []Device{}
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

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeviceRow(scanner rowScanner) (*Device, error) {
	var (
		d          Device
		deviceType string
		specsJSON  string
		createdAt  string
		updatedAt  string
	)

	err := scanner.Scan(
		&d.ID,
		&deviceType,
		&d.DriverID,
		&d.LocalID,
		&d.Name,
		&d.Address,
		&specsJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Type = Type(deviceType)

	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	if err := json.Unmarshal([]byte(specsJSON), &d.Specs); err != nil {
		return nil, fmt.Errorf("unmarshalling specs: %w", err)
	}
	return &d, nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
