package tank

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no tank exists for the requested identifier.
var ErrNotFound = errors.New("tank: not found")

// Repository stores and retrieves tank configuration.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	// Save inserts or updates a tank keyed by its device ID.
	Save(ctx context.Context, t *Tank) error

	// GetByDeviceID returns the tank configured for a device.
	// Returns ErrNotFound when the device has no tank.
	GetByDeviceID(ctx context.Context, deviceID string) (*Tank, error)

	// List returns all configured tanks ordered by name.
	List(ctx context.Context) ([]Tank, error)

	// Delete removes the tank for a device.
	// Returns ErrNotFound when nothing was deleted.
	Delete(ctx context.Context, deviceID string) error
}

// SQLiteRepository implements Repository using the tanks table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite tank repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save inserts or updates a tank keyed by its device ID.
//
// A missing record ID is generated. Shape is normalised through ParseShape
// so the database never holds a value outside the closed shape set.
func (r *SQLiteRepository) Save(ctx context.Context, t *Tank) error {
	if t == nil {
		return fmt.Errorf("tank is required")
	}
	if t.DeviceID == "" {
		return fmt.Errorf("device id is required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Shape = ParseShape(string(t.Shape))

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tanks (id, device_id, name, shape, diameter, length, breadth, height, sensor_height, capacity, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(device_id) DO UPDATE SET
		   name = excluded.name,
		   shape = excluded.shape,
		   diameter = excluded.diameter,
		   length = excluded.length,
		   breadth = excluded.breadth,
		   height = excluded.height,
		   sensor_height = excluded.sensor_height,
		   capacity = excluded.capacity,
		   updated_at = excluded.updated_at`,
		t.ID, t.DeviceID, t.Name, string(t.Shape),
		t.Diameter, t.Length, t.Breadth, t.Height, t.SensorHeight, t.Capacity,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("saving tank: %w", err)
	}

	return nil
}

// GetByDeviceID returns the tank configured for a device.
func (r *SQLiteRepository) GetByDeviceID(ctx context.Context, deviceID string) (*Tank, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT id, device_id, name, shape, diameter, length, breadth, height, sensor_height, capacity, created_at, updated_at
		 FROM tanks WHERE device_id = ?`,
		deviceID,
	)

	t, err := scanTank(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying tank: %w", err)
	}

	return t, nil
}

// List returns all configured tanks ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Tank, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, name, shape, diameter, length, breadth, height, sensor_height, capacity, created_at, updated_at
		 FROM tanks ORDER BY name, device_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying tanks: %w", err)
	}
	defer rows.Close()

	var tanks []Tank
	for rows.Next() {
		t, scanErr := scanTank(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning tank: %w", scanErr)
		}
		tanks = append(tanks, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tanks: %w", err)
	}

	return tanks, nil
}

// Delete removes the tank for a device.
func (r *SQLiteRepository) Delete(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("device id is required")
	}

	result, err := r.db.ExecContext(ctx, "DELETE FROM tanks WHERE device_id = ?", deviceID)
	if err != nil {
		return fmt.Errorf("deleting tank: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTank scans a tanks row into a Tank.
func scanTank(row rowScanner) (*Tank, error) {
	var t Tank
	var shape string
	var createdAt, updatedAt string

	if err := row.Scan(
		&t.ID, &t.DeviceID, &t.Name, &shape,
		&t.Diameter, &t.Length, &t.Breadth, &t.Height, &t.SensorHeight, &t.Capacity,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	t.Shape = ParseShape(shape)

	if parsed, err := time.Parse(time.RFC3339, createdAt); err == nil {
		t.CreatedAt = parsed
	}
	if parsed, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		t.UpdatedAt = parsed
	}

	return &t, nil
}
