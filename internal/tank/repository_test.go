package tank

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTankTestDB creates an in-memory SQLite database with the tanks table.
func setupTankTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE tanks (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			shape TEXT NOT NULL DEFAULT 'other',
			diameter REAL NOT NULL DEFAULT 0,
			length REAL NOT NULL DEFAULT 0,
			breadth REAL NOT NULL DEFAULT 0,
			height REAL NOT NULL DEFAULT 0,
			sensor_height REAL NOT NULL DEFAULT 0,
			capacity REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestSaveAndGetByDeviceID(t *testing.T) {
	repo := NewSQLiteRepository(setupTankTestDB(t))
	ctx := context.Background()

	saved := &Tank{
		DeviceID: "tank-01",
		Name:     "Roof Tank",
		Geometry: Geometry{
			Shape:        ShapeCylinder,
			Diameter:     2,
			Height:       5,
			SensorHeight: 5,
			Capacity:     15000,
		},
	}
	if err := repo.Save(ctx, saved); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if saved.ID == "" {
		t.Error("Save() did not assign an ID")
	}

	got, err := repo.GetByDeviceID(ctx, "tank-01")
	if err != nil {
		t.Fatalf("GetByDeviceID() error = %v", err)
	}
	if got.Name != "Roof Tank" {
		t.Errorf("Name = %q, want %q", got.Name, "Roof Tank")
	}
	if got.Shape != ShapeCylinder {
		t.Errorf("Shape = %q, want %q", got.Shape, ShapeCylinder)
	}
	if got.SensorHeight != 5 {
		t.Errorf("SensorHeight = %v, want 5", got.SensorHeight)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero, want non-zero")
	}
}

func TestSave_UpdatesExisting(t *testing.T) {
	repo := NewSQLiteRepository(setupTankTestDB(t))
	ctx := context.Background()

	first := &Tank{DeviceID: "tank-01", Name: "Old", Geometry: Geometry{Shape: ShapeCuboid, Length: 2, Breadth: 2}}
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	second := &Tank{DeviceID: "tank-01", Name: "New", Geometry: Geometry{Shape: ShapeCuboid, Length: 3, Breadth: 2}}
	if err := repo.Save(ctx, second); err != nil {
		t.Fatalf("Save() update error = %v", err)
	}

	got, err := repo.GetByDeviceID(ctx, "tank-01")
	if err != nil {
		t.Fatalf("GetByDeviceID() error = %v", err)
	}
	if got.Name != "New" {
		t.Errorf("Name = %q, want %q", got.Name, "New")
	}
	if got.Length != 3 {
		t.Errorf("Length = %v, want 3", got.Length)
	}
	// Original record ID survives the upsert
	if got.ID != first.ID {
		t.Errorf("ID = %q, want original %q", got.ID, first.ID)
	}
}

func TestSave_NormalisesShape(t *testing.T) {
	repo := NewSQLiteRepository(setupTankTestDB(t))
	ctx := context.Background()

	if err := repo.Save(ctx, &Tank{DeviceID: "tank-01", Geometry: Geometry{Shape: Shape("hexagonal")}}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.GetByDeviceID(ctx, "tank-01")
	if err != nil {
		t.Fatalf("GetByDeviceID() error = %v", err)
	}
	if got.Shape != ShapeOther {
		t.Errorf("Shape = %q, want %q", got.Shape, ShapeOther)
	}
}

func TestGetByDeviceID_NotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTankTestDB(t))

	_, err := repo.GetByDeviceID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByDeviceID() error = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	repo := NewSQLiteRepository(setupTankTestDB(t))
	ctx := context.Background()

	for _, dev := range []string{"tank-b", "tank-a"} {
		if err := repo.Save(ctx, &Tank{DeviceID: dev, Name: dev}); err != nil {
			t.Fatalf("Save(%q) error = %v", dev, err)
		}
	}

	tanks, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(tanks) != 2 {
		t.Fatalf("List() length = %d, want 2", len(tanks))
	}
	if tanks[0].DeviceID != "tank-a" {
		t.Errorf("List()[0].DeviceID = %q, want %q", tanks[0].DeviceID, "tank-a")
	}
}

func TestDelete(t *testing.T) {
	repo := NewSQLiteRepository(setupTankTestDB(t))
	ctx := context.Background()

	if err := repo.Save(ctx, &Tank{DeviceID: "tank-01"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := repo.Delete(ctx, "tank-01"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if err := repo.Delete(ctx, "tank-01"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}
