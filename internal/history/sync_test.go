package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmcgarry/tanklog-core/internal/store"
	"github.com/dmcgarry/tanklog-core/internal/tank"
)

// setupSyncEngine returns an engine over a fresh in-memory store with a
// fixed clock.
func setupSyncEngine(t *testing.T, now time.Time) (*SyncEngine, *store.MemoryStore) {
	t.Helper()

	st := store.NewMemoryStore()
	engine := NewSyncEngine(st, 5*time.Minute)
	engine.now = func() time.Time { return now }
	return engine, st
}

func testGeometry() *tank.Geometry {
	return &tank.Geometry{
		Shape:        tank.ShapeCylinder,
		Diameter:     2,
		Height:       5,
		SensorHeight: 5,
		Capacity:     15_000,
	}
}

func reading(timestamp, distance float64) RawReading {
	return RawReading{Timestamp: floatPtr(timestamp), Distance: floatPtr(distance)}
}

func storedEntries(t *testing.T, st store.Store, deviceType, deviceID string) map[string]Entry {
	t.Helper()

	children, err := st.Children(context.Background(), HistoryPath(deviceType, deviceID))
	if err != nil {
		t.Fatalf("Children() error = %v", err)
	}

	entries := make(map[string]Entry, len(children))
	for key, raw := range children {
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			t.Fatalf("unmarshalling stored entry %s: %v", key, err)
		}
		entries[key] = entry
	}
	return entries
}

func TestSyncEngine_Sync_EnrichesEntries(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	engine, st := setupSyncEngine(t, now)

	readings := []RawReading{
		reading(1_700_000_000, 2.5),
		reading(1_700_000_060, 2.4),
	}

	result := engine.Sync(context.Background(), "dev-1", "tanks", readings, testGeometry())
	if result.Error != "" {
		t.Fatalf("Sync() error = %q", result.Error)
	}
	if result.Synced != 2 || result.Skipped != 0 {
		t.Fatalf("Sync() = %+v, want synced=2 skipped=0", result)
	}

	entries := storedEntries(t, st, "tanks", "dev-1")
	if len(entries) != 2 {
		t.Fatalf("stored %d entries, want 2", len(entries))
	}

	wantVolumes := map[float64]float64{
		2.5: 7854, // pi * 1^2 * 2.5m * 1000, rounded
		2.4: 8168, // pi * 1^2 * 2.6m * 1000, rounded
	}
	wantLevels := map[float64]float64{2.5: 2.5, 2.4: 2.6}

	for key, entry := range entries {
		if entry.Distance == nil {
			t.Fatalf("entry %s missing distance", key)
		}
		dist := *entry.Distance

		if entry.Timestamp < Year2000Ms {
			t.Errorf("entry %s timestamp = %d, want canonical milliseconds", key, entry.Timestamp)
		}
		if entry.Date == "" {
			t.Errorf("entry %s missing date", key)
		}
		if entry.OriginalTimestamp == nil {
			t.Errorf("entry %s missing raw timestamp traceability", key)
		}
		if entry.WaterLevel == nil || *entry.WaterLevel != wantLevels[dist] {
			t.Errorf("entry %s water level = %v, want %v", key, entry.WaterLevel, wantLevels[dist])
		}
		if entry.CurrentVolume == nil || *entry.CurrentVolume != wantVolumes[dist] {
			t.Errorf("entry %s volume = %v, want %v", key, entry.CurrentVolume, wantVolumes[dist])
		}
		if entry.Shape != string(tank.ShapeCylinder) {
			t.Errorf("entry %s shape = %q, want cylinder snapshot", key, entry.Shape)
		}
		if entry.Capacity == nil || *entry.Capacity != 15_000 {
			t.Errorf("entry %s capacity = %v, want 15000", key, entry.Capacity)
		}
		if entry.DistanceMeters == "" || entry.DistanceCM == "" {
			t.Errorf("entry %s missing distance renderings", key)
		}
	}
}

func TestSyncEngine_Sync_Idempotent(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	engine, _ := setupSyncEngine(t, now)

	readings := []RawReading{
		reading(1_700_000_000, 2.5),
		reading(1_700_000_060, 2.4),
	}

	first := engine.Sync(context.Background(), "dev-1", "tanks", readings, testGeometry())
	if first.Synced != 2 {
		t.Fatalf("first Sync() = %+v, want synced=2", first)
	}

	second := engine.Sync(context.Background(), "dev-1", "tanks", readings, testGeometry())
	if second.Synced != 0 || second.Skipped != 2 {
		t.Errorf("second Sync() = %+v, want synced=0 skipped=2", second)
	}
}

func TestSyncEngine_Sync_SkipsAbsentTimestamp(t *testing.T) {
	engine, st := setupSyncEngine(t, time.Now())

	readings := []RawReading{
		{Distance: floatPtr(2.5)},
		reading(1_700_000_000, 2.4),
	}

	result := engine.Sync(context.Background(), "dev-1", "tanks", readings, nil)
	if result.Synced != 1 || result.Skipped != 1 {
		t.Errorf("Sync() = %+v, want synced=1 skipped=1", result)
	}
	if st.Len() != 1 {
		t.Errorf("stored %d entries, want 1", st.Len())
	}
}

func TestSyncEngine_Sync_RepairsImplausibleTimestamps(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	engine, st := setupSyncEngine(t, now)

	// Boot-relative counters, deliberately unsorted.
	readings := []RawReading{
		reading(300, 2.3),
		reading(100, 2.5),
		reading(500, 2.1),
		reading(200, 2.4),
		reading(400, 2.2),
	}

	result := engine.Sync(context.Background(), "dev-1", "tanks", readings, nil)
	if result.Synced != 5 {
		t.Fatalf("Sync() = %+v, want synced=5", result)
	}

	entries := storedEntries(t, st, "tanks", "dev-1")

	timestamps := make([]int64, 0, len(entries))
	for _, entry := range entries {
		timestamps = append(timestamps, entry.Timestamp)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	for i := 1; i < len(timestamps); i++ {
		if got := timestamps[i] - timestamps[i-1]; got != (5 * time.Minute).Milliseconds() {
			t.Errorf("synthesized spacing = %dms, want 5 minutes", got)
		}
	}
	if newest := timestamps[len(timestamps)-1]; newest != now.UnixMilli() {
		t.Errorf("newest synthesized timestamp = %d, want now (%d)", newest, now.UnixMilli())
	}

	// Counter order must map onto synthesized order.
	for _, entry := range entries {
		counter := *entry.OriginalTimestamp
		wantOffset := time.Duration(5-counter/100) * 5 * time.Minute
		if want := now.Add(-wantOffset).UnixMilli(); entry.Timestamp != want {
			t.Errorf("counter %v synthesized to %d, want %d", counter, entry.Timestamp, want)
		}
	}
}

func TestSyncEngine_Sync_EmptyBatch(t *testing.T) {
	engine, st := setupSyncEngine(t, time.Now())

	result := engine.Sync(context.Background(), "dev-1", "tanks", nil, nil)
	if result != (SyncResult{}) {
		t.Errorf("Sync(empty) = %+v, want zero result", result)
	}
	if st.Len() != 0 {
		t.Errorf("empty batch stored %d entries, want 0", st.Len())
	}
}

func TestSyncEngine_Sync_NoGeometry(t *testing.T) {
	engine, st := setupSyncEngine(t, time.Now())

	result := engine.Sync(context.Background(), "sensor-7", "sensors", []RawReading{reading(1_700_000_000, 1.8)}, nil)
	if result.Synced != 1 {
		t.Fatalf("Sync() = %+v, want synced=1", result)
	}

	for _, entry := range storedEntries(t, st, "sensors", "sensor-7") {
		if entry.WaterLevel != nil || entry.CurrentVolume != nil {
			t.Error("entry without geometry must not carry derived metrics")
		}
		if entry.DistanceMeters != "1.8" {
			t.Errorf("distance_meters = %q, want 1.8", entry.DistanceMeters)
		}
		if entry.DistanceCM != "180.0" {
			t.Errorf("distance_cm = %q, want 180.0", entry.DistanceCM)
		}
	}
}

func TestSyncEngine_Sync_PreservesExtraFields(t *testing.T) {
	engine, st := setupSyncEngine(t, time.Now())

	readings := []RawReading{{
		Timestamp: floatPtr(1_700_000_000),
		Distance:  floatPtr(2.5),
		Extra:     map[string]any{"battery": float64(87)},
	}}

	if result := engine.Sync(context.Background(), "dev-1", "tanks", readings, nil); result.Synced != 1 {
		t.Fatalf("Sync() = %+v, want synced=1", result)
	}

	for _, entry := range storedEntries(t, st, "tanks", "dev-1") {
		if entry.Extra["battery"] != float64(87) {
			t.Errorf("Extra[battery] = %v, want 87", entry.Extra["battery"])
		}
	}
}

// failingStore fails SetIfAbsent for one specific path.
type failingStore struct {
	store.Store
	failPath string
}

func (s *failingStore) SetIfAbsent(ctx context.Context, path string, value any) (bool, error) {
	if path == s.failPath {
		return false, errors.New("disk full")
	}
	return s.Store.SetIfAbsent(ctx, path, value)
}

func TestSyncEngine_Sync_PartialWriteFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	failPath := EntryPath("tanks", "dev-1", DedupKey(floatPtr(1_700_000_000), floatPtr(2.5)))
	engine := NewSyncEngine(&failingStore{Store: mem, failPath: failPath}, 5*time.Minute)

	readings := []RawReading{
		reading(1_700_000_000, 2.5),
		reading(1_700_000_060, 2.4),
	}

	result := engine.Sync(context.Background(), "dev-1", "tanks", readings, nil)
	if result.Error != "" {
		t.Fatalf("Sync() error = %q, individual failure must not abort", result.Error)
	}
	if result.Synced != 1 || result.Failed != 1 {
		t.Errorf("Sync() = %+v, want synced=1 failed=1", result)
	}
	if mem.Len() != 1 {
		t.Errorf("stored %d entries, want 1", mem.Len())
	}
}

// erroringStore fails all reads, simulating a systemic store outage.
type erroringStore struct {
	store.Store
}

func (s *erroringStore) Children(context.Context, string) (map[string]json.RawMessage, error) {
	return nil, errors.New("database locked")
}

func TestSyncEngine_Sync_SystemicFailure(t *testing.T) {
	engine := NewSyncEngine(&erroringStore{Store: store.NewMemoryStore()}, 5*time.Minute)

	result := engine.Sync(context.Background(), "dev-1", "tanks", []RawReading{reading(1_700_000_000, 2.5)}, nil)
	if result.Synced != 0 || result.Skipped != 0 {
		t.Errorf("Sync() counts = %+v, want zero on systemic failure", result)
	}
	if result.Error == "" {
		t.Error("Sync() must surface a systemic failure in the result")
	}
}

// occupiedStore reports every entry path as already present, simulating a
// concurrent sync that landed the whole batch first.
type occupiedStore struct {
	store.Store
}

func (s *occupiedStore) SetIfAbsent(context.Context, string, any) (bool, error) {
	return false, nil
}

func TestSyncEngine_Sync_CountsRacingInsertsAsSkipped(t *testing.T) {
	engine := NewSyncEngine(&occupiedStore{Store: store.NewMemoryStore()}, 5*time.Minute)

	// Mix loop-level skips (no timestamp, in-batch duplicate) with
	// write-level skips so both accounting paths run in the same batch.
	readings := []RawReading{
		{Distance: floatPtr(2.6)},
		reading(1_700_000_000, 2.5),
		reading(1_700_000_000, 2.5),
		reading(1_700_000_060, 2.4),
		reading(1_700_000_120, 2.3),
	}

	result := engine.Sync(context.Background(), "dev-1", "tanks", readings, nil)
	if result.Error != "" {
		t.Fatalf("Sync() error = %q", result.Error)
	}
	if result.Synced != 0 || result.Skipped != 5 || result.Failed != 0 {
		t.Errorf("Sync() = %+v, want synced=0 skipped=5 failed=0", result)
	}
}

// recordingMirror captures mirrored points and batch metrics for assertions.
type recordingMirror struct {
	mu      sync.Mutex
	points  []string
	batches []string
}

func (m *recordingMirror) WriteHistoryPoint(deviceType, deviceID string, fields map[string]any, timestamp time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, fmt.Sprintf("%s/%s@%d", deviceType, deviceID, timestamp.UnixMilli()))
}

func (m *recordingMirror) WriteSyncMetric(deviceType, deviceID string, synced, skipped, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, fmt.Sprintf("%s/%s synced=%d skipped=%d failed=%d", deviceType, deviceID, synced, skipped, failed))
}

func TestSyncEngine_Sync_MirrorsSyncedEntries(t *testing.T) {
	engine, _ := setupSyncEngine(t, time.Now())
	mirror := &recordingMirror{}
	engine.SetMirror(mirror)

	readings := []RawReading{
		reading(1_700_000_000, 2.5),
		reading(1_700_000_060, 2.4),
	}

	engine.Sync(context.Background(), "dev-1", "tanks", readings, testGeometry())
	if len(mirror.points) != 2 {
		t.Errorf("mirrored %d points, want 2", len(mirror.points))
	}

	// Duplicates must not be mirrored again.
	engine.Sync(context.Background(), "dev-1", "tanks", readings, testGeometry())
	if len(mirror.points) != 2 {
		t.Errorf("mirrored %d points after re-sync, want 2", len(mirror.points))
	}
}

func TestSyncEngine_Sync_MirrorsBatchMetrics(t *testing.T) {
	engine, _ := setupSyncEngine(t, time.Now())
	mirror := &recordingMirror{}
	engine.SetMirror(mirror)

	readings := []RawReading{
		reading(1_700_000_000, 2.5),
		reading(1_700_000_060, 2.4),
	}

	engine.Sync(context.Background(), "dev-1", "tanks", readings, nil)
	engine.Sync(context.Background(), "dev-1", "tanks", readings, nil)

	want := []string{
		"tanks/dev-1 synced=2 skipped=0 failed=0",
		"tanks/dev-1 synced=0 skipped=2 failed=0",
	}
	if len(mirror.batches) != len(want) {
		t.Fatalf("recorded %d batch metrics, want %d", len(mirror.batches), len(want))
	}
	for i, got := range mirror.batches {
		if got != want[i] {
			t.Errorf("batch metric %d = %q, want %q", i, got, want[i])
		}
	}
}
