package history

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dmcgarry/tanklog-core/internal/store"
	"github.com/dmcgarry/tanklog-core/internal/tank"
)

// Logger is the optional logging interface for the history engines.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Mirror receives a copy of every newly synced entry's derived metrics
// plus one batch-outcome metric per sync call. Implemented by the InfluxDB
// client; nil disables mirroring.
type Mirror interface {
	WriteHistoryPoint(deviceType, deviceID string, fields map[string]any, timestamp time.Time)
	WriteSyncMetric(deviceType, deviceID string, synced, skipped, failed int)
}

// SyncResult reports the outcome of a sync call.
//
// Failure modes are carried in the value, never thrown: a systemic failure
// sets Error with zero counts, individual write failures increment Failed
// without aborting the batch.
type SyncResult struct {
	Synced  int    `json:"synced"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed,omitempty"`
	Error   string `json:"error,omitempty"`
}

// historyRoot is the top-level store path segment for device history.
const historyRoot = "history"

// HistoryPath returns the store path holding all entries for a device.
func HistoryPath(deviceType, deviceID string) string {
	return store.Join(historyRoot, deviceType, deviceID)
}

// EntryPath returns the store path for a single entry.
func EntryPath(deviceType, deviceID, dedupKey string) string {
	return store.Join(historyRoot, deviceType, deviceID, dedupKey)
}

// SyncEngine ingests batches of raw readings into the history store.
//
// Sync is idempotent: the dedup key derived from each reading's raw
// (timestamp, distance) pair is both the storage key and the duplicate
// filter, and the final write is an atomic insert-if-absent, so re-syncing
// the same batch writes nothing and racing syncs cannot double-write.
type SyncEngine struct {
	store         store.Store
	repairSpacing time.Duration

	mirror Mirror
	logger Logger

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewSyncEngine creates a sync engine over the given store.
//
// repairSpacing is the assumed cadence between readings when timestamps
// must be synthesized; values <= 0 fall back to five minutes.
func NewSyncEngine(st store.Store, repairSpacing time.Duration) *SyncEngine {
	if repairSpacing <= 0 {
		repairSpacing = 5 * time.Minute
	}
	return &SyncEngine{
		store:         st,
		repairSpacing: repairSpacing,
		now:           time.Now,
	}
}

// SetLogger sets an optional logger for skip/failure diagnostics.
func (e *SyncEngine) SetLogger(logger Logger) {
	e.logger = logger
}

// SetMirror sets an optional telemetry mirror for synced entries.
func (e *SyncEngine) SetMirror(mirror Mirror) {
	e.mirror = mirror
}

// Sync ingests a batch of raw readings for one device.
//
// The algorithm:
//  1. An empty batch is a no-op, not an error.
//  2. Existing dedup keys are loaded from the device's stored history.
//  3. The batch is sorted ascending by raw timestamp (absent sorts first);
//     the sorted position drives timestamp repair.
//  4. Readings without a timestamp, or whose dedup key is already known,
//     are skipped.
//  5. Raw timestamps that cannot be normalized are synthesized: readings
//     are assumed to have arrived oldest-to-newest at a fixed spacing
//     ending now. Best-effort ordering preservation, not a guarantee.
//  6. Entries are enriched with distance renderings and, when tank
//     geometry is supplied, a point-in-time snapshot of water level,
//     volume, and the geometry itself.
//  7. Writes are issued concurrently as atomic insert-if-absent; an
//     individual failure is counted and logged but never aborts the batch.
//
// All failure modes return a SyncResult value; nothing escapes as a fault.
func (e *SyncEngine) Sync(ctx context.Context, deviceID, deviceType string, readings []RawReading, geom *tank.Geometry) (result SyncResult) {
	defer func() {
		if r := recover(); r != nil {
			result = SyncResult{Error: fmt.Sprintf("sync panic: %v", r)}
			if e.logger != nil {
				e.logger.Error("history sync panicked",
					"device_id", deviceID,
					"device_type", deviceType,
					"panic", r,
				)
			}
		}
	}()

	if len(readings) == 0 {
		return SyncResult{}
	}

	existing, err := e.existingKeys(ctx, deviceType, deviceID)
	if err != nil {
		return SyncResult{Error: fmt.Sprintf("loading existing history: %v", err)}
	}

	// Sort ascending by raw timestamp; readings lacking one sort first.
	batch := make([]RawReading, len(readings))
	copy(batch, readings)
	sort.SliceStable(batch, func(i, j int) bool {
		return rawOrZero(batch[i].Timestamp) < rawOrZero(batch[j].Timestamp)
	})

	now := e.now()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	// The write goroutines mutate result under mu; the loop keeps its own
	// skip count and folds it in after the wait so the two never interleave.
	preSkipped := 0

	for i, reading := range batch {
		if reading.Timestamp == nil {
			preSkipped++
			continue
		}

		key := DedupKey(reading.Timestamp, reading.Distance)
		if existing[key] {
			preSkipped++
			continue
		}
		existing[key] = true

		timestamp, ok := NormalizeTimestamp(*reading.Timestamp)
		if !ok || timestamp < Year2000Ms {
			// Repair: index by reverse position in the sorted batch, so
			// the newest reading lands at the current instant.
			offset := len(batch) - 1 - i
			timestamp = now.Add(-time.Duration(offset) * e.repairSpacing).UnixMilli()
		}

		entry := buildEntry(reading, timestamp, geom)
		path := EntryPath(deviceType, deviceID, key)

		wg.Add(1)
		go func() {
			defer wg.Done()

			inserted, writeErr := e.store.SetIfAbsent(ctx, path, entry)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case writeErr != nil:
				result.Failed++
				if e.logger != nil {
					e.logger.Error("history entry write failed",
						"device_id", deviceID,
						"device_type", deviceType,
						"path", path,
						"error", writeErr,
					)
				}
			case !inserted:
				// A concurrent sync landed the same reading first.
				result.Skipped++
			default:
				result.Synced++
				e.mirrorEntry(deviceType, deviceID, &entry)
			}
		}()
	}

	wg.Wait()
	result.Skipped += preSkipped

	if e.mirror != nil {
		e.mirror.WriteSyncMetric(deviceType, deviceID, result.Synced, result.Skipped, result.Failed)
	}

	return result
}

// existingKeys loads the dedup keys of all stored entries for a device.
func (e *SyncEngine) existingKeys(ctx context.Context, deviceType, deviceID string) (map[string]bool, error) {
	children, err := e.store.Children(ctx, HistoryPath(deviceType, deviceID))
	if err != nil {
		return nil, err
	}

	keys := make(map[string]bool, len(children))
	for childKey, raw := range children {
		// The storage key occupies its path regardless of content.
		keys[childKey] = true

		var entry Entry
		if err := entry.UnmarshalJSON(raw); err != nil {
			continue
		}
		// Entries written before timestamp repair may live under a key
		// derived from different raw values; recompute to cover both.
		keys[DedupKey(entry.originalRaw(), entry.Distance)] = true
	}

	return keys, nil
}

// buildEntry assembles the persisted entry for one reading.
func buildEntry(reading RawReading, timestamp int64, geom *tank.Geometry) Entry {
	entry := Entry{
		Timestamp:         timestamp,
		Date:              formatDate(timestamp),
		OriginalTimestamp: reading.Timestamp,
		DeviceTimestamp:   reading.Timestamp,
		Distance:          reading.Distance,
		Extra:             reading.Extra,
	}

	if reading.Distance != nil {
		entry.DistanceMeters = strconv.FormatFloat(*reading.Distance, 'f', 1, 64)
		entry.DistanceCM = strconv.FormatFloat(*reading.Distance*100, 'f', 1, 64)
	}

	if geom != nil && reading.Distance != nil {
		level := geom.WaterLevelFromDistance(*reading.Distance)
		volume := math.Round(geom.Volume(level))

		entry.WaterLevel = &level
		entry.CurrentVolume = &volume
		entry.Capacity = floatPtr(geom.Capacity)
		entry.Shape = string(geom.Shape)
		entry.Diameter = floatPtr(geom.Diameter)
		entry.Length = floatPtr(geom.Length)
		entry.Breadth = floatPtr(geom.Breadth)
		entry.Height = floatPtr(geom.Height)
		entry.SensorHeight = floatPtr(geom.SensorHeight)
	}

	return entry
}

// mirrorEntry forwards derived metrics to the telemetry mirror.
// Called with the result mutex held; the mirror write is non-blocking.
func (e *SyncEngine) mirrorEntry(deviceType, deviceID string, entry *Entry) {
	if e.mirror == nil {
		return
	}

	fields := make(map[string]any, 3)
	if entry.Distance != nil {
		fields["distance_m"] = *entry.Distance
	}
	if entry.WaterLevel != nil {
		fields["water_level_m"] = *entry.WaterLevel
	}
	if entry.CurrentVolume != nil {
		fields["volume_l"] = *entry.CurrentVolume
	}
	if len(fields) == 0 {
		return
	}

	e.mirror.WriteHistoryPoint(deviceType, deviceID, fields, time.UnixMilli(entry.Timestamp).UTC())
}

// rawOrZero treats an absent raw timestamp as epoch zero for sorting.
func rawOrZero(raw *float64) float64 {
	if raw == nil {
		return 0
	}
	return *raw
}

// floatPtr copies a value to the heap for optional entry fields.
func floatPtr(value float64) *float64 {
	return &value
}
