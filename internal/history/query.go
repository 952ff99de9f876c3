package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dmcgarry/tanklog-core/internal/store"
)

// QueryEngine reads stored history back out, repairing timestamps on the
// way and applying optional date-range filtering.
type QueryEngine struct {
	store  store.Store
	logger Logger

	now func() time.Time
}

// NewQueryEngine creates a query engine over the given store.
func NewQueryEngine(st store.Store) *QueryEngine {
	return &QueryEngine{
		store: st,
		now:   time.Now,
	}
}

// SetLogger sets an optional logger for malformed-entry diagnostics.
func (e *QueryEngine) SetLogger(logger Logger) {
	e.logger = logger
}

// Query returns a device's history, newest first.
//
// Each entry's effective timestamp is re-derived at read time: the stored
// canonical timestamp is preferred, then the raw device timestamps, then
// the stored value as-is, and finally the current time. An entry is never
// dropped for having an unusable timestamp.
//
// When start or end is non-nil the result is filtered to [start, end+24h),
// so an end date given as midnight includes that whole day. Filtering is
// skipped entirely when no entry carries a plausible timestamp: a fully
// repaired dataset is returned whole rather than silently emptied.
//
// Ordering is two-tier: entries whose raw device timestamp is a small
// boot-relative counter (below the plausibility floor) sort among
// themselves by that counter, everything else by effective timestamp,
// both descending.
func (e *QueryEngine) Query(ctx context.Context, deviceID, deviceType string, start, end *time.Time) ([]Entry, error) {
	children, err := e.store.Children(ctx, HistoryPath(deviceType, deviceID))
	if err != nil {
		return nil, fmt.Errorf("loading history for %s/%s: %w", deviceType, deviceID, err)
	}
	if len(children) == 0 {
		return []Entry{}, nil
	}

	entries := make([]Entry, 0, len(children))
	for childKey, raw := range children {
		var entry Entry
		if err := entry.UnmarshalJSON(raw); err != nil {
			if e.logger != nil {
				e.logger.Warn("skipping malformed history entry",
					"device_id", deviceID,
					"device_type", deviceType,
					"key", childKey,
					"error", err,
				)
			}
			continue
		}

		timestamp := e.effectiveTimestamp(&entry)
		entry.Timestamp = timestamp
		entry.Date = formatDate(timestamp)
		entries = append(entries, entry)
	}

	hasValid := false
	for i := range entries {
		if entries[i].Timestamp >= Year2000Ms {
			hasValid = true
			break
		}
	}

	if hasValid && (start != nil || end != nil) {
		filtered := entries[:0]
		for _, entry := range entries {
			if start != nil && entry.Timestamp < start.UnixMilli() {
				continue
			}
			if end != nil && entry.Timestamp >= end.Add(24*time.Hour).UnixMilli() {
				continue
			}
			filtered = append(filtered, entry)
		}
		entries = filtered
	}

	sort.SliceStable(entries, func(i, j int) bool {
		ci, iOK := counterKey(&entries[i])
		cj, jOK := counterKey(&entries[j])
		if iOK && jOK {
			return ci > cj
		}
		return entries[i].Timestamp > entries[j].Timestamp
	})

	return entries, nil
}

// effectiveTimestamp re-derives an entry's canonical timestamp at read
// time, falling back through progressively weaker sources.
func (e *QueryEngine) effectiveTimestamp(entry *Entry) int64 {
	if ts, ok := NormalizeTimestamp(float64(entry.Timestamp)); ok {
		return ts
	}
	if entry.OriginalTimestamp != nil {
		if ts, ok := NormalizeTimestamp(*entry.OriginalTimestamp); ok {
			return ts
		}
	}
	if entry.DeviceTimestamp != nil {
		if ts, ok := NormalizeTimestamp(*entry.DeviceTimestamp); ok {
			return ts
		}
	}
	if entry.Timestamp > 0 {
		return entry.Timestamp
	}
	return e.now().UnixMilli()
}

// counterKey reports whether an entry's raw device timestamp is a small
// boot-relative counter, and if so returns it as the sort key.
func counterKey(entry *Entry) (float64, bool) {
	raw := entry.originalRaw()
	if raw == nil {
		return 0, false
	}
	if *raw > 0 && *raw < MinPlausibleRaw {
		return *raw, true
	}
	return 0, false
}
