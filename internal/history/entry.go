package history

import (
	"encoding/json"
	"time"
)

// RawReading is a single reading as received from a device collector.
//
// Timestamp and Distance are pointers because devices legitimately omit
// either field; absence and zero mean different things to the sync engine.
// Any other field the collector sent is preserved verbatim in Extra and
// carried onto the persisted entry.
type RawReading struct {
	// Timestamp is the raw device timestamp, unit-ambiguous (seconds,
	// milliseconds, or a relative counter). Nil when the device sent none.
	Timestamp *float64

	// Distance is the measured distance to the water surface in metres.
	Distance *float64

	// Extra holds any additional fields from the collector payload.
	Extra map[string]any
}

// rawReadingKnownKeys are the JSON keys lifted into typed fields.
var rawReadingKnownKeys = []string{"timestamp", "distance"}

// UnmarshalJSON decodes a reading, lifting timestamp and distance into
// typed fields and keeping every other key in Extra.
func (r *RawReading) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	r.Timestamp = numberField(fields, "timestamp")
	r.Distance = numberField(fields, "distance")

	for _, key := range rawReadingKnownKeys {
		delete(fields, key)
	}
	if len(fields) > 0 {
		r.Extra = fields
	} else {
		r.Extra = nil
	}

	return nil
}

// MarshalJSON encodes a reading with Extra fields flattened alongside the
// typed ones.
func (r RawReading) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(r.Extra)+2)
	for key, value := range r.Extra {
		fields[key] = value
	}
	if r.Timestamp != nil {
		fields["timestamp"] = *r.Timestamp
	}
	if r.Distance != nil {
		fields["distance"] = *r.Distance
	}
	return json.Marshal(fields)
}

// Entry is one persisted history record for a device.
//
// Known fields are explicit; anything else the reading carried lives in
// Extra and is flattened back into the JSON document on write, so unknown
// collector fields survive a round trip through storage.
type Entry struct {
	// Timestamp is the canonical millisecond epoch, possibly synthesized
	// by the repair heuristic. Never zero on a persisted entry.
	Timestamp int64 `json:"timestamp"`

	// Date is the ISO-8601 rendering of Timestamp.
	Date string `json:"date"`

	// OriginalTimestamp and DeviceTimestamp both preserve the raw input
	// timestamp for traceability and dedup-key recomputation.
	OriginalTimestamp *float64 `json:"originalTimestamp,omitempty"`
	DeviceTimestamp   *float64 `json:"deviceTimestamp,omitempty"`

	// Distance is the raw measured distance in metres.
	Distance *float64 `json:"distance,omitempty"`

	// DistanceMeters and DistanceCM are one-decimal renderings.
	DistanceMeters string `json:"distance_meters,omitempty"`
	DistanceCM     string `json:"distance_cm,omitempty"`

	// Derived tank metrics, present only when a tank context was supplied
	// at sync time. The geometry fields are a point-in-time snapshot so
	// later tank edits never alter historical volumes.
	WaterLevel    *float64 `json:"waterLevel,omitempty"`
	CurrentVolume *float64 `json:"currentVolume,omitempty"`
	Capacity      *float64 `json:"capacity,omitempty"`
	Shape         string   `json:"shape,omitempty"`
	Diameter      *float64 `json:"diameter,omitempty"`
	Length        *float64 `json:"length,omitempty"`
	Breadth       *float64 `json:"breadth,omitempty"`
	Height        *float64 `json:"height,omitempty"`
	SensorHeight  *float64 `json:"sensorHeight,omitempty"`

	// Extra holds unrecognised reading fields, flattened into the JSON
	// document alongside the known ones.
	Extra map[string]any `json:"-"`
}

// entryAlias avoids MarshalJSON/UnmarshalJSON recursion.
type entryAlias Entry

// entryKnownKeys are the JSON keys owned by typed Entry fields.
var entryKnownKeys = []string{
	"timestamp", "date", "originalTimestamp", "deviceTimestamp",
	"distance", "distance_meters", "distance_cm",
	"waterLevel", "currentVolume", "capacity", "shape",
	"diameter", "length", "breadth", "height", "sensorHeight",
}

// MarshalJSON flattens Extra alongside the typed fields. Typed fields win
// on key collision.
func (e Entry) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(entryAlias(e))
	if err != nil {
		return nil, err
	}

	if len(e.Extra) == 0 {
		return known, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for key, value := range e.Extra {
		if _, owned := fields[key]; !owned {
			fields[key] = value
		}
	}

	return json.Marshal(fields)
}

// UnmarshalJSON decodes the typed fields and collects everything else
// into Extra.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var alias entryAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*e = Entry(alias)

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for _, key := range entryKnownKeys {
		delete(fields, key)
	}
	if len(fields) > 0 {
		e.Extra = fields
	} else {
		e.Extra = nil
	}

	return nil
}

// originalRaw returns the raw timestamp the dedup key was derived from:
// originalTimestamp, falling back to deviceTimestamp, falling back to the
// canonical timestamp. Historical entries written before the traceability
// fields existed only carry the canonical value.
func (e *Entry) originalRaw() *float64 {
	if e.OriginalTimestamp != nil {
		return e.OriginalTimestamp
	}
	if e.DeviceTimestamp != nil {
		return e.DeviceTimestamp
	}
	if e.Timestamp != 0 {
		raw := float64(e.Timestamp)
		return &raw
	}
	return nil
}

// formatDate renders a canonical millisecond timestamp as ISO-8601 UTC.
func formatDate(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// numberField extracts an optional numeric JSON field.
func numberField(fields map[string]any, key string) *float64 {
	value, ok := fields[key]
	if !ok {
		return nil
	}
	number, ok := value.(float64)
	if !ok {
		return nil
	}
	return &number
}
