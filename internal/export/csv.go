package export

import (
	"encoding/csv"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dmcgarry/tanklog-core/internal/history"
)

// ErrNoEntries is returned when an export is requested for an empty
// history slice. Callers should surface it as a notice, not a failure.
var ErrNoEntries = errors.New("export: no entries to export")

// MIMEType is the content type of a rendered export.
const MIMEType = "text/csv"

// tankHeader is the column schema for tank devices.
var tankHeader = []string{
	"Date",
	"Distance (m)",
	"Distance (cm)",
	"Water Level (m)",
	"Volume (L)",
	"Capacity (L)",
}

// deviceHeader is the column schema for every other device type.
var deviceHeader = []string{
	"Date",
	"Device Timestamp",
	"Distance (m)",
}

// SafeNumber renders an optional numeric value with fixed decimals.
// Nil, NaN, and infinite values render as the empty string so that
// non-finite garbage never reaches the output.
func SafeNumber(value *float64, decimals int) string {
	if value == nil {
		return ""
	}
	if math.IsNaN(*value) || math.IsInf(*value, 0) {
		return ""
	}
	return strconv.FormatFloat(*value, 'f', decimals, 64)
}

// ToRows renders history entries into rows for the device type's column
// schema, header first. Pure; no I/O.
func ToRows(entries []history.Entry, deviceType string) [][]string {
	if deviceType == "tanks" {
		rows := make([][]string, 0, len(entries)+1)
		rows = append(rows, tankHeader)
		for i := range entries {
			entry := &entries[i]
			var distanceCM *float64
			if entry.Distance != nil {
				cm := *entry.Distance * 100
				distanceCM = &cm
			}
			rows = append(rows, []string{
				entry.Date,
				SafeNumber(entry.Distance, 2),
				SafeNumber(distanceCM, 1),
				SafeNumber(entry.WaterLevel, 2),
				SafeNumber(entry.CurrentVolume, 0),
				SafeNumber(entry.Capacity, 0),
			})
		}
		return rows
	}

	rows := make([][]string, 0, len(entries)+1)
	rows = append(rows, deviceHeader)
	for i := range entries {
		entry := &entries[i]
		raw := entry.DeviceTimestamp
		if raw == nil {
			raw = entry.OriginalTimestamp
		}
		rows = append(rows, []string{
			entry.Date,
			SafeNumber(raw, 0),
			SafeNumber(entry.Distance, 2),
		})
	}
	return rows
}

// Write renders entries as CSV onto w. Returns ErrNoEntries for an empty
// slice so callers can show a notice instead of an empty file.
func Write(w io.Writer, entries []history.Entry, deviceType string) error {
	if len(entries) == 0 {
		return ErrNoEntries
	}

	writer := csv.NewWriter(w)
	if err := writer.WriteAll(ToRows(entries, deviceType)); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// Filename derives a download filename from a device name: unsafe
// characters collapse to underscores and a timestamp suffix keeps
// repeated exports distinct.
func Filename(deviceName string, now time.Time) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(deviceName))

	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "device"
	}

	return sanitized + "_history_" + now.UTC().Format("20060102_150405") + ".csv"
}
