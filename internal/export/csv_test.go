package export

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/dmcgarry/tanklog-core/internal/history"
)

func floatPtr(value float64) *float64 {
	return &value
}

func TestSafeNumber(t *testing.T) {
	tests := []struct {
		name     string
		value    *float64
		decimals int
		want     string
	}{
		{"nil", nil, 2, ""},
		{"nan", floatPtr(math.NaN()), 2, ""},
		{"positive infinity", floatPtr(math.Inf(1)), 2, ""},
		{"negative infinity", floatPtr(math.Inf(-1)), 2, ""},
		{"rounds to decimals", floatPtr(12.345), 1, "12.3"},
		{"pads to decimals", floatPtr(7), 2, "7.00"},
		{"zero decimals", floatPtr(7854.4), 0, "7854"},
		{"negative value", floatPtr(-1.5), 1, "-1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeNumber(tt.value, tt.decimals); got != tt.want {
				t.Errorf("SafeNumber(%v, %d) = %q, want %q", tt.value, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestToRows_TankSchema(t *testing.T) {
	entries := []history.Entry{{
		Timestamp:     1_700_000_000_000,
		Date:          "2023-11-14T22:13:20Z",
		Distance:      floatPtr(2.5),
		WaterLevel:    floatPtr(2.5),
		CurrentVolume: floatPtr(7854),
		Capacity:      floatPtr(15_000),
	}}

	rows := ToRows(entries, "tanks")
	if len(rows) != 2 {
		t.Fatalf("ToRows() returned %d rows, want header + 1", len(rows))
	}
	if rows[0][0] != "Date" || rows[0][4] != "Volume (L)" {
		t.Errorf("unexpected tank header: %v", rows[0])
	}

	want := []string{"2023-11-14T22:13:20Z", "2.50", "250.0", "2.50", "7854", "15000"}
	for i, cell := range want {
		if rows[1][i] != cell {
			t.Errorf("row cell %d = %q, want %q", i, rows[1][i], cell)
		}
	}
}

func TestToRows_DeviceSchema(t *testing.T) {
	entries := []history.Entry{{
		Date:            "2023-11-14T22:13:20Z",
		DeviceTimestamp: floatPtr(1_700_000_000),
		Distance:        floatPtr(1.8),
	}}

	rows := ToRows(entries, "valves")
	if len(rows) != 2 {
		t.Fatalf("ToRows() returned %d rows, want header + 1", len(rows))
	}
	if len(rows[0]) != 3 {
		t.Errorf("device header has %d columns, want 3", len(rows[0]))
	}

	want := []string{"2023-11-14T22:13:20Z", "1700000000", "1.80"}
	for i, cell := range want {
		if rows[1][i] != cell {
			t.Errorf("row cell %d = %q, want %q", i, rows[1][i], cell)
		}
	}
}

func TestToRows_MissingFieldsRenderEmpty(t *testing.T) {
	entries := []history.Entry{{Date: "2023-11-14T22:13:20Z"}}

	rows := ToRows(entries, "tanks")
	for i := 1; i < len(rows[1]); i++ {
		if rows[1][i] != "" {
			t.Errorf("cell %d = %q, want empty for missing field", i, rows[1][i])
		}
	}
}

func TestWrite(t *testing.T) {
	entries := []history.Entry{{
		Date:     "2023-11-14T22:13:20Z",
		Distance: floatPtr(2.5),
	}}

	var buf bytes.Buffer
	if err := Write(&buf, entries, "tanks"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("output has %d lines, want 2", len(lines))
	}
	if !strings.HasPrefix(lines[0], "Date,") {
		t.Errorf("header line = %q", lines[0])
	}
	if strings.Contains(buf.String(), "NaN") {
		t.Error("output must never contain NaN")
	}
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, nil, "tanks")
	if !errors.Is(err, ErrNoEntries) {
		t.Fatalf("Write(empty) error = %v, want ErrNoEntries", err)
	}
	if buf.Len() != 0 {
		t.Errorf("Write(empty) produced %d bytes, want none", buf.Len())
	}
}

func TestFilename(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		device string
		want   string
	}{
		{"plain name", "main-tank", "main-tank_history_20260801_123000.csv"},
		{"spaces and slashes", "Main Tank / North", "Main_Tank___North_history_20260801_123000.csv"},
		{"empty name", "  ", "device_history_20260801_123000.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Filename(tt.device, now); got != tt.want {
				t.Errorf("Filename(%q) = %q, want %q", tt.device, got, tt.want)
			}
		})
	}
}
