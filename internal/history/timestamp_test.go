package history

import "testing"

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		name      string
		raw       float64
		want      int64
		wantValid bool
	}{
		{
			name:      "epoch milliseconds pass through",
			raw:       1_700_000_000_000,
			want:      1_700_000_000_000,
			wantValid: true,
		},
		{
			name:      "millennium boundary in milliseconds",
			raw:       946_684_800_000,
			want:      946_684_800_000,
			wantValid: true,
		},
		{
			name:      "epoch seconds converted to milliseconds",
			raw:       1_700_000_000,
			want:      1_700_000_000_000,
			wantValid: true,
		},
		{
			name:      "millennium boundary in seconds",
			raw:       946_684_800,
			want:      946_684_800_000,
			wantValid: true,
		},
		{
			name:      "fractional seconds keep sub-second precision",
			raw:       1_700_000_000.5,
			want:      1_700_000_000_500,
			wantValid: true,
		},
		{
			name:      "boot counter rejected",
			raw:       4512,
			wantValid: false,
		},
		{
			name:      "zero rejected",
			raw:       0,
			wantValid: false,
		},
		{
			name:      "negative rejected",
			raw:       -5,
			wantValid: false,
		},
		{
			name:      "just below plausibility floor rejected",
			raw:       999_999,
			wantValid: false,
		},
		{
			name:      "pre-2000 seconds value rejected",
			raw:       500_000_000,
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, valid := NormalizeTimestamp(tt.raw)
			if valid != tt.wantValid {
				t.Fatalf("NormalizeTimestamp(%v) valid = %v, want %v", tt.raw, valid, tt.wantValid)
			}
			if valid && got != tt.want {
				t.Errorf("NormalizeTimestamp(%v) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

// Any raw value the normalizer accepts must land at or after the year
// 2000; anything it rejects must be handled by repair, never dropped.
func TestNormalizeTimestamp_ValidImpliesPlausible(t *testing.T) {
	inputs := []float64{
		1, 999_999, 1_000_000, 500_000_000, 946_684_799,
		946_684_800, 946_684_800_000, 1_700_000_000, 1_700_000_000_000,
		2_000_000_000_000,
	}

	for _, raw := range inputs {
		got, valid := NormalizeTimestamp(raw)
		if valid && got < Year2000Ms {
			t.Errorf("NormalizeTimestamp(%v) = %d accepted below year-2000 floor", raw, got)
		}
	}
}
