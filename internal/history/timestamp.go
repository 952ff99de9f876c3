package history

// Timestamp plausibility boundaries.
const (
	// MinPlausibleRaw is the smallest raw value that could be an epoch
	// timestamp at all. Anything below it is a relative device counter
	// (seconds since boot, sample index) rather than wall-clock time.
	MinPlausibleRaw = 1_000_000

	// Year2000Ms is 2000-01-01T00:00:00Z in millisecond epoch. It is the
	// discriminant between plausible wall-clock time and garbage: no
	// deployed device predates it.
	Year2000Ms = 946_684_800_000
)

// NormalizeTimestamp converts a raw, unit-ambiguous device timestamp into a
// canonical millisecond epoch.
//
// Device firmware emits timestamps in inconsistent units (seconds vs.
// milliseconds) or as monotonic counters. The heuristic:
//   - raw below MinPlausibleRaw: a relative counter, invalid
//   - raw below Year2000Ms: assume seconds, multiply by 1000 and accept
//     only if the result lands at or after year 2000
//   - raw at or above Year2000Ms: already canonical milliseconds
//
// The function is pure and total: it reports (0, false) for every value it
// cannot map to a canonical timestamp and never produces a value in
// (0, Year2000Ms).
func NormalizeTimestamp(raw float64) (int64, bool) {
	if raw < MinPlausibleRaw {
		return 0, false
	}

	if raw < Year2000Ms {
		ms := int64(raw * 1000)
		if ms >= Year2000Ms {
			return ms, true
		}
		return 0, false
	}

	return int64(raw), true
}
