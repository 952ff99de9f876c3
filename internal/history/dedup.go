package history

import (
	"strconv"
	"strings"
)

// DedupKey derives the stable identity key for a reading from its original
// timestamp and distance.
//
// The key doubles as the storage path segment for the entry and as the
// duplicate-detection key: two readings with an equal (timestamp, distance)
// pair are the same reading, regardless of any derived field. Absent values
// contribute "0". Dots in the rendered numbers are replaced because storage
// paths disallow them.
func DedupKey(originalTimestamp, distance *float64) string {
	return pathSafeNumber(originalTimestamp) + "_" + pathSafeNumber(distance)
}

// pathSafeNumber renders an optional number without characters that are
// illegal in storage paths.
func pathSafeNumber(value *float64) string {
	if value == nil {
		return "0"
	}
	rendered := strconv.FormatFloat(*value, 'f', -1, 64)
	return strings.ReplaceAll(rendered, ".", "-")
}
