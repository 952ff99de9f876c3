package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteHistoryPoint mirrors a synced history entry's derived metrics.
//
// The sync engine calls this once per newly stored entry, timestamped with
// the entry's canonical timestamp, so repaired readings land at their
// repaired time rather than at write time. The write is non-blocking;
// points are batched and flushed asynchronously.
//
// Parameters:
//   - deviceType: The device category ("tanks", "valves")
//   - deviceID: Unique identifier for the device
//   - fields: Derived metrics (distance_m, water_level_m, volume_l)
//   - timestamp: The entry's canonical timestamp
func (c *Client) WriteHistoryPoint(deviceType, deviceID string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"device_history",
		map[string]string{
			"device_type": deviceType,
			"device_id":   deviceID,
		},
		fields,
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WriteSyncMetric records the outcome of one sync batch.
//
// The sync engine calls this once per batch. A rising skipped or failed
// count for one device usually means a misbehaving collector re-sending
// history it has already delivered, or a store problem.
//
// Parameters:
//   - deviceType: The device category
//   - deviceID: Device identifier
//   - synced: Entries written by the batch
//   - skipped: Duplicates or readings without a timestamp
//   - failed: Entries whose write failed
func (c *Client) WriteSyncMetric(deviceType, deviceID string, synced, skipped, failed int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sync_batches",
		map[string]string{
			"device_type": deviceType,
			"device_id":   deviceID,
		},
		map[string]any{
			"synced":  synced,
			"skipped": skipped,
			"failed":  failed,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
