// Package influxdb provides InfluxDB connectivity for Tanklog Core.
//
// It wraps the official influxdb-client-go v2 library with Tanklog-specific
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package mirrors the durable history store into a time-series
// database for dashboarding:
//   - Derived tank metrics (water level, volume) per synced entry
//   - Sync batch outcomes for ingestion monitoring
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "tanklog",
//	    Bucket: "metrics",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Mirror a synced entry's derived metrics
//	client.WriteHistoryPoint("tanks", "tank-main",
//	    map[string]any{"water_level_m": 2.5, "volume_l": 7854.0}, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
