// Package api implements the HTTP REST API for Tanklog Core.
//
// This package provides:
//   - History endpoints (query, batch sync, CSV export) per device
//   - Tank registry CRUD for geometry configuration
//   - Health endpoint reporting component status
//   - Middleware stack (request ID, logging, recovery, CORS, body limits)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server is the pull-side counterpart to the MQTT ingestion
// bridge: collectors that cannot reach the broker POST batches to the
// sync endpoint, and dashboards read filtered history or download CSV
// exports. Both paths share the same engines, so sync stays idempotent
// regardless of transport.
//
// # Graceful Degradation
//
// The server operates without MQTT or InfluxDB; those components only
// affect the health report.
package api
