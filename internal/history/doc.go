// Package history implements the telemetry history core: timestamp
// normalization, idempotent batch sync, and read-side queries.
//
// Device collectors forward raw readings whose timestamps are
// unit-ambiguous (epoch seconds, epoch milliseconds, or a boot-relative
// counter). NormalizeTimestamp reconstructs canonical epoch milliseconds
// where possible; the SyncEngine synthesizes plausible timestamps for the
// rest so that every stored entry is chartable.
//
// Storage is append-only and content-addressed: each reading's raw
// (timestamp, distance) pair yields a path-safe dedup key, and writes are
// atomic insert-if-absent. Syncing the same batch twice is therefore a
// no-op, which lets collectors retry freely.
//
// The QueryEngine re-derives effective timestamps at read time, applies
// optional date-range filtering (only when the data carries real clock
// values), and returns entries newest first.
package history
