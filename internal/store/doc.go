// Package store provides the path-addressed document store backing device
// history.
//
// The store contract is deliberately narrow: get one document, list the
// direct children of a path, overwrite, and atomically insert-if-absent.
// There are no transactions and no range queries; the history engines fetch
// a device's whole subtree and filter in-process.
//
// Two implementations are provided:
//   - SQLiteStore: production store on the kv_entries table
//   - MemoryStore: in-process store for tests
package store
