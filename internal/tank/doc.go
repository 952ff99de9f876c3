// Package tank models tank devices and their geometry.
//
// This package provides:
//   - The closed Shape set (cylinder, cuboid, other) with a mandatory
//     interpolation fallback for unrecognised shapes
//   - Pure volume and water-level calculations used by the history sync
//     engine to derive physical quantities from distance readings
//   - A SQLite repository for per-device tank configuration
//
// Geometry is read-only from the history pipeline's point of view: sync
// snapshots the dimensions onto each persisted entry, so editing a tank
// never retroactively changes historical volumes.
package tank
