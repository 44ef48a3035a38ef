// Package store provides SQLite-backed storage for KILN run statistics.
//
// Tables:
//   - sessions: one row per engine run, keyed by the engine's session ID
//   - frame_stats: the once-per-second Stats snapshots of a session
//   - lifecycle: module constructions and destructions, in order
//
// # Ordering
//
// Reads are deterministic: frame_stats ORDER BY frame, lifecycle ORDER BY
// seq, sessions ORDER BY id (UUIDv7, so start order). seq is assigned by
// the Recorder, never taken from wall time.
//
// # Connection
//
// Open uses a single connection in WAL mode with a 5s busy timeout, so
// `kiln stats` can read a database that a running `kiln run` is still
// writing. Foreign keys are enforced; deleting a session cascades.
package store
