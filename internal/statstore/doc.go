// Package statstore provides SQLite-backed durable storage for engine run
// statistics.
//
// The schema is an append-only log:
//   - Runs: One row per engine session, with the final profiler snapshot
//   - Evaluations: One row per Jacobian evaluation within a run
//   - Mode Events: One row per mode-change notification within a run
//
// # Critical Patterns
//
// CP-1: Sequence-Level Idempotency
//   - UNIQUE(run_id, seq) constraints on evaluations and mode_events
//   - Replaying a trace into the same run is a no-op, never a duplicate
//
// CP-2: Logical Identity and Ordering
//   - Run IDs are UUIDv7 (time-sortable); per-run ordering uses seq INTEGER
//   - Simulation time is data, never an ordering key
//
// CP-3: Deterministic Query Results
//   - All list queries include: ORDER BY seq ASC, id ASC (or the run
//     equivalent) so identical databases yield identical reports
//
// # Database Configuration
//
//   - journal_mode=WAL so readers never block the single writer
//   - synchronous=NORMAL, the usual WAL durability trade
//   - busy_timeout=5000 to ride out short lock contention
//   - foreign_keys=ON, cascade deletes depend on it
//
// Profiler snapshots are flattened into scalar columns on the runs row;
// per-kind mode counts are stored as a sorted-key JSON object.
package statstore
