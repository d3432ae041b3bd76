// Package repositories implements the SQLite job store.
//
// Key Implementations:
//   - [JobRepository] : Migration jobs with their progress snapshot, plus the per-record error log
//
// Jobs are append-only: there is no delete path, and a row whose status is terminal
// refuses further updates. Writes are synchronous, so a status read issued after a
// write returns observes it.
//
// Sequence numbers provide stable, human-readable ordering (job #42) independent of UUIDs and
// timestamps. The [NextSequence] function atomically increments per-table sequence counters in
// dedicated sequence tables.
package repositories
