// Package tasks implements the tenant migration engine.
//
// # Components
//
//   - [Validator] : probes a source and destination account concurrently
//   - [Analyzer] : counts every category of a source tenant with bounded fan-out
//   - [Plan] : orders the selected categories against the fixed dependency graph
//   - [TransferUnit] : exports one category page by page and upserts each record into the destination
//   - [Engine] : owns the job lifecycle, runs categories strictly in plan order and persists progress
//   - [History] : read-only summaries over the job store
//   - [BackupExporter] : full, destination-less export into a [models.Snapshot]
//
// # Ownership
//
// The [Engine] goroutine running a job is the only writer of that job. Every progress change is
// written to the job store before the engine continues, and status readers only ever see copies
// loaded from the store.
//
// # Faults
//
// [Classify] sorts errors into account-level, transient and per-record faults. Transient faults are
// retried with exponential backoff; when retries run out they count as per-record failures. Only
// account-level faults end a job as failed.
//
// # Progress Reporting
//
// Long-running operations that are not jobs (analysis, backup) report through [ProgressUpdate]
// channels. Updates use select with default so a slow reader never blocks the work.
package tasks
