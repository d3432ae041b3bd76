// Package models defines the domain entities and persistence interfaces for the tmx tenant migration engine.
//
// The package contains two categories of types:
//
// 1. Transient values: results computed on demand and never stored
//   - [AccountCredentials] : API key and tenant id for one platform account
//   - [ValidationResult] : Reachability and permission outcome for an account pair
//   - [AnalysisResult] : Per-category record counts and a duration estimate
//   - [Record] : One platform object moving between tenants
//   - [Snapshot] : A full, category-keyed backup of a source tenant
//
// 2. Persistent entities: Database-backed models owned by the job engine
//   - [MigrationJob] : The aggregate root tracking status and per-category progress
//   - [RecordError] : One error log entry for a record that failed to migrate
//
// [MigrationJob] implements the Model interface. The Repository[T] interface defines the
// storage operations the job store provides.
package models
