package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/shared"
)

const jobColumns = `
	id, sequence, source_tenant, source_fingerprint, dest_tenant, dest_fingerprint,
	options, status, plan, overall, current_operation, categories, error,
	created_at, updated_at, completed_at`

const terminalStatuses = `('completed', 'failed', 'cancelled')`

// liveLeaseQuery selects the non-terminal jobs of a destination whose lease
// has not expired. Arguments: destination tenant, now in unix milliseconds.
const liveLeaseQuery = `SELECT id FROM jobs
	WHERE dest_tenant = ? AND status NOT IN ` + terminalStatuses + ` AND lease_expires_at > ?`

// JobRepository implements models.Repository[*models.MigrationJob] and the job error log.
type JobRepository struct {
	db *sql.DB
}

var _ models.Repository[*models.MigrationJob] = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository with the given database connection
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job with a generated ID (unless one is set) and sequence.
// The job is not leased: [JobRepository.Reclaim] may take it over at any time.
func (r *JobRepository) Create(job *models.MigrationJob) error {
	return r.insert(job, "", time.Time{})
}

// CreateLeased inserts a job held by owner until the lease expires. It fails
// with [shared.ErrDestinationBusy] while another job with a live lease targets
// the same destination tenant. The check and the insert are one statement, so
// engines sharing the database cannot both win.
func (r *JobRepository) CreateLeased(job *models.MigrationJob, owner string, until time.Time) error {
	if owner == "" {
		return fmt.Errorf("%w: lease owner is required", shared.ErrInvalidInput)
	}
	return r.insert(job, owner, until)
}

func (r *JobRepository) insert(job *models.MigrationJob, owner string, until time.Time) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "jobs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	job.SetSequence(sequence)
	if job.ID() == "" {
		job.SetID(shared.GenerateID())
	}

	row, err := encodeJob(job)
	if err != nil {
		return err
	}

	dest := job.Destination().TenantID
	args := []any{
		job.ID(), sequence,
		job.Source().TenantID, job.Source().KeyFingerprint,
		dest, job.Destination().KeyFingerprint,
		row.options, string(job.Status()), row.plan, job.Overall(), job.CurrentOperation(),
		row.categories, job.ErrorMessage(),
		job.CreatedAt(), job.UpdatedAt(), row.completedAt,
		owner, leaseMillis(until),
	}

	placeholders := `?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?`
	query := `INSERT INTO jobs (` + jobColumns + `, owner, lease_expires_at) VALUES (` + placeholders + `)`
	if owner != "" {
		query = `INSERT INTO jobs (` + jobColumns + `, owner, lease_expires_at)
			SELECT ` + placeholders + `
			WHERE NOT EXISTS (` + liveLeaseQuery + `)`
		args = append(args, dest, time.Now().UnixMilli())
	}

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var holder string
	err = r.db.QueryRow(liveLeaseQuery+` ORDER BY sequence DESC LIMIT 1`, dest, time.Now().UnixMilli()).Scan(&holder)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check destination: %w", err)
	}
	return fmt.Errorf("%w: %s is in use by job %s", shared.ErrDestinationBusy, dest, holder)
}

// Get retrieves a job by ID.
func (r *JobRepository) Get(id string) (*models.MigrationJob, error) {
	row := r.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}
	return job, err
}

// Update persists the job's status and progress. Rows already in a terminal
// status are never rewritten.
func (r *JobRepository) Update(job *models.MigrationJob) error {
	return r.update(job, "")
}

// Reclaim persists job on behalf of an engine whose lease on it expired
// before now. It fails with [shared.ErrJobLeased] while the lease is live.
func (r *JobRepository) Reclaim(job *models.MigrationJob, now time.Time) error {
	return r.update(job, " AND lease_expires_at <= ?", now.UnixMilli())
}

// RenewLease extends owner's lease on a non-terminal job.
func (r *JobRepository) RenewLease(id, owner string, until time.Time) error {
	result, err := r.db.Exec(`
		UPDATE jobs SET lease_expires_at = ?
		WHERE id = ? AND owner = ? AND status NOT IN `+terminalStatuses,
		leaseMillis(until), id, owner,
	)
	if err != nil {
		return fmt.Errorf("failed to renew lease: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: job %s is not held by %s", shared.ErrJobTerminal, id, owner)
	}
	return nil
}

func (r *JobRepository) update(job *models.MigrationJob, cond string, condArgs ...any) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	row, err := encodeJob(job)
	if err != nil {
		return err
	}

	query := `
		UPDATE jobs
		SET status = ?, plan = ?, overall = ?, current_operation = ?, categories = ?,
			error = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND status NOT IN ` + terminalStatuses + cond

	args := append([]any{
		string(job.Status()), row.plan, job.Overall(), job.CurrentOperation(), row.categories,
		job.ErrorMessage(), job.UpdatedAt(), row.completedAt,
		job.ID(),
	}, condArgs...)

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var status string
	err = r.db.QueryRow(`SELECT status FROM jobs WHERE id = ?`, job.ID()).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", shared.ErrJobNotFound, job.ID())
	}
	if err != nil {
		return fmt.Errorf("failed to check job: %w", err)
	}
	if models.JobStatus(status).Terminal() {
		return fmt.Errorf("%w: job %s is %s", shared.ErrJobTerminal, job.ID(), status)
	}
	return fmt.Errorf("%w: job %s", shared.ErrJobLeased, job.ID())
}

// leaseMillis encodes a lease deadline. The zero time is an expired lease.
func leaseMillis(until time.Time) int64 {
	if until.IsZero() {
		return 0
	}
	return until.UnixMilli()
}

// List retrieves jobs newest first.
//
// Supported criteria: "status" (models.JobStatus or string), "destination"
// (destination tenant id), "active" (true for non-terminal jobs only),
// "expired" (time.Time; non-terminal jobs whose lease ended by then) and
// "limit" (int).
func (r *JobRepository) List(criteria map[string]any) ([]*models.MigrationJob, error) {
	var (
		where []string
		args  []any
	)

	switch status := criteria["status"].(type) {
	case models.JobStatus:
		where, args = append(where, "status = ?"), append(args, string(status))
	case string:
		if status != "" {
			where, args = append(where, "status = ?"), append(args, status)
		}
	}

	if dest, ok := criteria["destination"].(string); ok && dest != "" {
		where, args = append(where, "dest_tenant = ?"), append(args, dest)
	}

	if active, ok := criteria["active"].(bool); ok && active {
		where = append(where, "status NOT IN "+terminalStatuses)
	}

	if now, ok := criteria["expired"].(time.Time); ok {
		where = append(where, "status NOT IN "+terminalStatuses, "lease_expires_at <= ?")
		args = append(args, now.UnixMilli())
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.MigrationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return jobs, nil
}

type encodedJob struct {
	options     string
	plan        string
	categories  string
	completedAt any
}

func encodeJob(job *models.MigrationJob) (encodedJob, error) {
	options, err := json.Marshal(job.Options())
	if err != nil {
		return encodedJob{}, fmt.Errorf("failed to encode options: %w", err)
	}
	plan := job.Plan()
	if plan == nil {
		plan = []models.Category{}
	}
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return encodedJob{}, fmt.Errorf("failed to encode plan: %w", err)
	}
	categories, err := json.Marshal(job.Progress().Categories)
	if err != nil {
		return encodedJob{}, fmt.Errorf("failed to encode categories: %w", err)
	}

	var completedAt any
	if done := job.CompletedAt(); done != nil {
		completedAt = *done
	}

	return encodedJob{
		options:     string(options),
		plan:        string(planJSON),
		categories:  string(categories),
		completedAt: completedAt,
	}, nil
}

// scanJob scans one row selected with jobColumns into a [models.MigrationJob]
func scanJob(s scanner) (*models.MigrationJob, error) {
	var (
		v           models.JobView
		status      string
		options     string
		plan        string
		categories  string
		completedAt sql.NullTime
	)

	err := s.Scan(
		&v.ID, &v.Sequence,
		&v.SourceAccount.TenantID, &v.SourceAccount.KeyFingerprint,
		&v.DestinationAccount.TenantID, &v.DestinationAccount.KeyFingerprint,
		&options, &status, &plan, &v.Progress.Overall, &v.Progress.CurrentOperation,
		&categories, &v.Error,
		&v.CreatedAt, &v.UpdatedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	if err := json.Unmarshal([]byte(options), &v.Options); err != nil {
		return nil, fmt.Errorf("failed to decode options of job %s: %w", v.ID, err)
	}
	if err := json.Unmarshal([]byte(plan), &v.Plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan of job %s: %w", v.ID, err)
	}
	if err := json.Unmarshal([]byte(categories), &v.Progress.Categories); err != nil {
		return nil, fmt.Errorf("failed to decode progress of job %s: %w", v.ID, err)
	}

	v.Status = models.JobStatus(status)
	if completedAt.Valid {
		done := completedAt.Time
		v.CompletedAt = &done
	}
	return models.JobFromView(v), nil
}

// AppendErrors adds entries to the error log in one transaction.
func (r *JobRepository) AppendErrors(entries []models.RecordError) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO job_errors (job_id, category, record_id, phase, message, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare error insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		occurred := e.OccurredAt
		if occurred.IsZero() {
			occurred = time.Now().UTC()
		}
		if _, err := stmt.Exec(e.JobID, string(e.Category), e.RecordID, string(e.Phase), e.Message, occurred); err != nil {
			return fmt.Errorf("failed to insert error for job %s: %w", e.JobID, err)
		}
	}

	return tx.Commit()
}

// ListErrors returns the error log of a job in insertion order. A limit of 0 returns every entry.
func (r *JobRepository) ListErrors(jobID string, limit int) ([]models.RecordError, error) {
	query := `
		SELECT job_id, category, record_id, phase, message, occurred_at
		FROM job_errors WHERE job_id = ? ORDER BY id`
	args := []any{jobID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query job errors: %w", err)
	}
	defer rows.Close()

	var entries []models.RecordError
	for rows.Next() {
		var (
			e        models.RecordError
			category string
			phase    string
		)
		if err := rows.Scan(&e.JobID, &category, &e.RecordID, &phase, &e.Message, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan job error: %w", err)
		}
		e.Category = models.Category(category)
		e.Phase = models.Phase(phase)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

// CountErrors returns the number of error log entries of a job.
func (r *JobRepository) CountErrors(jobID string) (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM job_errors WHERE job_id = ?`, jobID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count job errors: %w", err)
	}
	return n, nil
}
