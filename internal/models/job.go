package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/desertthunder/tmx/internal/shared"
)

// JobStatus is the coarse lifecycle of a [MigrationJob].
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusValidating JobStatus = "validating"
	StatusExporting  JobStatus = "exporting"
	StatusImporting  JobStatus = "importing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

var transitions = map[JobStatus][]JobStatus{
	StatusPending:    {StatusValidating, StatusFailed},
	StatusValidating: {StatusExporting, StatusFailed},
	StatusExporting:  {StatusImporting, StatusFailed, StatusCancelled},
	StatusImporting:  {StatusCompleted, StatusFailed, StatusCancelled},
}

// Terminal reports whether s is completed, failed or cancelled.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	_, open := transitions[s]
	return open || s.Terminal()
}

// CanTransition reports whether the state machine allows s -> to.
func (s JobStatus) CanTransition(to JobStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// JobProgress is the read-only progress projection of a job.
type JobProgress struct {
	Overall          float64                       `json:"overall"`
	CurrentOperation string                        `json:"currentOperation"`
	Categories       map[Category]CategoryProgress `json:"categories"`
}

// MigrationJob is one execution of a migration from a source tenant to a destination tenant.
//
// Only the job engine mutates a job. Once the status is terminal every
// mutator returns [shared.ErrJobTerminal].
type MigrationJob struct {
	id               string
	sequence         int
	source           AccountRef
	destination      AccountRef
	options          MigrationOptions
	status           JobStatus
	plan             []Category
	overall          float64
	currentOperation string
	categories       map[Category]CategoryProgress
	errorMessage     string
	createdAt        time.Time
	updatedAt        time.Time
	completedAt      *time.Time
}

// NewMigrationJob creates a pending job. counts seeds the expected total of
// each selected category and may be nil.
func NewMigrationJob(source, destination AccountRef, options MigrationOptions, counts map[Category]int) *MigrationJob {
	now := time.Now().UTC()
	options = options.Clone()

	categories := make(map[Category]CategoryProgress, len(options.Categories))
	for _, c := range options.Categories {
		categories[c] = NewCategoryProgress(counts[c])
	}

	return &MigrationJob{
		source:      source,
		destination: destination,
		options:     options,
		status:      StatusPending,
		categories:  categories,
		createdAt:   now,
		updatedAt:   now,
	}
}

func (j *MigrationJob) ID() string { return j.id }
func (j *MigrationJob) Sequence() int { return j.sequence }
func (j *MigrationJob) Source() AccountRef { return j.source }
func (j *MigrationJob) Destination() AccountRef { return j.destination }
func (j *MigrationJob) Options() MigrationOptions { return j.options.Clone() }
func (j *MigrationJob) Status() JobStatus { return j.status }
func (j *MigrationJob) Overall() float64 { return j.overall }
func (j *MigrationJob) CurrentOperation() string { return j.currentOperation }
func (j *MigrationJob) ErrorMessage() string { return j.errorMessage }
func (j *MigrationJob) CreatedAt() time.Time { return j.createdAt }
func (j *MigrationJob) UpdatedAt() time.Time { return j.updatedAt }
func (j *MigrationJob) CompletedAt() *time.Time { return j.completedAt }
func (j *MigrationJob) IsTerminal() bool { return j.status.Terminal() }
func (j *MigrationJob) SetID(id string) { j.id = id }
func (j *MigrationJob) SetSequence(sequence int) { j.sequence = sequence }
func (j *MigrationJob) SetUpdatedAt(updated time.Time) { j.updatedAt = updated }

// Plan returns the execution order chosen for the job, or nil before planning.
func (j *MigrationJob) Plan() []Category {
	return append([]Category(nil), j.plan...)
}

// Categories returns the job's categories in plan order when a plan exists,
// otherwise in catalog order.
func (j *MigrationJob) Categories() []Category {
	if len(j.plan) > 0 {
		return j.Plan()
	}
	out := make([]Category, 0, len(j.categories))
	for _, c := range catalog {
		if _, ok := j.categories[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Category returns the progress of c.
func (j *MigrationJob) Category(c Category) (CategoryProgress, bool) {
	p, ok := j.categories[c]
	return p, ok
}

// Progress returns a copy of the job's progress.
func (j *MigrationJob) Progress() JobProgress {
	return JobProgress{
		Overall:          j.overall,
		CurrentOperation: j.currentOperation,
		Categories:       maps.Clone(j.categories),
	}
}

// Validate checks the job's data before it is stored.
func (j *MigrationJob) Validate() error {
	switch {
	case j.source.TenantID == "":
		return fmt.Errorf("%w: source account is required", shared.ErrInvalidInput)
	case j.destination.TenantID == "":
		return fmt.Errorf("%w: destination account is required", shared.ErrInvalidInput)
	case !j.status.Valid():
		return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidInput, j.status)
	}
	if err := j.options.Validate(); err != nil {
		return err
	}
	for c, p := range j.categories {
		if err := p.Check(); err != nil {
			return fmt.Errorf("category %s: %w", c, err)
		}
	}
	return nil
}

func (j *MigrationJob) guard() error {
	if j.status.Terminal() {
		return fmt.Errorf("%w: job %s is %s", shared.ErrJobTerminal, j.id, j.status)
	}
	return nil
}

func (j *MigrationJob) touch() {
	j.updatedAt = time.Now().UTC()
}

// Transition moves the job to status to, stamping completedAt on terminal states.
func (j *MigrationJob) Transition(to JobStatus) error {
	if err := j.guard(); err != nil {
		return err
	}
	if !j.status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", shared.ErrInvalidTransition, j.status, to)
	}

	j.status = to
	j.touch()
	if to.Terminal() {
		done := j.updatedAt
		j.completedAt = &done
	}
	return nil
}

// Fail moves the job to failed and records the cause.
func (j *MigrationJob) Fail(cause string) error {
	if err := j.Transition(StatusFailed); err != nil {
		return err
	}
	j.errorMessage = cause
	return nil
}

// SetPlan records the execution order. Every planned category must be part of the job.
func (j *MigrationJob) SetPlan(plan []Category) error {
	if err := j.guard(); err != nil {
		return err
	}
	for _, c := range plan {
		if _, ok := j.categories[c]; !ok {
			return fmt.Errorf("%w: %s is not selected", shared.ErrInvalidInput, c)
		}
	}
	j.plan = append([]Category(nil), plan...)
	j.touch()
	return nil
}

// SetCurrentOperation updates the human readable description of the work in progress.
func (j *MigrationJob) SetCurrentOperation(op string) error {
	if err := j.guard(); err != nil {
		return err
	}
	j.currentOperation = op
	j.touch()
	return nil
}

// UpdateCategory replaces the progress of c. Counters may only grow and a
// terminal category cannot change.
func (j *MigrationJob) UpdateCategory(c Category, p CategoryProgress) error {
	if err := j.guard(); err != nil {
		return err
	}
	prev, ok := j.categories[c]
	if !ok {
		return fmt.Errorf("%w: %s is not selected", shared.ErrInvalidInput, c)
	}
	if err := p.Check(); err != nil {
		return fmt.Errorf("category %s: %w", c, err)
	}
	if prev.Terminal() {
		return fmt.Errorf("%w: category %s is already %s", shared.ErrInvalidTransition, c, prev.Status)
	}
	if prev.Status == ProgressRunning && p.Status == ProgressPending {
		return fmt.Errorf("%w: category %s cannot return to pending", shared.ErrInvalidTransition, c)
	}
	if p.Processed < prev.Processed || p.Successful < prev.Successful || p.Failed < prev.Failed || p.Total < prev.Total {
		return fmt.Errorf("%w: category %s counters decreased", shared.ErrInvalidInput, c)
	}

	j.categories[c] = p
	j.overall = ComputeOverall(j.categories)
	j.touch()
	return nil
}

// Clone returns a deep copy that readers may hold while the engine keeps mutating the original.
func (j *MigrationJob) Clone() *MigrationJob {
	out := *j
	out.options = j.options.Clone()
	out.plan = append([]Category(nil), j.plan...)
	out.categories = maps.Clone(j.categories)
	if j.completedAt != nil {
		done := *j.completedAt
		out.completedAt = &done
	}
	return &out
}

// JobView is the exported form of a job used for JSON and storage.
type JobView struct {
	ID                 string           `json:"id"`
	Sequence           int              `json:"sequence"`
	SourceAccount      AccountRef       `json:"sourceAccount"`
	DestinationAccount AccountRef       `json:"destinationAccount"`
	Options            MigrationOptions `json:"options"`
	Status             JobStatus        `json:"status"`
	Plan               []Category       `json:"plan,omitempty"`
	Progress           JobProgress      `json:"progress"`
	Error              string           `json:"error,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
	CompletedAt        *time.Time       `json:"completedAt,omitempty"`
}

// View returns the exported form of the job.
func (j *MigrationJob) View() JobView {
	c := j.Clone()
	return JobView{
		ID:                 c.id,
		Sequence:           c.sequence,
		SourceAccount:      c.source,
		DestinationAccount: c.destination,
		Options:            c.options,
		Status:             c.status,
		Plan:               c.plan,
		Progress:           c.Progress(),
		Error:              c.errorMessage,
		CreatedAt:          c.createdAt,
		UpdatedAt:          c.updatedAt,
		CompletedAt:        c.completedAt,
	}
}

// JobFromView rebuilds a job, typically from a database row.
func JobFromView(v JobView) *MigrationJob {
	categories := maps.Clone(v.Progress.Categories)
	if categories == nil {
		categories = make(map[Category]CategoryProgress)
	}
	return &MigrationJob{
		id:               v.ID,
		sequence:         v.Sequence,
		source:           v.SourceAccount,
		destination:      v.DestinationAccount,
		options:          v.Options.Clone(),
		status:           v.Status,
		plan:             append([]Category(nil), v.Plan...),
		overall:          v.Progress.Overall,
		currentOperation: v.Progress.CurrentOperation,
		categories:       categories,
		errorMessage:     v.Error,
		createdAt:        v.CreatedAt,
		updatedAt:        v.UpdatedAt,
		completedAt:      v.CompletedAt,
	}
}

func (j *MigrationJob) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.View())
}

func (j *MigrationJob) UnmarshalJSON(data []byte) error {
	var v JobView
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*j = *JobFromView(v)
	return nil
}
