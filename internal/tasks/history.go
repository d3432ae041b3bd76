package tasks

import (
	"time"

	"github.com/desertthunder/tmx/internal/models"
)

// JobSummary is one row of the job history.
type JobSummary struct {
	ID                 string                  `json:"id"`
	SourceAccount      models.AccountRef       `json:"sourceAccount"`
	DestinationAccount models.AccountRef       `json:"destinationAccount"`
	Status             models.JobStatus        `json:"status"`
	Overall            float64                 `json:"overall"`
	Categories         int                     `json:"categories"`
	Successful         int                     `json:"successful"`
	Failed             int                     `json:"failed"`
	Error              string                  `json:"error,omitempty"`
	Options            models.MigrationOptions `json:"options"`
	CreatedAt          time.Time               `json:"createdAt"`
	UpdatedAt          time.Time               `json:"updatedAt"`
	CompletedAt        *time.Time              `json:"completedAt,omitempty"`
	Progress           models.JobProgress      `json:"progress"`
	Plan               []models.Category       `json:"plan,omitempty"`
}

// Summarize builds the history row of a job.
func Summarize(job *models.MigrationJob) JobSummary {
	progress := job.Progress()
	s := JobSummary{
		ID:                 job.ID(),
		SourceAccount:      job.Source(),
		DestinationAccount: job.Destination(),
		Status:             job.Status(),
		Overall:            job.Overall(),
		Categories:         len(progress.Categories),
		Error:              job.ErrorMessage(),
		Options:            job.Options(),
		CreatedAt:          job.CreatedAt(),
		UpdatedAt:          job.UpdatedAt(),
		CompletedAt:        job.CompletedAt(),
		Progress:           progress,
		Plan:               job.Plan(),
	}
	for _, p := range progress.Categories {
		s.Successful += p.Successful
		s.Failed += p.Failed
	}
	return s
}

// History reads past and running jobs from the store.
type History struct {
	store models.Repository[*models.MigrationJob]
}

func NewHistory(store models.Repository[*models.MigrationJob]) *History {
	return &History{store: store}
}

// Recent returns up to limit jobs, newest first. A non-positive limit returns every job.
func (h *History) Recent(limit int) ([]JobSummary, error) {
	return h.list(map[string]any{"limit": limit})
}

// ForDestination returns the jobs that targeted a destination tenant, newest first.
func (h *History) ForDestination(tenantID string, limit int) ([]JobSummary, error) {
	return h.list(map[string]any{"destination": tenantID, "limit": limit})
}

func (h *History) list(criteria map[string]any) ([]JobSummary, error) {
	jobs, err := h.store.List(criteria)
	if err != nil {
		return nil, err
	}

	out := make([]JobSummary, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, Summarize(job))
	}
	return out, nil
}
