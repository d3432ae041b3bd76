package models

import (
	"fmt"
	"math"

	"github.com/desertthunder/tmx/internal/shared"
)

// ProgressStatus is the lifecycle of a single category within a job.
type ProgressStatus string

const (
	ProgressPending   ProgressStatus = "pending"
	ProgressRunning   ProgressStatus = "running"
	ProgressCompleted ProgressStatus = "completed"
	ProgressFailed    ProgressStatus = "failed"
)

// Terminal reports whether no further work happens for the category.
func (s ProgressStatus) Terminal() bool {
	return s == ProgressCompleted || s == ProgressFailed
}

// CategoryProgress counts the records of one category moved by a job.
//
// Processed always equals Successful + Failed and never exceeds Total.
type CategoryProgress struct {
	Total      int            `json:"total"`
	Processed  int            `json:"processed"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Status     ProgressStatus `json:"status"`
}

// NewCategoryProgress returns a pending progress entry expecting total records.
func NewCategoryProgress(total int) CategoryProgress {
	if total < 0 {
		total = 0
	}
	return CategoryProgress{Total: total, Status: ProgressPending}
}

// RecordSuccess counts n records that reached the destination (or were skipped as duplicates).
func (p *CategoryProgress) RecordSuccess(n int) {
	p.Successful += n
	p.record(n)
}

// RecordFailure counts n records that could not be migrated.
func (p *CategoryProgress) RecordFailure(n int) {
	p.Failed += n
	p.record(n)
}

// record advances Processed. Counts from analysis are advisory, so the
// expected total grows when the export turns out to be larger.
func (p *CategoryProgress) record(n int) {
	p.Processed += n
	if p.Processed > p.Total {
		p.Total = p.Processed
	}
}

// Terminal reports whether the category reached completed or failed.
func (p CategoryProgress) Terminal() bool {
	return p.Status.Terminal()
}

// Completion is the fraction of the category that is done, between 0 and 1.
func (p CategoryProgress) Completion() float64 {
	switch {
	case p.Status == ProgressCompleted:
		return 1
	case p.Total == 0:
		return 0
	default:
		return float64(p.Processed) / float64(p.Total)
	}
}

// Check verifies the counter invariants.
func (p CategoryProgress) Check() error {
	switch {
	case p.Total < 0 || p.Successful < 0 || p.Failed < 0:
		return fmt.Errorf("%w: negative counter %+v", shared.ErrInvalidInput, p)
	case p.Processed != p.Successful+p.Failed:
		return fmt.Errorf("%w: processed %d != successful %d + failed %d", shared.ErrInvalidInput, p.Processed, p.Successful, p.Failed)
	case p.Processed > p.Total:
		return fmt.Errorf("%w: processed %d exceeds total %d", shared.ErrInvalidInput, p.Processed, p.Total)
	}
	switch p.Status {
	case ProgressPending, ProgressRunning, ProgressCompleted, ProgressFailed:
		return nil
	}
	return fmt.Errorf("%w: unknown progress status %q", shared.ErrInvalidInput, p.Status)
}

// ComputeOverall returns the job-wide completion percentage.
//
// Each category's completion is weighted by its total. When no category has
// any records the result is the share of categories in a terminal status.
// The value is rounded to one decimal place.
func ComputeOverall(categories map[Category]CategoryProgress) float64 {
	if len(categories) == 0 {
		return 0
	}

	var weight, done float64
	terminal := 0
	for _, p := range categories {
		if p.Terminal() {
			terminal++
		}
		weight += float64(p.Total)
		done += p.Completion() * float64(p.Total)
	}

	if weight == 0 {
		return round1(100 * float64(terminal) / float64(len(categories)))
	}
	return round1(100 * done / weight)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
