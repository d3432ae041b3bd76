package tasks

import (
	"fmt"

	"github.com/desertthunder/tmx/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	AnalyzeSource Phase = iota
	ExportCategory
	ExportDone
)

func (p Phase) String() string {
	switch p {
	case AnalyzeSource:
		return "analyze_source"
	case ExportCategory:
		return "export_category"
	case ExportDone:
		return "export_done"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func analyzingUpdate(tenant string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AnalyzeSource,
		Step:    0,
		Total:   len(models.Catalog()),
		Message: fmt.Sprintf("Analyzing source account %s...", tenant),
	}
}

func exportingUpdate(step, total int, c models.Category, expected int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportCategory,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Exporting %s (%d records)...", step, total, c.Label(), expected),
	}
}

func exportedUpdate(step, total int, c models.Category, n int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportCategory,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d records)", step, total, c.Label(), n),
		Data:    n,
	}
}

func exportFailedUpdate(step, total int, c models.Category, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportCategory,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, c.Label(), err),
	}
}

func backupDoneUpdate(snapshot *models.Snapshot) ProgressUpdate {
	total := len(models.Catalog())
	return ProgressUpdate{
		Phase:   ExportDone,
		Step:    total,
		Total:   total,
		Message: fmt.Sprintf("Backup complete: %d categories, %d failed", total-len(snapshot.Errors), len(snapshot.Errors)),
		Data:    snapshot,
	}
}
