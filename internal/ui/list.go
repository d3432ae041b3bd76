package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/tmx/internal/tasks"
)

var _ list.Item = jobItem{}

// jobItem wraps [tasks.JobSummary] to implement [list.Item].
type jobItem struct {
	job tasks.JobSummary
}

func (i jobItem) FilterValue() string { return i.job.ID }
func (i jobItem) Title() string {
	return fmt.Sprintf("%s  %s", i.job.ID, i.job.Status)
}
func (i jobItem) Description() string {
	desc := fmt.Sprintf("%s → %s • %.1f%%", i.job.SourceAccount.TenantID, i.job.DestinationAccount.TenantID, i.job.Overall)
	if i.job.Failed > 0 {
		desc = fmt.Sprintf("%s • %d failed", desc, i.job.Failed)
	}
	return fmt.Sprintf("%s • %s", desc, i.job.CreatedAt.Local().Format("2006-01-02 15:04"))
}
