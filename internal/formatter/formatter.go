// package formatter renders jobs, analyses and backups for the terminal and for files
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/shared"
	"github.com/desertthunder/tmx/internal/tasks"
)

const timeLayout = "2006-01-02 15:04:05"

// ErrorsToCSV converts a job's error log to CSV with columns: Occurred At, Category, Phase, Record ID, Message
func ErrorsToCSV(entries []models.RecordError) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteErrorsCSV(&buf, entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteErrorsCSV streams a job's error log as CSV to w.
func WriteErrorsCSV(w io.Writer, entries []models.RecordError) error {
	writer := csv.NewWriter(w)

	headers := []string{"Occurred At", "Category", "Phase", "Record ID", "Message"}
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, e := range entries {
		record := []string{
			e.OccurredAt.UTC().Format(time.RFC3339),
			string(e.Category),
			string(e.Phase),
			e.RecordID,
			e.Message,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

// SnapshotToJSON encodes a backup as indented JSON.
func SnapshotToJSON(snapshot *models.Snapshot) ([]byte, error) {
	return shared.MarshalJSON(snapshot, true)
}

// WriteSnapshot writes a backup as indented JSON to w.
func WriteSnapshot(w io.Writer, snapshot *models.Snapshot) error {
	data, err := SnapshotToJSON(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// SnapshotFilename returns the default file name of a backup: tmx-backup-{tenant}-{timestamp}.json
func SnapshotFilename(snapshot *models.Snapshot) string {
	return fmt.Sprintf("tmx-backup-%s-%s.json", snapshot.SourceAccount.TenantID, snapshot.CreatedAt.UTC().Format("20060102-150405"))
}

// WriteSnapshotFile writes a backup to path, creating parent directories.
//
// Defaults to [SnapshotFilename] in the working directory. When path is a directory the default name is used inside it.
func WriteSnapshotFile(snapshot *models.Snapshot, path string) (string, error) {
	if path == "" {
		path = SnapshotFilename(snapshot)
	} else if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, SnapshotFilename(snapshot))
	}

	data, err := SnapshotToJSON(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write snapshot file: %w", err)
	}
	return path, nil
}

// ValidationToText describes both sides of a validation.
func ValidationToText(result models.ValidationResult) string {
	var buf strings.Builder
	line := func(side string, s models.AccountStatus) {
		if s.IsValid {
			fmt.Fprintf(&buf, "%s: ✓ %s\n", side, s.LocationName)
		} else {
			fmt.Fprintf(&buf, "%s: ✗ %s\n", side, s.Error)
		}
	}
	line("Source", result.SourceAccount)
	line("Destination", result.DestinationAccount)
	return buf.String()
}

// AnalysisToText renders per-category counts in catalog order followed by the estimate and any warnings.
func AnalysisToText(result *models.AnalysisResult) string {
	t := newTable("Category", "Records")
	for _, c := range models.Catalog() {
		t.Row(c.Label(), strconv.Itoa(result.DataCounts[c]))
	}
	t.Row("total", strconv.Itoa(result.TotalRecords()))

	var buf strings.Builder
	buf.WriteString(t.String())
	fmt.Fprintf(&buf, "\nEstimated duration: %s\n", FormatMinutes(result.EstimatedDuration))
	for _, w := range result.Warnings {
		fmt.Fprintf(&buf, "warning: %s\n", w)
	}
	return buf.String()
}

// JobToText renders a job header and its per-category progress in plan order.
func JobToText(job *models.MigrationJob) string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Job:         %s\n", job.ID())
	fmt.Fprintf(&buf, "Source:      %s\n", job.Source())
	fmt.Fprintf(&buf, "Destination: %s\n", job.Destination())
	fmt.Fprintf(&buf, "Status:      %s\n", job.Status())
	fmt.Fprintf(&buf, "Progress:    %.1f%%\n", job.Overall())
	if op := job.CurrentOperation(); op != "" {
		fmt.Fprintf(&buf, "Operation:   %s\n", op)
	}
	fmt.Fprintf(&buf, "Created:     %s\n", job.CreatedAt().Local().Format(timeLayout))
	if done := job.CompletedAt(); done != nil {
		fmt.Fprintf(&buf, "Completed:   %s\n", done.Local().Format(timeLayout))
	}
	if msg := job.ErrorMessage(); msg != "" {
		fmt.Fprintf(&buf, "Error:       %s\n", msg)
	}
	buf.WriteString("\n")

	t := newTable("Category", "Status", "Processed", "Successful", "Failed")
	for _, c := range job.Categories() {
		p, _ := job.Category(c)
		t.Row(
			c.Label(),
			string(p.Status),
			fmt.Sprintf("%d/%d", p.Processed, p.Total),
			strconv.Itoa(p.Successful),
			strconv.Itoa(p.Failed),
		)
	}
	buf.WriteString(t.String())
	buf.WriteString("\n")
	return buf.String()
}

// HistoryToText renders job summaries newest first.
func HistoryToText(summaries []tasks.JobSummary) string {
	if len(summaries) == 0 {
		return "No jobs found.\n"
	}

	t := newTable("ID", "Created", "Source", "Destination", "Status", "Progress", "Successful", "Failed")
	for _, s := range summaries {
		t.Row(
			s.ID,
			s.CreatedAt.Local().Format(timeLayout),
			s.SourceAccount.TenantID,
			s.DestinationAccount.TenantID,
			string(s.Status),
			fmt.Sprintf("%.1f%%", s.Overall),
			strconv.Itoa(s.Successful),
			strconv.Itoa(s.Failed),
		)
	}
	return t.String() + "\n"
}

// FormatMinutes renders a duration estimate such as "2h 5m" or "under a minute".
func FormatMinutes(minutes int) string {
	switch {
	case minutes <= 0:
		return "under a minute"
	case minutes < 60:
		return fmt.Sprintf("%dm", minutes)
	case minutes%60 == 0:
		return fmt.Sprintf("%dh", minutes/60)
	default:
		return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
	}
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}
