package models

import (
	"fmt"
	"maps"
	"time"
)

// Record is one platform object (a contact, a pipeline, a form...) as a bag of fields.
type Record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// NewRecord builds a record, copying fields.
func NewRecord(id string, fields map[string]any) Record {
	return Record{ID: id, Fields: maps.Clone(fields)}
}

// String returns a field as a string, or "" when absent.
func (r Record) String(key string) string {
	v, ok := r.Fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Strings returns a list-valued field. Both []string and the []any produced by
// encoding/json are accepted.
func (r Record) Strings(key string) []string {
	switch v := r.Fields[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Clone returns a copy whose top-level field map can be modified independently.
func (r Record) Clone() Record {
	return NewRecord(r.ID, r.Fields)
}

// Phase names the half of a transfer where a record failed.
type Phase string

const (
	PhaseExport Phase = "export"
	PhaseImport Phase = "import"
)

// RecordError is one error log entry for a job.
type RecordError struct {
	JobID      string    `json:"jobId"`
	Category   Category  `json:"category"`
	RecordID   string    `json:"recordId,omitempty"`
	Phase      Phase     `json:"phase"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Snapshot is a full backup of a source tenant, keyed by category.
type Snapshot struct {
	SourceAccount AccountRef            `json:"sourceAccount"`
	CreatedAt     time.Time             `json:"createdAt"`
	Counts        map[Category]int      `json:"counts"`
	Warnings      []string              `json:"warnings,omitempty"`
	Categories    map[Category][]Record `json:"categories"`
	Errors        map[Category]string   `json:"errors,omitempty"`
}

// RecordCount returns the number of records captured for c.
func (s *Snapshot) RecordCount(c Category) int {
	return len(s.Categories[c])
}
