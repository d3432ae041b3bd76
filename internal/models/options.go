package models

import (
	"fmt"

	"github.com/desertthunder/tmx/internal/shared"
)

// MigrationOptions is the operator's selection for a job. A job keeps its own
// copy so the options cannot change once it starts.
type MigrationOptions struct {
	Categories                    []Category `json:"categories"`
	IncludeHistoricalAppointments bool       `json:"includeHistoricalAppointments"`
	IncludeFormSubmissions        bool       `json:"includeFormSubmissions"`
	IncludeConversationHistory    bool       `json:"includeConversationHistory"`
	MergeDuplicateContacts        bool       `json:"mergeDuplicateContacts"`
	OverwriteExisting             bool       `json:"overwriteExisting"`
}

// Validate checks that at least one category is selected and that every selected category exists.
func (o MigrationOptions) Validate() error {
	if len(o.Categories) == 0 {
		return fmt.Errorf("%w: no categories selected", shared.ErrInvalidInput)
	}
	for _, c := range o.Categories {
		if !c.Valid() {
			return fmt.Errorf("%w: unknown category %q", shared.ErrInvalidInput, c)
		}
	}
	return nil
}

// Selected reports whether c is part of the selection.
func (o MigrationOptions) Selected(c Category) bool {
	for _, s := range o.Categories {
		if s == c {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no memory with o.
func (o MigrationOptions) Clone() MigrationOptions {
	out := o
	out.Categories = append([]Category(nil), o.Categories...)
	return out
}

// FullExport returns options selecting the whole catalog with every include flag set.
func FullExport() MigrationOptions {
	return MigrationOptions{
		Categories:                    Catalog(),
		IncludeHistoricalAppointments: true,
		IncludeFormSubmissions:        true,
		IncludeConversationHistory:    true,
	}
}
