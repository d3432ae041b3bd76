package models

import (
	"fmt"
	"strings"

	"github.com/desertthunder/tmx/internal/shared"
)

// Category is one of the fixed data types copied between tenants.
type Category string

const (
	CategoryContacts      Category = "contacts"
	CategoryTags          Category = "tags"
	CategoryCustomFields  Category = "customFields"
	CategoryPipelines     Category = "pipelines"
	CategoryOpportunities Category = "opportunities"
	CategoryCalendars     Category = "calendars"
	CategoryAppointments  Category = "appointments"
	CategoryForms         Category = "forms"
	CategorySurveys       Category = "surveys"
	CategoryWorkflows     Category = "workflows"
	CategoryCampaigns     Category = "campaigns"
	CategoryAIPrompts     Category = "aiPrompts"
	CategoryTemplates     Category = "templates"
	CategoryMedia         Category = "media"
)

var catalog = []Category{
	CategoryContacts,
	CategoryTags,
	CategoryCustomFields,
	CategoryPipelines,
	CategoryOpportunities,
	CategoryCalendars,
	CategoryAppointments,
	CategoryForms,
	CategorySurveys,
	CategoryWorkflows,
	CategoryCampaigns,
	CategoryAIPrompts,
	CategoryTemplates,
	CategoryMedia,
}

// dependencies maps a category to the categories that must be written before it.
var dependencies = map[Category][]Category{
	CategoryContacts:      {CategoryTags, CategoryCustomFields},
	CategoryOpportunities: {CategoryPipelines},
	CategoryAppointments:  {CategoryCalendars},
}

var labels = map[Category]string{
	CategoryCustomFields: "custom fields",
	CategoryAIPrompts:    "AI prompts",
}

// Catalog returns every category in catalog order.
func Catalog() []Category {
	out := make([]Category, len(catalog))
	copy(out, catalog)
	return out
}

// Index returns the position of c in the catalog, or -1 for an unknown category.
func (c Category) Index() int {
	for i, known := range catalog {
		if known == c {
			return i
		}
	}
	return -1
}

// Valid reports whether c belongs to the catalog.
func (c Category) Valid() bool {
	return c.Index() >= 0
}

// Dependencies returns the categories that c references.
func (c Category) Dependencies() []Category {
	deps := dependencies[c]
	out := make([]Category, len(deps))
	copy(out, deps)
	return out
}

// Label is the human readable name used in progress messages.
func (c Category) Label() string {
	if l, ok := labels[c]; ok {
		return l
	}
	return string(c)
}

func (c Category) String() string {
	return string(c)
}

// ParseCategory matches s against the catalog, ignoring case and the
// separators people tend to type ("custom-fields", "ai_prompts").
func ParseCategory(s string) (Category, error) {
	norm := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range catalog {
		if strings.ToLower(string(c)) == norm {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown category %q", shared.ErrInvalidInput, s)
}

// ParseCategories parses a list of names, dropping duplicates while keeping first-seen order.
func ParseCategories(names []string) ([]Category, error) {
	seen := make(map[Category]bool, len(names))
	out := make([]Category, 0, len(names))
	for _, name := range names {
		c, err := ParseCategory(name)
		if err != nil {
			return nil, err
		}
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out, nil
}
