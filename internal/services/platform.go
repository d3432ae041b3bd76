package services

import (
	"context"

	"github.com/desertthunder/tmx/internal/models"
)

// Location is the platform's name for a tenant workspace.
type Location struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListOptions pages through one category.
type ListOptions struct {
	Cursor               string
	Limit                int
	UpcomingOnly         bool // appointments: skip past bookings
	IncludeSubmissions   bool // forms and surveys: embed submissions
	IncludeConversations bool // contacts: embed conversation history
}

// RecordPage is one page of an export. An empty NextCursor marks the last page.
type RecordPage struct {
	Records    []models.Record `json:"records"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

// Tenant is an authenticated handle on one platform account.
type Tenant interface {
	// Probe checks that the account is reachable and the key is authorized.
	Probe(ctx context.Context) (*Location, error)

	// Count returns the number of records in a category.
	Count(ctx context.Context, category models.Category) (int, error)

	// ListRecords returns one page of a category.
	ListRecords(ctx context.Context, category models.Category, opts ListOptions) (*RecordPage, error)

	// FindExisting returns the first record whose field equals value, or
	// shared.ErrNotFound.
	FindExisting(ctx context.Context, category models.Category, field, value string) (*models.Record, error)

	// CreateRecord writes a new record and returns its id in this tenant.
	CreateRecord(ctx context.Context, category models.Category, record models.Record) (string, error)

	// UpdateRecord overwrites the fields of an existing record.
	UpdateRecord(ctx context.Context, category models.Category, id string, record models.Record) error
}

// Connector opens tenants from credentials.
type Connector interface {
	Connect(creds models.AccountCredentials) (Tenant, error)
}
