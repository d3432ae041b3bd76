package testing

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/services"
	"github.com/desertthunder/tmx/internal/shared"
)

// FakePlatform is an in-memory multi-tenant platform implementing [services.Connector].
//
// Authorization is checked on every call, so revoking a key while a job runs
// behaves like a key that stopped working upstream.
type FakePlatform struct {
	mu      sync.Mutex
	tenants map[string]*FakeTenant
}

func NewFakePlatform() *FakePlatform {
	return &FakePlatform{tenants: make(map[string]*FakeTenant)}
}

// AddTenant registers a tenant that accepts creds.APIKey.
func (p *FakePlatform) AddTenant(creds models.AccountCredentials, name string) *FakeTenant {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := &FakeTenant{
		id:        creds.TenantID,
		name:      name,
		key:       creds.APIKey,
		records:   make(map[models.Category][]models.Record),
		forbidden: make(map[models.Category]bool),
		transient: make(map[models.Category]*transientFault),
		listErr:   make(map[models.Category]error),
		reject:    make(map[models.Category]func(models.Record) error),
	}
	p.tenants[creds.TenantID] = t
	return t
}

// Tenant returns a registered tenant.
func (p *FakePlatform) Tenant(id string) *FakeTenant {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tenants[id]
}

// Connect implements [services.Connector].
func (p *FakePlatform) Connect(creds models.AccountCredentials) (services.Tenant, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return &fakeHandle{platform: p, tenantID: creds.TenantID, key: creds.APIKey}, nil
}

type transientFault struct {
	remaining int
	err       error
}

// FakeTenant holds one tenant's records and injected faults.
type FakeTenant struct {
	mu          sync.Mutex
	id          string
	name        string
	key         string
	revoked     bool
	unreachable bool
	nextID      int
	records     map[models.Category][]models.Record
	forbidden   map[models.Category]bool
	transient   map[models.Category]*transientFault
	listErr     map[models.Category]error
	reject      map[models.Category]func(models.Record) error
	events      []string
	writes      int
	onWrite     func(category models.Category, writes int)
}

// Add stores a record and returns its id.
func (t *FakeTenant) Add(category models.Category, fields map[string]any) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.add(category, fields)
}

func (t *FakeTenant) add(category models.Category, fields map[string]any) string {
	t.nextID++
	id := fmt.Sprintf("%s-%s-%d", t.id, category, t.nextID)
	t.records[category] = append(t.records[category], models.NewRecord(id, fields))
	return id
}

// Seed adds n records built by fields(i).
func (t *FakeTenant) Seed(category models.Category, n int, fields func(i int) map[string]any) []string {
	ids := make([]string, 0, n)
	for i := range n {
		ids = append(ids, t.Add(category, fields(i)))
	}
	return ids
}

// Records returns a copy of the stored records of a category.
func (t *FakeTenant) Records(category models.Category) []models.Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.Record, 0, len(t.records[category]))
	for _, r := range t.records[category] {
		out = append(out, r.Clone())
	}
	return out
}

// Len returns the number of stored records of a category.
func (t *FakeTenant) Len(category models.Category) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records[category])
}

// Events returns the call log, entries like "list:tags" or "create:contacts".
func (t *FakeTenant) Events() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.events...)
}

// Revoke makes every later call fail with shared.ErrUnauthorized.
func (t *FakeTenant) Revoke() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.revoked = true
}

// SetUnreachable makes every later call fail with shared.ErrUnreachable.
func (t *FakeTenant) SetUnreachable(down bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unreachable = down
}

// Forbid makes reads of a category fail with shared.ErrForbidden.
func (t *FakeTenant) Forbid(category models.Category) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forbidden[category] = true
}

// FailNext makes the next n calls touching category return err.
func (t *FakeTenant) FailNext(category models.Category, n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transient[category] = &transientFault{remaining: n, err: err}
}

// FailList makes every ListRecords call for category return err.
func (t *FakeTenant) FailList(category models.Category, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listErr[category] = err
}

// Reject installs a per-record validation hook for creates and updates.
func (t *FakeTenant) Reject(category models.Category, fn func(models.Record) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reject[category] = fn
}

// OnWrite registers a hook run after every successful create or update,
// outside the tenant lock.
func (t *FakeTenant) OnWrite(fn func(category models.Category, writes int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onWrite = fn
}

// enter checks authorization and injected faults for one call. The caller must hold t.mu.
func (t *FakeTenant) enter(key string, category models.Category, event string) error {
	if t.unreachable {
		return fmt.Errorf("%w: %s", shared.ErrUnreachable, t.id)
	}
	if t.revoked || key != t.key {
		return fmt.Errorf("%w: status 401", shared.ErrUnauthorized)
	}
	if category != "" {
		if f := t.transient[category]; f != nil && f.remaining > 0 {
			f.remaining--
			return f.err
		}
	}
	if event != "" {
		t.events = append(t.events, event)
	}
	return nil
}

type fakeHandle struct {
	platform *FakePlatform
	tenantID string
	key      string
}

func (h *fakeHandle) tenant() (*FakeTenant, error) {
	t := h.platform.Tenant(h.tenantID)
	if t == nil {
		return nil, fmt.Errorf("%w: status 401: unknown tenant %s", shared.ErrUnauthorized, h.tenantID)
	}
	return t, nil
}

func (h *fakeHandle) Probe(ctx context.Context) (*services.Location, error) {
	t, err := h.tenant()
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.enter(h.key, "", ""); err != nil {
		return nil, err
	}
	return &services.Location{ID: t.id, Name: t.name}, nil
}

func (h *fakeHandle) Count(ctx context.Context, category models.Category) (int, error) {
	t, err := h.tenant()
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.enter(h.key, category, ""); err != nil {
		return 0, err
	}
	if t.forbidden[category] {
		return 0, fmt.Errorf("%w: status 403", shared.ErrForbidden)
	}
	return len(t.records[category]), nil
}

func (h *fakeHandle) ListRecords(ctx context.Context, category models.Category, opts services.ListOptions) (*services.RecordPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := h.tenant()
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.enter(h.key, category, "list:"+string(category)); err != nil {
		return nil, err
	}
	if t.forbidden[category] {
		return nil, fmt.Errorf("%w: status 403", shared.ErrForbidden)
	}
	if err := t.listErr[category]; err != nil {
		return nil, err
	}

	var visible []models.Record
	for _, r := range t.records[category] {
		if opts.UpcomingOnly {
			if past, _ := r.Fields["past"].(bool); past {
				continue
			}
		}
		c := r.Clone()
		if !opts.IncludeSubmissions {
			delete(c.Fields, "submissions")
		}
		if !opts.IncludeConversations {
			delete(c.Fields, "conversations")
		}
		visible = append(visible, c)
	}

	offset, _ := strconv.Atoi(opts.Cursor)
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	if offset > len(visible) {
		offset = len(visible)
	}
	end := min(offset+limit, len(visible))

	page := &services.RecordPage{Records: visible[offset:end]}
	if end < len(visible) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (h *fakeHandle) FindExisting(ctx context.Context, category models.Category, field, value string) (*models.Record, error) {
	t, err := h.tenant()
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.enter(h.key, category, ""); err != nil {
		return nil, err
	}
	for _, r := range t.records[category] {
		if value != "" && r.String(field) == value {
			found := r.Clone()
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: %s with %s=%q", shared.ErrNotFound, category, field, value)
}

func (h *fakeHandle) CreateRecord(ctx context.Context, category models.Category, record models.Record) (string, error) {
	t, err := h.tenant()
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	if err := t.enter(h.key, category, "create:"+string(category)); err != nil {
		t.mu.Unlock()
		return "", err
	}
	if fn := t.reject[category]; fn != nil {
		if err := fn(record); err != nil {
			t.mu.Unlock()
			return "", err
		}
	}
	if category == models.CategoryContacts {
		if email := record.String("email"); email != "" {
			for _, r := range t.records[category] {
				if r.String("email") == email {
					t.mu.Unlock()
					return "", fmt.Errorf("%w: status 409: contact %s already exists", shared.ErrConflict, email)
				}
			}
		}
	}
	id := t.add(category, record.Fields)
	hook, writes := t.wrote()
	t.mu.Unlock()

	if hook != nil {
		hook(category, writes)
	}
	return id, nil
}

func (h *fakeHandle) UpdateRecord(ctx context.Context, category models.Category, id string, record models.Record) error {
	t, err := h.tenant()
	if err != nil {
		return err
	}

	t.mu.Lock()
	if err := t.enter(h.key, category, "update:"+string(category)); err != nil {
		t.mu.Unlock()
		return err
	}
	if fn := t.reject[category]; fn != nil {
		if err := fn(record); err != nil {
			t.mu.Unlock()
			return err
		}
	}

	found := false
	for i, r := range t.records[category] {
		if r.ID == id {
			t.records[category][i] = models.NewRecord(id, record.Fields)
			found = true
			break
		}
	}
	if !found {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s %s", shared.ErrNotFound, category, id)
	}
	hook, writes := t.wrote()
	t.mu.Unlock()

	if hook != nil {
		hook(category, writes)
	}
	return nil
}

// wrote counts a write and returns the hook to run. The caller must hold t.mu.
func (t *FakeTenant) wrote() (func(models.Category, int), int) {
	t.writes++
	return t.onWrite, t.writes
}
