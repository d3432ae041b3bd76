package tasks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/repositories"
	"github.com/desertthunder/tmx/internal/services"
	"github.com/desertthunder/tmx/internal/shared"
	tu "github.com/desertthunder/tmx/internal/testing"
)

func newTestEngine(t *testing.T, connector services.Connector) (*Engine, *checkingStore) {
	t.Helper()
	store := &checkingStore{JobRepository: setupStore(t)}
	engine := NewEngine(connector, store, testSettings(), testLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		engine.Shutdown(ctx)
	})
	return engine, store
}

func runJob(t *testing.T, engine *Engine, req StartRequest) *models.MigrationJob {
	t.Helper()

	id, err := engine.StartJob(context.Background(), req)
	if err != nil {
		t.Fatalf("StartJob failed: %v", err)
	}
	return waitJob(t, engine, id)
}

func waitJob(t *testing.T, engine *Engine, id string) *models.MigrationJob {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	job, err := engine.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if !job.IsTerminal() {
		t.Fatalf("expected terminal job, got %s", job.Status())
	}
	return job
}

func category(t *testing.T, job *models.MigrationJob, c models.Category) models.CategoryProgress {
	t.Helper()
	p, ok := job.Category(c)
	if !ok {
		t.Fatalf("job has no %s progress", c)
	}
	return p
}

func request(categories ...models.Category) StartRequest {
	return StartRequest{
		Source:      sourceCreds,
		Destination: destCreds,
		Options:     models.MigrationOptions{Categories: categories},
	}
}

func eventIndex(events []string, event string, last bool) int {
	idx := -1
	for i, e := range events {
		if e == event {
			idx = i
			if !last {
				return idx
			}
		}
	}
	return idx
}

func TestEngineRunsJob(t *testing.T) {
	platform, src, dst := setupPlatform()
	seedTagsAndContacts(src, 12, 500)
	engine, store := newTestEngine(t, platform)

	req := request(models.CategoryContacts, models.CategoryTags)
	req.DataCounts = map[models.Category]int{models.CategoryContacts: 500, models.CategoryTags: 12}
	job := runJob(t, engine, req)

	t.Run("completes", func(t *testing.T) {
		if job.Status() != models.StatusCompleted {
			t.Fatalf("expected completed, got %s (%s)", job.Status(), job.ErrorMessage())
		}
		if job.CompletedAt() == nil {
			t.Error("expected completedAt to be set")
		}
		if job.Overall() != 100 {
			t.Errorf("expected overall 100, got %.1f", job.Overall())
		}
		if !slices.Equal(job.Plan(), []models.Category{models.CategoryTags, models.CategoryContacts}) {
			t.Errorf("unexpected plan %v", job.Plan())
		}
	})

	t.Run("counts every record", func(t *testing.T) {
		contacts := category(t, job, models.CategoryContacts)
		if contacts.Total != 500 || contacts.Processed != 500 || contacts.Successful != 500 || contacts.Status != models.ProgressCompleted {
			t.Errorf("unexpected contacts progress %+v", contacts)
		}
		tags := category(t, job, models.CategoryTags)
		if tags.Total != 12 || tags.Successful != 12 || tags.Status != models.ProgressCompleted {
			t.Errorf("unexpected tags progress %+v", tags)
		}
		if dst.Len(models.CategoryContacts) != 500 || dst.Len(models.CategoryTags) != 12 {
			t.Errorf("destination has %d contacts and %d tags", dst.Len(models.CategoryContacts), dst.Len(models.CategoryTags))
		}
	})

	t.Run("keeps progress consistent on every write", func(t *testing.T) {
		if v := store.Violations(); len(v) > 0 {
			t.Errorf("invariant violations: %v", v)
		}
		want := []models.JobStatus{
			models.StatusValidating, models.StatusExporting, models.StatusImporting, models.StatusCompleted,
		}
		if got := store.Statuses(); !slices.Equal(got, want) {
			t.Errorf("expected statuses %v, got %v", want, got)
		}
	})

	t.Run("finishes tags before contacts start", func(t *testing.T) {
		events := dst.Events()
		lastTag := eventIndex(events, "create:tags", true)
		firstContact := eventIndex(events, "create:contacts", false)
		if lastTag < 0 || firstContact < 0 || lastTag > firstContact {
			t.Errorf("expected every tag write before the first contact write (last tag %d, first contact %d)", lastTag, firstContact)
		}
	})

	t.Run("remaps tag references", func(t *testing.T) {
		for _, r := range dst.Records(models.CategoryContacts) {
			ids := r.Strings("tagIds")
			if len(ids) != 1 || !strings.HasPrefix(ids[0], "dest_loc-tags-") {
				t.Fatalf("contact %s has tag ids %v", r.ID, ids)
			}
		}
	})

	t.Run("never stores the api key", func(t *testing.T) {
		data, err := job.MarshalJSON()
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(string(data), sourceCreds.APIKey) || strings.Contains(string(data), destCreds.APIKey) {
			t.Error("job JSON contains an api key")
		}
	})
}

func TestEngineMergeIsIdempotent(t *testing.T) {
	platform, src, dst := setupPlatform()
	seedTagsAndContacts(src, 3, 40)
	src.Seed(models.CategoryContacts, 5, func(i int) map[string]any {
		return map[string]any{"firstName": fmt.Sprintf("Walk-in %d", i), "phone": fmt.Sprintf("+1555010%04d", i)}
	})
	engine, _ := newTestEngine(t, platform)

	req := request(models.CategoryTags, models.CategoryContacts)
	req.Options.MergeDuplicateContacts = true

	first := runJob(t, engine, req)
	if first.Status() != models.StatusCompleted {
		t.Fatalf("first run: expected completed, got %s", first.Status())
	}
	contacts, tags := dst.Len(models.CategoryContacts), dst.Len(models.CategoryTags)
	if contacts != 45 {
		t.Fatalf("first run: expected 45 destination contacts, got %d", contacts)
	}

	second := runJob(t, engine, req)
	if second.Status() != models.StatusCompleted {
		t.Fatalf("second run: expected completed, got %s", second.Status())
	}
	if got := dst.Len(models.CategoryContacts); got != contacts {
		t.Errorf("second run changed contact count from %d to %d", contacts, got)
	}
	if got := dst.Len(models.CategoryTags); got != tags {
		t.Errorf("second run changed tag count from %d to %d", tags, got)
	}

	p := category(t, second, models.CategoryContacts)
	if p.Successful != 45 || p.Failed != 0 {
		t.Errorf("expected skipped duplicates to count as successful, got %+v", p)
	}
}

func TestEngineWithoutMergeReportsDuplicates(t *testing.T) {
	platform, src, dst := setupPlatform()
	src.Seed(models.CategoryContacts, 5, func(i int) map[string]any {
		return map[string]any{"email": fmt.Sprintf("dup%d@example.com", i)}
	})
	dst.Add(models.CategoryContacts, map[string]any{"email": "dup0@example.com"})
	engine, _ := newTestEngine(t, platform)

	job := runJob(t, engine, request(models.CategoryContacts))
	if job.Status() != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", job.Status())
	}

	p := category(t, job, models.CategoryContacts)
	if p.Successful != 4 || p.Failed != 1 || p.Status != models.ProgressCompleted {
		t.Errorf("unexpected progress %+v", p)
	}

	entries, err := engine.Errors(job.ID(), 0)
	if err != nil {
		t.Fatalf("Errors failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Phase != models.PhaseImport || entries[0].Category != models.CategoryContacts {
		t.Errorf("unexpected error log %+v", entries)
	}
}

func TestEngineCancel(t *testing.T) {
	platform, src, dst := setupPlatform()
	seedTagsAndContacts(src, 4, 300)
	src.Seed(models.CategoryPipelines, 3, func(i int) map[string]any {
		return map[string]any{"name": fmt.Sprintf("pipeline-%d", i)}
	})
	engine, store := newTestEngine(t, platform)

	ids := make(chan string, 1)
	var once sync.Once
	dst.OnWrite(func(c models.Category, writes int) {
		if c != models.CategoryContacts {
			return
		}
		once.Do(func() {
			if err := engine.Cancel(<-ids); err != nil {
				t.Errorf("Cancel failed: %v", err)
			}
		})
	})

	id, err := engine.StartJob(context.Background(), request(models.CategoryTags, models.CategoryContacts, models.CategoryPipelines))
	if err != nil {
		t.Fatalf("StartJob failed: %v", err)
	}
	ids <- id
	job := waitJob(t, engine, id)

	if job.Status() != models.StatusCancelled {
		t.Fatalf("expected cancelled, got %s (%s)", job.Status(), job.ErrorMessage())
	}
	if job.CompletedAt() == nil {
		t.Error("expected completedAt to be set")
	}
	if p := category(t, job, models.CategoryTags); p.Status != models.ProgressCompleted {
		t.Errorf("expected tags completed, got %+v", p)
	}
	contacts := category(t, job, models.CategoryContacts)
	if contacts.Status != models.ProgressFailed || contacts.Processed == 0 || contacts.Processed >= 300 {
		t.Errorf("expected partially processed contacts finalized as failed, got %+v", contacts)
	}
	if p := category(t, job, models.CategoryPipelines); p.Status != models.ProgressPending || p.Processed != 0 {
		t.Errorf("expected pipelines to stay pending, got %+v", p)
	}
	if slices.Contains(dst.Events(), "create:pipelines") {
		t.Error("pipelines were written after cancellation")
	}
	if v := store.Violations(); len(v) > 0 {
		t.Errorf("invariant violations: %v", v)
	}

	if err := engine.Cancel(id); !errors.Is(err, shared.ErrJobTerminal) {
		t.Errorf("expected ErrJobTerminal when cancelling a finished job, got %v", err)
	}
}

func TestEngineOpportunitiesWithoutPipelines(t *testing.T) {
	platform, src, dst := setupPlatform()
	pipelineIDs := src.Seed(models.CategoryPipelines, 2, func(i int) map[string]any {
		return map[string]any{"name": fmt.Sprintf("pipeline-%d", i)}
	})
	src.Seed(models.CategoryOpportunities, 6, func(i int) map[string]any {
		return map[string]any{"title": fmt.Sprintf("deal-%d", i), "pipelineId": pipelineIDs[i%2]}
	})
	engine, _ := newTestEngine(t, platform)

	job := runJob(t, engine, request(models.CategoryOpportunities))
	if job.Status() != models.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", job.Status(), job.ErrorMessage())
	}
	if p := category(t, job, models.CategoryOpportunities); p.Successful != 6 {
		t.Errorf("unexpected progress %+v", p)
	}
	if dst.Len(models.CategoryPipelines) != 0 {
		t.Error("unselected pipelines were migrated")
	}
	for _, r := range dst.Records(models.CategoryOpportunities) {
		if _, ok := r.Fields["pipelineId"]; ok {
			t.Errorf("opportunity %s kept an unresolved pipeline reference", r.ID)
		}
	}
}

func TestEngineDestinationRevoked(t *testing.T) {
	platform, src, dst := setupPlatform()
	seedTagsAndContacts(src, 5, 200)
	engine, _ := newTestEngine(t, platform)

	var once sync.Once
	dst.OnWrite(func(c models.Category, writes int) {
		if c == models.CategoryContacts {
			once.Do(dst.Revoke)
		}
	})

	job := runJob(t, engine, request(models.CategoryTags, models.CategoryContacts))

	if job.Status() != models.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status())
	}
	if !strings.Contains(job.ErrorMessage(), "destination account") {
		t.Errorf("unexpected error message %q", job.ErrorMessage())
	}
	if p := category(t, job, models.CategoryTags); p.Status != models.ProgressCompleted || p.Successful != 5 {
		t.Errorf("expected tags completed, got %+v", p)
	}
	contacts := category(t, job, models.CategoryContacts)
	if contacts.Status != models.ProgressFailed || contacts.Processed >= 200 {
		t.Errorf("expected contacts aborted, got %+v", contacts)
	}

	entries, err := engine.Errors(job.ID(), 0)
	if err != nil {
		t.Fatalf("Errors failed: %v", err)
	}
	if len(entries) == 0 {
		t.Error("expected the account failure in the error log")
	}
}

func TestEngineRetriesTransientErrors(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		platform, src, dst := setupPlatform()
		seedTagsAndContacts(src, 12, 1)
		dst.FailNext(models.CategoryTags, 2, fmt.Errorf("%w: status 429", shared.ErrRateLimited))
		engine, _ := newTestEngine(t, platform)

		job := runJob(t, engine, request(models.CategoryTags))
		if p := category(t, job, models.CategoryTags); p.Successful != 12 || p.Failed != 0 {
			t.Errorf("expected every tag to succeed after retries, got %+v", p)
		}
	})

	t.Run("counts exhausted records as failed", func(t *testing.T) {
		platform, src, dst := setupPlatform()
		seedTagsAndContacts(src, 4, 1)
		dst.FailNext(models.CategoryTags, 1000, fmt.Errorf("%w: status 503", shared.ErrUpstream))
		engine, _ := newTestEngine(t, platform)

		job := runJob(t, engine, request(models.CategoryTags))
		if job.Status() != models.StatusCompleted {
			t.Fatalf("expected completed, got %s", job.Status())
		}
		if p := category(t, job, models.CategoryTags); p.Failed != 4 || p.Status != models.ProgressCompleted {
			t.Errorf("expected 4 failed records, got %+v", p)
		}
	})
}

func TestEngineExportFailure(t *testing.T) {
	platform, src, _ := setupPlatform()
	seedTagsAndContacts(src, 3, 1)
	src.Seed(models.CategoryForms, 2, func(i int) map[string]any {
		return map[string]any{"name": fmt.Sprintf("form-%d", i)}
	})
	src.FailList(models.CategoryForms, errors.New("export service returned garbage"))
	engine, _ := newTestEngine(t, platform)

	job := runJob(t, engine, request(models.CategoryTags, models.CategoryForms))
	if job.Status() != models.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", job.Status(), job.ErrorMessage())
	}
	if p := category(t, job, models.CategoryForms); p.Status != models.ProgressFailed {
		t.Errorf("expected forms failed, got %+v", p)
	}

	entries, err := engine.Errors(job.ID(), 0)
	if err != nil {
		t.Fatalf("Errors failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Phase != models.PhaseExport {
		t.Errorf("expected one export error, got %+v", entries)
	}
}

func TestEngineValidationFailure(t *testing.T) {
	platform, src, _ := setupPlatform()
	seedTagsAndContacts(src, 2, 2)
	engine, _ := newTestEngine(t, platform)

	req := request(models.CategoryTags)
	req.Destination = models.AccountCredentials{APIKey: "wrong-key-000", TenantID: destCreds.TenantID}
	job := runJob(t, engine, req)

	if job.Status() != models.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status())
	}
	if !strings.Contains(job.ErrorMessage(), msgUnauthorized) {
		t.Errorf("unexpected error message %q", job.ErrorMessage())
	}
	if strings.Contains(job.ErrorMessage(), "wrong-key-000") {
		t.Error("error message contains the api key")
	}
	if p := category(t, job, models.CategoryTags); p.Status != models.ProgressPending {
		t.Errorf("expected tags pending, got %+v", p)
	}
}

func TestEngineStartJobErrors(t *testing.T) {
	platform, _, _ := setupPlatform()
	engine, _ := newTestEngine(t, platform)
	ctx := context.Background()

	tests := []struct {
		name string
		req  StartRequest
		want error
	}{
		{"no categories", request(), shared.ErrInvalidInput},
		{"unknown category", request("invoices"), shared.ErrInvalidInput},
		{
			"missing source key",
			StartRequest{Source: models.AccountCredentials{TenantID: "source_loc"}, Destination: destCreds, Options: request(models.CategoryTags).Options},
			shared.ErrMissingCredentials,
		},
		{
			"malformed destination tenant",
			StartRequest{Source: sourceCreds, Destination: models.AccountCredentials{APIKey: "dest-key-456", TenantID: "a b"}, Options: request(models.CategoryTags).Options},
			shared.ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := engine.StartJob(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestEngineDestinationBusy(t *testing.T) {
	platform, src, dst := setupPlatform()
	seedTagsAndContacts(src, 3, 1)
	other := models.AccountCredentials{APIKey: "other-key-789", TenantID: "other_loc"}
	platform.AddTenant(other, "Other Clinic")
	engine, _ := newTestEngine(t, platform)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	dst.OnWrite(func(models.Category, int) {
		once.Do(func() {
			close(entered)
			<-release
		})
	})

	first, err := engine.StartJob(context.Background(), request(models.CategoryTags))
	if err != nil {
		t.Fatalf("StartJob failed: %v", err)
	}
	<-entered

	if _, err := engine.StartJob(context.Background(), request(models.CategoryTags)); !errors.Is(err, shared.ErrDestinationBusy) {
		t.Errorf("expected ErrDestinationBusy, got %v", err)
	}

	req := request(models.CategoryTags)
	req.Destination = other
	second, err := engine.StartJob(context.Background(), req)
	if err != nil {
		t.Errorf("expected a job on another destination to start, got %v", err)
	}

	close(release)
	waitJob(t, engine, first)
	if second != "" {
		waitJob(t, engine, second)
	}

	if _, err := engine.StartJob(context.Background(), request(models.CategoryTags)); err != nil {
		t.Errorf("expected destination to be free after the job ended, got %v", err)
	}
}

func TestEngineRecover(t *testing.T) {
	platform, _, _ := setupPlatform()
	engine, store := newTestEngine(t, platform)

	orphan := models.NewMigrationJob(sourceCreds.Ref(), destCreds.Ref(), request(models.CategoryTags).Options, nil)
	if err := orphan.Transition(models.StatusValidating); err != nil {
		t.Fatal(err)
	}
	if err := orphan.Transition(models.StatusExporting); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(orphan); err != nil {
		t.Fatal(err)
	}

	done := models.NewMigrationJob(sourceCreds.Ref(), destCreds.Ref(), request(models.CategoryTags).Options, nil)
	if err := done.Fail("boom"); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(done); err != nil {
		t.Fatal(err)
	}

	n, err := engine.Recover()
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 recovered job, got %d", n)
	}

	got, err := engine.Status(orphan.ID())
	if err != nil {
		t.Fatal(err)
	}
	if got.Status() != models.StatusFailed || got.ErrorMessage() != interruptedMessage {
		t.Errorf("expected interrupted failure, got %s %q", got.Status(), got.ErrorMessage())
	}

	if err := engine.Cancel(orphan.ID()); !errors.Is(err, shared.ErrJobTerminal) {
		t.Errorf("expected ErrJobTerminal, got %v", err)
	}
	if err := engine.Cancel("missing"); !errors.Is(err, shared.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

// openFileStore opens its own connection pool on a database file, the way a
// separate tmx process would.
func openFileStore(t *testing.T, path string) *repositories.JobRepository {
	t.Helper()
	db, err := shared.OpenDatabase(shared.DatabaseConfig{Path: path})
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	t.Cleanup(func() { db.Close() })
	return repositories.NewJobRepository(db)
}

func TestEnginesSharingStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	settings := testSettings()
	settings.LeaseTTL = 150 * time.Millisecond

	newEngine := func(connector services.Connector) *Engine {
		engine := NewEngine(connector, openFileStore(t, path), settings, testLogger())
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			engine.Shutdown(ctx)
		})
		return engine
	}

	t.Run("LiveJobIsLeftAlone", func(t *testing.T) {
		platform, src, dst := setupPlatform()
		seedTagsAndContacts(src, 3, 1)
		first := newEngine(platform)
		second := newEngine(platform)

		entered := make(chan struct{})
		release := make(chan struct{})
		var once, released sync.Once
		unblock := func() { released.Do(func() { close(release) }) }
		defer unblock()
		dst.OnWrite(func(models.Category, int) {
			once.Do(func() {
				close(entered)
				<-release
			})
		})

		id, err := first.StartJob(context.Background(), request(models.CategoryTags))
		if err != nil {
			t.Fatalf("StartJob failed: %v", err)
		}
		<-entered
		time.Sleep(3 * settings.LeaseTTL)

		n, err := second.Recover()
		if err != nil {
			t.Fatalf("Recover failed: %v", err)
		}
		if n != 0 {
			t.Errorf("expected a job with a renewed lease to survive recovery, got %d recovered", n)
		}

		if _, err := second.StartJob(context.Background(), request(models.CategoryTags)); !errors.Is(err, shared.ErrDestinationBusy) {
			t.Errorf("expected ErrDestinationBusy from the other engine, got %v", err)
		}
		if err := second.Cancel(id); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable for a job run elsewhere, got %v", err)
		}

		unblock()
		job := waitJob(t, first, id)
		if job.Status() != models.StatusCompleted {
			t.Fatalf("expected completed, got %s (%s)", job.Status(), job.ErrorMessage())
		}

		next, err := second.StartJob(context.Background(), request(models.CategoryTags))
		if err != nil {
			t.Fatalf("expected the destination to be free after the job ended, got %v", err)
		}
		waitJob(t, second, next)
	})

	t.Run("ExpiredLeaseIsRecovered", func(t *testing.T) {
		platform, _, _ := setupPlatform()
		store := openFileStore(t, path)
		survivor := newEngine(platform)

		orphan := models.NewMigrationJob(sourceCreds.Ref(), destCreds.Ref(), request(models.CategoryTags).Options, nil)
		if err := orphan.Transition(models.StatusValidating); err != nil {
			t.Fatal(err)
		}
		if err := store.CreateLeased(orphan, "crashed-engine", time.Now().Add(-time.Second)); err != nil {
			t.Fatal(err)
		}

		n, err := survivor.Recover()
		if err != nil {
			t.Fatalf("Recover failed: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 recovered job, got %d", n)
		}
		got, err := survivor.Status(orphan.ID())
		if err != nil {
			t.Fatal(err)
		}
		if got.Status() != models.StatusFailed || got.ErrorMessage() != interruptedMessage {
			t.Errorf("expected interrupted failure, got %s %q", got.Status(), got.ErrorMessage())
		}
	})
}

func TestEngineShutdown(t *testing.T) {
	platform, src, _ := setupPlatform()
	seedTagsAndContacts(src, 2, 1)
	engine, _ := newTestEngine(t, platform)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := engine.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if _, err := engine.StartJob(context.Background(), request(models.CategoryTags)); !errors.Is(err, shared.ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable after shutdown, got %v", err)
	}
}

var _ services.Connector = (*tu.FakePlatform)(nil)
