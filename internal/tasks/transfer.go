package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/services"
	"github.com/desertthunder/tmx/internal/shared"
	"golang.org/x/time/rate"
)

// ExportError is a failure to read a category from the source tenant.
type ExportError struct {
	Category models.Category
	Err      error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Category, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// reference is a field holding the id of a record of another category.
type reference struct {
	field  string
	target models.Category
	many   bool
}

var references = map[models.Category][]reference{
	models.CategoryContacts: {
		{field: "tagIds", target: models.CategoryTags, many: true},
	},
	models.CategoryOpportunities: {
		{field: "pipelineId", target: models.CategoryPipelines},
		{field: "contactId", target: models.CategoryContacts},
	},
	models.CategoryAppointments: {
		{field: "calendarId", target: models.CategoryCalendars},
		{field: "contactId", target: models.CategoryContacts},
	},
}

// naturalKeys returns the fields, in order of preference, used to find an
// existing destination record. Records of categories without keys are always
// created.
func naturalKeys(c models.Category, opts models.MigrationOptions) []string {
	switch c {
	case models.CategoryContacts:
		if opts.MergeDuplicateContacts {
			return []string{"email", "phone"}
		}
		return nil
	case models.CategoryOpportunities, models.CategoryAppointments:
		return nil
	default:
		return []string{"name"}
	}
}

// matchKey picks the first natural key the record has a value for.
func matchKey(c models.Category, opts models.MigrationOptions, record models.Record) (string, string) {
	for _, key := range naturalKeys(c, opts) {
		if v := record.String(key); v != "" {
			return key, v
		}
	}
	return "", ""
}

func exportOptions(opts models.MigrationOptions, pageSize int) services.ListOptions {
	return services.ListOptions{
		Limit:                pageSize,
		UpcomingOnly:         !opts.IncludeHistoricalAppointments,
		IncludeSubmissions:   opts.IncludeFormSubmissions,
		IncludeConversations: opts.IncludeConversationHistory,
	}
}

// exportCategory pages through a category of the source tenant and calls
// visit once per page. It stops early, without error, once stop reports true;
// stopped is then true and later pages were never read.
func exportCategory(
	ctx context.Context,
	s Settings,
	logger *log.Logger,
	tenant services.Tenant,
	c models.Category,
	opts models.MigrationOptions,
	stop func() bool,
	visit func([]models.Record) error,
) (stopped bool, err error) {
	list := exportOptions(opts, s.PageSize)
	for {
		if stop != nil && stop() {
			return true, nil
		}

		var page *services.RecordPage
		err := withRetry(ctx, s, logger, "list "+string(c), func() error {
			var err error
			page, err = tenant.ListRecords(ctx, c, list)
			return err
		})
		if err != nil {
			return false, &ExportError{Category: c, Err: err}
		}
		if err := visit(page.Records); err != nil {
			return false, err
		}
		if page.NextCursor == "" {
			return false, nil
		}
		list.Cursor = page.NextCursor
	}
}

// IDMap translates source record ids into destination ids, per category.
type IDMap struct {
	mu  sync.RWMutex
	ids map[models.Category]map[string]string
}

func NewIDMap() *IDMap {
	return &IDMap{ids: make(map[models.Category]map[string]string)}
}

func (m *IDMap) Put(c models.Category, sourceID, destID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ids[c] == nil {
		m.ids[c] = make(map[string]string)
	}
	m.ids[c][sourceID] = destID
}

func (m *IDMap) Lookup(c models.Category, sourceID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.ids[c][sourceID]
	return id, ok
}

// Len returns the number of mapped records of c.
func (m *IDMap) Len(c models.Category) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids[c])
}

// TransferUnit moves categories for one job. The limiter and id map are shared
// by every category of the job.
type TransferUnit struct {
	settings Settings
	limiter  *rate.Limiter
	ids      *IDMap
	logger   *log.Logger
}

func NewTransferUnit(settings Settings, logger *log.Logger) *TransferUnit {
	settings = settings.normalize()
	limit := rate.Inf
	if settings.RateLimit > 0 {
		limit = rate.Limit(settings.RateLimit)
	}
	return &TransferUnit{
		settings: settings,
		limiter:  rate.NewLimiter(limit, settings.Burst),
		ids:      NewIDMap(),
		logger:   logger,
	}
}

// IDs exposes the job's id map.
func (u *TransferUnit) IDs() *IDMap { return u.ids }

// TransferRequest describes one category transfer.
type TransferRequest struct {
	JobID       string
	Category    models.Category
	Source      services.Tenant
	Destination services.Tenant
	Options     models.MigrationOptions
	Progress    models.CategoryProgress // starting counters, normally pending with the analyzed total
	Token       *CancelToken

	// Report is called after every page with running progress and the record
	// errors of that page. A non-nil error aborts the transfer.
	Report func(models.CategoryProgress, []models.RecordError) error
}

type recordJob struct {
	record models.Record
}

type recordResult struct {
	sourceID string
	err      error
}

// Transfer exports a category from the source and upserts every record into
// the destination. The returned progress is always terminal. A cancellation
// that arrives after the last record was handled leaves the category completed.
//
// Per-record failures and a non-account export failure only affect the
// category. The error is non-nil when the job cannot go on: an account-level
// fault, a report failure or the end of ctx.
func (u *TransferUnit) Transfer(ctx context.Context, req TransferRequest) (models.CategoryProgress, error) {
	c := req.Category
	logger := shared.WithLogger(u.logger, "job", req.JobID, "category", c)

	progress := req.Progress
	progress.Status = models.ProgressRunning

	stop := func() bool {
		return ctx.Err() != nil || (req.Token != nil && req.Token.Cancelled())
	}

	var (
		fatal   error
		skipped bool // a page was cut short by cancellation
	)
	stopped, err := exportCategory(ctx, u.settings, logger, req.Source, c, req.Options, stop, func(records []models.Record) error {
		ok, failures, err := u.importPage(ctx, req, logger, records)
		progress.RecordSuccess(ok)
		progress.RecordFailure(len(failures))
		if ok+len(failures) < len(records) {
			skipped = true
		}
		if err != nil {
			fatal = err
		}
		if req.Report != nil {
			if rerr := req.Report(progress, failures); rerr != nil {
				return rerr
			}
		}
		return err
	})

	if fatal == nil && err != nil {
		var exportErr *ExportError
		if errors.As(err, &exportErr) && !sourceLost(err) && ctx.Err() == nil {
			logger.Warn("export failed", "err", err)
			if req.Report != nil {
				entry := recordError(req.JobID, c, "", models.PhaseExport, err)
				if rerr := req.Report(progress, []models.RecordError{entry}); rerr != nil {
					progress.Status = models.ProgressFailed
					return progress, rerr
				}
			}
			progress.Status = models.ProgressFailed
			return progress, nil
		}
		fatal = err
	}

	switch {
	case fatal != nil:
		progress.Status = models.ProgressFailed
		logger.Error("category aborted", "err", fatal)
		return progress, fatal
	case ctx.Err() != nil:
		progress.Status = models.ProgressFailed
		return progress, ctx.Err()
	case stopped || skipped:
		progress.Status = models.ProgressFailed
		logger.Info("category cancelled", "processed", progress.Processed)
		return progress, nil
	}

	progress.Status = models.ProgressCompleted
	logger.Info("category transferred", "successful", progress.Successful, "failed", progress.Failed)
	return progress, nil
}

// importPage writes one page of records on the worker pool. Records not yet
// handed to a worker when the job is cancelled or an account fault occurs are
// left unprocessed.
func (u *TransferUnit) importPage(
	ctx context.Context,
	req TransferRequest,
	logger *log.Logger,
	records []models.Record,
) (int, []models.RecordError, error) {
	if len(records) == 0 {
		return 0, nil, nil
	}

	var halt atomic.Bool
	jobs := make(chan recordJob, len(records))
	results := make(chan recordResult, len(records))

	var wg sync.WaitGroup
	for range min(u.settings.Workers, len(records)) {
		wg.Add(1)
		go u.importWorker(ctx, &wg, req, &halt, jobs, results)
	}

	go func() {
		defer close(jobs)
		for _, r := range records {
			if halt.Load() || ctx.Err() != nil || (req.Token != nil && req.Token.Cancelled()) {
				return
			}
			jobs <- recordJob{record: r}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var (
		successful int
		failures   []models.RecordError
		fatal      error
	)
	for res := range results {
		if res.err == nil {
			successful++
			continue
		}
		failures = append(failures, recordError(req.JobID, req.Category, res.sourceID, models.PhaseImport, res.err))
		if Classify(res.err) == FaultAccount && fatal == nil {
			fatal = res.err
		} else {
			logger.Debug("record failed", "record", res.sourceID, "err", res.err)
		}
	}
	return successful, failures, fatal
}

func (u *TransferUnit) importWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	req TransferRequest,
	halt *atomic.Bool,
	jobs <-chan recordJob,
	results chan<- recordResult,
) {
	defer wg.Done()

	for job := range jobs {
		if halt.Load() || (req.Token != nil && req.Token.Cancelled()) {
			continue
		}
		if err := u.limiter.Wait(ctx); err != nil {
			continue
		}

		destID, err := u.upsert(ctx, req, job.record)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if Classify(err) == FaultAccount {
				halt.Store(true)
			}
			results <- recordResult{sourceID: job.record.ID, err: err}
			continue
		}

		u.ids.Put(req.Category, job.record.ID, destID)
		results <- recordResult{sourceID: job.record.ID}
	}
}

// upsert writes one record to the destination and returns its destination id.
func (u *TransferUnit) upsert(ctx context.Context, req TransferRequest, source models.Record) (string, error) {
	c := req.Category
	record := u.remap(c, source)
	logger := shared.WithLogger(u.logger, "category", c, "record", source.ID)

	key, value := matchKey(c, req.Options, record)
	if key != "" {
		id, found, err := u.merge(ctx, req, logger, record, key, value)
		if err != nil || found {
			return id, err
		}
	}

	var id string
	err := withRetry(ctx, u.settings, logger, "create "+string(c), func() error {
		var err error
		id, err = req.Destination.CreateRecord(ctx, c, record)
		return err
	})
	if key != "" && errors.Is(err, shared.ErrConflict) {
		// Another worker created the same record since the lookup.
		mergedID, found, merr := u.merge(ctx, req, logger, record, key, value)
		if merr != nil {
			return "", merr
		}
		if found {
			return mergedID, nil
		}
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// merge looks up the destination record matching key=value and applies the
// overwrite policy to it. found is false when there is no such record.
func (u *TransferUnit) merge(
	ctx context.Context,
	req TransferRequest,
	logger *log.Logger,
	record models.Record,
	key, value string,
) (id string, found bool, err error) {
	c := req.Category

	var existing *models.Record
	err = withRetry(ctx, u.settings, logger, "find "+string(c), func() error {
		var err error
		existing, err = req.Destination.FindExisting(ctx, c, key, value)
		return err
	})
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return "", false, nil
	case err != nil:
		return "", false, err
	case !req.Options.OverwriteExisting:
		return existing.ID, true, nil
	}

	err = withRetry(ctx, u.settings, logger, "update "+string(c), func() error {
		return req.Destination.UpdateRecord(ctx, c, existing.ID, record)
	})
	if err != nil {
		return "", true, err
	}
	return existing.ID, true, nil
}

// remap rewrites references to other categories into destination ids.
// References that cannot be resolved are dropped.
func (u *TransferUnit) remap(c models.Category, source models.Record) models.Record {
	out := source.Clone()
	delete(out.Fields, "id")

	for _, ref := range references[c] {
		if _, ok := out.Fields[ref.field]; !ok {
			continue
		}
		if ref.many {
			var mapped []string
			for _, id := range source.Strings(ref.field) {
				if dest, ok := u.ids.Lookup(ref.target, id); ok {
					mapped = append(mapped, dest)
				}
			}
			if len(mapped) == 0 {
				delete(out.Fields, ref.field)
			} else {
				out.Fields[ref.field] = mapped
			}
			continue
		}
		if dest, ok := u.ids.Lookup(ref.target, source.String(ref.field)); ok {
			out.Fields[ref.field] = dest
		} else {
			delete(out.Fields, ref.field)
		}
	}
	return out
}

// sourceLost reports whether an export failure means the source account is
// unusable. A 403 on a single category only hides that category.
func sourceLost(err error) bool {
	return Classify(err) == FaultAccount && !errors.Is(err, shared.ErrForbidden)
}

func recordError(jobID string, c models.Category, recordID string, phase models.Phase, err error) models.RecordError {
	return models.RecordError{
		JobID:      jobID,
		Category:   c,
		RecordID:   recordID,
		Phase:      phase,
		Message:    err.Error(),
		OccurredAt: time.Now().UTC(),
	}
}
