package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/services"
	"github.com/desertthunder/tmx/internal/shared"
)

const interruptedMessage = "interrupted: engine restarted"

// JobStore persists jobs and their error logs.
//
// Running jobs are leased to the engine that started them. Engines sharing a
// store only take over a job once its lease has expired.
type JobStore interface {
	models.Repository[*models.MigrationJob]
	CreateLeased(job *models.MigrationJob, owner string, until time.Time) error
	RenewLease(id, owner string, until time.Time) error
	Reclaim(job *models.MigrationJob, now time.Time) error
	AppendErrors(entries []models.RecordError) error
	ListErrors(jobID string, limit int) ([]models.RecordError, error)
}

// StartRequest carries everything needed to start a job. The credentials stay
// in memory for the lifetime of the job and are never persisted.
type StartRequest struct {
	Source      models.AccountCredentials
	Destination models.AccountCredentials
	Options     models.MigrationOptions
	DataCounts  map[models.Category]int
}

type run struct {
	token       *CancelToken
	done        chan struct{}
	destination string
}

// Engine runs migration jobs. Each job executes on its own goroutine and is
// the only writer of its [models.MigrationJob]; everyone else reads the store.
type Engine struct {
	connector services.Connector
	store     JobStore
	settings  Settings
	logger    *log.Logger
	validator *Validator
	owner     string

	mu      sync.Mutex
	running map[string]*run   // job id -> run
	busy    map[string]string // destination tenant -> job id
	wg      sync.WaitGroup

	ctx  context.Context
	stop context.CancelFunc
}

func NewEngine(connector services.Connector, store JobStore, settings Settings, logger *log.Logger) *Engine {
	settings = settings.normalize()
	ctx, stop := context.WithCancel(context.Background())
	return &Engine{
		connector: connector,
		store:     store,
		settings:  settings,
		logger:    logger,
		validator: NewValidator(connector, settings, logger),
		owner:     shared.GenerateID(),
		running:   make(map[string]*run),
		busy:      make(map[string]string),
		ctx:       ctx,
		stop:      stop,
	}
}

// StartJob stores a pending job and runs it in the background. The job is
// detached from ctx, which only bounds the start itself.
//
// A second job for a destination that already has a running job, in this
// engine or in another one sharing the store, is rejected with
// [shared.ErrDestinationBusy].
func (e *Engine) StartJob(ctx context.Context, req StartRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := req.Source.Validate(); err != nil {
		return "", fmt.Errorf("source account: %w", err)
	}
	if err := req.Destination.Validate(); err != nil {
		return "", fmt.Errorf("destination account: %w", err)
	}
	if err := req.Options.Validate(); err != nil {
		return "", err
	}
	if e.ctx.Err() != nil {
		return "", fmt.Errorf("%w: engine is shutting down", shared.ErrServiceUnavailable)
	}

	dest := req.Destination.TenantID

	e.mu.Lock()
	defer e.mu.Unlock()

	if id, ok := e.busy[dest]; ok {
		return "", fmt.Errorf("%w: %s is in use by job %s", shared.ErrDestinationBusy, dest, id)
	}

	job := models.NewMigrationJob(req.Source.Ref(), req.Destination.Ref(), req.Options, req.DataCounts)
	if err := e.store.CreateLeased(job, e.owner, time.Now().Add(e.settings.LeaseTTL)); err != nil {
		if errors.Is(err, shared.ErrDestinationBusy) {
			return "", err
		}
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	r := &run{token: NewCancelToken(), done: make(chan struct{}), destination: dest}
	e.running[job.ID()] = r
	e.busy[dest] = job.ID()
	e.wg.Add(2)

	go e.heartbeat(job.ID(), r)
	e.logger.Info("job started", "job", job.ID(), "source", job.Source(), "destination", job.Destination(), "categories", len(req.Options.Categories))
	go e.execute(job, req, r)

	return job.ID(), nil
}

// Status returns the persisted state of a job.
func (e *Engine) Status(id string) (*models.MigrationJob, error) {
	return e.store.Get(id)
}

// Cancel requests cooperative cancellation of a running job.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	r, ok := e.running[id]
	e.mu.Unlock()

	if ok {
		r.token.Cancel()
		e.logger.Info("cancellation requested", "job", id)
		return nil
	}

	job, err := e.store.Get(id)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", shared.ErrJobTerminal, id, job.Status())
	}
	return fmt.Errorf("%w: job %s is not running in this process", shared.ErrServiceUnavailable, id)
}

// Wait blocks until the job is terminal or ctx ends and returns its persisted state.
func (e *Engine) Wait(ctx context.Context, id string) (*models.MigrationJob, error) {
	e.mu.Lock()
	r, ok := e.running[id]
	e.mu.Unlock()

	if ok {
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return e.store.Get(id)
}

// Errors returns up to limit entries of a job's error log.
func (e *Engine) Errors(id string, limit int) ([]models.RecordError, error) {
	if _, err := e.store.Get(id); err != nil {
		return nil, err
	}
	return e.store.ListErrors(id, limit)
}

// Recover fails jobs left non-terminal by an engine that is gone, i.e. whose
// lease has expired. Jobs still leased by a live engine are left alone. It
// returns the number of jobs marked.
func (e *Engine) Recover() (int, error) {
	now := time.Now()
	jobs, err := e.store.List(map[string]any{"expired": now})
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, job := range jobs {
		e.mu.Lock()
		_, live := e.running[job.ID()]
		e.mu.Unlock()
		if live {
			continue
		}

		if err := job.Fail(interruptedMessage); err != nil {
			return recovered, err
		}
		err := e.store.Reclaim(job, now)
		if errors.Is(err, shared.ErrJobLeased) || errors.Is(err, shared.ErrJobTerminal) {
			continue
		}
		if err != nil {
			return recovered, err
		}
		e.logger.Warn("recovered interrupted job", "job", job.ID(), "destination", job.Destination().TenantID)
		recovered++
	}
	return recovered, nil
}

// heartbeat renews the lease of a running job until it finishes.
func (e *Engine) heartbeat(id string, r *run) {
	defer e.wg.Done()

	ticker := time.NewTicker(max(e.settings.LeaseTTL/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			err := e.store.RenewLease(id, e.owner, time.Now().Add(e.settings.LeaseTTL))
			if errors.Is(err, shared.ErrJobTerminal) {
				return
			}
			if err != nil {
				e.logger.Warn("could not renew job lease", "job", id, "err", err)
			}
		}
	}
}

// Shutdown stops every running job and waits for them to persist their final
// state, or for ctx to end.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.stop()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) finish(id string, r *run) {
	e.mu.Lock()
	delete(e.running, id)
	if e.busy[r.destination] == id {
		delete(e.busy, r.destination)
	}
	e.mu.Unlock()

	close(r.done)
	e.wg.Done()
}

// execute drives one job through its lifecycle.
func (e *Engine) execute(job *models.MigrationJob, req StartRequest, r *run) {
	defer e.finish(job.ID(), r)

	ctx := e.ctx
	logger := shared.WithLogger(e.logger, "job", job.ID())

	if err := e.advance(job, models.StatusValidating, "Validating accounts"); err != nil {
		logger.Error("could not start job", "err", err)
		return
	}

	result := e.validator.Validate(ctx, req.Source, req.Destination)
	if !result.IsValid() {
		e.fail(job, logger, validationMessage(result))
		return
	}

	plan, err := Plan(job.Options().Categories, job.Options())
	if err == nil {
		err = job.SetPlan(plan)
	}
	if err != nil {
		e.fail(job, logger, fmt.Sprintf("planning failed: %v", err))
		return
	}

	if err := e.advance(job, models.StatusExporting, "Preparing migration"); err != nil {
		logger.Error("could not persist job", "err", err)
		return
	}

	source, err := e.connector.Connect(req.Source)
	if err != nil {
		e.fail(job, logger, fmt.Sprintf("source account: %s", describeAccountError(err)))
		return
	}
	destination, err := e.connector.Connect(req.Destination)
	if err != nil {
		e.fail(job, logger, fmt.Sprintf("destination account: %s", describeAccountError(err)))
		return
	}

	unit := NewTransferUnit(e.settings, logger)
	cancelled := false

	for _, c := range plan {
		if r.token.Cancelled() {
			cancelled = true
			break
		}

		var startErr error
		started := r.token.Unless(func() {
			p, _ := job.Category(c)
			p.Status = models.ProgressRunning
			if startErr = job.UpdateCategory(c, p); startErr != nil {
				return
			}
			if startErr = job.SetCurrentOperation(fmt.Sprintf("Exporting %s", c.Label())); startErr != nil {
				return
			}
			startErr = e.store.Update(job)
		})
		if !started {
			cancelled = true
			break
		}
		if startErr != nil {
			e.fail(job, logger, fmt.Sprintf("category %s: %v", c, startErr))
			return
		}

		initial, _ := job.Category(c)
		final, err := unit.Transfer(ctx, TransferRequest{
			JobID:       job.ID(),
			Category:    c,
			Source:      source,
			Destination: destination,
			Options:     job.Options(),
			Progress:    initial,
			Token:       r.token,
			Report: func(p models.CategoryProgress, errs []models.RecordError) error {
				return e.report(job, logger, c, p, errs)
			},
		})

		if uerr := job.UpdateCategory(c, final); uerr != nil {
			logger.Error("could not finalize category", "category", c, "err", uerr)
		}
		if err != nil {
			e.fail(job, logger, failureMessage(c, err))
			return
		}
		if perr := e.store.Update(job); perr != nil {
			logger.Error("could not persist job", "err", perr)
			return
		}
		if r.token.Cancelled() {
			cancelled = true
			break
		}
	}

	if cancelled {
		if err := e.advance(job, models.StatusCancelled, "Cancelled"); err != nil {
			logger.Error("could not cancel job", "err", err)
			return
		}
		logger.Info("job cancelled", "overall", job.Overall())
		return
	}

	if job.Status() == models.StatusExporting {
		if err := job.Transition(models.StatusImporting); err != nil {
			logger.Error("could not finish job", "err", err)
			return
		}
	}
	if err := e.advance(job, models.StatusCompleted, "Migration complete"); err != nil {
		logger.Error("could not finish job", "err", err)
		return
	}
	logger.Info("job completed", "overall", job.Overall())
}

// report applies a batch of progress from a running category and persists it
// before the transfer continues.
func (e *Engine) report(job *models.MigrationJob, logger *log.Logger, c models.Category, p models.CategoryProgress, errs []models.RecordError) error {
	if len(errs) > 0 {
		if err := e.store.AppendErrors(errs); err != nil {
			logger.Warn("could not append error log", "category", c, "count", len(errs), "err", err)
		}
	}
	if job.Status() == models.StatusExporting && p.Processed > 0 {
		if err := job.Transition(models.StatusImporting); err != nil {
			return err
		}
	}
	if err := job.UpdateCategory(c, p); err != nil {
		return err
	}
	if err := job.SetCurrentOperation(fmt.Sprintf("Importing %s: %d/%d", c.Label(), p.Processed, p.Total)); err != nil {
		return err
	}
	return e.store.Update(job)
}

// advance moves the job to status with a new current operation and persists it.
func (e *Engine) advance(job *models.MigrationJob, status models.JobStatus, op string) error {
	if err := job.SetCurrentOperation(op); err != nil {
		return err
	}
	if err := job.Transition(status); err != nil {
		return err
	}
	return e.store.Update(job)
}

func (e *Engine) fail(job *models.MigrationJob, logger *log.Logger, cause string) {
	if job.IsTerminal() {
		return
	}
	if err := job.Fail(cause); err != nil {
		logger.Error("could not fail job", "err", err)
		return
	}
	if err := e.store.Update(job); err != nil {
		logger.Error("could not persist failed job", "err", err)
		return
	}
	logger.Error("job failed", "cause", cause)
}

func validationMessage(result models.ValidationResult) string {
	var parts []string
	if !result.SourceAccount.IsValid {
		parts = append(parts, "source account: "+result.SourceAccount.Error)
	}
	if !result.DestinationAccount.IsValid {
		parts = append(parts, "destination account: "+result.DestinationAccount.Error)
	}
	msg := "validation failed"
	for _, p := range parts {
		msg += "; " + p
	}
	return msg
}

func failureMessage(c models.Category, err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "interrupted: engine shutting down"
	case Classify(err) == FaultAccount:
		var exportErr *ExportError
		side := "destination account"
		if errors.As(err, &exportErr) {
			side = "source account"
		}
		return fmt.Sprintf("%s: %s (while migrating %s)", side, describeAccountError(err), c.Label())
	}
	return fmt.Sprintf("%s: %v", c.Label(), err)
}
