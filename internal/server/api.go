package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tmx/internal/formatter"
	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/shared"
	"github.com/desertthunder/tmx/internal/tasks"
	"github.com/go-chi/chi/v5"
)

const (
	maxBodyBytes        = 1 << 20
	defaultHistoryLimit = 50
	defaultErrorLimit   = 500
)

// API serves the engine operations as JSON endpoints. See the package documentation for the routes.
type API struct {
	engine       *tasks.Engine
	validator    *tasks.Validator
	analyzer     *tasks.Analyzer
	history      *tasks.History
	backup       *tasks.BackupExporter
	pollInterval time.Duration
	logger       *log.Logger
}

// APIConfig collects the components behind the API.
type APIConfig struct {
	Engine       *tasks.Engine
	Validator    *tasks.Validator
	Analyzer     *tasks.Analyzer
	History      *tasks.History
	Backup       *tasks.BackupExporter
	PollInterval time.Duration
	Logger       *log.Logger
}

func NewAPI(c APIConfig) *API {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	return &API{
		engine:       c.Engine,
		validator:    c.Validator,
		analyzer:     c.Analyzer,
		history:      c.History,
		backup:       c.Backup,
		pollInterval: c.PollInterval,
		logger:       c.Logger,
	}
}

// Routes implements [Handler].
func (a *API) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/validate", a.validate)
		r.Post("/analyze", a.analyze)
		r.Post("/backup", a.exportBackup)
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", a.listJobs)
			r.Post("/", a.startJob)
			r.Get("/{id}", a.jobStatus)
			r.Delete("/{id}", a.cancelJob)
			r.Get("/{id}/errors", a.jobErrors)
			r.Get("/{id}/events", a.jobEvents)
		})
	})
}

type validateRequest struct {
	SourceAccount      models.AccountCredentials `json:"sourceAccount"`
	DestinationAccount models.AccountCredentials `json:"destinationAccount"`
}

type analyzeRequest struct {
	SourceAccount  models.AccountCredentials `json:"sourceAccount"`
	PreviousCounts map[models.Category]int   `json:"previousCounts,omitempty"`
}

type startJobRequest struct {
	SourceAccount      models.AccountCredentials `json:"sourceAccount"`
	DestinationAccount models.AccountCredentials `json:"destinationAccount"`
	Options            models.MigrationOptions   `json:"options"`
	DataCounts         map[models.Category]int   `json:"dataCounts,omitempty"`
}

type startJobResponse struct {
	JobID string `json:"jobId"`
}

type cancelJobResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !a.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, a.validator.Validate(r.Context(), req.SourceAccount, req.DestinationAccount))
}

func (a *API) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !a.decode(w, r, &req) {
		return
	}
	result, err := a.analyzer.Analyze(r.Context(), req.SourceAccount, req.PreviousCounts)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) exportBackup(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !a.decode(w, r, &req) {
		return
	}
	snapshot, err := a.backup.Export(r.Context(), req.SourceAccount, nil)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", formatter.SnapshotFilename(snapshot)))
	w.WriteHeader(http.StatusOK)
	if err := formatter.WriteSnapshot(w, snapshot); err != nil {
		a.logger.Warn("failed to write backup", "err", err)
	}
}

func (a *API) startJob(w http.ResponseWriter, r *http.Request) {
	var req startJobRequest
	if !a.decode(w, r, &req) {
		return
	}
	id, err := a.engine.StartJob(r.Context(), tasks.StartRequest{
		Source:      req.SourceAccount,
		Destination: req.DestinationAccount,
		Options:     req.Options,
		DataCounts:  req.DataCounts,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, startJobResponse{JobID: id})
}

func (a *API) jobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := a.engine.Status(chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job.View())
}

func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.engine.Cancel(id); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, cancelJobResponse{JobID: id, Status: "cancelling"})
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultHistoryLimit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	var summaries []tasks.JobSummary
	if dest := r.URL.Query().Get("destination"); dest != "" {
		summaries, err = a.history.ForDestination(dest, limit)
	} else {
		summaries, err = a.history.Recent(limit)
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []tasks.JobSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (a *API) jobErrors(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultErrorLimit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	entries, err := a.engine.Errors(chi.URLParam(r, "id"), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.RecordError{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// decode reads a JSON body into v, writing a 400 on failure.
func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		a.writeError(w, r, fmt.Errorf("%w: malformed request body: %v", shared.ErrInvalidInput, err))
		return false
	}
	return true
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrMissingCredentials),
		errors.Is(err, shared.ErrInvalidCredentials):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrDestinationBusy), errors.Is(err, shared.ErrJobTerminal):
		return http.StatusConflict
	case errors.Is(err, shared.ErrUnauthorized),
		errors.Is(err, shared.ErrForbidden),
		errors.Is(err, shared.ErrUnreachable),
		errors.Is(err, shared.ErrTimeout):
		return http.StatusBadGateway
	case errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func queryLimit(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", shared.ErrInvalidArgument)
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
