package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/tmx/internal/models"
	"github.com/go-chi/chi/v5"
)

// jobEvents streams a job's state as server-sent events. It polls the store and sends a
// "progress" event whenever the job changed and a "done" event once it is terminal.
func (a *API) jobEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := a.engine.Status(id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		a.writeError(w, r, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	var last time.Time
	for {
		if !job.UpdatedAt().Equal(last) {
			last = job.UpdatedAt()
			if err := writeEvent(w, "progress", job.View()); err != nil {
				return
			}
			flusher.Flush()
		}
		if job.IsTerminal() {
			if err := writeEvent(w, "done", doneEvent(job)); err == nil {
				flusher.Flush()
			}
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		if job, err = a.engine.Status(id); err != nil {
			a.logger.Warn("event stream poll failed", "job", id, "err", err)
			return
		}
	}
}

type doneEventData struct {
	JobID  string           `json:"jobId"`
	Status models.JobStatus `json:"status"`
	Error  string           `json:"error,omitempty"`
}

func doneEvent(job *models.MigrationJob) doneEventData {
	return doneEventData{JobID: job.ID(), Status: job.Status(), Error: job.ErrorMessage()}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
