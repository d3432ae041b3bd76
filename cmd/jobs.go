package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/desertthunder/tmx/internal/formatter"
	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/shared"
	"github.com/desertthunder/tmx/internal/tasks"
	"github.com/desertthunder/tmx/internal/ui"
	"github.com/urfave/cli/v3"
)

// jobReader is the read side shared by the local store and a remote server.
type jobReader interface {
	ui.Jobs
	Recent(limit int) ([]tasks.JobSummary, error)
	ForDestination(tenantID string, limit int) ([]tasks.JobSummary, error)
	Errors(id string, limit int) ([]models.RecordError, error)
}

// localJobs reads jobs from this machine's store. Jobs run by other
// processes cannot be cancelled through it.
type localJobs struct {
	*tasks.Engine
	*tasks.History
}

// jobs returns the job source selected by --server and a func releasing it.
func (r *Runner) jobs(ctx context.Context, cmd *cli.Command) (jobReader, func(), error) {
	if remote := r.remote(ctx, cmd); remote != nil {
		return remote, func() {}, nil
	}

	db, store, err := r.openStore()
	if err != nil {
		return nil, nil, err
	}
	local := localJobs{Engine: r.newEngine(store), History: tasks.NewHistory(store)}
	return local, func() { db.Close() }, nil
}

func jobID(cmd *cli.Command) (string, error) {
	id := cmd.StringArg("id")
	if id == "" {
		return "", fmt.Errorf("%w: job id", shared.ErrMissingArgument)
	}
	return id, nil
}

// JobsStatus prints the current state of a job.
func (r *Runner) JobsStatus(ctx context.Context, cmd *cli.Command) error {
	id, err := jobID(cmd)
	if err != nil {
		return err
	}
	jobs, closeJobs, err := r.jobs(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeJobs()

	job, err := jobs.Status(id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(job.View(), cmd.Bool("pretty"))
	}
	r.writePlain("%s", formatter.JobToText(job))
	return nil
}

// JobsHistory lists recent jobs, newest first.
func (r *Runner) JobsHistory(ctx context.Context, cmd *cli.Command) error {
	jobs, closeJobs, err := r.jobs(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeJobs()

	limit := cmd.Int("limit")
	var summaries []tasks.JobSummary
	if dest := cmd.String("destination"); dest != "" {
		summaries, err = jobs.ForDestination(dest, limit)
	} else {
		summaries, err = jobs.Recent(limit)
	}
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if summaries == nil {
			summaries = []tasks.JobSummary{}
		}
		return r.writeJSON(summaries, cmd.Bool("pretty"))
	}
	r.writePlain("%s", formatter.HistoryToText(summaries))
	return nil
}

// JobsErrors writes a job's per-record error log as CSV.
func (r *Runner) JobsErrors(ctx context.Context, cmd *cli.Command) error {
	id, err := jobID(cmd)
	if err != nil {
		return err
	}
	jobs, closeJobs, err := r.jobs(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeJobs()

	entries, err := jobs.Errors(id, cmd.Int("limit"))
	if err != nil {
		return err
	}

	var w io.Writer = r.output
	if path := cmd.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
		r.logger.Info("writing error log", "job", id, "entries", len(entries), "path", path)
	}
	return formatter.WriteErrorsCSV(w, entries)
}

// JobsCancel requests cancellation of a running job.
func (r *Runner) JobsCancel(ctx context.Context, cmd *cli.Command) error {
	id, err := jobID(cmd)
	if err != nil {
		return err
	}
	jobs, closeJobs, err := r.jobs(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeJobs()

	if err := jobs.Cancel(id); err != nil {
		if errors.Is(err, shared.ErrServiceUnavailable) && cmd.String("server") == "" {
			return fmt.Errorf("%w; cancel it through the server running it with --server", err)
		}
		return err
	}
	r.writePlain("Cancellation requested for %s\n", id)
	return nil
}

// JobsWatch opens the watch view for a job, or the job list when no id is given.
func (r *Runner) JobsWatch(ctx context.Context, cmd *cli.Command) error {
	restore, err := r.useFileLogger()
	if err != nil {
		return err
	}
	defer restore()

	jobs, closeJobs, err := r.jobs(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeJobs()

	_, err = r.runWatch(ui.Options{
		Jobs:     jobs,
		History:  jobs,
		JobID:    cmd.StringArg("id"),
		Interval: r.config.Engine.PollInterval(),
	})
	return err
}
