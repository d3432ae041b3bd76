package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/tmx/internal/formatter"
	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/shared"
	"github.com/desertthunder/tmx/internal/tasks"
	"github.com/desertthunder/tmx/internal/ui"
	"github.com/urfave/cli/v3"
)

const engineShutdownTimeout = 30 * time.Second

// migrationOptions builds the job options from the migrate flags.
func migrationOptions(cmd *cli.Command) (models.MigrationOptions, error) {
	categories := models.Catalog()
	if names := cmd.StringSlice("category"); len(names) > 0 {
		parsed, err := models.ParseCategories(names)
		if err != nil {
			return models.MigrationOptions{}, err
		}
		categories = parsed
	}

	opts := models.MigrationOptions{
		Categories:                    categories,
		IncludeHistoricalAppointments: cmd.Bool("historical-appointments"),
		IncludeFormSubmissions:        cmd.Bool("form-submissions"),
		IncludeConversationHistory:    cmd.Bool("conversations"),
		MergeDuplicateContacts:        cmd.Bool("merge-duplicates"),
		OverwriteExisting:             cmd.Bool("overwrite"),
	}
	return opts, opts.Validate()
}

// Migrate starts a job in this process and watches it until it is terminal.
// Interrupting the watch cancels the job.
func (r *Runner) Migrate(ctx context.Context, cmd *cli.Command) error {
	src, err := sourceCredentials(cmd)
	if err != nil {
		return err
	}
	dst, err := destinationCredentials(cmd)
	if err != nil {
		return err
	}
	opts, err := migrationOptions(cmd)
	if err != nil {
		return err
	}

	interactive := !cmd.Bool("no-tui")
	if interactive {
		restore, err := r.useFileLogger()
		if err != nil {
			return err
		}
		defer restore()
	}

	db, store, err := r.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	engine := r.newEngine(store)
	if n, err := engine.Recover(); err != nil {
		r.logger.Warn("failed to recover interrupted jobs", "error", err)
	} else if n > 0 {
		r.writePlain("Marked %d interrupted job(s) as failed\n", n)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), engineShutdownTimeout)
		defer cancel()
		if err := engine.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("engine shutdown timed out", "error", err)
		}
	}()

	r.writePlain("Analyzing source account %s...\n", src.TenantID)
	var counts map[models.Category]int
	if analysis, err := tasks.NewAnalyzer(r.connector, r.settings, r.logger).Analyze(ctx, src, nil); err != nil {
		r.logger.Warn("analysis failed, category totals will grow as records arrive", "error", err)
	} else {
		counts = analysis.DataCounts
		r.writePlain("%d records, estimated %s\n", analysis.TotalRecords(), formatter.FormatMinutes(analysis.EstimatedDuration))
	}

	id, err := engine.StartJob(ctx, tasks.StartRequest{
		Source:      src,
		Destination: dst,
		Options:     opts,
		DataCounts:  counts,
	})
	if err != nil {
		return fmt.Errorf("failed to start migration: %w", err)
	}
	r.logger.Info("migration started", "job", id, "destination", dst.TenantID)
	r.writePlain("Started migration %s\n", id)

	if interactive {
		_, err = r.runWatch(ui.Options{Jobs: engine, JobID: id, Interval: r.config.Engine.PollInterval(), ExitOnDone: true})
	} else {
		sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		err = r.followJob(sigCtx, engine, id)
		stop()
	}
	if err != nil {
		r.logger.Warn("watch ended early", "error", err)
	}

	job, err := r.finishJob(engine, id)
	if err != nil {
		return err
	}

	r.writePlainln("%s", formatter.JobToText(job))
	if job.Status() == models.StatusFailed {
		return fmt.Errorf("migration %s failed: %s", id, job.ErrorMessage())
	}
	return nil
}

// followJob prints the job's current operation whenever it changes until the
// job is terminal or ctx ends.
func (r *Runner) followJob(ctx context.Context, jobs ui.Jobs, id string) error {
	ticker := time.NewTicker(r.config.Engine.PollInterval())
	defer ticker.Stop()

	var last string
	for {
		job, err := jobs.Status(id)
		if err != nil {
			return err
		}
		if line := fmt.Sprintf("[%5.1f%%] %s", job.Overall(), job.CurrentOperation()); line != last {
			r.writePlain("%s\n", line)
			last = line
		}
		if job.IsTerminal() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// finishJob cancels the job if it is still running and waits for its final state.
func (r *Runner) finishJob(engine *tasks.Engine, id string) (*models.MigrationJob, error) {
	job, err := engine.Status(id)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return job, nil
	}

	r.writePlain("Cancelling migration %s, waiting for in-flight records...\n", id)
	if err := engine.Cancel(id); err != nil && !errors.Is(err, shared.ErrJobTerminal) {
		return nil, fmt.Errorf("failed to cancel migration: %w", err)
	}
	return engine.Wait(context.Background(), id)
}
