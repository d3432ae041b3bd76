package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/tmx/internal/formatter"
	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Backup exports every category of the source account to a JSON file.
func (r *Runner) Backup(ctx context.Context, cmd *cli.Command) error {
	src, err := sourceCredentials(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("starting backup", "source", src.Ref())
	r.writePlain("Backing up %s...\n\n", src.TenantID)

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.AnalyzeSource:
				r.writePlain("📊 %s\n", update.Message)
			case tasks.ExportCategory:
				r.writePlain("   %s\n", update.Message)
			case tasks.ExportDone:
				r.writePlain("\n%s\n", update.Message)
			}
		}
	}()

	snapshot, err := tasks.NewBackupExporter(r.connector, r.settings, r.logger).Export(ctx, src, progressCh)
	close(progressCh)
	<-done

	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	path, err := formatter.WriteSnapshotFile(snapshot, cmd.String("output"))
	if err != nil {
		return err
	}

	r.writePlainHeader("Backup Complete!")
	r.writePlain("File: %s\n", path)
	for _, c := range models.Catalog() {
		if msg, ok := snapshot.Errors[c]; ok {
			r.writePlain("  ✗ %s: %s\n", c.Label(), msg)
		}
	}
	return nil
}
