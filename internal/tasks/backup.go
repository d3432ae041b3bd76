package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/services"
	"github.com/desertthunder/tmx/internal/shared"
)

// BackupExporter captures a full [models.Snapshot] of a source tenant. It
// writes nothing to any tenant and creates no job.
type BackupExporter struct {
	connector services.Connector
	analyzer  *Analyzer
	settings  Settings
	logger    *log.Logger
}

func NewBackupExporter(connector services.Connector, settings Settings, logger *log.Logger) *BackupExporter {
	settings = settings.normalize()
	return &BackupExporter{
		connector: connector,
		analyzer:  NewAnalyzer(connector, settings, logger),
		settings:  settings,
		logger:    logger,
	}
}

// Export analyzes the source and then exports every catalog category with all
// include flags set. A category that cannot be read is recorded in
// Snapshot.Errors; an account-level failure aborts the backup.
//
// Progress messages are sent on progress, which may be nil, without blocking.
func (b *BackupExporter) Export(ctx context.Context, creds models.AccountCredentials, progress chan<- ProgressUpdate) (*models.Snapshot, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	tenant, err := b.connector.Connect(creds)
	if err != nil {
		return nil, err
	}
	logger := shared.WithLogger(b.logger, "tenant", creds.TenantID, "op", "backup")

	sendProgress(progress, analyzingUpdate(creds.TenantID))
	analysis, err := b.analyzer.analyze(ctx, tenant, creds.TenantID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze source: %w", err)
	}

	snapshot := &models.Snapshot{
		SourceAccount: creds.Ref(),
		CreatedAt:     time.Now().UTC(),
		Counts:        analysis.DataCounts,
		Warnings:      analysis.Warnings,
		Categories:    make(map[models.Category][]models.Record),
		Errors:        make(map[models.Category]string),
	}

	opts := models.FullExport()
	catalog := models.Catalog()
	for i, c := range catalog {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step := i + 1
		sendProgress(progress, exportingUpdate(step, len(catalog), c, analysis.DataCounts[c]))

		records := []models.Record{}
		_, err := exportCategory(ctx, b.settings, logger, tenant, c, opts, nil, func(page []models.Record) error {
			records = append(records, page...)
			return nil
		})
		switch {
		case err == nil:
			snapshot.Categories[c] = records
			sendProgress(progress, exportedUpdate(step, len(catalog), c, len(records)))
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case sourceLost(err):
			return nil, err
		default:
			logger.Warn("category export failed", "category", c, "err", err)
			snapshot.Errors[c] = err.Error()
			sendProgress(progress, exportFailedUpdate(step, len(catalog), c, err))
		}
	}

	sendProgress(progress, backupDoneUpdate(snapshot))
	logger.Info("backup complete", "categories", len(snapshot.Categories), "failed", len(snapshot.Errors))
	return snapshot, nil
}
