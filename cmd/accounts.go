package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/desertthunder/tmx/internal/formatter"
	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/shared"
	"github.com/desertthunder/tmx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// sourceCredentials reads the source account from flags or the environment.
func sourceCredentials(cmd *cli.Command) (models.AccountCredentials, error) {
	creds := models.AccountCredentials{APIKey: cmd.String("source-key"), TenantID: cmd.String("source-tenant")}
	if err := creds.Validate(); err != nil {
		return creds, fmt.Errorf("source account (--source-key/%s, --source-tenant/%s): %w", envSourceKey, envSourceTenant, err)
	}
	return creds, nil
}

// destinationCredentials reads the destination account from flags or the environment.
func destinationCredentials(cmd *cli.Command) (models.AccountCredentials, error) {
	creds := models.AccountCredentials{APIKey: cmd.String("dest-key"), TenantID: cmd.String("dest-tenant")}
	if err := creds.Validate(); err != nil {
		return creds, fmt.Errorf("destination account (--dest-key/%s, --dest-tenant/%s): %w", envDestKey, envDestTenant, err)
	}
	return creds, nil
}

// Validate checks both accounts and prints the outcome of each side.
func (r *Runner) Validate(ctx context.Context, cmd *cli.Command) error {
	src, err := sourceCredentials(cmd)
	if err != nil {
		return err
	}
	dst, err := destinationCredentials(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("validating accounts", "source", src.Ref(), "destination", dst.Ref())
	result := tasks.NewValidator(r.connector, r.settings, r.logger).Validate(ctx, src, dst)

	if cmd.Bool("json") {
		if err := r.writeJSON(result, cmd.Bool("pretty")); err != nil {
			return err
		}
	} else {
		r.writePlain("%s", formatter.ValidationToText(result))
	}

	if !result.IsValid() {
		return fmt.Errorf("%w: account validation failed", shared.ErrInvalidCredentials)
	}
	return nil
}

// Analyze counts the source account's records per category.
func (r *Runner) Analyze(ctx context.Context, cmd *cli.Command) error {
	src, err := sourceCredentials(cmd)
	if err != nil {
		return err
	}

	var previous map[models.Category]int
	if path := cmd.String("previous"); path != "" {
		if previous, err = readPreviousCounts(path); err != nil {
			return err
		}
	}

	r.logger.Info("analyzing source account", "source", src.Ref())
	result, err := tasks.NewAnalyzer(r.connector, r.settings, r.logger).Analyze(ctx, src, previous)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}
	r.writePlain("%s", formatter.AnalysisToText(result))
	return nil
}

// readPreviousCounts loads the counts of an earlier `tmx analyze --json` run.
func readPreviousCounts(path string) (map[models.Category]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read previous analysis: %w", err)
	}
	var previous models.AnalysisResult
	if err := json.Unmarshal(data, &previous); err != nil {
		return nil, fmt.Errorf("%w: previous analysis is not valid JSON: %v", shared.ErrInvalidInput, err)
	}
	return previous.DataCounts, nil
}
