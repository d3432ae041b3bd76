package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/tmx/internal/server"
	"github.com/desertthunder/tmx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP API until interrupted. Jobs still running at shutdown
// are stopped and marked interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
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
		r.logger.Info("marked interrupted jobs as failed", "count", n)
	}

	api := server.NewAPI(server.APIConfig{
		Engine:       engine,
		Validator:    tasks.NewValidator(r.connector, r.settings, r.logger),
		Analyzer:     tasks.NewAnalyzer(r.connector, r.settings, r.logger),
		History:      tasks.NewHistory(store),
		Backup:       tasks.NewBackupExporter(r.connector, r.settings, r.logger),
		PollInterval: r.config.Engine.PollInterval(),
		Logger:       r.logger,
	})
	srv := server.New(addr, server.NewRouter(r.logger, api), r.logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := srv.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), engineShutdownTimeout)
	defer cancel()
	if err := engine.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("engine shutdown timed out", "error", err)
	}
	return serveErr
}
