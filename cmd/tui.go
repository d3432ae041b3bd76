package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tmx/internal/shared"
	"github.com/desertthunder/tmx/internal/ui"
)

const tuiLogPath = "./tmp/tmx-tui.log"

// useFileLogger redirects logs to a file so they do not interfere with TUI
// rendering. The returned func restores the previous logger.
func (r *Runner) useFileLogger() (func(), error) {
	fileLogger, err := shared.NewFileLogger(tuiLogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.SetLogLevel(fileLogger, r.logger.GetLevel())

	previous := r.logger
	r.SetLogger(fileLogger)
	return func() { r.SetLogger(previous) }, nil
}

// runWatch runs the watch view until the operator quits or, with
// [ui.Options.ExitOnDone], the job finishes.
func (r *Runner) runWatch(opts ui.Options) (*ui.Model, error) {
	model := ui.NewModel(opts)
	p := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return nil, fmt.Errorf("error running TUI: %w", err)
	}

	return model, model.Err()
}
