package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgJobsFetched MsgKind = iota
	MsgJobPolled
	MsgTick
	MsgCancelRequested
)

type jobsFetched struct {
	jobs []tasks.JobSummary
	err  error
}

type jobPolled struct {
	watch int
	job   *models.MigrationJob
	err   error
}

// jobsFetchedMsg is the constructor for [MsgJobsFetched]
func jobsFetchedMsg(jobs []tasks.JobSummary, err error) Msg {
	return Msg{kind: MsgJobsFetched, data: jobsFetched{jobs, err}}
}

// jobPolledMsg is the constructor for [MsgJobPolled]. watch identifies the
// watch session the poll belongs to so stale results can be dropped.
func jobPolledMsg(watch int, job *models.MigrationJob, err error) Msg {
	return Msg{kind: MsgJobPolled, data: jobPolled{watch, job, err}}
}

// tickMsg is the constructor for [MsgTick]
func tickMsg(watch int) Msg {
	return Msg{kind: MsgTick, data: watch}
}

// cancelRequestedMsg is the constructor for [MsgCancelRequested]
func cancelRequestedMsg(err error) Msg {
	return Msg{kind: MsgCancelRequested, data: err}
}

func tick(watch int, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return tickMsg(watch) })
}
