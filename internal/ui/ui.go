package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/tasks"
)

const (
	labelWidth      = 16
	defaultBarWidth = 40
	historyLimit    = 50
	defaultInterval = 500 * time.Millisecond
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ListView ViewState = iota
	WatchView
	ConfirmView
)

// Jobs reads and cancels jobs. [tasks.Engine] satisfies it for jobs run in this
// process; a remote API client can be adapted to it.
type Jobs interface {
	Status(id string) (*models.MigrationJob, error)
	Cancel(id string) error
}

// History lists recent jobs for [ListView].
type History interface {
	Recent(limit int) ([]tasks.JobSummary, error)
}

// Options configures a [Model].
type Options struct {
	Jobs       Jobs
	History    History // nil disables the job list
	JobID      string  // job to watch first; empty starts in the job list
	Interval   time.Duration
	ExitOnDone bool // quit once the watched job is terminal
}

// Model represents the TUI application state.
type Model struct {
	jobs       Jobs
	history    History
	interval   time.Duration
	exitOnDone bool
	view       ViewState
	width      int
	height     int
	jobList    list.Model
	listReady  bool
	jobID      string
	watch      int
	job        *models.MigrationJob
	notice     string
	err        error
	bar        progress.Model
	help       help.Model
	keys       keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(o Options) *Model {
	if o.Interval <= 0 {
		o.Interval = defaultInterval
	}
	m := &Model{
		jobs:       o.Jobs,
		history:    o.History,
		interval:   o.Interval,
		exitOnDone: o.ExitOnDone,
		view:       ListView,
		jobID:      o.JobID,
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithWidth(defaultBarWidth)),
		help:       help.New(),
		keys:       newKeyMap(),
	}
	if o.JobID != "" {
		m.view = WatchView
	}
	return m
}

// Job returns the most recently polled state of the watched job.
func (m *Model) Job() *models.MigrationJob { return m.job }

// Err returns the error that stopped the view, if any.
func (m *Model) Err() error { return m.err }

// Init fetches the job list or starts polling the requested job.
func (m *Model) Init() tea.Cmd {
	if m.view == WatchView {
		return m.poll()
	}
	return m.fetchJobs()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = min(max(msg.Width-labelWidth-24, 10), defaultBarWidth)
		if m.listReady {
			m.jobList.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ListView:
			return m.handleListKeys(msg)
		case WatchView:
			return m.handleWatchKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	if m.view == ListView && m.listReady {
		var cmd tea.Cmd
		m.jobList, cmd = m.jobList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgJobsFetched:
		data := msg.data.(jobsFetched)
		if data.err != nil {
			m.err = data.err
			return m, tea.Quit
		}
		items := make([]list.Item, len(data.jobs))
		for i, job := range data.jobs {
			items[i] = jobItem{job: job}
		}
		m.jobList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.jobList.Title = "Migration Jobs"
		m.jobList.SetSize(m.width-4, m.height-8)
		m.listReady = true
		return m, nil

	case MsgJobPolled:
		data := msg.data.(jobPolled)
		if data.watch != m.watch || m.view == ListView {
			return m, nil
		}
		if data.err != nil {
			m.err = data.err
			if m.exitOnDone {
				return m, tea.Quit
			}
			return m, nil
		}
		m.job = data.job
		if data.job.IsTerminal() {
			if m.view == ConfirmView {
				m.view = WatchView
			}
			if m.exitOnDone {
				return m, tea.Quit
			}
			return m, nil
		}
		return m, tick(m.watch, m.interval)

	case MsgTick:
		if msg.data.(int) != m.watch || m.view == ListView {
			return m, nil
		}
		return m, m.poll()

	case MsgCancelRequested:
		if err, _ := msg.data.(error); err != nil {
			m.notice = fmt.Sprintf("Cancel failed: %v", err)
		} else {
			m.notice = "Cancellation requested, finishing in-flight records..."
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !m.listReady {
		if key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
		return m, nil
	}
	if m.jobList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.jobList, cmd = m.jobList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.jobList.SelectedItem().(jobItem); ok {
			return m, m.startWatch(item.job.ID)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.jobList, cmd = m.jobList.Update(msg)
	return m, cmd
}

func (m *Model) handleWatchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.cancel):
		if m.job != nil && !m.job.IsTerminal() {
			m.view = ConfirmView
		}
	case key.Matches(msg, m.keys.back):
		if m.history != nil {
			m.view = ListView
			m.watch++
			m.job, m.err, m.notice = nil, nil, ""
			return m, m.fetchJobs()
		}
	}
	return m, nil
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = WatchView
		return m, m.cancelJob()
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.quit):
		m.view = WatchView
	}
	return m, nil
}

// startWatch switches to [WatchView] for id. Bumping watch orphans the
// tick loop of the previous job.
func (m *Model) startWatch(id string) tea.Cmd {
	m.watch++
	m.jobID = id
	m.job, m.err, m.notice = nil, nil, ""
	m.view = WatchView
	return m.poll()
}

func (m *Model) fetchJobs() tea.Cmd {
	return func() tea.Msg {
		if m.history == nil {
			return jobsFetchedMsg(nil, errors.New("no job history available"))
		}
		jobs, err := m.history.Recent(historyLimit)
		return jobsFetchedMsg(jobs, err)
	}
}

func (m *Model) poll() tea.Cmd {
	watch, id := m.watch, m.jobID
	return func() tea.Msg {
		job, err := m.jobs.Status(id)
		return jobPolledMsg(watch, job, err)
	}
}

func (m *Model) cancelJob() tea.Cmd {
	id := m.jobID
	return func() tea.Msg {
		return cancelRequestedMsg(m.jobs.Cancel(id))
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case ListView:
		if m.err != nil {
			return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
		}
		return m.renderList()
	case WatchView:
		return m.renderWatch()
	case ConfirmView:
		return m.renderConfirm()
	default:
		return ""
	}
}

func (m *Model) renderList() string {
	if !m.listReady {
		return "Loading jobs..."
	}
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.jobList.View(), helpView)
}

func (m *Model) renderWatch() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Migration " + m.jobID))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
		b.WriteString(m.help.ShortHelpView(m.watchKeys()))
		return b.String()
	}
	if m.job == nil {
		b.WriteString("Loading...\n")
		return b.String()
	}

	job := m.job
	fmt.Fprintf(&b, "%s → %s\n", job.Source(), job.Destination())
	fmt.Fprintf(&b, "Status: %s\n", statusStyle(job.Status()).Render(string(job.Status())))
	if op := job.CurrentOperation(); op != "" {
		fmt.Fprintf(&b, "%s\n", styles.help.Render(op))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s %5.1f%%\n\n", styles.label.Render("Overall"), m.bar.ViewAs(job.Overall()/100), job.Overall())

	for _, c := range job.Categories() {
		p, _ := job.Category(c)
		line := fmt.Sprintf("%s %s %d/%d", styles.label.Render(c.Label()), m.bar.ViewAs(p.Completion()), p.Processed, p.Total)
		if p.Failed > 0 {
			line += styles.warn.Render(fmt.Sprintf(" (%d failed)", p.Failed))
		}
		if p.Status == models.ProgressFailed {
			line += styles.err.Render(" failed")
		}
		b.WriteString(line + "\n")
	}

	switch job.Status() {
	case models.StatusCompleted:
		b.WriteString("\n" + styles.ok.Render("✓ Migration complete"))
	case models.StatusFailed:
		b.WriteString("\n" + styles.err.Render("Migration failed: "+job.ErrorMessage()))
	case models.StatusCancelled:
		b.WriteString("\n" + styles.warn.Render("Migration cancelled"))
	}
	if m.notice != "" && !job.IsTerminal() {
		b.WriteString("\n" + styles.warn.Render(m.notice))
	}

	b.WriteString("\n\n")
	b.WriteString(m.help.ShortHelpView(m.watchKeys()))
	return b.String()
}

func (m *Model) watchKeys() []key.Binding {
	keys := []key.Binding{}
	if m.job != nil && !m.job.IsTerminal() {
		keys = append(keys, m.keys.cancel)
	}
	if m.history != nil {
		keys = append(keys, m.keys.back)
	}
	return append(keys, m.keys.quit)
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Cancel migration %s?", m.jobID))
	info := "\nRecords already written to the destination stay there.\nIn-flight records finish before the job stops.\n"
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no})
	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}
