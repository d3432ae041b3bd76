// Package ui implements the operator's terminal view of migration jobs using bubbletea's Elm architecture.
//
// The TUI has three views:
//  1. [ListView] : Browse recent jobs from the history and pick one to watch
//  2. [WatchView] : Overall and per-category progress of one job, refreshed on a tick
//  3. [ConfirmView] : Confirm a cancel request for a running job
//
// [Model] implements bubbletea's Init/Update/View pattern, receiving messages via the [Msg] union type.
// Every tick re-reads the job from its [Jobs] source, so the view shows what the store holds and
// never a cached copy. Polling stops once the job is terminal.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, c, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
