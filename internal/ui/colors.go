package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/tmx/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	label lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
		label: lipgloss.NewStyle().Width(labelWidth),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// statusStyle picks the style a job status is rendered in.
func statusStyle(s models.JobStatus) lipgloss.Style {
	switch s {
	case models.StatusCompleted:
		return styles.ok
	case models.StatusFailed:
		return styles.err
	case models.StatusCancelled:
		return styles.warn
	default:
		return lipgloss.NewStyle()
	}
}
