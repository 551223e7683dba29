package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/labconsole/internal/theme"
)

// Layout manages the multi-panel terminal layout dimensions.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header and status bar.
func (l Layout) ContentHeight() int {
	return l.Height - l.HeaderHeight - l.StatusBarHeight
}

// RenderHeader renders the top header bar: the title, an optional
// unread badge, and the connection status on the right.
func (l Layout) RenderHeader(title, badge, status string) string {
	left := theme.HeaderStyle.Render(title)
	if badge != "" {
		left = lipgloss.JoinHorizontal(lipgloss.Top, left, theme.BadgeStyle.Render(badge))
	}

	statusRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Render(status)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		left,
		l.fill(theme.HeaderStyle, l.Width-lipgloss.Width(left)-lipgloss.Width(statusRendered)),
		statusRendered,
	)
}

// RenderStatusBar renders the bottom status bar. text is rendered with
// style, padded to the full width with the status bar background.
func (l Layout) RenderStatusBar(text string, style lipgloss.Style) string {
	rendered := style.Render(text)
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		rendered,
		l.fill(theme.StatusBarStyle, l.Width-lipgloss.Width(rendered)),
	)
}

// fill renders width blank cells in the background of style.
func (l Layout) fill(style lipgloss.Style, width int) string {
	if width < 0 {
		width = 0
	}
	return lipgloss.NewStyle().
		Width(width).
		Background(style.GetBackground()).
		Render("")
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, content area, and status bar.
func (l Layout) RenderWithFrame(
	header string,
	content string,
	statusBar string,
) string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		statusBar,
	)
}
