package notiflist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/labconsole/internal/model"
	"github.com/nhle/labconsole/internal/theme"
)

// Item wraps a model.Notification so it can be used in a bubbles/list.
type Item struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Notification.Title }

// Title returns the notification title for the list.
func (i Item) Title() string { return i.Notification.Title }

// Description returns a short summary line for the list.
func (i Item) Description() string {
	parts := []string{string(i.Notification.Type), relativeTime(i.Notification.Timestamp)}
	if i.Notification.Message != "" {
		parts = append([]string{i.Notification.Message}, parts...)
	}
	return strings.Join(parts, " | ")
}

// ItemDelegate implements list.ItemDelegate for rendering notifications.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 2 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws the title line and the message line of one notification.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	n := it.Notification
	isSelected := index == m.Index()

	dot := " "
	if n.Unread() {
		dot = lipgloss.NewStyle().Foreground(theme.ColorBlue).Render("●")
	}

	typ := string(n.Type)
	icon := theme.TypeStyle(typ).Render(theme.TypeIcon(typ))

	timeStr := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(n.Timestamp))

	title := n.Title
	if title == "" {
		title = "(untitled)"
	}

	width := m.Width() - 6
	message := truncate(strings.ReplaceAll(n.Message, "\n", " "), width)

	first := fmt.Sprintf("%s %s %s  %s", dot, icon, title, timeStr)
	second := "    " + message

	if n.Read || n.Archived {
		first = theme.DimmedStyle.Render(first)
	}
	second = theme.HelpStyle.Render(second)

	if isSelected {
		first = theme.SelectedItemStyle.Render(first)
		second = theme.SelectedItemStyle.Render(second)
	} else {
		first = theme.ListItemStyle.Render(first)
		second = theme.ListItemStyle.Render(second)
	}

	fmt.Fprint(w, first+"\n"+second)
}

// truncate shortens s to at most width runes, marking the cut.
func truncate(s string, width int) string {
	if width <= 1 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Local().Format("Jan 02")
	}
}
