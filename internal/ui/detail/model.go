package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/labconsole/internal/keys"
	"github.com/nhle/labconsole/internal/model"
	"github.com/nhle/labconsole/internal/theme"
	"github.com/nhle/labconsole/internal/ui/notiflist"
)

// Model shows one notification in full.
type Model struct {
	n        *model.Notification
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
}

// New creates an empty detail view.
func New(k *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     k,
		width:    width,
		height:   height,
	}
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && m.n != nil {
		if action, ok := m.actionFor(msg); ok {
			n := *m.n
			return m, func() tea.Msg {
				return notiflist.ActionMsg{Action: action, Notification: n}
			}
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) actionFor(msg tea.KeyMsg) (notiflist.Action, bool) {
	switch {
	case key.Matches(msg, m.keys.MarkRead):
		return notiflist.ActionMarkRead, true
	case key.Matches(msg, m.keys.Copy):
		return notiflist.ActionCopy, true
	case key.Matches(msg, m.keys.Archive) && !m.n.Archived:
		return notiflist.ActionArchive, true
	case key.Matches(msg, m.keys.Unarchive) && m.n.Archived:
		return notiflist.ActionUnarchive, true
	}
	return 0, false
}

// View renders the detail view.
func (m Model) View() string {
	if m.n == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No notification selected")
	}
	return m.viewport.View()
}

// Notification returns the notification being shown.
func (m Model) Notification() (model.Notification, bool) {
	if m.n == nil {
		return model.Notification{}, false
	}
	return *m.n, true
}

// SetNotification shows n from the top.
func (m *Model) SetNotification(n model.Notification) {
	m.n = &n
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Sync refreshes the shown notification from ns, keeping the scroll
// position. It reports false once the notification is gone.
func (m *Model) Sync(ns []model.Notification) bool {
	if m.n == nil {
		return false
	}
	for _, n := range ns {
		if n.ID == m.n.ID {
			m.n = &n
			m.viewport.SetContent(m.renderContent())
			return true
		}
	}
	m.n = nil
	return false
}

func (m Model) renderContent() string {
	n := m.n
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	title := n.Title
	if title == "" {
		title = "(untitled)"
	}
	sections = append(sections, titleStyle.Render(title))

	typ := string(n.Type)
	badges := []string{theme.TypeStyle(typ).Render(theme.TypeIcon(typ) + " " + strings.ToUpper(typ))}
	if n.Unread() {
		badges = append(badges, theme.BadgeStyle.Render("UNREAD"))
	}
	if n.Archived {
		badges = append(badges, theme.DimmedStyle.Render("ARCHIVED"))
	}
	sections = append(sections, strings.Join(badges, "  "), "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	sections = append(sections,
		fmt.Sprintf("%s  %s", metaStyle.Render("Received:"), valStyle.Render(n.Timestamp.Local().Format("2006-01-02 15:04:05"))),
		fmt.Sprintf("%s        %s", metaStyle.Render("ID:"), valStyle.Render(n.ID)),
	)

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))
	sections = append(sections, "", separator, "")

	body := n.Message
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No message")
	} else if m.width > 4 {
		body = lipgloss.NewStyle().Width(m.width - 4).Render(body)
	}
	sections = append(sections, body)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.n != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
