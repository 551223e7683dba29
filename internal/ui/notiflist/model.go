package notiflist

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/labconsole/internal/keys"
	"github.com/nhle/labconsole/internal/model"
	"github.com/nhle/labconsole/internal/theme"
)

// Mode selects which part of the collection a list shows.
type Mode int

const (
	// Inbox shows everything that is not archived.
	Inbox Mode = iota
	// Archived shows archived notifications only.
	Archived
)

// Action is a user request on the selected notification.
type Action int

const (
	ActionMarkRead Action = iota
	ActionArchive
	ActionUnarchive
	ActionCopy
	ActionOpen
)

// ActionMsg is sent when the user acts on the selected notification.
type ActionMsg struct {
	Action       Action
	Notification model.Notification
}

// Model is a scrollable list of notifications.
type Model struct {
	list   list.Model
	keys   *keys.KeyMap
	mode   Mode
	width  int
	height int
}

// New creates an empty list for mode.
func New(k *keys.KeyMap, mode Mode, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = "Inbox"
	if mode == Archived {
		l.Title = "Archived"
	}
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.SetStatusBarItemName("notification", "notifications")
	l.KeyMap.Quit.SetEnabled(false)
	l.KeyMap.ForceQuit.SetEnabled(false)
	l.KeyMap.ShowFullHelp.SetEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		keys:   k,
		mode:   mode,
		width:  width,
		height: height,
	}
}

// Mode returns the list mode.
func (m Model) Mode() Mode {
	return m.mode
}

// SetNotifications replaces the items with the part of ns this list
// shows, keeping their order.
func (m *Model) SetNotifications(ns []model.Notification) tea.Cmd {
	items := make([]list.Item, 0, len(ns))
	for _, n := range ns {
		if n.Archived == (m.mode == Archived) {
			items = append(items, Item{Notification: n})
		}
	}
	return m.list.SetItems(items)
}

// Len returns the number of notifications shown.
func (m Model) Len() int {
	return len(m.list.Items())
}

// Selected returns the highlighted notification.
func (m Model) Selected() (model.Notification, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return model.Notification{}, false
	}
	return it.Notification, true
}

// Update handles messages for the list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if action, ok := m.actionFor(msg); ok {
			n, selected := m.Selected()
			if !selected {
				return m, nil
			}
			return m, func() tea.Msg {
				return ActionMsg{Action: action, Notification: n}
			}
		}
		// Actions of the other mode must not fall through to paging.
		if key.Matches(msg, m.keys.Archive, m.keys.Unarchive) {
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// actionFor maps a key to the action it triggers in this mode.
func (m Model) actionFor(msg tea.KeyMsg) (Action, bool) {
	switch {
	case key.Matches(msg, m.keys.MarkRead):
		return ActionMarkRead, true
	case key.Matches(msg, m.keys.Copy):
		return ActionCopy, true
	case key.Matches(msg, m.keys.Open):
		return ActionOpen, true
	case key.Matches(msg, m.keys.Archive) && m.mode == Inbox:
		return ActionArchive, true
	case key.Matches(msg, m.keys.Unarchive) && m.mode == Archived:
		return ActionUnarchive, true
	}
	return 0, false
}

// View renders the list or its empty state.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.mode == Archived {
		return style.Render("Nothing archived.")
	}
	return style.Render("No notifications.\n\nNew ones appear here as they arrive.")
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
