package help

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/labconsole/internal/keys"
	"github.com/nhle/labconsole/internal/theme"
)

var sectionNames = []string{"Navigate", "Notifications", "Session"}

// Model is the help overlay: key groups followed by a legend of the list
// markers.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	width  int
	height int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the help overlay.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	blocks := []string{titleStyle.Render("Keyboard Shortcuts")}
	for i, group := range m.keys.FullHelp() {
		name := "More"
		if i < len(sectionNames) {
			name = sectionNames[i]
		}
		blocks = append(blocks, m.section(name, group), "")
	}
	blocks = append(blocks, legend())

	return theme.DetailPanelStyle.
		Width(max(m.width-4, 0)).
		Height(max(m.height-4, 0)).
		Render(lipgloss.JoinVertical(lipgloss.Left, blocks...))
}

func (m Model) section(name string, bindings []key.Binding) string {
	heading := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue).Render(name)
	return lipgloss.JoinVertical(lipgloss.Left, heading, m.help.ShortHelpView(bindings))
}

// legend explains the markers used in the notification lists.
func legend() string {
	var rows []string
	rows = append(rows, lipgloss.NewStyle().Foreground(theme.ColorBlue).Render("●")+" unread")
	for _, t := range []string{"info", "success", "warning", "error"} {
		rows = append(rows, theme.TypeStyle(t).Render(theme.TypeIcon(t))+" "+t)
	}
	return theme.HelpStyle.Render(strings.Join(rows, "   "))
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
