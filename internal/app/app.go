package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/labconsole/internal/api"
	"github.com/nhle/labconsole/internal/keys"
	"github.com/nhle/labconsole/internal/live"
	"github.com/nhle/labconsole/internal/model"
	"github.com/nhle/labconsole/internal/notify"
	"github.com/nhle/labconsole/internal/theme"
	"github.com/nhle/labconsole/internal/ui"
	"github.com/nhle/labconsole/internal/ui/detail"
	helpview "github.com/nhle/labconsole/internal/ui/help"
	"github.com/nhle/labconsole/internal/ui/notiflist"
)

const (
	defaultRecheckEvery = 10 * time.Second
	toastRefreshEvery   = time.Second
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewInbox ViewState = iota
	ViewArchived
	ViewHelp
	ViewSignedOut
	ViewDetail
)

// ViewTracker publishes whether the signed-out view is showing so the
// notification store can stay inactive behind it.
type ViewTracker struct {
	signedOut atomic.Bool
}

// OnLoginView reports whether the signed-out view is showing.
func (t *ViewTracker) OnLoginView() bool {
	return t.signedOut.Load()
}

// Deps are the services the TUI drives.
type Deps struct {
	Store   *notify.Store
	Bus     *notify.Bus
	Toasts  *notify.ToastBoard
	Tracker *ViewTracker

	// States carries live channel state changes, if any.
	States <-chan live.State

	// Copy writes text to the system clipboard.
	Copy func(string) error

	RecheckEvery time.Duration
}

type (
	startedMsg  struct{ err error }
	snapshotMsg notify.Snapshot
	watchMsg    struct {
		ch  <-chan notify.Snapshot
		err error
	}
	watchClosedMsg struct{}
	stateMsg       live.State
	toastTickMsg   struct{}
	recheckMsg     struct{}
	recheckedMsg   struct{ active bool }
	mutationMsg    struct {
		op  string
		err error
	}
	copiedMsg struct{ err error }
)

// Model is the root Bubble Tea model that manages view routing and
// renders the notification store.
type Model struct {
	ctx          context.Context
	deps         Deps
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	inbox        notiflist.Model
	archived     notiflist.Model
	detailView   detail.Model
	detailFrom   ViewState
	helpView     helpview.Model
	ready        bool

	snapshots    <-chan notify.Snapshot
	version      uint64
	unreadCount  int
	conn         live.State
	restarting   bool
	status       string
	confirmClear bool
}

// New creates the root model. ctx bounds every store call and the live
// channel the store opens.
func New(ctx context.Context, deps Deps) Model {
	if deps.Tracker == nil {
		deps.Tracker = &ViewTracker{}
	}
	if deps.Copy == nil {
		deps.Copy = clipboard.WriteAll
	}
	if deps.RecheckEvery <= 0 {
		deps.RecheckEvery = defaultRecheckEvery
	}

	k := keys.DefaultKeyMap()
	return Model{
		ctx:         ctx,
		deps:        deps,
		currentView: ViewInbox,
		keys:        k,
		inbox:       notiflist.New(k, notiflist.Inbox, 80, 22),
		archived:    notiflist.New(k, notiflist.Archived, 80, 22),
		detailView:  detail.New(k, 80, 22),
		helpView:    helpview.New(k, 80, 22),
	}
}

// Init subscribes to store changes, starts the store, and schedules the
// periodic session recheck.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.watch(),
		m.start(),
		m.waitForState(),
		toastTick(),
		recheckTick(m.deps.RecheckEvery),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.inbox.SetSize(w, h)
		m.archived.SetSize(w, h)
		m.detailView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		return m, nil

	case watchMsg:
		if msg.err != nil {
			m.status = "live updates unavailable: " + msg.err.Error()
			return m, nil
		}
		m.snapshots = msg.ch
		return m, waitForSnapshot(m.snapshots)

	case watchClosedMsg:
		m.snapshots = nil
		return m, nil

	case startedMsg:
		if errors.Is(msg.err, notify.ErrInactive) {
			m.signOut()
			return m, nil
		}
		m.signIn()
		return m, m.applySnapshot(m.deps.Store.Snapshot())

	case snapshotMsg:
		cmd := m.applySnapshot(notify.Snapshot(msg))
		if m.snapshots != nil {
			cmd = tea.Batch(cmd, waitForSnapshot(m.snapshots))
		}
		return m, cmd

	case stateMsg:
		prev := m.conn
		m.conn = live.State(msg)
		cmds := []tea.Cmd{m.waitForState()}
		if m.conn == live.Disconnected && prev != live.Disconnected {
			if m.restarting {
				m.restarting = false
			} else if prev == live.Connected && m.currentView != ViewSignedOut {
				cmds = append(cmds, m.connectionLost())
			}
		}
		return m, tea.Batch(cmds...)

	case toastTickMsg:
		return m, toastTick()

	case recheckMsg:
		return m, m.recheck()

	case recheckedMsg:
		if !msg.active && m.currentView != ViewSignedOut {
			m.signOut()
		}
		return m, recheckTick(m.deps.RecheckEvery)

	case mutationMsg:
		switch {
		case msg.err == nil:
			m.status = ""
		case api.IsAuthError(msg.err):
			m.deps.Store.Stop()
			m.signOut()
		default:
			m.status = fmt.Sprintf("%s failed: %v", msg.op, msg.err)
		}
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.status = "copy failed: " + msg.err.Error()
		} else {
			m.status = "message copied"
		}
		return m, nil

	case notiflist.ActionMsg:
		if msg.Action == notiflist.ActionOpen {
			m.detailFrom = m.currentView
			m.detailView.SetNotification(msg.Notification)
			m.currentView = ViewDetail
			return m, nil
		}
		return m, m.runAction(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateActiveView(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirmClear && !key.Matches(msg, m.keys.ClearAll) {
		m.confirmClear = false
		m.status = ""
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.deps.Store.Stop()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil
		}
		if m.currentView != ViewSignedOut {
			m.previousView = m.currentView
			m.currentView = ViewHelp
		}
		return m, nil

	case key.Matches(msg, m.keys.Back):
		switch m.currentView {
		case ViewHelp:
			m.currentView = m.previousView
		case ViewDetail:
			m.currentView = m.detailFrom
		}
		return m, nil

	case key.Matches(msg, m.keys.Restart):
		m.restarting = m.conn != live.Disconnected
		m.deps.Store.Stop()
		m.status = "restarting…"
		m.deps.Tracker.signedOut.Store(false)
		return m, m.start()

	case key.Matches(msg, m.keys.SwitchView):
		switch m.currentView {
		case ViewInbox:
			m.currentView = ViewArchived
		case ViewArchived:
			m.currentView = ViewInbox
		}
		return m, nil

	case key.Matches(msg, m.keys.ClearAll):
		if m.currentView != ViewInbox && m.currentView != ViewArchived {
			return m, nil
		}
		if !m.confirmClear {
			m.confirmClear = true
			m.status = "press C again to delete every notification"
			return m, nil
		}
		m.confirmClear = false
		m.status = ""
		return m, m.mutate("clear", m.deps.Store.ClearNotifications)
	}

	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewInbox:
		m.inbox, cmd = m.inbox.Update(msg)
	case ViewArchived:
		m.archived, cmd = m.archived.Update(msg)
	case ViewDetail:
		m.detailView, cmd = m.detailView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	}

	return m, cmd
}

func (m *Model) applySnapshot(snap notify.Snapshot) tea.Cmd {
	if snap.Version < m.version {
		return nil
	}
	m.version = snap.Version
	m.unreadCount = snap.UnreadCount
	if !m.detailView.Sync(snap.Notifications) && m.currentView == ViewDetail {
		m.currentView = m.detailFrom
	}
	return tea.Batch(
		m.inbox.SetNotifications(snap.Notifications),
		m.archived.SetNotifications(snap.Notifications),
	)
}

// connectionLost records a local warning that live updates stopped.
func (m *Model) connectionLost() tea.Cmd {
	m.deps.Store.AddNotification(model.Notification{
		Title:   "Live updates stopped",
		Message: "The connection to the console closed. Press r to reconnect.",
		Type:    model.NotificationWarning,
	})
	return m.applySnapshot(m.deps.Store.Snapshot())
}

func (m *Model) signOut() {
	m.deps.Tracker.signedOut.Store(true)
	m.currentView = ViewSignedOut
	m.status = ""
}

func (m *Model) signIn() {
	m.deps.Tracker.signedOut.Store(false)
	if m.currentView == ViewSignedOut {
		m.currentView = ViewInbox
	}
	m.status = ""
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	badge := ""
	if m.unreadCount > 0 {
		badge = fmt.Sprintf("[%d unread]", m.unreadCount)
	}
	header := m.layout.RenderHeader("Lab Console", badge, m.conn.String())
	text, style := m.statusLine()
	statusBar := m.layout.RenderStatusBar(text, style)

	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewInbox:
		return m.inbox.View()
	case ViewArchived:
		return m.archived.View()
	case ViewDetail:
		return m.detailView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewSignedOut:
		return lipgloss.NewStyle().
			Width(m.layout.ContentWidth()).
			Height(m.layout.ContentHeight()).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("Signed out.\n\nRun `labconsole login`, then press r.")
	default:
		return ""
	}
}

// statusLine picks what the status bar shows: the newest toast, then a
// status message, then key hints.
func (m Model) statusLine() (string, lipgloss.Style) {
	if m.deps.Toasts != nil {
		if t, ok := m.deps.Toasts.Latest(); ok {
			text := t.Title
			if t.Description != "" {
				text += ": " + t.Description
			}
			return text, theme.ToastStyle(string(t.Variant))
		}
	}
	if m.status != "" {
		return m.status, theme.StatusBarStyle
	}
	return m.keyHints(), theme.StatusBarStyle
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewSignedOut:
		return "r retry | q quit"
	case ViewDetail:
		return "esc back | enter mark read | a/u archive | y copy | q quit"
	case ViewArchived:
		return "o open | u unarchive | enter mark read | y copy | tab inbox | ? help | q quit"
	default:
		return "o open | enter mark read | a archive | y copy | C clear | tab archived | ? help | q quit"
	}
}
