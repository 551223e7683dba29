package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/labconsole/internal/notify"
	"github.com/nhle/labconsole/internal/ui/notiflist"
)

// start runs the store's initialization protocol.
func (m Model) start() tea.Cmd {
	ctx, s := m.ctx, m.deps.Store
	return func() tea.Msg {
		return startedMsg{err: s.Start(ctx)}
	}
}

// watch subscribes to store snapshots.
func (m Model) watch() tea.Cmd {
	if m.deps.Bus == nil {
		return nil
	}
	ctx, bus := m.ctx, m.deps.Bus
	return func() tea.Msg {
		ch, err := bus.Watch(ctx)
		return watchMsg{ch: ch, err: err}
	}
}

// waitForSnapshot blocks until the next snapshot arrives.
func waitForSnapshot(ch <-chan notify.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return watchClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

// waitForState blocks until the live channel changes state.
func (m Model) waitForState() tea.Cmd {
	if m.deps.States == nil {
		return nil
	}
	ch := m.deps.States
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg(st)
	}
}

func toastTick() tea.Cmd {
	return tea.Tick(toastRefreshEvery, func(time.Time) tea.Msg { return toastTickMsg{} })
}

func recheckTick(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(time.Time) tea.Msg { return recheckMsg{} })
}

// recheck re-evaluates the store guard off the UI goroutine.
func (m Model) recheck() tea.Cmd {
	ctx, s := m.ctx, m.deps.Store
	return func() tea.Msg {
		return recheckedMsg{active: s.Recheck(ctx)}
	}
}

// mutate runs a store mutation and reports its outcome.
func (m Model) mutate(op string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return mutationMsg{op: op, err: fn(ctx)}
	}
}

// runAction turns a list action into the matching store call.
func (m Model) runAction(msg notiflist.ActionMsg) tea.Cmd {
	s := m.deps.Store
	id := msg.Notification.ID

	switch msg.Action {
	case notiflist.ActionMarkRead:
		if msg.Notification.Read {
			return nil
		}
		return m.mutate("mark read", func(ctx context.Context) error { return s.MarkAsRead(ctx, id) })
	case notiflist.ActionArchive:
		return m.mutate("archive", func(ctx context.Context) error { return s.ArchiveNotification(ctx, id) })
	case notiflist.ActionUnarchive:
		return m.mutate("unarchive", func(ctx context.Context) error { return s.UnarchiveNotification(ctx, id) })
	case notiflist.ActionCopy:
		text := msg.Notification.Message
		if text == "" {
			text = msg.Notification.Title
		}
		copyFn := m.deps.Copy
		return func() tea.Msg { return copiedMsg{err: copyFn(text)} }
	}
	return nil
}
