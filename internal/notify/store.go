// Package notify holds the client-side notification collection and keeps
// it in step with the backend through a snapshot fetch, live pushes, and
// request-then-apply mutations.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/labconsole/internal/api"
	"github.com/nhle/labconsole/internal/live"
	"github.com/nhle/labconsole/internal/logger"
	"github.com/nhle/labconsole/internal/metrics"
	"github.com/nhle/labconsole/internal/model"
)

const logModule = "notify"

// ErrInactive is returned by Start when there is no session or the login
// view is showing. Nothing was fetched and no socket was opened.
var ErrInactive = errors.New("notify: store inactive")

// Backend is the REST surface the store calls. *api.Client satisfies it.
type Backend interface {
	ListNotifications(ctx context.Context) (*api.NotificationList, error)
	MarkRead(ctx context.Context, id string) error
	Archive(ctx context.Context, id string) error
	Unarchive(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// Live runs the push channel, calling onFrame for every inbound frame in
// arrival order. *live.Stream satisfies it.
type Live interface {
	Run(ctx context.Context, onFrame func([]byte)) error
}

// Options wires a Store. Backend, Live and Sessions are required.
type Options struct {
	Backend  Backend
	Live     Live
	Sessions api.SessionProvider

	// Toaster receives a toast for every accepted push.
	Toaster Toaster

	// OnLoginView reports whether the login view is showing; the store
	// stays inactive while it does.
	OnLoginView func() bool

	// Bus, when set, receives a snapshot after every change.
	Bus *Bus

	Logger  logger.Logger
	Metrics *metrics.Metrics

	Now   func() time.Time
	NewID func() string
}

// Store is the single source of truth for the user's notifications.
// All methods are safe for concurrent use. Network calls are never made
// while the state lock is held.
type Store struct {
	opts Options
	log  logger.Logger

	mu      sync.Mutex
	items   []model.Notification
	unread  int
	version uint64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an empty store.
func New(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Store{opts: opts, log: opts.Logger}
}

// session returns the current session or an auth error.
func (s *Store) session(ctx context.Context) (model.Session, error) {
	sess, err := s.opts.Sessions.Session(ctx)
	if err != nil {
		return model.Session{}, err
	}
	if !sess.Valid() {
		return model.Session{}, model.ErrNoSession
	}
	return sess, nil
}

// active reports whether the store may talk to the backend.
func (s *Store) active(ctx context.Context) bool {
	if s.opts.OnLoginView != nil && s.opts.OnLoginView() {
		return false
	}
	_, err := s.session(ctx)
	return err == nil
}

// Start runs the initialization protocol: check the guard, fetch the
// list once, then open the live channel. The channel lives until ctx is
// done or Stop is called. A second Start while the channel runs only
// refetches.
func (s *Store) Start(ctx context.Context) error {
	if !s.active(ctx) {
		s.log.Debug(logModule, "store inactive, skipping start", nil)
		return ErrInactive
	}

	// Failures are logged inside Refresh; the channel opens regardless.
	_ = s.Refresh(ctx)

	s.startLive(ctx)
	return nil
}

// Stop closes the live channel and waits for it to finish.
func (s *Store) Stop() {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the live channel goroutine is up.
func (s *Store) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.done != nil
}

// Recheck re-evaluates the guard and closes the live channel when the
// session is gone or the login view is showing. It reports whether the
// store is still active.
func (s *Store) Recheck(ctx context.Context) bool {
	if s.active(ctx) {
		return true
	}
	if s.Running() {
		s.log.Info(logModule, "session ended, closing live channel", nil)
	}
	s.Stop()
	return false
}

func (s *Store) startLive(parent context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	go func() {
		defer close(done)
		err := s.opts.Live.Run(ctx, s.handleFrame)
		switch {
		case err == nil:
			s.log.Debug(logModule, "live channel stopped", nil)
		case api.IsAuthError(err):
			s.log.Debug(logModule, "live channel not authorized", nil)
		default:
			s.log.Warn(logModule, "live channel ended", map[string]interface{}{"error": err})
		}

		s.runMu.Lock()
		if s.done == done {
			s.cancel, s.done = nil, nil
		}
		s.runMu.Unlock()
		cancel()
	}()
}

// Refresh fetches the full list and replaces the collection with it.
// A payload that is not a list empties the collection. Auth failures
// are returned without logging; other failures are logged and leave
// the collection untouched.
func (s *Store) Refresh(ctx context.Context) error {
	list, err := s.opts.Backend.ListNotifications(ctx)
	switch {
	case err == nil:
	case api.IsAuthError(err):
		s.countFetch("auth")
		return err
	case api.IsMalformedPayload(err):
		s.countFetch("malformed")
		s.log.Warn(logModule, "notification list is not an array, treating as empty", map[string]interface{}{
			"error": err,
		})
		s.replace(nil)
		return nil
	default:
		s.countFetch("error")
		s.log.Error(logModule, "fetching notifications failed", map[string]interface{}{
			"error": err,
		})
		return err
	}

	s.countFetch("ok")
	if list.Dropped > 0 {
		s.log.Warn(logModule, "dropped malformed notification entries", map[string]interface{}{
			"dropped": list.Dropped,
		})
	}
	s.replace(list.Items)
	return nil
}

func (s *Store) replace(items []model.Notification) {
	now := s.opts.Now()
	seen := make(map[string]bool, len(items))
	next := make([]model.Notification, 0, len(items))
	for _, n := range items {
		n = n.Normalize(now)
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		next = append(next, n)
	}

	s.mu.Lock()
	s.items = next
	snap := s.changedLocked(ReasonFetched)
	s.mu.Unlock()

	s.publish(snap)
}

// handleFrame applies one inbound live frame.
func (s *Store) handleFrame(data []byte) {
	n, err := live.DecodeFrame(data)
	switch {
	case errors.Is(err, live.ErrIgnoredFrame):
		s.countFrame("ignored")
		return
	case err != nil:
		s.countFrame("malformed")
		s.log.Warn(logModule, "dropping live frame", map[string]interface{}{"error": err})
		return
	}
	s.countFrame("accepted")

	n = n.Normalize(s.opts.Now())

	s.mu.Lock()
	s.prependLocked(n)
	snap := s.changedLocked(ReasonPushed)
	s.mu.Unlock()

	s.publish(snap)
	if s.opts.Toaster != nil {
		s.opts.Toaster.Toast(ToastFor(n))
	}
}

// prependLocked puts n at the front, dropping any entry with its id.
func (s *Store) prependLocked(n model.Notification) {
	next := make([]model.Notification, 0, len(s.items)+1)
	next = append(next, n)
	for _, existing := range s.items {
		if existing.ID != n.ID {
			next = append(next, existing)
		}
	}
	s.items = next
}

// MarkAsRead asks the backend to mark id read and applies it on success.
func (s *Store) MarkAsRead(ctx context.Context, id string) error {
	return s.mutate(ctx, "mark_read", ReasonRead,
		func(ctx context.Context) error { return s.opts.Backend.MarkRead(ctx, id) },
		func() { s.updateLocked(id, func(n *model.Notification) { n.Read = true }) },
	)
}

// ArchiveNotification asks the backend to archive id and applies it on
// success. Read is left as it was.
func (s *Store) ArchiveNotification(ctx context.Context, id string) error {
	return s.mutate(ctx, "archive", ReasonArchived,
		func(ctx context.Context) error { return s.opts.Backend.Archive(ctx, id) },
		func() { s.updateLocked(id, func(n *model.Notification) { n.Archived = true }) },
	)
}

// UnarchiveNotification asks the backend to unarchive id and applies it
// on success.
func (s *Store) UnarchiveNotification(ctx context.Context, id string) error {
	return s.mutate(ctx, "unarchive", ReasonUnarchived,
		func(ctx context.Context) error { return s.opts.Backend.Unarchive(ctx, id) },
		func() { s.updateLocked(id, func(n *model.Notification) { n.Archived = false }) },
	)
}

// ClearNotifications asks the backend to delete every notification and
// empties the collection on success.
func (s *Store) ClearNotifications(ctx context.Context) error {
	return s.mutate(ctx, "clear", ReasonCleared,
		func(ctx context.Context) error { return s.opts.Backend.Clear(ctx) },
		func() { s.items = nil },
	)
}

// mutate runs call and, only if it succeeds, apply under the state lock.
func (s *Store) mutate(
	ctx context.Context,
	op string,
	reason Reason,
	call func(context.Context) error,
	apply func(),
) error {
	if _, err := s.session(ctx); err != nil {
		return err
	}

	if err := call(ctx); err != nil {
		if s.opts.Metrics != nil {
			s.opts.Metrics.MutationFailures.WithLabelValues(op).Inc()
		}
		if !api.IsAuthError(err) {
			s.log.Error(logModule, "notification "+op+" failed", map[string]interface{}{
				"error": err,
			})
		}
		return err
	}

	s.mu.Lock()
	apply()
	snap := s.changedLocked(reason)
	s.mu.Unlock()

	s.publish(snap)
	return nil
}

// updateLocked applies fn to the entry with id, if it is still present.
func (s *Store) updateLocked(id string, fn func(*model.Notification)) {
	for i := range s.items {
		if s.items[i].ID == id {
			fn(&s.items[i])
			return
		}
	}
}

// AddNotification inserts a locally synthesized notification at the
// front. It is never sent to the backend.
func (s *Store) AddNotification(partial model.Notification) model.Notification {
	n := partial
	n.ID = s.opts.NewID()
	n.Timestamp = s.opts.Now().UTC()
	n.Type = model.ParseNotificationType(string(n.Type))
	n.Read = false
	n.Archived = false

	s.mu.Lock()
	s.prependLocked(n)
	snap := s.changedLocked(ReasonAdded)
	s.mu.Unlock()

	s.publish(snap)
	return n
}

// changedLocked recounts unread, bumps the version and returns the new
// snapshot.
func (s *Store) changedLocked(reason Reason) Snapshot {
	unread := 0
	for _, n := range s.items {
		if n.Unread() {
			unread++
		}
	}
	s.unread = unread
	s.version++

	if s.opts.Metrics != nil {
		s.opts.Metrics.Unread.Set(float64(unread))
		s.opts.Metrics.Notifications.Set(float64(len(s.items)))
	}

	return Snapshot{
		Version:       s.version,
		Reason:        reason,
		Notifications: cloneNotifications(s.items),
		UnreadCount:   unread,
	}
}

func (s *Store) publish(snap Snapshot) {
	if s.opts.Bus == nil {
		return
	}
	if err := s.opts.Bus.Publish(snap); err != nil {
		s.log.Warn(logModule, "publishing snapshot failed", map[string]interface{}{"error": err})
	}
}

// Notifications returns a copy of the collection, newest known first.
func (s *Store) Notifications() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneNotifications(s.items)
}

// Inbox returns the notifications that are not archived.
func (s *Store) Inbox() []model.Notification {
	return s.filter(func(n model.Notification) bool { return !n.Archived })
}

// Unread returns the notifications counted by UnreadCount.
func (s *Store) Unread() []model.Notification {
	return s.filter(model.Notification.Unread)
}

// Archived returns the archived notifications.
func (s *Store) Archived() []model.Notification {
	return s.filter(func(n model.Notification) bool { return n.Archived })
}

// UnreadCount returns the number of notifications neither read nor
// archived.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Snapshot returns the current state without changing the version.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Version:       s.version,
		Notifications: cloneNotifications(s.items),
		UnreadCount:   s.unread,
	}
}

func (s *Store) filter(keep func(model.Notification) bool) []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Notification, 0, len(s.items))
	for _, n := range s.items {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

func (s *Store) countFetch(outcome string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.Fetches.WithLabelValues(outcome).Inc()
	}
}

func (s *Store) countFrame(outcome string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.Frames.WithLabelValues(outcome).Inc()
	}
}

func cloneNotifications(items []model.Notification) []model.Notification {
	out := make([]model.Notification, len(items))
	copy(out, items)
	return out
}
