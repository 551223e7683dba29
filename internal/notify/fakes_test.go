package notify

import (
	"context"
	"sync"

	"github.com/nhle/labconsole/internal/api"
	"github.com/nhle/labconsole/internal/model"
)

// fakeBackend records every call and answers from canned values.
type fakeBackend struct {
	mu      sync.Mutex
	calls   []string
	list    *api.NotificationList
	listErr error
	err     map[string]error
}

func (f *fakeBackend) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err[call]
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) ListNotifications(context.Context) (*api.NotificationList, error) {
	f.record("list")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.list == nil {
		return &api.NotificationList{}, nil
	}
	items := append([]model.Notification(nil), f.list.Items...)
	return &api.NotificationList{Items: items, Dropped: f.list.Dropped}, nil
}

func (f *fakeBackend) MarkRead(_ context.Context, id string) error {
	return f.record("mark_read:" + id)
}

func (f *fakeBackend) Archive(_ context.Context, id string) error {
	return f.record("archive:" + id)
}

func (f *fakeBackend) Unarchive(_ context.Context, id string) error {
	return f.record("unarchive:" + id)
}

func (f *fakeBackend) Clear(context.Context) error {
	return f.record("clear")
}

// fakeLive blocks until cancelled and exposes the frame callback.
type fakeLive struct {
	mu      sync.Mutex
	runs    int
	onFrame func([]byte)
	started chan struct{}
	stopped chan struct{}
}

func newFakeLive() *fakeLive {
	return &fakeLive{
		started: make(chan struct{}, 8),
		stopped: make(chan struct{}, 8),
	}
}

func (f *fakeLive) Run(ctx context.Context, onFrame func([]byte)) error {
	f.mu.Lock()
	f.runs++
	f.onFrame = onFrame
	f.mu.Unlock()
	f.started <- struct{}{}

	<-ctx.Done()
	f.stopped <- struct{}{}
	return nil
}

func (f *fakeLive) Runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func (f *fakeLive) push(frame string) {
	f.mu.Lock()
	onFrame := f.onFrame
	f.mu.Unlock()
	onFrame([]byte(frame))
}

// fakeSessions is a session provider the test can log out of.
type fakeSessions struct {
	mu   sync.Mutex
	sess model.Session
}

func signedIn() *fakeSessions {
	return &fakeSessions{sess: model.Session{
		Token:   "tok",
		Profile: model.UserProfile{ID: "1", Username: "ana"},
	}}
}

func (f *fakeSessions) Session(context.Context) (model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sess.Token == "" {
		return model.Session{}, model.ErrNoSession
	}
	return f.sess, nil
}

func (f *fakeSessions) logout() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sess = model.Session{}
}

// recordingToaster keeps every toast raised.
type recordingToaster struct {
	mu     sync.Mutex
	toasts []Toast
}

func (r *recordingToaster) Toast(t Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
}

func (r *recordingToaster) All() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Toast(nil), r.toasts...)
}
