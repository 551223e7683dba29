package notify

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/nhle/labconsole/internal/model"
)

// Variant selects how a toast is styled.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Toast is a transient popup raised for an incoming notification.
type Toast struct {
	ID          string
	Title       string
	Description string
	Variant     Variant
	CreatedAt   time.Time

	seq uint64
}

// Toaster displays toasts.
type Toaster interface {
	Toast(t Toast)
}

// ToastFor builds the toast raised when n arrives on the live channel.
func ToastFor(n model.Notification) Toast {
	v := VariantDefault
	if n.Type == model.NotificationError {
		v = VariantDestructive
	}
	return Toast{Title: n.Title, Description: n.Message, Variant: v}
}

// ToastBoard keeps toasts until their TTL runs out.
type ToastBoard struct {
	cache *cache.Cache
	now   func() time.Time
	seq   atomic.Uint64
}

// NewToastBoard creates a board whose toasts expire after ttl.
func NewToastBoard(ttl time.Duration) *ToastBoard {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &ToastBoard{
		cache: cache.New(ttl, 2*ttl),
		now:   time.Now,
	}
}

// Toast stores t until it expires.
func (b *ToastBoard) Toast(t Toast) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = b.now()
	}
	if t.Variant == "" {
		t.Variant = VariantDefault
	}
	t.seq = b.seq.Add(1)
	b.cache.Set(t.ID, t, cache.DefaultExpiration)
}

// Dismiss removes a toast before it expires.
func (b *ToastBoard) Dismiss(id string) {
	b.cache.Delete(id)
}

// Active returns the unexpired toasts, newest first.
func (b *ToastBoard) Active() []Toast {
	items := b.cache.Items()
	out := make([]Toast, 0, len(items))
	for _, item := range items {
		if t, ok := item.Object.(Toast); ok {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq > out[j].seq })
	return out
}

// Latest returns the newest unexpired toast.
func (b *ToastBoard) Latest() (Toast, bool) {
	active := b.Active()
	if len(active) == 0 {
		return Toast{}, false
	}
	return active[0], true
}
