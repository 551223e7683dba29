package store

import (
	"context"
	"time"

	"github.com/nhle/labconsole/internal/model"
)

// NotificationFilter controls which mirrored notifications are returned.
type NotificationFilter struct {
	Archived   *bool // true: archived only, false: inbox only, nil: all
	UnreadOnly bool
	Limit      int
}

// SyncInfo describes the last snapshot written to the mirror.
type SyncInfo struct {
	Version  uint64
	SyncedAt time.Time
}

// Store persists the latest notification snapshot for offline reading.
type Store interface {
	// ReplaceNotifications swaps the mirrored collection for ns. Snapshots
	// older than the mirrored version are skipped.
	ReplaceNotifications(ctx context.Context, version uint64, ns []model.Notification) error
	GetNotifications(ctx context.Context, filter NotificationFilter) ([]model.Notification, error)
	CountUnread(ctx context.Context) (int, error)
	LastSync(ctx context.Context) (*SyncInfo, error)
}
