package notify

import (
	"context"

	"github.com/nhle/labconsole/internal/logger"
	"github.com/nhle/labconsole/internal/model"
)

// SnapshotWriter persists snapshots. *store.SQLiteStore satisfies it.
type SnapshotWriter interface {
	ReplaceNotifications(ctx context.Context, version uint64, ns []model.Notification) error
}

// Mirror writes every snapshot from bus into w until ctx is done or the
// bus closes. Write failures are logged and the next snapshot is tried.
func Mirror(ctx context.Context, bus *Bus, w SnapshotWriter, log logger.Logger) error {
	if log == nil {
		log = logger.NewNop()
	}
	snaps, err := bus.Watch(ctx)
	if err != nil {
		return err
	}

	for snap := range snaps {
		if err := w.ReplaceNotifications(ctx, snap.Version, snap.Notifications); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error(logModule, "mirroring snapshot failed", map[string]interface{}{
				"version": snap.Version,
				"error":   err,
			})
		}
	}
	return nil
}
