package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/nhle/labconsole/internal/logger"
	"github.com/nhle/labconsole/internal/model"
)

const snapshotTopic = "notifications.snapshot"

// Reason names the change that produced a snapshot.
type Reason string

const (
	ReasonFetched    Reason = "fetched"
	ReasonPushed     Reason = "pushed"
	ReasonRead       Reason = "read"
	ReasonArchived   Reason = "archived"
	ReasonUnarchived Reason = "unarchived"
	ReasonCleared    Reason = "cleared"
	ReasonAdded      Reason = "added"
)

// Snapshot is the store state after one change. Version increases by one
// with every change.
type Snapshot struct {
	Version       uint64               `json:"version"`
	Reason        Reason               `json:"reason"`
	Notifications []model.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unread_count"`
}

// Bus fans store snapshots out to any number of watchers over an
// in-process watermill pub/sub.
type Bus struct {
	pubSub *gochannel.GoChannel
	log    logger.Logger
}

// NewBus creates an in-process snapshot bus.
func NewBus(log logger.Logger) *Bus {
	if log == nil {
		log = logger.NewNop()
	}
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 16},
		watermill.NopLogger{},
	)
	return &Bus{pubSub: pubSub, log: log}
}

// Publish sends snap to every current watcher. Snapshots published while
// nobody watches are dropped.
func (b *Bus) Publish(snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("reason", string(snap.Reason))
	if err := b.pubSub.Publish(snapshotTopic, msg); err != nil {
		return fmt.Errorf("publishing snapshot: %w", err)
	}
	return nil
}

// Watch subscribes to snapshots until ctx is done or the bus is closed.
// Delivery across publishes is unordered, so snapshots older than one
// already delivered are discarded. A slow reader only ever sees the
// newest pending snapshot.
func (b *Bus) Watch(ctx context.Context) (<-chan Snapshot, error) {
	messages, err := b.pubSub.Subscribe(ctx, snapshotTopic)
	if err != nil {
		return nil, fmt.Errorf("subscribing to snapshots: %w", err)
	}

	out := make(chan Snapshot, 1)
	go func() {
		defer close(out)

		var seen uint64
		for msg := range messages {
			var snap Snapshot
			err := json.Unmarshal(msg.Payload, &snap)
			msg.Ack()
			if err != nil {
				b.log.Error(logModule, "dropping undecodable snapshot", map[string]interface{}{
					"error": err,
				})
				continue
			}
			if snap.Version <= seen {
				continue
			}
			seen = snap.Version

			select {
			case out <- snap:
			default:
				select {
				case <-out:
				default:
				}
				out <- snap
			}
		}
	}()

	return out, nil
}

// Close ends every watch.
func (b *Bus) Close() error {
	return b.pubSub.Close()
}
