// Package notifications publishes committed request changes to Redis subscribers.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"itdesk/internal/middleware"
	"itdesk/internal/models"

	"github.com/redis/go-redis/v9"
)

// RequestEventsChannel carries every committed create and status change.
const RequestEventsChannel = "it_requests:events"

// Event types.
const (
	EventRequestCreated       = "it_request.created"
	EventRequestStatusChanged = "it_request.status_changed"
)

// Event describes a committed change to one request.
type Event struct {
	Type           string        `json:"type"`
	RequestID      uint          `json:"request_id"`
	Status         models.Status `json:"status"`
	PreviousStatus models.Status `json:"previous_status,omitempty"`
	DeviceID       string        `json:"device_id,omitempty"`
	OccurredAt     time.Time     `json:"occurred_at"`
}

// StatusChannel returns the per-status channel an event is also published to.
func StatusChannel(status models.Status) string {
	return fmt.Sprintf("it_requests:status:%s", status)
}

// Notifier provides helpers to publish request events into Redis channels
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
// A nil client turns every publish into a no-op.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishRequestEvent sends ev to the shared channel and to the channel of its status.
func (n *Notifier) PublishRequestEvent(ctx context.Context, ev Event) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pipe := n.rdb.Pipeline()
	pipe.Publish(ctx, RequestEventsChannel, payload)
	pipe.Publish(ctx, StatusChannel(ev.Status), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Subscribe delivers every event on RequestEventsChannel to onEvent until ctx is done.
// It returns once the subscription is confirmed by the server.
func (n *Notifier) Subscribe(ctx context.Context, onEvent func(Event)) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, RequestEventsChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", RequestEventsChannel, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					middleware.Logger.Warn("Dropping malformed request event", slog.String("error", err.Error()))
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("PANIC in request event subscriber",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())),
							)
						}
					}()
					onEvent(ev)
				}()
			}
		}
	}()

	return nil
}
