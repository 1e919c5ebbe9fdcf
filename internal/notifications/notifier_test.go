package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"itdesk/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_NilClientIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.NoError(t, n.PublishRequestEvent(context.Background(), Event{Type: EventRequestCreated}))
	assert.NoError(t, n.Subscribe(context.Background(), func(Event) {}))
}

func TestStatusChannel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "it_requests:status:inprogress", StatusChannel(models.StatusInProgress))
}

func TestNotifier_PublishAndSubscribe(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 4)
	require.NoError(t, n.Subscribe(ctx, func(ev Event) { events <- ev }))

	statusSub := rdb.Subscribe(ctx, StatusChannel(models.StatusInProgress))
	defer func() { _ = statusSub.Close() }()
	_, err = statusSub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, n.PublishRequestEvent(context.Background(), Event{
		Type:           EventRequestStatusChanged,
		RequestID:      1,
		Status:         models.StatusInProgress,
		PreviousStatus: models.StatusNew,
		DeviceID:       "desk-7",
	}))

	select {
	case ev := <-events:
		assert.Equal(t, EventRequestStatusChanged, ev.Type)
		assert.Equal(t, uint(1), ev.RequestID)
		assert.Equal(t, models.StatusNew, ev.PreviousStatus)
		assert.Equal(t, "desk-7", ev.DeviceID)
		assert.False(t, ev.OccurredAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	msg, err := statusSub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
	assert.Equal(t, uint(1), ev.RequestID)
}

func TestNotifier_PublishFailsWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer func() { _ = rdb.Close() }()
	mr.Close()

	err = NewNotifier(rdb).PublishRequestEvent(context.Background(), Event{
		Type:   EventRequestCreated,
		Status: models.StatusNew,
	})
	assert.Error(t, err)
}
