package application

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitClosed(t *testing.T, ch <-chan LocationUpdate) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("channel was not closed")
		}
	}
}

func TestLocationHub_DeliversToEverySubscriber(t *testing.T) {
	hub := NewLocationHub()
	tripID := uuid.New()
	ctx := context.Background()

	latest, a := hub.Subscribe(ctx, tripID)
	assert.Nil(t, latest)
	_, b := hub.Subscribe(ctx, tripID)
	_, other := hub.Subscribe(ctx, uuid.New())

	hub.Publish(LocationUpdate{TripID: tripID, Lat: 6.9, Lng: 79.8})

	assert.Equal(t, 6.9, (<-a).Lat)
	assert.Equal(t, 6.9, (<-b).Lat)
	assert.Empty(t, other)
	assert.Equal(t, 2, hub.SubscriberCount(tripID))
}

func TestLocationHub_SlowSubscriberLosesOldest(t *testing.T) {
	hub := NewLocationHub()
	tripID := uuid.New()
	_, ch := hub.Subscribe(context.Background(), tripID)

	total := subscriberBuffer + 3
	for i := 0; i < total; i++ {
		hub.Publish(LocationUpdate{TripID: tripID, Lat: float64(i)})
	}

	require.Len(t, ch, subscriberBuffer)
	first := <-ch
	assert.Equal(t, float64(total-subscriberBuffer), first.Lat)
}

func TestLocationHub_LateSubscriberGetsLatest(t *testing.T) {
	hub := NewLocationHub()
	tripID := uuid.New()
	hub.Publish(LocationUpdate{TripID: tripID, Lat: 1})
	hub.Publish(LocationUpdate{TripID: tripID, Lat: 2})

	latest, ch := hub.Subscribe(context.Background(), tripID)
	require.NotNil(t, latest)
	assert.Equal(t, 2.0, latest.Lat)
	assert.Empty(t, ch)
}

func TestLocationHub_UnsubscribesWhenContextEnds(t *testing.T) {
	hub := NewLocationHub()
	tripID := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	_, ch := hub.Subscribe(ctx, tripID)

	cancel()
	waitClosed(t, ch)
	assert.Zero(t, hub.SubscriberCount(tripID))

	// Publishing after the stream ended must not panic.
	hub.Publish(LocationUpdate{TripID: tripID})
}

func TestLocationHub_CloseTrip(t *testing.T) {
	hub := NewLocationHub()
	tripID := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub.Publish(LocationUpdate{TripID: tripID, Lat: 5})
	_, a := hub.Subscribe(ctx, tripID)
	_, b := hub.Subscribe(ctx, tripID)

	hub.CloseTrip(tripID)
	waitClosed(t, a)
	waitClosed(t, b)
	assert.Zero(t, hub.SubscriberCount(tripID))

	latest, _ := hub.Subscribe(ctx, tripID)
	assert.Nil(t, latest)

	// The context watcher must not close an already closed channel.
	cancel()
	time.Sleep(10 * time.Millisecond)
}
