package application

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const subscriberBuffer = 8

// LocationUpdate is a driver position broadcast to a trip's participants.
type LocationUpdate struct {
	TripID     uuid.UUID `json:"trip_id"`
	DriverID   uuid.UUID `json:"driver_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Heading    *float64  `json:"heading,omitempty"`
	ETAMinutes *int      `json:"eta_minutes,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

type subscriber struct {
	ch chan LocationUpdate
}

type tripChannel struct {
	latest      *LocationUpdate
	subscribers map[*subscriber]struct{}
}

// LocationHub fans out live driver positions per trip. Publishing never
// blocks: a subscriber that falls behind loses its oldest buffered update.
type LocationHub struct {
	mu    sync.Mutex
	trips map[uuid.UUID]*tripChannel
}

// NewLocationHub creates an empty hub.
func NewLocationHub() *LocationHub {
	return &LocationHub{trips: make(map[uuid.UUID]*tripChannel)}
}

func (h *LocationHub) channel(tripID uuid.UUID) *tripChannel {
	tc, ok := h.trips[tripID]
	if !ok {
		tc = &tripChannel{subscribers: make(map[*subscriber]struct{})}
		h.trips[tripID] = tc
	}
	return tc
}

// Publish stores update as the trip's latest position and delivers it to
// every subscriber.
func (h *LocationHub) Publish(update LocationUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tc := h.channel(update.TripID)
	latest := update
	tc.latest = &latest

	for sub := range tc.subscribers {
		select {
		case sub.ch <- update:
			continue
		default:
		}
		// Full: drop the oldest and retry once.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- update:
		default:
		}
	}
}

// Subscribe registers for a trip's updates. The returned channel is closed
// when ctx is done or the trip is closed.
func (h *LocationHub) Subscribe(ctx context.Context, tripID uuid.UUID) (*LocationUpdate, <-chan LocationUpdate) {
	sub := &subscriber{ch: make(chan LocationUpdate, subscriberBuffer)}

	h.mu.Lock()
	tc := h.channel(tripID)
	tc.subscribers[sub] = struct{}{}
	var latest *LocationUpdate
	if tc.latest != nil {
		cp := *tc.latest
		latest = &cp
	}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.unsubscribe(tripID, sub)
	}()

	return latest, sub.ch
}

func (h *LocationHub) unsubscribe(tripID uuid.UUID, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tc, ok := h.trips[tripID]
	if !ok {
		return
	}
	if _, ok := tc.subscribers[sub]; !ok {
		return
	}
	delete(tc.subscribers, sub)
	close(sub.ch)
	if len(tc.subscribers) == 0 && tc.latest == nil {
		delete(h.trips, tripID)
	}
}

// CloseTrip ends every stream of a finished trip and forgets its position.
func (h *LocationHub) CloseTrip(tripID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tc, ok := h.trips[tripID]
	if !ok {
		return
	}
	for sub := range tc.subscribers {
		close(sub.ch)
	}
	delete(h.trips, tripID)
}

// SubscriberCount reports how many streams are open for a trip.
func (h *LocationHub) SubscriberCount(tripID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if tc, ok := h.trips[tripID]; ok {
		return len(tc.subscribers)
	}
	return 0
}
