package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tripshare/service-carpool/internal/domain/notification"
	"github.com/tripshare/service-carpool/internal/domain/store"
	tripDomain "github.com/tripshare/service-carpool/internal/domain/trip"
	"github.com/tripshare/service-carpool/internal/platform/clock"
	"github.com/tripshare/service-carpool/internal/platform/domain"
	"github.com/tripshare/service-carpool/internal/platform/kafka"
	"github.com/tripshare/service-carpool/internal/platform/policy"
	"github.com/tripshare/service-carpool/internal/repository/memstore"
)

var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// Colombo -> Kalutara -> Galle -> Matara.
var testRoute = []tripDomain.RoutePointInput{
	{OrderIndex: 0, Type: tripDomain.PointStart, Lat: 6.9271, Lng: 79.8612, DisplayAddress: "Colombo Fort"},
	{OrderIndex: 1, Type: tripDomain.PointStop, Lat: 6.5854, Lng: 79.9607, DisplayAddress: "Kalutara"},
	{OrderIndex: 2, Type: tripDomain.PointStop, Lat: 6.0535, Lng: 80.2210, DisplayAddress: "Galle"},
	{OrderIndex: 3, Type: tripDomain.PointEnd, Lat: 5.9549, Lng: 80.5550, DisplayAddress: "Matara"},
}

type publishedEvent struct {
	Topic string
	Event kafka.CloudEvent
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) PublishEvent(_ context.Context, topic string, event kafka.CloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Topic: topic, Event: event})
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Event.Type
	}
	return out
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification.Notification
}

func (n *fakeNotifier) Notify(_ context.Context, msg notification.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *fakeNotifier) to(userID uuid.UUID) []notification.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notification.Notification
	for _, msg := range n.sent {
		if msg.UserID == userID {
			out = append(out, msg)
		}
	}
	return out
}

type fakeRecorder struct {
	mu      sync.Mutex
	updates []LocationUpdate
}

func (r *fakeRecorder) Record(_ context.Context, u LocationUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return nil
}

func (r *fakeRecorder) History(_ context.Context, tripID uuid.UUID, limit int64) ([]LocationUpdate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []LocationUpdate
	for _, u := range r.updates {
		if u.TripID == tripID && int64(len(out)) < limit {
			out = append(out, u)
		}
	}
	return out, nil
}

type testEnv struct {
	store     *memstore.Store
	clock     *clock.Fake
	publisher *fakePublisher
	notifier  *fakeNotifier
	recorder  *fakeRecorder
	hub       *LocationHub
	ledger    *SeatLedger
	trips     *TripService
	bookings  *BookingService
	sweeper   *Sweeper
}

type envOption func(*envSettings)

type envSettings struct {
	wrap    func(*memstore.Store) store.Store
	tripCfg TripServiceConfig
}

// withStoreWrapper lets a test intercept the services' access to the store.
func withStoreWrapper(wrap func(*memstore.Store) store.Store) envOption {
	return func(s *envSettings) { s.wrap = wrap }
}

func withTripConfig(cfg TripServiceConfig) envOption {
	return func(s *envSettings) { s.tripCfg = cfg }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	mem := memstore.New()
	var settings envSettings
	for _, opt := range opts {
		opt(&settings)
	}
	var st store.Store = mem
	if settings.wrap != nil {
		st = settings.wrap(mem)
	}

	authz, err := policy.NewAuthorizer(context.Background())
	require.NoError(t, err)

	env := &testEnv{
		store:     mem,
		clock:     clock.NewFake(testNow),
		publisher: &fakePublisher{},
		notifier:  &fakeNotifier{},
		recorder:  &fakeRecorder{},
		hub:       NewLocationHub(),
	}
	logger := zap.NewNop()
	dispatcher := NewDispatcher(env.notifier, env.publisher, logger)
	env.ledger = NewSeatLedger(st, DefaultLedgerAttempts, logger)
	env.bookings = NewBookingService(st, env.ledger, authz, dispatcher, env.clock, logger)
	env.trips = NewTripService(st, env.ledger, authz, mem.Verifications(), env.hub,
		env.recorder, dispatcher, env.clock, settings.tripCfg, logger)
	env.sweeper = NewSweeper(st, env.bookings, env.trips, env.clock, SweeperConfig{}, logger)
	return env
}

type tripOptions struct {
	seats   int
	instant bool
	prices  []int64
	route   []tripDomain.RoutePointInput
}

func (e *testEnv) createTrip(t *testing.T, driverID uuid.UUID, opts tripOptions) *TripDTO {
	t.Helper()
	if opts.route == nil {
		opts.route = testRoute
	}
	if opts.prices == nil {
		opts.prices = []int64{50000, 70000, 40000}
	}
	prices := make([]tripDomain.SegmentPriceInput, len(opts.prices))
	for i, p := range opts.prices {
		prices[i] = tripDomain.SegmentPriceInput{OrderIndex: i, PriceCents: p}
	}
	seats := opts.seats
	dto, err := e.trips.CreateTrip(context.Background(), driverID, CreateTripRequest{
		DepartureAt: testNow.Add(24 * time.Hour),
		SeatsTotal:  &seats,
		InstantBook: opts.instant,
		Points:      opts.route,
		Prices:      prices,
	})
	require.NoError(t, err)
	return dto
}

func (e *testEnv) book(passengerID uuid.UUID, trip *TripDTO, from, to, seats int) (*BookingDTO, error) {
	pickup, dropoff := trip.Points[from], trip.Points[to]
	return e.bookings.CreateBooking(context.Background(), passengerID, CreateBookingRequest{
		TripID:         trip.ID,
		PickupPointID:  pickup.ID,
		DropoffPointID: dropoff.ID,
		PickupLat:      pickup.Lat,
		PickupLng:      pickup.Lng,
		DropoffLat:     dropoff.Lat,
		DropoffLng:     dropoff.Lng,
		Seats:          seats,
	})
}

func (e *testEnv) mustBook(t *testing.T, passengerID uuid.UUID, trip *TripDTO, from, to, seats int) *BookingDTO {
	t.Helper()
	bk, err := e.book(passengerID, trip, from, to, seats)
	require.NoError(t, err)
	return bk
}

// bookedSeats returns the booked seat count of every segment in order.
func (e *testEnv) bookedSeats(t *testing.T, tripID uuid.UUID) []int {
	t.Helper()
	trip, err := e.store.Trips().FindByID(context.Background(), tripID)
	require.NoError(t, err)
	out := make([]int, len(trip.Segments()))
	for i, seg := range trip.Segments() {
		out[i] = seg.BookedSeats()
	}
	return out
}

var errSerialization = domain.NewConflictError("could not serialize access due to concurrent update")

// conflictStore fails the first n transactions with a conflict.
type conflictStore struct {
	store.Store
	mu        sync.Mutex
	remaining int
	calls     int
}

func (s *conflictStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	s.mu.Lock()
	s.calls++
	fail := s.remaining > 0
	if fail {
		s.remaining--
	}
	s.mu.Unlock()

	if fail {
		return s.Store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
			if err := fn(ctx, tx); err != nil {
				return err
			}
			return errSerialization
		})
	}
	return s.Store.WithinTx(ctx, fn)
}

// interleavingStore runs a one-shot hook just before the next transaction
// starts, standing in for a concurrent writer.
type interleavingStore struct {
	store.Store
	mu   sync.Mutex
	hook func()
}

func (s *interleavingStore) before(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

func (s *interleavingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	s.mu.Lock()
	hook := s.hook
	s.hook = nil
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return s.Store.WithinTx(ctx, fn)
}
