package application

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripshare/service-carpool/internal/contracts"
	"github.com/tripshare/service-carpool/internal/domain/store"
	tripDomain "github.com/tripshare/service-carpool/internal/domain/trip"
	"github.com/tripshare/service-carpool/internal/platform/domain"
	"github.com/tripshare/service-carpool/internal/repository/memstore"
)

var twoSegmentRoute = []tripDomain.RoutePointInput{
	{OrderIndex: 0, Type: tripDomain.PointStart, Lat: 6.9271, Lng: 79.8612, DisplayAddress: "Colombo Fort"},
	{OrderIndex: 1, Type: tripDomain.PointStop, Lat: 6.5854, Lng: 79.9607, DisplayAddress: "Kalutara"},
	{OrderIndex: 2, Type: tripDomain.PointEnd, Lat: 6.0535, Lng: 80.2210, DisplayAddress: "Galle"},
}

func TestReserve_FullSpanThenCapacityExceeded(t *testing.T) {
	env := newTestEnv(t)
	driver := uuid.New()
	trip := env.createTrip(t, driver, tripOptions{seats: 2, instant: true, prices: []int64{100, 150}, route: twoSegmentRoute})

	first := env.mustBook(t, uuid.New(), trip, 0, 2, 2)
	assert.Equal(t, int64(500), first.PriceTotalCents)
	assert.Equal(t, []int{2, 2}, env.bookedSeats(t, trip.ID))

	_, err := env.book(uuid.New(), trip, 1, 2, 1)
	require.Error(t, err)
	assert.True(t, domain.IsCapacity(err))
	assert.Equal(t, domain.CapacityMessage, err.Error())
	assert.Equal(t, []int{2, 2}, env.bookedSeats(t, trip.ID))
}

func TestReserve_DisjointSectionsShareASeat(t *testing.T) {
	env := newTestEnv(t)
	trip := env.createTrip(t, uuid.New(), tripOptions{seats: 1, instant: true})

	env.mustBook(t, uuid.New(), trip, 0, 1, 1)
	env.mustBook(t, uuid.New(), trip, 1, 3, 1)
	assert.Equal(t, []int{1, 1, 1}, env.bookedSeats(t, trip.ID))

	_, err := env.book(uuid.New(), trip, 2, 3, 1)
	assert.True(t, domain.IsCapacity(err))
}

func TestReserve_PricesOnlyTheBookedSection(t *testing.T) {
	env := newTestEnv(t)
	trip := env.createTrip(t, uuid.New(), tripOptions{seats: 4, instant: true})

	bk := env.mustBook(t, uuid.New(), trip, 1, 3, 2)
	assert.Equal(t, int64((70000+40000)*2), bk.PriceTotalCents)
	assert.Equal(t, []int{0, 2, 2}, env.bookedSeats(t, trip.ID))
}

func TestReserve_AllocationsMatchBookedSeats(t *testing.T) {
	env := newTestEnv(t)
	trip := env.createTrip(t, uuid.New(), tripOptions{seats: 6, instant: true})

	a := env.mustBook(t, uuid.New(), trip, 0, 2, 2)
	b := env.mustBook(t, uuid.New(), trip, 1, 3, 3)

	ctx := context.Background()
	perSegment := map[uuid.UUID]int{}
	for _, id := range []uuid.UUID{a.ID, b.ID} {
		allocations, err := env.store.Bookings().FindAllocations(ctx, id)
		require.NoError(t, err)
		for _, alloc := range allocations {
			perSegment[alloc.SegmentID] += alloc.Seats
		}
	}

	stored, err := env.store.Trips().FindByID(ctx, trip.ID)
	require.NoError(t, err)
	for _, seg := range stored.Segments() {
		assert.Equal(t, seg.BookedSeats(), perSegment[seg.ID()], "segment %d", seg.OrderIndex())
	}
}

func TestReserveRelease_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	trip := env.createTrip(t, uuid.New(), tripOptions{seats: 4, instant: true})
	env.mustBook(t, uuid.New(), trip, 2, 3, 1)
	before := env.bookedSeats(t, trip.ID)

	bk := env.mustBook(t, uuid.New(), trip, 0, 3, 3)
	assert.Equal(t, []int{3, 3, 4}, env.bookedSeats(t, trip.ID))

	require.NoError(t, env.ledger.ReleaseBooking(context.Background(), bk.ID))
	assert.Equal(t, before, env.bookedSeats(t, trip.ID))
}

func TestRelease_FloorsAtZero(t *testing.T) {
	env := newTestEnv(t)
	trip := env.createTrip(t, uuid.New(), tripOptions{seats: 3, instant: true})
	bk := env.mustBook(t, uuid.New(), trip, 0, 2, 2)

	ctx := context.Background()
	require.NoError(t, env.ledger.ReleaseBooking(ctx, bk.ID))
	require.NoError(t, env.ledger.ReleaseBooking(ctx, bk.ID))
	assert.Equal(t, []int{0, 0, 0}, env.bookedSeats(t, trip.ID))
}

func TestReserve_ConcurrentRequestsNeverOverbook(t *testing.T) {
	env := newTestEnv(t)
	trip := env.createTrip(t, uuid.New(), tripOptions{seats: 1, instant: true})

	const passengers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		full      int
	)
	for i := 0; i < passengers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.book(uuid.New(), trip, 0, 3, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case domain.IsCapacity(err):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, passengers-1, full)
	assert.Equal(t, []int{1, 1, 1}, env.bookedSeats(t, trip.ID))
}

func TestReserve_RetriesConflicts(t *testing.T) {
	var cs *conflictStore
	env := newTestEnv(t, withStoreWrapper(func(mem *memstore.Store) store.Store {
		cs = &conflictStore{Store: mem, remaining: 2}
		return cs
	}))
	trip := env.createTrip(t, uuid.New(), tripOptions{seats: 2, instant: true})

	bk, err := env.book(uuid.New(), trip, 0, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, cs.calls)
	assert.Equal(t, []int{1, 1, 1}, env.bookedSeats(t, trip.ID))

	stored, err := env.store.Bookings().FindByID(context.Background(), bk.ID)
	require.NoError(t, err)
	assert.Equal(t, bk.Reference, stored.Reference())
}

func TestReserve_GivesUpAfterMaxAttempts(t *testing.T) {
	var cs *conflictStore
	env := newTestEnv(t, withStoreWrapper(func(mem *memstore.Store) store.Store {
		cs = &conflictStore{Store: mem, remaining: DefaultLedgerAttempts}
		return cs
	}))
	trip := env.createTrip(t, uuid.New(), tripOptions{seats: 2, instant: true})

	_, err := env.book(uuid.New(), trip, 0, 3, 1)
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
	assert.ErrorIs(t, err, errSerialization)
	assert.Equal(t, DefaultLedgerAttempts, cs.calls)

	assert.Equal(t, []int{0, 0, 0}, env.bookedSeats(t, trip.ID))
	assert.NotContains(t, env.publisher.types(), contracts.BookingCreated)
}

func TestReserve_RechecksTripInsideTheTransaction(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		wantErr func(error) bool
	}{
		{"cancelled and hidden", "cancelled", domain.IsNotFound},
		{"already departed", "en_route", domain.IsInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var is *interleavingStore
			env := newTestEnv(t, withStoreWrapper(func(mem *memstore.Store) store.Store {
				is = &interleavingStore{Store: mem}
				return is
			}))
			driver := uuid.New()
			trip := env.createTrip(t, driver, tripOptions{seats: 3, instant: true})

			is.before(func() {
				_, err := env.trips.SetTripStatus(context.Background(), driver, trip.ID,
					SetTripStatusRequest{Status: tt.status, Reason: "flat tyre"})
				require.NoError(t, err)
			})

			_, err := env.book(uuid.New(), trip, 0, 3, 2)
			require.Error(t, err)
			assert.True(t, tt.wantErr(err), "got %v", err)
			assert.Equal(t, []int{0, 0, 0}, env.bookedSeats(t, trip.ID))

			listed, err := env.bookings.DriverBookings(context.Background(), driver, 1, 20)
			require.NoError(t, err)
			assert.Zero(t, listed.Total)
			assert.NotContains(t, env.publisher.types(), contracts.BookingCreated)
		})
	}
}

func TestRetry_StopsOnNonConflictError(t *testing.T) {
	env := newTestEnv(t)
	calls := 0
	err := env.ledger.Retry(context.Background(), "test", func(context.Context) error {
		calls++
		return domain.NewValidationError("bad input")
	})
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, 1, calls)
}

func TestRetry_HonorsCancelledContext(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := env.ledger.Retry(ctx, "test", func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
