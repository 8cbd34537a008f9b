package application

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripshare/service-carpool/internal/contracts"
	bookingDomain "github.com/tripshare/service-carpool/internal/domain/booking"
	"github.com/tripshare/service-carpool/internal/domain/notification"
	"github.com/tripshare/service-carpool/internal/platform/domain"
)

func TestCreateBooking_InstantBookIsAccepted(t *testing.T) {
	env := newTestEnv(t)
	driver, passenger := uuid.New(), uuid.New()
	trip := env.createTrip(t, driver, tripOptions{seats: 3, instant: true})

	bk := env.mustBook(t, passenger, trip, 0, 3, 1)

	assert.Equal(t, string(bookingDomain.StatusAccepted), bk.Status)
	assert.Equal(t, string(bookingDomain.ProgressAwaitingPickup), bk.Progress)
	assert.Nil(t, bk.PendingExpiresAt)
	assert.Regexp(t, `^CP-[A-Z0-9]{6}$`, bk.Reference)
	assert.Equal(t, "LKR", bk.Currency)

	require.Len(t, env.notifier.to(passenger), 1)
	assert.Equal(t, notification.TypeBookingAccepted, env.notifier.to(passenger)[0].Type)
	require.Len(t, env.notifier.to(driver), 1)
	assert.Contains(t, env.publisher.types(), contracts.BookingCreated)
}

func TestCreateBooking_RequestIsPendingWithExpiry(t *testing.T) {
	env := newTestEnv(t)
	driver, passenger := uuid.New(), uuid.New()
	trip := env.createTrip(t, driver, tripOptions{seats: 3})

	bk := env.mustBook(t, passenger, trip, 0, 1, 2)

	assert.Equal(t, string(bookingDomain.StatusPending), bk.Status)
	require.NotNil(t, bk.PendingExpiresAt)
	assert.Equal(t, testNow.Add(30*time.Minute), *bk.PendingExpiresAt)
	assert.Equal(t, []int{2, 0, 0}, env.bookedSeats(t, trip.ID))

	assert.Empty(t, env.notifier.to(passenger))
	require.Len(t, env.notifier.to(driver), 1)
	assert.Equal(t, "New booking request", env.notifier.to(driver)[0].Title)
}

func TestCreateBooking_Validation(t *testing.T) {
	env := newTestEnv(t)
	driver := uuid.New()
	trip := env.createTrip(t, driver, tripOptions{seats: 3})
	passenger := uuid.New()

	tests := []struct {
		name   string
		mutate func(*CreateBookingRequest)
		check  func(error) bool
	}{
		{"zero seats", func(r *CreateBookingRequest) { r.Seats = 0 }, domain.IsValidation},
		{"too many seats", func(r *CreateBookingRequest) { r.Seats = 9 }, domain.IsValidation},
		{"invalid coordinates", func(r *CreateBookingRequest) { r.PickupLat = 91 }, domain.IsValidation},
		{"pickup not on trip", func(r *CreateBookingRequest) { r.PickupPointID = uuid.New() }, domain.IsValidation},
		{"dropoff before pickup", func(r *CreateBookingRequest) {
			r.PickupPointID, r.DropoffPointID = r.DropoffPointID, r.PickupPointID
			r.PickupLat, r.DropoffLat = r.DropoffLat, r.PickupLat
			r.PickupLng, r.DropoffLng = r.DropoffLng, r.PickupLng
		}, domain.IsValidation},
		{"pin far from route point", func(r *CreateBookingRequest) { r.PickupLat += 0.2 }, domain.IsValidation},
		{"unknown trip", func(r *CreateBookingRequest) { r.TripID = uuid.New() }, domain.IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := CreateBookingRequest{
				TripID:         trip.ID,
				PickupPointID:  trip.Points[0].ID,
				DropoffPointID: trip.Points[2].ID,
				PickupLat:      trip.Points[0].Lat,
				PickupLng:      trip.Points[0].Lng,
				DropoffLat:     trip.Points[2].Lat,
				DropoffLng:     trip.Points[2].Lng,
				Seats:          1,
			}
			tt.mutate(&req)
			_, err := env.bookings.CreateBooking(context.Background(), passenger, req)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
	assert.Equal(t, []int{0, 0, 0}, env.bookedSeats(t, trip.ID))
}

func TestCreateBooking_DriverCannotBookOwnTrip(t *testing.T) {
	env := newTestEnv(t)
	driver := uuid.New()
	trip := env.createTrip(t, driver, tripOptions{seats: 3})

	_, err := env.book(driver, trip, 0, 1, 1)
	assert.True(t, domain.IsValidation(err))
}

func TestCreateBooking_PrivateTripLooksMissing(t *testing.T) {
	env := newTestEnv(t)
	driver := uuid.New()
	trip := env.createTrip(t, driver, tripOptions{seats: 3})
	_, err := env.trips.SetVisibility(context.Background(), driver, trip.ID, false)
	require.NoError(t, err)

	_, err = env.book(uuid.New(), trip, 0, 1, 1)
	assert.True(t, domain.IsNotFound(err))
}

func TestCreateBooking_ClosedAtCutoff(t *testing.T) {
	env := newTestEnv(t)
	trip := env.createTrip(t, uuid.New(), tripOptions{seats: 3})

	// Departure is 24h out with a 60 minute cutoff.
	env.clock.Advance(23 * time.Hour)
	_, err := env.book(uuid.New(), trip, 0, 1, 1)
	assert.True(t, domain.IsValidation(err))
}

func TestSetBookingStatus_DriverAcceptsRequest(t *testing.T) {
	env := newTestEnv(t)
	driver, passenger := uuid.New(), uuid.New()
	trip := env.createTrip(t, driver, tripOptions{seats: 3})
	bk := env.mustBook(t, passenger, trip, 0, 2, 2)

	got, err := env.bookings.SetBookingStatus(context.Background(), driver, bk.ID,
		SetBookingStatusRequest{Status: "ACCEPTED"}, true)
	require.NoError(t, err)

	assert.Equal(t, string(bookingDomain.StatusAccepted), got.Status)
	assert.Nil(t, got.PendingExpiresAt)
	assert.Equal(t, bk.Version+1, got.Version)
	assert.Equal(t, []int{2, 2, 0}, env.bookedSeats(t, trip.ID))
	assert.Contains(t, env.publisher.types(), contracts.BookingAccepted)

	msgs := env.notifier.to(passenger)
	require.NotEmpty(t, msgs)
	assert.Equal(t, notification.TypeBookingAccepted, msgs[len(msgs)-1].Type)
}

func TestSetBookingStatus_DriverRejectReleasesSeats(t *testing.T) {
	env := newTestEnv(t)
	driver := uuid.New()
	trip := env.createTrip(t, driver, tripOptions{seats: 3})
	bk := env.mustBook(t, uuid.New(), trip, 1, 3, 3)

	got, err := env.bookings.SetBookingStatus(context.Background(), driver, bk.ID,
		SetBookingStatusRequest{Status: "rejected", Reason: "car is full"}, true)
	require.NoError(t, err)

	assert.Equal(t, string(bookingDomain.StatusRejected), got.Status)
	assert.Equal(t, string(bookingDomain.ProgressCancelled), got.Progress)
	assert.Equal(t, "car is full", got.CancellationNote)
	assert.Equal(t, []int{0, 0, 0}, env.bookedSeats(t, trip.ID))
}

func TestSetBookingStatus_PassengerCancels(t *testing.T) {
	env := newTestEnv(t)
	driver, passenger := uuid.New(), uuid.New()
	trip := env.createTrip(t, driver, tripOptions{seats: 3, instant: true})
	bk := env.mustBook(t, passenger, trip, 0, 3, 2)

	got, err := env.bookings.SetBookingStatus(context.Background(), passenger, bk.ID,
		SetBookingStatusRequest{Status: "cancelled", Reason: "plans changed"}, false)
	require.NoError(t, err)

	assert.Equal(t, string(bookingDomain.StatusCancelled), got.Status)
	assert.Equal(t, []int{0, 0, 0}, env.bookedSeats(t, trip.ID))

	msgs := env.notifier.to(driver)
	assert.Equal(t, notification.TypeBookingCancelled, msgs[len(msgs)-1].Type)
}

func TestSetBookingStatus_TerminalBookingDoesNotReleaseTwice(t *testing.T) {
	env := newTestEnv(t)
	passenger := uuid.New()
	trip := env.createTrip(t, uuid.New(), tripOptions{seats: 3, instant: true})
	other := env.mustBook(t, uuid.New(), trip, 0, 3, 1)
	bk := env.mustBook(t, passenger, trip, 0, 3, 2)

	ctx := context.Background()
	cancel := SetBookingStatusRequest{Status: "cancelled"}
	_, err := env.bookings.SetBookingStatus(ctx, passenger, bk.ID, cancel, false)
	require.NoError(t, err)

	_, err = env.bookings.SetBookingStatus(ctx, passenger, bk.ID, cancel, false)
	assert.True(t, domain.IsInvalidState(err))
	assert.Equal(t, []int{other.Seats, other.Seats, other.Seats}, env.bookedSeats(t, trip.ID))
}

func TestSetBookingStatus_Rules(t *testing.T) {
	driver, passenger := uuid.New(), uuid.New()

	tests := []struct {
		name    string
		instant bool
		actor   func() uuid.UUID
		driver  bool
		status  string
		check   func(error) bool
	}{
		{"passenger cannot accept", false, func() uuid.UUID { return passenger }, false, "accepted", domain.IsForbidden},
		{"passenger cannot use driver side", false, func() uuid.UUID { return passenger }, true, "accepted", domain.IsForbidden},
		{"stranger cannot cancel", true, uuid.New, false, "cancelled", domain.IsForbidden},
		{"driver cannot cancel a request", false, func() uuid.UUID { return driver }, true, "cancelled", domain.IsInvalidState},
		{"accepted cannot be rejected", true, func() uuid.UUID { return driver }, true, "rejected", domain.IsInvalidState},
		{"nothing moves back to pending", true, func() uuid.UUID { return driver }, true, "pending", domain.IsInvalidState},
		{"unknown status", true, func() uuid.UUID { return driver }, true, "teleported", domain.IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			trip := env.createTrip(t, driver, tripOptions{seats: 3, instant: tt.instant})
			bk := env.mustBook(t, passenger, trip, 0, 1, 1)

			_, err := env.bookings.SetBookingStatus(context.Background(), tt.actor(), bk.ID,
				SetBookingStatusRequest{Status: tt.status}, tt.driver)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
			assert.Equal(t, []int{1, 0, 0}, env.bookedSeats(t, trip.ID))
		})
	}
}

func TestSetBookingStatus_ForbiddenSaysNothingAboutTheBooking(t *testing.T) {
	env := newTestEnv(t)
	trip := env.createTrip(t, uuid.New(), tripOptions{seats: 3})
	bk := env.mustBook(t, uuid.New(), trip, 0, 1, 1)

	_, err := env.bookings.SetBookingStatus(context.Background(), uuid.New(), bk.ID,
		SetBookingStatusRequest{Status: "cancelled"}, false)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), bk.ID.String())
	assert.NotContains(t, err.Error(), "pending")
}

func TestUpdateBookingProgress_DriverWalksTheRide(t *testing.T) {
	env := newTestEnv(t)
	driver, passenger := uuid.New(), uuid.New()
	trip := env.createTrip(t, driver, tripOptions{seats: 3, instant: true})
	bk := env.mustBook(t, passenger, trip, 0, 3, 1)
	ctx := context.Background()

	for _, step := range []string{"OnTheWay", "arrived", "riding"} {
		_, err := env.bookings.UpdateBookingProgress(ctx, driver, bk.ID, UpdateProgressRequest{Progress: step})
		require.NoError(t, err, step)
	}
	done, err := env.bookings.UpdateBookingProgress(ctx, driver, bk.ID, UpdateProgressRequest{Progress: "completed"})
	require.NoError(t, err)

	assert.Equal(t, string(bookingDomain.StatusCompleted), done.Status)
	assert.Equal(t, string(bookingDomain.ProgressCompleted), done.Progress)
	require.NotNil(t, done.CompletedAt)
	// Completed rides keep their seats.
	assert.Equal(t, []int{1, 1, 1}, env.bookedSeats(t, trip.ID))
	assert.Contains(t, env.publisher.types(), contracts.BookingProgress)
	assert.Contains(t, env.publisher.types(), contracts.BookingCompleted)

	_, err = env.bookings.UpdateBookingProgress(ctx, driver, bk.ID, UpdateProgressRequest{Progress: "completed"})
	assert.True(t, domain.IsInvalidState(err), "completed booking: %v", err)
}

func TestUpdateBookingProgress_Rules(t *testing.T) {
	env := newTestEnv(t)
	driver, passenger := uuid.New(), uuid.New()
	trip := env.createTrip(t, driver, tripOptions{seats: 3})
	pending := env.mustBook(t, passenger, trip, 0, 1, 1)
	ctx := context.Background()

	_, err := env.bookings.UpdateBookingProgress(ctx, driver, pending.ID, UpdateProgressRequest{Progress: "riding"})
	assert.True(t, domain.IsInvalidState(err), "pending booking: %v", err)

	_, err = env.bookings.UpdateBookingProgress(ctx, driver, pending.ID, UpdateProgressRequest{Progress: "awaiting_pickup"})
	assert.True(t, domain.IsInvalidState(err), "pending booking at its current progress: %v", err)

	_, err = env.bookings.SetBookingStatus(ctx, driver, pending.ID, SetBookingStatusRequest{Status: "accepted"}, true)
	require.NoError(t, err)

	_, err = env.bookings.UpdateBookingProgress(ctx, passenger, pending.ID, UpdateProgressRequest{Progress: "riding"})
	assert.True(t, domain.IsForbidden(err), "passenger: %v", err)

	_, err = env.bookings.UpdateBookingProgress(ctx, driver, pending.ID, UpdateProgressRequest{Progress: "completed"})
	assert.True(t, domain.IsInvalidState(err), "skipping ahead: %v", err)

	_, err = env.bookings.UpdateBookingProgress(ctx, driver, pending.ID, UpdateProgressRequest{Progress: "flying"})
	assert.True(t, domain.IsValidation(err), "unknown progress: %v", err)
}

func TestUpdateBookingProgress_CancelledReleasesSeats(t *testing.T) {
	env := newTestEnv(t)
	driver, passenger := uuid.New(), uuid.New()
	trip := env.createTrip(t, driver, tripOptions{seats: 3, instant: true})
	bk := env.mustBook(t, passenger, trip, 0, 2, 2)

	got, err := env.bookings.UpdateBookingProgress(context.Background(), driver, bk.ID,
		UpdateProgressRequest{Progress: "cancelled", Note: "passenger no-show"})
	require.NoError(t, err)

	assert.Equal(t, string(bookingDomain.StatusCancelled), got.Status)
	assert.Equal(t, "passenger no-show", got.CancellationNote)
	assert.Equal(t, []int{0, 0, 0}, env.bookedSeats(t, trip.ID))
}

func TestGetBooking_OnlyParticipants(t *testing.T) {
	env := newTestEnv(t)
	driver, passenger := uuid.New(), uuid.New()
	trip := env.createTrip(t, driver, tripOptions{seats: 3})
	bk := env.mustBook(t, passenger, trip, 0, 1, 1)
	ctx := context.Background()

	for _, actor := range []uuid.UUID{driver, passenger} {
		got, err := env.bookings.GetBooking(ctx, actor, bk.ID)
		require.NoError(t, err)
		assert.Equal(t, bk.ID, got.ID)
	}

	_, strangerErr := env.bookings.GetBooking(ctx, uuid.New(), bk.ID)
	assert.True(t, domain.IsForbidden(strangerErr))

	_, missingErr := env.bookings.GetBooking(ctx, driver, uuid.New())
	assert.True(t, domain.IsForbidden(missingErr), "missing booking: %v", missingErr)
	assert.Equal(t, strangerErr.Error(), missingErr.Error())
}

func TestBookingWrites_MissingBookingLooksLikeSomeoneElses(t *testing.T) {
	env := newTestEnv(t)
	trip := env.createTrip(t, uuid.New(), tripOptions{seats: 3, instant: true})
	bk := env.mustBook(t, uuid.New(), trip, 0, 1, 1)
	stranger := uuid.New()
	ctx := context.Background()

	_, existing := env.bookings.SetBookingStatus(ctx, stranger, bk.ID, SetBookingStatusRequest{Status: "cancelled"}, false)
	_, missing := env.bookings.SetBookingStatus(ctx, stranger, uuid.New(), SetBookingStatusRequest{Status: "cancelled"}, false)
	require.Error(t, existing)
	require.Error(t, missing)
	assert.Equal(t, domain.CodeOf(existing), domain.CodeOf(missing))
	assert.Equal(t, existing.Error(), missing.Error())

	_, existing = env.bookings.UpdateBookingProgress(ctx, stranger, bk.ID, UpdateProgressRequest{Progress: "riding"})
	_, missing = env.bookings.UpdateBookingProgress(ctx, stranger, uuid.New(), UpdateProgressRequest{Progress: "riding"})
	require.Error(t, existing)
	require.Error(t, missing)
	assert.True(t, domain.IsForbidden(missing))
	assert.Equal(t, existing.Error(), missing.Error())
}

func TestBookingListings(t *testing.T) {
	env := newTestEnv(t)
	driver, passenger := uuid.New(), uuid.New()
	trip := env.createTrip(t, driver, tripOptions{seats: 6})
	env.mustBook(t, passenger, trip, 0, 1, 1)
	env.clock.Advance(time.Minute)
	latest := env.mustBook(t, passenger, trip, 1, 2, 1)
	env.mustBook(t, uuid.New(), trip, 2, 3, 1)
	ctx := context.Background()

	mine, err := env.bookings.MyBookings(ctx, passenger, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), mine.Total)
	assert.Equal(t, 2, mine.TotalPages)
	require.Len(t, mine.Items, 1)
	assert.Equal(t, latest.ID, mine.Items[0].ID)

	driverView, err := env.bookings.DriverBookings(ctx, driver, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(3), driverView.Total)

	all, total, err := env.bookings.ListAllBookings(ctx, 1, 20)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, int64(3), total)

	stats, err := env.bookings.GetBookingStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalBookings)
	assert.Equal(t, int64(3), stats.ByStatus[string(bookingDomain.StatusPending)])
}
