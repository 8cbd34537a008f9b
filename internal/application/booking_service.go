package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tripshare/service-carpool/internal/contracts"
	bookingDomain "github.com/tripshare/service-carpool/internal/domain/booking"
	"github.com/tripshare/service-carpool/internal/domain/geo"
	"github.com/tripshare/service-carpool/internal/domain/notification"
	"github.com/tripshare/service-carpool/internal/domain/store"
	tripDomain "github.com/tripshare/service-carpool/internal/domain/trip"
	"github.com/tripshare/service-carpool/internal/platform/clock"
	"github.com/tripshare/service-carpool/internal/platform/domain"
	"github.com/tripshare/service-carpool/internal/platform/policy"
)

// CreateBookingRequest holds the data needed to book seats on a trip.
type CreateBookingRequest struct {
	TripID         uuid.UUID `json:"trip_id"`
	PickupPointID  uuid.UUID `json:"pickup_point_id"`
	DropoffPointID uuid.UUID `json:"dropoff_point_id"`
	PickupLat      float64   `json:"pickup_lat"`
	PickupLng      float64   `json:"pickup_lng"`
	PickupName     string    `json:"pickup_name"`
	DropoffLat     float64   `json:"dropoff_lat"`
	DropoffLng     float64   `json:"dropoff_lng"`
	DropoffName    string    `json:"dropoff_name"`
	Seats          int       `json:"seats" binding:"required"`
}

// SetBookingStatusRequest asks for a booking status transition.
type SetBookingStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

// UpdateProgressRequest asks for a ride progress change.
type UpdateProgressRequest struct {
	Progress string `json:"progress" binding:"required"`
	Note     string `json:"note"`
}

// BookingService is the application service orchestrating booking use cases.
type BookingService struct {
	store      store.Store
	ledger     *SeatLedger
	authz      Authorizer
	dispatcher *Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
}

// NewBookingService creates a new BookingService.
func NewBookingService(
	st store.Store,
	ledger *SeatLedger,
	authz Authorizer,
	dispatcher *Dispatcher,
	clk clock.Clock,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		store:      st,
		ledger:     ledger,
		authz:      authz,
		dispatcher: dispatcher,
		clock:      clk,
		logger:     logger,
	}
}

// CreateBooking reserves seats for passengerID between two route points.
func (s *BookingService) CreateBooking(ctx context.Context, passengerID uuid.UUID, req CreateBookingRequest) (*BookingDTO, error) {
	if req.Seats < bookingDomain.MinSeats || req.Seats > bookingDomain.MaxSeats {
		return nil, domain.NewValidationError(fmt.Sprintf("seats must be between %d and %d", bookingDomain.MinSeats, bookingDomain.MaxSeats))
	}
	if !geo.IsValidCoordinate(req.PickupLat, req.PickupLng) || !geo.IsValidCoordinate(req.DropoffLat, req.DropoffLng) {
		return nil, domain.NewValidationError("invalid pickup or dropoff coordinates")
	}

	t, err := s.store.Trips().FindByID(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := checkTripOpen(t, passengerID, now); err != nil {
		return nil, err
	}

	pickup, ok := t.PointByID(req.PickupPointID)
	if !ok {
		return nil, domain.NewValidationError("pickup point is not on this trip")
	}
	dropoff, ok := t.PointByID(req.DropoffPointID)
	if !ok {
		return nil, domain.NewValidationError("dropoff point is not on this trip")
	}
	if dropoff.OrderIndex <= pickup.OrderIndex {
		return nil, domain.NewValidationError("dropoff must come after pickup")
	}
	if err := tripDomain.ValidatePin(pickup, req.PickupLat, req.PickupLng, "pickup"); err != nil {
		return nil, err
	}
	if err := tripDomain.ValidatePin(dropoff, req.DropoffLat, req.DropoffLng, "dropoff"); err != nil {
		return nil, err
	}

	bk, err := s.ledger.Reserve(ctx, ReserveRequest{
		TripID:       t.ID(),
		PickupIndex:  pickup.OrderIndex,
		DropoffIndex: dropoff.OrderIndex,
		Seats:        req.Seats,
		CheckTrip: func(current *tripDomain.Trip) error {
			return checkTripOpen(current, passengerID, now)
		},
		NewBooking: func(perSeatCents int64) (*bookingDomain.Booking, error) {
			return bookingDomain.NewBooking(bookingDomain.NewBookingParams{
				TripID:          t.ID(),
				PassengerID:     passengerID,
				Pickup:          bookingDomain.Location{PointID: pickup.ID, Lat: req.PickupLat, Lng: req.PickupLng, Name: req.PickupName},
				Dropoff:         bookingDomain.Location{PointID: dropoff.ID, Lat: req.DropoffLat, Lng: req.DropoffLng, Name: req.DropoffName},
				PickupIndex:     pickup.OrderIndex,
				DropoffIndex:    dropoff.OrderIndex,
				Seats:           req.Seats,
				PriceTotalCents: perSeatCents * int64(req.Seats),
				Currency:        t.Currency(),
				InstantBook:     t.InstantBook(),
				PendingExpiry:   t.PendingExpiry(),
			}, now)
		},
	})
	if err != nil {
		return nil, err
	}

	box := &outbox{}
	recordBookingEvent(box, bk, "", contracts.BookingCreated)
	if bk.Status() == bookingDomain.StatusAccepted {
		box.notify(notification.ForBooking(passengerID, notification.TypeBookingAccepted,
			"Booking confirmed", "Your seats are confirmed.", t.ID(), bk.ID()))
		box.notify(notification.ForBooking(t.DriverID(), notification.TypeBookingRequested,
			"New passenger", "A passenger booked seats on your trip.", t.ID(), bk.ID()))
	} else {
		box.notify(notification.ForBooking(t.DriverID(), notification.TypeBookingRequested,
			"New booking request", "A passenger requested seats on your trip.", t.ID(), bk.ID()))
	}
	s.dispatcher.flush(ctx, box)

	result := toBookingDTO(bk)
	return &result, nil
}

// SetBookingStatus applies a passenger-side or driver-side status transition.
func (s *BookingService) SetBookingStatus(ctx context.Context, actorID, bookingID uuid.UUID, req SetBookingStatusRequest, isDriverAction bool) (*BookingDTO, error) {
	target, err := bookingDomain.ParseBookingStatus(req.Status)
	if err != nil {
		return nil, domain.NewValidationError(err.Error())
	}
	if target == bookingDomain.StatusPending {
		return nil, domain.NewInvalidStateMessage("a booking cannot be moved back to pending")
	}

	action, by := policy.ActionPassengerTransition, bookingDomain.PartyPassenger
	if isDriverAction {
		action, by = policy.ActionDriverTransition, bookingDomain.PartyDriver
	}

	box := &outbox{}
	var result *bookingDomain.Booking
	err = s.ledger.Retry(ctx, "set_booking_status", func(ctx context.Context) error {
		box.reset()
		return s.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
			bk, t, err := loadBookingForActor(ctx, tx, bookingID)
			if err != nil {
				return err
			}
			if err := authorize(ctx, s.authz, bookingPolicyInput(action, actorID, t, bk, string(target))); err != nil {
				return err
			}
			if err := transitionBooking(ctx, tx, s.ledger, t, bk, target, req.Reason, by, s.clock.Now(), box); err != nil {
				return err
			}
			result = bk
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking status changed",
		zap.String("booking_id", bookingID.String()),
		zap.String("status", string(result.Status())),
		zap.String("by", string(by)),
	)
	s.dispatcher.flush(ctx, box)

	dto := toBookingDTO(result)
	return &dto, nil
}

// UpdateBookingProgress lets the driver advance an accepted booking's ride.
// Cancelled progress is routed through the full cancellation.
func (s *BookingService) UpdateBookingProgress(ctx context.Context, actorID, bookingID uuid.UUID, req UpdateProgressRequest) (*BookingDTO, error) {
	target, err := bookingDomain.ParseProgressStatus(req.Progress)
	if err != nil {
		return nil, domain.NewValidationError(err.Error())
	}
	if target == bookingDomain.ProgressCancelled {
		return s.SetBookingStatus(ctx, actorID, bookingID, SetBookingStatusRequest{
			Status: string(bookingDomain.StatusCancelled),
			Reason: req.Note,
		}, true)
	}

	box := &outbox{}
	var result *bookingDomain.Booking
	err = s.ledger.Retry(ctx, "update_booking_progress", func(ctx context.Context) error {
		box.reset()
		return s.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
			bk, t, err := loadBookingForActor(ctx, tx, bookingID)
			if err != nil {
				return err
			}
			if err := authorize(ctx, s.authz, bookingPolicyInput(policy.ActionBookingProgress, actorID, t, bk, string(target))); err != nil {
				return err
			}
			if bk.Status() != bookingDomain.StatusAccepted {
				return domain.NewInvalidStateMessage("ride progress can only change on an accepted booking")
			}
			if target == bk.Progress() {
				result = bk
				return nil
			}
			if err := bk.AdvanceProgress(target, s.clock.Now()); err != nil {
				return err
			}
			bk.IncrementVersion()
			if err := tx.Bookings().Update(ctx, bk); err != nil {
				return err
			}

			if bk.Status() == bookingDomain.StatusCompleted {
				notifyBookingTransition(box, t, bk, bookingDomain.PartyDriver)
				recordBookingEvent(box, bk, req.Note, contracts.BookingCompleted)
			} else {
				notifyProgress(box, t, bk)
				recordBookingEvent(box, bk, req.Note, contracts.BookingProgress)
			}
			result = bk
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.flush(ctx, box)
	dto := toBookingDTO(result)
	return &dto, nil
}

// GetBooking returns a booking to one of its participants.
func (s *BookingService) GetBooking(ctx context.Context, actorID, bookingID uuid.UUID) (*BookingDTO, error) {
	bk, t, err := loadBookingForActor(ctx, s.store, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.authz, bookingPolicyInput(policy.ActionViewBooking, actorID, t, bk, "")); err != nil {
		return nil, err
	}
	result := toBookingDTO(bk)
	return &result, nil
}

// MyBookings lists the bookings a passenger made.
func (s *BookingService) MyBookings(ctx context.Context, passengerID uuid.UUID, page, limit int) (*domain.PaginatedResult[BookingDTO], error) {
	bookings, total, err := s.store.Bookings().FindByPassengerID(ctx, passengerID, page, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list passenger bookings: %w", err)
	}
	return domain.NewPaginatedResult(toBookingDTOs(bookings), total, page, limit), nil
}

// DriverBookings lists bookings on trips the driver runs.
func (s *BookingService) DriverBookings(ctx context.Context, driverID uuid.UUID, page, limit int) (*domain.PaginatedResult[BookingDTO], error) {
	bookings, total, err := s.store.Bookings().FindByDriverID(ctx, driverID, page, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list driver bookings: %w", err)
	}
	return domain.NewPaginatedResult(toBookingDTOs(bookings), total, page, limit), nil
}

// ListAllBookings returns a paginated list of all bookings (admin).
func (s *BookingService) ListAllBookings(ctx context.Context, page, limit int) ([]BookingDTO, int64, error) {
	bookings, total, err := s.store.Bookings().ListAll(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	return toBookingDTOs(bookings), total, nil
}

// GetBookingStats returns aggregate booking statistics (admin).
func (s *BookingService) GetBookingStats(ctx context.Context) (*BookingStatsDTO, error) {
	counts, err := s.store.Bookings().CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking stats: %w", err)
	}

	var total int64
	for _, c := range counts {
		total += c
	}
	return &BookingStatsDTO{TotalBookings: total, ByStatus: counts}, nil
}

// expirePending rejects one pending booking whose request window has
// closed. It reports false when the booking was resolved in the meantime.
func (s *BookingService) expirePending(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	box := &outbox{}
	expired := false
	err := s.ledger.Retry(ctx, "expire_booking", func(ctx context.Context) error {
		box.reset()
		expired = false
		return s.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
			bk, t, err := loadBookingAndTrip(ctx, tx, bookingID)
			if err != nil {
				return err
			}
			now := s.clock.Now()
			if !bk.IsExpired(now) {
				return nil
			}
			if err := transitionBooking(ctx, tx, s.ledger, t, bk, bookingDomain.StatusRejected,
				bookingDomain.ReasonExpired, bookingDomain.PartySystem, now, box); err != nil {
				return err
			}
			expired = true
			return nil
		})
	})
	if err != nil {
		return false, err
	}
	s.dispatcher.flush(ctx, box)
	return expired, nil
}

// checkTripOpen reports whether passengerID may book seats on t at now.
// Hidden trips look missing.
func checkTripOpen(t *tripDomain.Trip, passengerID uuid.UUID, now time.Time) error {
	if !t.IsPublic() {
		return domain.NewNotFoundError("Trip", t.ID().String())
	}
	if t.DriverID() == passengerID {
		return domain.NewValidationError("drivers cannot book their own trip")
	}
	return t.CheckBookable(now)
}

// loadBookingForActor reports a missing booking the same way as one the
// caller may not touch.
func loadBookingForActor(ctx context.Context, st store.Store, bookingID uuid.UUID) (*bookingDomain.Booking, *tripDomain.Trip, error) {
	bk, t, err := loadBookingAndTrip(ctx, st, bookingID)
	if domain.IsNotFound(err) {
		return nil, nil, errNotAllowed()
	}
	return bk, t, err
}

func loadBookingAndTrip(ctx context.Context, st store.Store, bookingID uuid.UUID) (*bookingDomain.Booking, *tripDomain.Trip, error) {
	bk, err := st.Bookings().FindByID(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	t, err := st.Trips().FindByID(ctx, bk.TripID())
	if err != nil {
		return nil, nil, err
	}
	return bk, t, nil
}

func notifyProgress(box *outbox, t *tripDomain.Trip, bk *bookingDomain.Booking) {
	var title, body string
	switch bk.Progress() {
	case bookingDomain.ProgressDriverEnRoute:
		title, body = "Driver on the way", "Your driver is heading to the pickup point."
	case bookingDomain.ProgressDriverArrived:
		title, body = "Driver has arrived", "Your driver is waiting at the pickup point."
	case bookingDomain.ProgressRiding:
		title, body = "Ride started", "Enjoy your ride."
	default:
		return
	}
	box.notify(notification.ForBooking(bk.PassengerID(), notification.TypeTripUpdated, title, body, t.ID(), bk.ID()))
}
