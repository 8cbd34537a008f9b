package application

import (
	"context"
	"fmt"
	"math"
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

const (
	// etaSpeedKmh is the average speed used for rough arrival estimates.
	etaSpeedKmh = 45.0

	DefaultLocationMinInterval = 3 * time.Second

	maxHistoryPoints = 1000
)

// CreateTripRequest holds the data needed to publish a trip. Nil numeric
// fields take the service defaults.
type CreateTripRequest struct {
	DepartureAt          time.Time                      `json:"departure_at" binding:"required"`
	SeatsTotal           *int                           `json:"seats_total"`
	Currency             string                         `json:"currency"`
	InstantBook          bool                           `json:"instant_book"`
	BookingCutoffMinutes *int                           `json:"booking_cutoff_minutes"`
	PendingExpiryMinutes *int                           `json:"pending_expiry_minutes"`
	Notes                string                         `json:"notes"`
	Points               []tripDomain.RoutePointInput   `json:"points" binding:"required"`
	Prices               []tripDomain.SegmentPriceInput `json:"prices" binding:"required"`
}

// SetTripStatusRequest asks for a trip status transition.
type SetTripStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

// UpdateLocationRequest carries a driver position.
type UpdateLocationRequest struct {
	Lat     float64  `json:"lat"`
	Lng     float64  `json:"lng"`
	Heading *float64 `json:"heading"`
}

// SearchTripsRequest filters the public trip listing.
type SearchTripsRequest struct {
	DepartFrom      *time.Time
	DepartTo        *time.Time
	MaxPerSeatPrice *int64
	Query           string
	Page            int
	Limit           int
}

// TripServiceConfig tunes trip behavior.
type TripServiceConfig struct {
	RequireVerifiedDriver bool
	LocationMinInterval   time.Duration
}

// TripService is the application service for the trip lifecycle.
type TripService struct {
	store      store.Store
	ledger     *SeatLedger
	authz      Authorizer
	verifier   DriverVerificationRepository
	hub        *LocationHub
	recorder   LocationRecorder
	dispatcher *Dispatcher
	clock      clock.Clock
	cfg        TripServiceConfig
	logger     *zap.Logger
}

// NewTripService creates a new TripService. verifier and recorder may be nil.
func NewTripService(
	st store.Store,
	ledger *SeatLedger,
	authz Authorizer,
	verifier DriverVerificationRepository,
	hub *LocationHub,
	recorder LocationRecorder,
	dispatcher *Dispatcher,
	clk clock.Clock,
	cfg TripServiceConfig,
	logger *zap.Logger,
) *TripService {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if cfg.LocationMinInterval <= 0 {
		cfg.LocationMinInterval = DefaultLocationMinInterval
	}
	return &TripService{
		store:      st,
		ledger:     ledger,
		authz:      authz,
		verifier:   verifier,
		hub:        hub,
		recorder:   recorder,
		dispatcher: dispatcher,
		clock:      clk,
		cfg:        cfg,
		logger:     logger,
	}
}

// CreateTrip publishes a new trip for driverID.
func (s *TripService) CreateTrip(ctx context.Context, driverID uuid.UUID, req CreateTripRequest) (*TripDTO, error) {
	if s.cfg.RequireVerifiedDriver && s.verifier != nil {
		verified, err := s.verifier.IsDriverVerified(ctx, driverID)
		if err != nil {
			return nil, fmt.Errorf("failed to check driver verification: %w", err)
		}
		if !verified {
			return nil, domain.NewForbiddenError("driver verification is required to publish trips")
		}
	}

	params := tripDomain.NewTripParams{
		DriverID:             driverID,
		DepartureAt:          req.DepartureAt,
		SeatsTotal:           intOr(req.SeatsTotal, tripDomain.DefaultSeats),
		Currency:             req.Currency,
		InstantBook:          req.InstantBook,
		BookingCutoffMinutes: intOr(req.BookingCutoffMinutes, tripDomain.DefaultBookingCutoffMinutes),
		PendingExpiryMinutes: intOr(req.PendingExpiryMinutes, tripDomain.DefaultPendingExpiryMinutes),
		Notes:                req.Notes,
		Points:               req.Points,
		Prices:               req.Prices,
	}
	if params.Currency == "" {
		params.Currency = domain.CurrencyLKR
	}

	t, err := tripDomain.NewTrip(params, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Trips().Save(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to save trip: %w", err)
	}

	s.logger.Info("trip created",
		zap.String("trip_id", t.ID().String()),
		zap.String("driver_id", driverID.String()),
		zap.Int("segments", len(t.Segments())),
		zap.Int("seats", t.SeatsTotal()),
	)

	box := &outbox{}
	recordTripEvent(box, t, "", "", contracts.TripCreated, false)
	s.dispatcher.flush(ctx, box)

	result := toTripDTO(t)
	return &result, nil
}

// SetTripStatus moves a trip through its lifecycle and cascades the change
// to its bookings in the same transaction.
func (s *TripService) SetTripStatus(ctx context.Context, driverID, tripID uuid.UUID, req SetTripStatusRequest) (*TripDTO, error) {
	target, err := tripDomain.ParseTripStatus(req.Status)
	if err != nil {
		return nil, domain.NewValidationError(err.Error())
	}

	box := &outbox{}
	var result *tripDomain.Trip
	err = s.ledger.Retry(ctx, "set_trip_status", func(ctx context.Context) error {
		box.reset()
		return s.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
			t, err := tx.Trips().FindByID(ctx, tripID)
			if err != nil {
				return err
			}
			if err := authorize(ctx, s.authz, policy.Input{
				Action:  policy.ActionManageTrip,
				ActorID: driverID.String(),
				Trip:    &policy.TripRef{DriverID: t.DriverID().String()},
			}); err != nil {
				return err
			}

			prev := t.Status()
			now := s.clock.Now()
			changed, err := t.TransitionTo(target, req.Reason, now)
			if err != nil {
				return err
			}
			result = t
			if !changed {
				return nil
			}

			t.IncrementVersion()
			if err := tx.Trips().Update(ctx, t); err != nil {
				return err
			}
			if err := s.cascade(ctx, tx, t, req.Reason, now, box); err != nil {
				return err
			}
			recordTripEvent(box, t, prev, req.Reason, contracts.TripStatusChanged, false)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("trip status changed",
		zap.String("trip_id", tripID.String()),
		zap.String("status", string(result.Status())),
	)
	if result.Status().IsTerminal() {
		s.hub.CloseTrip(tripID)
	}
	s.dispatcher.flush(ctx, box)

	dto := toTripDTO(result)
	return &dto, nil
}

// cascade applies the trip's new status to its bookings.
func (s *TripService) cascade(ctx context.Context, tx store.Store, t *tripDomain.Trip, reason string, now time.Time, box *outbox) error {
	if t.Status() == tripDomain.StatusCancelled {
		bookings, err := tx.Bookings().FindByTripID(ctx, t.ID(), bookingDomain.StatusPending, bookingDomain.StatusAccepted)
		if err != nil {
			return err
		}
		for _, bk := range bookings {
			if err := transitionBooking(ctx, tx, s.ledger, t, bk, bookingDomain.StatusCancelled,
				bookingDomain.ReasonTripCancelled, bookingDomain.PartySystem, now, box); err != nil {
				return err
			}
		}
		box.notify(notification.ForTrip(t.DriverID(), notification.TypeTripCancelled, "Trip cancelled",
			fmt.Sprintf("Your trip was cancelled. %d booking(s) were released.", len(bookings)), t.ID()))
		return nil
	}

	progress, ok := progressForTrip(t.Status())
	if !ok {
		return nil
	}
	bookings, err := tx.Bookings().FindByTripID(ctx, t.ID(), bookingDomain.StatusAccepted)
	if err != nil {
		return err
	}

	affected := 0
	for _, bk := range bookings {
		changed, err := bk.FollowTrip(progress, now)
		if err != nil {
			return err
		}
		if !changed {
			continue
		}
		bk.IncrementVersion()
		if err := tx.Bookings().Update(ctx, bk); err != nil {
			return err
		}
		affected++

		if bk.Status() == bookingDomain.StatusCompleted {
			box.notify(notification.ForBooking(bk.PassengerID(), notification.TypeTripCompleted,
				"Trip completed", "Your ride is complete. You can now rate your driver.", t.ID(), bk.ID()))
			recordBookingEvent(box, bk, reason, contracts.BookingCompleted)
			continue
		}
		title, body := tripProgressMessage(t.Status())
		box.notify(notification.ForBooking(bk.PassengerID(), notification.TypeTripStarted, title, body, t.ID(), bk.ID()))
		recordBookingEvent(box, bk, reason, contracts.BookingProgress)
	}

	box.notify(notification.ForTrip(t.DriverID(), notification.TypeTripUpdated, "Trip updated",
		fmt.Sprintf("Your trip is %s. %d passenger(s) were notified.", humanStatus(t.Status()), affected), t.ID()))
	return nil
}

// autoComplete closes a trip left open long after departure. It reports
// false when the trip no longer qualifies.
func (s *TripService) autoComplete(ctx context.Context, tripID uuid.UUID) (bool, error) {
	box := &outbox{}
	completed := false
	err := s.ledger.Retry(ctx, "auto_complete_trip", func(ctx context.Context) error {
		box.reset()
		completed = false
		return s.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
			t, err := tx.Trips().FindByID(ctx, tripID)
			if err != nil {
				return err
			}
			if !isAutoCompletable(t.Status()) {
				return nil
			}
			prev := t.Status()
			now := s.clock.Now()
			t.ForceComplete(now)
			t.IncrementVersion()
			if err := tx.Trips().Update(ctx, t); err != nil {
				return err
			}
			if err := s.cascade(ctx, tx, t, "", now, box); err != nil {
				return err
			}
			recordTripEvent(box, t, prev, "", contracts.TripStatusChanged, true)
			completed = true
			return nil
		})
	})
	if err != nil {
		return false, err
	}
	if completed {
		s.hub.CloseTrip(tripID)
		s.dispatcher.flush(ctx, box)
	}
	return completed, nil
}

// UpdateLocation records the driver's position and broadcasts it to the
// trip's subscribers.
func (s *TripService) UpdateLocation(ctx context.Context, driverID, tripID uuid.UUID, req UpdateLocationRequest) (*LocationUpdate, error) {
	var update LocationUpdate
	err := s.ledger.Retry(ctx, "update_location", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
			t, err := tx.Trips().FindByID(ctx, tripID)
			if err != nil {
				return err
			}
			if err := authorize(ctx, s.authz, policy.Input{
				Action:  policy.ActionManageTrip,
				ActorID: driverID.String(),
				Trip:    &policy.TripRef{DriverID: t.DriverID().String()},
			}); err != nil {
				return err
			}

			now := s.clock.Now()
			if err := t.UpdateLocation(req.Lat, req.Lng, req.Heading, now, s.cfg.LocationMinInterval); err != nil {
				return err
			}
			t.IncrementVersion()
			if err := tx.Trips().Update(ctx, t); err != nil {
				return err
			}

			update = LocationUpdate{
				TripID:     tripID,
				DriverID:   driverID,
				Lat:        req.Lat,
				Lng:        req.Lng,
				Heading:    req.Heading,
				ETAMinutes: etaToEnd(t, req.Lat, req.Lng),
				RecordedAt: now,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.hub.Publish(update)
	if err := s.recorder.Record(ctx, update); err != nil {
		s.logger.Warn("failed to record location history",
			zap.String("trip_id", tripID.String()),
			zap.Error(err),
		)
	}
	return &update, nil
}

// StreamLocations subscribes a participant to a trip's live positions.
func (s *TripService) StreamLocations(ctx context.Context, actorID, tripID uuid.UUID) (*LocationUpdate, <-chan LocationUpdate, error) {
	t, err := s.store.Trips().FindByID(ctx, tripID)
	if err != nil {
		return nil, nil, err
	}
	if t.Status().IsTerminal() {
		return nil, nil, domain.NewInvalidStateMessage("trip has already finished")
	}
	input, err := s.privateTripInput(ctx, actorID, t)
	if err != nil {
		return nil, nil, err
	}
	if err := authorize(ctx, s.authz, input); err != nil {
		return nil, nil, err
	}

	latest, ch := s.hub.Subscribe(ctx, tripID)
	return latest, ch, nil
}

// LocationHistory returns the recorded positions of a trip to its participants.
func (s *TripService) LocationHistory(ctx context.Context, actorID, tripID uuid.UUID, limit int64) ([]LocationUpdate, error) {
	t, err := s.store.Trips().FindByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	input, err := s.privateTripInput(ctx, actorID, t)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.authz, input); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxHistoryPoints {
		limit = maxHistoryPoints
	}
	return s.recorder.History(ctx, tripID, limit)
}

// BookingETAs estimates pickup and dropoff times for the trip's accepted
// bookings, measured from the driver's last position or the route start.
// The driver sees every booking; a passenger sees only their own.
func (s *TripService) BookingETAs(ctx context.Context, actorID, tripID uuid.UUID) (*TripETAsDTO, error) {
	t, err := s.store.Trips().FindByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	input, err := s.privateTripInput(ctx, actorID, t)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.authz, input); err != nil {
		return nil, err
	}

	points := t.Points()
	out := &TripETAsDTO{TripID: t.ID(), Bookings: []BookingETADTO{}}
	if len(points) == 0 {
		return out, nil
	}
	originLat, originLng := points[0].Lat, points[0].Lng
	if lat, lng := t.CurrentLat(), t.CurrentLng(); lat != nil && lng != nil {
		originLat, originLng = *lat, *lng
	}

	accepted, err := s.store.Bookings().FindByTripID(ctx, t.ID(), bookingDomain.StatusAccepted)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	for _, bk := range accepted {
		if actorID != t.DriverID() && actorID != bk.PassengerID() {
			continue
		}
		if bk.DropoffIndex() <= bk.PickupIndex() || bk.DropoffIndex() >= len(points) {
			continue
		}
		pickup := bk.Pickup()
		toPickup := geo.DistanceKm(originLat, originLng, pickup.Lat, pickup.Lng)
		along := routeDistanceKm(points, bk.PickupIndex(), bk.DropoffIndex())
		out.Bookings = append(out.Bookings, BookingETADTO{
			BookingID:         bk.ID(),
			PassengerID:       bk.PassengerID(),
			PickupETASeconds:  etaSeconds(toPickup),
			DropoffETASeconds: etaSeconds(toPickup + along),
			CalculatedAt:      now,
		})
	}
	return out, nil
}

// GetTrip returns a public trip to anyone and a private one to its
// participants. actorID is uuid.Nil for anonymous callers.
func (s *TripService) GetTrip(ctx context.Context, actorID, tripID uuid.UUID) (*TripDTO, error) {
	t, err := s.store.Trips().FindByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !t.IsPublic() {
		if actorID == uuid.Nil {
			return nil, domain.NewNotFoundError("Trip", tripID.String())
		}
		input, err := s.privateTripInput(ctx, actorID, t)
		if err != nil {
			return nil, err
		}
		ok, err := s.authz.Allow(ctx, input)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.NewNotFoundError("Trip", tripID.String())
		}
	}
	result := toTripDTO(t)
	return &result, nil
}

// SearchTrips lists public trips still open for booking.
func (s *TripService) SearchTrips(ctx context.Context, req SearchTripsRequest) (*domain.PaginatedResult[TripDTO], error) {
	if req.DepartFrom != nil && req.DepartTo != nil && req.DepartTo.Before(*req.DepartFrom) {
		return nil, domain.NewValidationError("departure window end is before its start")
	}
	trips, total, err := s.store.Trips().Search(ctx, tripDomain.SearchCriteria{
		DepartFrom:      req.DepartFrom,
		DepartTo:        req.DepartTo,
		MaxPerSeatPrice: req.MaxPerSeatPrice,
		Query:           req.Query,
		DepartsAfter:    s.clock.Now(),
		Page:            req.Page,
		Limit:           req.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search trips: %w", err)
	}
	return domain.NewPaginatedResult(toTripDTOs(trips), total, req.Page, req.Limit), nil
}

// MyTrips lists the trips a driver published.
func (s *TripService) MyTrips(ctx context.Context, driverID uuid.UUID, page, limit int) (*domain.PaginatedResult[TripDTO], error) {
	trips, total, err := s.store.Trips().FindByDriverID(ctx, driverID, page, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list driver trips: %w", err)
	}
	return domain.NewPaginatedResult(toTripDTOs(trips), total, page, limit), nil
}

// SetVisibility lists or unlists a trip in search.
func (s *TripService) SetVisibility(ctx context.Context, driverID, tripID uuid.UUID, public bool) (*TripDTO, error) {
	var result *tripDomain.Trip
	err := s.ledger.Retry(ctx, "set_trip_visibility", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
			t, err := tx.Trips().FindByID(ctx, tripID)
			if err != nil {
				return err
			}
			if err := authorize(ctx, s.authz, policy.Input{
				Action:  policy.ActionManageTrip,
				ActorID: driverID.String(),
				Trip:    &policy.TripRef{DriverID: t.DriverID().String()},
			}); err != nil {
				return err
			}
			if err := t.SetVisibility(public, s.clock.Now()); err != nil {
				return err
			}
			t.IncrementVersion()
			if err := tx.Trips().Update(ctx, t); err != nil {
				return err
			}
			result = t
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	dto := toTripDTO(result)
	return &dto, nil
}

// TripAvailability reports remaining seats per segment to the driver.
func (s *TripService) TripAvailability(ctx context.Context, driverID, tripID uuid.UUID) ([]SegmentAvailabilityDTO, error) {
	t, err := s.store.Trips().FindByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.authz, policy.Input{
		Action:  policy.ActionManageTrip,
		ActorID: driverID.String(),
		Trip:    &policy.TripRef{DriverID: t.DriverID().String()},
	}); err != nil {
		return nil, err
	}

	out := make([]SegmentAvailabilityDTO, len(t.Segments()))
	for i, seg := range t.Segments() {
		out[i] = SegmentAvailabilityDTO{
			SegmentID:   seg.ID(),
			OrderIndex:  seg.OrderIndex(),
			BookedSeats: seg.BookedSeats(),
			Available:   seg.Available(t.SeatsTotal()),
		}
	}
	return out, nil
}

func (s *TripService) privateTripInput(ctx context.Context, actorID uuid.UUID, t *tripDomain.Trip) (policy.Input, error) {
	input := policy.Input{
		Action:  policy.ActionViewPrivateTrip,
		ActorID: actorID.String(),
		Trip:    &policy.TripRef{DriverID: t.DriverID().String()},
	}
	if actorID == t.DriverID() {
		return input, nil
	}
	bookings, err := s.store.Bookings().FindByTripID(ctx, t.ID(), bookingDomain.StatusPending, bookingDomain.StatusAccepted)
	if err != nil {
		return policy.Input{}, err
	}
	for _, bk := range bookings {
		input.PassengerIDs = append(input.PassengerIDs, bk.PassengerID().String())
	}
	return input, nil
}

func recordTripEvent(box *outbox, t *tripDomain.Trip, prev tripDomain.TripStatus, reason, eventType string, automatic bool) {
	box.event(contracts.TopicTripEvents, eventType, t.ID().String(), contracts.TripEvent{
		TripID:      t.ID(),
		DriverID:    t.DriverID(),
		Status:      string(t.Status()),
		PrevStatus:  string(prev),
		DepartureAt: t.DepartureAt(),
		Reason:      reason,
		Automatic:   automatic,
		OccurredAt:  t.UpdatedAt(),
	})
}

func progressForTrip(status tripDomain.TripStatus) (bookingDomain.ProgressStatus, bool) {
	switch status {
	case tripDomain.StatusEnRoute:
		return bookingDomain.ProgressDriverEnRoute, true
	case tripDomain.StatusArrived:
		return bookingDomain.ProgressDriverArrived, true
	case tripDomain.StatusInProgress:
		return bookingDomain.ProgressRiding, true
	case tripDomain.StatusCompleted:
		return bookingDomain.ProgressCompleted, true
	default:
		return "", false
	}
}

func tripProgressMessage(status tripDomain.TripStatus) (string, string) {
	switch status {
	case tripDomain.StatusEnRoute:
		return "Driver on the way", "Your driver has started the trip and is heading to the pickup point."
	case tripDomain.StatusArrived:
		return "Driver has arrived", "Your driver has arrived at the pickup point."
	default:
		return "Trip started", "Your trip is now in progress."
	}
}

func humanStatus(status tripDomain.TripStatus) string {
	switch status {
	case tripDomain.StatusEnRoute:
		return "on the way"
	case tripDomain.StatusInProgress:
		return "in progress"
	default:
		return string(status)
	}
}

func isAutoCompletable(status tripDomain.TripStatus) bool {
	for _, s := range tripDomain.AutoCompletable {
		if s == status {
			return true
		}
	}
	return false
}

// etaToEnd estimates minutes to the route's end point at a constant speed.
func etaToEnd(t *tripDomain.Trip, lat, lng float64) *int {
	points := t.Points()
	if len(points) == 0 {
		return nil
	}
	end := points[len(points)-1]
	km := geo.DistanceKm(lat, lng, end.Lat, end.Lng)
	minutes := int(math.Ceil(km / etaSpeedKmh * 60))
	return &minutes
}

// routeDistanceKm sums the legs between two route point indexes.
func routeDistanceKm(points []tripDomain.RoutePoint, from, to int) float64 {
	km := 0.0
	for i := from; i < to; i++ {
		km += geo.DistanceKm(points[i].Lat, points[i].Lng, points[i+1].Lat, points[i+1].Lng)
	}
	return km
}

func etaSeconds(km float64) int {
	return int(math.Round(km / etaSpeedKmh * 3600))
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
