package trip

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tripshare/service-carpool/internal/domain/geo"
	"github.com/tripshare/service-carpool/internal/platform/domain"
)

const (
	MinSeats = 1
	MaxSeats = 8

	DefaultSeats                = 3
	DefaultBookingCutoffMinutes = 60
	DefaultPendingExpiryMinutes = 30
)

// Trip is the aggregate root for a driver's published journey.
type Trip struct {
	id                   uuid.UUID
	driverID             uuid.UUID
	departureAt          time.Time
	seatsTotal           int
	currency             string
	status               TripStatus
	instantBook          bool
	bookingCutoffMinutes int
	pendingExpiryMinutes int
	isPublic             bool
	notes                string

	points   []RoutePoint
	segments []*Segment

	statusUpdatedAt time.Time
	startedAt       *time.Time
	arrivedAt       *time.Time
	completedAt     *time.Time
	cancelledAt     *time.Time

	currentLat        *float64
	currentLng        *float64
	currentHeading    *float64
	locationUpdatedAt *time.Time

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// NewTripParams holds the data needed to publish a trip.
type NewTripParams struct {
	DriverID             uuid.UUID
	DepartureAt          time.Time
	SeatsTotal           int
	Currency             string
	InstantBook          bool
	BookingCutoffMinutes int
	PendingExpiryMinutes int
	Notes                string
	Points               []RoutePointInput
	Prices               []SegmentPriceInput
}

// NewTrip validates params and builds a scheduled, public trip.
func NewTrip(p NewTripParams, now time.Time) (*Trip, error) {
	if p.DriverID == uuid.Nil {
		return nil, domain.NewValidationError("driver ID is required")
	}
	if p.SeatsTotal < MinSeats || p.SeatsTotal > MaxSeats {
		return nil, domain.NewValidationError(fmt.Sprintf("seats must be between %d and %d", MinSeats, MaxSeats))
	}
	if strings.TrimSpace(p.Currency) == "" {
		return nil, domain.NewValidationError("currency is required")
	}
	if !p.DepartureAt.After(now) {
		return nil, domain.NewValidationError("departure time must be in the future")
	}
	if p.BookingCutoffMinutes < 0 || p.PendingExpiryMinutes < 0 {
		return nil, domain.NewValidationError("cutoff and expiry minutes cannot be negative")
	}

	id := uuid.New()
	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	points, segments, err := BuildRoute(id, p.Points, p.Prices, currency)
	if err != nil {
		return nil, err
	}

	return &Trip{
		id:                   id,
		driverID:             p.DriverID,
		departureAt:          p.DepartureAt.UTC(),
		seatsTotal:           p.SeatsTotal,
		currency:             currency,
		status:               StatusScheduled,
		instantBook:          p.InstantBook,
		bookingCutoffMinutes: p.BookingCutoffMinutes,
		pendingExpiryMinutes: p.PendingExpiryMinutes,
		isPublic:             true,
		notes:                strings.TrimSpace(p.Notes),
		points:               points,
		segments:             segments,
		statusUpdatedAt:      now,
		version:              1,
		createdAt:            now,
		updatedAt:            now,
	}, nil
}

// TripSnapshot carries persisted trip state into ReconstructTrip.
type TripSnapshot struct {
	ID                   uuid.UUID
	DriverID             uuid.UUID
	DepartureAt          time.Time
	SeatsTotal           int
	Currency             string
	Status               TripStatus
	InstantBook          bool
	BookingCutoffMinutes int
	PendingExpiryMinutes int
	IsPublic             bool
	Notes                string
	StatusUpdatedAt      time.Time
	StartedAt            *time.Time
	ArrivedAt            *time.Time
	CompletedAt          *time.Time
	CancelledAt          *time.Time
	CurrentLat           *float64
	CurrentLng           *float64
	CurrentHeading       *float64
	LocationUpdatedAt    *time.Time
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ReconstructTrip rebuilds a Trip from persistence data (no validation).
func ReconstructTrip(s TripSnapshot, points []RoutePoint, segments []*Segment) *Trip {
	return &Trip{
		id:                   s.ID,
		driverID:             s.DriverID,
		departureAt:          s.DepartureAt,
		seatsTotal:           s.SeatsTotal,
		currency:             s.Currency,
		status:               s.Status,
		instantBook:          s.InstantBook,
		bookingCutoffMinutes: s.BookingCutoffMinutes,
		pendingExpiryMinutes: s.PendingExpiryMinutes,
		isPublic:             s.IsPublic,
		notes:                s.Notes,
		points:               points,
		segments:             segments,
		statusUpdatedAt:      s.StatusUpdatedAt,
		startedAt:            s.StartedAt,
		arrivedAt:            s.ArrivedAt,
		completedAt:          s.CompletedAt,
		cancelledAt:          s.CancelledAt,
		currentLat:           s.CurrentLat,
		currentLng:           s.CurrentLng,
		currentHeading:       s.CurrentHeading,
		locationUpdatedAt:    s.LocationUpdatedAt,
		version:              s.Version,
		createdAt:            s.CreatedAt,
		updatedAt:            s.UpdatedAt,
	}
}

// Snapshot exports the scalar state for persistence.
func (t *Trip) Snapshot() TripSnapshot {
	return TripSnapshot{
		ID:                   t.id,
		DriverID:             t.driverID,
		DepartureAt:          t.departureAt,
		SeatsTotal:           t.seatsTotal,
		Currency:             t.currency,
		Status:               t.status,
		InstantBook:          t.instantBook,
		BookingCutoffMinutes: t.bookingCutoffMinutes,
		PendingExpiryMinutes: t.pendingExpiryMinutes,
		IsPublic:             t.isPublic,
		Notes:                t.notes,
		StatusUpdatedAt:      t.statusUpdatedAt,
		StartedAt:            t.startedAt,
		ArrivedAt:            t.arrivedAt,
		CompletedAt:          t.completedAt,
		CancelledAt:          t.cancelledAt,
		CurrentLat:           t.currentLat,
		CurrentLng:           t.currentLng,
		CurrentHeading:       t.currentHeading,
		LocationUpdatedAt:    t.locationUpdatedAt,
		Version:              t.version,
		CreatedAt:            t.createdAt,
		UpdatedAt:            t.updatedAt,
	}
}

// --- Getters ---

func (t *Trip) ID() uuid.UUID { return t.id }
func (t *Trip) DriverID() uuid.UUID { return t.driverID }
func (t *Trip) DepartureAt() time.Time { return t.departureAt }
func (t *Trip) SeatsTotal() int { return t.seatsTotal }
func (t *Trip) Currency() string { return t.currency }
func (t *Trip) Status() TripStatus { return t.status }
func (t *Trip) InstantBook() bool { return t.instantBook }
func (t *Trip) BookingCutoffMinutes() int { return t.bookingCutoffMinutes }
func (t *Trip) PendingExpiryMinutes() int { return t.pendingExpiryMinutes }
func (t *Trip) IsPublic() bool { return t.isPublic }
func (t *Trip) Notes() string { return t.notes }
func (t *Trip) Points() []RoutePoint { return t.points }
func (t *Trip) Segments() []*Segment { return t.segments }
func (t *Trip) StatusUpdatedAt() time.Time { return t.statusUpdatedAt }
func (t *Trip) StartedAt() *time.Time { return t.startedAt }
func (t *Trip) ArrivedAt() *time.Time { return t.arrivedAt }
func (t *Trip) CompletedAt() *time.Time { return t.completedAt }
func (t *Trip) CancelledAt() *time.Time { return t.cancelledAt }
func (t *Trip) CurrentLat() *float64 { return t.currentLat }
func (t *Trip) CurrentLng() *float64 { return t.currentLng }
func (t *Trip) CurrentHeading() *float64 { return t.currentHeading }
func (t *Trip) LocationUpdatedAt() *time.Time { return t.locationUpdatedAt }
func (t *Trip) Version() int64 { return t.version }
func (t *Trip) CreatedAt() time.Time { return t.createdAt }
func (t *Trip) UpdatedAt() time.Time { return t.updatedAt }

// PointByID finds a route point of this trip.
func (t *Trip) PointByID(id uuid.UUID) (RoutePoint, bool) {
	for _, p := range t.points {
		if p.ID == id {
			return p, true
		}
	}
	return RoutePoint{}, false
}

// PendingExpiry returns how long a non-instant booking request stays open.
// A zero setting still gives the driver one minute.
func (t *Trip) PendingExpiry() time.Duration {
	minutes := t.pendingExpiryMinutes
	if minutes < 1 {
		minutes = 1
	}
	return time.Duration(minutes) * time.Minute
}

// --- Behavior ---

// CheckBookable verifies the trip still takes new bookings at now.
func (t *Trip) CheckBookable(now time.Time) error {
	if t.status != StatusScheduled {
		return domain.NewInvalidStateMessage("trip is no longer accepting bookings")
	}
	cutoff := t.departureAt.Add(-time.Duration(t.bookingCutoffMinutes) * time.Minute)
	if !now.Before(cutoff) {
		return domain.NewValidationError("booking is closed for this trip")
	}
	return nil
}

// TransitionTo moves the trip to target. Requesting the current status is a
// no-op reported as changed=false.
func (t *Trip) TransitionTo(target TripStatus, reason string, now time.Time) (bool, error) {
	if target == t.status {
		return false, nil
	}
	if !t.status.CanTransitionTo(target) {
		return false, domain.NewInvalidStateError(string(t.status), string(target))
	}

	switch target {
	case StatusEnRoute, StatusInProgress:
		if t.startedAt == nil {
			t.startedAt = &now
		}
	case StatusArrived:
		if t.arrivedAt == nil {
			t.arrivedAt = &now
		}
	case StatusCompleted:
		if t.completedAt == nil {
			t.completedAt = &now
		}
	case StatusCancelled:
		t.cancelledAt = &now
		t.isPublic = false
		if reason = strings.TrimSpace(reason); reason != "" {
			t.notes = strings.TrimSpace(t.notes + "\nCancelled: " + reason)
		}
	}

	t.status = target
	t.statusUpdatedAt = now
	t.updatedAt = now
	return true, nil
}

// ForceComplete closes a trip the driver never finished. It is used by
// housekeeping and bypasses the driver-facing transition map.
func (t *Trip) ForceComplete(now time.Time) bool {
	if t.status.IsTerminal() {
		return false
	}
	if t.completedAt == nil {
		t.completedAt = &now
	}
	t.status = StatusCompleted
	t.statusUpdatedAt = now
	t.updatedAt = now
	return true
}

// SetVisibility lists or unlists the trip. Finished trips cannot be relisted.
func (t *Trip) SetVisibility(public bool, now time.Time) error {
	if public && t.status.IsTerminal() {
		return domain.NewInvalidStateMessage(fmt.Sprintf("cannot publish a %s trip", t.status))
	}
	t.isPublic = public
	t.updatedAt = now
	return nil
}

// UpdateLocation records the driver's position. Updates closer together
// than minInterval are refused.
func (t *Trip) UpdateLocation(lat, lng float64, heading *float64, now time.Time, minInterval time.Duration) error {
	if !geo.IsValidCoordinate(lat, lng) {
		return domain.NewValidationError("invalid coordinates")
	}
	if heading != nil && (*heading < 0 || *heading > 360) {
		return domain.NewValidationError("heading must be between 0 and 360")
	}
	if t.status.IsTerminal() {
		return domain.NewInvalidStateMessage("trip has already finished")
	}
	if t.locationUpdatedAt != nil && now.Sub(*t.locationUpdatedAt) < minInterval {
		return domain.NewInvalidStateMessage("too many location updates")
	}

	t.currentLat = &lat
	t.currentLng = &lng
	t.currentHeading = heading
	t.locationUpdatedAt = &now
	t.updatedAt = now
	return nil
}

// IncrementVersion bumps the version for optimistic locking.
func (t *Trip) IncrementVersion() {
	t.version++
}
