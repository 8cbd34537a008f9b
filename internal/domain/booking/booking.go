package booking

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tripshare/service-carpool/internal/platform/domain"
)

const (
	referenceChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	MinSeats = 1
	MaxSeats = 8

	ReasonExpired       = "Booking request expired"
	ReasonTripCancelled = "Trip cancelled by driver"
)

// Party identifies who initiated a transition.
type Party string

const (
	PartyPassenger Party = "passenger"
	PartyDriver    Party = "driver"
	PartySystem    Party = "system"
)

// Location is a requested pickup or dropoff pin.
type Location struct {
	PointID uuid.UUID `json:"point_id"`
	Lat     float64   `json:"lat"`
	Lng     float64   `json:"lng"`
	Name    string    `json:"name,omitempty"`
}

// SegmentAllocation records the seats a booking holds on one segment.
type SegmentAllocation struct {
	BookingID uuid.UUID
	SegmentID uuid.UUID
	Seats     int
}

// Booking is the aggregate root for a passenger's seat reservation on a trip.
type Booking struct {
	id                uuid.UUID
	reference         string
	tripID            uuid.UUID
	passengerID       uuid.UUID
	pickup            Location
	dropoff           Location
	pickupIndex       int
	dropoffIndex      int
	seats             int
	priceTotalCents   int64
	currency          string
	state             State
	pendingExpiresAt  *time.Time
	completedAt       *time.Time
	cancellationNote  string
	statusUpdatedAt   time.Time
	progressUpdatedAt time.Time

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// generateReference creates a booking reference in the format "CP-XXXXXX".
func generateReference() (string, error) {
	result := make([]byte, 6)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(referenceChars))))
		if err != nil {
			return "", fmt.Errorf("failed to generate booking reference: %w", err)
		}
		result[i] = referenceChars[n.Int64()]
	}
	return "CP-" + string(result), nil
}

// NewBookingParams holds the data needed to create a booking. InstantBook
// skips driver approval.
type NewBookingParams struct {
	TripID          uuid.UUID
	PassengerID     uuid.UUID
	Pickup          Location
	Dropoff         Location
	PickupIndex     int
	DropoffIndex    int
	Seats           int
	PriceTotalCents int64
	Currency        string
	InstantBook     bool
	PendingExpiry   time.Duration
}

// NewBooking creates a booking that is accepted immediately for instant-book
// trips and pending with an expiry otherwise.
func NewBooking(p NewBookingParams, now time.Time) (*Booking, error) {
	if p.TripID == uuid.Nil {
		return nil, domain.NewValidationError("trip ID is required")
	}
	if p.PassengerID == uuid.Nil {
		return nil, domain.NewValidationError("passenger ID is required")
	}
	if p.Seats < MinSeats || p.Seats > MaxSeats {
		return nil, domain.NewValidationError(fmt.Sprintf("seats must be between %d and %d", MinSeats, MaxSeats))
	}
	if p.DropoffIndex <= p.PickupIndex {
		return nil, domain.NewValidationError("dropoff must come after pickup")
	}
	if p.PriceTotalCents < 0 {
		return nil, domain.NewValidationError("price cannot be negative")
	}

	reference, err := generateReference()
	if err != nil {
		return nil, err
	}

	b := &Booking{
		id:                uuid.New(),
		reference:         reference,
		tripID:            p.TripID,
		passengerID:       p.PassengerID,
		pickup:            p.Pickup,
		dropoff:           p.Dropoff,
		pickupIndex:       p.PickupIndex,
		dropoffIndex:      p.DropoffIndex,
		seats:             p.Seats,
		priceTotalCents:   p.PriceTotalCents,
		currency:          p.Currency,
		state:             State{Status: StatusPending, Progress: ProgressAwaitingPickup},
		statusUpdatedAt:   now,
		progressUpdatedAt: now,
		version:           1,
		createdAt:         now,
		updatedAt:         now,
	}
	if p.InstantBook {
		b.state.Status = StatusAccepted
	} else {
		expiry := now.Add(p.PendingExpiry)
		b.pendingExpiresAt = &expiry
	}
	return b, nil
}

// BookingSnapshot carries persisted booking state into ReconstructBooking.
type BookingSnapshot struct {
	ID                uuid.UUID
	Reference         string
	TripID            uuid.UUID
	PassengerID       uuid.UUID
	Pickup            Location
	Dropoff           Location
	PickupIndex       int
	DropoffIndex      int
	Seats             int
	PriceTotalCents   int64
	Currency          string
	Status            BookingStatus
	Progress          ProgressStatus
	PendingExpiresAt  *time.Time
	CompletedAt       *time.Time
	CancellationNote  string
	StatusUpdatedAt   time.Time
	ProgressUpdatedAt time.Time
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ReconstructBooking rebuilds a Booking from persistence data (no validation).
func ReconstructBooking(s BookingSnapshot) *Booking {
	return &Booking{
		id:                s.ID,
		reference:         s.Reference,
		tripID:            s.TripID,
		passengerID:       s.PassengerID,
		pickup:            s.Pickup,
		dropoff:           s.Dropoff,
		pickupIndex:       s.PickupIndex,
		dropoffIndex:      s.DropoffIndex,
		seats:             s.Seats,
		priceTotalCents:   s.PriceTotalCents,
		currency:          s.Currency,
		state:             State{Status: s.Status, Progress: s.Progress},
		pendingExpiresAt:  s.PendingExpiresAt,
		completedAt:       s.CompletedAt,
		cancellationNote:  s.CancellationNote,
		statusUpdatedAt:   s.StatusUpdatedAt,
		progressUpdatedAt: s.ProgressUpdatedAt,
		version:           s.Version,
		createdAt:         s.CreatedAt,
		updatedAt:         s.UpdatedAt,
	}
}

// Snapshot exports the booking state for persistence.
func (b *Booking) Snapshot() BookingSnapshot {
	return BookingSnapshot{
		ID:                b.id,
		Reference:         b.reference,
		TripID:            b.tripID,
		PassengerID:       b.passengerID,
		Pickup:            b.pickup,
		Dropoff:           b.dropoff,
		PickupIndex:       b.pickupIndex,
		DropoffIndex:      b.dropoffIndex,
		Seats:             b.seats,
		PriceTotalCents:   b.priceTotalCents,
		Currency:          b.currency,
		Status:            b.state.Status,
		Progress:          b.state.Progress,
		PendingExpiresAt:  b.pendingExpiresAt,
		CompletedAt:       b.completedAt,
		CancellationNote:  b.cancellationNote,
		StatusUpdatedAt:   b.statusUpdatedAt,
		ProgressUpdatedAt: b.progressUpdatedAt,
		Version:           b.version,
		CreatedAt:         b.createdAt,
		UpdatedAt:         b.updatedAt,
	}
}

// --- Getters ---

// ID returns the booking's unique identifier.
func (b *Booking) ID() uuid.UUID { return b.id }

// Reference returns the human-readable booking reference.
func (b *Booking) Reference() string { return b.reference }

func (b *Booking) TripID() uuid.UUID { return b.tripID }
func (b *Booking) PassengerID() uuid.UUID { return b.passengerID }
func (b *Booking) Pickup() Location { return b.pickup }
func (b *Booking) Dropoff() Location { return b.dropoff }

// PickupIndex is the route index of the pickup point; the booking holds
// segments [PickupIndex, DropoffIndex).
func (b *Booking) PickupIndex() int { return b.pickupIndex }
func (b *Booking) DropoffIndex() int { return b.dropoffIndex }
func (b *Booking) Seats() int { return b.seats }

// PriceTotalCents is the fare snapshot taken at reservation time.
func (b *Booking) PriceTotalCents() int64 { return b.priceTotalCents }
func (b *Booking) Currency() string { return b.currency }

func (b *Booking) Status() BookingStatus { return b.state.Status }
func (b *Booking) Progress() ProgressStatus { return b.state.Progress }
func (b *Booking) State() State { return b.state }
func (b *Booking) PendingExpiresAt() *time.Time { return b.pendingExpiresAt }
func (b *Booking) CompletedAt() *time.Time { return b.completedAt }
func (b *Booking) CancellationNote() string { return b.cancellationNote }
func (b *Booking) StatusUpdatedAt() time.Time { return b.statusUpdatedAt }
func (b *Booking) ProgressUpdatedAt() time.Time { return b.progressUpdatedAt }

// Version returns the entity version for optimistic locking.
func (b *Booking) Version() int64 { return b.version }

func (b *Booking) CreatedAt() time.Time { return b.createdAt }
func (b *Booking) UpdatedAt() time.Time { return b.updatedAt }

// IsExpired reports whether a pending request has passed its expiry.
func (b *Booking) IsExpired(now time.Time) bool {
	return b.state.Status == StatusPending && b.pendingExpiresAt != nil && !b.pendingExpiresAt.After(now)
}

// --- Behavior ---

// Accept transitions the booking from pending to accepted.
func (b *Booking) Accept(now time.Time) error {
	if err := b.apply(State{Status: StatusAccepted, Progress: ProgressAwaitingPickup}, now); err != nil {
		return err
	}
	b.pendingExpiresAt = nil
	return nil
}

// Reject declines a pending request.
func (b *Booking) Reject(reason string, now time.Time) error {
	if err := b.apply(State{Status: StatusRejected, Progress: ProgressCancelled}, now); err != nil {
		return err
	}
	b.pendingExpiresAt = nil
	b.cancellationNote = strings.TrimSpace(reason)
	return nil
}

// Expire rejects a pending request whose expiry has passed.
func (b *Booking) Expire(now time.Time) error {
	if !b.IsExpired(now) {
		return domain.NewInvalidStateMessage("booking request has not expired")
	}
	return b.Reject(ReasonExpired, now)
}

// Cancel withdraws the booking. A pending request can only be withdrawn by
// its passenger (or the system); the driver rejects instead.
func (b *Booking) Cancel(reason string, by Party, now time.Time) error {
	if b.state.Status == StatusPending && by == PartyDriver {
		return domain.NewInvalidStateMessage("pending requests are rejected, not cancelled, by the driver")
	}
	if err := b.apply(State{Status: StatusCancelled, Progress: ProgressCancelled}, now); err != nil {
		return err
	}
	b.pendingExpiresAt = nil
	b.cancellationNote = strings.TrimSpace(reason)
	return nil
}

// Complete finishes an accepted booking. The completion time is kept from
// the first call.
func (b *Booking) Complete(now time.Time) error {
	if err := b.apply(State{Status: StatusCompleted, Progress: ProgressCompleted}, now); err != nil {
		return err
	}
	if b.completedAt == nil {
		b.completedAt = &now
	}
	return nil
}

// AdvanceProgress moves the ride forward. Completing the ride completes the
// booking; cancellation must go through Cancel so seats are released.
func (b *Booking) AdvanceProgress(target ProgressStatus, now time.Time) error {
	if b.state.Status != StatusAccepted {
		return domain.NewInvalidStateMessage(fmt.Sprintf("progress can only change on accepted bookings, booking is %s", b.state.Status))
	}
	if target == ProgressCancelled {
		return domain.NewInvalidStateMessage("cancel the booking instead of setting cancelled progress")
	}
	if target == b.state.Progress {
		return nil
	}
	if !b.state.Progress.CanTransitionTo(target) {
		return domain.NewInvalidStateError(string(b.state.Progress), string(target))
	}
	if target == ProgressCompleted {
		return b.Complete(now)
	}
	return b.setProgress(target, now)
}

// FollowTrip moves an accepted booking's progress to match the trip.
// It never moves progress backwards and reports whether anything changed.
func (b *Booking) FollowTrip(target ProgressStatus, now time.Time) (bool, error) {
	if b.state.Status != StatusAccepted {
		return false, nil
	}
	if progressRank[target] <= progressRank[b.state.Progress] {
		return false, nil
	}
	if target == ProgressCompleted {
		return true, b.Complete(now)
	}
	return true, b.setProgress(target, now)
}

// IncrementVersion bumps the version for optimistic locking.
func (b *Booking) IncrementVersion() {
	b.version++
}

func (b *Booking) setProgress(target ProgressStatus, now time.Time) error {
	next := State{Status: b.state.Status, Progress: target}
	if err := next.Validate(); err != nil {
		return err
	}
	b.state = next
	b.progressUpdatedAt = now
	b.updatedAt = now
	return nil
}

// apply performs a status transition together with the progress it implies.
func (b *Booking) apply(next State, now time.Time) error {
	if !b.state.Status.CanTransitionTo(next.Status) {
		return domain.NewInvalidStateError(string(b.state.Status), string(next.Status))
	}
	if err := next.Validate(); err != nil {
		return err
	}
	if next.Progress != b.state.Progress {
		b.progressUpdatedAt = now
	}
	b.state = next
	b.statusUpdatedAt = now
	b.updatedAt = now
	return nil
}
