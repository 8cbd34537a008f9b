package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BookingRepository defines the persistence contract for booking aggregates.
type BookingRepository interface {
	// FindByID retrieves a booking by its unique identifier.
	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// FindByPassengerID retrieves a passenger's bookings with pagination, newest first.
	FindByPassengerID(ctx context.Context, passengerID uuid.UUID, page, limit int) ([]*Booking, int64, error)

	// FindByDriverID retrieves bookings on trips driven by driverID with pagination.
	FindByDriverID(ctx context.Context, driverID uuid.UUID, page, limit int) ([]*Booking, int64, error)

	// FindByTripID retrieves a trip's bookings, optionally restricted to statuses.
	FindByTripID(ctx context.Context, tripID uuid.UUID, statuses ...BookingStatus) ([]*Booking, error)

	// FindExpiredPending returns pending bookings whose expiry is at or
	// before now, oldest expiry first.
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*Booking, error)

	// FindAllocations returns the segment allocations written with the booking.
	FindAllocations(ctx context.Context, bookingID uuid.UUID) ([]SegmentAllocation, error)

	// ListAll retrieves all bookings with pagination (admin).
	ListAll(ctx context.Context, page, limit int) ([]*Booking, int64, error)

	// CountByStatus returns booking counts grouped by status (admin).
	CountByStatus(ctx context.Context) (map[string]int64, error)

	// Save persists a new booking together with its allocations.
	Save(ctx context.Context, booking *Booking, allocations []SegmentAllocation) error

	// Update persists changes to an existing booking with optimistic locking.
	Update(ctx context.Context, booking *Booking) error
}
