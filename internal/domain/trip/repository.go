package trip

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SearchCriteria filters public trips.
type SearchCriteria struct {
	DepartFrom      *time.Time
	DepartTo        *time.Time
	MaxPerSeatPrice *int64
	Query           string
	DepartsAfter    time.Time
	Page            int
	Limit           int
}

// TripRepository defines persistence operations for trips and their segments.
type TripRepository interface {
	// FindByID loads the trip with its route points and segments.
	FindByID(ctx context.Context, id uuid.UUID) (*Trip, error)
	// LockForBooking loads the trip with a shared row lock, so a status
	// change committed meanwhile fails the reservation's transaction. Must
	// run inside a transaction.
	LockForBooking(ctx context.Context, id uuid.UUID) (*Trip, error)
	// LockSegments reads segments [fromIndex, toIndex) of a trip with a
	// row lock, ordered by index. Must run inside a transaction.
	LockSegments(ctx context.Context, tripID uuid.UUID, fromIndex, toIndex int) ([]*Segment, error)
	// LockSegmentsByID reads the given segments with a row lock, ordered by index.
	LockSegmentsByID(ctx context.Context, ids []uuid.UUID) ([]*Segment, error)
	Save(ctx context.Context, t *Trip) error
	// Update persists trip scalar state with optimistic locking.
	Update(ctx context.Context, t *Trip) error
	// UpdateSegments persists bookedSeats with optimistic locking.
	UpdateSegments(ctx context.Context, segments []*Segment) error
	FindByDriverID(ctx context.Context, driverID uuid.UUID, page, limit int) ([]*Trip, int64, error)
	Search(ctx context.Context, criteria SearchCriteria) ([]*Trip, int64, error)
	// FindOverdue returns trips in one of statuses departed at or before
	// the cutoff, oldest departure first.
	FindOverdue(ctx context.Context, statuses []TripStatus, departedBefore time.Time, limit int) ([]*Trip, error)
}
