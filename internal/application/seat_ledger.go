package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	bookingDomain "github.com/tripshare/service-carpool/internal/domain/booking"
	"github.com/tripshare/service-carpool/internal/domain/store"
	tripDomain "github.com/tripshare/service-carpool/internal/domain/trip"
	"github.com/tripshare/service-carpool/internal/platform/domain"
)

// DefaultLedgerAttempts is how many times a conflicting unit of work is run
// before the caller gets a transient error.
const DefaultLedgerAttempts = 3

// ReserveRequest describes a seat reservation on a contiguous segment range.
type ReserveRequest struct {
	TripID       uuid.UUID
	PickupIndex  int
	DropoffIndex int
	Seats        int
	// CheckTrip runs against the trip as read inside the reservation's
	// transaction, before any seat is taken.
	CheckTrip func(t *tripDomain.Trip) error
	// NewBooking builds the booking once the per-seat fare of the locked
	// segments is known. It may run more than once when the unit is retried.
	NewBooking func(perSeatCents int64) (*bookingDomain.Booking, error)
}

// SeatLedger owns every read-modify-write of segment seat counts.
type SeatLedger struct {
	store       store.Store
	maxAttempts int
	logger      *zap.Logger
}

// NewSeatLedger creates a SeatLedger.
func NewSeatLedger(st store.Store, maxAttempts int, logger *zap.Logger) *SeatLedger {
	if maxAttempts < 1 {
		maxAttempts = DefaultLedgerAttempts
	}
	return &SeatLedger{store: st, maxAttempts: maxAttempts, logger: logger}
}

// Reserve checks capacity on every segment of [PickupIndex, DropoffIndex)
// against fresh, locked rows and, when all fit, increments them and inserts
// the booking with its allocations in the same transaction.
func (l *SeatLedger) Reserve(ctx context.Context, req ReserveRequest) (*bookingDomain.Booking, error) {
	if req.DropoffIndex <= req.PickupIndex {
		return nil, domain.NewValidationError("dropoff must come after pickup")
	}
	if req.Seats < bookingDomain.MinSeats || req.Seats > bookingDomain.MaxSeats {
		return nil, domain.NewValidationError(fmt.Sprintf("seats must be between %d and %d", bookingDomain.MinSeats, bookingDomain.MaxSeats))
	}

	var created *bookingDomain.Booking
	err := l.Retry(ctx, "reserve", func(ctx context.Context) error {
		return l.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
			t, err := tx.Trips().LockForBooking(ctx, req.TripID)
			if err != nil {
				return err
			}
			if req.CheckTrip != nil {
				if err := req.CheckTrip(t); err != nil {
					return err
				}
			}
			seatsTotal := t.SeatsTotal()

			segments, err := tx.Trips().LockSegments(ctx, req.TripID, req.PickupIndex, req.DropoffIndex)
			if err != nil {
				return err
			}
			if len(segments) != req.DropoffIndex-req.PickupIndex {
				return domain.NewValidationError("selected section is not part of this trip")
			}

			for _, seg := range segments {
				if seg.BookedSeats()+req.Seats > seatsTotal {
					return domain.NewCapacityError()
				}
			}
			for _, seg := range segments {
				if err := seg.Reserve(req.Seats, seatsTotal); err != nil {
					return err
				}
			}

			bk, err := req.NewBooking(tripDomain.PerSeatPrice(segments))
			if err != nil {
				return err
			}

			allocations := make([]bookingDomain.SegmentAllocation, len(segments))
			for i, seg := range segments {
				allocations[i] = bookingDomain.SegmentAllocation{
					BookingID: bk.ID(),
					SegmentID: seg.ID(),
					Seats:     req.Seats,
				}
			}

			if err := tx.Trips().UpdateSegments(ctx, segments); err != nil {
				return err
			}
			if err := tx.Bookings().Save(ctx, bk, allocations); err != nil {
				return err
			}
			created = bk
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("seats reserved",
		zap.String("booking_id", created.ID().String()),
		zap.String("trip_id", req.TripID.String()),
		zap.Int("seats", req.Seats),
		zap.Int("from_index", req.PickupIndex),
		zap.Int("to_index", req.DropoffIndex),
	)
	return created, nil
}

// Release returns a booking's seats inside the caller's transaction. Seat
// counts are floored at zero. Callers guard against double release through
// the booking status transition.
func (l *SeatLedger) Release(ctx context.Context, tx store.Store, bk *bookingDomain.Booking) error {
	allocations, err := tx.Bookings().FindAllocations(ctx, bk.ID())
	if err != nil {
		return err
	}
	if len(allocations) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(allocations))
	for i, a := range allocations {
		ids[i] = a.SegmentID
	}
	segments, err := tx.Trips().LockSegmentsByID(ctx, ids)
	if err != nil {
		return err
	}

	byID := make(map[uuid.UUID]*tripDomain.Segment, len(segments))
	for _, seg := range segments {
		byID[seg.ID()] = seg
	}
	released := make([]*tripDomain.Segment, 0, len(allocations))
	for _, a := range allocations {
		seg, ok := byID[a.SegmentID]
		if !ok {
			l.logger.Warn("allocation references missing segment",
				zap.String("booking_id", bk.ID().String()),
				zap.String("segment_id", a.SegmentID.String()),
			)
			continue
		}
		seg.Release(a.Seats)
		released = append(released, seg)
	}

	return tx.Trips().UpdateSegments(ctx, released)
}

// ReleaseBooking releases a booking's seats in its own transaction.
func (l *SeatLedger) ReleaseBooking(ctx context.Context, bookingID uuid.UUID) error {
	return l.Retry(ctx, "release", func(ctx context.Context) error {
		return l.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
			bk, err := tx.Bookings().FindByID(ctx, bookingID)
			if err != nil {
				return err
			}
			return l.Release(ctx, tx, bk)
		})
	})
}

// Retry runs fn until it succeeds, fails with a non-conflict error, or the
// attempt budget is spent, in which case a transient error is returned.
func (l *SeatLedger) Retry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil || !domain.IsConflict(err) {
			return err
		}
		lastErr = err
		l.logger.Warn("transaction conflict",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", l.maxAttempts),
			zap.Error(err),
		)
	}
	return domain.NewTransientError("please try again", lastErr)
}
