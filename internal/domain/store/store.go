// Package store defines the unit-of-work boundary shared by every
// persistence backend.
package store

import (
	"context"

	"github.com/tripshare/service-carpool/internal/domain/booking"
	"github.com/tripshare/service-carpool/internal/domain/trip"
)

// Store groups the repositories that must change together.
type Store interface {
	Trips() trip.TripRepository
	Bookings() booking.BookingRepository

	// WithinTx runs fn in a serializable transaction and commits when fn
	// returns nil. Serialization failures surface as domain conflict errors
	// so callers can retry the whole unit. Calling WithinTx on a
	// transactional Store joins the running transaction.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
