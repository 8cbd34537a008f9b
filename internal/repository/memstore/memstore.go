// Package memstore is an in-process store.Store used by tests and the
// memory store driver. Transactions are serialized behind one lock and
// applied to a copy of the state that replaces the live state on success.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	bookingDomain "github.com/tripshare/service-carpool/internal/domain/booking"
	"github.com/tripshare/service-carpool/internal/domain/store"
	tripDomain "github.com/tripshare/service-carpool/internal/domain/trip"
	"github.com/tripshare/service-carpool/internal/repository"
)

type state struct {
	trips         map[uuid.UUID]repository.TripModel
	points        map[uuid.UUID][]repository.RoutePointModel
	segments      map[uuid.UUID]repository.SegmentModel
	bookings      map[uuid.UUID]repository.BookingModel
	allocations   map[uuid.UUID][]repository.AllocationModel
	verifications map[uuid.UUID]repository.DriverVerificationModel
}

func newState() *state {
	return &state{
		trips:         make(map[uuid.UUID]repository.TripModel),
		points:        make(map[uuid.UUID][]repository.RoutePointModel),
		segments:      make(map[uuid.UUID]repository.SegmentModel),
		bookings:      make(map[uuid.UUID]repository.BookingModel),
		allocations:   make(map[uuid.UUID][]repository.AllocationModel),
		verifications: make(map[uuid.UUID]repository.DriverVerificationModel),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.trips {
		c.trips[k] = v
	}
	for k, v := range s.points {
		c.points[k] = append([]repository.RoutePointModel(nil), v...)
	}
	for k, v := range s.segments {
		c.segments[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.allocations {
		c.allocations[k] = append([]repository.AllocationModel(nil), v...)
	}
	for k, v := range s.verifications {
		c.verifications[k] = v
	}
	return c
}

type database struct {
	mu    sync.RWMutex
	state *state
}

// Store implements store.Store in memory.
type Store struct {
	db *database
	tx *state
}

// New creates an empty Store.
func New() *Store {
	return &Store{db: &database{state: newState()}}
}

func (s *Store) Trips() tripDomain.TripRepository {
	return &tripRepo{s: s}
}

func (s *Store) Bookings() bookingDomain.BookingRepository {
	return &bookingRepo{s: s}
}

// Verifications returns the driver verification projection.
func (s *Store) Verifications() *VerificationRepo {
	return &VerificationRepo{s: s}
}

// WithinTx runs fn against a private copy of the state and publishes it
// when fn succeeds. Nested calls join the running transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	work := s.db.state.clone()
	if err := fn(ctx, &Store{db: s.db, tx: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.db.state = work
	return nil
}

func (s *Store) read(fn func(st *state) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return fn(s.db.state)
}

func (s *Store) write(fn func(st *state) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	work := s.db.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.db.state = work
	return nil
}

func (st *state) loadTrip(id uuid.UUID) (*tripDomain.Trip, error) {
	m := st.trips[id]
	var segments []repository.SegmentModel
	for _, seg := range st.segments {
		if seg.TripID == id {
			segments = append(segments, seg)
		}
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].OrderIndex < segments[j].OrderIndex })
	return repository.ToDomainTrip(m, st.points[id], segments)
}

func paginate[T any](items []T, page, limit int) []T {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		return []T{}
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// VerificationRepo is the in-memory driver verification projection.
type VerificationRepo struct {
	s *Store
}

func (r *VerificationRepo) IsDriverVerified(_ context.Context, userID uuid.UUID) (bool, error) {
	var verified bool
	err := r.s.read(func(st *state) error {
		verified = st.verifications[userID].Verified
		return nil
	})
	return verified, err
}

func (r *VerificationRepo) SetDriverVerified(_ context.Context, userID uuid.UUID, verified bool, at time.Time) error {
	return r.s.write(func(st *state) error {
		st.verifications[userID] = repository.DriverVerificationModel{UserID: userID, Verified: verified, UpdatedAt: at}
		return nil
	})
}
