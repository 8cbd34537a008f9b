package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	bookingDomain "github.com/tripshare/service-carpool/internal/domain/booking"
	"github.com/tripshare/service-carpool/internal/platform/domain"
	"github.com/tripshare/service-carpool/internal/repository"
)

type bookingRepo struct {
	s *Store
}

func (r *bookingRepo) FindByID(_ context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	var bk *bookingDomain.Booking
	err := r.s.read(func(st *state) error {
		m, ok := st.bookings[id]
		if !ok {
			return domain.NewNotFoundError("Booking", id.String())
		}
		var err error
		bk, err = repository.ToDomainBooking(m)
		return err
	})
	return bk, err
}

func (r *bookingRepo) FindByPassengerID(_ context.Context, passengerID uuid.UUID, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	return r.list(func(m repository.BookingModel, _ *state) bool { return m.PassengerID == passengerID }, newestFirst, page, limit)
}

func (r *bookingRepo) FindByDriverID(_ context.Context, driverID uuid.UUID, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	return r.list(func(m repository.BookingModel, st *state) bool {
		return st.trips[m.TripID].DriverID == driverID
	}, newestFirst, page, limit)
}

func (r *bookingRepo) FindByTripID(_ context.Context, tripID uuid.UUID, statuses ...bookingDomain.BookingStatus) ([]*bookingDomain.Booking, error) {
	wanted := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		wanted[string(s)] = true
	}
	out, _, err := r.list(func(m repository.BookingModel, _ *state) bool {
		return m.TripID == tripID && (len(wanted) == 0 || wanted[m.Status])
	}, func(a, b repository.BookingModel) bool { return a.CreatedAt.Before(b.CreatedAt) }, 1, -1)
	return out, err
}

func (r *bookingRepo) FindExpiredPending(_ context.Context, now time.Time, limit int) ([]*bookingDomain.Booking, error) {
	out, _, err := r.list(func(m repository.BookingModel, _ *state) bool {
		return m.Status == string(bookingDomain.StatusPending) && m.PendingExpiresAt != nil && !m.PendingExpiresAt.After(now)
	}, func(a, b repository.BookingModel) bool { return a.PendingExpiresAt.Before(*b.PendingExpiresAt) }, 1, limit)
	return out, err
}

func (r *bookingRepo) FindAllocations(_ context.Context, bookingID uuid.UUID) ([]bookingDomain.SegmentAllocation, error) {
	var out []bookingDomain.SegmentAllocation
	err := r.s.read(func(st *state) error {
		out = repository.ToDomainAllocations(st.allocations[bookingID])
		return nil
	})
	return out, err
}

func (r *bookingRepo) ListAll(_ context.Context, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	return r.list(func(repository.BookingModel, *state) bool { return true }, newestFirst, page, limit)
}

func (r *bookingRepo) CountByStatus(_ context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	err := r.s.read(func(st *state) error {
		for _, m := range st.bookings {
			counts[m.Status]++
		}
		return nil
	})
	return counts, err
}

func (r *bookingRepo) Save(_ context.Context, bk *bookingDomain.Booking, allocations []bookingDomain.SegmentAllocation) error {
	return r.s.write(func(st *state) error {
		if _, exists := st.bookings[bk.ID()]; exists {
			return domain.NewConflictError("booking already exists")
		}
		st.bookings[bk.ID()] = repository.BookingToModel(bk)
		if len(allocations) > 0 {
			st.allocations[bk.ID()] = repository.AllocationsToModels(allocations)
		}
		return nil
	})
}

func (r *bookingRepo) Update(_ context.Context, bk *bookingDomain.Booking) error {
	return r.s.write(func(st *state) error {
		current, ok := st.bookings[bk.ID()]
		if !ok || current.Version != bk.Version()-1 {
			return domain.NewConflictError("booking was modified by another transaction")
		}
		st.bookings[bk.ID()] = repository.BookingToModel(bk)
		return nil
	})
}

// list filters and sorts bookings; a negative limit returns every match.
func (r *bookingRepo) list(match func(repository.BookingModel, *state) bool, less func(a, b repository.BookingModel) bool, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	out := []*bookingDomain.Booking{}
	var total int64
	err := r.s.read(func(st *state) error {
		var models []repository.BookingModel
		for _, m := range st.bookings {
			if match(m, st) {
				models = append(models, m)
			}
		}
		sort.Slice(models, func(i, j int) bool { return less(models[i], models[j]) })
		total = int64(len(models))
		if limit >= 0 {
			models = paginate(models, page, limit)
		}

		for _, m := range models {
			bk, err := repository.ToDomainBooking(m)
			if err != nil {
				return err
			}
			out = append(out, bk)
		}
		return nil
	})
	return out, total, err
}

func newestFirst(a, b repository.BookingModel) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID.String() < b.ID.String()
	}
	return a.CreatedAt.After(b.CreatedAt)
}
