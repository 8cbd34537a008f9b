package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	tripDomain "github.com/tripshare/service-carpool/internal/domain/trip"
	"github.com/tripshare/service-carpool/internal/platform/domain"
	"github.com/tripshare/service-carpool/internal/repository"
)

type tripRepo struct {
	s *Store
}

func (r *tripRepo) FindByID(_ context.Context, id uuid.UUID) (*tripDomain.Trip, error) {
	var t *tripDomain.Trip
	err := r.s.read(func(st *state) error {
		if _, ok := st.trips[id]; !ok {
			return domain.NewNotFoundError("Trip", id.String())
		}
		var err error
		t, err = st.loadTrip(id)
		return err
	})
	return t, err
}

// LockForBooking is FindByID; the store's writer lock already orders
// transactions.
func (r *tripRepo) LockForBooking(ctx context.Context, id uuid.UUID) (*tripDomain.Trip, error) {
	return r.FindByID(ctx, id)
}

func (r *tripRepo) LockSegments(_ context.Context, tripID uuid.UUID, fromIndex, toIndex int) ([]*tripDomain.Segment, error) {
	var out []*tripDomain.Segment
	err := r.s.read(func(st *state) error {
		for _, m := range st.segments {
			if m.TripID == tripID && m.OrderIndex >= fromIndex && m.OrderIndex < toIndex {
				out = append(out, repository.ToDomainSegment(m))
			}
		}
		return nil
	})
	sortSegments(out)
	return out, err
}

func (r *tripRepo) LockSegmentsByID(_ context.Context, ids []uuid.UUID) ([]*tripDomain.Segment, error) {
	var out []*tripDomain.Segment
	err := r.s.read(func(st *state) error {
		for _, id := range ids {
			if m, ok := st.segments[id]; ok {
				out = append(out, repository.ToDomainSegment(m))
			}
		}
		return nil
	})
	sortSegments(out)
	return out, err
}

func (r *tripRepo) Save(_ context.Context, t *tripDomain.Trip) error {
	return r.s.write(func(st *state) error {
		if _, exists := st.trips[t.ID()]; exists {
			return domain.NewConflictError("trip already exists")
		}
		st.trips[t.ID()] = repository.TripToModel(t)
		st.points[t.ID()] = repository.RoutePointsToModels(t.Points())
		for _, seg := range t.Segments() {
			st.segments[seg.ID()] = repository.SegmentToModel(seg)
		}
		return nil
	})
}

func (r *tripRepo) Update(_ context.Context, t *tripDomain.Trip) error {
	return r.s.write(func(st *state) error {
		current, ok := st.trips[t.ID()]
		if !ok || current.Version != t.Version()-1 {
			return domain.NewConflictError("trip was modified by another transaction")
		}
		st.trips[t.ID()] = repository.TripToModel(t)
		return nil
	})
}

func (r *tripRepo) UpdateSegments(_ context.Context, segments []*tripDomain.Segment) error {
	return r.s.write(func(st *state) error {
		for _, seg := range segments {
			current, ok := st.segments[seg.ID()]
			if !ok || current.Version != seg.Version()-1 {
				return domain.NewConflictError("segment was modified by another transaction")
			}
			current.BookedSeats = seg.BookedSeats()
			current.Version = seg.Version()
			st.segments[seg.ID()] = current
		}
		return nil
	})
}

func (r *tripRepo) FindByDriverID(_ context.Context, driverID uuid.UUID, page, limit int) ([]*tripDomain.Trip, int64, error) {
	return r.list(func(m repository.TripModel, _ *state) bool { return m.DriverID == driverID },
		func(a, b repository.TripModel) bool { return a.DepartureAt.After(b.DepartureAt) },
		page, limit)
}

func (r *tripRepo) Search(_ context.Context, c tripDomain.SearchCriteria) ([]*tripDomain.Trip, int64, error) {
	q := strings.ToLower(strings.TrimSpace(c.Query))
	match := func(m repository.TripModel, st *state) bool {
		if !m.IsPublic || m.Status != string(tripDomain.StatusScheduled) {
			return false
		}
		cutoff := m.DepartureAt.Add(-time.Duration(m.BookingCutoffMinutes) * time.Minute)
		if !cutoff.After(c.DepartsAfter) {
			return false
		}
		if c.DepartFrom != nil && m.DepartureAt.Before(*c.DepartFrom) {
			return false
		}
		if c.DepartTo != nil && m.DepartureAt.After(*c.DepartTo) {
			return false
		}
		if c.MaxPerSeatPrice != nil {
			var total int64
			for _, seg := range st.segments {
				if seg.TripID == m.ID {
					total += seg.PriceCents
				}
			}
			if total > *c.MaxPerSeatPrice {
				return false
			}
		}
		if q != "" {
			found := strings.Contains(strings.ToLower(m.Notes), q)
			for _, p := range st.points[m.ID] {
				if strings.Contains(strings.ToLower(p.DisplayAddress), q) {
					found = true
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
	return r.list(match, func(a, b repository.TripModel) bool { return a.DepartureAt.Before(b.DepartureAt) }, c.Page, c.Limit)
}

func (r *tripRepo) FindOverdue(_ context.Context, statuses []tripDomain.TripStatus, departedBefore time.Time, limit int) ([]*tripDomain.Trip, error) {
	wanted := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		wanted[string(s)] = true
	}
	trips, _, err := r.list(func(m repository.TripModel, _ *state) bool {
		return wanted[m.Status] && !m.DepartureAt.After(departedBefore)
	}, func(a, b repository.TripModel) bool { return a.DepartureAt.Before(b.DepartureAt) }, 1, limit)
	return trips, err
}

func (r *tripRepo) list(match func(repository.TripModel, *state) bool, less func(a, b repository.TripModel) bool, page, limit int) ([]*tripDomain.Trip, int64, error) {
	var out []*tripDomain.Trip
	var total int64
	err := r.s.read(func(st *state) error {
		var models []repository.TripModel
		for _, m := range st.trips {
			if match(m, st) {
				models = append(models, m)
			}
		}
		sort.Slice(models, func(i, j int) bool { return less(models[i], models[j]) })
		total = int64(len(models))

		for _, m := range paginate(models, page, limit) {
			t, err := st.loadTrip(m.ID)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return nil
	})
	if out == nil {
		out = []*tripDomain.Trip{}
	}
	return out, total, err
}

func sortSegments(segments []*tripDomain.Segment) {
	sort.Slice(segments, func(i, j int) bool {
		if segments[i].TripID() != segments[j].TripID() {
			return segments[i].TripID().String() < segments[j].TripID().String()
		}
		return segments[i].OrderIndex() < segments[j].OrderIndex()
	})
}
