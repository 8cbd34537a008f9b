package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	tripDomain "github.com/tripshare/service-carpool/internal/domain/trip"
	"github.com/tripshare/service-carpool/internal/platform/domain"
)

// GormTripRepository is the GORM-based implementation of TripRepository.
type GormTripRepository struct {
	db *gorm.DB
}

// NewGormTripRepository creates a new GormTripRepository.
func NewGormTripRepository(db *gorm.DB) *GormTripRepository {
	return &GormTripRepository{db: db}
}

// FindByID loads a trip with its route points and segments.
func (r *GormTripRepository) FindByID(ctx context.Context, id uuid.UUID) (*tripDomain.Trip, error) {
	var model TripModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Trip", id.String())
		}
		return nil, fmt.Errorf("failed to find trip by ID: %w", err)
	}

	trips, err := r.hydrate(ctx, []TripModel{model})
	if err != nil {
		return nil, err
	}
	return trips[0], nil
}

// LockForBooking loads a trip FOR SHARE with its route points and segments.
func (r *GormTripRepository) LockForBooking(ctx context.Context, id uuid.UUID) (*tripDomain.Trip, error) {
	var model TripModel
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Trip", id.String())
		}
		return nil, fmt.Errorf("failed to lock trip: %w", err)
	}

	trips, err := r.hydrate(ctx, []TripModel{model})
	if err != nil {
		return nil, err
	}
	return trips[0], nil
}

// LockSegments reads segments [fromIndex, toIndex) FOR UPDATE, ordered by index.
func (r *GormTripRepository) LockSegments(ctx context.Context, tripID uuid.UUID, fromIndex, toIndex int) ([]*tripDomain.Segment, error) {
	var models []SegmentModel
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("trip_id = ? AND order_index >= ? AND order_index < ?", tripID, fromIndex, toIndex).
		Order("order_index ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to lock segments: %w", err)
	}
	return toDomainSegments(models), nil
}

// LockSegmentsByID reads the given segments FOR UPDATE, ordered by index.
func (r *GormTripRepository) LockSegmentsByID(ctx context.Context, ids []uuid.UUID) ([]*tripDomain.Segment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []SegmentModel
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("trip_id ASC, order_index ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to lock segments by ID: %w", err)
	}
	return toDomainSegments(models), nil
}

// Save persists a new trip with its route points and segments.
func (r *GormTripRepository) Save(ctx context.Context, t *tripDomain.Trip) error {
	model := TripToModel(t)
	points := RoutePointsToModels(t.Points())
	segments := make([]SegmentModel, len(t.Segments()))
	for i, s := range t.Segments() {
		segments[i] = SegmentToModel(s)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		if err := tx.Create(&points).Error; err != nil {
			return err
		}
		return tx.Create(&segments).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save trip: %w", err)
	}
	return nil
}

// Update persists trip scalar state with optimistic locking.
func (r *GormTripRepository) Update(ctx context.Context, t *tripDomain.Trip) error {
	model := TripToModel(t)

	expectedVersion := t.Version() - 1
	result := r.db.WithContext(ctx).
		Model(&TripModel{}).
		Where("id = ? AND version = ?", model.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":              model.Status,
			"is_public":           model.IsPublic,
			"notes":               model.Notes,
			"status_updated_at":   model.StatusUpdatedAt,
			"started_at":          model.StartedAt,
			"arrived_at":          model.ArrivedAt,
			"completed_at":        model.CompletedAt,
			"cancelled_at":        model.CancelledAt,
			"current_lat":         model.CurrentLat,
			"current_lng":         model.CurrentLng,
			"current_heading":     model.CurrentHeading,
			"location_updated_at": model.LocationUpdatedAt,
			"version":             model.Version,
			"updated_at":          model.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update trip: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("trip was modified by another transaction")
	}
	return nil
}

// UpdateSegments persists booked seat counts with optimistic locking.
func (r *GormTripRepository) UpdateSegments(ctx context.Context, segments []*tripDomain.Segment) error {
	for _, s := range segments {
		result := r.db.WithContext(ctx).
			Model(&SegmentModel{}).
			Where("id = ? AND version = ?", s.ID(), s.Version()-1).
			Updates(map[string]interface{}{
				"booked_seats": s.BookedSeats(),
				"version":      s.Version(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update segment: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.NewConflictError("segment was modified by another transaction")
		}
	}
	return nil
}

// FindByDriverID lists a driver's trips, latest departure first.
func (r *GormTripRepository) FindByDriverID(ctx context.Context, driverID uuid.UUID, page, limit int) ([]*tripDomain.Trip, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&TripModel{}).Where("driver_id = ?", driverID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count driver trips: %w", err)
	}

	var models []TripModel
	offset := (page - 1) * limit
	if err := r.db.WithContext(ctx).
		Where("driver_id = ?", driverID).
		Order("departure_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to find driver trips: %w", err)
	}

	trips, err := r.hydrate(ctx, models)
	if err != nil {
		return nil, 0, err
	}
	return trips, total, nil
}

// Search lists public scheduled trips whose booking window is still open,
// earliest departure first.
func (r *GormTripRepository) Search(ctx context.Context, c tripDomain.SearchCriteria) ([]*tripDomain.Trip, int64, error) {
	query := r.db.WithContext(ctx).Model(&TripModel{}).
		Where("is_public = ? AND status = ?", true, string(tripDomain.StatusScheduled)).
		Where("departure_at - make_interval(mins => booking_cutoff_minutes) > ?", c.DepartsAfter)

	if c.DepartFrom != nil {
		query = query.Where("departure_at >= ?", *c.DepartFrom)
	}
	if c.DepartTo != nil {
		query = query.Where("departure_at <= ?", *c.DepartTo)
	}
	if c.MaxPerSeatPrice != nil {
		query = query.Where("(SELECT COALESCE(SUM(s.price_cents), 0) FROM trip_segments s WHERE s.trip_id = trips.id) <= ?", *c.MaxPerSeatPrice)
	}
	if q := strings.TrimSpace(c.Query); q != "" {
		like := "%" + q + "%"
		query = query.Where("(notes ILIKE ? OR EXISTS (SELECT 1 FROM trip_route_points p WHERE p.trip_id = trips.id AND p.display_address ILIKE ?))", like, like)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count trips: %w", err)
	}

	var models []TripModel
	offset := (c.Page - 1) * c.Limit
	if err := query.
		Order("departure_at ASC").
		Offset(offset).
		Limit(c.Limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to search trips: %w", err)
	}

	trips, err := r.hydrate(ctx, models)
	if err != nil {
		return nil, 0, err
	}
	return trips, total, nil
}

// FindOverdue returns trips in statuses that departed at or before the cutoff.
func (r *GormTripRepository) FindOverdue(ctx context.Context, statuses []tripDomain.TripStatus, departedBefore time.Time, limit int) ([]*tripDomain.Trip, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	var models []TripModel
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND departure_at <= ?", names, departedBefore).
		Order("departure_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find overdue trips: %w", err)
	}
	return r.hydrate(ctx, models)
}

// hydrate loads the route points and segments of each trip in two queries.
func (r *GormTripRepository) hydrate(ctx context.Context, models []TripModel) ([]*tripDomain.Trip, error) {
	if len(models) == 0 {
		return []*tripDomain.Trip{}, nil
	}
	ids := make([]uuid.UUID, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}

	var points []RoutePointModel
	if err := r.db.WithContext(ctx).
		Where("trip_id IN ?", ids).
		Order("order_index ASC").
		Find(&points).Error; err != nil {
		return nil, fmt.Errorf("failed to load route points: %w", err)
	}
	var segments []SegmentModel
	if err := r.db.WithContext(ctx).
		Where("trip_id IN ?", ids).
		Order("order_index ASC").
		Find(&segments).Error; err != nil {
		return nil, fmt.Errorf("failed to load segments: %w", err)
	}

	pointsByTrip := make(map[uuid.UUID][]RoutePointModel, len(models))
	for _, p := range points {
		pointsByTrip[p.TripID] = append(pointsByTrip[p.TripID], p)
	}
	segmentsByTrip := make(map[uuid.UUID][]SegmentModel, len(models))
	for _, s := range segments {
		segmentsByTrip[s.TripID] = append(segmentsByTrip[s.TripID], s)
	}

	trips := make([]*tripDomain.Trip, len(models))
	for i, m := range models {
		t, err := ToDomainTrip(m, pointsByTrip[m.ID], segmentsByTrip[m.ID])
		if err != nil {
			return nil, err
		}
		trips[i] = t
	}
	return trips, nil
}

func toDomainSegments(models []SegmentModel) []*tripDomain.Segment {
	segments := make([]*tripDomain.Segment, len(models))
	for i, m := range models {
		segments[i] = ToDomainSegment(m)
	}
	return segments
}
