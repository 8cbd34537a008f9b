package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	bookingDomain "github.com/tripshare/service-carpool/internal/domain/booking"
	"github.com/tripshare/service-carpool/internal/platform/domain"
)

// GormBookingRepository is the GORM-based implementation of BookingRepository.
type GormBookingRepository struct {
	db *gorm.DB
}

// NewGormBookingRepository creates a new GormBookingRepository.
func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

// FindByID retrieves a booking by its unique identifier.
func (r *GormBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Booking", id.String())
		}
		return nil, fmt.Errorf("failed to find booking by ID: %w", err)
	}
	return ToDomainBooking(model)
}

// FindByPassengerID retrieves a passenger's bookings with pagination.
func (r *GormBookingRepository) FindByPassengerID(ctx context.Context, passengerID uuid.UUID, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	return r.paginate(r.db.WithContext(ctx).Model(&BookingModel{}).Where("passenger_id = ?", passengerID), page, limit)
}

// FindByDriverID retrieves bookings on the driver's trips with pagination.
func (r *GormBookingRepository) FindByDriverID(ctx context.Context, driverID uuid.UUID, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	query := r.db.WithContext(ctx).Model(&BookingModel{}).
		Joins("JOIN trips ON trips.id = bookings.trip_id").
		Where("trips.driver_id = ?", driverID)
	return r.paginate(query, page, limit)
}

// FindByTripID retrieves a trip's bookings, optionally filtered by status.
func (r *GormBookingRepository) FindByTripID(ctx context.Context, tripID uuid.UUID, statuses ...bookingDomain.BookingStatus) ([]*bookingDomain.Booking, error) {
	query := r.db.WithContext(ctx).Where("trip_id = ?", tripID)
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, s := range statuses {
			names[i] = string(s)
		}
		query = query.Where("status IN ?", names)
	}

	var models []BookingModel
	if err := query.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find trip bookings: %w", err)
	}
	return toDomainBookings(models)
}

// FindExpiredPending returns pending bookings past their expiry, oldest first.
func (r *GormBookingRepository) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*bookingDomain.Booking, error) {
	var models []BookingModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND pending_expires_at IS NOT NULL AND pending_expires_at <= ?", string(bookingDomain.StatusPending), now).
		Order("pending_expires_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find expired bookings: %w", err)
	}
	return toDomainBookings(models)
}

// FindAllocations returns the segment allocations of a booking.
func (r *GormBookingRepository) FindAllocations(ctx context.Context, bookingID uuid.UUID) ([]bookingDomain.SegmentAllocation, error) {
	var models []AllocationModel
	if err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find allocations: %w", err)
	}
	return ToDomainAllocations(models), nil
}

// ListAll retrieves all bookings with pagination (admin).
func (r *GormBookingRepository) ListAll(ctx context.Context, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	return r.paginate(r.db.WithContext(ctx).Model(&BookingModel{}), page, limit)
}

// CountByStatus returns booking counts grouped by status (admin).
func (r *GormBookingRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var results []statusCount
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}

	counts := make(map[string]int64)
	for _, sc := range results {
		counts[sc.Status] = sc.Count
	}
	return counts, nil
}

// Save persists a new booking together with its allocations.
func (r *GormBookingRepository) Save(ctx context.Context, bk *bookingDomain.Booking, allocations []bookingDomain.SegmentAllocation) error {
	model := BookingToModel(bk)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to save booking: %w", err)
	}
	if len(allocations) == 0 {
		return nil
	}
	rows := AllocationsToModels(allocations)
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to save allocations: %w", err)
	}
	return nil
}

// Update persists changes to an existing booking with optimistic locking.
func (r *GormBookingRepository) Update(ctx context.Context, bk *bookingDomain.Booking) error {
	model := BookingToModel(bk)

	// IncrementVersion was called before Update.
	expectedVersion := bk.Version() - 1
	result := r.db.WithContext(ctx).
		Model(&BookingModel{}).
		Where("id = ? AND version = ?", model.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":              model.Status,
			"progress":            model.Progress,
			"pending_expires_at":  model.PendingExpiresAt,
			"completed_at":        model.CompletedAt,
			"cancellation_note":   model.CancellationNote,
			"status_updated_at":   model.StatusUpdatedAt,
			"progress_updated_at": model.ProgressUpdatedAt,
			"version":             model.Version,
			"updated_at":          model.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update booking: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("booking was modified by another transaction")
	}
	return nil
}

func (r *GormBookingRepository) paginate(query *gorm.DB, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	var models []BookingModel
	offset := (page - 1) * limit
	if err := query.
		Select("bookings.*").
		Order("bookings.created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings, err := toDomainBookings(models)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

func toDomainBookings(models []BookingModel) ([]*bookingDomain.Booking, error) {
	bookings := make([]*bookingDomain.Booking, len(models))
	for i, m := range models {
		bk, err := ToDomainBooking(m)
		if err != nil {
			return nil, err
		}
		bookings[i] = bk
	}
	return bookings, nil
}
