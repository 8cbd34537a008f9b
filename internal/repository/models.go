package repository

import (
	"time"

	"github.com/google/uuid"

	bookingDomain "github.com/tripshare/service-carpool/internal/domain/booking"
	tripDomain "github.com/tripshare/service-carpool/internal/domain/trip"
)

// TripModel is the GORM model for the trips table.
type TripModel struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey"`
	DriverID             uuid.UUID  `gorm:"type:uuid;index;not null"`
	DepartureAt          time.Time  `gorm:"not null;index"`
	SeatsTotal           int        `gorm:"not null"`
	Currency             string     `gorm:"not null;size:3"`
	Status               string     `gorm:"not null;size:20;index"`
	InstantBook          bool       `gorm:"not null;default:false"`
	BookingCutoffMinutes int        `gorm:"not null"`
	PendingExpiryMinutes int        `gorm:"not null"`
	IsPublic             bool       `gorm:"not null;default:true"`
	Notes                string     `gorm:"size:2000"`
	StatusUpdatedAt      time.Time  `gorm:"not null"`
	StartedAt            *time.Time `gorm:""`
	ArrivedAt            *time.Time `gorm:""`
	CompletedAt          *time.Time `gorm:""`
	CancelledAt          *time.Time `gorm:""`
	CurrentLat           *float64   `gorm:""`
	CurrentLng           *float64   `gorm:""`
	CurrentHeading       *float64   `gorm:""`
	LocationUpdatedAt    *time.Time `gorm:""`
	Version              int64      `gorm:"not null;default:1"`
	CreatedAt            time.Time  `gorm:"not null"`
	UpdatedAt            time.Time  `gorm:"not null"`
}

func (TripModel) TableName() string {
	return "trips"
}

// RoutePointModel is the GORM model for the trip_route_points table.
type RoutePointModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	TripID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_route_point_order"`
	OrderIndex     int       `gorm:"not null;uniqueIndex:idx_route_point_order"`
	Type           string    `gorm:"not null;size:10"`
	Lat            float64   `gorm:"not null"`
	Lng            float64   `gorm:"not null"`
	DisplayAddress string    `gorm:"size:500"`
	PlaceID        string    `gorm:"size:255"`
}

func (RoutePointModel) TableName() string {
	return "trip_route_points"
}

// SegmentModel is the GORM model for the trip_segments table.
type SegmentModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	TripID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_segment_order"`
	OrderIndex  int       `gorm:"not null;uniqueIndex:idx_segment_order"`
	FromPointID uuid.UUID `gorm:"type:uuid;not null"`
	ToPointID   uuid.UUID `gorm:"type:uuid;not null"`
	PriceCents  int64     `gorm:"not null"`
	Currency    string    `gorm:"not null;size:3"`
	BookedSeats int       `gorm:"not null;default:0"`
	Version     int64     `gorm:"not null;default:1"`
}

func (SegmentModel) TableName() string {
	return "trip_segments"
}

// BookingModel is the GORM model for the bookings table.
type BookingModel struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Reference         string     `gorm:"uniqueIndex;not null;size:20"`
	TripID            uuid.UUID  `gorm:"type:uuid;index;not null"`
	PassengerID       uuid.UUID  `gorm:"type:uuid;index;not null"`
	PickupPointID     uuid.UUID  `gorm:"type:uuid;not null"`
	PickupLat         float64    `gorm:"not null"`
	PickupLng         float64    `gorm:"not null"`
	PickupName        string     `gorm:"size:255"`
	DropoffPointID    uuid.UUID  `gorm:"type:uuid;not null"`
	DropoffLat        float64    `gorm:"not null"`
	DropoffLng        float64    `gorm:"not null"`
	DropoffName       string     `gorm:"size:255"`
	PickupIndex       int        `gorm:"not null"`
	DropoffIndex      int        `gorm:"not null"`
	Seats             int        `gorm:"not null"`
	PriceTotalCents   int64      `gorm:"not null"`
	Currency          string     `gorm:"not null;size:3"`
	Status            string     `gorm:"not null;size:20;index"`
	Progress          string     `gorm:"not null;size:20"`
	PendingExpiresAt  *time.Time `gorm:"index"`
	CompletedAt       *time.Time `gorm:""`
	CancellationNote  string     `gorm:"size:500"`
	StatusUpdatedAt   time.Time  `gorm:"not null"`
	ProgressUpdatedAt time.Time  `gorm:"not null"`
	Version           int64      `gorm:"not null;default:1"`
	CreatedAt         time.Time  `gorm:"not null"`
	UpdatedAt         time.Time  `gorm:"not null"`
}

func (BookingModel) TableName() string {
	return "bookings"
}

// AllocationModel is the GORM model for the booking_allocations table.
type AllocationModel struct {
	BookingID uuid.UUID `gorm:"type:uuid;primaryKey"`
	SegmentID uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	Seats     int       `gorm:"not null"`
}

func (AllocationModel) TableName() string {
	return "booking_allocations"
}

// DriverVerificationModel is the GORM model for the driver_verifications projection.
type DriverVerificationModel struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	Verified  bool      `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (DriverVerificationModel) TableName() string {
	return "driver_verifications"
}

// --- Conversion Helpers ---

// TripToModel converts the trip's scalar state.
func TripToModel(t *tripDomain.Trip) TripModel {
	s := t.Snapshot()
	return TripModel{
		ID:                   s.ID,
		DriverID:             s.DriverID,
		DepartureAt:          s.DepartureAt,
		SeatsTotal:           s.SeatsTotal,
		Currency:             s.Currency,
		Status:               string(s.Status),
		InstantBook:          s.InstantBook,
		BookingCutoffMinutes: s.BookingCutoffMinutes,
		PendingExpiryMinutes: s.PendingExpiryMinutes,
		IsPublic:             s.IsPublic,
		Notes:                s.Notes,
		StatusUpdatedAt:      s.StatusUpdatedAt,
		StartedAt:            s.StartedAt,
		ArrivedAt:            s.ArrivedAt,
		CompletedAt:          s.CompletedAt,
		CancelledAt:          s.CancelledAt,
		CurrentLat:           s.CurrentLat,
		CurrentLng:           s.CurrentLng,
		CurrentHeading:       s.CurrentHeading,
		LocationUpdatedAt:    s.LocationUpdatedAt,
		Version:              s.Version,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

// RoutePointsToModels converts a trip's route.
func RoutePointsToModels(points []tripDomain.RoutePoint) []RoutePointModel {
	models := make([]RoutePointModel, len(points))
	for i, p := range points {
		models[i] = RoutePointModel{
			ID:             p.ID,
			TripID:         p.TripID,
			OrderIndex:     p.OrderIndex,
			Type:           string(p.Type),
			Lat:            p.Lat,
			Lng:            p.Lng,
			DisplayAddress: p.DisplayAddress,
			PlaceID:        p.PlaceID,
		}
	}
	return models
}

// SegmentToModel converts one segment.
func SegmentToModel(s *tripDomain.Segment) SegmentModel {
	return SegmentModel{
		ID:          s.ID(),
		TripID:      s.TripID(),
		OrderIndex:  s.OrderIndex(),
		FromPointID: s.FromPointID(),
		ToPointID:   s.ToPointID(),
		PriceCents:  s.PriceCents(),
		Currency:    s.Currency(),
		BookedSeats: s.BookedSeats(),
		Version:     s.Version(),
	}
}

// ToDomainSegment rebuilds a segment from its row.
func ToDomainSegment(m SegmentModel) *tripDomain.Segment {
	return tripDomain.ReconstructSegment(m.ID, m.TripID, m.OrderIndex, m.FromPointID, m.ToPointID,
		m.PriceCents, m.Currency, m.BookedSeats, m.Version)
}

// ToDomainTrip rebuilds a trip. points and segments must be ordered by index.
func ToDomainTrip(m TripModel, points []RoutePointModel, segments []SegmentModel) (*tripDomain.Trip, error) {
	status, err := tripDomain.ParseTripStatus(m.Status)
	if err != nil {
		return nil, err
	}

	route := make([]tripDomain.RoutePoint, len(points))
	for i, p := range points {
		route[i] = tripDomain.RoutePoint{
			ID:             p.ID,
			TripID:         p.TripID,
			OrderIndex:     p.OrderIndex,
			Type:           tripDomain.RoutePointType(p.Type),
			Lat:            p.Lat,
			Lng:            p.Lng,
			DisplayAddress: p.DisplayAddress,
			PlaceID:        p.PlaceID,
		}
	}
	segs := make([]*tripDomain.Segment, len(segments))
	for i, s := range segments {
		segs[i] = ToDomainSegment(s)
	}

	return tripDomain.ReconstructTrip(tripDomain.TripSnapshot{
		ID:                   m.ID,
		DriverID:             m.DriverID,
		DepartureAt:          m.DepartureAt,
		SeatsTotal:           m.SeatsTotal,
		Currency:             m.Currency,
		Status:               status,
		InstantBook:          m.InstantBook,
		BookingCutoffMinutes: m.BookingCutoffMinutes,
		PendingExpiryMinutes: m.PendingExpiryMinutes,
		IsPublic:             m.IsPublic,
		Notes:                m.Notes,
		StatusUpdatedAt:      m.StatusUpdatedAt,
		StartedAt:            m.StartedAt,
		ArrivedAt:            m.ArrivedAt,
		CompletedAt:          m.CompletedAt,
		CancelledAt:          m.CancelledAt,
		CurrentLat:           m.CurrentLat,
		CurrentLng:           m.CurrentLng,
		CurrentHeading:       m.CurrentHeading,
		LocationUpdatedAt:    m.LocationUpdatedAt,
		Version:              m.Version,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}, route, segs), nil
}

// BookingToModel converts a booking.
func BookingToModel(bk *bookingDomain.Booking) BookingModel {
	s := bk.Snapshot()
	return BookingModel{
		ID:                s.ID,
		Reference:         s.Reference,
		TripID:            s.TripID,
		PassengerID:       s.PassengerID,
		PickupPointID:     s.Pickup.PointID,
		PickupLat:         s.Pickup.Lat,
		PickupLng:         s.Pickup.Lng,
		PickupName:        s.Pickup.Name,
		DropoffPointID:    s.Dropoff.PointID,
		DropoffLat:        s.Dropoff.Lat,
		DropoffLng:        s.Dropoff.Lng,
		DropoffName:       s.Dropoff.Name,
		PickupIndex:       s.PickupIndex,
		DropoffIndex:      s.DropoffIndex,
		Seats:             s.Seats,
		PriceTotalCents:   s.PriceTotalCents,
		Currency:          s.Currency,
		Status:            string(s.Status),
		Progress:          string(s.Progress),
		PendingExpiresAt:  s.PendingExpiresAt,
		CompletedAt:       s.CompletedAt,
		CancellationNote:  s.CancellationNote,
		StatusUpdatedAt:   s.StatusUpdatedAt,
		ProgressUpdatedAt: s.ProgressUpdatedAt,
		Version:           s.Version,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

// ToDomainBooking rebuilds a booking from its row.
func ToDomainBooking(m BookingModel) (*bookingDomain.Booking, error) {
	status, err := bookingDomain.ParseBookingStatus(m.Status)
	if err != nil {
		return nil, err
	}
	progress, err := bookingDomain.ParseProgressStatus(m.Progress)
	if err != nil {
		return nil, err
	}

	return bookingDomain.ReconstructBooking(bookingDomain.BookingSnapshot{
		ID:          m.ID,
		Reference:   m.Reference,
		TripID:      m.TripID,
		PassengerID: m.PassengerID,
		Pickup: bookingDomain.Location{
			PointID: m.PickupPointID,
			Lat:     m.PickupLat,
			Lng:     m.PickupLng,
			Name:    m.PickupName,
		},
		Dropoff: bookingDomain.Location{
			PointID: m.DropoffPointID,
			Lat:     m.DropoffLat,
			Lng:     m.DropoffLng,
			Name:    m.DropoffName,
		},
		PickupIndex:       m.PickupIndex,
		DropoffIndex:      m.DropoffIndex,
		Seats:             m.Seats,
		PriceTotalCents:   m.PriceTotalCents,
		Currency:          m.Currency,
		Status:            status,
		Progress:          progress,
		PendingExpiresAt:  m.PendingExpiresAt,
		CompletedAt:       m.CompletedAt,
		CancellationNote:  m.CancellationNote,
		StatusUpdatedAt:   m.StatusUpdatedAt,
		ProgressUpdatedAt: m.ProgressUpdatedAt,
		Version:           m.Version,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}), nil
}

// AllocationsToModels converts booking allocations.
func AllocationsToModels(allocations []bookingDomain.SegmentAllocation) []AllocationModel {
	models := make([]AllocationModel, len(allocations))
	for i, a := range allocations {
		models[i] = AllocationModel{BookingID: a.BookingID, SegmentID: a.SegmentID, Seats: a.Seats}
	}
	return models
}

// ToDomainAllocations converts allocation rows.
func ToDomainAllocations(models []AllocationModel) []bookingDomain.SegmentAllocation {
	out := make([]bookingDomain.SegmentAllocation, len(models))
	for i, m := range models {
		out[i] = bookingDomain.SegmentAllocation{BookingID: m.BookingID, SegmentID: m.SegmentID, Seats: m.Seats}
	}
	return out
}
