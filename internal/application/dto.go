package application

import (
	"time"

	"github.com/google/uuid"

	bookingDomain "github.com/tripshare/service-carpool/internal/domain/booking"
	tripDomain "github.com/tripshare/service-carpool/internal/domain/trip"
)

// BookingDTO is the response representation of a booking.
type BookingDTO struct {
	ID               uuid.UUID              `json:"id"`
	Reference        string                 `json:"reference"`
	TripID           uuid.UUID              `json:"trip_id"`
	PassengerID      uuid.UUID              `json:"passenger_id"`
	Pickup           bookingDomain.Location `json:"pickup"`
	Dropoff          bookingDomain.Location `json:"dropoff"`
	Seats            int                    `json:"seats"`
	PriceTotalCents  int64                  `json:"price_total_cents"`
	Currency         string                 `json:"currency"`
	Status           string                 `json:"status"`
	Progress         string                 `json:"progress"`
	PendingExpiresAt *time.Time             `json:"pending_expires_at,omitempty"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
	CancellationNote string                 `json:"cancellation_note,omitempty"`
	Version          int64                  `json:"version"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// BookingStatsDTO holds aggregate booking statistics.
type BookingStatsDTO struct {
	TotalBookings int64            `json:"total_bookings"`
	ByStatus      map[string]int64 `json:"by_status"`
}

// SegmentDTO is the public view of a segment. Seat counts are only exposed
// to the driver through SegmentAvailabilityDTO.
type SegmentDTO struct {
	ID          uuid.UUID `json:"id"`
	OrderIndex  int       `json:"order_index"`
	FromPointID uuid.UUID `json:"from_point_id"`
	ToPointID   uuid.UUID `json:"to_point_id"`
	PriceCents  int64     `json:"price_cents"`
}

// SegmentAvailabilityDTO reports remaining seats on one segment.
type SegmentAvailabilityDTO struct {
	SegmentID   uuid.UUID `json:"segment_id"`
	OrderIndex  int       `json:"order_index"`
	BookedSeats int       `json:"booked_seats"`
	Available   int       `json:"available"`
}

// BookingETADTO estimates when the driver reaches one accepted booking's
// pickup and dropoff, in seconds from CalculatedAt.
type BookingETADTO struct {
	BookingID         uuid.UUID `json:"booking_id"`
	PassengerID       uuid.UUID `json:"passenger_id"`
	PickupETASeconds  int       `json:"pickup_eta_seconds"`
	DropoffETASeconds int       `json:"dropoff_eta_seconds"`
	CalculatedAt      time.Time `json:"calculated_at"`
}

// TripETAsDTO lists the booking ETAs of a trip.
type TripETAsDTO struct {
	TripID   uuid.UUID       `json:"trip_id"`
	Bookings []BookingETADTO `json:"bookings"`
}

// TripDTO is the response representation of a trip.
type TripDTO struct {
	ID                   uuid.UUID               `json:"id"`
	DriverID             uuid.UUID               `json:"driver_id"`
	DepartureAt          time.Time               `json:"departure_at"`
	SeatsTotal           int                     `json:"seats_total"`
	Currency             string                  `json:"currency"`
	Status               string                  `json:"status"`
	InstantBook          bool                    `json:"instant_book"`
	BookingCutoffMinutes int                     `json:"booking_cutoff_minutes"`
	PendingExpiryMinutes int                     `json:"pending_expiry_minutes"`
	IsPublic             bool                    `json:"is_public"`
	Notes                string                  `json:"notes,omitempty"`
	PerSeatPriceCents    int64                   `json:"per_seat_price_cents"`
	Points               []tripDomain.RoutePoint `json:"points"`
	Segments             []SegmentDTO            `json:"segments"`
	StartedAt            *time.Time              `json:"started_at,omitempty"`
	ArrivedAt            *time.Time              `json:"arrived_at,omitempty"`
	CompletedAt          *time.Time              `json:"completed_at,omitempty"`
	CancelledAt          *time.Time              `json:"cancelled_at,omitempty"`
	Version              int64                   `json:"version"`
	CreatedAt            time.Time               `json:"created_at"`
	UpdatedAt            time.Time               `json:"updated_at"`
}

func toBookingDTO(bk *bookingDomain.Booking) BookingDTO {
	return BookingDTO{
		ID:               bk.ID(),
		Reference:        bk.Reference(),
		TripID:           bk.TripID(),
		PassengerID:      bk.PassengerID(),
		Pickup:           bk.Pickup(),
		Dropoff:          bk.Dropoff(),
		Seats:            bk.Seats(),
		PriceTotalCents:  bk.PriceTotalCents(),
		Currency:         bk.Currency(),
		Status:           string(bk.Status()),
		Progress:         string(bk.Progress()),
		PendingExpiresAt: bk.PendingExpiresAt(),
		CompletedAt:      bk.CompletedAt(),
		CancellationNote: bk.CancellationNote(),
		Version:          bk.Version(),
		CreatedAt:        bk.CreatedAt(),
		UpdatedAt:        bk.UpdatedAt(),
	}
}

func toBookingDTOs(bookings []*bookingDomain.Booking) []BookingDTO {
	dtos := make([]BookingDTO, len(bookings))
	for i, bk := range bookings {
		dtos[i] = toBookingDTO(bk)
	}
	return dtos
}

func toTripDTO(t *tripDomain.Trip) TripDTO {
	segments := make([]SegmentDTO, len(t.Segments()))
	for i, s := range t.Segments() {
		segments[i] = SegmentDTO{
			ID:          s.ID(),
			OrderIndex:  s.OrderIndex(),
			FromPointID: s.FromPointID(),
			ToPointID:   s.ToPointID(),
			PriceCents:  s.PriceCents(),
		}
	}
	return TripDTO{
		ID:                   t.ID(),
		DriverID:             t.DriverID(),
		DepartureAt:          t.DepartureAt(),
		SeatsTotal:           t.SeatsTotal(),
		Currency:             t.Currency(),
		Status:               string(t.Status()),
		InstantBook:          t.InstantBook(),
		BookingCutoffMinutes: t.BookingCutoffMinutes(),
		PendingExpiryMinutes: t.PendingExpiryMinutes(),
		IsPublic:             t.IsPublic(),
		Notes:                t.Notes(),
		PerSeatPriceCents:    tripDomain.PerSeatPrice(t.Segments()),
		Points:               t.Points(),
		Segments:             segments,
		StartedAt:            t.StartedAt(),
		ArrivedAt:            t.ArrivedAt(),
		CompletedAt:          t.CompletedAt(),
		CancelledAt:          t.CancelledAt(),
		Version:              t.Version(),
		CreatedAt:            t.CreatedAt(),
		UpdatedAt:            t.UpdatedAt(),
	}
}

func toTripDTOs(trips []*tripDomain.Trip) []TripDTO {
	dtos := make([]TripDTO, len(trips))
	for i, t := range trips {
		dtos[i] = toTripDTO(t)
	}
	return dtos
}
