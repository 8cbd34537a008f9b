// Package contracts holds the topic names, event types and payloads that
// cross the service boundary on Kafka.
package contracts

import (
	"time"

	"github.com/google/uuid"
)

const (
	TopicBookingEvents      = "booking.events"
	TopicTripEvents         = "trip.events"
	TopicNotificationEvents = "notification.events"
	TopicUserEvents         = "user.events"
)

const (
	BookingCreated   = "booking.created"
	BookingAccepted  = "booking.accepted"
	BookingRejected  = "booking.rejected"
	BookingCancelled = "booking.cancelled"
	BookingCompleted = "booking.completed"
	BookingProgress  = "booking.progress_updated"

	TripCreated       = "trip.created"
	TripStatusChanged = "trip.status_changed"

	NotificationRequested = "notification.requested"

	UserDriverVerified   = "user.driver_verified"
	UserDriverUnverified = "user.driver_unverified"
)

// BookingEvent is published on every booking status or progress change.
type BookingEvent struct {
	BookingID       uuid.UUID `json:"booking_id"`
	TripID          uuid.UUID `json:"trip_id"`
	PassengerID     uuid.UUID `json:"passenger_id"`
	Status          string    `json:"status"`
	Progress        string    `json:"progress"`
	Seats           int       `json:"seats"`
	PriceTotalCents int64     `json:"price_total_cents"`
	Currency        string    `json:"currency"`
	Reason          string    `json:"reason,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// TripEvent is published when a trip is created or changes status.
type TripEvent struct {
	TripID      uuid.UUID `json:"trip_id"`
	DriverID    uuid.UUID `json:"driver_id"`
	Status      string    `json:"status"`
	PrevStatus  string    `json:"prev_status,omitempty"`
	DepartureAt time.Time `json:"departure_at"`
	Reason      string    `json:"reason,omitempty"`
	Automatic   bool      `json:"automatic,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// DriverVerificationEvent is consumed from the user service.
type DriverVerificationEvent struct {
	UserID     uuid.UUID `json:"user_id"`
	VerifiedAt time.Time `json:"verified_at"`
}
