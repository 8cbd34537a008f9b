// Package notification describes the messages the carpool core asks the
// notification service to deliver.
package notification

import "github.com/google/uuid"

// Type categorizes a notification for the delivering service.
type Type string

const (
	TypeBookingRequested Type = "booking_requested"
	TypeBookingAccepted  Type = "booking_accepted"
	TypeBookingRejected  Type = "booking_rejected"
	TypeBookingCancelled Type = "booking_cancelled"
	TypeBookingCompleted Type = "booking_completed"
	TypeTripUpdated      Type = "trip_updated"
	TypeTripStarted      Type = "trip_started"
	TypeTripCompleted    Type = "trip_completed"
	TypeTripCancelled    Type = "trip_cancelled"
	TypeSystem           Type = "system"
)

// Notification is a single message addressed to one user.
type Notification struct {
	UserID    uuid.UUID  `json:"user_id"`
	Type      Type       `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	TripID    *uuid.UUID `json:"trip_id,omitempty"`
	BookingID *uuid.UUID `json:"booking_id,omitempty"`
}

// ForBooking builds a notification tied to a booking on a trip.
func ForBooking(userID uuid.UUID, typ Type, title, body string, tripID, bookingID uuid.UUID) Notification {
	return Notification{
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Body:      body,
		TripID:    &tripID,
		BookingID: &bookingID,
	}
}

// ForTrip builds a notification tied to a trip.
func ForTrip(userID uuid.UUID, typ Type, title, body string, tripID uuid.UUID) Notification {
	return Notification{
		UserID: userID,
		Type:   typ,
		Title:  title,
		Body:   body,
		TripID: &tripID,
	}
}
