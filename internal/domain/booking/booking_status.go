package booking

import (
	"fmt"
	"strings"
)

// BookingStatus represents the current state of a booking in its lifecycle.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusAccepted  BookingStatus = "accepted"
	StatusRejected  BookingStatus = "rejected"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
)

// validTransitions defines the state machine for booking status transitions.
var validTransitions = map[BookingStatus][]BookingStatus{
	StatusPending:   {StatusAccepted, StatusRejected, StatusCancelled},
	StatusAccepted:  {StatusCompleted, StatusCancelled},
	StatusRejected:  {},
	StatusCancelled: {},
	StatusCompleted: {},
}

// IsValid returns true if the status is a recognized booking status.
func (s BookingStatus) IsValid() bool {
	_, exists := validTransitions[s]
	return exists
}

// CanTransitionTo returns true if a transition from this status to the target is allowed.
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible from this status.
func (s BookingStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// HoldsSeats reports whether a booking in this status occupies segment seats.
func (s BookingStatus) HoldsSeats() bool {
	return s == StatusPending || s == StatusAccepted
}

func (s BookingStatus) String() string {
	return string(s)
}

// ParseBookingStatus parses a status name case-insensitively.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	s := BookingStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown booking status %q", raw)
	}
	return s, nil
}

// ProgressStatus tracks the ride itself while a booking is accepted.
type ProgressStatus string

const (
	ProgressAwaitingPickup ProgressStatus = "awaiting_pickup"
	ProgressDriverEnRoute  ProgressStatus = "driver_en_route"
	ProgressDriverArrived  ProgressStatus = "driver_arrived"
	ProgressRiding         ProgressStatus = "riding"
	ProgressCompleted      ProgressStatus = "completed"
	ProgressCancelled      ProgressStatus = "cancelled"
)

var progressTransitions = map[ProgressStatus][]ProgressStatus{
	ProgressAwaitingPickup: {ProgressDriverEnRoute, ProgressDriverArrived, ProgressCancelled},
	ProgressDriverEnRoute:  {ProgressDriverArrived, ProgressRiding, ProgressCancelled},
	ProgressDriverArrived:  {ProgressRiding, ProgressCompleted, ProgressCancelled},
	ProgressRiding:         {ProgressCompleted, ProgressCancelled},
	ProgressCompleted:      {},
	ProgressCancelled:      {},
}

// progressRank orders the forward path; trip cascades never move a booking backwards.
var progressRank = map[ProgressStatus]int{
	ProgressAwaitingPickup: 0,
	ProgressDriverEnRoute:  1,
	ProgressDriverArrived:  2,
	ProgressRiding:         3,
	ProgressCompleted:      4,
}

func (p ProgressStatus) IsValid() bool {
	_, exists := progressTransitions[p]
	return exists
}

func (p ProgressStatus) CanTransitionTo(target ProgressStatus) bool {
	for _, t := range progressTransitions[p] {
		if t == target {
			return true
		}
	}
	return false
}

func (p ProgressStatus) IsTerminal() bool {
	return len(progressTransitions[p]) == 0
}

func (p ProgressStatus) String() string {
	return string(p)
}

// ParseProgressStatus accepts canonical names and the camel-case spellings
// used by the mobile apps ("DriverEnRoute", "OnTheWay").
func ParseProgressStatus(raw string) (ProgressStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	switch normalized {
	case "awaitingpickup", "waiting":
		normalized = string(ProgressAwaitingPickup)
	case "driverenroute", "ontheway", "on_the_way":
		normalized = string(ProgressDriverEnRoute)
	case "driverarrived", "arrived":
		normalized = string(ProgressDriverArrived)
	case "inride", "in_ride", "onboard":
		normalized = string(ProgressRiding)
	}
	p := ProgressStatus(normalized)
	if !p.IsValid() {
		return "", fmt.Errorf("unknown progress status %q", raw)
	}
	return p, nil
}
