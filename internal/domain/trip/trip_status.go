package trip

import (
	"fmt"
	"strings"
)

// TripStatus represents the current state of a trip in its lifecycle.
type TripStatus string

const (
	StatusScheduled  TripStatus = "scheduled"
	StatusEnRoute    TripStatus = "en_route"
	StatusArrived    TripStatus = "arrived"
	StatusInProgress TripStatus = "in_progress"
	StatusCompleted  TripStatus = "completed"
	StatusCancelled  TripStatus = "cancelled"
)

// validTransitions defines the state machine for trip status transitions.
var validTransitions = map[TripStatus][]TripStatus{
	StatusScheduled:  {StatusEnRoute, StatusInProgress, StatusCancelled},
	StatusEnRoute:    {StatusArrived, StatusCancelled},
	StatusArrived:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// AutoCompletable lists the statuses the housekeeping sweep force-completes
// once a trip is long past departure.
var AutoCompletable = []TripStatus{StatusScheduled, StatusEnRoute, StatusArrived}

// IsValid returns true if the status is a recognized trip status.
func (s TripStatus) IsValid() bool {
	_, exists := validTransitions[s]
	return exists
}

// CanTransitionTo returns true if a transition from this status to the target is allowed.
func (s TripStatus) CanTransitionTo(target TripStatus) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible from this status.
func (s TripStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

func (s TripStatus) String() string {
	return string(s)
}

// ParseTripStatus accepts the canonical names plus the spellings mobile
// clients send ("EnRoute", "en-route", "inprogress").
func ParseTripStatus(raw string) (TripStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	switch normalized {
	case "enroute":
		normalized = string(StatusEnRoute)
	case "inprogress":
		normalized = string(StatusInProgress)
	}
	s := TripStatus(normalized)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown trip status %q", raw)
	}
	return s, nil
}
