// Package policy evaluates participant authorization rules written in Rego.
package policy

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

//go:embed authz.rego
var authzModule string

// Actions understood by the policy.
const (
	ActionPassengerTransition = "booking.passenger_transition"
	ActionDriverTransition    = "booking.driver_transition"
	ActionBookingProgress     = "booking.progress"
	ActionViewBooking         = "booking.view"
	ActionManageTrip          = "trip.manage"
	ActionViewPrivateTrip     = "trip.view_private"
)

// TripRef identifies the trip side of a decision.
type TripRef struct {
	DriverID string `json:"driver_id"`
}

// BookingRef identifies the booking side of a decision.
type BookingRef struct {
	PassengerID string `json:"passenger_id"`
}

// Input is the document the policy is evaluated against.
type Input struct {
	Action       string      `json:"action"`
	ActorID      string      `json:"actor_id"`
	Target       string      `json:"target,omitempty"`
	Trip         *TripRef    `json:"trip,omitempty"`
	Booking      *BookingRef `json:"booking,omitempty"`
	PassengerIDs []string    `json:"passenger_ids,omitempty"`
}

// Authorizer holds the prepared allow query.
type Authorizer struct {
	query rego.PreparedEvalQuery
}

// NewAuthorizer compiles the embedded policy.
func NewAuthorizer(ctx context.Context) (*Authorizer, error) {
	query, err := rego.New(
		rego.Query("data.carpool.authz.allow"),
		rego.Module("authz.rego", authzModule),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare authorization policy: %w", err)
	}
	return &Authorizer{query: query}, nil
}

// Allow reports whether the policy grants the described action.
func (a *Authorizer) Allow(ctx context.Context, in Input) (bool, error) {
	rs, err := a.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate authorization policy: %w", err)
	}
	if len(rs) != 1 || len(rs[0].Expressions) != 1 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	return ok && allowed, nil
}
