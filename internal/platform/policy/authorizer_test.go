package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizer_Decisions(t *testing.T) {
	ctx := context.Background()
	authz, err := NewAuthorizer(ctx)
	require.NoError(t, err)

	trip := &TripRef{DriverID: "driver"}
	booking := &BookingRef{PassengerID: "rider"}

	tests := []struct {
		name  string
		input Input
		want  bool
	}{
		{"passenger cancels own booking", Input{Action: ActionPassengerTransition, ActorID: "rider", Target: "cancelled", Trip: trip, Booking: booking}, true},
		{"passenger cannot accept", Input{Action: ActionPassengerTransition, ActorID: "rider", Target: "accepted", Trip: trip, Booking: booking}, false},
		{"stranger cannot cancel", Input{Action: ActionPassengerTransition, ActorID: "other", Target: "cancelled", Trip: trip, Booking: booking}, false},
		{"driver accepts", Input{Action: ActionDriverTransition, ActorID: "driver", Target: "accepted", Trip: trip, Booking: booking}, true},
		{"passenger cannot use driver side", Input{Action: ActionDriverTransition, ActorID: "rider", Target: "accepted", Trip: trip, Booking: booking}, false},
		{"driver updates progress", Input{Action: ActionBookingProgress, ActorID: "driver", Trip: trip, Booking: booking}, true},
		{"passenger cannot update progress", Input{Action: ActionBookingProgress, ActorID: "rider", Trip: trip, Booking: booking}, false},
		{"either party views booking", Input{Action: ActionViewBooking, ActorID: "rider", Trip: trip, Booking: booking}, true},
		{"driver manages trip", Input{Action: ActionManageTrip, ActorID: "driver", Trip: trip}, true},
		{"missing trip denies", Input{Action: ActionManageTrip, ActorID: "driver"}, false},
		{"booked passenger sees private trip", Input{Action: ActionViewPrivateTrip, ActorID: "rider", Trip: trip, PassengerIDs: []string{"x", "rider"}}, true},
		{"stranger cannot see private trip", Input{Action: ActionViewPrivateTrip, ActorID: "other", Trip: trip, PassengerIDs: []string{"rider"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := authz.Allow(ctx, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
