package booking

import (
	"fmt"

	"github.com/tripshare/service-carpool/internal/platform/domain"
)

// State is the joint (status, progress) pair. Every mutation of a Booking
// goes through State.Validate, so invalid combinations cannot be stored.
type State struct {
	Status   BookingStatus
	Progress ProgressStatus
}

// Validate checks that status and progress agree:
//   - pending bookings wait for pickup
//   - rejected and cancelled bookings have cancelled progress
//   - progress is completed exactly when the status is completed
func (s State) Validate() error {
	if !s.Status.IsValid() || !s.Progress.IsValid() {
		return domain.NewInvalidStateMessage(fmt.Sprintf("unknown booking state %s/%s", s.Status, s.Progress))
	}
	ok := true
	switch s.Status {
	case StatusPending:
		ok = s.Progress == ProgressAwaitingPickup
	case StatusRejected, StatusCancelled:
		ok = s.Progress == ProgressCancelled
	case StatusCompleted:
		ok = s.Progress == ProgressCompleted
	case StatusAccepted:
		ok = s.Progress != ProgressCompleted && s.Progress != ProgressCancelled
	}
	if !ok {
		return domain.NewInvalidStateMessage(fmt.Sprintf("booking cannot be %s with progress %s", s.Status, s.Progress))
	}
	return nil
}
