package application

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tripshare/service-carpool/internal/contracts"
	bookingDomain "github.com/tripshare/service-carpool/internal/domain/booking"
	"github.com/tripshare/service-carpool/internal/domain/notification"
	"github.com/tripshare/service-carpool/internal/domain/store"
	tripDomain "github.com/tripshare/service-carpool/internal/domain/trip"
	"github.com/tripshare/service-carpool/internal/platform/domain"
	"github.com/tripshare/service-carpool/internal/platform/policy"
)

// transitionBooking applies a status transition, releases seats when the
// booking stops holding them, and persists the result in tx.
func transitionBooking(
	ctx context.Context,
	tx store.Store,
	ledger *SeatLedger,
	t *tripDomain.Trip,
	bk *bookingDomain.Booking,
	target bookingDomain.BookingStatus,
	reason string,
	by bookingDomain.Party,
	now time.Time,
	box *outbox,
) error {
	held := bk.Status().HoldsSeats()

	var err error
	switch target {
	case bookingDomain.StatusAccepted:
		err = bk.Accept(now)
	case bookingDomain.StatusRejected:
		err = bk.Reject(reason, now)
	case bookingDomain.StatusCancelled:
		err = bk.Cancel(reason, by, now)
	case bookingDomain.StatusCompleted:
		err = bk.Complete(now)
	default:
		err = domain.NewInvalidStateError(string(bk.Status()), string(target))
	}
	if err != nil {
		return err
	}

	if held && !bk.Status().HoldsSeats() && bk.Status() != bookingDomain.StatusCompleted {
		if err := ledger.Release(ctx, tx, bk); err != nil {
			return err
		}
	}

	bk.IncrementVersion()
	if err := tx.Bookings().Update(ctx, bk); err != nil {
		return err
	}

	notifyBookingTransition(box, t, bk, by)
	recordBookingEvent(box, bk, reason, bookingEventType(bk.Status()))
	return nil
}

func bookingEventType(status bookingDomain.BookingStatus) string {
	switch status {
	case bookingDomain.StatusAccepted:
		return contracts.BookingAccepted
	case bookingDomain.StatusRejected:
		return contracts.BookingRejected
	case bookingDomain.StatusCancelled:
		return contracts.BookingCancelled
	case bookingDomain.StatusCompleted:
		return contracts.BookingCompleted
	default:
		return contracts.BookingCreated
	}
}

func recordBookingEvent(box *outbox, bk *bookingDomain.Booking, reason, eventType string) {
	box.event(contracts.TopicBookingEvents, eventType, bk.TripID().String(), contracts.BookingEvent{
		BookingID:       bk.ID(),
		TripID:          bk.TripID(),
		PassengerID:     bk.PassengerID(),
		Status:          string(bk.Status()),
		Progress:        string(bk.Progress()),
		Seats:           bk.Seats(),
		PriceTotalCents: bk.PriceTotalCents(),
		Currency:        bk.Currency(),
		Reason:          reason,
		OccurredAt:      bk.UpdatedAt(),
	})
}

// notifyBookingTransition queues the messages each party receives after a
// status change.
func notifyBookingTransition(box *outbox, t *tripDomain.Trip, bk *bookingDomain.Booking, by bookingDomain.Party) {
	passenger, driver := bk.PassengerID(), t.DriverID()
	msg := func(user uuid.UUID, typ notification.Type, title, body string) {
		box.notify(notification.ForBooking(user, typ, title, body, t.ID(), bk.ID()))
	}

	switch bk.Status() {
	case bookingDomain.StatusAccepted:
		msg(passenger, notification.TypeBookingAccepted, "Booking accepted", "Your booking request was accepted by the driver.")

	case bookingDomain.StatusRejected:
		if bk.CancellationNote() == bookingDomain.ReasonExpired {
			msg(passenger, notification.TypeBookingRejected, "Booking request expired", "The driver did not respond in time. Your seats have been released.")
			msg(driver, notification.TypeBookingRejected, "Booking request expired", "A booking request on your trip expired before you responded.")
			return
		}
		msg(passenger, notification.TypeBookingRejected, "Booking rejected", "Your booking request was declined by the driver.")

	case bookingDomain.StatusCancelled:
		switch by {
		case bookingDomain.PartyPassenger:
			msg(driver, notification.TypeBookingCancelled, "Booking cancelled", "A passenger cancelled their booking on your trip.")
		case bookingDomain.PartyDriver:
			msg(passenger, notification.TypeBookingCancelled, "Booking cancelled", "The driver cancelled your booking.")
		default:
			msg(passenger, notification.TypeTripCancelled, "Trip cancelled", "Your trip was cancelled by the driver. Your seats have been released.")
		}

	case bookingDomain.StatusCompleted:
		msg(passenger, notification.TypeBookingCompleted, "Trip completed", "Your ride is complete. You can now rate your driver.")
		msg(driver, notification.TypeBookingCompleted, "Booking completed", "A passenger's ride on your trip was completed.")
	}
}

// authorize evaluates the policy and maps a denial to a generic
// ForbiddenError that says nothing about the resource.
func authorize(ctx context.Context, authz Authorizer, in policy.Input) error {
	ok, err := authz.Allow(ctx, in)
	if err != nil {
		return err
	}
	if !ok {
		return errNotAllowed()
	}
	return nil
}

func errNotAllowed() error {
	return domain.NewForbiddenError("you are not allowed to perform this action")
}

func bookingPolicyInput(action string, actorID uuid.UUID, t *tripDomain.Trip, bk *bookingDomain.Booking, target string) policy.Input {
	return policy.Input{
		Action:  action,
		ActorID: actorID.String(),
		Target:  target,
		Trip:    &policy.TripRef{DriverID: t.DriverID().String()},
		Booking: &policy.BookingRef{PassengerID: bk.PassengerID().String()},
	}
}
