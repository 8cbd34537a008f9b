package application

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tripshare/service-carpool/internal/domain/notification"
	"github.com/tripshare/service-carpool/internal/platform/kafka"
	"github.com/tripshare/service-carpool/internal/platform/policy"
)

// EventPublisher publishes CloudEvents; *kafka.Producer satisfies it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event kafka.CloudEvent) error
}

// Notifier hands a notification to the delivery service.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notification) error
}

// Authorizer decides participant permissions; *policy.Authorizer satisfies it.
type Authorizer interface {
	Allow(ctx context.Context, in policy.Input) (bool, error)
}

// DriverVerificationRepository stores the driver verification projection.
type DriverVerificationRepository interface {
	IsDriverVerified(ctx context.Context, userID uuid.UUID) (bool, error)
	SetDriverVerified(ctx context.Context, userID uuid.UUID, verified bool, at time.Time) error
}

// LocationRecorder keeps the long-term history of driver positions.
type LocationRecorder interface {
	Record(ctx context.Context, update LocationUpdate) error
	History(ctx context.Context, tripID uuid.UUID, limit int64) ([]LocationUpdate, error)
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, LocationUpdate) error { return nil }

func (noopRecorder) History(context.Context, uuid.UUID, int64) ([]LocationUpdate, error) {
	return []LocationUpdate{}, nil
}
