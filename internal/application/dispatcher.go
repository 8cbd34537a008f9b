package application

import (
	"context"

	"go.uber.org/zap"

	"github.com/tripshare/service-carpool/internal/domain/notification"
	"github.com/tripshare/service-carpool/internal/platform/kafka"
)

const eventSource = "service-carpool"

type pendingEvent struct {
	topic     string
	eventType string
	subject   string
	data      interface{}
}

// outbox collects side effects produced inside a transaction so they are
// only emitted once the transaction has committed.
type outbox struct {
	notifications []notification.Notification
	events        []pendingEvent
}

func (o *outbox) notify(n notification.Notification) {
	o.notifications = append(o.notifications, n)
}

func (o *outbox) event(topic, eventType, subject string, data interface{}) {
	o.events = append(o.events, pendingEvent{topic: topic, eventType: eventType, subject: subject, data: data})
}

func (o *outbox) reset() {
	o.notifications = o.notifications[:0]
	o.events = o.events[:0]
}

// Dispatcher delivers committed side effects. Failures are logged and never
// propagate to the caller.
type Dispatcher struct {
	notifier  Notifier
	publisher EventPublisher
	logger    *zap.Logger
}

// NewDispatcher creates a Dispatcher. Either collaborator may be nil.
func NewDispatcher(notifier Notifier, publisher EventPublisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{notifier: notifier, publisher: publisher, logger: logger}
}

func (d *Dispatcher) flush(ctx context.Context, box *outbox) {
	for _, evt := range box.events {
		d.publishEvent(ctx, evt.topic, evt.eventType, evt.subject, evt.data)
	}
	for _, n := range box.notifications {
		if d.notifier == nil {
			continue
		}
		if err := d.notifier.Notify(ctx, n); err != nil {
			d.logger.Error("failed to send notification",
				zap.String("user_id", n.UserID.String()),
				zap.String("type", string(n.Type)),
				zap.Error(err),
			)
		}
	}
}

func (d *Dispatcher) publishEvent(ctx context.Context, topic, eventType, subject string, data interface{}) {
	if d.publisher == nil {
		return
	}
	cloudEvent, err := kafka.NewCloudEvent(eventSource, eventType, data)
	if err != nil {
		d.logger.Error("failed to create cloud event",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return
	}

	if err := d.publisher.PublishEvent(ctx, topic, cloudEvent.WithSubject(subject)); err != nil {
		d.logger.Error("failed to publish event",
			zap.String("topic", topic),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
