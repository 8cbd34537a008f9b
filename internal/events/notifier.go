package events

import (
	"context"
	"fmt"

	"github.com/tripshare/service-carpool/internal/application"
	"github.com/tripshare/service-carpool/internal/contracts"
	"github.com/tripshare/service-carpool/internal/domain/notification"
	"github.com/tripshare/service-carpool/internal/platform/kafka"
)

const notifierSource = "service-carpool"

// KafkaNotifier hands notifications to the notification service through
// the notification.events topic.
type KafkaNotifier struct {
	publisher application.EventPublisher
}

// NewKafkaNotifier creates a KafkaNotifier.
func NewKafkaNotifier(publisher application.EventPublisher) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher}
}

// Notify publishes msg keyed by its recipient.
func (n *KafkaNotifier) Notify(ctx context.Context, msg notification.Notification) error {
	event, err := kafka.NewCloudEvent(notifierSource, contracts.NotificationRequested, msg)
	if err != nil {
		return err
	}
	if err := n.publisher.PublishEvent(ctx, contracts.TopicNotificationEvents, event.WithSubject(msg.UserID.String())); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
