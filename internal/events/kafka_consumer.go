package events

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/tripshare/service-carpool/internal/application"
	"github.com/tripshare/service-carpool/internal/contracts"
	"github.com/tripshare/service-carpool/internal/platform/kafka"
)

// UserEventConsumer listens to user events and maintains the driver
// verification projection.
type UserEventConsumer struct {
	consumer *kafka.Consumer
	service  *application.VerificationService
	logger   *zap.Logger
}

// NewUserEventConsumer creates a new UserEventConsumer.
func NewUserEventConsumer(
	brokers []string,
	groupID string,
	service *application.VerificationService,
	logger *zap.Logger,
) *UserEventConsumer {
	consumer := kafka.NewConsumer(brokers, groupID, contracts.TopicUserEvents, logger)
	return &UserEventConsumer{
		consumer: consumer,
		service:  service,
		logger:   logger,
	}
}

// Start begins consuming user events. This blocks until the context is cancelled.
func (c *UserEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *UserEventConsumer) Close() error {
	return c.consumer.Close()
}

func (c *UserEventConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	cloudEvent, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from user topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil // malformed messages are skipped, not retried
	}

	switch cloudEvent.Type {
	case contracts.UserDriverVerified, contracts.UserDriverUnverified:
		return c.handleDriverVerification(ctx, cloudEvent)
	default:
		c.logger.Debug("ignoring unhandled user event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}
}

func (c *UserEventConsumer) handleDriverVerification(ctx context.Context, cloudEvent kafka.CloudEvent) error {
	var evt contracts.DriverVerificationEvent
	if err := cloudEvent.ParseData(&evt); err != nil {
		c.logger.Error("failed to parse DriverVerificationEvent data",
			zap.Error(err),
		)
		return nil
	}

	if err := c.service.HandleDriverVerification(ctx, cloudEvent.Type, evt); err != nil {
		c.logger.Error("failed to apply driver verification",
			zap.String("user_id", evt.UserID.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}
