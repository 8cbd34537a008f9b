package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tripshare/service-carpool/internal/application"
)

// LocationTopic is the subscription filter for driver position reports:
// carpool/drivers/<driver id>/trips/<trip id>/location. The driver segment is
// the acting identity, so the broker must only let a client publish under its
// own driver ID (e.g. a mosquitto pattern ACL on %u).
const LocationTopic = "carpool/drivers/+/trips/+/location"

const handleTimeout = 5 * time.Second

// LocationUpdater is the part of the trip service the subscriber needs.
type LocationUpdater interface {
	UpdateLocation(ctx context.Context, driverID, tripID uuid.UUID, req application.UpdateLocationRequest) (*application.LocationUpdate, error)
}

type locationPayload struct {
	TripID  uuid.UUID `json:"trip_id"`
	Lat     float64   `json:"lat"`
	Lng     float64   `json:"lng"`
	Heading *float64  `json:"heading"`
}

// LocationSubscriber ingests driver positions published over MQTT.
type LocationSubscriber struct {
	client  mqtt.Client
	updater LocationUpdater
	logger  *zap.Logger
}

// NewLocationSubscriber prepares a client for broker. Call Start to connect.
func NewLocationSubscriber(broker, clientID string, updater LocationUpdater, logger *zap.Logger) *LocationSubscriber {
	s := &LocationSubscriber{updater: updater, logger: logger}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", zap.Error(err))
		})
	s.client = mqtt.NewClient(opts)
	return s
}

// Start connects to the broker; subscriptions are (re)established on connect.
func (s *LocationSubscriber) Start() error {
	token := s.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		s.logger.Warn("mqtt connect still pending, retrying in background")
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (s *LocationSubscriber) Close() {
	s.client.Disconnect(250)
}

func (s *LocationSubscriber) onConnect(client mqtt.Client) {
	token := client.Subscribe(LocationTopic, 1, s.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		s.logger.Error("mqtt subscribe failed", zap.String("topic", LocationTopic), zap.Error(err))
		return
	}
	s.logger.Info("mqtt location subscriber ready", zap.String("topic", LocationTopic))
}

func (s *LocationSubscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	if err := s.handle(ctx, msg.Topic(), msg.Payload()); err != nil {
		s.logger.Warn("dropped location report",
			zap.String("topic", msg.Topic()),
			zap.Error(err),
		)
	}
}

func (s *LocationSubscriber) handle(ctx context.Context, topic string, payload []byte) error {
	var p locationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	driverID, tripID, err := parseLocationTopic(topic)
	if err != nil {
		return err
	}
	if p.TripID != uuid.Nil && p.TripID != tripID {
		return fmt.Errorf("payload trip %s does not match topic", p.TripID)
	}

	_, err = s.updater.UpdateLocation(ctx, driverID, tripID, application.UpdateLocationRequest{
		Lat:     p.Lat,
		Lng:     p.Lng,
		Heading: p.Heading,
	})
	return err
}

// parseLocationTopic extracts the driver and trip IDs from
// carpool/drivers/<driver id>/trips/<trip id>/location.
func parseLocationTopic(topic string) (driverID, tripID uuid.UUID, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 6 || parts[0] != "carpool" || parts[1] != "drivers" || parts[3] != "trips" || parts[5] != "location" {
		return uuid.Nil, uuid.Nil, fmt.Errorf("unexpected topic %q", topic)
	}
	if driverID, err = uuid.Parse(parts[2]); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid driver id in topic: %w", err)
	}
	if tripID, err = uuid.Parse(parts[4]); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid trip id in topic: %w", err)
	}
	return driverID, tripID, nil
}
