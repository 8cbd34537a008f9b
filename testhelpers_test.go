//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tripshare/service-carpool/internal/application"
	"github.com/tripshare/service-carpool/internal/contracts"
	tripDomain "github.com/tripshare/service-carpool/internal/domain/trip"
	carpoolEvents "github.com/tripshare/service-carpool/internal/events"
	"github.com/tripshare/service-carpool/internal/platform/clock"
	"github.com/tripshare/service-carpool/internal/platform/database"
	"github.com/tripshare/service-carpool/internal/platform/kafka"
	"github.com/tripshare/service-carpool/internal/platform/policy"
	"github.com/tripshare/service-carpool/internal/repository"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	KafkaBrokers []string
	Cleanup      func()
}

// carpoolStack holds wired-up carpool service components.
type carpoolStack struct {
	Trips           *application.TripService
	Bookings        *application.BookingService
	Verifier        *repository.GormDriverVerificationRepository
	Consumer        *carpoolEvents.UserEventConsumer
	CleanupProducer func()
}

// setupContainers starts PostgreSQL and Kafka testcontainers, applies the
// migrations and returns a connected GORM DB.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_carpool",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := database.PostgresConfig{
		Host:     pgHost,
		Port:     pgPort.Port(),
		User:     "test",
		Password: "test",
		DBName:   "test_carpool",
		SSLMode:  "disable",
	}

	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = database.Connect(cfg, logger)
		return err == nil
	}, 30*time.Second, 1*time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, database.RunMigrations(cfg.DatabaseURL(), "migrations", logger))

	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	createTopics(t, kafkaBrokers,
		contracts.TopicTripEvents,
		contracts.TopicBookingEvents,
		contracts.TopicNotificationEvents,
		contracts.TopicUserEvents,
	)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}

	return &testInfra{
		DB:           db,
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// setupCarpoolStack wires up the services against Postgres and Kafka.
func setupCarpoolStack(t *testing.T, db *gorm.DB, brokers []string, ledgerAttempts int) *carpoolStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	authz, err := policy.NewAuthorizer(context.Background())
	require.NoError(t, err)

	st := repository.NewGormStore(db)
	verifier := repository.NewGormDriverVerificationRepository(db)
	producer := kafka.NewProducer(brokers, logger)
	dispatcher := application.NewDispatcher(carpoolEvents.NewKafkaNotifier(producer), producer, logger)
	ledger := application.NewSeatLedger(st, ledgerAttempts, logger)
	clk := clock.Real{}

	bookings := application.NewBookingService(st, ledger, authz, dispatcher, clk, logger)
	trips := application.NewTripService(st, ledger, authz, verifier, application.NewLocationHub(), nil,
		dispatcher, clk, application.TripServiceConfig{}, logger)

	groupID := fmt.Sprintf("test-carpool-%s", uuid.New().String()[:8])
	consumer := carpoolEvents.NewUserEventConsumer(brokers, groupID,
		application.NewVerificationService(verifier, logger), logger)

	return &carpoolStack{
		Trips:           trips,
		Bookings:        bookings,
		Verifier:        verifier,
		Consumer:        consumer,
		CleanupProducer: func() { _ = producer.Close() },
	}
}

// createTestTrip publishes a three-segment trip departing tomorrow.
func createTestTrip(t *testing.T, stack *carpoolStack, driverID uuid.UUID, seats int) *application.TripDTO {
	t.Helper()
	trip, err := stack.Trips.CreateTrip(context.Background(), driverID, application.CreateTripRequest{
		DepartureAt: time.Now().UTC().Add(24 * time.Hour),
		SeatsTotal:  &seats,
		InstantBook: true,
		Points: []tripDomain.RoutePointInput{
			{OrderIndex: 0, Type: tripDomain.PointStart, Lat: 6.9271, Lng: 79.8612, DisplayAddress: "Colombo Fort"},
			{OrderIndex: 1, Type: tripDomain.PointStop, Lat: 7.0873, Lng: 79.9990, DisplayAddress: "Gampaha"},
			{OrderIndex: 2, Type: tripDomain.PointStop, Lat: 7.2513, Lng: 80.3464, DisplayAddress: "Kegalle"},
			{OrderIndex: 3, Type: tripDomain.PointEnd, Lat: 7.2906, Lng: 80.6337, DisplayAddress: "Kandy"},
		},
		Prices: []tripDomain.SegmentPriceInput{
			{OrderIndex: 0, PriceCents: 30000},
			{OrderIndex: 1, PriceCents: 45000},
			{OrderIndex: 2, PriceCents: 35000},
		},
	})
	require.NoError(t, err)
	return trip
}

func bookTrip(stack *carpoolStack, passengerID uuid.UUID, trip *application.TripDTO, from, to, seats int) (*application.BookingDTO, error) {
	pickup, dropoff := trip.Points[from], trip.Points[to]
	return stack.Bookings.CreateBooking(context.Background(), passengerID, application.CreateBookingRequest{
		TripID:         trip.ID,
		PickupPointID:  pickup.ID,
		DropoffPointID: dropoff.ID,
		PickupLat:      pickup.Lat,
		PickupLng:      pickup.Lng,
		DropoffLat:     dropoff.Lat,
		DropoffLng:     dropoff.Lng,
		Seats:          seats,
	})
}

// segmentSeats reads booked seats per segment straight from the table.
func segmentSeats(t *testing.T, db *gorm.DB, tripID uuid.UUID) []int {
	t.Helper()
	var models []repository.SegmentModel
	require.NoError(t, db.Where("trip_id = ?", tripID).Order("order_index ASC").Find(&models).Error)
	out := make([]int, len(models))
	for i, m := range models {
		out[i] = m.BookedSeats
	}
	return out
}

// publishTestEvent publishes a CloudEvent to Kafka.
func publishTestEvent(t *testing.T, brokers []string, topic, source, eventType string, data interface{}) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	producer := kafka.NewProducer(brokers, logger)
	defer func() { _ = producer.Close() }()

	ce, err := kafka.NewCloudEvent(source, eventType, data)
	require.NoError(t, err, "failed to create cloud event")

	err = producer.PublishEvent(context.Background(), topic, ce)
	require.NoError(t, err, "failed to publish event")
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the
// expected type whose subject matches.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType, subject string, timeout time.Duration) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType && (subject == "" || ce.Subject == subject) {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	require.NoError(t, controllerConn.CreateTopics(topicConfigs...), "failed to create Kafka topics")

	time.Sleep(1 * time.Second)
}
