package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tripshare/service-carpool/internal/application"
	"github.com/tripshare/service-carpool/internal/config"
	"github.com/tripshare/service-carpool/internal/domain/store"
	"github.com/tripshare/service-carpool/internal/events"
	"github.com/tripshare/service-carpool/internal/handler"
	"github.com/tripshare/service-carpool/internal/platform/auth"
	"github.com/tripshare/service-carpool/internal/platform/clock"
	"github.com/tripshare/service-carpool/internal/platform/database"
	"github.com/tripshare/service-carpool/internal/platform/health"
	"github.com/tripshare/service-carpool/internal/platform/kafka"
	"github.com/tripshare/service-carpool/internal/platform/logger"
	"github.com/tripshare/service-carpool/internal/platform/middleware"
	"github.com/tripshare/service-carpool/internal/platform/policy"
	"github.com/tripshare/service-carpool/internal/repository"
	"github.com/tripshare/service-carpool/internal/repository/locationhistory"
	"github.com/tripshare/service-carpool/internal/repository/memstore"
)

const serviceName = "service-carpool"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting "+serviceName,
		zap.String("port", cfg.Port),
		zap.String("store", cfg.StoreDriver),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	var (
		db       *gorm.DB
		st       store.Store
		verifier application.DriverVerificationRepository
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		mem := memstore.New()
		st, verifier = mem, mem.Verifications()
		log.Warn("using in-memory store; data is lost on restart")
	default:
		dbConfig := database.PostgresConfig{
			Host:     cfg.DBConfig.Host,
			Port:     cfg.DBConfig.Port,
			User:     cfg.DBConfig.User,
			Password: cfg.DBConfig.Password,
			DBName:   cfg.DBConfig.DBName,
			SSLMode:  cfg.DBConfig.SSLMode,
		}
		db, err = database.Connect(dbConfig, log)
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		if err := database.RunMigrations(dbConfig.DatabaseURL(), "migrations", log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
		st = repository.NewGormStore(db)
		verifier = repository.NewGormDriverVerificationRepository(db)
	}

	// Location history is optional
	var recorder application.LocationRecorder
	if cfg.Mongo.URI != "" {
		client, err := locationhistory.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			log.Fatal("failed to connect to mongodb", zap.Error(err))
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		history := locationhistory.NewStore(client.Database(cfg.Mongo.Database))
		if err := history.EnsureIndexes(ctx); err != nil {
			log.Warn("failed to ensure location history indexes", zap.Error(err))
		}
		recorder = history
	}

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(
		cfg.JWTConfig.Secret,
		15*time.Minute,
		7*24*time.Hour,
	)

	authorizer, err := policy.NewAuthorizer(ctx)
	if err != nil {
		log.Fatal("failed to compile authorization policy", zap.Error(err))
	}

	// Initialize Kafka producer
	kafkaProducer := kafka.NewProducer(cfg.KafkaConfig.Brokers, log)
	defer func() { _ = kafkaProducer.Close() }()

	dispatcher := application.NewDispatcher(events.NewKafkaNotifier(kafkaProducer), kafkaProducer, log)
	ledger := application.NewSeatLedger(st, cfg.LedgerMaxAttempts, log)
	hub := application.NewLocationHub()
	clk := clock.Real{}

	// Initialize application services
	bookingService := application.NewBookingService(st, ledger, authorizer, dispatcher, clk, log)
	tripService := application.NewTripService(
		st,
		ledger,
		authorizer,
		verifier,
		hub,
		recorder,
		dispatcher,
		clk,
		application.TripServiceConfig{
			RequireVerifiedDriver: cfg.DriverVerificationRequired,
			LocationMinInterval:   cfg.LocationMinInterval,
		},
		log,
	)
	verificationService := application.NewVerificationService(verifier, log)

	sweeper := application.NewSweeper(st, bookingService, tripService, clk, application.SweeperConfig{
		Interval:      cfg.Housekeeping.Interval,
		ExpireBatch:   cfg.Housekeeping.ExpireBatch,
		CompleteBatch: cfg.Housekeeping.CompleteBatch,
		Grace:         cfg.Housekeeping.Grace,
	}, log)
	if cfg.Housekeeping.Enabled {
		go sweeper.Start(ctx)
	}

	// Driver verification events
	groupID := cfg.KafkaConfig.GroupPrefix + "carpool-service"
	userConsumer := events.NewUserEventConsumer(cfg.KafkaConfig.Brokers, groupID, verificationService, log)
	defer func() { _ = userConsumer.Close() }()

	go func() {
		log.Info("starting user event consumer")
		if err := userConsumer.Start(ctx); err != nil && err != context.Canceled {
			log.Error("user event consumer error", zap.Error(err))
		}
	}()

	// Driver positions over MQTT
	if cfg.MQTT.Broker != "" {
		locationSubscriber := events.NewLocationSubscriber(cfg.MQTT.Broker, cfg.MQTT.ClientID, tripService, log)
		if err := locationSubscriber.Start(); err != nil {
			log.Error("mqtt location subscriber failed to start", zap.Error(err))
		}
		defer locationSubscriber.Close()
	}

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	healthHandler := health.NewHandler(db, serviceName)
	healthHandler.RegisterRoutes(router)

	handler.NewTripHandler(tripService).RegisterRoutes(&router.RouterGroup, jwtManager)
	handler.NewBookingHandler(bookingService).RegisterRoutes(&router.RouterGroup, jwtManager)
	handler.NewAdminHandler(bookingService, sweeper).RegisterRoutes(&router.RouterGroup, jwtManager)

	// No WriteTimeout: location streams are long-lived.
	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down " + serviceName + "...")

	// Ends background workers and open location streams.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced shutdown", zap.Error(err))
	}

	log.Info(serviceName + " stopped")
}
