package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tripshare/service-carpool/internal/domain/store"
	tripDomain "github.com/tripshare/service-carpool/internal/domain/trip"
	"github.com/tripshare/service-carpool/internal/platform/clock"
)

const (
	DefaultSweepInterval      = time.Minute
	DefaultSweepExpireBatch   = 200
	DefaultSweepCompleteBatch = 50
	DefaultAutoCompleteGrace  = 6 * time.Hour
)

// SweeperConfig tunes the housekeeping sweep.
type SweeperConfig struct {
	Interval      time.Duration
	ExpireBatch   int
	CompleteBatch int
	Grace         time.Duration
}

// SweepResult reports what a single pass changed.
type SweepResult struct {
	Expired   int `json:"expired"`
	Completed int `json:"completed"`
}

// Sweeper expires stale booking requests and closes abandoned trips.
type Sweeper struct {
	store    store.Store
	bookings *BookingService
	trips    *TripService
	clock    clock.Clock
	cfg      SweeperConfig
	logger   *zap.Logger
}

// NewSweeper creates a Sweeper. Zero config values take the defaults.
func NewSweeper(st store.Store, bookings *BookingService, trips *TripService, clk clock.Clock, cfg SweeperConfig, logger *zap.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.ExpireBatch <= 0 {
		cfg.ExpireBatch = DefaultSweepExpireBatch
	}
	if cfg.CompleteBatch <= 0 {
		cfg.CompleteBatch = DefaultSweepCompleteBatch
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultAutoCompleteGrace
	}
	return &Sweeper{
		store:    st,
		bookings: bookings,
		trips:    trips,
		clock:    clk,
		cfg:      cfg,
		logger:   logger,
	}
}

// RunOnce performs one sweep. Each booking and trip is handled in its own
// transaction; a failure on one item is logged and the sweep moves on.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := s.clock.Now()

	expired, err := s.store.Bookings().FindExpiredPending(ctx, now, s.cfg.ExpireBatch)
	if err != nil {
		return result, err
	}
	for _, bk := range expired {
		ok, err := s.bookings.expirePending(ctx, bk.ID())
		if err != nil {
			s.logger.Error("failed to expire booking",
				zap.String("booking_id", bk.ID().String()),
				zap.Error(err),
			)
			continue
		}
		if ok {
			result.Expired++
		}
	}

	overdue, err := s.store.Trips().FindOverdue(ctx, tripDomain.AutoCompletable, now.Add(-s.cfg.Grace), s.cfg.CompleteBatch)
	if err != nil {
		return result, err
	}
	for _, t := range overdue {
		ok, err := s.trips.autoComplete(ctx, t.ID())
		if err != nil {
			s.logger.Error("failed to auto-complete trip",
				zap.String("trip_id", t.ID().String()),
				zap.Error(err),
			)
			continue
		}
		if ok {
			result.Completed++
		}
	}

	if result.Expired > 0 || result.Completed > 0 {
		s.logger.Info("housekeeping sweep finished",
			zap.Int("expired_bookings", result.Expired),
			zap.Int("completed_trips", result.Completed),
		)
	}
	return result, nil
}

// Start runs the sweep on every tick until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("housekeeping sweeper started", zap.Duration("interval", s.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("housekeeping sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("housekeeping sweep failed", zap.Error(err))
			}
		}
	}
}
