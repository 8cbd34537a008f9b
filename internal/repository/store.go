package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	bookingDomain "github.com/tripshare/service-carpool/internal/domain/booking"
	"github.com/tripshare/service-carpool/internal/domain/store"
	tripDomain "github.com/tripshare/service-carpool/internal/domain/trip"
	"github.com/tripshare/service-carpool/internal/platform/domain"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// GormStore is the PostgreSQL implementation of store.Store.
type GormStore struct {
	db   *gorm.DB
	inTx bool
}

// NewGormStore creates a GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Trips() tripDomain.TripRepository {
	return NewGormTripRepository(s.db)
}

func (s *GormStore) Bookings() bookingDomain.BookingRepository {
	return NewGormBookingRepository(s.db)
}

// WithinTx runs fn in a serializable transaction. Nested calls join the
// running transaction. Serialization failures come back as ConflictErrors.
func (s *GormStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &GormStore{db: tx, inTx: true})
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	return translateTxError(err)
}

func translateTxError(err error) error {
	if err == nil {
		return nil
	}
	if isSerializationFailure(err) {
		return domain.NewConflictErrorWrap("concurrent update, transaction aborted", err)
	}
	return err
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}
