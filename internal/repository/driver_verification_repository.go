package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormDriverVerificationRepository stores the driver verification projection.
type GormDriverVerificationRepository struct {
	db *gorm.DB
}

func NewGormDriverVerificationRepository(db *gorm.DB) *GormDriverVerificationRepository {
	return &GormDriverVerificationRepository{db: db}
}

// IsDriverVerified reports false for users the projection has never seen.
func (r *GormDriverVerificationRepository) IsDriverVerified(ctx context.Context, userID uuid.UUID) (bool, error) {
	var model DriverVerificationModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read driver verification: %w", err)
	}
	return model.Verified, nil
}

func (r *GormDriverVerificationRepository) SetDriverVerified(ctx context.Context, userID uuid.UUID, verified bool, at time.Time) error {
	model := DriverVerificationModel{UserID: userID, Verified: verified, UpdatedAt: at}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"verified", "updated_at"}),
	}).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to store driver verification: %w", err)
	}
	return nil
}
