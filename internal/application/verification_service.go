package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tripshare/service-carpool/internal/contracts"
)

// VerificationService keeps the local driver verification projection in
// step with the user service.
type VerificationService struct {
	repo   DriverVerificationRepository
	logger *zap.Logger
}

// NewVerificationService creates a VerificationService.
func NewVerificationService(repo DriverVerificationRepository, logger *zap.Logger) *VerificationService {
	return &VerificationService{repo: repo, logger: logger}
}

// HandleDriverVerification applies a verification event of the given type.
// Unknown event types are ignored.
func (s *VerificationService) HandleDriverVerification(ctx context.Context, eventType string, evt contracts.DriverVerificationEvent) error {
	var verified bool
	switch eventType {
	case contracts.UserDriverVerified:
		verified = true
	case contracts.UserDriverUnverified:
		verified = false
	default:
		return nil
	}

	at := evt.VerifiedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if err := s.repo.SetDriverVerified(ctx, evt.UserID, verified, at); err != nil {
		return fmt.Errorf("failed to store driver verification: %w", err)
	}
	s.logger.Info("driver verification updated",
		zap.String("user_id", evt.UserID.String()),
		zap.Bool("verified", verified),
	)
	return nil
}
