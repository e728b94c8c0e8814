package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cashback-service/internal/models"
	"cashback-service/internal/repository"
)

const recentReferralsLimit = 50

// ReferralService owns the pending -> confirmed referral bonus lifecycle.
type ReferralService struct {
	referrals repository.ReferralRepository
	ledger    repository.LedgerRepository
	logger    *zap.Logger
}

func NewReferralService(referrals repository.ReferralRepository, ledger repository.LedgerRepository, logger *zap.Logger) *ReferralService {
	if ledger == nil {
		ledger = repository.DiscardLedger{}
	}
	return &ReferralService{referrals: referrals, ledger: ledger, logger: logger}
}

type ReferralSummary struct {
	Stats  *models.ReferralStats   `json:"stats"`
	Recent []models.ReferralRecord `json:"recent"`
}

// Attribute records a pending bonus for referrerID. A referred user can be
// attributed once; later calls report false.
func (s *ReferralService) Attribute(ctx context.Context, referrerID, referredUserID string, bonus decimal.Decimal) (bool, error) {
	if referrerID == "" || referredUserID == "" || referrerID == referredUserID {
		return false, fmt.Errorf("%w: bad referral pair", ErrInvalidInput)
	}
	if bonus.IsNegative() {
		return false, fmt.Errorf("%w: negative bonus", ErrInvalidInput)
	}

	created, err := s.referrals.Create(ctx, &models.ReferralRecord{
		ID:             uuid.NewString(),
		ReferrerID:     referrerID,
		ReferredUserID: referredUserID,
		BonusAmount:    bonus,
		Status:         models.ReferralPending,
	})
	if err != nil {
		return false, fmt.Errorf("%w: create referral: %v", ErrInternal, err)
	}
	if created {
		s.logger.Info("referral attributed",
			zap.String("referrer_id", referrerID),
			zap.String("referred_user_id", referredUserID))
	}
	return created, nil
}

// Confirm pays the referrer for referredUserID's first qualifying purchase.
// It returns nil when there is nothing pending, so repeated calls credit
// once.
func (s *ReferralService) Confirm(ctx context.Context, referredUserID string) (*models.ReferralRecord, error) {
	rec, err := s.referrals.Confirm(ctx, referredUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: confirm referral: %v", ErrInternal, err)
	}
	if rec == nil {
		return nil, nil
	}

	s.logger.Info("referral confirmed",
		zap.String("referrer_id", rec.ReferrerID),
		zap.String("referred_user_id", rec.ReferredUserID),
		zap.String("bonus", rec.BonusAmount.String()))
	journal(ctx, s.ledger, s.logger, models.LedgerEntry{
		UserID:      rec.ReferrerID,
		Kind:        models.EntryReferralBonus,
		Amount:      rec.BonusAmount,
		Reference:   rec.ID,
		Description: "referral bonus",
	})
	return rec, nil
}

func (s *ReferralService) Stats(ctx context.Context, referrerID string) (*ReferralSummary, error) {
	stats, err := s.referrals.Stats(ctx, referrerID)
	if err != nil {
		return nil, fmt.Errorf("%w: referral stats: %v", ErrInternal, err)
	}
	recent, err := s.referrals.ListByReferrer(ctx, referrerID, recentReferralsLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: list referrals: %v", ErrInternal, err)
	}
	if recent == nil {
		recent = []models.ReferralRecord{}
	}
	return &ReferralSummary{Stats: stats, Recent: recent}, nil
}

// journal appends e and only logs on failure; the balance change it
// describes has already committed.
func journal(ctx context.Context, ledger repository.LedgerRepository, logger *zap.Logger, e models.LedgerEntry) {
	if err := ledger.Append(ctx, e); err != nil {
		logger.Error("ledger append failed",
			zap.String("user_id", e.UserID),
			zap.String("kind", e.Kind),
			zap.String("reference", e.Reference),
			zap.Error(err))
	}
}
