package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ReferralPending   = "pending"
	ReferralConfirmed = "confirmed"
)

type ReferralRecord struct {
	ID             string          `json:"id" db:"id"`
	ReferrerID     string          `json:"referrerId" db:"referrer_id"`
	ReferredUserID string          `json:"referredUserId" db:"referred_user_id"`
	BonusAmount    decimal.Decimal `json:"bonusAmount" db:"bonus_amount"`
	Status         string          `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	ConfirmedAt    *time.Time      `json:"confirmedAt,omitempty" db:"confirmed_at"`
}

type ReferralStats struct {
	Total          int             `json:"total"`
	Pending        int             `json:"pending"`
	Confirmed      int             `json:"confirmed"`
	PendingBonus   decimal.Decimal `json:"pendingBonus"`
	ConfirmedBonus decimal.Decimal `json:"confirmedBonus"`
}
