package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// WalletState is the cashback balance carried on a user row.
type WalletState struct {
	TotalCashback     decimal.Decimal `json:"totalCashback" db:"total_cashback"`
	AvailableCashback decimal.Decimal `json:"availableCashback" db:"available_cashback"`
	PendingCashback   decimal.Decimal `json:"pendingCashback" db:"pending_cashback"`
}

// Withdrawn is everything ever earned that is neither spendable nor pending.
func (w WalletState) Withdrawn() decimal.Decimal {
	return w.TotalCashback.Sub(w.AvailableCashback).Sub(w.PendingCashback)
}

type User struct {
	ID           string  `json:"id" db:"id"`
	Email        string  `json:"email" db:"email"`
	Name         string  `json:"name" db:"name"`
	Phone        *string `json:"phone,omitempty" db:"phone"`
	ReferralCode string  `json:"referralCode" db:"referral_code"`
	ReferredBy   *string `json:"referredBy,omitempty" db:"referred_by"`
	Role         string  `json:"role" db:"role"`
	IsActive     bool    `json:"isActive" db:"is_active"`
	IsVerified   bool    `json:"isVerified" db:"is_verified"`
	WalletState
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
