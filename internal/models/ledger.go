package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger entry kinds. Amount is always positive; the kind gives the direction.
const (
	EntryReferralBonus    = "referral_bonus"
	EntryCashbackPending  = "cashback_pending"
	EntryCashbackConfirm  = "cashback_confirmed"
	EntryWithdrawalDebit  = "withdrawal_debit"
	EntryWithdrawalRefund = "withdrawal_refund"
	EntryManualCredit     = "manual_credit"
	EntryCashbackCancel   = "cashback_cancelled"
)

type LedgerEntry struct {
	UserID      string          `json:"userId"`
	EntryID     string          `json:"entryId"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference,omitempty"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Cashback event kinds recorded per order.
const (
	CashbackKindPending   = "pending"
	CashbackKindConfirmed = "confirmed"
	CashbackKindCancelled = "cancelled"
)

// PurchaseEvent is published by the order pipeline.
type PurchaseEvent struct {
	OrderID  string          `json:"orderId"`
	UserID   string          `json:"userId"`
	Status   string          `json:"status"` // "placed", "confirmed" or "cancelled"
	Cashback decimal.Decimal `json:"cashback"`
	At       time.Time       `json:"at"`
}
