// Package repository declares the persistence contracts the services depend
// on. Lookups return (nil, nil) when nothing matches.
package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"cashback-service/internal/models"
)

var (
	ErrDuplicateEmail        = errors.New("repository: email already exists")
	ErrDuplicateUserID       = errors.New("repository: user id already exists")
	ErrDuplicateReferralCode = errors.New("repository: referral code already exists")
	ErrNotFound              = errors.New("repository: not found")
	// ErrStatusConflict means the row exists but is not in any of the
	// states the transition starts from.
	ErrStatusConflict = errors.New("repository: status conflict")
	// ErrInsufficientPending means a pending cashback movement had nothing
	// to move: the order was never booked, was already settled the other
	// way, or the user has less pending balance than the amount.
	ErrInsufficientPending = errors.New("repository: insufficient pending cashback")
)

type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// GetByReferralCode matches case-insensitively.
	GetByReferralCode(ctx context.Context, code string) (*models.User, error)
}

// WalletRepository mutates the balance columns on users. Every method is a
// single conditional statement or transaction; none reads then writes.
type WalletRepository interface {
	Get(ctx context.Context, userID string) (*models.WalletState, error)
	// Debit subtracts amount from available only if enough is available and
	// reports whether it did.
	Debit(ctx context.Context, userID string, amount decimal.Decimal) (bool, error)
	// Credit adds amount to available and total.
	Credit(ctx context.Context, userID string, amount decimal.Decimal) error
	// AddPending, ConfirmPending and CancelPending apply at most once per
	// order and report whether this call applied the change.
	AddPending(ctx context.Context, orderID, userID string, amount decimal.Decimal) (bool, error)
	ConfirmPending(ctx context.Context, orderID, userID string, amount decimal.Decimal) (bool, error)
	CancelPending(ctx context.Context, orderID, userID string, amount decimal.Decimal) (bool, error)
}

type ReferralRepository interface {
	// Create inserts rec unless the referred user already has a record and
	// reports whether it inserted.
	Create(ctx context.Context, rec *models.ReferralRecord) (bool, error)
	// Confirm moves the referred user's pending record to confirmed and
	// credits the referrer in one transaction. It returns nil when there is
	// no pending record.
	Confirm(ctx context.Context, referredUserID string) (*models.ReferralRecord, error)
	GetByReferredUser(ctx context.Context, referredUserID string) (*models.ReferralRecord, error)
	ListByReferrer(ctx context.Context, referrerID string, limit int) ([]models.ReferralRecord, error)
	Stats(ctx context.Context, referrerID string) (*models.ReferralStats, error)
}

type WithdrawalRepository interface {
	Create(ctx context.Context, w *models.WithdrawalRequest) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.WithdrawalRequest, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.WithdrawalRequest, error)
	ListByStatus(ctx context.Context, statuses []models.WithdrawalStatus, limit int) ([]models.WithdrawalRequest, error)
	// Transition moves the request to `to` if its status is one of from.
	// Terminal targets stamp processed_at. Returns ErrNotFound or
	// ErrStatusConflict.
	Transition(ctx context.Context, id string, from []models.WithdrawalStatus, to models.WithdrawalStatus, notes *string) (*models.WithdrawalRequest, error)
	// Reject fails the request and returns its amount to the user's
	// available balance in the same transaction.
	Reject(ctx context.Context, id string, from []models.WithdrawalStatus, notes string) (*models.WithdrawalRequest, error)
}

// LedgerRepository is the append-only journal of balance movements.
type LedgerRepository interface {
	Append(ctx context.Context, e models.LedgerEntry) error
	List(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error)
}

// DiscardLedger drops entries. Used when no journal store is configured.
type DiscardLedger struct{}

func (DiscardLedger) Append(context.Context, models.LedgerEntry) error { return nil }

func (DiscardLedger) List(context.Context, string, int) ([]models.LedgerEntry, error) {
	return nil, nil
}
