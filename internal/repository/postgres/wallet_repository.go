package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"cashback-service/internal/models"
	"cashback-service/internal/repository"
)

type WalletRepository struct {
	db *sqlx.DB
}

func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) Get(ctx context.Context, userID string) (*models.WalletState, error) {
	var w models.WalletState
	err := r.db.GetContext(ctx, &w,
		`SELECT total_cashback, available_cashback, pending_cashback FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepository) Debit(ctx context.Context, userID string, amount decimal.Decimal) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE users
		SET available_cashback = available_cashback - $1, updated_at = NOW()
		WHERE id = $2 AND available_cashback >= $1`, amount, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *WalletRepository) Credit(ctx context.Context, userID string, amount decimal.Decimal) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users
		SET available_cashback = available_cashback + $1, total_cashback = total_cashback + $1, updated_at = NOW()
		WHERE id = $2`, amount, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("credit: user %s not found", userID)
	}
	return nil
}

func (r *WalletRepository) AddPending(ctx context.Context, orderID, userID string, amount decimal.Decimal) (bool, error) {
	return r.applyOnce(ctx, orderID, models.CashbackKindPending, userID, amount, `UPDATE users
		SET pending_cashback = pending_cashback + $1, total_cashback = total_cashback + $1, updated_at = NOW()
		WHERE id = $2`)
}

// ConfirmPending fails the transaction, and applies nothing, when the user
// has less pending than amount.
func (r *WalletRepository) ConfirmPending(ctx context.Context, orderID, userID string, amount decimal.Decimal) (bool, error) {
	return r.applyOnce(ctx, orderID, models.CashbackKindConfirmed, userID, amount, `UPDATE users
		SET pending_cashback = pending_cashback - $1, available_cashback = available_cashback + $1, updated_at = NOW()
		WHERE id = $2 AND pending_cashback >= $1`)
}

func (r *WalletRepository) CancelPending(ctx context.Context, orderID, userID string, amount decimal.Decimal) (bool, error) {
	return r.applyOnce(ctx, orderID, models.CashbackKindCancelled, userID, amount, `UPDATE users
		SET pending_cashback = pending_cashback - $1, total_cashback = total_cashback - $1, updated_at = NOW()
		WHERE id = $2 AND pending_cashback >= $1`)
}

// opposite is the terminal kind that rules out kind for the same order.
var opposite = map[string]string{
	models.CashbackKindConfirmed: models.CashbackKindCancelled,
	models.CashbackKindCancelled: models.CashbackKindConfirmed,
}

// applyOnce records (orderID, kind) and runs update in one transaction.
// A second call for the same pair is a no-op that returns false. Confirm
// and cancel lock the order's pending event, need it to exist and refuse
// an order that already reached the other terminal kind.
func (r *WalletRepository) applyOnce(ctx context.Context, orderID, kind, userID string, amount decimal.Decimal, update string) (applied bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil || !applied {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `INSERT INTO cashback_events (order_id, kind, user_id, amount)
		VALUES ($1, $2, $3, $4) ON CONFLICT (order_id, kind) DO NOTHING`, orderID, kind, userID, amount)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return false, err
	}

	if other, ok := opposite[kind]; ok {
		var owner string
		err = tx.GetContext(ctx, &owner, `SELECT user_id FROM cashback_events
			WHERE order_id = $1 AND kind = $2 FOR UPDATE`, orderID, models.CashbackKindPending)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userID) {
			return false, fmt.Errorf("%w: order %s has no pending cashback for this user", repository.ErrInsufficientPending, orderID)
		}
		if err != nil {
			return false, err
		}
		var settled bool
		if err = tx.GetContext(ctx, &settled, `SELECT EXISTS (SELECT 1 FROM cashback_events
			WHERE order_id = $1 AND kind = $2)`, orderID, other); err != nil {
			return false, err
		}
		if settled {
			return false, fmt.Errorf("%w: order %s already %s", repository.ErrInsufficientPending, orderID, other)
		}
	}

	res, err = tx.ExecContext(ctx, update, amount, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, fmt.Errorf("%w: order %s %s", repository.ErrInsufficientPending, orderID, kind)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
