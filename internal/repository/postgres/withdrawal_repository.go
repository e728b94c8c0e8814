package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"cashback-service/internal/models"
	"cashback-service/internal/repository"
)

const withdrawalColumns = `id, user_id, amount, method, account_details, status, admin_notes, processed_at, created_at, updated_at`

type WithdrawalRepository struct {
	db *sqlx.DB
}

func NewWithdrawalRepository(db *sqlx.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) Create(ctx context.Context, w *models.WithdrawalRequest) error {
	if w.Status == "" {
		w.Status = models.WithdrawalPending
	}
	return r.db.QueryRowxContext(ctx, `INSERT INTO withdrawal_requests (id, user_id, amount, method, account_details, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		w.ID, w.UserID, w.Amount, w.Method, w.AccountDetails, w.Status).Scan(&w.CreatedAt, &w.UpdatedAt)
}

func (r *WithdrawalRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM withdrawal_requests WHERE id = $1`, id)
	return err
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := r.db.GetContext(ctx, &w, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WithdrawalRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.WithdrawalRequest, error) {
	var rows []models.WithdrawalRequest
	err := r.db.SelectContext(ctx, &rows, `SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	return rows, err
}

// ListByStatus returns the oldest requests first so the admin queue drains
// in arrival order.
func (r *WithdrawalRepository) ListByStatus(ctx context.Context, statuses []models.WithdrawalStatus, limit int) ([]models.WithdrawalRequest, error) {
	query, args, err := sqlx.In(`SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE status IN (?) ORDER BY created_at ASC LIMIT ?`, statusStrings(statuses), limit)
	if err != nil {
		return nil, err
	}
	var rows []models.WithdrawalRequest
	err = r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...)
	return rows, err
}

func (r *WithdrawalRepository) Transition(ctx context.Context, id string, from []models.WithdrawalStatus, to models.WithdrawalStatus, notes *string) (*models.WithdrawalRequest, error) {
	return r.transition(ctx, r.db, id, from, to, notes)
}

func (r *WithdrawalRepository) Reject(ctx context.Context, id string, from []models.WithdrawalStatus, notes string) (w *models.WithdrawalRequest, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	w, err = r.transition(ctx, tx, id, from, models.WithdrawalFailed, &notes)
	if err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE users
		SET available_cashback = available_cashback + $1, updated_at = NOW()
		WHERE id = $2`, w.Amount, w.UserID); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return w, nil
}

// transition is one conditional UPDATE. When it matches nothing, a second
// read tells a missing request apart from one in the wrong state.
func (r *WithdrawalRepository) transition(ctx context.Context, q sqlx.ExtContext, id string, from []models.WithdrawalStatus, to models.WithdrawalStatus, notes *string) (*models.WithdrawalRequest, error) {
	query, args, err := sqlx.In(`UPDATE withdrawal_requests
		SET status = ?, admin_notes = COALESCE(?, admin_notes),
			processed_at = CASE WHEN ? THEN NOW() ELSE processed_at END,
			updated_at = NOW()
		WHERE id = ? AND status IN (?)
		RETURNING `+withdrawalColumns, string(to), notes, to.Terminal(), id, statusStrings(from))
	if err != nil {
		return nil, err
	}
	var w models.WithdrawalRequest
	err = sqlx.GetContext(ctx, q, &w, q.Rebind(query), args...)
	if err == nil {
		return &w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var status string
	err = sqlx.GetContext(ctx, q, &status, `SELECT status FROM withdrawal_requests WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s is %s", repository.ErrStatusConflict, id, status)
}

func statusStrings(in []models.WithdrawalStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
