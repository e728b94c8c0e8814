package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"cashback-service/internal/models"
)

const referralColumns = `id, referrer_id, referred_user_id, bonus_amount, status, created_at, confirmed_at`

type ReferralRepository struct {
	db *sqlx.DB
}

func NewReferralRepository(db *sqlx.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

func (r *ReferralRepository) Create(ctx context.Context, rec *models.ReferralRecord) (bool, error) {
	if rec.Status == "" {
		rec.Status = models.ReferralPending
	}
	err := r.db.QueryRowxContext(ctx, `INSERT INTO referrals (id, referrer_id, referred_user_id, bonus_amount, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (referred_user_id) DO NOTHING
		RETURNING created_at`,
		rec.ID, rec.ReferrerID, rec.ReferredUserID, rec.BonusAmount, rec.Status).Scan(&rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *ReferralRepository) Confirm(ctx context.Context, referredUserID string) (rec *models.ReferralRecord, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil || rec == nil {
			_ = tx.Rollback()
		}
	}()

	var row models.ReferralRecord
	err = tx.GetContext(ctx, &row, `UPDATE referrals
		SET status = 'confirmed', confirmed_at = NOW()
		WHERE referred_user_id = $1 AND status = 'pending'
		RETURNING `+referralColumns, referredUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE users
		SET available_cashback = available_cashback + $1, total_cashback = total_cashback + $1, updated_at = NOW()
		WHERE id = $2`, row.BonusAmount, row.ReferrerID); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *ReferralRepository) GetByReferredUser(ctx context.Context, referredUserID string) (*models.ReferralRecord, error) {
	var row models.ReferralRecord
	err := r.db.GetContext(ctx, &row, `SELECT `+referralColumns+` FROM referrals WHERE referred_user_id = $1`, referredUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *ReferralRepository) ListByReferrer(ctx context.Context, referrerID string, limit int) ([]models.ReferralRecord, error) {
	var rows []models.ReferralRecord
	err := r.db.SelectContext(ctx, &rows, `SELECT `+referralColumns+` FROM referrals
		WHERE referrer_id = $1 ORDER BY created_at DESC LIMIT $2`, referrerID, limit)
	return rows, err
}

func (r *ReferralRepository) Stats(ctx context.Context, referrerID string) (*models.ReferralStats, error) {
	var row struct {
		Total          int             `db:"total"`
		Pending        int             `db:"pending"`
		Confirmed      int             `db:"confirmed"`
		PendingBonus   decimal.Decimal `db:"pending_bonus"`
		ConfirmedBonus decimal.Decimal `db:"confirmed_bonus"`
	}
	err := r.db.GetContext(ctx, &row, `SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'confirmed') AS confirmed,
			COALESCE(SUM(bonus_amount) FILTER (WHERE status = 'pending'), 0) AS pending_bonus,
			COALESCE(SUM(bonus_amount) FILTER (WHERE status = 'confirmed'), 0) AS confirmed_bonus
		FROM referrals WHERE referrer_id = $1`, referrerID)
	if err != nil {
		return nil, err
	}
	return &models.ReferralStats{
		Total:          row.Total,
		Pending:        row.Pending,
		Confirmed:      row.Confirmed,
		PendingBonus:   row.PendingBonus,
		ConfirmedBonus: row.ConfirmedBonus,
	}, nil
}
