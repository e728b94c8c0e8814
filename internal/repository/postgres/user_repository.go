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

const userColumns = `id, email, name, phone, referral_code, referred_by, role, is_active, is_verified,
	total_cashback, available_cashback, pending_cashback, created_at, updated_at`

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts u with zero balances. u.ID must be set; timestamps are
// filled from the database.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	const q = `INSERT INTO users (id, email, name, phone, referral_code, referred_by, role, is_active, is_verified)
		VALUES (:id, :email, :name, :phone, :referral_code, :referred_by, :role, :is_active, :is_verified)
		RETURNING created_at, updated_at`
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	rows, err := r.db.NamedQueryContext(ctx, q, u)
	if err != nil {
		return mapUserConflict(err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return mapUserConflict(err)
		}
		return errors.New("insert user: no row returned")
	}
	if err := rows.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return err
	}
	return rows.Err()
}

func mapUserConflict(err error) error {
	switch uniqueConstraint(err) {
	case "":
		return err
	case "users_email_key":
		return fmt.Errorf("%w: %v", repository.ErrDuplicateEmail, err)
	case "users_referral_code_key":
		return fmt.Errorf("%w: %v", repository.ErrDuplicateReferralCode, err)
	default:
		return fmt.Errorf("%w: %v", repository.ErrDuplicateUserID, err)
	}
}

func (r *UserRepository) get(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.get(ctx, "id = $1", id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.get(ctx, "lower(email) = lower($1)", email)
}

func (r *UserRepository) GetByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return r.get(ctx, "upper(referral_code) = upper($1)", code)
}
