package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/punch-attendance-api/internal/models"
)

// OTPRepository stores password reset codes, one row per email.
type OTPRepository struct {
	db *sqlx.DB
}

// NewOTPRepository constructs the repository.
func NewOTPRepository(db *sqlx.DB) *OTPRepository {
	return &OTPRepository{db: db}
}

// Upsert stores otp as the only outstanding code for its email, replacing any previous one.
func (r *OTPRepository) Upsert(ctx context.Context, otp *models.PasswordResetOTP) error {
	otp.ID = uuid.NewString()
	if otp.CreatedAt.IsZero() {
		otp.CreatedAt = time.Now().UTC()
	}
	otp.Attempts = 0
	otp.ConsumedAt = nil
	const query = `INSERT INTO forget_otps (id, email, otp_hash, otp_expiry, attempts, consumed_at, created_at)
	VALUES (:id, :email, :otp_hash, :otp_expiry, :attempts, :consumed_at, :created_at)
	ON CONFLICT (email) DO UPDATE SET
		id = EXCLUDED.id,
		otp_hash = EXCLUDED.otp_hash,
		otp_expiry = EXCLUDED.otp_expiry,
		attempts = 0,
		consumed_at = NULL,
		created_at = EXCLUDED.created_at`
	if _, err := r.db.NamedExecContext(ctx, query, otp); err != nil {
		return fmt.Errorf("upsert otp: %w", err)
	}
	return nil
}

// FindByEmail returns the current code for email or sql.ErrNoRows.
func (r *OTPRepository) FindByEmail(ctx context.Context, email string) (*models.PasswordResetOTP, error) {
	const query = `SELECT id, email, otp_hash, otp_expiry, attempts, consumed_at, created_at FROM forget_otps WHERE email = $1`
	var otp models.PasswordResetOTP
	if err := r.db.GetContext(ctx, &otp, query, email); err != nil {
		return nil, err
	}
	return &otp, nil
}

// ReserveAttempt spends one verification attempt and returns the new count. It returns
// sql.ErrNoRows when the code is consumed, superseded or already at maxAttempts.
func (r *OTPRepository) ReserveAttempt(ctx context.Context, id string, maxAttempts int) (int, error) {
	const query = `UPDATE forget_otps SET attempts = attempts + 1
	WHERE id = $1 AND attempts < $2 AND consumed_at IS NULL
	RETURNING attempts`
	var attempts int
	if err := r.db.QueryRowxContext(ctx, query, id, maxAttempts).Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, sql.ErrNoRows
		}
		return 0, fmt.Errorf("reserve otp attempt: %w", err)
	}
	return attempts, nil
}

// Consume marks the code as used. It returns sql.ErrNoRows if the code was already
// consumed or superseded by a newer issuance.
func (r *OTPRepository) Consume(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE forget_otps SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check otp consume rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
