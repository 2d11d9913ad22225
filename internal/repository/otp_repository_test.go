package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/punch-attendance-api/internal/models"
)

func TestOTPRepositoryUpsertReplacesPrevious(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOTPRepository(db)

	mock.ExpectExec(`(?s)INSERT INTO forget_otps .+ ON CONFLICT \(email\) DO UPDATE`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	otp := &models.PasswordResetOTP{Email: "student@example.com", OTPHash: "hash", OTPExpiry: time.Now().Add(time.Minute), Attempts: 3}
	require.NoError(t, repo.Upsert(context.Background(), otp))
	assert.NotEmpty(t, otp.ID)
	assert.Zero(t, otp.Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOTPRepositoryFindByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOTPRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM forget_otps WHERE email = $1")).
		WithArgs("student@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "otp_hash", "otp_expiry", "attempts", "consumed_at", "created_at"}).
			AddRow("otp-1", "student@example.com", "hash", now.Add(time.Minute), 1, nil, now))

	otp, err := repo.FindByEmail(context.Background(), "student@example.com")
	require.NoError(t, err)
	assert.Equal(t, "otp-1", otp.ID)
	assert.Equal(t, 1, otp.Attempts)
	assert.Nil(t, otp.ConsumedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOTPRepositoryConsumeOnce(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOTPRepository(db)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE forget_otps SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL")).
		WithArgs("otp-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Consume(context.Background(), "otp-1", now))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE forget_otps SET consumed_at")).
		WithArgs("otp-1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Consume(context.Background(), "otp-1", now), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOTPRepositoryReserveAttemptStopsAtLimit(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOTPRepository(db)

	mock.ExpectQuery(`(?s)UPDATE forget_otps SET attempts = attempts \+ 1\s+WHERE id = \$1 AND attempts < \$2 AND consumed_at IS NULL\s+RETURNING attempts`).
		WithArgs("otp-1", 3).
		WillReturnRows(sqlmock.NewRows([]string{"attempts"}).AddRow(3))
	attempts, err := repo.ReserveAttempt(context.Background(), "otp-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	mock.ExpectQuery(`UPDATE forget_otps SET attempts`).
		WithArgs("otp-1", 3).
		WillReturnRows(sqlmock.NewRows([]string{"attempts"}))
	_, err = repo.ReserveAttempt(context.Background(), "otp-1", 3)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
