package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/punch-attendance-api/internal/models"
	appErrors "github.com/noah-isme/punch-attendance-api/pkg/errors"
)

type otpStore interface {
	Upsert(ctx context.Context, otp *models.PasswordResetOTP) error
	FindByEmail(ctx context.Context, email string) (*models.PasswordResetOTP, error)
	ReserveAttempt(ctx context.Context, id string, maxAttempts int) (int, error)
	Consume(ctx context.Context, id string, at time.Time) error
}

type resetUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type requestThrottle interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type resetNotifier interface {
	SendResetCode(ctx context.Context, email, code string, expiresAt time.Time) error
}

var errOTPLocked = appErrors.Clone(appErrors.ErrOTPMismatch, "too many failed attempts, request a new code")

// PasswordResetConfig holds the reset code policy.
type PasswordResetConfig struct {
	CodeLength    int
	TTL           time.Duration
	MaxAttempts   int
	RequestLimit  int
	RequestWindow time.Duration
}

// PasswordResetService issues, verifies and redeems one-time reset codes.
type PasswordResetService struct {
	otps      otpStore
	users     resetUserRepository
	throttle  requestThrottle
	notifier  resetNotifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    PasswordResetConfig
	now       func() time.Time
	generate  func(length int) (string, error)
}

// NewPasswordResetService constructs the service. throttle and notifier may be nil.
func NewPasswordResetService(otps otpStore, users resetUserRepository, throttle requestThrottle, notifier resetNotifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg PasswordResetConfig) *PasswordResetService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &PasswordResetService{
		otps:      otps,
		users:     users,
		throttle:  throttle,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    cfg,
		now:       time.Now,
		generate:  generateNumericCode,
	}
}

// RequestReset stores a fresh code for email and queues it for delivery.
// Unknown addresses get the same response but nothing is stored.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) (*models.OTPIssued, error) {
	email = normalizeEmail(email)
	if err := s.validator.Var(email, "required,email"); err != nil {
		return nil, appErrors.WithField(appErrors.ErrValidation, "email", "a valid email is required")
	}
	if err := s.checkThrottle(ctx, email); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	issued := &models.OTPIssued{Email: email, ExpiresAt: now.Add(s.config.TTL)}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("password reset requested for unknown email")
			return issued, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		s.logger.Info("password reset requested for inactive account", zap.String("user_id", user.ID))
		return issued, nil
	}

	code, err := s.generate(s.config.CodeLength)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate reset code")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash reset code")
	}
	otp := &models.PasswordResetOTP{
		Email:     email,
		OTPHash:   string(hash),
		OTPExpiry: issued.ExpiresAt,
		CreatedAt: now,
	}
	if err := s.otps.Upsert(ctx, otp); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store reset code")
	}
	s.metrics.RecordOTPIssued()

	if s.notifier != nil {
		if err := s.notifier.SendResetCode(ctx, email, code, issued.ExpiresAt); err != nil {
			s.logger.Error("failed to dispatch reset code", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return issued, nil
}

// VerifyReset consumes the outstanding code for email. A code verifies at most once.
func (s *PasswordResetService) VerifyReset(ctx context.Context, email, code string) (*models.OTPVerifyResult, error) {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" {
		return nil, appErrors.WithField(appErrors.ErrValidation, "email", "email is required")
	}
	if code == "" {
		return nil, appErrors.WithField(appErrors.ErrValidation, "code", "code is required")
	}

	otp, err := s.otps.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no reset code requested for this email")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reset code")
	}

	now := s.now().UTC()
	switch {
	case otp.ConsumedAt != nil:
		s.metrics.RecordOTPVerification("consumed")
		return nil, appErrors.Clone(appErrors.ErrOTPMismatch, "reset code has already been used")
	case otp.Expired(now):
		s.metrics.RecordOTPVerification("expired")
		return nil, appErrors.ErrOTPExpired
	case otp.Attempts >= s.config.MaxAttempts:
		s.metrics.RecordOTPVerification("locked")
		return nil, errOTPLocked
	}

	// Spend an attempt before comparing; the store refuses once the limit is reached.
	if _, err := s.otps.ReserveAttempt(ctx, otp.ID, s.config.MaxAttempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordOTPVerification("locked")
			return nil, errOTPLocked
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record reset attempt")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(otp.OTPHash), []byte(code)); err != nil {
		s.metrics.RecordOTPVerification("mismatch")
		return nil, appErrors.ErrOTPMismatch
	}

	if err := s.otps.Consume(ctx, otp.ID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordOTPVerification("consumed")
			return nil, appErrors.Clone(appErrors.ErrOTPMismatch, "reset code has already been used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume reset code")
	}
	s.metrics.RecordOTPVerification("ok")
	return &models.OTPVerifyResult{Email: email, VerifiedAt: now}, nil
}

// ResetPassword verifies the code and replaces the account password.
func (s *PasswordResetService) ResetPassword(ctx context.Context, req models.ConfirmResetPasswordRequest) error {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return validationError(err)
	}
	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "no reset code requested for this email")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if _, err := s.VerifyReset(ctx, req.Email, req.Code); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	now := s.now().UTC()
	if err := s.users.UpdatePassword(ctx, user.ID, string(hash), now); err != nil {
		s.logger.Error("reset code consumed but password update failed", zap.String("user_id", user.ID), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}
	if err := s.users.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after reset", zap.String("user_id", user.ID), zap.Error(err))
	}
	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:    &user.ID,
		Action:    models.AuditActionPasswordReset,
		Resource:  "user",
		IPAddress: "system",
		UserAgent: "password-reset-service",
		CreatedAt: now,
	}); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
	return nil
}

func (s *PasswordResetService) checkThrottle(ctx context.Context, email string) error {
	if s.throttle == nil || s.config.RequestLimit <= 0 {
		return nil
	}
	allowed, err := s.throttle.Allow(ctx, "otp:"+email, s.config.RequestLimit, s.config.RequestWindow)
	if err != nil {
		s.logger.Warn("reset throttle unavailable", zap.Error(err))
		return nil
	}
	if !allowed {
		return appErrors.Clone(appErrors.ErrTooManyRequests, "too many reset requests, try again later")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateNumericCode draws length uniformly random decimal digits.
func generateNumericCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
