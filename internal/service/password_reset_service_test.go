package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/punch-attendance-api/internal/models"
	appErrors "github.com/noah-isme/punch-attendance-api/pkg/errors"
)

type otpRepoStub struct {
	mu      sync.Mutex
	records  map[string]*models.PasswordResetOTP
	seq      int
	reserved int
}

func newOTPRepoStub() *otpRepoStub {
	return &otpRepoStub{records: make(map[string]*models.PasswordResetOTP)}
}

func (r *otpRepoStub) Upsert(ctx context.Context, otp *models.PasswordResetOTP) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	otp.ID = "otp-" + string(rune('0'+r.seq))
	copy := *otp
	r.records[otp.Email] = &copy
	return nil
}

func (r *otpRepoStub) FindByEmail(ctx context.Context, email string) (*models.PasswordResetOTP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	otp, ok := r.records[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *otp
	return &copy, nil
}

func (r *otpRepoStub) ReserveAttempt(ctx context.Context, id string, maxAttempts int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, otp := range r.records {
		if otp.ID == id && otp.ConsumedAt == nil && otp.Attempts < maxAttempts {
			otp.Attempts++
			r.reserved++
			return otp.Attempts, nil
		}
	}
	return 0, sql.ErrNoRows
}

func (r *otpRepoStub) Consume(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, otp := range r.records {
		if otp.ID == id && otp.ConsumedAt == nil {
			consumed := at
			otp.ConsumedAt = &consumed
			return nil
		}
	}
	return sql.ErrNoRows
}

type resetUserStub struct {
	users     map[string]*models.User
	revoked   []string
	audits    []*models.AuditLog
	password  map[string]string
	updateErr error
}

func (u *resetUserStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := u.users[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *user
	return &copy, nil
}

func (u *resetUserStub) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if u.updateErr != nil {
		return u.updateErr
	}
	if u.password == nil {
		u.password = make(map[string]string)
	}
	u.password[id] = passwordHash
	return nil
}

func (u *resetUserStub) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	u.revoked = append(u.revoked, userID)
	return nil
}

func (u *resetUserStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	u.audits = append(u.audits, log)
	return nil
}

type throttleStub struct {
	allow bool
	err   error
	keys  []string
}

func (t *throttleStub) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	t.keys = append(t.keys, key)
	return t.allow, t.err
}

type notifierStub struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (n *notifierStub) SendResetCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.codes == nil {
		n.codes = make(map[string]string)
	}
	n.codes[email] = code
	return n.err
}

func (n *notifierStub) code(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[email]
}

type resetFixture struct {
	svc      *PasswordResetService
	otps     *otpRepoStub
	users    *resetUserStub
	throttle *throttleStub
	notifier *notifierStub
	clock    *time.Time
}

func newResetFixture(t *testing.T) *resetFixture {
	t.Helper()
	f := &resetFixture{
		otps: newOTPRepoStub(),
		users: &resetUserStub{users: map[string]*models.User{
			"student@example.com": {ID: "student-1", Email: "student@example.com", Role: models.RoleStudent, Active: true},
		}},
		throttle: &throttleStub{allow: true},
		notifier: &notifierStub{},
	}
	now := punchTestNow
	f.clock = &now
	f.svc = NewPasswordResetService(f.otps, f.users, f.throttle, f.notifier, NewMetricsService(), nil, nil, PasswordResetConfig{
		CodeLength:    6,
		TTL:           10 * time.Minute,
		MaxAttempts:   3,
		RequestLimit:  3,
		RequestWindow: 15 * time.Minute,
	})
	f.svc.now = func() time.Time { return *f.clock }
	return f
}

func (f *resetFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func TestPasswordResetRequestReset(t *testing.T) {
	f := newResetFixture(t)

	issued, err := f.svc.RequestReset(context.Background(), " Student@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "student@example.com", issued.Email)
	assert.Equal(t, punchTestNow.Add(10*time.Minute), issued.ExpiresAt)

	code := f.notifier.code("student@example.com")
	assert.Len(t, code, 6)
	assert.Regexp(t, `^[0-9]{6}$`, code)

	stored := f.otps.records["student@example.com"]
	require.NotNil(t, stored)
	assert.NotEqual(t, code, stored.OTPHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.OTPHash), []byte(code)))
	assert.Equal(t, issued.ExpiresAt, stored.OTPExpiry)
	assert.Equal(t, []string{"otp:student@example.com"}, f.throttle.keys)
	assert.EqualValues(t, 1, f.svc.metrics.Snapshot().OTPsIssued)
}

func TestPasswordResetUnknownEmailStoresNothing(t *testing.T) {
	f := newResetFixture(t)

	issued, err := f.svc.RequestReset(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Equal(t, "nobody@example.com", issued.Email)
	assert.Empty(t, f.otps.records)
	assert.Empty(t, f.notifier.code("nobody@example.com"))
}

func TestPasswordResetRequestValidationAndThrottle(t *testing.T) {
	f := newResetFixture(t)

	_, err := f.svc.RequestReset(context.Background(), "not-an-email")
	requireAppError(t, err, appErrors.ErrValidation, "email")

	f.throttle.allow = false
	_, err = f.svc.RequestReset(context.Background(), "student@example.com")
	requireAppError(t, err, appErrors.ErrTooManyRequests, "")
	assert.Empty(t, f.otps.records)

	f.throttle.allow, f.throttle.err = false, errors.New("redis down")
	_, err = f.svc.RequestReset(context.Background(), "student@example.com")
	require.NoError(t, err)
}

func TestPasswordResetMailFailureDoesNotFailRequest(t *testing.T) {
	f := newResetFixture(t)
	f.notifier.err = errors.New("queue full")

	_, err := f.svc.RequestReset(context.Background(), "student@example.com")
	require.NoError(t, err)
	assert.Contains(t, f.otps.records, "student@example.com")
}

func TestPasswordResetVerifyIsSingleUse(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	_, err := f.svc.RequestReset(ctx, "student@example.com")
	require.NoError(t, err)
	code := f.notifier.code("student@example.com")

	f.advance(time.Minute)
	result, err := f.svc.VerifyReset(ctx, "student@example.com", code)
	require.NoError(t, err)
	assert.Equal(t, "student@example.com", result.Email)
	assert.Equal(t, punchTestNow.Add(time.Minute), result.VerifiedAt)

	_, err = f.svc.VerifyReset(ctx, "student@example.com", code)
	requireAppError(t, err, appErrors.ErrOTPMismatch, "")
}

func TestPasswordResetVerifyExpiredEvenWithCorrectCode(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	_, err := f.svc.RequestReset(ctx, "student@example.com")
	require.NoError(t, err)
	code := f.notifier.code("student@example.com")

	f.advance(10 * time.Minute)
	_, err = f.svc.VerifyReset(ctx, "student@example.com", code)
	require.NoError(t, err, "a code is still valid at its exact expiry instant")

	_, err = f.svc.RequestReset(ctx, "student@example.com")
	require.NoError(t, err)
	code = f.notifier.code("student@example.com")
	f.advance(10*time.Minute + time.Second)
	_, err = f.svc.VerifyReset(ctx, "student@example.com", code)
	requireAppError(t, err, appErrors.ErrOTPExpired, "")
}

func TestPasswordResetVerifyMismatchAndLockout(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	_, err := f.svc.RequestReset(ctx, "student@example.com")
	require.NoError(t, err)
	code := f.notifier.code("student@example.com")
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < 3; i++ {
		_, err = f.svc.VerifyReset(ctx, "student@example.com", wrong)
		requireAppError(t, err, appErrors.ErrOTPMismatch, "")
	}
	assert.Equal(t, 3, f.otps.records["student@example.com"].Attempts)

	_, err = f.svc.VerifyReset(ctx, "student@example.com", code)
	requireAppError(t, err, appErrors.ErrOTPMismatch, "")
	assert.Nil(t, f.otps.records["student@example.com"].ConsumedAt)
}

func TestPasswordResetLockedCodeStillReportsExpiry(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	_, err := f.svc.RequestReset(ctx, "student@example.com")
	require.NoError(t, err)
	code := f.notifier.code("student@example.com")
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < 3; i++ {
		_, err = f.svc.VerifyReset(ctx, "student@example.com", wrong)
		requireAppError(t, err, appErrors.ErrOTPMismatch, "")
	}

	f.advance(11 * time.Minute)
	_, err = f.svc.VerifyReset(ctx, "student@example.com", code)
	requireAppError(t, err, appErrors.ErrOTPExpired, "")
}

func TestPasswordResetLatestCodeWins(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	_, err := f.svc.RequestReset(ctx, "student@example.com")
	require.NoError(t, err)
	first := f.notifier.code("student@example.com")

	seq := []string{"123456", "654321"}
	f.svc.generate = func(int) (string, error) {
		code := seq[0]
		if code == first {
			code = seq[1]
		}
		return code, nil
	}
	_, err = f.svc.RequestReset(ctx, "student@example.com")
	require.NoError(t, err)
	second := f.notifier.code("student@example.com")
	require.NotEqual(t, first, second)

	_, err = f.svc.VerifyReset(ctx, "student@example.com", first)
	requireAppError(t, err, appErrors.ErrOTPMismatch, "")
	_, err = f.svc.VerifyReset(ctx, "student@example.com", second)
	require.NoError(t, err)
}

func TestPasswordResetVerifyWithoutRequest(t *testing.T) {
	f := newResetFixture(t)

	_, err := f.svc.VerifyReset(context.Background(), "student@example.com", "123456")
	requireAppError(t, err, appErrors.ErrNotFound, "")

	_, err = f.svc.VerifyReset(context.Background(), "student@example.com", " ")
	requireAppError(t, err, appErrors.ErrValidation, "code")
}

func TestPasswordResetConcurrentVerifyHasOneWinner(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	_, err := f.svc.RequestReset(ctx, "student@example.com")
	require.NoError(t, err)
	code := f.notifier.code("student@example.com")

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.VerifyReset(ctx, "student@example.com", code)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		requireAppError(t, err, appErrors.ErrOTPMismatch, "")
	}
	assert.Equal(t, 1, ok)
}

func TestPasswordResetConcurrentGuessesRespectAttemptLimit(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	_, err := f.svc.RequestReset(ctx, "student@example.com")
	require.NoError(t, err)
	code := f.notifier.code("student@example.com")
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	guesses := make([]string, 10)
	for i := range guesses {
		guesses[i] = wrong
	}
	guesses[9] = code

	var wg sync.WaitGroup
	errs := make([]error, len(guesses))
	for i, guess := range guesses {
		wg.Add(1)
		go func(i int, guess string) {
			defer wg.Done()
			_, errs[i] = f.svc.VerifyReset(ctx, "student@example.com", guess)
		}(i, guess)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		requireAppError(t, err, appErrors.ErrOTPMismatch, "")
	}
	assert.LessOrEqual(t, ok, 1)
	assert.LessOrEqual(t, f.otps.reserved, 3)
	assert.LessOrEqual(t, f.otps.records["student@example.com"].Attempts, 3)
}

// staleOTPStore serves attempt counts as they were before any verification.
type staleOTPStore struct {
	*otpRepoStub
}

func (s staleOTPStore) FindByEmail(ctx context.Context, email string) (*models.PasswordResetOTP, error) {
	otp, err := s.otpRepoStub.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	otp.Attempts = 0
	return otp, nil
}

func TestPasswordResetReservationRefusesPastLimit(t *testing.T) {
	f := newResetFixture(t)
	f.svc.otps = staleOTPStore{f.otps}
	ctx := context.Background()
	_, err := f.svc.RequestReset(ctx, "student@example.com")
	require.NoError(t, err)
	code := f.notifier.code("student@example.com")
	f.otps.records["student@example.com"].Attempts = 3

	_, err = f.svc.VerifyReset(ctx, "student@example.com", code)
	requireAppError(t, err, appErrors.ErrOTPMismatch, "")
	assert.Nil(t, f.otps.records["student@example.com"].ConsumedAt)
	assert.Zero(t, f.otps.reserved)
}

func TestPasswordResetResetPassword(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	_, err := f.svc.RequestReset(ctx, "student@example.com")
	require.NoError(t, err)
	code := f.notifier.code("student@example.com")

	err = f.svc.ResetPassword(ctx, models.ConfirmResetPasswordRequest{Email: "student@example.com", Code: code, NewPassword: "short"})
	requireAppError(t, err, appErrors.ErrValidation, "newPassword")

	err = f.svc.ResetPassword(ctx, models.ConfirmResetPasswordRequest{Email: "student@example.com", Code: code, NewPassword: "new-secret"})
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(f.users.password["student-1"]), []byte("new-secret")))
	assert.Equal(t, []string{"student-1"}, f.users.revoked)
	require.Len(t, f.users.audits, 1)
	assert.Equal(t, models.AuditActionPasswordReset, f.users.audits[0].Action)

	err = f.svc.ResetPassword(ctx, models.ConfirmResetPasswordRequest{Email: "student@example.com", Code: code, NewPassword: "another-secret"})
	requireAppError(t, err, appErrors.ErrOTPMismatch, "")
}

func TestPasswordResetLogsFailedPasswordUpdate(t *testing.T) {
	f := newResetFixture(t)
	core, logs := observer.New(zap.ErrorLevel)
	f.svc.logger = zap.New(core)
	ctx := context.Background()
	_, err := f.svc.RequestReset(ctx, "student@example.com")
	require.NoError(t, err)
	code := f.notifier.code("student@example.com")

	f.users.updateErr = errors.New("db down")
	err = f.svc.ResetPassword(ctx, models.ConfirmResetPasswordRequest{Email: "student@example.com", Code: code, NewPassword: "new-secret"})
	requireAppError(t, err, appErrors.ErrInternal, "")

	entries := logs.FilterMessage("reset code consumed but password update failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "student-1", entries[0].ContextMap()["user_id"])
	assert.NotNil(t, f.otps.records["student@example.com"].ConsumedAt)
}

func TestGenerateNumericCode(t *testing.T) {
	code, err := generateNumericCode(8)
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9]{8}$`, code)
}
