package models

import "time"

// PasswordResetOTP is the single outstanding reset code for an email address.
// Issuing a new code replaces the row, so only the latest code is ever valid.
type PasswordResetOTP struct {
	ID         string     `db:"id" json:"id"`
	Email      string     `db:"email" json:"email"`
	OTPHash    string     `db:"otp_hash" json:"-"`
	OTPExpiry  time.Time  `db:"otp_expiry" json:"otpExpiry"`
	Attempts   int        `db:"attempts" json:"attempts"`
	ConsumedAt *time.Time `db:"consumed_at" json:"consumedAt,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// Expired reports whether the code is past its expiry at now.
func (o *PasswordResetOTP) Expired(now time.Time) bool {
	return now.After(o.OTPExpiry)
}

// OTPIssued is returned once a reset code has been stored.
type OTPIssued struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// OTPVerifyResult signals a consumed reset code.
type OTPVerifyResult struct {
	Email      string    `json:"email"`
	VerifiedAt time.Time `json:"verifiedAt"`
}
