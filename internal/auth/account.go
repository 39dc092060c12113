package auth

import (
	"context"
	"time"
)

// Account is one registrant of the back-office. OTP holds the digest of the
// pending verification code; OTP and OTPExpiry are either both set or both nil.
type Account struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	IsVerified   bool       `json:"isVerified"`
	OTP          *string    `json:"-"`
	OTPExpiry    *time.Time `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// PendingAccount carries the fields written by a registration attempt.
type PendingAccount struct {
	Name         string
	Email        string
	PasswordHash string
	OTPDigest    string
	OTPExpiry    time.Time
}

// AccountStore persists accounts. Implementations enforce email uniqueness.
type AccountStore interface {
	// FindByEmail returns nil, nil when no account exists for email.
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// CreateOrReplacePending inserts an unverified account, or overwrites the
	// existing one when it is not verified yet. The verified check and the
	// write are a single atomic operation; a verified account yields
	// ErrAlreadyVerified and is left untouched.
	CreateOrReplacePending(ctx context.Context, p PendingAccount) (*Account, error)

	// Save writes the mutable fields of a, identified by a.ID, only while the
	// stored OTP digest still equals expectedOTP. Otherwise it returns
	// ErrStaleAccount and writes nothing.
	Save(ctx context.Context, a *Account, expectedOTP string) error

	// ListVerified returns verified accounts, newest first.
	ListVerified(ctx context.Context) ([]Account, error)
}
