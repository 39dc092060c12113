package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	OTPDigits = 6
	OTPTTL    = 10 * time.Minute
)

var otpOpts = totp.ValidateOpts{
	Period:    uint(OTPTTL / time.Second),
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// IssuedOTP is a freshly generated verification code. Code goes to the
// registrant by email; only Digest is persisted.
type IssuedOTP struct {
	Code      string
	Digest    string
	ExpiresAt time.Time
}

// OTPIssuer derives one-time codes from a throwaway TOTP key per issuance.
type OTPIssuer struct {
	Issuer string
	Now    func() time.Time
}

func NewOTPIssuer(issuer string) *OTPIssuer {
	if issuer == "" {
		issuer = "Store Admin"
	}
	return &OTPIssuer{Issuer: issuer, Now: time.Now}
}

func (o *OTPIssuer) Issue(email string) (IssuedOTP, error) {
	now := o.Now()

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      o.Issuer,
		AccountName: email,
		Period:      otpOpts.Period,
		Digits:      otpOpts.Digits,
		Algorithm:   otpOpts.Algorithm,
	})
	if err != nil {
		return IssuedOTP{}, err
	}

	code, err := totp.GenerateCodeCustom(key.Secret(), now, otpOpts)
	if err != nil {
		return IssuedOTP{}, err
	}

	return IssuedOTP{
		Code:      code,
		Digest:    DigestOTP(code),
		ExpiresAt: now.Add(OTPTTL),
	}, nil
}

// Matches reports whether code is the live OTP of a at now. The expiry
// instant itself is still valid.
func (o *OTPIssuer) Matches(a *Account, code string, now time.Time) bool {
	if a == nil || a.OTP == nil || a.OTPExpiry == nil || !ValidOTPFormat(code) {
		return false
	}
	if now.After(*a.OTPExpiry) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*a.OTP), []byte(DigestOTP(code))) == 1
}

// DigestOTP returns the hex SHA-256 of code as stored on the account.
func DigestOTP(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func ValidOTPFormat(code string) bool {
	if len(code) != OTPDigits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
