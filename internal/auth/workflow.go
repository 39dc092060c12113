package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/samber/oops"

	"storeadmin/internal/i18n"
)

const (
	MinPasswordLength = 8
	// MaxPasswordBytes is the longest input bcrypt accepts.
	MaxPasswordBytes = 72
)

// Mailer delivers one message. internal/email.Sender satisfies it.
type Mailer interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// Workflow runs registration, OTP verification and login against an
// AccountStore. It holds no per-request state and is safe for concurrent use.
type Workflow struct {
	Accounts      AccountStore
	Hasher        PasswordHasher
	OTP           *OTPIssuer
	Sessions      *SessionIssuer
	Mailer        Mailer
	AllowedDomain string
	Logger        *slog.Logger
	Now           func() time.Time
}

type RegisterRequest struct {
	Name     string
	Email    string
	Password string
	Locale   string
}

// NormalizeEmail trims surrounding whitespace. Case is kept: accounts are
// keyed on the address exactly as stored.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

// Register creates or refreshes a pending account and emails it a new OTP.
// The domain is checked before anything else so a foreign address never
// reaches the store.
func (w *Workflow) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	email := NormalizeEmail(req.Email)
	if !emailInDomain(email, w.AllowedDomain) {
		return nil, ErrDomainRestricted
	}
	if err := validateRegistration(req.Name, email, req.Password); err != nil {
		return nil, err
	}

	existing, err := w.Accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, oops.In("auth").With("email", email).Wrapf(err, "lookup account")
	}
	if existing != nil && existing.IsVerified {
		return nil, ErrAlreadyVerified
	}

	hash, err := w.Hasher.Hash(req.Password)
	if err != nil {
		return nil, oops.In("auth").Wrapf(err, "hash password")
	}
	code, err := w.OTP.Issue(email)
	if err != nil {
		return nil, oops.In("auth").Wrapf(err, "issue otp")
	}

	account, err := w.Accounts.CreateOrReplacePending(ctx, PendingAccount{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
		OTPDigest:    code.Digest,
		OTPExpiry:    code.ExpiresAt,
	})
	if errors.Is(err, ErrAlreadyVerified) {
		return nil, ErrAlreadyVerified
	}
	if err != nil {
		return nil, oops.In("auth").With("email", email).Wrapf(err, "store pending account")
	}

	content := i18n.VerificationEmail(req.Locale, account.Name, code.Code, int(OTPTTL/time.Minute))
	if err := w.Mailer.Send(ctx, email, content.Subject, content.Text, content.HTML); err != nil {
		return nil, oops.In("auth").
			Code("OTP_DELIVERY_FAILED").
			With("email", email).
			Wrap(fmt.Errorf("%w: %w", ErrOTPDelivery, err))
	}

	w.logger().Info("verification code sent", "email", email, "account_id", account.ID)
	return account, nil
}

// VerifyOTP marks the account verified when code is its live OTP and returns
// a session for it. Every failure mode yields ErrInvalidOTP.
func (w *Workflow) VerifyOTP(ctx context.Context, email, code string) (*Account, IssuedToken, error) {
	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)

	account, err := w.Accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, IssuedToken{}, oops.In("auth").With("email", email).Wrapf(err, "lookup account")
	}
	if !w.OTP.Matches(account, code, w.now()) {
		return nil, IssuedToken{}, ErrInvalidOTP
	}

	// A registration retry may have replaced the code since the lookup; the
	// save only lands while the matched digest is still stored.
	matched := *account.OTP
	account.IsVerified = true
	account.OTP = nil
	account.OTPExpiry = nil
	err = w.Accounts.Save(ctx, account, matched)
	if errors.Is(err, ErrStaleAccount) {
		return nil, IssuedToken{}, ErrInvalidOTP
	}
	if err != nil {
		return nil, IssuedToken{}, oops.In("auth").With("account_id", account.ID).Wrapf(err, "save verified account")
	}

	token, err := w.Sessions.Issue(account)
	if err != nil {
		return nil, IssuedToken{}, oops.In("auth").Wrapf(err, "issue session")
	}
	return account, token, nil
}

// Login checks the password before the verification flag, so an unverified
// account is only disclosed to someone who knows its password.
func (w *Workflow) Login(ctx context.Context, email, password string) (*Account, IssuedToken, error) {
	email = NormalizeEmail(email)

	account, err := w.Accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, IssuedToken{}, oops.In("auth").With("email", email).Wrapf(err, "lookup account")
	}
	if account == nil || !w.Hasher.Compare(account.PasswordHash, password) {
		return nil, IssuedToken{}, ErrInvalidCredentials
	}
	if !account.IsVerified {
		return account, IssuedToken{}, ErrNotVerified
	}

	token, err := w.Sessions.Issue(account)
	if err != nil {
		return nil, IssuedToken{}, oops.In("auth").Wrapf(err, "issue session")
	}
	return account, token, nil
}

func (w *Workflow) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *Workflow) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

func validateRegistration(name, email, password string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Message: "Name is required"}
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return &ValidationError{Field: "email", Message: "Invalid email address"}
	}
	if len(password) < MinPasswordLength {
		return &ValidationError{Field: "password", Message: fmt.Sprintf("Password must be at least %d characters", MinPasswordLength)}
	}
	if len(password) > MaxPasswordBytes {
		return &ValidationError{Field: "password", Message: fmt.Sprintf("Password must be at most %d bytes", MaxPasswordBytes)}
	}
	return nil
}

// emailInDomain matches the part after the last "@" exactly, ignoring case.
// Subdomains of the allowed domain do not match.
func emailInDomain(email, domain string) bool {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 || domain == "" {
		return false
	}
	return strings.EqualFold(email[at+1:], strings.TrimPrefix(domain, "@"))
}
