package auth

import "errors"

var (
	ErrDomainRestricted   = errors.New("email domain is not allowed")
	ErrAlreadyVerified    = errors.New("account already exists")
	ErrInvalidOTP         = errors.New("invalid or expired otp")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("email not verified")
	ErrOTPDelivery        = errors.New("otp delivery failed")
	ErrStaleAccount       = errors.New("account changed since it was read")
	ErrInvalidToken       = errors.New("invalid session token")
)

// ValidationError reports a user-correctable problem with a request field.
// Its message is safe to return to the client verbatim.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
