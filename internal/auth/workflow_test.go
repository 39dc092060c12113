package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"storeadmin/internal/auth"
	"storeadmin/internal/auth/authtest"
)

type workflowFixture struct {
	wf     *auth.Workflow
	store  *authtest.MemoryStore
	mailer *authtest.RecordingMailer
	now    time.Time
}

func (f *workflowFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func newWorkflow(t *testing.T) *workflowFixture {
	t.Helper()

	f := &workflowFixture{
		store:  authtest.NewMemoryStore(),
		mailer: &authtest.RecordingMailer{},
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.store.Now = clock

	otp := auth.NewOTPIssuer("Store Admin")
	otp.Now = clock
	sessions, err := auth.NewSessionIssuer("test-secret", 0)
	require.NoError(t, err)
	sessions.Now = clock

	f.wf = &auth.Workflow{
		Accounts:      f.store,
		Hasher:        auth.NewBcryptHasher(bcrypt.MinCost),
		OTP:           otp,
		Sessions:      sessions,
		Mailer:        f.mailer,
		AllowedDomain: "gmail.com",
		Now:           clock,
	}
	return f
}

func annRegistration() auth.RegisterRequest {
	return auth.RegisterRequest{Name: "Ann", Email: "ann@gmail.com", Password: "pw123456", Locale: "en"}
}

func TestRegisterRejectsForeignDomains(t *testing.T) {
	f := newWorkflow(t)

	for _, email := range []string{
		"ann@yahoo.com",
		"ann@mail.gmail.com",
		"ann@gmail.com.evil.io",
		"gmail.com",
		"ann@",
		"",
	} {
		req := annRegistration()
		req.Email = email
		_, err := f.wf.Register(context.Background(), req)
		assert.ErrorIs(t, err, auth.ErrDomainRestricted, email)
	}
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, 0, f.mailer.Count())
}

func TestRegisterDomainIsCaseInsensitive(t *testing.T) {
	f := newWorkflow(t)
	req := annRegistration()
	req.Email = "  Ann@GMail.COM "

	account, err := f.wf.Register(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Ann@GMail.COM", account.Email)
	assert.NotNil(t, f.store.Get("Ann@GMail.COM"))
	assert.Nil(t, f.store.Get("ann@gmail.com"))
}

func TestRegisterKeepsVerifiedMixedCaseAccount(t *testing.T) {
	f := newWorkflow(t)
	hash, err := f.wf.Hasher.Hash("pw123456")
	require.NoError(t, err)
	f.store.Put(auth.Account{Name: "Ann", Email: "Ann@gmail.com", PasswordHash: hash, IsVerified: true})

	req := annRegistration()
	req.Email = "Ann@gmail.com"
	req.Password = "other-password"
	_, err = f.wf.Register(context.Background(), req)
	assert.ErrorIs(t, err, auth.ErrAlreadyVerified)
	assert.Equal(t, 1, f.store.Len())
	assert.Equal(t, 0, f.mailer.Count())

	_, token, err := f.wf.Login(context.Background(), "Ann@gmail.com", "pw123456")
	require.NoError(t, err)
	assert.NotEmpty(t, token.Value)
}

func TestRegisterValidatesFields(t *testing.T) {
	f := newWorkflow(t)

	tests := []struct {
		name  string
		edit  func(*auth.RegisterRequest)
		field string
	}{
		{"blank name", func(r *auth.RegisterRequest) { r.Name = "  " }, "name"},
		{"short password", func(r *auth.RegisterRequest) { r.Password = "short" }, "password"},
		{"password over bcrypt limit", func(r *auth.RegisterRequest) { r.Password = strings.Repeat("p", auth.MaxPasswordBytes+1) }, "password"},
		{"bad address", func(r *auth.RegisterRequest) { r.Email = "a b@gmail.com" }, "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := annRegistration()
			tt.edit(&req)
			_, err := f.wf.Register(context.Background(), req)

			var verr *auth.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, 0, f.mailer.Count())
}

func TestRegisterAcceptsLongestBcryptPassword(t *testing.T) {
	f := newWorkflow(t)
	req := annRegistration()
	req.Password = strings.Repeat("p", auth.MaxPasswordBytes)

	_, err := f.wf.Register(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, f.mailer.Count())
}

func TestRegisterCreatesPendingAccountAndSendsCode(t *testing.T) {
	f := newWorkflow(t)

	account, err := f.wf.Register(context.Background(), annRegistration())
	require.NoError(t, err)
	assert.False(t, account.IsVerified)

	stored := f.store.Get("ann@gmail.com")
	require.NotNil(t, stored)
	assert.Equal(t, "Ann", stored.Name)
	assert.NotEqual(t, "pw123456", stored.PasswordHash)
	require.NotNil(t, stored.OTP)
	require.NotNil(t, stored.OTPExpiry)
	assert.Equal(t, f.now.Add(10*time.Minute), *stored.OTPExpiry)

	require.Equal(t, 1, f.mailer.Count())
	msg := f.mailer.Messages[0]
	assert.Equal(t, "ann@gmail.com", msg.To)
	assert.Equal(t, "Your Team Verification Code", msg.Subject)
	code := f.mailer.LastCode("ann@gmail.com")
	assert.Len(t, code, 6)
	assert.Equal(t, auth.DigestOTP(code), *stored.OTP)
}

func TestRegisterAgainReplacesPendingCode(t *testing.T) {
	f := newWorkflow(t)
	ctx := context.Background()

	_, err := f.wf.Register(ctx, annRegistration())
	require.NoError(t, err)
	f.advance(time.Minute)
	req := annRegistration()
	req.Name = "Ann B."
	_, err = f.wf.Register(ctx, req)
	require.NoError(t, err)

	stored := f.store.Get("ann@gmail.com")
	assert.Equal(t, 1, f.store.Len())
	assert.Equal(t, "Ann B.", stored.Name)
	assert.Equal(t, auth.DigestOTP(f.mailer.LastCode("ann@gmail.com")), *stored.OTP)
	assert.Equal(t, f.now.Add(10*time.Minute), *stored.OTPExpiry)
	assert.Equal(t, 2, f.mailer.Count())
}

func TestRegisterLeavesVerifiedAccountUntouched(t *testing.T) {
	f := newWorkflow(t)
	original := auth.Account{
		ID:           "acc-1",
		Name:         "Ann",
		Email:        "ann@gmail.com",
		PasswordHash: "$2a$04$existinghash",
		IsVerified:   true,
	}
	f.store.Put(original)

	req := annRegistration()
	req.Name = "Mallory"
	req.Password = "takeover123"
	_, err := f.wf.Register(context.Background(), req)
	assert.ErrorIs(t, err, auth.ErrAlreadyVerified)

	stored := f.store.Get("ann@gmail.com")
	assert.Equal(t, original.Name, stored.Name)
	assert.Equal(t, original.PasswordHash, stored.PasswordHash)
	assert.True(t, stored.IsVerified)
	assert.Nil(t, stored.OTP)
	assert.Equal(t, 0, f.mailer.Count())
}

// raceStore reports no account on lookup and then loses the write to a
// concurrent verification.
type raceStore struct {
	*authtest.MemoryStore
}

func (raceStore) FindByEmail(context.Context, string) (*auth.Account, error) {
	return nil, nil
}

func TestRegisterStorePreconditionWins(t *testing.T) {
	f := newWorkflow(t)
	f.store.Put(auth.Account{Name: "Ann", Email: "ann@gmail.com", PasswordHash: "h", IsVerified: true})
	f.wf.Accounts = raceStore{f.store}

	_, err := f.wf.Register(context.Background(), annRegistration())
	assert.ErrorIs(t, err, auth.ErrAlreadyVerified)
	assert.Equal(t, "h", f.store.Get("ann@gmail.com").PasswordHash)
	assert.Equal(t, 0, f.mailer.Count())
}

func TestRegisterSurfacesDeliveryFailure(t *testing.T) {
	f := newWorkflow(t)
	f.mailer.Err = errors.New("smtp: 554 rejected")

	_, err := f.wf.Register(context.Background(), annRegistration())
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrOTPDelivery)

	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok)
	assert.Equal(t, "OTP_DELIVERY_FAILED", oopsErr.Code())
}

func TestRegisterSurfacesStoreFailure(t *testing.T) {
	f := newWorkflow(t)
	f.store.Err = errors.New("connection reset")

	_, err := f.wf.Register(context.Background(), annRegistration())
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrAlreadyVerified)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestVerifyOTP(t *testing.T) {
	f := newWorkflow(t)
	ctx := context.Background()
	_, err := f.wf.Register(ctx, annRegistration())
	require.NoError(t, err)
	code := f.mailer.LastCode("ann@gmail.com")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, _, err = f.wf.VerifyOTP(ctx, "ann@gmail.com", wrong)
	assert.ErrorIs(t, err, auth.ErrInvalidOTP)
	assert.False(t, f.store.Get("ann@gmail.com").IsVerified)

	account, token, err := f.wf.VerifyOTP(ctx, "ann@gmail.com", code)
	require.NoError(t, err)
	assert.NotEmpty(t, token.Value)
	assert.True(t, account.IsVerified)

	stored := f.store.Get("ann@gmail.com")
	assert.True(t, stored.IsVerified)
	assert.Nil(t, stored.OTP)
	assert.Nil(t, stored.OTPExpiry)

	claims, err := f.wf.Sessions.Parse(token.Value)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, claims.UserID)
	assert.Equal(t, "Ann", claims.Name)

	_, _, err = f.wf.VerifyOTP(ctx, "ann@gmail.com", code)
	assert.ErrorIs(t, err, auth.ErrInvalidOTP)
}

func TestVerifyOTPExpiryBoundary(t *testing.T) {
	f := newWorkflow(t)
	ctx := context.Background()
	_, err := f.wf.Register(ctx, annRegistration())
	require.NoError(t, err)
	code := f.mailer.LastCode("ann@gmail.com")

	f.advance(auth.OTPTTL + time.Second)
	_, _, err = f.wf.VerifyOTP(ctx, "ann@gmail.com", code)
	assert.ErrorIs(t, err, auth.ErrInvalidOTP)

	f.advance(-time.Second)
	_, _, err = f.wf.VerifyOTP(ctx, "ann@gmail.com", code)
	assert.NoError(t, err)
}

// reregisterStore lets a registration retry replace the pending account right
// after VerifyOTP has read it.
type reregisterStore struct {
	*authtest.MemoryStore
	replace auth.PendingAccount
}

func (s reregisterStore) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	a, err := s.MemoryStore.FindByEmail(ctx, email)
	if err != nil || a == nil {
		return a, err
	}
	if _, err := s.MemoryStore.CreateOrReplacePending(ctx, s.replace); err != nil {
		return nil, err
	}
	return a, nil
}

func TestVerifyOTPLosesToRegistrationRetry(t *testing.T) {
	f := newWorkflow(t)
	ctx := context.Background()
	_, err := f.wf.Register(ctx, annRegistration())
	require.NoError(t, err)
	code := f.mailer.LastCode("ann@gmail.com")

	retry := auth.PendingAccount{
		Name:         "Ann",
		Email:        "ann@gmail.com",
		PasswordHash: "retry-hash",
		OTPDigest:    auth.DigestOTP("654321"),
		OTPExpiry:    f.now.Add(auth.OTPTTL),
	}
	f.wf.Accounts = reregisterStore{MemoryStore: f.store, replace: retry}

	_, _, err = f.wf.VerifyOTP(ctx, "ann@gmail.com", code)
	assert.ErrorIs(t, err, auth.ErrInvalidOTP)

	stored := f.store.Get("ann@gmail.com")
	assert.False(t, stored.IsVerified)
	assert.Equal(t, "retry-hash", stored.PasswordHash)
	require.NotNil(t, stored.OTP)
	assert.Equal(t, auth.DigestOTP("654321"), *stored.OTP)
}

func TestVerifyOTPUnknownEmail(t *testing.T) {
	f := newWorkflow(t)
	_, _, err := f.wf.VerifyOTP(context.Background(), "nobody@gmail.com", "123456")
	assert.ErrorIs(t, err, auth.ErrInvalidOTP)
}

func TestLogin(t *testing.T) {
	f := newWorkflow(t)
	ctx := context.Background()
	hash, err := f.wf.Hasher.Hash("pw123456")
	require.NoError(t, err)
	f.store.Put(auth.Account{ID: "v", Name: "Ann", Email: "ann@gmail.com", PasswordHash: hash, IsVerified: true})
	f.store.Put(auth.Account{ID: "p", Name: "Bob", Email: "bob@gmail.com", PasswordHash: hash})

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"success", "ann@gmail.com", "pw123456", nil},
		{"email case differs", "ANN@gmail.com", "pw123456", auth.ErrInvalidCredentials},
		{"wrong password", "ann@gmail.com", "wrongpw", auth.ErrInvalidCredentials},
		{"unknown email", "zed@gmail.com", "pw123456", auth.ErrInvalidCredentials},
		{"unverified", "bob@gmail.com", "pw123456", auth.ErrNotVerified},
		{"unverified wrong password", "bob@gmail.com", "wrongpw", auth.ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, token, err := f.wf.Login(ctx, tt.email, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, token.Value)
				return
			}
			require.NoError(t, err)
			claims, err := f.wf.Sessions.Parse(token.Value)
			require.NoError(t, err)
			assert.Equal(t, "v", claims.UserID)
		})
	}
}

func TestLoginStoreFailure(t *testing.T) {
	f := newWorkflow(t)
	f.store.Err = errors.New("timeout")

	_, _, err := f.wf.Login(context.Background(), "ann@gmail.com", "pw123456")
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
}
