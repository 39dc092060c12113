package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountColumnNames = []string{
	"id", "name", "email", "password_hash", "is_verified", "otp", "otp_expiry", "created_at", "updated_at",
}

func newPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStore(mock), mock
}

func TestPostgresFindByEmail(t *testing.T) {
	store, mock := newPostgresStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	digest := DigestOTP("123456")
	expiry := created.Add(OTPTTL)

	mock.ExpectQuery("SELECT .* FROM accounts WHERE email=\\$1").
		WithArgs("ann@gmail.com").
		WillReturnRows(pgxmock.NewRows(accountColumnNames).
			AddRow("acc-1", "Ann", "ann@gmail.com", "hash", false, &digest, &expiry, created, created))

	a, err := store.FindByEmail(context.Background(), "ann@gmail.com")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "acc-1", a.ID)
	assert.Equal(t, digest, *a.OTP)
	assert.Equal(t, expiry, *a.OTPExpiry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByEmailMissing(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectQuery("SELECT .* FROM accounts WHERE email=\\$1").
		WithArgs("nobody@gmail.com").
		WillReturnError(pgx.ErrNoRows)

	a, err := store.FindByEmail(context.Background(), "nobody@gmail.com")
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByEmailRetriesTransientErrors(t *testing.T) {
	store, mock := newPostgresStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .* FROM accounts WHERE email=\\$1").
		WithArgs("ann@gmail.com").
		WillReturnError(errors.New("conn reset"))
	mock.ExpectQuery("SELECT .* FROM accounts WHERE email=\\$1").
		WithArgs("ann@gmail.com").
		WillReturnRows(pgxmock.NewRows(accountColumnNames).
			AddRow("acc-1", "Ann", "ann@gmail.com", "hash", true, (*string)(nil), (*time.Time)(nil), created, created))

	a, err := store.FindByEmail(context.Background(), "ann@gmail.com")
	require.NoError(t, err)
	assert.True(t, a.IsVerified)
	assert.Nil(t, a.OTP)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByEmailGivesUp(t *testing.T) {
	store, mock := newPostgresStore(t)

	for i := 0; i < readAttempts; i++ {
		mock.ExpectQuery("SELECT .* FROM accounts WHERE email=\\$1").
			WithArgs("ann@gmail.com").
			WillReturnError(errors.New("conn refused"))
	}

	_, err := store.FindByEmail(context.Background(), "ann@gmail.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conn refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateOrReplacePending(t *testing.T) {
	store, mock := newPostgresStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiry := created.Add(OTPTTL)
	digest := DigestOTP("123456")

	mock.ExpectQuery("(?s)INSERT INTO accounts .* ON CONFLICT \\(email\\) DO UPDATE .* WHERE accounts.is_verified = FALSE").
		WithArgs(pgxmock.AnyArg(), "Ann", "ann@gmail.com", "hash", digest, expiry).
		WillReturnRows(pgxmock.NewRows(accountColumnNames).
			AddRow("acc-1", "Ann", "ann@gmail.com", "hash", false, &digest, &expiry, created, created))

	a, err := store.CreateOrReplacePending(context.Background(), PendingAccount{
		Name:         "Ann",
		Email:        "ann@gmail.com",
		PasswordHash: "hash",
		OTPDigest:    digest,
		OTPExpiry:    expiry,
	})
	require.NoError(t, err)
	assert.Equal(t, "acc-1", a.ID)
	assert.False(t, a.IsVerified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateOrReplacePendingVerified(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectQuery("INSERT INTO accounts").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.CreateOrReplacePending(context.Background(), PendingAccount{Email: "ann@gmail.com", OTPExpiry: time.Now()})
	assert.ErrorIs(t, err, ErrAlreadyVerified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveClearsOTP(t *testing.T) {
	store, mock := newPostgresStore(t)

	digest := DigestOTP("123456")

	mock.ExpectExec(`UPDATE accounts(?s).*WHERE id=\$7 AND otp=\$8`).
		WithArgs("Ann", "ann@gmail.com", "hash", true, (*string)(nil), (*time.Time)(nil), "acc-1", digest).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.Save(context.Background(), &Account{
		ID:           "acc-1",
		Name:         "Ann",
		Email:        "ann@gmail.com",
		PasswordHash: "hash",
		IsVerified:   true,
	}, digest)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveRejectsReplacedOTP(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectExec("UPDATE accounts").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "acc-1", DigestOTP("123456")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.Save(context.Background(), &Account{ID: "acc-1", IsVerified: true}, DigestOTP("123456"))
	assert.ErrorIs(t, err, ErrStaleAccount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListVerified(t *testing.T) {
	store, mock := newPostgresStore(t)
	newer := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	older := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("(?s)SELECT .* FROM accounts\\s+WHERE is_verified\\s+ORDER BY created_at DESC").
		WillReturnRows(pgxmock.NewRows(accountColumnNames).
			AddRow("b", "Bob", "bob@gmail.com", "h", true, (*string)(nil), (*time.Time)(nil), newer, newer).
			AddRow("a", "Ann", "ann@gmail.com", "h", true, (*string)(nil), (*time.Time)(nil), older, older))

	accounts, err := store.ListVerified(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "Bob", accounts[0].Name)
	assert.Equal(t, "Ann", accounts[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListVerifiedEmpty(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectQuery("(?s)SELECT .* FROM accounts").
		WillReturnRows(pgxmock.NewRows(accountColumnNames))

	accounts, err := store.ListVerified(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, accounts)
	assert.Empty(t, accounts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
