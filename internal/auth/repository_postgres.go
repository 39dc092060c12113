package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

// DBTX is the subset of *pgxpool.Pool the Postgres store needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const accountColumns = `id, name, email, password_hash, is_verified, otp, otp_expiry, created_at, updated_at`

type PostgresStore struct {
	DB DBTX
}

func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{DB: db}
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	var found *Account
	err := retryRead(ctx, func(ctx context.Context) error {
		row := s.DB.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email=$1`, email)
		a, err := scanAccount(row)
		if errors.Is(err, pgx.ErrNoRows) {
			found = nil
			return nil
		}
		if err != nil {
			return err
		}
		found = a
		return nil
	})
	if err != nil {
		return nil, oops.In("account_store").With("email", email).Wrapf(err, "find account")
	}
	return found, nil
}

func (s *PostgresStore) CreateOrReplacePending(ctx context.Context, p PendingAccount) (*Account, error) {
	// The WHERE on the conflict branch makes the verified check and the write
	// one statement; a verified row produces no RETURNING row.
	row := s.DB.QueryRow(ctx, `
		INSERT INTO accounts (id, name, email, password_hash, is_verified, otp, otp_expiry)
		VALUES ($1, $2, $3, $4, FALSE, $5, $6)
		ON CONFLICT (email) DO UPDATE
		SET name = EXCLUDED.name,
		    password_hash = EXCLUDED.password_hash,
		    is_verified = FALSE,
		    otp = EXCLUDED.otp,
		    otp_expiry = EXCLUDED.otp_expiry,
		    updated_at = NOW()
		WHERE accounts.is_verified = FALSE
		RETURNING `+accountColumns,
		uuid.NewString(), p.Name, p.Email, p.PasswordHash, p.OTPDigest, p.OTPExpiry.UTC(),
	)

	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlreadyVerified
	}
	if err != nil {
		return nil, oops.In("account_store").With("email", p.Email).Wrapf(err, "upsert pending account")
	}
	return a, nil
}

func (s *PostgresStore) Save(ctx context.Context, a *Account, expectedOTP string) error {
	var otpExpiry *time.Time
	if a.OTPExpiry != nil {
		t := a.OTPExpiry.UTC()
		otpExpiry = &t
	}

	tag, err := s.DB.Exec(ctx, `
		UPDATE accounts
		SET name=$1, email=$2, password_hash=$3, is_verified=$4, otp=$5, otp_expiry=$6, updated_at=NOW()
		WHERE id=$7 AND otp=$8
	`, a.Name, a.Email, a.PasswordHash, a.IsVerified, a.OTP, otpExpiry, a.ID, expectedOTP)
	if err != nil {
		return oops.In("account_store").With("id", a.ID).Wrapf(err, "save account")
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleAccount
	}
	return nil
}

func (s *PostgresStore) ListVerified(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := retryRead(ctx, func(ctx context.Context) error {
		rows, err := s.DB.Query(ctx, `
			SELECT `+accountColumns+`
			FROM accounts
			WHERE is_verified
			ORDER BY created_at DESC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		accounts = accounts[:0]
		for rows.Next() {
			a, err := scanAccount(rows)
			if err != nil {
				return err
			}
			accounts = append(accounts, *a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, oops.In("account_store").Wrapf(err, "list verified accounts")
	}
	if accounts == nil {
		accounts = []Account{}
	}
	return accounts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*Account, error) {
	var a Account
	if err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Email,
		&a.PasswordHash,
		&a.IsVerified,
		&a.OTP,
		&a.OTPExpiry,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}
