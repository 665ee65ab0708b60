package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hotelportal/account-recovery/internal/domain"
)

// AccountRepository defines persistence access for portal accounts.
// Update is the internal-only mutation surface of the lockout subsystem: it
// writes only when the stored version equals account.Version and bumps it.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Update(ctx context.Context, account *domain.Account) error
}

type accountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns a Postgres-backed implementation.
func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &accountRepository{pool: pool}
}

const accountColumns = `id, email, role, credential_secret, failed_attempts, locked, locked_at, version, created_at, updated_at`

func (r *accountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(email)=LOWER($1)`
	return r.fetchSingle(ctx, query, email)
}

func (r *accountRepository) Update(ctx context.Context, account *domain.Account) error {
	const query = `
        UPDATE accounts SET failed_attempts=$1, locked=$2, locked_at=$3, version=version+1, updated_at=NOW()
        WHERE id=$4 AND version=$5
        RETURNING version, updated_at`

	if !validID(account.ID) {
		return ErrNotFound
	}

	err := conn(ctx, r.pool).QueryRow(ctx, query,
		account.FailedAttempts,
		account.Locked,
		account.LockedAt,
		account.ID,
		account.Version,
	).Scan(&account.Version, &account.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update account %s: %w", account.ID, err)
	}

	var exists bool
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id=$1)`, account.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check account %s: %w", account.ID, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func (r *accountRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Account, error) {
	var account domain.Account
	if err := conn(ctx, r.pool).QueryRow(ctx, query, arg).Scan(
		&account.ID,
		&account.Email,
		&account.Role,
		&account.CredentialSecret,
		&account.FailedAttempts,
		&account.Locked,
		&account.LockedAt,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch account: %w", err)
	}
	return &account, nil
}
