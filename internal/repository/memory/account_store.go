// Package memory provides in-process implementations of the repository
// contracts. The stores are safe for concurrent use and honour the same
// version and uniqueness rules as the Postgres implementations.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hotelportal/account-recovery/internal/domain"
	"github.com/hotelportal/account-recovery/internal/repository"
)

// AccountStore keeps accounts in a map keyed by id.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	byEmail  map[string]string
}

var _ repository.AccountRepository = (*AccountStore)(nil)

// NewAccountStore returns an empty store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[string]*domain.Account),
		byEmail:  make(map[string]string),
	}
}

// Put inserts or replaces an account as registration would.
func (s *AccountStore) Put(account *domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := account.Clone()
	if cp.Version == 0 {
		cp.Version = 1
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = now
	}
	if prev, ok := s.accounts[cp.ID]; ok {
		delete(s.byEmail, strings.ToLower(prev.Email))
	}
	s.accounts[cp.ID] = cp
	s.byEmail[strings.ToLower(cp.Email)] = cp.ID
}

func (s *AccountStore) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return account.Clone(), nil
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.accounts[id].Clone(), nil
}

func (s *AccountStore) Update(ctx context.Context, account *domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[account.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != account.Version {
		return repository.ErrVersionConflict
	}

	next := current.Clone()
	next.FailedAttempts = account.FailedAttempts
	next.Locked = account.Locked
	next.LockedAt = nil
	if account.LockedAt != nil {
		t := *account.LockedAt
		next.LockedAt = &t
	}
	next.Version++
	next.UpdatedAt = time.Now().UTC()
	s.accounts[account.ID] = next

	account.Version = next.Version
	account.UpdatedAt = next.UpdatedAt
	return nil
}
