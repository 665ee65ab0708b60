package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hotelportal/account-recovery/internal/config"
	"github.com/hotelportal/account-recovery/internal/domain"
	"github.com/hotelportal/account-recovery/internal/events"
	"github.com/hotelportal/account-recovery/internal/lock"
	"github.com/hotelportal/account-recovery/internal/repository"
	apperrors "github.com/hotelportal/account-recovery/pkg/util"
)

// TicketRegistry opens incident tickets and keeps at most one pending ticket
// per account and type.
type TicketRegistry struct {
	recoveryBase
}

// NewTicketRegistry constructs the registry.
func NewTicketRegistry(cfg config.LockoutConfig, deps RecoveryDependencies) *TicketRegistry {
	return &TicketRegistry{recoveryBase: newRecoveryBase(cfg, deps)}
}

// CreateIfAbsent returns the pending ticket for the account, opening one when
// none is pending. created reports whether this call opened it. A snapshot of
// zero or less is replaced by the account's current failure count.
//
// It serializes on the account key, so a concurrent reset either lands before
// the locked check or waits until the ticket exists and then approves it.
func (r *TicketRegistry) CreateIfAbsent(ctx context.Context, accountID string, ticketType domain.TicketType, failedAttemptsSnapshot int) (*domain.IncidentTicket, bool, error) {
	if !ticketType.Valid() {
		return nil, false, apperrors.NewValidationError("unknown ticket type", map[string]any{"type": ticketType})
	}

	var (
		ticket  *domain.IncidentTicket
		created bool
	)
	err := r.withLock(ctx, lock.AccountKey(accountID), func(out *outbox) error {
		var err error
		ticket, created, err = r.createIfAbsent(ctx, accountID, ticketType, failedAttemptsSnapshot, out)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return ticket, created, nil
}

func (r *TicketRegistry) createIfAbsent(ctx context.Context, accountID string, ticketType domain.TicketType, failedAttemptsSnapshot int, out *outbox) (*domain.IncidentTicket, bool, error) {
	account, err := r.loadAccount(ctx, accountID)
	if err != nil {
		return nil, false, err
	}
	if !account.Locked {
		return nil, false, r.invalidState("ticket.create", "account is not locked", map[string]any{"account_id": accountID})
	}

	latest, err := r.GetLatestForAccount(ctx, accountID, ticketType)
	if err != nil {
		return nil, false, err
	}
	if latest != nil {
		switch {
		case latest.Status == domain.TicketStatusPending:
			return latest, false, nil
		case approvalCoversLock(account, latest):
			return nil, false, r.invalidState("ticket.create",
				"account recovery already approved; an administrator must complete the unlock",
				map[string]any{"account_id": accountID, "ticket_id": latest.ID})
		}
	}

	snapshot := failedAttemptsSnapshot
	if snapshot <= 0 {
		snapshot = account.FailedAttempts
	}
	ticket := &domain.IncidentTicket{
		ID:              uuid.NewString(),
		AccountID:       accountID,
		Type:            ticketType,
		Status:          domain.TicketStatusPending,
		FailedAttempts:  snapshot,
		AccountLockedAt: account.LockedAt,
		CreatedAt:       r.now(),
	}

	err = r.call(ctx, "ticket.create", func(ctx context.Context) error {
		return r.tickets.Create(ctx, ticket)
	})
	if errors.Is(err, repository.ErrPendingTicketExists) {
		existing, lookupErr := r.latestPending(ctx, accountID, ticketType)
		if lookupErr != nil {
			return nil, false, lookupErr
		}
		if existing != nil {
			return existing, false, nil
		}
		return nil, false, apperrors.NewTransient("ticket create", err)
	}
	if err != nil {
		return nil, false, err
	}

	r.metrics.RecordTicketOpened(string(ticketType))
	r.logger.Info("incident ticket opened",
		zap.String("ticket_id", ticket.ID),
		zap.String("account_id", accountID),
		zap.Int("failed_attempts", snapshot))
	out.add(events.Event{
		Type:      events.EventIncidentTicketOpened,
		AccountID: accountID,
		TicketID:  ticket.ID,
		Actor:     events.AccountActor(accountID),
		Payload: events.TicketOpenedPayload{
			Type:           ticketType,
			FailedAttempts: snapshot,
		},
	})
	return ticket, true, nil
}

// GetLatestForAccount returns the most recently created ticket, or nil when
// the account has none.
func (r *TicketRegistry) GetLatestForAccount(ctx context.Context, accountID string, ticketType domain.TicketType) (*domain.IncidentTicket, error) {
	list, err := r.list(ctx, repository.TicketFilter{AccountID: &accountID, Type: &ticketType, Limit: 1})
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

// History lists an account's tickets latest-first.
func (r *TicketRegistry) History(ctx context.Context, accountID string, ticketType *domain.TicketType, limit, offset int) ([]domain.IncidentTicket, error) {
	return r.list(ctx, repository.TicketFilter{AccountID: &accountID, Type: ticketType, Limit: limit, Offset: offset})
}

// List returns tickets matching filter, latest-first.
func (r *TicketRegistry) List(ctx context.Context, filter repository.TicketFilter) ([]domain.IncidentTicket, error) {
	return r.list(ctx, filter)
}

// ListPending is the administrators' review queue.
func (r *TicketRegistry) ListPending(ctx context.Context, limit, offset int) ([]domain.IncidentTicket, error) {
	return r.list(ctx, repository.TicketFilter{
		Statuses: []domain.TicketStatus{domain.TicketStatusPending},
		Limit:    limit,
		Offset:   offset,
	})
}

// Get fetches a ticket by id.
func (r *TicketRegistry) Get(ctx context.Context, ticketID string) (*domain.IncidentTicket, error) {
	return r.loadTicket(ctx, ticketID)
}

func (b *recoveryBase) latestPending(ctx context.Context, accountID string, ticketType domain.TicketType) (*domain.IncidentTicket, error) {
	list, err := b.list(ctx, repository.TicketFilter{
		AccountID: &accountID,
		Type:      &ticketType,
		Statuses:  []domain.TicketStatus{domain.TicketStatusPending},
		Limit:     1,
	})
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (b *recoveryBase) list(ctx context.Context, filter repository.TicketFilter) ([]domain.IncidentTicket, error) {
	var list []domain.IncidentTicket
	err := b.read(ctx, "ticket.list", func(ctx context.Context) error {
		var err error
		list, err = b.tickets.ListWithFilter(ctx, filter)
		return err
	})
	return list, err
}

func (b *recoveryBase) loadAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	var account *domain.Account
	err := b.read(ctx, "account.get", func(ctx context.Context) error {
		var err error
		account, err = b.accounts.GetByID(ctx, accountID)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("account", map[string]any{"account_id": accountID})
	}
	return account, err
}

func (b *recoveryBase) loadTicket(ctx context.Context, ticketID string) (*domain.IncidentTicket, error) {
	var ticket *domain.IncidentTicket
	err := b.read(ctx, "ticket.get", func(ctx context.Context) error {
		var err error
		ticket, err = b.tickets.GetByID(ctx, ticketID)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("incident ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, err
}

// approvalCoversLock reports whether ticket is an approval issued for the
// account's current lock.
func approvalCoversLock(account *domain.Account, ticket *domain.IncidentTicket) bool {
	return ticket.Status == domain.TicketStatusApproved && openedForLock(account, ticket)
}

// openedForLock reports whether ticket belongs to the account's current lock.
// Tickets carry the lockedAt they were opened for, copied from the account
// row, so the check never compares clocks of different replicas. Tickets
// without that stamp fall back to ordering the resolution against lockedAt.
func openedForLock(account *domain.Account, ticket *domain.IncidentTicket) bool {
	if account.LockedAt == nil {
		return false
	}
	if ticket.AccountLockedAt != nil {
		return sameInstant(*ticket.AccountLockedAt, *account.LockedAt)
	}
	return ticket.ResolvedAt == nil || !ticket.ResolvedAt.Before(*account.LockedAt)
}

// sameInstant compares at the store's microsecond precision.
func sameInstant(a, b time.Time) bool {
	return a.Truncate(time.Microsecond).Equal(b.Truncate(time.Microsecond))
}
