package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/hotelportal/account-recovery/internal/config"
	"github.com/hotelportal/account-recovery/internal/domain"
	"github.com/hotelportal/account-recovery/internal/events"
	"github.com/hotelportal/account-recovery/internal/lock"
	"github.com/hotelportal/account-recovery/internal/repository"
	apperrors "github.com/hotelportal/account-recovery/pkg/util"
)

// accountResetError marks a failure of the account half of an approval.
type accountResetError struct {
	err error
}

func (e *accountResetError) Error() string { return "reset account: " + e.err.Error() }
func (e *accountResetError) Unwrap() error { return e.err }

// ResolutionWorkflow applies administrator decisions to pending tickets. It
// owns the only code path that clears an account's lock.
type ResolutionWorkflow struct {
	recoveryBase
}

// NewResolutionWorkflow constructs the workflow.
func NewResolutionWorkflow(cfg config.LockoutConfig, deps RecoveryDependencies) *ResolutionWorkflow {
	return &ResolutionWorkflow{recoveryBase: newRecoveryBase(cfg, deps)}
}

// Resolve moves a pending ticket to Approved or Rejected. Approval resets the
// account in the same unit of work.
func (w *ResolutionWorkflow) Resolve(ctx context.Context, ticketID string, decision domain.Decision, adminID, notes string) (*domain.IncidentTicket, error) {
	if !decision.Valid() {
		return nil, apperrors.NewValidationError("decision must be APPROVE or REJECT", map[string]any{"decision": decision})
	}
	adminID = strings.TrimSpace(adminID)
	if adminID == "" {
		return nil, apperrors.NewValidationError("admin id required", nil)
	}

	ticket, err := w.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status.IsTerminal() {
		return nil, w.alreadyResolved(ticket)
	}

	var resolved *domain.IncidentTicket
	err = w.withLock(ctx, lock.AccountKey(ticket.AccountID), func(out *outbox) error {
		var err error
		resolved, err = w.resolve(ctx, ticket, decision, adminID, notes, out)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func (w *ResolutionWorkflow) resolve(ctx context.Context, ticket *domain.IncidentTicket, decision domain.Decision, adminID, notes string, out *outbox) (*domain.IncidentTicket, error) {
	resolvedAt := w.now()
	resolved := ticket.Clone()
	resolved.Status = decision.Status()
	resolved.ResolvedBy = &adminID
	resolved.ResolvedAt = &resolvedAt
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		resolved.AdminNotes = &trimmed
	}

	err := w.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := w.call(ctx, "ticket.resolve", func(ctx context.Context) error {
			return w.tickets.Resolve(ctx, resolved)
		}); err != nil {
			return err
		}
		if decision != domain.DecisionApprove {
			return nil
		}
		if _, err := w.resetAccount(ctx, ticket.AccountID); err != nil {
			return &accountResetError{err: err}
		}
		return nil
	})

	var resetErr *accountResetError
	switch {
	case err == nil:
	case errors.As(err, &resetErr):
		return nil, w.reconcile(ctx, resolved, resetErr.err, out)
	case errors.Is(err, repository.ErrTicketNotPending):
		current, loadErr := w.loadTicket(ctx, ticket.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		return nil, w.alreadyResolved(current)
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewNotFound("incident ticket", map[string]any{"ticket_id": ticket.ID})
	case apperrors.HasCode(err, apperrors.CodeTransient):
		return nil, err
	default:
		return nil, apperrors.NewTransient("ticket resolve", err)
	}

	w.metrics.RecordResolution(string(decision))
	w.logger.Info("incident ticket resolved",
		zap.String("ticket_id", resolved.ID),
		zap.String("account_id", resolved.AccountID),
		zap.String("decision", string(decision)),
		zap.String("admin_id", adminID))
	out.add(events.Event{
		Type:      events.EventIncidentTicketResolved,
		AccountID: resolved.AccountID,
		TicketID:  resolved.ID,
		Actor:     events.AccountActor(adminID),
		Payload: events.TicketResolvedPayload{
			Decision:   decision,
			Status:     resolved.Status,
			ResolvedBy: adminID,
			Notes:      strings.TrimSpace(notes),
		},
	})
	if decision == domain.DecisionApprove {
		ticketRef := resolved.ID
		out.add(unlockedEvent(resolved.AccountID, adminID, "ticket_approval", &ticketRef))
	}
	return resolved, nil
}

// errTicketOpened reports a pending ticket that appeared between the unlock's
// queue check and its reset.
var errTicketOpened = errors.New("unlock ticket opened concurrently")

// AdminUnlock is the explicit administrative reset. A pending unlock ticket is
// approved on the way so it cannot linger past the lock it was opened for.
func (w *ResolutionWorkflow) AdminUnlock(ctx context.Context, accountID, adminID, notes string) (*domain.Account, error) {
	adminID = strings.TrimSpace(adminID)
	if adminID == "" {
		return nil, apperrors.NewValidationError("admin id required", nil)
	}
	if _, err := w.loadAccount(ctx, accountID); err != nil {
		return nil, err
	}

	for attempt := 0; attempt <= w.conflictRetries; attempt++ {
		pending, err := w.latestPending(ctx, accountID, domain.TicketTypeAccountUnlock)
		if err != nil {
			return nil, err
		}
		if pending != nil {
			_, err := w.Resolve(ctx, pending.ID, domain.DecisionApprove, adminID, notes)
			if err == nil {
				return w.loadAccount(ctx, accountID)
			}
			if !apperrors.HasCode(err, apperrors.CodeInvalidState) {
				return nil, err
			}
		}

		account, err := w.unlockWithoutTicket(ctx, accountID, adminID)
		switch {
		case errors.Is(err, errTicketOpened):
			continue
		case err != nil:
			return nil, err
		case account == nil:
			return w.loadAccount(ctx, accountID)
		default:
			return account, nil
		}
	}
	return nil, versionConflict(accountID)
}

// unlockWithoutTicket resets the account under its lock, provided no pending
// ticket exists. Ticket creation takes the same lock, so none can appear
// between the check and the reset.
func (w *ResolutionWorkflow) unlockWithoutTicket(ctx context.Context, accountID, adminID string) (*domain.Account, error) {
	var account *domain.Account
	err := w.withLock(ctx, lock.AccountKey(accountID), func(out *outbox) error {
		pending, err := w.latestPending(ctx, accountID, domain.TicketTypeAccountUnlock)
		if err != nil {
			return err
		}
		if pending != nil {
			return errTicketOpened
		}

		err = w.tx.RunInTx(ctx, func(ctx context.Context) error {
			var err error
			account, err = w.resetAccount(ctx, accountID)
			return err
		})
		if err != nil || account == nil {
			return err
		}
		w.logger.Info("account unlocked by administrator",
			zap.String("account_id", accountID),
			zap.String("admin_id", adminID))
		out.add(unlockedEvent(accountID, adminID, "admin_reset", nil))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// resetAccount clears the lockout fields. It returns nil, nil when the account
// was already clear.
func (w *ResolutionWorkflow) resetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	for attempt := 0; attempt <= w.conflictRetries; attempt++ {
		account, err := w.loadAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if !account.Locked && account.FailedAttempts == 0 && account.LockedAt == nil {
			return nil, nil
		}

		account.ClearLock()
		err = w.call(ctx, "account.update", func(ctx context.Context) error {
			return w.accounts.Update(ctx, account)
		})
		switch {
		case err == nil:
			return account, nil
		case errors.Is(err, repository.ErrVersionConflict):
			continue
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NewNotFound("account", map[string]any{"account_id": accountID})
		default:
			return nil, err
		}
	}
	return nil, versionConflict(accountID)
}

// reconcile decides what a failed account reset left behind. If the approval
// was rolled back the caller may retry; if it stuck, the records disagree and
// the failure is escalated instead of retried.
func (w *ResolutionWorkflow) reconcile(ctx context.Context, resolved *domain.IncidentTicket, cause error, out *outbox) error {
	current, err := w.loadTicket(ctx, resolved.ID)
	if err == nil && current.Status == domain.TicketStatusPending {
		if apperrors.HasCode(cause, apperrors.CodeTransient) || apperrors.HasCode(cause, apperrors.CodeConflict) {
			return cause
		}
		return apperrors.NewTransient("account reset", cause)
	}

	detail := "ticket approved but account reset failed"
	if err != nil {
		detail = "account reset failed and ticket state could not be verified"
	}
	w.metrics.RecordInconsistency()
	w.logger.Error("account recovery left records inconsistent",
		zap.String("ticket_id", resolved.ID),
		zap.String("account_id", resolved.AccountID),
		zap.String("detail", detail),
		zap.NamedError("cause", cause),
		zap.NamedError("verify_error", err))
	out.add(events.Event{
		Type:      events.EventRecoveryInconsistency,
		AccountID: resolved.AccountID,
		TicketID:  resolved.ID,
		Actor:     events.SystemActor(),
		Payload: events.RecoveryInconsistencyPayload{
			Detail: detail,
			Cause:  cause.Error(),
		},
	})
	return apperrors.NewInconsistency(detail, map[string]any{
		"ticket_id":  resolved.ID,
		"account_id": resolved.AccountID,
	}, cause)
}

func (w *ResolutionWorkflow) alreadyResolved(ticket *domain.IncidentTicket) error {
	return w.invalidState("ticket.resolve", "ticket already resolved", map[string]any{
		"ticket_id": ticket.ID,
		"status":    ticket.Status,
	})
}

func unlockedEvent(accountID, adminID, via string, ticketID *string) events.Event {
	event := events.Event{
		Type:      events.EventAccountUnlocked,
		AccountID: accountID,
		Actor:     events.AccountActor(adminID),
		Payload:   events.AccountUnlockedPayload{Via: via, TicketID: ticketID},
	}
	if ticketID != nil {
		event.TicketID = *ticketID
	}
	return event
}
