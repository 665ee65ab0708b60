package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hotelportal/account-recovery/internal/config"
	"github.com/hotelportal/account-recovery/internal/domain"
	"github.com/hotelportal/account-recovery/internal/repository"
	apperrors "github.com/hotelportal/account-recovery/pkg/util"
)

// Outcome is the terminal result of a sign-in attempt.
type Outcome string

const (
	OutcomeAllow Outcome = "ALLOW"
	OutcomeDeny  Outcome = "DENY"
	OutcomeLock  Outcome = "LOCK"
)

// Reason is a stable code explaining an outcome.
type Reason string

const (
	ReasonAuthenticated              Reason = "AUTHENTICATED"
	ReasonInvalidCredential          Reason = "INVALID_CREDENTIAL"
	ReasonRoleMismatch               Reason = "ROLE_MISMATCH"
	ReasonAccountLocked              Reason = "ACCOUNT_LOCKED"
	ReasonLockedTicketRequired       Reason = "LOCKED_TICKET_REQUIRED"
	ReasonLockedPendingReview        Reason = "LOCKED_PENDING_REVIEW"
	ReasonLockedTicketRejected       Reason = "LOCKED_TICKET_REJECTED"
	ReasonLockedRecoveryInconsistent Reason = "LOCKED_RECOVERY_INCONSISTENT"
)

// LoginRequest identifies the account by id or by email.
type LoginRequest struct {
	AccountID  string
	Email      string
	Credential string
	Role       domain.AccountRole
}

// LoginResult is what a sign-in request is told.
type LoginResult struct {
	Outcome   Outcome
	Reason    Reason
	Remaining *int
	TicketID  string
	Account   *domain.Account
}

// Message renders the user-facing explanation for the result.
func (r LoginResult) Message() string {
	switch r.Reason {
	case ReasonAuthenticated:
		return "signed in"
	case ReasonInvalidCredential:
		if r.Remaining != nil {
			return fmt.Sprintf("wrong credential, %d attempt(s) remain before the account is locked", *r.Remaining)
		}
		return "wrong credential"
	case ReasonRoleMismatch:
		return "account is not registered for this role"
	case ReasonAccountLocked:
		if r.TicketID != "" {
			return "account locked after repeated failures; an unlock request was sent for review"
		}
		return "account locked after repeated failures; submit an unlock request"
	case ReasonLockedTicketRequired:
		return "account locked; submit an unlock request"
	case ReasonLockedPendingReview:
		return "account locked, awaiting review"
	case ReasonLockedTicketRejected:
		return "account locked, unlock request rejected; submit a new one"
	case ReasonLockedRecoveryInconsistent:
		return "account locked; recovery was approved but not applied, contact support"
	}
	return string(r.Reason)
}

// LoginOrchestrator runs the sign-in decision procedure.
type LoginOrchestrator struct {
	recoveryBase
	guard    *AttemptGuard
	registry *TicketRegistry
}

// NewLoginOrchestrator composes the guard and the registry.
func NewLoginOrchestrator(cfg config.LockoutConfig, deps RecoveryDependencies, guard *AttemptGuard, registry *TicketRegistry) *LoginOrchestrator {
	return &LoginOrchestrator{
		recoveryBase: newRecoveryBase(cfg, deps),
		guard:        guard,
		registry:     registry,
	}
}

// Attempt evaluates one sign-in request: lookup, lock check, role check,
// credential check, and ticket opening when the check locks the account.
func (o *LoginOrchestrator) Attempt(ctx context.Context, req LoginRequest) (LoginResult, error) {
	if err := validateLogin(req); err != nil {
		return LoginResult{}, err
	}

	account, err := o.lookup(ctx, req)
	if err != nil {
		return LoginResult{}, err
	}

	if account.Locked {
		return o.finish(o.lockedResult(ctx, account))
	}

	if account.Role != req.Role {
		return o.finish(LoginResult{Outcome: OutcomeDeny, Reason: ReasonRoleMismatch, Account: account}, nil)
	}

	verdict, err := o.guard.Evaluate(ctx, account.ID, req.Credential)
	if err != nil {
		return LoginResult{}, err
	}

	switch verdict.Kind {
	case VerdictAllow:
		return o.finish(LoginResult{Outcome: OutcomeAllow, Reason: ReasonAuthenticated, Account: verdict.Account}, nil)
	case VerdictDeny:
		remaining := verdict.Remaining
		return o.finish(LoginResult{Outcome: OutcomeDeny, Reason: ReasonInvalidCredential, Remaining: &remaining, Account: verdict.Account}, nil)
	case VerdictAlreadyLocked:
		return o.finish(o.lockedResult(ctx, verdict.Account))
	case VerdictLock:
		result := LoginResult{Outcome: OutcomeLock, Reason: ReasonAccountLocked, Account: verdict.Account}
		if ticket := o.openTicket(ctx, verdict.Account); ticket != nil {
			result.TicketID = ticket.ID
		}
		return o.finish(result, nil)
	}
	return LoginResult{}, apperrors.NewInternalError(fmt.Errorf("unknown verdict %q", verdict.Kind))
}

func (o *LoginOrchestrator) lookup(ctx context.Context, req LoginRequest) (*domain.Account, error) {
	if req.AccountID != "" {
		return o.loadAccount(ctx, req.AccountID)
	}

	var account *domain.Account
	err := o.read(ctx, "account.get_by_email", func(ctx context.Context) error {
		var err error
		account, err = o.accounts.GetByEmail(ctx, req.Email)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("account", nil)
	}
	return account, err
}

// lockedResult explains a locked account by its latest unlock ticket. It never
// clears the lock itself.
func (o *LoginOrchestrator) lockedResult(ctx context.Context, account *domain.Account) (LoginResult, error) {
	latest, err := o.registry.GetLatestForAccount(ctx, account.ID, domain.TicketTypeAccountUnlock)
	if err != nil {
		return LoginResult{}, err
	}

	result := LoginResult{Outcome: OutcomeDeny, Reason: ReasonLockedTicketRequired, Account: account}
	if latest == nil {
		return result, nil
	}

	switch latest.Status {
	case domain.TicketStatusPending:
		result.Reason = ReasonLockedPendingReview
		result.TicketID = latest.ID
	case domain.TicketStatusRejected:
		if openedForLock(account, latest) {
			result.Reason = ReasonLockedTicketRejected
			result.TicketID = latest.ID
		}
	case domain.TicketStatusApproved:
		if approvalCoversLock(account, latest) {
			o.metrics.RecordInconsistency()
			o.logger.Error("locked account has an approved unlock ticket",
				zap.String("account_id", account.ID),
				zap.String("ticket_id", latest.ID))
			result.Reason = ReasonLockedRecoveryInconsistent
			result.TicketID = latest.ID
		}
	}
	return result, nil
}

// openTicket gives a freshly locked account a recovery path. The lock is
// already committed, so a failure here is logged and the caller still learns
// about the lock.
func (o *LoginOrchestrator) openTicket(ctx context.Context, account *domain.Account) *domain.IncidentTicket {
	var lastErr error
	for attempt := 0; attempt <= o.transientRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff(attempt)); err != nil {
				break
			}
		}
		ticket, _, err := o.registry.CreateIfAbsent(ctx, account.ID, domain.TicketTypeAccountUnlock, account.FailedAttempts)
		if err == nil {
			return ticket
		}
		lastErr = err
		if !apperrors.HasCode(err, apperrors.CodeTransient) {
			break
		}
	}
	o.logger.Error("could not open unlock ticket for locked account",
		zap.String("account_id", account.ID),
		zap.Error(lastErr))
	return nil
}

func (o *LoginOrchestrator) finish(result LoginResult, err error) (LoginResult, error) {
	if err != nil {
		return LoginResult{}, err
	}
	o.metrics.RecordLoginOutcome(string(result.Outcome), string(result.Reason))
	if result.Account != nil {
		o.logger.Debug("login attempt evaluated",
			zap.String("account_id", result.Account.ID),
			zap.String("outcome", string(result.Outcome)),
			zap.String("reason", string(result.Reason)))
	}
	return result, nil
}

func validateLogin(req LoginRequest) error {
	details := map[string]any{}
	if strings.TrimSpace(req.AccountID) == "" && strings.TrimSpace(req.Email) == "" {
		details["account"] = "account id or email required"
	}
	if req.Credential == "" {
		details["credential"] = "required"
	}
	if !req.Role.Valid() {
		details["role"] = "must be CUSTOMER, HOTEL_MANAGER or ADMIN"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid login request", details)
	}
	return nil
}
