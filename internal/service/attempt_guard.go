package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hotelportal/account-recovery/internal/auth"
	"github.com/hotelportal/account-recovery/internal/config"
	"github.com/hotelportal/account-recovery/internal/domain"
	"github.com/hotelportal/account-recovery/internal/events"
	"github.com/hotelportal/account-recovery/internal/lock"
	"github.com/hotelportal/account-recovery/internal/repository"
	apperrors "github.com/hotelportal/account-recovery/pkg/util"
)

// VerdictKind is the decision the guard reached for one credential check.
type VerdictKind string

const (
	VerdictAllow VerdictKind = "ALLOW"
	VerdictDeny  VerdictKind = "DENY"
	VerdictLock  VerdictKind = "LOCK"
	// VerdictAlreadyLocked means the account was locked by the time the guard
	// held it; nothing was mutated.
	VerdictAlreadyLocked VerdictKind = "ALREADY_LOCKED"
)

// Verdict carries the guard's decision and the account as persisted after it.
type Verdict struct {
	Kind      VerdictKind
	Remaining int
	Account   *domain.Account
}

// AttemptGuard owns the failed-attempt counter and the lock flag.
type AttemptGuard struct {
	recoveryBase
}

// NewAttemptGuard constructs the guard.
func NewAttemptGuard(cfg config.LockoutConfig, deps RecoveryDependencies) *AttemptGuard {
	return &AttemptGuard{recoveryBase: newRecoveryBase(cfg, deps)}
}

// Threshold returns the number of consecutive failures that locks an account.
func (g *AttemptGuard) Threshold() int {
	return g.threshold
}

// Evaluate checks credential against the account and records the result.
// It fails closed: any error means the caller must not treat the attempt as allowed.
func (g *AttemptGuard) Evaluate(ctx context.Context, accountID, credential string) (Verdict, error) {
	var verdict Verdict
	err := g.withLock(ctx, lock.AccountKey(accountID), func(out *outbox) error {
		var err error
		verdict, err = g.evaluate(ctx, accountID, credential, out)
		return err
	})
	if err != nil {
		return Verdict{}, err
	}
	return verdict, nil
}

func (g *AttemptGuard) evaluate(ctx context.Context, accountID, credential string, out *outbox) (Verdict, error) {
	var (
		checked       bool
		checkedSecret string
		matched       bool
	)
	for attempt := 0; attempt <= g.conflictRetries; attempt++ {
		account, err := g.loadAccount(ctx, accountID)
		if err != nil {
			return Verdict{}, err
		}

		if account.Locked {
			return Verdict{Kind: VerdictAlreadyLocked, Account: account}, nil
		}

		if !checked || account.CredentialSecret != checkedSecret {
			matched, err = auth.CredentialMatches(account.CredentialSecret, credential)
			if err != nil {
				g.logger.Error("stored credential is unusable", zap.String("account_id", accountID), zap.Error(err))
				return Verdict{}, apperrors.NewInternalError(err)
			}
			checked, checkedSecret = true, account.CredentialSecret
		}

		verdict := g.decide(account, matched)
		if verdict.Kind == VerdictAllow && account.FailedAttempts == 0 {
			return verdict, nil
		}

		err = g.call(ctx, "account.update", func(ctx context.Context) error {
			return g.accounts.Update(ctx, verdict.Account)
		})
		switch {
		case err == nil:
			g.afterWrite(verdict, out)
			return verdict, nil
		case errors.Is(err, repository.ErrVersionConflict):
			g.logger.Debug("account changed concurrently, re-evaluating",
				zap.String("account_id", accountID), zap.Int("attempt", attempt))
			continue
		case errors.Is(err, repository.ErrNotFound):
			return Verdict{}, apperrors.NewNotFound("account", map[string]any{"account_id": accountID})
		default:
			return Verdict{}, err
		}
	}
	return Verdict{}, versionConflict(accountID)
}

func (g *AttemptGuard) decide(account *domain.Account, matched bool) Verdict {
	next := account.Clone()
	if matched {
		next.FailedAttempts = 0
		return Verdict{Kind: VerdictAllow, Account: next}
	}

	next.FailedAttempts = account.FailedAttempts + 1
	if next.FailedAttempts >= g.threshold {
		lockedAt := g.now()
		next.Locked = true
		next.LockedAt = &lockedAt
		return Verdict{Kind: VerdictLock, Account: next}
	}
	return Verdict{Kind: VerdictDeny, Remaining: g.threshold - next.FailedAttempts, Account: next}
}

func (g *AttemptGuard) afterWrite(verdict Verdict, out *outbox) {
	if verdict.Kind != VerdictLock {
		return
	}
	account := verdict.Account
	g.metrics.RecordLockout()
	g.logger.Info("account locked",
		zap.String("account_id", account.ID),
		zap.Int("failed_attempts", account.FailedAttempts))
	out.add(events.Event{
		Type:      events.EventAccountLocked,
		AccountID: account.ID,
		Actor:     events.AccountActor(account.ID),
		Payload: events.AccountLockedPayload{
			FailedAttempts: account.FailedAttempts,
			LockedAt:       *account.LockedAt,
		},
	})
}
