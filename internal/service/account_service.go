package service

import (
	"context"
	"time"

	"github.com/hotelportal/account-recovery/internal/auth"
	"github.com/hotelportal/account-recovery/internal/config"
	"github.com/hotelportal/account-recovery/internal/domain"
	apperrors "github.com/hotelportal/account-recovery/pkg/util"
)

// AccountService serves read-only account lookups and issues session tokens
// for allowed sign-ins.
type AccountService struct {
	recoveryBase
	sessions *auth.SessionIssuer
}

// NewAccountService builds the service.
func NewAccountService(cfg config.Config, deps RecoveryDependencies) *AccountService {
	return &AccountService{
		recoveryBase: newRecoveryBase(cfg.Lockout, deps),
		sessions:     auth.NewSessionIssuer(cfg.Auth.JWTSecret, cfg.App.Name, cfg.Auth.AccessTokenTTL()),
	}
}

// Get returns the account record.
func (s *AccountService) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.loadAccount(ctx, accountID)
}

// IssueSession signs a token for an allowed sign-in. Any other outcome is refused.
func (s *AccountService) IssueSession(result LoginResult) (string, time.Time, error) {
	if result.Outcome != OutcomeAllow || result.Account == nil {
		return "", time.Time{}, apperrors.NewUnauthorized("sign-in was not allowed")
	}
	session, err := s.sessions.Issue(result.Account)
	if err != nil {
		return "", time.Time{}, apperrors.NewInternalError(err)
	}
	return session.Token, session.ExpiresAt, nil
}

// Sessions exposes the session issuer the auth middleware verifies against.
func (s *AccountService) Sessions() *auth.SessionIssuer {
	return s.sessions
}
