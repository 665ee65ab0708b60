package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/hotelportal/account-recovery/internal/domain"
	"github.com/hotelportal/account-recovery/internal/repository"
	apperrors "github.com/hotelportal/account-recovery/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	SubjectType domain.SubjectType
	Account     *domain.Account
}

// IsAdmin reports whether the caller holds the ADMIN role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Account != nil && p.Account.Role == domain.AccountRoleAdmin
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	sessions *SessionIssuer
	accounts repository.AccountRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(sessions *SessionIssuer, accounts repository.AccountRepository) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, accounts: accounts}
}

// Handle enforces authentication for protected routes. A token issued before
// the account was locked stops working while the lock holds.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.sessions.Verify(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	if claims.Kind != domain.SubjectTypeAccount {
		return apperrors.NewUnauthorized("unknown subject")
	}

	account, err := m.accounts.GetByID(c.UserContext(), claims.AccountID())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewUnauthorized("account not found")
		}
		return apperrors.NewTransient("account store", err)
	}
	if account.Locked {
		return apperrors.NewUnauthorized("account locked")
	}
	if account.Role != claims.Role {
		return apperrors.NewUnauthorized("role changed, sign in again")
	}

	c.Locals(principalKey, &Principal{SubjectType: claims.Kind, Account: account})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
