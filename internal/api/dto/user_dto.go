package dto

import (
	"time"

	"github.com/hotelportal/account-recovery/internal/domain"
)

// LoginAttemptRequest payload for POST /accounts/:id/login-attempt.
type LoginAttemptRequest struct {
	Credential string             `json:"credential"`
	Role       domain.AccountRole `json:"role"`
}

// EmailLoginRequest payload for POST /auth/login.
type EmailLoginRequest struct {
	Email      string             `json:"email"`
	Credential string             `json:"credential"`
	Role       domain.AccountRole `json:"role"`
}

// AuthResponse carries the session token issued on an allowed sign-in.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginResponse is returned for every evaluated sign-in attempt.
type LoginResponse struct {
	Outcome   string        `json:"outcome"`
	Reason    string        `json:"reason"`
	Message   string        `json:"message"`
	AccountID string        `json:"account_id,omitempty"`
	Remaining *int          `json:"remaining,omitempty"`
	TicketID  string        `json:"ticket_id,omitempty"`
	Auth      *AuthResponse `json:"auth,omitempty"`
}

// AccountResponse is the public account view. The credential secret is never included.
type AccountResponse struct {
	ID             string             `json:"id"`
	Email          string             `json:"email"`
	Role           domain.AccountRole `json:"role"`
	FailedAttempts int                `json:"failed_attempts"`
	Locked         bool               `json:"locked"`
	LockedAt       *time.Time         `json:"locked_at"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// UnlockRequest payload for POST /accounts/:id/unlock.
type UnlockRequest struct {
	Notes string `json:"notes"`
}

// NewAccountResponse maps the domain account to its public view.
func NewAccountResponse(account *domain.Account) AccountResponse {
	return AccountResponse{
		ID:             account.ID,
		Email:          account.Email,
		Role:           account.Role,
		FailedAttempts: account.FailedAttempts,
		Locked:         account.Locked,
		LockedAt:       account.LockedAt,
		CreatedAt:      account.CreatedAt,
		UpdatedAt:      account.UpdatedAt,
	}
}
