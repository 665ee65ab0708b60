package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/hotelportal/account-recovery/internal/api/dto"
	"github.com/hotelportal/account-recovery/internal/domain"
	"github.com/hotelportal/account-recovery/internal/service"
	apperrors "github.com/hotelportal/account-recovery/pkg/util"
)

// LoginHandler exposes the sign-in endpoints.
type LoginHandler struct {
	orchestrator *service.LoginOrchestrator
	accounts     *service.AccountService
}

// NewLoginHandler constructs handler.
func NewLoginHandler(orchestrator *service.LoginOrchestrator, accounts *service.AccountService) *LoginHandler {
	return &LoginHandler{orchestrator: orchestrator, accounts: accounts}
}

// AttemptByID handles POST /accounts/:id/login-attempt.
func (h *LoginHandler) AttemptByID(c *fiber.Ctx) error {
	var req dto.LoginAttemptRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return h.attempt(c, service.LoginRequest{
		AccountID:  c.Params("id"),
		Credential: req.Credential,
		Role:       normalizeRole(req.Role),
	})
}

// AttemptByEmail handles POST /auth/login.
func (h *LoginHandler) AttemptByEmail(c *fiber.Ctx) error {
	var req dto.EmailLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return h.attempt(c, service.LoginRequest{
		Email:      strings.TrimSpace(req.Email),
		Credential: req.Credential,
		Role:       normalizeRole(req.Role),
	})
}

// attempt answers 200 for every evaluated outcome. Denials are results, so
// only failures to evaluate reach the error envelope.
func (h *LoginHandler) attempt(c *fiber.Ctx, req service.LoginRequest) error {
	result, err := h.orchestrator.Attempt(c.UserContext(), req)
	if err != nil {
		return err
	}

	resp := dto.LoginResponse{
		Outcome:   string(result.Outcome),
		Reason:    string(result.Reason),
		Message:   result.Message(),
		Remaining: result.Remaining,
		TicketID:  result.TicketID,
	}
	if result.Account != nil {
		resp.AccountID = result.Account.ID
	}
	if result.Outcome == service.OutcomeAllow {
		token, exp, err := h.accounts.IssueSession(result)
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		resp.Auth = &dto.AuthResponse{Token: token, ExpiresAt: exp}
	}
	return c.JSON(fiber.Map{"data": resp})
}

func normalizeRole(role domain.AccountRole) domain.AccountRole {
	return domain.AccountRole(strings.ToUpper(strings.TrimSpace(string(role))))
}
