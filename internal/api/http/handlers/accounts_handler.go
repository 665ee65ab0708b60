package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hotelportal/account-recovery/internal/api/dto"
	"github.com/hotelportal/account-recovery/internal/auth"
	"github.com/hotelportal/account-recovery/internal/service"
	apperrors "github.com/hotelportal/account-recovery/pkg/util"
)

// AccountsHandler serves account reads and the administrative unlock.
type AccountsHandler struct {
	accounts *service.AccountService
	workflow *service.ResolutionWorkflow
}

// NewAccountsHandler constructs handler.
func NewAccountsHandler(accounts *service.AccountService, workflow *service.ResolutionWorkflow) *AccountsHandler {
	return &AccountsHandler{accounts: accounts, workflow: workflow}
}

// Get handles GET /accounts/:id.
func (h *AccountsHandler) Get(c *fiber.Ctx) error {
	account, err := h.accounts.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}

// Unlock handles POST /accounts/:id/unlock.
func (h *AccountsHandler) Unlock(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || !principal.IsAdmin() {
		return apperrors.NewForbidden("admin required")
	}
	var req dto.UnlockRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}

	account, err := h.workflow.AdminUnlock(c.UserContext(), c.Params("id"), principal.Account.ID, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}
