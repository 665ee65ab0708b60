package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/hotelportal/account-recovery/internal/api/dto"
	"github.com/hotelportal/account-recovery/internal/auth"
	"github.com/hotelportal/account-recovery/internal/domain"
	"github.com/hotelportal/account-recovery/internal/repository"
	"github.com/hotelportal/account-recovery/internal/service"
	apperrors "github.com/hotelportal/account-recovery/pkg/util"
)

// TicketsHandler manages incident ticket endpoints.
type TicketsHandler struct {
	registry *service.TicketRegistry
	workflow *service.ResolutionWorkflow
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(registry *service.TicketRegistry, workflow *service.ResolutionWorkflow) *TicketsHandler {
	return &TicketsHandler{registry: registry, workflow: workflow}
}

// CreateTicket POST /tickets. Answers 201 when a ticket was opened and 200
// with the already pending ticket otherwise.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.AccountID = strings.TrimSpace(req.AccountID)
	if req.AccountID == "" {
		return apperrors.NewValidationError("accountId required", nil)
	}
	if req.Type == "" {
		req.Type = domain.TicketTypeAccountUnlock
	}
	if req.FailedAttempts < 0 {
		return apperrors.NewValidationError("failedAttempts must not be negative", nil)
	}

	ticket, created, err := h.registry.CreateIfAbsent(c.UserContext(), req.AccountID, req.Type, req.FailedAttempts)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ListTickets GET /tickets. Filters by accountId and type, or returns the
// pending review queue for status=PENDING.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	limit := parseInt(c.Query("limit"), 20)
	offset := parseInt(c.Query("offset"), 0)

	accountID := strings.TrimSpace(c.Query("accountId"))
	status := domain.TicketStatus(strings.ToUpper(strings.TrimSpace(c.Query("status"))))
	if status != "" && !status.Valid() {
		return apperrors.NewValidationError("unknown status", map[string]any{"status": status})
	}

	var ticketType *domain.TicketType
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		t := domain.TicketType(raw)
		if !t.Valid() {
			return apperrors.NewValidationError("unknown ticket type", map[string]any{"type": raw})
		}
		ticketType = &t
	}

	var (
		tickets []domain.IncidentTicket
		err     error
	)
	switch {
	case accountID == "" && status == domain.TicketStatusPending && ticketType == nil:
		tickets, err = h.registry.ListPending(c.UserContext(), limit, offset)
	case accountID != "" && status == "":
		tickets, err = h.registry.History(c.UserContext(), accountID, ticketType, limit, offset)
	default:
		filter := repositoryFilter(accountID, ticketType, status, limit, offset)
		tickets, err = h.registry.List(c.UserContext(), filter)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponses(tickets)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.registry.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ResolveTicket PATCH /tickets/:id.
func (h *TicketsHandler) ResolveTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || !principal.IsAdmin() {
		return apperrors.NewForbidden("admin required")
	}
	var req dto.ResolveTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	adminID := principal.Account.ID
	if req.AdminID != nil && strings.TrimSpace(*req.AdminID) != "" {
		adminID = strings.TrimSpace(*req.AdminID)
	}
	decision := domain.Decision(strings.ToUpper(strings.TrimSpace(string(req.Decision))))

	ticket, err := h.workflow.Resolve(c.UserContext(), c.Params("id"), decision, adminID, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

func repositoryFilter(accountID string, ticketType *domain.TicketType, status domain.TicketStatus, limit, offset int) repository.TicketFilter {
	filter := repository.TicketFilter{Type: ticketType, Limit: limit, Offset: offset}
	if accountID != "" {
		filter.AccountID = &accountID
	}
	if status != "" {
		filter.Statuses = []domain.TicketStatus{status}
	}
	return filter
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}
