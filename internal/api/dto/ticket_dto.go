package dto

import (
	"time"

	"github.com/hotelportal/account-recovery/internal/domain"
)

// CreateTicketRequest payload for POST /tickets.
type CreateTicketRequest struct {
	AccountID      string            `json:"accountId"`
	Type           domain.TicketType `json:"type"`
	FailedAttempts int               `json:"failedAttempts"`
}

// ResolveTicketRequest payload for PATCH /tickets/:id. AdminID defaults to the caller.
type ResolveTicketRequest struct {
	Decision domain.Decision `json:"decision"`
	AdminID  *string         `json:"adminId"`
	Notes    string          `json:"notes"`
}

// TicketResponse is the wire form of an incident ticket.
type TicketResponse struct {
	ID             string              `json:"id"`
	AccountID      string              `json:"account_id"`
	Type           domain.TicketType   `json:"type"`
	Status         domain.TicketStatus `json:"status"`
	FailedAttempts int                 `json:"failed_attempts"`
	AccountLocked  *time.Time          `json:"account_locked_at,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	ResolvedBy     *string             `json:"resolved_by"`
	ResolvedAt     *time.Time          `json:"resolved_at"`
	AdminNotes     *string             `json:"admin_notes,omitempty"`
}

// NewTicketResponse maps the domain ticket to its wire form.
func NewTicketResponse(ticket *domain.IncidentTicket) TicketResponse {
	return TicketResponse{
		ID:             ticket.ID,
		AccountID:      ticket.AccountID,
		Type:           ticket.Type,
		Status:         ticket.Status,
		FailedAttempts: ticket.FailedAttempts,
		AccountLocked:  ticket.AccountLockedAt,
		CreatedAt:      ticket.CreatedAt,
		ResolvedBy:     ticket.ResolvedBy,
		ResolvedAt:     ticket.ResolvedAt,
		AdminNotes:     ticket.AdminNotes,
	}
}

// NewTicketResponses maps a list latest-first as given.
func NewTicketResponses(tickets []domain.IncidentTicket) []TicketResponse {
	items := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, NewTicketResponse(&tickets[i]))
	}
	return items
}
