package events

import (
	"time"

	"github.com/hotelportal/account-recovery/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAccountLocked          EventType = "account.locked"
	EventAccountUnlocked        EventType = "account.unlocked"
	EventIncidentTicketOpened   EventType = "incident_ticket.opened"
	EventIncidentTicketResolved EventType = "incident_ticket.resolved"
	EventRecoveryInconsistency  EventType = "recovery.inconsistency"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type      domain.SubjectType `json:"type"`
	AccountID *string            `json:"account_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	AccountID string      `json:"account_id"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// AccountLockedPayload payload.
type AccountLockedPayload struct {
	FailedAttempts int       `json:"failed_attempts"`
	LockedAt       time.Time `json:"locked_at"`
}

// AccountUnlockedPayload payload.
type AccountUnlockedPayload struct {
	Via      string  `json:"via"`
	TicketID *string `json:"ticket_id,omitempty"`
}

// TicketOpenedPayload payload.
type TicketOpenedPayload struct {
	Type           domain.TicketType `json:"type"`
	FailedAttempts int               `json:"failed_attempts"`
}

// TicketResolvedPayload payload.
type TicketResolvedPayload struct {
	Decision   domain.Decision     `json:"decision"`
	Status     domain.TicketStatus `json:"status"`
	ResolvedBy string              `json:"resolved_by"`
	Notes      string              `json:"notes,omitempty"`
}

// RecoveryInconsistencyPayload payload.
type RecoveryInconsistencyPayload struct {
	Detail string `json:"detail"`
	Cause  string `json:"cause,omitempty"`
}

// SystemActor is used for events raised by the lockout subsystem itself.
func SystemActor() Actor {
	return Actor{Type: domain.SubjectTypeSystem}
}

// AccountActor is used for events raised on behalf of an account.
func AccountActor(accountID string) Actor {
	return Actor{Type: domain.SubjectTypeAccount, AccountID: &accountID}
}
