package domain

import "time"

// TicketType enumerates incident ticket kinds.
type TicketType string

const (
	TicketTypeAccountUnlock TicketType = "account_unlock"
)

// Valid reports whether t is a known ticket type.
func (t TicketType) Valid() bool {
	return t == TicketTypeAccountUnlock
}

// TicketStatus enumerates lifecycle states for incident tickets.
type TicketStatus string

const (
	TicketStatusPending  TicketStatus = "PENDING"
	TicketStatusApproved TicketStatus = "APPROVED"
	TicketStatusRejected TicketStatus = "REJECTED"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusPending, TicketStatusApproved, TicketStatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether the status can no longer change.
func (s TicketStatus) IsTerminal() bool {
	switch s {
	case TicketStatusApproved, TicketStatusRejected:
		return true
	}
	return false
}

// Decision is an administrator's verdict on a pending ticket.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// Status maps a decision to the terminal status it produces.
func (d Decision) Status() TicketStatus {
	if d == DecisionApprove {
		return TicketStatusApproved
	}
	return TicketStatusRejected
}

// IncidentTicket is a recovery request tying a locked account to an
// administrative decision. Tickets are never deleted. AccountLockedAt is the
// account's lockedAt when the ticket was opened and names the lock it covers.
type IncidentTicket struct {
	ID              string
	AccountID       string
	Type            TicketType
	Status          TicketStatus
	FailedAttempts  int
	AccountLockedAt *time.Time
	CreatedAt       time.Time
	ResolvedBy      *string
	ResolvedAt      *time.Time
	AdminNotes      *string
}

// Clone returns a deep copy of the ticket.
func (t *IncidentTicket) Clone() *IncidentTicket {
	if t == nil {
		return nil
	}
	cp := *t
	if t.AccountLockedAt != nil {
		v := *t.AccountLockedAt
		cp.AccountLockedAt = &v
	}
	if t.ResolvedBy != nil {
		v := *t.ResolvedBy
		cp.ResolvedBy = &v
	}
	if t.ResolvedAt != nil {
		v := *t.ResolvedAt
		cp.ResolvedAt = &v
	}
	if t.AdminNotes != nil {
		v := *t.AdminNotes
		cp.AdminNotes = &v
	}
	return &cp
}
