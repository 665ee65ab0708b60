package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hotelportal/account-recovery/internal/domain"
)

// TicketFilter captures admin search parameters.
type TicketFilter struct {
	AccountID *string
	Type      *domain.TicketType
	Statuses  []domain.TicketStatus
	Limit     int
	Offset    int
}

// IncidentTicketRepository encapsulates incident ticket persistence.
//
// Create fails with ErrPendingTicketExists when the ticket is pending and
// another pending ticket exists for the same account and type. Resolve moves a
// pending ticket to its terminal status and fails with ErrTicketNotPending if
// it is no longer pending.
type IncidentTicketRepository interface {
	Create(ctx context.Context, ticket *domain.IncidentTicket) error
	Resolve(ctx context.Context, ticket *domain.IncidentTicket) error
	GetByID(ctx context.Context, id string) (*domain.IncidentTicket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.IncidentTicket, error)
}

type incidentTicketRepository struct {
	pool *pgxpool.Pool
}

// NewIncidentTicketRepository instantiates repository.
func NewIncidentTicketRepository(pool *pgxpool.Pool) IncidentTicketRepository {
	return &incidentTicketRepository{pool: pool}
}

const ticketColumns = `id, account_id, type, status, failed_attempts, account_locked_at, created_at, resolved_by, resolved_at, admin_notes`

func (r *incidentTicketRepository) Create(ctx context.Context, ticket *domain.IncidentTicket) error {
	const query = `
        INSERT INTO incident_tickets (id, account_id, type, status, failed_attempts, account_locked_at, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := conn(ctx, r.pool).Exec(ctx, query,
		ticket.ID,
		ticket.AccountID,
		ticket.Type,
		ticket.Status,
		ticket.FailedAttempts,
		ticket.AccountLockedAt,
		ticket.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPendingTicketExists
		}
		return fmt.Errorf("insert incident ticket: %w", err)
	}
	return nil
}

func (r *incidentTicketRepository) Resolve(ctx context.Context, ticket *domain.IncidentTicket) error {
	const query = `
        UPDATE incident_tickets SET status=$1, resolved_by=$2, resolved_at=$3, admin_notes=$4
        WHERE id=$5 AND status='PENDING'`
	if !validID(ticket.ID) {
		return ErrNotFound
	}
	cmd, err := conn(ctx, r.pool).Exec(ctx, query,
		ticket.Status,
		ticket.ResolvedBy,
		ticket.ResolvedAt,
		ticket.AdminNotes,
		ticket.ID,
	)
	if err != nil {
		return fmt.Errorf("resolve incident ticket %s: %w", ticket.ID, err)
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.GetByID(ctx, ticket.ID); err != nil {
		return err
	}
	return ErrTicketNotPending
}

func (r *incidentTicketRepository) GetByID(ctx context.Context, id string) (*domain.IncidentTicket, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	query := `SELECT ` + ticketColumns + ` FROM incident_tickets WHERE id=$1`
	ticket, err := scanTicket(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch incident ticket %s: %w", id, err)
	}
	return ticket, nil
}

func (r *incidentTicketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.IncidentTicket, error) {
	base := `SELECT ` + ticketColumns + ` FROM incident_tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.AccountID != nil {
		if !validID(*filter.AccountID) {
			return nil, nil
		}
		args = append(args, *filter.AccountID)
		clauses = append(clauses, fmt.Sprintf("account_id=$%d", len(args)))
	}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		clauses = append(clauses, fmt.Sprintf("type=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit, offset := NormalizePage(filter.Limit, filter.Offset)

	// seq breaks ties between tickets created in the same instant.
	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC, seq DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incident tickets: %w", err)
	}
	defer rows.Close()

	var result []domain.IncidentTicket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.IncidentTicket, error) {
	var ticket domain.IncidentTicket
	if err := row.Scan(
		&ticket.ID,
		&ticket.AccountID,
		&ticket.Type,
		&ticket.Status,
		&ticket.FailedAttempts,
		&ticket.AccountLockedAt,
		&ticket.CreatedAt,
		&ticket.ResolvedBy,
		&ticket.ResolvedAt,
		&ticket.AdminNotes,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// NormalizePage applies the default and maximum page sizes shared by all stores.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
