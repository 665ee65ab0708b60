package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hotelportal/account-recovery/internal/domain"
	"github.com/hotelportal/account-recovery/internal/repository"
)

type storedTicket struct {
	seq    int64
	ticket *domain.IncidentTicket
}

// TicketStore keeps incident tickets in insertion order.
type TicketStore struct {
	mu      sync.RWMutex
	seq     int64
	tickets map[string]*storedTicket
}

var _ repository.IncidentTicketRepository = (*TicketStore)(nil)

// NewTicketStore returns an empty store.
func NewTicketStore() *TicketStore {
	return &TicketStore{tickets: make(map[string]*storedTicket)}
}

func (s *TicketStore) Create(ctx context.Context, ticket *domain.IncidentTicket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket.Status == domain.TicketStatusPending {
		for _, st := range s.tickets {
			t := st.ticket
			if t.AccountID == ticket.AccountID && t.Type == ticket.Type && t.Status == domain.TicketStatusPending {
				return repository.ErrPendingTicketExists
			}
		}
	}
	s.seq++
	s.tickets[ticket.ID] = &storedTicket{seq: s.seq, ticket: ticket.Clone()}
	return nil
}

func (s *TicketStore) Resolve(ctx context.Context, ticket *domain.IncidentTicket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if st.ticket.Status != domain.TicketStatusPending {
		return repository.ErrTicketNotPending
	}
	next := st.ticket.Clone()
	next.Status = ticket.Status
	resolved := ticket.Clone()
	next.ResolvedBy = resolved.ResolvedBy
	next.ResolvedAt = resolved.ResolvedAt
	next.AdminNotes = resolved.AdminNotes
	st.ticket = next
	return nil
}

func (s *TicketStore) GetByID(ctx context.Context, id string) (*domain.IncidentTicket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return st.ticket.Clone(), nil
}

func (s *TicketStore) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.IncidentTicket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	matched := make([]*storedTicket, 0, len(s.tickets))
	for _, st := range s.tickets {
		if matches(st.ticket, filter) {
			matched = append(matched, st)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.ticket.CreatedAt.Equal(b.ticket.CreatedAt) {
			return a.ticket.CreatedAt.After(b.ticket.CreatedAt)
		}
		return a.seq > b.seq
	})

	limit, offset := repository.NormalizePage(filter.Limit, filter.Offset)
	if offset >= len(matched) {
		return []domain.IncidentTicket{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	result := make([]domain.IncidentTicket, 0, end-offset)
	for _, st := range matched[offset:end] {
		result = append(result, *st.ticket.Clone())
	}
	return result, nil
}

func matches(t *domain.IncidentTicket, filter repository.TicketFilter) bool {
	if filter.AccountID != nil && t.AccountID != *filter.AccountID {
		return false
	}
	if filter.Type != nil && t.Type != *filter.Type {
		return false
	}
	if len(filter.Statuses) == 0 {
		return true
	}
	for _, status := range filter.Statuses {
		if t.Status == status {
			return true
		}
	}
	return false
}
