package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hotelportal/account-recovery/internal/domain"
	"github.com/hotelportal/account-recovery/internal/events"
)

type capturePublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *capturePublisher) Publish(_ context.Context, routingKey string, _ events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *capturePublisher) Close() {}

func TestNotificationService_ForwardsRecoveryEvents(t *testing.T) {
	f := newFixture(t)
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	publisher := &capturePublisher{}
	NewNotificationService(dispatcher, publisher, zap.NewNop()).RegisterHandlers()

	deps := f.deps()
	deps.Dispatcher = dispatcher
	guard := NewAttemptGuard(f.cfg, deps)
	registry := NewTicketRegistry(f.cfg, deps)
	workflow := NewResolutionWorkflow(f.cfg, deps)
	orchestrator := NewLoginOrchestrator(f.cfg, deps, guard, registry)

	var last LoginResult
	for i := 0; i < 3; i++ {
		var err error
		last, err = orchestrator.Attempt(context.Background(), LoginRequest{
			AccountID:  testAccountID,
			Credential: "wrong",
			Role:       domain.AccountRoleCustomer,
		})
		require.NoError(t, err)
	}
	require.NotEmpty(t, last.TicketID)

	_, err := workflow.Resolve(context.Background(), last.TicketID, domain.DecisionApprove, testAdminID, "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		string(events.EventAccountLocked),
		string(events.EventIncidentTicketOpened),
		string(events.EventIncidentTicketResolved),
		string(events.EventAccountUnlocked),
	}, publisher.keys)
}
