package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotelportal/account-recovery/internal/domain"
	"github.com/hotelportal/account-recovery/internal/events"
	apperrors "github.com/hotelportal/account-recovery/pkg/util"
)

func TestLoginOrchestrator_LockoutOpensTicket(t *testing.T) {
	f := newFixture(t)

	first := f.login(t, "wrong")
	assert.Equal(t, OutcomeDeny, first.Outcome)
	assert.Equal(t, ReasonInvalidCredential, first.Reason)
	require.NotNil(t, first.Remaining)
	assert.Equal(t, 2, *first.Remaining)

	second := f.login(t, "wrong")
	require.NotNil(t, second.Remaining)
	assert.Equal(t, 1, *second.Remaining)

	third := f.login(t, "wrong")
	assert.Equal(t, OutcomeLock, third.Outcome)
	assert.Equal(t, ReasonAccountLocked, third.Reason)
	assert.Nil(t, third.Remaining)
	require.NotEmpty(t, third.TicketID)

	ticket, err := f.tickets.Get(context.Background(), third.TicketID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, ticket.Status)
	assert.Equal(t, 3, ticket.FailedAttempts)
	assert.Equal(t, 1, f.recorder.count(events.EventIncidentTicketOpened))
}

func TestLoginOrchestrator_LockedAccountIgnoresCorrectCredential(t *testing.T) {
	f := newFixture(t)
	ticketID := f.lockOut(t)
	before := f.account(t)

	result := f.login(t, testCredential)
	assert.Equal(t, OutcomeDeny, result.Outcome)
	assert.Equal(t, ReasonLockedPendingReview, result.Reason)
	assert.Equal(t, ticketID, result.TicketID)

	after := f.account(t)
	assert.Equal(t, before.FailedAttempts, after.FailedAttempts)
	assert.Equal(t, before.Version, after.Version)

	pending, err := f.tickets.ListPending(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestLoginOrchestrator_ApprovalRestoresAccess(t *testing.T) {
	f := newFixture(t)
	ticketID := f.lockOut(t)

	_, err := f.workflow.Resolve(context.Background(), ticketID, domain.DecisionApprove, testAdminID, "")
	require.NoError(t, err)

	result := f.login(t, testCredential)
	assert.Equal(t, OutcomeAllow, result.Outcome)
	assert.Equal(t, ReasonAuthenticated, result.Reason)
	require.NotNil(t, result.Account)
	assert.Equal(t, testAccountID, result.Account.ID)
}

func TestLoginOrchestrator_RejectionThenNewRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticketID := f.lockOut(t)

	_, err := f.workflow.Resolve(ctx, ticketID, domain.DecisionReject, testAdminID, "")
	require.NoError(t, err)

	result := f.login(t, testCredential)
	assert.Equal(t, OutcomeDeny, result.Outcome)
	assert.Equal(t, ReasonLockedTicketRejected, result.Reason)
	assert.Equal(t, ticketID, result.TicketID)

	next, created, err := f.tickets.CreateIfAbsent(ctx, testAccountID, domain.TicketTypeAccountUnlock, 0)
	require.NoError(t, err)
	assert.True(t, created)

	result = f.login(t, testCredential)
	assert.Equal(t, ReasonLockedPendingReview, result.Reason)
	assert.Equal(t, next.ID, result.TicketID)
}

func TestLoginOrchestrator_RoleMismatchLeavesCounter(t *testing.T) {
	f := newFixture(t)
	f.putAccount(t, "manager-1", "manager@example.com", domain.AccountRoleHotelManager)

	result, err := f.orchestrator.Attempt(context.Background(), LoginRequest{
		Email:      "Manager@Example.com",
		Credential: "wrong",
		Role:       domain.AccountRoleCustomer,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeny, result.Outcome)
	assert.Equal(t, ReasonRoleMismatch, result.Reason)

	account, err := f.accountStore.GetByID(context.Background(), "manager-1")
	require.NoError(t, err)
	assert.Equal(t, 0, account.FailedAttempts)

	result, err = f.orchestrator.Attempt(context.Background(), LoginRequest{
		Email:      "manager@example.com",
		Credential: testCredential,
		Role:       domain.AccountRoleHotelManager,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllow, result.Outcome)
}

func TestLoginOrchestrator_LockWithoutTicketAsksForOne(t *testing.T) {
	f := newFixture(t)
	f.lockOutWithoutTicket(t)

	result := f.login(t, testCredential)
	assert.Equal(t, OutcomeDeny, result.Outcome)
	assert.Equal(t, ReasonLockedTicketRequired, result.Reason)
	assert.Empty(t, result.TicketID)
}

func TestLoginOrchestrator_StaleDecisionsDoNotExplainNewLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticketID := f.lockOut(t)

	_, err := f.workflow.Resolve(ctx, ticketID, domain.DecisionApprove, testAdminID, "")
	require.NoError(t, err)

	f.lockOutWithoutTicket(t)
	result := f.login(t, testCredential)
	assert.Equal(t, ReasonLockedTicketRequired, result.Reason)

	fresh, created, err := f.tickets.CreateIfAbsent(ctx, testAccountID, domain.TicketTypeAccountUnlock, 0)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, ticketID, fresh.ID)
}

func TestLoginOrchestrator_StaleRejectionIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.lockOutWithoutTicket(t)
	lockedAt := *f.account(t).LockedAt

	resolvedAt := lockedAt.Add(-time.Hour)
	admin := testAdminID
	require.NoError(t, f.ticketStore.Create(context.Background(), &domain.IncidentTicket{
		ID:         "rejected-earlier",
		AccountID:  testAccountID,
		Type:       domain.TicketTypeAccountUnlock,
		Status:     domain.TicketStatusRejected,
		CreatedAt:  resolvedAt.Add(-time.Hour),
		ResolvedBy: &admin,
		ResolvedAt: &resolvedAt,
	}))

	result := f.login(t, testCredential)
	assert.Equal(t, ReasonLockedTicketRequired, result.Reason)
	assert.Empty(t, result.TicketID)
}

func TestLoginOrchestrator_StoreOutageFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.accounts.failGets.Store(true)

	result, err := f.orchestrator.Attempt(context.Background(), LoginRequest{
		AccountID:  testAccountID,
		Credential: testCredential,
		Role:       domain.AccountRoleCustomer,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTransient))
	assert.NotEqual(t, OutcomeAllow, result.Outcome)
}

func TestLoginOrchestrator_ValidatesRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.orchestrator.Attempt(context.Background(), LoginRequest{Credential: "x", Role: domain.AccountRoleCustomer})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = f.orchestrator.Attempt(context.Background(), LoginRequest{AccountID: testAccountID, Credential: "x", Role: "GUEST"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = f.orchestrator.Attempt(context.Background(), LoginRequest{Email: "nobody@example.com", Credential: "x", Role: domain.AccountRoleCustomer})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestLoginOrchestrator_ConcurrentFailuresOpenOneTicket(t *testing.T) {
	f := newFixture(t)

	const workers = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		locks   int
		tickets = map[string]struct{}{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.orchestrator.Attempt(context.Background(), LoginRequest{
				AccountID:  testAccountID,
				Credential: "wrong",
				Role:       domain.AccountRoleCustomer,
			})
			if !assert.NoError(t, err) {
				return
			}
			assert.NotEqual(t, OutcomeAllow, result.Outcome)
			mu.Lock()
			defer mu.Unlock()
			if result.Outcome == OutcomeLock {
				locks++
			}
			if result.TicketID != "" {
				tickets[result.TicketID] = struct{}{}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, locks)
	assert.LessOrEqual(t, len(tickets), 1)

	pending, err := f.tickets.ListPending(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Equal(t, 3, f.account(t).FailedAttempts)
}

func TestLoginResult_Message(t *testing.T) {
	remaining := 2
	assert.Contains(t, LoginResult{Reason: ReasonInvalidCredential, Remaining: &remaining}.Message(), "2 attempt(s)")
	assert.Contains(t, LoginResult{Reason: ReasonAccountLocked, TicketID: "t"}.Message(), "sent for review")
	assert.Equal(t, "account locked, awaiting review", LoginResult{Reason: ReasonLockedPendingReview}.Message())
}
