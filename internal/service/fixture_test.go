package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hotelportal/account-recovery/internal/auth"
	"github.com/hotelportal/account-recovery/internal/config"
	"github.com/hotelportal/account-recovery/internal/domain"
	"github.com/hotelportal/account-recovery/internal/events"
	"github.com/hotelportal/account-recovery/internal/lock"
	"github.com/hotelportal/account-recovery/internal/observability"
	"github.com/hotelportal/account-recovery/internal/repository"
	"github.com/hotelportal/account-recovery/internal/repository/memory"
)

const (
	testAccountID  = "7d3c2a6e-0b41-4c55-9a0e-3f7f1d2c8a10"
	testEmail      = "guest@example.com"
	testCredential = "correct horse battery staple"
	testAdminID    = "admin-1"
)

// stepClock returns strictly increasing instants, one second apart.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) Publish(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) Subscribe(events.EventType, events.EventHandler) {}

func (r *eventRecorder) count(eventType events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// flakyAccounts wraps an account store with switchable failures.
type flakyAccounts struct {
	repository.AccountRepository
	failGets      atomic.Bool
	failUpdates   atomic.Bool
	conflictsLeft atomic.Int32
	updates       atomic.Int32
}

func (f *flakyAccounts) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if f.failGets.Load() {
		return nil, errors.New("connection refused")
	}
	return f.AccountRepository.GetByID(ctx, id)
}

func (f *flakyAccounts) Update(ctx context.Context, account *domain.Account) error {
	f.updates.Add(1)
	if f.failUpdates.Load() {
		return errors.New("connection reset by peer")
	}
	if f.conflictsLeft.Load() > 0 {
		f.conflictsLeft.Add(-1)
		return repository.ErrVersionConflict
	}
	return f.AccountRepository.Update(ctx, account)
}

// flakyTickets wraps a ticket store with switchable failures.
type flakyTickets struct {
	repository.IncidentTicketRepository
	failCreates  atomic.Bool
	failResolves atomic.Bool
}

func (f *flakyTickets) Create(ctx context.Context, ticket *domain.IncidentTicket) error {
	if f.failCreates.Load() {
		return errors.New("i/o timeout")
	}
	return f.IncidentTicketRepository.Create(ctx, ticket)
}

func (f *flakyTickets) Resolve(ctx context.Context, ticket *domain.IncidentTicket) error {
	if f.failResolves.Load() {
		return errors.New("i/o timeout")
	}
	return f.IncidentTicketRepository.Resolve(ctx, ticket)
}

type txBufferKey struct{}

type txBuffer struct {
	resolves []*domain.IncidentTicket
}

// bufferedTx applies ticket resolutions staged inside a unit of work only when
// the unit succeeds, so a failed unit leaves the ticket store as it was.
type bufferedTx struct {
	tickets repository.IncidentTicketRepository
}

func (b bufferedTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	buf := &txBuffer{}
	if err := fn(context.WithValue(ctx, txBufferKey{}, buf)); err != nil {
		return err
	}
	for _, ticket := range buf.resolves {
		if err := b.tickets.Resolve(ctx, ticket); err != nil {
			return err
		}
	}
	return nil
}

// bufferedTickets stages Resolve calls made inside a bufferedTx.
type bufferedTickets struct {
	repository.IncidentTicketRepository
}

func (b bufferedTickets) Resolve(ctx context.Context, ticket *domain.IncidentTicket) error {
	if buf, ok := ctx.Value(txBufferKey{}).(*txBuffer); ok {
		buf.resolves = append(buf.resolves, ticket.Clone())
		return nil
	}
	return b.IncidentTicketRepository.Resolve(ctx, ticket)
}

// blockingSubscriber parks the publishing goroutine until released.
type blockingSubscriber struct {
	entered chan struct{}
	unblock chan struct{}
	once    sync.Once
	release func()
}

func newBlockingSubscriber(t *testing.T) *blockingSubscriber {
	b := &blockingSubscriber{entered: make(chan struct{}, 1), unblock: make(chan struct{})}
	b.release = sync.OnceFunc(func() { close(b.unblock) })
	t.Cleanup(b.release)
	return b
}

func (b *blockingSubscriber) handle(context.Context, events.Event) error {
	b.once.Do(func() { b.entered <- struct{}{} })
	<-b.unblock
	return nil
}

func (b *blockingSubscriber) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-b.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber was never called")
	}
}

type fixture struct {
	cfg          config.LockoutConfig
	accountStore *memory.AccountStore
	ticketStore  *memory.TicketStore
	accounts     *flakyAccounts
	ticketRepo   *flakyTickets
	recorder     *eventRecorder
	registry     *prometheus.Registry
	metrics      *observability.Metrics
	clock        *stepClock
	locker       *lock.KeyedMutex

	guard        *AttemptGuard
	tickets      *TicketRegistry
	workflow     *ResolutionWorkflow
	orchestrator *LoginOrchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		cfg: config.LockoutConfig{
			Threshold:             3,
			ConflictRetries:       3,
			StoreTimeoutMillis:    500,
			StoreTransientRetries: 1,
		},
		accountStore: memory.NewAccountStore(),
		ticketStore:  memory.NewTicketStore(),
		recorder:     &eventRecorder{},
		registry:     prometheus.NewRegistry(),
		clock:        newStepClock(),
		locker:       lock.NewKeyedMutex(),
	}
	f.accounts = &flakyAccounts{AccountRepository: f.accountStore}
	f.ticketRepo = &flakyTickets{IncidentTicketRepository: f.ticketStore}
	f.metrics = observability.NewMetrics(f.registry)

	deps := f.deps()
	f.guard = NewAttemptGuard(f.cfg, deps)
	f.tickets = NewTicketRegistry(f.cfg, deps)
	f.workflow = NewResolutionWorkflow(f.cfg, deps)
	f.orchestrator = NewLoginOrchestrator(f.cfg, deps, f.guard, f.tickets)

	f.putAccount(t, testAccountID, testEmail, domain.AccountRoleCustomer)
	return f
}

func (f *fixture) deps() RecoveryDependencies {
	return RecoveryDependencies{
		Accounts:   f.accounts,
		Tickets:    f.ticketRepo,
		Tx:         memory.TxRunner{},
		Locker:     f.locker,
		Dispatcher: f.recorder,
		Metrics:    f.metrics,
		Clock:      f.clock.Now,
	}
}

func (f *fixture) putAccount(t *testing.T, id, email string, role domain.AccountRole) {
	t.Helper()
	secret, err := auth.HashPassword(testCredential, bcrypt.MinCost)
	require.NoError(t, err)
	f.accountStore.Put(&domain.Account{
		ID:               id,
		Email:            email,
		Role:             role,
		CredentialSecret: secret,
	})
}

func (f *fixture) account(t *testing.T) *domain.Account {
	t.Helper()
	account, err := f.accountStore.GetByID(context.Background(), testAccountID)
	require.NoError(t, err)
	return account
}

func (f *fixture) login(t *testing.T, credential string) LoginResult {
	t.Helper()
	result, err := f.orchestrator.Attempt(context.Background(), LoginRequest{
		AccountID:  testAccountID,
		Credential: credential,
		Role:       domain.AccountRoleCustomer,
	})
	require.NoError(t, err)
	return result
}

// lockOut fails the threshold number of times and returns the opened ticket id.
func (f *fixture) lockOut(t *testing.T) string {
	t.Helper()
	var last LoginResult
	for i := 0; i < f.cfg.Threshold; i++ {
		last = f.login(t, "wrong")
	}
	require.Equal(t, OutcomeLock, last.Outcome)
	return last.TicketID
}

// lockOutWithoutTicket locks the account while ticket creation is failing, so
// the account ends up locked with no pending ticket.
func (f *fixture) lockOutWithoutTicket(t *testing.T) {
	t.Helper()
	f.ticketRepo.failCreates.Store(true)
	defer f.ticketRepo.failCreates.Store(false)

	var last LoginResult
	for i := 0; i < f.cfg.Threshold; i++ {
		last = f.login(t, "wrong")
	}
	require.Equal(t, OutcomeLock, last.Outcome)
	require.Empty(t, last.TicketID)
}
