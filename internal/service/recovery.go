package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hotelportal/account-recovery/internal/config"
	"github.com/hotelportal/account-recovery/internal/events"
	"github.com/hotelportal/account-recovery/internal/lock"
	"github.com/hotelportal/account-recovery/internal/observability"
	"github.com/hotelportal/account-recovery/internal/repository"
	apperrors "github.com/hotelportal/account-recovery/pkg/util"
)

// RecoveryDependencies bundles the collaborators shared by the lockout and
// recovery components.
type RecoveryDependencies struct {
	Accounts   repository.AccountRepository
	Tickets    repository.IncidentTicketRepository
	Tx         repository.TxRunner
	Locker     lock.Locker
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      func() time.Time
}

// processLocker serializes components that were not given a shared Locker.
var processLocker = lock.NewKeyedMutex()

type recoveryBase struct {
	accounts   repository.AccountRepository
	tickets    repository.IncidentTicketRepository
	tx         repository.TxRunner
	locker     lock.Locker
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	clock      func() time.Time

	threshold        int
	conflictRetries  int
	transientRetries int
	storeTimeout     time.Duration
}

func newRecoveryBase(cfg config.LockoutConfig, deps RecoveryDependencies) recoveryBase {
	b := recoveryBase{
		accounts:         deps.Accounts,
		tickets:          deps.Tickets,
		tx:               deps.Tx,
		locker:           deps.Locker,
		dispatcher:       deps.Dispatcher,
		metrics:          deps.Metrics,
		logger:           deps.Logger,
		clock:            deps.Clock,
		threshold:        cfg.Threshold,
		conflictRetries:  cfg.ConflictRetries,
		transientRetries: cfg.StoreTransientRetries,
		storeTimeout:     cfg.StoreTimeout(),
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if b.clock == nil {
		b.clock = time.Now
	}
	if b.locker == nil {
		b.locker = processLocker
	}
	if b.threshold <= 0 {
		b.threshold = 3
	}
	if b.conflictRetries < 0 {
		b.conflictRetries = 0
	}
	if b.transientRetries < 0 {
		b.transientRetries = 0
	}
	return b
}

func (b *recoveryBase) now() time.Time {
	return b.clock().UTC()
}

// call runs one store operation under the store timeout. Business sentinels
// pass through untouched; everything else becomes a Transient error.
func (b *recoveryBase) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, b.storeTimeout)
	defer cancel()

	err := fn(callCtx)
	if err == nil || isStoreVerdict(err) {
		return err
	}
	b.metrics.RecordTransient(op)
	b.logger.Warn("record store call failed", zap.String("operation", op), zap.Error(err))
	return apperrors.NewTransient(op, err)
}

// read is call with bounded retries. Only idempotent operations go through it.
func (b *recoveryBase) read(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= b.transientRetries; attempt++ {
		if attempt > 0 {
			if waitErr := sleepCtx(ctx, backoff(attempt)); waitErr != nil {
				return err
			}
		}
		err = b.call(ctx, op, fn)
		if !apperrors.HasCode(err, apperrors.CodeTransient) {
			return err
		}
	}
	return err
}

// acquire takes the per-key lock, waiting at most the store timeout.
func (b *recoveryBase) acquire(ctx context.Context, key string) (lock.Release, error) {
	lockCtx, cancel := context.WithTimeout(ctx, b.storeTimeout)
	defer cancel()

	release, err := b.locker.Acquire(lockCtx, key)
	if err != nil {
		b.metrics.RecordTransient("lock.acquire")
		return nil, apperrors.NewTransient("record lock", err)
	}
	return release, nil
}

// outbox collects events raised while a lock is held.
type outbox []events.Event

func (o *outbox) add(event events.Event) {
	*o = append(*o, event)
}

// withLock runs fn while holding key. Events fn queues are published only
// after the lock is released, whether or not fn failed.
func (b *recoveryBase) withLock(ctx context.Context, key string, fn func(out *outbox) error) error {
	release, err := b.acquire(ctx, key)
	if err != nil {
		return err
	}

	var out outbox
	err = func() error {
		defer release()
		return fn(&out)
	}()

	for _, event := range out {
		b.publish(ctx, event)
	}
	return err
}

func (b *recoveryBase) invalidState(op, message string, details map[string]any) error {
	b.metrics.RecordInvalidState(op)
	b.logger.Warn("rejected operation in invalid state",
		zap.String("operation", op),
		zap.String("reason", message),
		zap.Any("details", details))
	return apperrors.NewInvalidState(message, details)
}

func (b *recoveryBase) publish(ctx context.Context, event events.Event) {
	if b.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now()
	}
	_ = b.dispatcher.Publish(ctx, event)
}

// versionConflict reports that the account kept changing under every retry.
// The caller may resubmit.
func versionConflict(accountID string) error {
	return apperrors.NewConflict("account changed concurrently, retry the request", map[string]any{"account_id": accountID})
}

func isStoreVerdict(err error) bool {
	return errors.Is(err, repository.ErrNotFound) ||
		errors.Is(err, repository.ErrVersionConflict) ||
		errors.Is(err, repository.ErrPendingTicketExists) ||
		errors.Is(err, repository.ErrTicketNotPending)
}

func backoff(attempt int) time.Duration {
	return time.Duration(attempt) * 50 * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
