package service

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hotelportal/account-recovery/internal/events"
	apperrors "github.com/hotelportal/account-recovery/pkg/util"
)

func TestAttemptGuard_CountsFailuresAndLocksAtThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.guard.Evaluate(ctx, testAccountID, "wrong")
	require.NoError(t, err)
	assert.Equal(t, VerdictDeny, v.Kind)
	assert.Equal(t, 2, v.Remaining)

	v, err = f.guard.Evaluate(ctx, testAccountID, "wrong")
	require.NoError(t, err)
	assert.Equal(t, VerdictDeny, v.Kind)
	assert.Equal(t, 1, v.Remaining)

	v, err = f.guard.Evaluate(ctx, testAccountID, "wrong")
	require.NoError(t, err)
	assert.Equal(t, VerdictLock, v.Kind)

	account := f.account(t)
	assert.True(t, account.Locked)
	assert.Equal(t, 3, account.FailedAttempts)
	require.NotNil(t, account.LockedAt)
	assert.Equal(t, 1, f.recorder.count(events.EventAccountLocked))
}

func TestAttemptGuard_SuccessResetsCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.guard.Evaluate(ctx, testAccountID, "wrong")
	require.NoError(t, err)
	assert.Equal(t, 1, f.account(t).FailedAttempts)

	v, err := f.guard.Evaluate(ctx, testAccountID, testCredential)
	require.NoError(t, err)
	assert.Equal(t, VerdictAllow, v.Kind)
	assert.Equal(t, 0, f.account(t).FailedAttempts)
}

func TestAttemptGuard_CleanSuccessDoesNotWrite(t *testing.T) {
	f := newFixture(t)

	v, err := f.guard.Evaluate(context.Background(), testAccountID, testCredential)
	require.NoError(t, err)
	assert.Equal(t, VerdictAllow, v.Kind)
	assert.Equal(t, int32(0), f.accounts.updates.Load())
}

func TestAttemptGuard_LockedAccountIsNotMutated(t *testing.T) {
	f := newFixture(t)
	f.lockOut(t)
	before := f.account(t)

	v, err := f.guard.Evaluate(context.Background(), testAccountID, testCredential)
	require.NoError(t, err)
	assert.Equal(t, VerdictAlreadyLocked, v.Kind)

	after := f.account(t)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, 3, after.FailedAttempts)
	assert.True(t, after.Locked)
}

func TestAttemptGuard_RetriesVersionConflicts(t *testing.T) {
	f := newFixture(t)
	f.accounts.conflictsLeft.Store(2)

	v, err := f.guard.Evaluate(context.Background(), testAccountID, "wrong")
	require.NoError(t, err)
	assert.Equal(t, VerdictDeny, v.Kind)
	assert.Equal(t, 1, f.account(t).FailedAttempts)
}

func TestAttemptGuard_GivesUpAfterPersistentConflicts(t *testing.T) {
	f := newFixture(t)
	f.accounts.conflictsLeft.Store(100)

	_, err := f.guard.Evaluate(context.Background(), testAccountID, "wrong")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	assert.Equal(t, http.StatusConflict, apperrors.ToDomainError(err).HTTPStatus)
	assert.Equal(t, 0, f.account(t).FailedAttempts)
}

func TestAttemptGuard_FailsClosedWhenStoreIsDown(t *testing.T) {
	f := newFixture(t)
	f.accounts.failGets.Store(true)

	v, err := f.guard.Evaluate(context.Background(), testAccountID, testCredential)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTransient))
	assert.NotEqual(t, VerdictAllow, v.Kind)
}

func TestAttemptGuard_FailedWriteIsNotAllowed(t *testing.T) {
	f := newFixture(t)
	_, err := f.guard.Evaluate(context.Background(), testAccountID, "wrong")
	require.NoError(t, err)

	f.accounts.failUpdates.Store(true)
	v, err := f.guard.Evaluate(context.Background(), testAccountID, testCredential)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTransient))
	assert.Empty(t, v.Kind)
}

func TestAttemptGuard_UnknownAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.guard.Evaluate(context.Background(), "missing", "whatever")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestAttemptGuard_ConcurrentFailuresLockExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 10
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		kinds = map[VerdictKind]int{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.guard.Evaluate(ctx, testAccountID, "wrong")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			kinds[v.Kind]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, kinds[VerdictLock])
	assert.Equal(t, 2, kinds[VerdictDeny])
	assert.Equal(t, workers-3, kinds[VerdictAlreadyLocked])
	assert.Equal(t, 3, f.account(t).FailedAttempts)
	assert.Equal(t, 1, f.recorder.count(events.EventAccountLocked))
}

func TestAttemptGuard_SlowSubscriberDoesNotHoldAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subscriber := newBlockingSubscriber(t)
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	dispatcher.Subscribe(events.EventAccountLocked, subscriber.handle)

	deps := f.deps()
	deps.Dispatcher = dispatcher
	guard := NewAttemptGuard(f.cfg, deps)

	for i := 0; i < f.cfg.Threshold-1; i++ {
		_, err := guard.Evaluate(ctx, testAccountID, "wrong")
		require.NoError(t, err)
	}

	locked := make(chan Verdict, 1)
	go func() {
		verdict, err := guard.Evaluate(ctx, testAccountID, "wrong")
		assert.NoError(t, err)
		locked <- verdict
	}()
	subscriber.waitEntered(t)

	verdict, err := guard.Evaluate(ctx, testAccountID, testCredential)
	subscriber.release()
	require.NoError(t, err)
	assert.Equal(t, VerdictAlreadyLocked, verdict.Kind)
	assert.Equal(t, VerdictLock, (<-locked).Kind)
}
