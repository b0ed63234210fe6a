package breaker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDownstream = errors.New("downstream unavailable")

func failing(context.Context) error { return errDownstream }
func succeeding(context.Context) error { return nil }

// clockFor pins the breaker to a controllable clock.
func clockFor(b *Breaker) *time.Time {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return &now
}

func TestBreaker_OpensAtFailureThreshold(t *testing.T) {
	b := New("text-ml", Config{FailureThreshold: 5, RecoveryTimeout: 60 * time.Second, SuccessThreshold: 2})
	clockFor(b)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		err := b.Call(ctx, failing)
		require.ErrorIs(t, err, errDownstream)
		require.Equal(t, StateClosed, b.State(), "breaker must stay CLOSED before the threshold")
	}

	// Fifth consecutive failure opens the breaker
	err := b.Call(ctx, failing)
	require.ErrorIs(t, err, errDownstream)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_FailFastWhileOpen(t *testing.T) {
	b := New("text-ml", Config{FailureThreshold: 5, RecoveryTimeout: 60 * time.Second, SuccessThreshold: 2})
	clockFor(b)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = b.Call(ctx, failing)
	}
	require.Equal(t, StateOpen, b.State())

	// Call 6 before the recovery timeout: rejected without invoking fn
	var invoked bool
	err := b.Call(ctx, func(context.Context) error {
		invoked = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, invoked, "wrapped function must not run while the breaker is open")
	assert.Equal(t, uint64(1), b.Snapshot().Counts.Rejected)
}

func TestBreaker_HalfOpenProbeAfterRecoveryTimeout(t *testing.T) {
	b := New("text-ml", Config{FailureThreshold: 5, RecoveryTimeout: 60 * time.Second, SuccessThreshold: 2})
	now := clockFor(b)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = b.Call(ctx, failing)
	}
	require.Equal(t, StateOpen, b.State())

	// At t+61s the next call is admitted as the half-open probe
	*now = now.Add(61 * time.Second)

	var invoked bool
	err := b.Call(ctx, func(context.Context) error {
		invoked = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, invoked)
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_ClosesAfterSuccessThreshold(t *testing.T) {
	b := New("text-ml", Config{FailureThreshold: 2, RecoveryTimeout: time.Second, SuccessThreshold: 3})
	now := clockFor(b)
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, failing)
	require.Equal(t, StateOpen, b.State())

	*now = now.Add(2 * time.Second)

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Call(ctx, succeeding))
		require.Equal(t, StateHalfOpen, b.State(), "breaker must stay HALF_OPEN until the success threshold")
	}
	require.NoError(t, b.Call(ctx, succeeding))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ReopensOnProbeFailure(t *testing.T) {
	b := New("url-ml", Config{FailureThreshold: 2, RecoveryTimeout: time.Second, SuccessThreshold: 2})
	now := clockFor(b)
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, failing)
	require.Equal(t, StateOpen, b.State())

	*now = now.Add(2 * time.Second)

	// One probe failure sends the breaker straight back to OPEN
	err := b.Call(ctx, failing)
	require.ErrorIs(t, err, errDownstream)
	assert.Equal(t, StateOpen, b.State())

	// And the fresh OPEN interval rejects again
	err = b.Call(ctx, succeeding)
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreaker_SingleConcurrentProbe(t *testing.T) {
	b := New("scanner", Config{FailureThreshold: 1, RecoveryTimeout: time.Second, SuccessThreshold: 2})
	now := clockFor(b)
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	require.Equal(t, StateOpen, b.State())

	*now = now.Add(2 * time.Second)

	probeStarted := make(chan struct{})
	release := make(chan struct{})
	probeDone := make(chan error, 1)

	go func() {
		probeDone <- b.Call(ctx, func(context.Context) error {
			close(probeStarted)
			<-release
			return nil
		})
	}()

	<-probeStarted

	// While the probe is in flight every other caller is rejected fail-fast
	for i := 0; i < 4; i++ {
		var invoked atomic.Bool
		err := b.Call(ctx, func(context.Context) error {
			invoked.Store(true)
			return nil
		})
		assert.ErrorIs(t, err, ErrOpen)
		assert.False(t, invoked.Load())
	}

	close(release)
	require.NoError(t, <-probeDone)
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_ClosedResetsFailuresOnSuccess(t *testing.T) {
	b := New("text-ml", Config{FailureThreshold: 3, RecoveryTimeout: time.Minute, SuccessThreshold: 1})
	clockFor(b)
	ctx := context.Background()

	// Two failures, then a success clears the consecutive counter
	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, failing)
	require.NoError(t, b.Call(ctx, succeeding))

	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, failing)
	assert.Equal(t, StateClosed, b.State())

	_ = b.Call(ctx, failing)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_CountsSnapshot(t *testing.T) {
	b := New("text-ml", Config{FailureThreshold: 2, RecoveryTimeout: time.Minute, SuccessThreshold: 1})
	clockFor(b)
	ctx := context.Background()

	require.NoError(t, b.Call(ctx, succeeding))
	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, succeeding) // rejected, breaker open

	snap := b.Snapshot()
	assert.Equal(t, "OPEN", snap.State)
	assert.Equal(t, uint64(3), snap.Counts.Total)
	assert.Equal(t, uint64(1), snap.Counts.Successes)
	assert.Equal(t, uint64(2), snap.Counts.Failures)
	assert.Equal(t, uint64(1), snap.Counts.Rejected)
	assert.False(t, snap.LastFailure.IsZero())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	a := r.GetOrCreate("text-ml", DefaultConfig())
	b := r.GetOrCreate("url-ml", Config{FailureThreshold: 1, RecoveryTimeout: time.Second, SuccessThreshold: 1})

	// Same name yields the same instance; config of an existing breaker is kept
	assert.Same(t, a, r.GetOrCreate("text-ml", Config{FailureThreshold: 99}))
	assert.Nil(t, r.Get("missing"))

	// Breakers trip independently
	_ = b.Call(context.Background(), failing)
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, StateClosed, a.State())

	snaps := r.Snapshot()
	assert.Len(t, snaps, 2)

	r.ResetAll()
	assert.Equal(t, StateClosed, b.State())
}
