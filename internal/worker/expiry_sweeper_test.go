package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSweeper struct {
	mu     sync.Mutex
	calls  int
	result int
	err    error
	called chan struct{}
}

func newFakeSweeper(result int, err error) *fakeSweeper {
	return &fakeSweeper{result: result, err: err, called: make(chan struct{}, 100)}
}

func (f *fakeSweeper) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	f.called <- struct{}{}
	return f.result, f.err
}

func (f *fakeSweeper) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitCall(t *testing.T, f *fakeSweeper) {
	t.Helper()
	select {
	case <-f.called:
	case <-time.After(time.Second):
		t.Fatal("sweep cycle did not run")
	}
}

func TestExpirySweeper_RunsImmediately(t *testing.T) {
	sweeper := newFakeSweeper(3, nil)
	w := NewExpirySweeper(sweeper, time.Hour, nil)

	require.NoError(t, w.Start(context.Background()))
	waitCall(t, sweeper)
	w.Stop()

	stats := w.Stats()
	assert.False(t, stats.Running)
	assert.Equal(t, int64(1), stats.Cycles)
	assert.Equal(t, int64(3), stats.TotalCancelled)
	assert.Equal(t, 3, stats.LastCancelled)
}

func TestExpirySweeper_Ticks(t *testing.T) {
	sweeper := newFakeSweeper(0, nil)
	w := NewExpirySweeper(sweeper, 10*time.Millisecond, nil)

	require.NoError(t, w.Start(context.Background()))
	for i := 0; i < 3; i++ {
		waitCall(t, sweeper)
	}
	w.Stop()

	calls := sweeper.Calls()
	assert.GreaterOrEqual(t, calls, 3)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, sweeper.Calls())
}

func TestExpirySweeper_StartTwice(t *testing.T) {
	w := NewExpirySweeper(newFakeSweeper(0, nil), time.Hour, nil)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyRunning)
}

func TestExpirySweeper_RestartAfterStop(t *testing.T) {
	sweeper := newFakeSweeper(0, nil)
	w := NewExpirySweeper(sweeper, time.Hour, nil)

	require.NoError(t, w.Start(context.Background()))
	waitCall(t, sweeper)
	w.Stop()
	w.Stop()

	require.NoError(t, w.Start(context.Background()))
	waitCall(t, sweeper)
	w.Stop()

	assert.Equal(t, 2, sweeper.Calls())
}

func TestExpirySweeper_LogsFailures(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sweeper := newFakeSweeper(0, errors.New("scan expired bookings: connection refused"))
	w := NewExpirySweeper(sweeper, time.Hour, zap.New(core))

	require.NoError(t, w.Start(context.Background()))
	waitCall(t, sweeper)
	w.Stop()

	assert.Equal(t, 1, logs.FilterMessage("sweep cycle failed").Len())
	assert.Contains(t, w.Stats().LastError, "connection refused")
}

func TestExpirySweeper_RunStopsWithContext(t *testing.T) {
	sweeper := newFakeSweeper(0, nil)
	w := NewExpirySweeper(sweeper, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitCall(t, sweeper)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, w.Stats().Running)
}
