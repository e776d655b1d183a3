package draw

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikldr/sortear/internal/models"
)

func TestSweepFailsStaleRunningDraws(t *testing.T) {
	ctx := context.Background()
	mem, promo := seedFixture(t, models.RepeatWinAllow, 3)
	engine := New(mem, nil, Config{})

	stale, err := engine.CreateDraw(ctx, promo.ID, "", 1)
	require.NoError(t, err)
	fresh, err := engine.CreateDraw(ctx, promo.ID, "", 1)
	require.NoError(t, err)

	// Claim both; backdate one past the timeout.
	_, err = mem.ClaimDraw(ctx, stale.ID, time.Now().UTC().Add(-10*time.Minute))
	require.NoError(t, err)
	_, err = mem.ClaimDraw(ctx, fresh.ID, time.Now().UTC())
	require.NoError(t, err)

	rec := NewReconciler(mem, ReconcilerConfig{RunningTimeout: 2 * time.Minute})
	n, err := rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	staleDraw, err := mem.GetDraw(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DrawStateFailed, staleDraw.State)
	assert.NotEmpty(t, staleDraw.FailureReason)

	freshDraw, err := mem.GetDraw(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DrawStateRunning, freshDraw.State)
}

func TestSweepHonorsInjectedClock(t *testing.T) {
	ctx := context.Background()
	mem, promo := seedFixture(t, models.RepeatWinAllow, 1)
	engine := New(mem, nil, Config{})

	d, err := engine.CreateDraw(ctx, promo.ID, "", 1)
	require.NoError(t, err)
	claimedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err = mem.ClaimDraw(ctx, d.ID, claimedAt)
	require.NoError(t, err)

	sweepAt := claimedAt.Add(10 * time.Minute)
	rec := NewReconciler(mem, ReconcilerConfig{
		RunningTimeout: 2 * time.Minute,
		Now:            func() time.Time { return sweepAt },
	})

	n, err := rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stored, err := mem.GetDraw(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CompletedAt)
	assert.True(t, stored.CompletedAt.Equal(sweepAt), "failure timestamp must come from the injected clock")
}

func TestReconcilerRunStopsOnCancel(t *testing.T) {
	mem, _ := seedFixture(t, models.RepeatWinAllow, 1)
	rec := NewReconciler(mem, ReconcilerConfig{Interval: 10 * time.Millisecond, RunningTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop after cancellation")
	}
}
