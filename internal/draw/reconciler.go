package draw

import (
	"context"
	"log"
	"time"

	"github.com/erikldr/sortear/internal/store"
)

// ReconcilerConfig tunes the supervising sweep over stuck draws.
type ReconcilerConfig struct {
	// Interval between sweeps. Defaults to 30s.
	Interval time.Duration

	// RunningTimeout is how long a draw may sit in running before it is
	// treated as a failed execution. Defaults to 2m.
	RunningTimeout time.Duration

	// Now overrides the clock, for tests. Defaults to time.Now in UTC.
	Now func() time.Time
}

// Reconciler periodically fails draws stuck in running longer than the
// configured timeout. An execution that lost its process mid-flight must not
// hold its draw in running forever; forcing it to failed keeps the at-most-
// once guarantee honest (the draw is terminal, a retry needs a new draw).
type Reconciler struct {
	store store.Store
	cfg   ReconcilerConfig
	now   func() time.Time
}

func NewReconciler(st store.Store, cfg ReconcilerConfig) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.RunningTimeout <= 0 {
		cfg.RunningTimeout = 2 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Reconciler{
		store: st,
		cfg:   cfg,
		now:   cfg.Now,
	}
}

// Run blocks until ctx is cancelled, sweeping on every tick.
func (r *Reconciler) Run(ctx context.Context) error {
	log.Printf("[draw.reconciler] starting (interval=%s, timeout=%s)", r.cfg.Interval, r.cfg.RunningTimeout)
	defer log.Printf("[draw.reconciler] stopped")

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				log.Printf("[draw.reconciler] sweep: %v", err)
			} else if n > 0 {
				log.Printf("[draw.reconciler] failed %d stale running draw(s)", n)
			}
		}
	}
}

// Sweep performs one pass and returns the number of draws it reaped.
func (r *Reconciler) Sweep(ctx context.Context) (int64, error) {
	now := r.now()
	cutoff := now.Add(-r.cfg.RunningTimeout)
	return r.store.FailStaleRunning(ctx, cutoff, "execution timed out while running", now)
}
