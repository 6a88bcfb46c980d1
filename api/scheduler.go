/*
scheduler.go - Automated payroll period scheduler

PURPOSE:
  Periodically folds every worker's period earnings into their lifetime
  total. The shop settles with workers at fixed intervals (weekly or
  monthly payroll); the fold itself is atomic per worker in the store.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Fires when a new period boundary has been crossed since the last run
  - Each worker is folded independently; one failure does not stop
    the rest

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Period:        Payroll period length (default: 30 days)
  - Enabled:       Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewPayrollScheduler(svc, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: PeriodReset endpoint (manual fold per worker)
  - shop/earnings.go: Earnings application and period fold
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/garage-engine/shop"
)

// PayrollScheduler folds worker earnings on a fixed payroll cadence.
type PayrollScheduler struct {
	Service       *shop.Service
	Log           zerolog.Logger
	CheckInterval time.Duration
	Period        time.Duration
	Enabled       bool

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun time.Time
}

// NewPayrollScheduler creates a new scheduler.
func NewPayrollScheduler(svc *shop.Service, log zerolog.Logger) *PayrollScheduler {
	return &PayrollScheduler{
		Service:       svc,
		Log:           log,
		CheckInterval: 1 * time.Hour,
		Period:        30 * 24 * time.Hour,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (ps *PayrollScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled {
		ps.Log.Info().Msg("payroll scheduler disabled, not starting")
		return
	}

	ps.ticker = time.NewTicker(ps.CheckInterval)
	ps.lastRun = time.Now()
	ps.wg.Add(1)

	go ps.run()

	ps.Log.Info().
		Dur("check_interval", ps.CheckInterval).
		Dur("period", ps.Period).
		Msg("payroll scheduler started")
}

// Stop stops the scheduler.
func (ps *PayrollScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker != nil {
		ps.ticker.Stop()
		close(ps.stop)
		ps.wg.Wait()
		ps.Log.Info().Msg("payroll scheduler stopped")
	}
}

func (ps *PayrollScheduler) run() {
	defer ps.wg.Done()

	for {
		select {
		case <-ps.ticker.C:
			ps.checkAndFold()
		case <-ps.stop:
			return
		}
	}
}

func (ps *PayrollScheduler) checkAndFold() {
	ps.mu.Lock()
	due := time.Since(ps.lastRun) >= ps.Period
	ps.mu.Unlock()

	if !due {
		return
	}
	ps.FoldAll(context.Background())

	ps.mu.Lock()
	ps.lastRun = time.Now()
	ps.mu.Unlock()
}

// FoldAll folds every worker's period earnings now. Exposed for admin
// triggering and tests.
func (ps *PayrollScheduler) FoldAll(ctx context.Context) {
	workers, err := ps.Service.Store.ListWorkers(ctx)
	if err != nil {
		ps.Log.Error().Err(err).Msg("payroll fold: list workers")
		return
	}

	for _, w := range workers {
		folded, err := ps.Service.PeriodReset(ctx, w.ID)
		if err != nil {
			ps.Log.Error().Err(err).
				Str("worker_id", string(w.ID)).
				Msg("payroll fold failed")
			continue
		}
		if !folded.IsZero() {
			ps.Log.Info().
				Str("worker_id", string(w.ID)).
				Str("folded", folded.String()).
				Msg("payroll period folded")
		}
	}
}
