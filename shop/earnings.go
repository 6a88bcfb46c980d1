/*
earnings.go - Worker earnings accumulation

PURPOSE:
  The single entry point for mutating worker earnings. Every approval
  path must call ApplyOnApproval; no other code touches the worker's
  balance. Centralizing the write is what makes "exactly once per
  approval" checkable: the state machine admits the completed →
  approved edge only once per pass, and this is the only code on it.

INCREMENTS, NOT READ-MODIFY-WRITE:
  The store's AddWorkerEarnings is an atomic increment against the
  persisted value, so two assignments approved concurrently for the
  same worker both land.
*/
package shop

import (
	"context"
	"fmt"

	"github.com/warp/garage-engine/engine"
)

// Earnings applies split results to worker balances.
type Earnings struct {
	Workers WorkerStore
}

// ApplyOnApproval increments each share's worker by that share's
// earning. Called exactly once, on the completed → approved edge of an
// assignment; never on load, never on re-save.
func (e *Earnings) ApplyOnApproval(ctx context.Context, a *Assignment) error {
	for _, share := range a.Shares() {
		if share.Earning.IsZero() {
			continue
		}
		if err := e.Workers.AddWorkerEarnings(ctx, share.WorkerID, share.Earning); err != nil {
			return fmt.Errorf("apply earnings for worker %s: %w", share.WorkerID, err)
		}
	}
	return nil
}

// PeriodReset folds the worker's current-period earnings into the
// lifetime total and zeroes the period balance, atomically per worker.
// Triggered by an external scheduler. Returns the folded amount.
func (e *Earnings) PeriodReset(ctx context.Context, workerID engine.WorkerID) (engine.Money, error) {
	return e.Workers.ResetWorkerPeriod(ctx, workerID)
}
