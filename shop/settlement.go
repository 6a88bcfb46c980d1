/*
settlement.go - Guarded work-order completion

PURPOSE:
  The single place a work order is moved to completed. Every terminal
  trigger (assignment approved or rejected, batch item reviewed, batch
  promoted) funnels through Settle, which re-runs the completion gate
  and performs at most one guarded transition.

EXACTLY-ONCE:
  The store's CompleteWorkOrder is an atomic compare-and-swap on the
  persisted status. Two concurrent triggers can both find the gate
  satisfied, but only one swap succeeds; the loser returns an
  idempotent no-op.

ORDERING:
  The debt write happens BEFORE the status swap. EnsureReflectsBalance
  is idempotent, so if the swap then loses a race the extra ensure left
  no trace. The reverse order could advance the status and then fail
  the debt write, leaving a completed order with no receivable.

SEE ALSO:
  - gate.go: The completion condition
  - debt.go: EnsureReflectsBalance
*/
package shop

import (
	"context"
	"fmt"

	"github.com/warp/garage-engine/engine"
)

// SettleResult reports what one settlement pass did.
type SettleResult struct {
	// Completed is true only for the call that performed the
	// work-order transition.
	Completed bool

	// Remaining is the order balance observed by the gate.
	Remaining engine.Money

	// Debt is the active receivable after settlement, if any.
	Debt *Debt
}

// Settlement coordinates completion detection, the guarded order
// transition, and the debt hand-off.
type Settlement struct {
	Orders WorkOrderStore
	Gate   *CompletionGate
	Debts  *DebtLedger
}

// Settle re-evaluates the completion gate for the order and, if newly
// satisfied, completes the order and ensures its receivable. Safe to
// call from every trigger point and safe to call repeatedly.
func (s *Settlement) Settle(ctx context.Context, orderID engine.WorkOrderID) (*SettleResult, error) {
	gate, err := s.Gate.Evaluate(ctx, orderID)
	if err != nil {
		return nil, err
	}

	result := &SettleResult{Remaining: gate.Remaining}
	if !gate.Satisfied {
		return result, nil
	}

	order, err := s.Orders.GetWorkOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if gate.Remaining.IsPositive() {
		debt, err := s.Debts.EnsureReflectsBalance(ctx, orderID, order.TotalEstimate(), order.PaidAmount, PaymentInfo{})
		if err != nil {
			return nil, fmt.Errorf("settlement: %w", err)
		}
		result.Debt = debt
	}

	completed, err := s.Orders.CompleteWorkOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("settlement: complete order: %w", err)
	}
	result.Completed = completed

	return result, nil
}
