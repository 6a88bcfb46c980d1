/*
gate.go - Completion detection for a work order

PURPOSE:
  Decides whether a work order is done: every assignment and every
  service batch reachable from it is in a terminal state, with at least
  one approved assignment. Read-only; the settlement coordinator acts
  on the answer.

WHY "AT LEAST ONE APPROVED":
  An order whose every assignment was rejected produced no billable
  work. It must not auto-complete; someone has to restart a unit or
  close the order by hand.

BATCH STATUS AS A BLACK BOX:
  The gate looks at the batch object's own status, not at its items.
  A batch is promoted to completed by its review operation once all
  items are terminal (see service.go); delivered is reachable only
  through completed, so both satisfy the gate. The one item-level
  check is emptiness: a batch whose items were all removed by a
  line-item update holds no work and is ignored.
*/
package shop

import (
	"context"
	"fmt"

	"github.com/warp/garage-engine/engine"
)

// GateResult is the completion gate's answer for one work order.
type GateResult struct {
	Satisfied bool

	// Remaining is the order's unpaid balance at evaluation time.
	Remaining engine.Money

	AllAssignmentsReviewed bool
	HasApprovedAssignment  bool
	AllBatchesCompleted    bool
}

// CompletionGate evaluates completion across an order's assignments and
// service batches. It holds no state and performs no writes.
type CompletionGate struct {
	Orders      WorkOrderStore
	Assignments AssignmentStore
	Batches     BatchStore
}

// Evaluate returns whether the order's work is fully reviewed with at
// least one approved assignment, plus the current balance.
func (g *CompletionGate) Evaluate(ctx context.Context, orderID engine.WorkOrderID) (*GateResult, error) {
	order, err := g.Orders.GetWorkOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("completion gate: %w", err)
	}

	assignments, err := g.Assignments.AssignmentsByWorkOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("completion gate: load assignments: %w", err)
	}

	batches, err := g.Batches.BatchesByWorkOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("completion gate: load batches: %w", err)
	}

	result := &GateResult{
		Remaining:              order.Remaining(),
		AllAssignmentsReviewed: true,
		HasApprovedAssignment:  len(assignments) == 0,
		AllBatchesCompleted:    true,
	}

	for _, a := range assignments {
		if !a.Status.Terminal() {
			result.AllAssignmentsReviewed = false
		}
		if a.Status == engine.UnitApproved {
			result.HasApprovedAssignment = true
		}
	}

	for _, b := range batches {
		// A batch emptied by a line-item update holds no work and
		// cannot block completion.
		if len(b.Items) == 0 {
			continue
		}
		if b.Status != BatchCompleted && b.Status != BatchDelivered {
			result.AllBatchesCompleted = false
		}
	}

	result.Satisfied = result.AllAssignmentsReviewed &&
		result.HasApprovedAssignment &&
		result.AllBatchesCompleted

	return result, nil
}
