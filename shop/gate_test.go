package shop_test

import (
	"context"
	"testing"
	"time"

	"github.com/warp/garage-engine/engine"
	"github.com/warp/garage-engine/shop"
	"github.com/warp/garage-engine/shop/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newGateFixture(t *testing.T) (*shop.CompletionGate, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return &shop.CompletionGate{Orders: mem, Assignments: mem, Batches: mem}, mem
}

func saveOrder(t *testing.T, mem *store.Memory, id string, estimate, paid string) {
	t.Helper()
	now := time.Now()
	err := mem.SaveWorkOrder(context.Background(), &shop.WorkOrder{
		ID:         engine.WorkOrderID(id),
		Vehicle:    "test vehicle",
		LineItems:  []shop.LineItem{{Name: "work", Price: engine.MustParseMoney(estimate), Quantity: 1, Category: shop.CategoryLabor}},
		PaidAmount: engine.MustParseMoney(paid),
		Status:     shop.OrderInProgress,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("save order: %v", err)
	}
}

func saveAssignment(t *testing.T, mem *store.Memory, id, orderID string, status engine.UnitStatus) {
	t.Helper()
	now := time.Now()
	a := &shop.Assignment{
		ID:          engine.AssignmentID(id),
		WorkOrderID: engine.WorkOrderID(orderID),
		Title:       "work",
		Payment:     engine.MustParseMoney("100"),
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	a.SetShares([]shop.WorkerShare{{WorkerID: "w-1"}})
	if err := mem.SaveAssignment(context.Background(), a); err != nil {
		t.Fatalf("save assignment: %v", err)
	}
}

func saveBatch(t *testing.T, mem *store.Memory, id, orderID string, status shop.BatchStatus) {
	t.Helper()
	now := time.Now()
	err := mem.SaveBatch(context.Background(), &shop.ServiceBatch{
		ID:          engine.BatchID(id),
		WorkOrderID: engine.WorkOrderID(orderID),
		Items: []shop.BatchItem{
			{ID: engine.ItemID(id + "-item"), Name: "part", Price: engine.MustParseMoney("50"), Quantity: 1, Status: engine.UnitApproved},
		},
		PaidAmount: engine.Zero(),
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("save batch: %v", err)
	}
}

// =============================================================================
// GATE EVALUATION
// =============================================================================

func TestGate_SatisfiedWhenAllReviewedWithApproval(t *testing.T) {
	// GIVEN: One approved assignment, one rejected one, one completed batch
	// THEN: The gate is satisfied

	gate, mem := newGateFixture(t)
	saveOrder(t, mem, "o-1", "100", "100")
	saveAssignment(t, mem, "a-1", "o-1", engine.UnitApproved)
	saveAssignment(t, mem, "a-2", "o-1", engine.UnitRejected)
	saveBatch(t, mem, "b-1", "o-1", shop.BatchCompleted)

	result, err := gate.Evaluate(context.Background(), "o-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Satisfied {
		t.Errorf("expected satisfied gate, got %+v", result)
	}
}

func TestGate_BlockedByUnreviewedAssignment(t *testing.T) {
	gate, mem := newGateFixture(t)
	saveOrder(t, mem, "o-1", "100", "100")
	saveAssignment(t, mem, "a-1", "o-1", engine.UnitApproved)
	saveAssignment(t, mem, "a-2", "o-1", engine.UnitCompleted)
	saveBatch(t, mem, "b-1", "o-1", shop.BatchCompleted)

	result, err := gate.Evaluate(context.Background(), "o-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Satisfied {
		t.Error("gate should not pass while an assignment awaits review")
	}
	if result.AllAssignmentsReviewed {
		t.Error("a completed assignment is not reviewed")
	}
}

func TestGate_BlockedWhenEveryAssignmentRejected(t *testing.T) {
	// GIVEN: All assignments rejected
	// THEN: No billable work was produced; the order must not auto-complete

	gate, mem := newGateFixture(t)
	saveOrder(t, mem, "o-1", "100", "0")
	saveAssignment(t, mem, "a-1", "o-1", engine.UnitRejected)
	saveAssignment(t, mem, "a-2", "o-1", engine.UnitRejected)
	saveBatch(t, mem, "b-1", "o-1", shop.BatchCompleted)

	result, err := gate.Evaluate(context.Background(), "o-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Satisfied {
		t.Error("gate should require at least one approved assignment")
	}
	if !result.AllAssignmentsReviewed {
		t.Error("rejected assignments count as reviewed")
	}
	if result.HasApprovedAssignment {
		t.Error("no assignment was approved")
	}
}

func TestGate_BlockedByOpenBatch(t *testing.T) {
	gate, mem := newGateFixture(t)
	saveOrder(t, mem, "o-1", "100", "0")
	saveAssignment(t, mem, "a-1", "o-1", engine.UnitApproved)
	saveBatch(t, mem, "b-1", "o-1", shop.BatchInProgress)

	result, err := gate.Evaluate(context.Background(), "o-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Satisfied {
		t.Error("gate should not pass with a batch still open")
	}
	if result.AllBatchesCompleted {
		t.Error("an in-progress batch is not completed")
	}
}

func TestGate_EmptiedBatchDoesNotBlock(t *testing.T) {
	// GIVEN: A batch whose items were all removed by a line-item update,
	//        stranded in its old in-progress status
	// THEN: It holds no work and must not block completion

	gate, mem := newGateFixture(t)
	saveOrder(t, mem, "o-1", "100", "100")
	saveAssignment(t, mem, "a-1", "o-1", engine.UnitApproved)
	now := time.Now()
	err := mem.SaveBatch(context.Background(), &shop.ServiceBatch{
		ID:          "b-1",
		WorkOrderID: "o-1",
		PaidAmount:  engine.Zero(),
		Status:      shop.BatchInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("save batch: %v", err)
	}

	result, err := gate.Evaluate(context.Background(), "o-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.AllBatchesCompleted {
		t.Error("an empty batch should be ignored by the batch clause")
	}
	if !result.Satisfied {
		t.Errorf("expected satisfied gate, got %+v", result)
	}
}

func TestGate_DeliveredBatchSatisfies(t *testing.T) {
	// Delivered is reachable only through completed, so it satisfies too.

	gate, mem := newGateFixture(t)
	saveOrder(t, mem, "o-1", "100", "0")
	saveAssignment(t, mem, "a-1", "o-1", engine.UnitApproved)
	saveBatch(t, mem, "b-1", "o-1", shop.BatchDelivered)

	result, err := gate.Evaluate(context.Background(), "o-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Satisfied {
		t.Errorf("delivered batch should satisfy the gate, got %+v", result)
	}
}

func TestGate_NoAssignmentsApprovalVacuouslyTrue(t *testing.T) {
	// An order with no assignments yet has nothing blocking review;
	// completion then rides on the batches alone.

	gate, mem := newGateFixture(t)
	saveOrder(t, mem, "o-1", "100", "0")
	saveBatch(t, mem, "b-1", "o-1", shop.BatchCompleted)

	result, err := gate.Evaluate(context.Background(), "o-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Satisfied {
		t.Errorf("expected satisfied gate with no assignments, got %+v", result)
	}
}

func TestGate_ReportsRemainingBalance(t *testing.T) {
	gate, mem := newGateFixture(t)
	saveOrder(t, mem, "o-1", "100", "30")
	saveAssignment(t, mem, "a-1", "o-1", engine.UnitApproved)
	saveBatch(t, mem, "b-1", "o-1", shop.BatchCompleted)

	result, err := gate.Evaluate(context.Background(), "o-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Remaining.Equal(engine.MustParseMoney("70")) {
		t.Errorf("remaining = %s, want 70", result.Remaining)
	}
}

func TestGate_UnknownOrder(t *testing.T) {
	gate, _ := newGateFixture(t)
	_, err := gate.Evaluate(context.Background(), "missing")
	if !engine.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
