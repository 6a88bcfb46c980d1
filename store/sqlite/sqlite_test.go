/*
sqlite_test.go - Store-level tests for the SQLite backend

Tests for:
- Work order round-trips with line items
- CompleteWorkOrder exactly-once semantics under concurrency
- The at-most-one-active-debt partial index
- Atomic worker earnings fold
*/
package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/garage-engine/engine"
	"github.com/warp/garage-engine/shop"
	"github.com/warp/garage-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedOrder(t *testing.T, s *sqlite.Store, id string, status shop.OrderStatus) {
	t.Helper()
	now := time.Now()
	err := s.SaveWorkOrder(context.Background(), &shop.WorkOrder{
		ID:         engine.WorkOrderID(id),
		Vehicle:    "2017 Subaru Outback",
		OwnerName:  "R. Vance",
		LineItems:  []shop.LineItem{{Name: "Head gasket", Price: engine.MustParseMoney("650.00"), Quantity: 1, Category: shop.CategoryPart}},
		PaidAmount: engine.Zero(),
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("Failed to save order: %v", err)
	}
}

func TestWorkOrder_RoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedOrder(t, s, "o-1", shop.OrderPending)

	got, err := s.GetWorkOrder(ctx, "o-1")
	if err != nil {
		t.Fatalf("Failed to get order: %v", err)
	}
	if got.Vehicle != "2017 Subaru Outback" {
		t.Errorf("Expected vehicle round-trip, got '%s'", got.Vehicle)
	}
	if len(got.LineItems) != 1 {
		t.Fatalf("Expected 1 line item, got %d", len(got.LineItems))
	}
	if !got.LineItems[0].Price.Equal(engine.MustParseMoney("650.00")) {
		t.Errorf("Expected price 650.00, got %s", got.LineItems[0].Price)
	}
	if got.Status != shop.OrderPending {
		t.Errorf("Expected status pending, got %s", got.Status)
	}

	_, err = s.GetWorkOrder(ctx, "missing")
	if !engine.IsNotFound(err) {
		t.Errorf("Expected not-found error, got %v", err)
	}
}

func TestCompleteWorkOrder_ExactlyOnce(t *testing.T) {
	// GIVEN: An in-progress order and many concurrent completion triggers
	s := newStore(t)
	ctx := context.Background()
	seedOrder(t, s, "o-1", shop.OrderInProgress)

	const n = 10
	wins := make([]bool, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			wins[i], errs[i] = s.CompleteWorkOrder(ctx, "o-1")
		}(i)
	}
	wg.Wait()

	// THEN: Exactly one swap succeeds
	won := 0
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Unexpected error: %v", errs[i])
		}
		if wins[i] {
			won++
		}
	}
	if won != 1 {
		t.Errorf("Expected exactly 1 winner, got %d", won)
	}

	got, err := s.GetWorkOrder(ctx, "o-1")
	if err != nil {
		t.Fatalf("Failed to get order: %v", err)
	}
	if got.Status != shop.OrderCompleted {
		t.Errorf("Expected status completed, got %s", got.Status)
	}

	// A missing order is an error, not a lost race
	if _, err := s.CompleteWorkOrder(ctx, "missing"); !engine.IsNotFound(err) {
		t.Errorf("Expected not-found error, got %v", err)
	}
}

func TestCompareAndSetOrderStatus(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedOrder(t, s, "o-1", shop.OrderPending)

	// Stale from-status loses without changing anything
	swapped, err := s.CompareAndSetOrderStatus(ctx, "o-1", shop.OrderCompleted, shop.OrderDelivered)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if swapped {
		t.Error("Swap with wrong from-status should fail")
	}

	swapped, err = s.CompareAndSetOrderStatus(ctx, "o-1", shop.OrderPending, shop.OrderInProgress)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !swapped {
		t.Error("Swap with matching from-status should succeed")
	}

	got, _ := s.GetWorkOrder(ctx, "o-1")
	if got.Status != shop.OrderInProgress {
		t.Errorf("Expected status in-progress, got %s", got.Status)
	}
}

func TestDebts_AtMostOneActivePerOrder(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedOrder(t, s, "o-1", shop.OrderCompleted)

	now := time.Now()
	first := &shop.Debt{
		ID:          "d-1",
		WorkOrderID: "o-1",
		Amount:      engine.MustParseMoney("300"),
		PaidAmount:  engine.MustParseMoney("100"),
		Status:      engine.PaymentPartial,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.SaveDebt(ctx, first); err != nil {
		t.Fatalf("Failed to save debt: %v", err)
	}

	// A second active debt for the same order violates the partial index
	second := &shop.Debt{
		ID:          "d-2",
		WorkOrderID: "o-1",
		Amount:      engine.MustParseMoney("50"),
		PaidAmount:  engine.Zero(),
		Status:      engine.PaymentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.SaveDebt(ctx, second); err == nil {
		t.Fatal("Expected unique-index violation for second active debt")
	}

	// Settling the first frees the slot
	first.PaidAmount = first.Amount
	first.Recalculate()
	if err := s.SaveDebt(ctx, first); err != nil {
		t.Fatalf("Failed to settle first debt: %v", err)
	}
	if err := s.SaveDebt(ctx, second); err != nil {
		t.Fatalf("Expected second debt to save after settle: %v", err)
	}

	active, err := s.ActiveDebtByWorkOrder(ctx, "o-1")
	if err != nil {
		t.Fatalf("Failed to get active debt: %v", err)
	}
	if active == nil || active.ID != "d-2" {
		t.Errorf("Expected active debt d-2, got %+v", active)
	}
}

func TestDebt_PaymentHistoryRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedOrder(t, s, "o-1", shop.OrderCompleted)

	now := time.Now()
	debt := &shop.Debt{
		ID:          "d-1",
		WorkOrderID: "o-1",
		Amount:      engine.MustParseMoney("300"),
		PaidAmount:  engine.MustParseMoney("220"),
		Status:      engine.PaymentPartial,
		Payments: []shop.DebtPayment{
			{Amount: engine.MustParseMoney("200"), Date: now, Method: "cash", Notes: "deposit"},
			{Amount: engine.MustParseMoney("20"), Date: now, Method: "card"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.SaveDebt(ctx, debt); err != nil {
		t.Fatalf("Failed to save debt: %v", err)
	}

	got, err := s.GetDebt(ctx, "d-1")
	if err != nil {
		t.Fatalf("Failed to get debt: %v", err)
	}
	if len(got.Payments) != 2 {
		t.Fatalf("Expected 2 payments, got %d", len(got.Payments))
	}
	if got.Payments[0].Method != "cash" || got.Payments[0].Notes != "deposit" {
		t.Errorf("First payment did not round-trip: %+v", got.Payments[0])
	}
	if !got.Payments[1].Amount.Equal(engine.MustParseMoney("20")) {
		t.Errorf("Expected second payment 20, got %s", got.Payments[1].Amount)
	}
}

func TestWorkerEarnings_AddAndFold(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	err := s.SaveWorker(ctx, &shop.Worker{
		ID:            "w-1",
		Name:          "Miguel",
		Percentage:    decimal.NewFromInt(40),
		Earnings:      engine.Zero(),
		TotalEarnings: engine.Zero(),
		CreatedAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to save worker: %v", err)
	}

	if err := s.AddWorkerEarnings(ctx, "w-1", engine.MustParseMoney("40.50")); err != nil {
		t.Fatalf("Failed to add earnings: %v", err)
	}
	if err := s.AddWorkerEarnings(ctx, "w-1", engine.MustParseMoney("9.50")); err != nil {
		t.Fatalf("Failed to add earnings: %v", err)
	}

	folded, err := s.ResetWorkerPeriod(ctx, "w-1")
	if err != nil {
		t.Fatalf("Failed to reset period: %v", err)
	}
	if !folded.Equal(engine.MustParseMoney("50")) {
		t.Errorf("Expected folded 50, got %s", folded)
	}

	w, err := s.GetWorker(ctx, "w-1")
	if err != nil {
		t.Fatalf("Failed to get worker: %v", err)
	}
	if !w.Earnings.IsZero() {
		t.Errorf("Expected zero period earnings, got %s", w.Earnings)
	}
	if !w.TotalEarnings.Equal(engine.MustParseMoney("50")) {
		t.Errorf("Expected lifetime 50, got %s", w.TotalEarnings)
	}

	if err := s.AddWorkerEarnings(ctx, "missing", engine.MustParseMoney("1")); !engine.IsNotFound(err) {
		t.Errorf("Expected not-found error, got %v", err)
	}
}
