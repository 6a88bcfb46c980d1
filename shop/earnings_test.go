package shop_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/garage-engine/engine"
	"github.com/warp/garage-engine/shop"
	"github.com/warp/garage-engine/shop/store"
)

func saveWorker(t *testing.T, mem *store.Memory, id string) {
	t.Helper()
	err := mem.SaveWorker(context.Background(), &shop.Worker{
		ID:            engine.WorkerID(id),
		Name:          id,
		Percentage:    decimal.NewFromInt(50),
		Earnings:      engine.Zero(),
		TotalEarnings: engine.Zero(),
		CreatedAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("save worker: %v", err)
	}
}

func workerEarnings(t *testing.T, mem *store.Memory, id string) (period, lifetime engine.Money) {
	t.Helper()
	w, err := mem.GetWorker(context.Background(), engine.WorkerID(id))
	if err != nil {
		t.Fatalf("get worker: %v", err)
	}
	return w.Earnings, w.TotalEarnings
}

// =============================================================================
// APPLY ON APPROVAL
// =============================================================================

func TestApplyOnApproval_EachShareLands(t *testing.T) {
	mem := store.NewMemory()
	earnings := &shop.Earnings{Workers: mem}
	saveWorker(t, mem, "w-1")
	saveWorker(t, mem, "w-2")

	a := &shop.Assignment{ID: "a-1", WorkOrderID: "o-1", Payment: engine.MustParseMoney("200")}
	a.SetShares([]shop.WorkerShare{
		{WorkerID: "w-1", Allocated: engine.MustParseMoney("100"), Earning: engine.MustParseMoney("40")},
		{WorkerID: "w-2", Allocated: engine.MustParseMoney("100"), Earning: engine.MustParseMoney("55")},
	})

	if err := earnings.ApplyOnApproval(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	period, _ := workerEarnings(t, mem, "w-1")
	if !period.Equal(engine.MustParseMoney("40")) {
		t.Errorf("w-1 earnings = %s, want 40", period)
	}
	period, _ = workerEarnings(t, mem, "w-2")
	if !period.Equal(engine.MustParseMoney("55")) {
		t.Errorf("w-2 earnings = %s, want 55", period)
	}
}

func TestApplyOnApproval_SkipsZeroShares(t *testing.T) {
	// A zero earning must not touch the store at all; the worker might
	// not even exist yet.

	mem := store.NewMemory()
	earnings := &shop.Earnings{Workers: mem}

	a := &shop.Assignment{ID: "a-1", WorkOrderID: "o-1"}
	a.SetShares([]shop.WorkerShare{
		{WorkerID: "ghost", Allocated: engine.Zero(), Earning: engine.Zero()},
	})

	if err := earnings.ApplyOnApproval(context.Background(), a); err != nil {
		t.Fatalf("zero shares should be skipped, got %v", err)
	}
}

func TestApplyOnApproval_UnknownWorkerFails(t *testing.T) {
	mem := store.NewMemory()
	earnings := &shop.Earnings{Workers: mem}

	a := &shop.Assignment{ID: "a-1", WorkOrderID: "o-1"}
	a.SetShares([]shop.WorkerShare{
		{WorkerID: "missing", Allocated: engine.MustParseMoney("10"), Earning: engine.MustParseMoney("5")},
	})

	if err := earnings.ApplyOnApproval(context.Background(), a); !engine.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

// =============================================================================
// CONCURRENT INCREMENTS
// =============================================================================

func TestAddWorkerEarnings_ConcurrentIncrementsAllLand(t *testing.T) {
	// GIVEN: 50 concurrent approvals worth 1.00 each for the same worker
	// THEN: The final balance is exactly 50.00

	mem := store.NewMemory()
	saveWorker(t, mem, "w-1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mem.AddWorkerEarnings(context.Background(), "w-1", engine.MustParseMoney("1.00")); err != nil {
				t.Errorf("increment failed: %v", err)
			}
		}()
	}
	wg.Wait()

	period, _ := workerEarnings(t, mem, "w-1")
	if !period.Equal(engine.MustParseMoney("50.00")) {
		t.Errorf("earnings = %s, want 50.00", period)
	}
}

// =============================================================================
// PERIOD RESET
// =============================================================================

func TestPeriodReset_FoldsIntoLifetimeTotal(t *testing.T) {
	mem := store.NewMemory()
	earnings := &shop.Earnings{Workers: mem}
	saveWorker(t, mem, "w-1")

	ctx := context.Background()
	if err := mem.AddWorkerEarnings(ctx, "w-1", engine.MustParseMoney("120.50")); err != nil {
		t.Fatalf("seed earnings: %v", err)
	}

	folded, err := earnings.PeriodReset(ctx, "w-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !folded.Equal(engine.MustParseMoney("120.50")) {
		t.Errorf("folded = %s, want 120.50", folded)
	}

	period, lifetime := workerEarnings(t, mem, "w-1")
	if !period.IsZero() {
		t.Errorf("period earnings should be zero after reset, got %s", period)
	}
	if !lifetime.Equal(engine.MustParseMoney("120.50")) {
		t.Errorf("lifetime = %s, want 120.50", lifetime)
	}
}

func TestPeriodReset_SecondResetFoldsNothing(t *testing.T) {
	mem := store.NewMemory()
	earnings := &shop.Earnings{Workers: mem}
	saveWorker(t, mem, "w-1")

	ctx := context.Background()
	if err := mem.AddWorkerEarnings(ctx, "w-1", engine.MustParseMoney("30")); err != nil {
		t.Fatalf("seed earnings: %v", err)
	}
	if _, err := earnings.PeriodReset(ctx, "w-1"); err != nil {
		t.Fatalf("first reset: %v", err)
	}

	folded, err := earnings.PeriodReset(ctx, "w-1")
	if err != nil {
		t.Fatalf("second reset: %v", err)
	}
	if !folded.IsZero() {
		t.Errorf("second fold = %s, want 0", folded)
	}

	_, lifetime := workerEarnings(t, mem, "w-1")
	if !lifetime.Equal(engine.MustParseMoney("30")) {
		t.Errorf("lifetime must not double-count, got %s", lifetime)
	}
}

// Resets racing increments must conserve money: every cent is either
// still in the period balance or already folded.
func TestPeriodReset_ConcurrentWithIncrements(t *testing.T) {
	mem := store.NewMemory()
	saveWorker(t, mem, "w-1")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mem.AddWorkerEarnings(ctx, "w-1", engine.MustParseMoney("1"))
		}()
		if i%5 == 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = mem.ResetWorkerPeriod(ctx, "w-1")
			}()
		}
	}
	wg.Wait()

	period, lifetime := workerEarnings(t, mem, "w-1")
	if !period.Add(lifetime).Equal(engine.MustParseMoney("20")) {
		t.Errorf("period %s + lifetime %s should equal 20", period, lifetime)
	}
}
