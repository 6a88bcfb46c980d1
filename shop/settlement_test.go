package shop_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/garage-engine/engine"
	"github.com/warp/garage-engine/shop"
	"github.com/warp/garage-engine/shop/store"
)

func newSettlement() (*shop.Settlement, *store.Memory) {
	mem := store.NewMemory()
	return &shop.Settlement{
		Orders: mem,
		Gate:   &shop.CompletionGate{Orders: mem, Assignments: mem, Batches: mem},
		Debts:  shop.NewDebtLedger(mem),
	}, mem
}

// Seeds an order whose gate is satisfied: one approved assignment and
// one completed batch.
func seedSatisfiedOrder(t *testing.T, mem *store.Memory, estimate, paid string) {
	t.Helper()
	saveOrder(t, mem, "o-1", estimate, paid)
	saveAssignment(t, mem, "a-1", "o-1", engine.UnitApproved)
	saveBatch(t, mem, "b-1", "o-1", shop.BatchCompleted)
}

func TestSettle_FullyPaidCompletesWithoutDebt(t *testing.T) {
	s, mem := newSettlement()
	seedSatisfiedOrder(t, mem, "300", "300")

	res, err := s.Settle(context.Background(), "o-1")
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.True(t, res.Remaining.IsZero())
	assert.Nil(t, res.Debt)

	order, err := mem.GetWorkOrder(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, shop.OrderCompleted, order.Status)

	debt, err := mem.ActiveDebtByWorkOrder(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Nil(t, debt)
}

func TestSettle_UnderpaidCompletesAndOpensDebt(t *testing.T) {
	s, mem := newSettlement()
	seedSatisfiedOrder(t, mem, "300", "200")

	res, err := s.Settle(context.Background(), "o-1")
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.True(t, res.Remaining.Equal(engine.MustParseMoney("100")))

	require.NotNil(t, res.Debt)
	assert.True(t, res.Debt.Amount.Equal(engine.MustParseMoney("300")))
	assert.True(t, res.Debt.PaidAmount.Equal(engine.MustParseMoney("200")))
	assert.Equal(t, engine.PaymentPartial, res.Debt.Status)

	order, err := mem.GetWorkOrder(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, shop.OrderCompleted, order.Status)
}

func TestSettle_GateUnsatisfiedIsNoOp(t *testing.T) {
	s, mem := newSettlement()
	saveOrder(t, mem, "o-1", "300", "100")
	saveAssignment(t, mem, "a-1", "o-1", engine.UnitInProgress)
	saveBatch(t, mem, "b-1", "o-1", shop.BatchCompleted)

	res, err := s.Settle(context.Background(), "o-1")
	require.NoError(t, err)

	assert.False(t, res.Completed)
	assert.Nil(t, res.Debt)

	order, err := mem.GetWorkOrder(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, shop.OrderInProgress, order.Status)

	debt, err := mem.ActiveDebtByWorkOrder(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Nil(t, debt, "no receivable before the order settles")
}

func TestSettle_RepeatCallsAreIdempotent(t *testing.T) {
	s, mem := newSettlement()
	seedSatisfiedOrder(t, mem, "300", "200")

	ctx := context.Background()
	first, err := s.Settle(ctx, "o-1")
	require.NoError(t, err)
	require.True(t, first.Completed)

	second, err := s.Settle(ctx, "o-1")
	require.NoError(t, err)
	assert.False(t, second.Completed, "only one call performs the transition")

	// The repeat ensure must not have grown the receivable.
	require.NotNil(t, second.Debt)
	assert.Equal(t, first.Debt.ID, second.Debt.ID)
	assert.True(t, second.Debt.PaidAmount.Equal(engine.MustParseMoney("200")))
	assert.Len(t, second.Debt.Payments, len(first.Debt.Payments))
}

func TestSettle_ConcurrentTriggersCompleteExactlyOnce(t *testing.T) {
	// GIVEN: Many triggers firing at once for the same satisfied order
	// THEN: Exactly one of them reports Completed

	s, mem := newSettlement()
	seedSatisfiedOrder(t, mem, "300", "300")

	const n = 16
	results := make([]*shop.SettleResult, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Settle(context.Background(), "o-1")
		}(i)
	}
	wg.Wait()

	completed := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if results[i].Completed {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
}

func TestSettle_UnknownOrder(t *testing.T) {
	s, _ := newSettlement()

	_, err := s.Settle(context.Background(), "nope")
	assert.True(t, engine.IsNotFound(err))
}
