// Package store provides shop.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/garage-engine/engine"
	"github.com/warp/garage-engine/shop"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements shop.Store with mutex-guarded maps. Records are
// deep-copied on the way in and out so callers never share state with
// the store. All three atomic operations (completion swap, earnings
// increment, period reset) run under the write lock, which gives them
// the same read-modify-write atomicity the SQL store gets from
// conditional updates.
type Memory struct {
	mu          sync.RWMutex
	orders      map[engine.WorkOrderID]*shop.WorkOrder
	orderSeq    []engine.WorkOrderID
	assignments map[engine.AssignmentID]*shop.Assignment
	assignSeq   []engine.AssignmentID
	batches     map[engine.BatchID]*shop.ServiceBatch
	batchSeq    []engine.BatchID
	workers     map[engine.WorkerID]*shop.Worker
	workerSeq   []engine.WorkerID
	debts       map[engine.DebtID]*shop.Debt
	debtSeq     []engine.DebtID
}

func NewMemory() *Memory {
	return &Memory{
		orders:      make(map[engine.WorkOrderID]*shop.WorkOrder),
		assignments: make(map[engine.AssignmentID]*shop.Assignment),
		batches:     make(map[engine.BatchID]*shop.ServiceBatch),
		workers:     make(map[engine.WorkerID]*shop.Worker),
		debts:       make(map[engine.DebtID]*shop.Debt),
	}
}

// =============================================================================
// WORK ORDERS
// =============================================================================

func (m *Memory) GetWorkOrder(_ context.Context, id engine.WorkOrderID) (*shop.WorkOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "work order", ID: string(id)}
	}
	return cloneOrder(o), nil
}

func (m *Memory) SaveWorkOrder(_ context.Context, o *shop.WorkOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		m.orderSeq = append(m.orderSeq, o.ID)
	}
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *Memory) ListWorkOrders(_ context.Context, includeDeleted bool) ([]*shop.WorkOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*shop.WorkOrder
	for _, id := range m.orderSeq {
		o := m.orders[id]
		if o.Deleted && !includeDeleted {
			continue
		}
		result = append(result, cloneOrder(o))
	}
	return result, nil
}

func (m *Memory) CompleteWorkOrder(_ context.Context, id engine.WorkOrderID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return false, &engine.NotFoundError{Kind: "work order", ID: string(id)}
	}
	if o.Status == shop.OrderCompleted || o.Status == shop.OrderDelivered {
		return false, nil
	}
	o.Status = shop.OrderCompleted
	return true, nil
}

func (m *Memory) CompareAndSetOrderStatus(_ context.Context, id engine.WorkOrderID, from, to shop.OrderStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return false, &engine.NotFoundError{Kind: "work order", ID: string(id)}
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func (m *Memory) GetAssignment(_ context.Context, id engine.AssignmentID) (*shop.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[id]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "assignment", ID: string(id)}
	}
	return cloneAssignment(a), nil
}

func (m *Memory) SaveAssignment(_ context.Context, a *shop.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assignments[a.ID]; !ok {
		m.assignSeq = append(m.assignSeq, a.ID)
	}
	m.assignments[a.ID] = cloneAssignment(a)
	return nil
}

func (m *Memory) AssignmentsByWorkOrder(_ context.Context, orderID engine.WorkOrderID) ([]*shop.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*shop.Assignment
	for _, id := range m.assignSeq {
		if a := m.assignments[id]; a.WorkOrderID == orderID {
			result = append(result, cloneAssignment(a))
		}
	}
	return result, nil
}

// =============================================================================
// BATCHES
// =============================================================================

func (m *Memory) GetBatch(_ context.Context, id engine.BatchID) (*shop.ServiceBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "batch", ID: string(id)}
	}
	return cloneBatch(b), nil
}

func (m *Memory) SaveBatch(_ context.Context, b *shop.ServiceBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.batches[b.ID]; !ok {
		m.batchSeq = append(m.batchSeq, b.ID)
	}
	m.batches[b.ID] = cloneBatch(b)
	return nil
}

func (m *Memory) BatchesByWorkOrder(_ context.Context, orderID engine.WorkOrderID) ([]*shop.ServiceBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*shop.ServiceBatch
	for _, id := range m.batchSeq {
		if b := m.batches[id]; b.WorkOrderID == orderID {
			result = append(result, cloneBatch(b))
		}
	}
	return result, nil
}

func (m *Memory) ActiveBatchByWorkOrder(_ context.Context, orderID engine.WorkOrderID) (*shop.ServiceBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var candidates []*shop.ServiceBatch
	for _, id := range m.batchSeq {
		b := m.batches[id]
		if b.WorkOrderID == orderID && b.Status != shop.BatchDelivered {
			candidates = append(candidates, b)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	return cloneBatch(candidates[0]), nil
}

func (m *Memory) BatchByItem(_ context.Context, itemID engine.ItemID) (*shop.ServiceBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.batchSeq {
		b := m.batches[id]
		for _, it := range b.Items {
			if it.ID == itemID {
				return cloneBatch(b), nil
			}
		}
	}
	return nil, &engine.NotFoundError{Kind: "item", ID: string(itemID)}
}

// =============================================================================
// WORKERS
// =============================================================================

func (m *Memory) GetWorker(_ context.Context, id engine.WorkerID) (*shop.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[id]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "worker", ID: string(id)}
	}
	clone := *w
	return &clone, nil
}

func (m *Memory) SaveWorker(_ context.Context, w *shop.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workers[w.ID]; !ok {
		m.workerSeq = append(m.workerSeq, w.ID)
	}
	clone := *w
	m.workers[w.ID] = &clone
	return nil
}

func (m *Memory) ListWorkers(_ context.Context) ([]*shop.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*shop.Worker
	for _, id := range m.workerSeq {
		clone := *m.workers[id]
		result = append(result, &clone)
	}
	return result, nil
}

func (m *Memory) AddWorkerEarnings(_ context.Context, id engine.WorkerID, delta engine.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[id]
	if !ok {
		return &engine.NotFoundError{Kind: "worker", ID: string(id)}
	}
	w.Earnings = w.Earnings.Add(delta)
	return nil
}

func (m *Memory) ResetWorkerPeriod(_ context.Context, id engine.WorkerID) (engine.Money, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[id]
	if !ok {
		return engine.Zero(), &engine.NotFoundError{Kind: "worker", ID: string(id)}
	}
	folded := w.Earnings
	w.TotalEarnings = w.TotalEarnings.Add(folded)
	w.Earnings = engine.Zero()
	return folded, nil
}

// =============================================================================
// DEBTS
// =============================================================================

func (m *Memory) GetDebt(_ context.Context, id engine.DebtID) (*shop.Debt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.debts[id]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "debt", ID: string(id)}
	}
	return cloneDebt(d), nil
}

func (m *Memory) SaveDebt(_ context.Context, d *shop.Debt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.debts[d.ID]; !ok {
		m.debtSeq = append(m.debtSeq, d.ID)
	}
	m.debts[d.ID] = cloneDebt(d)
	return nil
}

func (m *Memory) DebtsByWorkOrder(_ context.Context, orderID engine.WorkOrderID) ([]*shop.Debt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*shop.Debt
	for _, id := range m.debtSeq {
		if d := m.debts[id]; d.WorkOrderID == orderID {
			result = append(result, cloneDebt(d))
		}
	}
	return result, nil
}

func (m *Memory) ActiveDebtByWorkOrder(_ context.Context, orderID engine.WorkOrderID) (*shop.Debt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var active []*shop.Debt
	for _, id := range m.debtSeq {
		d := m.debts[id]
		if d.WorkOrderID == orderID && d.Active() {
			active = append(active, d)
		}
	}
	switch len(active) {
	case 0:
		return nil, nil
	case 1:
		return cloneDebt(active[0]), nil
	}
	return nil, &engine.DuplicateActiveDebtError{WorkOrderID: orderID, Count: len(active)}
}

// Reset drops all records. Dev tooling only.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = make(map[engine.WorkOrderID]*shop.WorkOrder)
	m.orderSeq = nil
	m.assignments = make(map[engine.AssignmentID]*shop.Assignment)
	m.assignSeq = nil
	m.batches = make(map[engine.BatchID]*shop.ServiceBatch)
	m.batchSeq = nil
	m.workers = make(map[engine.WorkerID]*shop.Worker)
	m.workerSeq = nil
	m.debts = make(map[engine.DebtID]*shop.Debt)
	m.debtSeq = nil
	return nil
}

// =============================================================================
// CLONE HELPERS
// =============================================================================

func cloneOrder(o *shop.WorkOrder) *shop.WorkOrder {
	clone := *o
	clone.LineItems = append([]shop.LineItem(nil), o.LineItems...)
	return &clone
}

func cloneAssignment(a *shop.Assignment) *shop.Assignment {
	clone := *a
	if a.Single != nil {
		single := *a.Single
		clone.Single = &single
	}
	clone.Multi = append([]shop.WorkerShare(nil), a.Multi...)
	clone.CompletedAt = cloneTime(a.CompletedAt)
	clone.ReviewedAt = cloneTime(a.ReviewedAt)
	return &clone
}

func cloneBatch(b *shop.ServiceBatch) *shop.ServiceBatch {
	clone := *b
	clone.Items = make([]shop.BatchItem, len(b.Items))
	for i, it := range b.Items {
		it.CompletedAt = cloneTime(it.CompletedAt)
		it.ReviewedAt = cloneTime(it.ReviewedAt)
		clone.Items[i] = it
	}
	return &clone
}

func cloneDebt(d *shop.Debt) *shop.Debt {
	clone := *d
	clone.Payments = append([]shop.DebtPayment(nil), d.Payments...)
	return &clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}
