/*
store.go - Persistence interfaces for the shop domain

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  WorkOrderStore:  Orders, plus the atomic completion transition
  AssignmentStore: Assignments per order
  BatchStore:      Service batches, active-batch and by-item lookup
  WorkerStore:     Workers, atomic earnings increments, period reset
  DebtStore:       Debts, active-debt lookup

ATOMICITY CONTRACT:
  Three operations must be atomic read-modify-writes inside the store,
  not plain read-then-write in the caller:

  - CompleteWorkOrder: conditional status swap. Two concurrent
    settlement triggers must not both observe "not completed".
  - AddWorkerEarnings: increment against the persisted value. Two
    concurrent approvals for the same worker must both land.
  - ResetWorkerPeriod: fold earnings into totalEarnings and zero
    earnings in one step, so no approval lands between read and zero.

NOT FOUND:
  Get* methods return an error wrapping engine.ErrNotFound for missing
  ids. Lookup methods that legitimately may find nothing
  (ActiveBatchByWorkOrder, ActiveDebtByWorkOrder) return (nil, nil).

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - shop/store:   In-memory for testing

SEE ALSO:
  - settlement.go: Relies on CompleteWorkOrder for its guard
  - earnings.go:   Relies on AddWorkerEarnings / ResetWorkerPeriod
*/
package shop

import (
	"context"

	"github.com/warp/garage-engine/engine"
)

// =============================================================================
// STORE INTERFACES
// =============================================================================

type WorkOrderStore interface {
	GetWorkOrder(ctx context.Context, id engine.WorkOrderID) (*WorkOrder, error)
	SaveWorkOrder(ctx context.Context, o *WorkOrder) error
	ListWorkOrders(ctx context.Context, includeDeleted bool) ([]*WorkOrder, error)

	// CompleteWorkOrder atomically sets status to completed iff the
	// order is not already completed or delivered. Returns whether this
	// call performed the transition.
	CompleteWorkOrder(ctx context.Context, id engine.WorkOrderID) (bool, error)

	// CompareAndSetOrderStatus atomically swaps from → to.
	// Returns false without error when the current status is not from.
	CompareAndSetOrderStatus(ctx context.Context, id engine.WorkOrderID, from, to OrderStatus) (bool, error)
}

type AssignmentStore interface {
	GetAssignment(ctx context.Context, id engine.AssignmentID) (*Assignment, error)
	SaveAssignment(ctx context.Context, a *Assignment) error
	AssignmentsByWorkOrder(ctx context.Context, orderID engine.WorkOrderID) ([]*Assignment, error)
}

type BatchStore interface {
	GetBatch(ctx context.Context, id engine.BatchID) (*ServiceBatch, error)
	SaveBatch(ctx context.Context, b *ServiceBatch) error
	BatchesByWorkOrder(ctx context.Context, orderID engine.WorkOrderID) ([]*ServiceBatch, error)

	// ActiveBatchByWorkOrder returns the most recent non-delivered batch,
	// or nil when the order has none.
	ActiveBatchByWorkOrder(ctx context.Context, orderID engine.WorkOrderID) (*ServiceBatch, error)

	// BatchByItem returns the batch containing the given item.
	BatchByItem(ctx context.Context, itemID engine.ItemID) (*ServiceBatch, error)
}

type WorkerStore interface {
	GetWorker(ctx context.Context, id engine.WorkerID) (*Worker, error)
	SaveWorker(ctx context.Context, w *Worker) error
	ListWorkers(ctx context.Context) ([]*Worker, error)

	// AddWorkerEarnings atomically increments the worker's current-period
	// earnings by delta.
	AddWorkerEarnings(ctx context.Context, id engine.WorkerID, delta engine.Money) error

	// ResetWorkerPeriod atomically folds earnings into totalEarnings and
	// zeroes earnings. Returns the folded amount.
	ResetWorkerPeriod(ctx context.Context, id engine.WorkerID) (engine.Money, error)
}

type DebtStore interface {
	GetDebt(ctx context.Context, id engine.DebtID) (*Debt, error)
	SaveDebt(ctx context.Context, d *Debt) error
	DebtsByWorkOrder(ctx context.Context, orderID engine.WorkOrderID) ([]*Debt, error)

	// ActiveDebtByWorkOrder returns the one non-paid debt for the order,
	// nil when there is none, and an error wrapping
	// engine.ErrDuplicateActiveDebt when more than one exists.
	ActiveDebtByWorkOrder(ctx context.Context, orderID engine.WorkOrderID) (*Debt, error)
}

// Store aggregates all persistence concerns of the shop domain.
type Store interface {
	WorkOrderStore
	AssignmentStore
	BatchStore
	WorkerStore
	DebtStore
}
