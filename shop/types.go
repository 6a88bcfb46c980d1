/*
Package shop implements the repair-shop domain on top of the engine
package: work orders, service batches, worker assignments, debts, and
the settlement logic that ties them together.

KEY CONCEPTS IN THIS FILE (types.go):
  - WorkOrder: One vehicle repair job with priced line items
  - ServiceBatch: A round of billable items for a work order
  - Assignment: A unit of work given to one or more workers
  - Worker: Earns a percentage share of assigned work
  - Debt: The outstanding receivable for a work order

DERIVED VALUES:
  Totals and payment statuses are always computed from the recorded
  parts (line items, payment history), never stored as authoritative
  fields. Recalculate() methods keep persisted snapshots in sync.

SHARE VARIANTS:
  An assignment's split is either a single legacy share or a list of
  shares, tagged by ShareMode. All split and earnings logic goes through
  the normalized Shares() view and never inspects the variant directly.

SEE ALSO:
  - gate.go: Completion detection across assignments and batches
  - settlement.go: Guarded work-order completion
  - debt.go: Receivable lifecycle
*/
package shop

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/garage-engine/engine"
)

// =============================================================================
// WORK ORDER - One vehicle repair job
// =============================================================================

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderInProgress OrderStatus = "in-progress"
	OrderCompleted  OrderStatus = "completed"
	OrderDelivered  OrderStatus = "delivered"
)

// LineItem is one priced line on a work order. Category carries over to
// the batch item generated from this line.
type LineItem struct {
	Name     string
	Price    engine.Money
	Quantity int
	Category ItemCategory
}

func (li LineItem) Total() engine.Money {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// WorkOrder is one vehicle repair job from intake to delivery.
// Never physically deleted; Deleted is an independent soft flag.
type WorkOrder struct {
	ID engine.WorkOrderID

	// Descriptive fields, not relevant to the settlement engine.
	Vehicle    string
	OwnerName  string
	OwnerPhone string

	LineItems     []LineItem
	PaidAmount    engine.Money
	PaymentStatus engine.PaymentStatus
	Status        OrderStatus
	Deleted       bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TotalEstimate is the sum of line-item price × quantity.
func (o *WorkOrder) TotalEstimate() engine.Money {
	total := engine.Zero()
	for _, li := range o.LineItems {
		total = total.Add(li.Total())
	}
	return total
}

// Remaining is the unpaid portion of the estimate.
func (o *WorkOrder) Remaining() engine.Money {
	return o.TotalEstimate().Sub(o.PaidAmount)
}

// RecalculatePayment re-derives the payment status from recorded amounts.
func (o *WorkOrder) RecalculatePayment() {
	o.PaymentStatus = engine.DerivePaymentStatus(o.PaidAmount, o.TotalEstimate())
}

// IsArchived is the single predicate for "this order is off the active
// board": soft-deleted, finished, or carried as a receivable.
func (o *WorkOrder) IsArchived(hasActiveDebt bool) bool {
	if o.Deleted {
		return true
	}
	if o.Status == OrderCompleted || o.Status == OrderDelivered {
		return true
	}
	return hasActiveDebt
}

// =============================================================================
// SERVICE BATCH - One round of billable items
// =============================================================================

type BatchStatus string

const (
	BatchPending          BatchStatus = "pending"
	BatchInProgress       BatchStatus = "in-progress"
	BatchReadyForDelivery BatchStatus = "ready-for-delivery"
	BatchRejected         BatchStatus = "rejected"
	BatchCompleted        BatchStatus = "completed"
	BatchDelivered        BatchStatus = "delivered"
)

type ItemCategory string

const (
	CategoryPart     ItemCategory = "part"
	CategoryMaterial ItemCategory = "material"
	CategoryLabor    ItemCategory = "labor"
)

// BatchItem is a single priced line inside a service batch, with its own
// work-unit status.
type BatchItem struct {
	ID       engine.ItemID
	Name     string
	Price    engine.Money
	Quantity int
	Category ItemCategory

	Status          engine.UnitStatus
	RejectionReason string
	CompletedAt     *time.Time
	ReviewedAt      *time.Time
}

func (it BatchItem) Total() engine.Money {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// ServiceBatch bundles the billable items of one round of work. A work
// order may accumulate several batches over its life; only the most
// recent non-delivered one is active.
type ServiceBatch struct {
	ID          engine.BatchID
	WorkOrderID engine.WorkOrderID
	Items       []BatchItem

	// Independent payment sub-ledger for this batch.
	PaidAmount    engine.Money
	PaymentStatus engine.PaymentStatus

	Status BatchStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TotalPrice is the derived sum of item totals, recomputed on every item
// mutation.
func (b *ServiceBatch) TotalPrice() engine.Money {
	total := engine.Zero()
	for _, it := range b.Items {
		total = total.Add(it.Total())
	}
	return total
}

func (b *ServiceBatch) Remaining() engine.Money {
	return b.TotalPrice().Sub(b.PaidAmount)
}

func (b *ServiceBatch) RecalculatePayment() {
	b.PaymentStatus = engine.DerivePaymentStatus(b.PaidAmount, b.TotalPrice())
}

// Item returns a pointer to the item with the given id, or nil.
func (b *ServiceBatch) Item(id engine.ItemID) *BatchItem {
	for i := range b.Items {
		if b.Items[i].ID == id {
			return &b.Items[i]
		}
	}
	return nil
}

// =============================================================================
// ASSIGNMENT - Work given to one or more workers
// =============================================================================

// ShareMode tags which share variant an assignment carries.
type ShareMode string

const (
	// ShareSingle is the legacy shape: one share embedded directly.
	ShareSingle ShareMode = "single"
	// ShareMulti is a list of shares, one per worker.
	ShareMulti ShareMode = "multi"
)

// WorkerShare is the computed split of one assignment's allocated amount
// for one worker. The percentage recorded here at split time is
// authoritative for earnings; the worker's default is never re-fetched.
type WorkerShare struct {
	WorkerID   engine.WorkerID
	Percentage decimal.Decimal
	Allocated  engine.Money
	Earning    engine.Money
	OwnerShare engine.Money
}

// Assignment is a unit of work tied to exactly one work order and
// optionally one batch item.
type Assignment struct {
	ID          engine.AssignmentID
	WorkOrderID engine.WorkOrderID
	ItemID      engine.ItemID // optional, empty when not item-bound

	Title       string
	Description string
	Payment     engine.Money

	Status          engine.UnitStatus
	RejectionReason string
	CompletedAt     *time.Time
	ReviewedAt      *time.Time

	// Exactly one variant is meaningful at a time, selected by Mode.
	Mode   ShareMode
	Single *WorkerShare
	Multi  []WorkerShare

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Shares returns the normalized share list regardless of variant.
func (a *Assignment) Shares() []WorkerShare {
	switch a.Mode {
	case ShareSingle:
		if a.Single == nil {
			return nil
		}
		return []WorkerShare{*a.Single}
	case ShareMulti:
		return a.Multi
	}
	return nil
}

// SetShares stores the share list, picking the variant by count.
func (a *Assignment) SetShares(shares []WorkerShare) {
	if len(shares) == 1 {
		single := shares[0]
		a.Mode = ShareSingle
		a.Single = &single
		a.Multi = nil
		return
	}
	a.Mode = ShareMulti
	a.Multi = shares
	a.Single = nil
}

// =============================================================================
// WORKER
// =============================================================================

// Worker is a person who performs assigned work for a percentage share.
type Worker struct {
	ID   engine.WorkerID
	Name string

	// Percentage is the default revenue share, overridable per assignment.
	Percentage decimal.Decimal

	// Earnings is the current period balance, folded into TotalEarnings
	// by the period reset. TotalEarnings only ever increases.
	Earnings      engine.Money
	TotalEarnings engine.Money

	CreatedAt time.Time
}

// =============================================================================
// DEBT - Outstanding receivable for a work order
// =============================================================================

// DebtPayment is one append-only payment-history entry.
type DebtPayment struct {
	Amount engine.Money
	Date   time.Time
	Method string
	Notes  string
}

// Debt is a receivable tied to a work order. At most one debt per work
// order may be in a non-paid state at a time. Debts are never deleted.
type Debt struct {
	ID          engine.DebtID
	WorkOrderID engine.WorkOrderID

	// Amount mirrors the order balance at creation/update time.
	Amount engine.Money

	// PaidAmount and Status are derived from Payments, never set
	// directly (except the explicit paid short-circuit in the ledger).
	PaidAmount engine.Money
	Status     engine.PaymentStatus

	Payments []DebtPayment

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Recalculate re-derives PaidAmount and Status from the payment history.
func (d *Debt) Recalculate() {
	paid := engine.Zero()
	for _, p := range d.Payments {
		paid = paid.Add(p.Amount)
	}
	d.PaidAmount = paid
	d.Status = engine.DerivePaymentStatus(paid, d.Amount)
}

// Remaining is the unpaid portion of the receivable.
func (d *Debt) Remaining() engine.Money {
	return d.Amount.Sub(d.PaidAmount)
}

// Active reports whether the debt still carries an outstanding balance.
func (d *Debt) Active() bool {
	return d.Status != engine.PaymentPaid
}
