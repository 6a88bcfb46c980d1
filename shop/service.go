/*
service.go - Operations exposed to controllers

PURPOSE:
  The façade that HTTP controllers call. Each method is one logical
  operation: it validates input, applies state-machine edges, persists,
  and routes every terminal transition through the settlement
  coordinator. Controllers act on the returned flags (e.g. send a
  notification because WorkOrderCompleted is true); the service itself
  performs no I/O beyond persistence.

OPERATIONS:
  Intake:      CreateWorkOrder, UpdateLineItems, DeleteWorkOrder
  Workers:     CreateWorker, PeriodReset
  Assignments: AssignWorkers, ApproveAssignment, RejectAssignment
  Units:       TransitionUnit (start / finish / restart on either kind)
  Batches:     ReviewBatchItem (may promote the batch)
  Payments:    RecordOrderPayment, RecordBatchPayment, RecordDebtPayment
  Debts:       GetActiveDebt
  Delivery:    DeliverWorkOrder
  Queries:     Archived

TRIGGER POINTS:
  ApproveAssignment, RejectAssignment, and ReviewBatchItem all end in
  Settlement.Settle. They are the only places a work order can complete,
  and Settle's compare-and-swap makes repeats and races no-ops.

SEE ALSO:
  - settlement.go: The guarded completion step
  - engine/statemachine.go: Edge legality
*/
package shop

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/garage-engine/engine"
)

// Service wires the settlement engine's components over one store.
type Service struct {
	Store      Store
	Gate       *CompletionGate
	Settlement *Settlement
	Debts      *DebtLedger
	Earnings   *Earnings
}

func NewService(store Store) *Service {
	gate := &CompletionGate{Orders: store, Assignments: store, Batches: store}
	debts := NewDebtLedger(store)
	return &Service{
		Store:      store,
		Gate:       gate,
		Settlement: &Settlement{Orders: store, Gate: gate, Debts: debts},
		Debts:      debts,
		Earnings:   &Earnings{Workers: store},
	}
}

// =============================================================================
// INTAKE
// =============================================================================

type CreateWorkOrderInput struct {
	Vehicle    string
	OwnerName  string
	OwnerPhone string
	LineItems  []LineItem
}

// CreateWorkOrder records a new repair job and generates its first
// service batch from the priced line items.
func (s *Service) CreateWorkOrder(ctx context.Context, in CreateWorkOrderInput) (*WorkOrder, error) {
	now := time.Now()
	order := &WorkOrder{
		ID:            engine.WorkOrderID(uuid.NewString()),
		Vehicle:       in.Vehicle,
		OwnerName:     in.OwnerName,
		OwnerPhone:    in.OwnerPhone,
		LineItems:     in.LineItems,
		PaidAmount:    engine.Zero(),
		PaymentStatus: engine.PaymentPending,
		Status:        OrderPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Store.SaveWorkOrder(ctx, order); err != nil {
		return nil, err
	}

	if len(in.LineItems) > 0 {
		batch := newBatchFromLines(order.ID, in.LineItems, now)
		if err := s.Store.SaveBatch(ctx, batch); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// UpdateLineItems replaces the order's line items and refreshes the
// active batch to match. Items whose name survives keep their status;
// new items start pending. A new round of work gets a new batch when no
// active one exists.
func (s *Service) UpdateLineItems(ctx context.Context, orderID engine.WorkOrderID, items []LineItem) (*WorkOrder, error) {
	order, err := s.Store.GetWorkOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	order.LineItems = items
	if order.PaidAmount.GreaterThan(order.TotalEstimate()) {
		return nil, fmt.Errorf("line items would drop estimate below recorded payments: %w",
			engine.ErrInvalidAmount)
	}
	order.RecalculatePayment()
	order.UpdatedAt = time.Now()
	if err := s.Store.SaveWorkOrder(ctx, order); err != nil {
		return nil, err
	}

	active, err := s.Store.ActiveBatchByWorkOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if active == nil {
		if len(items) == 0 {
			return order, nil
		}
		batch := newBatchFromLines(orderID, items, now)
		if err := s.Store.SaveBatch(ctx, batch); err != nil {
			return nil, err
		}
		return order, nil
	}

	active.Items = regenerateItems(active.Items, items)
	refreshBatchStatus(active)
	active.RecalculatePayment()
	active.UpdatedAt = now
	if err := s.Store.SaveBatch(ctx, active); err != nil {
		return nil, err
	}
	return order, nil
}

// DeleteWorkOrder soft-deletes the order. Nothing is ever physically
// removed.
func (s *Service) DeleteWorkOrder(ctx context.Context, orderID engine.WorkOrderID) error {
	order, err := s.Store.GetWorkOrder(ctx, orderID)
	if err != nil {
		return err
	}
	order.Deleted = true
	order.UpdatedAt = time.Now()
	return s.Store.SaveWorkOrder(ctx, order)
}

func newBatchFromLines(orderID engine.WorkOrderID, lines []LineItem, now time.Time) *ServiceBatch {
	batch := &ServiceBatch{
		ID:            engine.BatchID(uuid.NewString()),
		WorkOrderID:   orderID,
		PaidAmount:    engine.Zero(),
		PaymentStatus: engine.PaymentPending,
		Status:        BatchPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, li := range lines {
		batch.Items = append(batch.Items, BatchItem{
			ID:       engine.ItemID(uuid.NewString()),
			Name:     li.Name,
			Price:    li.Price,
			Quantity: li.Quantity,
			Category: li.Category,
			Status:   engine.UnitPending,
		})
	}
	return batch
}

func regenerateItems(existing []BatchItem, lines []LineItem) []BatchItem {
	byName := make(map[string]BatchItem, len(existing))
	for _, it := range existing {
		byName[it.Name] = it
	}

	items := make([]BatchItem, 0, len(lines))
	for _, li := range lines {
		if prev, ok := byName[li.Name]; ok {
			prev.Price = li.Price
			prev.Quantity = li.Quantity
			prev.Category = li.Category
			items = append(items, prev)
			continue
		}
		items = append(items, BatchItem{
			ID:       engine.ItemID(uuid.NewString()),
			Name:     li.Name,
			Price:    li.Price,
			Quantity: li.Quantity,
			Category: li.Category,
			Status:   engine.UnitPending,
		})
	}
	return items
}

// =============================================================================
// WORKERS
// =============================================================================

type CreateWorkerInput struct {
	Name       string
	Percentage decimal.Decimal
}

func (s *Service) CreateWorker(ctx context.Context, in CreateWorkerInput) (*Worker, error) {
	pct := in.Percentage
	if pct.IsZero() {
		pct = engine.DefaultSharePercentage
	}
	worker := &Worker{
		ID:            engine.WorkerID(uuid.NewString()),
		Name:          in.Name,
		Percentage:    pct,
		Earnings:      engine.Zero(),
		TotalEarnings: engine.Zero(),
		CreatedAt:     time.Now(),
	}
	if err := s.Store.SaveWorker(ctx, worker); err != nil {
		return nil, err
	}
	return worker, nil
}

// PeriodReset folds a worker's period earnings into the lifetime total.
// Called by an external scheduler.
func (s *Service) PeriodReset(ctx context.Context, workerID engine.WorkerID) (engine.Money, error) {
	return s.Earnings.PeriodReset(ctx, workerID)
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

type AssignWorker struct {
	WorkerID   engine.WorkerID
	Percentage *decimal.Decimal // nil uses the worker's stored default
}

type AssignWorkersInput struct {
	// AssignmentID updates an existing assignment when set; empty
	// creates a new one.
	AssignmentID engine.AssignmentID

	WorkOrderID engine.WorkOrderID
	ItemID      engine.ItemID // optional
	Title       string
	Description string
	Payment     engine.Money
	Workers     []AssignWorker
}

// AssignWorkers creates or reassigns an assignment and computes the
// payment split. The percentage captured on each share at this moment
// is authoritative for earnings; later changes to a worker's default do
// not reach already-computed shares.
func (s *Service) AssignWorkers(ctx context.Context, in AssignWorkersInput) (*Assignment, error) {
	if len(in.Workers) == 0 {
		return nil, engine.ErrNoWorkersAssigned
	}

	inputs := make([]engine.SplitInput, 0, len(in.Workers))
	for _, w := range in.Workers {
		worker, err := s.Store.GetWorker(ctx, w.WorkerID)
		if err != nil {
			return nil, err
		}
		def := worker.Percentage
		inputs = append(inputs, engine.SplitInput{
			WorkerID:          w.WorkerID,
			Percentage:        w.Percentage,
			DefaultPercentage: &def,
		})
	}

	results, err := engine.SplitPayment(in.Payment, inputs)
	if err != nil {
		return nil, err
	}
	shares := make([]WorkerShare, len(results))
	for i, r := range results {
		shares[i] = WorkerShare{
			WorkerID:   r.WorkerID,
			Percentage: r.Percentage,
			Allocated:  r.Allocated,
			Earning:    r.Earning,
			OwnerShare: r.OwnerShare,
		}
	}

	now := time.Now()
	if in.AssignmentID != "" {
		a, err := s.Store.GetAssignment(ctx, in.AssignmentID)
		if err != nil {
			return nil, err
		}
		if a.Status == engine.UnitApproved {
			// Reassigning approved work would detach the recorded
			// split from the earnings already applied.
			return nil, fmt.Errorf("assignment %s is already approved: %w",
				a.ID, engine.ErrInvalidTransition)
		}
		a.Title = in.Title
		a.Description = in.Description
		a.Payment = in.Payment
		a.SetShares(shares)
		a.UpdatedAt = now
		if err := s.Store.SaveAssignment(ctx, a); err != nil {
			return nil, err
		}
		return a, nil
	}

	if _, err := s.Store.GetWorkOrder(ctx, in.WorkOrderID); err != nil {
		return nil, err
	}
	a := &Assignment{
		ID:          engine.AssignmentID(uuid.NewString()),
		WorkOrderID: in.WorkOrderID,
		ItemID:      in.ItemID,
		Title:       in.Title,
		Description: in.Description,
		Payment:     in.Payment,
		Status:      engine.UnitPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	a.SetShares(shares)
	if err := s.Store.SaveAssignment(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// AssignmentReview is the outcome of approving or rejecting an
// assignment.
type AssignmentReview struct {
	Assignment         *Assignment
	WorkOrderCompleted bool
}

// ApproveAssignment moves the assignment completed → approved, applies
// earnings exactly once, and re-runs settlement for the owning order.
func (s *Service) ApproveAssignment(ctx context.Context, id engine.AssignmentID) (*AssignmentReview, error) {
	a, err := s.Store.GetAssignment(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := engine.Transition(a.Status, engine.EventApprove)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	a.Status = next
	a.ReviewedAt = &now
	a.UpdatedAt = now
	if err := s.Store.SaveAssignment(ctx, a); err != nil {
		return nil, err
	}

	// Earnings land here and only here: the approve edge is one-way, so
	// this cannot run twice for the same assignment.
	if err := s.Earnings.ApplyOnApproval(ctx, a); err != nil {
		return nil, err
	}

	settle, err := s.Settlement.Settle(ctx, a.WorkOrderID)
	if err != nil {
		return nil, err
	}
	return &AssignmentReview{Assignment: a, WorkOrderCompleted: settle.Completed}, nil
}

// RejectAssignment moves the assignment completed → rejected. No
// earnings are applied; settlement still runs because a rejection can
// be the last outstanding review.
func (s *Service) RejectAssignment(ctx context.Context, id engine.AssignmentID, reason string) (*AssignmentReview, error) {
	a, err := s.Store.GetAssignment(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := engine.Transition(a.Status, engine.EventReject)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	a.Status = next
	a.RejectionReason = reason
	a.ReviewedAt = &now
	a.UpdatedAt = now
	if err := s.Store.SaveAssignment(ctx, a); err != nil {
		return nil, err
	}

	settle, err := s.Settlement.Settle(ctx, a.WorkOrderID)
	if err != nil {
		return nil, err
	}
	return &AssignmentReview{Assignment: a, WorkOrderCompleted: settle.Completed}, nil
}

// =============================================================================
// GENERIC UNIT TRANSITIONS
// =============================================================================

type UnitKind string

const (
	UnitAssignment UnitKind = "assignment"
	UnitItem       UnitKind = "item"
)

// UnitRef identifies one unit of work of either kind.
type UnitRef struct {
	Kind         UnitKind
	AssignmentID engine.AssignmentID
	ItemID       engine.ItemID
}

// TransitionResult reports a unit transition and any knock-on effects.
type TransitionResult struct {
	Assignment         *Assignment
	Item               *BatchItem
	Batch              *ServiceBatch
	BatchPromoted      bool
	WorkOrderCompleted bool
}

// TransitionUnit applies a lifecycle event to either unit kind. A
// non-empty fromGuard must match the stored status; a stale view is
// reported as an invalid transition. Review events are routed through
// the dedicated operations so earnings and settlement cannot be
// bypassed.
func (s *Service) TransitionUnit(ctx context.Context, ref UnitRef, fromGuard engine.UnitStatus, event engine.UnitEvent) (*TransitionResult, error) {
	switch ref.Kind {
	case UnitAssignment:
		return s.transitionAssignment(ctx, ref.AssignmentID, fromGuard, event)
	case UnitItem:
		return s.transitionItem(ctx, ref.ItemID, fromGuard, event)
	}
	return nil, fmt.Errorf("unit kind %q: %w", ref.Kind, engine.ErrNotFound)
}

func (s *Service) transitionAssignment(ctx context.Context, id engine.AssignmentID, fromGuard engine.UnitStatus, event engine.UnitEvent) (*TransitionResult, error) {
	a, err := s.Store.GetAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	if fromGuard != "" && a.Status != fromGuard {
		return nil, &engine.InvalidTransitionError{From: a.Status, Event: event}
	}

	switch event {
	case engine.EventApprove:
		review, err := s.ApproveAssignment(ctx, id)
		if err != nil {
			return nil, err
		}
		return &TransitionResult{Assignment: review.Assignment, WorkOrderCompleted: review.WorkOrderCompleted}, nil
	case engine.EventReject:
		// The generic transition carries no reason; callers who have
		// one use RejectAssignment directly.
		review, err := s.RejectAssignment(ctx, id, "")
		if err != nil {
			return nil, err
		}
		return &TransitionResult{Assignment: review.Assignment, WorkOrderCompleted: review.WorkOrderCompleted}, nil
	}

	next, err := engine.Transition(a.Status, event)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	a.Status = next
	switch event {
	case engine.EventFinish:
		a.CompletedAt = &now
	case engine.EventRestart:
		a.RejectionReason = ""
		a.CompletedAt = nil
		a.ReviewedAt = nil
	}
	a.UpdatedAt = now
	if err := s.Store.SaveAssignment(ctx, a); err != nil {
		return nil, err
	}

	s.markOrderInProgress(ctx, a.WorkOrderID)
	return &TransitionResult{Assignment: a}, nil
}

func (s *Service) transitionItem(ctx context.Context, id engine.ItemID, fromGuard engine.UnitStatus, event engine.UnitEvent) (*TransitionResult, error) {
	batch, err := s.Store.BatchByItem(ctx, id)
	if err != nil {
		return nil, err
	}
	item := batch.Item(id)
	if item == nil {
		return nil, &engine.NotFoundError{Kind: "item", ID: string(id)}
	}
	if fromGuard != "" && item.Status != fromGuard {
		return nil, &engine.InvalidTransitionError{From: item.Status, Event: event}
	}

	switch event {
	case engine.EventApprove:
		return s.ReviewBatchItem(ctx, id, true, "")
	case engine.EventReject:
		return s.ReviewBatchItem(ctx, id, false, "")
	}

	next, err := engine.Transition(item.Status, event)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	item.Status = next
	switch event {
	case engine.EventFinish:
		item.CompletedAt = &now
	case engine.EventRestart:
		item.RejectionReason = ""
		item.CompletedAt = nil
		item.ReviewedAt = nil
	}

	refreshBatchStatus(batch)
	batch.UpdatedAt = now
	if err := s.Store.SaveBatch(ctx, batch); err != nil {
		return nil, err
	}

	s.markOrderInProgress(ctx, batch.WorkOrderID)
	return &TransitionResult{Item: item, Batch: batch}, nil
}

// markOrderInProgress flips a pending order to in-progress when work
// starts. Best-effort; the swap failing just means someone got there
// first.
func (s *Service) markOrderInProgress(ctx context.Context, orderID engine.WorkOrderID) {
	_, _ = s.Store.CompareAndSetOrderStatus(ctx, orderID, OrderPending, OrderInProgress)
}

// =============================================================================
// BATCH ITEM REVIEW
// =============================================================================

// ReviewBatchItem approves or rejects a finished batch item. When the
// review leaves every item terminal, the batch itself is promoted:
// completed when at least one item was approved, rejected when all
// were declined. A promotion to completed triggers settlement.
func (s *Service) ReviewBatchItem(ctx context.Context, itemID engine.ItemID, approved bool, reason string) (*TransitionResult, error) {
	batch, err := s.Store.BatchByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	item := batch.Item(itemID)
	if item == nil {
		return nil, &engine.NotFoundError{Kind: "item", ID: string(itemID)}
	}

	event := engine.EventApprove
	if !approved {
		event = engine.EventReject
	}
	next, err := engine.Transition(item.Status, event)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	item.Status = next
	item.ReviewedAt = &now
	if !approved {
		item.RejectionReason = reason
	}

	wasCompleted := batch.Status == BatchCompleted
	refreshBatchStatus(batch)
	batch.RecalculatePayment()
	batch.UpdatedAt = now
	if err := s.Store.SaveBatch(ctx, batch); err != nil {
		return nil, err
	}

	result := &TransitionResult{
		Item:          item,
		Batch:         batch,
		BatchPromoted: batch.Status == BatchCompleted && !wasCompleted,
	}
	if result.BatchPromoted {
		settle, err := s.Settlement.Settle(ctx, batch.WorkOrderID)
		if err != nil {
			return nil, err
		}
		result.WorkOrderCompleted = settle.Completed
	}
	return result, nil
}

// refreshBatchStatus re-derives the batch status from its items.
// Delivered batches are final and never re-derived.
func refreshBatchStatus(b *ServiceBatch) {
	if b.Status == BatchDelivered || len(b.Items) == 0 {
		return
	}

	allTerminal := true
	anyApproved := false
	allFinished := true
	anyProgress := false
	for _, it := range b.Items {
		if !it.Status.Terminal() {
			allTerminal = false
		}
		if it.Status == engine.UnitApproved {
			anyApproved = true
		}
		if it.Status == engine.UnitPending {
			allFinished = false
		}
		if it.Status != engine.UnitPending {
			anyProgress = true
		}
		if it.Status == engine.UnitInProgress {
			allFinished = false
		}
	}

	switch {
	case allTerminal && anyApproved:
		b.Status = BatchCompleted
	case allTerminal:
		b.Status = BatchRejected
	case allFinished:
		b.Status = BatchReadyForDelivery
	case anyProgress:
		b.Status = BatchInProgress
	default:
		b.Status = BatchPending
	}
}

// =============================================================================
// PAYMENTS
// =============================================================================

// RecordOrderPayment records a customer payment against the work order.
// Overpayment is rejected, not clamped. An existing active debt is
// brought in sync so the receivable mirrors the new balance.
func (s *Service) RecordOrderPayment(ctx context.Context, orderID engine.WorkOrderID, amount engine.Money, method, notes string) (*WorkOrder, error) {
	if !amount.IsPositive() {
		return nil, engine.ErrInvalidAmount
	}
	order, err := s.Store.GetWorkOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(order.Remaining()) {
		return nil, &engine.InsufficientBalanceError{
			Remaining: order.Remaining(),
			Requested: amount,
		}
	}

	order.PaidAmount = order.PaidAmount.Add(amount)
	order.RecalculatePayment()
	order.UpdatedAt = time.Now()
	if err := s.Store.SaveWorkOrder(ctx, order); err != nil {
		return nil, err
	}

	active, err := s.Debts.ActiveDebt(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		_, err = s.Debts.EnsureReflectsBalance(ctx, orderID, order.TotalEstimate(), order.PaidAmount,
			PaymentInfo{Method: method, Notes: notes})
		if err != nil {
			return nil, err
		}
	}
	return order, nil
}

// RecordBatchPayment records a payment against a batch's independent
// sub-ledger.
func (s *Service) RecordBatchPayment(ctx context.Context, batchID engine.BatchID, amount engine.Money, method, notes string) (*ServiceBatch, error) {
	if !amount.IsPositive() {
		return nil, engine.ErrInvalidAmount
	}
	batch, err := s.Store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(batch.Remaining()) {
		return nil, &engine.InsufficientBalanceError{
			Remaining: batch.Remaining(),
			Requested: amount,
		}
	}

	batch.PaidAmount = batch.PaidAmount.Add(amount)
	batch.RecalculatePayment()
	batch.UpdatedAt = time.Now()
	if err := s.Store.SaveBatch(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// RecordDebtPayment records a payment directly against a receivable.
func (s *Service) RecordDebtPayment(ctx context.Context, debtID engine.DebtID, amount engine.Money, method, notes string) (*Debt, error) {
	return s.Debts.RecordPayment(ctx, debtID, amount, method, notes)
}

// GetActiveDebt returns the order's current non-paid debt, or nil.
func (s *Service) GetActiveDebt(ctx context.Context, orderID engine.WorkOrderID) (*Debt, error) {
	return s.Debts.ActiveDebt(ctx, orderID)
}

// =============================================================================
// DELIVERY AND ARCHIVAL
// =============================================================================

// DeliverWorkOrder hands the finished vehicle back: completed →
// delivered on the order, and every completed batch follows.
func (s *Service) DeliverWorkOrder(ctx context.Context, orderID engine.WorkOrderID) (*WorkOrder, error) {
	swapped, err := s.Store.CompareAndSetOrderStatus(ctx, orderID, OrderCompleted, OrderDelivered)
	if err != nil {
		return nil, err
	}
	if !swapped {
		order, err := s.Store.GetWorkOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("work order %s is %s, not completed: %w",
			orderID, order.Status, engine.ErrInvalidTransition)
	}

	batches, err := s.Store.BatchesByWorkOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for _, b := range batches {
		if b.Status != BatchCompleted {
			continue
		}
		b.Status = BatchDelivered
		b.UpdatedAt = now
		if err := s.Store.SaveBatch(ctx, b); err != nil {
			return nil, err
		}
	}
	return s.Store.GetWorkOrder(ctx, orderID)
}

// Archived reports whether the order is off the active board, derived
// from the core's own state rather than recomputed ad hoc by callers.
func (s *Service) Archived(ctx context.Context, orderID engine.WorkOrderID) (bool, error) {
	order, err := s.Store.GetWorkOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	active, err := s.Debts.ActiveDebt(ctx, orderID)
	if err != nil {
		return false, err
	}
	return order.IsArchived(active != nil), nil
}
