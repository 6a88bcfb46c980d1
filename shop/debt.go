/*
debt.go - Receivable lifecycle for work orders

PURPOSE:
  Maintains at most one active (non-paid) debt per work order, with an
  append-only payment history. Status and paid amount are always
  re-derived from that history, never set directly. The one exception
  is the explicit short-circuit that marks an active debt paid when the
  order balance reaches zero.

IDEMPOTENCY:
  EnsureReflectsBalance is safe to call repeatedly with the same
  inputs: the second call finds the active debt already at the right
  amount with no new payment to append, and writes nothing.

SERIALIZATION:
  Find-active-then-write must not race for the same order, or two
  active debts could be created. A striped mutex keyed by work order
  serializes the ledger's mutations per order; the store's active-debt
  lookup additionally reports duplicates defensively.

SEE ALSO:
  - settlement.go: Calls EnsureReflectsBalance at completion
  - store.go: ActiveDebtByWorkOrder contract
*/
package shop

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/garage-engine/engine"
)

const debtLockStripes = 64

// DebtLedger owns all mutations of debt records.
type DebtLedger struct {
	store DebtStore
	locks [debtLockStripes]sync.Mutex
}

func NewDebtLedger(store DebtStore) *DebtLedger {
	return &DebtLedger{store: store}
}

func (l *DebtLedger) lockFor(orderID engine.WorkOrderID) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(orderID))
	return &l.locks[h.Sum32()%debtLockStripes]
}

// =============================================================================
// ENSURE - Create-or-update the receivable to mirror the order balance
// =============================================================================

// PaymentInfo describes how a payment arrived, for history entries.
// The zero value is labelled as a plain order payment.
type PaymentInfo struct {
	Method string
	Notes  string
}

func (p PaymentInfo) orDefault(notes string) PaymentInfo {
	if p.Method == "" {
		p.Method = "order-payment"
	}
	if p.Notes == "" {
		p.Notes = notes
	}
	return p
}

// EnsureReflectsBalance makes the order's receivable match the given
// totals. Returns the active debt, or nil when the balance is settled
// and no debt existed.
//
//   - remaining ≤ 0: mark any active debt paid; otherwise no-op.
//   - active debt exists: refresh its amount; if the paid total grew
//     since the last update, append the delta to the payment history.
//   - no active debt: create one, seeding the history with any
//     already-known payment.
func (l *DebtLedger) EnsureReflectsBalance(
	ctx context.Context,
	orderID engine.WorkOrderID,
	totalAmount engine.Money,
	paidAmount engine.Money,
	via PaymentInfo,
) (*Debt, error) {
	mu := l.lockFor(orderID)
	mu.Lock()
	defer mu.Unlock()

	active, err := l.store.ActiveDebtByWorkOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("debt ledger: %w", err)
	}

	remaining := totalAmount.Sub(paidAmount)
	now := time.Now()

	if !remaining.IsPositive() {
		if active == nil {
			return nil, nil
		}
		// Explicit short-circuit: balance settled outside the debt's
		// own payment history.
		active.Status = engine.PaymentPaid
		active.UpdatedAt = now
		if err := l.store.SaveDebt(ctx, active); err != nil {
			return nil, fmt.Errorf("debt ledger: settle: %w", err)
		}
		return active, nil
	}

	if active != nil {
		changed := false
		if !active.Amount.Equal(totalAmount) {
			active.Amount = totalAmount
			changed = true
		}
		if delta := paidAmount.Sub(active.PaidAmount); delta.IsPositive() {
			info := via.orDefault("recorded against work order")
			active.Payments = append(active.Payments, DebtPayment{
				Amount: delta,
				Date:   now,
				Method: info.Method,
				Notes:  info.Notes,
			})
			changed = true
		}
		if !changed {
			return active, nil
		}
		active.Recalculate()
		active.UpdatedAt = now
		if err := l.store.SaveDebt(ctx, active); err != nil {
			return nil, fmt.Errorf("debt ledger: update: %w", err)
		}
		return active, nil
	}

	debt := &Debt{
		ID:          engine.DebtID(uuid.NewString()),
		WorkOrderID: orderID,
		Amount:      totalAmount,
		Status:      engine.PaymentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if paidAmount.IsPositive() {
		info := via.orDefault("payments recorded before completion")
		debt.Payments = append(debt.Payments, DebtPayment{
			Amount: paidAmount,
			Date:   now,
			Method: info.Method,
			Notes:  info.Notes,
		})
	}
	debt.Recalculate()
	if err := l.store.SaveDebt(ctx, debt); err != nil {
		return nil, fmt.Errorf("debt ledger: create: %w", err)
	}
	return debt, nil
}

// =============================================================================
// PAYMENTS - Append-only history against a debt
// =============================================================================

// RecordPayment appends a payment to the debt's history and re-derives
// its paid amount and status. Rejects non-positive amounts and amounts
// exceeding the debt's remaining balance.
func (l *DebtLedger) RecordPayment(
	ctx context.Context,
	debtID engine.DebtID,
	amount engine.Money,
	method string,
	notes string,
) (*Debt, error) {
	if !amount.IsPositive() {
		return nil, engine.ErrInvalidAmount
	}

	debt, err := l.store.GetDebt(ctx, debtID)
	if err != nil {
		return nil, err
	}

	mu := l.lockFor(debt.WorkOrderID)
	mu.Lock()
	defer mu.Unlock()

	// Re-read under the lock; the first read only located the order key.
	debt, err = l.store.GetDebt(ctx, debtID)
	if err != nil {
		return nil, err
	}

	if amount.GreaterThan(debt.Remaining()) {
		return nil, &engine.InsufficientBalanceError{
			Remaining: debt.Remaining(),
			Requested: amount,
		}
	}

	debt.Payments = append(debt.Payments, DebtPayment{
		Amount: amount,
		Date:   time.Now(),
		Method: method,
		Notes:  notes,
	})
	debt.Recalculate()
	debt.UpdatedAt = time.Now()

	if err := l.store.SaveDebt(ctx, debt); err != nil {
		return nil, fmt.Errorf("debt ledger: record payment: %w", err)
	}
	return debt, nil
}

// ActiveDebt returns the order's current non-paid debt, or nil.
func (l *DebtLedger) ActiveDebt(ctx context.Context, orderID engine.WorkOrderID) (*Debt, error) {
	return l.store.ActiveDebtByWorkOrder(ctx, orderID)
}
