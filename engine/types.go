/*
Package engine provides the domain-agnostic core of the garage settlement
system: currency arithmetic, the shared work-unit state machine, and the
payment split calculator.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A currency amount backed by decimal arithmetic
  - PaymentStatus: Derived from paid-vs-total, never stored authoritatively
  - Typed identifiers: prevent mixing order/assignment/worker IDs

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point drift in
     money math. Earnings are rounded to the minor currency unit (2dp);
     residuals are computed by subtraction so splits always sum exactly.
  2. Derivation: payment status and balances are computed from recorded
     amounts, never written directly.
  3. Type Safety: Strong typing for IDs prevents cross-entity mixups.

SEE ALSO:
  - statemachine.go: Work-unit status transitions
  - split.go: Payment split across workers
  - errors.go: Sentinel and structured errors
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Currency amount with exact decimal arithmetic
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value int64) Money {
	return Money{Value: decimal.NewFromInt(value)}
}

func NewMoneyFromFloat(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value)}
}

// MustParseMoney parses a decimal string, returning zero on failure.
// Intended for literals in wiring code and tests.
func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero}
	}
	return Money{Value: d}
}

func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Value: d}, nil
}

func Zero() Money { return Money{Value: decimal.Zero} }

func (m Money) Add(o Money) Money               { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money               { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Mul(s decimal.Decimal) Money     { return Money{Value: m.Value.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money     { return Money{Value: m.Value.Div(s)} }
func (m Money) Neg() Money                      { return Money{Value: m.Value.Neg()} }
func (m Money) Round() Money                    { return Money{Value: m.Value.Round(2)} }
func (m Money) IsZero() bool                    { return m.Value.IsZero() }
func (m Money) IsNegative() bool                { return m.Value.IsNegative() }
func (m Money) IsPositive() bool                { return m.Value.IsPositive() }
func (m Money) Equal(o Money) bool              { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool        { return m.Value.GreaterThan(o.Value) }
func (m Money) GreaterThanOrEqual(o Money) bool { return m.Value.GreaterThanOrEqual(o.Value) }
func (m Money) LessThan(o Money) bool           { return m.Value.LessThan(o.Value) }
func (m Money) LessThanOrEqual(o Money) bool    { return m.Value.LessThanOrEqual(o.Value) }
func (m Money) String() string                  { return m.Value.String() }

// =============================================================================
// PAYMENT STATUS - Derived, never set directly
// =============================================================================

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

// DerivePaymentStatus computes payment status from recorded amounts.
// A zero total with nothing paid is pending, not paid: nothing has been
// settled yet, the total just hasn't been priced.
func DerivePaymentStatus(paid, total Money) PaymentStatus {
	if paid.IsZero() {
		return PaymentPending
	}
	if total.IsPositive() && paid.GreaterThanOrEqual(total) {
		return PaymentPaid
	}
	return PaymentPartial
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkOrderID string
type BatchID string
type ItemID string
type AssignmentID string
type WorkerID string
type DebtID string
