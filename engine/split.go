/*
split.go - Payment split across workers

PURPOSE:
  When an assignment is given to one or more workers, its payment is
  divided equally between them, and each worker's slice is then split
  between the worker and the shop owner by the worker's percentage.

  This file handles:
  1. Equal division of the payment across workers
  2. Percentage resolution (explicit → worker default → 50)
  3. Worker earning vs owner residual per slice

ARITHMETIC:
  allocated  = payment / count(workers)   (equal, not weighted)
  earning    = allocated × percentage / 100, rounded to 2dp
  ownerShare = allocated − earning

  The division remainder goes to the last share, so the allocations
  always sum exactly to the payment. The owner share is computed by
  subtraction, so earning + ownerShare always equals allocated exactly.

EXAMPLE:
  shares, _ := engine.SplitPayment(engine.NewMoney(100000), []engine.SplitInput{
      {WorkerID: "w-1", Percentage: &fifty},
  })
  // shares[0].Earning    = 50000
  // shares[0].OwnerShare = 50000

SEE ALSO:
  - shop/service.go: Calls this when workers are assigned
  - shop/earnings.go: Applies Earning to worker balances on approval
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// DefaultSharePercentage is used when neither an explicit percentage nor
// a worker default is available.
var DefaultSharePercentage = decimal.NewFromInt(50)

// =============================================================================
// INPUT / OUTPUT
// =============================================================================

// SplitInput describes one worker's stake in a payment split.
type SplitInput struct {
	WorkerID WorkerID

	// Percentage overrides the worker's default when set.
	Percentage *decimal.Decimal

	// DefaultPercentage is the worker's stored default share, looked up
	// by the caller. Nil falls back to DefaultSharePercentage.
	DefaultPercentage *decimal.Decimal
}

// ShareResult is one worker's computed slice of a payment.
type ShareResult struct {
	WorkerID   WorkerID
	Percentage decimal.Decimal
	Allocated  Money
	Earning    Money
	OwnerShare Money
}

// =============================================================================
// SPLIT CALCULATOR - Pure, no state
// =============================================================================

// SplitPayment divides payment equally across workers and computes each
// worker's earning and the owner's residual.
//
// Zero workers is an input error (ErrNoWorkersAssigned), not a
// divide-by-zero the caller must prevent. Negative payment is rejected
// with ErrInvalidAmount; a zero payment is legal and yields zero shares.
func SplitPayment(payment Money, workers []SplitInput) ([]ShareResult, error) {
	if len(workers) == 0 {
		return nil, ErrNoWorkersAssigned
	}
	if payment.IsNegative() {
		return nil, ErrInvalidAmount
	}

	count := decimal.NewFromInt(int64(len(workers)))
	base := payment.Div(count).Round()

	results := make([]ShareResult, len(workers))
	allocatedSoFar := Zero()

	for i, w := range workers {
		allocated := base
		if i == len(workers)-1 {
			// Last share takes the rounding remainder so the
			// allocations sum exactly to the payment.
			allocated = payment.Sub(allocatedSoFar)
		}
		allocatedSoFar = allocatedSoFar.Add(allocated)

		pct := resolvePercentage(w)
		earning := allocated.Mul(pct).Div(decimal.NewFromInt(100)).Round()

		results[i] = ShareResult{
			WorkerID:   w.WorkerID,
			Percentage: pct,
			Allocated:  allocated,
			Earning:    earning,
			OwnerShare: allocated.Sub(earning),
		}
	}

	return results, nil
}

func resolvePercentage(w SplitInput) decimal.Decimal {
	if w.Percentage != nil {
		return *w.Percentage
	}
	if w.DefaultPercentage != nil {
		return *w.DefaultPercentage
	}
	return DefaultSharePercentage
}
