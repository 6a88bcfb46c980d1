package engine_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/warp/garage-engine/engine"
)

func pct(n int64) *decimal.Decimal {
	d := decimal.NewFromInt(n)
	return &d
}

// =============================================================================
// INPUT VALIDATION
// =============================================================================

func TestSplitPayment_NoWorkers(t *testing.T) {
	_, err := engine.SplitPayment(engine.NewMoney(100), nil)
	if !errors.Is(err, engine.ErrNoWorkersAssigned) {
		t.Fatalf("expected ErrNoWorkersAssigned, got %v", err)
	}
}

func TestSplitPayment_NegativePayment(t *testing.T) {
	_, err := engine.SplitPayment(engine.NewMoney(-1), []engine.SplitInput{{WorkerID: "w-1"}})
	if !errors.Is(err, engine.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestSplitPayment_ZeroPaymentIsLegal(t *testing.T) {
	// GIVEN: A zero payment split between two workers
	// THEN: Every share is zero, no error

	shares, err := engine.SplitPayment(engine.Zero(), []engine.SplitInput{
		{WorkerID: "w-1"}, {WorkerID: "w-2"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, s := range shares {
		if !s.Allocated.IsZero() || !s.Earning.IsZero() || !s.OwnerShare.IsZero() {
			t.Errorf("expected zero share, got %+v", s)
		}
	}
}

// =============================================================================
// EQUAL DIVISION
// =============================================================================

func TestSplitPayment_AllocationsSumExactly(t *testing.T) {
	// GIVEN: 100.00 split three ways (33.33 does not divide evenly)
	// WHEN: Splitting
	// THEN: The three allocations sum to exactly 100.00, remainder on the last

	payment := engine.MustParseMoney("100.00")
	shares, err := engine.SplitPayment(payment, []engine.SplitInput{
		{WorkerID: "w-1"}, {WorkerID: "w-2"}, {WorkerID: "w-3"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sum := engine.Zero()
	for _, s := range shares {
		sum = sum.Add(s.Allocated)
	}
	if !sum.Equal(payment) {
		t.Errorf("allocations sum to %s, want %s", sum, payment)
	}

	if !shares[0].Allocated.Equal(engine.MustParseMoney("33.33")) {
		t.Errorf("first share = %s, want 33.33", shares[0].Allocated)
	}
	if !shares[2].Allocated.Equal(engine.MustParseMoney("33.34")) {
		t.Errorf("last share = %s, want 33.34 (takes the remainder)", shares[2].Allocated)
	}
}

func TestSplitPayment_SingleWorkerTakesAll(t *testing.T) {
	payment := engine.MustParseMoney("250.00")
	shares, err := engine.SplitPayment(payment, []engine.SplitInput{
		{WorkerID: "w-1", Percentage: pct(40)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !shares[0].Allocated.Equal(payment) {
		t.Errorf("allocated = %s, want %s", shares[0].Allocated, payment)
	}
	if !shares[0].Earning.Equal(engine.MustParseMoney("100.00")) {
		t.Errorf("earning = %s, want 100.00", shares[0].Earning)
	}
	if !shares[0].OwnerShare.Equal(engine.MustParseMoney("150.00")) {
		t.Errorf("owner share = %s, want 150.00", shares[0].OwnerShare)
	}
}

// =============================================================================
// PERCENTAGE RESOLUTION
// =============================================================================

func TestSplitPayment_PercentageResolution(t *testing.T) {
	// GIVEN: Three workers: one explicit 70, one default 30, one with nothing
	// THEN: explicit beats default beats the 50 fallback

	def := decimal.NewFromInt(30)
	shares, err := engine.SplitPayment(engine.MustParseMoney("300.00"), []engine.SplitInput{
		{WorkerID: "explicit", Percentage: pct(70), DefaultPercentage: &def},
		{WorkerID: "default", DefaultPercentage: &def},
		{WorkerID: "fallback"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[engine.WorkerID]string{
		"explicit": "70",
		"default":  "30",
		"fallback": "50",
	}
	for _, s := range shares {
		if s.Percentage.String() != want[s.WorkerID] {
			t.Errorf("%s: percentage = %s, want %s", s.WorkerID, s.Percentage, want[s.WorkerID])
		}
	}
}

// =============================================================================
// EARNING ARITHMETIC
// =============================================================================

func TestSplitPayment_EarningRoundedOwnerBySubtraction(t *testing.T) {
	// GIVEN: 100.01 at 33%: exact earning 33.0033 rounds to 33.00
	// THEN: earning + ownerShare still equals allocated exactly

	shares, err := engine.SplitPayment(engine.MustParseMoney("100.01"), []engine.SplitInput{
		{WorkerID: "w-1", Percentage: pct(33)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := shares[0]
	if !s.Earning.Equal(engine.MustParseMoney("33.00")) {
		t.Errorf("earning = %s, want 33.00", s.Earning)
	}
	if !s.Earning.Add(s.OwnerShare).Equal(s.Allocated) {
		t.Errorf("earning %s + owner %s != allocated %s", s.Earning, s.OwnerShare, s.Allocated)
	}
}

func TestSplitPayment_ConservationAcrossManyWorkers(t *testing.T) {
	// Property from the arithmetic: for any split, the sum of every
	// earning and owner share equals the payment.

	payment := engine.MustParseMoney("999.97")
	inputs := []engine.SplitInput{
		{WorkerID: "a", Percentage: pct(35)},
		{WorkerID: "b", Percentage: pct(50)},
		{WorkerID: "c"},
		{WorkerID: "d", Percentage: pct(65)},
		{WorkerID: "e", Percentage: pct(10)},
		{WorkerID: "f"},
		{WorkerID: "g", Percentage: pct(100)},
	}
	shares, err := engine.SplitPayment(payment, inputs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	total := engine.Zero()
	for _, s := range shares {
		total = total.Add(s.Earning).Add(s.OwnerShare)
	}
	if !total.Equal(payment) {
		t.Errorf("earnings + owner shares sum to %s, want %s", total, payment)
	}
}

// =============================================================================
// PAYMENT STATUS DERIVATION
// =============================================================================

func TestDerivePaymentStatus(t *testing.T) {
	cases := []struct {
		name  string
		paid  string
		total string
		want  engine.PaymentStatus
	}{
		{"nothing paid", "0", "100", engine.PaymentPending},
		{"partial", "40", "100", engine.PaymentPartial},
		{"exact", "100", "100", engine.PaymentPaid},
		{"overpaid counts as paid", "120", "100", engine.PaymentPaid},
		{"unpriced order with no payment", "0", "0", engine.PaymentPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.DerivePaymentStatus(
				engine.MustParseMoney(tc.paid), engine.MustParseMoney(tc.total))
			if got != tc.want {
				t.Errorf("DerivePaymentStatus(%s, %s) = %s, want %s", tc.paid, tc.total, got, tc.want)
			}
		})
	}
}
