package num_test

import (
	"math"
	"testing"

	"AssetVault/internal/num"
)

// ============================================================================
// Test: Gross
// ============================================================================

func TestGross_Basic(t *testing.T) {
	gross, ok := num.Gross(10, 100)
	if !ok {
		t.Fatal("expected product to fit in int64")
	}
	if gross != 1000 {
		t.Errorf("got %d, want 1000", gross)
	}
}

func TestGross_Overflow(t *testing.T) {
	_, ok := num.Gross(math.MaxInt64, 2)
	if ok {
		t.Error("expected overflow to be reported")
	}
}

func TestGross_Zero(t *testing.T) {
	gross, ok := num.Gross(0, 1_000_000)
	if !ok || gross != 0 {
		t.Errorf("got (%d, %v), want (0, true)", gross, ok)
	}
}

// ============================================================================
// Test: TradeFee
// ============================================================================

func TestTradeFee_Basic(t *testing.T) {
	// 100 units at price 10, fee rate 100 bps (1%)
	fee := num.TradeFee(1000, 100)
	if fee != 10 {
		t.Errorf("got %d, want 10", fee)
	}
}

func TestTradeFee_RoundsDown(t *testing.T) {
	// 999 * 150 / 10000 = 14.985 -> 14
	fee := num.TradeFee(999, 150)
	if fee != 14 {
		t.Errorf("got %d, want 14", fee)
	}
}

func TestTradeFee_MinimumOneUnit(t *testing.T) {
	// 5 * 10 / 10000 rounds to 0; non-zero rate still charges 1
	fee := num.TradeFee(5, 10)
	if fee != 1 {
		t.Errorf("got %d, want 1", fee)
	}
}

func TestTradeFee_ZeroRate(t *testing.T) {
	if fee := num.TradeFee(1_000_000, 0); fee != 0 {
		t.Errorf("got %d, want 0", fee)
	}
}

func TestTradeFee_ZeroGross(t *testing.T) {
	if fee := num.TradeFee(0, 500); fee != 0 {
		t.Errorf("got %d, want 0", fee)
	}
}

// ============================================================================
// Test: ProRataShare
// ============================================================================

func TestProRataShare_ExactShare(t *testing.T) {
	// Holder owns 30% of supply, pool of 1000 -> 300
	share := num.ProRataShare(300, 1000, 1000)
	if share != 300 {
		t.Errorf("got %d, want 300", share)
	}
}

func TestProRataShare_RoundsDown(t *testing.T) {
	// 1/3 of 10 = 3.33 -> 3
	share := num.ProRataShare(1, 10, 3)
	if share != 3 {
		t.Errorf("got %d, want 3", share)
	}
}

func TestProRataShare_ZeroSupply(t *testing.T) {
	if share := num.ProRataShare(100, 1000, 0); share != 0 {
		t.Errorf("got %d, want 0", share)
	}
}

func TestProRataShare_LargeValuesNoOverflow(t *testing.T) {
	// balance * pool overflows int64 but the quotient fits
	balance := int64(4_000_000_000_000_000_000)
	supply := int64(8_000_000_000_000_000_000)
	share := num.ProRataShare(balance, 1000, supply)
	if share != 500 {
		t.Errorf("got %d, want 500", share)
	}
}

func TestProRataShare_FullBalance(t *testing.T) {
	// Sole holder takes the whole pool
	share := num.ProRataShare(777, 123_456, 777)
	if share != 123_456 {
		t.Errorf("got %d, want 123456", share)
	}
}

// ============================================================================
// Test: RedemptionPayout
// ============================================================================

func TestRedemptionPayout_Par(t *testing.T) {
	payout := num.RedemptionPayout(500, num.BpsScale)
	if payout != 500 {
		t.Errorf("got %d, want 500", payout)
	}
}

func TestRedemptionPayout_Discount(t *testing.T) {
	// 95% of par
	payout := num.RedemptionPayout(500, 9_500)
	if payout != 475 {
		t.Errorf("got %d, want 475", payout)
	}
}

func TestRedemptionPayout_RoundsDown(t *testing.T) {
	// 3 * 9999 / 10000 = 2.9997 -> 2
	payout := num.RedemptionPayout(3, 9_999)
	if payout != 2 {
		t.Errorf("got %d, want 2", payout)
	}
}

func TestRedemptionPayout_ZeroAmount(t *testing.T) {
	if payout := num.RedemptionPayout(0, 10_000); payout != 0 {
		t.Errorf("got %d, want 0", payout)
	}
}

// ============================================================================
// Test: DivideInt128 rounding
// ============================================================================

func TestDivideInt128_RoundDown(t *testing.T) {
	n := num.MultiplyInt128(7, 1)
	if got := num.DivideInt128(n, 2, num.RoundDown); got != 3 {
		t.Errorf("got %d, want 3", got)
	}
}

func TestDivideInt128_RoundUp(t *testing.T) {
	n := num.MultiplyInt128(7, 1)
	if got := num.DivideInt128(n, 2, num.RoundUp); got != 4 {
		t.Errorf("got %d, want 4", got)
	}

	// Exact division does not round up
	n = num.MultiplyInt128(8, 1)
	if got := num.DivideInt128(n, 2, num.RoundUp); got != 4 {
		t.Errorf("got %d, want 4", got)
	}
}

func TestDivideInt128_RoundHalfEven(t *testing.T) {
	cases := []struct {
		numerator int64
		denom     int64
		want      int64
	}{
		{5, 2, 2},  // 2.5 rounds to even 2
		{7, 2, 4},  // 3.5 rounds to even 4
		{6, 4, 2},  // 1.5 rounds to even 2
		{10, 4, 2}, // 2.5 rounds to even 2
		{11, 4, 3}, // 2.75 rounds up
	}

	for _, tc := range cases {
		n := num.MultiplyInt128(tc.numerator, 1)
		got := num.DivideInt128(n, tc.denom, num.RoundHalfEven)
		if got != tc.want {
			t.Errorf("%d/%d: got %d, want %d", tc.numerator, tc.denom, got, tc.want)
		}
	}
}
