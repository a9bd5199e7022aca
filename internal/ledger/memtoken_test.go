package ledger_test

import (
	"errors"
	"testing"

	"AssetVault/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
)

func addr(n byte) common.Address {
	var a common.Address
	a[19] = n
	return a
}

// ============================================================================
// Test: Mint / Burn / Transfer
// ============================================================================

func TestMemToken_MintAndBalance(t *testing.T) {
	tok := ledger.NewMemToken("GOLD", 6)
	alice := addr(1)

	if err := tok.Mint(alice, 1_000); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if got := tok.BalanceOf(alice); got != 1_000 {
		t.Errorf("balance: got %d, want 1000", got)
	}
	if got := tok.TotalSupply(); got != 1_000 {
		t.Errorf("supply: got %d, want 1000", got)
	}
}

func TestMemToken_Transfer(t *testing.T) {
	tok := ledger.NewMemToken("GOLD", 6)
	alice, bob := addr(1), addr(2)
	tok.Mint(alice, 1_000)

	if err := tok.Transfer(alice, bob, 300); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if got := tok.BalanceOf(alice); got != 700 {
		t.Errorf("alice: got %d, want 700", got)
	}
	if got := tok.BalanceOf(bob); got != 300 {
		t.Errorf("bob: got %d, want 300", got)
	}
	if got := tok.TotalSupply(); got != 1_000 {
		t.Errorf("supply changed on transfer: got %d", got)
	}
}

func TestMemToken_TransferInsufficient(t *testing.T) {
	tok := ledger.NewMemToken("GOLD", 6)
	alice, bob := addr(1), addr(2)
	tok.Mint(alice, 100)

	err := tok.Transfer(alice, bob, 101)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
	if got := tok.BalanceOf(alice); got != 100 {
		t.Errorf("failed transfer should not move funds, alice has %d", got)
	}
}

func TestMemToken_TransferNegative(t *testing.T) {
	tok := ledger.NewMemToken("GOLD", 6)
	err := tok.Transfer(addr(1), addr(2), -1)
	if !errors.Is(err, ledger.ErrNegativeAmount) {
		t.Errorf("got %v, want ErrNegativeAmount", err)
	}
}

func TestMemToken_Burn(t *testing.T) {
	tok := ledger.NewMemToken("GOLD", 6)
	alice := addr(1)
	tok.Mint(alice, 500)

	if err := tok.Burn(alice, 200); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := tok.BalanceOf(alice); got != 300 {
		t.Errorf("alice: got %d, want 300", got)
	}
	if got := tok.TotalSupply(); got != 300 {
		t.Errorf("supply: got %d, want 300", got)
	}

	if err := tok.Burn(alice, 301); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("over-burn: got %v, want ErrInsufficientBalance", err)
	}
}

func TestMemToken_Paused(t *testing.T) {
	tok := ledger.NewMemToken("GOLD", 6)
	alice, bob := addr(1), addr(2)
	tok.Mint(alice, 100)

	tok.SetPaused(true)
	if !tok.Paused() {
		t.Fatal("token should report paused")
	}

	if err := tok.Transfer(alice, bob, 10); !errors.Is(err, ledger.ErrPaused) {
		t.Errorf("transfer while paused: got %v, want ErrPaused", err)
	}
	if err := tok.Mint(alice, 10); !errors.Is(err, ledger.ErrPaused) {
		t.Errorf("mint while paused: got %v, want ErrPaused", err)
	}

	tok.SetPaused(false)
	if err := tok.Transfer(alice, bob, 10); err != nil {
		t.Errorf("transfer after unpause: %v", err)
	}
}

// ============================================================================
// Test: Snapshots
// ============================================================================

func TestMemToken_SnapshotIDsIncrement(t *testing.T) {
	tok := ledger.NewMemToken("GOLD", 6)
	if id := tok.Snapshot(); id != 1 {
		t.Errorf("first snapshot id: got %d, want 1", id)
	}
	if id := tok.Snapshot(); id != 2 {
		t.Errorf("second snapshot id: got %d, want 2", id)
	}
	if got := tok.CurrentSnapshotID(); got != 2 {
		t.Errorf("current id: got %d, want 2", got)
	}
}

func TestMemToken_BalanceOfAtFreezesValue(t *testing.T) {
	tok := ledger.NewMemToken("GOLD", 6)
	alice, bob := addr(1), addr(2)
	tok.Mint(alice, 1_000)

	snap := tok.Snapshot()

	// Change the balance after the snapshot
	tok.Transfer(alice, bob, 400)

	got, err := tok.BalanceOfAt(alice, snap)
	if err != nil {
		t.Fatalf("balanceOfAt: %v", err)
	}
	if got != 1_000 {
		t.Errorf("snapshot balance: got %d, want 1000", got)
	}

	// Live balance reflects the transfer
	if live := tok.BalanceOf(alice); live != 600 {
		t.Errorf("live balance: got %d, want 600", live)
	}
}

func TestMemToken_BalanceOfAtUnchangedFallsThrough(t *testing.T) {
	tok := ledger.NewMemToken("GOLD", 6)
	alice := addr(1)
	tok.Mint(alice, 777)

	snap := tok.Snapshot()

	// No changes since the snapshot: query returns the live value
	got, err := tok.BalanceOfAt(alice, snap)
	if err != nil {
		t.Fatalf("balanceOfAt: %v", err)
	}
	if got != 777 {
		t.Errorf("got %d, want 777", got)
	}
}

func TestMemToken_BalanceOfAtAcrossManySnapshots(t *testing.T) {
	tok := ledger.NewMemToken("GOLD", 6)
	alice := addr(1)

	// Balance trajectory: 100 @snap1, 250 @snap2, 250 @snap3, 50 live
	tok.Mint(alice, 100)
	s1 := tok.Snapshot()
	tok.Mint(alice, 150)
	s2 := tok.Snapshot()
	s3 := tok.Snapshot()
	tok.Burn(alice, 200)

	cases := []struct {
		snap int64
		want int64
	}{
		{s1, 100},
		{s2, 250},
		{s3, 250},
	}
	for _, tc := range cases {
		got, err := tok.BalanceOfAt(alice, tc.snap)
		if err != nil {
			t.Fatalf("balanceOfAt(%d): %v", tc.snap, err)
		}
		if got != tc.want {
			t.Errorf("balanceOfAt(%d): got %d, want %d", tc.snap, got, tc.want)
		}
	}

	if live := tok.BalanceOf(alice); live != 50 {
		t.Errorf("live: got %d, want 50", live)
	}
}

func TestMemToken_TotalSupplyAt(t *testing.T) {
	tok := ledger.NewMemToken("GOLD", 6)
	alice := addr(1)

	tok.Mint(alice, 1_000)
	s1 := tok.Snapshot()
	tok.Mint(alice, 500)
	s2 := tok.Snapshot()
	tok.Burn(alice, 700)

	if got, _ := tok.TotalSupplyAt(s1); got != 1_000 {
		t.Errorf("supplyAt(%d): got %d, want 1000", s1, got)
	}
	if got, _ := tok.TotalSupplyAt(s2); got != 1_500 {
		t.Errorf("supplyAt(%d): got %d, want 1500", s2, got)
	}
	if got := tok.TotalSupply(); got != 800 {
		t.Errorf("live supply: got %d, want 800", got)
	}
}

func TestMemToken_BalanceOfAtInvalidID(t *testing.T) {
	tok := ledger.NewMemToken("GOLD", 6)
	tok.Snapshot()

	for _, id := range []int64{0, -1, 2} {
		if _, err := tok.BalanceOfAt(addr(1), id); !errors.Is(err, ledger.ErrSnapshotNotFound) {
			t.Errorf("id %d: got %v, want ErrSnapshotNotFound", id, err)
		}
	}
}

func TestMemToken_SnapshotOfZeroBalance(t *testing.T) {
	tok := ledger.NewMemToken("GOLD", 6)
	alice := addr(1)

	snap := tok.Snapshot()
	tok.Mint(alice, 500)

	got, err := tok.BalanceOfAt(alice, snap)
	if err != nil {
		t.Fatalf("balanceOfAt: %v", err)
	}
	if got != 0 {
		t.Errorf("pre-mint snapshot balance: got %d, want 0", got)
	}
}

// ============================================================================
// Test: State capture / restore
// ============================================================================

func TestMemToken_StateRoundTrip(t *testing.T) {
	tok := ledger.NewMemToken("GOLD", 6)
	alice, bob := addr(1), addr(2)

	tok.Mint(alice, 1_000)
	s1 := tok.Snapshot()
	tok.Transfer(alice, bob, 300)
	s2 := tok.Snapshot()
	tok.Transfer(bob, alice, 100)

	restored := ledger.RestoreToken(tok.State())

	if restored.Symbol() != "GOLD" || restored.Decimals() != 6 {
		t.Error("symbol or decimals lost in restore")
	}
	if got := restored.BalanceOf(alice); got != 800 {
		t.Errorf("alice live: got %d, want 800", got)
	}
	if got, _ := restored.BalanceOfAt(alice, s1); got != 1_000 {
		t.Errorf("alice at s1: got %d, want 1000", got)
	}
	if got, _ := restored.BalanceOfAt(bob, s2); got != 300 {
		t.Errorf("bob at s2: got %d, want 300", got)
	}
	if restored.CurrentSnapshotID() != 2 {
		t.Errorf("current id: got %d, want 2", restored.CurrentSnapshotID())
	}

	// Snapshot ids keep incrementing from the restored point
	if id := restored.Snapshot(); id != 3 {
		t.Errorf("next snapshot id: got %d, want 3", id)
	}
}

// ============================================================================
// Test: ModuleAddress
// ============================================================================

func TestModuleAddress_DeterministicAndDistinct(t *testing.T) {
	escrow1 := ledger.ModuleAddress("order-escrow")
	escrow2 := ledger.ModuleAddress("order-escrow")
	pool := ledger.ModuleAddress("distribution-pool")

	if escrow1 != escrow2 {
		t.Error("same name should derive same address")
	}
	if escrow1 == pool {
		t.Error("different names should derive different addresses")
	}
	if escrow1 == (common.Address{}) {
		t.Error("derived address should not be zero")
	}
}

// ============================================================================
// Test: MemRegistry
// ============================================================================

func TestMemRegistry_RegisterAndLookup(t *testing.T) {
	reg := ledger.NewMemRegistry()

	asset, err := reg.RegisterAsset("PROP-001", "estates", 6)
	if err != nil {
		t.Fatalf("register asset: %v", err)
	}
	if _, err := reg.RegisterAsset("PROP-001", "estates", 6); err == nil {
		t.Error("duplicate asset registration should fail")
	}

	got, ok := reg.Asset("PROP-001")
	if !ok {
		t.Fatal("asset lookup failed")
	}
	asset.Mint(addr(1), 42)
	if got.BalanceOf(addr(1)) != 42 {
		t.Error("lookup should return the registered token")
	}

	if _, ok := reg.Asset("PROP-404"); ok {
		t.Error("unknown asset id should not resolve")
	}

	if g, ok := reg.AssetGroup("PROP-001"); !ok || g != "estates" {
		t.Errorf("asset group: got %q ok=%v, want estates", g, ok)
	}

	if _, err := reg.RegisterCurrency("USD", 2); err != nil {
		t.Fatalf("register currency: %v", err)
	}
	if _, ok := reg.Currency("USD"); !ok {
		t.Error("currency lookup failed")
	}

	ids := reg.AssetIDs()
	if len(ids) != 1 || ids[0] != "PROP-001" {
		t.Errorf("asset ids: got %v", ids)
	}
}

func TestMemRegistry_StateRoundTrip(t *testing.T) {
	reg := ledger.NewMemRegistry()
	asset, _ := reg.RegisterAsset("PROP-001", "estates", 6)
	cur, _ := reg.RegisterCurrency("USD", 2)

	asset.Mint(addr(1), 1_000)
	snap := asset.Snapshot()
	asset.Transfer(addr(1), addr(2), 400)
	cur.Mint(addr(1), 99)

	restored := ledger.RestoreRegistry(reg.State())

	ra, ok := restored.Asset("PROP-001")
	if !ok {
		t.Fatal("restored registry missing asset")
	}
	if got, _ := ra.BalanceOfAt(addr(1), snap); got != 1_000 {
		t.Errorf("restored snapshot balance: got %d, want 1000", got)
	}
	rc, ok := restored.Currency("USD")
	if !ok {
		t.Fatal("restored registry missing currency")
	}
	if got := rc.BalanceOf(addr(1)); got != 99 {
		t.Errorf("restored currency balance: got %d, want 99", got)
	}
	if g, ok := restored.AssetGroup("PROP-001"); !ok || g != "estates" {
		t.Errorf("restored asset group: got %q ok=%v, want estates", g, ok)
	}
}
