package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"AssetVault/internal/engine"
	"AssetVault/internal/event"
	"AssetVault/internal/merkle"

	"github.com/ethereum/go-ethereum/common"
)

// snapshotPool funds a pro-rata distribution as carol (manager) and
// returns it still in the created status.
func snapshotPool(t *testing.T, f *fixture, amount int64) *engine.Distribution {
	t.Helper()
	f.grantRole(t, "manager", carol)
	f.issueUSD(t, carol, amount)
	d, err := f.eng.Distributions.Create(context.Background(), carol, testAsset, amount, testCurrency, "quarterly rent")
	if err != nil {
		t.Fatalf("create distribution: %v", err)
	}
	return d
}

// ============================================================================
// Create / Activate / Cancel
// ============================================================================

func TestDistributions_Create_EscrowsAndSnapshots(t *testing.T) {
	f := newFixture(t)
	f.issueAsset(t, alice, 300)
	f.issueAsset(t, bob, 700)

	d := snapshotPool(t, f, 1_000)

	if d.Status != engine.DistributionStatusCreated {
		t.Errorf("status: got %s", d.Status)
	}
	if d.SnapshotID == 0 {
		t.Error("snapshot id should be assigned at creation")
	}
	if d.Remaining != 1_000 {
		t.Errorf("remaining: got %d, want 1000", d.Remaining)
	}
	if got := f.usdBal(t, carol); got != 0 {
		t.Errorf("funder balance: got %d, want 0", got)
	}
	if got := f.usdBal(t, f.accounts.DistributionEscrow); got != 1_000 {
		t.Errorf("escrow: got %d, want 1000", got)
	}
}

func TestDistributions_Create_RequiresManager(t *testing.T) {
	f := newFixture(t)
	f.issueUSD(t, alice, 1_000)

	_, err := f.eng.Distributions.Create(context.Background(), alice, testAsset, 1_000, testCurrency, "")
	if !errors.Is(err, engine.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestDistributions_Create_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	f.grantRole(t, "manager", carol)
	f.issueUSD(t, carol, 1_000)
	ctx := context.Background()

	if _, err := f.eng.Distributions.Create(ctx, carol, testAsset, 0, testCurrency, ""); !errors.Is(err, engine.ErrValidation) {
		t.Errorf("zero amount: got %v, want ErrValidation", err)
	}
	if _, err := f.eng.Distributions.Create(ctx, carol, "NOPE", 100, testCurrency, ""); !errors.Is(err, engine.ErrValidation) {
		t.Errorf("unknown asset: got %v, want ErrValidation", err)
	}
	if _, err := f.eng.Distributions.Create(ctx, carol, testAsset, 100, "EUR", ""); !errors.Is(err, engine.ErrValidation) {
		t.Errorf("unknown currency: got %v, want ErrValidation", err)
	}
	if _, err := f.eng.Distributions.Create(ctx, carol, testAsset, 2_000, testCurrency, ""); !errors.Is(err, engine.ErrInsufficientFunds) {
		t.Errorf("underfunded: got %v, want ErrInsufficientFunds", err)
	}
}

func TestDistributions_Cancel_RefundsFunder(t *testing.T) {
	f := newFixture(t)
	f.issueAsset(t, alice, 100)
	d := snapshotPool(t, f, 1_000)
	ctx := context.Background()

	if err := f.eng.Distributions.Cancel(ctx, carol, d.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if got := f.usdBal(t, carol); got != 1_000 {
		t.Errorf("refund: got %d, want 1000", got)
	}
	got, _ := f.eng.Distributions.Get(d.ID)
	if got.Status != engine.DistributionStatusCancelled || got.Remaining != 0 {
		t.Errorf("after cancel: status %s remaining %d", got.Status, got.Remaining)
	}

	// Terminal: neither a second cancel nor activation.
	if err := f.eng.Distributions.Cancel(ctx, carol, d.ID); !errors.Is(err, engine.ErrState) {
		t.Errorf("second cancel: got %v, want ErrState", err)
	}
	if err := f.eng.Distributions.Activate(ctx, carol, d.ID); !errors.Is(err, engine.ErrState) {
		t.Errorf("activate cancelled: got %v, want ErrState", err)
	}
}

func TestDistributions_Cancel_ActiveRejected(t *testing.T) {
	f := newFixture(t)
	f.issueAsset(t, alice, 100)
	d := snapshotPool(t, f, 1_000)
	ctx := context.Background()

	if err := f.eng.Distributions.Activate(ctx, carol, d.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := f.eng.Distributions.Cancel(ctx, carol, d.ID); !errors.Is(err, engine.ErrState) {
		t.Errorf("cancel active: got %v, want ErrState", err)
	}
}

// ============================================================================
// Claim
// ============================================================================

func TestDistributions_Claim_ProRataShare(t *testing.T) {
	f := newFixture(t)
	f.issueAsset(t, alice, 300)
	f.issueAsset(t, bob, 700)
	d := snapshotPool(t, f, 1_000)
	ctx := context.Background()

	if err := f.eng.Distributions.Activate(ctx, carol, d.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	// 300 of 1000 supply on a 1000 pool pays 300.
	share, err := f.eng.Distributions.Claim(ctx, alice, d.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if share != 300 {
		t.Errorf("share: got %d, want 300", share)
	}
	if got := f.usdBal(t, alice); got != 300 {
		t.Errorf("alice paid: got %d, want 300", got)
	}

	got, _ := f.eng.Distributions.Get(d.ID)
	if got.Remaining != 700 || got.TotalClaimed != 300 {
		t.Errorf("pool after claim: remaining %d claimed %d", got.Remaining, got.TotalClaimed)
	}
	if !f.eng.Distributions.HasClaimed(d.ID, alice) {
		t.Error("alice should be marked claimed")
	}
}

func TestDistributions_Claim_SnapshotInsulatesLaterTransfers(t *testing.T) {
	f := newFixture(t)
	f.issueAsset(t, alice, 300)
	f.issueAsset(t, bob, 700)
	d := snapshotPool(t, f, 1_000)
	ctx := context.Background()

	if err := f.eng.Distributions.Activate(ctx, carol, d.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	// Alice dumps her entire position after the snapshot; entitlement
	// is fixed at creation.
	tok, _ := f.registry.AssetToken(testAsset)
	if err := tok.Transfer(alice, bob, 300); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	share, err := f.eng.Distributions.Claim(ctx, alice, d.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if share != 300 {
		t.Errorf("share after dump: got %d, want 300", share)
	}

	// Bob claims his snapshot balance, not his current 1000.
	share, err = f.eng.Distributions.Claim(ctx, bob, d.ID)
	if err != nil {
		t.Fatalf("bob claim: %v", err)
	}
	if share != 700 {
		t.Errorf("bob share: got %d, want 700", share)
	}
}

func TestDistributions_Claim_ExactlyOnce(t *testing.T) {
	f := newFixture(t)
	f.issueAsset(t, alice, 300)
	f.issueAsset(t, bob, 700)
	d := snapshotPool(t, f, 1_000)
	ctx := context.Background()

	f.eng.Distributions.Activate(ctx, carol, d.ID)

	if _, err := f.eng.Distributions.Claim(ctx, alice, d.ID); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := f.eng.Distributions.Claim(ctx, alice, d.ID); !errors.Is(err, engine.ErrState) {
		t.Errorf("second claim: got %v, want ErrState", err)
	}
	if got := f.usdBal(t, alice); got != 300 {
		t.Errorf("double pay: alice has %d, want 300", got)
	}
}

func TestDistributions_Claim_ZeroEntitlement(t *testing.T) {
	f := newFixture(t)
	f.issueAsset(t, alice, 1_000)
	d := snapshotPool(t, f, 1_000)
	ctx := context.Background()

	f.eng.Distributions.Activate(ctx, carol, d.ID)

	// Dave held nothing at the snapshot.
	if _, err := f.eng.Distributions.Claim(ctx, dave, d.ID); !errors.Is(err, engine.ErrValidation) {
		t.Errorf("zero entitlement: got %v, want ErrValidation", err)
	}
	if f.eng.Distributions.HasClaimed(d.ID, dave) {
		t.Error("rejected zero claim must not mark the account")
	}
}

func TestDistributions_Claim_RequiresActive(t *testing.T) {
	f := newFixture(t)
	f.issueAsset(t, alice, 1_000)
	d := snapshotPool(t, f, 1_000)

	if _, err := f.eng.Distributions.Claim(context.Background(), alice, d.ID); !errors.Is(err, engine.ErrState) {
		t.Errorf("claim before activation: got %v, want ErrState", err)
	}
}

func TestDistributions_Claim_BlacklistedAccount(t *testing.T) {
	f := newFixture(t)
	f.issueAsset(t, alice, 1_000)
	d := snapshotPool(t, f, 1_000)
	ctx := context.Background()

	f.eng.Distributions.Activate(ctx, carol, d.ID)
	if err := f.eng.Admin.SetBlacklisted(ctx, rootAdmin, alice, true); err != nil {
		t.Fatalf("blacklist: %v", err)
	}

	if _, err := f.eng.Distributions.Claim(ctx, alice, d.ID); !errors.Is(err, engine.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestDistributions_Claim_DrainCompletes(t *testing.T) {
	f := newFixture(t)
	f.issueAsset(t, alice, 300)
	f.issueAsset(t, bob, 700)
	d := snapshotPool(t, f, 1_000)
	ctx := context.Background()

	f.eng.Distributions.Activate(ctx, carol, d.ID)
	f.drain()

	if _, err := f.eng.Distributions.Claim(ctx, alice, d.ID); err != nil {
		t.Fatalf("alice claim: %v", err)
	}
	if _, err := f.eng.Distributions.Claim(ctx, bob, d.ID); err != nil {
		t.Fatalf("bob claim: %v", err)
	}

	got, _ := f.eng.Distributions.Get(d.ID)
	if got.Status != engine.DistributionStatusCompleted {
		t.Errorf("status after drain: got %s, want completed", got.Status)
	}
	if got.Remaining != 0 {
		t.Errorf("remaining: got %d, want 0", got.Remaining)
	}

	types := eventTypes(f.drain())
	want := []string{"distribution_claimed", "distribution_claimed", "distribution_completed"}
	if len(types) != len(want) {
		t.Fatalf("events: got %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events: got %v, want %v", types, want)
		}
	}
}

func TestDistributions_Claim_RoundingDust(t *testing.T) {
	f := newFixture(t)
	f.issueAsset(t, alice, 1)
	f.issueAsset(t, bob, 1)
	f.issueAsset(t, dave, 1)
	d := snapshotPool(t, f, 100)
	ctx := context.Background()

	if err := f.eng.Distributions.SetClaimWindow(ctx, rootAdmin, 24*time.Hour); err != nil {
		t.Fatalf("set window: %v", err)
	}
	f.eng.Distributions.Activate(ctx, carol, d.ID)

	for _, holder := range []common.Address{alice, bob, dave} {
		share, err := f.eng.Distributions.Claim(ctx, holder, d.ID)
		if err != nil {
			t.Fatalf("claim %s: %v", holder.Hex(), err)
		}
		if share != 33 {
			t.Errorf("share: got %d, want 33", share)
		}
	}

	// One unit of rounding dust stays behind; the deadline makes it
	// recoverable.
	got, _ := f.eng.Distributions.Get(d.ID)
	if got.Remaining != 1 {
		t.Fatalf("dust: got %d, want 1", got.Remaining)
	}

	f.advance(25 * time.Hour)
	if err := f.eng.Distributions.RecoverUnclaimed(ctx, rootAdmin, d.ID); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got := f.usdBal(t, treasury); got != 1 {
		t.Errorf("treasury swept: got %d, want 1", got)
	}
}

// ============================================================================
// Merkle distributions
// ============================================================================

func TestDistributions_Merkle_FullFlow(t *testing.T) {
	f := newFixture(t)
	f.grantRole(t, "manager", carol)
	f.issueUSD(t, carol, 1_000)
	ctx := context.Background()

	d, err := f.eng.Distributions.CreateMerkle(ctx, carol, "offplatform-2026q1", 1_000, testCurrency, "bond coupon")
	if err != nil {
		t.Fatalf("create merkle: %v", err)
	}

	entries := []merkle.Entry{
		{Account: alice, Amount: 600},
		{Account: bob, Amount: 400},
	}
	tree := merkle.NewTree(entries)

	if err := f.eng.Distributions.UpdateMerkleRoot(ctx, carol, d.ID, tree.Root()); err != nil {
		t.Fatalf("update root: %v", err)
	}
	if err := f.eng.Distributions.Activate(ctx, carol, d.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if err := f.eng.Distributions.WithdrawMerkle(ctx, alice, d.ID, 600, tree.Proof(0)); err != nil {
		t.Fatalf("alice withdraw: %v", err)
	}
	if got := f.usdBal(t, alice); got != 600 {
		t.Errorf("alice paid: got %d, want 600", got)
	}

	if err := f.eng.Distributions.WithdrawMerkle(ctx, bob, d.ID, 400, tree.Proof(1)); err != nil {
		t.Fatalf("bob withdraw: %v", err)
	}

	got, _ := f.eng.Distributions.Get(d.ID)
	if got.Status != engine.DistributionStatusCompleted {
		t.Errorf("status: got %s, want completed", got.Status)
	}
}

func TestDistributions_Merkle_BadProof(t *testing.T) {
	f := newFixture(t)
	f.grantRole(t, "manager", carol)
	f.issueUSD(t, carol, 1_000)
	ctx := context.Background()

	d, _ := f.eng.Distributions.CreateMerkle(ctx, carol, "offplatform", 1_000, testCurrency, "")
	entries := []merkle.Entry{
		{Account: alice, Amount: 600},
		{Account: bob, Amount: 400},
	}
	tree := merkle.NewTree(entries)
	f.eng.Distributions.UpdateMerkleRoot(ctx, carol, d.ID, tree.Root())
	f.eng.Distributions.Activate(ctx, carol, d.ID)

	// Claiming more than the committed allocation breaks the leaf.
	if err := f.eng.Distributions.WithdrawMerkle(ctx, alice, d.ID, 700, tree.Proof(0)); !errors.Is(err, engine.ErrProofVerification) {
		t.Errorf("inflated amount: got %v, want ErrProofVerification", err)
	}
	// Using someone else's proof fails the same way.
	if err := f.eng.Distributions.WithdrawMerkle(ctx, alice, d.ID, 400, tree.Proof(1)); !errors.Is(err, engine.ErrProofVerification) {
		t.Errorf("stolen proof: got %v, want ErrProofVerification", err)
	}
	if got := f.usdBal(t, alice); got != 0 {
		t.Errorf("failed withdrawals paid out %d", got)
	}
}

func TestDistributions_Merkle_RootImmutableOnceActive(t *testing.T) {
	f := newFixture(t)
	f.grantRole(t, "manager", carol)
	f.issueUSD(t, carol, 1_000)
	ctx := context.Background()

	d, _ := f.eng.Distributions.CreateMerkle(ctx, carol, "offplatform", 1_000, testCurrency, "")
	tree := merkle.NewTree([]merkle.Entry{{Account: alice, Amount: 1_000}})

	if err := f.eng.Distributions.Activate(ctx, carol, d.ID); !errors.Is(err, engine.ErrState) {
		t.Errorf("activate without root: got %v, want ErrState", err)
	}
	if err := f.eng.Distributions.UpdateMerkleRoot(ctx, carol, d.ID, tree.Root()); err != nil {
		t.Fatalf("update root: %v", err)
	}
	if err := f.eng.Distributions.Activate(ctx, carol, d.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	other := merkle.NewTree([]merkle.Entry{{Account: bob, Amount: 1_000}})
	if err := f.eng.Distributions.UpdateMerkleRoot(ctx, carol, d.ID, other.Root()); !errors.Is(err, engine.ErrState) {
		t.Errorf("root update after activation: got %v, want ErrState", err)
	}
}

func TestDistributions_Merkle_WithdrawExceedsRemaining(t *testing.T) {
	f := newFixture(t)
	f.grantRole(t, "manager", carol)
	f.issueUSD(t, carol, 1_000)
	ctx := context.Background()

	// The root commits to more than the pool was funded with.
	d, _ := f.eng.Distributions.CreateMerkle(ctx, carol, "offplatform", 1_000, testCurrency, "")
	entries := []merkle.Entry{
		{Account: alice, Amount: 600},
		{Account: bob, Amount: 600},
	}
	tree := merkle.NewTree(entries)
	f.eng.Distributions.UpdateMerkleRoot(ctx, carol, d.ID, tree.Root())
	f.eng.Distributions.Activate(ctx, carol, d.ID)

	if err := f.eng.Distributions.WithdrawMerkle(ctx, alice, d.ID, 600, tree.Proof(0)); err != nil {
		t.Fatalf("first withdraw: %v", err)
	}
	if err := f.eng.Distributions.WithdrawMerkle(ctx, bob, d.ID, 600, tree.Proof(1)); !errors.Is(err, engine.ErrInsufficientFunds) {
		t.Errorf("over-committed pool: got %v, want ErrInsufficientFunds", err)
	}
}

func TestDistributions_Merkle_SnapshotClaimRejected(t *testing.T) {
	f := newFixture(t)
	f.issueAsset(t, alice, 100)
	d := snapshotPool(t, f, 1_000)
	ctx := context.Background()
	f.eng.Distributions.Activate(ctx, carol, d.ID)

	// Proof withdrawal against a snapshot pool and plain claim against
	// a merkle pool are both kind mismatches.
	if err := f.eng.Distributions.WithdrawMerkle(ctx, alice, d.ID, 100, nil); !errors.Is(err, engine.ErrValidation) {
		t.Errorf("withdraw on snapshot pool: got %v, want ErrValidation", err)
	}

	f.issueUSD(t, carol, 500)
	md, _ := f.eng.Distributions.CreateMerkle(ctx, carol, "offplatform", 500, testCurrency, "")
	tree := merkle.NewTree([]merkle.Entry{{Account: alice, Amount: 500}})
	f.eng.Distributions.UpdateMerkleRoot(ctx, carol, md.ID, tree.Root())
	f.eng.Distributions.Activate(ctx, carol, md.ID)

	if _, err := f.eng.Distributions.Claim(ctx, alice, md.ID); !errors.Is(err, engine.ErrValidation) {
		t.Errorf("claim on merkle pool: got %v, want ErrValidation", err)
	}
}

// ============================================================================
// Recovery
// ============================================================================

func TestDistributions_RecoverUnclaimed_AfterDeadline(t *testing.T) {
	f := newFixture(t)
	f.issueAsset(t, alice, 300)
	f.issueAsset(t, bob, 700)
	d := snapshotPool(t, f, 1_000)
	ctx := context.Background()

	if err := f.eng.Distributions.SetClaimWindow(ctx, rootAdmin, 24*time.Hour); err != nil {
		t.Fatalf("set window: %v", err)
	}
	f.eng.Distributions.Activate(ctx, carol, d.ID)

	if _, err := f.eng.Distributions.Claim(ctx, alice, d.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := f.eng.Distributions.RecoverUnclaimed(ctx, rootAdmin, d.ID); !errors.Is(err, engine.ErrState) {
		t.Errorf("recover before deadline: got %v, want ErrState", err)
	}

	f.advance(24*time.Hour + time.Minute)

	if err := f.eng.Distributions.RecoverUnclaimed(ctx, carol, d.ID); !errors.Is(err, engine.ErrUnauthorized) {
		t.Errorf("manager recover: got %v, want ErrUnauthorized", err)
	}
	if err := f.eng.Distributions.RecoverUnclaimed(ctx, rootAdmin, d.ID); err != nil {
		t.Fatalf("recover: %v", err)
	}

	if got := f.usdBal(t, treasury); got != 700 {
		t.Errorf("treasury: got %d, want 700", got)
	}
	got, _ := f.eng.Distributions.Get(d.ID)
	if got.Status != engine.DistributionStatusRecovered || got.Remaining != 0 {
		t.Errorf("after recover: status %s remaining %d", got.Status, got.Remaining)
	}

	// Late claimers are out of luck.
	if _, err := f.eng.Distributions.Claim(ctx, bob, d.ID); !errors.Is(err, engine.ErrState) {
		t.Errorf("claim after recover: got %v, want ErrState", err)
	}
}

func TestDistributions_RecoverUnclaimed_NoDeadlineRejected(t *testing.T) {
	f := newFixture(t)
	f.issueAsset(t, alice, 100)
	d := snapshotPool(t, f, 1_000)
	ctx := context.Background()

	f.eng.Distributions.Activate(ctx, carol, d.ID)
	f.advance(1000 * time.Hour)

	// No claim window configured means no deadline to elapse.
	if err := f.eng.Distributions.RecoverUnclaimed(ctx, rootAdmin, d.ID); !errors.Is(err, engine.ErrState) {
		t.Errorf("got %v, want ErrState", err)
	}
}

func TestDistributions_SetClaimWindow_Gated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.Distributions.SetClaimWindow(ctx, alice, time.Hour); !errors.Is(err, engine.ErrUnauthorized) {
		t.Errorf("non-admin: got %v, want ErrUnauthorized", err)
	}
	if err := f.eng.Distributions.SetClaimWindow(ctx, rootAdmin, -time.Hour); !errors.Is(err, engine.ErrValidation) {
		t.Errorf("negative: got %v, want ErrValidation", err)
	}
	if err := f.eng.Distributions.SetClaimWindow(ctx, rootAdmin, 48*time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := f.eng.Distributions.ClaimWindow(); got != 48*time.Hour {
		t.Errorf("window: got %s, want 48h", got)
	}

	p := f.lastEvent(t).Payload.(*event.ParamsUpdated)
	if p.Scope != event.ParamScopeDistribution || p.Name != "claim_window" || p.NewValue != "48h0m0s" {
		t.Errorf("param event: %+v", p)
	}
}
