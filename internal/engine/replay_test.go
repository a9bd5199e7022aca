package engine_test

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"AssetVault/internal/access"
	"AssetVault/internal/engine"
	"AssetVault/internal/ledger"
	"AssetVault/internal/merkle"
)

// runPlatformHistory drives one of everything through the fixture so
// the log exercises every replayable event type.
func runPlatformHistory(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	ob, dist, red, adm := f.eng.OrderBook, f.eng.Distributions, f.eng.Redemptions, f.eng.Admin

	f.grantRole(t, "manager", carol)
	f.grantRole(t, "operator", dave)
	f.issueAsset(t, alice, 1_000)
	f.issueAsset(t, bob, 500)
	f.issueUSD(t, bob, 50_000)
	f.issueUSD(t, carol, 10_000)
	f.issueUSD(t, redeemBank, 5_000)

	if err := ob.SetFeeRate(ctx, rootAdmin, 100); err != nil {
		t.Fatalf("fee rate: %v", err)
	}
	if err := ob.SetMinTradeAmount(ctx, rootAdmin, 10); err != nil {
		t.Fatalf("min amount: %v", err)
	}

	o1, err := ob.CreateOrder(ctx, alice, testAsset, 600, 10)
	if err != nil {
		t.Fatalf("order 1: %v", err)
	}
	if _, err := ob.ExecuteOrder(ctx, bob, o1.ID, 6_000); err != nil {
		t.Fatalf("execute: %v", err)
	}
	o2, err := ob.CreateOrder(ctx, alice, testAsset, 200, 5)
	if err != nil {
		t.Fatalf("order 2: %v", err)
	}
	if err := ob.CancelOrder(ctx, alice, o2.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if err := dist.SetClaimWindow(ctx, rootAdmin, 24*time.Hour); err != nil {
		t.Fatalf("claim window: %v", err)
	}
	d1, err := dist.Create(ctx, carol, testAsset, 3_000, testCurrency, "q2 rent")
	if err != nil {
		t.Fatalf("distribution: %v", err)
	}
	if err := dist.Activate(ctx, carol, d1.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := dist.Claim(ctx, alice, d1.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	f.advance(25 * time.Hour)
	if err := dist.RecoverUnclaimed(ctx, rootAdmin, d1.ID); err != nil {
		t.Fatalf("recover: %v", err)
	}

	d2, err := dist.CreateMerkle(ctx, carol, "offplatform", 1_000, testCurrency, "bond coupon")
	if err != nil {
		t.Fatalf("merkle distribution: %v", err)
	}
	tree := merkle.NewTree([]merkle.Entry{
		{Account: alice, Amount: 700},
		{Account: dave, Amount: 300},
	})
	if err := dist.UpdateMerkleRoot(ctx, carol, d2.ID, tree.Root()); err != nil {
		t.Fatalf("root: %v", err)
	}
	if err := dist.Activate(ctx, carol, d2.ID); err != nil {
		t.Fatalf("activate merkle: %v", err)
	}
	if err := dist.WithdrawMerkle(ctx, alice, d2.ID, 700, tree.Proof(0)); err != nil {
		t.Fatalf("withdraw alice: %v", err)
	}
	if err := dist.WithdrawMerkle(ctx, dave, d2.ID, 300, tree.Proof(1)); err != nil {
		t.Fatalf("withdraw dave: %v", err)
	}

	if err := red.SetRate(ctx, rootAdmin, testAsset, 9_500); err != nil {
		t.Fatalf("rate: %v", err)
	}
	r1, err := red.Create(ctx, bob, testAsset, 200, "take profit")
	if err != nil {
		t.Fatalf("redemption 1: %v", err)
	}
	if err := red.Approve(ctx, carol, r1.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := red.Execute(ctx, dave, r1.ID); err != nil {
		t.Fatalf("execute redemption: %v", err)
	}
	r2, err := red.Create(ctx, alice, testAsset, 50, "")
	if err != nil {
		t.Fatalf("redemption 2: %v", err)
	}
	if err := red.Cancel(ctx, alice, r2.ID); err != nil {
		t.Fatalf("cancel redemption: %v", err)
	}
	r3, err := red.Create(ctx, bob, testAsset, 100, "")
	if err != nil {
		t.Fatalf("redemption 3: %v", err)
	}
	if err := red.Reject(ctx, carol, r3.ID, "audit hold"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	if err := adm.SetBlacklisted(ctx, rootAdmin, dave, true); err != nil {
		t.Fatalf("bar: %v", err)
	}
	if err := adm.SetBlacklisted(ctx, rootAdmin, dave, false); err != nil {
		t.Fatalf("unbar: %v", err)
	}
	if err := adm.SetAssetPaused(ctx, rootAdmin, testAsset, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := adm.SetAssetPaused(ctx, rootAdmin, testAsset, false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if err := ob.SetCooldownPeriod(ctx, rootAdmin, 30*time.Minute); err != nil {
		t.Fatalf("cooldown: %v", err)
	}
}

// freshEngine builds an empty platform with the same construction
// inputs as the fixture, ready to consume its log.
func freshEngine(f *fixture) (*engine.Engine, *ledger.MemRegistry) {
	registry := ledger.NewMemRegistry()
	rec := engine.NewRecorder(0, nil, nil, nil, nil)
	eng := engine.New(rec, access.NewStore(), registry, f.accounts, testCurrency, rootAdmin)
	return eng, registry
}

// ============================================================================
// Full log replay
// ============================================================================

func TestEngine_Replay_RebuildsIdenticalState(t *testing.T) {
	f := newFixture(t)
	runPlatformHistory(t, f)
	outs := f.drain()

	eng2, registry2 := freshEngine(f)
	rep := engine.NewReplayer(eng2, 0, engine.GenesisHash())
	for _, out := range outs {
		if err := rep.Feed(out.Envelope); err != nil {
			t.Fatalf("feed seq %d (%s): %v", out.Envelope.Sequence, out.Envelope.EventType, err)
		}
	}
	rep.Finish()

	if rep.Count() != int64(len(outs)) {
		t.Errorf("fed %d of %d", rep.Count(), len(outs))
	}

	want := f.eng.CaptureState()
	got := eng2.CaptureState()
	if !reflect.DeepEqual(want, got) {
		t.Errorf("replayed state diverged\nlive:     %+v\nreplayed: %+v", want, got)
	}

	// Spot-check the money positions against hand-computed history.
	asset, _ := registry2.AssetToken(testAsset)
	usd, _ := registry2.CurrencyToken(testCurrency)
	balances := []struct {
		name string
		got  int64
		want int64
	}{
		{"alice asset", asset.BalanceOf(alice), 400},
		{"bob asset", asset.BalanceOf(bob), 900},
		{"pool asset", asset.BalanceOf(f.accounts.RedemptionPool), 200},
		{"alice usd", usd.BalanceOf(alice), 7_440},
		{"bob usd", usd.BalanceOf(bob), 44_190},
		{"carol usd", usd.BalanceOf(carol), 6_000},
		{"dave usd", usd.BalanceOf(dave), 300},
		{"treasury usd", usd.BalanceOf(treasury), 2_200},
		{"fees usd", usd.BalanceOf(feeReceiver), 60},
		{"redemption bank usd", usd.BalanceOf(redeemBank), 4_810},
		{"order escrow", asset.BalanceOf(f.accounts.OrderEscrow), 0},
		{"distribution escrow", usd.BalanceOf(f.accounts.DistributionEscrow), 0},
		{"redemption escrow", asset.BalanceOf(f.accounts.RedemptionEscrow), 0},
	}
	for _, b := range balances {
		if b.got != b.want {
			t.Errorf("%s: got %d, want %d", b.name, b.got, b.want)
		}
	}

	// The rebuilt engine keeps operating on the restored chain.
	eng2.SetClock(func() time.Time { return f.now })
	if _, err := eng2.OrderBook.CreateOrder(context.Background(), alice, testAsset, 50, 7); err != nil {
		t.Fatalf("post-replay order: %v", err)
	}
	if got, want := eng2.Recorder.Sequence(), int64(len(outs)+1); got != want {
		t.Errorf("sequence after post-replay op: got %d, want %d", got, want)
	}
}

// ============================================================================
// Integrity failures
// ============================================================================

func TestEngine_Replay_DetectsTamperedPayload(t *testing.T) {
	f := newFixture(t)
	f.issueAsset(t, alice, 100)
	outs := f.drain()

	// Inflate the issued amount in the stored log.
	env := *outs[len(outs)-1].Envelope
	env.Payload = []byte(strings.Replace(string(env.Payload), `"amount":100`, `"amount":900`, 1))

	eng2, _ := freshEngine(f)
	rep := engine.NewReplayer(eng2, 0, engine.GenesisHash())
	for _, out := range outs[:len(outs)-1] {
		if err := rep.Feed(out.Envelope); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}
	err := rep.Feed(&env)
	if err == nil || !strings.Contains(err.Error(), "state hash mismatch") {
		t.Errorf("got %v, want state hash mismatch", err)
	}
}

func TestEngine_Replay_DetectsSequenceGap(t *testing.T) {
	f := newFixture(t)
	f.issueAsset(t, alice, 100)
	f.issueAsset(t, bob, 100)
	outs := f.drain()

	eng2, _ := freshEngine(f)
	rep := engine.NewReplayer(eng2, 0, engine.GenesisHash())
	if err := rep.Feed(outs[0].Envelope); err != nil {
		t.Fatalf("feed: %v", err)
	}
	err := rep.Feed(outs[2].Envelope)
	if err == nil || !strings.Contains(err.Error(), "sequence gap") {
		t.Errorf("got %v, want sequence gap", err)
	}
}

func TestEngine_Replay_DetectsBrokenLink(t *testing.T) {
	f := newFixture(t)
	f.issueAsset(t, alice, 100)
	outs := f.drain()

	env := *outs[0].Envelope
	env.PrevHash[0] ^= 0xFF

	eng2, _ := freshEngine(f)
	rep := engine.NewReplayer(eng2, 0, engine.GenesisHash())
	err := rep.Feed(&env)
	if err == nil || !strings.Contains(err.Error(), "prev hash mismatch") {
		t.Errorf("got %v, want prev hash mismatch", err)
	}
}
