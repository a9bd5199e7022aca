package engine_test

import (
	"context"
	"testing"
	"time"

	"AssetVault/internal/access"
	"AssetVault/internal/engine"
	"AssetVault/internal/event"
	"AssetVault/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
)

const (
	testAsset      = "ESTATE-1"
	testCurrency   = "USD"
	assetDecimals  = 6
	usdDecimals    = 2
	persistBacklog = 4096
)

func addr(n byte) common.Address {
	var a common.Address
	a[19] = n
	return a
}

var (
	rootAdmin   = addr(0xA0)
	treasury    = addr(0xB0)
	feeReceiver = addr(0xB1)
	redeemPool  = addr(0xB2)
	redeemBank  = addr(0xB3)

	alice = addr(0x01)
	bob   = addr(0x02)
	carol = addr(0x03)
	dave  = addr(0x04)
)

// fixture is a fully wired embedded platform with a pinned clock and a
// buffered persist channel so every sealed envelope can be inspected.
type fixture struct {
	eng      *engine.Engine
	store    *access.Store
	registry *ledger.MemRegistry
	accounts engine.Accounts
	persist  chan engine.Output
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    access.NewStore(),
		registry: ledger.NewMemRegistry(),
		accounts: engine.NewAccounts(treasury, feeReceiver, redeemPool, redeemBank),
		persist:  make(chan engine.Output, persistBacklog),
		now:      time.Unix(1_750_000_000, 0),
	}
	rec := engine.NewRecorder(0, f.persist, nil, nil, nil)
	f.eng = engine.New(rec, f.store, f.registry, f.accounts, testCurrency, rootAdmin)
	f.eng.SetClock(func() time.Time { return f.now })

	ctx := context.Background()
	if err := f.eng.Admin.RegisterAsset(ctx, rootAdmin, testAsset, "estates", assetDecimals); err != nil {
		t.Fatalf("register asset: %v", err)
	}
	if err := f.eng.Admin.RegisterCurrency(ctx, rootAdmin, testCurrency, usdDecimals); err != nil {
		t.Fatalf("register currency: %v", err)
	}
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) issueAsset(t *testing.T, to common.Address, amount int64) {
	t.Helper()
	if err := f.eng.Admin.IssueTokens(context.Background(), rootAdmin, event.TokenKindAsset, testAsset, to, amount); err != nil {
		t.Fatalf("issue asset: %v", err)
	}
}

func (f *fixture) issueUSD(t *testing.T, to common.Address, amount int64) {
	t.Helper()
	if err := f.eng.Admin.IssueTokens(context.Background(), rootAdmin, event.TokenKindCurrency, testCurrency, to, amount); err != nil {
		t.Fatalf("issue currency: %v", err)
	}
}

func (f *fixture) assetBal(t *testing.T, account common.Address) int64 {
	t.Helper()
	tok, ok := f.registry.AssetToken(testAsset)
	if !ok {
		t.Fatalf("asset %s not registered", testAsset)
	}
	return tok.BalanceOf(account)
}

func (f *fixture) usdBal(t *testing.T, account common.Address) int64 {
	t.Helper()
	tok, ok := f.registry.CurrencyToken(testCurrency)
	if !ok {
		t.Fatalf("currency %s not registered", testCurrency)
	}
	return tok.BalanceOf(account)
}

// drain empties the persist channel and returns everything sealed so
// far, in sequence order.
func (f *fixture) drain() []engine.Output {
	var outs []engine.Output
	for {
		select {
		case out := <-f.persist:
			outs = append(outs, out)
		default:
			return outs
		}
	}
}

// lastEvent drains and returns the final sealed envelope, failing when
// nothing was recorded.
func (f *fixture) lastEvent(t *testing.T) engine.Output {
	t.Helper()
	outs := f.drain()
	if len(outs) == 0 {
		t.Fatal("no events recorded")
	}
	return outs[len(outs)-1]
}

// eventTypes maps the drained outputs to their type names.
func eventTypes(outs []engine.Output) []string {
	names := make([]string, len(outs))
	for i, out := range outs {
		names[i] = out.Envelope.EventType.String()
	}
	return names
}

// grantRole promotes an account through the admin surface.
func (f *fixture) grantRole(t *testing.T, role string, account common.Address) {
	t.Helper()
	if err := f.eng.Admin.GrantRole(context.Background(), rootAdmin, role, account); err != nil {
		t.Fatalf("grant %s: %v", role, err)
	}
}
