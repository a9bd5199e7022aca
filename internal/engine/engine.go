// Package engine holds the authoritative state machines of the
// platform: the escrow-backed order book, the distribution engine, the
// redemption workflow and the admin surface. Every successful mutation
// is sealed into a hash-chained audit log by the Recorder; recovery
// replays that log over a state snapshot.
package engine

import (
	"context"
	"time"

	"AssetVault/internal/access"
	"AssetVault/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
)

// Accounts names the platform-owned ledger accounts. Escrow addresses
// are derived from the module name; the rest come from configuration.
type Accounts struct {
	OrderEscrow        common.Address
	DistributionEscrow common.Address
	RedemptionEscrow   common.Address
	Treasury           common.Address
	FeeReceiver        common.Address
	RedemptionPool     common.Address
	RedemptionTreasury common.Address
}

// NewAccounts derives the escrow addresses and fills in the configured
// destination accounts.
func NewAccounts(treasury, feeReceiver, redemptionPool, redemptionTreasury common.Address) Accounts {
	return Accounts{
		OrderEscrow:        ledger.ModuleAddress("escrow/orderbook"),
		DistributionEscrow: ledger.ModuleAddress("escrow/distributions"),
		RedemptionEscrow:   ledger.ModuleAddress("escrow/redemptions"),
		Treasury:           treasury,
		FeeReceiver:        feeReceiver,
		RedemptionPool:     redemptionPool,
		RedemptionTreasury: redemptionTreasury,
	}
}

// Engine bundles the state machines over one recorder, one access
// store and one embedded ledger registry.
type Engine struct {
	Recorder      *Recorder
	Access        *access.Store
	Registry      *ledger.MemRegistry
	OrderBook     *OrderBook
	Distributions *Distributions
	Redemptions   *Redemptions
	Admin         *Admin
}

// New wires the engines. rootAdmin is seeded with the Admin role
// directly in the store; seeding is state, not an event, so replay
// converges regardless of how often the process restarts.
func New(
	rec *Recorder,
	store *access.Store,
	registry *ledger.MemRegistry,
	accounts Accounts,
	settlement string,
	rootAdmin common.Address,
) *Engine {
	store.Grant(access.RoleAdmin, rootAdmin)

	return &Engine{
		Recorder:      rec,
		Access:        store,
		Registry:      registry,
		OrderBook:     NewOrderBook(rec, store, registry, accounts, settlement),
		Distributions: NewDistributions(rec, store, registry, accounts),
		Redemptions:   NewRedemptions(rec, store, registry, accounts, settlement),
		Admin:         NewAdmin(rec, store, registry),
	}
}

// SetClock overrides wall-clock reads on every engine. Tests pin time
// with it; replay never consults the clock.
func (e *Engine) SetClock(now func() time.Time) {
	e.OrderBook.clock = now
	e.Distributions.clock = now
	e.Redemptions.clock = now
	e.Admin.clock = now
}

type requestIDKey struct{}

// WithRequestID stamps the command's idempotency key onto the context;
// the engines copy it into every envelope they record.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the stamped request id, or "" for direct calls.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
