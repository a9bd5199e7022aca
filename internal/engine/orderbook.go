package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"AssetVault/internal/access"
	"AssetVault/internal/event"
	"AssetVault/internal/ledger"
	"AssetVault/internal/num"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// TradingParams are the admin-tunable order book settings.
type TradingParams struct {
	FeeRateBps     int64
	FeeReceiver    common.Address
	MinTradeAmount int64
	MaxTradeAmount int64
	Cooldown       time.Duration
	TradingPaused  bool
}

// OrderBook sells escrowed assets all-or-nothing at a fixed unit price.
// The asset is pulled into escrow when the order is created and leaves
// only through execution or cancellation.
type OrderBook struct {
	mu sync.RWMutex

	orders   map[int64]*Order
	active   map[int64]struct{}
	bySeller map[common.Address][]int64
	byAsset  map[string][]int64
	nextID   int64

	trades          map[uuid.UUID]*Trade
	tradeLog        []uuid.UUID
	tradesByAccount map[common.Address][]uuid.UUID
	tradesByAsset   map[string][]uuid.UUID

	params TradingParams

	locks      *entityLocks
	recorder   *Recorder
	access     *access.Store
	registry   ledger.Registry
	accounts   Accounts
	settlement string
	clock      func() time.Time
}

func NewOrderBook(
	rec *Recorder,
	store *access.Store,
	registry ledger.Registry,
	accounts Accounts,
	settlement string,
) *OrderBook {
	return &OrderBook{
		orders:          make(map[int64]*Order),
		active:          make(map[int64]struct{}),
		bySeller:        make(map[common.Address][]int64),
		byAsset:         make(map[string][]int64),
		trades:          make(map[uuid.UUID]*Trade),
		tradesByAccount: make(map[common.Address][]uuid.UUID),
		tradesByAsset:   make(map[string][]uuid.UUID),
		params:          TradingParams{FeeReceiver: accounts.FeeReceiver},
		locks:           newEntityLocks(),
		recorder:        rec,
		access:          store,
		registry:        registry,
		accounts:        accounts,
		settlement:      settlement,
		clock:           time.Now,
	}
}

func orderKey(id int64) string {
	return "order/" + strconv.FormatInt(id, 10)
}

// CreateOrder lists amount units at price per unit. The asset moves
// into escrow before an id is assigned; a failed pull leaves nothing
// to roll back.
func (ob *OrderBook) CreateOrder(ctx context.Context, seller common.Address, assetID string, amount, price int64) (*Order, error) {
	if amount <= 0 || price <= 0 {
		return nil, fmt.Errorf("create order: amount and price must be positive: %w", ErrValidation)
	}
	if _, ok := num.Gross(price, amount); !ok {
		return nil, fmt.Errorf("create order: price*amount overflows: %w", ErrValidation)
	}

	params := ob.Params()
	if params.TradingPaused {
		return nil, fmt.Errorf("create order: trading paused: %w", ErrState)
	}
	if params.MinTradeAmount > 0 && amount < params.MinTradeAmount {
		return nil, fmt.Errorf("create order: amount %d below minimum %d: %w", amount, params.MinTradeAmount, ErrValidation)
	}
	if params.MaxTradeAmount > 0 && amount > params.MaxTradeAmount {
		return nil, fmt.Errorf("create order: amount %d above maximum %d: %w", amount, params.MaxTradeAmount, ErrValidation)
	}
	if ob.access.IsBlacklisted(seller) {
		return nil, fmt.Errorf("create order: seller is blacklisted: %w", ErrUnauthorized)
	}

	asset, ok := ob.registry.Asset(assetID)
	if !ok {
		return nil, fmt.Errorf("create order: unknown asset %q: %w", assetID, ErrValidation)
	}
	if asset.Paused() {
		return nil, fmt.Errorf("create order: asset %q paused: %w", assetID, ErrState)
	}
	group, _ := ob.registry.AssetGroup(assetID)

	if err := asset.Transfer(seller, ob.accounts.OrderEscrow, amount); err != nil {
		return nil, wrapLedgerErr("create order: escrow", err)
	}

	now := ob.clock()
	ob.mu.Lock()
	ob.nextID++
	o := &Order{
		ID:        ob.nextID,
		Seller:    seller,
		Asset:     assetID,
		Group:     group,
		Amount:    amount,
		Price:     price,
		Currency:  ob.settlement,
		CreatedAt: now,
		Active:    true,
	}
	ob.insertLocked(o)
	ob.mu.Unlock()

	ob.recorder.Record(seller, RequestIDFrom(ctx), now, &event.OrderCreated{
		OrderID:     o.ID,
		AssetID:     assetID,
		Seller:      seller,
		Amount:      amount,
		Price:       price,
		Currency:    ob.settlement,
		CreatedAtUs: now.UnixMicro(),
	})

	return o.clone(), nil
}

// CancelOrder deactivates an active order and refunds the escrowed
// asset. Only the seller or an admin may cancel.
func (ob *OrderBook) CancelOrder(ctx context.Context, actor common.Address, id int64) error {
	return ob.cancel(ctx, actor, id, "")
}

// cancel is the shared path for every cancellation variant. An empty
// reason is derived from the actor's relation to the order.
func (ob *OrderBook) cancel(ctx context.Context, actor common.Address, id int64, reason string) error {
	unlock := ob.locks.Lock(orderKey(id))
	defer unlock()

	ob.mu.RLock()
	o, ok := ob.orders[id]
	var cp Order
	if ok {
		cp = *o
	}
	ob.mu.RUnlock()

	if !ok {
		return fmt.Errorf("cancel order %d: unknown order: %w", id, ErrValidation)
	}
	if !cp.Active {
		return fmt.Errorf("cancel order %d: order not active: %w", id, ErrState)
	}
	if actor != cp.Seller && !ob.access.HasAtLeast(access.RoleAdmin, actor) {
		return fmt.Errorf("cancel order %d: only the seller or an admin may cancel: %w", id, ErrUnauthorized)
	}
	if reason == "" {
		if actor == cp.Seller {
			reason = event.CancelBySeller
		} else {
			reason = event.CancelByAdmin
		}
	}

	asset, ok := ob.registry.Asset(cp.Asset)
	if !ok {
		return fmt.Errorf("cancel order %d: asset %q not registered", id, cp.Asset)
	}
	if asset.Paused() {
		return fmt.Errorf("cancel order %d: asset %q paused: %w", id, cp.Asset, ErrState)
	}

	ob.mu.Lock()
	o.Active = false
	delete(ob.active, id)
	ob.mu.Unlock()

	mustMove(asset, ob.accounts.OrderEscrow, cp.Seller, cp.Amount)

	ob.recorder.Record(actor, RequestIDFrom(ctx), ob.clock(), &event.OrderCancelled{
		OrderID: id,
		AssetID: cp.Asset,
		Seller:  cp.Seller,
		Refund:  cp.Amount,
		Reason:  reason,
	})
	return nil
}

// ExecuteOrder fills an active order in full. The buyer's payment must
// cover price*amount; any overpayment is returned in the same call.
func (ob *OrderBook) ExecuteOrder(ctx context.Context, buyer common.Address, id int64, payment int64) (*Trade, error) {
	if payment <= 0 {
		return nil, fmt.Errorf("execute order %d: payment must be positive: %w", id, ErrValidation)
	}

	unlock := ob.locks.Lock(orderKey(id))
	defer unlock()

	ob.mu.RLock()
	o, ok := ob.orders[id]
	var cp Order
	if ok {
		cp = *o
	}
	ob.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("execute order %d: unknown order: %w", id, ErrValidation)
	}
	if !cp.Active {
		return nil, fmt.Errorf("execute order %d: order not active: %w", id, ErrState)
	}
	if buyer == cp.Seller {
		return nil, fmt.Errorf("execute order %d: buyer and seller are the same account: %w", id, ErrValidation)
	}

	params := ob.Params()
	if params.TradingPaused {
		return nil, fmt.Errorf("execute order %d: trading paused: %w", id, ErrState)
	}
	if ob.access.IsBlacklisted(buyer) {
		return nil, fmt.Errorf("execute order %d: buyer is blacklisted: %w", id, ErrUnauthorized)
	}

	now := ob.clock()
	if params.Cooldown > 0 && now.Before(cp.CreatedAt.Add(params.Cooldown)) {
		return nil, fmt.Errorf("execute order %d: cooldown not elapsed: %w", id, ErrState)
	}

	// Overflow was checked at creation.
	gross, _ := num.Gross(cp.Price, cp.Amount)
	if payment < gross {
		return nil, fmt.Errorf("execute order %d: payment %d below total %d: %w", id, payment, gross, ErrInsufficientFunds)
	}

	asset, ok := ob.registry.Asset(cp.Asset)
	if !ok {
		return nil, fmt.Errorf("execute order %d: asset %q not registered", id, cp.Asset)
	}
	currency, ok := ob.registry.Currency(cp.Currency)
	if !ok {
		return nil, fmt.Errorf("execute order %d: currency %q not registered", id, cp.Currency)
	}
	if asset.Paused() {
		return nil, fmt.Errorf("execute order %d: asset %q paused: %w", id, cp.Asset, ErrState)
	}
	if currency.Paused() {
		return nil, fmt.Errorf("execute order %d: currency %q paused: %w", id, cp.Currency, ErrState)
	}

	// Pull the full payment first; it is the only fallible movement.
	if err := currency.Transfer(buyer, ob.accounts.OrderEscrow, payment); err != nil {
		return nil, wrapLedgerErr(fmt.Sprintf("execute order %d: payment", id), err)
	}

	fee := num.TradeFee(gross, params.FeeRateBps)

	ob.mu.Lock()
	o.Active = false
	delete(ob.active, id)
	ob.mu.Unlock()

	mustMove(currency, ob.accounts.OrderEscrow, params.FeeReceiver, fee)
	mustMove(currency, ob.accounts.OrderEscrow, cp.Seller, gross-fee)
	mustMove(asset, ob.accounts.OrderEscrow, buyer, cp.Amount)
	mustMove(currency, ob.accounts.OrderEscrow, buyer, payment-gross)

	t := &Trade{
		ID:        uuid.New(),
		OrderID:   id,
		Buyer:     buyer,
		Seller:    cp.Seller,
		Asset:     cp.Asset,
		Amount:    cp.Amount,
		Price:     cp.Price,
		Fee:       fee,
		CreatedAt: now,
	}
	ob.mu.Lock()
	ob.insertTradeLocked(t)
	ob.mu.Unlock()

	ob.recorder.Record(buyer, RequestIDFrom(ctx), now, &event.OrderExecuted{
		OrderID:        id,
		TradeID:        t.ID,
		AssetID:        cp.Asset,
		Currency:       cp.Currency,
		Buyer:          buyer,
		Seller:         cp.Seller,
		Amount:         cp.Amount,
		Price:          cp.Price,
		Gross:          gross,
		Fee:            fee,
		SellerProceeds: gross - fee,
		FeeReceiver:    params.FeeReceiver,
		ExecutedAtUs:   now.UnixMicro(),
	})

	return t.clone(), nil
}

// BatchCancelOrders cancels each id best-effort and returns the ids
// that were actually cancelled. Inactive, unknown and not-owned orders
// are skipped; the batch never aborts.
func (ob *OrderBook) BatchCancelOrders(ctx context.Context, actor common.Address, ids []int64) []int64 {
	cancelled := make([]int64, 0, len(ids))
	for _, id := range ids {
		if err := ob.cancel(ctx, actor, id, event.CancelByBatch); err != nil {
			continue
		}
		cancelled = append(cancelled, id)
	}
	return cancelled
}

// AdminCancelAllOrders refunds every active order. Orders whose asset
// is paused stay active; everything else is cancelled.
func (ob *OrderBook) AdminCancelAllOrders(ctx context.Context, actor common.Address) (int, error) {
	if !ob.access.HasAtLeast(access.RoleAdmin, actor) {
		return 0, fmt.Errorf("cancel all orders: admin required: %w", ErrUnauthorized)
	}

	n := 0
	for _, id := range ob.ActiveOrderIDs() {
		if err := ob.cancel(ctx, actor, id, event.CancelByAdminAll); err != nil {
			continue
		}
		n++
	}
	return n, nil
}

// ============================================================================
// Parameter setters
// ============================================================================

func (ob *OrderBook) SetFeeRate(ctx context.Context, actor common.Address, bps int64) error {
	if !ob.access.HasAtLeast(access.RoleAdmin, actor) {
		return fmt.Errorf("set fee rate: admin required: %w", ErrUnauthorized)
	}
	if bps < 0 || bps > num.MaxFeeRateBps {
		return fmt.Errorf("set fee rate: %d outside [0, %d]: %w", bps, num.MaxFeeRateBps, ErrValidation)
	}

	unlock := ob.locks.Lock(paramsKey)
	defer unlock()

	ob.mu.Lock()
	old := ob.params.FeeRateBps
	ob.params.FeeRateBps = bps
	ob.mu.Unlock()

	ob.recordParam(ctx, actor, "fee_rate_bps", strconv.FormatInt(old, 10), strconv.FormatInt(bps, 10))
	return nil
}

func (ob *OrderBook) SetFeeReceiver(ctx context.Context, actor, receiver common.Address) error {
	if !ob.access.HasAtLeast(access.RoleAdmin, actor) {
		return fmt.Errorf("set fee receiver: admin required: %w", ErrUnauthorized)
	}
	if receiver == (common.Address{}) {
		return fmt.Errorf("set fee receiver: zero address: %w", ErrValidation)
	}

	unlock := ob.locks.Lock(paramsKey)
	defer unlock()

	ob.mu.Lock()
	old := ob.params.FeeReceiver
	ob.params.FeeReceiver = receiver
	ob.mu.Unlock()

	ob.recordParam(ctx, actor, "fee_receiver", old.Hex(), receiver.Hex())
	return nil
}

func (ob *OrderBook) SetMinTradeAmount(ctx context.Context, actor common.Address, amount int64) error {
	if !ob.access.HasAtLeast(access.RoleAdmin, actor) {
		return fmt.Errorf("set min trade amount: admin required: %w", ErrUnauthorized)
	}
	if amount < 0 {
		return fmt.Errorf("set min trade amount: negative: %w", ErrValidation)
	}

	unlock := ob.locks.Lock(paramsKey)
	defer unlock()

	ob.mu.Lock()
	old := ob.params.MinTradeAmount
	ob.params.MinTradeAmount = amount
	ob.mu.Unlock()

	ob.recordParam(ctx, actor, "min_trade_amount", strconv.FormatInt(old, 10), strconv.FormatInt(amount, 10))
	return nil
}

func (ob *OrderBook) SetMaxTradeAmount(ctx context.Context, actor common.Address, amount int64) error {
	if !ob.access.HasAtLeast(access.RoleAdmin, actor) {
		return fmt.Errorf("set max trade amount: admin required: %w", ErrUnauthorized)
	}
	if amount < 0 {
		return fmt.Errorf("set max trade amount: negative: %w", ErrValidation)
	}

	unlock := ob.locks.Lock(paramsKey)
	defer unlock()

	ob.mu.Lock()
	old := ob.params.MaxTradeAmount
	ob.params.MaxTradeAmount = amount
	ob.mu.Unlock()

	ob.recordParam(ctx, actor, "max_trade_amount", strconv.FormatInt(old, 10), strconv.FormatInt(amount, 10))
	return nil
}

func (ob *OrderBook) SetCooldownPeriod(ctx context.Context, actor common.Address, d time.Duration) error {
	if !ob.access.HasAtLeast(access.RoleAdmin, actor) {
		return fmt.Errorf("set cooldown: admin required: %w", ErrUnauthorized)
	}
	if d < 0 {
		return fmt.Errorf("set cooldown: negative: %w", ErrValidation)
	}

	unlock := ob.locks.Lock(paramsKey)
	defer unlock()

	ob.mu.Lock()
	old := ob.params.Cooldown
	ob.params.Cooldown = d
	ob.mu.Unlock()

	ob.recordParam(ctx, actor, "cooldown", old.String(), d.String())
	return nil
}

func (ob *OrderBook) SetTradingPaused(ctx context.Context, actor common.Address, paused bool) error {
	if !ob.access.HasAtLeast(access.RoleAdmin, actor) {
		return fmt.Errorf("set trading paused: admin required: %w", ErrUnauthorized)
	}

	unlock := ob.locks.Lock(paramsKey)
	defer unlock()

	ob.mu.Lock()
	old := ob.params.TradingPaused
	ob.params.TradingPaused = paused
	ob.mu.Unlock()

	ob.recordParam(ctx, actor, "trading_paused", strconv.FormatBool(old), strconv.FormatBool(paused))
	return nil
}

func (ob *OrderBook) recordParam(ctx context.Context, actor common.Address, name, oldV, newV string) {
	ob.recorder.Record(actor, RequestIDFrom(ctx), ob.clock(), &event.ParamsUpdated{
		Scope:    event.ParamScopeOrderBook,
		Name:     name,
		OldValue: oldV,
		NewValue: newV,
	})
}

// ============================================================================
// Read side
// ============================================================================

func (ob *OrderBook) GetOrder(id int64) (*Order, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	o, ok := ob.orders[id]
	if !ok {
		return nil, false
	}
	return o.clone(), true
}

// ActiveOrderIDs returns the active ids sorted ascending.
func (ob *OrderBook) ActiveOrderIDs() []int64 {
	ob.mu.RLock()
	ids := make([]int64, 0, len(ob.active))
	for id := range ob.active {
		ids = append(ids, id)
	}
	ob.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// OrdersBySeller returns the seller's orders in creation order.
func (ob *OrderBook) OrdersBySeller(seller common.Address) []*Order {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	out := make([]*Order, 0, len(ob.bySeller[seller]))
	for _, id := range ob.bySeller[seller] {
		out = append(out, ob.orders[id].clone())
	}
	return out
}

// OrdersByAsset returns the asset's orders in creation order.
func (ob *OrderBook) OrdersByAsset(assetID string) []*Order {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	out := make([]*Order, 0, len(ob.byAsset[assetID]))
	for _, id := range ob.byAsset[assetID] {
		out = append(out, ob.orders[id].clone())
	}
	return out
}

func (ob *OrderBook) GetTrade(id uuid.UUID) (*Trade, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	t, ok := ob.trades[id]
	if !ok {
		return nil, false
	}
	return t.clone(), true
}

// TradesByAccount returns trades where the account was buyer or seller,
// in execution order.
func (ob *OrderBook) TradesByAccount(account common.Address) []*Trade {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	out := make([]*Trade, 0, len(ob.tradesByAccount[account]))
	for _, id := range ob.tradesByAccount[account] {
		out = append(out, ob.trades[id].clone())
	}
	return out
}

// TradesByAsset returns the asset's trades in execution order.
func (ob *OrderBook) TradesByAsset(assetID string) []*Trade {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	out := make([]*Trade, 0, len(ob.tradesByAsset[assetID]))
	for _, id := range ob.tradesByAsset[assetID] {
		out = append(out, ob.trades[id].clone())
	}
	return out
}

// Params returns a copy of the current trading parameters.
func (ob *OrderBook) Params() TradingParams {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.params
}

// ============================================================================
// Internal index maintenance
// ============================================================================

func (ob *OrderBook) insertLocked(o *Order) {
	ob.orders[o.ID] = o
	ob.active[o.ID] = struct{}{}
	ob.bySeller[o.Seller] = append(ob.bySeller[o.Seller], o.ID)
	ob.byAsset[o.Asset] = append(ob.byAsset[o.Asset], o.ID)
}

func (ob *OrderBook) insertTradeLocked(t *Trade) {
	ob.trades[t.ID] = t
	ob.tradeLog = append(ob.tradeLog, t.ID)
	ob.tradesByAccount[t.Buyer] = append(ob.tradesByAccount[t.Buyer], t.ID)
	ob.tradesByAccount[t.Seller] = append(ob.tradesByAccount[t.Seller], t.ID)
	ob.tradesByAsset[t.Asset] = append(ob.tradesByAsset[t.Asset], t.ID)
}

// ============================================================================
// Replay
// ============================================================================

// applyOrderCreated re-applies a recorded listing, escrow movement
// included. Replay trusts recorded facts: no auth, no validation, no
// emission.
func (ob *OrderBook) applyOrderCreated(p *event.OrderCreated) error {
	asset, ok := ob.registry.Asset(p.AssetID)
	if !ok {
		return fmt.Errorf("replay order %d: unknown asset %q", p.OrderID, p.AssetID)
	}
	if err := asset.Transfer(p.Seller, ob.accounts.OrderEscrow, p.Amount); err != nil {
		return fmt.Errorf("replay order %d: escrow: %w", p.OrderID, err)
	}
	group, _ := ob.registry.AssetGroup(p.AssetID)

	ob.mu.Lock()
	defer ob.mu.Unlock()

	if p.OrderID > ob.nextID {
		ob.nextID = p.OrderID
	}
	ob.insertLocked(&Order{
		ID:        p.OrderID,
		Seller:    p.Seller,
		Asset:     p.AssetID,
		Group:     group,
		Amount:    p.Amount,
		Price:     p.Price,
		Currency:  p.Currency,
		CreatedAt: time.UnixMicro(p.CreatedAtUs),
		Active:    true,
	})
	return nil
}

func (ob *OrderBook) applyOrderCancelled(p *event.OrderCancelled) error {
	ob.mu.Lock()
	o, ok := ob.orders[p.OrderID]
	if ok {
		o.Active = false
		delete(ob.active, p.OrderID)
	}
	ob.mu.Unlock()
	if !ok {
		return fmt.Errorf("replay cancel: unknown order %d", p.OrderID)
	}

	asset, ok := ob.registry.Asset(p.AssetID)
	if !ok {
		return fmt.Errorf("replay cancel %d: unknown asset %q", p.OrderID, p.AssetID)
	}
	if err := asset.Transfer(ob.accounts.OrderEscrow, p.Seller, p.Refund); err != nil {
		return fmt.Errorf("replay cancel %d: refund: %w", p.OrderID, err)
	}
	return nil
}

// applyOrderExecuted re-applies the net movements of a fill. The
// overpayment leg nets to zero and is not recorded.
func (ob *OrderBook) applyOrderExecuted(p *event.OrderExecuted) error {
	asset, ok := ob.registry.Asset(p.AssetID)
	if !ok {
		return fmt.Errorf("replay execute %d: unknown asset %q", p.OrderID, p.AssetID)
	}
	currency, ok := ob.registry.Currency(p.Currency)
	if !ok {
		return fmt.Errorf("replay execute %d: unknown currency %q", p.OrderID, p.Currency)
	}

	if err := currency.Transfer(p.Buyer, ob.accounts.OrderEscrow, p.Gross); err != nil {
		return fmt.Errorf("replay execute %d: payment: %w", p.OrderID, err)
	}

	ob.mu.Lock()
	o, found := ob.orders[p.OrderID]
	if found {
		o.Active = false
		delete(ob.active, p.OrderID)
	}
	ob.mu.Unlock()
	if !found {
		return fmt.Errorf("replay execute: unknown order %d", p.OrderID)
	}

	if p.Fee > 0 {
		if err := currency.Transfer(ob.accounts.OrderEscrow, p.FeeReceiver, p.Fee); err != nil {
			return fmt.Errorf("replay execute %d: fee: %w", p.OrderID, err)
		}
	}
	if err := currency.Transfer(ob.accounts.OrderEscrow, p.Seller, p.SellerProceeds); err != nil {
		return fmt.Errorf("replay execute %d: proceeds: %w", p.OrderID, err)
	}
	if err := asset.Transfer(ob.accounts.OrderEscrow, p.Buyer, p.Amount); err != nil {
		return fmt.Errorf("replay execute %d: delivery: %w", p.OrderID, err)
	}

	ob.mu.Lock()
	ob.insertTradeLocked(&Trade{
		ID:        p.TradeID,
		OrderID:   p.OrderID,
		Buyer:     p.Buyer,
		Seller:    p.Seller,
		Asset:     p.AssetID,
		Amount:    p.Amount,
		Price:     p.Price,
		Fee:       p.Fee,
		CreatedAt: time.UnixMicro(p.ExecutedAtUs),
	})
	ob.mu.Unlock()
	return nil
}

// applyTradingParam re-applies a recorded parameter change from its
// string form.
func (ob *OrderBook) applyTradingParam(p *event.ParamsUpdated) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	switch p.Name {
	case "fee_rate_bps":
		v, err := strconv.ParseInt(p.NewValue, 10, 64)
		if err != nil {
			return fmt.Errorf("replay param %s: %w", p.Name, err)
		}
		ob.params.FeeRateBps = v
	case "fee_receiver":
		ob.params.FeeReceiver = common.HexToAddress(p.NewValue)
	case "min_trade_amount":
		v, err := strconv.ParseInt(p.NewValue, 10, 64)
		if err != nil {
			return fmt.Errorf("replay param %s: %w", p.Name, err)
		}
		ob.params.MinTradeAmount = v
	case "max_trade_amount":
		v, err := strconv.ParseInt(p.NewValue, 10, 64)
		if err != nil {
			return fmt.Errorf("replay param %s: %w", p.Name, err)
		}
		ob.params.MaxTradeAmount = v
	case "cooldown":
		d, err := time.ParseDuration(p.NewValue)
		if err != nil {
			return fmt.Errorf("replay param %s: %w", p.Name, err)
		}
		ob.params.Cooldown = d
	case "trading_paused":
		ob.params.TradingPaused = p.NewValue == "true"
	default:
		return fmt.Errorf("replay param: unknown trading parameter %q", p.Name)
	}
	return nil
}
