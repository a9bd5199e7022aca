package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"AssetVault/internal/access"
	"AssetVault/internal/event"
	"AssetVault/internal/ledger"
	"AssetVault/internal/num"

	"github.com/ethereum/go-ethereum/common"
)

// Redemptions runs the burn workflow: a holder escrows tokens with a
// request, a manager approves or rejects it, and an operator executes
// the approved request by retiring the tokens to the redemption pool
// and paying out settlement currency at the configured rate. Every
// non-executed outcome refunds the escrow in full.
type Redemptions struct {
	mu sync.RWMutex

	items  map[int64]*Redemption
	nextID int64
	rates  map[string]int64

	// Serializes the treasury balance check against the payout so
	// concurrent executes cannot jointly overdraw it.
	treasuryMu sync.Mutex

	locks      *entityLocks
	recorder   *Recorder
	access     *access.Store
	registry   ledger.Registry
	accounts   Accounts
	settlement string
	clock      func() time.Time
}

func NewRedemptions(
	rec *Recorder,
	store *access.Store,
	registry ledger.Registry,
	accounts Accounts,
	settlement string,
) *Redemptions {
	return &Redemptions{
		items:      make(map[int64]*Redemption),
		rates:      make(map[string]int64),
		locks:      newEntityLocks(),
		recorder:   rec,
		access:     store,
		registry:   registry,
		accounts:   accounts,
		settlement: settlement,
		clock:      time.Now,
	}
}

func redemptionKey(id int64) string {
	return "redemption/" + strconv.FormatInt(id, 10)
}

// Create escrows the holder's tokens and opens a pending request.
func (d *Redemptions) Create(ctx context.Context, requester common.Address, assetID string, amount int64, reason string) (*Redemption, error) {
	if d.access.IsBlacklisted(requester) {
		return nil, fmt.Errorf("create redemption: account is blacklisted: %w", ErrUnauthorized)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("create redemption: amount must be positive: %w", ErrValidation)
	}
	asset, ok := d.registry.Asset(assetID)
	if !ok {
		return nil, fmt.Errorf("create redemption: unknown asset %q: %w", assetID, ErrValidation)
	}
	if asset.Paused() {
		return nil, fmt.Errorf("create redemption: asset %q paused: %w", assetID, ErrState)
	}

	if err := asset.Transfer(requester, d.accounts.RedemptionEscrow, amount); err != nil {
		return nil, wrapLedgerErr("create redemption: escrow", err)
	}

	now := d.clock()
	d.mu.Lock()
	d.nextID++
	r := &Redemption{
		ID:        d.nextID,
		Requester: requester,
		Asset:     assetID,
		Amount:    amount,
		Reason:    reason,
		Status:    RedemptionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	d.items[r.ID] = r
	d.mu.Unlock()

	d.recorder.Record(requester, RequestIDFrom(ctx), now, &event.RedemptionCreated{
		RedemptionID: r.ID,
		AssetID:      assetID,
		Holder:       requester,
		Amount:       amount,
		Reason:       reason,
		CreatedAtUs:  now.UnixMicro(),
	})

	return r.clone(), nil
}

// Approve marks a pending request executable. Tokens stay escrowed.
func (d *Redemptions) Approve(ctx context.Context, actor common.Address, id int64) error {
	unlock := d.locks.Lock(redemptionKey(id))
	defer unlock()

	cp, item, err := d.snapshot(id)
	if err != nil {
		return fmt.Errorf("approve redemption %d: %w", id, err)
	}
	if !d.access.HasAtLeast(access.RoleManager, actor) {
		return fmt.Errorf("approve redemption %d: manager required: %w", id, ErrUnauthorized)
	}
	if !cp.Status.CanTransitionTo(RedemptionStatusApproved) {
		return fmt.Errorf("approve redemption %d: status %s: %w", id, cp.Status, ErrState)
	}

	now := d.clock()
	d.mu.Lock()
	item.Status = RedemptionStatusApproved
	item.UpdatedAt = now
	d.mu.Unlock()

	d.recorder.Record(actor, RequestIDFrom(ctx), now, &event.RedemptionApproved{RedemptionID: id})
	return nil
}

// Reject closes a pending request and refunds the escrow.
func (d *Redemptions) Reject(ctx context.Context, actor common.Address, id int64, reason string) error {
	unlock := d.locks.Lock(redemptionKey(id))
	defer unlock()

	cp, item, err := d.snapshot(id)
	if err != nil {
		return fmt.Errorf("reject redemption %d: %w", id, err)
	}
	if !d.access.HasAtLeast(access.RoleManager, actor) {
		return fmt.Errorf("reject redemption %d: manager required: %w", id, ErrUnauthorized)
	}
	if !cp.Status.CanTransitionTo(RedemptionStatusRejected) {
		return fmt.Errorf("reject redemption %d: status %s: %w", id, cp.Status, ErrState)
	}
	asset, ok := d.registry.Asset(cp.Asset)
	if !ok {
		return fmt.Errorf("reject redemption %d: asset %q not registered", id, cp.Asset)
	}
	if asset.Paused() {
		return fmt.Errorf("reject redemption %d: asset %q paused: %w", id, cp.Asset, ErrState)
	}

	now := d.clock()
	d.mu.Lock()
	item.Status = RedemptionStatusRejected
	item.StatusReason = reason
	item.UpdatedAt = now
	d.mu.Unlock()

	mustMove(asset, d.accounts.RedemptionEscrow, cp.Requester, cp.Amount)

	d.recorder.Record(actor, RequestIDFrom(ctx), now, &event.RedemptionRejected{
		RedemptionID: id,
		Holder:       cp.Requester,
		Refund:       cp.Amount,
		Reason:       reason,
	})
	return nil
}

// Execute retires the escrowed tokens to the redemption pool and pays
// the holder settlement currency at the asset's rate. The treasury
// balance is checked and drawn under one lock so parallel executes
// cannot overdraw it.
func (d *Redemptions) Execute(ctx context.Context, actor common.Address, id int64) error {
	unlock := d.locks.Lock(redemptionKey(id))
	defer unlock()

	cp, item, err := d.snapshot(id)
	if err != nil {
		return fmt.Errorf("execute redemption %d: %w", id, err)
	}
	if !d.access.HasAtLeast(access.RoleOperator, actor) {
		return fmt.Errorf("execute redemption %d: operator required: %w", id, ErrUnauthorized)
	}
	if !cp.Status.CanTransitionTo(RedemptionStatusExecuted) {
		return fmt.Errorf("execute redemption %d: status %s: %w", id, cp.Status, ErrState)
	}
	if d.access.IsBlacklisted(cp.Requester) {
		return fmt.Errorf("execute redemption %d: holder is blacklisted: %w", id, ErrUnauthorized)
	}

	rate := d.Rate(cp.Asset)
	if rate <= 0 {
		return fmt.Errorf("execute redemption %d: no redemption rate for %q: %w", id, cp.Asset, ErrState)
	}
	payout := num.RedemptionPayout(cp.Amount, rate)

	asset, ok := d.registry.Asset(cp.Asset)
	if !ok {
		return fmt.Errorf("execute redemption %d: asset %q not registered", id, cp.Asset)
	}
	if asset.Paused() {
		return fmt.Errorf("execute redemption %d: asset %q paused: %w", id, cp.Asset, ErrState)
	}
	cur, ok := d.registry.Currency(d.settlement)
	if !ok {
		return fmt.Errorf("execute redemption %d: settlement currency %q not registered", id, d.settlement)
	}
	if payout > 0 && cur.Paused() {
		return fmt.Errorf("execute redemption %d: currency %q paused: %w", id, d.settlement, ErrState)
	}

	now := d.clock()

	d.treasuryMu.Lock()
	if cur.BalanceOf(d.accounts.RedemptionTreasury) < payout {
		d.treasuryMu.Unlock()
		return fmt.Errorf("execute redemption %d: redemption treasury underfunded: %w", id, ErrInsufficientFunds)
	}

	d.mu.Lock()
	item.Status = RedemptionStatusExecuted
	item.UpdatedAt = now
	d.mu.Unlock()

	mustMove(asset, d.accounts.RedemptionEscrow, d.accounts.RedemptionPool, cp.Amount)
	mustMove(cur, d.accounts.RedemptionTreasury, cp.Requester, payout)
	d.treasuryMu.Unlock()

	d.recorder.Record(actor, RequestIDFrom(ctx), now, &event.RedemptionExecuted{
		RedemptionID: id,
		AssetID:      cp.Asset,
		Holder:       cp.Requester,
		Burned:       cp.Amount,
		Payout:       payout,
		RateBps:      rate,
		Currency:     d.settlement,
	})
	return nil
}

// Cancel lets the requester withdraw a still-pending request. The
// escrow is refunded in full.
func (d *Redemptions) Cancel(ctx context.Context, actor common.Address, id int64) error {
	unlock := d.locks.Lock(redemptionKey(id))
	defer unlock()

	cp, item, err := d.snapshot(id)
	if err != nil {
		return fmt.Errorf("cancel redemption %d: %w", id, err)
	}
	if actor != cp.Requester {
		return fmt.Errorf("cancel redemption %d: only the requester may cancel: %w", id, ErrUnauthorized)
	}
	if !cp.Status.CanTransitionTo(RedemptionStatusCancelled) {
		return fmt.Errorf("cancel redemption %d: status %s: %w", id, cp.Status, ErrState)
	}
	asset, ok := d.registry.Asset(cp.Asset)
	if !ok {
		return fmt.Errorf("cancel redemption %d: asset %q not registered", id, cp.Asset)
	}
	if asset.Paused() {
		return fmt.Errorf("cancel redemption %d: asset %q paused: %w", id, cp.Asset, ErrState)
	}

	now := d.clock()
	d.mu.Lock()
	item.Status = RedemptionStatusCancelled
	item.UpdatedAt = now
	d.mu.Unlock()

	mustMove(asset, d.accounts.RedemptionEscrow, cp.Requester, cp.Amount)

	d.recorder.Record(actor, RequestIDFrom(ctx), now, &event.RedemptionCancelled{
		RedemptionID: id,
		Holder:       cp.Requester,
		Refund:       cp.Amount,
	})
	return nil
}

// CanExecute reports whether Execute would currently succeed and, when
// it would not, the first blocking reason. A true result is advisory
// only since state can move before the execute lands.
func (d *Redemptions) CanExecute(id int64) (bool, string) {
	d.mu.RLock()
	item, ok := d.items[id]
	var cp Redemption
	if ok {
		cp = *item
	}
	d.mu.RUnlock()

	if !ok {
		return false, "unknown redemption"
	}
	if !cp.Status.CanTransitionTo(RedemptionStatusExecuted) {
		return false, "status is " + cp.Status.String()
	}
	if d.access.IsBlacklisted(cp.Requester) {
		return false, "holder is blacklisted"
	}
	rate := d.Rate(cp.Asset)
	if rate <= 0 {
		return false, "no redemption rate configured"
	}
	asset, ok := d.registry.Asset(cp.Asset)
	if !ok {
		return false, "asset not registered"
	}
	if asset.Paused() {
		return false, "asset is paused"
	}
	cur, ok := d.registry.Currency(d.settlement)
	if !ok {
		return false, "settlement currency not registered"
	}
	payout := num.RedemptionPayout(cp.Amount, rate)
	if payout > 0 && cur.Paused() {
		return false, "settlement currency is paused"
	}
	if cur.BalanceOf(d.accounts.RedemptionTreasury) < payout {
		return false, "redemption treasury underfunded"
	}
	return true, ""
}

// SetRate sets the asset's settlement rate in basis points of face
// value. Zero disables execution for the asset.
func (d *Redemptions) SetRate(ctx context.Context, actor common.Address, assetID string, rateBps int64) error {
	if !d.access.HasAtLeast(access.RoleAdmin, actor) {
		return fmt.Errorf("set redemption rate: admin required: %w", ErrUnauthorized)
	}
	if rateBps < 0 {
		return fmt.Errorf("set redemption rate: negative: %w", ErrValidation)
	}
	if _, ok := d.registry.Asset(assetID); !ok {
		return fmt.Errorf("set redemption rate: unknown asset %q: %w", assetID, ErrValidation)
	}

	unlock := d.locks.Lock(paramsKey)
	defer unlock()

	d.mu.Lock()
	old := d.rates[assetID]
	d.rates[assetID] = rateBps
	d.mu.Unlock()

	d.recorder.Record(actor, RequestIDFrom(ctx), d.clock(), &event.ParamsUpdated{
		Scope:    event.ParamScopeRedemption,
		Name:     "rate/" + assetID,
		OldValue: strconv.FormatInt(old, 10),
		NewValue: strconv.FormatInt(rateBps, 10),
	})
	return nil
}

// ============================================================================
// Read side
// ============================================================================

func (d *Redemptions) Get(id int64) (*Redemption, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	item, ok := d.items[id]
	if !ok {
		return nil, false
	}
	return item.clone(), true
}

// Rate returns the asset's redemption rate in basis points, zero when
// unset.
func (d *Redemptions) Rate(assetID string) int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rates[assetID]
}

// SettlementCurrency returns the currency executed redemptions pay in.
func (d *Redemptions) SettlementCurrency() string {
	return d.settlement
}

func (d *Redemptions) snapshot(id int64) (Redemption, *Redemption, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	item, ok := d.items[id]
	if !ok {
		return Redemption{}, nil, fmt.Errorf("unknown redemption: %w", ErrValidation)
	}
	return *item, item, nil
}

// ============================================================================
// Replay
// ============================================================================

func (d *Redemptions) applyCreated(p *event.RedemptionCreated) error {
	asset, ok := d.registry.Asset(p.AssetID)
	if !ok {
		return fmt.Errorf("replay redemption %d: unknown asset %q", p.RedemptionID, p.AssetID)
	}
	if err := asset.Transfer(p.Holder, d.accounts.RedemptionEscrow, p.Amount); err != nil {
		return fmt.Errorf("replay redemption %d: escrow: %w", p.RedemptionID, err)
	}

	created := time.UnixMicro(p.CreatedAtUs)
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.RedemptionID > d.nextID {
		d.nextID = p.RedemptionID
	}
	d.items[p.RedemptionID] = &Redemption{
		ID:        p.RedemptionID,
		Requester: p.Holder,
		Asset:     p.AssetID,
		Amount:    p.Amount,
		Reason:    p.Reason,
		Status:    RedemptionStatusPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
	return nil
}

func (d *Redemptions) applyApproved(p *event.RedemptionApproved, ts time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.items[p.RedemptionID]
	if !ok {
		return fmt.Errorf("replay approve: unknown redemption %d", p.RedemptionID)
	}
	item.Status = RedemptionStatusApproved
	item.UpdatedAt = ts
	return nil
}

func (d *Redemptions) applyRejected(p *event.RedemptionRejected, ts time.Time) error {
	d.mu.Lock()
	item, ok := d.items[p.RedemptionID]
	assetID := ""
	if ok {
		item.Status = RedemptionStatusRejected
		item.StatusReason = p.Reason
		item.UpdatedAt = ts
		assetID = item.Asset
	}
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("replay reject: unknown redemption %d", p.RedemptionID)
	}

	asset, found := d.registry.Asset(assetID)
	if !found {
		return fmt.Errorf("replay reject %d: unknown asset %q", p.RedemptionID, assetID)
	}
	if err := asset.Transfer(d.accounts.RedemptionEscrow, p.Holder, p.Refund); err != nil {
		return fmt.Errorf("replay reject %d: refund: %w", p.RedemptionID, err)
	}
	return nil
}

func (d *Redemptions) applyExecuted(p *event.RedemptionExecuted, ts time.Time) error {
	d.mu.Lock()
	item, ok := d.items[p.RedemptionID]
	if ok {
		item.Status = RedemptionStatusExecuted
		item.UpdatedAt = ts
	}
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("replay execute: unknown redemption %d", p.RedemptionID)
	}

	asset, found := d.registry.Asset(p.AssetID)
	if !found {
		return fmt.Errorf("replay execute %d: unknown asset %q", p.RedemptionID, p.AssetID)
	}
	if err := asset.Transfer(d.accounts.RedemptionEscrow, d.accounts.RedemptionPool, p.Burned); err != nil {
		return fmt.Errorf("replay execute %d: pool: %w", p.RedemptionID, err)
	}
	if p.Payout > 0 {
		cur, found := d.registry.Currency(p.Currency)
		if !found {
			return fmt.Errorf("replay execute %d: unknown currency %q", p.RedemptionID, p.Currency)
		}
		if err := cur.Transfer(d.accounts.RedemptionTreasury, p.Holder, p.Payout); err != nil {
			return fmt.Errorf("replay execute %d: payout: %w", p.RedemptionID, err)
		}
	}
	return nil
}

func (d *Redemptions) applyCancelled(p *event.RedemptionCancelled, ts time.Time) error {
	d.mu.Lock()
	item, ok := d.items[p.RedemptionID]
	assetID := ""
	if ok {
		item.Status = RedemptionStatusCancelled
		item.UpdatedAt = ts
		assetID = item.Asset
	}
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("replay cancel: unknown redemption %d", p.RedemptionID)
	}

	asset, found := d.registry.Asset(assetID)
	if !found {
		return fmt.Errorf("replay cancel %d: unknown asset %q", p.RedemptionID, assetID)
	}
	if err := asset.Transfer(d.accounts.RedemptionEscrow, p.Holder, p.Refund); err != nil {
		return fmt.Errorf("replay cancel %d: refund: %w", p.RedemptionID, err)
	}
	return nil
}

func (d *Redemptions) applyParam(p *event.ParamsUpdated) error {
	assetID, ok := strings.CutPrefix(p.Name, "rate/")
	if !ok {
		return fmt.Errorf("replay param: unknown redemption parameter %q", p.Name)
	}
	rate, err := strconv.ParseInt(p.NewValue, 10, 64)
	if err != nil {
		return fmt.Errorf("replay param %s: %w", p.Name, err)
	}
	d.mu.Lock()
	d.rates[assetID] = rate
	d.mu.Unlock()
	return nil
}
