package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"AssetVault/internal/access"
	"AssetVault/internal/event"
	"AssetVault/internal/ledger"
	"AssetVault/internal/merkle"
	"AssetVault/internal/num"

	"github.com/ethereum/go-ethereum/common"
)

// Distributions manages funded payout pools. Snapshot pools pay each
// holder pro rata against a balance snapshot taken at creation; merkle
// pools pay fixed allocations against a published root. Either way a
// pool pays each account at most once and never more than Remaining.
type Distributions struct {
	mu sync.RWMutex

	items       map[int64]*Distribution
	nextID      int64
	claimWindow time.Duration

	locks    *entityLocks
	recorder *Recorder
	access   *access.Store
	registry ledger.Registry
	accounts Accounts
	clock    func() time.Time
}

func NewDistributions(
	rec *Recorder,
	store *access.Store,
	registry ledger.Registry,
	accounts Accounts,
) *Distributions {
	return &Distributions{
		items:    make(map[int64]*Distribution),
		locks:    newEntityLocks(),
		recorder: rec,
		access:   store,
		registry: registry,
		accounts: accounts,
		clock:    time.Now,
	}
}

// InitClaimWindow seeds the boot-time claim window. Seeding is state,
// not an event; snapshots and replayed window changes override it.
func (d *Distributions) InitClaimWindow(window time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.claimWindow = window
}

func distKey(id int64) string {
	return "distribution/" + strconv.FormatInt(id, 10)
}

// Create funds a pro-rata pool for the asset's holders. The snapshot is
// taken in the same call, so balances at this instant decide every
// later entitlement.
func (d *Distributions) Create(ctx context.Context, funder common.Address, assetID string, amount int64, currency, description string) (*Distribution, error) {
	if !d.access.HasAtLeast(access.RoleManager, funder) {
		return nil, fmt.Errorf("create distribution: manager required: %w", ErrUnauthorized)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("create distribution: amount must be positive: %w", ErrValidation)
	}
	asset, ok := d.registry.Asset(assetID)
	if !ok {
		return nil, fmt.Errorf("create distribution: unknown asset %q: %w", assetID, ErrValidation)
	}
	cur, ok := d.registry.Currency(currency)
	if !ok {
		return nil, fmt.Errorf("create distribution: unknown currency %q: %w", currency, ErrValidation)
	}
	if cur.Paused() {
		return nil, fmt.Errorf("create distribution: currency %q paused: %w", currency, ErrState)
	}

	// Serialized so snapshot ids land in the log in the order the
	// ledger assigned them; replay re-takes them and checks.
	unlock := d.locks.Lock(createKey)
	defer unlock()

	if err := cur.Transfer(funder, d.accounts.DistributionEscrow, amount); err != nil {
		return nil, wrapLedgerErr("create distribution: escrow", err)
	}

	snap := asset.Snapshot()
	group, _ := d.registry.AssetGroup(assetID)
	now := d.clock()

	d.mu.Lock()
	d.nextID++
	dist := &Distribution{
		ID:          d.nextID,
		Kind:        event.DistributionKindSnapshot,
		Asset:       assetID,
		Group:       group,
		Currency:    currency,
		Amount:      amount,
		Remaining:   amount,
		SnapshotID:  snap,
		Status:      DistributionStatusCreated,
		Funder:      funder,
		Description: description,
		CreatedAt:   now,
		claimed:     make(map[common.Address]struct{}),
	}
	d.items[dist.ID] = dist
	d.mu.Unlock()

	d.recorder.Record(funder, RequestIDFrom(ctx), now, &event.DistributionCreated{
		DistributionID: dist.ID,
		Kind:           event.DistributionKindSnapshot,
		AssetID:        assetID,
		Amount:         amount,
		Currency:       currency,
		Description:    description,
		Funder:         funder,
		SnapshotID:     snap,
		CreatedAtUs:    now.UnixMicro(),
	})

	return dist.clone(), nil
}

// CreateMerkle funds a pool paid out against a later-published
// allocation root. target is a free-form label; when it names a
// registered asset the pool inherits that asset's group tag.
func (d *Distributions) CreateMerkle(ctx context.Context, funder common.Address, target string, amount int64, currency, description string) (*Distribution, error) {
	if !d.access.HasAtLeast(access.RoleManager, funder) {
		return nil, fmt.Errorf("create merkle distribution: manager required: %w", ErrUnauthorized)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("create merkle distribution: amount must be positive: %w", ErrValidation)
	}
	cur, ok := d.registry.Currency(currency)
	if !ok {
		return nil, fmt.Errorf("create merkle distribution: unknown currency %q: %w", currency, ErrValidation)
	}
	if cur.Paused() {
		return nil, fmt.Errorf("create merkle distribution: currency %q paused: %w", currency, ErrState)
	}

	unlock := d.locks.Lock(createKey)
	defer unlock()

	if err := cur.Transfer(funder, d.accounts.DistributionEscrow, amount); err != nil {
		return nil, wrapLedgerErr("create merkle distribution: escrow", err)
	}

	group, _ := d.registry.AssetGroup(target)
	now := d.clock()

	d.mu.Lock()
	d.nextID++
	dist := &Distribution{
		ID:          d.nextID,
		Kind:        event.DistributionKindMerkle,
		Asset:       target,
		Group:       group,
		Currency:    currency,
		Amount:      amount,
		Remaining:   amount,
		Status:      DistributionStatusCreated,
		Funder:      funder,
		Description: description,
		CreatedAt:   now,
		claimed:     make(map[common.Address]struct{}),
	}
	d.items[dist.ID] = dist
	d.mu.Unlock()

	d.recorder.Record(funder, RequestIDFrom(ctx), now, &event.DistributionCreated{
		DistributionID: dist.ID,
		Kind:           event.DistributionKindMerkle,
		AssetID:        target,
		Amount:         amount,
		Currency:       currency,
		Description:    description,
		Funder:         funder,
		CreatedAtUs:    now.UnixMicro(),
	})

	return dist.clone(), nil
}

// UpdateMerkleRoot replaces the allocation root while the pool has not
// been activated. Once active the root is immutable.
func (d *Distributions) UpdateMerkleRoot(ctx context.Context, operator common.Address, id int64, root common.Hash) error {
	unlock := d.locks.Lock(distKey(id))
	defer unlock()

	cp, item, err := d.snapshot(id)
	if err != nil {
		return fmt.Errorf("update merkle root %d: %w", id, err)
	}
	if !d.access.HasAtLeast(access.RoleOperator, operator) {
		return fmt.Errorf("update merkle root %d: operator required: %w", id, ErrUnauthorized)
	}
	if cp.Kind != event.DistributionKindMerkle {
		return fmt.Errorf("update merkle root %d: not a merkle distribution: %w", id, ErrValidation)
	}
	if cp.Status != DistributionStatusCreated {
		return fmt.Errorf("update merkle root %d: root is immutable once activated: %w", id, ErrState)
	}
	if root == (common.Hash{}) {
		return fmt.Errorf("update merkle root %d: zero root: %w", id, ErrValidation)
	}

	d.mu.Lock()
	item.MerkleRoot = root
	d.mu.Unlock()

	d.recorder.Record(operator, RequestIDFrom(ctx), d.clock(), &event.MerkleRootUpdated{
		DistributionID: id,
		Root:           root,
	})
	return nil
}

// Activate opens the pool for claims and freezes its snapshot or root.
// When a claim window is configured the deadline starts now.
func (d *Distributions) Activate(ctx context.Context, actor common.Address, id int64) error {
	unlock := d.locks.Lock(distKey(id))
	defer unlock()

	cp, item, err := d.snapshot(id)
	if err != nil {
		return fmt.Errorf("activate distribution %d: %w", id, err)
	}
	if !d.access.HasAtLeast(access.RoleManager, actor) {
		return fmt.Errorf("activate distribution %d: manager required: %w", id, ErrUnauthorized)
	}
	if !cp.Status.CanTransitionTo(DistributionStatusActive) {
		return fmt.Errorf("activate distribution %d: status %s: %w", id, cp.Status, ErrState)
	}
	if cp.Kind == event.DistributionKindMerkle && cp.MerkleRoot == (common.Hash{}) {
		return fmt.Errorf("activate distribution %d: no published root: %w", id, ErrState)
	}

	var supplyAt int64
	if cp.Kind == event.DistributionKindSnapshot {
		asset, ok := d.registry.Asset(cp.Asset)
		if !ok {
			return fmt.Errorf("activate distribution %d: asset %q not registered", id, cp.Asset)
		}
		var err error
		supplyAt, err = asset.TotalSupplyAt(cp.SnapshotID)
		if err != nil {
			return fmt.Errorf("activate distribution %d: supply at snapshot %d: %w", id, cp.SnapshotID, err)
		}
	}

	now := d.clock()
	var deadline time.Time
	var deadlineUs int64

	d.mu.Lock()
	if d.claimWindow > 0 {
		deadline = now.Add(d.claimWindow)
		deadlineUs = deadline.UnixMicro()
	}
	item.Status = DistributionStatusActive
	item.ActivatedAt = now
	item.Deadline = deadline
	d.mu.Unlock()

	d.recorder.Record(actor, RequestIDFrom(ctx), now, &event.DistributionActivated{
		DistributionID: id,
		SnapshotID:     cp.SnapshotID,
		TotalSupplyAt:  supplyAt,
		DeadlineUs:     deadlineUs,
	})
	return nil
}

// Cancel refunds the full escrow to the funder. Only a never-activated
// pool can be cancelled.
func (d *Distributions) Cancel(ctx context.Context, actor common.Address, id int64) error {
	unlock := d.locks.Lock(distKey(id))
	defer unlock()

	cp, item, err := d.snapshot(id)
	if err != nil {
		return fmt.Errorf("cancel distribution %d: %w", id, err)
	}
	if !d.access.HasAtLeast(access.RoleManager, actor) {
		return fmt.Errorf("cancel distribution %d: manager required: %w", id, ErrUnauthorized)
	}
	if !cp.Status.CanTransitionTo(DistributionStatusCancelled) {
		return fmt.Errorf("cancel distribution %d: status %s: %w", id, cp.Status, ErrState)
	}

	cur, ok := d.registry.Currency(cp.Currency)
	if !ok {
		return fmt.Errorf("cancel distribution %d: currency %q not registered", id, cp.Currency)
	}
	if cur.Paused() {
		return fmt.Errorf("cancel distribution %d: currency %q paused: %w", id, cp.Currency, ErrState)
	}

	d.mu.Lock()
	item.Status = DistributionStatusCancelled
	item.Remaining = 0
	d.mu.Unlock()

	mustMove(cur, d.accounts.DistributionEscrow, cp.Funder, cp.Amount)

	d.recorder.Record(actor, RequestIDFrom(ctx), d.clock(), &event.DistributionCancelled{
		DistributionID: id,
		Funder:         cp.Funder,
		Refund:         cp.Amount,
	})
	return nil
}

// Claim pays the caller's pro-rata share of a snapshot pool. The share
// is balanceOfAt*amount/totalSupplyAt, multiplied before dividing so
// rounding loss stays under one unit per holder. A zero entitlement is
// rejected without marking the account claimed.
func (d *Distributions) Claim(ctx context.Context, account common.Address, id int64) (int64, error) {
	unlock := d.locks.Lock(distKey(id))
	defer unlock()

	cp, item, err := d.snapshot(id)
	if err != nil {
		return 0, fmt.Errorf("claim distribution %d: %w", id, err)
	}
	if cp.Status != DistributionStatusActive {
		return 0, fmt.Errorf("claim distribution %d: status %s: %w", id, cp.Status, ErrState)
	}
	if cp.Kind != event.DistributionKindSnapshot {
		return 0, fmt.Errorf("claim distribution %d: merkle pools pay through proof withdrawal: %w", id, ErrValidation)
	}
	if d.access.IsBlacklisted(account) {
		return 0, fmt.Errorf("claim distribution %d: account is blacklisted: %w", id, ErrUnauthorized)
	}
	if d.hasClaimed(id, account) {
		return 0, fmt.Errorf("claim distribution %d: already claimed: %w", id, ErrState)
	}

	asset, ok := d.registry.Asset(cp.Asset)
	if !ok {
		return 0, fmt.Errorf("claim distribution %d: asset %q not registered", id, cp.Asset)
	}
	balAt, err := asset.BalanceOfAt(account, cp.SnapshotID)
	if err != nil {
		return 0, fmt.Errorf("claim distribution %d: balance at snapshot %d: %w", id, cp.SnapshotID, err)
	}
	supplyAt, err := asset.TotalSupplyAt(cp.SnapshotID)
	if err != nil {
		return 0, fmt.Errorf("claim distribution %d: supply at snapshot %d: %w", id, cp.SnapshotID, err)
	}

	share := num.ProRataShare(balAt, cp.Amount, supplyAt)
	if share == 0 {
		return 0, fmt.Errorf("claim distribution %d: zero entitlement: %w", id, ErrValidation)
	}

	cur, ok := d.registry.Currency(cp.Currency)
	if !ok {
		return 0, fmt.Errorf("claim distribution %d: currency %q not registered", id, cp.Currency)
	}
	if cur.Paused() {
		return 0, fmt.Errorf("claim distribution %d: currency %q paused: %w", id, cp.Currency, ErrState)
	}

	now := d.clock()
	d.mu.Lock()
	item.claimed[account] = struct{}{}
	item.Remaining -= share
	item.TotalClaimed += share
	remaining := item.Remaining
	completed := remaining == 0
	if completed {
		item.Status = DistributionStatusCompleted
	}
	d.mu.Unlock()

	mustMove(cur, d.accounts.DistributionEscrow, account, share)

	reqID := RequestIDFrom(ctx)
	d.recorder.Record(account, reqID, now, &event.DistributionClaimed{
		DistributionID: id,
		Account:        account,
		Amount:         share,
		BalanceAt:      balAt,
		Remaining:      remaining,
	})
	if completed {
		d.recorder.Record(account, reqID, now, &event.DistributionCompleted{DistributionID: id})
	}

	return share, nil
}

// WithdrawMerkle pays a fixed allocation proven against the published
// root. The leaf commits to both the account and the amount, so a valid
// proof only ever pays its own allocation.
func (d *Distributions) WithdrawMerkle(ctx context.Context, account common.Address, id int64, amount int64, proof []common.Hash) error {
	unlock := d.locks.Lock(distKey(id))
	defer unlock()

	cp, item, err := d.snapshot(id)
	if err != nil {
		return fmt.Errorf("withdraw distribution %d: %w", id, err)
	}
	if cp.Status != DistributionStatusActive {
		return fmt.Errorf("withdraw distribution %d: status %s: %w", id, cp.Status, ErrState)
	}
	if cp.Kind != event.DistributionKindMerkle {
		return fmt.Errorf("withdraw distribution %d: not a merkle distribution: %w", id, ErrValidation)
	}
	if d.access.IsBlacklisted(account) {
		return fmt.Errorf("withdraw distribution %d: account is blacklisted: %w", id, ErrUnauthorized)
	}
	if d.hasClaimed(id, account) {
		return fmt.Errorf("withdraw distribution %d: already claimed: %w", id, ErrState)
	}
	if amount <= 0 {
		return fmt.Errorf("withdraw distribution %d: amount must be positive: %w", id, ErrValidation)
	}
	if !merkle.Verify(cp.MerkleRoot, merkle.Leaf(account, amount), proof) {
		return fmt.Errorf("withdraw distribution %d: %w", id, ErrProofVerification)
	}
	if amount > cp.Remaining {
		return fmt.Errorf("withdraw distribution %d: %d exceeds remaining %d: %w", id, amount, cp.Remaining, ErrInsufficientFunds)
	}

	cur, ok := d.registry.Currency(cp.Currency)
	if !ok {
		return fmt.Errorf("withdraw distribution %d: currency %q not registered", id, cp.Currency)
	}
	if cur.Paused() {
		return fmt.Errorf("withdraw distribution %d: currency %q paused: %w", id, cp.Currency, ErrState)
	}

	now := d.clock()
	d.mu.Lock()
	item.claimed[account] = struct{}{}
	item.Remaining -= amount
	item.TotalClaimed += amount
	remaining := item.Remaining
	completed := remaining == 0
	if completed {
		item.Status = DistributionStatusCompleted
	}
	d.mu.Unlock()

	mustMove(cur, d.accounts.DistributionEscrow, account, amount)

	reqID := RequestIDFrom(ctx)
	d.recorder.Record(account, reqID, now, &event.MerkleWithdrawn{
		DistributionID: id,
		Account:        account,
		Amount:         amount,
		Remaining:      remaining,
	})
	if completed {
		d.recorder.Record(account, reqID, now, &event.DistributionCompleted{DistributionID: id})
	}

	return nil
}

// RecoverUnclaimed sweeps whatever is left to the treasury. Allowed
// once the pool completed, or while active after the claim deadline.
func (d *Distributions) RecoverUnclaimed(ctx context.Context, actor common.Address, id int64) error {
	unlock := d.locks.Lock(distKey(id))
	defer unlock()

	cp, item, err := d.snapshot(id)
	if err != nil {
		return fmt.Errorf("recover distribution %d: %w", id, err)
	}
	if !d.access.HasAtLeast(access.RoleAdmin, actor) {
		return fmt.Errorf("recover distribution %d: admin required: %w", id, ErrUnauthorized)
	}

	now := d.clock()
	switch {
	case cp.Status == DistributionStatusCompleted:
	case cp.Status == DistributionStatusActive && !cp.Deadline.IsZero() && !now.Before(cp.Deadline):
	default:
		return fmt.Errorf("recover distribution %d: status %s, deadline not elapsed: %w", id, cp.Status, ErrState)
	}

	cur, ok := d.registry.Currency(cp.Currency)
	if !ok {
		return fmt.Errorf("recover distribution %d: currency %q not registered", id, cp.Currency)
	}
	if cp.Remaining > 0 && cur.Paused() {
		return fmt.Errorf("recover distribution %d: currency %q paused: %w", id, cp.Currency, ErrState)
	}

	d.mu.Lock()
	swept := item.Remaining
	item.Remaining = 0
	item.Status = DistributionStatusRecovered
	d.mu.Unlock()

	mustMove(cur, d.accounts.DistributionEscrow, d.accounts.Treasury, swept)

	d.recorder.Record(actor, RequestIDFrom(ctx), now, &event.DistributionRecovered{
		DistributionID: id,
		Amount:         swept,
		Treasury:       d.accounts.Treasury,
	})
	return nil
}

// SetClaimWindow bounds how long activated pools accept claims. Zero
// disables the deadline for subsequent activations.
func (d *Distributions) SetClaimWindow(ctx context.Context, actor common.Address, window time.Duration) error {
	if !d.access.HasAtLeast(access.RoleAdmin, actor) {
		return fmt.Errorf("set claim window: admin required: %w", ErrUnauthorized)
	}
	if window < 0 {
		return fmt.Errorf("set claim window: negative: %w", ErrValidation)
	}

	unlock := d.locks.Lock(paramsKey)
	defer unlock()

	d.mu.Lock()
	old := d.claimWindow
	d.claimWindow = window
	d.mu.Unlock()

	d.recorder.Record(actor, RequestIDFrom(ctx), d.clock(), &event.ParamsUpdated{
		Scope:    event.ParamScopeDistribution,
		Name:     "claim_window",
		OldValue: old.String(),
		NewValue: window.String(),
	})
	return nil
}

// ============================================================================
// Read side
// ============================================================================

func (d *Distributions) Get(id int64) (*Distribution, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	item, ok := d.items[id]
	if !ok {
		return nil, false
	}
	return item.clone(), true
}

// HasClaimed reports whether the account already claimed from the pool.
func (d *Distributions) HasClaimed(id int64, account common.Address) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	item, ok := d.items[id]
	if !ok {
		return false
	}
	_, claimed := item.claimed[account]
	return claimed
}

// ClaimedCount returns how many accounts have claimed from the pool.
func (d *Distributions) ClaimedCount(id int64) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	item, ok := d.items[id]
	if !ok {
		return 0
	}
	return len(item.claimed)
}

// ClaimWindow returns the window applied at activation.
func (d *Distributions) ClaimWindow() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.claimWindow
}

// snapshot returns a copy for validation plus the live item for later
// mutation under the entity lock.
func (d *Distributions) snapshot(id int64) (Distribution, *Distribution, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	item, ok := d.items[id]
	if !ok {
		return Distribution{}, nil, fmt.Errorf("unknown distribution: %w", ErrValidation)
	}
	cp := *item
	cp.claimed = nil
	return cp, item, nil
}

func (d *Distributions) hasClaimed(id int64, account common.Address) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	item, ok := d.items[id]
	if !ok {
		return false
	}
	_, claimed := item.claimed[account]
	return claimed
}

// ============================================================================
// Replay
// ============================================================================

func (d *Distributions) applyCreated(p *event.DistributionCreated) error {
	cur, ok := d.registry.Currency(p.Currency)
	if !ok {
		return fmt.Errorf("replay distribution %d: unknown currency %q", p.DistributionID, p.Currency)
	}
	if err := cur.Transfer(p.Funder, d.accounts.DistributionEscrow, p.Amount); err != nil {
		return fmt.Errorf("replay distribution %d: escrow: %w", p.DistributionID, err)
	}

	if p.Kind == event.DistributionKindSnapshot {
		asset, ok := d.registry.Asset(p.AssetID)
		if !ok {
			return fmt.Errorf("replay distribution %d: unknown asset %q", p.DistributionID, p.AssetID)
		}
		// The snapshot counter must land on the recorded id or the
		// ledger diverged from the log.
		if snap := asset.Snapshot(); snap != p.SnapshotID {
			return fmt.Errorf("replay distribution %d: snapshot id %d, recorded %d", p.DistributionID, snap, p.SnapshotID)
		}
	}

	group, _ := d.registry.AssetGroup(p.AssetID)

	d.mu.Lock()
	defer d.mu.Unlock()
	if p.DistributionID > d.nextID {
		d.nextID = p.DistributionID
	}
	d.items[p.DistributionID] = &Distribution{
		ID:          p.DistributionID,
		Kind:        p.Kind,
		Asset:       p.AssetID,
		Group:       group,
		Currency:    p.Currency,
		Amount:      p.Amount,
		Remaining:   p.Amount,
		SnapshotID:  p.SnapshotID,
		Status:      DistributionStatusCreated,
		Funder:      p.Funder,
		Description: p.Description,
		CreatedAt:   time.UnixMicro(p.CreatedAtUs),
		claimed:     make(map[common.Address]struct{}),
	}
	return nil
}

func (d *Distributions) applyRootUpdated(p *event.MerkleRootUpdated) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.items[p.DistributionID]
	if !ok {
		return fmt.Errorf("replay root update: unknown distribution %d", p.DistributionID)
	}
	item.MerkleRoot = p.Root
	return nil
}

func (d *Distributions) applyActivated(p *event.DistributionActivated, ts time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.items[p.DistributionID]
	if !ok {
		return fmt.Errorf("replay activate: unknown distribution %d", p.DistributionID)
	}
	item.Status = DistributionStatusActive
	item.ActivatedAt = ts
	if p.DeadlineUs > 0 {
		item.Deadline = time.UnixMicro(p.DeadlineUs)
	}
	return nil
}

func (d *Distributions) applyCancelled(p *event.DistributionCancelled) error {
	d.mu.Lock()
	item, ok := d.items[p.DistributionID]
	if ok {
		item.Status = DistributionStatusCancelled
		item.Remaining = 0
	}
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("replay cancel: unknown distribution %d", p.DistributionID)
	}

	cur, ok := d.registry.Currency(item.Currency)
	if !ok {
		return fmt.Errorf("replay cancel %d: unknown currency %q", p.DistributionID, item.Currency)
	}
	if err := cur.Transfer(d.accounts.DistributionEscrow, p.Funder, p.Refund); err != nil {
		return fmt.Errorf("replay cancel %d: refund: %w", p.DistributionID, err)
	}
	return nil
}

func (d *Distributions) applyClaimed(p *event.DistributionClaimed) error {
	return d.applyPayout(p.DistributionID, p.Account, p.Amount, p.Remaining)
}

func (d *Distributions) applyWithdrawn(p *event.MerkleWithdrawn) error {
	return d.applyPayout(p.DistributionID, p.Account, p.Amount, p.Remaining)
}

func (d *Distributions) applyPayout(id int64, account common.Address, amount, remaining int64) error {
	d.mu.Lock()
	item, ok := d.items[id]
	if ok {
		item.claimed[account] = struct{}{}
		item.Remaining = remaining
		item.TotalClaimed += amount
	}
	currency := ""
	if ok {
		currency = item.Currency
	}
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("replay payout: unknown distribution %d", id)
	}

	cur, found := d.registry.Currency(currency)
	if !found {
		return fmt.Errorf("replay payout %d: unknown currency %q", id, currency)
	}
	if err := cur.Transfer(d.accounts.DistributionEscrow, account, amount); err != nil {
		return fmt.Errorf("replay payout %d: %w", id, err)
	}
	return nil
}

func (d *Distributions) applyCompleted(p *event.DistributionCompleted) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.items[p.DistributionID]
	if !ok {
		return fmt.Errorf("replay complete: unknown distribution %d", p.DistributionID)
	}
	item.Status = DistributionStatusCompleted
	return nil
}

func (d *Distributions) applyRecovered(p *event.DistributionRecovered) error {
	d.mu.Lock()
	item, ok := d.items[p.DistributionID]
	currency := ""
	if ok {
		item.Status = DistributionStatusRecovered
		item.Remaining = 0
		currency = item.Currency
	}
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("replay recover: unknown distribution %d", p.DistributionID)
	}

	if p.Amount == 0 {
		return nil
	}
	cur, found := d.registry.Currency(currency)
	if !found {
		return fmt.Errorf("replay recover %d: unknown currency %q", p.DistributionID, currency)
	}
	if err := cur.Transfer(d.accounts.DistributionEscrow, p.Treasury, p.Amount); err != nil {
		return fmt.Errorf("replay recover %d: sweep: %w", p.DistributionID, err)
	}
	return nil
}

func (d *Distributions) applyParam(p *event.ParamsUpdated) error {
	if p.Name != "claim_window" {
		return fmt.Errorf("replay param: unknown distribution parameter %q", p.Name)
	}
	window, err := time.ParseDuration(p.NewValue)
	if err != nil {
		return fmt.Errorf("replay param %s: %w", p.Name, err)
	}
	d.mu.Lock()
	d.claimWindow = window
	d.mu.Unlock()
	return nil
}
