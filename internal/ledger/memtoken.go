package ledger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// checkpoint records an account or supply value as of a snapshot id.
// Checkpoints are written lazily: the first balance change after a
// snapshot stores the pre-change value under that snapshot's id.
type checkpoint struct {
	id    int64
	value int64
}

// MemToken is the in-memory token implementation. It satisfies
// SnapshotToken and additionally exposes Mint, Burn and SetPaused for
// the admin operations that manage supply.
type MemToken struct {
	mu       sync.RWMutex
	symbol   string
	decimals uint8
	paused   bool

	balances map[common.Address]int64
	supply   int64

	currentID          int64
	accountCheckpoints map[common.Address][]checkpoint
	supplyCheckpoints  []checkpoint
}

func NewMemToken(symbol string, decimals uint8) *MemToken {
	return &MemToken{
		symbol:             symbol,
		decimals:           decimals,
		balances:           make(map[common.Address]int64),
		accountCheckpoints: make(map[common.Address][]checkpoint),
	}
}

func (t *MemToken) Symbol() string  { return t.symbol }
func (t *MemToken) Decimals() uint8 { return t.decimals }

func (t *MemToken) Paused() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.paused
}

// SetPaused halts or resumes all transfers, mints and burns.
func (t *MemToken) SetPaused(paused bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = paused
}

func (t *MemToken) BalanceOf(account common.Address) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balances[account]
}

func (t *MemToken) TotalSupply() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.supply
}

// Transfer moves amount from one account to another. A zero amount is a
// no-op that still validates pause state.
func (t *MemToken) Transfer(from, to common.Address, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeAmount, amount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.paused {
		return fmt.Errorf("%w: %s", ErrPaused, t.symbol)
	}
	if t.balances[from] < amount {
		return fmt.Errorf("%w: %s account %s has %d, needs %d",
			ErrInsufficientBalance, t.symbol, from.Hex(), t.balances[from], amount)
	}
	if amount == 0 || from == to {
		return nil
	}

	t.checkpointAccount(from)
	t.checkpointAccount(to)

	t.balances[from] -= amount
	t.balances[to] += amount
	return nil
}

// Mint creates amount new units in the target account.
func (t *MemToken) Mint(to common.Address, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeAmount, amount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.paused {
		return fmt.Errorf("%w: %s", ErrPaused, t.symbol)
	}
	if amount == 0 {
		return nil
	}

	t.checkpointAccount(to)
	t.checkpointSupply()

	t.balances[to] += amount
	t.supply += amount
	return nil
}

// Burn destroys amount units held by the source account.
func (t *MemToken) Burn(from common.Address, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeAmount, amount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.paused {
		return fmt.Errorf("%w: %s", ErrPaused, t.symbol)
	}
	if t.balances[from] < amount {
		return fmt.Errorf("%w: %s account %s has %d, needs %d",
			ErrInsufficientBalance, t.symbol, from.Hex(), t.balances[from], amount)
	}
	if amount == 0 {
		return nil
	}

	t.checkpointAccount(from)
	t.checkpointSupply()

	t.balances[from] -= amount
	t.supply -= amount
	return nil
}

// Snapshot freezes current balances under a new id. The freeze is lazy:
// nothing is copied until a balance actually changes.
func (t *MemToken) Snapshot() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentID++
	return t.currentID
}

// CurrentSnapshotID returns the highest snapshot id issued so far.
func (t *MemToken) CurrentSnapshotID() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentID
}

// BalanceOfAt returns the account balance as of the given snapshot.
func (t *MemToken) BalanceOfAt(account common.Address, snapshotID int64) (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if snapshotID <= 0 || snapshotID > t.currentID {
		return 0, fmt.Errorf("%w: %s snapshot %d (current %d)",
			ErrSnapshotNotFound, t.symbol, snapshotID, t.currentID)
	}

	if v, ok := valueAt(t.accountCheckpoints[account], snapshotID); ok {
		return v, nil
	}
	// No checkpoint at or after the id: balance has not changed since.
	return t.balances[account], nil
}

// TotalSupplyAt returns the total supply as of the given snapshot.
func (t *MemToken) TotalSupplyAt(snapshotID int64) (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if snapshotID <= 0 || snapshotID > t.currentID {
		return 0, fmt.Errorf("%w: %s snapshot %d (current %d)",
			ErrSnapshotNotFound, t.symbol, snapshotID, t.currentID)
	}

	if v, ok := valueAt(t.supplyCheckpoints, snapshotID); ok {
		return v, nil
	}
	return t.supply, nil
}

// valueAt finds the earliest checkpoint with id >= snapshotID.
func valueAt(cps []checkpoint, snapshotID int64) (int64, bool) {
	i := sort.Search(len(cps), func(i int) bool {
		return cps[i].id >= snapshotID
	})
	if i == len(cps) {
		return 0, false
	}
	return cps[i].value, true
}

// checkpointAccount records the pre-change balance under the current
// snapshot id, once per account per snapshot.
func (t *MemToken) checkpointAccount(account common.Address) {
	if t.currentID == 0 {
		return
	}
	cps := t.accountCheckpoints[account]
	if len(cps) == 0 || cps[len(cps)-1].id < t.currentID {
		t.accountCheckpoints[account] = append(cps, checkpoint{
			id:    t.currentID,
			value: t.balances[account],
		})
	}
}

func (t *MemToken) checkpointSupply() {
	if t.currentID == 0 {
		return
	}
	if len(t.supplyCheckpoints) == 0 || t.supplyCheckpoints[len(t.supplyCheckpoints)-1].id < t.currentID {
		t.supplyCheckpoints = append(t.supplyCheckpoints, checkpoint{
			id:    t.currentID,
			value: t.supply,
		})
	}
}

// CheckpointState is the serializable form of one checkpoint.
type CheckpointState struct {
	ID    int64 `json:"id"`
	Value int64 `json:"value"`
}

// TokenState is the serializable image of a MemToken, used by state
// snapshots.
type TokenState struct {
	Symbol             string                       `json:"symbol"`
	Decimals           uint8                        `json:"decimals"`
	Paused             bool                         `json:"paused"`
	Supply             int64                        `json:"supply"`
	CurrentID          int64                        `json:"current_id"`
	Balances           map[string]int64             `json:"balances"`
	AccountCheckpoints map[string][]CheckpointState `json:"account_checkpoints,omitempty"`
	SupplyCheckpoints  []CheckpointState            `json:"supply_checkpoints,omitempty"`
}

// State captures the full token state. Zero balances are omitted.
func (t *MemToken) State() TokenState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st := TokenState{
		Symbol:    t.symbol,
		Decimals:  t.decimals,
		Paused:    t.paused,
		Supply:    t.supply,
		CurrentID: t.currentID,
		Balances:  make(map[string]int64, len(t.balances)),
	}
	for a, bal := range t.balances {
		if bal != 0 {
			st.Balances[a.Hex()] = bal
		}
	}

	if len(t.accountCheckpoints) > 0 {
		st.AccountCheckpoints = make(map[string][]CheckpointState, len(t.accountCheckpoints))
		for a, cps := range t.accountCheckpoints {
			out := make([]CheckpointState, len(cps))
			for i, cp := range cps {
				out[i] = CheckpointState{ID: cp.id, Value: cp.value}
			}
			st.AccountCheckpoints[a.Hex()] = out
		}
	}
	if len(t.supplyCheckpoints) > 0 {
		st.SupplyCheckpoints = make([]CheckpointState, len(t.supplyCheckpoints))
		for i, cp := range t.supplyCheckpoints {
			st.SupplyCheckpoints[i] = CheckpointState{ID: cp.id, Value: cp.value}
		}
	}

	return st
}

// RestoreToken rebuilds a MemToken from a captured state.
func RestoreToken(st TokenState) *MemToken {
	t := NewMemToken(st.Symbol, st.Decimals)
	t.paused = st.Paused
	t.supply = st.Supply
	t.currentID = st.CurrentID

	for hex, bal := range st.Balances {
		t.balances[common.HexToAddress(hex)] = bal
	}
	for hex, cps := range st.AccountCheckpoints {
		out := make([]checkpoint, len(cps))
		for i, cp := range cps {
			out[i] = checkpoint{id: cp.ID, value: cp.Value}
		}
		t.accountCheckpoints[common.HexToAddress(hex)] = out
	}
	for _, cp := range st.SupplyCheckpoints {
		t.supplyCheckpoints = append(t.supplyCheckpoints, checkpoint{id: cp.ID, value: cp.Value})
	}

	return t
}
