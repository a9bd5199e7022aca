package engine

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"AssetVault/internal/access"
	"AssetVault/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// State is the full serializable engine state at a log position.
// Restoring it and replaying the events after Sequence rebuilds the
// exact live state. Times are unix microseconds, zero meaning unset.
type State struct {
	// Sequence the next event will receive
	Sequence int64 `json:"sequence"`
	// Chain tip the next event will link to, hex encoded
	PrevHash string `json:"prev_hash"`

	OrderBook     OrderBookState       `json:"order_book"`
	Distributions DistributionsState   `json:"distributions"`
	Redemptions   RedemptionsState     `json:"redemptions"`
	Access        access.StoreState    `json:"access"`
	Registry      ledger.RegistryState `json:"registry"`
}

// PrevHashBytes decodes the chain tip.
func (s *State) PrevHashBytes() ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s.PrevHash)
	if err != nil {
		return out, fmt.Errorf("decode prev hash: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("decode prev hash: %d bytes", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

type OrderBookState struct {
	Orders []OrderState       `json:"orders"`
	Trades []TradeState       `json:"trades"`
	Params TradingParamsState `json:"params"`
	NextID int64              `json:"next_id"`
}

type OrderState struct {
	ID          int64          `json:"id"`
	Seller      common.Address `json:"seller"`
	Asset       string         `json:"asset"`
	Group       string         `json:"group,omitempty"`
	Amount      int64          `json:"amount"`
	Price       int64          `json:"price"`
	Currency    string         `json:"currency"`
	CreatedAtUs int64          `json:"created_at_us"`
	Active      bool           `json:"active"`
}

type TradeState struct {
	ID          uuid.UUID      `json:"id"`
	OrderID     int64          `json:"order_id"`
	Buyer       common.Address `json:"buyer"`
	Seller      common.Address `json:"seller"`
	Asset       string         `json:"asset"`
	Amount      int64          `json:"amount"`
	Price       int64          `json:"price"`
	Fee         int64          `json:"fee"`
	CreatedAtUs int64          `json:"created_at_us"`
}

type TradingParamsState struct {
	FeeRateBps     int64          `json:"fee_rate_bps"`
	FeeReceiver    common.Address `json:"fee_receiver"`
	MinTradeAmount int64          `json:"min_trade_amount"`
	MaxTradeAmount int64          `json:"max_trade_amount"`
	CooldownUs     int64          `json:"cooldown_us"`
	TradingPaused  bool           `json:"trading_paused"`
}

type DistributionsState struct {
	Items         []DistributionState `json:"items"`
	NextID        int64               `json:"next_id"`
	ClaimWindowUs int64               `json:"claim_window_us"`
}

type DistributionState struct {
	ID            int64            `json:"id"`
	Kind          string           `json:"kind"`
	Asset         string           `json:"asset"`
	Group         string           `json:"group,omitempty"`
	Currency      string           `json:"currency"`
	Amount        int64            `json:"amount"`
	Remaining     int64            `json:"remaining"`
	SnapshotID    int64            `json:"snapshot_id,omitempty"`
	MerkleRoot    common.Hash      `json:"merkle_root,omitempty"`
	Status        uint8            `json:"status"`
	Funder        common.Address   `json:"funder"`
	Description   string           `json:"description,omitempty"`
	CreatedAtUs   int64            `json:"created_at_us"`
	ActivatedAtUs int64            `json:"activated_at_us,omitempty"`
	DeadlineUs    int64            `json:"deadline_us,omitempty"`
	TotalClaimed  int64            `json:"total_claimed"`
	Claimed       []common.Address `json:"claimed,omitempty"`
}

type RedemptionsState struct {
	Items  []RedemptionState `json:"items"`
	NextID int64             `json:"next_id"`
	Rates  map[string]int64  `json:"rates"`
}

type RedemptionState struct {
	ID           int64          `json:"id"`
	Requester    common.Address `json:"requester"`
	Asset        string         `json:"asset"`
	Amount       int64          `json:"amount"`
	Reason       string         `json:"reason,omitempty"`
	StatusReason string         `json:"status_reason,omitempty"`
	Status       uint8          `json:"status"`
	CreatedAtUs  int64          `json:"created_at_us"`
	UpdatedAtUs  int64          `json:"updated_at_us"`
}

// CaptureState freezes the whole platform state. The caller quiesces
// the engines first; capturing mid-operation tears the snapshot.
func (e *Engine) CaptureState() *State {
	tip := e.Recorder.ChainTip()
	return &State{
		Sequence:      e.Recorder.Sequence(),
		PrevHash:      hex.EncodeToString(tip[:]),
		OrderBook:     e.OrderBook.state(),
		Distributions: e.Distributions.state(),
		Redemptions:   e.Redemptions.state(),
		Access:        e.Access.State(),
		Registry:      e.Registry.State(),
	}
}

// RestoreState loads the three entity engines from a snapshot. The
// access store and registry are rebuilt separately and passed to New,
// and the recorder is positioned by the replayer, so neither is
// touched here.
func (e *Engine) RestoreState(st *State) {
	e.OrderBook.restoreState(st.OrderBook)
	e.Distributions.restoreState(st.Distributions)
	e.Redemptions.restoreState(st.Redemptions)
}

func usOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func timeFromUs(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us)
}

// ============================================================================
// OrderBook
// ============================================================================

func (ob *OrderBook) state() OrderBookState {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	ids := make([]int64, 0, len(ob.orders))
	for id := range ob.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	orders := make([]OrderState, 0, len(ids))
	for _, id := range ids {
		o := ob.orders[id]
		orders = append(orders, OrderState{
			ID:          o.ID,
			Seller:      o.Seller,
			Asset:       o.Asset,
			Group:       o.Group,
			Amount:      o.Amount,
			Price:       o.Price,
			Currency:    o.Currency,
			CreatedAtUs: o.CreatedAt.UnixMicro(),
			Active:      o.Active,
		})
	}

	trades := make([]TradeState, 0, len(ob.tradeLog))
	for _, id := range ob.tradeLog {
		t := ob.trades[id]
		trades = append(trades, TradeState{
			ID:          t.ID,
			OrderID:     t.OrderID,
			Buyer:       t.Buyer,
			Seller:      t.Seller,
			Asset:       t.Asset,
			Amount:      t.Amount,
			Price:       t.Price,
			Fee:         t.Fee,
			CreatedAtUs: t.CreatedAt.UnixMicro(),
		})
	}

	return OrderBookState{
		Orders: orders,
		Trades: trades,
		Params: TradingParamsState{
			FeeRateBps:     ob.params.FeeRateBps,
			FeeReceiver:    ob.params.FeeReceiver,
			MinTradeAmount: ob.params.MinTradeAmount,
			MaxTradeAmount: ob.params.MaxTradeAmount,
			CooldownUs:     ob.params.Cooldown.Microseconds(),
			TradingPaused:  ob.params.TradingPaused,
		},
		NextID: ob.nextID,
	}
}

func (ob *OrderBook) restoreState(st OrderBookState) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	for _, os := range st.Orders {
		o := &Order{
			ID:        os.ID,
			Seller:    os.Seller,
			Asset:     os.Asset,
			Group:     os.Group,
			Amount:    os.Amount,
			Price:     os.Price,
			Currency:  os.Currency,
			CreatedAt: time.UnixMicro(os.CreatedAtUs),
			Active:    os.Active,
		}
		ob.insertLocked(o)
		if !o.Active {
			delete(ob.active, o.ID)
		}
	}
	for _, ts := range st.Trades {
		ob.insertTradeLocked(&Trade{
			ID:        ts.ID,
			OrderID:   ts.OrderID,
			Buyer:     ts.Buyer,
			Seller:    ts.Seller,
			Asset:     ts.Asset,
			Amount:    ts.Amount,
			Price:     ts.Price,
			Fee:       ts.Fee,
			CreatedAt: time.UnixMicro(ts.CreatedAtUs),
		})
	}

	ob.params = TradingParams{
		FeeRateBps:     st.Params.FeeRateBps,
		FeeReceiver:    st.Params.FeeReceiver,
		MinTradeAmount: st.Params.MinTradeAmount,
		MaxTradeAmount: st.Params.MaxTradeAmount,
		Cooldown:       time.Duration(st.Params.CooldownUs) * time.Microsecond,
		TradingPaused:  st.Params.TradingPaused,
	}
	ob.nextID = st.NextID
}

// ============================================================================
// Distributions
// ============================================================================

func (d *Distributions) state() DistributionsState {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]int64, 0, len(d.items))
	for id := range d.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	items := make([]DistributionState, 0, len(ids))
	for _, id := range ids {
		item := d.items[id]

		claimed := make([]common.Address, 0, len(item.claimed))
		for a := range item.claimed {
			claimed = append(claimed, a)
		}
		sort.Slice(claimed, func(i, j int) bool {
			return bytes.Compare(claimed[i][:], claimed[j][:]) < 0
		})

		items = append(items, DistributionState{
			ID:            item.ID,
			Kind:          item.Kind,
			Asset:         item.Asset,
			Group:         item.Group,
			Currency:      item.Currency,
			Amount:        item.Amount,
			Remaining:     item.Remaining,
			SnapshotID:    item.SnapshotID,
			MerkleRoot:    item.MerkleRoot,
			Status:        uint8(item.Status),
			Funder:        item.Funder,
			Description:   item.Description,
			CreatedAtUs:   item.CreatedAt.UnixMicro(),
			ActivatedAtUs: usOrZero(item.ActivatedAt),
			DeadlineUs:    usOrZero(item.Deadline),
			TotalClaimed:  item.TotalClaimed,
			Claimed:       claimed,
		})
	}

	return DistributionsState{
		Items:         items,
		NextID:        d.nextID,
		ClaimWindowUs: d.claimWindow.Microseconds(),
	}
}

func (d *Distributions) restoreState(st DistributionsState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, ds := range st.Items {
		claimed := make(map[common.Address]struct{}, len(ds.Claimed))
		for _, a := range ds.Claimed {
			claimed[a] = struct{}{}
		}
		d.items[ds.ID] = &Distribution{
			ID:           ds.ID,
			Kind:         ds.Kind,
			Asset:        ds.Asset,
			Group:        ds.Group,
			Currency:     ds.Currency,
			Amount:       ds.Amount,
			Remaining:    ds.Remaining,
			SnapshotID:   ds.SnapshotID,
			MerkleRoot:   ds.MerkleRoot,
			Status:       DistributionStatus(ds.Status),
			Funder:       ds.Funder,
			Description:  ds.Description,
			CreatedAt:    time.UnixMicro(ds.CreatedAtUs),
			ActivatedAt:  timeFromUs(ds.ActivatedAtUs),
			Deadline:     timeFromUs(ds.DeadlineUs),
			TotalClaimed: ds.TotalClaimed,
			claimed:      claimed,
		}
	}
	d.nextID = st.NextID
	d.claimWindow = time.Duration(st.ClaimWindowUs) * time.Microsecond
}

// ============================================================================
// Redemptions
// ============================================================================

func (d *Redemptions) state() RedemptionsState {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]int64, 0, len(d.items))
	for id := range d.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	items := make([]RedemptionState, 0, len(ids))
	for _, id := range ids {
		item := d.items[id]
		items = append(items, RedemptionState{
			ID:           item.ID,
			Requester:    item.Requester,
			Asset:        item.Asset,
			Amount:       item.Amount,
			Reason:       item.Reason,
			StatusReason: item.StatusReason,
			Status:       uint8(item.Status),
			CreatedAtUs:  item.CreatedAt.UnixMicro(),
			UpdatedAtUs:  item.UpdatedAt.UnixMicro(),
		})
	}

	rates := make(map[string]int64, len(d.rates))
	for asset, rate := range d.rates {
		rates[asset] = rate
	}

	return RedemptionsState{Items: items, NextID: d.nextID, Rates: rates}
}

func (d *Redemptions) restoreState(st RedemptionsState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, rs := range st.Items {
		d.items[rs.ID] = &Redemption{
			ID:           rs.ID,
			Requester:    rs.Requester,
			Asset:        rs.Asset,
			Amount:       rs.Amount,
			Reason:       rs.Reason,
			StatusReason: rs.StatusReason,
			Status:       RedemptionStatus(rs.Status),
			CreatedAt:    time.UnixMicro(rs.CreatedAtUs),
			UpdatedAt:    time.UnixMicro(rs.UpdatedAtUs),
		}
	}
	d.nextID = st.NextID
	for asset, rate := range st.Rates {
		d.rates[asset] = rate
	}
}
