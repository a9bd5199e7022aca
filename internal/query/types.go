package query

import (
	"time"

	"github.com/google/uuid"
)

// OrderResponse is one listing for API queries. Closed orders stay
// queryable here after they leave the live book.
type OrderResponse struct {
	OrderID      int64      `json:"order_id"`
	Seller       string     `json:"seller"`
	AssetID      string     `json:"asset_id"`
	Amount       int64      `json:"amount"`
	Price        int64      `json:"price"`
	Currency     string     `json:"currency"`
	Status       string     `json:"status"`
	CloseReason  *string    `json:"close_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	AsOfSequence int64      `json:"as_of_sequence"`
}

// TradeResponse is one completed fill for API queries.
type TradeResponse struct {
	TradeID      uuid.UUID `json:"trade_id"`
	OrderID      int64     `json:"order_id"`
	Buyer        string    `json:"buyer"`
	Seller       string    `json:"seller"`
	AssetID      string    `json:"asset_id"`
	Amount       int64     `json:"amount"`
	Price        int64     `json:"price"`
	Gross        int64     `json:"gross"`
	Fee          int64     `json:"fee"`
	Currency     string    `json:"currency"`
	ExecutedAt   time.Time `json:"executed_at"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// DistributionResponse is one payout pool for API queries.
type DistributionResponse struct {
	DistributionID int64      `json:"distribution_id"`
	Kind           string     `json:"kind"`
	AssetID        string     `json:"asset_id"`
	Funder         string     `json:"funder"`
	Amount         int64      `json:"amount"`
	Remaining      int64      `json:"remaining"`
	TotalClaimed   int64      `json:"total_claimed"`
	Currency       string     `json:"currency"`
	Description    *string    `json:"description,omitempty"`
	Status         string     `json:"status"`
	MerkleRoot     *string    `json:"merkle_root,omitempty"`
	TotalSupplyAt  *int64     `json:"total_supply_at,omitempty"`
	DeadlineAt     *time.Time `json:"deadline_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	AsOfSequence   int64      `json:"as_of_sequence"`
}

// ClaimResponse is one recorded payout for API queries. BalanceAt is
// set for snapshot claims only.
type ClaimResponse struct {
	DistributionID int64     `json:"distribution_id"`
	Account        string    `json:"account"`
	Amount         int64     `json:"amount"`
	BalanceAt      *int64    `json:"balance_at,omitempty"`
	Kind           string    `json:"kind"`
	ClaimedAt      time.Time `json:"claimed_at"`
	AsOfSequence   int64     `json:"as_of_sequence"`
}

// RedemptionResponse is one buy-back request for API queries.
type RedemptionResponse struct {
	RedemptionID int64      `json:"redemption_id"`
	Holder       string     `json:"holder"`
	AssetID      string     `json:"asset_id"`
	Amount       int64      `json:"amount"`
	Status       string     `json:"status"`
	Reason       *string    `json:"reason,omitempty"`
	StatusReason *string    `json:"status_reason,omitempty"`
	Payout       *int64     `json:"payout,omitempty"`
	RateBps      *int64     `json:"rate_bps,omitempty"`
	Currency     *string    `json:"currency,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	AsOfSequence int64      `json:"as_of_sequence"`
}

// Holding is one non-zero token balance.
type Holding struct {
	TokenKind string `json:"token_kind"`
	TokenID   string `json:"token_id"`
	Balance   int64  `json:"balance"`
}

// HoldingsResponse is an account's live ledger position. Unlike the
// other responses it is read from the engine registry, not from
// projections, so AsOfSequence is the engine sequence.
type HoldingsResponse struct {
	Account      string    `json:"account"`
	Holdings     []Holding `json:"holdings"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// ChainBreak is one hash chain verification failure.
type ChainBreak struct {
	Sequence int64  `json:"sequence"`
	Reason   string `json:"reason"`
}

// IntegrityReport is the result of a full event log and read model
// verification.
type IntegrityReport struct {
	IsHealthy                 bool         `json:"is_healthy"`
	CheckedEvents             int64        `json:"checked_events"`
	ChainBreaks               []ChainBreak `json:"chain_breaks,omitempty"`
	InconsistentDistributions []int64      `json:"inconsistent_distributions,omitempty"`
}

// OrderFilter narrows ListOrders. Zero values mean no filter; AfterID
// is a cursor for descending pagination.
type OrderFilter struct {
	Seller  string
	AssetID string
	Status  string
	Limit   int
	AfterID *int64
}

// TradeFilter narrows ListTrades. Account matches buyer or seller.
type TradeFilter struct {
	Account       string
	AssetID       string
	Limit         int
	AfterSequence *int64
}

// RedemptionFilter narrows ListRedemptions.
type RedemptionFilter struct {
	Holder string
	Status string
	Limit  int
}

// DistributionFilter narrows ListDistributions.
type DistributionFilter struct {
	AssetID string
	Status  string
	Limit   int
}
