package engine

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Order is an all-or-nothing listing with its asset escrowed up front.
// Price is per unit in the settlement currency.
type Order struct {
	ID        int64
	Seller    common.Address
	Asset     string
	Group     string
	Amount    int64
	Price     int64
	Currency  string
	CreatedAt time.Time
	Active    bool
}

func (o *Order) clone() *Order {
	c := *o
	return &c
}

// Trade is a completed fill. Trades are append-only.
type Trade struct {
	ID        uuid.UUID
	OrderID   int64
	Buyer     common.Address
	Seller    common.Address
	Asset     string
	Amount    int64
	Price     int64
	Fee       int64
	CreatedAt time.Time
}

func (t *Trade) clone() *Trade {
	c := *t
	return &c
}

// DistributionStatus is the payout pool lifecycle position.
type DistributionStatus uint8

const (
	DistributionStatusCreated DistributionStatus = iota
	DistributionStatusActive
	DistributionStatusCompleted
	DistributionStatusCancelled
	DistributionStatusRecovered
)

func (s DistributionStatus) String() string {
	switch s {
	case DistributionStatusCreated:
		return "created"
	case DistributionStatusActive:
		return "active"
	case DistributionStatusCompleted:
		return "completed"
	case DistributionStatusCancelled:
		return "cancelled"
	case DistributionStatusRecovered:
		return "recovered"
	default:
		return "unknown"
	}
}

// distributionTransitions is the single source of truth for status moves.
var distributionTransitions = map[DistributionStatus][]DistributionStatus{
	DistributionStatusCreated:   {DistributionStatusActive, DistributionStatusCancelled},
	DistributionStatusActive:    {DistributionStatusCompleted, DistributionStatusRecovered},
	DistributionStatusCompleted: {DistributionStatusRecovered},
}

// CanTransitionTo reports whether the move is allowed.
func (s DistributionStatus) CanTransitionTo(next DistributionStatus) bool {
	for _, allowed := range distributionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition exists.
func (s DistributionStatus) IsTerminal() bool {
	return len(distributionTransitions[s]) == 0
}

// Distribution is a funded payout pool. Snapshot pools pay pro rata
// against a balance snapshot; merkle pools pay against a published
// allocation root. The claimed set and Remaining enforce exactly-once.
type Distribution struct {
	ID           int64
	Kind         string
	Asset        string
	Group        string
	Currency     string
	Amount       int64
	Remaining    int64
	SnapshotID   int64
	MerkleRoot   common.Hash
	Status       DistributionStatus
	Funder       common.Address
	Description  string
	CreatedAt    time.Time
	ActivatedAt  time.Time
	Deadline     time.Time
	TotalClaimed int64

	claimed map[common.Address]struct{}
}

// clone copies the public fields; the claimed set stays internal and is
// queried through HasClaimed.
func (d *Distribution) clone() *Distribution {
	c := *d
	c.claimed = nil
	return &c
}

// RedemptionStatus is the buy-back request lifecycle position.
type RedemptionStatus uint8

const (
	RedemptionStatusPending RedemptionStatus = iota
	RedemptionStatusApproved
	RedemptionStatusExecuted
	RedemptionStatusRejected
	RedemptionStatusCancelled
)

func (s RedemptionStatus) String() string {
	switch s {
	case RedemptionStatusPending:
		return "pending"
	case RedemptionStatusApproved:
		return "approved"
	case RedemptionStatusExecuted:
		return "executed"
	case RedemptionStatusRejected:
		return "rejected"
	case RedemptionStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// redemptionTransitions is the single source of truth for status moves.
var redemptionTransitions = map[RedemptionStatus][]RedemptionStatus{
	RedemptionStatusPending:  {RedemptionStatusApproved, RedemptionStatusRejected, RedemptionStatusCancelled},
	RedemptionStatusApproved: {RedemptionStatusExecuted},
}

// CanTransitionTo reports whether the move is allowed.
func (s RedemptionStatus) CanTransitionTo(next RedemptionStatus) bool {
	for _, allowed := range redemptionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition exists.
func (s RedemptionStatus) IsTerminal() bool {
	return len(redemptionTransitions[s]) == 0
}

// Redemption is an asset buy-back request with the asset escrowed while
// the request is open.
type Redemption struct {
	ID           int64
	Requester    common.Address
	Asset        string
	Amount       int64
	Reason       string
	StatusReason string
	Status       RedemptionStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r *Redemption) clone() *Redemption {
	c := *r
	return &c
}
