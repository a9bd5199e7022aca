package event

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// Distribution kinds.
const (
	DistributionKindSnapshot = "snapshot"
	DistributionKindMerkle   = "merkle"
)

// DistributionCreated records a funded payout pool and the balance
// snapshot taken at creation.
type DistributionCreated struct {
	DistributionID int64          `json:"distribution_id"`
	Kind           string         `json:"kind"`
	AssetID        string         `json:"asset_id"`
	Amount         int64          `json:"amount"`
	Currency       string         `json:"currency"`
	Description    string         `json:"description"`
	Funder         common.Address `json:"funder"`
	SnapshotID     int64          `json:"snapshot_id"`
	CreatedAtUs    int64          `json:"created_at_us"`
}

func (e *DistributionCreated) EventType() EventType { return EventTypeDistributionCreated }
func (e *DistributionCreated) EntityKind() string   { return EntityDistribution }
func (e *DistributionCreated) EntityID() string     { return strconv.FormatInt(e.DistributionID, 10) }

// MerkleRootUpdated records a root replacement while still pending.
type MerkleRootUpdated struct {
	DistributionID int64       `json:"distribution_id"`
	Root           common.Hash `json:"root"`
}

func (e *MerkleRootUpdated) EventType() EventType { return EventTypeMerkleRootUpdated }
func (e *MerkleRootUpdated) EntityKind() string   { return EntityDistribution }
func (e *MerkleRootUpdated) EntityID() string     { return strconv.FormatInt(e.DistributionID, 10) }

// DistributionActivated freezes the snapshot and opens claims.
type DistributionActivated struct {
	DistributionID int64 `json:"distribution_id"`
	SnapshotID     int64 `json:"snapshot_id"`
	TotalSupplyAt  int64 `json:"total_supply_at"`
	DeadlineUs     int64 `json:"deadline_us"`
}

func (e *DistributionActivated) EventType() EventType { return EventTypeDistributionActivated }
func (e *DistributionActivated) EntityKind() string   { return EntityDistribution }
func (e *DistributionActivated) EntityID() string     { return strconv.FormatInt(e.DistributionID, 10) }

// DistributionCancelled refunds the funder of a never-activated pool.
type DistributionCancelled struct {
	DistributionID int64          `json:"distribution_id"`
	Funder         common.Address `json:"funder"`
	Refund         int64          `json:"refund"`
}

func (e *DistributionCancelled) EventType() EventType { return EventTypeDistributionCancelled }
func (e *DistributionCancelled) EntityKind() string   { return EntityDistribution }
func (e *DistributionCancelled) EntityID() string     { return strconv.FormatInt(e.DistributionID, 10) }

// DistributionClaimed records one holder's pro-rata payout.
type DistributionClaimed struct {
	DistributionID int64          `json:"distribution_id"`
	Account        common.Address `json:"account"`
	Amount         int64          `json:"amount"`
	BalanceAt      int64          `json:"balance_at"`
	Remaining      int64          `json:"remaining"`
}

func (e *DistributionClaimed) EventType() EventType { return EventTypeDistributionClaimed }
func (e *DistributionClaimed) EntityKind() string   { return EntityDistribution }
func (e *DistributionClaimed) EntityID() string     { return strconv.FormatInt(e.DistributionID, 10) }

// MerkleWithdrawn records a proof-verified payout.
type MerkleWithdrawn struct {
	DistributionID int64          `json:"distribution_id"`
	Account        common.Address `json:"account"`
	Amount         int64          `json:"amount"`
	Remaining      int64          `json:"remaining"`
}

func (e *MerkleWithdrawn) EventType() EventType { return EventTypeMerkleWithdrawn }
func (e *MerkleWithdrawn) EntityKind() string   { return EntityDistribution }
func (e *MerkleWithdrawn) EntityID() string     { return strconv.FormatInt(e.DistributionID, 10) }

// DistributionCompleted marks a fully drained pool.
type DistributionCompleted struct {
	DistributionID int64 `json:"distribution_id"`
}

func (e *DistributionCompleted) EventType() EventType { return EventTypeDistributionCompleted }
func (e *DistributionCompleted) EntityKind() string   { return EntityDistribution }
func (e *DistributionCompleted) EntityID() string     { return strconv.FormatInt(e.DistributionID, 10) }

// DistributionRecovered sweeps unclaimed funds to the treasury.
type DistributionRecovered struct {
	DistributionID int64          `json:"distribution_id"`
	Amount         int64          `json:"amount"`
	Treasury       common.Address `json:"treasury"`
}

func (e *DistributionRecovered) EventType() EventType { return EventTypeDistributionRecovered }
func (e *DistributionRecovered) EntityKind() string   { return EntityDistribution }
func (e *DistributionRecovered) EntityID() string     { return strconv.FormatInt(e.DistributionID, 10) }
