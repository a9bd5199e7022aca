package event

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// RedemptionCreated records a burn request with its tokens escrowed.
type RedemptionCreated struct {
	RedemptionID int64          `json:"redemption_id"`
	AssetID      string         `json:"asset_id"`
	Holder       common.Address `json:"holder"`
	Amount       int64          `json:"amount"`
	Reason       string         `json:"reason,omitempty"`
	CreatedAtUs  int64          `json:"created_at_us"`
}

func (e *RedemptionCreated) EventType() EventType { return EventTypeRedemptionCreated }
func (e *RedemptionCreated) EntityKind() string   { return EntityRedemption }
func (e *RedemptionCreated) EntityID() string     { return strconv.FormatInt(e.RedemptionID, 10) }

// RedemptionApproved moves a request to the executable state.
type RedemptionApproved struct {
	RedemptionID int64 `json:"redemption_id"`
}

func (e *RedemptionApproved) EventType() EventType { return EventTypeRedemptionApproved }
func (e *RedemptionApproved) EntityKind() string   { return EntityRedemption }
func (e *RedemptionApproved) EntityID() string     { return strconv.FormatInt(e.RedemptionID, 10) }

// RedemptionRejected returns the escrowed tokens to the holder.
type RedemptionRejected struct {
	RedemptionID int64          `json:"redemption_id"`
	Holder       common.Address `json:"holder"`
	Refund       int64          `json:"refund"`
	Reason       string         `json:"reason"`
}

func (e *RedemptionRejected) EventType() EventType { return EventTypeRedemptionRejected }
func (e *RedemptionRejected) EntityKind() string   { return EntityRedemption }
func (e *RedemptionRejected) EntityID() string     { return strconv.FormatInt(e.RedemptionID, 10) }

// RedemptionExecuted burns the escrowed tokens and pays out settlement
// currency.
type RedemptionExecuted struct {
	RedemptionID int64          `json:"redemption_id"`
	AssetID      string         `json:"asset_id"`
	Holder       common.Address `json:"holder"`
	Burned       int64          `json:"burned"`
	Payout       int64          `json:"payout"`
	RateBps      int64          `json:"rate_bps"`
	Currency     string         `json:"currency"`
}

func (e *RedemptionExecuted) EventType() EventType { return EventTypeRedemptionExecuted }
func (e *RedemptionExecuted) EntityKind() string   { return EntityRedemption }
func (e *RedemptionExecuted) EntityID() string     { return strconv.FormatInt(e.RedemptionID, 10) }

// RedemptionCancelled returns the escrowed tokens on holder request.
type RedemptionCancelled struct {
	RedemptionID int64          `json:"redemption_id"`
	Holder       common.Address `json:"holder"`
	Refund       int64          `json:"refund"`
}

func (e *RedemptionCancelled) EventType() EventType { return EventTypeRedemptionCancelled }
func (e *RedemptionCancelled) EntityKind() string   { return EntityRedemption }
func (e *RedemptionCancelled) EntityID() string     { return strconv.FormatInt(e.RedemptionID, 10) }
