package event

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// OrderCreated records a listing with its escrow already pulled.
type OrderCreated struct {
	OrderID     int64          `json:"order_id"`
	AssetID     string         `json:"asset_id"`
	Seller      common.Address `json:"seller"`
	Amount      int64          `json:"amount"`
	Price       int64          `json:"price"`
	Currency    string         `json:"currency"`
	CreatedAtUs int64          `json:"created_at_us"`
}

func (e *OrderCreated) EventType() EventType { return EventTypeOrderCreated }
func (e *OrderCreated) EntityKind() string   { return EntityOrder }
func (e *OrderCreated) EntityID() string     { return strconv.FormatInt(e.OrderID, 10) }

// Cancel reasons recorded on OrderCancelled.
const (
	CancelBySeller   = "seller"
	CancelByAdmin    = "admin"
	CancelByBatch    = "batch"
	CancelByAdminAll = "admin_all"
)

// OrderCancelled records an escrow refund and order removal.
type OrderCancelled struct {
	OrderID int64          `json:"order_id"`
	AssetID string         `json:"asset_id"`
	Seller  common.Address `json:"seller"`
	Refund  int64          `json:"refund"`
	Reason  string         `json:"reason"`
}

func (e *OrderCancelled) EventType() EventType { return EventTypeOrderCancelled }
func (e *OrderCancelled) EntityKind() string   { return EntityOrder }
func (e *OrderCancelled) EntityID() string     { return strconv.FormatInt(e.OrderID, 10) }

// OrderExecuted records a full fill: payment, fee and asset release.
type OrderExecuted struct {
	OrderID        int64          `json:"order_id"`
	TradeID        uuid.UUID      `json:"trade_id"`
	AssetID        string         `json:"asset_id"`
	Currency       string         `json:"currency"`
	Buyer          common.Address `json:"buyer"`
	Seller         common.Address `json:"seller"`
	Amount         int64          `json:"amount"`
	Price          int64          `json:"price"`
	Gross          int64          `json:"gross"`
	Fee            int64          `json:"fee"`
	SellerProceeds int64          `json:"seller_proceeds"`
	FeeReceiver    common.Address `json:"fee_receiver"`
	ExecutedAtUs   int64          `json:"executed_at_us"`
}

func (e *OrderExecuted) EventType() EventType { return EventTypeOrderExecuted }
func (e *OrderExecuted) EntityKind() string   { return EntityOrder }
func (e *OrderExecuted) EntityID() string     { return strconv.FormatInt(e.OrderID, 10) }
