package event

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota

	// Order book
	EventTypeOrderCreated
	EventTypeOrderCancelled
	EventTypeOrderExecuted

	// Distributions
	EventTypeDistributionCreated
	EventTypeMerkleRootUpdated
	EventTypeDistributionActivated
	EventTypeDistributionCancelled
	EventTypeDistributionClaimed
	EventTypeMerkleWithdrawn
	EventTypeDistributionCompleted
	EventTypeDistributionRecovered

	// Redemptions
	EventTypeRedemptionCreated
	EventTypeRedemptionApproved
	EventTypeRedemptionRejected
	EventTypeRedemptionExecuted
	EventTypeRedemptionCancelled

	// Access control
	EventTypeRoleGranted
	EventTypeRoleRevoked
	EventTypeBlacklistUpdated

	// Platform administration
	EventTypeParamsUpdated
	EventTypeAssetRegistered
	EventTypeCurrencyRegistered
	EventTypeTokensIssued
	EventTypeTokensRetired
	EventTypeAssetPauseSet
)

// Entity kinds stamped on envelopes for projection routing.
const (
	EntityOrder        = "order"
	EntityDistribution = "distribution"
	EntityRedemption   = "redemption"
	EntityRole         = "role"
	EntityToken        = "token"
	EntityParams       = "params"
)

// Envelope wraps every recorded fact in the audit log.
type Envelope struct {
	// Global monotonic sequence assigned by the recorder
	Sequence int64

	// Unique id of this recorded fact
	EventID uuid.UUID

	// Stable idempotency key of the originating command
	RequestID string

	// Event type discriminator
	EventType EventType

	// Account that invoked the operation
	Actor common.Address

	// Entity the fact belongs to, for projection routing
	EntityKind string
	EntityID   string

	// Versioned input timestamp (NOT wall-clock at persist time)
	Timestamp time.Time

	// JSON-encoded event-specific payload
	Payload []byte

	// SHA-256 of the hash chain AFTER appending this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Payload is the interface all event payloads implement.
type Payload interface {
	// EventType returns the discriminator
	EventType() EventType

	// EntityKind names the owning entity class
	EntityKind() string

	// EntityID identifies the owning entity instance
	EntityID() string
}

func (et EventType) String() string {
	switch et {
	case EventTypeOrderCreated:
		return "order_created"
	case EventTypeOrderCancelled:
		return "order_cancelled"
	case EventTypeOrderExecuted:
		return "order_executed"
	case EventTypeDistributionCreated:
		return "distribution_created"
	case EventTypeMerkleRootUpdated:
		return "merkle_root_updated"
	case EventTypeDistributionActivated:
		return "distribution_activated"
	case EventTypeDistributionCancelled:
		return "distribution_cancelled"
	case EventTypeDistributionClaimed:
		return "distribution_claimed"
	case EventTypeMerkleWithdrawn:
		return "merkle_withdrawn"
	case EventTypeDistributionCompleted:
		return "distribution_completed"
	case EventTypeDistributionRecovered:
		return "distribution_recovered"
	case EventTypeRedemptionCreated:
		return "redemption_created"
	case EventTypeRedemptionApproved:
		return "redemption_approved"
	case EventTypeRedemptionRejected:
		return "redemption_rejected"
	case EventTypeRedemptionExecuted:
		return "redemption_executed"
	case EventTypeRedemptionCancelled:
		return "redemption_cancelled"
	case EventTypeRoleGranted:
		return "role_granted"
	case EventTypeRoleRevoked:
		return "role_revoked"
	case EventTypeBlacklistUpdated:
		return "blacklist_updated"
	case EventTypeParamsUpdated:
		return "params_updated"
	case EventTypeAssetRegistered:
		return "asset_registered"
	case EventTypeCurrencyRegistered:
		return "currency_registered"
	case EventTypeTokensIssued:
		return "tokens_issued"
	case EventTypeTokensRetired:
		return "tokens_retired"
	case EventTypeAssetPauseSet:
		return "asset_pause_set"
	default:
		return "unknown"
	}
}

var eventTypeNames = map[string]EventType{
	"order_created":          EventTypeOrderCreated,
	"order_cancelled":        EventTypeOrderCancelled,
	"order_executed":         EventTypeOrderExecuted,
	"distribution_created":   EventTypeDistributionCreated,
	"merkle_root_updated":    EventTypeMerkleRootUpdated,
	"distribution_activated": EventTypeDistributionActivated,
	"distribution_cancelled": EventTypeDistributionCancelled,
	"distribution_claimed":   EventTypeDistributionClaimed,
	"merkle_withdrawn":       EventTypeMerkleWithdrawn,
	"distribution_completed": EventTypeDistributionCompleted,
	"distribution_recovered": EventTypeDistributionRecovered,
	"redemption_created":     EventTypeRedemptionCreated,
	"redemption_approved":    EventTypeRedemptionApproved,
	"redemption_rejected":    EventTypeRedemptionRejected,
	"redemption_executed":    EventTypeRedemptionExecuted,
	"redemption_cancelled":   EventTypeRedemptionCancelled,
	"role_granted":           EventTypeRoleGranted,
	"role_revoked":           EventTypeRoleRevoked,
	"blacklist_updated":      EventTypeBlacklistUpdated,
	"params_updated":         EventTypeParamsUpdated,
	"asset_registered":       EventTypeAssetRegistered,
	"currency_registered":    EventTypeCurrencyRegistered,
	"tokens_issued":          EventTypeTokensIssued,
	"tokens_retired":         EventTypeTokensRetired,
	"asset_pause_set":        EventTypeAssetPauseSet,
}

// ParseEventType maps the wire name back to its EventType.
func ParseEventType(s string) (EventType, bool) {
	et, ok := eventTypeNames[s]
	return et, ok
}
