package event

import (
	"encoding/json"
	"fmt"
)

// DecodePayload unmarshals an envelope payload into its typed struct.
// Used by replay and by projection workers.
func DecodePayload(et EventType, data []byte) (Payload, error) {
	var p Payload

	switch et {
	case EventTypeOrderCreated:
		p = &OrderCreated{}
	case EventTypeOrderCancelled:
		p = &OrderCancelled{}
	case EventTypeOrderExecuted:
		p = &OrderExecuted{}
	case EventTypeDistributionCreated:
		p = &DistributionCreated{}
	case EventTypeMerkleRootUpdated:
		p = &MerkleRootUpdated{}
	case EventTypeDistributionActivated:
		p = &DistributionActivated{}
	case EventTypeDistributionCancelled:
		p = &DistributionCancelled{}
	case EventTypeDistributionClaimed:
		p = &DistributionClaimed{}
	case EventTypeMerkleWithdrawn:
		p = &MerkleWithdrawn{}
	case EventTypeDistributionCompleted:
		p = &DistributionCompleted{}
	case EventTypeDistributionRecovered:
		p = &DistributionRecovered{}
	case EventTypeRedemptionCreated:
		p = &RedemptionCreated{}
	case EventTypeRedemptionApproved:
		p = &RedemptionApproved{}
	case EventTypeRedemptionRejected:
		p = &RedemptionRejected{}
	case EventTypeRedemptionExecuted:
		p = &RedemptionExecuted{}
	case EventTypeRedemptionCancelled:
		p = &RedemptionCancelled{}
	case EventTypeRoleGranted:
		p = &RoleGranted{}
	case EventTypeRoleRevoked:
		p = &RoleRevoked{}
	case EventTypeBlacklistUpdated:
		p = &BlacklistUpdated{}
	case EventTypeParamsUpdated:
		p = &ParamsUpdated{}
	case EventTypeAssetRegistered:
		p = &AssetRegistered{}
	case EventTypeCurrencyRegistered:
		p = &CurrencyRegistered{}
	case EventTypeTokensIssued:
		p = &TokensIssued{}
	case EventTypeTokensRetired:
		p = &TokensRetired{}
	case EventTypeAssetPauseSet:
		p = &AssetPauseSet{}
	default:
		return nil, fmt.Errorf("unknown event type %d", et)
	}

	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", et, err)
	}
	return p, nil
}
