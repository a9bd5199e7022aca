package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Wire action names. The command envelope carries one of these in its
// action field; each maps to exactly one engine operation.
const (
	ActionCreateOrder       = "create_order"
	ActionCancelOrder       = "cancel_order"
	ActionExecuteOrder      = "execute_order"
	ActionBatchCancelOrders = "batch_cancel_orders"
	ActionCancelAllOrders   = "cancel_all_orders"
	ActionSetFeeRate        = "set_fee_rate"
	ActionSetFeeReceiver    = "set_fee_receiver"
	ActionSetMinTradeAmount = "set_min_trade_amount"
	ActionSetMaxTradeAmount = "set_max_trade_amount"
	ActionSetCooldownPeriod = "set_cooldown_period"
	ActionSetTradingPaused  = "set_trading_paused"

	ActionCreateDistribution       = "create_distribution"
	ActionCreateMerkleDistribution = "create_merkle_distribution"
	ActionUpdateMerkleRoot         = "update_merkle_root"
	ActionActivateDistribution     = "activate_distribution"
	ActionCancelDistribution       = "cancel_distribution"
	ActionClaim                    = "claim"
	ActionWithdrawMerkle           = "withdraw_merkle"
	ActionRecoverUnclaimed         = "recover_unclaimed"
	ActionSetClaimWindow           = "set_claim_window"

	ActionCreateRedemption  = "create_redemption"
	ActionApproveRedemption = "approve_redemption"
	ActionRejectRedemption  = "reject_redemption"
	ActionExecuteRedemption = "execute_redemption"
	ActionCancelRedemption  = "cancel_redemption"
	ActionSetRedemptionRate = "set_redemption_rate"

	ActionGrantRole        = "grant_role"
	ActionRevokeRole       = "revoke_role"
	ActionSetBlacklisted   = "set_blacklisted"
	ActionRegisterAsset    = "register_asset"
	ActionRegisterCurrency = "register_currency"
	ActionIssueTokens      = "issue_tokens"
	ActionRetireTokens     = "retire_tokens"
	ActionSetAssetPaused   = "set_asset_paused"
)

// Command is a validated operation ready for dispatch. Params holds a
// pointer to the action's params struct.
type Command struct {
	RequestID string
	Actor     common.Address
	Action    string
	Params    any
}

// commandEnvelope is the outer JSON frame shared by every operations
// subject. Field names use snake_case to match upstream producers.
type commandEnvelope struct {
	RequestID string          `json:"request_id"`
	Actor     string          `json:"actor"`
	Action    string          `json:"action"`
	Params    json.RawMessage `json:"params"`
}

// ParseCommand validates a command frame's structure: envelope shape,
// actor address, known action and well-formed params. Business rules
// such as amount ranges and role checks stay with the engine.
func ParseCommand(data []byte) (*Command, error) {
	var env commandEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse command envelope: %w", err)
	}
	if env.RequestID == "" {
		return nil, errors.New("missing request_id")
	}
	if !common.IsHexAddress(env.Actor) {
		return nil, fmt.Errorf("invalid actor address %q", env.Actor)
	}

	params, err := newParams(env.Action)
	if err != nil {
		return nil, err
	}
	raw := env.Params
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, params); err != nil {
		return nil, fmt.Errorf("parse %s params: %w", env.Action, err)
	}

	return &Command{
		RequestID: env.RequestID,
		Actor:     common.HexToAddress(env.Actor),
		Action:    env.Action,
		Params:    params,
	}, nil
}

func newParams(action string) (any, error) {
	switch action {
	case ActionCreateOrder:
		return new(CreateOrderParams), nil
	case ActionCancelOrder:
		return new(CancelOrderParams), nil
	case ActionExecuteOrder:
		return new(ExecuteOrderParams), nil
	case ActionBatchCancelOrders:
		return new(BatchCancelOrdersParams), nil
	case ActionCancelAllOrders:
		return new(CancelAllOrdersParams), nil
	case ActionSetFeeRate:
		return new(SetFeeRateParams), nil
	case ActionSetFeeReceiver:
		return new(SetFeeReceiverParams), nil
	case ActionSetMinTradeAmount:
		return new(SetMinTradeAmountParams), nil
	case ActionSetMaxTradeAmount:
		return new(SetMaxTradeAmountParams), nil
	case ActionSetCooldownPeriod:
		return new(SetCooldownPeriodParams), nil
	case ActionSetTradingPaused:
		return new(SetTradingPausedParams), nil
	case ActionCreateDistribution:
		return new(CreateDistributionParams), nil
	case ActionCreateMerkleDistribution:
		return new(CreateMerkleDistributionParams), nil
	case ActionUpdateMerkleRoot:
		return new(UpdateMerkleRootParams), nil
	case ActionActivateDistribution:
		return new(ActivateDistributionParams), nil
	case ActionCancelDistribution:
		return new(CancelDistributionParams), nil
	case ActionClaim:
		return new(ClaimParams), nil
	case ActionWithdrawMerkle:
		return new(WithdrawMerkleParams), nil
	case ActionRecoverUnclaimed:
		return new(RecoverUnclaimedParams), nil
	case ActionSetClaimWindow:
		return new(SetClaimWindowParams), nil
	case ActionCreateRedemption:
		return new(CreateRedemptionParams), nil
	case ActionApproveRedemption:
		return new(ApproveRedemptionParams), nil
	case ActionRejectRedemption:
		return new(RejectRedemptionParams), nil
	case ActionExecuteRedemption:
		return new(ExecuteRedemptionParams), nil
	case ActionCancelRedemption:
		return new(CancelRedemptionParams), nil
	case ActionSetRedemptionRate:
		return new(SetRedemptionRateParams), nil
	case ActionGrantRole:
		return new(GrantRoleParams), nil
	case ActionRevokeRole:
		return new(RevokeRoleParams), nil
	case ActionSetBlacklisted:
		return new(SetBlacklistedParams), nil
	case ActionRegisterAsset:
		return new(RegisterAssetParams), nil
	case ActionRegisterCurrency:
		return new(RegisterCurrencyParams), nil
	case ActionIssueTokens:
		return new(IssueTokensParams), nil
	case ActionRetireTokens:
		return new(RetireTokensParams), nil
	case ActionSetAssetPaused:
		return new(SetAssetPausedParams), nil
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

// --- Params structs ---
// Address and hash fields unmarshal go-ethereum's 0x-prefixed hex
// forms directly, so a malformed address fails the parse instead of
// reaching the engine.

type CreateOrderParams struct {
	AssetID string `json:"asset_id"`
	Amount  int64  `json:"amount"`
	Price   int64  `json:"price"`
}

type CancelOrderParams struct {
	OrderID int64 `json:"order_id"`
}

type ExecuteOrderParams struct {
	OrderID int64 `json:"order_id"`
	Payment int64 `json:"payment"`
}

type BatchCancelOrdersParams struct {
	OrderIDs []int64 `json:"order_ids"`
}

type CancelAllOrdersParams struct{}

type SetFeeRateParams struct {
	Bps int64 `json:"bps"`
}

type SetFeeReceiverParams struct {
	Receiver common.Address `json:"receiver"`
}

type SetMinTradeAmountParams struct {
	Amount int64 `json:"amount"`
}

type SetMaxTradeAmountParams struct {
	Amount int64 `json:"amount"`
}

type SetCooldownPeriodParams struct {
	Seconds int64 `json:"seconds"`
}

type SetTradingPausedParams struct {
	Paused bool `json:"paused"`
}

type CreateDistributionParams struct {
	AssetID     string `json:"asset_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

type CreateMerkleDistributionParams struct {
	Target      string `json:"target"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

type UpdateMerkleRootParams struct {
	DistributionID int64       `json:"distribution_id"`
	Root           common.Hash `json:"root"`
}

type ActivateDistributionParams struct {
	DistributionID int64 `json:"distribution_id"`
}

type CancelDistributionParams struct {
	DistributionID int64 `json:"distribution_id"`
}

type ClaimParams struct {
	DistributionID int64 `json:"distribution_id"`
}

type WithdrawMerkleParams struct {
	DistributionID int64         `json:"distribution_id"`
	Amount         int64         `json:"amount"`
	Proof          []common.Hash `json:"proof"`
}

type RecoverUnclaimedParams struct {
	DistributionID int64 `json:"distribution_id"`
}

type SetClaimWindowParams struct {
	Seconds int64 `json:"seconds"`
}

type CreateRedemptionParams struct {
	AssetID string `json:"asset_id"`
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason"`
}

type ApproveRedemptionParams struct {
	RedemptionID int64 `json:"redemption_id"`
}

type RejectRedemptionParams struct {
	RedemptionID int64  `json:"redemption_id"`
	Reason       string `json:"reason"`
}

type ExecuteRedemptionParams struct {
	RedemptionID int64 `json:"redemption_id"`
}

type CancelRedemptionParams struct {
	RedemptionID int64 `json:"redemption_id"`
}

type SetRedemptionRateParams struct {
	AssetID string `json:"asset_id"`
	RateBps int64  `json:"rate_bps"`
}

type GrantRoleParams struct {
	Role    string         `json:"role"`
	Account common.Address `json:"account"`
}

type RevokeRoleParams struct {
	Role    string         `json:"role"`
	Account common.Address `json:"account"`
}

type SetBlacklistedParams struct {
	Account common.Address `json:"account"`
	Barred  bool           `json:"barred"`
}

type RegisterAssetParams struct {
	AssetID  string `json:"asset_id"`
	Group    string `json:"group"`
	Decimals uint8  `json:"decimals"`
}

type RegisterCurrencyParams struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type IssueTokensParams struct {
	Kind    string         `json:"kind"`
	TokenID string         `json:"token_id"`
	To      common.Address `json:"to"`
	Amount  int64          `json:"amount"`
}

type RetireTokensParams struct {
	Kind    string         `json:"kind"`
	TokenID string         `json:"token_id"`
	From    common.Address `json:"from"`
	Amount  int64          `json:"amount"`
}

type SetAssetPausedParams struct {
	AssetID string `json:"asset_id"`
	Paused  bool   `json:"paused"`
}
