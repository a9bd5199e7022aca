package event

import (
	"github.com/ethereum/go-ethereum/common"
)

// RoleGranted records a role membership addition.
type RoleGranted struct {
	Role    string         `json:"role"`
	Account common.Address `json:"account"`
}

func (e *RoleGranted) EventType() EventType { return EventTypeRoleGranted }
func (e *RoleGranted) EntityKind() string   { return EntityRole }
func (e *RoleGranted) EntityID() string     { return e.Role }

// RoleRevoked records a role membership removal.
type RoleRevoked struct {
	Role    string         `json:"role"`
	Account common.Address `json:"account"`
}

func (e *RoleRevoked) EventType() EventType { return EventTypeRoleRevoked }
func (e *RoleRevoked) EntityKind() string   { return EntityRole }
func (e *RoleRevoked) EntityID() string     { return e.Role }

// BlacklistUpdated flips an account's blacklist flag.
type BlacklistUpdated struct {
	Account common.Address `json:"account"`
	Barred  bool           `json:"barred"`
}

func (e *BlacklistUpdated) EventType() EventType { return EventTypeBlacklistUpdated }
func (e *BlacklistUpdated) EntityKind() string   { return EntityRole }
func (e *BlacklistUpdated) EntityID() string     { return e.Account.Hex() }

// Param scopes recorded on ParamsUpdated.
const (
	ParamScopeOrderBook    = "orderbook"
	ParamScopeDistribution = "distribution"
	ParamScopeRedemption   = "redemption"
)

// ParamsUpdated records a platform parameter change. Values are the
// string forms of the old and new settings.
type ParamsUpdated struct {
	Scope    string `json:"scope"`
	Name     string `json:"name"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

func (e *ParamsUpdated) EventType() EventType { return EventTypeParamsUpdated }
func (e *ParamsUpdated) EntityKind() string   { return EntityParams }
func (e *ParamsUpdated) EntityID() string     { return e.Scope + "/" + e.Name }

// Token kinds recorded on issue and retire events.
const (
	TokenKindAsset    = "asset"
	TokenKindCurrency = "currency"
)

// AssetRegistered records a new snapshot-capable asset token.
type AssetRegistered struct {
	AssetID  string `json:"asset_id"`
	Group    string `json:"group"`
	Decimals uint8  `json:"decimals"`
}

func (e *AssetRegistered) EventType() EventType { return EventTypeAssetRegistered }
func (e *AssetRegistered) EntityKind() string   { return EntityToken }
func (e *AssetRegistered) EntityID() string     { return e.AssetID }

// CurrencyRegistered records a new settlement currency token.
type CurrencyRegistered struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

func (e *CurrencyRegistered) EventType() EventType { return EventTypeCurrencyRegistered }
func (e *CurrencyRegistered) EntityKind() string   { return EntityToken }
func (e *CurrencyRegistered) EntityID() string     { return e.Symbol }

// TokensIssued mints supply into an account.
type TokensIssued struct {
	TokenKind string         `json:"token_kind"`
	TokenID   string         `json:"token_id"`
	To        common.Address `json:"to"`
	Amount    int64          `json:"amount"`
}

func (e *TokensIssued) EventType() EventType { return EventTypeTokensIssued }
func (e *TokensIssued) EntityKind() string   { return EntityToken }
func (e *TokensIssued) EntityID() string     { return e.TokenID }

// TokensRetired burns supply from an account.
type TokensRetired struct {
	TokenKind string         `json:"token_kind"`
	TokenID   string         `json:"token_id"`
	From      common.Address `json:"from"`
	Amount    int64          `json:"amount"`
}

func (e *TokensRetired) EventType() EventType { return EventTypeTokensRetired }
func (e *TokensRetired) EntityKind() string   { return EntityToken }
func (e *TokensRetired) EntityID() string     { return e.TokenID }

// AssetPauseSet halts or resumes transfers of one asset token.
type AssetPauseSet struct {
	AssetID string `json:"asset_id"`
	Paused  bool   `json:"paused"`
}

func (e *AssetPauseSet) EventType() EventType { return EventTypeAssetPauseSet }
func (e *AssetPauseSet) EntityKind() string   { return EntityToken }
func (e *AssetPauseSet) EntityID() string     { return e.AssetID }
