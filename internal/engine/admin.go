package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"AssetVault/internal/access"
	"AssetVault/internal/event"
	"AssetVault/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
)

// Admin exposes the platform administration surface: role membership,
// the blacklist, token registration, issuance, and per-asset transfer
// pauses. One mutex covers mutate and record for every operation, so
// the event log always orders admin changes the way they took effect.
type Admin struct {
	mu sync.Mutex

	recorder *Recorder
	access   *access.Store
	registry *ledger.MemRegistry
	clock    func() time.Time
}

func NewAdmin(rec *Recorder, store *access.Store, registry *ledger.MemRegistry) *Admin {
	return &Admin{
		recorder: rec,
		access:   store,
		registry: registry,
		clock:    time.Now,
	}
}

// GrantRole adds the account to the named role. The caller must hold
// the role's admin role. Granting an already-held role is a no-op and
// records nothing.
func (a *Admin) GrantRole(ctx context.Context, actor common.Address, roleName string, account common.Address) error {
	role, ok := access.ParseRole(roleName)
	if !ok {
		return fmt.Errorf("grant role: unknown role %q: %w", roleName, ErrValidation)
	}
	if !a.access.HasRole(a.access.RoleAdmin(role), actor) {
		return fmt.Errorf("grant role %s: role admin required: %w", roleName, ErrUnauthorized)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.access.Grant(role, account) {
		return nil
	}
	a.recorder.Record(actor, RequestIDFrom(ctx), a.clock(), &event.RoleGranted{
		Role:    role.String(),
		Account: account,
	})
	return nil
}

// RevokeRole removes the account from the named role. Revoking a role
// the account does not hold is a no-op and records nothing.
func (a *Admin) RevokeRole(ctx context.Context, actor common.Address, roleName string, account common.Address) error {
	role, ok := access.ParseRole(roleName)
	if !ok {
		return fmt.Errorf("revoke role: unknown role %q: %w", roleName, ErrValidation)
	}
	if !a.access.HasRole(a.access.RoleAdmin(role), actor) {
		return fmt.Errorf("revoke role %s: role admin required: %w", roleName, ErrUnauthorized)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.access.Revoke(role, account) {
		return nil
	}
	a.recorder.Record(actor, RequestIDFrom(ctx), a.clock(), &event.RoleRevoked{
		Role:    role.String(),
		Account: account,
	})
	return nil
}

// SetBlacklisted flips the account's blacklist flag. Setting the flag
// to its current value records nothing.
func (a *Admin) SetBlacklisted(ctx context.Context, actor, account common.Address, barred bool) error {
	if !a.access.HasAtLeast(access.RoleAdmin, actor) {
		return fmt.Errorf("set blacklisted: admin required: %w", ErrUnauthorized)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.access.SetBlacklisted(account, barred) {
		return nil
	}
	a.recorder.Record(actor, RequestIDFrom(ctx), a.clock(), &event.BlacklistUpdated{
		Account: account,
		Barred:  barred,
	})
	return nil
}

// RegisterAsset creates a snapshot-capable asset token under the group
// tag.
func (a *Admin) RegisterAsset(ctx context.Context, actor common.Address, assetID, group string, decimals uint8) error {
	if !a.access.HasAtLeast(access.RoleAdmin, actor) {
		return fmt.Errorf("register asset: admin required: %w", ErrUnauthorized)
	}
	if assetID == "" {
		return fmt.Errorf("register asset: empty id: %w", ErrValidation)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.registry.RegisterAsset(assetID, group, decimals); err != nil {
		return fmt.Errorf("register asset %q: %w: %w", assetID, ErrValidation, err)
	}
	a.recorder.Record(actor, RequestIDFrom(ctx), a.clock(), &event.AssetRegistered{
		AssetID:  assetID,
		Group:    group,
		Decimals: decimals,
	})
	return nil
}

// RegisterCurrency creates a settlement currency token.
func (a *Admin) RegisterCurrency(ctx context.Context, actor common.Address, symbol string, decimals uint8) error {
	if !a.access.HasAtLeast(access.RoleAdmin, actor) {
		return fmt.Errorf("register currency: admin required: %w", ErrUnauthorized)
	}
	if symbol == "" {
		return fmt.Errorf("register currency: empty symbol: %w", ErrValidation)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.registry.RegisterCurrency(symbol, decimals); err != nil {
		return fmt.Errorf("register currency %q: %w: %w", symbol, ErrValidation, err)
	}
	a.recorder.Record(actor, RequestIDFrom(ctx), a.clock(), &event.CurrencyRegistered{
		Symbol:   symbol,
		Decimals: decimals,
	})
	return nil
}

// IssueTokens mints supply into an account. kind selects the asset or
// currency registry.
func (a *Admin) IssueTokens(ctx context.Context, actor common.Address, kind, tokenID string, to common.Address, amount int64) error {
	if !a.access.HasAtLeast(access.RoleAdmin, actor) {
		return fmt.Errorf("issue tokens: admin required: %w", ErrUnauthorized)
	}
	if amount <= 0 {
		return fmt.Errorf("issue tokens: amount must be positive: %w", ErrValidation)
	}
	token, err := a.token(kind, tokenID)
	if err != nil {
		return fmt.Errorf("issue tokens: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := token.Mint(to, amount); err != nil {
		return wrapLedgerErr(fmt.Sprintf("issue %s %s", kind, tokenID), err)
	}
	a.recorder.Record(actor, RequestIDFrom(ctx), a.clock(), &event.TokensIssued{
		TokenKind: kind,
		TokenID:   tokenID,
		To:        to,
		Amount:    amount,
	})
	return nil
}

// RetireTokens burns supply from an account.
func (a *Admin) RetireTokens(ctx context.Context, actor common.Address, kind, tokenID string, from common.Address, amount int64) error {
	if !a.access.HasAtLeast(access.RoleAdmin, actor) {
		return fmt.Errorf("retire tokens: admin required: %w", ErrUnauthorized)
	}
	if amount <= 0 {
		return fmt.Errorf("retire tokens: amount must be positive: %w", ErrValidation)
	}
	token, err := a.token(kind, tokenID)
	if err != nil {
		return fmt.Errorf("retire tokens: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := token.Burn(from, amount); err != nil {
		return wrapLedgerErr(fmt.Sprintf("retire %s %s", kind, tokenID), err)
	}
	a.recorder.Record(actor, RequestIDFrom(ctx), a.clock(), &event.TokensRetired{
		TokenKind: kind,
		TokenID:   tokenID,
		From:      from,
		Amount:    amount,
	})
	return nil
}

// SetAssetPaused halts or resumes transfers of one asset token. Setting
// the current value records nothing.
func (a *Admin) SetAssetPaused(ctx context.Context, actor common.Address, assetID string, paused bool) error {
	if !a.access.HasAtLeast(access.RoleAdmin, actor) {
		return fmt.Errorf("set asset paused: admin required: %w", ErrUnauthorized)
	}
	token, ok := a.registry.AssetToken(assetID)
	if !ok {
		return fmt.Errorf("set asset paused: unknown asset %q: %w", assetID, ErrValidation)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if token.Paused() == paused {
		return nil
	}
	token.SetPaused(paused)
	a.recorder.Record(actor, RequestIDFrom(ctx), a.clock(), &event.AssetPauseSet{
		AssetID: assetID,
		Paused:  paused,
	})
	return nil
}

func (a *Admin) token(kind, tokenID string) (*ledger.MemToken, error) {
	switch kind {
	case event.TokenKindAsset:
		token, ok := a.registry.AssetToken(tokenID)
		if !ok {
			return nil, fmt.Errorf("unknown asset %q: %w", tokenID, ErrValidation)
		}
		return token, nil
	case event.TokenKindCurrency:
		token, ok := a.registry.CurrencyToken(tokenID)
		if !ok {
			return nil, fmt.Errorf("unknown currency %q: %w", tokenID, ErrValidation)
		}
		return token, nil
	default:
		return nil, fmt.Errorf("unknown token kind %q: %w", kind, ErrValidation)
	}
}

// ============================================================================
// Replay
// ============================================================================

func (a *Admin) applyRoleGranted(p *event.RoleGranted) error {
	role, ok := access.ParseRole(p.Role)
	if !ok {
		return fmt.Errorf("replay grant: unknown role %q", p.Role)
	}
	a.access.Grant(role, p.Account)
	return nil
}

func (a *Admin) applyRoleRevoked(p *event.RoleRevoked) error {
	role, ok := access.ParseRole(p.Role)
	if !ok {
		return fmt.Errorf("replay revoke: unknown role %q", p.Role)
	}
	a.access.Revoke(role, p.Account)
	return nil
}

func (a *Admin) applyBlacklistUpdated(p *event.BlacklistUpdated) error {
	a.access.SetBlacklisted(p.Account, p.Barred)
	return nil
}

func (a *Admin) applyAssetRegistered(p *event.AssetRegistered) error {
	if _, err := a.registry.RegisterAsset(p.AssetID, p.Group, p.Decimals); err != nil {
		return fmt.Errorf("replay register asset %q: %w", p.AssetID, err)
	}
	return nil
}

func (a *Admin) applyCurrencyRegistered(p *event.CurrencyRegistered) error {
	if _, err := a.registry.RegisterCurrency(p.Symbol, p.Decimals); err != nil {
		return fmt.Errorf("replay register currency %q: %w", p.Symbol, err)
	}
	return nil
}

func (a *Admin) applyTokensIssued(p *event.TokensIssued) error {
	token, err := a.token(p.TokenKind, p.TokenID)
	if err != nil {
		return fmt.Errorf("replay issue: %w", err)
	}
	if err := token.Mint(p.To, p.Amount); err != nil {
		return fmt.Errorf("replay issue %s %s: %w", p.TokenKind, p.TokenID, err)
	}
	return nil
}

func (a *Admin) applyTokensRetired(p *event.TokensRetired) error {
	token, err := a.token(p.TokenKind, p.TokenID)
	if err != nil {
		return fmt.Errorf("replay retire: %w", err)
	}
	if err := token.Burn(p.From, p.Amount); err != nil {
		return fmt.Errorf("replay retire %s %s: %w", p.TokenKind, p.TokenID, err)
	}
	return nil
}

func (a *Admin) applyAssetPauseSet(p *event.AssetPauseSet) error {
	token, ok := a.registry.AssetToken(p.AssetID)
	if !ok {
		return fmt.Errorf("replay pause: unknown asset %q", p.AssetID)
	}
	token.SetPaused(p.Paused)
	return nil
}
