package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Submitter frames locally built commands and queues them onto the
// same channel the JetStream consumers feed, so manual operator
// actions pass through the same validation and dedup path as wire
// traffic. Submissions are fire-and-forget; rejections surface in the
// service log and metrics.
type Submitter struct {
	commands chan<- RawEvent
}

func NewSubmitter(commands chan<- RawEvent) *Submitter {
	return &Submitter{commands: commands}
}

// Submit frames one command and queues it. A fresh request id is
// generated when none is given.
func (s *Submitter) Submit(ctx context.Context, requestID string, actor common.Address, action string, params any) error {
	if requestID == "" {
		requestID = uuid.New().String()
	}

	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s params: %w", action, err)
	}
	data, err := json.Marshal(commandEnvelope{
		RequestID: requestID,
		Actor:     actor.Hex(),
		Action:    action,
		Params:    rawParams,
	})
	if err != nil {
		return fmt.Errorf("marshal command envelope: %w", err)
	}

	raw := RawEvent{
		Subject:   "local." + action,
		Data:      data,
		Timestamp: time.Now(),
	}

	select {
	case s.commands <- raw:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitRegisterAsset queues an asset registration.
func (s *Submitter) SubmitRegisterAsset(ctx context.Context, actor common.Address, assetID, group string, decimals uint8) error {
	return s.Submit(ctx, "", actor, ActionRegisterAsset, RegisterAssetParams{
		AssetID:  assetID,
		Group:    group,
		Decimals: decimals,
	})
}

// SubmitRegisterCurrency queues a settlement currency registration.
func (s *Submitter) SubmitRegisterCurrency(ctx context.Context, actor common.Address, symbol string, decimals uint8) error {
	return s.Submit(ctx, "", actor, ActionRegisterCurrency, RegisterCurrencyParams{
		Symbol:   symbol,
		Decimals: decimals,
	})
}

// SubmitIssueTokens queues a token issuance.
func (s *Submitter) SubmitIssueTokens(ctx context.Context, actor common.Address, kind, tokenID string, to common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	return s.Submit(ctx, "", actor, ActionIssueTokens, IssueTokensParams{
		Kind:    kind,
		TokenID: tokenID,
		To:      to,
		Amount:  amount,
	})
}

// SubmitGrantRole queues a role grant.
func (s *Submitter) SubmitGrantRole(ctx context.Context, actor common.Address, role string, account common.Address) error {
	return s.Submit(ctx, "", actor, ActionGrantRole, GrantRoleParams{
		Role:    role,
		Account: account,
	})
}

// SubmitSetAssetPaused queues an asset pause or unpause.
func (s *Submitter) SubmitSetAssetPaused(ctx context.Context, actor common.Address, assetID string, paused bool) error {
	return s.Submit(ctx, "", actor, ActionSetAssetPaused, SetAssetPausedParams{
		AssetID: assetID,
		Paused:  paused,
	})
}
