// Package ingestion is the command shell around the engine: it pulls
// operation frames off JetStream, validates their structure, screens
// replays through the deduper and dispatches them to the engine. The
// engine stays the only place business rules live.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"AssetVault/internal/engine"
	"AssetVault/internal/observability"

	"github.com/rs/zerolog"
)

// Service drains inbound command frames and applies them to the
// engine. Delivery settles by outcome: malformed frames, duplicates
// and business rejections are acked because redelivery cannot change
// them; infrastructure failures are naked for redelivery.
type Service struct {
	engine  *engine.Engine
	deduper *engine.Deduper
	input   <-chan RawEvent
	metrics *observability.Metrics
	log     zerolog.Logger

	// gate lets the snapshotter hold dispatch still while it captures
	// engine state. Handle holds the read side for each command.
	gate sync.RWMutex
}

func NewService(eng *engine.Engine, deduper *engine.Deduper, input <-chan RawEvent, metrics *observability.Metrics) *Service {
	return &Service{
		engine:  eng,
		deduper: deduper,
		input:   input,
		metrics: metrics,
		log:     observability.NewLogger("ingestion"),
	}
}

// Run processes commands until ctx is cancelled or the input closes.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-s.input:
			if !ok {
				return nil
			}
			s.Handle(ctx, raw)
		}
	}
}

// Quiesce blocks new command dispatch and waits for the in-flight one
// to finish, so a state capture sees a consistent point in the log.
// The returned release function resumes dispatch.
func (s *Service) Quiesce() (release func()) {
	s.gate.Lock()
	return s.gate.Unlock
}

// Handle applies one command frame and settles its delivery.
func (s *Service) Handle(ctx context.Context, raw RawEvent) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	cmd, err := ParseCommand(raw.Data)
	if err != nil {
		// Malformed frames never become valid on redelivery.
		s.log.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping malformed command")
		raw.Ack()
		return
	}

	if s.deduper != nil {
		if dup, tier := s.deduper.Check(cmd.Action, cmd.RequestID); dup {
			if s.metrics != nil {
				s.metrics.DuplicatesCaught.WithLabelValues(cmd.Action, tier).Inc()
			}
			raw.Ack()
			return
		}
	}

	start := time.Now()
	err = s.dispatch(engine.WithRequestID(ctx, cmd.RequestID), cmd)
	if s.metrics != nil {
		s.metrics.OpDuration.WithLabelValues(cmd.Action).Observe(time.Since(start).Seconds())
		s.metrics.OpsTotal.WithLabelValues(cmd.Action).Inc()
	}

	switch {
	case err == nil:
		if s.deduper != nil {
			s.deduper.MarkProcessed(cmd.Action, cmd.RequestID)
		}
		raw.Ack()
	case engine.IsBusinessError(err):
		if s.metrics != nil {
			s.metrics.OpsRejected.WithLabelValues(cmd.Action, rejectReason(err)).Inc()
		}
		s.log.Warn().Err(err).
			Str("action", cmd.Action).
			Str("request_id", cmd.RequestID).
			Str("actor", cmd.Actor.Hex()).
			Msg("command rejected")
		raw.Ack()
	default:
		s.log.Error().Err(err).
			Str("action", cmd.Action).
			Str("request_id", cmd.RequestID).
			Msg("command failed, requesting redelivery")
		raw.Nak()
	}
}

func (s *Service) dispatch(ctx context.Context, cmd *Command) error {
	switch p := cmd.Params.(type) {
	case *CreateOrderParams:
		_, err := s.engine.OrderBook.CreateOrder(ctx, cmd.Actor, p.AssetID, p.Amount, p.Price)
		return err
	case *CancelOrderParams:
		return s.engine.OrderBook.CancelOrder(ctx, cmd.Actor, p.OrderID)
	case *ExecuteOrderParams:
		_, err := s.engine.OrderBook.ExecuteOrder(ctx, cmd.Actor, p.OrderID, p.Payment)
		return err
	case *BatchCancelOrdersParams:
		s.engine.OrderBook.BatchCancelOrders(ctx, cmd.Actor, p.OrderIDs)
		return nil
	case *CancelAllOrdersParams:
		_, err := s.engine.OrderBook.AdminCancelAllOrders(ctx, cmd.Actor)
		return err
	case *SetFeeRateParams:
		return s.engine.OrderBook.SetFeeRate(ctx, cmd.Actor, p.Bps)
	case *SetFeeReceiverParams:
		return s.engine.OrderBook.SetFeeReceiver(ctx, cmd.Actor, p.Receiver)
	case *SetMinTradeAmountParams:
		return s.engine.OrderBook.SetMinTradeAmount(ctx, cmd.Actor, p.Amount)
	case *SetMaxTradeAmountParams:
		return s.engine.OrderBook.SetMaxTradeAmount(ctx, cmd.Actor, p.Amount)
	case *SetCooldownPeriodParams:
		return s.engine.OrderBook.SetCooldownPeriod(ctx, cmd.Actor, time.Duration(p.Seconds)*time.Second)
	case *SetTradingPausedParams:
		return s.engine.OrderBook.SetTradingPaused(ctx, cmd.Actor, p.Paused)

	case *CreateDistributionParams:
		_, err := s.engine.Distributions.Create(ctx, cmd.Actor, p.AssetID, p.Amount, p.Currency, p.Description)
		return err
	case *CreateMerkleDistributionParams:
		_, err := s.engine.Distributions.CreateMerkle(ctx, cmd.Actor, p.Target, p.Amount, p.Currency, p.Description)
		return err
	case *UpdateMerkleRootParams:
		return s.engine.Distributions.UpdateMerkleRoot(ctx, cmd.Actor, p.DistributionID, p.Root)
	case *ActivateDistributionParams:
		return s.engine.Distributions.Activate(ctx, cmd.Actor, p.DistributionID)
	case *CancelDistributionParams:
		return s.engine.Distributions.Cancel(ctx, cmd.Actor, p.DistributionID)
	case *ClaimParams:
		_, err := s.engine.Distributions.Claim(ctx, cmd.Actor, p.DistributionID)
		return err
	case *WithdrawMerkleParams:
		return s.engine.Distributions.WithdrawMerkle(ctx, cmd.Actor, p.DistributionID, p.Amount, p.Proof)
	case *RecoverUnclaimedParams:
		return s.engine.Distributions.RecoverUnclaimed(ctx, cmd.Actor, p.DistributionID)
	case *SetClaimWindowParams:
		return s.engine.Distributions.SetClaimWindow(ctx, cmd.Actor, time.Duration(p.Seconds)*time.Second)

	case *CreateRedemptionParams:
		_, err := s.engine.Redemptions.Create(ctx, cmd.Actor, p.AssetID, p.Amount, p.Reason)
		return err
	case *ApproveRedemptionParams:
		return s.engine.Redemptions.Approve(ctx, cmd.Actor, p.RedemptionID)
	case *RejectRedemptionParams:
		return s.engine.Redemptions.Reject(ctx, cmd.Actor, p.RedemptionID, p.Reason)
	case *ExecuteRedemptionParams:
		return s.engine.Redemptions.Execute(ctx, cmd.Actor, p.RedemptionID)
	case *CancelRedemptionParams:
		return s.engine.Redemptions.Cancel(ctx, cmd.Actor, p.RedemptionID)
	case *SetRedemptionRateParams:
		return s.engine.Redemptions.SetRate(ctx, cmd.Actor, p.AssetID, p.RateBps)

	case *GrantRoleParams:
		return s.engine.Admin.GrantRole(ctx, cmd.Actor, p.Role, p.Account)
	case *RevokeRoleParams:
		return s.engine.Admin.RevokeRole(ctx, cmd.Actor, p.Role, p.Account)
	case *SetBlacklistedParams:
		return s.engine.Admin.SetBlacklisted(ctx, cmd.Actor, p.Account, p.Barred)
	case *RegisterAssetParams:
		return s.engine.Admin.RegisterAsset(ctx, cmd.Actor, p.AssetID, p.Group, p.Decimals)
	case *RegisterCurrencyParams:
		return s.engine.Admin.RegisterCurrency(ctx, cmd.Actor, p.Symbol, p.Decimals)
	case *IssueTokensParams:
		return s.engine.Admin.IssueTokens(ctx, cmd.Actor, p.Kind, p.TokenID, p.To, p.Amount)
	case *RetireTokensParams:
		return s.engine.Admin.RetireTokens(ctx, cmd.Actor, p.Kind, p.TokenID, p.From, p.Amount)
	case *SetAssetPausedParams:
		return s.engine.Admin.SetAssetPaused(ctx, cmd.Actor, p.AssetID, p.Paused)
	default:
		return fmt.Errorf("unhandled command action %q", cmd.Action)
	}
}

// rejectReason labels a business rejection for metrics.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, engine.ErrValidation):
		return "validation"
	case errors.Is(err, engine.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, engine.ErrState):
		return "state"
	case errors.Is(err, engine.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, engine.ErrProofVerification):
		return "proof"
	default:
		return "other"
	}
}
