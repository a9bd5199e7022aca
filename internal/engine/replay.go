package engine

import (
	"fmt"

	"AssetVault/internal/event"
)

// Apply replays one recorded fact into engine state. Replay re-applies
// ledger movements and entity transitions exactly as recorded, with no
// authorization, validation or re-emission. Errors mean the log and the
// state diverged and recovery must stop.
func (e *Engine) Apply(env *event.Envelope) error {
	p, err := event.DecodePayload(env.EventType, env.Payload)
	if err != nil {
		return fmt.Errorf("apply seq %d: %w", env.Sequence, err)
	}

	switch p := p.(type) {
	case *event.OrderCreated:
		return e.OrderBook.applyOrderCreated(p)
	case *event.OrderCancelled:
		return e.OrderBook.applyOrderCancelled(p)
	case *event.OrderExecuted:
		return e.OrderBook.applyOrderExecuted(p)

	case *event.DistributionCreated:
		return e.Distributions.applyCreated(p)
	case *event.MerkleRootUpdated:
		return e.Distributions.applyRootUpdated(p)
	case *event.DistributionActivated:
		return e.Distributions.applyActivated(p, env.Timestamp)
	case *event.DistributionCancelled:
		return e.Distributions.applyCancelled(p)
	case *event.DistributionClaimed:
		return e.Distributions.applyClaimed(p)
	case *event.MerkleWithdrawn:
		return e.Distributions.applyWithdrawn(p)
	case *event.DistributionCompleted:
		return e.Distributions.applyCompleted(p)
	case *event.DistributionRecovered:
		return e.Distributions.applyRecovered(p)

	case *event.RedemptionCreated:
		return e.Redemptions.applyCreated(p)
	case *event.RedemptionApproved:
		return e.Redemptions.applyApproved(p, env.Timestamp)
	case *event.RedemptionRejected:
		return e.Redemptions.applyRejected(p, env.Timestamp)
	case *event.RedemptionExecuted:
		return e.Redemptions.applyExecuted(p, env.Timestamp)
	case *event.RedemptionCancelled:
		return e.Redemptions.applyCancelled(p, env.Timestamp)

	case *event.RoleGranted:
		return e.Admin.applyRoleGranted(p)
	case *event.RoleRevoked:
		return e.Admin.applyRoleRevoked(p)
	case *event.BlacklistUpdated:
		return e.Admin.applyBlacklistUpdated(p)
	case *event.AssetRegistered:
		return e.Admin.applyAssetRegistered(p)
	case *event.CurrencyRegistered:
		return e.Admin.applyCurrencyRegistered(p)
	case *event.TokensIssued:
		return e.Admin.applyTokensIssued(p)
	case *event.TokensRetired:
		return e.Admin.applyTokensRetired(p)
	case *event.AssetPauseSet:
		return e.Admin.applyAssetPauseSet(p)

	case *event.ParamsUpdated:
		switch p.Scope {
		case event.ParamScopeOrderBook:
			return e.OrderBook.applyTradingParam(p)
		case event.ParamScopeDistribution:
			return e.Distributions.applyParam(p)
		case event.ParamScopeRedemption:
			return e.Redemptions.applyParam(p)
		default:
			return fmt.Errorf("apply seq %d: unknown param scope %q", env.Sequence, p.Scope)
		}

	default:
		return fmt.Errorf("apply seq %d: unhandled event type %s", env.Sequence, env.EventType)
	}
}

// VerifyEnvelope recomputes the state hash from the envelope contents
// and checks it links to prevHash. A mismatch means the stored log was
// altered or reordered.
func VerifyEnvelope(env *event.Envelope, prevHash [32]byte) error {
	if env.PrevHash != prevHash {
		return fmt.Errorf("seq %d: prev hash mismatch", env.Sequence)
	}
	h := NewStateHasher()
	h.SetPrevHash(prevHash)
	want := h.ComputeHash(env.Sequence, canonicalEventBytes(env.EventType, env.EntityKind, env.EntityID, env.Actor, env.Timestamp, env.Payload))
	if env.StateHash != want {
		return fmt.Errorf("seq %d: state hash mismatch", env.Sequence)
	}
	return nil
}

// Replayer streams recorded facts back through the engines in order,
// verifying the hash chain as it goes. Feed every envelope after the
// snapshot, then Finish to position the recorder for live operation.
type Replayer struct {
	engine   *Engine
	nextSeq  int64
	prevHash [32]byte
	count    int64
}

// NewReplayer resumes the chain at startSeq linking to prevHash, both
// taken from the snapshot (or sequence 0 and the genesis hash for a
// cold start).
func NewReplayer(e *Engine, startSeq int64, prevHash [32]byte) *Replayer {
	return &Replayer{engine: e, nextSeq: startSeq, prevHash: prevHash}
}

// GenesisHash is the chain tip before any event is recorded.
func GenesisHash() [32]byte {
	return NewStateHasher().GetPrevHash()
}

func (r *Replayer) Feed(env *event.Envelope) error {
	if env.Sequence != r.nextSeq {
		return fmt.Errorf("replay: sequence gap: got %d, want %d", env.Sequence, r.nextSeq)
	}
	if err := VerifyEnvelope(env, r.prevHash); err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if err := r.engine.Apply(env); err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	r.prevHash = env.StateHash
	r.nextSeq++
	r.count++
	return nil
}

// Count returns how many envelopes were fed.
func (r *Replayer) Count() int64 {
	return r.count
}

// Finish positions the recorder to seal the next live event after the
// last replayed one.
func (r *Replayer) Finish() {
	r.engine.Recorder.RestoreChain(r.nextSeq, r.prevHash)
}
