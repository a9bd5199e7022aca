package engine_test

import (
	"testing"
	"time"

	"AssetVault/internal/engine"
	"AssetVault/internal/event"
)

var sealTime = time.Unix(1_750_000_000, 0)

func sealThree(rec *engine.Recorder) []*event.Envelope {
	envs := make([]*event.Envelope, 3)
	envs[0] = rec.Record(rootAdmin, "req-1", sealTime, &event.RoleGranted{Role: "manager", Account: carol})
	envs[1] = rec.Record(rootAdmin, "req-2", sealTime, &event.RoleGranted{Role: "operator", Account: dave})
	envs[2] = rec.Record(rootAdmin, "", sealTime, &event.BlacklistUpdated{Account: bob, Barred: true})
	return envs
}

// ============================================================================
// Hash chain
// ============================================================================

func TestRecorder_ChainLinks(t *testing.T) {
	rec := engine.NewRecorder(0, nil, nil, nil, nil)
	envs := sealThree(rec)

	if envs[0].Sequence != 0 || envs[1].Sequence != 1 || envs[2].Sequence != 2 {
		t.Errorf("sequences: %d %d %d", envs[0].Sequence, envs[1].Sequence, envs[2].Sequence)
	}
	if envs[0].PrevHash != engine.GenesisHash() {
		t.Error("first event must link to the genesis hash")
	}
	for i := 1; i < len(envs); i++ {
		if envs[i].PrevHash != envs[i-1].StateHash {
			t.Errorf("event %d does not link to its predecessor", i)
		}
	}
	if rec.Sequence() != 3 {
		t.Errorf("next sequence: got %d, want 3", rec.Sequence())
	}
	if rec.ChainTip() != envs[2].StateHash {
		t.Error("chain tip must be the last state hash")
	}
	if envs[0].EventID == envs[1].EventID {
		t.Error("event ids must be unique")
	}
}

func TestRecorder_VerifyEnvelope(t *testing.T) {
	rec := engine.NewRecorder(0, nil, nil, nil, nil)
	envs := sealThree(rec)

	prev := engine.GenesisHash()
	for i, env := range envs {
		if err := engine.VerifyEnvelope(env, prev); err != nil {
			t.Fatalf("verify %d: %v", i, err)
		}
		prev = env.StateHash
	}

	// A flipped payload byte no longer hashes to the sealed value.
	tampered := *envs[0]
	tampered.Payload = append([]byte(nil), envs[0].Payload...)
	tampered.Payload[0] ^= 0xFF
	if err := engine.VerifyEnvelope(&tampered, engine.GenesisHash()); err == nil {
		t.Error("tampered payload must fail verification")
	}

	// A reordered actor fails the same way.
	tampered = *envs[0]
	tampered.Actor = dave
	if err := engine.VerifyEnvelope(&tampered, engine.GenesisHash()); err == nil {
		t.Error("tampered actor must fail verification")
	}

	if err := engine.VerifyEnvelope(envs[1], engine.GenesisHash()); err == nil {
		t.Error("wrong prev hash must fail verification")
	}
}

func TestRecorder_RestoreChain(t *testing.T) {
	rec := engine.NewRecorder(0, nil, nil, nil, nil)
	tip := sealThree(rec)[2].StateHash

	resumed := engine.NewRecorder(0, nil, nil, nil, nil)
	resumed.RestoreChain(3, tip)

	env := resumed.Record(rootAdmin, "", sealTime, &event.RoleGranted{Role: "operator", Account: alice})
	if env.Sequence != 3 {
		t.Errorf("sequence after restore: got %d, want 3", env.Sequence)
	}
	if env.PrevHash != tip {
		t.Error("restored recorder must link to the provided tip")
	}
	if err := engine.VerifyEnvelope(env, tip); err != nil {
		t.Errorf("verify resumed: %v", err)
	}
}

// ============================================================================
// Fan-out
// ============================================================================

func TestRecorder_FanOut_DropsSecondaryWhenFull(t *testing.T) {
	persist := make(chan engine.Output, 8)
	projection := make(chan engine.Output, 1)
	publish := make(chan engine.Output, 1)
	rec := engine.NewRecorder(0, persist, projection, publish, nil)

	sealThree(rec)

	// The persist channel holds everything; the bounded side channels
	// keep only what fit.
	if got := len(persist); got != 3 {
		t.Errorf("persist: got %d, want 3", got)
	}
	if got := len(projection); got != 1 {
		t.Errorf("projection: got %d, want 1", got)
	}
	if got := len(publish); got != 1 {
		t.Errorf("publish: got %d, want 1", got)
	}

	out := <-projection
	if out.Envelope.Sequence != 0 {
		t.Errorf("projection kept seq %d, want 0", out.Envelope.Sequence)
	}
	if out.Payload.EventType() != event.EventTypeRoleGranted {
		t.Errorf("payload type: got %s", out.Payload.EventType())
	}
}
