package ingestion_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"AssetVault/internal/access"
	"AssetVault/internal/engine"
	"AssetVault/internal/event"
	"AssetVault/internal/ingestion"
	"AssetVault/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
)

func addr(n byte) common.Address {
	var a common.Address
	a[19] = n
	return a
}

var (
	admin  = addr(0xA0)
	seller = addr(0x01)
)

// svcFixture wires a real embedded engine behind the service so the
// ack/nak policy is tested against actual business outcomes.
type svcFixture struct {
	svc     *ingestion.Service
	eng     *engine.Engine
	persist chan engine.Output
	acked   int
	naked   int
}

func newSvcFixture(t *testing.T) *svcFixture {
	t.Helper()

	f := &svcFixture{persist: make(chan engine.Output, 1024)}
	rec := engine.NewRecorder(0, f.persist, nil, nil, nil)
	accounts := engine.NewAccounts(addr(0xB0), addr(0xB1), addr(0xB2), addr(0xB3))
	f.eng = engine.New(rec, access.NewStore(), ledger.NewMemRegistry(), accounts, "USD", admin)

	ctx := context.Background()
	if err := f.eng.Admin.RegisterAsset(ctx, admin, "ESTATE-1", "estates", 6); err != nil {
		t.Fatalf("register asset: %v", err)
	}
	if err := f.eng.Admin.RegisterCurrency(ctx, admin, "USD", 2); err != nil {
		t.Fatalf("register currency: %v", err)
	}
	if err := f.eng.Admin.IssueTokens(ctx, admin, event.TokenKindAsset, "ESTATE-1", seller, 10_000); err != nil {
		t.Fatalf("issue tokens: %v", err)
	}
	f.drain()

	f.svc = ingestion.NewService(f.eng, engine.NewDeduper(128, nil), nil, nil)
	return f
}

func (f *svcFixture) raw(t *testing.T, v map[string]interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() { f.acked++ },
		NakFunc:   func() { f.naked++ },
	}
}

// drain empties the persist channel and returns the sealed outputs.
func (f *svcFixture) drain() []engine.Output {
	var outs []engine.Output
	for {
		select {
		case out := <-f.persist:
			outs = append(outs, out)
		default:
			return outs
		}
	}
}

// ============================================================================
// Dispatch outcomes
// ============================================================================

func TestService_Handle_AppliesCommand(t *testing.T) {
	f := newSvcFixture(t)

	f.svc.Handle(context.Background(), f.raw(t, map[string]interface{}{
		"request_id": "req-1",
		"actor":      seller.Hex(),
		"action":     "create_order",
		"params": map[string]interface{}{
			"asset_id": "ESTATE-1",
			"amount":   int64(1_000),
			"price":    int64(2_500),
		},
	}))

	if f.acked != 1 || f.naked != 0 {
		t.Fatalf("delivery: acked=%d naked=%d, want 1/0", f.acked, f.naked)
	}
	if ids := f.eng.OrderBook.ActiveOrderIDs(); len(ids) != 1 {
		t.Fatalf("active orders: got %d, want 1", len(ids))
	}

	outs := f.drain()
	if len(outs) != 1 {
		t.Fatalf("sealed events: got %d, want 1", len(outs))
	}
	env := outs[0].Envelope
	if env.EventType != event.EventTypeOrderCreated {
		t.Errorf("event type: got %s", env.EventType)
	}
	if env.RequestID != "req-1" {
		t.Errorf("request id not stamped on envelope: got %q", env.RequestID)
	}
}

func TestService_Handle_DuplicateAcked(t *testing.T) {
	f := newSvcFixture(t)

	order := map[string]interface{}{
		"request_id": "req-dup",
		"actor":      seller.Hex(),
		"action":     "create_order",
		"params": map[string]interface{}{
			"asset_id": "ESTATE-1",
			"amount":   int64(1_000),
			"price":    int64(2_500),
		},
	}

	f.svc.Handle(context.Background(), f.raw(t, order))
	f.svc.Handle(context.Background(), f.raw(t, order))

	if f.acked != 2 || f.naked != 0 {
		t.Fatalf("delivery: acked=%d naked=%d, want 2/0", f.acked, f.naked)
	}
	// The replay is settled without touching the engine.
	if ids := f.eng.OrderBook.ActiveOrderIDs(); len(ids) != 1 {
		t.Fatalf("active orders: got %d, want 1", len(ids))
	}
	if outs := f.drain(); len(outs) != 1 {
		t.Fatalf("sealed events: got %d, want 1", len(outs))
	}
}

func TestService_Handle_BusinessRejectionAcked(t *testing.T) {
	f := newSvcFixture(t)

	// Unknown asset is a validation rejection: final, so acked.
	f.svc.Handle(context.Background(), f.raw(t, map[string]interface{}{
		"request_id": "req-bad",
		"actor":      seller.Hex(),
		"action":     "create_order",
		"params": map[string]interface{}{
			"asset_id": "NO-SUCH-ASSET",
			"amount":   int64(1_000),
			"price":    int64(2_500),
		},
	}))

	if f.acked != 1 || f.naked != 0 {
		t.Fatalf("delivery: acked=%d naked=%d, want 1/0", f.acked, f.naked)
	}
	if outs := f.drain(); len(outs) != 0 {
		t.Fatalf("rejected command sealed %d events", len(outs))
	}
}

func TestService_Handle_UnauthorizedAcked(t *testing.T) {
	f := newSvcFixture(t)

	f.svc.Handle(context.Background(), f.raw(t, map[string]interface{}{
		"request_id": "req-unauth",
		"actor":      seller.Hex(),
		"action":     "set_fee_rate",
		"params":     map[string]interface{}{"bps": int64(50)},
	}))

	if f.acked != 1 || f.naked != 0 {
		t.Fatalf("delivery: acked=%d naked=%d, want 1/0", f.acked, f.naked)
	}
}

func TestService_Handle_MalformedAcked(t *testing.T) {
	f := newSvcFixture(t)

	raw := ingestion.RawEvent{
		Subject: "test",
		Data:    []byte(`{not json`),
		AckFunc: func() { f.acked++ },
		NakFunc: func() { f.naked++ },
	}
	f.svc.Handle(context.Background(), raw)

	if f.acked != 1 || f.naked != 0 {
		t.Fatalf("delivery: acked=%d naked=%d, want 1/0", f.acked, f.naked)
	}
}

// ============================================================================
// Rejected commands never mark the request id as processed
// ============================================================================

func TestService_Handle_RejectionDoesNotConsumeRequestID(t *testing.T) {
	f := newSvcFixture(t)

	// First attempt fails validation; a retry with the same request id
	// and corrected params must go through.
	f.svc.Handle(context.Background(), f.raw(t, map[string]interface{}{
		"request_id": "req-retry",
		"actor":      seller.Hex(),
		"action":     "create_order",
		"params": map[string]interface{}{
			"asset_id": "ESTATE-1",
			"amount":   int64(-5),
			"price":    int64(2_500),
		},
	}))
	f.svc.Handle(context.Background(), f.raw(t, map[string]interface{}{
		"request_id": "req-retry",
		"actor":      seller.Hex(),
		"action":     "create_order",
		"params": map[string]interface{}{
			"asset_id": "ESTATE-1",
			"amount":   int64(500),
			"price":    int64(2_500),
		},
	}))

	if ids := f.eng.OrderBook.ActiveOrderIDs(); len(ids) != 1 {
		t.Fatalf("active orders: got %d, want 1", len(ids))
	}
}

// ============================================================================
// Local submission
// ============================================================================

func TestSubmitter_RoundTrip(t *testing.T) {
	f := newSvcFixture(t)

	commands := make(chan ingestion.RawEvent, 1)
	sub := ingestion.NewSubmitter(commands)

	ctx := context.Background()
	if err := sub.SubmitRegisterAsset(ctx, admin, "VILLA-9", "estates", 6); err != nil {
		t.Fatalf("submit: %v", err)
	}

	raw := <-commands
	f.svc.Handle(ctx, raw)

	if _, ok := f.eng.Registry.Asset("VILLA-9"); !ok {
		t.Fatal("submitted registration did not reach the registry")
	}
}

func TestSubmitter_GeneratesRequestID(t *testing.T) {
	commands := make(chan ingestion.RawEvent, 1)
	sub := ingestion.NewSubmitter(commands)

	if err := sub.SubmitGrantRole(context.Background(), admin, "operator", seller); err != nil {
		t.Fatalf("submit: %v", err)
	}

	raw := <-commands
	cmd, err := ingestion.ParseCommand(raw.Data)
	if err != nil {
		t.Fatalf("parse submitted frame: %v", err)
	}
	if cmd.RequestID == "" {
		t.Fatal("submitter must stamp a request id")
	}
	if cmd.Action != ingestion.ActionGrantRole {
		t.Errorf("action: got %s, want %s", cmd.Action, ingestion.ActionGrantRole)
	}
}
