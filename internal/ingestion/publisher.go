package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"AssetVault/internal/engine"
	"AssetVault/internal/observability"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// AuditPublisher mirrors sealed audit events onto JetStream for
// downstream consumers. Publishing is best effort; the Postgres event
// log stays the source of truth.
// Subjects follow the pattern rwa.audit.events.{event_type}.
type AuditPublisher struct {
	js      jetstream.JetStream
	input   <-chan engine.Output
	metrics *observability.Metrics
	log     zerolog.Logger
}

// auditEventJSON is the outbound wire form of one sealed envelope.
type auditEventJSON struct {
	Sequence    int64           `json:"sequence"`
	EventID     string          `json:"event_id"`
	RequestID   string          `json:"request_id,omitempty"`
	EventType   string          `json:"event_type"`
	Actor       string          `json:"actor"`
	EntityKind  string          `json:"entity_kind"`
	EntityID    string          `json:"entity_id"`
	TimestampUs int64           `json:"timestamp_us"`
	Payload     json.RawMessage `json:"payload"`
	StateHash   string          `json:"state_hash"`
	PrevHash    string          `json:"prev_hash"`
}

func NewAuditPublisher(js jetstream.JetStream, input <-chan engine.Output, metrics *observability.Metrics) *AuditPublisher {
	return &AuditPublisher{
		js:      js,
		input:   input,
		metrics: metrics,
		log:     observability.NewLogger("publisher"),
	}
}

// Run starts the outbound publisher loop.
func (p *AuditPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-p.input:
			if !ok {
				return nil
			}

			if err := p.publish(ctx, out); err != nil {
				// Non-fatal: consumers can read the event log directly.
				if p.metrics != nil {
					p.metrics.PublishErrors.Inc()
				}
				p.log.Warn().Err(err).
					Int64("sequence", out.Envelope.Sequence).
					Msg("outbound publish failed")
			}
		}
	}
}

func (p *AuditPublisher) publish(ctx context.Context, out engine.Output) error {
	env := out.Envelope
	eventType := env.EventType.String()

	data, err := json.Marshal(auditEventJSON{
		Sequence:    env.Sequence,
		EventID:     env.EventID.String(),
		RequestID:   env.RequestID,
		EventType:   eventType,
		Actor:       env.Actor.Hex(),
		EntityKind:  env.EntityKind,
		EntityID:    env.EntityID,
		TimestampUs: env.Timestamp.UnixMicro(),
		Payload:     json.RawMessage(env.Payload),
		StateHash:   common.Hash(env.StateHash).Hex(),
		PrevHash:    common.Hash(env.PrevHash).Hex(),
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	subject := fmt.Sprintf("rwa.audit.events.%s", eventType)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return err
	}

	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues(eventType).Inc()
	}
	return nil
}

// EnsureAuditStream creates the outbound audit stream.
func EnsureAuditStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "RWA_AUDIT",
		Subjects:  []string{"rwa.audit.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create audit stream: %w", err)
	}
	log := observability.NewLogger("nats")
	log.Info().Str("stream", "RWA_AUDIT").Msg("ensured stream")
	return nil
}
