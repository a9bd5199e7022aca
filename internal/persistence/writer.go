package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"AssetVault/internal/engine"
	"AssetVault/internal/event"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// querier is satisfied by *sql.DB and *sql.Tx so the batch writers can
// run inside the worker's transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Writer builds the batch inserts for the audit log. Multi-row INSERT
// keeps it portable across drivers; switch to pgx CopyFrom if batch
// sizes outgrow it.
type Writer struct {
	db *sql.DB
}

func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// EventRow is a row of event_log.events.
type EventRow struct {
	Sequence   int64
	EventID    uuid.UUID
	RequestID  string
	EventType  string
	Actor      string
	EntityKind string
	EntityID   string
	Payload    []byte
	StateHash  []byte
	PrevHash   []byte
	Timestamp  time.Time
}

// IdempotencyRow is a row of event_log.idempotency. The request id is
// the primary key; command and sequence are informational.
type IdempotencyRow struct {
	RequestID string
	Command   string
	Sequence  int64
}

// RowFromOutput flattens a sealed output into its storage row.
func RowFromOutput(out engine.Output) EventRow {
	env := out.Envelope
	return EventRow{
		Sequence:   env.Sequence,
		EventID:    env.EventID,
		RequestID:  env.RequestID,
		EventType:  env.EventType.String(),
		Actor:      env.Actor.Hex(),
		EntityKind: env.EntityKind,
		EntityID:   env.EntityID,
		Payload:    env.Payload,
		StateHash:  env.StateHash[:],
		PrevHash:   env.PrevHash[:],
		Timestamp:  env.Timestamp,
	}
}

// Envelope rebuilds the in-memory envelope from a stored row, for
// replay and integrity walks.
func (r EventRow) Envelope() (*event.Envelope, error) {
	et, ok := event.ParseEventType(r.EventType)
	if !ok {
		return nil, fmt.Errorf("sequence %d: unknown event type %q", r.Sequence, r.EventType)
	}
	if !common.IsHexAddress(r.Actor) {
		return nil, fmt.Errorf("sequence %d: malformed actor %q", r.Sequence, r.Actor)
	}

	env := &event.Envelope{
		Sequence:   r.Sequence,
		EventID:    r.EventID,
		RequestID:  r.RequestID,
		EventType:  et,
		Actor:      common.HexToAddress(r.Actor),
		EntityKind: r.EntityKind,
		EntityID:   r.EntityID,
		Timestamp:  r.Timestamp,
		Payload:    r.Payload,
	}
	if len(r.StateHash) != len(env.StateHash) || len(r.PrevHash) != len(env.PrevHash) {
		return nil, fmt.Errorf("sequence %d: hash columns are %d/%d bytes", r.Sequence, len(r.StateHash), len(r.PrevHash))
	}
	copy(env.StateHash[:], r.StateHash)
	copy(env.PrevHash[:], r.PrevHash)
	return env, nil
}

// WriteEventBatch appends rows to event_log.events with one multi-row
// INSERT. ON CONFLICT DO NOTHING makes a retried batch idempotent.
func (w *Writer) WriteEventBatch(ctx context.Context, q querier, rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, event_id, request_id, event_type, actor, entity_kind, entity_id, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*11)

	for i, r := range rows {
		base := i * 11
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10, base+11,
		))
		// Payload goes over the wire as text: the column is json, which
		// keeps the stored bytes identical to the hashed bytes.
		args = append(args,
			r.Sequence, r.EventID, nullIfEmpty(r.RequestID), r.EventType, r.Actor,
			r.EntityKind, r.EntityID, string(r.Payload), r.StateHash, r.PrevHash, r.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := q.ExecContext(ctx, query, args...)
	return err
}

// WriteIdempotencyBatch appends request keys to event_log.idempotency.
// A request that sealed several events inserts once; the conflict
// clause swallows the rest.
func (w *Writer) WriteIdempotencyBatch(ctx context.Context, q querier, rows []IdempotencyRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.idempotency (request_id, command, sequence) VALUES `

	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*3)

	for i, r := range rows {
		base := i * 3
		values = append(values, fmt.Sprintf("($%d, $%d, $%d)", base+1, base+2, base+3))
		args = append(args, r.RequestID, r.Command, r.Sequence)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (request_id) DO NOTHING"

	_, err := q.ExecContext(ctx, query, args...)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
