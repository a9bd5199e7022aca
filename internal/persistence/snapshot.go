package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"AssetVault/internal/engine"
	"AssetVault/internal/event"

	"github.com/google/uuid"
)

// SnapshotManager persists engine state snapshots for warm restarts.
// A snapshot at sequence S captures the state after applying events
// 0..S-1; recovery loads it and replays the log from S.
type SnapshotManager struct {
	db *sql.DB
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot writes a captured state, unverified, and returns the
// serialized size. The caller marks it verified once the durable log
// has caught up to the snapshot sequence; a snapshot ahead of the log
// would replay from a gap.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, state *engine.State) (int, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	tip, err := state.PrevHashBytes()
	if err != nil {
		return 0, fmt.Errorf("snapshot chain tip: %w", err)
	}

	snapshotID := uuid.New()
	formatVersion := int32(1) // v1: JSON-encoded engine.State

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6, verified = FALSE
	`, snapshotID, state.Sequence, string(data), tip[:], formatVersion, len(data), time.Now().UTC())

	return len(data), err
}

// MarkVerified flags a snapshot as safe to restore from.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil
// when the platform must cold-start from the full log.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*engine.State, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var state engine.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &state, nil
}

// LoadEventsFrom pages events from a given sequence for replay.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_id, request_id, event_type, actor, entity_kind, entity_id,
		       payload, state_hash, prev_hash, timestamp
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var requestID sql.NullString
		if err := rows.Scan(
			&e.Sequence, &e.EventID, &requestID, &e.EventType, &e.Actor,
			&e.EntityKind, &e.EntityID, &e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		e.RequestID = requestID.String
		events = append(events, e)
	}

	return events, rows.Err()
}

// LoadOutputsFrom pages decoded outputs for replay and projection
// rebuilds.
func (sm *SnapshotManager) LoadOutputsFrom(ctx context.Context, fromSequence int64, limit int) ([]engine.Output, error) {
	rows, err := sm.LoadEventsFrom(ctx, fromSequence, limit)
	if err != nil {
		return nil, err
	}

	outs := make([]engine.Output, 0, len(rows))
	for _, r := range rows {
		env, err := r.Envelope()
		if err != nil {
			return nil, err
		}
		p, err := event.DecodePayload(env.EventType, env.Payload)
		if err != nil {
			return nil, fmt.Errorf("sequence %d: %w", env.Sequence, err)
		}
		outs = append(outs, engine.Output{Envelope: env, Payload: p})
	}
	return outs, nil
}

// GetLatestSequence returns the highest sequence in the event log, or
// -1 when the log is empty.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}
