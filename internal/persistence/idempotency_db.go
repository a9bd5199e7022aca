package persistence

import (
	"context"
	"database/sql"
	"time"
)

// DedupeStore answers duplicate checks from the durable idempotency
// table. It is the slow tier behind the in-memory LRU in
// engine.Deduper, consulted only for keys that aged out of it.
type DedupeStore struct {
	db *sql.DB
}

func NewDedupeStore(db *sql.DB) *DedupeStore {
	return &DedupeStore{db: db}
}

// IsDuplicate reports whether the request id was ever sealed into the
// log. Request ids are unique across commands, so the command argument
// does not narrow the lookup. The query is bounded so a slow database
// degrades to "not a duplicate" instead of stalling ingestion.
func (s *DedupeStore) IsDuplicate(command, requestID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM event_log.idempotency WHERE request_id = $1 LIMIT 1`,
		requestID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecentKeys returns the newest composite dedupe keys, oldest first,
// for warming the LRU after a restart.
func (s *DedupeStore) RecentKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT command, request_id FROM event_log.idempotency
		ORDER BY sequence DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var command, requestID string
		if err := rows.Scan(&command, &requestID); err != nil {
			return nil, err
		}
		keys = append(keys, command+":"+requestID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The query returned newest first; WarmFromKeys wants newest last
	// so eviction order matches age.
	for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
		keys[i], keys[j] = keys[j], keys[i]
	}
	return keys, nil
}
