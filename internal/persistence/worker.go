package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"AssetVault/internal/engine"
	"AssetVault/internal/observability"

	"github.com/rs/zerolog"
)

// Worker drains the recorder's persist channel and batch-writes the
// audit log. The persist channel uses blocking sends, so when this
// worker falls behind the engines stall instead of losing facts.
type Worker struct {
	writer       *Writer
	input        <-chan engine.Output
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewWorker(
	db *sql.DB,
	input <-chan engine.Output,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       NewWriter(db),
		input:        input,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          observability.NewLogger("persistence"),
	}
}

// Run batches incoming outputs and flushes when the batch fills or the
// flush timer fires. Blocks until ctx is cancelled or the input channel
// closes; the tail batch is flushed on the way out.
func (w *Worker) Run(ctx context.Context) error {
	events := make([]EventRow, 0, w.batchSize)
	idems := make([]IdempotencyRow, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(events) > 0 {
				if err := w.flush(context.Background(), events, idems); err != nil {
					w.log.Error().Err(err).Int("events", len(events)).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case out, ok := <-w.input:
			if !ok {
				if len(events) > 0 {
					if err := w.flush(context.Background(), events, idems); err != nil {
						w.log.Error().Err(err).Int("events", len(events)).Msg("final flush failed")
					}
				}
				return nil
			}

			events = append(events, RowFromOutput(out))
			if req := out.Envelope.RequestID; req != "" {
				idems = append(idems, IdempotencyRow{
					RequestID: req,
					Command:   out.Envelope.EventType.String(),
					Sequence:  out.Envelope.Sequence,
				})
			}

			if len(events) >= w.batchSize {
				if err := w.flushWithRetry(ctx, events, idems); err != nil {
					w.log.Error().Err(err).Msg("batch flush abandoned")
				}
				events = events[:0]
				idems = idems[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(events) > 0 {
				if err := w.flushWithRetry(ctx, events, idems); err != nil {
					w.log.Error().Err(err).Msg("timer flush abandoned")
				}
				events = events[:0]
				idems = idems[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries failed flushes with exponential backoff. The
// worker never drops a batch: it retries until the write lands or the
// context is cancelled, and on cancellation makes one last attempt
// with a background context so the tail of the log survives shutdown.
func (w *Worker) flushWithRetry(ctx context.Context, events []EventRow, idems []IdempotencyRow) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("events", len(events)).
				Msg("retrying batch flush")
			if w.metrics != nil {
				w.metrics.PersistRetries.Inc()
			}
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), events, idems); err != nil {
					return fmt.Errorf("final flush on shutdown: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, events, idems)
		if err == nil {
			if attempt > 0 {
				w.log.Info().Int("attempts", attempt).Msg("batch flush recovered")
			}
			return nil
		}
	}
}

// flush writes the event rows and their idempotency keys in a single
// transaction.
func (w *Worker) flush(ctx context.Context, events []EventRow, idems []IdempotencyRow) error {
	start := time.Now()

	tx, err := w.writer.db.BeginTx(ctx, nil)
	if err != nil {
		w.countError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteEventBatch(ctx, tx, events); err != nil {
		w.countError("write_events")
		return err
	}
	if err := w.writer.WriteIdempotencyBatch(ctx, tx, idems); err != nil {
		w.countError("write_idempotency")
		return err
	}
	if err := tx.Commit(); err != nil {
		w.countError("tx_commit")
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDuration.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(len(events)))
		w.metrics.EventsPersisted.Add(float64(len(events)))
		if len(events) > 0 {
			w.metrics.PersistLastSequence.Set(float64(events[len(events)-1].Sequence))
		}
	}
	return nil
}

func (w *Worker) countError(stage string) {
	if w.metrics != nil {
		w.metrics.PersistErrors.WithLabelValues(stage).Inc()
	}
}
