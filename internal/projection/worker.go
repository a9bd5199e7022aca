package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"AssetVault/internal/engine"
	"AssetVault/internal/event"
	"AssetVault/internal/observability"

	"github.com/rs/zerolog"
)

// Worker maintains the read models in the projections schema from the
// recorder's projection channel. The channel drops when full, so the
// tables here are eventually consistent; Rebuild recovers any gap from
// the event log.
type Worker struct {
	db      *sql.DB
	input   <-chan engine.Output
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewWorker(db *sql.DB, input <-chan engine.Output, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:      db,
		input:   input,
		metrics: metrics,
		log:     observability.NewLogger("projection"),
	}
}

// Run applies events until ctx is cancelled or the input channel
// closes. A failed update is logged and skipped; the watermark gap
// tells the operator to rebuild.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-w.input:
			if !ok {
				return nil
			}
			if err := w.Apply(ctx, out); err != nil {
				w.log.Warn().
					Err(err).
					Int64("sequence", out.Envelope.Sequence).
					Str("event_type", out.Envelope.EventType.String()).
					Msg("projection update failed")
			}
		}
	}
}

// Apply updates the affected read model and the watermark in one
// transaction. Sequence guards on every statement make reapplying an
// already-projected event a no-op, so replays and rebuilds are safe.
func (w *Worker) Apply(ctx context.Context, out engine.Output) error {
	env := out.Envelope
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	table, err := w.applyPayload(ctx, tx, env, out.Payload)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
			WHERE projections.watermark.last_sequence < $1
	`, env.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if w.metrics != nil {
		if table != "" {
			w.metrics.ProjectionApplied.WithLabelValues(table).Inc()
			w.metrics.ProjectionUpdateDuration.WithLabelValues(table).Observe(time.Since(start).Seconds())
		}
		w.metrics.ProjectionLastSequence.Set(float64(env.Sequence))
	}
	return nil
}

// applyPayload routes an event to its read model and names the table
// touched. Access and registry events have no read model here; the
// query service answers those from the engine directly.
func (w *Worker) applyPayload(ctx context.Context, tx *sql.Tx, env *event.Envelope, p event.Payload) (string, error) {
	switch p := p.(type) {
	case *event.OrderCreated:
		return "orders", w.orderCreated(ctx, tx, env, p)
	case *event.OrderCancelled:
		return "orders", w.orderCancelled(ctx, tx, env, p)
	case *event.OrderExecuted:
		return "trades", w.orderExecuted(ctx, tx, env, p)

	case *event.DistributionCreated:
		return "distributions", w.distributionCreated(ctx, tx, env, p)
	case *event.MerkleRootUpdated:
		return "distributions", w.merkleRootUpdated(ctx, tx, env, p)
	case *event.DistributionActivated:
		return "distributions", w.distributionActivated(ctx, tx, env, p)
	case *event.DistributionCancelled:
		return "distributions", w.distributionClosed(ctx, tx, env, p.DistributionID, "cancelled")
	case *event.DistributionClaimed:
		return "claims", w.claimRecorded(ctx, tx, env, p.DistributionID, p.Account.Hex(), p.Amount, &p.BalanceAt, event.DistributionKindSnapshot, p.Remaining)
	case *event.MerkleWithdrawn:
		return "claims", w.claimRecorded(ctx, tx, env, p.DistributionID, p.Account.Hex(), p.Amount, nil, event.DistributionKindMerkle, p.Remaining)
	case *event.DistributionCompleted:
		return "distributions", w.distributionClosed(ctx, tx, env, p.DistributionID, "completed")
	case *event.DistributionRecovered:
		return "distributions", w.distributionRecovered(ctx, tx, env, p)

	case *event.RedemptionCreated:
		return "redemptions", w.redemptionCreated(ctx, tx, env, p)
	case *event.RedemptionApproved:
		return "redemptions", w.redemptionStatus(ctx, tx, env, p.RedemptionID, "approved", false)
	case *event.RedemptionRejected:
		return "redemptions", w.redemptionRejected(ctx, tx, env, p)
	case *event.RedemptionExecuted:
		return "redemptions", w.redemptionExecuted(ctx, tx, env, p)
	case *event.RedemptionCancelled:
		return "redemptions", w.redemptionStatus(ctx, tx, env, p.RedemptionID, "cancelled", true)

	default:
		return "", nil
	}
}

// ==== orders ====

func (w *Worker) orderCreated(ctx context.Context, tx *sql.Tx, env *event.Envelope, p *event.OrderCreated) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.orders
			(order_id, seller, asset_id, amount, price, currency, status, created_at, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, 'active', $7, $8)
		ON CONFLICT (order_id) DO NOTHING
	`, p.OrderID, p.Seller.Hex(), p.AssetID, p.Amount, p.Price, p.Currency,
		time.UnixMicro(p.CreatedAtUs).UTC(), env.Sequence)
	return err
}

func (w *Worker) orderCancelled(ctx context.Context, tx *sql.Tx, env *event.Envelope, p *event.OrderCancelled) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE projections.orders
		SET status = 'cancelled', close_reason = $2, closed_at = $3, last_sequence = $4
		WHERE order_id = $1 AND last_sequence < $4
	`, p.OrderID, p.Reason, env.Timestamp, env.Sequence)
	return err
}

func (w *Worker) orderExecuted(ctx context.Context, tx *sql.Tx, env *event.Envelope, p *event.OrderExecuted) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE projections.orders
		SET status = 'executed', closed_at = $2, last_sequence = $3
		WHERE order_id = $1 AND last_sequence < $3
	`, p.OrderID, time.UnixMicro(p.ExecutedAtUs).UTC(), env.Sequence); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.trades
			(trade_id, order_id, buyer, seller, asset_id, amount, price, gross, fee, currency, executed_at, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (trade_id) DO NOTHING
	`, p.TradeID, p.OrderID, p.Buyer.Hex(), p.Seller.Hex(), p.AssetID,
		p.Amount, p.Price, p.Gross, p.Fee, p.Currency,
		time.UnixMicro(p.ExecutedAtUs).UTC(), env.Sequence)
	return err
}

// ==== distributions ====

func (w *Worker) distributionCreated(ctx context.Context, tx *sql.Tx, env *event.Envelope, p *event.DistributionCreated) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.distributions
			(distribution_id, kind, asset_id, funder, amount, remaining, total_claimed,
			 currency, description, status, snapshot_ref, created_at, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $5, 0, $6, NULLIF($7, ''), 'created', $8, $9, $10)
		ON CONFLICT (distribution_id) DO NOTHING
	`, p.DistributionID, p.Kind, p.AssetID, p.Funder.Hex(), p.Amount,
		p.Currency, p.Description, p.SnapshotID,
		time.UnixMicro(p.CreatedAtUs).UTC(), env.Sequence)
	return err
}

func (w *Worker) merkleRootUpdated(ctx context.Context, tx *sql.Tx, env *event.Envelope, p *event.MerkleRootUpdated) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE projections.distributions
		SET merkle_root = $2, last_sequence = $3
		WHERE distribution_id = $1 AND last_sequence < $3
	`, p.DistributionID, p.Root.Bytes(), env.Sequence)
	return err
}

func (w *Worker) distributionActivated(ctx context.Context, tx *sql.Tx, env *event.Envelope, p *event.DistributionActivated) error {
	var deadline any
	if p.DeadlineUs > 0 {
		deadline = time.UnixMicro(p.DeadlineUs).UTC()
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE projections.distributions
		SET status = 'active', total_supply_at = $2, deadline_at = $3, last_sequence = $4
		WHERE distribution_id = $1 AND last_sequence < $4
	`, p.DistributionID, p.TotalSupplyAt, deadline, env.Sequence)
	return err
}

func (w *Worker) distributionClosed(ctx context.Context, tx *sql.Tx, env *event.Envelope, id int64, status string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE projections.distributions
		SET status = $2, closed_at = $3, last_sequence = $4
		WHERE distribution_id = $1 AND last_sequence < $4
	`, id, status, env.Timestamp, env.Sequence)
	return err
}

func (w *Worker) distributionRecovered(ctx context.Context, tx *sql.Tx, env *event.Envelope, p *event.DistributionRecovered) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE projections.distributions
		SET status = 'recovered', remaining = 0, closed_at = $2, last_sequence = $3
		WHERE distribution_id = $1 AND last_sequence < $3
	`, p.DistributionID, env.Timestamp, env.Sequence)
	return err
}

func (w *Worker) claimRecorded(ctx context.Context, tx *sql.Tx, env *event.Envelope, id int64, account string, amount int64, balanceAt *int64, kind string, remaining int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.claims
			(distribution_id, account, amount, balance_at, kind, claimed_at, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (distribution_id, account) DO NOTHING
	`, id, account, amount, balanceAt, kind, env.Timestamp, env.Sequence); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE projections.distributions
		SET remaining = $2, total_claimed = total_claimed + $3, last_sequence = $4
		WHERE distribution_id = $1 AND last_sequence < $4
	`, id, remaining, amount, env.Sequence)
	return err
}

// ==== redemptions ====

func (w *Worker) redemptionCreated(ctx context.Context, tx *sql.Tx, env *event.Envelope, p *event.RedemptionCreated) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.redemptions
			(redemption_id, holder, asset_id, amount, status, reason, created_at, last_sequence)
		VALUES ($1, $2, $3, $4, 'pending', NULLIF($5, ''), $6, $7)
		ON CONFLICT (redemption_id) DO NOTHING
	`, p.RedemptionID, p.Holder.Hex(), p.AssetID, p.Amount, p.Reason,
		time.UnixMicro(p.CreatedAtUs).UTC(), env.Sequence)
	return err
}

func (w *Worker) redemptionStatus(ctx context.Context, tx *sql.Tx, env *event.Envelope, id int64, status string, closed bool) error {
	var closedAt any
	if closed {
		closedAt = env.Timestamp
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE projections.redemptions
		SET status = $2, closed_at = COALESCE($3, closed_at), last_sequence = $4
		WHERE redemption_id = $1 AND last_sequence < $4
	`, id, status, closedAt, env.Sequence)
	return err
}

func (w *Worker) redemptionRejected(ctx context.Context, tx *sql.Tx, env *event.Envelope, p *event.RedemptionRejected) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE projections.redemptions
		SET status = 'rejected', status_reason = $2, closed_at = $3, last_sequence = $4
		WHERE redemption_id = $1 AND last_sequence < $4
	`, p.RedemptionID, p.Reason, env.Timestamp, env.Sequence)
	return err
}

func (w *Worker) redemptionExecuted(ctx context.Context, tx *sql.Tx, env *event.Envelope, p *event.RedemptionExecuted) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE projections.redemptions
		SET status = 'executed', payout = $2, rate_bps = $3, currency = $4, closed_at = $5, last_sequence = $6
		WHERE redemption_id = $1 AND last_sequence < $6
	`, p.RedemptionID, p.Payout, p.RateBps, p.Currency, env.Timestamp, env.Sequence)
	return err
}

// ==== rebuild ====

// Watermark returns the last projected sequence, or -1 before the
// first event. Startup compares it to the event log head and feeds the
// gap back through Apply.
func (w *Worker) Watermark(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := w.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows || (err == nil && !seq.Valid) {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

// Rebuild truncates the read models and replays the event log into
// them. loader pages decoded outputs ordered by sequence, typically
// persistence.SnapshotManager.LoadOutputsFrom.
func (w *Worker) Rebuild(ctx context.Context, loader func(ctx context.Context, from int64, limit int) ([]engine.Output, error)) error {
	truncates := []string{
		`TRUNCATE projections.orders`,
		`TRUNCATE projections.trades`,
		`TRUNCATE projections.distributions`,
		`TRUNCATE projections.claims`,
		`TRUNCATE projections.redemptions`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}
	for _, stmt := range truncates {
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate: %w", err)
		}
	}

	const pageSize = 1000
	from := int64(0)
	total := 0
	for {
		outs, err := loader(ctx, from, pageSize)
		if err != nil {
			return fmt.Errorf("load events from %d: %w", from, err)
		}
		if len(outs) == 0 {
			break
		}
		for _, out := range outs {
			if err := w.Apply(ctx, out); err != nil {
				return fmt.Errorf("apply sequence %d: %w", out.Envelope.Sequence, err)
			}
		}
		from = outs[len(outs)-1].Envelope.Sequence + 1
		total += len(outs)
	}

	w.log.Info().Int("events", total).Msg("projection rebuild complete")
	return nil
}
