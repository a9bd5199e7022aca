package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"AssetVault/internal/engine"
	"AssetVault/internal/ledger"
	"AssetVault/internal/persistence"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNotFound marks a lookup for an entity the read models have never
// seen.
var ErrNotFound = errors.New("not found")

// Service answers read-only API queries. Entity and history queries
// come from the projection tables; holdings come from the live engine
// registry; integrity checks walk the event log itself. Every response
// carries as_of_sequence for freshness.
type Service struct {
	db       *sql.DB
	events   *persistence.SnapshotManager
	registry *ledger.MemRegistry
	seq      func() int64
}

// NewService wires the read side. registry and seq may be nil when the
// service runs detached from an engine; holdings queries then return
// ErrNotFound.
func NewService(db *sql.DB, registry *ledger.MemRegistry, seq func() int64) *Service {
	return &Service{
		db:       db,
		events:   persistence.NewSnapshotManager(db),
		registry: registry,
		seq:      seq,
	}
}

const maxPageSize = 500

func clampLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

// ==== orders ====

// GetOrder returns one listing, open or closed.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (*OrderResponse, error) {
	asOf, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT order_id, seller, asset_id, amount, price, currency, status, close_reason, created_at, closed_at
		FROM projections.orders
		WHERE order_id = $1
	`, orderID)

	o, err := scanOrder(row, asOf)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ListOrders returns listings matching the filter, newest first.
func (s *Service) ListOrders(ctx context.Context, f OrderFilter) ([]OrderResponse, error) {
	asOf, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	query := `
		SELECT order_id, seller, asset_id, amount, price, currency, status, close_reason, created_at, closed_at
		FROM projections.orders
		WHERE TRUE
	`
	args := []any{}
	argIdx := 1

	if f.Seller != "" {
		query += fmt.Sprintf(" AND seller = $%d", argIdx)
		args = append(args, f.Seller)
		argIdx++
	}
	if f.AssetID != "" {
		query += fmt.Sprintf(" AND asset_id = $%d", argIdx)
		args = append(args, f.AssetID)
		argIdx++
	}
	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, f.Status)
		argIdx++
	}
	if f.AfterID != nil {
		query += fmt.Sprintf(" AND order_id < $%d", argIdx)
		args = append(args, *f.AfterID)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY order_id DESC LIMIT $%d", argIdx)
	args = append(args, clampLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []OrderResponse
	for rows.Next() {
		o, err := scanOrder(rows, asOf)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(r rowScanner, asOf int64) (*OrderResponse, error) {
	var o OrderResponse
	var closeReason sql.NullString
	var closedAt sql.NullTime
	if err := r.Scan(
		&o.OrderID, &o.Seller, &o.AssetID, &o.Amount, &o.Price, &o.Currency,
		&o.Status, &closeReason, &o.CreatedAt, &closedAt,
	); err != nil {
		return nil, err
	}
	if closeReason.Valid {
		o.CloseReason = &closeReason.String
	}
	if closedAt.Valid {
		o.ClosedAt = &closedAt.Time
	}
	o.AsOfSequence = asOf
	return &o, nil
}

// ==== trades ====

// ListTrades returns fills matching the filter, newest first. Account
// matches either side of the trade.
func (s *Service) ListTrades(ctx context.Context, f TradeFilter) ([]TradeResponse, error) {
	asOf, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	query := `
		SELECT trade_id, order_id, buyer, seller, asset_id, amount, price, gross, fee, currency, executed_at, last_sequence
		FROM projections.trades
		WHERE TRUE
	`
	args := []any{}
	argIdx := 1

	if f.Account != "" {
		query += fmt.Sprintf(" AND (buyer = $%d OR seller = $%d)", argIdx, argIdx)
		args = append(args, f.Account)
		argIdx++
	}
	if f.AssetID != "" {
		query += fmt.Sprintf(" AND asset_id = $%d", argIdx)
		args = append(args, f.AssetID)
		argIdx++
	}
	if f.AfterSequence != nil {
		query += fmt.Sprintf(" AND last_sequence < $%d", argIdx)
		args = append(args, *f.AfterSequence)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY last_sequence DESC LIMIT $%d", argIdx)
	args = append(args, clampLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeResponse
	for rows.Next() {
		var t TradeResponse
		var seq int64
		if err := rows.Scan(
			&t.TradeID, &t.OrderID, &t.Buyer, &t.Seller, &t.AssetID,
			&t.Amount, &t.Price, &t.Gross, &t.Fee, &t.Currency, &t.ExecutedAt, &seq,
		); err != nil {
			return nil, err
		}
		t.AsOfSequence = asOf
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ==== distributions ====

// GetDistribution returns one payout pool.
func (s *Service) GetDistribution(ctx context.Context, distributionID int64) (*DistributionResponse, error) {
	asOf, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT distribution_id, kind, asset_id, funder, amount, remaining, total_claimed,
		       currency, description, status, merkle_root, total_supply_at, deadline_at, created_at, closed_at
		FROM projections.distributions
		WHERE distribution_id = $1
	`, distributionID)

	d, err := scanDistribution(row, asOf)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListDistributions returns pools matching the filter, newest first.
func (s *Service) ListDistributions(ctx context.Context, f DistributionFilter) ([]DistributionResponse, error) {
	asOf, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	query := `
		SELECT distribution_id, kind, asset_id, funder, amount, remaining, total_claimed,
		       currency, description, status, merkle_root, total_supply_at, deadline_at, created_at, closed_at
		FROM projections.distributions
		WHERE TRUE
	`
	args := []any{}
	argIdx := 1

	if f.AssetID != "" {
		query += fmt.Sprintf(" AND asset_id = $%d", argIdx)
		args = append(args, f.AssetID)
		argIdx++
	}
	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, f.Status)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY distribution_id DESC LIMIT $%d", argIdx)
	args = append(args, clampLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []DistributionResponse
	for rows.Next() {
		d, err := scanDistribution(rows, asOf)
		if err != nil {
			return nil, err
		}
		pools = append(pools, *d)
	}
	return pools, rows.Err()
}

func scanDistribution(r rowScanner, asOf int64) (*DistributionResponse, error) {
	var d DistributionResponse
	var description sql.NullString
	var root []byte
	var totalSupplyAt sql.NullInt64
	var deadlineAt, closedAt sql.NullTime
	if err := r.Scan(
		&d.DistributionID, &d.Kind, &d.AssetID, &d.Funder, &d.Amount, &d.Remaining, &d.TotalClaimed,
		&d.Currency, &description, &d.Status, &root, &totalSupplyAt, &deadlineAt, &d.CreatedAt, &closedAt,
	); err != nil {
		return nil, err
	}
	if description.Valid {
		d.Description = &description.String
	}
	if len(root) > 0 {
		hexRoot := common.BytesToHash(root).Hex()
		d.MerkleRoot = &hexRoot
	}
	if totalSupplyAt.Valid {
		d.TotalSupplyAt = &totalSupplyAt.Int64
	}
	if deadlineAt.Valid {
		d.DeadlineAt = &deadlineAt.Time
	}
	if closedAt.Valid {
		d.ClosedAt = &closedAt.Time
	}
	d.AsOfSequence = asOf
	return &d, nil
}

// ListClaims returns an account's payout history, newest first.
func (s *Service) ListClaims(ctx context.Context, account string, limit int) ([]ClaimResponse, error) {
	asOf, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT distribution_id, account, amount, balance_at, kind, claimed_at
		FROM projections.claims
		WHERE account = $1
		ORDER BY claimed_at DESC
		LIMIT $2
	`, account, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []ClaimResponse
	for rows.Next() {
		var c ClaimResponse
		var balanceAt sql.NullInt64
		if err := rows.Scan(
			&c.DistributionID, &c.Account, &c.Amount, &balanceAt, &c.Kind, &c.ClaimedAt,
		); err != nil {
			return nil, err
		}
		if balanceAt.Valid {
			c.BalanceAt = &balanceAt.Int64
		}
		c.AsOfSequence = asOf
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// ==== redemptions ====

// GetRedemption returns one buy-back request.
func (s *Service) GetRedemption(ctx context.Context, redemptionID int64) (*RedemptionResponse, error) {
	asOf, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT redemption_id, holder, asset_id, amount, status, reason, status_reason,
		       payout, rate_bps, currency, created_at, closed_at
		FROM projections.redemptions
		WHERE redemption_id = $1
	`, redemptionID)

	r, err := scanRedemption(row, asOf)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRedemptions returns requests matching the filter, newest first.
func (s *Service) ListRedemptions(ctx context.Context, f RedemptionFilter) ([]RedemptionResponse, error) {
	asOf, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	query := `
		SELECT redemption_id, holder, asset_id, amount, status, reason, status_reason,
		       payout, rate_bps, currency, created_at, closed_at
		FROM projections.redemptions
		WHERE TRUE
	`
	args := []any{}
	argIdx := 1

	if f.Holder != "" {
		query += fmt.Sprintf(" AND holder = $%d", argIdx)
		args = append(args, f.Holder)
		argIdx++
	}
	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, f.Status)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY redemption_id DESC LIMIT $%d", argIdx)
	args = append(args, clampLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var redemptions []RedemptionResponse
	for rows.Next() {
		r, err := scanRedemption(rows, asOf)
		if err != nil {
			return nil, err
		}
		redemptions = append(redemptions, *r)
	}
	return redemptions, rows.Err()
}

func scanRedemption(r rowScanner, asOf int64) (*RedemptionResponse, error) {
	var resp RedemptionResponse
	var reason, statusReason, currency sql.NullString
	var payout, rateBps sql.NullInt64
	var closedAt sql.NullTime
	if err := r.Scan(
		&resp.RedemptionID, &resp.Holder, &resp.AssetID, &resp.Amount, &resp.Status,
		&reason, &statusReason, &payout, &rateBps, &currency, &resp.CreatedAt, &closedAt,
	); err != nil {
		return nil, err
	}
	if reason.Valid {
		resp.Reason = &reason.String
	}
	if statusReason.Valid {
		resp.StatusReason = &statusReason.String
	}
	if payout.Valid {
		resp.Payout = &payout.Int64
	}
	if rateBps.Valid {
		resp.RateBps = &rateBps.Int64
	}
	if currency.Valid {
		resp.Currency = &currency.String
	}
	if closedAt.Valid {
		resp.ClosedAt = &closedAt.Time
	}
	resp.AsOfSequence = asOf
	return &resp, nil
}

// ==== holdings ====

// GetHoldings returns an account's non-zero token balances from the
// live ledger.
func (s *Service) GetHoldings(ctx context.Context, account string) (*HoldingsResponse, error) {
	if s.registry == nil {
		return nil, errors.New("live ledger queries unavailable")
	}
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("malformed account address %q", account)
	}
	addr := common.HexToAddress(account)

	resp := &HoldingsResponse{Account: addr.Hex()}
	if s.seq != nil {
		resp.AsOfSequence = s.seq()
	}

	for _, id := range s.registry.AssetIDs() {
		token, ok := s.registry.AssetToken(id)
		if !ok {
			continue
		}
		if bal := token.BalanceOf(addr); bal != 0 {
			resp.Holdings = append(resp.Holdings, Holding{TokenKind: "asset", TokenID: id, Balance: bal})
		}
	}
	for _, symbol := range s.registry.CurrencySymbols() {
		token, ok := s.registry.CurrencyToken(symbol)
		if !ok {
			continue
		}
		if bal := token.BalanceOf(addr); bal != 0 {
			resp.Holdings = append(resp.Holdings, Holding{TokenKind: "currency", TokenID: symbol, Balance: bal})
		}
	}
	return resp, nil
}

// ==== integrity ====

// chain breaks reported before the walk gives up
const maxChainBreaks = 10

// VerifyIntegrity re-verifies the whole event log hash chain and
// cross-checks the distribution read models. Each stored envelope's
// hash is recomputed from its contents, so a single flipped payload
// byte anywhere in the log surfaces here.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	prev := engine.GenesisHash()
	next := int64(0)

	const pageSize = 1000
walk:
	for {
		page, err := s.events.LoadEventsFrom(ctx, next, pageSize)
		if err != nil {
			return nil, fmt.Errorf("load events from %d: %w", next, err)
		}
		if len(page) == 0 {
			break
		}
		for _, r := range page {
			env, err := r.Envelope()
			if err != nil {
				report.ChainBreaks = append(report.ChainBreaks, ChainBreak{Sequence: r.Sequence, Reason: err.Error()})
				break walk
			}
			if env.Sequence != next {
				report.ChainBreaks = append(report.ChainBreaks, ChainBreak{
					Sequence: env.Sequence,
					Reason:   fmt.Sprintf("sequence gap: got %d, want %d", env.Sequence, next),
				})
			} else if err := engine.VerifyEnvelope(env, prev); err != nil {
				report.ChainBreaks = append(report.ChainBreaks, ChainBreak{Sequence: env.Sequence, Reason: err.Error()})
			}
			// Resume pairwise from this envelope so independent breaks
			// further down still surface.
			prev = env.StateHash
			next = env.Sequence + 1
			report.CheckedEvents++

			if len(report.ChainBreaks) >= maxChainBreaks {
				break walk
			}
		}
	}

	if err := s.checkDistributionTotals(ctx, report); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.ChainBreaks) == 0 && len(report.InconsistentDistributions) == 0
	return report, nil
}

// checkDistributionTotals verifies amount = remaining + total_claimed
// for every pool that has not been swept, and that the claims table
// sums to total_claimed.
func (s *Service) checkDistributionTotals(ctx context.Context, report *IntegrityReport) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.distribution_id
		FROM projections.distributions d
		LEFT JOIN (
			SELECT distribution_id, SUM(amount) AS claimed
			FROM projections.claims
			GROUP BY distribution_id
		) c ON c.distribution_id = d.distribution_id
		WHERE (d.status IN ('created', 'active', 'completed') AND d.amount != d.remaining + d.total_claimed)
		   OR d.total_claimed != COALESCE(c.claimed, 0)
		ORDER BY d.distribution_id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		report.InconsistentDistributions = append(report.InconsistentDistributions, id)
	}
	return rows.Err()
}

// ==== helpers ====

func (s *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
