package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"AssetVault/internal/observability"
	"AssetVault/internal/query"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HTTPServer serves the JSON read API plus the health endpoints, for
// tooling, dashboards and curl.
type HTTPServer struct {
	addr    string
	queries *query.Service
	checker *observability.HealthChecker
	server  *http.Server
	log     zerolog.Logger
}

func NewHTTPServer(addr string, queries *query.Service, checker *observability.HealthChecker) *HTTPServer {
	s := &HTTPServer{
		addr:    addr,
		queries: queries,
		checker: checker,
		log:     observability.NewLogger("http"),
	}
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}
	return s
}

// Routes builds the API mux. Exposed for handler tests.
func (s *HTTPServer) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/orders", s.listOrders)
	mux.HandleFunc("GET /v1/orders/{id}", s.getOrder)
	mux.HandleFunc("GET /v1/trades", s.listTrades)
	mux.HandleFunc("GET /v1/distributions", s.listDistributions)
	mux.HandleFunc("GET /v1/distributions/{id}", s.getDistribution)
	mux.HandleFunc("GET /v1/redemptions", s.listRedemptions)
	mux.HandleFunc("GET /v1/redemptions/{id}", s.getRedemption)
	mux.HandleFunc("GET /v1/accounts/{address}/claims", s.listClaims)
	mux.HandleFunc("GET /v1/accounts/{address}/holdings", s.getHoldings)
	mux.HandleFunc("GET /v1/integrity", s.verifyIntegrity)

	mux.Handle("GET /metrics", promhttp.Handler())

	if s.checker != nil {
		mux.HandleFunc("GET /healthz", s.checker.LivenessHandler)
		mux.HandleFunc("GET /readyz", s.checker.ReadinessHandler)
	}

	return mux
}

// Start serves until ctx is cancelled (blocking).
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ============================================================================
// Handlers
// ============================================================================

func (s *HTTPServer) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	order, err := s.queries.GetOrder(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *HTTPServer) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := query.OrderFilter{
		Seller:  q.Get("seller"),
		AssetID: q.Get("asset_id"),
		Status:  q.Get("status"),
		Limit:   intQuery(q.Get("limit")),
	}
	if after, ok := int64Query(q.Get("after_id")); ok {
		f.AfterID = &after
	}

	orders, err := s.queries.ListOrders(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if orders == nil {
		orders = []query.OrderResponse{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *HTTPServer) listTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := query.TradeFilter{
		Account: q.Get("account"),
		AssetID: q.Get("asset_id"),
		Limit:   intQuery(q.Get("limit")),
	}
	if after, ok := int64Query(q.Get("after_sequence")); ok {
		f.AfterSequence = &after
	}

	trades, err := s.queries.ListTrades(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if trades == nil {
		trades = []query.TradeResponse{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

func (s *HTTPServer) getDistribution(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid distribution id")
		return
	}
	dist, err := s.queries.GetDistribution(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dist)
}

func (s *HTTPServer) listDistributions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := query.DistributionFilter{
		AssetID: q.Get("asset_id"),
		Status:  q.Get("status"),
		Limit:   intQuery(q.Get("limit")),
	}

	dists, err := s.queries.ListDistributions(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if dists == nil {
		dists = []query.DistributionResponse{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"distributions": dists})
}

func (s *HTTPServer) getRedemption(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid redemption id")
		return
	}
	red, err := s.queries.GetRedemption(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, red)
}

func (s *HTTPServer) listRedemptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := query.RedemptionFilter{
		Holder: q.Get("holder"),
		Status: q.Get("status"),
		Limit:  intQuery(q.Get("limit")),
	}

	reds, err := s.queries.ListRedemptions(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if reds == nil {
		reds = []query.RedemptionResponse{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"redemptions": reds})
}

func (s *HTTPServer) listClaims(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if !common.IsHexAddress(address) {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	claims, err := s.queries.ListClaims(r.Context(), address, intQuery(r.URL.Query().Get("limit")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if claims == nil {
		claims = []query.ClaimResponse{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"claims": claims})
}

func (s *HTTPServer) getHoldings(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if !common.IsHexAddress(address) {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	holdings, err := s.queries.GetHoldings(r.Context(), address)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, holdings)
}

// verifyIntegrity walks the whole event log; on a large log this is an
// expensive admin call, not a dashboard poll target.
func (s *HTTPServer) verifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.queries.VerifyIntegrity(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ============================================================================
// Helpers
// ============================================================================

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, query.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.log.Error().Err(err).Str("path", r.URL.Path).Msg("query failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func intQuery(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func int64Query(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
