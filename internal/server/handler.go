package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/STTM-NSU/demo-trading/internal/logger"
	"github.com/STTM-NSU/demo-trading/internal/model"
	"github.com/STTM-NSU/demo-trading/internal/quote"
	"github.com/STTM-NSU/demo-trading/internal/trading"
	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

const (
	_identityHeaderDefault = "X-User-Id"
	_currencyDefault       = "USD"
	_idempotencyHeader     = "Idempotency-Key"
	_maxBodyBytes          = 1 << 20
	_maxQuoteSymbols       = 50
)

type TradingService interface {
	Submit(ctx context.Context, userID string, req trading.OrderRequest) (trading.Result, error)
	Portfolio(ctx context.Context, userID string) (model.Portfolio, error)
	History(ctx context.Context, userID string, limit int) ([]model.TradeRecord, error)
}

type QuoteService interface {
	Prices(ctx context.Context, symbols []string) map[string]decimal.Decimal
	Search(ctx context.Context, keywords string) ([]quote.Match, error)
}

type WatchlistService interface {
	List(ctx context.Context, userID string) ([]model.WatchlistItem, error)
	Symbols(ctx context.Context, userID string) ([]string, error)
	Add(ctx context.Context, userID, symbol string) (model.WatchlistItem, error)
	Remove(ctx context.Context, userID, symbol string) error
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type HandlerConfig struct {
	IdentityHeader string
	Currency       string
}

// Handler is the JSON API of the demo trading account.
type Handler struct {
	trading   TradingService
	quotes    QuoteService
	watchlist WatchlistService
	db        Pinger

	currency string
	logger   logger.Logger

	root http.Handler
}

func NewHandler(trading TradingService, quotes QuoteService, watchlist WatchlistService, db Pinger, cfg HandlerConfig, logger logger.Logger) *Handler {
	if cfg.IdentityHeader == "" {
		cfg.IdentityHeader = _identityHeaderDefault
	}
	if cfg.Currency == "" {
		cfg.Currency = _currencyDefault
	}

	h := &Handler{
		trading:   trading,
		quotes:    quotes,
		watchlist: watchlist,
		db:        db,
		currency:  cfg.Currency,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/demo-trade/trade", h.handleTrade)
	mux.HandleFunc("GET /api/demo-trade/portfolio", h.handlePortfolio)
	mux.HandleFunc("GET /api/demo-trade/history", h.handleHistory)
	mux.HandleFunc("POST /api/demo-trade/search", h.handleSearch)
	mux.HandleFunc("GET /api/watchlist", h.handleWatchlist)
	mux.HandleFunc("POST /api/watchlist", h.handleWatch)
	mux.HandleFunc("DELETE /api/watchlist", h.handleUnwatch)
	mux.HandleFunc("GET /api/watchlist/prices", h.handleWatchlistPrices)
	mux.HandleFunc("GET /api/quotes", h.handleQuotes)
	mux.HandleFunc("GET /healthz", h.handleHealth)

	h.root = requestLog(logger, identity(cfg.IdentityHeader, mux))
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

func (h *Handler) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.trading.Submit(r.Context(), userFromContext(r.Context()), trading.OrderRequest{
		Symbol:         req.Symbol,
		Side:           req.Side,
		Quantity:       req.Quantity,
		StopLoss:       req.StopLoss,
		TakeProfit:     req.TakeProfit,
		IdempotencyKey: r.Header.Get(_idempotencyHeader),
		Meta:           model.Meta{"request_id": requestIDFromContext(r.Context())},
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	h.writeJSON(w, status, tradeResponse{
		Trade:     toTradeDTO(res.Trade),
		Portfolio: toPortfolioDTO(res.Portfolio, h.currency),
	})
}

func (h *Handler) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := h.trading.Portfolio(r.Context(), userFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPortfolioDTO(p, h.currency))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	var limit int
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	trades, err := h.trading.History(r.Context(), userFromContext(r.Context()), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := historyResponse{Trades: make([]tradeDTO, 0, len(trades))}
	for _, t := range trades {
		out.Trades = append(out.Trades, toTradeDTO(t))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if userFromContext(r.Context()) == "" {
		h.writeServiceError(w, r, trading.ErrUnauthenticated)
		return
	}

	var req searchRequest
	if !h.decode(w, r, &req) {
		return
	}

	matches, err := h.quotes.Search(r.Context(), req.Keywords)
	if err != nil {
		h.logger.Warnf("%s: symbol search failed, request_id=%s", err, requestIDFromContext(r.Context()))
		h.writeError(w, http.StatusServiceUnavailable, "search_unavailable", "symbol search is unavailable")
		return
	}
	if matches == nil {
		matches = []quote.Match{}
	}
	h.writeJSON(w, http.StatusOK, searchResponse{Matches: matches})
}

func (h *Handler) handleQuotes(w http.ResponseWriter, r *http.Request) {
	var symbols []string
	for _, s := range strings.Split(r.URL.Query().Get("symbols"), ",") {
		if s = quote.NormalizeSymbol(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		h.writeError(w, http.StatusBadRequest, "missing_field", "symbols are required")
		return
	}
	if len(symbols) > _maxQuoteSymbols {
		h.writeError(w, http.StatusBadRequest, "too_many_symbols", "at most "+strconv.Itoa(_maxQuoteSymbols)+" symbols per request")
		return
	}

	prices := h.quotes.Prices(r.Context(), symbols)
	out := quotesResponse{Prices: make(map[string]float64, len(prices))}
	for s, p := range prices {
		out.Prices[s] = p.InexactFloat64()
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.logger.Errorf("%s: health check failed", err)
		h.writeError(w, http.StatusServiceUnavailable, "unhealthy", "database is unreachable")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, _maxBodyBytes)
	defer r.Body.Close()

	if err := sonic.ConfigStd.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_payload", "invalid payload: "+err.Error())
		return false
	}
	return true
}

var _statusByKind = map[trading.Kind]int{
	trading.KindUnauthenticated: http.StatusUnauthorized,
	trading.KindValidation:      http.StatusBadRequest,
	trading.KindBusinessRule:    http.StatusBadRequest,
	trading.KindUpstream:        http.StatusServiceUnavailable,
	trading.KindConflict:        http.StatusConflict,
	trading.KindInternal:        http.StatusInternalServerError,
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind, code := trading.Classify(err)
	status := _statusByKind[kind]

	msg := err.Error()
	if kind == trading.KindInternal {
		h.logger.Errorf("%s: request_id=%s", err, requestIDFromContext(r.Context()))
		msg = "internal error"
	}
	h.writeError(w, status, code, msg)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := sonic.ConfigStd.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warnf("%s: can't write response", err)
	}
}
