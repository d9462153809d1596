package server

import (
	"errors"
	"net/http"

	"github.com/STTM-NSU/demo-trading/internal/trading"
	"github.com/STTM-NSU/demo-trading/internal/watchlist"
)

func (h *Handler) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	items, err := h.watchlist.List(r.Context(), userFromContext(r.Context()))
	if err != nil {
		h.writeWatchlistError(w, r, err)
		return
	}

	out := watchlistResponse{Items: make([]watchlistItemDTO, 0, len(items))}
	for _, i := range items {
		out.Items = append(out.Items, toWatchlistItemDTO(i))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleWatch(w http.ResponseWriter, r *http.Request) {
	if userFromContext(r.Context()) == "" {
		h.writeServiceError(w, r, trading.ErrUnauthenticated)
		return
	}

	var req watchRequest
	if !h.decode(w, r, &req) {
		return
	}

	item, err := h.watchlist.Add(r.Context(), userFromContext(r.Context()), req.Symbol)
	if err != nil {
		h.writeWatchlistError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toWatchlistItemDTO(item))
}

// handleUnwatch takes the symbol from the body like the other watchlist
// calls, or from ?symbol= for clients that can't send a DELETE body.
func (h *Handler) handleUnwatch(w http.ResponseWriter, r *http.Request) {
	if userFromContext(r.Context()) == "" {
		h.writeServiceError(w, r, trading.ErrUnauthenticated)
		return
	}

	req := watchRequest{Symbol: r.URL.Query().Get("symbol")}
	if req.Symbol == "" && !h.decode(w, r, &req) {
		return
	}

	if err := h.watchlist.Remove(r.Context(), userFromContext(r.Context()), req.Symbol); err != nil {
		h.writeWatchlistError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "symbol removed from watchlist"})
}

func (h *Handler) handleWatchlistPrices(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.watchlist.Symbols(r.Context(), userFromContext(r.Context()))
	if err != nil {
		h.writeWatchlistError(w, r, err)
		return
	}

	prices := h.quotes.Prices(r.Context(), symbols)
	out := quotesResponse{Prices: make(map[string]float64, len(prices))}
	for s, p := range prices {
		out.Prices[s] = p.InexactFloat64()
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) writeWatchlistError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, watchlist.ErrEmptyUser):
		h.writeServiceError(w, r, trading.ErrUnauthenticated)
	case errors.Is(err, watchlist.ErrEmptySymbol):
		h.writeError(w, http.StatusBadRequest, "missing_field", err.Error())
	case errors.Is(err, watchlist.ErrFull):
		h.writeError(w, http.StatusBadRequest, "watchlist_full", err.Error())
	case errors.Is(err, watchlist.ErrAlreadyWatched):
		h.writeError(w, http.StatusConflict, "already_watched", err.Error())
	case errors.Is(err, watchlist.ErrNotWatched):
		h.writeError(w, http.StatusNotFound, "not_watched", err.Error())
	default:
		h.writeServiceError(w, r, err)
	}
}
