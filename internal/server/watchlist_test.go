package server

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchlistEndpoints(t *testing.T) {
	h := newTestHandler(t, &stubQuotes{prices: map[string]decimal.Decimal{
		"AAPL": decimal.RequireFromString("189.5"),
		"TSLA": decimal.RequireFromString("250"),
	}})

	rec, out := do(t, h, http.MethodGet, "/api/watchlist", testUser, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, out["items"])

	rec, out = do(t, h, http.MethodPost, "/api/watchlist", testUser, `{"symbol":"aapl"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "AAPL", out["symbol"])

	rec, _ = do(t, h, http.MethodPost, "/api/watchlist", testUser, `{"symbol":"TSLA"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = do(t, h, http.MethodPost, "/api/watchlist", testUser, `{"symbol":"NOPE"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, out = do(t, h, http.MethodPost, "/api/watchlist", testUser, `{"symbol":"AAPL"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_watched", out["code"])

	rec, out = do(t, h, http.MethodGet, "/api/watchlist", testUser, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["items"], 3)

	rec, out = do(t, h, http.MethodGet, "/api/watchlist/prices", testUser, "")
	require.Equal(t, http.StatusOK, rec.Code)
	prices := out["prices"].(map[string]any)
	assert.EqualValues(t, 189.5, prices["AAPL"])
	assert.EqualValues(t, 250, prices["TSLA"])
	assert.NotContains(t, prices, "NOPE")

	rec, _ = do(t, h, http.MethodDelete, "/api/watchlist", testUser, `{"symbol":"tsla"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodDelete, "/api/watchlist?symbol=NOPE", testUser, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, out = do(t, h, http.MethodDelete, "/api/watchlist", testUser, `{"symbol":"TSLA"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_watched", out["code"])

	rec, out = do(t, h, http.MethodGet, "/api/watchlist", testUser, "")
	require.Equal(t, http.StatusOK, rec.Code)
	items := out["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "AAPL", items[0].(map[string]any)["symbol"])

	// lists are per user
	rec, out = do(t, h, http.MethodGet, "/api/watchlist", "other@example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, out["items"])
}

func TestWatchlistMissingSymbol(t *testing.T) {
	h := newTestHandler(t, &stubQuotes{})

	rec, out := do(t, h, http.MethodPost, "/api/watchlist", testUser, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_field", out["code"])

	rec, out = do(t, h, http.MethodDelete, "/api/watchlist", testUser, `{"symbol":" "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_field", out["code"])
}
