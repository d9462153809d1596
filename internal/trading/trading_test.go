package trading

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/STTM-NSU/demo-trading/internal/db"
	"github.com/STTM-NSU/demo-trading/internal/journal"
	"github.com/STTM-NSU/demo-trading/internal/logger"
	"github.com/STTM-NSU/demo-trading/internal/model"
	"github.com/STTM-NSU/demo-trading/internal/portfolio"
	"github.com/STTM-NSU/demo-trading/internal/quote"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser = "trader@example.com"

type fixedPrices struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	calls  int
}

func (f *fixedPrices) CurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	p, ok := f.prices[symbol]
	if !ok {
		return decimal.Zero, errors.New("no quote")
	}
	return p, nil
}

func (f *fixedPrices) set(symbol, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = decimal.RequireFromString(price)
}

func (f *fixedPrices) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type env struct {
	svc    *Service
	conn   *sqlx.DB
	prices *fixedPrices
}

func newEnv(t *testing.T, startingCash string) *env {
	t.Helper()

	conn := db.NewTestDB(t)
	log := logger.NewNop()

	cfg := portfolio.Config{}
	if startingCash != "" {
		cfg.StartingCash = decimal.RequireFromString(startingCash)
	}

	prices := &fixedPrices{prices: map[string]decimal.Decimal{}}
	svc := NewService(
		portfolio.NewLedger(conn, cfg, log),
		journal.NewRecorder(conn, log),
		prices,
		conn,
		journal.DefaultHistoryLimit,
		log,
	)
	return &env{svc: svc, conn: conn, prices: prices}
}

func order(symbol, side, qty string) OrderRequest {
	return OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Quantity: decimal.NewNullDecimal(decimal.RequireFromString(qty)),
	}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func (e *env) tradeCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, e.conn.Get(&n, "SELECT COUNT(*) FROM demo_trades"))
	return n
}

func TestNewUserPortfolio(t *testing.T) {
	e := newEnv(t, "")

	p, err := e.svc.Portfolio(context.Background(), testUser)
	require.NoError(t, err)

	assertDecimal(t, "100000.00", p.Cash)
	assert.Empty(t, p.Holdings)
}

func TestBuyThenSellAll(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()

	e.prices.set("TSLA", "250.00")
	res, err := e.svc.Submit(ctx, testUser, order("TSLA", "buy", "10"))
	require.NoError(t, err)

	assertDecimal(t, "97500.00", res.Portfolio.Cash)
	assertDecimal(t, "10", res.Portfolio.Holdings["TSLA"])
	assert.Equal(t, model.Buy, res.Trade.Side)
	assertDecimal(t, "10", res.Trade.Quantity)
	assertDecimal(t, "250", res.Trade.Price)
	assert.NotEmpty(t, res.Trade.ID)
	assert.False(t, res.Replayed)

	e.prices.set("TSLA", "260.00")
	res, err = e.svc.Submit(ctx, testUser, order("TSLA", "sell", "10"))
	require.NoError(t, err)

	assertDecimal(t, "100100.00", res.Portfolio.Cash)
	assert.NotContains(t, res.Portfolio.Holdings, "TSLA")
	assert.Equal(t, model.Sell, res.Trade.Side)

	history, err := e.svc.History(ctx, testUser, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.Sell, history[0].Side)
	assert.Equal(t, model.Buy, history[1].Side)
}

func TestOversellRejected(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()

	e.prices.set("TSLA", "250.00")
	_, err := e.svc.Submit(ctx, testUser, order("TSLA", "buy", "10"))
	require.NoError(t, err)

	_, err = e.svc.Submit(ctx, testUser, order("TSLA", "sell", "20"))
	require.ErrorIs(t, err, ErrInsufficientHoldings)

	p, err := e.svc.Portfolio(ctx, testUser)
	require.NoError(t, err)
	assertDecimal(t, "97500.00", p.Cash)
	assertDecimal(t, "10", p.Holdings["TSLA"])
	assert.Equal(t, 1, e.tradeCount(t))
}

func TestInsufficientFunds(t *testing.T) {
	e := newEnv(t, "50.00")
	ctx := context.Background()

	e.prices.set("AAPL", "100.00")
	_, err := e.svc.Submit(ctx, testUser, order("AAPL", "buy", "1"))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	p, err := e.svc.Portfolio(ctx, testUser)
	require.NoError(t, err)
	assertDecimal(t, "50.00", p.Cash)
	assert.Empty(t, p.Holdings)
	assert.Equal(t, 0, e.tradeCount(t))
}

func TestConcurrentBuysSerialize(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	e.prices.set("AAPL", "100.00")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.svc.Submit(ctx, testUser, order("AAPL", "buy", "5"))
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	p, err := e.svc.Portfolio(ctx, testUser)
	require.NoError(t, err)
	assertDecimal(t, "99000.00", p.Cash)
	assertDecimal(t, "10", p.Holdings["AAPL"])
	assert.Equal(t, 2, e.tradeCount(t))
}

func TestSymbolNormalized(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	e.prices.set("AAPL", "100.00")

	_, err := e.svc.Submit(ctx, testUser, order(" aapl ", "BUY", "1"))
	require.NoError(t, err)
	res, err := e.svc.Submit(ctx, testUser, order("AAPL", "buy", "1"))
	require.NoError(t, err)

	assert.Len(t, res.Portfolio.Holdings, 1)
	assertDecimal(t, "2", res.Portfolio.Holdings["AAPL"])
	assert.Equal(t, "AAPL", res.Trade.Symbol)
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name string
		user string
		req  OrderRequest
		want error
	}{
		{name: "no user", user: "", req: order("AAPL", "buy", "1"), want: ErrUnauthenticated},
		{name: "blank user", user: "   ", req: order("AAPL", "buy", "1"), want: ErrUnauthenticated},
		{name: "no symbol", user: testUser, req: order("  ", "buy", "1"), want: ErrMissingField},
		{name: "no side", user: testUser, req: order("AAPL", "", "1"), want: ErrMissingField},
		{name: "no quantity", user: testUser, req: OrderRequest{Symbol: "AAPL", Side: "buy"}, want: ErrMissingField},
		{name: "zero quantity", user: testUser, req: order("AAPL", "buy", "0"), want: ErrInvalidQuantity},
		{name: "negative quantity", user: testUser, req: order("AAPL", "sell", "-3"), want: ErrInvalidQuantity},
		{name: "bad side", user: testUser, req: order("AAPL", "short", "1"), want: ErrInvalidSide},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, "")
			e.prices.set("AAPL", "100.00")

			_, err := e.svc.Submit(context.Background(), tt.user, tt.req)
			require.ErrorIs(t, err, tt.want)

			assert.Zero(t, e.prices.callCount(), "oracle must not be consulted for invalid input")
			assert.Equal(t, 0, e.tradeCount(t))
		})
	}
}

func TestSubCentOrderRejected(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	e.prices.set("PENNY", "0.001")

	_, err := e.svc.Submit(ctx, testUser, order("PENNY", "buy", "2"))
	require.ErrorIs(t, err, ErrOrderTooSmall)
	assert.Equal(t, 0, e.tradeCount(t))

	res, err := e.svc.Submit(ctx, testUser, order("PENNY", "buy", "5"))
	require.NoError(t, err)
	assertDecimal(t, "99999.99", res.Portfolio.Cash)
	assertDecimal(t, "5", res.Portfolio.Holdings["PENNY"])
}

func TestPriceUnavailableLeavesLedgerUntouched(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()

	_, err := e.svc.Submit(ctx, testUser, order("NOPE", "buy", "1"))
	require.ErrorIs(t, err, ErrPriceUnavailable)

	kind, code := Classify(err)
	assert.Equal(t, KindUpstream, kind)
	assert.Equal(t, "price_unavailable", code)

	var n int
	require.NoError(t, e.conn.Get(&n, "SELECT COUNT(*) FROM demo_portfolios"))
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, e.tradeCount(t))
}

func TestIdempotentReplay(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	e.prices.set("AAPL", "100.00")

	req := order("AAPL", "buy", "3")
	req.IdempotencyKey = "order-1"

	first, err := e.svc.Submit(ctx, testUser, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	e.prices.set("AAPL", "120.00")
	second, err := e.svc.Submit(ctx, testUser, req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Trade.ID, second.Trade.ID)
	assertDecimal(t, "100", second.Trade.Price)
	assertDecimal(t, "99700.00", second.Portfolio.Cash)
	assert.Equal(t, 1, e.tradeCount(t))

	// same key from another user is a different order
	_, err = e.svc.Submit(ctx, "other@example.com", req)
	require.NoError(t, err)
	assert.Equal(t, 2, e.tradeCount(t))
}

func TestConcurrentIdempotentSubmit(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	e.prices.set("AAPL", "100.00")

	req := order("AAPL", "buy", "1")
	req.IdempotencyKey = "double-click"

	var wg sync.WaitGroup
	results := make([]Result, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = e.svc.Submit(ctx, testUser, req)
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Trade.ID, results[i].Trade.ID)
	}

	p, err := e.svc.Portfolio(ctx, testUser)
	require.NoError(t, err)
	assertDecimal(t, "99900.00", p.Cash)
	assert.Equal(t, 1, e.tradeCount(t))
}

func TestConcurrentIdempotentSellAll(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	e.prices.set("AAPL", "100.00")

	_, err := e.svc.Submit(ctx, testUser, order("AAPL", "buy", "1"))
	require.NoError(t, err)

	req := order("AAPL", "sell", "1")
	req.IdempotencyKey = "sell-all"

	var wg sync.WaitGroup
	results := make([]Result, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = e.svc.Submit(ctx, testUser, req)
		}()
	}
	wg.Wait()

	replayed := 0
	for i := range results {
		require.NoError(t, errs[i], "a repeated key must replay, not fail on holdings")
		assert.Equal(t, results[0].Trade.ID, results[i].Trade.ID)
		if results[i].Replayed {
			replayed++
		}
	}
	assert.Equal(t, 3, replayed)

	p, err := e.svc.Portfolio(ctx, testUser)
	require.NoError(t, err)
	assertDecimal(t, "100000.00", p.Cash)
	assert.Empty(t, p.Holdings)
	assert.Equal(t, 2, e.tradeCount(t))
}

func TestReplayAfterHoldingsAreGone(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	e.prices.set("AAPL", "100.00")

	_, err := e.svc.Submit(ctx, testUser, order("AAPL", "buy", "2"))
	require.NoError(t, err)

	req := order("AAPL", "sell", "2")
	req.IdempotencyKey = "sell-2"
	first, err := e.svc.Submit(ctx, testUser, req)
	require.NoError(t, err)

	again, err := e.svc.Submit(ctx, testUser, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Trade.ID, again.Trade.ID)
}

func TestMetaRecorded(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	e.prices.set("AAPL", "100.00")

	req := order("AAPL", "buy", "1")
	req.Meta = model.Meta{"request_id": "req-42"}
	_, err := e.svc.Submit(ctx, testUser, req)
	require.NoError(t, err)

	history, err := e.svc.History(ctx, testUser, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "req-42", history[0].Meta["request_id"])
}

func TestRiskLevelsRecorded(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	e.prices.set("MSFT", "400.00")

	req := order("MSFT", "buy", "1")
	req.StopLoss = decimal.NewNullDecimal(decimal.RequireFromString("380"))
	req.TakeProfit = decimal.NewNullDecimal(decimal.Zero)

	_, err := e.svc.Submit(ctx, testUser, req)
	require.NoError(t, err)

	history, err := e.svc.History(ctx, testUser, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.True(t, history[0].StopLoss.Valid)
	assertDecimal(t, "380", history[0].StopLoss.Decimal)
	assert.False(t, history[0].TakeProfit.Valid)
}

func TestQueriesRequireUser(t *testing.T) {
	e := newEnv(t, "")

	_, err := e.svc.Portfolio(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = e.svc.History(context.Background(), "", 10)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
		code string
	}{
		{ErrUnauthenticated, KindUnauthenticated, "unauthenticated"},
		{ErrMissingField, KindValidation, "missing_field"},
		{ErrInvalidQuantity, KindValidation, "invalid_quantity"},
		{ErrInvalidSide, KindValidation, "invalid_side"},
		{ErrOrderTooSmall, KindBusinessRule, "order_too_small"},
		{ErrInsufficientFunds, KindBusinessRule, "insufficient_funds"},
		{ErrInsufficientHoldings, KindBusinessRule, "insufficient_holdings"},
		{quote.ErrPriceUnavailable, KindUpstream, "price_unavailable"},
		{ErrConcurrentUpdate, KindConflict, "concurrent_update"},
		{errors.New("disk on fire"), KindInternal, "internal"},
	}

	for _, tt := range tests {
		kind, code := Classify(tt.err)
		assert.Equal(t, tt.kind, kind, tt.err.Error())
		assert.Equal(t, tt.code, code)
	}
}
