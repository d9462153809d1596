package server

import (
	"time"

	"github.com/Rhymond/go-money"
	"github.com/STTM-NSU/demo-trading/internal/model"
	"github.com/STTM-NSU/demo-trading/internal/quote"
	"github.com/shopspring/decimal"
)

type tradeRequest struct {
	Symbol     string              `json:"symbol"`
	Side       string              `json:"side"`
	Quantity   decimal.NullDecimal `json:"quantity"`
	StopLoss   decimal.NullDecimal `json:"stopLoss"`
	TakeProfit decimal.NullDecimal `json:"takeProfit"`
}

type searchRequest struct {
	Keywords string `json:"keywords"`
}

type portfolioDTO struct {
	UserID      string             `json:"user_id"`
	Cash        float64            `json:"cash"`
	CashDisplay string             `json:"cash_display,omitempty"`
	Holdings    map[string]float64 `json:"holdings"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type tradeDTO struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	StopLoss   *float64  `json:"stop_loss,omitempty"`
	TakeProfit *float64  `json:"take_profit,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type tradeResponse struct {
	Trade     tradeDTO     `json:"trade"`
	Portfolio portfolioDTO `json:"portfolio"`
}

type historyResponse struct {
	Trades []tradeDTO `json:"trades"`
}

type searchResponse struct {
	Matches []quote.Match `json:"matches"`
}

type quotesResponse struct {
	Prices map[string]float64 `json:"prices"`
}

type watchRequest struct {
	Symbol string `json:"symbol"`
}

type watchlistItemDTO struct {
	Symbol    string    `json:"symbol"`
	CreatedAt time.Time `json:"created_at"`
}

type watchlistResponse struct {
	Items []watchlistItemDTO `json:"items"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func toPortfolioDTO(p model.Portfolio, currency string) portfolioDTO {
	holdings := make(map[string]float64, len(p.Holdings))
	for symbol, qty := range p.Holdings {
		holdings[symbol] = qty.InexactFloat64()
	}
	return portfolioDTO{
		UserID:      p.UserID,
		Cash:        p.Cash.InexactFloat64(),
		CashDisplay: displayMoney(p.Cash, currency),
		Holdings:    holdings,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toTradeDTO(t model.TradeRecord) tradeDTO {
	return tradeDTO{
		ID:         t.ID,
		Symbol:     t.Symbol,
		Side:       string(t.Side),
		Quantity:   t.Quantity.InexactFloat64(),
		Price:      t.Price.InexactFloat64(),
		StopLoss:   optionalFloat(t.StopLoss),
		TakeProfit: optionalFloat(t.TakeProfit),
		CreatedAt:  t.CreatedAt,
	}
}

func toWatchlistItemDTO(i model.WatchlistItem) watchlistItemDTO {
	return watchlistItemDTO{Symbol: i.Symbol, CreatedAt: i.CreatedAt}
}

func optionalFloat(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}

// displayMoney formats amount in the currency's minor units, e.g. "$97,500.00".
// Unknown currencies produce an empty string.
func displayMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return ""
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}
