package quote

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrNoAPIKey         = errors.New("no quote provider api key")
	ErrNoQuote          = errors.New("upstream returned no quote")
	ErrEmptySymbol      = errors.New("empty symbol")
)

// Match is one symbol search result.
type Match struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Region string `json:"region"`
}

// Provider is an upstream quote source. Symbols arrive upper-cased.
type Provider interface {
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	Search(ctx context.Context, keywords string) ([]Match, error)
}
