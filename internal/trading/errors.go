package trading

import (
	"errors"

	"github.com/STTM-NSU/demo-trading/internal/portfolio"
	"github.com/STTM-NSU/demo-trading/internal/quote"
)

// Caller facing failure conditions of order submission. Ledger and oracle
// errors are re-exported so handlers only need this package.
var (
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrMissingField         = errors.New("symbol, side and quantity are required")
	ErrInvalidQuantity      = portfolio.ErrInvalidQuantity
	ErrInvalidSide          = portfolio.ErrInvalidSide
	ErrOrderTooSmall        = portfolio.ErrOrderTooSmall
	ErrInsufficientFunds    = portfolio.ErrInsufficientFunds
	ErrInsufficientHoldings = portfolio.ErrInsufficientHoldings
	ErrConcurrentUpdate     = portfolio.ErrConcurrentUpdate
	ErrPriceUnavailable     = quote.ErrPriceUnavailable
)

type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindValidation
	KindBusinessRule
	KindUpstream
	KindConflict
)

// Classify maps an error returned by Service to its taxonomy kind and a
// stable machine readable code.
func Classify(err error) (Kind, string) {
	switch {
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, portfolio.ErrEmptyUser):
		return KindUnauthenticated, "unauthenticated"
	case errors.Is(err, ErrMissingField), errors.Is(err, portfolio.ErrEmptySymbol), errors.Is(err, quote.ErrEmptySymbol):
		return KindValidation, "missing_field"
	case errors.Is(err, ErrInvalidQuantity):
		return KindValidation, "invalid_quantity"
	case errors.Is(err, ErrInvalidSide):
		return KindValidation, "invalid_side"
	case errors.Is(err, ErrOrderTooSmall):
		return KindBusinessRule, "order_too_small"
	case errors.Is(err, ErrInsufficientFunds):
		return KindBusinessRule, "insufficient_funds"
	case errors.Is(err, ErrInsufficientHoldings):
		return KindBusinessRule, "insufficient_holdings"
	case errors.Is(err, ErrPriceUnavailable):
		return KindUpstream, "price_unavailable"
	case errors.Is(err, ErrConcurrentUpdate):
		return KindConflict, "concurrent_update"
	default:
		return KindInternal, "internal"
	}
}
