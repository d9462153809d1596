package portfolio

import (
	"fmt"

	"github.com/STTM-NSU/demo-trading/internal/model"
	"github.com/shopspring/decimal"
)

// CashPlaces is the number of decimal places cash is kept at after every trade.
const CashPlaces = 2

// Apply returns p with the order applied. p itself is never modified, on
// error the caller keeps the unchanged portfolio.
//
// The order value is settled at cents: a buy is checked against and debits
// the rounded cost, a sell credits the rounded proceeds. Orders worth less
// than half a cent fail with ErrOrderTooSmall.
func Apply(p model.Portfolio, side model.Side, symbol string, quantity, price decimal.Decimal) (model.Portfolio, error) {
	if err := validateOrder(side, symbol, quantity, price); err != nil {
		return p, err
	}

	amount := price.Mul(quantity).Round(CashPlaces)
	if !amount.IsPositive() {
		return p, fmt.Errorf("%w: %s x %s", ErrOrderTooSmall, quantity, price)
	}

	next := p.Clone()

	switch side {
	case model.Buy:
		if p.Cash.LessThan(amount) {
			return p, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, amount.StringFixed(CashPlaces), p.Cash.StringFixed(CashPlaces))
		}
		next.Cash = p.Cash.Sub(amount).Round(CashPlaces)
		next.Holdings[symbol] = p.Held(symbol).Add(quantity)
	case model.Sell:
		held := p.Held(symbol)
		if held.LessThan(quantity) {
			return p, fmt.Errorf("%w: want %s %s, have %s", ErrInsufficientHoldings, quantity, symbol, held)
		}
		next.Cash = p.Cash.Add(amount).Round(CashPlaces)
		if remaining := held.Sub(quantity); remaining.IsPositive() {
			next.Holdings[symbol] = remaining
		} else {
			delete(next.Holdings, symbol)
		}
	}

	return next, nil
}

func validateOrder(side model.Side, symbol string, quantity, price decimal.Decimal) error {
	if symbol == "" {
		return ErrEmptySymbol
	}
	if !quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if !price.IsPositive() {
		return ErrInvalidPrice
	}
	if !side.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}
	return nil
}
