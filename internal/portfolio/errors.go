package portfolio

import "errors"

var (
	ErrEmptyUser            = errors.New("empty user identifier")
	ErrEmptySymbol          = errors.New("empty symbol")
	ErrInvalidQuantity      = errors.New("quantity must be greater than zero")
	ErrInvalidPrice         = errors.New("price must be greater than zero")
	ErrInvalidSide          = errors.New("invalid side")
	ErrOrderTooSmall        = errors.New("order value rounds to zero")
	ErrInsufficientFunds    = errors.New("insufficient cash balance")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrConcurrentUpdate     = errors.New("portfolio was modified concurrently")

	errVersionConflict = errors.New("portfolio version conflict")
)
