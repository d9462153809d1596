package model

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Meta is free-form trade metadata stored as a JSON object.
type Meta map[string]any

func (m Meta) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := sonic.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: can't marshal trade meta", err)
	}
	return string(b), nil
}

func (m *Meta) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported meta type %T", src)
	}

	if len(raw) == 0 {
		*m = nil
		return nil
	}
	out := Meta{}
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("%w: can't unmarshal trade meta", err)
	}
	*m = out
	return nil
}

type TradeRecord struct {
	ID             string              `db:"id"`
	UserID         string              `db:"user_id"`
	Symbol         string              `db:"symbol"`
	Side           Side                `db:"side"`
	Quantity       decimal.Decimal     `db:"quantity"`
	Price          decimal.Decimal     `db:"price"`
	StopLoss       decimal.NullDecimal `db:"stop_loss"`
	TakeProfit     decimal.NullDecimal `db:"take_profit"`
	IdempotencyKey sql.NullString      `db:"idempotency_key"`
	Meta           Meta                `db:"meta"`
	CreatedAt      time.Time           `db:"created_at"`
}

// Order is a validated-at-ingress order request for one user.
type Order struct {
	Symbol         string
	Side           Side
	Quantity       decimal.Decimal
	StopLoss       decimal.NullDecimal
	TakeProfit     decimal.NullDecimal
	IdempotencyKey string
	Meta           Meta
}
