package model

import (
	"database/sql/driver"
	"fmt"
	"maps"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

// Holdings maps a symbol to the held quantity. A present symbol always has a
// positive quantity.
type Holdings map[string]decimal.Decimal

func (h Holdings) Value() (driver.Value, error) {
	if h == nil {
		return "{}", nil
	}
	b, err := sonic.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("%w: can't marshal holdings", err)
	}
	return string(b), nil
}

func (h *Holdings) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*h = Holdings{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported holdings type %T", src)
	}

	out := Holdings{}
	if len(raw) > 0 {
		if err := sonic.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("%w: can't unmarshal holdings", err)
		}
	}
	*h = out
	return nil
}

type Portfolio struct {
	UserID    string          `db:"user_id"`
	Cash      decimal.Decimal `db:"cash"`
	Holdings  Holdings        `db:"holdings"`
	Version   int64           `db:"version"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// Clone returns a copy whose holdings can be mutated without touching p.
func (p Portfolio) Clone() Portfolio {
	c := p
	c.Holdings = make(Holdings, len(p.Holdings))
	maps.Copy(c.Holdings, p.Holdings)
	return c
}

func (p Portfolio) Held(symbol string) decimal.Decimal {
	if q, ok := p.Holdings[symbol]; ok {
		return q
	}
	return decimal.Zero
}
