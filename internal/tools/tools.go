package tools

import (
	investapi "github.com/russianinvestments/invest-api-go-sdk/proto"
	"github.com/shopspring/decimal"
)

// QuotationToDecimal converts units + nano parts without going through float64.
func QuotationToDecimal(q *investapi.Quotation) decimal.Decimal {
	if q == nil {
		return decimal.Zero
	}
	units := decimal.NewFromInt(q.GetUnits())
	nano := decimal.New(int64(q.GetNano()), -9)
	return units.Add(nano)
}
