package order

import (
	"github.com/shopspring/decimal"
)

// ToSubmission scales quantity and price by 10^decimals and truncates toward
// zero. The truncation is lossy on purpose; contracts expect this layout.
func ToSubmission(o PricedOrder, decimals int32) LedgerSubmission {
	scale := decimal.New(1, decimals)
	return LedgerSubmission{
		Asset:    o.Asset,
		Side:     o.Side.String(),
		Quantity: o.Quantity.Mul(scale).Truncate(0).BigInt(),
		Price:    o.Price.Mul(scale).Truncate(0).BigInt(),
	}
}
