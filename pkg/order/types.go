package order

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

type Side uint8

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

// ParseSide accepts the exact wire spelling, BUY or SELL.
func ParseSide(s string) (Side, bool) {
	switch s {
	case "BUY":
		return Buy, true
	case "SELL":
		return Sell, true
	}
	return 0, false
}

// TradeIntent is a parsed user command before pricing.
type TradeIntent struct {
	Side     Side
	Quantity decimal.Decimal
	Asset    string // upper-case
}

// PricedOrder is a TradeIntent with its reference price resolved.
type PricedOrder struct {
	Asset    string
	Side     Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

func (o PricedOrder) String() string {
	return fmt.Sprintf("%s %s %s @ %s", o.Side, o.Quantity, o.Asset, o.Price)
}

// Equal compares numerically, so 2 and 2.0 are the same order.
func (o PricedOrder) Equal(other PricedOrder) bool {
	return o.Asset == other.Asset && o.Side == other.Side &&
		o.Quantity.Equal(other.Quantity) && o.Price.Equal(other.Price)
}

// LedgerSubmission is the fixed-point form handed to the ledger gateway.
type LedgerSubmission struct {
	Asset    string
	Side     string
	Quantity *big.Int
	Price    *big.Int
}
