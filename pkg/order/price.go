package order

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PriceBook is the static reference-price lookup. There is no price
// discovery: known assets map to a fixed price, everything else to Default.
type PriceBook struct {
	prices   map[string]decimal.Decimal
	fallback decimal.Decimal
}

func DefaultPriceBook() *PriceBook {
	return &PriceBook{
		prices: map[string]decimal.Decimal{
			"BITCOIN":  decimal.NewFromInt(30000),
			"ETHEREUM": decimal.NewFromInt(2000),
		},
		fallback: decimal.NewFromInt(1000),
	}
}

// NewPriceBook builds a book from decimal text, as loaded from config.
func NewPriceBook(table map[string]string, fallback string) (*PriceBook, error) {
	def, err := ParseAmount(fallback)
	if err != nil {
		return nil, fmt.Errorf("default price %q: %w", fallback, err)
	}
	pb := &PriceBook{prices: make(map[string]decimal.Decimal, len(table)), fallback: def}
	for asset, text := range table {
		p, err := ParseAmount(text)
		if err != nil {
			return nil, fmt.Errorf("price for %s %q: %w", asset, text, err)
		}
		pb.prices[strings.ToUpper(asset)] = p
	}
	return pb, nil
}

func (pb *PriceBook) Price(asset string) decimal.Decimal {
	if p, ok := pb.prices[strings.ToUpper(asset)]; ok {
		return p
	}
	return pb.fallback
}

func (pb *PriceBook) Quote(in TradeIntent) PricedOrder {
	return PricedOrder{
		Asset:    in.Asset,
		Side:     in.Side,
		Quantity: in.Quantity,
		Price:    pb.Price(in.Asset),
	}
}
