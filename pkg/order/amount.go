package order

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// Digit bounds for amounts. 78 digits is the width of a uint256.
const (
	MaxIntegerDigits  = 78
	MaxFractionDigits = 36
)

// plainDecimal is the only number form allowed on the wire.
var plainDecimal = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ParseAmount parses user-supplied decimal text. Exponent notation is
// accepted, but the value must fit the digit bounds.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if err := checkDigits(d); err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}

// parseWireAmount accepts plain non-negative decimal text only.
func parseWireAmount(s string) (decimal.Decimal, error) {
	if !plainDecimal.MatchString(s) {
		return decimal.Decimal{}, fmt.Errorf("%q is not plain decimal text", s)
	}
	return ParseAmount(s)
}

// checkDigits looks at the exponent before the value is ever expanded.
func checkDigits(d decimal.Decimal) error {
	exp := int64(d.Exponent())
	if exp < -MaxFractionDigits {
		return fmt.Errorf("more than %d fractional digits", MaxFractionDigits)
	}
	if int64(d.NumDigits())+exp > MaxIntegerDigits {
		return fmt.Errorf("more than %d integer digits", MaxIntegerDigits)
	}
	return nil
}
