package order

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCommand is returned for any input that does not match
// "<b|s> <quantity> <asset>".
var ErrInvalidCommand = errors.New("invalid command")

// ParseCommand parses a front-end command line such as "b 1.5 bitcoin".
func ParseCommand(line string) (TradeIntent, error) {
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return TradeIntent{}, fmt.Errorf("%w: want <b|s> <quantity> <asset>, got %d fields", ErrInvalidCommand, len(parts))
	}

	var side Side
	switch strings.ToLower(parts[0]) {
	case "b":
		side = Buy
	case "s":
		side = Sell
	default:
		return TradeIntent{}, fmt.Errorf("%w: side %q, use 'b' for buy or 's' for sell", ErrInvalidCommand, parts[0])
	}

	qty, err := ParseAmount(parts[1])
	if err != nil {
		return TradeIntent{}, fmt.Errorf("%w: quantity %q: %w", ErrInvalidCommand, parts[1], err)
	}
	if !qty.IsPositive() {
		return TradeIntent{}, fmt.Errorf("%w: quantity %s must be positive", ErrInvalidCommand, qty)
	}

	return TradeIntent{
		Side:     side,
		Quantity: qty,
		Asset:    strings.ToUpper(parts[2]),
	}, nil
}
