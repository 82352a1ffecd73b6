package order

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TradeTag prefixes every wire message.
const TradeTag = "TRADE:"

type DecodeErrorKind int

const (
	MalformedFrame DecodeErrorKind = iota + 1
	InvalidNumber
)

func (k DecodeErrorKind) String() string {
	switch k {
	case MalformedFrame:
		return "malformed_frame"
	case InvalidNumber:
		return "invalid_number"
	default:
		return "unknown"
	}
}

type DecodeError struct {
	Kind   DecodeErrorKind
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Kind, e.Reason)
}

// Encode renders TRADE:<ASSET> <SIDE> <quantity> <price>. Numbers are
// written in plain decimal notation.
func Encode(o PricedOrder) []byte {
	var b strings.Builder
	b.Grow(len(TradeTag) + len(o.Asset) + 32)
	b.WriteString(TradeTag)
	b.WriteString(o.Asset)
	b.WriteByte(' ')
	b.WriteString(o.Side.String())
	b.WriteByte(' ')
	b.WriteString(o.Quantity.String())
	b.WriteByte(' ')
	b.WriteString(o.Price.String())
	return []byte(b.String())
}

func Decode(msg []byte) (PricedOrder, error) {
	s := string(msg)
	if !strings.HasPrefix(s, TradeTag) {
		return PricedOrder{}, &DecodeError{Kind: MalformedFrame, Reason: "missing TRADE: tag"}
	}
	body := s[len(TradeTag):]
	fields := strings.Fields(body)
	if first, _ := utf8.DecodeRuneInString(body); len(fields) != 4 || unicode.IsSpace(first) {
		return PricedOrder{}, &DecodeError{Kind: MalformedFrame, Reason: fmt.Sprintf("want 4 fields, got %d", len(fields))}
	}

	side, ok := ParseSide(fields[1])
	if !ok {
		return PricedOrder{}, &DecodeError{Kind: MalformedFrame, Reason: fmt.Sprintf("unknown side %q", fields[1])}
	}
	qty, err := parseWireAmount(fields[2])
	if err != nil {
		return PricedOrder{}, &DecodeError{Kind: InvalidNumber, Reason: fmt.Sprintf("quantity %q", fields[2])}
	}
	price, err := parseWireAmount(fields[3])
	if err != nil {
		return PricedOrder{}, &DecodeError{Kind: InvalidNumber, Reason: fmt.Sprintf("price %q", fields[3])}
	}

	return PricedOrder{
		Asset:    fields[0],
		Side:     side,
		Quantity: qty,
		Price:    price,
	}, nil
}
