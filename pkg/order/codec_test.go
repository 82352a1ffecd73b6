package order

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncode(t *testing.T) {
	o := PricedOrder{
		Asset:    "BITCOIN",
		Side:     Buy,
		Quantity: decimal.NewFromInt(2),
		Price:    decimal.NewFromInt(30000),
	}
	assert.Equal(t, "TRADE:BITCOIN BUY 2 30000", string(Encode(o)))

	o = PricedOrder{
		Asset:    "ETHEREUM",
		Side:     Sell,
		Quantity: decimal.RequireFromString("0.000000000000000001"),
		Price:    decimal.RequireFromString("2000.5"),
	}
	assert.Equal(t, "TRADE:ETHEREUM SELL 0.000000000000000001 2000.5", string(Encode(o)))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		want    PricedOrder
		errKind DecodeErrorKind
	}{
		{
			name: "valid buy",
			msg:  "TRADE:BITCOIN BUY 2 30000",
			want: PricedOrder{Asset: "BITCOIN", Side: Buy, Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(30000)},
		},
		{
			name: "valid sell with fractions",
			msg:  "TRADE:ETHEREUM SELL 1.5 2000.0",
			want: PricedOrder{Asset: "ETHEREUM", Side: Sell, Quantity: decimal.RequireFromString("1.5"), Price: decimal.NewFromInt(2000)},
		},
		{name: "missing tag", msg: "ORDER:BITCOIN BUY 2 30000", errKind: MalformedFrame},
		{name: "empty", msg: "", errKind: MalformedFrame},
		{name: "three fields", msg: "TRADE:BITCOIN BUY 2", errKind: MalformedFrame},
		{name: "five fields", msg: "TRADE:BITCOIN BUY 2 30000 extra", errKind: MalformedFrame},
		{name: "empty asset", msg: "TRADE: BUY 2 30000", errKind: MalformedFrame},
		{name: "unknown side", msg: "TRADE:BITCOIN HOLD 2 30000", errKind: MalformedFrame},
		{name: "bad quantity", msg: "TRADE:BITCOIN BUY two 30000", errKind: InvalidNumber},
		{name: "bad price", msg: "TRADE:BITCOIN BUY 2 lots", errKind: InvalidNumber},
		{name: "lower-case side", msg: "TRADE:BITCOIN buy 2 30000", errKind: MalformedFrame},
		{name: "tab after tag", msg: "TRADE:\tBITCOIN BUY 2 30000", errKind: MalformedFrame},
		{name: "exponent quantity", msg: "TRADE:X BUY 1e30000000 1", errKind: InvalidNumber},
		{name: "exponent price", msg: "TRADE:X BUY 1 1E3", errKind: InvalidNumber},
		{name: "negative quantity", msg: "TRADE:X SELL -1 1", errKind: InvalidNumber},
		{name: "signed price", msg: "TRADE:X SELL 1 +5", errKind: InvalidNumber},
		{name: "bare point", msg: "TRADE:X SELL .5 1", errKind: InvalidNumber},
		{name: "too many integer digits", msg: "TRADE:X BUY 1" + strings.Repeat("0", MaxIntegerDigits) + " 1", errKind: InvalidNumber},
		{name: "too many fraction digits", msg: "TRADE:X BUY 0." + strings.Repeat("0", MaxFractionDigits) + "1 1", errKind: InvalidNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.msg))
			if tt.errKind != 0 {
				var de *DecodeError
				require.True(t, errors.As(err, &de), "want DecodeError, got %v", err)
				assert.Equal(t, tt.errKind, de.Kind)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestDecodeErrorMessage(t *testing.T) {
	_, err := Decode([]byte("TRADE:BITCOIN BUY x 1"))
	require.Error(t, err)
	assert.Equal(t, `decode invalid_number: quantity "x"`, err.Error())
}

func TestRoundTrip(t *testing.T) {
	book := DefaultPriceBook()
	assets := []string{"BITCOIN", "ETHEREUM", "DOGECOIN", "SOLANA"}

	rapid.Check(t, func(t *rapid.T) {
		intent := TradeIntent{
			Side:     rapid.SampledFrom([]Side{Buy, Sell}).Draw(t, "side"),
			Quantity: decimal.New(rapid.Int64Range(1, 1<<40).Draw(t, "coef"), -rapid.Int32Range(0, 18).Draw(t, "exp")),
			Asset:    rapid.SampledFrom(assets).Draw(t, "asset"),
		}
		priced := book.Quote(intent)

		decoded, err := Decode(Encode(priced))
		if err != nil {
			t.Fatalf("decode %q: %v", Encode(priced), err)
		}
		if !decoded.Equal(priced) {
			t.Fatalf("round trip: got %s, want %s", decoded, priced)
		}
	})
}
