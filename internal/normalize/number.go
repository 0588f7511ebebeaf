package normalize

import (
	"strings"

	"github.com/shopspring/decimal"
)

var currencyMarkers = strings.NewReplacer(
	"₺", "",
	"$", "",
	"€", "",
	"TL", "",
	"tl", "",
	"TRY", "",
	"USD", "",
	"EUR", "",
	" ", "",
	"\u00a0", "",
)

// ParseDecimal coerces a money or quantity cell. It accepts Turkish
// ("1.234,56"), English ("1,234.56") and plain ("1234.5") notation with an
// optional currency marker. When both separators appear, the last one is the
// decimal separator; a lone comma is always decimal.
func ParseDecimal(raw string) (decimal.Decimal, bool) {
	value := currencyMarkers.Replace(strings.TrimSpace(raw))
	if value == "" || value == "-" {
		return decimal.Zero, false
	}

	lastDot := strings.LastIndex(value, ".")
	lastComma := strings.LastIndex(value, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			value = strings.ReplaceAll(value, ".", "")
			value = strings.Replace(value, ",", ".", 1)
		} else {
			value = strings.ReplaceAll(value, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(value, ",") > 1 {
			value = strings.ReplaceAll(value, ",", "")
		} else {
			value = strings.Replace(value, ",", ".", 1)
		}
	case strings.Count(value, ".") > 1:
		value = strings.ReplaceAll(value, ".", "")
	}

	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseQuantity reads a whole-unit quantity, rounding fractional cells.
func ParseQuantity(raw string) (int, bool) {
	d, ok := ParseDecimal(raw)
	if !ok {
		return 0, false
	}
	return int(d.Round(0).IntPart()), true
}
