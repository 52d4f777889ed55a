package mpgs

import (
	"strings"

	"github.com/shopspring/decimal"
)

var currencyExponent = map[string]int32{
	"BHD": 3,
	"IQD": 3,
	"JOD": 3,
	"KWD": 3,
	"LYD": 3,
	"OMR": 3,
	"TND": 3,
	"JPY": 0,
	"KRW": 0,
}

// FormatAmount renders amount with the minor-unit precision of currency.
func FormatAmount(amount decimal.Decimal, currency string) string {
	places, ok := currencyExponent[strings.ToUpper(strings.TrimSpace(currency))]
	if !ok {
		places = 2
	}
	return amount.StringFixed(places)
}
