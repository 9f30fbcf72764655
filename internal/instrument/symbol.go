// Package instrument translates gateway symbols into order book ids and keeps the
// contract metadata learned from the gateway.
package instrument

import (
	"errors"
	"strings"
)

// minSymbolLen is the shortest symbol the translator can attribute.
const minSymbolLen = 4

// ErrSymbolTooShort is returned for symbols that cannot be attributed to an instrument.
var ErrSymbolTooShort = errors.New("symbol too short")

// OrderBookID maps a gateway symbol to the canonical order book id.
//
// Continuous contracts whose fourth-from-last character is not a digit (e.g. the
// three-digit CZCE style "SR810") get the front-month digit "1" spliced in after the
// two-letter product code, keeping the last three characters: "SR810" -> "SR1810".
// Anything else passes through. The result is always upper case.
func OrderBookID(symbol string) (string, error) {
	if len(symbol) < minSymbolLen {
		return "", ErrSymbolTooShort
	}
	id := symbol
	if c := symbol[len(symbol)-4]; c < '0' || c > '9' {
		id = symbol[:2] + "1" + symbol[len(symbol)-3:]
	}
	return strings.ToUpper(id), nil
}
