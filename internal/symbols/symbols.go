// Package symbols normalizes the loose symbol spellings that appear in
// trading-channel messages (GOLD vs XAUUSD, US30 vs DJ30, ...) into the
// canonical form the validator and broker expect.
package symbols

import "strings"

var aliases = map[string]string{
	"GOLD":   "XAUUSD",
	"SILVER": "XAGUSD",
	"US30":   "DJ30",
	"NAS100": "USTEC",
}

// Normalize upper-cases symbol and resolves any known alias to its canonical
// form. Unknown symbols are returned upper-cased and otherwise untouched.
func Normalize(symbol string) string {
	upper := strings.ToUpper(strings.TrimSpace(symbol))
	if canonical, ok := aliases[upper]; ok {
		return canonical
	}
	return upper
}

var indexSymbols = map[string]struct{}{
	"DJ30":   {},
	"USTEC":  {},
	"NAS100": {},
	"US30":   {},
}

// IsIndex reports whether symbol (already normalized, or not) refers to an
// index CFD, which carries its own pip size/value and order-distance
// thresholds.
func IsIndex(symbol string) bool {
	_, ok := indexSymbols[strings.ToUpper(symbol)]
	return ok
}

// IsGold reports whether symbol refers to spot gold under either spelling.
func IsGold(symbol string) bool {
	n := Normalize(symbol)
	return n == "XAUUSD"
}

// IsJPYPair reports whether symbol is a JPY-quoted forex pair, which uses a
// different pip size/value than the default forex pair.
func IsJPYPair(symbol string) bool {
	return strings.HasSuffix(strings.ToUpper(symbol), "JPY")
}

var cryptoSymbols = map[string]struct{}{
	"BTCUSD": {}, "ETHUSD": {}, "XRPUSD": {}, "LTCUSD": {}, "BCHUSD": {},
	"BTCUSDT": {}, "ETHUSDT": {},
}

// IsCrypto reports whether symbol is a cryptocurrency pair. Crypto trades
// through the weekend, so a "symbol not tradable" broker error for one of
// these on a Saturday means something other than a closed market.
func IsCrypto(symbol string) bool {
	_, ok := cryptoSymbols[strings.ToUpper(symbol)]
	return ok
}

// StripSuffix removes a configured broker suffix (e.g. "XAUUSDm" with
// suffix "m" becomes "XAUUSD") for case-insensitive position matching.
func StripSuffix(symbol, suffix string) string {
	if suffix == "" {
		return symbol
	}
	if strings.HasSuffix(strings.ToUpper(symbol), strings.ToUpper(suffix)) {
		return symbol[:len(symbol)-len(suffix)]
	}
	return symbol
}

// EqualIgnoringSuffix compares two symbols for equality after stripping
// suffix and normalizing case, matching the Python executor's "find my
// existing position for this symbol" logic in close/lot-modifier handling.
func EqualIgnoringSuffix(a, b, suffix string) bool {
	return strings.EqualFold(StripSuffix(a, suffix), StripSuffix(b, suffix))
}
