package exchange

import "strings"

// Symbols are canonical BASE-QUOTE pairs ("BTC-USDT") everywhere inside the
// application. Each adapter converts to its exchange-native form at the API
// boundary and back when reading responses.

var knownQuotes = []string{"USDT", "USDC", "BTC", "ETH"}

// BinanceSymbol converts "BTC-USDT" to "BTCUSDT".
func BinanceSymbol(canonical string) string {
	return strings.ReplaceAll(canonical, "-", "")
}

// CanonicalFromBinance converts "BTCUSDT" back to "BTC-USDT".
func CanonicalFromBinance(native string) string {
	for _, quote := range knownQuotes {
		if strings.HasSuffix(native, quote) && len(native) > len(quote) {
			return native[:len(native)-len(quote)] + "-" + quote
		}
	}
	return native
}

// KuCoinSymbol converts "BTC-USDT" to the KuCoin futures form "XBTUSDTM".
// KuCoin uses the XBT ticker for bitcoin and suffixes perpetuals with M.
func KuCoinSymbol(canonical string) string {
	base, quote, ok := strings.Cut(canonical, "-")
	if !ok {
		return canonical
	}
	if base == "BTC" {
		base = "XBT"
	}
	return base + quote + "M"
}

// CanonicalFromKuCoin converts "XBTUSDTM" back to "BTC-USDT".
func CanonicalFromKuCoin(native string) string {
	trimmed := strings.TrimSuffix(native, "M")
	for _, quote := range knownQuotes {
		if strings.HasSuffix(trimmed, quote) && len(trimmed) > len(quote) {
			base := trimmed[:len(trimmed)-len(quote)]
			if base == "XBT" {
				base = "BTC"
			}
			return base + "-" + quote
		}
	}
	return native
}
