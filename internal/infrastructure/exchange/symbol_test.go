package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBinanceSymbolMapping(t *testing.T) {
	assert.Equal(t, "BTCUSDT", BinanceSymbol("BTC-USDT"))
	assert.Equal(t, "ETHUSDC", BinanceSymbol("ETH-USDC"))

	assert.Equal(t, "BTC-USDT", CanonicalFromBinance("BTCUSDT"))
	assert.Equal(t, "SOL-USDT", CanonicalFromBinance("SOLUSDT"))
	// Unknown quote passes through untouched.
	assert.Equal(t, "WEIRD", CanonicalFromBinance("WEIRD"))
}

func TestKuCoinSymbolMapping(t *testing.T) {
	assert.Equal(t, "XBTUSDTM", KuCoinSymbol("BTC-USDT"))
	assert.Equal(t, "ETHUSDTM", KuCoinSymbol("ETH-USDT"))

	assert.Equal(t, "BTC-USDT", CanonicalFromKuCoin("XBTUSDTM"))
	assert.Equal(t, "ETH-USDT", CanonicalFromKuCoin("ETHUSDTM"))
}

func TestSymbolRoundTrip(t *testing.T) {
	for _, symbol := range []string{"BTC-USDT", "ETH-USDT", "SOL-USDC"} {
		assert.Equal(t, symbol, CanonicalFromBinance(BinanceSymbol(symbol)))
		assert.Equal(t, symbol, CanonicalFromKuCoin(KuCoinSymbol(symbol)))
	}
}
