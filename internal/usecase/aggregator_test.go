package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akralex/smc-futures-bot/internal/domain"
)

// stubGenerator returns canned signals per timeframe.
type stubGenerator struct {
	byTimeframe map[string][]domain.Signal
}

func (g *stubGenerator) GenerateSignals(symbol, timeframe string, candles []domain.Candle, currentPrice float64) []domain.Signal {
	out := make([]domain.Signal, 0, len(g.byTimeframe[timeframe]))
	for _, s := range g.byTimeframe[timeframe] {
		s.Symbol = symbol
		s.Timeframe = timeframe
		out = append(out, s)
	}
	return out
}

func dummyCandles(n int) []domain.Candle {
	candles := make([]domain.Candle, n)
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		candles[i] = domain.Candle{Open: 100, High: 101, Low: 99, Close: 100, Timestamp: ts.Add(time.Duration(i) * time.Minute)}
	}
	return candles
}

func sig(t domain.SignalType, dir domain.Direction, strength float64) domain.Signal {
	return domain.Signal{Type: t, Direction: dir, Strength: strength, ReferenceLevel: 100}
}

func TestBestSignalHighStrengthBypassesConfluence(t *testing.T) {
	gen := &stubGenerator{byTimeframe: map[string][]domain.Signal{
		"15m": {sig(domain.SignalOrderBlockSupport, domain.DirectionBullish, 0.95)},
	}}
	agg := NewMultiTimeframeAggregator(gen, AggregatorConfig{}, zap.NewNop())

	bot := &domain.Bot{Symbol: "BTC-USDT", Timeframes: []string{"15m", "1h", "4h"}, MinConfluence: 2}
	candles := map[string][]domain.Candle{"15m": dummyCandles(20), "1h": dummyCandles(20), "4h": dummyCandles(20)}

	best := agg.BestSignal(bot, candles, 100)
	require.NotNil(t, best)
	assert.Equal(t, 0, best.Confluence)
	assert.InDelta(t, 0.95, best.Strength, 1e-9)
}

func TestBestSignalMidBandNeedsConfluence(t *testing.T) {
	bot := &domain.Bot{Symbol: "BTC-USDT", Timeframes: []string{"15m", "1h", "4h"}, MinConfluence: 1}
	candles := map[string][]domain.Candle{"15m": dummyCandles(20), "1h": dummyCandles(20), "4h": dummyCandles(20)}

	// Only one timeframe fires: confluence 0, below the high bar, rejected.
	lone := &stubGenerator{byTimeframe: map[string][]domain.Signal{
		"15m": {sig(domain.SignalOrderBlockSupport, domain.DirectionBullish, 0.75)},
	}}
	agg := NewMultiTimeframeAggregator(lone, AggregatorConfig{}, zap.NewNop())
	assert.Nil(t, agg.BestSignal(bot, candles, 100))

	// A second timeframe agreeing on direction lifts confluence to 1.
	corroborated := &stubGenerator{byTimeframe: map[string][]domain.Signal{
		"15m": {sig(domain.SignalOrderBlockSupport, domain.DirectionBullish, 0.75)},
		"1h":  {sig(domain.SignalBOS, domain.DirectionBullish, 0.60)},
	}}
	agg = NewMultiTimeframeAggregator(corroborated, AggregatorConfig{}, zap.NewNop())
	best := agg.BestSignal(bot, candles, 100)
	require.NotNil(t, best)
	assert.Equal(t, "15m", best.Timeframe)
	assert.Equal(t, 1, best.Confluence)
}

func TestBestSignalSingleTimeframeWaiver(t *testing.T) {
	gen := &stubGenerator{byTimeframe: map[string][]domain.Signal{
		"1h": {sig(domain.SignalOrderBlockResistance, domain.DirectionBearish, 0.70)},
	}}
	agg := NewMultiTimeframeAggregator(gen, AggregatorConfig{}, zap.NewNop())

	bot := &domain.Bot{Symbol: "ETH-USDT", Timeframes: []string{"1h"}, MinConfluence: 1}
	best := agg.BestSignal(bot, map[string][]domain.Candle{"1h": dummyCandles(20)}, 100)
	require.NotNil(t, best)
	assert.Equal(t, domain.DirectionBearish, best.Direction)
}

func TestBestSignalBelowFloorRejected(t *testing.T) {
	gen := &stubGenerator{byTimeframe: map[string][]domain.Signal{
		"1h": {sig(domain.SignalOrderBlockSupport, domain.DirectionBullish, 0.40)},
	}}
	agg := NewMultiTimeframeAggregator(gen, AggregatorConfig{}, zap.NewNop())

	bot := &domain.Bot{Symbol: "BTC-USDT", Timeframes: []string{"1h"}}
	assert.Nil(t, agg.BestSignal(bot, map[string][]domain.Candle{"1h": dummyCandles(20)}, 100))
}

func TestBestSignalLexicographicSelection(t *testing.T) {
	gen := &stubGenerator{byTimeframe: map[string][]domain.Signal{
		"15m": {sig(domain.SignalOrderBlockSupport, domain.DirectionBullish, 0.92)},
		"1h":  {sig(domain.SignalBOS, domain.DirectionBullish, 0.95)},
	}}
	agg := NewMultiTimeframeAggregator(gen, AggregatorConfig{}, zap.NewNop())

	bot := &domain.Bot{Symbol: "BTC-USDT", Timeframes: []string{"15m", "1h"}}
	candles := map[string][]domain.Candle{"15m": dummyCandles(20), "1h": dummyCandles(20)}

	best := agg.BestSignal(bot, candles, 100)
	require.NotNil(t, best)
	assert.Equal(t, "1h", best.Timeframe)
	assert.InDelta(t, 0.95, best.Strength, 1e-9)
}

func TestBestSignalShorterTimeframeWinsTies(t *testing.T) {
	gen := &stubGenerator{byTimeframe: map[string][]domain.Signal{
		"15m": {sig(domain.SignalOrderBlockSupport, domain.DirectionBullish, 0.93)},
		"4h":  {sig(domain.SignalOrderBlockSupport, domain.DirectionBullish, 0.93)},
	}}
	agg := NewMultiTimeframeAggregator(gen, AggregatorConfig{}, zap.NewNop())

	bot := &domain.Bot{Symbol: "BTC-USDT", Timeframes: []string{"15m", "4h"}}
	candles := map[string][]domain.Candle{"15m": dummyCandles(20), "4h": dummyCandles(20)}

	best := agg.BestSignal(bot, candles, 100)
	require.NotNil(t, best)
	assert.Equal(t, "15m", best.Timeframe)
}

func TestBestSignalMissingCandlesSkipped(t *testing.T) {
	gen := &stubGenerator{byTimeframe: map[string][]domain.Signal{
		"1h": {sig(domain.SignalOrderBlockSupport, domain.DirectionBullish, 0.95)},
	}}
	agg := NewMultiTimeframeAggregator(gen, AggregatorConfig{}, zap.NewNop())

	bot := &domain.Bot{Symbol: "BTC-USDT", Timeframes: []string{"1h"}}
	assert.Nil(t, agg.BestSignal(bot, map[string][]domain.Candle{}, 100))
}
