package smc

import (
	"math"

	"github.com/akralex/smc-futures-bot/internal/domain"
)

const (
	// NearbyThresholdPct is the max distance between price and a block's
	// midpoint, as a fraction of price, for the block to be tradeable.
	NearbyThresholdPct = 0.02

	trendBonusBase     = 0.1
	trendBonusMax      = 0.2
	engulfingStrength  = 0.92
	counterTrendFactor = 0.6
)

// ScoreOrderBlock combines a block's raw strength, trend alignment and price
// proximity into a value in [0,1].
//
// The raw strength is clamped before use. Upstream detector math has produced
// zero, negative and absurdly large values in the wild; this sanitization is
// mandatory, not defensive garnish.
func ScoreOrderBlock(block domain.OrderBlock, trend domain.Trend, currentPrice float64) float64 {
	score := clamp01(block.Strength)

	if block.Direction == trend.Direction {
		score += trendBonusBase + (trendBonusMax-trendBonusBase)*clamp01(trend.Strength)
	}

	if currentPrice > 0 {
		dist := math.Abs(currentPrice-block.Midpoint()) / currentPrice
		if dist < NearbyThresholdPct {
			// Linear: full bonus at zero distance, nothing at the threshold.
			score += 0.2 * (1 - dist/NearbyThresholdPct)
		}
	}

	return clamp01(score)
}

// IsNearby reports whether the block's midpoint is within the proximity
// threshold of the current price.
func IsNearby(block domain.OrderBlock, currentPrice float64) bool {
	if currentPrice <= 0 {
		return false
	}
	return math.Abs(currentPrice-block.Midpoint())/currentPrice <= NearbyThresholdPct
}

// DetectEngulfing checks the last two candles for an engulfing pattern:
// the second body fully contains the first and is of opposite color.
// Binary and well-defined, so it carries a fixed high strength instead of
// a proximity score.
func DetectEngulfing(symbol, timeframe string, candles []domain.Candle) *domain.Signal {
	if len(candles) < 2 {
		return nil
	}
	c1 := candles[len(candles)-2]
	c2 := candles[len(candles)-1]

	var sigType domain.SignalType
	var direction domain.Direction

	switch {
	case c1.Bearish() && c2.Bullish() && c2.Open <= c1.Close && c2.Close >= c1.Open:
		sigType = domain.SignalEngulfingBullish
		direction = domain.DirectionBullish
	case c1.Bullish() && c2.Bearish() && c2.Open >= c1.Close && c2.Close <= c1.Open:
		sigType = domain.SignalEngulfingBearish
		direction = domain.DirectionBearish
	default:
		return nil
	}

	return &domain.Signal{
		Symbol:         symbol,
		Type:           sigType,
		Direction:      direction,
		Strength:       engulfingStrength,
		ReferenceLevel: c2.Close,
		Timeframe:      timeframe,
		QualityFactors: map[string]interface{}{
			"first_body":  c1.Body(),
			"second_body": c2.Body(),
		},
		CreatedAt: c2.Timestamp,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
