package smc

import (
	"math"
	"time"

	"github.com/akralex/smc-futures-bot/internal/domain"
)

const DefaultTrendWindow = 10

// AnalyzeTrend measures direction and strength over the trailing window from
// the percentage change between its first and last close. Strength saturates
// at 1.0 for a 10% move.
func AnalyzeTrend(candles []domain.Candle, window int) domain.Trend {
	if window <= 0 {
		window = DefaultTrendWindow
	}
	if len(candles) < 2 {
		return domain.Trend{Direction: domain.DirectionNeutral}
	}
	if window > len(candles) {
		window = len(candles)
	}

	first := candles[len(candles)-window].Close
	last := candles[len(candles)-1].Close
	if first == 0 {
		return domain.Trend{Direction: domain.DirectionNeutral}
	}

	pct := (last - first) / first * 100

	direction := domain.DirectionNeutral
	if pct > 0 {
		direction = domain.DirectionBullish
	} else if pct < 0 {
		direction = domain.DirectionBearish
	}

	return domain.Trend{
		Direction: direction,
		Strength:  math.Min(1.0, math.Abs(pct)/10),
	}
}

// DetectStructureBreaks emits a BOS signal when the latest close breaks beyond
// the most recent opposing swing point, and a CHoCH when the direction of
// consecutive structure breaks flips.
func DetectStructureBreaks(symbol, timeframe string, candles []domain.Candle, swings SwingPoints, now time.Time) []domain.Signal {
	if len(candles) == 0 {
		return nil
	}
	lastClose := candles[len(candles)-1].Close

	var signals []domain.Signal
	var prevBreak domain.Direction

	// Walk closes after each swing point; the first close beyond it is a break.
	for _, sp := range swings.Merged() {
		var breakDir domain.Direction
		var level float64

		switch sp.Kind {
		case domain.SwingHigh:
			if lastClose > sp.Price {
				breakDir = domain.DirectionBullish
				level = sp.Price
			}
		case domain.SwingLow:
			if lastClose < sp.Price {
				breakDir = domain.DirectionBearish
				level = sp.Price
			}
		}
		if breakDir == "" {
			continue
		}

		sig := domain.Signal{
			Symbol:         symbol,
			Type:           domain.SignalBOS,
			Direction:      breakDir,
			Strength:       0.75,
			ReferenceLevel: level,
			Timeframe:      timeframe,
			QualityFactors: map[string]interface{}{"swing_index": sp.Index},
			CreatedAt:      now,
		}

		// A break in the opposite direction of the previous one is a change
		// of character, the trend-reversal case.
		if prevBreak != "" && prevBreak != breakDir {
			sig.Type = domain.SignalCHoCH
			sig.Strength = 0.85
		}
		prevBreak = breakDir

		signals = append(signals, sig)
	}

	// Only the most recent break per type is actionable; older ones describe
	// history the trend measure already captures.
	return latestPerType(signals)
}

func latestPerType(signals []domain.Signal) []domain.Signal {
	var lastBOS, lastCHoCH *domain.Signal
	for i := range signals {
		switch signals[i].Type {
		case domain.SignalBOS:
			lastBOS = &signals[i]
		case domain.SignalCHoCH:
			lastCHoCH = &signals[i]
		}
	}
	var out []domain.Signal
	if lastBOS != nil {
		out = append(out, *lastBOS)
	}
	if lastCHoCH != nil {
		out = append(out, *lastCHoCH)
	}
	return out
}
