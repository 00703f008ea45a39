package smc

import "github.com/akralex/smc-futures-bot/internal/domain"

const DefaultSwingLookback = 3

// SwingPoints holds the detected local extrema of one candle window.
type SwingPoints struct {
	Highs []domain.SwingPoint
	Lows  []domain.SwingPoint
}

// DetectSwingPoints scans candles for local highs and lows using a symmetric
// lookback window. A candle at index i is a swing high iff its high is strictly
// greater than the high of every candle in [i-lookback, i+lookback] excluding
// itself; swing lows are symmetric. Candles within lookback of either boundary
// are never flagged: there is no full window to compare against.
func DetectSwingPoints(candles []domain.Candle, lookback int) SwingPoints {
	if lookback <= 0 {
		lookback = DefaultSwingLookback
	}

	var sp SwingPoints
	for i := lookback; i < len(candles)-lookback; i++ {
		if isSwingHigh(candles, i, lookback) {
			sp.Highs = append(sp.Highs, domain.SwingPoint{
				Index:     i,
				Price:     candles[i].High,
				Kind:      domain.SwingHigh,
				Timestamp: candles[i].Timestamp,
			})
		}
		if isSwingLow(candles, i, lookback) {
			sp.Lows = append(sp.Lows, domain.SwingPoint{
				Index:     i,
				Price:     candles[i].Low,
				Kind:      domain.SwingLow,
				Timestamp: candles[i].Timestamp,
			})
		}
	}
	return sp
}

func isSwingHigh(candles []domain.Candle, i, lookback int) bool {
	for j := i - lookback; j <= i+lookback; j++ {
		if j == i {
			continue
		}
		if candles[j].High >= candles[i].High {
			return false
		}
	}
	return true
}

func isSwingLow(candles []domain.Candle, i, lookback int) bool {
	for j := i - lookback; j <= i+lookback; j++ {
		if j == i {
			continue
		}
		if candles[j].Low <= candles[i].Low {
			return false
		}
	}
	return true
}

// Merged returns all swing points ordered by candle index.
func (sp SwingPoints) Merged() []domain.SwingPoint {
	merged := make([]domain.SwingPoint, 0, len(sp.Highs)+len(sp.Lows))
	hi, lo := 0, 0
	for hi < len(sp.Highs) || lo < len(sp.Lows) {
		switch {
		case hi >= len(sp.Highs):
			merged = append(merged, sp.Lows[lo])
			lo++
		case lo >= len(sp.Lows):
			merged = append(merged, sp.Highs[hi])
			hi++
		case sp.Highs[hi].Index <= sp.Lows[lo].Index:
			merged = append(merged, sp.Highs[hi])
			hi++
		default:
			merged = append(merged, sp.Lows[lo])
			lo++
		}
	}
	return merged
}
