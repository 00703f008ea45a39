package domain

import "time"

// Candle is a single OHLCV bar. Series are ordered oldest-first per (symbol, timeframe).
type Candle struct {
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool {
	return c.Close > c.Open
}

// Bearish reports whether the candle closed below its open.
func (c Candle) Bearish() bool {
	return c.Close < c.Open
}

// Body returns the absolute size of the candle body.
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns high minus low.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// HighestHigh returns the highest high of candles[from..to] inclusive.
// Indexes outside the slice are clamped.
func HighestHigh(candles []Candle, from, to int) float64 {
	from, to = clampRange(len(candles), from, to)
	if from > to {
		return 0
	}
	h := candles[from].High
	for i := from + 1; i <= to; i++ {
		if candles[i].High > h {
			h = candles[i].High
		}
	}
	return h
}

// LowestLow returns the lowest low of candles[from..to] inclusive.
func LowestLow(candles []Candle, from, to int) float64 {
	from, to = clampRange(len(candles), from, to)
	if from > to {
		return 0
	}
	l := candles[from].Low
	for i := from + 1; i <= to; i++ {
		if candles[i].Low < l {
			l = candles[i].Low
		}
	}
	return l
}

func clampRange(n, from, to int) (int, int) {
	if from < 0 {
		from = 0
	}
	if to > n-1 {
		to = n - 1
	}
	return from, to
}
