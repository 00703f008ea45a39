package smc_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akralex/smc-futures-bot/internal/analysis/smc"
	"github.com/akralex/smc-futures-bot/internal/domain"
)

// candlesFromCloses builds a flat-body series where high = close + 1 and
// low = close - 1, spaced one minute apart.
func candlesFromCloses(closes ...float64) []domain.Candle {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]domain.Candle, len(closes))
	for i, c := range closes {
		candles[i] = domain.Candle{
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    100,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return candles
}

func TestDetectSwingPoints_PeakAndTrough(t *testing.T) {
	// Peak at index 3, trough at index 7.
	candles := candlesFromCloses(100, 101, 102, 110, 102, 101, 100, 95, 100, 101, 102)

	sp := smc.DetectSwingPoints(candles, 3)

	require.Len(t, sp.Highs, 1)
	assert.Equal(t, 3, sp.Highs[0].Index)
	assert.Equal(t, 111.0, sp.Highs[0].Price)
	assert.Equal(t, domain.SwingHigh, sp.Highs[0].Kind)

	require.Len(t, sp.Lows, 1)
	assert.Equal(t, 7, sp.Lows[0].Index)
	assert.Equal(t, 94.0, sp.Lows[0].Price)
}

func TestDetectSwingPoints_BoundaryCandlesNeverFlagged(t *testing.T) {
	// Highest high sits at index 0, lowest low at the last index. Neither has
	// a full window, so neither may be flagged.
	candles := candlesFromCloses(120, 110, 105, 104, 103, 102, 101, 90)

	sp := smc.DetectSwingPoints(candles, 3)

	for _, h := range sp.Highs {
		assert.GreaterOrEqual(t, h.Index, 3)
		assert.LessOrEqual(t, h.Index, len(candles)-4)
	}
	for _, l := range sp.Lows {
		assert.GreaterOrEqual(t, l.Index, 3)
		assert.LessOrEqual(t, l.Index, len(candles)-4)
	}
}

func TestDetectSwingPoints_StrictInequality(t *testing.T) {
	// Equal highs around index 3: not strictly greater, so no swing high.
	candles := candlesFromCloses(100, 101, 110, 110, 110, 101, 100)

	sp := smc.DetectSwingPoints(candles, 2)

	assert.Empty(t, sp.Highs)
}

func TestDetectSwingPoints_WindowTooSmall(t *testing.T) {
	candles := candlesFromCloses(100, 110, 100)

	sp := smc.DetectSwingPoints(candles, 3)

	assert.Empty(t, sp.Highs)
	assert.Empty(t, sp.Lows)
}

func TestSwingPoints_MergedOrdering(t *testing.T) {
	sp := smc.SwingPoints{
		Highs: []domain.SwingPoint{{Index: 5, Kind: domain.SwingHigh}, {Index: 12, Kind: domain.SwingHigh}},
		Lows:  []domain.SwingPoint{{Index: 8, Kind: domain.SwingLow}},
	}

	merged := sp.Merged()

	require.Len(t, merged, 3)
	assert.Equal(t, []int{5, 8, 12}, []int{merged[0].Index, merged[1].Index, merged[2].Index})
}
