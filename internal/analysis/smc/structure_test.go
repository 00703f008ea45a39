package smc_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akralex/smc-futures-bot/internal/analysis/smc"
	"github.com/akralex/smc-futures-bot/internal/domain"
)

func TestAnalyzeTrend(t *testing.T) {
	tests := []struct {
		name         string
		closes       []float64
		wantDir      domain.Direction
		wantStrength float64
	}{
		{"five percent up", []float64{100, 101, 102, 103, 105}, domain.DirectionBullish, 0.5},
		{"ten percent down saturates", []float64{100, 98, 95, 92, 90}, domain.DirectionBearish, 1.0},
		{"flat", []float64{100, 101, 99, 100, 100}, domain.DirectionNeutral, 0.0},
		{"twenty percent up caps at one", []float64{100, 105, 110, 115, 120}, domain.DirectionBullish, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trend := smc.AnalyzeTrend(candlesFromCloses(tt.closes...), len(tt.closes))
			assert.Equal(t, tt.wantDir, trend.Direction)
			assert.InDelta(t, tt.wantStrength, trend.Strength, 1e-9)
		})
	}
}

func TestAnalyzeTrend_ShortSeries(t *testing.T) {
	trend := smc.AnalyzeTrend(candlesFromCloses(100), 10)
	assert.Equal(t, domain.DirectionNeutral, trend.Direction)
}

func TestDetectStructureBreaks_BOS(t *testing.T) {
	// Swing high at index 3 (high 111); the last close 115 breaks above it.
	candles := candlesFromCloses(100, 101, 102, 110, 102, 101, 100, 115)

	swings := smc.DetectSwingPoints(candles, 3)
	require.Len(t, swings.Highs, 1)

	signals := smc.DetectStructureBreaks("BTC-USDT", "1h", candles, swings, time.Now())

	require.Len(t, signals, 1)
	assert.Equal(t, domain.SignalBOS, signals[0].Type)
	assert.Equal(t, domain.DirectionBullish, signals[0].Direction)
	assert.Equal(t, 111.0, signals[0].ReferenceLevel)
}

func TestDetectStructureBreaks_CHoCH(t *testing.T) {
	// A market stepping down: swing low at index 3 (low 99) in the old high
	// regime, swing high at index 10 (high 97.5) in the new low regime. The
	// final close 98 sits below the old low (bearish break) and above the new
	// high (bullish break): the flip is a change of character.
	candles := candlesFromCloses(105, 104, 103, 100, 103, 104, 105, 96, 94, 92, 96.5, 91, 90, 89, 98)

	swings := smc.DetectSwingPoints(candles, 3)
	require.NotEmpty(t, swings.Lows)
	require.NotEmpty(t, swings.Highs)

	signals := smc.DetectStructureBreaks("BTC-USDT", "1h", candles, swings, time.Now())

	var choch *domain.Signal
	for i := range signals {
		if signals[i].Type == domain.SignalCHoCH {
			choch = &signals[i]
		}
	}
	require.NotNil(t, choch, "expected a CHoCH on break-direction flip")
	assert.Equal(t, domain.DirectionBullish, choch.Direction)
	assert.Equal(t, 97.5, choch.ReferenceLevel)
	assert.InDelta(t, 0.85, choch.Strength, 1e-9)
}

func TestDetectStructureBreaks_NoBreak(t *testing.T) {
	// Last close stays inside the swing range: nothing to report.
	candles := candlesFromCloses(100, 101, 102, 110, 102, 101, 100, 95, 100, 101, 102, 103, 104, 104, 105)

	swings := smc.DetectSwingPoints(candles, 3)
	signals := smc.DetectStructureBreaks("SOL-USDT", "15m", candles, swings, time.Now())

	assert.Empty(t, signals)
}
