package smc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akralex/smc-futures-bot/internal/analysis/smc"
	"github.com/akralex/smc-futures-bot/internal/domain"
)

func TestBuildOrderBlocks_CountIsSwingsMinusOne(t *testing.T) {
	// Alternating peaks and troughs produce several swing points.
	candles := candlesFromCloses(100, 101, 102, 110, 102, 101, 95, 101, 102, 112, 102, 101, 100)

	swings := smc.DetectSwingPoints(candles, 3)
	n := len(swings.Highs) + len(swings.Lows)
	require.GreaterOrEqual(t, n, 2)

	blocks := smc.BuildOrderBlocks(candles, swings)

	assert.Len(t, blocks, n-1)
}

func TestBuildOrderBlocks_FewerThanTwoSwings(t *testing.T) {
	candles := candlesFromCloses(100, 101, 102, 110, 102, 101, 100)

	swings := smc.DetectSwingPoints(candles, 3)
	require.Len(t, swings.Highs, 1)
	require.Empty(t, swings.Lows)

	assert.Nil(t, smc.BuildOrderBlocks(candles, swings))
}

func TestBuildOrderBlocks_DirectionAndBounds(t *testing.T) {
	// Swing high at 3 (price 111), swing low at 7 (price 94): falling pair.
	candles := candlesFromCloses(100, 101, 102, 110, 102, 101, 100, 95, 100, 101, 102)

	swings := smc.DetectSwingPoints(candles, 3)
	blocks := smc.BuildOrderBlocks(candles, swings)

	require.Len(t, blocks, 1)
	b := blocks[0]
	assert.Equal(t, domain.DirectionBearish, b.Direction)
	assert.Equal(t, 3, b.OriginIndex)
	assert.Equal(t, 7, b.EndIndex)
	assert.Equal(t, 111.0, b.HighPrice)
	assert.Equal(t, 94.0, b.LowPrice)
	assert.GreaterOrEqual(t, b.HighPrice, b.LowPrice)
	assert.Equal(t, 0.5, b.Strength)
}
