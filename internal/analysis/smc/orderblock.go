package smc

import "github.com/akralex/smc-futures-bot/internal/domain"

// BuildOrderBlocks derives order-block zones from consecutive swing points.
// Swing highs and lows are merged and time-sorted; each adjacent pair spans
// one block covering the highest high and lowest low of the candles between
// them inclusive. Direction follows the price ordering of the pair: rising
// swings form a bullish block, falling swings a bearish one.
//
// k swing points yield exactly k-1 blocks. Strength here is a placeholder;
// the scorer assigns the real value.
func BuildOrderBlocks(candles []domain.Candle, swings SwingPoints) []domain.OrderBlock {
	merged := swings.Merged()
	if len(merged) < 2 {
		return nil
	}

	blocks := make([]domain.OrderBlock, 0, len(merged)-1)
	for i := 1; i < len(merged); i++ {
		p0, p1 := merged[i-1], merged[i]

		direction := domain.DirectionBearish
		if p1.Price > p0.Price {
			direction = domain.DirectionBullish
		}

		blocks = append(blocks, domain.OrderBlock{
			HighPrice:   domain.HighestHigh(candles, p0.Index, p1.Index),
			LowPrice:    domain.LowestLow(candles, p0.Index, p1.Index),
			Direction:   direction,
			Strength:    0.5,
			OriginIndex: p0.Index,
			EndIndex:    p1.Index,
		})
	}
	return blocks
}

// blockRawStrength estimates zone quality as the average body-to-range ratio
// of the candles spanning the block. Always lands in [0,1]; the clamp in the
// scorer stays regardless, upstream math is not trusted.
func blockRawStrength(candles []domain.Candle, b domain.OrderBlock) float64 {
	from, to := b.OriginIndex, b.EndIndex
	if from < 0 || to >= len(candles) || from > to {
		return 0
	}
	var sum float64
	var n int
	for i := from; i <= to; i++ {
		r := candles[i].Range()
		if r <= 0 {
			continue
		}
		sum += candles[i].Body() / r
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
