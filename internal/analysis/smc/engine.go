package smc

import (
	"time"

	"go.uber.org/zap"

	"github.com/akralex/smc-futures-bot/internal/domain"
)

// Config tunes one engine instance. Zero values fall back to defaults.
type Config struct {
	SwingLookback int `yaml:"swing_lookback"`
	TrendWindow   int `yaml:"trend_window"`
}

// Engine runs the full SMC pipeline over one candle window:
// swing points -> order blocks -> nearby filter -> scoring, plus independent
// structure-break and engulfing detection. Pure apart from logging; it never
// mutates its input and holds no state between calls.
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	if cfg.SwingLookback <= 0 {
		cfg.SwingLookback = DefaultSwingLookback
	}
	if cfg.TrendWindow <= 0 {
		cfg.TrendWindow = DefaultTrendWindow
	}
	return &Engine{cfg: cfg, logger: logger}
}

// GenerateSignals returns every candidate signal found in the window.
// No global strength threshold is applied here; eligibility is the
// aggregator's call.
func (e *Engine) GenerateSignals(symbol, timeframe string, candles []domain.Candle, currentPrice float64) []domain.Signal {
	minWindow := 2*e.cfg.SwingLookback + 1
	if len(candles) < minWindow {
		return nil
	}

	now := time.Now()
	swings := DetectSwingPoints(candles, e.cfg.SwingLookback)
	trend := AnalyzeTrend(candles, e.cfg.TrendWindow)
	blocks := BuildOrderBlocks(candles, swings)

	var signals []domain.Signal
	for _, block := range blocks {
		if !IsNearby(block, currentPrice) {
			continue
		}
		block.Strength = blockRawStrength(candles, block)
		score := ScoreOrderBlock(block, trend, currentPrice)

		sig := domain.Signal{
			Symbol:         symbol,
			Direction:      block.Direction,
			Strength:       score,
			ReferenceLevel: block.Midpoint(),
			Timeframe:      timeframe,
			QualityFactors: map[string]interface{}{
				"block_high":    block.HighPrice,
				"block_low":     block.LowPrice,
				"trend_aligned": block.Direction == trend.Direction,
				"raw_strength":  block.Strength,
			},
			CreatedAt: now,
		}

		switch {
		case block.Direction == domain.DirectionBullish && currentPrice < block.LowPrice:
			// Price fell through a bullish zone: the zone failed, trade the break.
			sig.Type = domain.SignalOrderBlockBreakout
			sig.Direction = domain.DirectionBearish
		case block.Direction == domain.DirectionBearish && currentPrice > block.HighPrice:
			sig.Type = domain.SignalOrderBlockBreakout
			sig.Direction = domain.DirectionBullish
		case block.Direction == domain.DirectionBullish:
			sig.Type = domain.SignalOrderBlockSupport
		default:
			sig.Type = domain.SignalOrderBlockResistance
		}

		// Counter-trend candidates survive at reduced strength rather than
		// being dropped outright.
		if trend.Direction != domain.DirectionNeutral && sig.Direction != trend.Direction {
			sig.Strength *= counterTrendFactor
			sig.QualityFactors["counter_trend"] = true
		}

		signals = append(signals, sig)
	}

	signals = append(signals, DetectStructureBreaks(symbol, timeframe, candles, swings, now)...)

	if engulfing := DetectEngulfing(symbol, timeframe, candles); engulfing != nil {
		signals = append(signals, *engulfing)
	}

	if e.logger != nil && len(signals) > 0 {
		e.logger.Debug("signals generated",
			zap.String("symbol", symbol),
			zap.String("timeframe", timeframe),
			zap.Int("count", len(signals)),
			zap.String("trend", string(trend.Direction)))
	}

	return signals
}
