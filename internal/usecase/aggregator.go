package usecase

import (
	"go.uber.org/zap"

	"github.com/akralex/smc-futures-bot/internal/analysis/smc"
	"github.com/akralex/smc-futures-bot/internal/domain"
)

// AggregatorConfig carries the eligibility thresholds for signal selection.
type AggregatorConfig struct {
	// HighStrengthRequirement admits a signal regardless of confluence.
	HighStrengthRequirement float64 `yaml:"high_strength_requirement"`
	// MinStrengthThreshold is the floor below which signals are never eligible.
	MinStrengthThreshold float64 `yaml:"min_strength_threshold"`
	// MinConfluence is the corroboration required for mid-band signals.
	MinConfluence int `yaml:"min_confluence"`
}

func (c AggregatorConfig) withDefaults() AggregatorConfig {
	if c.HighStrengthRequirement <= 0 {
		c.HighStrengthRequirement = 0.90
	}
	if c.MinStrengthThreshold <= 0 {
		c.MinStrengthThreshold = 0.55
	}
	if c.MinConfluence <= 0 {
		c.MinConfluence = 1
	}
	return c
}

// SignalGenerator produces raw signals for one symbol and timeframe.
// *smc.Engine is the production implementation.
type SignalGenerator interface {
	GenerateSignals(symbol, timeframe string, candles []domain.Candle, currentPrice float64) []domain.Signal
}

var _ SignalGenerator = (*smc.Engine)(nil)

// MultiTimeframeAggregator runs the SMC engine per timeframe, counts
// cross-timeframe confluence and selects the single best eligible signal.
type MultiTimeframeAggregator struct {
	engine SignalGenerator
	cfg    AggregatorConfig
	logger *zap.Logger
}

func NewMultiTimeframeAggregator(engine SignalGenerator, cfg AggregatorConfig, logger *zap.Logger) *MultiTimeframeAggregator {
	return &MultiTimeframeAggregator{
		engine: engine,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// BestSignal evaluates all configured timeframes and returns the strongest
// eligible candidate, or nil when nothing qualifies this pass. timeframes
// must be ordered shortest first; that order breaks (strength, confluence)
// ties in favor of faster reaction.
func (a *MultiTimeframeAggregator) BestSignal(bot *domain.Bot, candlesByTimeframe map[string][]domain.Candle, currentPrice float64) *domain.Signal {
	cfg := a.cfg
	if bot.HighStrengthThreshold > 0 {
		cfg.HighStrengthRequirement = bot.HighStrengthThreshold
	}
	if bot.MinStrengthThreshold > 0 {
		cfg.MinStrengthThreshold = bot.MinStrengthThreshold
	}
	if bot.MinConfluence > 0 {
		cfg.MinConfluence = bot.MinConfluence
	}

	var all []domain.Signal
	perTimeframe := make(map[string][]domain.Signal)
	for _, tf := range bot.Timeframes {
		candles := candlesByTimeframe[tf]
		if len(candles) == 0 {
			continue
		}
		signals := a.engine.GenerateSignals(bot.Symbol, tf, candles, currentPrice)
		perTimeframe[tf] = signals
		all = append(all, signals...)
	}
	if len(all) == 0 {
		return nil
	}

	// Confluence: how many OTHER timeframes produced at least one signal of
	// the same direction in this pass.
	directionTimeframes := make(map[domain.Direction]map[string]bool)
	for _, s := range all {
		if directionTimeframes[s.Direction] == nil {
			directionTimeframes[s.Direction] = make(map[string]bool)
		}
		directionTimeframes[s.Direction][s.Timeframe] = true
	}

	singleTimeframe := len(bot.Timeframes) == 1

	var best *domain.Signal
	bestRank := -1
	for _, tf := range bot.Timeframes {
		for i := range perTimeframe[tf] {
			sig := perTimeframe[tf][i]
			sig.Confluence = len(directionTimeframes[sig.Direction]) - 1

			if !a.eligible(sig, cfg, singleTimeframe) {
				continue
			}

			// Lexicographic (strength, confluence); iteration order over
			// bot.Timeframes means the shorter timeframe wins exact ties.
			rank := int(sig.Strength*1e6)*100 + sig.Confluence
			if rank > bestRank {
				bestRank = rank
				s := sig
				best = &s
			}
		}
	}

	if best != nil && a.logger != nil {
		a.logger.Info("signal selected",
			zap.String("symbol", bot.Symbol),
			zap.String("type", string(best.Type)),
			zap.String("direction", string(best.Direction)),
			zap.Float64("strength", best.Strength),
			zap.Int("confluence", best.Confluence),
			zap.String("timeframe", best.Timeframe))
	}
	return best
}

func (a *MultiTimeframeAggregator) eligible(sig domain.Signal, cfg AggregatorConfig, singleTimeframe bool) bool {
	if sig.Strength >= cfg.HighStrengthRequirement {
		return true
	}
	if sig.Strength < cfg.MinStrengthThreshold {
		return false
	}
	// Mid-band: requires corroboration, unless there is only one timeframe
	// and therefore nothing to corroborate with.
	if singleTimeframe {
		return true
	}
	return sig.Confluence >= cfg.MinConfluence
}
