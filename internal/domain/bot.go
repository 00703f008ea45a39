package domain

import "time"

type MarginType string

const (
	MarginIsolated MarginType = "ISOLATED"
	MarginCross    MarginType = "CROSS"
)

// Bot is the persisted configuration and gating state of one trading bot.
// The admin surface mutates configuration; the lifecycle manager mutates
// LastPositionClosedAt and run timestamps.
type Bot struct {
	ID                    string     `json:"id"`
	Symbol                string     `json:"symbol"`
	Exchange              string     `json:"exchange"`
	Timeframes            []string   `json:"timeframes"`
	RiskPercentage        float64    `json:"risk_percentage"`
	Leverage              int        `json:"leverage"`
	MarginType            MarginType `json:"margin_type"`
	MinOrderNotional      float64    `json:"min_order_notional"`
	MaxPositionSize       float64    `json:"max_position_size"`
	QuantityPrecision     int        `json:"quantity_precision"`
	StopLossPercent       float64    `json:"stop_loss_percent"`
	TakeProfitPercent     float64    `json:"take_profit_percent"`
	CooldownMinutes       int        `json:"cooldown_minutes"`
	MaxTradesPerHour      int        `json:"max_trades_per_hour"`
	MaxTradeDuration      int        `json:"max_trade_duration_minutes"`
	MinStrengthThreshold  float64    `json:"min_strength_threshold"`
	HighStrengthThreshold float64    `json:"high_strength_threshold"`
	MinConfluence         int        `json:"min_confluence"`
	LastPositionClosedAt  time.Time  `json:"last_position_closed_at,omitempty"`
	LastRunAt             time.Time  `json:"last_run_at,omitempty"`
	IsActive              bool       `json:"is_active"`
	CreatedAt             time.Time  `json:"created_at"`
}

// CooldownElapsed reports whether a new position may be opened at the given time.
func (b *Bot) CooldownElapsed(now time.Time) bool {
	if b.LastPositionClosedAt.IsZero() || b.CooldownMinutes <= 0 {
		return true
	}
	return !now.Before(b.LastPositionClosedAt.Add(time.Duration(b.CooldownMinutes) * time.Minute))
}
