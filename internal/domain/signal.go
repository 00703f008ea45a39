package domain

import "time"

type Direction string

const (
	DirectionBullish Direction = "BULLISH"
	DirectionBearish Direction = "BEARISH"
	DirectionNeutral Direction = "NEUTRAL"
)

// Opposite returns the inverse direction. Neutral maps to itself.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionBullish:
		return DirectionBearish
	case DirectionBearish:
		return DirectionBullish
	}
	return d
}

type SignalType string

const (
	SignalOrderBlockSupport    SignalType = "ORDER_BLOCK_SUPPORT"
	SignalOrderBlockResistance SignalType = "ORDER_BLOCK_RESISTANCE"
	SignalOrderBlockBreakout   SignalType = "ORDER_BLOCK_BREAKOUT"
	SignalBOS                  SignalType = "BOS"
	SignalCHoCH                SignalType = "CHOCH"
	SignalEngulfingBullish     SignalType = "ENGULFING_BULLISH"
	SignalEngulfingBearish     SignalType = "ENGULFING_BEARISH"
)

type SwingKind string

const (
	SwingHigh SwingKind = "HIGH"
	SwingLow  SwingKind = "LOW"
)

// SwingPoint is a local price extremum. Recomputed each analysis pass, never persisted.
type SwingPoint struct {
	Index     int
	Price     float64
	Kind      SwingKind
	Timestamp time.Time
}

// OrderBlock is a price zone between two structural swing points.
// Invariant: HighPrice >= LowPrice; Strength is clamped to [0,1] at construction.
type OrderBlock struct {
	HighPrice   float64
	LowPrice    float64
	Direction   Direction
	Strength    float64
	OriginIndex int
	EndIndex    int
}

// Midpoint returns the center of the zone.
func (b OrderBlock) Midpoint() float64 {
	return (b.HighPrice + b.LowPrice) / 2
}

// Signal is one actionable trading candidate produced by the signal engine.
type Signal struct {
	ID             string                 `json:"id"`
	BotID          string                 `json:"bot_id,omitempty"`
	TradeID        string                 `json:"trade_id,omitempty"`
	Symbol         string                 `json:"symbol"`
	Type           SignalType             `json:"type"`
	Direction      Direction              `json:"direction"`
	Strength       float64                `json:"strength"`
	ReferenceLevel float64                `json:"reference_level"`
	Timeframe      string                 `json:"timeframe"`
	Confluence     int                    `json:"confluence"`
	QualityFactors map[string]interface{} `json:"quality_factors,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// Trend describes overall market direction and its saturation-scaled strength.
type Trend struct {
	Direction Direction
	Strength  float64
}
