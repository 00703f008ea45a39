package usecase

import (
	"github.com/shopspring/decimal"

	"github.com/akralex/smc-futures-bot/internal/domain"
)

// RiskSizer converts account balance and per-trade risk settings into an
// order quantity honoring exchange minimum-notional and precision limits.
type RiskSizer struct{}

func NewRiskSizer() *RiskSizer {
	return &RiskSizer{}
}

// SizeRequest carries everything needed to size one order.
type SizeRequest struct {
	Balance           float64
	RiskPercentage    float64
	Leverage          int
	CurrentPrice      float64
	MinOrderNotional  float64
	MaxPositionSize   float64
	QuantityPrecision int
}

// Size computes the order quantity. Returns domain.ErrInsufficientSize when
// the rounded quantity would be rejected by the exchange: rounding can
// silently zero out a small quantity, and that has to be caught here, not
// by a rejected-order response.
func (r *RiskSizer) Size(req SizeRequest) (float64, error) {
	if req.CurrentPrice <= 0 || req.Balance <= 0 || req.RiskPercentage <= 0 {
		return 0, domain.ErrInsufficientSize
	}
	leverage := req.Leverage
	if leverage <= 0 {
		leverage = 1
	}

	balance := decimal.NewFromFloat(req.Balance)
	riskPct := decimal.NewFromFloat(req.RiskPercentage).Div(decimal.NewFromInt(100))
	price := decimal.NewFromFloat(req.CurrentPrice)

	riskAmount := balance.Mul(riskPct)
	notional := riskAmount.Mul(decimal.NewFromInt(int64(leverage)))
	quantity := notional.Div(price)

	if req.MaxPositionSize > 0 {
		maxSize := decimal.NewFromFloat(req.MaxPositionSize)
		if quantity.GreaterThan(maxSize) {
			quantity = maxSize
		}
	}

	quantity = quantity.Round(int32(req.QuantityPrecision))

	if quantity.LessThanOrEqual(decimal.Zero) {
		return 0, domain.ErrInsufficientSize
	}
	if quantity.Mul(price).LessThan(decimal.NewFromFloat(req.MinOrderNotional)) {
		return 0, domain.ErrInsufficientSize
	}

	f, _ := quantity.Float64()
	return f, nil
}
