package domain

import "time"

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Sign returns +1 for long, -1 for short.
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

type TradeStatus string

const (
	TradeStatusOpen      TradeStatus = "OPEN"
	TradeStatusClosed    TradeStatus = "CLOSED"
	TradeStatusCancelled TradeStatus = "CANCELLED"
)

// Trade is one futures position tracked by the bot, from entry fill to close.
// Exactly one OPEN trade may exist per bot at any time.
type Trade struct {
	ID                string      `json:"id"`
	BotID             string      `json:"bot_id"`
	Symbol            string      `json:"symbol"`
	Side              Side        `json:"side"`
	Quantity          float64     `json:"quantity"`
	EntryPrice        float64     `json:"entry_price"`
	StopLossPrice     float64     `json:"stop_loss_price"`
	TakeProfitPrice   float64     `json:"take_profit_price"`
	ExitPrice         float64     `json:"exit_price,omitempty"`
	Status            TradeStatus `json:"status"`
	ExchangeOrderID   string      `json:"exchange_order_id"`
	StopLossOrderID   string      `json:"stop_loss_order_id,omitempty"`
	TakeProfitOrderID string      `json:"take_profit_order_id,omitempty"`
	UnrealizedPnL     float64     `json:"unrealized_pnl,omitempty"`
	RealizedPnL       float64     `json:"realized_pnl,omitempty"`
	Protected         bool        `json:"protected"`
	OpenedAt          time.Time   `json:"opened_at"`
	ClosedAt          time.Time   `json:"closed_at,omitempty"`
}

// RealizedPnLAt computes realized profit for an exit at the given price.
func (t *Trade) RealizedPnLAt(exitPrice float64) float64 {
	return (exitPrice - t.EntryPrice) * t.Quantity * t.Side.Sign()
}

// Position is the canonical shape of an exchange-reported open position.
// Gateway adapters normalize exchange-native field names into it; the core
// never branches on alternative representations.
type Position struct {
	Symbol        string  `json:"symbol"`
	Side          Side    `json:"side"`
	Quantity      float64 `json:"quantity"`
	EntryPrice    float64 `json:"entry_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Leverage      int     `json:"leverage"`
	MarginType    string  `json:"margin_type"`
}

// Balance is one currency balance on the exchange account.
type Balance struct {
	Currency  string  `json:"currency"`
	Available float64 `json:"available"`
}

type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// OrderResult is the acknowledgement returned by an order placement call.
type OrderResult struct {
	OrderID   string      `json:"order_id"`
	Status    OrderStatus `json:"status"`
	AvgPrice  float64     `json:"avg_price,omitempty"`
	FilledQty float64     `json:"filled_qty,omitempty"`
}
