package domain

import "context"

// ExchangeGateway abstracts a futures exchange REST API. Implementations are
// exchange-specific and own the mapping between the canonical BASE-QUOTE
// symbol form used here and exchange-native symbols.
type ExchangeGateway interface {
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	GetBalances(ctx context.Context) ([]Balance, error)
	GetOpenPositions(ctx context.Context, symbol string) ([]Position, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side Side, quantity float64) (*OrderResult, error)
	PlaceStopOrder(ctx context.Context, symbol string, side Side, quantity, triggerPrice float64) (string, error)
	PlaceLimitOrder(ctx context.Context, symbol string, side Side, quantity, price float64) (string, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	CancelAllOpenOrders(ctx context.Context, symbol string) error
	GetOrderStatus(ctx context.Context, symbol, orderID string) (OrderStatus, error)
	SetLeverage(ctx context.Context, symbol string, leverage int, marginType MarginType) error
}

// BotRepository defines storage operations for bot configurations.
type BotRepository interface {
	SaveBot(ctx context.Context, bot *Bot) error
	GetBot(ctx context.Context, id string) (*Bot, error)
	ListBots(ctx context.Context) ([]*Bot, error)
	UpdateBotClosedAt(ctx context.Context, botID string) error
	SetBotActive(ctx context.Context, botID string, active bool) error
}

// TradeRepository defines storage operations for trades.
type TradeRepository interface {
	SaveTrade(ctx context.Context, trade *Trade) error
	UpdateTrade(ctx context.Context, trade *Trade) error
	// CloseTrade persists the terminal state and the bot cooldown timestamp
	// in a single transaction.
	CloseTrade(ctx context.Context, trade *Trade) error
	GetOpenTrade(ctx context.Context, botID string) (*Trade, error)
	ListTrades(ctx context.Context, botID string, limit int) ([]*Trade, error)
	CountTradesSince(ctx context.Context, botID string, minutes int) (int, error)
}

// SignalRepository is the append-only audit log of selected signals.
type SignalRepository interface {
	SaveSignal(ctx context.Context, signal *Signal) error
	ListSignals(ctx context.Context, botID string, limit int) ([]*Signal, error)
	LinkSignalToTrade(ctx context.Context, signalID, tradeID string) error
}
