package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/akralex/smc-futures-bot/internal/domain"
)

// LifecycleConfig tunes the per-tick behavior of the lifecycle manager.
type LifecycleConfig struct {
	// CandleLimit is how many candles are fetched per timeframe.
	CandleLimit int `yaml:"candle_limit"`
	// MaxOrderRetries bounds retries of a failing order call within one tick.
	MaxOrderRetries int           `yaml:"max_order_retries"`
	RetryBackoffMin time.Duration `yaml:"retry_backoff_min"`
	RetryBackoffMax time.Duration `yaml:"retry_backoff_max"`
}

func (c LifecycleConfig) withDefaults() LifecycleConfig {
	if c.CandleLimit <= 0 {
		c.CandleLimit = 150
	}
	if c.MaxOrderRetries <= 0 {
		c.MaxOrderRetries = 3
	}
	if c.RetryBackoffMin <= 0 {
		c.RetryBackoffMin = 500 * time.Millisecond
	}
	if c.RetryBackoffMax <= 0 {
		c.RetryBackoffMax = 5 * time.Second
	}
	return c
}

// PositionLifecycleManager drives one bot through its position state machine
// on every tick: reconcile the open trade against the exchange first, then
// evaluate a new entry only when flat. The exchange is the source of truth;
// the local record converges toward it, never the other way around.
type PositionLifecycleManager struct {
	gateway    domain.ExchangeGateway
	trades     domain.TradeRepository
	bots       domain.BotRepository
	signals    domain.SignalRepository
	aggregator *MultiTimeframeAggregator
	sizer      *RiskSizer
	cfg        LifecycleConfig
	logger     *zap.Logger
	timeNow    func() time.Time // For testing
}

func NewPositionLifecycleManager(
	gateway domain.ExchangeGateway,
	trades domain.TradeRepository,
	bots domain.BotRepository,
	signals domain.SignalRepository,
	aggregator *MultiTimeframeAggregator,
	sizer *RiskSizer,
	cfg LifecycleConfig,
	logger *zap.Logger,
) *PositionLifecycleManager {
	return &PositionLifecycleManager{
		gateway:    gateway,
		trades:     trades,
		bots:       bots,
		signals:    signals,
		aggregator: aggregator,
		sizer:      sizer,
		cfg:        cfg.withDefaults(),
		logger:     logger,
		timeNow:    time.Now,
	}
}

// Tick runs one full cycle for the bot. Errors are returned for the caller
// to log; the next tick retries from whatever state was persisted.
func (m *PositionLifecycleManager) Tick(ctx context.Context, bot *domain.Bot) error {
	trade, err := m.trades.GetOpenTrade(ctx, bot.ID)
	if err != nil {
		return fmt.Errorf("load open trade: %w", err)
	}
	if trade != nil {
		return m.manageOpenTrade(ctx, bot, trade)
	}
	return m.evaluateEntry(ctx, bot)
}

// manageOpenTrade reconciles the local trade with the exchange and applies
// monitoring rules (max duration, missing protection).
func (m *PositionLifecycleManager) manageOpenTrade(ctx context.Context, bot *domain.Bot, trade *domain.Trade) error {
	positions, err := m.gateway.GetOpenPositions(ctx, bot.Symbol)
	if err != nil {
		return fmt.Errorf("fetch positions: %w", err)
	}

	pos := findPosition(positions, bot.Symbol)
	if pos == nil {
		// Closed on the exchange side (stop hit, liquidation, manual close).
		return m.finalizeExternalClose(ctx, bot, trade)
	}

	if pos.Side != trade.Side || !quantityMatches(pos.Quantity, trade.Quantity) {
		m.logger.Warn("reconciliation mismatch, adopting exchange state",
			zap.String("symbol", bot.Symbol),
			zap.String("local_side", string(trade.Side)),
			zap.String("exchange_side", string(pos.Side)),
			zap.Float64("local_qty", trade.Quantity),
			zap.Float64("exchange_qty", pos.Quantity))
		trade.Side = pos.Side
		trade.Quantity = pos.Quantity
		if pos.EntryPrice > 0 {
			trade.EntryPrice = pos.EntryPrice
		}
	}

	trade.UnrealizedPnL = pos.UnrealizedPnL

	if !trade.Protected {
		m.ensureProtection(ctx, bot, trade)
	}

	if bot.MaxTradeDuration > 0 {
		age := m.timeNow().Sub(trade.OpenedAt)
		if age >= time.Duration(bot.MaxTradeDuration)*time.Minute {
			m.logger.Info("max trade duration reached, closing",
				zap.String("symbol", bot.Symbol),
				zap.Duration("age", age))
			return m.closeTrade(ctx, bot, trade, "max_duration")
		}
	}

	return m.trades.UpdateTrade(ctx, trade)
}

// finalizeExternalClose records a close that already happened on the exchange.
// The fill price is not available here, so the current market price is used
// as the exit estimate.
func (m *PositionLifecycleManager) finalizeExternalClose(ctx context.Context, bot *domain.Bot, trade *domain.Trade) error {
	if err := m.gateway.CancelAllOpenOrders(ctx, bot.Symbol); err != nil {
		m.logger.Warn("cancel remaining orders failed",
			zap.String("symbol", bot.Symbol), zap.Error(err))
	}

	exitPrice, err := m.gateway.GetCurrentPrice(ctx, bot.Symbol)
	if err != nil {
		// Keep the trade open locally and reconcile again next tick.
		return fmt.Errorf("fetch exit price: %w", err)
	}

	return m.persistClose(ctx, bot, trade, exitPrice, "exchange_closed")
}

// ClosePosition closes the bot's open position at market, on operator request.
func (m *PositionLifecycleManager) ClosePosition(ctx context.Context, bot *domain.Bot) error {
	trade, err := m.trades.GetOpenTrade(ctx, bot.ID)
	if err != nil {
		return fmt.Errorf("load open trade: %w", err)
	}
	if trade == nil {
		return domain.ErrNoPosition
	}
	return m.closeTrade(ctx, bot, trade, "manual")
}

// closeTrade submits a market order on the opposite side and persists the
// terminal state. If the close order cannot be confirmed the trade stays
// open and the next tick retries.
func (m *PositionLifecycleManager) closeTrade(ctx context.Context, bot *domain.Bot, trade *domain.Trade, reason string) error {
	if err := m.gateway.CancelAllOpenOrders(ctx, bot.Symbol); err != nil {
		m.logger.Warn("cancel protective orders failed",
			zap.String("symbol", bot.Symbol), zap.Error(err))
	}

	closeSide := domain.SideShort
	if trade.Side == domain.SideShort {
		closeSide = domain.SideLong
	}

	var result *domain.OrderResult
	err := m.retry(ctx, func() error {
		var placeErr error
		result, placeErr = m.gateway.PlaceMarketOrder(ctx, bot.Symbol, closeSide, trade.Quantity)
		return placeErr
	})
	if err != nil {
		return fmt.Errorf("close order for %s: %w", bot.Symbol, err)
	}

	exitPrice := result.AvgPrice
	if exitPrice <= 0 {
		if p, perr := m.gateway.GetCurrentPrice(ctx, bot.Symbol); perr == nil {
			exitPrice = p
		} else {
			exitPrice = trade.EntryPrice
		}
	}

	return m.persistClose(ctx, bot, trade, exitPrice, reason)
}

func (m *PositionLifecycleManager) persistClose(ctx context.Context, bot *domain.Bot, trade *domain.Trade, exitPrice float64, reason string) error {
	now := m.timeNow()
	trade.Status = domain.TradeStatusClosed
	trade.ExitPrice = exitPrice
	trade.RealizedPnL = trade.RealizedPnLAt(exitPrice)
	trade.UnrealizedPnL = 0
	trade.ClosedAt = now

	if err := m.trades.CloseTrade(ctx, trade); err != nil {
		return fmt.Errorf("persist close: %w", err)
	}
	bot.LastPositionClosedAt = now

	m.logger.Info("position closed",
		zap.String("symbol", bot.Symbol),
		zap.String("side", string(trade.Side)),
		zap.Float64("exit_price", exitPrice),
		zap.Float64("realized_pnl", trade.RealizedPnL),
		zap.String("reason", reason))
	return nil
}

// evaluateEntry runs gates, signal selection and sizing, then opens a
// position when everything passes.
func (m *PositionLifecycleManager) evaluateEntry(ctx context.Context, bot *domain.Bot) error {
	if !bot.IsActive {
		return nil
	}
	now := m.timeNow()
	if !bot.CooldownElapsed(now) {
		return nil
	}
	if bot.MaxTradesPerHour > 0 {
		count, err := m.trades.CountTradesSince(ctx, bot.ID, 60)
		if err != nil {
			return fmt.Errorf("count recent trades: %w", err)
		}
		if count >= bot.MaxTradesPerHour {
			m.logger.Debug("hourly trade limit reached", zap.String("symbol", bot.Symbol))
			return nil
		}
	}

	currentPrice, err := m.gateway.GetCurrentPrice(ctx, bot.Symbol)
	if err != nil {
		return fmt.Errorf("fetch price: %w", err)
	}

	candlesByTimeframe := make(map[string][]domain.Candle, len(bot.Timeframes))
	for _, tf := range bot.Timeframes {
		candles, err := m.gateway.GetCandles(ctx, bot.Symbol, tf, m.cfg.CandleLimit)
		if err != nil {
			return fmt.Errorf("fetch candles %s: %w", tf, err)
		}
		candlesByTimeframe[tf] = candles
	}

	signal := m.aggregator.BestSignal(bot, candlesByTimeframe, currentPrice)
	if signal == nil {
		return nil
	}
	signal.ID = uuid.NewString()
	signal.BotID = bot.ID
	signal.CreatedAt = now
	if err := m.signals.SaveSignal(ctx, signal); err != nil {
		m.logger.Warn("save signal failed", zap.Error(err))
	}

	quantity, err := m.sizeFor(ctx, bot, currentPrice)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientSize) {
			m.logger.Debug("computed size below minimum, skipping",
				zap.String("symbol", bot.Symbol))
			return nil
		}
		if domain.IsFatalConfig(err) {
			m.logger.Error("deactivating bot on configuration error",
				zap.String("symbol", bot.Symbol), zap.Error(err))
			if dErr := m.bots.SetBotActive(ctx, bot.ID, false); dErr != nil {
				m.logger.Error("deactivate failed", zap.Error(dErr))
			}
			bot.IsActive = false
		}
		return err
	}

	// Last look at the exchange before committing capital. A position that
	// exists here but not locally (manual trade, an entry order lost to a
	// timeout on a previous tick) is adopted instead of doubled.
	positions, err := m.gateway.GetOpenPositions(ctx, bot.Symbol)
	if err != nil {
		return fmt.Errorf("pre-entry position check: %w", err)
	}
	if pos := findPosition(positions, bot.Symbol); pos != nil {
		return m.adoptPosition(ctx, bot, pos)
	}

	if err := m.gateway.SetLeverage(ctx, bot.Symbol, bot.Leverage, bot.MarginType); err != nil {
		m.logger.Warn("set leverage failed",
			zap.String("symbol", bot.Symbol), zap.Error(err))
	}

	side := domain.SideLong
	if signal.Direction == domain.DirectionBearish {
		side = domain.SideShort
	}
	return m.openPosition(ctx, bot, signal, side, quantity, currentPrice)
}

func (m *PositionLifecycleManager) sizeFor(ctx context.Context, bot *domain.Bot, currentPrice float64) (float64, error) {
	balances, err := m.gateway.GetBalances(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch balances: %w", err)
	}
	quote := quoteCurrency(bot.Symbol)
	var available float64
	for _, b := range balances {
		if strings.EqualFold(b.Currency, quote) {
			available = b.Available
			break
		}
	}
	return m.sizer.Size(SizeRequest{
		Balance:           available,
		RiskPercentage:    bot.RiskPercentage,
		Leverage:          bot.Leverage,
		CurrentPrice:      currentPrice,
		MinOrderNotional:  bot.MinOrderNotional,
		MaxPositionSize:   bot.MaxPositionSize,
		QuantityPrecision: bot.QuantityPrecision,
	})
}

func (m *PositionLifecycleManager) openPosition(ctx context.Context, bot *domain.Bot, signal *domain.Signal, side domain.Side, quantity, currentPrice float64) error {
	var result *domain.OrderResult
	err := m.retry(ctx, func() error {
		var placeErr error
		result, placeErr = m.gateway.PlaceMarketOrder(ctx, bot.Symbol, side, quantity)
		return placeErr
	})
	if err != nil {
		// The order may or may not exist on the exchange. Do not record a
		// trade; the pre-entry check next tick adopts it if it filled.
		m.logger.Error("entry order unresolved",
			zap.String("symbol", bot.Symbol), zap.Error(err))
		return err
	}

	entryPrice := result.AvgPrice
	if entryPrice <= 0 {
		entryPrice = currentPrice
	}
	filled := result.FilledQty
	if filled <= 0 {
		filled = quantity
	}

	now := m.timeNow()
	sign := side.Sign()
	trade := &domain.Trade{
		ID:              uuid.NewString(),
		BotID:           bot.ID,
		Symbol:          bot.Symbol,
		Side:            side,
		Quantity:        filled,
		EntryPrice:      entryPrice,
		StopLossPrice:   entryPrice * (1 - sign*bot.StopLossPercent/100),
		TakeProfitPrice: entryPrice * (1 + sign*bot.TakeProfitPercent/100),
		Status:          domain.TradeStatusOpen,
		ExchangeOrderID: result.OrderID,
		OpenedAt:        now,
	}
	if err := m.trades.SaveTrade(ctx, trade); err != nil {
		return fmt.Errorf("persist trade: %w", err)
	}
	if err := m.signals.LinkSignalToTrade(ctx, signal.ID, trade.ID); err != nil {
		m.logger.Warn("link signal to trade failed", zap.Error(err))
	}

	m.logger.Info("position opened",
		zap.String("symbol", bot.Symbol),
		zap.String("side", string(side)),
		zap.Float64("quantity", filled),
		zap.Float64("entry_price", entryPrice),
		zap.String("signal_type", string(signal.Type)),
		zap.Float64("signal_strength", signal.Strength))

	m.ensureProtection(ctx, bot, trade)
	return m.trades.UpdateTrade(ctx, trade)
}

// adoptPosition creates a local trade record for a position the exchange
// reports but the store does not know about.
func (m *PositionLifecycleManager) adoptPosition(ctx context.Context, bot *domain.Bot, pos *domain.Position) error {
	m.logger.Warn("adopting untracked exchange position",
		zap.String("symbol", bot.Symbol),
		zap.String("side", string(pos.Side)),
		zap.Float64("quantity", pos.Quantity))

	now := m.timeNow()
	sign := pos.Side.Sign()
	trade := &domain.Trade{
		ID:              uuid.NewString(),
		BotID:           bot.ID,
		Symbol:          bot.Symbol,
		Side:            pos.Side,
		Quantity:        pos.Quantity,
		EntryPrice:      pos.EntryPrice,
		StopLossPrice:   pos.EntryPrice * (1 - sign*bot.StopLossPercent/100),
		TakeProfitPrice: pos.EntryPrice * (1 + sign*bot.TakeProfitPercent/100),
		Status:          domain.TradeStatusOpen,
		UnrealizedPnL:   pos.UnrealizedPnL,
		OpenedAt:        now,
	}
	if err := m.trades.SaveTrade(ctx, trade); err != nil {
		return fmt.Errorf("persist adopted trade: %w", err)
	}
	m.ensureProtection(ctx, bot, trade)
	return m.trades.UpdateTrade(ctx, trade)
}

// ensureProtection places the stop loss and take profit orders. Failure to
// protect never rolls back the position; it is escalated in the log and
// retried on subsequent ticks.
func (m *PositionLifecycleManager) ensureProtection(ctx context.Context, bot *domain.Bot, trade *domain.Trade) {
	closeSide := domain.SideShort
	if trade.Side == domain.SideShort {
		closeSide = domain.SideLong
	}

	protected := true

	if trade.StopLossOrderID == "" && bot.StopLossPercent > 0 {
		err := m.retry(ctx, func() error {
			id, placeErr := m.gateway.PlaceStopOrder(ctx, bot.Symbol, closeSide, trade.Quantity, trade.StopLossPrice)
			if placeErr != nil {
				return placeErr
			}
			trade.StopLossOrderID = id
			return nil
		})
		if err != nil {
			protected = false
			m.logger.Error("OPEN POSITION WITHOUT STOP LOSS",
				zap.String("severity", "critical"),
				zap.String("symbol", bot.Symbol),
				zap.String("trade_id", trade.ID),
				zap.Error(err))
		}
	}

	if trade.TakeProfitOrderID == "" && bot.TakeProfitPercent > 0 {
		err := m.retry(ctx, func() error {
			id, placeErr := m.gateway.PlaceLimitOrder(ctx, bot.Symbol, closeSide, trade.Quantity, trade.TakeProfitPrice)
			if placeErr != nil {
				return placeErr
			}
			trade.TakeProfitOrderID = id
			return nil
		})
		if err != nil {
			protected = false
			m.logger.Error("take profit placement failed",
				zap.String("symbol", bot.Symbol),
				zap.String("trade_id", trade.ID),
				zap.Error(err))
		}
	}

	trade.Protected = protected
}

// retry runs fn, backing off between attempts. Only transient exchange
// errors are retried; anything else aborts immediately.
func (m *PositionLifecycleManager) retry(ctx context.Context, fn func() error) error {
	b := &backoff.Backoff{
		Min:    m.cfg.RetryBackoffMin,
		Max:    m.cfg.RetryBackoffMax,
		Jitter: true,
	}
	var err error
	for attempt := 0; attempt < m.cfg.MaxOrderRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !domain.IsTransient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return err
}

func findPosition(positions []domain.Position, symbol string) *domain.Position {
	for i := range positions {
		if positions[i].Symbol == symbol && positions[i].Quantity > 0 {
			return &positions[i]
		}
	}
	return nil
}

func quantityMatches(a, b float64) bool {
	tol := 1e-8 * math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= tol
}

// quoteCurrency extracts the quote leg from a BASE-QUOTE symbol.
func quoteCurrency(symbol string) string {
	if i := strings.LastIndex(symbol, "-"); i >= 0 {
		return symbol[i+1:]
	}
	return "USDT"
}
