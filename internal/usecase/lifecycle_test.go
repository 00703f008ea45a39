package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akralex/smc-futures-bot/internal/domain"
)

type placedOrder struct {
	symbol   string
	side     domain.Side
	quantity float64
	price    float64
}

// gatewayMock is a configurable in-memory ExchangeGateway.
type gatewayMock struct {
	price        float64
	priceErr     error
	candles      []domain.Candle
	balances     []domain.Balance
	positions    []domain.Position
	positionsErr error

	marketResult *domain.OrderResult
	marketErr    error
	stopErr      error
	limitErr     error

	marketOrders []placedOrder
	stopOrders   []placedOrder
	limitOrders  []placedOrder
	cancelCalls  int
	leverageSet  bool
}

func (g *gatewayMock) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	return g.candles, nil
}

func (g *gatewayMock) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return g.price, g.priceErr
}

func (g *gatewayMock) GetBalances(ctx context.Context) ([]domain.Balance, error) {
	return g.balances, nil
}

func (g *gatewayMock) GetOpenPositions(ctx context.Context, symbol string) ([]domain.Position, error) {
	return g.positions, g.positionsErr
}

func (g *gatewayMock) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (*domain.OrderResult, error) {
	if g.marketErr != nil {
		return nil, g.marketErr
	}
	g.marketOrders = append(g.marketOrders, placedOrder{symbol: symbol, side: side, quantity: quantity})
	if g.marketResult != nil {
		return g.marketResult, nil
	}
	return &domain.OrderResult{OrderID: "mkt-1", Status: domain.OrderStatusFilled, AvgPrice: g.price, FilledQty: quantity}, nil
}

func (g *gatewayMock) PlaceStopOrder(ctx context.Context, symbol string, side domain.Side, quantity, triggerPrice float64) (string, error) {
	if g.stopErr != nil {
		return "", g.stopErr
	}
	g.stopOrders = append(g.stopOrders, placedOrder{symbol: symbol, side: side, quantity: quantity, price: triggerPrice})
	return "sl-1", nil
}

func (g *gatewayMock) PlaceLimitOrder(ctx context.Context, symbol string, side domain.Side, quantity, price float64) (string, error) {
	if g.limitErr != nil {
		return "", g.limitErr
	}
	g.limitOrders = append(g.limitOrders, placedOrder{symbol: symbol, side: side, quantity: quantity, price: price})
	return "tp-1", nil
}

func (g *gatewayMock) CancelOrder(ctx context.Context, symbol, orderID string) error { return nil }

func (g *gatewayMock) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	g.cancelCalls++
	return nil
}

func (g *gatewayMock) GetOrderStatus(ctx context.Context, symbol, orderID string) (domain.OrderStatus, error) {
	return domain.OrderStatusFilled, nil
}

func (g *gatewayMock) SetLeverage(ctx context.Context, symbol string, leverage int, marginType domain.MarginType) error {
	g.leverageSet = true
	return nil
}

type tradeRepoMock struct {
	open      *domain.Trade
	saved     []*domain.Trade
	updated   []*domain.Trade
	closed    []*domain.Trade
	countHour int
}

func (r *tradeRepoMock) SaveTrade(ctx context.Context, trade *domain.Trade) error {
	r.saved = append(r.saved, trade)
	r.open = trade
	return nil
}

func (r *tradeRepoMock) UpdateTrade(ctx context.Context, trade *domain.Trade) error {
	r.updated = append(r.updated, trade)
	return nil
}

func (r *tradeRepoMock) CloseTrade(ctx context.Context, trade *domain.Trade) error {
	r.closed = append(r.closed, trade)
	r.open = nil
	return nil
}

func (r *tradeRepoMock) GetOpenTrade(ctx context.Context, botID string) (*domain.Trade, error) {
	return r.open, nil
}

func (r *tradeRepoMock) ListTrades(ctx context.Context, botID string, limit int) ([]*domain.Trade, error) {
	return nil, nil
}

func (r *tradeRepoMock) CountTradesSince(ctx context.Context, botID string, minutes int) (int, error) {
	return r.countHour, nil
}

type botRepoMock struct {
	mu           sync.Mutex
	bots         []*domain.Bot
	deactivated  bool
	setActiveErr error
}

func (r *botRepoMock) SaveBot(ctx context.Context, bot *domain.Bot) error         { return nil }
func (r *botRepoMock) GetBot(ctx context.Context, id string) (*domain.Bot, error) { return nil, nil }
func (r *botRepoMock) ListBots(ctx context.Context) ([]*domain.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bots, nil
}
func (r *botRepoMock) UpdateBotClosedAt(ctx context.Context, botID string) error { return nil }
func (r *botRepoMock) SetBotActive(ctx context.Context, botID string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setActiveErr != nil {
		return r.setActiveErr
	}
	r.deactivated = !active
	return nil
}

func (r *botRepoMock) isDeactivated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deactivated
}

type signalRepoMock struct {
	saved []*domain.Signal
	links map[string]string
}

func (r *signalRepoMock) SaveSignal(ctx context.Context, signal *domain.Signal) error {
	r.saved = append(r.saved, signal)
	return nil
}

func (r *signalRepoMock) ListSignals(ctx context.Context, botID string, limit int) ([]*domain.Signal, error) {
	return nil, nil
}

func (r *signalRepoMock) LinkSignalToTrade(ctx context.Context, signalID, tradeID string) error {
	if r.links == nil {
		r.links = make(map[string]string)
	}
	r.links[signalID] = tradeID
	return nil
}

func testBot() *domain.Bot {
	return &domain.Bot{
		ID:                "bot-1",
		Symbol:            "BTC-USDT",
		Exchange:          "binance",
		Timeframes:        []string{"15m"},
		RiskPercentage:    5,
		Leverage:          5,
		MarginType:        domain.MarginIsolated,
		MinOrderNotional:  5,
		QuantityPrecision: 2,
		StopLossPercent:   2,
		TakeProfitPercent: 4,
		CooldownMinutes:   30,
		MaxTradesPerHour:  3,
		IsActive:          true,
	}
}

func newManagerForTest(gw *gatewayMock, tr *tradeRepoMock, br *botRepoMock, sr *signalRepoMock, gen SignalGenerator) *PositionLifecycleManager {
	agg := NewMultiTimeframeAggregator(gen, AggregatorConfig{}, zap.NewNop())
	m := NewPositionLifecycleManager(gw, tr, br, sr, agg, NewRiskSizer(), LifecycleConfig{
		MaxOrderRetries: 2,
		RetryBackoffMin: time.Millisecond,
		RetryBackoffMax: 2 * time.Millisecond,
	}, zap.NewNop())
	return m
}

func strongSignal() SignalGenerator {
	return &stubGenerator{byTimeframe: map[string][]domain.Signal{
		"15m": {sig(domain.SignalOrderBlockSupport, domain.DirectionBullish, 0.95)},
	}}
}

func TestTickOpensProtectedPosition(t *testing.T) {
	gw := &gatewayMock{
		price:    100,
		candles:  dummyCandles(30),
		balances: []domain.Balance{{Currency: "USDT", Available: 1000}},
	}
	tr := &tradeRepoMock{}
	sr := &signalRepoMock{}
	m := newManagerForTest(gw, tr, &botRepoMock{}, sr, strongSignal())

	require.NoError(t, m.Tick(context.Background(), testBot()))

	require.Len(t, gw.marketOrders, 1)
	assert.Equal(t, domain.SideLong, gw.marketOrders[0].side)
	assert.InDelta(t, 2.5, gw.marketOrders[0].quantity, 1e-9)

	require.Len(t, tr.saved, 1)
	trade := tr.saved[0]
	assert.Equal(t, domain.TradeStatusOpen, trade.Status)
	assert.True(t, trade.Protected)
	assert.Equal(t, "sl-1", trade.StopLossOrderID)
	assert.Equal(t, "tp-1", trade.TakeProfitOrderID)
	assert.InDelta(t, 98, trade.StopLossPrice, 1e-9)
	assert.InDelta(t, 104, trade.TakeProfitPrice, 1e-9)

	// Protective orders close the position, so they sit on the other side.
	require.Len(t, gw.stopOrders, 1)
	assert.Equal(t, domain.SideShort, gw.stopOrders[0].side)

	require.Len(t, sr.saved, 1)
	assert.Equal(t, trade.ID, sr.links[sr.saved[0].ID])
}

func TestTickRespectsCooldown(t *testing.T) {
	gw := &gatewayMock{price: 100, candles: dummyCandles(30),
		balances: []domain.Balance{{Currency: "USDT", Available: 1000}}}
	tr := &tradeRepoMock{}
	m := newManagerForTest(gw, tr, &botRepoMock{}, &signalRepoMock{}, strongSignal())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.timeNow = func() time.Time { return now }

	bot := testBot()
	bot.LastPositionClosedAt = now.Add(-10 * time.Minute) // 30 min cooldown

	require.NoError(t, m.Tick(context.Background(), bot))
	assert.Empty(t, gw.marketOrders)

	bot.LastPositionClosedAt = now.Add(-31 * time.Minute)
	require.NoError(t, m.Tick(context.Background(), bot))
	assert.Len(t, gw.marketOrders, 1)
}

func TestTickRespectsHourlyLimit(t *testing.T) {
	gw := &gatewayMock{price: 100, candles: dummyCandles(30),
		balances: []domain.Balance{{Currency: "USDT", Available: 1000}}}
	tr := &tradeRepoMock{countHour: 3}
	m := newManagerForTest(gw, tr, &botRepoMock{}, &signalRepoMock{}, strongSignal())

	require.NoError(t, m.Tick(context.Background(), testBot()))
	assert.Empty(t, gw.marketOrders)
}

func TestTickInsufficientSizeIsNotAnError(t *testing.T) {
	gw := &gatewayMock{price: 50000, candles: dummyCandles(30),
		balances: []domain.Balance{{Currency: "USDT", Available: 100}}}
	tr := &tradeRepoMock{}
	m := newManagerForTest(gw, tr, &botRepoMock{}, &signalRepoMock{}, strongSignal())

	bot := testBot()
	bot.RiskPercentage = 0.1
	bot.Leverage = 1

	require.NoError(t, m.Tick(context.Background(), bot))
	assert.Empty(t, gw.marketOrders)
	assert.Empty(t, tr.saved)
}

func TestTickFinalizesExternalClose(t *testing.T) {
	gw := &gatewayMock{price: 110} // no open positions on the exchange
	tr := &tradeRepoMock{open: &domain.Trade{
		ID: "t-1", BotID: "bot-1", Symbol: "BTC-USDT",
		Side: domain.SideLong, Quantity: 2, EntryPrice: 100,
		Status: domain.TradeStatusOpen, OpenedAt: time.Now().Add(-time.Hour),
	}}
	m := newManagerForTest(gw, tr, &botRepoMock{}, &signalRepoMock{}, strongSignal())

	bot := testBot()
	require.NoError(t, m.Tick(context.Background(), bot))

	require.Len(t, tr.closed, 1)
	closed := tr.closed[0]
	assert.Equal(t, domain.TradeStatusClosed, closed.Status)
	assert.InDelta(t, 110, closed.ExitPrice, 1e-9)
	assert.InDelta(t, 20, closed.RealizedPnL, 1e-9)
	assert.False(t, bot.LastPositionClosedAt.IsZero())
	assert.Equal(t, 1, gw.cancelCalls)
}

func TestTickShortPnLSign(t *testing.T) {
	gw := &gatewayMock{price: 110}
	tr := &tradeRepoMock{open: &domain.Trade{
		ID: "t-1", BotID: "bot-1", Symbol: "BTC-USDT",
		Side: domain.SideShort, Quantity: 2, EntryPrice: 100,
		Status: domain.TradeStatusOpen, OpenedAt: time.Now().Add(-time.Hour),
	}}
	m := newManagerForTest(gw, tr, &botRepoMock{}, &signalRepoMock{}, strongSignal())

	require.NoError(t, m.Tick(context.Background(), testBot()))
	require.Len(t, tr.closed, 1)
	assert.InDelta(t, -20, tr.closed[0].RealizedPnL, 1e-9)
}

func TestTickReconciliationAdoptsExchangeQuantity(t *testing.T) {
	gw := &gatewayMock{
		price: 100,
		positions: []domain.Position{{
			Symbol: "BTC-USDT", Side: domain.SideLong,
			Quantity: 1.5, EntryPrice: 101, UnrealizedPnL: -1.5,
		}},
	}
	tr := &tradeRepoMock{open: &domain.Trade{
		ID: "t-1", BotID: "bot-1", Symbol: "BTC-USDT",
		Side: domain.SideLong, Quantity: 2, EntryPrice: 100,
		Status: domain.TradeStatusOpen, Protected: true, OpenedAt: time.Now(),
	}}
	m := newManagerForTest(gw, tr, &botRepoMock{}, &signalRepoMock{}, strongSignal())

	require.NoError(t, m.Tick(context.Background(), testBot()))

	require.Len(t, tr.updated, 1)
	assert.InDelta(t, 1.5, tr.updated[0].Quantity, 1e-9)
	assert.InDelta(t, 101, tr.updated[0].EntryPrice, 1e-9)
	assert.InDelta(t, -1.5, tr.updated[0].UnrealizedPnL, 1e-9)
	assert.Empty(t, tr.closed)
}

func TestTickAdoptsUntrackedPosition(t *testing.T) {
	gw := &gatewayMock{
		price:    100,
		candles:  dummyCandles(30),
		balances: []domain.Balance{{Currency: "USDT", Available: 1000}},
		positions: []domain.Position{{
			Symbol: "BTC-USDT", Side: domain.SideShort, Quantity: 1, EntryPrice: 99,
		}},
	}
	tr := &tradeRepoMock{}
	m := newManagerForTest(gw, tr, &botRepoMock{}, &signalRepoMock{}, strongSignal())

	require.NoError(t, m.Tick(context.Background(), testBot()))

	// No new entry while the exchange already holds a position.
	assert.Empty(t, gw.marketOrders)
	require.Len(t, tr.saved, 1)
	assert.Equal(t, domain.SideShort, tr.saved[0].Side)
	assert.InDelta(t, 1, tr.saved[0].Quantity, 1e-9)
}

func TestTickMaxDurationCloses(t *testing.T) {
	openedAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	gw := &gatewayMock{
		price: 105,
		positions: []domain.Position{{
			Symbol: "BTC-USDT", Side: domain.SideLong, Quantity: 2, EntryPrice: 100,
		}},
	}
	tr := &tradeRepoMock{open: &domain.Trade{
		ID: "t-1", BotID: "bot-1", Symbol: "BTC-USDT",
		Side: domain.SideLong, Quantity: 2, EntryPrice: 100,
		Status: domain.TradeStatusOpen, Protected: true, OpenedAt: openedAt,
	}}
	m := newManagerForTest(gw, tr, &botRepoMock{}, &signalRepoMock{}, strongSignal())
	m.timeNow = func() time.Time { return openedAt.Add(3 * time.Hour) }

	bot := testBot()
	bot.MaxTradeDuration = 120

	require.NoError(t, m.Tick(context.Background(), bot))

	require.Len(t, gw.marketOrders, 1)
	assert.Equal(t, domain.SideShort, gw.marketOrders[0].side)
	require.Len(t, tr.closed, 1)
	assert.InDelta(t, 10, tr.closed[0].RealizedPnL, 1e-9)
}

func TestUnprotectedPositionStaysOpenAndFlagged(t *testing.T) {
	gw := &gatewayMock{
		price:    100,
		candles:  dummyCandles(30),
		balances: []domain.Balance{{Currency: "USDT", Available: 1000}},
		stopErr:  domain.Transient("place stop", errors.New("timeout")),
	}
	tr := &tradeRepoMock{}
	m := newManagerForTest(gw, tr, &botRepoMock{}, &signalRepoMock{}, strongSignal())

	require.NoError(t, m.Tick(context.Background(), testBot()))

	require.Len(t, tr.saved, 1)
	trade := tr.saved[0]
	assert.False(t, trade.Protected)
	assert.Empty(t, trade.StopLossOrderID)
	// Take profit still went through.
	assert.Equal(t, "tp-1", trade.TakeProfitOrderID)
}

func TestRetryStopsOnNonTransientError(t *testing.T) {
	m := newManagerForTest(&gatewayMock{}, &tradeRepoMock{}, &botRepoMock{}, &signalRepoMock{}, strongSignal())

	calls := 0
	err := m.retry(context.Background(), func() error {
		calls++
		return errors.New("margin is insufficient")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryRetriesTransientErrors(t *testing.T) {
	m := newManagerForTest(&gatewayMock{}, &tradeRepoMock{}, &botRepoMock{}, &signalRepoMock{}, strongSignal())

	calls := 0
	err := m.retry(context.Background(), func() error {
		calls++
		if calls < 2 {
			return domain.Transient("test", errors.New("rate limited"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestClosePositionManual(t *testing.T) {
	gw := &gatewayMock{price: 120}
	tr := &tradeRepoMock{open: &domain.Trade{
		ID: "t-1", BotID: "bot-1", Symbol: "BTC-USDT",
		Side: domain.SideLong, Quantity: 1, EntryPrice: 100,
		Status: domain.TradeStatusOpen, OpenedAt: time.Now(),
	}}
	m := newManagerForTest(gw, tr, &botRepoMock{}, &signalRepoMock{}, strongSignal())

	require.NoError(t, m.ClosePosition(context.Background(), testBot()))
	require.Len(t, tr.closed, 1)
	assert.InDelta(t, 20, tr.closed[0].RealizedPnL, 1e-9)

	// Nothing to close on a flat bot.
	err := m.ClosePosition(context.Background(), testBot())
	assert.ErrorIs(t, err, domain.ErrNoPosition)
}
