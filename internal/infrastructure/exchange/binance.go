package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"github.com/akralex/smc-futures-bot/internal/domain"
)

// BinanceGateway implements domain.ExchangeGateway on Binance USDT-M futures.
type BinanceGateway struct {
	client *futures.Client
}

func NewBinanceGateway(apiKey, apiSecret string, testnet bool) *BinanceGateway {
	futures.UseTestnet = testnet
	client := futures.NewClient(apiKey, apiSecret)
	client.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	return &BinanceGateway{client: client}
}

func (g *BinanceGateway) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	klines, err := g.client.NewKlinesService().
		Symbol(BinanceSymbol(symbol)).
		Interval(timeframe).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, classify("get candles", err)
	}

	candles := make([]domain.Candle, 0, len(klines))
	for _, k := range klines {
		candle := domain.Candle{Timestamp: time.UnixMilli(k.OpenTime)}
		if candle.Open, err = strconv.ParseFloat(k.Open, 64); err != nil {
			return nil, fmt.Errorf("parse kline open: %w", err)
		}
		if candle.High, err = strconv.ParseFloat(k.High, 64); err != nil {
			return nil, fmt.Errorf("parse kline high: %w", err)
		}
		if candle.Low, err = strconv.ParseFloat(k.Low, 64); err != nil {
			return nil, fmt.Errorf("parse kline low: %w", err)
		}
		if candle.Close, err = strconv.ParseFloat(k.Close, 64); err != nil {
			return nil, fmt.Errorf("parse kline close: %w", err)
		}
		if candle.Volume, err = strconv.ParseFloat(k.Volume, 64); err != nil {
			return nil, fmt.Errorf("parse kline volume: %w", err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func (g *BinanceGateway) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := g.client.NewListPricesService().
		Symbol(BinanceSymbol(symbol)).
		Do(ctx)
	if err != nil {
		return 0, classify("get price", err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return strconv.ParseFloat(prices[0].Price, 64)
}

func (g *BinanceGateway) GetBalances(ctx context.Context) ([]domain.Balance, error) {
	raw, err := g.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return nil, classify("get balances", err)
	}

	balances := make([]domain.Balance, 0, len(raw))
	for _, b := range raw {
		available, err := strconv.ParseFloat(b.AvailableBalance, 64)
		if err != nil {
			return nil, fmt.Errorf("parse balance %s: %w", b.Asset, err)
		}
		balances = append(balances, domain.Balance{Currency: b.Asset, Available: available})
	}
	return balances, nil
}

func (g *BinanceGateway) GetOpenPositions(ctx context.Context, symbol string) ([]domain.Position, error) {
	risks, err := g.client.NewGetPositionRiskService().
		Symbol(BinanceSymbol(symbol)).
		Do(ctx)
	if err != nil {
		return nil, classify("get positions", err)
	}

	var positions []domain.Position
	for _, r := range risks {
		amt, err := strconv.ParseFloat(r.PositionAmt, 64)
		if err != nil {
			return nil, fmt.Errorf("parse position amount: %w", err)
		}
		if amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
		pnl, _ := strconv.ParseFloat(r.UnRealizedProfit, 64)
		leverage, _ := strconv.Atoi(r.Leverage)

		side := domain.SideLong
		quantity := amt
		if amt < 0 {
			side = domain.SideShort
			quantity = -amt
		}
		positions = append(positions, domain.Position{
			Symbol:        CanonicalFromBinance(r.Symbol),
			Side:          side,
			Quantity:      quantity,
			EntryPrice:    entry,
			UnrealizedPnL: pnl,
			Leverage:      leverage,
			MarginType:    r.MarginType,
		})
	}
	return positions, nil
}

func (g *BinanceGateway) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (*domain.OrderResult, error) {
	resp, err := g.client.NewCreateOrderService().
		Symbol(BinanceSymbol(symbol)).
		Side(orderSide(side)).
		Type(futures.OrderTypeMarket).
		Quantity(formatQty(quantity)).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT).
		Do(ctx)
	if err != nil {
		return nil, classify("place market order", err)
	}

	avgPrice, _ := strconv.ParseFloat(resp.AvgPrice, 64)
	filled, _ := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	return &domain.OrderResult{
		OrderID:   strconv.FormatInt(resp.OrderID, 10),
		Status:    orderStatus(resp.Status),
		AvgPrice:  avgPrice,
		FilledQty: filled,
	}, nil
}

// PlaceStopOrder submits a reduce-only stop-market order, used as the
// protective stop loss.
func (g *BinanceGateway) PlaceStopOrder(ctx context.Context, symbol string, side domain.Side, quantity, triggerPrice float64) (string, error) {
	resp, err := g.client.NewCreateOrderService().
		Symbol(BinanceSymbol(symbol)).
		Side(orderSide(side)).
		Type(futures.OrderTypeStopMarket).
		Quantity(formatQty(quantity)).
		StopPrice(formatQty(triggerPrice)).
		ReduceOnly(true).
		Do(ctx)
	if err != nil {
		return "", classify("place stop order", err)
	}
	return strconv.FormatInt(resp.OrderID, 10), nil
}

// PlaceLimitOrder submits a reduce-only GTC limit order, used as the
// protective take profit.
func (g *BinanceGateway) PlaceLimitOrder(ctx context.Context, symbol string, side domain.Side, quantity, price float64) (string, error) {
	resp, err := g.client.NewCreateOrderService().
		Symbol(BinanceSymbol(symbol)).
		Side(orderSide(side)).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(formatQty(quantity)).
		Price(formatQty(price)).
		ReduceOnly(true).
		Do(ctx)
	if err != nil {
		return "", classify("place limit order", err)
	}
	return strconv.FormatInt(resp.OrderID, 10), nil
}

func (g *BinanceGateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid order id %q: %w", orderID, err)
	}
	_, err = g.client.NewCancelOrderService().
		Symbol(BinanceSymbol(symbol)).
		OrderID(id).
		Do(ctx)
	if err != nil && !isUnknownOrder(err) {
		return classify("cancel order", err)
	}
	return nil
}

func (g *BinanceGateway) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	err := g.client.NewCancelAllOpenOrdersService().
		Symbol(BinanceSymbol(symbol)).
		Do(ctx)
	if err != nil {
		return classify("cancel all orders", err)
	}
	return nil
}

func (g *BinanceGateway) GetOrderStatus(ctx context.Context, symbol, orderID string) (domain.OrderStatus, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid order id %q: %w", orderID, err)
	}
	order, err := g.client.NewGetOrderService().
		Symbol(BinanceSymbol(symbol)).
		OrderID(id).
		Do(ctx)
	if err != nil {
		return "", classify("get order status", err)
	}
	return orderStatus(order.Status), nil
}

func (g *BinanceGateway) SetLeverage(ctx context.Context, symbol string, leverage int, marginType domain.MarginType) error {
	native := BinanceSymbol(symbol)
	_, err := g.client.NewChangeLeverageService().
		Symbol(native).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return classify("set leverage", err)
	}

	mt := futures.MarginTypeIsolated
	if marginType == domain.MarginCross {
		mt = futures.MarginTypeCrossed
	}
	err = g.client.NewChangeMarginTypeService().
		Symbol(native).
		MarginType(mt).
		Do(ctx)
	// -4046: margin type already set.
	if err != nil && !isAPICode(err, -4046) {
		return classify("set margin type", err)
	}
	return nil
}

func orderSide(side domain.Side) futures.SideType {
	if side == domain.SideShort {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func orderStatus(status futures.OrderStatusType) domain.OrderStatus {
	switch status {
	case futures.OrderStatusTypeNew:
		return domain.OrderStatusOpen
	case futures.OrderStatusTypePartiallyFilled:
		return domain.OrderStatusPartiallyFilled
	case futures.OrderStatusTypeFilled:
		return domain.OrderStatusFilled
	case futures.OrderStatusTypeCanceled:
		return domain.OrderStatusCanceled
	case futures.OrderStatusTypeRejected:
		return domain.OrderStatusRejected
	case futures.OrderStatusTypeExpired:
		return domain.OrderStatusExpired
	default:
		return domain.OrderStatus(status)
	}
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// classify wraps network failures, rate limits and server errors as
// transient so the caller retries them; everything else passes through.
func classify(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(op, err)
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1000, -1001, -1003, -1007, -1016:
			return domain.Transient(op, err)
		}
		if apiErr.Code == 0 && apiErr.Message != "" {
			// HTTP-level failure without an API code, usually a 5xx.
			return domain.Transient(op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isAPICode(err error, code int64) bool {
	var apiErr *common.APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func isUnknownOrder(err error) bool {
	return isAPICode(err, -2011) || strings.Contains(err.Error(), "Unknown order")
}
