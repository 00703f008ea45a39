package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/akralex/smc-futures-bot/internal/domain"
)

const (
	KuCoinBaseURL = "https://api-futures.kucoin.com"

	kucoinOKCode = "200000"
)

// timeframe to KuCoin kline granularity in minutes
var kucoinGranularity = map[string]int{
	"1m": 1, "5m": 5, "15m": 15, "30m": 30,
	"1h": 60, "2h": 120, "4h": 240, "8h": 480, "12h": 720,
	"1d": 1440, "1w": 10080,
}

// KuCoinGateway implements domain.ExchangeGateway on KuCoin futures.
// Leverage on KuCoin is a per-order parameter, so SetLeverage only records
// it for subsequent orders.
type KuCoinGateway struct {
	apiKey     string
	apiSecret  string
	passphrase string
	baseURL    string
	client     *http.Client
	logger     *zap.Logger

	wsConn    *websocket.Conn
	callbacks []func(symbol string, price float64)
	prices    map[string]float64
	leverage  int
	mu        sync.Mutex
}

func NewKuCoinGateway(apiKey, apiSecret, passphrase, baseURL string, logger *zap.Logger) *KuCoinGateway {
	if baseURL == "" {
		baseURL = KuCoinBaseURL
	}
	return &KuCoinGateway{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		passphrase: passphrase,
		baseURL:    baseURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		prices:     make(map[string]float64),
		leverage:   1,
	}
}

// --- REST API ---

func (k *KuCoinGateway) sign(secretPart string, payload string) string {
	h := hmac.New(sha256.New, []byte(secretPart))
	h.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (k *KuCoinGateway) sendRequest(ctx context.Context, method, path string, payload map[string]interface{}) ([]byte, error) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	var body []byte
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = jsonBody
	}

	req, err := http.NewRequestWithContext(ctx, method, k.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}

	// timestamp + method + endpoint + body, HMAC-SHA256, base64
	signature := k.sign(k.apiSecret, timestamp+method+path+string(body))

	req.Header.Set("KC-API-KEY", k.apiKey)
	req.Header.Set("KC-API-SIGN", signature)
	req.Header.Set("KC-API-TIMESTAMP", timestamp)
	req.Header.Set("KC-API-PASSPHRASE", k.sign(k.apiSecret, k.passphrase))
	req.Header.Set("KC-API-KEY-VERSION", "2")
	req.Header.Set("Content-Type", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, domain.Transient(method+" "+path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Transient("read response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, domain.Transient(path, fmt.Errorf("http %d: %s", resp.StatusCode, respBody))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("kucoin api error %d: %s", resp.StatusCode, respBody)
	}

	return respBody, nil
}

type kucoinEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (k *KuCoinGateway) call(ctx context.Context, method, path string, payload map[string]interface{}, out interface{}) error {
	respBody, err := k.sendRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}
	var envelope kucoinEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Code != kucoinOKCode {
		return fmt.Errorf("kucoin error %s: %s", envelope.Code, envelope.Msg)
	}
	if out != nil {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}

func (k *KuCoinGateway) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	granularity, ok := kucoinGranularity[timeframe]
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe %q", timeframe)
	}

	to := time.Now().UnixMilli()
	from := to - int64(limit)*int64(granularity)*60_000

	path := fmt.Sprintf("/api/v1/kline/query?symbol=%s&granularity=%d&from=%d&to=%d",
		KuCoinSymbol(symbol), granularity, from, to)

	var rows [][]float64
	if err := k.call(ctx, "GET", path, nil, &rows); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(rows))
	for _, raw := range rows {
		// [time, open, high, low, close, volume]
		if len(raw) < 6 {
			continue
		}
		candles = append(candles, domain.Candle{
			Timestamp: time.UnixMilli(int64(raw[0])),
			Open:      raw[1],
			High:      raw[2],
			Low:       raw[3],
			Close:     raw[4],
			Volume:    raw[5],
		})
	}
	return candles, nil
}

func (k *KuCoinGateway) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	k.mu.Lock()
	cached, ok := k.prices[symbol]
	k.mu.Unlock()
	if ok && cached > 0 {
		return cached, nil
	}

	var ticker struct {
		Price string `json:"price"`
	}
	path := "/api/v1/ticker?symbol=" + KuCoinSymbol(symbol)
	if err := k.call(ctx, "GET", path, nil, &ticker); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(ticker.Price, 64)
}

func (k *KuCoinGateway) GetBalances(ctx context.Context) ([]domain.Balance, error) {
	var overview struct {
		Currency         string  `json:"currency"`
		AvailableBalance float64 `json:"availableBalance"`
	}
	if err := k.call(ctx, "GET", "/api/v1/account-overview?currency=USDT", nil, &overview); err != nil {
		return nil, err
	}
	return []domain.Balance{{Currency: overview.Currency, Available: overview.AvailableBalance}}, nil
}

type kucoinPosition struct {
	Symbol        string  `json:"symbol"`
	CurrentQty    float64 `json:"currentQty"`
	AvgEntryPrice float64 `json:"avgEntryPrice"`
	UnrealisedPnl float64 `json:"unrealisedPnl"`
	RealLeverage  float64 `json:"realLeverage"`
	CrossMode     bool    `json:"crossMode"`
	IsOpen        bool    `json:"isOpen"`
}

func (k *KuCoinGateway) GetOpenPositions(ctx context.Context, symbol string) ([]domain.Position, error) {
	var raw kucoinPosition
	path := "/api/v1/position?symbol=" + KuCoinSymbol(symbol)
	if err := k.call(ctx, "GET", path, nil, &raw); err != nil {
		return nil, err
	}
	if !raw.IsOpen || raw.CurrentQty == 0 {
		return nil, nil
	}

	side := domain.SideLong
	quantity := raw.CurrentQty
	if quantity < 0 {
		side = domain.SideShort
		quantity = -quantity
	}
	marginType := string(domain.MarginIsolated)
	if raw.CrossMode {
		marginType = string(domain.MarginCross)
	}
	return []domain.Position{{
		Symbol:        CanonicalFromKuCoin(raw.Symbol),
		Side:          side,
		Quantity:      quantity,
		EntryPrice:    raw.AvgEntryPrice,
		UnrealizedPnL: raw.UnrealisedPnl,
		Leverage:      int(raw.RealLeverage),
		MarginType:    marginType,
	}}, nil
}

func (k *KuCoinGateway) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (*domain.OrderResult, error) {
	payload := map[string]interface{}{
		"clientOid": uuid.NewString(),
		"symbol":    KuCoinSymbol(symbol),
		"side":      kucoinSide(side),
		"type":      "market",
		"size":      formatQty(quantity),
		"leverage":  strconv.Itoa(k.currentLeverage()),
	}

	var resp struct {
		OrderID string `json:"orderId"`
	}
	if err := k.call(ctx, "POST", "/api/v1/orders", payload, &resp); err != nil {
		return nil, err
	}
	// The placement response carries no fill details; callers fall back to
	// the ticker price for the requested quantity.
	return &domain.OrderResult{OrderID: resp.OrderID, Status: domain.OrderStatusFilled}, nil
}

func (k *KuCoinGateway) PlaceStopOrder(ctx context.Context, symbol string, side domain.Side, quantity, triggerPrice float64) (string, error) {
	// A sell stop triggers on the way down, a buy stop on the way up.
	stopDirection := "down"
	if side == domain.SideLong {
		stopDirection = "up"
	}
	payload := map[string]interface{}{
		"clientOid":     uuid.NewString(),
		"symbol":        KuCoinSymbol(symbol),
		"side":          kucoinSide(side),
		"type":          "market",
		"size":          formatQty(quantity),
		"leverage":      strconv.Itoa(k.currentLeverage()),
		"stop":          stopDirection,
		"stopPrice":     formatQty(triggerPrice),
		"stopPriceType": "TP",
		"reduceOnly":    true,
	}

	var resp struct {
		OrderID string `json:"orderId"`
	}
	if err := k.call(ctx, "POST", "/api/v1/orders", payload, &resp); err != nil {
		return "", err
	}
	return resp.OrderID, nil
}

func (k *KuCoinGateway) PlaceLimitOrder(ctx context.Context, symbol string, side domain.Side, quantity, price float64) (string, error) {
	payload := map[string]interface{}{
		"clientOid":   uuid.NewString(),
		"symbol":      KuCoinSymbol(symbol),
		"side":        kucoinSide(side),
		"type":        "limit",
		"size":        formatQty(quantity),
		"price":       formatQty(price),
		"leverage":    strconv.Itoa(k.currentLeverage()),
		"timeInForce": "GTC",
		"reduceOnly":  true,
	}

	var resp struct {
		OrderID string `json:"orderId"`
	}
	if err := k.call(ctx, "POST", "/api/v1/orders", payload, &resp); err != nil {
		return "", err
	}
	return resp.OrderID, nil
}

func (k *KuCoinGateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	err := k.call(ctx, "DELETE", "/api/v1/orders/"+orderID, nil, nil)
	if err != nil && strings.Contains(err.Error(), "order cannot be canceled") {
		return nil
	}
	return err
}

func (k *KuCoinGateway) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	native := KuCoinSymbol(symbol)
	if err := k.call(ctx, "DELETE", "/api/v1/orders?symbol="+native, nil, nil); err != nil {
		return err
	}
	// Untriggered stops live in a separate book.
	return k.call(ctx, "DELETE", "/api/v1/stopOrders?symbol="+native, nil, nil)
}

func (k *KuCoinGateway) GetOrderStatus(ctx context.Context, symbol, orderID string) (domain.OrderStatus, error) {
	var order struct {
		Status      string `json:"status"`
		IsActive    bool   `json:"isActive"`
		CancelExist bool   `json:"cancelExist"`
	}
	if err := k.call(ctx, "GET", "/api/v1/orders/"+orderID, nil, &order); err != nil {
		return "", err
	}
	switch {
	case order.IsActive:
		return domain.OrderStatusOpen, nil
	case order.CancelExist:
		return domain.OrderStatusCanceled, nil
	default:
		return domain.OrderStatusFilled, nil
	}
}

func (k *KuCoinGateway) SetLeverage(ctx context.Context, symbol string, leverage int, marginType domain.MarginType) error {
	if leverage <= 0 {
		return fmt.Errorf("invalid leverage %d", leverage)
	}
	k.mu.Lock()
	k.leverage = leverage
	k.mu.Unlock()
	return nil
}

func (k *KuCoinGateway) currentLeverage() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.leverage
}

func kucoinSide(side domain.Side) string {
	if side == domain.SideShort {
		return "sell"
	}
	return "buy"
}

// --- WebSocket price stream ---

// OnPriceUpdate registers a callback for ticker pushes.
func (k *KuCoinGateway) OnPriceUpdate(callback func(symbol string, price float64)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.callbacks = append(k.callbacks, callback)
}

// ConnectWS opens the public ticker stream for the given canonical symbols
// and keeps it alive until ctx is cancelled, reconnecting with backoff.
func (k *KuCoinGateway) ConnectWS(ctx context.Context, symbols []string) error {
	if err := k.dialAndSubscribe(ctx, symbols); err != nil {
		return err
	}
	go k.readLoop(ctx, symbols)
	return nil
}

func (k *KuCoinGateway) dialAndSubscribe(ctx context.Context, symbols []string) error {
	// Public streams still need a short-lived connect token.
	var bullet struct {
		Token           string `json:"token"`
		InstanceServers []struct {
			Endpoint string `json:"endpoint"`
		} `json:"instanceServers"`
	}
	if err := k.call(ctx, "POST", "/api/v1/bullet-public", map[string]interface{}{}, &bullet); err != nil {
		return fmt.Errorf("ws token: %w", err)
	}
	if len(bullet.InstanceServers) == 0 {
		return fmt.Errorf("no ws endpoint in bullet response")
	}

	wsURL := bullet.InstanceServers[0].Endpoint + "?token=" + bullet.Token
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return domain.Transient("ws dial", err)
	}

	for _, symbol := range symbols {
		sub := map[string]interface{}{
			"id":       uuid.NewString(),
			"type":     "subscribe",
			"topic":    "/contractMarket/ticker:" + KuCoinSymbol(symbol),
			"response": true,
		}
		if err := conn.WriteJSON(sub); err != nil {
			conn.Close()
			return domain.Transient("ws subscribe", err)
		}
	}

	k.mu.Lock()
	k.wsConn = conn
	k.mu.Unlock()
	return nil
}

func (k *KuCoinGateway) readLoop(ctx context.Context, symbols []string) {
	reconnect := &backoff.Backoff{Min: time.Second, Max: time.Minute, Jitter: true}

	for {
		k.mu.Lock()
		conn := k.wsConn
		k.mu.Unlock()

		_, message, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			if ctx.Err() != nil {
				return
			}
			k.logger.Warn("ws read failed, reconnecting", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnect.Duration()):
			}
			if err := k.dialAndSubscribe(ctx, symbols); err != nil {
				k.logger.Warn("ws reconnect failed", zap.Error(err))
			}
			continue
		}
		reconnect.Reset()

		var event struct {
			Type    string `json:"type"`
			Subject string `json:"subject"`
			Topic   string `json:"topic"`
			Data    struct {
				Symbol string      `json:"symbol"`
				Price  json.Number `json:"price"`
			} `json:"data"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}
		if event.Subject != "ticker" {
			continue
		}

		price, err := event.Data.Price.Float64()
		if err != nil || price <= 0 {
			continue
		}
		symbol := CanonicalFromKuCoin(event.Data.Symbol)

		k.mu.Lock()
		k.prices[symbol] = price
		callbacks := make([]func(string, float64), len(k.callbacks))
		copy(callbacks, k.callbacks)
		k.mu.Unlock()

		for _, cb := range callbacks {
			cb(symbol, price)
		}
	}
}
