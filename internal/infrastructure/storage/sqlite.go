package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/akralex/smc-futures-bot/internal/domain"
)

// SQLiteStore implements BotRepository, TradeRepository and SignalRepository
// on a single database handle.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bots (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL UNIQUE,
			exchange TEXT NOT NULL,
			timeframes TEXT NOT NULL,
			risk_percentage REAL NOT NULL,
			leverage INTEGER NOT NULL,
			margin_type TEXT NOT NULL,
			min_order_notional REAL NOT NULL DEFAULT 0,
			max_position_size REAL NOT NULL DEFAULT 0,
			quantity_precision INTEGER NOT NULL DEFAULT 0,
			stop_loss_percent REAL NOT NULL DEFAULT 0,
			take_profit_percent REAL NOT NULL DEFAULT 0,
			cooldown_minutes INTEGER NOT NULL DEFAULT 0,
			max_trades_per_hour INTEGER NOT NULL DEFAULT 0,
			max_trade_duration_minutes INTEGER NOT NULL DEFAULT 0,
			min_strength_threshold REAL NOT NULL DEFAULT 0,
			high_strength_threshold REAL NOT NULL DEFAULT 0,
			min_confluence INTEGER NOT NULL DEFAULT 0,
			last_position_closed_at DATETIME,
			last_run_at DATETIME,
			is_active BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			bot_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			entry_price REAL NOT NULL,
			stop_loss_price REAL NOT NULL DEFAULT 0,
			take_profit_price REAL NOT NULL DEFAULT 0,
			exit_price REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			exchange_order_id TEXT NOT NULL DEFAULT '',
			stop_loss_order_id TEXT NOT NULL DEFAULT '',
			take_profit_order_id TEXT NOT NULL DEFAULT '',
			unrealized_pnl REAL NOT NULL DEFAULT 0,
			realized_pnl REAL NOT NULL DEFAULT 0,
			protected BOOLEAN NOT NULL DEFAULT 0,
			opened_at DATETIME NOT NULL,
			closed_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_bot_status ON trades(bot_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_opened_at ON trades(bot_id, opened_at);`,
		`CREATE TABLE IF NOT EXISTS signals (
			id TEXT PRIMARY KEY,
			bot_id TEXT NOT NULL,
			trade_id TEXT,
			symbol TEXT NOT NULL,
			type TEXT NOT NULL,
			direction TEXT NOT NULL,
			strength REAL NOT NULL,
			reference_level REAL NOT NULL,
			timeframe TEXT NOT NULL,
			confluence INTEGER NOT NULL DEFAULT 0,
			quality_factors TEXT,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_signals_bot ON signals(bot_id, created_at);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// BotRepository implementation

const botColumns = `id, symbol, exchange, timeframes, risk_percentage, leverage, margin_type,
	min_order_notional, max_position_size, quantity_precision, stop_loss_percent,
	take_profit_percent, cooldown_minutes, max_trades_per_hour, max_trade_duration_minutes,
	min_strength_threshold, high_strength_threshold, min_confluence,
	last_position_closed_at, last_run_at, is_active, created_at`

func (s *SQLiteStore) SaveBot(ctx context.Context, bot *domain.Bot) error {
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = time.Now()
	}
	query := `INSERT INTO bots (` + botColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			symbol=excluded.symbol, exchange=excluded.exchange, timeframes=excluded.timeframes,
			risk_percentage=excluded.risk_percentage, leverage=excluded.leverage,
			margin_type=excluded.margin_type, min_order_notional=excluded.min_order_notional,
			max_position_size=excluded.max_position_size, quantity_precision=excluded.quantity_precision,
			stop_loss_percent=excluded.stop_loss_percent, take_profit_percent=excluded.take_profit_percent,
			cooldown_minutes=excluded.cooldown_minutes, max_trades_per_hour=excluded.max_trades_per_hour,
			max_trade_duration_minutes=excluded.max_trade_duration_minutes,
			min_strength_threshold=excluded.min_strength_threshold,
			high_strength_threshold=excluded.high_strength_threshold,
			min_confluence=excluded.min_confluence,
			last_position_closed_at=excluded.last_position_closed_at,
			last_run_at=excluded.last_run_at, is_active=excluded.is_active`
	_, err := s.db.ExecContext(ctx, query,
		bot.ID, bot.Symbol, bot.Exchange, strings.Join(bot.Timeframes, ","),
		bot.RiskPercentage, bot.Leverage, string(bot.MarginType),
		bot.MinOrderNotional, bot.MaxPositionSize, bot.QuantityPrecision,
		bot.StopLossPercent, bot.TakeProfitPercent, bot.CooldownMinutes,
		bot.MaxTradesPerHour, bot.MaxTradeDuration,
		bot.MinStrengthThreshold, bot.HighStrengthThreshold, bot.MinConfluence,
		nullTime(bot.LastPositionClosedAt), nullTime(bot.LastRunAt),
		bot.IsActive, bot.CreatedAt)
	return err
}

func (s *SQLiteStore) GetBot(ctx context.Context, id string) (*domain.Bot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+botColumns+` FROM bots WHERE id = ?`, id)
	return scanBot(row)
}

func (s *SQLiteStore) ListBots(ctx context.Context) ([]*domain.Bot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+botColumns+` FROM bots ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bots []*domain.Bot
	for rows.Next() {
		bot, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, bot)
	}
	return bots, rows.Err()
}

func (s *SQLiteStore) UpdateBotClosedAt(ctx context.Context, botID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE bots SET last_position_closed_at = ? WHERE id = ?`, time.Now(), botID)
	return err
}

func (s *SQLiteStore) SetBotActive(ctx context.Context, botID string, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE bots SET is_active = ? WHERE id = ?`, active, botID)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBot(row rowScanner) (*domain.Bot, error) {
	var b domain.Bot
	var timeframes, marginType string
	var closedAt, runAt sql.NullTime
	err := row.Scan(&b.ID, &b.Symbol, &b.Exchange, &timeframes,
		&b.RiskPercentage, &b.Leverage, &marginType,
		&b.MinOrderNotional, &b.MaxPositionSize, &b.QuantityPrecision,
		&b.StopLossPercent, &b.TakeProfitPercent, &b.CooldownMinutes,
		&b.MaxTradesPerHour, &b.MaxTradeDuration,
		&b.MinStrengthThreshold, &b.HighStrengthThreshold, &b.MinConfluence,
		&closedAt, &runAt, &b.IsActive, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	b.MarginType = domain.MarginType(marginType)
	if timeframes != "" {
		b.Timeframes = strings.Split(timeframes, ",")
	}
	if closedAt.Valid {
		b.LastPositionClosedAt = closedAt.Time
	}
	if runAt.Valid {
		b.LastRunAt = runAt.Time
	}
	return &b, nil
}

// TradeRepository implementation

const tradeColumns = `id, bot_id, symbol, side, quantity, entry_price, stop_loss_price,
	take_profit_price, exit_price, status, exchange_order_id, stop_loss_order_id,
	take_profit_order_id, unrealized_pnl, realized_pnl, protected, opened_at, closed_at`

func (s *SQLiteStore) SaveTrade(ctx context.Context, trade *domain.Trade) error {
	query := `INSERT INTO trades (` + tradeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		trade.ID, trade.BotID, trade.Symbol, string(trade.Side), trade.Quantity,
		trade.EntryPrice, trade.StopLossPrice, trade.TakeProfitPrice, trade.ExitPrice,
		string(trade.Status), trade.ExchangeOrderID, trade.StopLossOrderID,
		trade.TakeProfitOrderID, trade.UnrealizedPnL, trade.RealizedPnL,
		trade.Protected, trade.OpenedAt, nullTime(trade.ClosedAt))
	return err
}

func (s *SQLiteStore) UpdateTrade(ctx context.Context, trade *domain.Trade) error {
	query := `UPDATE trades SET
		side=?, quantity=?, entry_price=?, stop_loss_price=?, take_profit_price=?,
		exit_price=?, status=?, exchange_order_id=?, stop_loss_order_id=?,
		take_profit_order_id=?, unrealized_pnl=?, realized_pnl=?, protected=?, closed_at=?
		WHERE id=?`
	_, err := s.db.ExecContext(ctx, query,
		string(trade.Side), trade.Quantity, trade.EntryPrice, trade.StopLossPrice,
		trade.TakeProfitPrice, trade.ExitPrice, string(trade.Status),
		trade.ExchangeOrderID, trade.StopLossOrderID, trade.TakeProfitOrderID,
		trade.UnrealizedPnL, trade.RealizedPnL, trade.Protected,
		nullTime(trade.ClosedAt), trade.ID)
	return err
}

// CloseTrade writes the terminal trade state and the owning bot's cooldown
// timestamp in one transaction, so a crash between the two cannot leave the
// cooldown gate open.
func (s *SQLiteStore) CloseTrade(ctx context.Context, trade *domain.Trade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `UPDATE trades SET
		status=?, exit_price=?, unrealized_pnl=0, realized_pnl=?, closed_at=?
		WHERE id=?`,
		string(trade.Status), trade.ExitPrice, trade.RealizedPnL,
		nullTime(trade.ClosedAt), trade.ID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE bots SET last_position_closed_at = ? WHERE id = ?`,
		nullTime(trade.ClosedAt), trade.BotID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetOpenTrade(ctx context.Context, botID string) (*domain.Trade, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE bot_id = ? AND status = ? LIMIT 1`,
		botID, string(domain.TradeStatusOpen))
	trade, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return trade, err
}

func (s *SQLiteStore) ListTrades(ctx context.Context, botID string, limit int) ([]*domain.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + tradeColumns + ` FROM trades`
	args := []interface{}{}
	if botID != "" {
		query += ` WHERE bot_id = ?`
		args = append(args, botID)
	}
	query += ` ORDER BY opened_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) CountTradesSince(ctx context.Context, botID string, minutes int) (int, error) {
	cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute)
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trades WHERE bot_id = ? AND opened_at >= ?`,
		botID, cutoff).Scan(&count)
	return count, err
}

func scanTrade(row rowScanner) (*domain.Trade, error) {
	var t domain.Trade
	var side, status string
	var closedAt sql.NullTime
	err := row.Scan(&t.ID, &t.BotID, &t.Symbol, &side, &t.Quantity, &t.EntryPrice,
		&t.StopLossPrice, &t.TakeProfitPrice, &t.ExitPrice, &status,
		&t.ExchangeOrderID, &t.StopLossOrderID, &t.TakeProfitOrderID,
		&t.UnrealizedPnL, &t.RealizedPnL, &t.Protected, &t.OpenedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	t.Side = domain.Side(side)
	t.Status = domain.TradeStatus(status)
	if closedAt.Valid {
		t.ClosedAt = closedAt.Time
	}
	return &t, nil
}

// SignalRepository implementation

func (s *SQLiteStore) SaveSignal(ctx context.Context, signal *domain.Signal) error {
	var factors interface{}
	if len(signal.QualityFactors) > 0 {
		raw, err := json.Marshal(signal.QualityFactors)
		if err != nil {
			return fmt.Errorf("marshal quality factors: %w", err)
		}
		factors = string(raw)
	}
	query := `INSERT INTO signals (id, bot_id, trade_id, symbol, type, direction,
		strength, reference_level, timeframe, confluence, quality_factors, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		signal.ID, signal.BotID, nullString(signal.TradeID), signal.Symbol,
		string(signal.Type), string(signal.Direction), signal.Strength,
		signal.ReferenceLevel, signal.Timeframe, signal.Confluence,
		factors, signal.CreatedAt)
	return err
}

func (s *SQLiteStore) ListSignals(ctx context.Context, botID string, limit int) ([]*domain.Signal, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, bot_id, trade_id, symbol, type, direction, strength,
		reference_level, timeframe, confluence, quality_factors, created_at FROM signals`
	args := []interface{}{}
	if botID != "" {
		query += ` WHERE bot_id = ?`
		args = append(args, botID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []*domain.Signal
	for rows.Next() {
		var sig domain.Signal
		var sigType, direction string
		var tradeID, factors sql.NullString
		if err := rows.Scan(&sig.ID, &sig.BotID, &tradeID, &sig.Symbol, &sigType,
			&direction, &sig.Strength, &sig.ReferenceLevel, &sig.Timeframe,
			&sig.Confluence, &factors, &sig.CreatedAt); err != nil {
			return nil, err
		}
		sig.Type = domain.SignalType(sigType)
		sig.Direction = domain.Direction(direction)
		sig.TradeID = tradeID.String
		if factors.Valid && factors.String != "" {
			if err := json.Unmarshal([]byte(factors.String), &sig.QualityFactors); err != nil {
				return nil, fmt.Errorf("unmarshal quality factors: %w", err)
			}
		}
		signals = append(signals, &sig)
	}
	return signals, rows.Err()
}

func (s *SQLiteStore) LinkSignalToTrade(ctx context.Context, signalID, tradeID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE signals SET trade_id = ? WHERE id = ?`, tradeID, signalID)
	return err
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
