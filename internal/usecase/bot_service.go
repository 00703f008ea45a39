package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akralex/smc-futures-bot/internal/domain"
)

// DefaultTickInterval is how often each bot re-evaluates its symbol.
const DefaultTickInterval = time.Minute

// DefaultTickTimeout bounds the exchange and storage calls made by one tick.
// A hung request must not pin the runner goroutine past the next interval.
const DefaultTickTimeout = 30 * time.Second

// TradeLifecycle is what BotService drives on each tick.
type TradeLifecycle interface {
	Tick(ctx context.Context, bot *domain.Bot) error
	ClosePosition(ctx context.Context, bot *domain.Bot) error
}

var _ TradeLifecycle = (*PositionLifecycleManager)(nil)

// BotService owns the per-symbol bot runners. Each running bot gets one
// goroutine ticking its lifecycle; ticks for the same bot never overlap.
type BotService struct {
	lifecycle TradeLifecycle
	bots      domain.BotRepository
	trades    domain.TradeRepository
	interval  time.Duration
	logger    *zap.Logger

	runners map[string]*botRunner
	mu      sync.Mutex
}

type botRunner struct {
	bot    *domain.Bot
	cancel context.CancelFunc
	mu     sync.Mutex // serializes ticks and manual operations
}

// BotStatus is the operator-facing snapshot of one bot.
type BotStatus struct {
	BotID     string        `json:"bot_id"`
	Symbol    string        `json:"symbol"`
	Running   bool          `json:"running"`
	IsActive  bool          `json:"is_active"`
	LastRunAt time.Time     `json:"last_run_at,omitempty"`
	OpenTrade *domain.Trade `json:"open_trade,omitempty"`
}

func NewBotService(lifecycle TradeLifecycle, bots domain.BotRepository, trades domain.TradeRepository, interval time.Duration, logger *zap.Logger) *BotService {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &BotService{
		lifecycle: lifecycle,
		bots:      bots,
		trades:    trades,
		interval:  interval,
		logger:    logger,
		runners:   make(map[string]*botRunner),
	}
}

// StartAll starts runners for every active bot in the store. Called at boot.
func (s *BotService) StartAll(ctx context.Context) error {
	all, err := s.bots.ListBots(ctx)
	if err != nil {
		return fmt.Errorf("list bots: %w", err)
	}
	for _, bot := range all {
		if !bot.IsActive {
			continue
		}
		if err := s.StartBot(ctx, bot.Symbol); err != nil {
			s.logger.Warn("start bot failed",
				zap.String("symbol", bot.Symbol), zap.Error(err))
		}
	}
	return nil
}

// StartBot spins up the runner for the bot configured for symbol.
func (s *BotService) StartBot(ctx context.Context, symbol string) error {
	bot, err := s.findBySymbol(ctx, symbol)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runners[bot.Symbol]; exists {
		return fmt.Errorf("bot already running for %s", bot.Symbol)
	}

	if !bot.IsActive {
		bot.IsActive = true
		if err := s.bots.SetBotActive(ctx, bot.ID, true); err != nil {
			return fmt.Errorf("activate bot: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	runner := &botRunner{bot: bot, cancel: cancel}
	s.runners[bot.Symbol] = runner
	go s.run(runCtx, runner)

	s.logger.Info("bot started", zap.String("symbol", bot.Symbol))
	return nil
}

// StopBot stops the runner and deactivates the bot. An open position is left
// as is; its protective orders remain on the exchange.
func (s *BotService) StopBot(ctx context.Context, symbol string) error {
	s.mu.Lock()
	runner, exists := s.runners[symbol]
	if exists {
		delete(s.runners, symbol)
	}
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("no running bot for %s", symbol)
	}

	runner.cancel()
	runner.bot.IsActive = false
	if err := s.bots.SetBotActive(ctx, runner.bot.ID, false); err != nil {
		return fmt.Errorf("deactivate bot: %w", err)
	}

	s.logger.Info("bot stopped", zap.String("symbol", symbol))
	return nil
}

// StopAll cancels every runner. Used on shutdown.
func (s *BotService) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for symbol, runner := range s.runners {
		runner.cancel()
		delete(s.runners, symbol)
	}
}

// ClosePosition force-closes the open position for symbol at market.
func (s *BotService) ClosePosition(ctx context.Context, symbol string) error {
	bot, err := s.findBySymbol(ctx, symbol)
	if err != nil {
		return err
	}

	s.mu.Lock()
	runner := s.runners[symbol]
	s.mu.Unlock()

	if runner != nil {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		bot = runner.bot
	}
	return s.lifecycle.ClosePosition(ctx, bot)
}

// Statuses reports a snapshot of every configured bot.
func (s *BotService) Statuses(ctx context.Context) ([]BotStatus, error) {
	all, err := s.bots.ListBots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}

	s.mu.Lock()
	running := make(map[string]bool, len(s.runners))
	for symbol := range s.runners {
		running[symbol] = true
	}
	s.mu.Unlock()

	statuses := make([]BotStatus, 0, len(all))
	for _, bot := range all {
		status := BotStatus{
			BotID:     bot.ID,
			Symbol:    bot.Symbol,
			Running:   running[bot.Symbol],
			IsActive:  bot.IsActive,
			LastRunAt: bot.LastRunAt,
		}
		if trade, err := s.trades.GetOpenTrade(ctx, bot.ID); err == nil && trade != nil {
			status.OpenTrade = trade
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (s *BotService) run(ctx context.Context, runner *botRunner) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx, runner)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, runner)
		}
	}
}

func (s *BotService) tick(ctx context.Context, runner *botRunner) {
	runner.mu.Lock()
	defer runner.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, DefaultTickTimeout)
	defer cancel()

	bot := runner.bot
	if err := s.lifecycle.Tick(ctx, bot); err != nil {
		if domain.IsTransient(err) {
			s.logger.Warn("tick failed, will retry",
				zap.String("symbol", bot.Symbol), zap.Error(err))
		} else {
			s.logger.Error("tick failed",
				zap.String("symbol", bot.Symbol), zap.Error(err))
		}
	}

	bot.LastRunAt = time.Now()
	if err := s.bots.SaveBot(ctx, bot); err != nil {
		s.logger.Warn("persist bot state failed",
			zap.String("symbol", bot.Symbol), zap.Error(err))
	}

	// A fatal configuration error deactivates the bot inside the tick.
	if !bot.IsActive {
		go func() {
			if err := s.StopBot(context.Background(), bot.Symbol); err != nil {
				s.logger.Error("stop deactivated bot failed",
					zap.String("symbol", bot.Symbol), zap.Error(err))
				return
			}
			s.logger.Warn("bot deactivated after fatal error",
				zap.String("symbol", bot.Symbol))
		}()
	}
}

func (s *BotService) findBySymbol(ctx context.Context, symbol string) (*domain.Bot, error) {
	all, err := s.bots.ListBots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	for _, bot := range all {
		if bot.Symbol == symbol {
			return bot, nil
		}
	}
	return nil, fmt.Errorf("no bot configured for %s", symbol)
}
