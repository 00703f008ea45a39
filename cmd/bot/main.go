package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akralex/smc-futures-bot/internal/analysis/smc"
	"github.com/akralex/smc-futures-bot/internal/config"
	"github.com/akralex/smc-futures-bot/internal/domain"
	"github.com/akralex/smc-futures-bot/internal/infrastructure/exchange"
	"github.com/akralex/smc-futures-bot/internal/infrastructure/logger"
	"github.com/akralex/smc-futures-bot/internal/infrastructure/storage"
	"github.com/akralex/smc-futures-bot/internal/usecase"
	"github.com/akralex/smc-futures-bot/internal/web"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	gateway, err := buildGateway(cfg, log)
	if err != nil {
		log.Fatal("Failed to init exchange", zap.Error(err))
	}

	if err := seedBots(context.Background(), store, cfg, log); err != nil {
		log.Fatal("Failed to seed bots", zap.Error(err))
	}

	engine := smc.NewEngine(smc.Config{
		SwingLookback: cfg.Analysis.SwingLookback,
		TrendWindow:   cfg.Analysis.TrendWindow,
	}, log)
	aggregator := usecase.NewMultiTimeframeAggregator(engine, cfg.Aggregator, log)
	lifecycle := usecase.NewPositionLifecycleManager(
		gateway, store, store, store, aggregator, usecase.NewRiskSizer(), cfg.Lifecycle, log)
	botService := usecase.NewBotService(lifecycle, store, store, cfg.TickInterval(), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if kucoin, ok := gateway.(*exchange.KuCoinGateway); ok {
		if symbols := activeSymbols(ctx, store, log); len(symbols) > 0 {
			if err := kucoin.ConnectWS(ctx, symbols); err != nil {
				log.Warn("Price stream unavailable, falling back to REST", zap.Error(err))
			}
		}
	}

	if err := botService.StartAll(ctx); err != nil {
		log.Error("Failed to start bots", zap.Error(err))
	}

	server := web.NewServer(cfg.Server.Port, botService, store, store, store, gateway, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Web server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down")
	botService.StopAll()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Web server shutdown failed", zap.Error(err))
	}
}

func buildGateway(cfg *config.Config, log *zap.Logger) (domain.ExchangeGateway, error) {
	if len(cfg.Exchanges) == 0 {
		return nil, fmt.Errorf("no exchange configured")
	}
	primary := cfg.Exchanges[0]
	switch primary.Name {
	case "binance", "binance-testnet":
		return exchange.NewBinanceGateway(primary.APIKey, primary.APISecret,
			primary.Name == "binance-testnet"), nil
	case "kucoin":
		return exchange.NewKuCoinGateway(primary.APIKey, primary.APISecret,
			primary.Passphrase, primary.RESTEndpoint, log), nil
	default:
		return nil, fmt.Errorf("unknown exchange %q", primary.Name)
	}
}

// seedBots creates bot rows for configured symbols that have none yet.
// Existing bots keep whatever the operator tuned through the API.
func seedBots(ctx context.Context, store *storage.SQLiteStore, cfg *config.Config, log *zap.Logger) error {
	existing, err := store.ListBots(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, bot := range existing {
		known[bot.Symbol] = true
	}

	defaults := cfg.BotDefaults
	for _, seed := range defaults.Symbols {
		if known[seed.Symbol] {
			continue
		}
		bot := &domain.Bot{
			ID:                    uuid.NewString(),
			Symbol:                seed.Symbol,
			Exchange:              cfg.Exchanges[0].Name,
			Timeframes:            defaults.Timeframes,
			RiskPercentage:        defaults.RiskPercentage,
			Leverage:              defaults.Leverage,
			MarginType:            domain.MarginType(defaults.MarginType),
			QuantityPrecision:     seed.QuantityPrecision,
			MinOrderNotional:      seed.MinOrderNotional,
			MaxPositionSize:       seed.MaxPositionSize,
			StopLossPercent:       defaults.StopLossPercent,
			TakeProfitPercent:     defaults.TakeProfitPercent,
			CooldownMinutes:       defaults.CooldownMinutes,
			MaxTradesPerHour:      defaults.MaxTradesPerHour,
			MaxTradeDuration:      defaults.MaxTradeDurationMin,
			MinStrengthThreshold:  defaults.MinStrengthThreshold,
			HighStrengthThreshold: defaults.HighStrengthThreshold,
			MinConfluence:         defaults.MinConfluence,
			IsActive:              true,
			CreatedAt:             time.Now(),
		}
		if err := store.SaveBot(ctx, bot); err != nil {
			return err
		}
		log.Info("Seeded bot", zap.String("symbol", seed.Symbol))
	}
	return nil
}

func activeSymbols(ctx context.Context, store *storage.SQLiteStore, log *zap.Logger) []string {
	bots, err := store.ListBots(ctx)
	if err != nil {
		log.Warn("Failed to list bots for price stream", zap.Error(err))
		return nil
	}
	var symbols []string
	for _, bot := range bots {
		if bot.IsActive {
			symbols = append(symbols, bot.Symbol)
		}
	}
	return symbols
}
