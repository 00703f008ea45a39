package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/akralex/smc-futures-bot/internal/analysis/smc"
	"github.com/akralex/smc-futures-bot/internal/config"
	"github.com/akralex/smc-futures-bot/internal/infrastructure/exchange"
	"github.com/akralex/smc-futures-bot/internal/infrastructure/logger"
)

// analyzer fetches recent candles for one symbol and prints the signals the
// engine would generate right now, without touching orders or storage.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	symbol := flag.String("symbol", "BTC-USDT", "canonical symbol to analyze")
	timeframes := flag.String("timeframes", "15m,1h,4h", "comma-separated timeframes")
	limit := flag.Int("limit", 150, "candles per timeframe")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger("warn")
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if len(cfg.Exchanges) == 0 {
		fmt.Println("No exchange configured")
		os.Exit(1)
	}
	primary := cfg.Exchanges[0]
	binance := exchange.NewBinanceGateway(primary.APIKey, primary.APISecret, false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	price, err := binance.GetCurrentPrice(ctx, *symbol)
	if err != nil {
		log.Fatal("Failed to fetch price", zap.Error(err))
	}

	engine := smc.NewEngine(smc.Config{
		SwingLookback: cfg.Analysis.SwingLookback,
		TrendWindow:   cfg.Analysis.TrendWindow,
	}, log)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	for _, tf := range strings.Split(*timeframes, ",") {
		tf = strings.TrimSpace(tf)
		candles, err := binance.GetCandles(ctx, *symbol, tf, *limit)
		if err != nil {
			log.Fatal("Failed to fetch candles",
				zap.String("timeframe", tf), zap.Error(err))
		}

		signals := engine.GenerateSignals(*symbol, tf, candles, price)
		fmt.Printf("--- %s %s (%d candles, price %.4f): %d signals\n",
			*symbol, tf, len(candles), price, len(signals))
		for _, sig := range signals {
			if err := encoder.Encode(sig); err != nil {
				log.Fatal("Failed to encode signal", zap.Error(err))
			}
		}
	}
}
