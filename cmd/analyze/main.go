package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"hl-spot-bot/internal/config"
	"hl-spot-bot/internal/hl/rest"
	"hl-spot-bot/internal/logging"
	"hl-spot-bot/internal/market"
	"hl-spot-bot/internal/strategy"
)

const (
	defaultRESTBaseURL = "https://api.hyperliquid.xyz"
	defaultRESTTimeout = 10 * time.Second
)

// analyze runs one decision pass against live market data and prints
// the resulting signal as JSON. No orders are placed.
func main() {
	configPath := flag.String("config", "", "optional config path for REST settings")
	symbol := flag.String("symbol", "BTC", "spot asset to analyze")
	interval := flag.String("interval", "15m", "execution timeframe")
	flag.Parse()

	logCfg := config.LoggingConfig{Level: "warn"}
	baseURL := defaultRESTBaseURL
	timeout := defaultRESTTimeout
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fatal(err)
		}
		logCfg = cfg.Log
		baseURL = cfg.REST.BaseURL
		timeout = cfg.REST.Timeout
		if *symbol == "BTC" && cfg.Trading.Symbol != "" {
			*symbol = cfg.Trading.Symbol
		}
		if *interval == "15m" && cfg.Trading.Timeframe != "" {
			*interval = cfg.Trading.Timeframe
		}
	}

	log := logging.New(logCfg)
	defer func() { _ = log.Sync() }()

	restClient := rest.New(baseURL, timeout, log)
	history := market.NewHistory(restClient, log)
	engine := strategy.NewEngine(history, log, *symbol, *interval)

	ctx, cancel := context.WithTimeout(context.Background(), timeout*3)
	defer cancel()

	signal := engine.Analyze(ctx)
	out, err := json.MarshalIndent(signal, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(out))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
