package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"hl-spot-bot/internal/app"
	"hl-spot-bot/internal/config"
	"hl-spot-bot/internal/logging"
	"hl-spot-bot/internal/metrics"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	ring := logging.NewRing(logging.DefaultRingCapacity)
	log := logging.NewWithRing(cfg.Log, ring)
	log.Info("config loaded", zap.String("path", *configPath))

	bot, err := app.New(cfg, log, ring)
	if err != nil {
		log.Error("failed to initialize bot", zap.Error(err))
		os.Exit(1)
	}

	if cfg.Metrics.Enabled {
		prom := metrics.NewPrometheus()
		bot.SetMetrics(prom.Metrics)
		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		go func() {
			log.Info("metrics listening", zap.String("addr", cfg.Metrics.Listen))
			if err := http.ListenAndServe(cfg.Metrics.Listen, mux); err != nil {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bot.Run(ctx); err != nil && err != context.Canceled {
		log.Error("bot terminated", zap.Error(err))
		os.Exit(1)
	}
}
