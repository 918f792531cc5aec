package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"hl-spot-bot/internal/account"
	"hl-spot-bot/internal/alerts"
	"hl-spot-bot/internal/broadcast"
	"hl-spot-bot/internal/config"
	"hl-spot-bot/internal/exec"
	"hl-spot-bot/internal/hl/exchange"
	"hl-spot-bot/internal/hl/rest"
	"hl-spot-bot/internal/hl/ws"
	"hl-spot-bot/internal/logging"
	"hl-spot-bot/internal/market"
	"hl-spot-bot/internal/metrics"
	"hl-spot-bot/internal/risk"
	"hl-spot-bot/internal/state/sqlite"
	"hl-spot-bot/internal/strategy"
	"hl-spot-bot/internal/stream"
	"hl-spot-bot/internal/timescale"

	"go.uber.org/zap"
)

type analyzer interface {
	Analyze(ctx context.Context) strategy.TradingSignal
}

type riskManager interface {
	Validate(signal strategy.TradingSignal, portfolio account.PortfolioState) error
	CalculateSize(signal strategy.TradingSignal, portfolio account.PortfolioState) float64
	UpdateAllocation(ctx context.Context, usdcLockPct, btcLockPct float64) error
	Allocation() (usdcLockPct, btcLockPct float64)
}

type orderExecutor interface {
	Execute(ctx context.Context, req exec.OrderRequest) exec.OrderResult
	CloseAllPositions(ctx context.Context) []exec.OrderResult
}

type portfolioSource interface {
	GetPortfolioState(ctx context.Context) account.PortfolioState
}

// Bot is the orchestrator: a two-state machine (idle, running) that
// drives the decision cycle and owns every component's lifecycle.
type Bot struct {
	cfg      *config.Config
	log      *zap.Logger
	ring     *logging.Ring
	store    *sqlite.Store
	engine   analyzer
	risk     riskManager
	executor orderExecutor
	fetcher  portfolioSource
	hub      *broadcast.Hub
	metrics  *metrics.Metrics
	alerts   *alerts.Telegram
	stream   *stream.Stream
	ts       *timescale.Writer
	exchange *exchange.Client

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	loopDone  chan struct{}
	portfolio account.PortfolioState
	last      *strategy.TradingSignal
	cycles    uint64
	now       func() time.Time
}

// New wires the production bot. The signing key is read from
// HL_PRIVATE_KEY only in custodial mode and never stored outside the
// signer.
func New(cfg *config.Config, log *zap.Logger, ring *logging.Ring) (*Bot, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	restClient := rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, log)
	history := market.NewHistory(restClient, log)
	engine := strategy.NewEngine(history, log, cfg.Trading.Symbol, cfg.Trading.Timeframe)

	address := strings.TrimSpace(os.Getenv("HL_ACCOUNT_ADDRESS"))
	fetcher := account.NewFetcher(restClient, log, address)

	ctx := context.Background()
	riskMgr, err := risk.NewManager(ctx, store, log, cfg.Trading.Symbol, cfg.Risk.USDCLockPct, cfg.Risk.BTCLockPct)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var executor *exec.Executor
	var exClient *exchange.Client
	if cfg.Trading.Custodial {
		key := config.SecretFromEnv("HL_PRIVATE_KEY")
		if key.IsZero() {
			_ = store.Close()
			return nil, errors.New("HL_PRIVATE_KEY is required in custodial mode")
		}
		isMainnet := cfg.Trading.Environment == "mainnet"
		signer, err := exchange.NewSigner(key.Reveal(), isMainnet)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("signer init: %w", err)
		}
		if address != "" && !strings.EqualFold(address, signer.Address().Hex()) {
			log.Warn("account address differs from signing key address",
				zap.String("signer", signer.Address().Hex()),
			)
		}
		exClient, err = exchange.NewClient(cfg.REST.BaseURL, cfg.REST.Timeout, signer)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		exClient.SetLogger(log)
		executor = exec.NewCustodial(exClient, restClient, fetcher, log)
	} else {
		executor = exec.NewNonCustodial(fetcher, log)
	}

	wsClient := ws.New(cfg.WS.URL, cfg.WS.InitialBackoff, cfg.WS.MaxBackoff, cfg.WS.PingInterval, log)
	marketStream := stream.New(wsClient, log, cfg.Trading.Symbol, cfg.WS.CandleInterval, address, cfg.WS.HandlerQueueLen)

	tsWriter, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	hub := broadcast.NewHub(log)
	if cfg.Kafka.Enabled {
		sink, err := broadcast.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Warn("kafka sink unavailable", zap.Error(err))
		} else {
			hub.AddSink(sink)
		}
	}

	bot := &Bot{
		cfg:      cfg,
		log:      log,
		ring:     ring,
		store:    store,
		engine:   engine,
		risk:     riskMgr,
		executor: executor,
		fetcher:  fetcher,
		hub:      hub,
		metrics:  metrics.NewNoop(),
		alerts:   alerts.NewTelegram(cfg.Telegram, log),
		stream:   marketStream,
		ts:       tsWriter,
		exchange: exClient,
		now:      time.Now,
	}
	marketStream.OnCandle(bot)
	marketStream.OnUserEvent(bot)
	marketStream.OnReconnect(func() {
		bot.metrics.StreamReconnects.Inc()
	})
	marketStream.OnDrop(func() {
		bot.metrics.DroppedMessages.Inc()
	})
	return bot, nil
}

// SetMetrics swaps the metrics sink; called before Run when the
// prometheus endpoint is enabled.
func (b *Bot) SetMetrics(m *metrics.Metrics) {
	if m != nil {
		b.metrics = m
	}
}

func (b *Bot) Hub() *broadcast.Hub {
	return b.hub
}

// Run blocks until ctx is cancelled, keeping the bot started for the
// whole lifetime of the process. Control-surface users drive Start and
// Stop themselves instead.
func (b *Bot) Run(ctx context.Context) error {
	defer b.close()
	if b.exchange != nil {
		if err := b.exchange.InitNonceStore(ctx, b.store); err != nil {
			b.log.Warn("nonce store init failed", zap.Error(err))
		}
	}
	b.ts.Start(ctx)
	b.Start()
	<-ctx.Done()
	b.Stop()
	return ctx.Err()
}

func (b *Bot) close() {
	_ = b.ts.Close()
	if b.store != nil {
		_ = b.store.Close()
	}
}

// Start transitions idle to running. Starting a running bot is a
// logged no-op.
func (b *Bot) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		b.log.Info("start ignored, already running")
		return
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.loopDone = make(chan struct{})
	b.running = true
	go b.loop(loopCtx, b.loopDone)
	if b.stream != nil {
		go func() {
			if err := b.stream.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
				b.log.Warn("stream terminated", zap.Error(err))
			}
		}()
	}
	b.log.Info("bot started",
		zap.String("symbol", b.cfg.Trading.Symbol),
		zap.String("environment", b.cfg.Trading.Environment),
		zap.Bool("custodial", b.cfg.Trading.Custodial),
	)
}

// Stop transitions running to idle and waits for the in-flight cycle
// to finish. Stopping an idle bot is a logged no-op.
func (b *Bot) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		b.log.Info("stop ignored, not running")
		return
	}
	cancel := b.cancel
	done := b.loopDone
	b.running = false
	b.cancel = nil
	b.loopDone = nil
	b.mu.Unlock()

	cancel()
	<-done
	b.log.Info("bot stopped")
}

// Panic is the emergency path: stop trading, then synchronously build
// reduce-only exits for everything held and broadcast each payload for
// signing. It always ends idle.
func (b *Bot) Panic(ctx context.Context) []exec.OrderResult {
	b.log.Warn("panic stop requested")
	b.Stop()
	b.metrics.PanicStops.Inc()

	results := b.executor.CloseAllPositions(ctx)
	for _, res := range results {
		if res.Payload != nil {
			b.hub.Publish(broadcast.EventSigningRequest, res.Payload)
		}
	}
	b.alerts.NotifyPanic(ctx, len(results))
	return results
}

// UpdateAllocation forwards the admin lock change to the risk manager.
func (b *Bot) UpdateAllocation(ctx context.Context, usdcLockPct, btcLockPct float64) error {
	return b.risk.UpdateAllocation(ctx, usdcLockPct, btcLockPct)
}

func (b *Bot) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	interval := b.cfg.Trading.CycleInterval
	cooldown := b.cfg.Trading.ErrorCooldown

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.runCycle(ctx, cooldown)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.runCycle(ctx, cooldown)
		}
	}
}

func (b *Bot) runCycle(ctx context.Context, cooldown time.Duration) {
	if err := b.cycle(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		b.metrics.CycleErrors.Inc()
		b.log.Error("cycle failed", zap.Error(err))
		b.hub.Publish(broadcast.EventLog, map[string]any{
			"level":   "error",
			"message": err.Error(),
		})
		select {
		case <-ctx.Done():
		case <-time.After(cooldown):
		}
	}
}

// cycle is one full decision pass: portfolio, signal, validation,
// sizing, execution. Rejections and zero sizes end the cycle quietly;
// they are defined outcomes, not errors.
func (b *Bot) cycle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.cycles++
	b.mu.Unlock()

	portfolio := b.fetcher.GetPortfolioState(ctx)
	b.setPortfolio(portfolio)
	b.hub.Publish(broadcast.EventPortfolio, portfolioSummary(portfolio))

	signal := b.engine.Analyze(ctx)
	b.setLastSignal(signal)
	b.metrics.SignalCounter(string(signal.Action)).Inc()
	b.recordSignal(signal)

	if signal.Action == strategy.ActionHold {
		return nil
	}

	if err := b.risk.Validate(signal, portfolio); err != nil {
		b.metrics.RiskRejections.Inc()
		b.log.Info("signal rejected", zap.String("action", string(signal.Action)), zap.Error(err))
		return nil
	}

	size := b.risk.CalculateSize(signal, portfolio)
	if size <= 0 {
		b.metrics.ZeroSizeSkips.Inc()
		b.log.Info("signal sized to zero", zap.String("action", string(signal.Action)))
		return nil
	}

	result := b.executor.Execute(ctx, exec.OrderRequest{
		Symbol: signal.Symbol,
		Action: signal.Action,
		Size:   size,
		Price:  signal.Price,
	})
	b.recordTrade(signal, size, result)

	switch result.Status {
	case exec.StatusFilled:
		b.metrics.OrdersFilled.Inc()
		b.log.Info("order filled",
			zap.String("order_id", result.OrderID),
			zap.Float64("size", result.FilledSize),
			zap.Float64("price", result.FilledPrice),
		)
	case exec.StatusPending:
		b.metrics.OrdersPending.Inc()
		b.hub.Publish(broadcast.EventSigningRequest, result.Payload)
	case exec.StatusFailed:
		b.metrics.OrdersFailed.Inc()
		b.log.Warn("order failed", zap.String("reason", result.ErrorMessage))
		b.hub.Publish(broadcast.EventLog, map[string]any{
			"level":   "warning",
			"message": "order failed: " + result.ErrorMessage,
		})
	}
	b.alerts.NotifyTrade(ctx, signal.Symbol, string(signal.Action), size, signal.Price, string(result.Status))
	return nil
}

func (b *Bot) setPortfolio(p account.PortfolioState) {
	b.mu.Lock()
	b.portfolio = p
	b.mu.Unlock()
}

func (b *Bot) setLastSignal(signal strategy.TradingSignal) {
	b.mu.Lock()
	b.last = &signal
	b.mu.Unlock()
}

func portfolioSummary(p account.PortfolioState) map[string]any {
	positions := make([]map[string]any, 0, len(p.Positions))
	for _, pos := range p.Positions {
		positions = append(positions, map[string]any{
			"symbol": pos.Symbol,
			"side":   string(pos.Side),
			"size":   pos.Size,
		})
	}
	return map[string]any{
		"total_equity":      p.TotalEquity,
		"available_balance": p.AvailableBalance,
		"positions":         positions,
		"timestamp":         p.Timestamp,
	}
}
