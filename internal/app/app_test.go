package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"hl-spot-bot/internal/account"
	"hl-spot-bot/internal/alerts"
	"hl-spot-bot/internal/broadcast"
	"hl-spot-bot/internal/config"
	"hl-spot-bot/internal/exec"
	"hl-spot-bot/internal/logging"
	"hl-spot-bot/internal/market"
	"hl-spot-bot/internal/metrics"
	"hl-spot-bot/internal/strategy"

	"go.uber.org/zap"
)

type fakeEngine struct {
	signal strategy.TradingSignal
}

func (f *fakeEngine) Analyze(context.Context) strategy.TradingSignal {
	return f.signal
}

type fakeRisk struct {
	validateErr error
	size        float64
	usdcLock    float64
	btcLock     float64
	updates     int
}

func (f *fakeRisk) Validate(strategy.TradingSignal, account.PortfolioState) error {
	return f.validateErr
}

func (f *fakeRisk) CalculateSize(strategy.TradingSignal, account.PortfolioState) float64 {
	return f.size
}

func (f *fakeRisk) UpdateAllocation(_ context.Context, usdcLockPct, btcLockPct float64) error {
	f.usdcLock = usdcLockPct
	f.btcLock = btcLockPct
	f.updates++
	return nil
}

func (f *fakeRisk) Allocation() (float64, float64) {
	return f.usdcLock, f.btcLock
}

type fakeExecutor struct {
	result       exec.OrderResult
	closeResults []exec.OrderResult
	requests     []exec.OrderRequest
	closeCalls   int
}

func (f *fakeExecutor) Execute(_ context.Context, req exec.OrderRequest) exec.OrderResult {
	f.requests = append(f.requests, req)
	return f.result
}

func (f *fakeExecutor) CloseAllPositions(context.Context) []exec.OrderResult {
	f.closeCalls++
	return f.closeResults
}

type fakePortfolio struct {
	state account.PortfolioState
}

func (f *fakePortfolio) GetPortfolioState(context.Context) account.PortfolioState {
	return f.state
}

func newTestBot(engine analyzer, riskMgr riskManager, executor orderExecutor, source portfolioSource) *Bot {
	log := zap.NewNop()
	cfg := &config.Config{
		Trading: config.TradingConfig{
			Symbol:        "BTC",
			Timeframe:     "15m",
			Environment:   "testnet",
			CycleInterval: time.Hour,
			ErrorCooldown: time.Millisecond,
		},
	}
	return &Bot{
		cfg:      cfg,
		log:      log,
		engine:   engine,
		risk:     riskMgr,
		executor: executor,
		fetcher:  source,
		hub:      broadcast.NewHub(log),
		metrics:  metrics.NewNoop(),
		alerts:   alerts.NewTelegram(config.TelegramConfig{}, log),
		now:      time.Now,
	}
}

func buySignal() strategy.TradingSignal {
	return strategy.TradingSignal{
		Symbol:     "BTC",
		Action:     strategy.ActionBuy,
		Price:      50000,
		Confidence: 0.8,
		Regime:     strategy.RegimeBull,
		Reason:     "golden cross",
		Timestamp:  time.Now().UTC(),
	}
}

func drainEvents(ch <-chan broadcast.Event) []broadcast.Event {
	var events []broadcast.Event
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func countEvents(events []broadcast.Event, eventType broadcast.EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func TestStartStopIdempotent(t *testing.T) {
	bot := newTestBot(
		&fakeEngine{signal: strategy.TradingSignal{Action: strategy.ActionHold}},
		&fakeRisk{},
		&fakeExecutor{},
		&fakePortfolio{},
	)

	bot.Start()
	if running := bot.Status()["running"].(bool); !running {
		t.Fatal("expected running after Start")
	}
	bot.Start() // no-op

	bot.Stop()
	if running := bot.Status()["running"].(bool); running {
		t.Fatal("expected idle after Stop")
	}
	bot.Stop() // no-op
}

func TestCycleHoldEndsPipeline(t *testing.T) {
	executor := &fakeExecutor{}
	bot := newTestBot(
		&fakeEngine{signal: strategy.TradingSignal{Action: strategy.ActionHold, Regime: strategy.RegimeSideways}},
		&fakeRisk{size: 1},
		executor,
		&fakePortfolio{},
	)

	if err := bot.cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(executor.requests) != 0 {
		t.Fatalf("executor called %d times on HOLD", len(executor.requests))
	}
}

func TestCycleRejectedSignalSkipsExecution(t *testing.T) {
	executor := &fakeExecutor{}
	bot := newTestBot(
		&fakeEngine{signal: buySignal()},
		&fakeRisk{validateErr: errors.New("insufficient liquidity reserve"), size: 1},
		executor,
		&fakePortfolio{},
	)

	if err := bot.cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(executor.requests) != 0 {
		t.Fatal("rejected signal must not reach the executor")
	}
}

func TestCycleZeroSizeSkipsExecution(t *testing.T) {
	executor := &fakeExecutor{}
	bot := newTestBot(
		&fakeEngine{signal: buySignal()},
		&fakeRisk{size: 0},
		executor,
		&fakePortfolio{},
	)

	if err := bot.cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(executor.requests) != 0 {
		t.Fatal("zero-size signal must not reach the executor")
	}
}

func TestCyclePendingResultBroadcastsSigningRequest(t *testing.T) {
	payload := map[string]any{"coin": "BTC", "is_buy": true}
	executor := &fakeExecutor{result: exec.OrderResult{
		OrderID: "WAITING_FOR_SIGNATURE",
		Status:  exec.StatusPending,
		Payload: payload,
	}}
	bot := newTestBot(
		&fakeEngine{signal: buySignal()},
		&fakeRisk{size: 0.5},
		executor,
		&fakePortfolio{state: account.PortfolioState{TotalEquity: 1000, AvailableBalance: 1000}},
	)
	events, cancel := bot.hub.Subscribe()
	defer cancel()

	if err := bot.cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(executor.requests) != 1 {
		t.Fatalf("expected one execution, got %d", len(executor.requests))
	}
	req := executor.requests[0]
	if req.Symbol != "BTC" || req.Action != strategy.ActionBuy || req.Size != 0.5 || req.Price != 50000 {
		t.Fatalf("unexpected order request: %+v", req)
	}

	published := drainEvents(events)
	if countEvents(published, broadcast.EventSigningRequest) != 1 {
		t.Fatalf("expected one signing request event, got %v", published)
	}
	if countEvents(published, broadcast.EventPortfolio) != 1 {
		t.Fatal("expected a portfolio event per cycle")
	}
}

func TestPanicClosesPositionsAndEndsIdle(t *testing.T) {
	executor := &fakeExecutor{closeResults: []exec.OrderResult{
		{Status: exec.StatusPending, Payload: map[string]any{"coin": "BTC", "reduce_only": true}},
		{Status: exec.StatusPending, Payload: map[string]any{"coin": "ETH", "reduce_only": true}},
	}}
	bot := newTestBot(
		&fakeEngine{signal: strategy.TradingSignal{Action: strategy.ActionHold}},
		&fakeRisk{},
		executor,
		&fakePortfolio{},
	)
	bot.Start()
	events, cancel := bot.hub.Subscribe()
	defer cancel()

	results := bot.Panic(context.Background())
	if executor.closeCalls != 1 {
		t.Fatalf("CloseAllPositions called %d times", executor.closeCalls)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 close payloads, got %d", len(results))
	}
	if running := bot.Status()["running"].(bool); running {
		t.Fatal("bot must be idle after panic")
	}

	published := drainEvents(events)
	if got := countEvents(published, broadcast.EventSigningRequest); got != 2 {
		t.Fatalf("expected 2 signing request events, got %d", got)
	}
}

func TestPanicFromIdleStillCloses(t *testing.T) {
	executor := &fakeExecutor{}
	bot := newTestBot(
		&fakeEngine{signal: strategy.TradingSignal{Action: strategy.ActionHold}},
		&fakeRisk{},
		executor,
		&fakePortfolio{},
	)

	bot.Panic(context.Background())
	if executor.closeCalls != 1 {
		t.Fatal("panic from idle must still close positions")
	}
}

func TestUpdateAllocationDelegates(t *testing.T) {
	riskMgr := &fakeRisk{}
	bot := newTestBot(&fakeEngine{}, riskMgr, &fakeExecutor{}, &fakePortfolio{})

	if err := bot.UpdateAllocation(context.Background(), 30, 15); err != nil {
		t.Fatalf("UpdateAllocation: %v", err)
	}
	if riskMgr.updates != 1 || riskMgr.usdcLock != 30 || riskMgr.btcLock != 15 {
		t.Fatalf("allocation not forwarded: %+v", riskMgr)
	}

	alloc := bot.Status()["allocation"].(map[string]float64)
	if alloc["usdc_lock_pct"] != 30 || alloc["btc_lock_pct"] != 15 {
		t.Fatalf("status allocation mismatch: %v", alloc)
	}
}

func TestStatusServesLastFiftyLogLines(t *testing.T) {
	bot := newTestBot(&fakeEngine{}, &fakeRisk{}, &fakeExecutor{}, &fakePortfolio{})
	bot.ring = logging.NewRing(logging.DefaultRingCapacity)
	for i := 0; i < 120; i++ {
		bot.ring.Append(fmt.Sprintf("line %d", i))
	}

	lines := bot.Status()["recent_logs"].([]string)
	if len(lines) != 50 {
		t.Fatalf("expected 50 recent log lines, got %d", len(lines))
	}
	if lines[0] != "line 70" || lines[49] != "line 119" {
		t.Fatalf("expected the newest 50 lines, got %q .. %q", lines[0], lines[49])
	}
}

func TestHandleCandleBroadcasts(t *testing.T) {
	bot := newTestBot(&fakeEngine{}, &fakeRisk{}, &fakeExecutor{}, &fakePortfolio{})
	events, cancel := bot.hub.Subscribe()
	defer cancel()

	candle := market.Candle{Symbol: "BTC", Interval: "1m", Timestamp: 1700000000000, Open: 100, High: 110, Low: 90, Close: 105, Volume: 3}
	bot.HandleCandle(candle)

	published := drainEvents(events)
	if countEvents(published, broadcast.EventCandle) != 1 {
		t.Fatalf("expected one candle event, got %v", published)
	}
	got, ok := published[0].Data.(market.Candle)
	if !ok || got.Close != 105 {
		t.Fatalf("unexpected candle payload: %#v", published[0].Data)
	}
}

func TestHandleUserEventRefreshesPortfolio(t *testing.T) {
	source := &fakePortfolio{state: account.PortfolioState{TotalEquity: 42, AvailableBalance: 40}}
	bot := newTestBot(&fakeEngine{}, &fakeRisk{}, &fakeExecutor{}, source)
	events, cancel := bot.hub.Subscribe()
	defer cancel()

	bot.HandleUserEvent(map[string]any{"fills": []any{}})

	bot.mu.Lock()
	equity := bot.portfolio.TotalEquity
	bot.mu.Unlock()
	if equity != 42 {
		t.Fatalf("portfolio not refreshed, equity %f", equity)
	}

	published := drainEvents(events)
	if countEvents(published, broadcast.EventUserEvent) != 1 {
		t.Fatal("expected the raw user event to be rebroadcast")
	}
	if countEvents(published, broadcast.EventPortfolio) != 1 {
		t.Fatal("expected a portfolio event after refresh")
	}
}
