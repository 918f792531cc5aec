package app

import (
	"context"
	"time"

	"hl-spot-bot/internal/broadcast"
	"hl-spot-bot/internal/exec"
	"hl-spot-bot/internal/market"
	"hl-spot-bot/internal/strategy"
	"hl-spot-bot/internal/timescale"
)

// recentLogLines caps how much of the log ring Status serves.
const recentLogLines = 50

// HandleCandle forwards a live bar to subscribers and the archive. The
// stream never triggers a trade; the cycle loop owns all decisions.
func (b *Bot) HandleCandle(candle market.Candle) {
	b.hub.Publish(broadcast.EventCandle, candle)
	b.ts.EnqueueCandle(timescale.Candle{
		Asset:    candle.Symbol,
		Interval: candle.Interval,
		Start:    candle.Start(),
		Open:     candle.Open,
		High:     candle.High,
		Low:      candle.Low,
		Close:    candle.Close,
		Volume:   candle.Volume,
	})
}

// HandleUserEvent refreshes the cached portfolio after account
// activity (fills, transfers) and rebroadcasts the raw event.
func (b *Bot) HandleUserEvent(event map[string]any) {
	b.hub.Publish(broadcast.EventUserEvent, event)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	portfolio := b.fetcher.GetPortfolioState(ctx)
	b.setPortfolio(portfolio)
	b.hub.Publish(broadcast.EventPortfolio, portfolioSummary(portfolio))
}

func (b *Bot) recordSignal(signal strategy.TradingSignal) {
	b.ts.EnqueueSignal(timescale.SignalRow{
		Time:       signal.Timestamp,
		Symbol:     signal.Symbol,
		Action:     string(signal.Action),
		Price:      signal.Price,
		Confidence: signal.Confidence,
		Regime:     string(signal.Regime),
		Reason:     signal.Reason,
		ADX:        signal.Indicators["adx"],
		RSI:        signal.Indicators["rsi"],
	})
}

func (b *Bot) recordTrade(signal strategy.TradingSignal, size float64, result exec.OrderResult) {
	b.ts.EnqueueTrade(timescale.TradeRow{
		Time:    b.now().UTC(),
		Symbol:  signal.Symbol,
		Action:  string(signal.Action),
		Size:    size,
		LimitPx: signal.Price,
		Status:  string(result.Status),
		OrderID: result.OrderID,
		Detail:  result.ErrorMessage,
	})
}

// Status is a point-in-time snapshot for operators. It is read-only
// and safe to call in any state.
func (b *Bot) Status() map[string]any {
	b.mu.Lock()
	running := b.running
	last := b.last
	portfolio := b.portfolio
	cycles := b.cycles
	b.mu.Unlock()

	usdcLock, btcLock := b.risk.Allocation()
	status := map[string]any{
		"running":     running,
		"symbol":      b.cfg.Trading.Symbol,
		"timeframe":   b.cfg.Trading.Timeframe,
		"environment": b.cfg.Trading.Environment,
		"custodial":   b.cfg.Trading.Custodial,
		"cycles":      cycles,
		"allocation": map[string]float64{
			"usdc_lock_pct": usdcLock,
			"btc_lock_pct":  btcLock,
		},
		"portfolio":   portfolioSummary(portfolio),
		"subscribers": b.hub.SubscriberCount(),
	}
	if last != nil {
		status["last_signal"] = *last
	}
	if b.stream != nil {
		status["stream_parsed"] = b.stream.Parsed()
		status["stream_dropped"] = b.stream.Dropped()
	}
	if b.ring != nil {
		status["recent_logs"] = b.ring.Recent(recentLogLines)
	}
	return status
}
