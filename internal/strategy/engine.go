package strategy

import (
	"context"
	"math"
	"time"

	"hl-spot-bot/internal/market"

	"go.uber.org/zap"
)

// Timeframe requirements for one evaluation. The weekly series is
// advisory only and the 4h series is fetched as trend-filter context;
// neither gates the decision.
const (
	dailyLimit     = 210
	weeklyLimit    = 210
	contextLimit   = 50
	executionLimit = 100

	regimeEMAPeriod = 200
	fastEMAPeriod   = 9
	slowEMAPeriod   = 21
	rsiPeriod       = 14
	bbPeriod        = 20
	bbWidth         = 2
	adxPeriod       = 14
	adxTrendLevel   = 25

	trendConfidence = 0.8
	rangeConfidence = 0.7
)

// Engine is the dual-core strategy: a macro regime judge on daily
// closes and two tactical sub-engines on the 15-minute series, selected
// by ADX. It keeps no state between evaluations.
type Engine struct {
	candles  market.CandleSource
	log      *zap.Logger
	symbol   string
	interval string
	now      func() time.Time
}

func NewEngine(candles market.CandleSource, log *zap.Logger, symbol, interval string) *Engine {
	if interval == "" {
		interval = "15m"
	}
	return &Engine{candles: candles, log: log, symbol: symbol, interval: interval, now: time.Now}
}

// Analyze produces exactly one signal. Fetch failures and empty series
// resolve to the no-data signal (HOLD, zero confidence, SIDEWAYS); that
// path is a defined outcome, not an error.
func (e *Engine) Analyze(ctx context.Context) TradingSignal {
	daily := e.fetch(ctx, "1d", dailyLimit)
	weekly := e.fetch(ctx, "1w", weeklyLimit)
	// Context series for future trend filtering; fetched, not yet gating.
	_ = e.fetch(ctx, "4h", contextLimit)
	execution := e.fetch(ctx, e.interval, executionLimit)

	if len(daily) == 0 || len(execution) == 0 {
		return e.holdSignal(RegimeSideways, "no data", 0)
	}

	regime := e.resolveRegime(daily)
	e.logWeekly(weekly)

	closes := market.Closes(execution)
	highs := make([]float64, len(execution))
	lows := make([]float64, len(execution))
	for i, c := range execution {
		highs[i] = c.High
		lows[i] = c.Low
	}

	fast := EMA(closes, fastEMAPeriod)
	slow := EMA(closes, slowEMAPeriod)
	rsi := RSI(closes, rsiPeriod)
	upper, lower := BollingerBands(closes, bbPeriod, bbWidth)
	adx := ADX(highs, lows, closes, adxPeriod)

	latest := execution[len(execution)-1]
	adxNow := last(adx)

	signal := TradingSignal{
		Symbol:     e.symbol,
		Action:     ActionHold,
		Price:      latest.Close,
		Regime:     regime,
		Reason:     "wait",
		Timestamp:  e.now().UTC(),
		Indicators: indicatorSnapshot(adxNow, last(rsi), last(fast), last(slow)),
	}

	if !math.IsNaN(adxNow) && adxNow > adxTrendLevel {
		e.applyTrend(&signal, fast, slow)
	} else {
		e.applyRange(&signal, rsi, upper, lower, latest)
	}

	e.log.Info("analysis complete",
		zap.String("symbol", e.symbol),
		zap.String("action", string(signal.Action)),
		zap.String("regime", string(regime)),
		zap.Float64("price", signal.Price),
		zap.Float64("adx", adxNow),
		zap.Float64("confidence", signal.Confidence),
	)
	return signal
}

func (e *Engine) applyTrend(signal *TradingSignal, fast, slow []float64) {
	prevFast, prevSlow := prev(fast), prev(slow)
	curFast, curSlow := last(fast), last(slow)
	switch {
	case prevFast <= prevSlow && curFast > curSlow:
		signal.Action = ActionBuy
		signal.Confidence = trendConfidence
		signal.Reason = "trend: ema golden cross"
	case prevFast >= prevSlow && curFast < curSlow:
		signal.Action = ActionSell
		signal.Confidence = trendConfidence
		signal.Reason = "trend: ema death cross"
	default:
		signal.Reason = "trend: no crossover"
	}
}

func (e *Engine) applyRange(signal *TradingSignal, rsi, upper, lower []float64, latest market.Candle) {
	rsiNow := last(rsi)
	upperNow, lowerNow := last(upper), last(lower)
	switch {
	case rsiNow < 30 && !math.IsNaN(lowerNow) && latest.Low <= lowerNow:
		signal.Action = ActionBuy
		signal.Confidence = rangeConfidence
		signal.Reason = "range: oversold + band touch"
	case rsiNow > 70 && !math.IsNaN(upperNow) && latest.High >= upperNow:
		signal.Action = ActionSell
		signal.Confidence = rangeConfidence
		signal.Reason = "range: overbought + band touch"
	default:
		signal.Reason = "range: neutral"
	}
}

// resolveRegime is a pure function of the latest daily close versus its
// 200-period EMA.
func (e *Engine) resolveRegime(daily []market.Candle) MarketRegime {
	closes := market.Closes(daily)
	ema := EMA(closes, regimeEMAPeriod)
	if last(closes) > last(ema) {
		return RegimeBull
	}
	return RegimeBear
}

// logWeekly surfaces the super-macro view; it never gates a decision.
func (e *Engine) logWeekly(weekly []market.Candle) {
	if len(weekly) == 0 {
		return
	}
	closes := market.Closes(weekly)
	ema := EMA(closes, regimeEMAPeriod)
	e.log.Info("super macro weekly",
		zap.Float64("close", last(closes)),
		zap.Float64("ema200", last(ema)),
	)
}

func (e *Engine) fetch(ctx context.Context, interval string, limit int) []market.Candle {
	candles, err := e.candles.GetCandles(ctx, e.symbol, interval, limit)
	if err != nil {
		e.log.Warn("candle fetch failed", zap.String("interval", interval), zap.Error(err))
		return nil
	}
	return candles
}

func (e *Engine) holdSignal(regime MarketRegime, reason string, price float64) TradingSignal {
	return TradingSignal{
		Symbol:    e.symbol,
		Action:    ActionHold,
		Price:     price,
		Regime:    regime,
		Reason:    reason,
		Timestamp: e.now().UTC(),
	}
}

func indicatorSnapshot(adx, rsi, fast, slow float64) map[string]float64 {
	snap := make(map[string]float64, 4)
	for key, v := range map[string]float64{"adx": adx, "rsi": rsi, "ema9": fast, "ema21": slow} {
		if !math.IsNaN(v) {
			snap[key] = v
		}
	}
	return snap
}
