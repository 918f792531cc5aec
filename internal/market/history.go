package market

import (
	"context"
	"sort"
	"time"

	"hl-spot-bot/internal/hl/rest"

	"go.uber.org/zap"
)

// CandleSource is the history-fetch collaborator the strategy engine
// consumes: an ordered series, most recent last.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// History fetches candle snapshots over the REST info endpoint.
type History struct {
	rest *rest.Client
	log  *zap.Logger
	now  func() time.Time
}

func NewHistory(restClient *rest.Client, log *zap.Logger) *History {
	return &History{rest: restClient, log: log, now: time.Now}
}

func (h *History) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	end := h.now().UnixMilli()
	start := end - IntervalDuration(interval).Milliseconds()*int64(limit)
	resp, err := h.rest.InfoAny(ctx, rest.NewCandleSnapshotRequest(symbol, interval, start, end))
	if err != nil {
		return nil, err
	}
	raw, ok := resp.([]any)
	if !ok {
		h.log.Warn("unexpected candle snapshot shape", zap.String("symbol", symbol), zap.String("interval", interval))
		return nil, nil
	}
	candles := make([]Candle, 0, len(raw))
	for _, entry := range raw {
		candle, ok := ParseCandle(entry)
		if !ok {
			continue
		}
		candle.Interval = interval
		if err := candle.Validate(); err != nil {
			h.log.Warn("dropping malformed candle", zap.Error(err))
			continue
		}
		candles = append(candles, candle)
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp < candles[j].Timestamp })
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}
