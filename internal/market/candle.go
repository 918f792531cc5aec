package market

import (
	"fmt"
	"time"
)

// Candle is one immutable OHLCV bar. Timestamp is the bar open time in
// milliseconds since epoch.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Symbol    string  `json:"symbol"`
	Interval  string  `json:"interval,omitempty"`
}

func (c Candle) Start() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}

// Validate rejects bars whose range does not contain the body.
func (c Candle) Validate() error {
	if c.High < c.Open || c.High < c.Close {
		return fmt.Errorf("candle %s@%d: high %f below body", c.Symbol, c.Timestamp, c.High)
	}
	if c.Low > c.Open || c.Low > c.Close {
		return fmt.Errorf("candle %s@%d: low %f above body", c.Symbol, c.Timestamp, c.Low)
	}
	return nil
}

var intervalDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
	"1w":  7 * 24 * time.Hour,
	"1M":  30 * 24 * time.Hour,
}

// IntervalDuration maps a Hyperliquid interval tag to its duration,
// defaulting to 15m for unknown tags.
func IntervalDuration(interval string) time.Duration {
	if d, ok := intervalDurations[interval]; ok {
		return d
	}
	return 15 * time.Minute
}

// Closes extracts the close series, oldest first.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
