package market

import (
	"encoding/json"
	"strconv"
)

// ParseCandle normalizes one raw candle object from either the REST
// snapshot or the ws candle channel. Hyperliquid uses short field names
// (t/o/h/l/c/v/s) with numbers encoded as strings.
func ParseCandle(v any) (Candle, bool) {
	m, ok := toMap(v)
	if !ok {
		return Candle{}, false
	}
	ts, ok := int64FromAny(m["t"])
	if !ok {
		return Candle{}, false
	}
	open, okO := floatFromAny(m["o"])
	high, okH := floatFromAny(m["h"])
	low, okL := floatFromAny(m["l"])
	closePx, okC := floatFromAny(m["c"])
	if !okO || !okH || !okL || !okC {
		return Candle{}, false
	}
	volume, _ := floatFromAny(m["v"])
	symbol, _ := m["s"].(string)
	interval, _ := m["i"].(string)
	return Candle{
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePx,
		Volume:    volume,
		Symbol:    symbol,
		Interval:  interval,
	}, true
}

func toMap(v any) (map[string]any, bool) {
	switch val := v.(type) {
	case map[string]any:
		return val, true
	case json.RawMessage:
		var m map[string]any
		if err := json.Unmarshal(val, &m); err != nil {
			return nil, false
		}
		return m, true
	default:
		return nil, false
	}
}

func floatFromAny(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func int64FromAny(v any) (int64, bool) {
	switch val := v.(type) {
	case float64:
		return int64(val), true
	case int64:
		return val, true
	case string:
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
