package strategy

import "time"

type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
	ActionHold TradeAction = "HOLD"
)

// MarketRegime is the macro directional bias derived from the daily
// close against its 200-period EMA. It is never set by callers.
type MarketRegime string

const (
	RegimeBull     MarketRegime = "BULL"
	RegimeBear     MarketRegime = "BEAR"
	RegimeSideways MarketRegime = "SIDEWAYS"
)

// TradingSignal is one strategy decision. Exactly one is produced per
// evaluation and it is immutable once returned.
type TradingSignal struct {
	Symbol     string             `json:"symbol"`
	Action     TradeAction        `json:"action"`
	Price      float64            `json:"price"`
	Confidence float64            `json:"confidence"`
	Regime     MarketRegime       `json:"regime"`
	Reason     string             `json:"reason"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}
