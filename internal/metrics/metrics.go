package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	SignalsBuy       Counter
	SignalsSell      Counter
	SignalsHold      Counter
	RiskRejections   Counter
	ZeroSizeSkips    Counter
	OrdersFilled     Counter
	OrdersPending    Counter
	OrdersFailed     Counter
	CycleErrors      Counter
	StreamReconnects Counter
	DroppedMessages  Counter
	PanicStops       Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		SignalsBuy:       n,
		SignalsSell:      n,
		SignalsHold:      n,
		RiskRejections:   n,
		ZeroSizeSkips:    n,
		OrdersFilled:     n,
		OrdersPending:    n,
		OrdersFailed:     n,
		CycleErrors:      n,
		StreamReconnects: n,
		DroppedMessages:  n,
		PanicStops:       n,
	}
}

// SignalCounter picks the counter matching a decision outcome.
func (m *Metrics) SignalCounter(action string) Counter {
	switch action {
	case "BUY":
		return m.SignalsBuy
	case "SELL":
		return m.SignalsSell
	default:
		return m.SignalsHold
	}
}
