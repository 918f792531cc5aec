package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "hl_spot_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
	counters map[string]prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	counters := make(map[string]prometheus.Counter)

	counter := func(name, help string) Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(c)
		counters[name] = c
		return promCounter{c}
	}

	m := &Metrics{
		SignalsBuy:       counter("signals_buy_total", "Total BUY signals generated."),
		SignalsSell:      counter("signals_sell_total", "Total SELL signals generated."),
		SignalsHold:      counter("signals_hold_total", "Total HOLD signals generated."),
		RiskRejections:   counter("risk_rejections_total", "Total signals rejected by risk validation."),
		ZeroSizeSkips:    counter("zero_size_skips_total", "Total approved signals sized to zero."),
		OrdersFilled:     counter("orders_filled_total", "Total orders confirmed filled."),
		OrdersPending:    counter("orders_pending_total", "Total unsigned payloads emitted for signing."),
		OrdersFailed:     counter("orders_failed_total", "Total order construction or submission failures."),
		CycleErrors:      counter("cycle_errors_total", "Total decision cycles that hit an error."),
		StreamReconnects: counter("stream_reconnects_total", "Total market stream connection attempts that succeeded."),
		DroppedMessages:  counter("dropped_messages_total", "Total stream messages dropped by the dispatch queue."),
		PanicStops:       counter("panic_stops_total", "Total panic-stop invocations."),
	}

	return &Prometheus{Metrics: m, registry: registry, counters: counters}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Counter exposes a registered counter for tests.
func (p *Prometheus) Counter(name string) prometheus.Counter {
	return p.counters[name]
}
