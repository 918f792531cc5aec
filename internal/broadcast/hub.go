package broadcast

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type EventType string

const (
	EventLog            EventType = "log"
	EventCandle         EventType = "candle"
	EventUserEvent      EventType = "user_event"
	EventPortfolio      EventType = "portfolio"
	EventSigningRequest EventType = "signing_request"
)

type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives every published event. Sinks must not block; slow
// external sinks should buffer internally.
type Sink interface {
	Publish(event Event)
}

const defaultSubscriberBuffer = 32

// Hub fans events out to subscriber channels and optional sinks.
// Publishing never blocks: a subscriber that stops draining loses
// events rather than stalling the trading loop.
type Hub struct {
	mu      sync.Mutex
	subs    map[chan Event]struct{}
	sinks   []Sink
	dropped uint64
	log     *zap.Logger
	now     func() time.Time
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		subs: make(map[chan Event]struct{}),
		log:  log,
		now:  time.Now,
	}
}

// AddSink attaches a fan-out target such as the Kafka publisher.
func (h *Hub) AddSink(sink Sink) {
	if sink == nil {
		return
	}
	h.mu.Lock()
	h.sinks = append(h.sinks, sink)
	h.mu.Unlock()
}

// Subscribe returns a buffered event channel and a cancel func that
// closes it. The channel is closed only through cancel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, defaultSubscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish stamps and fans out one event.
func (h *Hub) Publish(eventType EventType, data any) {
	event := Event{Type: eventType, Data: data, Timestamp: h.now().UTC()}

	h.mu.Lock()
	sinks := make([]Sink, len(h.sinks))
	copy(sinks, h.sinks)
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.dropped++
		}
	}
	h.mu.Unlock()

	for _, sink := range sinks {
		sink.Publish(event)
	}
}

// Dropped reports how many events were lost to full subscriber
// buffers since startup.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// SubscriberCount is surfaced through the status endpoint.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
