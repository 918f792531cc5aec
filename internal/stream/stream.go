package stream

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"hl-spot-bot/internal/hl/ws"
	"hl-spot-bot/internal/market"

	"go.uber.org/zap"
)

const DefaultQueueLen = 64

// CandleHandler receives each parsed execution-timeframe candle.
type CandleHandler interface {
	HandleCandle(candle market.Candle)
}

// UserEventHandler receives raw user events (fills, cancels, funding).
type UserEventHandler interface {
	HandleUserEvent(data map[string]any)
}

type subscribeMsg struct {
	Method       string         `json:"method"`
	Subscription map[string]any `json:"subscription"`
}

type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// Stream subscribes to the candle and user event feeds and demuxes
// incoming frames to the registered handlers. Handler dispatch runs on
// its own goroutine behind a bounded queue so a slow handler can only
// drop messages, never stall the read loop.
type Stream struct {
	ws       *ws.Client
	log      *zap.Logger
	symbol   string
	interval string
	address  string

	candleHandler CandleHandler
	userHandler   UserEventHandler
	onDrop        func()

	queue   chan json.RawMessage
	dropped atomic.Uint64
	parsed  atomic.Uint64
}

func New(wsClient *ws.Client, log *zap.Logger, symbol, interval, address string, queueLen int) *Stream {
	if queueLen <= 0 {
		queueLen = DefaultQueueLen
	}
	return &Stream{
		ws:       wsClient,
		log:      log,
		symbol:   symbol,
		interval: interval,
		address:  address,
		queue:    make(chan json.RawMessage, queueLen),
	}
}

func (s *Stream) OnCandle(h CandleHandler) {
	s.candleHandler = h
}

func (s *Stream) OnUserEvent(h UserEventHandler) {
	s.userHandler = h
}

// OnReconnect exposes the underlying reconnect hook for accounting.
func (s *Stream) OnReconnect(fn func()) {
	s.ws.OnReconnect(fn)
}

// OnDrop registers a hook invoked each time a frame is lost to a full
// dispatch queue.
func (s *Stream) OnDrop(fn func()) {
	s.onDrop = fn
}

// Run connects, subscribes and pumps messages until ctx is cancelled.
// Reconnection with backoff and subscription replay happen below in
// the ws client; this layer only demuxes.
func (s *Stream) Run(ctx context.Context) error {
	go s.dispatch(ctx)

	if err := s.ws.Connect(ctx); err != nil {
		s.log.Warn("initial stream connect failed, retrying in run loop", zap.Error(err))
	}
	s.subscribe(ctx)
	return s.ws.Run(ctx, s.enqueue)
}

func (s *Stream) Close() {
	s.ws.Close()
}

// Dropped reports messages lost to a full dispatch queue.
func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}

// Parsed reports frames successfully demuxed to a handler.
func (s *Stream) Parsed() uint64 {
	return s.parsed.Load()
}

func (s *Stream) subscribe(ctx context.Context) {
	subs := []subscribeMsg{
		{Method: "subscribe", Subscription: map[string]any{
			"type":     "candle",
			"coin":     s.symbol,
			"interval": s.interval,
		}},
	}
	if s.address != "" {
		subs = append(subs, subscribeMsg{Method: "subscribe", Subscription: map[string]any{
			"type": "userEvents",
			"user": s.address,
		}})
	}
	for _, sub := range subs {
		// a send failure here only means we are between connections;
		// the recorded subscription is replayed on reconnect
		if err := s.ws.Subscribe(ctx, sub); err != nil {
			s.log.Debug("subscription deferred to reconnect", zap.Error(err))
		}
	}
}

func (s *Stream) enqueue(raw json.RawMessage) {
	select {
	case s.queue <- raw:
	default:
		s.dropped.Add(1)
		if s.onDrop != nil {
			s.onDrop()
		}
	}
}

func (s *Stream) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-s.queue:
			s.handle(raw)
		}
	}
}

// handle demuxes one frame by its channel tag. Malformed frames are
// logged and dropped; they never kill the stream.
func (s *Stream) handle(raw json.RawMessage) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.log.Warn("malformed stream frame", zap.Error(err))
		return
	}
	switch env.Channel {
	case "candle":
		s.handleCandle(env.Data)
	case "user":
		s.handleUser(env.Data)
	case "subscriptionResponse", "pong", "":
		// control traffic, nothing to dispatch
	default:
		s.log.Debug("ignoring unknown channel", zap.String("channel", env.Channel))
	}
}

func (s *Stream) handleCandle(data json.RawMessage) {
	if s.candleHandler == nil {
		return
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		s.log.Warn("malformed candle frame", zap.Error(err))
		return
	}
	candle, ok := market.ParseCandle(payload)
	if !ok {
		s.log.Warn("unparseable candle frame")
		return
	}
	s.parsed.Add(1)
	s.candleHandler.HandleCandle(candle)
}

func (s *Stream) handleUser(data json.RawMessage) {
	if s.userHandler == nil {
		return
	}
	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		s.log.Warn("malformed user event", zap.Error(err))
		return
	}
	s.userHandler.HandleUserEvent(event)
}
