package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Client maintains a single Hyperliquid websocket connection. Run keeps
// it alive forever: on failure it reconnects with exponential backoff
// (doubling from initialBackoff up to maxBackoff, reset after any
// successful dial) and replays all recorded subscriptions.
type Client struct {
	url            string
	initialBackoff time.Duration
	maxBackoff     time.Duration
	pingInterval   time.Duration
	log            *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    []interface{}
	subKeys map[string]struct{}

	onReconnect func()
}

func New(url string, initialBackoff, maxBackoff, pingInterval time.Duration, log *zap.Logger) *Client {
	if initialBackoff <= 0 {
		initialBackoff = time.Second
	}
	if maxBackoff < initialBackoff {
		maxBackoff = 60 * time.Second
	}
	return &Client{
		url:            url,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		pingInterval:   pingInterval,
		log:            log,
	}
}

// OnReconnect registers a hook invoked after every successful dial
// (including the first); used for reconnect accounting.
func (c *Client) OnReconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnect = fn
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(1 << 20)
	c.conn = conn
	if c.onReconnect != nil {
		c.onReconnect()
	}
	return nil
}

// Subscribe records the subscription and sends it if connected. Recorded
// subscriptions are replayed on every reconnect; a subscription already
// recorded (same wire form) is not recorded or sent again.
func (c *Client) Subscribe(ctx context.Context, sub interface{}) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.subKeys == nil {
		c.subKeys = make(map[string]struct{})
	}
	if _, seen := c.subKeys[string(raw)]; seen {
		c.mu.Unlock()
		return nil
	}
	c.subKeys[string(raw)] = struct{}{}
	c.subs = append(c.subs, sub)
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("ws not connected")
	}
	return writeJSON(ctx, conn, sub)
}

// Run drives the connection until ctx is cancelled. Transient failures
// never propagate to the caller; only cancellation ends the loop.
func (c *Client) Run(ctx context.Context, handler func(json.RawMessage)) error {
	backoff := c.initialBackoff
	for {
		if err := c.ensureConnected(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("ws connect failed", zap.Duration("retry_in", backoff), zap.Error(err))
			if err := c.sleep(ctx, backoff); err != nil {
				return err
			}
			backoff = c.nextBackoff(backoff)
			continue
		}
		backoff = c.initialBackoff

		pingCtx, cancel := context.WithCancel(ctx)
		pingDone := make(chan struct{})
		go func() {
			defer close(pingDone)
			c.pingLoop(pingCtx)
		}()
		err := c.readLoop(ctx, handler)
		cancel()
		<-pingDone
		if ctx.Err() != nil {
			c.resetConn()
			return ctx.Err()
		}
		c.logReadLoopError(err)
		c.resetConn()
		if err := c.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff = c.nextBackoff(backoff)
	}
}

func (c *Client) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > c.maxBackoff {
		next = c.maxBackoff
	}
	return next
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (c *Client) ensureConnected(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	subs := append([]interface{}(nil), c.subs...)
	c.mu.Unlock()
	for _, sub := range subs {
		if err := writeJSON(ctx, conn, sub); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context, handler func(json.RawMessage)) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("ws not connected")
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if handler != nil {
			handler(json.RawMessage(data))
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	interval := c.pingInterval
	c.mu.Unlock()
	if conn == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeJSON(ctx, conn, pingMessage); err != nil {
				return
			}
		}
	}
}

func (c *Client) logReadLoopError(err error) {
	if c.log == nil || err == nil {
		return
	}
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure {
		var closeErr websocket.CloseError
		if errors.As(err, &closeErr) {
			c.log.Info("ws read loop ended", zap.Int("status", int(closeErr.Code)), zap.String("reason", closeErr.Reason))
			return
		}
		c.log.Info("ws read loop ended", zap.Error(err))
		return
	}
	c.log.Warn("ws read loop ended", zap.Error(err))
}

// Close terminates the current connection. A concurrent Run will treat
// it as a read failure and reconnect unless its context is cancelled.
func (c *Client) Close() {
	c.resetConn()
}

func (c *Client) resetConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "reset")
		c.conn = nil
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

var pingMessage = map[string]any{"method": "ping"}
