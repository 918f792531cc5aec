package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// Ring is a bounded buffer of recent log lines. Oldest lines are
// discarded once the capacity is reached.
type Ring struct {
	mu    sync.Mutex
	lines []string
	cap   int
}

const DefaultRingCapacity = 100

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{cap: capacity}
}

func (r *Ring) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	if len(r.lines) > r.cap {
		r.lines = r.lines[len(r.lines)-r.cap:]
	}
}

// Recent returns up to n of the newest lines, oldest first.
func (r *Ring) Recent(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > len(r.lines) {
		n = len(r.lines)
	}
	out := make([]string, n)
	copy(out, r.lines[len(r.lines)-n:])
	return out
}

type ringCore struct {
	ring    *Ring
	enabler zapcore.LevelEnabler
	fields  []zapcore.Field
}

func newRingCore(ring *Ring, enabler zapcore.LevelEnabler) zapcore.Core {
	return &ringCore{ring: ring, enabler: enabler}
}

func (c *ringCore) Enabled(lvl zapcore.Level) bool {
	return c.enabler.Enabled(lvl)
}

func (c *ringCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &ringCore{ring: c.ring, enabler: c.enabler}
	clone.fields = append(append([]zapcore.Field(nil), c.fields...), fields...)
	return clone
}

func (c *ringCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *ringCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	line := fmt.Sprintf("%s %s %s", entry.Time.UTC().Format(time.RFC3339), entry.Level.CapitalString(), entry.Message)
	for k, v := range enc.Fields {
		line += fmt.Sprintf(" %s=%v", k, v)
	}
	c.ring.Append(line)
	return nil
}

func (c *ringCore) Sync() error { return nil }
