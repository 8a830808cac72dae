// Package clock provides the millisecond timestamps used for updatedAt and queue ordering.
package clock

import (
	"sync"
	"time"
)

// Clock источник временных меток в миллисекундах.
type Clock interface {
	// Now возвращает текущее время в мс
	Now() int64
}

// Observer продвигается за увиденные удаленные timestamp.
type Observer interface {
	Observe(remote int64)
}

// Observe advances c past remote when c supports it.
func Observe(c Clock, remote int64) {
	if o, ok := c.(Observer); ok {
		o.Observe(remote)
	}
}

// Monotonic гибридные часы: физическое время в мс, которое никогда не повторяется
// и не идет назад. Как в часах Лампорта, Observe продвигает счетчик за
// timestamp, полученный с сервера, поэтому последующая локальная правка
// всегда новее увиденной удаленной версии.
type Monotonic struct {
	wall func() time.Time // источник физического времени
	last int64            // последнее выданное значение
	mu   sync.Mutex
}

// NewMonotonic creates a clock backed by time.Now.
func NewMonotonic() *Monotonic {
	return &Monotonic{wall: time.Now}
}

// NewMonotonicWithSource creates a clock backed by a custom wall source. Used in tests.
func NewMonotonicWithSource(wall func() time.Time) *Monotonic {
	return &Monotonic{wall: wall}
}

// Now returns max(wall time, last+1).
func (c *Monotonic) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.wall().UnixMilli()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return now
}

// Observe advances the clock past a timestamp seen on a remote record.
// Согласно алгоритму Лампорта: last = max(last, remote)
func (c *Monotonic) Observe(remote int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remote > c.last {
		c.last = remote
	}
}

// Last returns the most recent value without advancing the clock.
func (c *Monotonic) Last() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.last
}

// Func adapts a plain function to Clock.
type Func func() int64

// Now calls f.
func (f Func) Now() int64 { return f() }
