package runtime

import (
	"sync"
	"sync/atomic"
	"time"
)

// SessionClock counts a chat budget down one second per tick and fires
// onExpire exactly once when it reaches zero. It keeps running when the
// connection degrades.
type SessionClock struct {
	remaining atomic.Int64
	tick      time.Duration
	onExpire  func()

	fired     atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
}

// NewSessionClock builds a stopped clock. tick is the wall time of one
// budget second; a non-positive tick means one second.
func NewSessionClock(budget, tick time.Duration, onExpire func()) *SessionClock {
	if tick <= 0 {
		tick = time.Second
	}
	c := &SessionClock{
		tick:     tick,
		onExpire: onExpire,
		stop:     make(chan struct{}),
	}
	c.remaining.Store(int64(budget / time.Second))
	return c
}

func (c *SessionClock) Start() {
	c.startOnce.Do(func() {
		go c.run()
	})
}

func (c *SessionClock) run() {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if c.remaining.Add(-1) > 0 {
				continue
			}
			c.Stop()
			c.expire()
			return
		}
	}
}

func (c *SessionClock) expire() {
	if !c.fired.CompareAndSwap(false, true) {
		return
	}
	if c.onExpire != nil {
		c.onExpire()
	}
}

// Stop halts the clock without waiting. It is safe to call from onExpire.
func (c *SessionClock) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// Remaining returns the budget seconds left.
func (c *SessionClock) Remaining() time.Duration {
	r := c.remaining.Load()
	if r < 0 {
		r = 0
	}
	return time.Duration(r) * time.Second
}

func (c *SessionClock) Expired() bool {
	return c.fired.Load()
}
