package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Countdown ticks once per second from a starting value down to zero.
// onTick runs after every decrement and onExpire once the count reaches zero.
// Callbacks run on the countdown goroutine and may observe a countdown that was
// reset in the meantime; callers check Remaining when that matters.
type Countdown struct {
	clock    clockwork.Clock
	onTick   func(remaining int)
	onExpire func()

	mu        sync.Mutex
	remaining int
	stop      chan struct{}
}

func NewCountdown(clock clockwork.Clock, onTick func(int), onExpire func()) *Countdown {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Countdown{clock: clock, onTick: onTick, onExpire: onExpire}
}

// Reset restarts the countdown from seconds, discarding any running one.
func (c *Countdown) Reset(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.remaining = seconds
	if seconds <= 0 {
		c.remaining = 0
		return
	}
	stop := make(chan struct{})
	c.stop = stop
	ticker := c.clock.NewTicker(time.Second)
	go c.run(ticker, stop)
}

// Stop freezes the countdown at its current value.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

func (c *Countdown) stopLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Countdown) run(ticker clockwork.Ticker, stop chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			c.mu.Lock()
			if c.stop != stop {
				c.mu.Unlock()
				return
			}
			c.remaining--
			remaining := c.remaining
			if remaining <= 0 {
				c.remaining = 0
				remaining = 0
				c.stop = nil
			}
			c.mu.Unlock()

			if c.onTick != nil {
				c.onTick(remaining)
			}
			if remaining == 0 {
				if c.onExpire != nil {
					c.onExpire()
				}
				return
			}
		}
	}
}
