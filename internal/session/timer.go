package session

import (
	"sync"
	"time"
)

// Countdown derives the remaining time of an attempt from its
// server-authoritative start time and the assessment duration. Remaining
// time is always recomputed from the wall clock, never accumulated, so a
// reload or a paused process cannot drift it.
//
// When the remaining time reaches zero the expire callback fires at most
// once, no matter how many ticks cross zero, and the ticking goroutine
// exits. Stop tears the ticker down; a stopped countdown never calls
// back.
type Countdown struct {
	startedAt time.Time
	duration  time.Duration
	onExpire  func()

	// now and interval are injectable for tests.
	now      func() time.Time
	interval time.Duration

	expireOnce sync.Once
	stopOnce   sync.Once
	stopped    chan struct{}

	mu   sync.Mutex
	subs map[int]chan int
	next int
}

// NewCountdown creates a countdown ticking once per second on the real
// clock. onExpire runs on the ticker goroutine when time runs out.
func NewCountdown(startedAt time.Time, duration time.Duration, onExpire func()) *Countdown {
	return newCountdown(startedAt, duration, onExpire, time.Now, time.Second)
}

func newCountdown(startedAt time.Time, duration time.Duration, onExpire func(), now func() time.Time, interval time.Duration) *Countdown {
	return &Countdown{
		startedAt: startedAt,
		duration:  duration,
		onExpire:  onExpire,
		now:       now,
		interval:  interval,
		stopped:   make(chan struct{}),
		subs:      make(map[int]chan int),
	}
}

// Remaining returns the derived remaining time, clamped at zero.
func (c *Countdown) Remaining() time.Duration {
	rem := c.startedAt.Add(c.duration).Sub(c.now())
	if rem < 0 {
		return 0
	}
	return rem
}

// RemainingSeconds returns Remaining rounded down to whole seconds.
func (c *Countdown) RemainingSeconds() int {
	return int(c.Remaining() / time.Second)
}

// Start launches the ticking goroutine. If the countdown is already
// expired it fires immediately.
func (c *Countdown) Start() {
	go c.run()
}

func (c *Countdown) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	if c.tick() {
		return
	}
	for {
		select {
		case <-c.stopped:
			return
		case <-ticker.C:
			if c.tick() {
				return
			}
		}
	}
}

// tick broadcasts the remaining seconds and reports whether the
// countdown expired.
func (c *Countdown) tick() bool {
	select {
	case <-c.stopped:
		return true
	default:
	}

	rem := c.RemainingSeconds()
	c.broadcast(rem)
	if rem > 0 {
		return false
	}
	c.expireOnce.Do(func() {
		if c.onExpire != nil {
			c.onExpire()
		}
	})
	return true
}

// Stop cancels the ticker. Safe to call multiple times and after expiry.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stopped) })
}

// Subscribe registers an observer for per-tick remaining seconds. Slow
// observers are skipped, never blocked on. The returned func
// unsubscribes.
func (c *Countdown) Subscribe() (<-chan int, func()) {
	ch := make(chan int, 1)

	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Countdown) broadcast(remaining int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- remaining:
		default:
		}
	}
}
