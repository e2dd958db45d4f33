package engine

import (
	"sync"
	"time"
)

// Timer is a monotonic one-second countdown. onTick fires once per second
// with the updated remaining value; onExpire fires exactly once when the
// remaining time reaches zero, after which the timer stops itself.
//
// Callbacks run on the timer goroutine and must not block: the session
// controller feeds them into buffered channels.
type Timer struct {
	clock Clock

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewTimer creates a stopped timer driven by the given clock.
func NewTimer(clock Clock) *Timer {
	if clock == nil {
		clock = SystemClock
	}
	return &Timer{clock: clock}
}

// Start begins a countdown of the given number of seconds. Starting while a
// countdown is active cancels the previous one first, so there is never more
// than one tick source and repeated start/cancel cycles accumulate no drift.
func (t *Timer) Start(seconds int, onTick func(remaining int), onExpire func()) {
	t.Cancel()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	t.running = true

	// Create the ticker before the goroutine starts so the tick source
	// exists by the time Start returns.
	ticker := t.clock.NewTicker(time.Second)
	go t.run(ticker, seconds, onTick, onExpire, t.stop, t.done)
}

func (t *Timer) run(ticker Ticker, remaining int, onTick func(int), onExpire func(), stop, done chan struct{}) {
	defer close(done)

	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			// Re-check stop so a cancel that raced the tick still wins.
			select {
			case <-stop:
				return
			default:
			}

			remaining--
			if remaining < 0 {
				remaining = 0
			}
			if onTick != nil {
				onTick(remaining)
			}
			if remaining == 0 {
				if onExpire != nil {
					onExpire()
				}
				return
			}
		}
	}
}

// Cancel stops the countdown. It is idempotent and safe to call after expiry
// or multiple times; once it returns, no further ticks or expiry fire.
func (t *Timer) Cancel() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stop)
	done := t.done
	t.mu.Unlock()

	<-done
}
