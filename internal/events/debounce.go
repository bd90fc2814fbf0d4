package events

import (
	"context"
	"sync"
	"time"

	"sms-relay-server/pkg/logger"

	"go.uber.org/zap"
)

// Debouncer coalesces bursts of triggers into one delayed run of fn. Each
// Trigger pushes the deadline out by the configured delay; the waiter loop
// sleeps until the deadline and then runs fn once. A trigger arriving while
// fn is running sets a pending flag that is consumed right after the run
// finishes, so fn never runs twice concurrently and no trigger is lost.
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu       sync.Mutex
	deadline time.Time
	armed    bool
	running  bool
	pending  bool

	wake chan struct{}
}

// NewDebouncer creates a debouncer; Start must be called before Trigger has
// any effect.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{
		delay: delay,
		fn:    fn,
		wake:  make(chan struct{}, 1),
	}
}

// Trigger requests a run of fn after the quiesce delay. Safe from any
// goroutine.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	d.deadline = time.Now().Add(d.delay)
	if d.running {
		d.pending = true
		d.mu.Unlock()
		return
	}
	d.armed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Start runs the waiter loop until ctx is cancelled.
func (d *Debouncer) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		}

		for {
			d.mu.Lock()
			if !d.armed {
				d.mu.Unlock()
				break
			}
			deadline := d.deadline
			d.mu.Unlock()

			if !d.sleepUntil(ctx, deadline) {
				return
			}

			d.mu.Lock()
			if d.deadline.After(deadline) {
				// A newer trigger moved the deadline while we slept.
				d.mu.Unlock()
				continue
			}
			d.armed = false
			d.running = true
			d.mu.Unlock()

			d.runOnce()

			d.mu.Lock()
			d.running = false
			if d.pending {
				d.pending = false
				d.armed = true
				d.mu.Unlock()
				continue
			}
			d.mu.Unlock()
			break
		}
	}
}

func (d *Debouncer) runOnce() {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Debounced task panicked", zap.Any("panic", r))
		}
	}()
	d.fn()
}

// sleepUntil blocks until the deadline passes; false means ctx was
// cancelled first.
func (d *Debouncer) sleepUntil(ctx context.Context, deadline time.Time) bool {
	wait := time.Until(deadline)
	if wait <= 0 {
		return true
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
