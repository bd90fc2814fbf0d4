// Package poller implements the timer-driven watch loops that pull new
// records from external sources. One loop shape serves both the provider
// inbox and the call-record staging table: initialize a high-water mark from
// the store, then tick at a fixed interval, emitting only records beyond the
// mark. A failed tick is logged and skipped; the loop itself only stops on
// cancellation.
package poller

import (
	"context"
	"time"

	"sms-relay-server/pkg/logger"

	"go.uber.org/zap"
)

// Poller drives one watch loop. Ticks run serially; the cancellation signal
// is honored both between ticks and during the inter-tick sleep, so
// shutdown latency is bounded by one interval.
type Poller struct {
	name     string
	interval time.Duration
	init     func(ctx context.Context)
	tick     func(ctx context.Context) error
}

// NewPoller assembles a loop from its init and tick steps. init runs once
// before the first tick and must not fail the loop (availability over
// completeness: a failed startup query defaults the mark instead).
func NewPoller(name string, interval time.Duration, init func(ctx context.Context), tick func(ctx context.Context) error) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{name: name, interval: interval, init: init, tick: tick}
}

// Run executes the loop until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	if p.init != nil {
		p.init(ctx)
	}

	logger.Info("Poller started",
		zap.String("poller", p.name),
		zap.Duration("interval", p.interval))

	for {
		if ctx.Err() != nil {
			logger.Info("Poller stopped", zap.String("poller", p.name))
			return
		}

		if err := p.safeTick(ctx); err != nil {
			// One bad tick never stops polling.
			logger.Error("Poller tick failed",
				zap.String("poller", p.name),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			logger.Info("Poller stopped", zap.String("poller", p.name))
			return
		case <-time.After(p.interval):
		}
	}
}

func (p *Poller) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Poller tick panicked",
				zap.String("poller", p.name),
				zap.Any("panic", r))
		}
	}()
	return p.tick(ctx)
}
