package poller

import (
	"context"
	"strings"
	"sync"
	"time"

	"sms-relay-server/internal/db"
	"sms-relay-server/pkg/logger"

	"go.uber.org/zap"
)

// callWatcher polls the call_records staging table for rows beyond its
// high-water mark and notifies about the missed calls among them. The mark
// advances to the maximum id of the whole batch, interesting or not, so
// uninteresting rows are never re-fetched.
type callWatcher struct {
	calls     db.CallRepository
	batchSize int
	notify    NotifyFunc

	mu   sync.Mutex
	mark int64
}

// NewCallPoller builds the call-watching loop. The mark is recomputed from
// the store at startup: rows inserted while the process was down are not
// retroactively "new".
func NewCallPoller(calls db.CallRepository, batchSize int, interval time.Duration, notify NotifyFunc) *Poller {
	if batchSize <= 0 {
		batchSize = 500
	}
	w := &callWatcher{calls: calls, batchSize: batchSize, notify: notify}
	return NewPoller("calls", interval, w.init, w.tick)
}

func (w *callWatcher) init(ctx context.Context) {
	max, err := w.calls.MaxID()
	if err != nil {
		// Availability over completeness: default the mark and start.
		logger.Warn("Failed to read initial call-record mark, defaulting to zero", zap.Error(err))
		max = 0
	}
	w.mu.Lock()
	w.mark = max
	w.mu.Unlock()
}

func (w *callWatcher) tick(ctx context.Context) error {
	w.mu.Lock()
	mark := w.mark
	w.mu.Unlock()

	batch, err := w.calls.ListNewerThan(mark, w.batchSize)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	missed := 0
	var maxID int64
	var latest time.Time
	for _, rec := range batch {
		if rec.ID > maxID {
			maxID = rec.ID
		}
		if rec.IsSentinel() || !isMissed(rec.StatusText) {
			continue
		}
		missed++
		if rec.DateAndTime.After(latest) {
			latest = rec.DateAndTime
		}
	}

	// The whole batch has been evaluated; only now does the mark move.
	w.mu.Lock()
	if maxID > w.mark {
		w.mark = maxID
	}
	w.mu.Unlock()

	if missed > 0 && w.notify != nil {
		if err := w.notify(Summary{Count: missed, MaxID: maxID, LatestAt: latest}); err != nil {
			logger.Warn("Missed-call notification failed, not retrying",
				zap.Int("count", missed),
				zap.Error(err))
		}
	}
	return nil
}

func isMissed(statusText string) bool {
	return strings.Contains(strings.ToUpper(statusText), "MISSED") ||
		strings.Contains(strings.ToLower(statusText), "perdida")
}
