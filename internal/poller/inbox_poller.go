package poller

import (
	"context"
	"sync"
	"time"

	"sms-relay-server/internal/provider"
	"sms-relay-server/internal/services"
	"sms-relay-server/pkg/logger"

	"go.uber.org/zap"
)

// Summary is the compact notification payload emitted when a tick found new
// records. It deliberately carries counts, not the records themselves.
type Summary struct {
	Count    int       `json:"count"`
	MaxID    int64     `json:"max_id,omitempty"`
	LatestAt time.Time `json:"latest_at"`
}

// NotifyFunc pushes a summary downstream. A failed notify is logged and not
// retried: the mark has already advanced, so the next tick will not resend.
// That one lost notification is an accepted limitation.
type NotifyFunc func(Summary) error

// MessageSaver is the slice of the message service the inbox watcher needs.
type MessageSaver interface {
	SaveReceived(originator, recipient, body string, messageAt time.Time, providerMessageID string) (services.SaveReceivedResult, error)
}

// inboxWatcher polls the provider inbox for unseen messages. The provider
// exposes no monotonic sequence, so dedup is a process-local seen-id set
// with the store's unique index as the backstop across restarts.
type inboxWatcher struct {
	source    provider.InboxSource
	messages  MessageSaver
	direction string
	account   string
	pageSize  int
	notify    NotifyFunc

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewInboxPoller builds the message-watching loop.
func NewInboxPoller(source provider.InboxSource, messages MessageSaver, direction, accountRef string, pageSize int, interval time.Duration, notify NotifyFunc) *Poller {
	if pageSize <= 0 {
		pageSize = 50
	}
	w := &inboxWatcher{
		source:    source,
		messages:  messages,
		direction: direction,
		account:   accountRef,
		pageSize:  pageSize,
		notify:    notify,
		seen:      make(map[string]struct{}),
	}
	return NewPoller("inbox", interval, nil, w.tick)
}

func (w *inboxWatcher) tick(ctx context.Context) error {
	page, err := w.source.Fetch(ctx, w.direction, 1, w.pageSize, w.account)
	if err != nil {
		return err
	}
	if len(page.Items) == 0 {
		return nil
	}

	newCount := 0
	var latest time.Time
	for _, item := range page.Items {
		if !w.markSeen(item.ID) {
			continue
		}

		result, err := w.messages.SaveReceived(item.From, item.To, item.Body, item.ReceivedAt, item.ID)
		if err != nil {
			// Release the id so the next tick retries; the store's unique
			// index keeps an overlapping retry from double-inserting.
			w.unsee(item.ID)
			logger.Error("Failed to persist polled message",
				zap.String("provider_message_id", item.ID),
				zap.Error(err))
			continue
		}
		if result.Duplicate {
			continue
		}

		newCount++
		if item.ReceivedAt.After(latest) {
			latest = item.ReceivedAt
		}
	}

	if newCount > 0 && w.notify != nil {
		if err := w.notify(Summary{Count: newCount, LatestAt: latest}); err != nil {
			logger.Warn("Inbox notification failed, not retrying",
				zap.Int("count", newCount),
				zap.Error(err))
		}
	}
	return nil
}

// markSeen records id and reports whether it was new.
func (w *inboxWatcher) markSeen(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.seen[id]; ok {
		return false
	}
	w.seen[id] = struct{}{}
	return true
}

// unsee forgets id after a failed save so a later tick picks it up again.
func (w *inboxWatcher) unsee(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.seen, id)
}
