package events

import (
	"sync"

	"sms-relay-server/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Broadcaster fans out domain events to subscribers. Delivery is
// fire-and-forget per subscriber: a subscriber that cannot keep up has
// events dropped with a log line, and never blocks the publisher or the
// other subscribers. Within one Publish or PublishBatch call events reach
// each subscriber in the order they were assembled.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*subscription
}

type subscription struct {
	id string
	ch chan Event
}

// Subscription is one subscriber's live event stream. Close must be called
// when the consumer goes away.
type Subscription struct {
	ID string
	C  <-chan Event

	once   sync.Once
	cancel func()
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[string]*subscription)}
}

// Subscribe registers a new subscriber with the given channel buffer.
func (b *Broadcaster) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}

	sub := &subscription{
		id: uuid.New().String(),
		ch: make(chan Event, buffer),
	}

	b.mu.Lock()
	b.subscribers[sub.id] = sub
	b.mu.Unlock()

	return &Subscription{
		ID: sub.id,
		C:  sub.ch,
		cancel: func() {
			b.mu.Lock()
			if _, ok := b.subscribers[sub.id]; ok {
				delete(b.subscribers, sub.id)
				close(sub.ch)
			}
			b.mu.Unlock()
		},
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Publish delivers one named event to every subscriber.
func (b *Broadcaster) Publish(name string, payload any) {
	b.deliver([]Event{NewEvent(name, payload)})
}

// PublishBatch delivers the events in slice order to every subscriber.
func (b *Broadcaster) PublishBatch(evts []Event) {
	b.deliver(evts)
}

func (b *Broadcaster) deliver(evts []Event) {
	// The read lock is held across the sends: Close takes the write lock
	// before closing a channel, so no send can hit a closed channel. Sends
	// are non-blocking, so holding the lock is cheap.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		for _, evt := range evts {
			select {
			case sub.ch <- evt:
			default:
				logger.Warn("Dropping event for slow subscriber",
					zap.String("subscriber_id", sub.id),
					zap.String("event", evt.Name))
			}
		}
	}
}
