package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"sms-relay-server/internal/provider"
	"sms-relay-server/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockInboxSource struct {
	fetchFunc func(ctx context.Context, direction string, page, pageSize int, accountRef string) (*provider.InboxPage, error)
}

func (m *mockInboxSource) Fetch(ctx context.Context, direction string, page, pageSize int, accountRef string) (*provider.InboxPage, error) {
	return m.fetchFunc(ctx, direction, page, pageSize, accountRef)
}

type mockSaver struct {
	saveFunc func(originator, recipient, body string, messageAt time.Time, providerMessageID string) (services.SaveReceivedResult, error)
	saved    []string
}

func (m *mockSaver) SaveReceived(originator, recipient, body string, messageAt time.Time, providerMessageID string) (services.SaveReceivedResult, error) {
	m.saved = append(m.saved, providerMessageID)
	if m.saveFunc != nil {
		return m.saveFunc(originator, recipient, body, messageAt, providerMessageID)
	}
	return services.SaveReceivedResult{ID: int64(len(m.saved))}, nil
}

func newInboxWatcher(source provider.InboxSource, saver MessageSaver, notify NotifyFunc) *inboxWatcher {
	return &inboxWatcher{
		source:    source,
		messages:  saver,
		direction: "MO",
		pageSize:  50,
		notify:    notify,
		seen:      make(map[string]struct{}),
	}
}

func inboxPageOf(ids ...string) *provider.InboxPage {
	page := &provider.InboxPage{Total: len(ids)}
	for _, id := range ids {
		page.Items = append(page.Items, provider.InboxItem{
			ID:         id,
			From:       "+34600123456",
			To:         "EX1234567",
			Body:       "hola " + id,
			ReceivedAt: time.Now().UTC(),
		})
	}
	return page
}

func TestInboxTickSavesNewAndNotifies(t *testing.T) {
	source := &mockInboxSource{
		fetchFunc: func(ctx context.Context, direction string, page, pageSize int, accountRef string) (*provider.InboxPage, error) {
			return inboxPageOf("a", "b"), nil
		},
	}
	saver := &mockSaver{}

	var notified []Summary
	w := newInboxWatcher(source, saver, func(s Summary) error {
		notified = append(notified, s)
		return nil
	})

	require.NoError(t, w.tick(context.Background()))
	assert.Equal(t, []string{"a", "b"}, saver.saved)
	require.Len(t, notified, 1)
	assert.Equal(t, 2, notified[0].Count)
}

func TestInboxTickSeenIDsNotReemitted(t *testing.T) {
	source := &mockInboxSource{
		fetchFunc: func(ctx context.Context, direction string, page, pageSize int, accountRef string) (*provider.InboxPage, error) {
			return inboxPageOf("a", "b"), nil
		},
	}
	saver := &mockSaver{}
	w := newInboxWatcher(source, saver, nil)

	require.NoError(t, w.tick(context.Background()))
	require.NoError(t, w.tick(context.Background()))

	// Second tick saw only already-seen ids; nothing was saved again.
	assert.Equal(t, []string{"a", "b"}, saver.saved)
}

func TestInboxTickDuplicateFromStoreNotCounted(t *testing.T) {
	source := &mockInboxSource{
		fetchFunc: func(ctx context.Context, direction string, page, pageSize int, accountRef string) (*provider.InboxPage, error) {
			return inboxPageOf("a"), nil
		},
	}
	saver := &mockSaver{
		saveFunc: func(_, _, _ string, _ time.Time, _ string) (services.SaveReceivedResult, error) {
			return services.SaveReceivedResult{Duplicate: true}, nil
		},
	}

	notifies := 0
	w := newInboxWatcher(source, saver, func(Summary) error {
		notifies++
		return nil
	})

	require.NoError(t, w.tick(context.Background()))
	assert.Zero(t, notifies)
}

func TestInboxTickRetriesAfterFailedSave(t *testing.T) {
	source := &mockInboxSource{
		fetchFunc: func(ctx context.Context, direction string, page, pageSize int, accountRef string) (*provider.InboxPage, error) {
			return inboxPageOf("a"), nil
		},
	}
	fail := true
	saver := &mockSaver{
		saveFunc: func(_, _, _ string, _ time.Time, _ string) (services.SaveReceivedResult, error) {
			if fail {
				return services.SaveReceivedResult{}, errors.New("database is locked")
			}
			return services.SaveReceivedResult{ID: 1}, nil
		},
	}
	w := newInboxWatcher(source, saver, nil)

	// A transient store failure must not burn the id in the seen set.
	require.NoError(t, w.tick(context.Background()))
	fail = false
	require.NoError(t, w.tick(context.Background()))

	assert.Equal(t, []string{"a", "a"}, saver.saved)

	// Once saved, later ticks do not re-save it.
	require.NoError(t, w.tick(context.Background()))
	assert.Equal(t, []string{"a", "a"}, saver.saved)
}

func TestInboxTickFetchErrorPropagatesForLogging(t *testing.T) {
	source := &mockInboxSource{
		fetchFunc: func(ctx context.Context, direction string, page, pageSize int, accountRef string) (*provider.InboxPage, error) {
			return nil, errors.New("auth failed")
		},
	}
	w := newInboxWatcher(source, &mockSaver{}, nil)

	assert.Error(t, w.tick(context.Background()))
}

func TestInboxTickNotifyFailureIsNonFatal(t *testing.T) {
	source := &mockInboxSource{
		fetchFunc: func(ctx context.Context, direction string, page, pageSize int, accountRef string) (*provider.InboxPage, error) {
			return inboxPageOf("x"), nil
		},
	}
	w := newInboxWatcher(source, &mockSaver{}, func(Summary) error {
		return errors.New("sibling service down")
	})

	assert.NoError(t, w.tick(context.Background()))
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	var ticks atomic.Int32
	p := NewPoller("test", 10*time.Millisecond, nil, func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on cancellation")
	}
}

func TestPollerRunSurvivesTickErrors(t *testing.T) {
	var ticks atomic.Int32
	p := NewPoller("test", 5*time.Millisecond, nil, func(ctx context.Context) error {
		ticks.Add(1)
		return errors.New("always failing")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
}
