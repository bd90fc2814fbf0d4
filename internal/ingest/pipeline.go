// Package ingest watches a drop directory for call-log batch files and
// loads each file into the call-record staging table exactly once. Files
// are never deleted or moved; idempotency comes from the store's
// source-file check plus sentinel marker rows for empty and failed files.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sms-relay-server/internal/db"
	"sms-relay-server/internal/events"
	"sms-relay-server/internal/models"
	"sms-relay-server/pkg/logger"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Publisher is the slice of the broadcaster the pipeline needs.
type Publisher interface {
	Publish(name string, payload any)
	PublishBatch(evts []events.Event)
}

// Config tunes the pipeline. Zero values get sensible defaults.
type Config struct {
	Dir              string
	Extension        string        // e.g. ".txt"
	Delimiter        string        // field separator inside rows
	StabilityRetries int           // read attempts while the file is still being written
	StabilityDelay   time.Duration // delay between size probes
	SmallBatchMax    int           // per-row events up to this many rows
	RequeryWindow    time.Duration // load-time window for the post-insert id re-query
	DebounceDelay    time.Duration // quiesce delay before the aggregation run
}

func (c *Config) applyDefaults() {
	if c.Extension == "" {
		c.Extension = ".txt"
	}
	if c.Delimiter == "" {
		c.Delimiter = ";"
	}
	if c.StabilityRetries <= 0 {
		c.StabilityRetries = 5
	}
	if c.StabilityDelay <= 0 {
		c.StabilityDelay = 200 * time.Millisecond
	}
	if c.SmallBatchMax <= 0 {
		c.SmallBatchMax = 5
	}
	if c.RequeryWindow <= 0 {
		c.RequeryWindow = 10 * time.Second
	}
	if c.DebounceDelay <= 0 {
		c.DebounceDelay = 2 * time.Second
	}
}

// Pipeline is the file-drop ingest unit: fsnotify watcher, an unbounded
// queue drained by a single consumer, and a debounced aggregation step.
// All tracking state (in-flight names, debounce flags) is owned by the
// instance, so pipelines in tests never interfere.
type Pipeline struct {
	cfg       Config
	calls     db.CallRepository
	publisher Publisher
	debounce  *events.Debouncer
	queue     *fileQueue

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a pipeline. aggregate is the debounced downstream step run
// once per burst of loaded files.
func New(cfg Config, calls db.CallRepository, publisher Publisher, aggregate func()) *Pipeline {
	cfg.applyDefaults()
	return &Pipeline{
		cfg:       cfg,
		calls:     calls,
		publisher: publisher,
		debounce:  events.NewDebouncer(cfg.DebounceDelay, aggregate),
		queue:     newFileQueue(),
		inflight:  make(map[string]struct{}),
	}
}

// Run starts the watcher, the queue consumer and the debounce waiter, and
// blocks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create directory watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(p.cfg.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", p.cfg.Dir, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.consume(ctx)
	}()
	go func() {
		defer wg.Done()
		p.debounce.Start(ctx)
	}()

	// Pick up files already present at startup.
	p.scanExisting()

	logger.Info("File-drop ingest started",
		zap.String("dir", p.cfg.Dir),
		zap.String("extension", p.cfg.Extension))

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				wg.Wait()
				return nil
			}
			// The watcher callback must not block; it only enqueues.
			if evt.Op.Has(fsnotify.Create) || evt.Op.Has(fsnotify.Rename) {
				p.maybeEnqueue(evt.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				wg.Wait()
				return nil
			}
			logger.Warn("Directory watcher error", zap.Error(err))
		}
	}
}

func (p *Pipeline) scanExisting() {
	entries, err := os.ReadDir(p.cfg.Dir)
	if err != nil {
		logger.Warn("Failed to scan drop directory", zap.String("dir", p.cfg.Dir), zap.Error(err))
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			p.maybeEnqueue(filepath.Join(p.cfg.Dir, entry.Name()))
		}
	}
}

func (p *Pipeline) maybeEnqueue(path string) {
	if !strings.EqualFold(filepath.Ext(path), p.cfg.Extension) {
		return
	}
	p.queue.push(path)
}

// consume drains the queue serially until ctx is cancelled.
func (p *Pipeline) consume(ctx context.Context) {
	for {
		path, ok := p.queue.pop(ctx)
		if !ok {
			return
		}
		p.processFile(ctx, path)
	}
}

// processFile runs the per-file protocol. Any failure is absorbed: an error
// sentinel row is written so the file is never retried, and the file stays
// on disk for inspection.
func (p *Pipeline) processFile(ctx context.Context, path string) {
	name := filepath.Base(path)

	if !p.claimInflight(name) {
		// The queue delivered the same path twice.
		return
	}
	defer p.releaseInflight(name)

	loaded, err := p.calls.HasSourceFile(name)
	if err != nil {
		logger.Error("Failed to check source file, leaving for a later event",
			zap.String("file", name), zap.Error(err))
		return
	}
	if loaded {
		logger.Debug("Skipping already-loaded file", zap.String("file", name))
		return
	}

	content, err := p.readStable(ctx, path)
	if err != nil {
		logger.Error("Failed to read dropped file",
			zap.String("file", name), zap.Error(err))
		p.writeSentinel(name, models.CallStatusLoadErrPfx+err.Error())
		return
	}

	records := parseRows(content, p.cfg.Delimiter, name)
	if len(records) == 0 {
		logger.Info("Dropped file yielded no valid rows", zap.String("file", name))
		p.writeSentinel(name, models.CallStatusEmptyFile)
		return
	}

	if err := p.calls.BulkInsert(records); err != nil {
		logger.Error("Bulk insert failed",
			zap.String("file", name),
			zap.Int("rows", len(records)),
			zap.Error(err))
		p.writeSentinel(name, models.CallStatusLoadErrPfx+err.Error())
		return
	}

	p.emitLoaded(name, len(records))
	p.debounce.Trigger()

	logger.Info("Loaded call-log file",
		zap.String("file", name),
		zap.Int("rows", len(records)))
}

// emitLoaded re-queries the store for the freshly assigned ids and fans the
// load out: per-row events for small batches, one payload-less bulk event
// for large ones.
func (p *Pipeline) emitLoaded(name string, expected int) {
	if p.publisher == nil {
		return
	}

	if expected > p.cfg.SmallBatchMax {
		p.publisher.Publish(events.EventCallRecordsBulk, nil)
		return
	}

	windowStart := time.Now().UTC().Add(-p.cfg.RequeryWindow)
	inserted, err := p.calls.ListBySourceFile(name, &windowStart)
	if err == nil && len(inserted) < expected {
		// Clock skew or a concurrent load narrowed the window; fall back to
		// matching by source file alone.
		inserted, err = p.calls.ListBySourceFile(name, nil)
	}
	if err != nil {
		logger.Warn("Failed to re-query inserted rows for events",
			zap.String("file", name), zap.Error(err))
		p.publisher.Publish(events.EventCallRecordsBulk, nil)
		return
	}

	batch := make([]events.Event, 0, len(inserted))
	for _, rec := range inserted {
		batch = append(batch, events.NewEvent(events.EventCallRecordAdded, rec))
	}
	p.publisher.PublishBatch(batch)
}

func (p *Pipeline) writeSentinel(name, statusText string) {
	if err := p.calls.InsertSentinel(name, statusText); err != nil {
		logger.Error("Failed to write sentinel row",
			zap.String("file", name), zap.Error(err))
	}
}

// readStable reads path once its size stops changing across the probe
// delay. The writer may still be producing the file; after the retry budget
// the file is given up on and left untouched.
func (p *Pipeline) readStable(ctx context.Context, path string) (string, error) {
	var lastSize int64 = -1

	for attempt := 0; attempt < p.cfg.StabilityRetries; attempt++ {
		info, err := os.Stat(path)
		if err != nil {
			return "", err
		}

		if info.Size() == lastSize {
			content, err := os.ReadFile(path)
			if err != nil {
				return "", err
			}
			return string(content), nil
		}
		lastSize = info.Size()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.cfg.StabilityDelay):
		}
	}

	return "", fmt.Errorf("file %s never stabilized after %d attempts", filepath.Base(path), p.cfg.StabilityRetries)
}

func (p *Pipeline) claimInflight(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inflight[name]; ok {
		return false
	}
	p.inflight[name] = struct{}{}
	return true
}

func (p *Pipeline) releaseInflight(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, name)
}

// fileQueue is an unbounded FIFO: push never blocks, pop waits for work or
// cancellation.
type fileQueue struct {
	mu     sync.Mutex
	items  []string
	signal chan struct{}
}

func newFileQueue() *fileQueue {
	return &fileQueue{signal: make(chan struct{}, 1)}
}

func (q *fileQueue) push(item string) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *fileQueue) pop(ctx context.Context) (string, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", false
		case <-q.signal:
		}
	}
}
