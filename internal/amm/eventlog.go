package amm

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ammengine/internal/model"
	"ammengine/internal/storage"
)

const (
	defaultFlushBatch = 500
	defaultRetention  = 10_000
)

// PoolEventLogger is the append-only event log. Events are never modified
// once recorded; Flush ships the unflushed tail to a sink. With a sink, only
// the newest retained events stay in memory after a flush.
type PoolEventLogger struct {
	mu      sync.RWMutex
	events  []model.PoolEvent
	flushed int
	trimmed int

	flushMu  sync.Mutex
	sink     storage.EventSink
	retry    storage.RetryPolicy
	maxBatch int
	retain   int
	metrics  *Metrics
	now      Clock
	logger   *zap.Logger
}

// NewPoolEventLogger builds a logger. sink may be nil for a purely in-memory log.
func NewPoolEventLogger(sink storage.EventSink, metrics *Metrics, now Clock, logger *zap.Logger) *PoolEventLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &PoolEventLogger{
		sink:     sink,
		maxBatch: defaultFlushBatch,
		retain:   defaultRetention,
		metrics:  metrics,
		now:      orSystemClock(now),
		logger:   logger,
	}
	l.retry = storage.RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		OnRetry: func(attempt int, err error) {
			l.logger.Warn("event flush retry", zap.Int("attempt", attempt), zap.Error(err))
		},
	}
	return l
}

// SetRetention bounds how many flushed events stay in memory. Non-positive
// values are ignored.
func (l *PoolEventLogger) SetRetention(n int) {
	if n <= 0 {
		return
	}
	l.flushMu.Lock()
	l.retain = n
	l.flushMu.Unlock()
}

// Record stamps the event with an ID (and a timestamp when missing) and appends it.
func (l *PoolEventLogger) Record(event model.PoolEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

// Events returns in-memory events for poolID in recording order; an empty
// poolID returns everything. Use History to include trimmed events.
func (l *PoolEventLogger) Events(poolID string) []model.PoolEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.PoolEvent, 0, len(l.events))
	for _, ev := range l.events {
		if poolID == "" || ev.PoolID == poolID {
			out = append(out, ev)
		}
	}
	return out
}

// History returns every event for poolID, reading events already trimmed
// from memory back from the sink.
func (l *PoolEventLogger) History(ctx context.Context, poolID string) ([]model.PoolEvent, error) {
	l.mu.RLock()
	trimmed := l.trimmed
	l.mu.RUnlock()
	reader, ok := l.sink.(storage.EventReader)
	if trimmed == 0 || !ok {
		return l.Events(poolID), nil
	}

	recent := l.Events(poolID)
	stored, err := reader.ReadPoolEvents(ctx, poolID)
	if err != nil {
		return nil, err
	}
	held := make(map[string]struct{}, len(recent))
	for _, ev := range recent {
		held[ev.ID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(stored))
	out := make([]model.PoolEvent, 0, len(stored)+len(recent))
	for _, ev := range stored {
		// the in-memory tail starts here
		if _, ok := held[ev.ID]; ok {
			break
		}
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		seen[ev.ID] = struct{}{}
		out = append(out, ev)
	}
	return append(out, recent...), nil
}

// Len is the number of events held in memory.
func (l *PoolEventLogger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Pending is the number of events not yet accepted by the sink.
func (l *PoolEventLogger) Pending() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events) - l.flushed
}

// Flush writes the unflushed tail to the sink in batches of at most
// maxBatch events. Progress is kept per batch; on failure the rest stays
// pending and is retried by the next flush.
func (l *PoolEventLogger) Flush(ctx context.Context) error {
	if l.sink == nil {
		return nil
	}
	l.flushMu.Lock()
	defer l.flushMu.Unlock()
	defer l.trim()

	l.mu.RLock()
	start := l.flushed
	pending := make([]model.PoolEvent, len(l.events)-start)
	copy(pending, l.events[start:])
	l.mu.RUnlock()
	if len(pending) == 0 {
		return nil
	}

	spans, err := storage.SplitBatches(len(pending), l.maxBatch)
	if err != nil {
		return err
	}
	for _, span := range spans {
		batch := pending[span.From:span.To]
		err := l.retry.Do(ctx, func(ctx context.Context) error {
			return l.sink.PutEventBatch(ctx, batch)
		})
		if err != nil {
			return err
		}

		l.mu.Lock()
		l.flushed = start + span.To
		l.mu.Unlock()
		if l.metrics != nil {
			l.metrics.EventsFlushed.Add(float64(span.Len()))
		}
	}
	l.logger.Debug("events flushed", zap.Int("count", len(pending)), zap.Int("batches", len(spans)))
	return nil
}

// trim drops the oldest flushed events beyond the retention bound. Unflushed
// events are never dropped. Callers hold flushMu.
func (l *PoolEventLogger) trim() {
	l.mu.Lock()
	defer l.mu.Unlock()
	excess := len(l.events) - l.retain
	if excess > l.flushed {
		excess = l.flushed
	}
	if excess <= 0 {
		return
	}
	kept := make([]model.PoolEvent, len(l.events)-excess)
	copy(kept, l.events[excess:])
	l.events = kept
	l.flushed -= excess
	l.trimmed += excess
}

// Run flushes every interval until ctx is done, then makes a final flush.
func (l *PoolEventLogger) Run(ctx context.Context, interval time.Duration) {
	if l.sink == nil {
		<-ctx.Done()
		return
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := l.Flush(final); err != nil {
				l.logger.Error("final event flush failed", zap.Error(err), zap.Int("pending", l.Pending()))
			}
			cancel()
			return
		case <-ticker.C:
			if err := l.Flush(ctx); err != nil && ctx.Err() == nil {
				l.logger.Warn("event flush failed", zap.Error(err), zap.Int("pending", l.Pending()))
			}
		}
	}
}
