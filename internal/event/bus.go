package event

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

type InMemoryBus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
}

func NewBus() *InMemoryBus {
	return &InMemoryBus{
		subscribers: make(map[string]chan Event),
	}
}

func (b *InMemoryBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		// Never block the request path on a slow subscriber.
		select {
		case ch <- e:
		default:
			slog.Warn("event dropped", "type", e.Type, "event_id", e.ID)
		}
	}
}

func (b *InMemoryBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan Event, 100)
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, exists := b.subscribers[id]; exists {
			close(ch)
			delete(b.subscribers, id)
		}
	}

	return ch, unsubscribe
}

// LogAuditTrail writes every event to logger until ctx is done.
func LogAuditTrail(ctx context.Context, bus Bus, logger *slog.Logger) {
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			attrs := []any{"event_id", e.ID, "type", string(e.Type), "at", e.Timestamp}
			if e.ActorID != "" {
				attrs = append(attrs, "user_id", e.ActorID)
			}
			for k, v := range e.Payload {
				attrs = append(attrs, k, v)
			}
			level := slog.LevelInfo
			if e.Type == TypeLoginFailed || e.Type == TypeRefreshDenied {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "auth event", attrs...)
		}
	}
}

type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// RecordAuditTrail stores every event through recorder until ctx is done.
// Failures are logged and the event is skipped.
func RecordAuditTrail(ctx context.Context, bus Bus, recorder Recorder, logger *slog.Logger) {
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := recorder.Record(ctx, e); err != nil {
				logger.Error("record auth event failed", "event_id", e.ID, "type", string(e.Type), "error", err)
			}
		}
	}
}
