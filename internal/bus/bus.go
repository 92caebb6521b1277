// Package bus is a publish-only notification channel for record lifecycle
// events. Handlers are isolated from each other: one handler failing or
// panicking never blocks or fails the rest, and publishers never see handler
// errors.
package bus

import (
	"context"
	"log/slog"
	"sync"
)

// Topics published by the core.
const (
	TopicEntityCreated     = "entity.created"
	TopicEntityUpdated     = "entity.updated"
	TopicEntityDeleted     = "entity.deleted"
	TopicEventCreated      = "event.created"
	TopicEventUpdated      = "event.updated"
	TopicEventDeleted      = "event.deleted"
	TopicContinuityCreated = "continuity.created"
	TopicContinuityUpdated = "continuity.updated"
	TopicContinuityDeleted = "continuity.deleted"
	TopicSessionRunStarted = "session_run.started"
	TopicSessionRunEnded   = "session_run.ended"
)

// Notification describes one lifecycle event.
type Notification struct {
	Topic    string
	RecordID string
	Detail   map[string]string
}

// Handler consumes notifications. Returned errors are logged, not propagated.
type Handler func(ctx context.Context, n Notification) error

// Bus is an in-process handler registry.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for a topic.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish delivers n to every handler subscribed to its topic. Each handler
// runs under a recover guard so a panic in one cannot take down the others.
func (b *Bus) Publish(ctx context.Context, n Notification) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[n.Topic]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(ctx, h, n)
	}
}

func (b *Bus) invoke(ctx context.Context, h Handler, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("notification handler panicked",
				slog.String("topic", n.Topic),
				slog.Any("panic", r),
			)
		}
	}()

	if err := h(ctx, n); err != nil {
		b.logger.Error("notification handler failed",
			slog.String("topic", n.Topic),
			slog.String("record_id", n.RecordID),
			slog.Any("error", err),
		)
	}
}
