package events

import (
	"context"
	"sync"
	"time"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/async"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/observability"
)

const publishTimeout = 10 * time.Second

// Publisher fans events out to a sink on background goroutines. Emit returns
// immediately; delivery failures are logged and dropped. Identity state is
// committed before Emit is called, so a lost event never contradicts storage.
type Publisher struct {
	sink   Sink
	logger *observability.Logger
}

// NewPublisher creates a best-effort publisher. A nil sink produces a
// publisher whose Emit is a no-op.
func NewPublisher(sink Sink, logger *observability.Logger) *Publisher {
	return &Publisher{sink: sink, logger: logger}
}

// Emit publishes the event asynchronously
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if p == nil || p.sink == nil {
		return
	}
	// Detach from the request context so an already finished request does
	// not cancel delivery.
	async.SafeGo(context.WithoutCancel(ctx), p.logger, publishTimeout, "event publish "+event.Type, func(ctx context.Context) error {
		return p.sink.Publish(ctx, event)
	})
}

// LogSink writes events to the structured log. Default sink when no broker
// is configured.
type LogSink struct {
	Logger *observability.Logger
}

// Publish logs the event
func (s *LogSink) Publish(ctx context.Context, event Event) error {
	s.Logger.WithFields(map[string]interface{}{
		"event_id":        event.ID,
		"event_type":      event.Type,
		"user_id":         event.UserID,
		"organization_id": event.OrganizationID,
		"occurred_at":     event.OccurredAt.Format(time.RFC3339),
	}).Info("identity event")
	return nil
}

// MemorySink records events for tests
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// Publish appends the event
func (s *MemorySink) Publish(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything published so far
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
