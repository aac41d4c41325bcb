package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"medihub/pkg/domain"
	"medihub/pkg/requestcontext"
)

// Sink receives notifications. Implementations must be safe for concurrent
// use; callers treat Publish as fire-and-forget.
type Sink interface {
	Publish(ctx context.Context, n Notification) error
}

// Emit builds and publishes a notification, logging instead of returning on
// failure. Lifecycle operations call this after their state change commits.
func Emit(ctx context.Context, sink Sink, logger *slog.Logger, recipient domain.UserID, kind Kind, message string) {
	if sink == nil {
		return
	}
	n := Notification{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Kind:      kind,
		Message:   message,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := sink.Publish(ctx, n); err != nil && logger != nil {
		logger.WarnContext(ctx, "notification publish failed",
			"kind", string(kind),
			"recipient", recipient.String(),
			"error", err,
		)
	}
}

// LogSink writes notifications to the structured log. Used when no Kafka
// brokers are configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, n Notification) error {
	s.logger.InfoContext(ctx, "notification",
		"id", n.ID,
		"recipient", n.Recipient.String(),
		"kind", string(n.Kind),
		"message", n.Message,
	)
	return nil
}

// MemorySink collects notifications in memory for tests and local use.
type MemorySink struct {
	mu            sync.Mutex
	notifications []Notification
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Publish(ctx context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

// All returns a copy of everything published so far.
func (s *MemorySink) All() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

// ForRecipient returns published notifications addressed to the given user.
func (s *MemorySink) ForRecipient(recipient domain.UserID) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Notification
	for _, n := range s.notifications {
		if n.Recipient == recipient {
			out = append(out, n)
		}
	}
	return out
}
