package bus

import (
	"context"
	"io"
	"log"
)

// ChangeMessage notifies external consumers (dashboards, exporters) that
// the event collection changed. Consumers rebuild from the store; the
// message carries identifiers, not record state.
type ChangeMessage struct {
	Action    string `json:"action"` // "event_added", "event_deleted", "annotation_added"
	EventID   int64  `json:"event_id"`
	ChainID   string `json:"chain_id,omitempty"`
	Tactic    string `json:"tactic,omitempty"`
	Actor     string `json:"actor,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Bus defines the interface for change-notification implementations
type Bus interface {
	// PublishChange publishes a change notification to the changes stream
	PublishChange(ctx context.Context, msg ChangeMessage) error

	// ReadChangesStream reads from the changes stream with a consumer group
	ReadChangesStream(ctx context.Context, group, consumer string, handler func(ctx context.Context, msg ChangeMessage) error) error

	// GetStats returns basic statistics about the bus
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// HealthCheck performs a health check on the bus connection
	HealthCheck(ctx context.Context) error

	// Close closes the bus connection
	Close() error
}

// NewBus creates a new bus instance based on the Redis URL.
// If redisURL is empty or the connection fails, returns a NullBus so the
// core keeps working without Redis.
func NewBus(redisURL string, logger *log.Logger) Bus {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	if redisURL == "" {
		return NewNullBus(logger)
	}

	rb, err := NewRedisBus(redisURL, logger)
	if err != nil {
		logger.Printf("Redis unavailable (%v), falling back to null bus", err)
		return NewNullBus(logger)
	}
	return rb
}
