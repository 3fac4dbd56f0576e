package bus

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// changesStream is the Redis Stream carrying change notifications.
const changesStream = "chainsmoker:changes"

// RedisBus provides Redis Streams-based change notifications
type RedisBus struct {
	client *redis.Client
	logger *log.Logger
}

// NewRedisBus creates a new Redis bus instance
func NewRedisBus(redisURL string, logger *log.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger == nil {
		logger = log.New(log.Writer(), "[RedisBus] ", log.LstdFlags)
	}

	return &RedisBus{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (rb *RedisBus) Close() error {
	return rb.client.Close()
}

// PublishChange publishes a change notification to the changes stream
func (rb *RedisBus) PublishChange(ctx context.Context, msg ChangeMessage) error {
	fields := map[string]interface{}{
		"action":    msg.Action,
		"event_id":  strconv.FormatInt(msg.EventID, 10),
		"chain_id":  msg.ChainID,
		"tactic":    msg.Tactic,
		"actor":     msg.Actor,
		"timestamp": msg.Timestamp,
	}

	result := rb.client.XAdd(ctx, &redis.XAddArgs{
		Stream: changesStream,
		Values: fields,
	})

	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}

	rb.logger.Printf("Published %s for event %d to %s", msg.Action, msg.EventID, changesStream)
	return nil
}

// createConsumerGroup creates a consumer group for the changes stream if
// it doesn't exist
func (rb *RedisBus) createConsumerGroup(ctx context.Context, group string) error {
	result := rb.client.XGroupCreateMkStream(ctx, changesStream, group, "0")
	if err := result.Err(); err != nil {
		// Ignore error if the group already exists
		if err.Error() != "BUSYGROUP Consumer Group name already exists" {
			return fmt.Errorf("failed to create consumer group %s: %w", group, err)
		}
	}
	return nil
}

// ReadChangesStream reads change notifications using a consumer group,
// blocking until ctx is cancelled.
func (rb *RedisBus) ReadChangesStream(ctx context.Context, group, consumer string, handler func(ctx context.Context, msg ChangeMessage) error) error {
	if err := rb.createConsumerGroup(ctx, group); err != nil {
		return err
	}

	rb.logger.Printf("Starting changes reader (group: %s, consumer: %s)", group, consumer)

	for {
		select {
		case <-ctx.Done():
			rb.logger.Printf("Changes reader stopping due to context cancellation")
			return ctx.Err()
		default:
			result := rb.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    group,
				Consumer: consumer,
				Streams:  []string{changesStream, ">"},
				Count:    10,
				Block:    1 * time.Second,
			})

			if err := result.Err(); err != nil {
				if err == redis.Nil {
					// No messages available, continue
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				rb.logger.Printf("Error reading from stream %s: %v", changesStream, err)
				time.Sleep(5 * time.Second)
				continue
			}

			for _, stream := range result.Val() {
				for _, message := range stream.Messages {
					msg := decodeChangeMessage(message.Values)

					if err := handler(ctx, msg); err != nil {
						rb.logger.Printf("Error processing message %s: %v", message.ID, err)
						continue
					}

					if err := rb.client.XAck(ctx, stream.Stream, group, message.ID).Err(); err != nil {
						rb.logger.Printf("Error acknowledging message %s: %v", message.ID, err)
					}
				}
			}
		}
	}
}

// decodeChangeMessage converts raw stream values into a ChangeMessage
func decodeChangeMessage(values map[string]interface{}) ChangeMessage {
	str := func(key string) string {
		if v, ok := values[key].(string); ok {
			return v
		}
		return ""
	}

	msg := ChangeMessage{
		Action:  str("action"),
		ChainID: str("chain_id"),
		Tactic:  str("tactic"),
		Actor:   str("actor"),
	}
	if id, err := strconv.ParseInt(str("event_id"), 10, 64); err == nil {
		msg.EventID = id
	}
	if ts, err := strconv.ParseInt(str("timestamp"), 10, 64); err == nil {
		msg.Timestamp = ts
	}
	return msg
}

// GetStats returns basic statistics about the bus
func (rb *RedisBus) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	length, err := rb.client.XLen(ctx, changesStream).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get stream length: %w", err)
	}
	stats["changes_stream_length"] = length

	return stats, nil
}

// HealthCheck performs a health check on the bus connection
func (rb *RedisBus) HealthCheck(ctx context.Context) error {
	if err := rb.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
