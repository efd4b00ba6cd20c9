package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeProductSaved is published after a product was written to one
	// or more wishlists.
	EventTypeProductSaved EventType = "PRODUCT_SAVED"
	// EventTypeSharedLinkReceived is published for every inbound share.
	EventTypeSharedLinkReceived EventType = "SHARED_LINK_RECEIVED"
)

const DefaultStream = "stream:wishlist_events"

// RedisClient interface for Redis operations (for testing)
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// Emitter publishes domain events. Implementations must be safe for
// concurrent use.
type Emitter interface {
	ProductSaved(ctx context.Context, p ProductSavedPayload) error
	SharedLinkReceived(ctx context.Context, p SharedLinkPayload) error
}

type ProductSavedPayload struct {
	URL            string   `json:"url"`
	Site           string   `json:"site,omitempty"`
	Title          string   `json:"title"`
	Price          *float64 `json:"price,omitempty"`
	WishlistIDs    []int64  `json:"wishlist_ids"`
	EntryIDs       []int64  `json:"entry_ids"`
	TotalRequested int      `json:"total_requested"`
}

type SharedLinkPayload struct {
	Raw       string `json:"raw"`
	URL       string `json:"url"`
	Site      string `json:"site,omitempty"`
	IsProduct bool   `json:"is_product"`
}

// Envelope is the JSON document stored in the stream's data field.
type Envelope struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
}

// Publisher writes events to a Redis stream.
type Publisher struct {
	redis  RedisClient
	stream string
	logger *slog.Logger
	now    func() time.Time
}

// ensure Publisher implements Emitter
var _ Emitter = (*Publisher)(nil)

func NewPublisher(client RedisClient, stream string, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{
		redis:  client,
		stream: stream,
		logger: logger.With("component", "event_publisher"),
		now:    time.Now,
	}
}

func (p *Publisher) ProductSaved(ctx context.Context, payload ProductSavedPayload) error {
	return p.publish(ctx, EventTypeProductSaved, payload.URL, payload)
}

func (p *Publisher) SharedLinkReceived(ctx context.Context, payload SharedLinkPayload) error {
	return p.publish(ctx, EventTypeSharedLinkReceived, payload.URL, payload)
}

func (p *Publisher) publish(ctx context.Context, eventType EventType, aggregateID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	env := Envelope{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: p.now().UTC(),
		Source:    "wishlist-scraper",
		Payload:   data,
	}
	envJSON, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":         string(envJSON),
			"type":         string(eventType),
			"event_id":     env.ID,
			"aggregate_id": aggregateID,
			"timestamp":    fmt.Sprintf("%d", env.Timestamp.UnixNano()),
		},
	}

	streamID, err := p.redis.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.logger.Debug("event published",
		"type", eventType,
		"event_id", env.ID,
		"stream_id", streamID)
	return nil
}

func (p *Publisher) Close() error {
	return p.redis.Close()
}

// Nop discards all events. It is used when no Redis address is configured.
type Nop struct{}

func (Nop) ProductSaved(context.Context, ProductSavedPayload) error     { return nil }
func (Nop) SharedLinkReceived(context.Context, SharedLinkPayload) error { return nil }
