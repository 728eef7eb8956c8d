package ports

import (
	"context"
	"encoding/json"

	"github.com/samirrijal/manifestmap/internal/core/domain"
)

// SourceUpdate announces that a session's source received new data.
type SourceUpdate struct {
	SessionID string          `json:"session_id"`
	SourceID  string          `json:"source_id"`
	Features  int             `json:"features"`
	Data      json.RawMessage `json:"data"`
}

// EventPublisher publishes events to a message broker.
type EventPublisher interface {
	PublishPosition(ctx context.Context, pos *domain.Position) error
	PublishSourceUpdate(ctx context.Context, update *SourceUpdate) error
}

// EventSubscriber subscribes to events from a message broker.
type EventSubscriber interface {
	SubscribePositions(ctx context.Context, handler func(ctx context.Context, pos *domain.Position) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
