package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/samirrijal/manifestmap/internal/core/ports"
	"github.com/samirrijal/manifestmap/internal/pkg/metrics"
	"github.com/samirrijal/manifestmap/internal/pkg/telemetry"
)

// PositionRelay tails the tracking server's positions and publishes every
// new one to the broker, where API replicas pick them up.
type PositionRelay struct {
	feed      ports.PositionFeed
	publisher ports.EventPublisher
	batch     int
	log       *slog.Logger

	cursor atomic.Int64
}

// NewPositionRelay creates a relay publishing at most batch positions per
// poll.
func NewPositionRelay(feed ports.PositionFeed, publisher ports.EventPublisher, batch int, logger *slog.Logger) *PositionRelay {
	if batch <= 0 {
		batch = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PositionRelay{
		feed:      feed,
		publisher: publisher,
		batch:     batch,
		log:       logger.With("component", "position_relay"),
	}
}

// Cursor is the id of the last position published.
func (r *PositionRelay) Cursor() int64 { return r.cursor.Load() }

// Start positions the cursor at the newest stored position, so only
// positions recorded from now on are relayed.
func (r *PositionRelay) Start(ctx context.Context) error {
	id, err := r.feed.LatestPositionID(ctx)
	if err != nil {
		return fmt.Errorf("latest position: %w", err)
	}
	r.cursor.Store(id)
	return nil
}

// Poll publishes the positions recorded since the cursor, oldest first.
// The cursor stops at the first position that fails to publish, which is
// retried on the next poll.
func (r *PositionRelay) Poll(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanPositionPoll, "after", strconv.FormatInt(r.Cursor(), 10))
	defer span.End()

	positions, err := r.feed.PositionsAfter(ctx, r.Cursor(), r.batch)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	published := 0
	for i := range positions {
		pos := &positions[i]
		if err := r.publisher.PublishPosition(ctx, pos); err != nil {
			span.RecordError(err)
			return published, fmt.Errorf("publish position %d: %w", pos.ID, err)
		}
		r.cursor.Store(pos.ID)
		published++
		metrics.PositionsRelayed.Inc()
	}
	return published, nil
}

// Run polls every interval until ctx ends. A full batch is followed by an
// immediate poll to catch up.
func (r *PositionRelay) Run(ctx context.Context, interval time.Duration) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		n, err := r.Poll(ctx)
		if err != nil {
			r.log.Warn("poll positions", "cursor", r.Cursor(), "error", err)
		} else if n > 0 {
			r.log.Debug("positions relayed", "count", n, "cursor", r.Cursor())
		}

		next := interval
		if err == nil && n == r.batch {
			next = 0
		}
		timer.Reset(next)
	}
}
