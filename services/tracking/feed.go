package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
)

// TrackingFeed streams provider positions while a chamado is in service.
// Both parties consume it for the ETA display. Positions are ephemeral:
// only the latest sample is retained, briefly.
type TrackingFeed interface {
	PublishPosition(ctx context.Context, pos models.ProviderPosition) error
	LastPosition(ctx context.Context, requestID string) (*models.ProviderPosition, error)
	Stream(ctx context.Context, requestID string) (<-chan models.ProviderPosition, func())
}

const (
	lastPositionTTL = 5 * time.Minute
	channelPrefix   = "track:pos:"
	lastKeyPrefix   = "track:last:"
)

// RedisTrackingFeed is the Redis-backed feed.
type RedisTrackingFeed struct {
	Client *redis.Client
	Logger *zap.Logger
}

func (f *RedisTrackingFeed) PublishPosition(ctx context.Context, pos models.ProviderPosition) error {
	if pos.RecordedAt.IsZero() {
		pos.RecordedAt = time.Now()
	}
	payload, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}

	if err := f.Client.Set(ctx, lastKeyPrefix+pos.RequestID, payload, lastPositionTTL).Err(); err != nil {
		return fmt.Errorf("failed to store last position: %w", err)
	}
	if err := f.Client.Publish(ctx, channelPrefix+pos.RequestID, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish position: %w", err)
	}
	return nil
}

func (f *RedisTrackingFeed) LastPosition(ctx context.Context, requestID string) (*models.ProviderPosition, error) {
	data, err := f.Client.Get(ctx, lastKeyPrefix+requestID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch last position: %w", err)
	}
	var pos models.ProviderPosition
	if err := json.Unmarshal([]byte(data), &pos); err != nil {
		return nil, fmt.Errorf("failed to parse last position: %w", err)
	}
	return &pos, nil
}

// Stream subscribes to live positions for one chamado. The returned func
// closes the subscription.
func (f *RedisTrackingFeed) Stream(ctx context.Context, requestID string) (<-chan models.ProviderPosition, func()) {
	sub := f.Client.Subscribe(ctx, channelPrefix+requestID)
	out := make(chan models.ProviderPosition, 16)

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var pos models.ProviderPosition
			if err := json.Unmarshal([]byte(msg.Payload), &pos); err != nil {
				f.Logger.Warn("discarding malformed position sample", zap.Error(err))
				continue
			}
			select {
			case out <- pos:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() { _ = sub.Close() }
}
