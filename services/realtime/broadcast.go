package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
)

// Broadcaster fans a chamado's status changes out to both parties' views.
// Delivery is at-least-once; the hub dedups by the event's UpdatedAt, so a
// change-stream replay of an event the orchestrator already published is
// dropped before reaching subscribers.
type Broadcaster interface {
	Publish(ctx context.Context, ev models.StatusEvent)
	Subscribe(requestID string) (<-chan models.StatusEvent, func())
}

// Hub is the in-process subscriber registry and the single ordered inbox
// merging the orchestrator's direct publishes with database change events.
type Hub struct {
	mu       sync.Mutex
	subs     map[string]map[int]chan models.StatusEvent
	nextID   int
	lastSeen map[string]int64 // requestID -> UnixNano of newest delivered event
	logger   *zap.Logger
}

// NewHub builds an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:     make(map[string]map[int]chan models.StatusEvent),
		lastSeen: make(map[string]int64),
		logger:   logger,
	}
}

// Publish delivers ev to local subscribers unless an event at least as new
// has already been delivered for this request.
func (h *Hub) Publish(_ context.Context, ev models.StatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ts := ev.UpdatedAt.UnixNano()
	if ts <= h.lastSeen[ev.RequestID] {
		return
	}
	h.lastSeen[ev.RequestID] = ts

	for _, ch := range h.subs[ev.RequestID] {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("dropping status event for slow subscriber",
				zap.String("requestId", ev.RequestID))
		}
	}
}

// Subscribe registers a consumer for one request's status events. The
// returned func unsubscribes and closes the channel.
func (h *Hub) Subscribe(requestID string) (<-chan models.StatusEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan models.StatusEvent, 16)
	if h.subs[requestID] == nil {
		h.subs[requestID] = make(map[int]chan models.StatusEvent)
	}
	id := h.nextID
	h.nextID++
	h.subs[requestID][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[requestID][id]; ok {
			delete(h.subs[requestID], id)
			if len(h.subs[requestID]) == 0 {
				delete(h.subs, requestID)
			}
			close(sub)
		}
	}
	return ch, cancel
}

// Forget drops the dedup watermark for a request. Called when a chamado
// reaches a terminal state.
func (h *Hub) Forget(requestID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.lastSeen, requestID)
}

const statusChannel = "chamado:status"

// RedisBroadcaster publishes status events to Redis so other instances see
// them, and feeds its local hub for in-process subscribers.
type RedisBroadcaster struct {
	client *redis.Client
	hub    *Hub
	logger *zap.Logger
}

// NewRedisBroadcaster wires a broadcaster over the given Redis client and
// starts consuming the shared status channel into the hub.
func NewRedisBroadcaster(ctx context.Context, client *redis.Client, hub *Hub, logger *zap.Logger) *RedisBroadcaster {
	b := &RedisBroadcaster{client: client, hub: hub, logger: logger}
	go b.consume(ctx)
	return b
}

func (b *RedisBroadcaster) Publish(ctx context.Context, ev models.StatusEvent) {
	b.hub.Publish(ctx, ev)

	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("failed to marshal status event", zap.Error(err))
		return
	}
	if err := b.client.Publish(ctx, statusChannel, payload).Err(); err != nil {
		b.logger.Warn("failed to publish status event to redis",
			zap.String("requestId", ev.RequestID), zap.Error(err))
	}
}

func (b *RedisBroadcaster) Subscribe(requestID string) (<-chan models.StatusEvent, func()) {
	return b.hub.Subscribe(requestID)
}

// consume relays status events published by other instances into the local
// hub. Events this instance published come back too; the hub's dedup drops
// them.
func (b *RedisBroadcaster) consume(ctx context.Context) {
	sub := b.client.Subscribe(ctx, statusChannel)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var ev models.StatusEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("discarding malformed status event", zap.Error(err))
				continue
			}
			b.hub.Publish(ctx, ev)
		}
	}
}
