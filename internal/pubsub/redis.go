package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ZJUSCT/CSArena/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher forwards events to a Redis channel so that every instance
// running a RedisRelay delivers them to its local subscribers. All contests
// share one channel, which keeps per-contest ordering intact.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		zap.S().Errorf("failed to marshal event %s for contest %s: %v", ev.Type, ev.ContestID, err)
		return
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		metrics.EventsDropped.Inc()
		zap.S().Errorf("failed to publish event %s for contest %s to redis: %v", ev.Type, ev.ContestID, err)
	}
}

// RedisRelay feeds events received on the Redis channel into a local publisher.
type RedisRelay struct {
	client  *redis.Client
	channel string
	local   Publisher
}

func NewRedisRelay(client *redis.Client, channel string, local Publisher) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, local: local}
}

// Run blocks until ctx is cancelled or the subscription fails to start.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed so startup errors surface.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to redis channel %s: %w", r.channel, err)
	}
	zap.S().Infof("relaying events from redis channel %s", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := DecodeEvent([]byte(msg.Payload))
			if err != nil {
				zap.S().Warnf("dropping malformed event from redis: %v", err)
				continue
			}
			r.local.Publish(ctx, ev)
		}
	}
}

// DecodeEvent parses an event received from another instance. The sequence
// number is reset because it is assigned by the local broker.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	if ev.ContestID == "" || ev.Type == "" {
		return Event{}, fmt.Errorf("event is missing type or contest")
	}
	ev.Seq = 0
	return ev, nil
}
