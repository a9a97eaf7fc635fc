package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"ridedispatch/internal/logger"
)

// RedisBroker fans frames out over Redis Pub/Sub, one channel per scenario.
// Payloads carry the frame sequence so subscribers can keep order.
type RedisBroker struct {
	rdb *redis.Client
	log logger.Logger

	mu   sync.Mutex
	subs map[*Subscriber]*redis.PubSub
}

type redisFrame struct {
	Seq  uint64          `json:"seq"`
	Data json.RawMessage `json:"data"`
}

func NewRedisBroker(url string, log logger.Logger) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisBrokerFromClient(redis.NewClient(opt), log), nil
}

func NewRedisBrokerFromClient(rdb *redis.Client, log logger.Logger) *RedisBroker {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &RedisBroker{rdb: rdb, log: log, subs: map[*Subscriber]*redis.PubSub{}}
}

// Ping checks the Redis connection.
func (b *RedisBroker) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *RedisBroker) Close() error { return b.rdb.Close() }

func (b *RedisBroker) Subscribe(ctx context.Context, scenarioID string, sub *Subscriber) error {
	ps := b.rdb.Subscribe(ctx, b.chanName(scenarioID))
	// wait for the subscription to be confirmed so no later frame is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("redis subscribe %s: %w", scenarioID, err)
	}
	b.mu.Lock()
	b.subs[sub] = ps
	b.mu.Unlock()

	go func() {
		for msg := range ps.Channel() {
			var f redisFrame
			if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
				b.log.Warnf("redis frame for %s: %v", scenarioID, err)
				continue
			}
			if !sub.Offer(Frame{Seq: f.Seq, Data: f.Data}) {
				dropSlow(sub)
				b.Unsubscribe(scenarioID, sub)
				return
			}
		}
	}()
	return nil
}

func (b *RedisBroker) Unsubscribe(_ string, sub *Subscriber) {
	b.mu.Lock()
	ps := b.subs[sub]
	delete(b.subs, sub)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(ctx context.Context, scenarioID string, f Frame) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	data, err := json.Marshal(redisFrame{Seq: f.Seq, Data: f.Data})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.chanName(scenarioID), data).Err()
}

func (b *RedisBroker) chanName(scenarioID string) string { return "scenario:" + scenarioID }
