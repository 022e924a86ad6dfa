package redis

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
)

// incrIfPresent only moves a counter that already holds a value. An absent
// counter stays absent so the next read falls back to the durable count.
var incrIfPresent = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return redis.call("INCRBY", KEYS[1], ARGV[1])
end
return false
`)

// CounterStoreRedis caches follower and following counts.
type CounterStoreRedis struct {
	Client *redis.Client
}

func NewCounterStoreRedis(client *redis.Client) *CounterStoreRedis {
	return &CounterStoreRedis{Client: client}
}

func (c *CounterStoreRedis) Get(ctx context.Context, key string) (int64, error) {
	n, err := c.Client.Get(ctx, key).Int64()
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func (c *CounterStoreRedis) Set(ctx context.Context, key string, value int64) error {
	return classify(c.Client.Set(ctx, key, value, 0).Err())
}

func (c *CounterStoreRedis) Incr(ctx context.Context, key string, delta int64) error {
	err := incrIfPresent.Run(ctx, c.Client, []string{key}, delta).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return classify(err)
}

func (c *CounterStoreRedis) Decr(ctx context.Context, key string, delta int64) error {
	return c.Incr(ctx, key, -delta)
}
