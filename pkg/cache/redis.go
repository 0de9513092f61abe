package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"assessd/pkg/domain"
)

const touchKeyPrefix = "gpq:touch:"

// Entries expire on their own; an evidence idle this long re-seeds from
// the DB on its next save.
const touchTTL = 12 * time.Hour

// touchScript swaps the touched field and returns the previous value,
// as one atomic step on the server.
var touchScript = redis.NewScript(`
local prev = redis.call('HGET', KEYS[1], 'touched')
if prev == false then
  return false
end
redis.call('HSET', KEYS[1], 'touched', ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return prev
`)

// RedisTouchCache keeps evidence timing in a Redis hash per evidence id,
// shared across instances.
type RedisTouchCache struct {
	client *redis.Client
}

func NewRedisTouchCache(client *redis.Client) *RedisTouchCache {
	return &RedisTouchCache{client: client}
}

func touchKey(id string) string { return touchKeyPrefix + id }

func (c *RedisTouchCache) Get(ctx context.Context, id string) (domain.EvidenceTiming, bool, error) {
	var t domain.EvidenceTiming
	res, err := c.client.HGetAll(ctx, touchKey(id)).Result()
	if err != nil {
		return t, false, fmt.Errorf("cache get: %w", err)
	}
	if len(res) == 0 {
		return t, false, nil
	}
	fmt.Sscanf(res["initiated"], "%d", &t.Initiated)
	fmt.Sscanf(res["started"], "%d", &t.Started)
	fmt.Sscanf(res["touched"], "%d", &t.Touched)
	return t, true, nil
}

func (c *RedisTouchCache) Put(ctx context.Context, id string, t domain.EvidenceTiming) error {
	key := touchKey(id)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key,
		"initiated", t.Initiated,
		"started", t.Started,
		"touched", t.Touched,
	)
	pipe.Expire(ctx, key, touchTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

func (c *RedisTouchCache) Touch(ctx context.Context, id string, ts int64) (int64, bool, error) {
	prev, err := touchScript.Run(ctx, c.client,
		[]string{touchKey(id)}, ts, touchTTL.Milliseconds()).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("cache touch: %w", err)
	}
	return prev, true, nil
}

func (c *RedisTouchCache) Drop(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, touchKey(id)).Err(); err != nil {
		return fmt.Errorf("cache drop: %w", err)
	}
	return nil
}

var _ TouchCache = (*RedisTouchCache)(nil)
