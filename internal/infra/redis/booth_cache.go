package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"festival-mileage/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// BoothLoader resolves a booth index against the document store.
type BoothLoader interface {
	ResolveBooth(ctx context.Context, boothIdx int) (domain.Booth, error)
}

// BoothCache shares booth resolutions across instances through Redis and falls
// back to the loader on a miss. Entries are stored as:
//
//	HSET booth:idx:{boothIdx} docId {docId} data {booth json}
type BoothCache struct {
	client *redis.Client
	loader BoothLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewBoothCache(client *redis.Client, loader BoothLoader, ttl time.Duration) *BoothCache {
	return &BoothCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *BoothCache) ResolveBooth(ctx context.Context, boothIdx int) (domain.Booth, error) {
	key := c.key(boothIdx)
	if booth, ok := c.cached(ctx, key); ok {
		return booth, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if booth, ok := c.cached(ctx, key); ok {
			return booth, nil
		}
		booth, err := c.loader.ResolveBooth(ctx, boothIdx)
		if err != nil {
			return domain.Booth{}, err
		}
		raw, err := json.Marshal(booth)
		if err != nil {
			return booth, nil
		}
		ttl := c.ttlWithJitter()
		pipe := c.client.Pipeline()
		pipe.HSet(ctx, key, "docId", booth.DocID, "data", string(raw))
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, _ = pipe.Exec(ctx)
		return booth, nil
	})
	if err != nil {
		return domain.Booth{}, err
	}
	return result.(domain.Booth), nil
}

// Invalidate removes the shared entry for boothIdx.
func (c *BoothCache) Invalidate(ctx context.Context, boothIdx int) error {
	return c.client.Del(ctx, c.key(boothIdx)).Err()
}

func (c *BoothCache) cached(ctx context.Context, key string) (domain.Booth, bool) {
	fields, err := c.client.HGetAll(ctx, key).Result()
	if err != nil || fields["data"] == "" {
		return domain.Booth{}, false
	}
	var booth domain.Booth
	if err := json.Unmarshal([]byte(fields["data"]), &booth); err != nil {
		return domain.Booth{}, false
	}
	return booth, true
}

func (c *BoothCache) key(boothIdx int) string {
	return "booth:idx:" + strconv.Itoa(boothIdx)
}

func (c *BoothCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
