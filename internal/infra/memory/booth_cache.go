package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"festival-mileage/internal/domain"
	"golang.org/x/sync/singleflight"
)

// BoothLoader resolves a booth index against the backing store.
type BoothLoader interface {
	ResolveBooth(ctx context.Context, boothIdx int) (domain.Booth, error)
}

// BoothCache caches booth resolutions with a TTL so NFC bursts do not re-query
// the store. Failed resolutions are never cached, so an ambiguous index keeps
// being reported until it is fixed.
type BoothCache struct {
	loader BoothLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[int]cachedBooth
}

type cachedBooth struct {
	booth     domain.Booth
	expiresAt time.Time
}

func NewBoothCache(loader BoothLoader, ttl time.Duration) *BoothCache {
	return &BoothCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int]cachedBooth),
	}
}

func (c *BoothCache) ResolveBooth(ctx context.Context, boothIdx int) (domain.Booth, error) {
	if booth, ok := c.lookup(boothIdx); ok {
		return booth, nil
	}

	result, err, _ := c.sf.Do(strconv.Itoa(boothIdx), func() (interface{}, error) {
		if booth, ok := c.lookup(boothIdx); ok {
			return booth, nil
		}
		booth, err := c.loader.ResolveBooth(ctx, boothIdx)
		if err != nil {
			return domain.Booth{}, err
		}
		c.mu.Lock()
		c.cache[boothIdx] = cachedBooth{booth: booth, expiresAt: c.clock().Add(c.ttlWithJitter())}
		c.mu.Unlock()
		return booth, nil
	})
	if err != nil {
		return domain.Booth{}, err
	}
	return result.(domain.Booth), nil
}

// Invalidate drops every cached resolution, e.g. after a catalog import.
func (c *BoothCache) Invalidate() {
	c.mu.Lock()
	c.cache = make(map[int]cachedBooth)
	c.mu.Unlock()
}

func (c *BoothCache) lookup(boothIdx int) (domain.Booth, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[boothIdx]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.Booth{}, false
	}
	return entry.booth, true
}

func (c *BoothCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticBoothLoader resolves booths from a fixed list (useful for tests/demos).
type StaticBoothLoader struct {
	booths []domain.Booth
}

func NewStaticBoothLoader(booths []domain.Booth) *StaticBoothLoader {
	return &StaticBoothLoader{booths: booths}
}

func (l *StaticBoothLoader) ResolveBooth(_ context.Context, boothIdx int) (domain.Booth, error) {
	var found []domain.Booth
	for _, b := range l.booths {
		if b.Index == boothIdx {
			found = append(found, b)
		}
	}
	switch len(found) {
	case 0:
		return domain.Booth{}, domain.ErrInvalidReference
	case 1:
		return found[0], nil
	default:
		return domain.Booth{}, domain.ErrAmbiguousBooth
	}
}
