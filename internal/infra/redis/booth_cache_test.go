package redis

import (
	"context"
	"testing"
	"time"

	"festival-mileage/internal/domain"
	"festival-mileage/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
)

func TestBoothCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	loader := &countingLoader{
		BoothLoader: memory.NewStaticBoothLoader([]domain.Booth{
			{DocID: "b3", Index: 3, Name: "Robotics", Quiz: &domain.Quiz{Question: "2+2?", Options: []string{"3", "4"}, CorrectAnswer: 1}},
		}),
	}
	cache := NewBoothCache(client, loader, time.Minute)

	booth, err := cache.ResolveBooth(context.Background(), 3)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if booth.DocID != "b3" || booth.Quiz == nil {
		t.Fatalf("unexpected booth %+v", booth)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}

	// A second cache instance shares the entry.
	other := NewBoothCache(client, loader, time.Minute)
	booth, err = other.ResolveBooth(context.Background(), 3)
	if err != nil {
		t.Fatalf("resolve shared: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if booth.Quiz == nil || booth.Quiz.CorrectAnswer != 1 {
		t.Fatalf("quiz not restored from cache: %+v", booth.Quiz)
	}
	if ttl := mr.TTL("booth:idx:3"); ttl <= 0 {
		t.Fatalf("expected ttl on cache entry, got %v", ttl)
	}

	if err := cache.Invalidate(context.Background(), 3); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = cache.ResolveBooth(context.Background(), 3)
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls)
	}
}

type countingLoader struct {
	BoothLoader
	calls int
}

func (l *countingLoader) ResolveBooth(ctx context.Context, boothIdx int) (domain.Booth, error) {
	l.calls++
	return l.BoothLoader.ResolveBooth(ctx, boothIdx)
}
