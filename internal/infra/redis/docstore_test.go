package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"festival-mileage/internal/docstore"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestDocStoreRoundTrip(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	err := store.Set(ctx, "booths/b1", docstore.Data{
		"boothIdx":   3,
		"name":       "Robotics",
		"visitCount": 0,
		"quiz": map[string]any{
			"question":      "2+2?",
			"options":       []string{"3", "4"},
			"correctAnswer": 1,
		},
	})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Merge(ctx, "booths/b1", docstore.Data{"visitCount": docstore.Inc(1)}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := store.Merge(ctx, "booths/b1", docstore.Data{"visitCount": docstore.Inc(1), "updatedAt": docstore.ServerTimestamp}); err != nil {
		t.Fatalf("merge 2: %v", err)
	}

	snap, err := store.Get(ctx, "booths/b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !snap.Exists {
		t.Fatalf("expected document to exist")
	}
	if n, _ := snap.Data.Int64("visitCount"); n != 2 {
		t.Fatalf("expected visitCount 2, got %v", snap.Data["visitCount"])
	}
	if snap.Data.Int("boothIdx") != 3 || snap.Data.String("name") != "Robotics" {
		t.Fatalf("unexpected data %+v", snap.Data)
	}
	quiz := snap.Data.Map("quiz")
	if quiz.Int("correctAnswer") != 1 || len(quiz.Strings("options")) != 2 {
		t.Fatalf("unexpected nested quiz %+v", quiz)
	}
	if snap.Data.Time("updatedAt").IsZero() {
		t.Fatalf("expected server timestamp to decode, got %v", snap.Data["updatedAt"])
	}

	missing, err := store.Get(ctx, "booths/none")
	if err != nil || missing.Exists {
		t.Fatalf("expected missing document, got %+v err=%v", missing, err)
	}
}

func TestDocStoreCreateQueryDelete(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, "users/u1/boothVisits/3", docstore.Data{"boothIdx": 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, "users/u1/boothVisits/3", docstore.Data{"boothIdx": 3}); !errors.Is(err, docstore.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	_ = store.Set(ctx, "users/u1/boothVisits/4", docstore.Data{"boothIdx": 4})

	found, err := store.Query(ctx, "users/u1/boothVisits", docstore.Where("boothIdx", 4))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(found) != 1 || found[0].ID != "4" {
		t.Fatalf("expected visit 4, got %+v", found)
	}

	if err := store.Delete(ctx, "users/u1/boothVisits/3"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	all, _ := store.List(ctx, "users/u1/boothVisits")
	if len(all) != 1 {
		t.Fatalf("expected one visit left, got %d", len(all))
	}
}

func TestDocStoreCreateAfterLostRaceRetries(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	attempts := 0
	sawExisting := false
	err := store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		attempts++
		snap, err := tx.Get("users/u1/boothVisits/3")
		if err != nil {
			return err
		}
		if snap.Exists {
			sawExisting = true
			return nil
		}
		if attempts == 1 {
			// Another writer lands the marker between the read and the create.
			if err := store.Set(ctx, "users/u1/boothVisits/3", docstore.Data{"boothIdx": 3}); err != nil {
				return err
			}
		}
		return tx.Create("users/u1/boothVisits/3", docstore.Data{"boothIdx": 3})
	})
	if err != nil {
		t.Fatalf("expected the retry to succeed, got %v", err)
	}
	if attempts != 2 || !sawExisting {
		t.Fatalf("expected a second attempt that sees the marker, attempts=%d saw=%v", attempts, sawExisting)
	}
}

func TestDocStoreTransactionsSerializeCounters(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	_ = store.Set(ctx, "counters/c", docstore.Data{"n": 0})

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	committed := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
				snap, err := tx.Get("counters/c")
				if err != nil {
					return err
				}
				n, _ := snap.Data.Int64("n")
				return tx.Set("counters/c", docstore.Data{"n": n + 1})
			})
			if err == nil {
				mu.Lock()
				committed++
				mu.Unlock()
			} else if !errors.Is(err, docstore.ErrConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	snap, _ := store.Get(ctx, "counters/c")
	if n, _ := snap.Data.Int64("n"); int(n) != committed {
		t.Fatalf("expected counter %d, got %d", committed, n)
	}
}

func TestDocStoreWatchPublishesChanges(t *testing.T) {
	store, _ := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, stop, err := store.Watch(ctx, "liveVote/current")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer stop()
	if first := <-updates; first.Exists {
		t.Fatalf("expected empty initial snapshot")
	}

	_ = store.Set(ctx, "liveVote/current", docstore.Data{"active": true, "round": 1})
	select {
	case snap := <-updates:
		if !snap.Data.Bool("active") || snap.Data.Int("round") != 1 {
			t.Fatalf("unexpected update %+v", snap.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for update")
	}
}

func newStore(t *testing.T) (*DocStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return NewDocStore(newClient(mr), "test:"), mr
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
