package docstore_test

import (
	"context"
	"errors"
	"testing"

	"festival-mileage/internal/docstore"
	"festival-mileage/internal/infra/memory"
)

func TestConnFiresArmedMutationsOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDocStore()
	conn := docstore.NewConn(store)

	if err := conn.OnDisconnect(ctx, "presence/u1", docstore.Data{"state": "offline"}); err != nil {
		t.Fatalf("arm: %v", err)
	}
	// Re-arming replaces the earlier mutation.
	if err := conn.OnDisconnect(ctx, "presence/u1", docstore.Data{"state": "offline", "name": "Kim"}); err != nil {
		t.Fatalf("re-arm: %v", err)
	}
	if err := conn.OnDisconnect(ctx, "presence/u2", docstore.Data{"state": "offline"}); err != nil {
		t.Fatalf("arm u2: %v", err)
	}
	conn.Cancel("presence/u2")
	_ = store.Set(ctx, "presence/u1", docstore.Data{"state": "online", "grade": 2})

	if err := conn.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	snap, _ := store.Get(ctx, "presence/u1")
	if snap.Data.String("state") != "offline" || snap.Data.String("name") != "Kim" {
		t.Fatalf("expected offline merge, got %+v", snap.Data)
	}
	if snap.Data.Int("grade") != 2 {
		t.Fatalf("disconnect mutation must merge, got %+v", snap.Data)
	}
	if u2, _ := store.Get(ctx, "presence/u2"); u2.Exists {
		t.Fatalf("cancelled mutation fired")
	}

	_ = store.Set(ctx, "presence/u1", docstore.Data{"state": "online"})
	if err := conn.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}
	snap, _ = store.Get(ctx, "presence/u1")
	if snap.Data.String("state") != "online" {
		t.Fatalf("second close must not fire again")
	}
	if err := conn.OnDisconnect(ctx, "presence/u1", docstore.Data{}); !errors.Is(err, docstore.ErrConnClosed) {
		t.Fatalf("expected closed connection error, got %v", err)
	}
}

func TestSplit(t *testing.T) {
	coll, id, err := docstore.Split("users/u1/boothVisits/3")
	if err != nil || coll != "users/u1/boothVisits" || id != "3" {
		t.Fatalf("unexpected split %q %q %v", coll, id, err)
	}
	for _, bad := range []string{"", "users", "users/u1/logs", "users//x"} {
		if _, _, err := docstore.Split(bad); !errors.Is(err, docstore.ErrInvalidPath) {
			t.Fatalf("%q: expected invalid path, got %v", bad, err)
		}
	}
}
