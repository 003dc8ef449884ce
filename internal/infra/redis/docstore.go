package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"festival-mileage/internal/docstore"
	"github.com/redis/go-redis/v9"
)

// DocStore keeps each document in a Redis hash:
//
//	HSET doc:{path} _ 1 {field} {json value} ...
//	SADD col:{collection} {id}
//
// Transactions use WATCH/MULTI/EXEC on every key read, increments use
// HINCRBYFLOAT and every write publishes on doc:{path} and col:{collection}
// channels to drive subscriptions.
type DocStore struct {
	client *redis.Client
	prefix string
}

const existsField = "_"

func NewDocStore(client *redis.Client, prefix string) *DocStore {
	return &DocStore{client: client, prefix: prefix}
}

type opKind int

const (
	opSet opKind = iota
	opMerge
	opCreate
	opDelete
)

type op struct {
	kind opKind
	path string
	data docstore.Data
}

func (s *DocStore) Get(ctx context.Context, path string) (docstore.Snapshot, error) {
	if _, _, err := docstore.Split(path); err != nil {
		return docstore.Snapshot{}, err
	}
	fields, err := s.client.HGetAll(ctx, s.docKey(path)).Result()
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("get %s: %w", path, err)
	}
	return decodeSnapshot(path, fields)
}

func (s *DocStore) Set(ctx context.Context, path string, data docstore.Data) error {
	return s.write(ctx, op{kind: opSet, path: path, data: data})
}

func (s *DocStore) Merge(ctx context.Context, path string, data docstore.Data) error {
	return s.write(ctx, op{kind: opMerge, path: path, data: data})
}

func (s *DocStore) Delete(ctx context.Context, path string) error {
	return s.write(ctx, op{kind: opDelete, path: path})
}

func (s *DocStore) Create(ctx context.Context, path string, data docstore.Data) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Create(path, data)
	})
}

func (s *DocStore) List(ctx context.Context, collection string) ([]docstore.Snapshot, error) {
	return s.Query(ctx, collection)
}

// Query scans the collection index and filters in process.
func (s *DocStore) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Snapshot, error) {
	ids, err := s.client.SMembers(ctx, s.colKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	sort.Strings(ids)

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.docKey(docstore.Join(collection, id)))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, err)
		}
	}

	out := make([]docstore.Snapshot, 0, len(ids))
	for i, id := range ids {
		snap, err := decodeSnapshot(docstore.Join(collection, id), cmds[i].Val())
		if err != nil {
			return nil, err
		}
		if snap.Exists && docstore.Matches(snap.Data, filters) {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *DocStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	for attempt := 0; attempt < docstore.MaxAttempts; attempt++ {
		now := s.serverTime(ctx)
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			tx := &redisTx{ctx: ctx, rtx: rtx, store: s}
			if err := fn(ctx, tx); err != nil {
				return err
			}
			if len(tx.ops) == 0 {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, o := range tx.ops {
					if err := s.queue(ctx, pipe, o, now); err != nil {
						return err
					}
				}
				return nil
			})
			return err
		})
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return docstore.ErrConflict
}

func (s *DocStore) Watch(ctx context.Context, path string) (<-chan docstore.Snapshot, func(), error) {
	if _, _, err := docstore.Split(path); err != nil {
		return nil, nil, err
	}
	return subscribe(ctx, s, s.docChannel(path), func(ctx context.Context) (docstore.Snapshot, error) {
		return s.Get(ctx, path)
	})
}

func (s *DocStore) WatchCollection(ctx context.Context, collection string) (<-chan []docstore.Snapshot, func(), error) {
	return subscribe(ctx, s, s.colChannel(collection), func(ctx context.Context) ([]docstore.Snapshot, error) {
		return s.List(ctx, collection)
	})
}

// subscribe re-reads with load on every change notification.
func subscribe[T any](ctx context.Context, s *DocStore, channel string, load func(context.Context) (T, error)) (<-chan T, func(), error) {
	sub := s.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	initial, err := load(ctx)
	if err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	ch := make(chan T, 8)
	ch <- initial
	watchCtx, stop := context.WithCancel(ctx)
	go func() {
		defer close(ch)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				v, err := load(watchCtx)
				if err != nil {
					continue
				}
				sendLatest(ch, v)
			}
		}
	}()
	var once sync.Once
	return ch, func() { once.Do(stop) }, nil
}

func (s *DocStore) write(ctx context.Context, o op) error {
	if _, _, err := docstore.Split(o.path); err != nil {
		return err
	}
	now := s.serverTime(ctx)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return s.queue(ctx, pipe, o, now)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", o.path, err)
	}
	return nil
}

// queue appends the commands for o to a MULTI block.
func (s *DocStore) queue(ctx context.Context, pipe redis.Pipeliner, o op, now time.Time) error {
	collection, id, err := docstore.Split(o.path)
	if err != nil {
		return err
	}
	key := s.docKey(o.path)

	switch o.kind {
	case opDelete:
		pipe.Del(ctx, key)
		pipe.SRem(ctx, s.colKey(collection), id)
	default:
		replace := o.kind != opMerge
		if replace {
			pipe.Del(ctx, key)
		}
		fields := []interface{}{existsField, "1"}
		increments := make(map[string]float64)
		for field, value := range o.data {
			switch v := value.(type) {
			case docstore.Increment:
				if replace {
					value = v.By
				} else {
					increments[field] = v.By
					continue
				}
			case docstore.ServerTime:
				value = now
			}
			encoded, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("encode %s.%s: %w", o.path, field, err)
			}
			fields = append(fields, field, string(encoded))
		}
		pipe.HSet(ctx, key, fields...)
		for field, by := range increments {
			pipe.HIncrByFloat(ctx, key, field, by)
		}
		pipe.SAdd(ctx, s.colKey(collection), id)
	}
	pipe.Publish(ctx, s.docChannel(o.path), o.path)
	pipe.Publish(ctx, s.colChannel(collection), o.path)
	return nil
}

func (s *DocStore) serverTime(ctx context.Context) time.Time {
	t, err := s.client.Time(ctx).Result()
	if err != nil || t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func (s *DocStore) docKey(path string) string       { return s.prefix + "doc:" + path }
func (s *DocStore) colKey(collection string) string { return s.prefix + "col:" + collection }
func (s *DocStore) docChannel(path string) string   { return s.prefix + "docstore:doc:" + path }
func (s *DocStore) colChannel(coll string) string   { return s.prefix + "docstore:col:" + coll }

type redisTx struct {
	ctx   context.Context
	rtx   *redis.Tx
	store *DocStore
	ops   []op

	// absent holds keys this attempt read while they did not exist.
	absent map[string]bool
}

func (t *redisTx) Get(path string) (docstore.Snapshot, error) {
	if len(t.ops) > 0 {
		return docstore.Snapshot{}, docstore.ErrReadAfterWrite
	}
	if _, _, err := docstore.Split(path); err != nil {
		return docstore.Snapshot{}, err
	}
	key := t.store.docKey(path)
	if err := t.rtx.Watch(t.ctx, key).Err(); err != nil {
		return docstore.Snapshot{}, err
	}
	fields, err := t.rtx.HGetAll(t.ctx, key).Result()
	if err != nil {
		return docstore.Snapshot{}, err
	}
	if len(fields) == 0 {
		if t.absent == nil {
			t.absent = make(map[string]bool)
		}
		t.absent[key] = true
	}
	return decodeSnapshot(path, fields)
}

func (t *redisTx) Set(path string, data docstore.Data) error {
	return t.buffer(op{kind: opSet, path: path, data: data})
}

func (t *redisTx) Merge(path string, data docstore.Data) error {
	return t.buffer(op{kind: opMerge, path: path, data: data})
}

// Create watches the key and checks it is absent, so a racing creator aborts
// EXEC. A key that appeared after this attempt read it as absent fails the
// attempt with TxFailedErr; the retry then reads the document that won.
func (t *redisTx) Create(path string, data docstore.Data) error {
	if _, _, err := docstore.Split(path); err != nil {
		return err
	}
	key := t.store.docKey(path)
	if err := t.rtx.Watch(t.ctx, key).Err(); err != nil {
		return err
	}
	n, err := t.rtx.Exists(t.ctx, key).Result()
	if err != nil {
		return err
	}
	if n > 0 {
		if t.absent[key] {
			return redis.TxFailedErr
		}
		return docstore.ErrAlreadyExists
	}
	return t.buffer(op{kind: opCreate, path: path, data: data})
}

func (t *redisTx) Delete(path string) error {
	return t.buffer(op{kind: opDelete, path: path})
}

func (t *redisTx) buffer(o op) error {
	if _, _, err := docstore.Split(o.path); err != nil {
		return err
	}
	t.ops = append(t.ops, o)
	return nil
}

func decodeSnapshot(path string, fields map[string]string) (docstore.Snapshot, error) {
	_, id, err := docstore.Split(path)
	if err != nil {
		return docstore.Snapshot{}, err
	}
	if len(fields) == 0 {
		return docstore.Snapshot{Path: path, ID: id}, nil
	}
	data := make(docstore.Data, len(fields))
	for field, raw := range fields {
		if field == existsField {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return docstore.Snapshot{}, fmt.Errorf("decode %s.%s: %w", path, field, err)
		}
		data[field] = v
	}
	return docstore.Snapshot{Path: path, ID: id, Exists: true, Data: data}, nil
}

func sendLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
