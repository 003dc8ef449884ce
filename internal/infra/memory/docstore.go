package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"festival-mileage/internal/docstore"
)

// DocStore is an in-process implementation of docstore.Store with optimistic,
// version-checked transactions. It backs local runs and tests.
type DocStore struct {
	now func() time.Time

	mu       sync.RWMutex
	docs     map[string]docstore.Data
	versions map[string]uint64
	children map[string]map[string]struct{}
	seq      uint64
	watchers *watchers
}

func NewDocStore() *DocStore {
	return NewDocStoreWithClock(time.Now)
}

// NewDocStoreWithClock allows deterministic server timestamps in tests.
func NewDocStoreWithClock(now func() time.Time) *DocStore {
	return &DocStore{
		now:      now,
		docs:     make(map[string]docstore.Data),
		versions: make(map[string]uint64),
		children: make(map[string]map[string]struct{}),
		watchers: newWatchers(),
	}
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

func (s *DocStore) Get(_ context.Context, path string) (docstore.Snapshot, error) {
	if _, _, err := docstore.Split(path); err != nil {
		return docstore.Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(path), nil
}

func (s *DocStore) Set(_ context.Context, path string, data docstore.Data) error {
	return s.apply(op{kind: opSet, path: path, data: data})
}

func (s *DocStore) Merge(_ context.Context, path string, data docstore.Data) error {
	return s.apply(op{kind: opMerge, path: path, data: data})
}

func (s *DocStore) Create(_ context.Context, path string, data docstore.Data) error {
	return s.apply(op{kind: opCreate, path: path, data: data})
}

func (s *DocStore) Delete(_ context.Context, path string) error {
	return s.apply(op{kind: opDelete, path: path})
}

func (s *DocStore) List(_ context.Context, collection string) ([]docstore.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(collection, nil), nil
}

func (s *DocStore) Query(_ context.Context, collection string, filters ...docstore.Filter) ([]docstore.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(collection, filters), nil
}

func (s *DocStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	for attempt := 0; attempt < docstore.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &memoryTx{store: s, reads: make(map[string]uint64)}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		err := s.commit(tx)
		if errors.Is(err, docstore.ErrConflict) {
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
	s.mu.Lock()
	ch, cancel := s.watchers.watchDoc(path, s.snapshotLocked(path))
	s.mu.Unlock()
	stopOnDone(ctx, cancel)
	return ch, cancel, nil
}

func (s *DocStore) WatchCollection(ctx context.Context, collection string) (<-chan []docstore.Snapshot, func(), error) {
	s.mu.Lock()
	ch, cancel := s.watchers.watchCollection(collection, s.listLocked(collection, nil))
	s.mu.Unlock()
	stopOnDone(ctx, cancel)
	return ch, cancel, nil
}

func (s *DocStore) apply(o op) error {
	if _, _, err := docstore.Split(o.path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked([]op{o})
}

func (s *DocStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, version := range tx.reads {
		if s.versions[path] != version {
			return docstore.ErrConflict
		}
	}
	return s.commitLocked(tx.ops)
}

// commitLocked applies ops all-or-nothing and notifies watchers.
func (s *DocStore) commitLocked(ops []op) error {
	now := s.now()
	staged := make(map[string]docstore.Data, len(ops))
	var order []string
	lookup := func(path string) docstore.Data {
		if data, ok := staged[path]; ok {
			return data
		}
		return s.docs[path]
	}
	for _, o := range ops {
		current := lookup(o.path)
		var next docstore.Data
		switch o.kind {
		case opCreate:
			if current != nil {
				return docstore.ErrAlreadyExists
			}
			next = docstore.Apply(nil, o.data, true, now)
		case opSet:
			next = docstore.Apply(current, o.data, true, now)
		case opMerge:
			next = docstore.Apply(current, o.data, false, now)
		case opDelete:
			next = nil
		}
		if _, seen := staged[o.path]; !seen {
			order = append(order, o.path)
		}
		staged[o.path] = next
	}

	for _, path := range order {
		collection, id, _ := docstore.Split(path)
		s.seq++
		s.versions[path] = s.seq
		if data := staged[path]; data != nil {
			s.docs[path] = data
			if s.children[collection] == nil {
				s.children[collection] = make(map[string]struct{})
			}
			s.children[collection][id] = struct{}{}
		} else {
			delete(s.docs, path)
			delete(s.children[collection], id)
		}
	}
	for _, path := range order {
		collection, _, _ := docstore.Split(path)
		s.watchers.publishDoc(path, s.snapshotLocked(path))
		if s.watchers.hasCollection(collection) {
			s.watchers.publishCollection(collection, s.listLocked(collection, nil))
		}
	}
	return nil
}

func (s *DocStore) snapshotLocked(path string) docstore.Snapshot {
	_, id, _ := docstore.Split(path)
	data, ok := s.docs[path]
	if !ok {
		return docstore.Snapshot{Path: path, ID: id}
	}
	return docstore.Snapshot{Path: path, ID: id, Exists: true, Data: data.Clone()}
}

func (s *DocStore) listLocked(collection string, filters []docstore.Filter) []docstore.Snapshot {
	ids := make([]string, 0, len(s.children[collection]))
	for id := range s.children[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]docstore.Snapshot, 0, len(ids))
	for _, id := range ids {
		snap := s.snapshotLocked(docstore.Join(collection, id))
		if docstore.Matches(snap.Data, filters) {
			out = append(out, snap)
		}
	}
	return out
}

type memoryTx struct {
	store *DocStore
	reads map[string]uint64
	ops   []op
}

func (t *memoryTx) Get(path string) (docstore.Snapshot, error) {
	if len(t.ops) > 0 {
		return docstore.Snapshot{}, docstore.ErrReadAfterWrite
	}
	if _, _, err := docstore.Split(path); err != nil {
		return docstore.Snapshot{}, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	if _, ok := t.reads[path]; !ok {
		t.reads[path] = t.store.versions[path]
	} else if t.reads[path] != t.store.versions[path] {
		// The document moved between two reads of the same transaction.
		t.reads[path] = ^uint64(0)
	}
	return t.store.snapshotLocked(path), nil
}

func (t *memoryTx) Set(path string, data docstore.Data) error {
	return t.buffer(op{kind: opSet, path: path, data: data})
}

func (t *memoryTx) Merge(path string, data docstore.Data) error {
	return t.buffer(op{kind: opMerge, path: path, data: data})
}

func (t *memoryTx) Create(path string, data docstore.Data) error {
	return t.buffer(op{kind: opCreate, path: path, data: data})
}

func (t *memoryTx) Delete(path string) error {
	return t.buffer(op{kind: opDelete, path: path})
}

func (t *memoryTx) buffer(o op) error {
	if _, _, err := docstore.Split(o.path); err != nil {
		return err
	}
	t.ops = append(t.ops, o)
	return nil
}

func stopOnDone(ctx context.Context, cancel func()) {
	if ctx.Done() == nil {
		return
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
}
