// Package firestore adapts Cloud Firestore to docstore.Store.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	"festival-mileage/internal/docstore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DocStore maps paths to Firestore documents one-to-one.
type DocStore struct {
	client *firestore.Client
}

func NewDocStore(client *firestore.Client) *DocStore {
	return &DocStore{client: client}
}

func (s *DocStore) Get(ctx context.Context, path string) (docstore.Snapshot, error) {
	ref, err := s.doc(path)
	if err != nil {
		return docstore.Snapshot{}, err
	}
	snap, err := ref.Get(ctx)
	return fromSnapshot(path, snap, err)
}

func (s *DocStore) Set(ctx context.Context, path string, data docstore.Data) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, toFirestore(data))
	return err
}

func (s *DocStore) Merge(ctx context.Context, path string, data docstore.Data) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, toFirestore(data), firestore.MergeAll)
	return err
}

func (s *DocStore) Create(ctx context.Context, path string, data docstore.Data) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Create(ctx, toFirestore(data))
	return mapError(err)
}

func (s *DocStore) Delete(ctx context.Context, path string) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx)
	return err
}

func (s *DocStore) List(ctx context.Context, collection string) ([]docstore.Snapshot, error) {
	return s.Query(ctx, collection)
}

func (s *DocStore) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Snapshot, error) {
	q := s.client.Collection(collection).Query
	for _, f := range filters {
		q = q.Where(f.Field, "==", f.Value)
	}
	it := q.Documents(ctx)
	defer it.Stop()
	var docs []*firestore.DocumentSnapshot
	for {
		doc, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", collection, err)
		}
		docs = append(docs, doc)
	}
	return fromSnapshots(collection, docs), nil
}

func (s *DocStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &firestoreTx{store: s, tx: tx})
	}, firestore.MaxAttempts(docstore.MaxAttempts))
	if status.Code(err) == codes.Aborted {
		return fmt.Errorf("%w: %v", docstore.ErrConflict, err)
	}
	return mapError(err)
}

func (s *DocStore) Watch(ctx context.Context, path string) (<-chan docstore.Snapshot, func(), error) {
	ref, err := s.doc(path)
	if err != nil {
		return nil, nil, err
	}
	watchCtx, stop := context.WithCancel(ctx)
	it := ref.Snapshots(watchCtx)
	ch := make(chan docstore.Snapshot, 8)
	go func() {
		defer close(ch)
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				return
			}
			out, err := fromSnapshot(path, snap, nil)
			if err != nil {
				continue
			}
			sendLatest(ch, out)
		}
	}()
	var once sync.Once
	return ch, func() { once.Do(stop) }, nil
}

func (s *DocStore) WatchCollection(ctx context.Context, collection string) (<-chan []docstore.Snapshot, func(), error) {
	watchCtx, stop := context.WithCancel(ctx)
	it := s.client.Collection(collection).Snapshots(watchCtx)
	ch := make(chan []docstore.Snapshot, 8)
	go func() {
		defer close(ch)
		defer it.Stop()
		for {
			qs, err := it.Next()
			if err != nil {
				return
			}
			docs, err := qs.Documents.GetAll()
			if err != nil {
				continue
			}
			sendLatest(ch, fromSnapshots(collection, docs))
		}
	}()
	var once sync.Once
	return ch, func() { once.Do(stop) }, nil
}

func (s *DocStore) doc(path string) (*firestore.DocumentRef, error) {
	if _, _, err := docstore.Split(path); err != nil {
		return nil, err
	}
	ref := s.client.Doc(path)
	if ref == nil {
		return nil, docstore.ErrInvalidPath
	}
	return ref, nil
}

type firestoreTx struct {
	store *DocStore
	tx    *firestore.Transaction
	wrote bool
}

func (t *firestoreTx) Get(path string) (docstore.Snapshot, error) {
	ref, err := t.store.doc(path)
	if err != nil {
		return docstore.Snapshot{}, err
	}
	if t.wrote {
		return docstore.Snapshot{}, docstore.ErrReadAfterWrite
	}
	snap, err := t.tx.Get(ref)
	return fromSnapshot(path, snap, err)
}

func (t *firestoreTx) Set(path string, data docstore.Data) error {
	ref, err := t.store.doc(path)
	if err != nil {
		return err
	}
	t.wrote = true
	return t.tx.Set(ref, toFirestore(data))
}

func (t *firestoreTx) Merge(path string, data docstore.Data) error {
	ref, err := t.store.doc(path)
	if err != nil {
		return err
	}
	t.wrote = true
	return t.tx.Set(ref, toFirestore(data), firestore.MergeAll)
}

// Create fails the whole commit with AlreadyExists if the document appears.
func (t *firestoreTx) Create(path string, data docstore.Data) error {
	ref, err := t.store.doc(path)
	if err != nil {
		return err
	}
	t.wrote = true
	return t.tx.Create(ref, toFirestore(data))
}

func (t *firestoreTx) Delete(path string) error {
	ref, err := t.store.doc(path)
	if err != nil {
		return err
	}
	t.wrote = true
	return t.tx.Delete(ref)
}

// toFirestore swaps store sentinels for their Firestore transforms.
func toFirestore(data docstore.Data) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		switch t := v.(type) {
		case docstore.Increment:
			out[k] = firestore.Increment(t.By)
		case docstore.ServerTime:
			out[k] = firestore.ServerTimestamp
		case docstore.Data:
			out[k] = toFirestore(t)
		default:
			out[k] = v
		}
	}
	return out
}

func fromSnapshot(path string, snap *firestore.DocumentSnapshot, err error) (docstore.Snapshot, error) {
	_, id, splitErr := docstore.Split(path)
	if splitErr != nil {
		return docstore.Snapshot{}, splitErr
	}
	if status.Code(err) == codes.NotFound {
		return docstore.Snapshot{Path: path, ID: id}, nil
	}
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("get %s: %w", path, err)
	}
	if snap == nil || !snap.Exists() {
		return docstore.Snapshot{Path: path, ID: id}, nil
	}
	return docstore.Snapshot{Path: path, ID: id, Exists: true, Data: docstore.Data(snap.Data())}, nil
}

func fromSnapshots(collection string, docs []*firestore.DocumentSnapshot) []docstore.Snapshot {
	out := make([]docstore.Snapshot, 0, len(docs))
	for _, d := range docs {
		out = append(out, docstore.Snapshot{
			Path:   docstore.Join(collection, d.Ref.ID),
			ID:     d.Ref.ID,
			Exists: true,
			Data:   docstore.Data(d.Data()),
		})
	}
	return out
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("%w: %v", docstore.ErrAlreadyExists, err)
	}
	return err
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
