// Package docstore describes the document store contract the festival services
// rely on: hierarchical paths, atomic increments, server timestamps, optimistic
// transactions, realtime subscriptions and disconnect-triggered mutations.
package docstore

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrAlreadyExists is returned by Create when the document is present.
	ErrAlreadyExists = errors.New("document already exists")
	// ErrConflict is returned when a transaction kept losing to concurrent writers.
	ErrConflict = errors.New("transaction conflict")
	// ErrReadAfterWrite is returned when a transaction reads after it has buffered writes.
	ErrReadAfterWrite = errors.New("transaction reads must precede writes")
	// ErrInvalidPath is returned for paths with an odd number of segments.
	ErrInvalidPath = errors.New("invalid document path")
)

// MaxAttempts bounds optimistic transaction retries.
const MaxAttempts = 5

// Data is the field map of a document.
type Data map[string]any

// Snapshot is a read of one document.
type Snapshot struct {
	Path   string
	ID     string
	Exists bool
	Data   Data
}

// Increment adds By to a numeric field atomically. Missing fields count as zero.
type Increment struct {
	By float64
}

// Inc returns an Increment transform.
func Inc(by float64) Increment { return Increment{By: by} }

// ServerTime is replaced by the store's clock when written.
type ServerTime struct{}

// ServerTimestamp is the server-assigned timestamp sentinel.
var ServerTimestamp = ServerTime{}

// Filter is an equality condition for Query.
type Filter struct {
	Field string
	Value any
}

// Where builds an equality filter.
func Where(field string, value any) Filter { return Filter{Field: field, Value: value} }

// Store is the document store. Merge is a shallow top-level field merge.
type Store interface {
	Get(ctx context.Context, path string) (Snapshot, error)
	Set(ctx context.Context, path string, data Data) error
	Merge(ctx context.Context, path string, data Data) error
	Create(ctx context.Context, path string, data Data) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, collection string) ([]Snapshot, error)
	Query(ctx context.Context, collection string, filters ...Filter) ([]Snapshot, error)
	// RunTransaction retries fn on conflicting writes; fn may run more than once.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Watch streams the document on every change, starting with its current state.
	Watch(ctx context.Context, path string) (<-chan Snapshot, func(), error)
	// WatchCollection streams the whole collection on every change.
	WatchCollection(ctx context.Context, collection string) (<-chan []Snapshot, func(), error)
}

// Tx is a transaction handle. All Gets must happen before any write.
type Tx interface {
	Get(path string) (Snapshot, error)
	Set(path string, data Data) error
	Merge(path string, data Data) error
	Create(path string, data Data) error
	Delete(path string) error
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Split returns the parent collection and document id of a document path.
func Split(path string) (collection, id string, err error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || len(parts)%2 != 0 {
		return "", "", ErrInvalidPath
	}
	for _, p := range parts {
		if p == "" {
			return "", "", ErrInvalidPath
		}
	}
	return strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1], nil
}

// DeleteAll removes every document of a collection in transactional chunks.
func DeleteAll(ctx context.Context, store Store, collection string) (int, error) {
	const chunk = 100
	docs, err := store.List(ctx, collection)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for start := 0; start < len(docs); start += chunk {
		end := start + chunk
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]
		err := store.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			for _, doc := range batch {
				if err := tx.Delete(doc.Path); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return deleted, err
		}
		deleted += len(batch)
	}
	return deleted, nil
}
