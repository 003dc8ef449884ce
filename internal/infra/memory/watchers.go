package memory

import (
	"sync"

	"festival-mileage/internal/docstore"
)

// watchers fans document and collection changes out to subscribers.
// Publishing never blocks: a full subscriber channel has its stale value
// replaced by the newest one.
type watchers struct {
	mu          sync.Mutex
	docs        map[string]map[chan docstore.Snapshot]struct{}
	collections map[string]map[chan []docstore.Snapshot]struct{}
}

func newWatchers() *watchers {
	return &watchers{
		docs:        make(map[string]map[chan docstore.Snapshot]struct{}),
		collections: make(map[string]map[chan []docstore.Snapshot]struct{}),
	}
}

func (w *watchers) watchDoc(path string, initial docstore.Snapshot) (<-chan docstore.Snapshot, func()) {
	ch := make(chan docstore.Snapshot, 8)
	ch <- initial

	w.mu.Lock()
	if w.docs[path] == nil {
		w.docs[path] = make(map[chan docstore.Snapshot]struct{})
	}
	w.docs[path][ch] = struct{}{}
	w.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if subs, ok := w.docs[path]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(w.docs, path)
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

func (w *watchers) watchCollection(collection string, initial []docstore.Snapshot) (<-chan []docstore.Snapshot, func()) {
	ch := make(chan []docstore.Snapshot, 8)
	ch <- initial

	w.mu.Lock()
	if w.collections[collection] == nil {
		w.collections[collection] = make(map[chan []docstore.Snapshot]struct{})
	}
	w.collections[collection][ch] = struct{}{}
	w.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if subs, ok := w.collections[collection]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(w.collections, collection)
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

func (w *watchers) hasCollection(collection string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.collections[collection]) > 0
}

func (w *watchers) publishDoc(path string, snap docstore.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.docs[path] {
		sendLatest(ch, snap)
	}
}

func (w *watchers) publishCollection(collection string, snaps []docstore.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.collections[collection] {
		sendLatest(ch, snaps)
	}
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
