package docstore

import (
	"context"
	"errors"
	"sync"
)

// ErrConnClosed is returned when arming a mutation on a closed connection.
var ErrConnClosed = errors.New("connection closed")

// Conn is one live client connection. Mutations armed with OnDisconnect are
// merged into the store when the connection closes, whether the client said
// goodbye or the socket simply dropped.
type Conn struct {
	store Store

	mu     sync.Mutex
	armed  map[string]Data
	order  []string
	closed bool
}

// NewConn opens a connection scope on store.
func NewConn(store Store) *Conn {
	return &Conn{store: store, armed: make(map[string]Data)}
}

// OnDisconnect arms a merge of data into path. Arming the same path again replaces it.
func (c *Conn) OnDisconnect(_ context.Context, path string, data Data) error {
	if _, _, err := Split(path); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if _, ok := c.armed[path]; !ok {
		c.order = append(c.order, path)
	}
	c.armed[path] = data.Clone()
	return nil
}

// Cancel disarms the mutation for path.
func (c *Conn) Cancel(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.armed[path]; !ok {
		return
	}
	delete(c.armed, path)
	for i, p := range c.order {
		if p == path {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Close fires every armed mutation once. Later calls are no-ops.
func (c *Conn) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	order := c.order
	armed := c.armed
	c.order = nil
	c.armed = map[string]Data{}
	c.mu.Unlock()

	var errs []error
	for _, path := range order {
		if err := c.store.Merge(ctx, path, armed[path]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
