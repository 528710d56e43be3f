// Package memkv provides an in-memory storage.Driver. It backs unit tests
// and single-process embeddings, and mirrors the asynchronous semantics of a
// real host store: change events are dispatched from a separate goroutine,
// never synchronously inside the write call that produced them.
package memkv

import (
	"context"
	"sync"

	"github.com/leos/wxt/errors"
	"github.com/leos/wxt/storage"
)

// Driver is an in-memory implementation of storage.Driver. One Driver holds
// one area's map. Safe for concurrent use.
type Driver struct {
	mu       sync.Mutex
	data     map[string][]byte
	handlers map[int]storage.ChangeHandler
	nextID   int
	events   chan []storage.Change
	done     chan struct{}
	closed   bool
}

// New creates an empty in-memory driver and starts its event dispatcher.
func New() *Driver {
	d := &Driver{
		data:     make(map[string][]byte),
		handlers: make(map[int]storage.ChangeHandler),
		events:   make(chan []storage.Change, 128),
		done:     make(chan struct{}),
	}
	go d.dispatch()
	return d
}

// dispatch delivers queued change events to subscribed handlers in order.
func (d *Driver) dispatch() {
	for {
		select {
		case changes := <-d.events:
			d.mu.Lock()
			handlers := make([]storage.ChangeHandler, 0, len(d.handlers))
			for _, handler := range d.handlers {
				handlers = append(handlers, handler)
			}
			d.mu.Unlock()

			for _, change := range changes {
				for _, handler := range handlers {
					handler(change)
				}
			}
		case <-d.done:
			return
		}
	}
}

// Get implements storage.Driver. Absent keys are omitted from the result.
func (d *Driver) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.ErrStoreClosed
	}

	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if value, ok := d.data[key]; ok {
			result[key] = cloneBytes(value)
		}
	}
	return result, nil
}

// Set implements storage.Driver. All entries are applied as one batch and
// reported as one ordered group of change events.
func (d *Driver) Set(ctx context.Context, entries map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errors.ErrStoreClosed
	}

	changes := make([]storage.Change, 0, len(entries))
	for key, value := range entries {
		old := d.data[key]
		d.data[key] = cloneBytes(value)
		changes = append(changes, storage.Change{
			Key: key,
			Old: old,
			New: cloneBytes(value),
		})
	}
	d.enqueueLocked(changes)
	d.mu.Unlock()
	return nil
}

// Remove implements storage.Driver. Removing an absent key is a no-op and
// produces no change event.
func (d *Driver) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errors.ErrStoreClosed
	}

	changes := make([]storage.Change, 0, len(keys))
	for _, key := range keys {
		old, ok := d.data[key]
		if !ok {
			continue
		}
		delete(d.data, key)
		changes = append(changes, storage.Change{Key: key, Old: old})
	}
	d.enqueueLocked(changes)
	d.mu.Unlock()
	return nil
}

// Keys implements storage.Driver.
func (d *Driver) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.ErrStoreClosed
	}

	keys := make([]string, 0, len(d.data))
	for key := range d.data {
		keys = append(keys, key)
	}
	return keys, nil
}

// Watch implements storage.Driver. The handler runs on the dispatcher
// goroutine. The returned stop function is idempotent; cancelling ctx also
// releases the subscription.
func (d *Driver) Watch(ctx context.Context, handler storage.ChangeHandler) (func(), error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, errors.ErrStoreClosed
	}
	id := d.nextID
	d.nextID++
	d.handlers[id] = handler
	d.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.handlers, id)
			d.mu.Unlock()
		})
	}

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				stop()
			case <-d.done:
			}
		}()
	}
	return stop, nil
}

// Close stops the dispatcher and rejects further operations.
func (d *Driver) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.handlers = make(map[int]storage.ChangeHandler)
	close(d.done)
	d.mu.Unlock()
}

// enqueueLocked queues changes for dispatch. Caller holds d.mu, which keeps
// event ordering consistent with write ordering.
func (d *Driver) enqueueLocked(changes []storage.Change) {
	if len(changes) == 0 {
		return
	}
	select {
	case d.events <- changes:
	case <-d.done:
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	clone := make([]byte, len(b))
	copy(clone, b)
	return clone
}

var _ storage.Driver = (*Driver)(nil)
