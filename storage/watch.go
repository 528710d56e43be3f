package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/leos/wxt/errors"
)

// WatchCallback receives the new and old raw values for a watched key. A nil
// value signals absence (creation when old is nil, deletion when new is nil).
//
// Callbacks run on the driver's dispatch goroutine, never synchronously
// inside the write call that produced the change. A callback that panics does
// not prevent other subscribers on the same key from being notified.
type WatchCallback func(newValue, oldValue json.RawMessage)

// subscription is one live watch on an (area, bareKey) pair. Subscriptions on
// the same key are independent and all fire on a matching change.
type subscription struct {
	bareKey  string
	callback WatchCallback
}

// areaWatch tracks the single driver watcher for an area and its fan-out
// targets.
type areaWatch struct {
	stop func()
	subs map[string][]*subscription
}

// watchRegistry maintains active subscriptions keyed by (area, bareKey). One
// driver watcher is held per area and released when the area's last
// subscription is removed. Subscriptions live in process-local memory only;
// they do not survive a restart.
type watchRegistry struct {
	storage *Storage

	mu    sync.Mutex
	areas map[Area]*areaWatch
}

func newWatchRegistry(s *Storage) *watchRegistry {
	return &watchRegistry{
		storage: s,
		areas:   make(map[Area]*areaWatch),
	}
}

// Watch subscribes callback to changes of the namespaced key. The returned
// unwatch function removes exactly this subscription and is idempotent.
//
// Policy on no-op writes: when the old and new payloads are byte-equal the
// callback is skipped.
func (s *Storage) Watch(ctx context.Context, key string, callback WatchCallback) (func(), error) {
	area, bareKey, err := ResolveKey(key)
	if err != nil {
		return nil, err
	}
	driver, err := s.driverFor(area)
	if err != nil {
		return nil, err
	}
	return s.watches.add(ctx, area, driver, bareKey, callback)
}

func (r *watchRegistry) add(ctx context.Context, area Area, driver Driver, bareKey string, callback WatchCallback) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	aw, ok := r.areas[area]
	if !ok {
		stop, err := driver.Watch(ctx, func(change Change) {
			r.dispatch(area, change)
		})
		if err != nil {
			return nil, errors.WrapTransient(err, "Storage", "Watch", "subscribe to driver")
		}
		aw = &areaWatch{
			stop: stop,
			subs: make(map[string][]*subscription),
		}
		r.areas[area] = aw
	}

	sub := &subscription{bareKey: bareKey, callback: callback}
	aw.subs[bareKey] = append(aw.subs[bareKey], sub)

	var once sync.Once
	unwatch := func() {
		once.Do(func() {
			r.remove(area, sub)
		})
	}
	return unwatch, nil
}

// remove drops one subscription and tears down the area watcher when it was
// the last one.
func (r *watchRegistry) remove(area Area, sub *subscription) {
	r.mu.Lock()
	aw, ok := r.areas[area]
	if !ok {
		r.mu.Unlock()
		return
	}

	subs := aw.subs[sub.bareKey]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(aw.subs, sub.bareKey)
	} else {
		aw.subs[sub.bareKey] = subs
	}

	var stop func()
	if len(aw.subs) == 0 {
		stop = aw.stop
		delete(r.areas, area)
	}
	r.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// dispatch fans a raw change event out to the matching subscriptions.
func (r *watchRegistry) dispatch(area Area, change Change) {
	// No-op suppression: equal payloads never reach callbacks.
	if bytes.Equal(change.Old, change.New) {
		return
	}

	r.mu.Lock()
	var targets []*subscription
	if aw, ok := r.areas[area]; ok {
		targets = append(targets, aw.subs[change.Key]...)
	}
	r.mu.Unlock()

	if len(targets) == 0 {
		return
	}
	if r.storage.metrics != nil {
		r.storage.metrics.watchEvents.WithLabelValues(string(area)).Inc()
	}

	for _, sub := range targets {
		r.invoke(area, change, sub)
	}
}

// invoke runs one callback, containing panics so a failing subscriber cannot
// block the rest.
func (r *watchRegistry) invoke(area Area, change Change, sub *subscription) {
	defer func() {
		if rec := recover(); rec != nil {
			r.storage.debugf("storage: watch callback panic for %s:%s: %v",
				area, change.Key, rec)
		}
	}()
	sub.callback(json.RawMessage(change.New), json.RawMessage(change.Old))
}

// closeAll stops every area watcher and clears the registry.
func (r *watchRegistry) closeAll() {
	r.mu.Lock()
	stops := make([]func(), 0, len(r.areas))
	for area, aw := range r.areas {
		stops = append(stops, aw.stop)
		delete(r.areas, area)
	}
	r.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}
