package storage

import "context"

// Change describes a single key mutation reported by a driver. A nil Old
// signals creation; a nil New signals deletion.
type Change struct {
	Key string
	Old []byte
	New []byte
}

// ChangeHandler receives change events from a driver's watch stream. Handlers
// run on the driver's dispatch goroutine, never synchronously inside the
// write call that produced the change.
type ChangeHandler func(Change)

// Driver is the host storage primitive for one area: an opaque asynchronous
// map supporting batched get/set/remove and a change-event stream. The layer
// above never assumes synchronous semantics even where an implementation
// happens to be synchronous.
//
// Batched operations must be issued against the host as a single call where
// the host API supports it, to bound cross-process round trips.
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Driver interface {
	// Get returns the values for the requested keys. Absent keys are omitted
	// from the result rather than reported as errors.
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)

	// Set persists every entry in the mapping. Existing values are
	// overwritten (last write wins).
	Set(ctx context.Context, entries map[string][]byte) error

	// Remove deletes the given keys. Removing an absent key is not an error.
	Remove(ctx context.Context, keys ...string) error

	// Keys lists every key currently stored in this area, shadow metadata
	// keys included.
	Keys(ctx context.Context) ([]string, error)

	// Watch subscribes handler to all change events in this area, including
	// changes made by other execution contexts sharing the same host store.
	// The returned stop function releases the subscription and is safe to
	// call more than once.
	Watch(ctx context.Context, handler ChangeHandler) (stop func(), err error)
}

// Logger is the minimal logging interface accepted by this package. A nil
// logger disables logging.
type Logger interface {
	Printf(format string, args ...any)
}
