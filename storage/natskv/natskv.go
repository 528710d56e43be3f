// Package natskv provides a storage.Driver backed by a NATS JetStream
// KeyValue bucket. Each storage area maps to its own bucket; the KV watch
// stream supplies cross-process change events.
package natskv

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/leos/wxt/errors"
	"github.com/leos/wxt/pkg/retry"
	"github.com/leos/wxt/storage"
)

// Options configures KV operation behavior.
type Options struct {
	Timeout      time.Duration // Per-operation timeout (watch excluded)
	MaxValueSize int           // Maximum size for values, 0 disables the check
	Retry        retry.Config  // Backoff for transient host failures
	Logger       storage.Logger
}

// DefaultOptions returns sensible defaults for production use.
func DefaultOptions() Options {
	return Options{
		Timeout:      5 * time.Second,
		MaxValueSize: 1024 * 1024, // 1MB
		Retry:        retry.Quick(),
	}
}

// Option mutates Options using the functional options pattern.
type Option func(*Options)

// WithTimeout sets the per-operation timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.Timeout = timeout
	}
}

// WithMaxValueSize caps accepted value sizes. Zero disables the check.
func WithMaxValueSize(size int) Option {
	return func(opts *Options) {
		opts.MaxValueSize = size
	}
}

// WithRetry overrides the backoff configuration for transient host failures.
func WithRetry(cfg retry.Config) Option {
	return func(opts *Options) {
		opts.Retry = cfg
	}
}

// WithLogger attaches a Printf-style logger.
func WithLogger(logger storage.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// Driver adapts one JetStream KeyValue bucket to the storage.Driver contract.
type Driver struct {
	bucket  jetstream.KeyValue
	options Options
}

// New creates a driver over an existing KV bucket.
func New(bucket jetstream.KeyValue, opts ...Option) *Driver {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Driver{bucket: bucket, options: options}
}

// Buckets creates or binds one KV bucket per storage area, named
// "<prefix>_<area>", and returns the resulting driver map ready for
// storage.New.
func Buckets(ctx context.Context, js jetstream.JetStream, prefix string, opts ...Option) (map[storage.Area]storage.Driver, error) {
	drivers := make(map[storage.Area]storage.Driver, len(storage.Areas))
	for _, area := range storage.Areas {
		bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      fmt.Sprintf("%s_%s", prefix, area),
			Description: fmt.Sprintf("wxt %s storage area", area),
		})
		if err != nil {
			return nil, errors.WrapTransient(err, "natskv", "Buckets",
				fmt.Sprintf("create KV bucket for area %s", area))
		}
		drivers[area] = New(bucket, opts...)
	}
	return drivers, nil
}

// applyTimeout applies the configured timeout to the context if set.
func (d *Driver) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.options.Timeout > 0 {
		return context.WithTimeout(ctx, d.options.Timeout)
	}
	return ctx, func() {}
}

// Get implements storage.Driver. Keys the bucket does not hold are omitted
// from the result rather than reported as errors.
func (d *Driver) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	ctx, cancel := d.applyTimeout(ctx)
	defer cancel()

	// NATS KV has no multi-get; the batch still costs one bucket round trip
	// per key, issued from this single driver call.
	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		entry, err := retry.DoWithResult(ctx, d.options.Retry, func() (jetstream.KeyValueEntry, error) {
			entry, err := d.bucket.Get(ctx, encodeKey(key))
			if err != nil && isNotFound(err) {
				return nil, retry.NonRetryable(err)
			}
			return entry, err
		})
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, mapHostError(err, "Get", key)
		}
		result[key] = entry.Value()
	}
	return result, nil
}

// Set implements storage.Driver. Entries are written with last-write-wins
// puts; NATS KV offers no multi-key transaction, so a batch is applied as
// ordered single-key puts within this one driver call.
func (d *Driver) Set(ctx context.Context, entries map[string][]byte) error {
	ctx, cancel := d.applyTimeout(ctx)
	defer cancel()

	for key, value := range entries {
		if d.options.MaxValueSize > 0 && len(value) > d.options.MaxValueSize {
			return errors.WrapInvalid(
				fmt.Errorf("%w: key %q size %d exceeds maximum %d",
					errors.ErrQuotaExceeded, key, len(value), d.options.MaxValueSize),
				"natskv", "Set", "validate value size")
		}

		err := retry.Do(ctx, d.options.Retry, func() error {
			rev, err := d.bucket.Put(ctx, encodeKey(key), value)
			if err != nil {
				return err
			}
			d.logf("natskv: put key=%s revision=%d", key, rev)
			return nil
		})
		if err != nil {
			return mapHostError(err, "Set", key)
		}
	}
	return nil
}

// Remove implements storage.Driver. Removing an absent key is not an error.
func (d *Driver) Remove(ctx context.Context, keys ...string) error {
	ctx, cancel := d.applyTimeout(ctx)
	defer cancel()

	for _, key := range keys {
		err := retry.Do(ctx, d.options.Retry, func() error {
			err := d.bucket.Delete(ctx, encodeKey(key))
			if err != nil && isNotFound(err) {
				return nil
			}
			return err
		})
		if err != nil {
			return mapHostError(err, "Remove", key)
		}
		d.logf("natskv: delete key=%s", key)
	}
	return nil
}

// Keys implements storage.Driver.
func (d *Driver) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := d.applyTimeout(ctx)
	defer cancel()

	encoded, err := d.bucket.Keys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return []string{}, nil
		}
		return nil, mapHostError(err, "Keys", "")
	}

	keys := make([]string, 0, len(encoded))
	for _, key := range encoded {
		keys = append(keys, decodeKey(key))
	}
	return keys, nil
}

// Watch implements storage.Driver. One KV watcher covers the whole bucket;
// the initial replay seeds previous values so events carry correct old/new
// pairs without being delivered themselves.
func (d *Driver) Watch(ctx context.Context, handler storage.ChangeHandler) (func(), error) {
	// No timeout here: the watcher is long-lived.
	watcher, err := d.bucket.WatchAll(ctx)
	if err != nil {
		return nil, mapHostError(err, "Watch", "")
	}

	go d.relay(watcher, handler)

	var stopped bool
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		if err := watcher.Stop(); err != nil {
			d.logf("natskv: watcher stop: %v", err)
		}
	}
	return stop, nil
}

// relay translates KV entries into storage change events. Entries before the
// initial nil marker only seed the previous-value map.
func (d *Driver) relay(watcher jetstream.KeyWatcher, handler storage.ChangeHandler) {
	previous := make(map[string][]byte)
	replaying := true

	for entry := range watcher.Updates() {
		if entry == nil {
			// End of initial replay; live events follow.
			replaying = false
			continue
		}

		key := decodeKey(entry.Key())
		var newValue []byte
		switch entry.Operation() {
		case jetstream.KeyValuePut:
			newValue = entry.Value()
		case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
			newValue = nil
		default:
			continue
		}

		oldValue := previous[key]
		if newValue == nil {
			delete(previous, key)
		} else {
			previous[key] = newValue
		}

		if replaying {
			continue
		}
		handler(storage.Change{Key: key, Old: oldValue, New: newValue})
	}
}

func (d *Driver) logf(format string, args ...any) {
	if d.options.Logger != nil {
		d.options.Logger.Printf(format, args...)
	}
}

// isNotFound checks if an error indicates key not found.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrKeyNotFound) {
		return true
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "key not found") ||
		strings.Contains(errMsg, "10037")
}

// mapHostError folds raw NATS failures into the module's error taxonomy.
func mapHostError(err error, method, key string) error {
	action := "call host store"
	if key != "" {
		action = fmt.Sprintf("key %q", key)
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.WrapTransient(err, "natskv", method, action)
	}
	if strings.Contains(err.Error(), "maximum bytes exceeded") {
		return errors.WrapFatal(
			fmt.Errorf("%w: %v", errors.ErrQuotaExceeded, err),
			"natskv", method, action)
	}
	return errors.WrapTransient(
		fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err),
		"natskv", method, action)
}

var _ storage.Driver = (*Driver)(nil)
