package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/leos/wxt/errors"
)

// MigrateFunc transforms a stored value from one schema version to the next.
// The value is the decoded JSON form of whatever the previous version stored
// (typically map[string]any for object payloads).
//
// Migration functions must be pure and deterministic: concurrent Migrate
// invocations may each run the same function over the same input and both
// persist the result, converging only when the output is identical. This is a
// caller obligation, not something the engine enforces.
type MigrateFunc func(oldValue any) (any, error)

// ItemOptions configures a storage item definition.
type ItemOptions[T any] struct {
	// Fallback is returned by GetValue when no value is stored.
	Fallback T

	// Version declares the schema version the in-code type expects. Zero
	// means the item is unversioned. When set it must be >= 1.
	Version int

	// Migrations maps each target version to the function producing it. The
	// keys must be exactly the consecutive integers from 2 up to Version.
	Migrations map[int]MigrateFunc

	// Debug enables per-operation logging through the storage's logger.
	Debug bool
}

// Item is a reusable, typed handle bound to one namespaced key, optionally
// versioned. Definitions are immutable: they own no mutable state themselves,
// all state lives in the underlying store.
type Item[T any] struct {
	storage    *Storage
	key        string
	area       Area
	bareKey    string
	fallback   T
	version    int
	migrations map[int]MigrateFunc
	debug      bool
}

// NewItem defines a storage item bound to a namespaced key. Malformed keys
// and inconsistent version/migration definitions are rejected here, at
// definition time, never at first use. Versioned items are registered with
// the storage so they migrate when the host signals an extension update.
func NewItem[T any](s *Storage, key string, opts ItemOptions[T]) (*Item[T], error) {
	area, bareKey, err := ResolveKey(key)
	if err != nil {
		return nil, err
	}
	if err := validateItemVersion(key, opts.Version, opts.Migrations); err != nil {
		return nil, err
	}

	item := &Item[T]{
		storage:    s,
		key:        key,
		area:       area,
		bareKey:    bareKey,
		fallback:   opts.Fallback,
		version:    opts.Version,
		migrations: opts.Migrations,
		debug:      opts.Debug,
	}

	if item.version > 0 {
		s.registerMigratable(item.Migrate)
	}
	return item, nil
}

// validateItemVersion enforces the definition-time contract: version >= 1
// when declared, and migration keys forming exactly the range 2..version.
func validateItemVersion(key string, version int, migrations map[int]MigrateFunc) error {
	if version == 0 {
		if len(migrations) > 0 {
			return errors.WrapInvalid(
				fmt.Errorf("%w: item %q has migrations but no declared version", errors.ErrDefinition, key),
				"Item", "NewItem", "validate definition")
		}
		return nil
	}
	if version < 1 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: item %q version %d must be >= 1", errors.ErrDefinition, key, version),
			"Item", "NewItem", "validate definition")
	}

	for target := range migrations {
		if target < 2 || target > version {
			return errors.WrapInvalid(
				fmt.Errorf("%w: item %q migration key %d out of range 2..%d",
					errors.ErrDefinition, key, target, version),
				"Item", "NewItem", "validate definition")
		}
	}
	for target := 2; target <= version; target++ {
		if _, ok := migrations[target]; !ok {
			return errors.WrapInvalid(
				fmt.Errorf("%w: item %q missing migration for version %d",
					errors.ErrDefinition, key, target),
				"Item", "NewItem", "validate definition")
		}
	}
	return nil
}

// Key returns the item's namespaced key.
func (i *Item[T]) Key() string {
	return i.key
}

// Fallback returns the item's configured fallback value.
func (i *Item[T]) Fallback() T {
	return i.fallback
}

// GetValue reads the item's stored value, or the fallback when nothing is
// stored. It never triggers a migration implicitly; a freshly defined item
// reflects raw stored state until Migrate is invoked.
func (i *Item[T]) GetValue(ctx context.Context) (T, error) {
	value := i.fallback
	found, err := i.storage.GetItem(ctx, i.key, &value)
	if err != nil {
		return i.fallback, err
	}
	if !found {
		i.logf("storage: item %s: no stored value, using fallback", i.key)
		return i.fallback, nil
	}
	return value, nil
}

// SetValue stores a new value for the item, overwriting any existing value.
func (i *Item[T]) SetValue(ctx context.Context, value T) error {
	i.logf("storage: item %s: set value", i.key)
	return i.storage.SetItem(ctx, i.key, value)
}

// RemoveValue deletes the item's stored value. Shadow metadata is preserved
// unless RemoveWithMeta is passed.
func (i *Item[T]) RemoveValue(ctx context.Context, opts ...RemoveOption) error {
	i.logf("storage: item %s: remove value", i.key)
	return i.storage.RemoveItem(ctx, i.key, opts...)
}

// GetMeta reads the item's metadata mapping.
func (i *Item[T]) GetMeta(ctx context.Context) (map[string]any, error) {
	return i.storage.GetMeta(ctx, i.key)
}

// SetMeta shallow-merges properties into the item's metadata mapping.
func (i *Item[T]) SetMeta(ctx context.Context, properties map[string]any) error {
	return i.storage.SetMeta(ctx, i.key, properties)
}

// RemoveMeta deletes the item's metadata entry, or only the named properties.
func (i *Item[T]) RemoveMeta(ctx context.Context, properties ...string) error {
	return i.storage.RemoveMeta(ctx, i.key, properties...)
}

// Watch subscribes callback to changes of the item's value. Absent values are
// reported as the fallback. The returned unwatch function is idempotent.
func (i *Item[T]) Watch(ctx context.Context, callback func(newValue, oldValue T)) (func(), error) {
	return i.storage.Watch(ctx, i.key, func(newRaw, oldRaw json.RawMessage) {
		callback(i.decodeOrFallback(newRaw), i.decodeOrFallback(oldRaw))
	})
}

// decodeOrFallback decodes a raw payload into T, falling back on absence or
// malformed data.
func (i *Item[T]) decodeOrFallback(raw json.RawMessage) T {
	if raw == nil {
		return i.fallback
	}
	value := i.fallback
	if err := json.Unmarshal(raw, &value); err != nil {
		i.logf("storage: item %s: watch payload decode: %v", i.key, err)
		return i.fallback
	}
	return value
}

func (i *Item[T]) logf(format string, args ...any) {
	if i.debug {
		i.storage.debugf(format, args...)
	}
}
