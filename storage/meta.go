package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leos/wxt/errors"
)

// metaSuffix marks the shadow metadata key companion of a data key.
const metaSuffix = "$"

// VersionProp is the reserved metadata property holding an item's schema
// version as an integer. Callers must not use it for unrelated purposes.
const VersionProp = "v"

// MetaKey returns the shadow metadata key for a bare data key. The shadow
// entry lives in the same area as the data key.
func MetaKey(bareKey string) string {
	return bareKey + metaSuffix
}

// IsMetaKey reports whether a bare key addresses a shadow metadata entry.
func IsMetaKey(bareKey string) bool {
	return strings.HasSuffix(bareKey, metaSuffix)
}

// GetMeta reads the metadata mapping for a namespaced data key. An absent
// shadow entry yields an empty, non-nil mapping.
func (s *Storage) GetMeta(ctx context.Context, key string) (map[string]any, error) {
	area, bareKey, err := ResolveKey(key)
	if err != nil {
		return nil, err
	}
	driver, err := s.driverFor(area)
	if err != nil {
		return nil, err
	}

	meta, _, err := readMeta(ctx, driver, bareKey)
	if err != nil {
		return nil, errors.Wrap(err, "Storage", "GetMeta", "read shadow entry")
	}
	s.countRead(area)
	return meta, nil
}

// SetMeta shallow-merges properties into the stored metadata mapping for a
// namespaced data key. Each supplied property overwrites only that property;
// unspecified existing properties are preserved. Nested values are replaced
// wholesale, never recursively combined.
func (s *Storage) SetMeta(ctx context.Context, key string, properties map[string]any) error {
	area, bareKey, err := ResolveKey(key)
	if err != nil {
		return err
	}
	driver, err := s.driverFor(area)
	if err != nil {
		return err
	}

	meta, _, err := readMeta(ctx, driver, bareKey)
	if err != nil {
		return errors.Wrap(err, "Storage", "SetMeta", "read shadow entry")
	}
	for name, value := range properties {
		meta[name] = value
	}

	if err := writeMeta(ctx, driver, bareKey, meta); err != nil {
		return errors.Wrap(err, "Storage", "SetMeta", "write shadow entry")
	}
	s.countWrite(area)
	return nil
}

// RemoveMeta deletes metadata for a namespaced data key. With no properties,
// the entire shadow entry is removed. With properties, only those are deleted
// from the mapping; a mapping emptied this way remains persisted as an entry
// with zero properties, distinct from the entry being absent.
func (s *Storage) RemoveMeta(ctx context.Context, key string, properties ...string) error {
	area, bareKey, err := ResolveKey(key)
	if err != nil {
		return err
	}
	driver, err := s.driverFor(area)
	if err != nil {
		return err
	}

	if len(properties) == 0 {
		if err := driver.Remove(ctx, MetaKey(bareKey)); err != nil {
			return errors.WrapTransient(err, "Storage", "RemoveMeta", "remove shadow entry")
		}
		s.countRemove(area)
		return nil
	}

	meta, found, err := readMeta(ctx, driver, bareKey)
	if err != nil {
		return errors.Wrap(err, "Storage", "RemoveMeta", "read shadow entry")
	}
	if !found {
		return nil
	}
	for _, name := range properties {
		delete(meta, name)
	}

	if err := writeMeta(ctx, driver, bareKey, meta); err != nil {
		return errors.Wrap(err, "Storage", "RemoveMeta", "write shadow entry")
	}
	s.countWrite(area)
	return nil
}

// readMeta fetches and decodes the shadow entry for a bare key. The returned
// mapping is always non-nil; found distinguishes an absent entry from an
// empty one.
func readMeta(ctx context.Context, driver Driver, bareKey string) (map[string]any, bool, error) {
	metaKey := MetaKey(bareKey)
	values, err := driver.Get(ctx, metaKey)
	if err != nil {
		return nil, false, errors.WrapTransient(err, "Storage", "readMeta", "read from driver")
	}

	raw, ok := values[metaKey]
	if !ok {
		return map[string]any{}, false, nil
	}

	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, false, errors.WrapFatal(
			fmt.Errorf("%w: shadow key %q: %v", errors.ErrDataCorrupted, metaKey, err),
			"Storage", "readMeta", "decode shadow entry")
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return meta, true, nil
}

// writeMeta encodes and persists a metadata mapping under the shadow key.
func writeMeta(ctx context.Context, driver Driver, bareKey string, meta map[string]any) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: shadow key %q: %v", errors.ErrInvalidData, MetaKey(bareKey), err),
			"Storage", "writeMeta", "encode shadow entry")
	}
	if err := driver.Set(ctx, map[string][]byte{MetaKey(bareKey): raw}); err != nil {
		return errors.WrapTransient(err, "Storage", "writeMeta", "write to driver")
	}
	return nil
}
