package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/leos/wxt/errors"
)

// Migrate brings the item's stored value up to its declared schema version by
// replaying the registered migrations in ascending order.
//
// The effective current version is read from the shadow metadata property
// VersionProp, defaulting to 1 when absent: all pre-existing unversioned data
// is assumed to be schema version 1. When the item declares no version, when
// the stored value is already current, or when nothing is stored at all, the
// call is a no-op performing zero writes.
//
// All intermediate values are computed in memory; the final value and the
// updated version metadata are persisted together in a single driver call.
// If any migration function fails, nothing is persisted and the stored state
// is exactly as it was before the call. Re-invoking after a successful run is
// a no-op; concurrent invocations converge provided migration functions are
// pure and deterministic.
func (i *Item[T]) Migrate(ctx context.Context) error {
	if i.version == 0 {
		return nil
	}

	driver, err := i.storage.driverFor(i.area)
	if err != nil {
		return err
	}

	metaKey := MetaKey(i.bareKey)
	values, err := driver.Get(ctx, i.bareKey, metaKey)
	if err != nil {
		return errors.WrapTransient(err, "Item", "Migrate", "read value and metadata")
	}
	i.storage.countRead(i.area)

	raw, ok := values[i.bareKey]
	if !ok {
		// Nothing stored, nothing to migrate. The version tag is written on
		// the first migrated write, not speculatively here.
		return nil
	}

	meta := map[string]any{}
	if metaRaw, ok := values[metaKey]; ok {
		if err := json.Unmarshal(metaRaw, &meta); err != nil {
			return errors.WrapFatal(
				fmt.Errorf("%w: shadow key %q: %v", errors.ErrDataCorrupted, metaKey, err),
				"Item", "Migrate", "decode metadata")
		}
		if meta == nil {
			meta = map[string]any{}
		}
	}

	currentVersion := effectiveVersion(meta)
	if currentVersion >= i.version {
		return nil
	}
	i.logf("storage: item %s: migrating v%d -> v%d", i.key, currentVersion, i.version)

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return errors.WrapFatal(
			fmt.Errorf("%w: key %q: %v", errors.ErrDataCorrupted, i.key, err),
			"Item", "Migrate", "decode stored value")
	}

	for target := currentVersion + 1; target <= i.version; target++ {
		migrate, ok := i.migrations[target]
		if !ok || migrate == nil {
			// Unreachable given the definition-time contiguity check, but the
			// engine defends against it rather than replaying a broken chain.
			return errors.WrapFatal(
				fmt.Errorf("%w: item %q version %d", errors.ErrMissingMigration, i.key, target),
				"Item", "Migrate", "look up migration")
		}
		next, err := migrate(value)
		if err != nil {
			// Migration function errors propagate as-is; no partial value has
			// been persisted.
			return err
		}
		value = next
	}

	valueRaw, err := json.Marshal(value)
	if err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: key %q: %v", errors.ErrInvalidData, i.key, err),
			"Item", "Migrate", "encode migrated value")
	}
	meta[VersionProp] = i.version
	metaRaw, err := json.Marshal(meta)
	if err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: shadow key %q: %v", errors.ErrInvalidData, metaKey, err),
			"Item", "Migrate", "encode metadata")
	}

	// Value and version tag travel in one driver call so the store never
	// observes them inconsistently.
	if err := driver.Set(ctx, map[string][]byte{
		i.bareKey: valueRaw,
		metaKey:   metaRaw,
	}); err != nil {
		return errors.WrapTransient(err, "Item", "Migrate", "persist migrated value")
	}
	i.storage.countWrite(i.area)
	if i.storage.metrics != nil {
		i.storage.metrics.migrations.WithLabelValues(string(i.area)).Inc()
	}
	i.logf("storage: item %s: migrated to v%d", i.key, i.version)
	return nil
}

// effectiveVersion extracts the schema version from a metadata mapping,
// defaulting to 1 when the property is absent or not numeric. JSON decoding
// yields float64 for numbers; stored integers round-trip exactly.
func effectiveVersion(meta map[string]any) int {
	switch v := meta[VersionProp].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		return 1
	default:
		return 1
	}
}
