package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/leos/wxt/errors"
	"github.com/leos/wxt/metric"
)

// UpdateNotifier delivers the host's extension-update lifecycle event.
// Registering with a notifier allows versioned items to run their migrations
// automatically when the extension itself is updated. Wiring the actual host
// event is an external collaborator concern.
type UpdateNotifier interface {
	// OnUpdate registers fn to run when the host signals an update. The
	// returned cancel function releases the registration.
	OnUpdate(fn func()) (cancel func())
}

// Option configures a Storage using the functional options pattern.
type Option func(*storageOptions)

type storageOptions struct {
	logger      Logger
	metricsReg  *metric.MetricsRegistry
	metricsName string
	notifier    UpdateNotifier
}

// WithLogger attaches a Printf-style logger for operational logging. A nil
// logger disables logging.
func WithLogger(logger Logger) Option {
	return func(opts *storageOptions) {
		opts.logger = logger
	}
}

// WithMetrics enables Prometheus metrics export for storage operations.
// If registry is nil or name is empty, this option is ignored.
func WithMetrics(registry *metric.MetricsRegistry, name string) Option {
	return func(opts *storageOptions) {
		if registry != nil && name != "" {
			opts.metricsReg = registry
			opts.metricsName = name
		}
	}
}

// WithUpdateNotifier connects the storage to the host's extension-update
// lifecycle event so versioned items migrate automatically on update.
func WithUpdateNotifier(notifier UpdateNotifier) Option {
	return func(opts *storageOptions) {
		opts.notifier = notifier
	}
}

// Storage routes typed key-value operations across host storage areas. It
// performs no caching of values across calls; every read reflects the driver
// state at call time.
type Storage struct {
	drivers map[Area]Driver
	logger  Logger
	metrics *storageMetrics
	watches *watchRegistry

	// versioned items registered for migrate-on-update
	migratablesMu sync.Mutex
	migratables   []func(context.Context) error
	cancelUpdate  func()
}

// New creates a Storage backed by the given per-area drivers. Areas without a
// driver reject operations with errors.ErrAreaUnsupported.
func New(drivers map[Area]Driver, opts ...Option) (*Storage, error) {
	if len(drivers) == 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: no drivers configured", errors.ErrDefinition),
			"Storage", "New", "validate drivers")
	}
	for area := range drivers {
		if !area.Valid() {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %q", errors.ErrUnknownArea, area),
				"Storage", "New", "validate driver area")
		}
	}

	options := storageOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	s := &Storage{
		drivers: drivers,
		logger:  options.logger,
	}
	s.watches = newWatchRegistry(s)

	if options.metricsReg != nil {
		m, err := newStorageMetrics(options.metricsReg, options.metricsName)
		if err != nil {
			return nil, err
		}
		s.metrics = m
	}

	if options.notifier != nil {
		s.cancelUpdate = options.notifier.OnUpdate(func() {
			if err := s.MigrateAll(context.Background()); err != nil && s.logger != nil {
				s.logger.Printf("storage: migrate on update: %v", err)
			}
		})
	}

	return s, nil
}

// Close releases the update-hook registration and all watch subscriptions.
func (s *Storage) Close() {
	if s.cancelUpdate != nil {
		s.cancelUpdate()
		s.cancelUpdate = nil
	}
	s.watches.closeAll()
}

// driverFor returns the driver for an area, or errors.ErrAreaUnsupported when
// none is configured.
func (s *Storage) driverFor(area Area) (Driver, error) {
	driver, ok := s.drivers[area]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrAreaUnsupported, area),
			"Storage", "driverFor", "route area to driver")
	}
	return driver, nil
}

// GetItem reads the value stored under the namespaced key and decodes it into
// out, which must be a non-nil pointer. It returns false and leaves out
// untouched when no value is stored.
func (s *Storage) GetItem(ctx context.Context, key string, out any) (bool, error) {
	area, bareKey, err := ResolveKey(key)
	if err != nil {
		return false, err
	}
	driver, err := s.driverFor(area)
	if err != nil {
		return false, err
	}

	values, err := driver.Get(ctx, bareKey)
	if err != nil {
		return false, errors.WrapTransient(err, "Storage", "GetItem", "read from driver")
	}
	s.countRead(area)

	raw, ok := values[bareKey]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, errors.WrapFatal(
			fmt.Errorf("%w: key %q: %v", errors.ErrDataCorrupted, key, err),
			"Storage", "GetItem", "decode stored value")
	}
	return true, nil
}

// SetItem serializes value and stores it under the namespaced key,
// overwriting any existing value.
func (s *Storage) SetItem(ctx context.Context, key string, value any) error {
	area, bareKey, err := ResolveKey(key)
	if err != nil {
		return err
	}
	driver, err := s.driverFor(area)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: key %q: %v", errors.ErrInvalidData, key, err),
			"Storage", "SetItem", "encode value")
	}

	if err := driver.Set(ctx, map[string][]byte{bareKey: raw}); err != nil {
		return errors.WrapTransient(err, "Storage", "SetItem", "write to driver")
	}
	s.countWrite(area)
	return nil
}

// RemoveOption configures item removal.
type RemoveOption func(*removeOptions)

type removeOptions struct {
	withMeta bool
}

// RemoveWithMeta also deletes the shadow metadata entry in the same driver
// call as the value removal.
func RemoveWithMeta() RemoveOption {
	return func(opts *removeOptions) {
		opts.withMeta = true
	}
}

// RemoveItem deletes the value stored under the namespaced key. Shadow
// metadata is preserved unless RemoveWithMeta is passed.
func (s *Storage) RemoveItem(ctx context.Context, key string, opts ...RemoveOption) error {
	area, bareKey, err := ResolveKey(key)
	if err != nil {
		return err
	}
	driver, err := s.driverFor(area)
	if err != nil {
		return err
	}

	options := removeOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	keys := []string{bareKey}
	if options.withMeta {
		keys = append(keys, MetaKey(bareKey))
	}
	if err := driver.Remove(ctx, keys...); err != nil {
		return errors.WrapTransient(err, "Storage", "RemoveItem", "remove from driver")
	}
	s.countRemove(area)
	return nil
}

// GetItems reads multiple namespaced keys, issuing one driver call per area
// touched. The result maps each namespaced key that had a stored value to its
// raw serialized form; absent keys are omitted.
func (s *Storage) GetItems(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	grouped, err := s.groupByArea(keys)
	if err != nil {
		return nil, err
	}

	result := make(map[string]json.RawMessage, len(keys))
	for area, bareKeys := range grouped {
		driver, err := s.driverFor(area)
		if err != nil {
			return nil, err
		}
		values, err := driver.Get(ctx, bareKeys...)
		if err != nil {
			return nil, errors.WrapTransient(err, "Storage", "GetItems", "read from driver")
		}
		s.countRead(area)
		for bareKey, raw := range values {
			result[area.Key(bareKey)] = json.RawMessage(raw)
		}
	}
	return result, nil
}

// SetItems serializes and stores multiple values, issuing one driver call per
// area touched.
func (s *Storage) SetItems(ctx context.Context, entries map[string]any) error {
	grouped := make(map[Area]map[string][]byte, len(s.drivers))
	for key, value := range entries {
		area, bareKey, err := ResolveKey(key)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return errors.WrapInvalid(
				fmt.Errorf("%w: key %q: %v", errors.ErrInvalidData, key, err),
				"Storage", "SetItems", "encode value")
		}
		if grouped[area] == nil {
			grouped[area] = make(map[string][]byte)
		}
		grouped[area][bareKey] = raw
	}

	for area, areaEntries := range grouped {
		driver, err := s.driverFor(area)
		if err != nil {
			return err
		}
		if err := driver.Set(ctx, areaEntries); err != nil {
			return errors.WrapTransient(err, "Storage", "SetItems", "write to driver")
		}
		s.countWrite(area)
	}
	return nil
}

// RemoveItems deletes multiple namespaced keys, issuing one driver call per
// area touched.
func (s *Storage) RemoveItems(ctx context.Context, keys []string, opts ...RemoveOption) error {
	options := removeOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	grouped, err := s.groupByArea(keys)
	if err != nil {
		return err
	}

	for area, bareKeys := range grouped {
		driver, err := s.driverFor(area)
		if err != nil {
			return err
		}
		if options.withMeta {
			withShadow := make([]string, 0, len(bareKeys)*2)
			for _, bareKey := range bareKeys {
				withShadow = append(withShadow, bareKey, MetaKey(bareKey))
			}
			bareKeys = withShadow
		}
		if err := driver.Remove(ctx, bareKeys...); err != nil {
			return errors.WrapTransient(err, "Storage", "RemoveItems", "remove from driver")
		}
		s.countRemove(area)
	}
	return nil
}

// Snapshot dumps every data entry in an area, excluding shadow metadata keys.
// Keys in the result are bare keys.
func (s *Storage) Snapshot(ctx context.Context, area Area) (map[string]json.RawMessage, error) {
	driver, err := s.driverFor(area)
	if err != nil {
		return nil, err
	}

	keys, err := driver.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "Storage", "Snapshot", "list keys")
	}

	dataKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		if IsMetaKey(key) {
			continue
		}
		dataKeys = append(dataKeys, key)
	}
	if len(dataKeys) == 0 {
		return map[string]json.RawMessage{}, nil
	}

	values, err := driver.Get(ctx, dataKeys...)
	if err != nil {
		return nil, errors.WrapTransient(err, "Storage", "Snapshot", "read from driver")
	}
	s.countRead(area)

	snapshot := make(map[string]json.RawMessage, len(values))
	for bareKey, raw := range values {
		snapshot[bareKey] = json.RawMessage(raw)
	}
	return snapshot, nil
}

// RestoreSnapshot writes a snapshot back into an area in a single driver
// call, merging with whatever is already stored.
func (s *Storage) RestoreSnapshot(ctx context.Context, area Area, snapshot map[string]json.RawMessage) error {
	driver, err := s.driverFor(area)
	if err != nil {
		return err
	}

	entries := make(map[string][]byte, len(snapshot))
	for bareKey, raw := range snapshot {
		entries[bareKey] = []byte(raw)
	}
	if len(entries) == 0 {
		return nil
	}

	if err := driver.Set(ctx, entries); err != nil {
		return errors.WrapTransient(err, "Storage", "RestoreSnapshot", "write to driver")
	}
	s.countWrite(area)
	return nil
}

// groupByArea resolves namespaced keys and buckets the bare keys per area.
func (s *Storage) groupByArea(keys []string) (map[Area][]string, error) {
	grouped := make(map[Area][]string, len(s.drivers))
	for _, key := range keys {
		area, bareKey, err := ResolveKey(key)
		if err != nil {
			return nil, err
		}
		grouped[area] = append(grouped[area], bareKey)
	}
	return grouped, nil
}

// registerMigratable records a versioned item's migrate entrypoint for
// MigrateAll and the update hook.
func (s *Storage) registerMigratable(migrate func(context.Context) error) {
	s.migratablesMu.Lock()
	defer s.migratablesMu.Unlock()
	s.migratables = append(s.migratables, migrate)
}

// MigrateAll runs the migration engine for every versioned item defined
// against this storage. Each item's run is independent; the first error is
// reported after all items have been attempted.
func (s *Storage) MigrateAll(ctx context.Context) error {
	s.migratablesMu.Lock()
	migratables := make([]func(context.Context) error, len(s.migratables))
	copy(migratables, s.migratables)
	s.migratablesMu.Unlock()

	var firstErr error
	for _, migrate := range migratables {
		if err := migrate(ctx); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if s.logger != nil {
				s.logger.Printf("storage: item migration: %v", err)
			}
		}
	}
	return firstErr
}

func (s *Storage) countRead(area Area) {
	if s.metrics != nil {
		s.metrics.reads.WithLabelValues(string(area)).Inc()
	}
}

func (s *Storage) countWrite(area Area) {
	if s.metrics != nil {
		s.metrics.writes.WithLabelValues(string(area)).Inc()
	}
}

func (s *Storage) countRemove(area Area) {
	if s.metrics != nil {
		s.metrics.removes.WithLabelValues(string(area)).Inc()
	}
}

// debugf logs through the configured logger when present.
func (s *Storage) debugf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
