package storage_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leos/wxt/errors"
	"github.com/leos/wxt/metric"
	"github.com/leos/wxt/storage"
	"github.com/leos/wxt/storage/memkv"
)

// newTestStorage backs every area with its own in-memory driver.
func newTestStorage(t *testing.T, opts ...storage.Option) *storage.Storage {
	t.Helper()

	drivers := make(map[storage.Area]storage.Driver, len(storage.Areas))
	for _, area := range storage.Areas {
		driver := memkv.New()
		t.Cleanup(driver.Close)
		drivers[area] = driver
	}

	s, err := storage.New(drivers, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestNew_NoDrivers(t *testing.T) {
	_, err := storage.New(nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestNew_InvalidArea(t *testing.T) {
	driver := memkv.New()
	defer driver.Close()

	_, err := storage.New(map[storage.Area]storage.Driver{"global": driver})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownArea)
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"string", "local:name", "alice"},
		{"number", "local:count", 42.0},
		{"bool", "session:flag", true},
		{"object", "sync:settings", map[string]any{"theme": "dark", "depth": 3.0}},
		{"array", "managed:ids", []any{"a", "b"}},
		{"null", "local:nothing", nil},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.NoError(t, s.SetItem(ctx, test.key, test.value))

			var got any
			found, err := s.GetItem(ctx, test.key, &got)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, test.value, got)
		})
	}
}

func TestAreasAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.SetItem(ctx, "local:x", "local value"))

	var got string
	found, err := s.GetItem(ctx, "session:x", &got)
	require.NoError(t, err)
	assert.False(t, found, "writing to local:x must not affect session:x")

	for _, key := range []string{"sync:x", "managed:x"} {
		found, err := s.GetItem(ctx, key, &got)
		require.NoError(t, err)
		assert.False(t, found)
	}
}

func TestGetItem_Absent(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	got := "untouched"
	found, err := s.GetItem(ctx, "local:missing", &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "untouched", got, "absent value must leave out untouched")
}

func TestGetItem_InvalidKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	var got any
	_, err := s.GetItem(ctx, "no-area", &got)
	assert.ErrorIs(t, err, errors.ErrInvalidKey)
}

func TestUnconfiguredArea(t *testing.T) {
	ctx := context.Background()

	driver := memkv.New()
	defer driver.Close()
	s, err := storage.New(map[storage.Area]storage.Driver{storage.AreaLocal: driver})
	require.NoError(t, err)
	defer s.Close()

	err = s.SetItem(ctx, "session:x", 1)
	assert.ErrorIs(t, err, errors.ErrAreaUnsupported)
}

func TestRemoveItem(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.SetItem(ctx, "local:x", 1))
	require.NoError(t, s.RemoveItem(ctx, "local:x"))

	var got int
	found, err := s.GetItem(ctx, "local:x", &got)
	require.NoError(t, err)
	assert.False(t, found)

	// Removing an absent key is not an error
	require.NoError(t, s.RemoveItem(ctx, "local:x"))
}

func TestRemoveItem_PreservesMetaByDefault(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.SetItem(ctx, "local:x", 1))
	require.NoError(t, s.SetMeta(ctx, "local:x", map[string]any{"v": 2.0}))

	require.NoError(t, s.RemoveItem(ctx, "local:x"))

	meta, err := s.GetMeta(ctx, "local:x")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"v": 2.0}, meta)
}

func TestRemoveItem_WithMeta(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.SetItem(ctx, "local:x", 1))
	require.NoError(t, s.SetMeta(ctx, "local:x", map[string]any{"v": 2.0}))

	require.NoError(t, s.RemoveItem(ctx, "local:x", storage.RemoveWithMeta()))

	meta, err := s.GetMeta(ctx, "local:x")
	require.NoError(t, err)
	assert.Empty(t, meta)
}

func TestBatchOperations(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	err := s.SetItems(ctx, map[string]any{
		"local:a":   1,
		"local:b":   2,
		"session:c": 3,
	})
	require.NoError(t, err)

	items, err := s.GetItems(ctx, "local:a", "local:b", "session:c", "sync:missing")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.JSONEq(t, "1", string(items["local:a"]))
	assert.JSONEq(t, "2", string(items["local:b"]))
	assert.JSONEq(t, "3", string(items["session:c"]))
	assert.NotContains(t, items, "sync:missing")

	require.NoError(t, s.RemoveItems(ctx, []string{"local:a", "session:c"}))

	items, err = s.GetItems(ctx, "local:a", "local:b", "session:c")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items, "local:b")
}

func TestBatchOperations_InvalidKeyFailsEagerly(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.GetItems(ctx, "local:a", "bogus")
	assert.ErrorIs(t, err, errors.ErrInvalidKey)

	err = s.SetItems(ctx, map[string]any{"bogus": 1})
	assert.ErrorIs(t, err, errors.ErrInvalidKey)
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.SetItem(ctx, "local:a", 1))
	require.NoError(t, s.SetItem(ctx, "local:b", "two"))
	require.NoError(t, s.SetMeta(ctx, "local:a", map[string]any{"v": 2.0}))
	require.NoError(t, s.SetItem(ctx, "session:other", true))

	snapshot, err := s.Snapshot(ctx, storage.AreaLocal)
	require.NoError(t, err)
	require.Len(t, snapshot, 2, "snapshot must exclude shadow metadata keys")
	assert.JSONEq(t, "1", string(snapshot["a"]))
	assert.JSONEq(t, `"two"`, string(snapshot["b"]))
}

func TestRestoreSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.SetItem(ctx, "local:keep", "old"))

	err := s.RestoreSnapshot(ctx, storage.AreaLocal, map[string]json.RawMessage{
		"a": json.RawMessage("1"),
		"b": json.RawMessage(`"two"`),
	})
	require.NoError(t, err)

	var number int
	found, err := s.GetItem(ctx, "local:a", &number)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, number)

	// Restore merges; entries outside the snapshot survive
	var kept string
	found, err = s.GetItem(ctx, "local:keep", &kept)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "old", kept)
}

func TestWithMetrics_CountsOperations(t *testing.T) {
	ctx := context.Background()
	registry := metric.NewMetricsRegistry()
	s := newTestStorage(t, storage.WithMetrics(registry, "test"))

	require.NoError(t, s.SetItem(ctx, "local:x", 1))
	var got int
	_, err := s.GetItem(ctx, "local:x", &got)
	require.NoError(t, err)
	require.NoError(t, s.RemoveItem(ctx, "local:x"))

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	byName := make(map[string]float64)
	for _, family := range families {
		for _, m := range family.GetMetric() {
			byName[family.GetName()] += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, byName["wxt_storage_reads_total"])
	assert.Equal(t, 1.0, byName["wxt_storage_writes_total"])
	assert.Equal(t, 1.0, byName["wxt_storage_removes_total"])
}

func TestWithMetrics_DuplicateInstanceRejected(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	newTestStorage(t, storage.WithMetrics(registry, "dup"))

	driver := memkv.New()
	defer driver.Close()
	_, err := storage.New(
		map[storage.Area]storage.Driver{storage.AreaLocal: driver},
		storage.WithMetrics(registry, "dup"),
	)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestRestoreSnapshot_Empty(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.RestoreSnapshot(ctx, storage.AreaLocal, nil))
}
