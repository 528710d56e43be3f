package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leos/wxt/errors"
)

func TestResolveKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		wantArea Area
		wantBare string
		wantErr  bool
	}{
		{"local area", "local:counter", AreaLocal, "counter", false},
		{"session area", "session:token", AreaSession, "token", false},
		{"sync area", "sync:settings", AreaSync, "settings", false},
		{"managed area", "managed:policy", AreaManaged, "policy", false},
		{"bare key with colon", "local:a:b", AreaLocal, "a:b", false},
		{"empty bare key", "local:", AreaLocal, "", false},
		{"no separator", "counter", "", "", true},
		{"unknown area", "global:counter", "", "", true},
		{"empty area", ":counter", "", "", true},
		{"empty string", "", "", "", true},
		{"area name as bare key only", "local", "", "", true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			area, bareKey, err := ResolveKey(test.key)
			if test.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err), "resolve failure should classify as invalid")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.wantArea, area)
			assert.Equal(t, test.wantBare, bareKey)
		})
	}
}

func TestResolveKey_ErrorSentinels(t *testing.T) {
	_, _, err := ResolveKey("counter")
	assert.ErrorIs(t, err, errors.ErrInvalidKey)

	_, _, err = ResolveKey("global:counter")
	assert.ErrorIs(t, err, errors.ErrUnknownArea)
}

func TestAreaValid(t *testing.T) {
	for _, area := range Areas {
		assert.True(t, area.Valid(), "area %s should be valid", area)
	}
	assert.False(t, Area("global").Valid())
	assert.False(t, Area("").Valid())
}

func TestAreaKey(t *testing.T) {
	assert.Equal(t, "local:counter", AreaLocal.Key("counter"))

	// Round trip through ResolveKey
	area, bareKey, err := ResolveKey(AreaSync.Key("settings"))
	require.NoError(t, err)
	assert.Equal(t, AreaSync, area)
	assert.Equal(t, "settings", bareKey)
}

func TestMetaKey(t *testing.T) {
	assert.Equal(t, "counter$", MetaKey("counter"))
	assert.True(t, IsMetaKey("counter$"))
	assert.False(t, IsMetaKey("counter"))
}
