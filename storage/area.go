package storage

import (
	"fmt"
	"strings"

	"github.com/leos/wxt/errors"
)

// Area identifies one isolated namespace within the host key-value store.
// Each area has independent visibility and persistence rules.
type Area string

// Recognized storage areas
const (
	AreaLocal   Area = "local"
	AreaSession Area = "session"
	AreaSync    Area = "sync"
	AreaManaged Area = "managed"
)

// Areas lists every recognized area in a stable order.
var Areas = []Area{AreaLocal, AreaSession, AreaSync, AreaManaged}

// Valid reports whether a is a recognized storage area.
func (a Area) Valid() bool {
	switch a {
	case AreaLocal, AreaSession, AreaSync, AreaManaged:
		return true
	default:
		return false
	}
}

// Key joins the area with a bare key, producing the namespaced form.
func (a Area) Key(bareKey string) string {
	return string(a) + ":" + bareKey
}

// ResolveKey parses a namespaced key of the form "<area>:<bareKey>" into its
// area and bare key. It is a pure function with no side effects and runs
// before any driver access. A missing separator, an empty area, or an
// unrecognized area fails with errors.ErrInvalidKey; there is no silent
// default area.
func ResolveKey(namespacedKey string) (Area, string, error) {
	area, bareKey, found := strings.Cut(namespacedKey, ":")
	if !found {
		return "", "", errors.WrapInvalid(
			fmt.Errorf("%w: %q has no area prefix", errors.ErrInvalidKey, namespacedKey),
			"Storage", "ResolveKey", "parse namespaced key")
	}

	if !Area(area).Valid() {
		return "", "", errors.WrapInvalid(
			fmt.Errorf("%w: %q in %q", errors.ErrUnknownArea, area, namespacedKey),
			"Storage", "ResolveKey", "validate area prefix")
	}

	return Area(area), bareKey, nil
}
