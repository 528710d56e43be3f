package natskv

import (
	"fmt"
	"strings"
)

// NATS KV keys are restricted to [A-Za-z0-9_/=.-], so bare keys (notably the
// "$"-suffixed shadow metadata keys) are escaped on the way in and restored
// on the way out. "=" serves as the escape lead and is therefore always
// escaped itself: "=XX" with two uppercase hex digits.

func safeKeyByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '_' || b == '/' || b == '.' || b == '-':
		return true
	default:
		return false
	}
}

// encodeKey maps an arbitrary bare key onto the NATS KV key alphabet.
func encodeKey(key string) string {
	var sb strings.Builder
	for i := 0; i < len(key); i++ {
		b := key[i]
		if safeKeyByte(b) {
			sb.WriteByte(b)
			continue
		}
		fmt.Fprintf(&sb, "=%02X", b)
	}
	return sb.String()
}

// decodeKey reverses encodeKey. Malformed escapes pass through unchanged so a
// foreign key in a shared bucket cannot break the watch stream.
func decodeKey(encoded string) string {
	if !strings.ContainsRune(encoded, '=') {
		return encoded
	}

	var sb strings.Builder
	for i := 0; i < len(encoded); i++ {
		b := encoded[i]
		if b == '=' && i+2 < len(encoded) {
			if hi, ok := unhex(encoded[i+1]); ok {
				if lo, ok := unhex(encoded[i+2]); ok {
					sb.WriteByte(hi<<4 | lo)
					i += 2
					continue
				}
			}
		}
		sb.WriteByte(b)
	}
	return sb.String()
}

func unhex(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	default:
		return 0, false
	}
}
