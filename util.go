package stablestore

import (
	"encoding/hex"
	"log/slog"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// inc turns data into the smallest byte string of the same length that sorts
// after it. Returns false, leaving data all zeros, if data is all 0xFF.
func inc(data []byte) bool {
	for i := len(data) - 1; i >= 0; i-- {
		data[i]++
		if data[i] != 0 {
			return true
		}
	}
	return false
}

// hexBytes formats as hexstr in fmt verbs.
type hexBytes []byte

func (b hexBytes) String() string { return hexstr(b) }

// hexstr distinguishes nil from empty, which matters for storage values.
func hexstr(b []byte) string {
	switch {
	case b == nil:
		return "<nil>"
	case len(b) == 0:
		return "<empty>"
	default:
		return hex.EncodeToString(b)
	}
}

func hexAttr(key string, b []byte) slog.Attr {
	return slog.String(key, hexstr(b))
}
