package stablestore

import (
	"encoding/binary"
	"fmt"
)

// keyPairLayout packs two bounded keys into one ordered map key:
//
//	[size prefix][first key][second key]
//
// The size prefix holds the length of the encoded first key, big-endian, in
// 1, 2 or 4 bytes depending on the first key's maximum size. Packed keys
// therefore order by (len(first), first, second), and two different first
// keys never produce the same packed key.
type keyPairLayout struct {
	first       Bound
	second      Bound
	prefixWidth int
	maxSize     int
}

func newKeyPairLayout(first, second Bound) (keyPairLayout, error) {
	l := keyPairLayout{
		first:       first,
		second:      second,
		prefixWidth: sizePrefixWidth(first.MaxSize),
	}
	max := uint64(l.prefixWidth) + uint64(first.MaxSize) + uint64(second.MaxSize)
	if max > maxStorageKeySize {
		return l, fmt.Errorf("composite key can reach %d bytes, storage keys are limited to %d", max, maxStorageKeySize)
	}
	l.maxSize = int(max)
	return l, nil
}

func sizePrefixWidth(max uint32) int {
	switch {
	case max <= 0xFF:
		return 1
	case max <= 0xFFFF:
		return 2
	default:
		return 4
	}
}

func (l keyPairLayout) appendPrefix(buf []byte, n int) []byte {
	switch l.prefixWidth {
	case 1:
		return appendByte(buf, byte(n))
	case 2:
		return appendUint16(buf, uint16(n))
	default:
		return appendUint32(buf, uint32(n))
	}
}

// appendMinKey appends the smallest packed key whose first component is k1.
func (l keyPairLayout) appendMinKey(buf, k1 []byte) []byte {
	buf = l.appendPrefix(buf, len(k1))
	return appendRaw(buf, k1)
}

// appendMaxKey appends a key that sorts after every packed key whose first
// component is k1: the min key padded with 0xFF to the maximum packed size.
func (l keyPairLayout) appendMaxKey(buf, k1 []byte) []byte {
	off := len(buf)
	buf = l.appendMinKey(buf, k1)
	return appendFill(buf, 0xFF, l.maxSize-(len(buf)-off))
}

func (l keyPairLayout) appendKey(buf, k1, k2 []byte) []byte {
	buf = l.appendMinKey(buf, k1)
	return appendRaw(buf, k2)
}

// split returns the encoded components of a packed key.
func (l keyPairLayout) split(key []byte) (k1, k2 []byte, err error) {
	if len(key) < l.prefixWidth {
		return nil, nil, dataErrf(key, 0, nil, "packed key shorter than its size prefix")
	}
	var n uint64
	switch l.prefixWidth {
	case 1:
		n = uint64(key[0])
	case 2:
		n = uint64(binary.BigEndian.Uint16(key))
	default:
		n = uint64(binary.BigEndian.Uint32(key))
	}
	rest := key[l.prefixWidth:]
	if n > uint64(len(rest)) {
		return nil, nil, dataErrf(key, 0, nil, "size prefix %d exceeds packed key", n)
	}
	return rest[:n], rest[n:], nil
}
