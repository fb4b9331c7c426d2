package stablestore

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Uint8, Uint16, Uint32 and Uint64 are fixed-size big-endian integers, so
// their byte order matches numeric order.
type (
	Uint8  uint8
	Uint16 uint16
	Uint32 uint32
	Uint64 uint64
)

func (v Uint8) MarshalStable(buf []byte) []byte { return appendByte(buf, byte(v)) }
func (v Uint8) StableBound() Bound              { return Bound{MaxSize: 1, FixedSize: true} }
func (v *Uint8) UnmarshalStable(data []byte) error {
	if len(data) != 1 {
		return dataErrf(data, 0, nil, "Uint8: wanted 1 byte")
	}
	*v = Uint8(data[0])
	return nil
}

func (v Uint16) MarshalStable(buf []byte) []byte { return appendUint16(buf, uint16(v)) }
func (v Uint16) StableBound() Bound              { return Bound{MaxSize: 2, FixedSize: true} }
func (v *Uint16) UnmarshalStable(data []byte) error {
	if len(data) != 2 {
		return dataErrf(data, 0, nil, "Uint16: wanted 2 bytes")
	}
	*v = Uint16(binary.BigEndian.Uint16(data))
	return nil
}

func (v Uint32) MarshalStable(buf []byte) []byte { return appendUint32(buf, uint32(v)) }
func (v Uint32) StableBound() Bound              { return Bound{MaxSize: 4, FixedSize: true} }
func (v *Uint32) UnmarshalStable(data []byte) error {
	if len(data) != 4 {
		return dataErrf(data, 0, nil, "Uint32: wanted 4 bytes")
	}
	*v = Uint32(binary.BigEndian.Uint32(data))
	return nil
}

func (v Uint64) MarshalStable(buf []byte) []byte { return appendUint64(buf, uint64(v)) }
func (v Uint64) StableBound() Bound              { return Bound{MaxSize: 8, FixedSize: true} }
func (v *Uint64) UnmarshalStable(data []byte) error {
	if len(data) != 8 {
		return dataErrf(data, 0, nil, "Uint64: wanted 8 bytes")
	}
	*v = Uint64(binary.BigEndian.Uint64(data))
	return nil
}

// Int64 flips the sign bit so that negative numbers sort first.
type Int64 int64

func (v Int64) MarshalStable(buf []byte) []byte {
	return appendUint64(buf, uint64(v)^(1<<63))
}
func (v Int64) StableBound() Bound { return Bound{MaxSize: 8, FixedSize: true} }
func (v *Int64) UnmarshalStable(data []byte) error {
	if len(data) != 8 {
		return dataErrf(data, 0, nil, "Int64: wanted 8 bytes")
	}
	*v = Int64(binary.BigEndian.Uint64(data) ^ (1 << 63))
	return nil
}

// Float64 is encoded so that byte order matches numeric order (NaNs last).
type Float64 float64

func (v Float64) MarshalStable(buf []byte) []byte {
	bits := math.Float64bits(float64(v))
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return appendUint64(buf, bits)
}
func (v Float64) StableBound() Bound { return Bound{MaxSize: 8, FixedSize: true} }
func (v *Float64) UnmarshalStable(data []byte) error {
	if len(data) != 8 {
		return dataErrf(data, 0, nil, "Float64: wanted 8 bytes")
	}
	bits := binary.BigEndian.Uint64(data)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	*v = Float64(math.Float64frombits(bits))
	return nil
}

// Hash is a 32-byte digest.
type Hash [32]byte

func (h Hash) MarshalStable(buf []byte) []byte { return appendRaw(buf, h[:]) }
func (h Hash) StableBound() Bound              { return Bound{MaxSize: 32, FixedSize: true} }
func (h *Hash) UnmarshalStable(data []byte) error {
	if len(data) != len(h) {
		return dataErrf(data, 0, nil, "Hash: wanted %d bytes", len(h))
	}
	copy(h[:], data)
	return nil
}

func (h Hash) String() string { return hexstr(h[:]) }

// MaxPrincipalSize is the largest encoded Principal.
const MaxPrincipalSize = 29

// Principal is an opaque identity of up to MaxPrincipalSize bytes.
type Principal []byte

func (p Principal) MarshalStable(buf []byte) []byte { return appendRaw(buf, p) }
func (p Principal) StableBound() Bound              { return Bound{MaxSize: MaxPrincipalSize} }
func (p *Principal) UnmarshalStable(data []byte) error {
	if len(data) > MaxPrincipalSize {
		return dataErrf(data, 0, nil, "Principal: longer than %d bytes", MaxPrincipalSize)
	}
	*p = append(Principal{}, data...)
	return nil
}

func (p Principal) String() string { return hexstr(p) }

// Blob is an unbounded byte string.
type Blob []byte

func (b Blob) MarshalStable(buf []byte) []byte { return appendRaw(buf, b) }
func (b *Blob) UnmarshalStable(data []byte) error {
	*b = append(Blob{}, data...)
	return nil
}

// Text is an unbounded UTF-8 string; it is not validated.
type Text string

func (s Text) MarshalStable(buf []byte) []byte { return append(buf, string(s)...) }
func (s *Text) UnmarshalStable(data []byte) error {
	*s = Text(data)
	return nil
}

// MsgPack stores any msgpack-serializable value. It is unbounded, and its
// byte order carries no meaning, so it's only suitable for values.
type MsgPack[T any] struct {
	V T
}

// MarshalStable panics if V cannot be encoded. Stored values go through
// EncodeStable, which reports that as an error.
func (m MsgPack[T]) MarshalStable(buf []byte) []byte {
	return must(m.EncodeStable(buf))
}

func (m MsgPack[T]) EncodeStable(buf []byte) ([]byte, error) {
	return appendMsgPack(buf, m.V)
}

func (m *MsgPack[T]) UnmarshalStable(data []byte) error {
	return decodeMsgPack(data, &m.V)
}

func (m MsgPack[T]) String() string {
	return fmt.Sprint(m.V)
}
