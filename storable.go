package stablestore

import "errors"

// Bound describes the largest encoding a type can produce. FixedSize
// means every value encodes to exactly MaxSize bytes.
type Bound struct {
	MaxSize   uint32
	FixedSize bool
}

// Storable is implemented by pointers to types that can be kept in stable
// memory. MarshalStable appends the encoding of the value to buf.
// UnmarshalStable must accept exactly what MarshalStable produces.
//
// The encoding defines the order of keys: maps and multimaps iterate in
// byte-lexicographic order of the encoded keys.
type Storable[T any] interface {
	*T
	MarshalStable(buf []byte) []byte
	UnmarshalStable(data []byte) error
}

// BoundedStorable is a Storable with a statically known maximum size.
// StableBound must not depend on the receiver's value; it is called on
// a pointer to the zero value.
type BoundedStorable[T any] interface {
	Storable[T]
	StableBound() Bound
}

// SlicedStorable is optionally implemented by values stored in an
// UnboundedMap to pick the size of the chunks they are split into.
type SlicedStorable interface {
	StableChunkSize() int
}

// StableEncoder is optionally implemented by storables whose encoding can
// fail. If present, EncodeStable is used instead of MarshalStable and its
// error is returned by the operation that stores the value.
type StableEncoder interface {
	EncodeStable(buf []byte) ([]byte, error)
}

func boundOf[T any, PT BoundedStorable[T]]() Bound {
	return PT(new(T)).StableBound()
}

func encodeStable[T any, PT Storable[T]](buf []byte, v *T) ([]byte, error) {
	if enc, ok := any(PT(v)).(StableEncoder); ok {
		return enc.EncodeStable(buf)
	}
	return PT(v).MarshalStable(buf), nil
}

func encodeBounded[T any, PT BoundedStorable[T]](buf []byte, what string, v *T, b Bound) ([]byte, error) {
	off := len(buf)
	buf, err := encodeStable[T, PT](buf, v)
	if err != nil {
		return buf[:off], err
	}
	if err := checkBound(what, buf[off:], b); err != nil {
		return buf[:off], err
	}
	return buf, nil
}

func decodeStable[T any, PT Storable[T]](data []byte) (T, error) {
	var v T
	err := PT(&v).UnmarshalStable(data)
	if err != nil {
		var de *DataError
		if !errors.As(err, &de) {
			err = dataErrf(data, 0, err, "failed to decode %T", v)
		}
		return v, err
	}
	return v, nil
}
