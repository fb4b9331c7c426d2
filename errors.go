package stablestore

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValueTooLarge is wrapped by every *CapacityError.
	ErrValueTooLarge = errors.New("value exceeds declared maximum size")

	// ErrOutOfMemory means a region could not grow, or a map exceeded its
	// byte budget. Operations that fail with it have no effect.
	ErrOutOfMemory = errors.New("stable memory exhausted")

	ErrRegionInUse    = errors.New("memory region already bound")
	ErrKindMismatch   = errors.New("memory region holds a different structure")
	ErrLayoutMismatch = errors.New("memory region layout changed")
	ErrSameRegion     = errors.New("index and data regions must differ")
	ErrClosed         = errors.New("registry closed")
	ErrOutOfBounds    = errors.New("access past the end of memory region")
)

// CapacityError reports an encoded key or value larger than its type's bound.
type CapacityError struct {
	What string
	Size int
	Max  uint32
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s is %d bytes, max %d: %v", e.What, e.Size, e.Max, ErrValueTooLarge)
}

func (e *CapacityError) Unwrap() error {
	return ErrValueTooLarge
}

func checkBound(what string, data []byte, b Bound) error {
	if uint64(len(data)) > uint64(b.MaxSize) {
		return &CapacityError{What: what, Size: len(data), Max: b.MaxSize}
	}
	if b.FixedSize && len(data) != int(b.MaxSize) {
		return fmt.Errorf("%s: fixed-size encoding produced %d bytes instead of %d", what, len(data), b.MaxSize)
	}
	return nil
}

type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

// RegionError attributes a failure to a memory region and, optionally, a key.
type RegionError struct {
	Region MemoryID
	Kind   regionKind
	Key    []byte
	Msg    string
	Err    error
}

func regionErrf(id MemoryID, kind regionKind, key []byte, err error, format string, args ...any) error {
	return &RegionError{id, kind, key, fmt.Sprintf(format, args...), err}
}

func (e *RegionError) Unwrap() error {
	return e.Err
}

func (e *RegionError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Kind.String())
	buf.WriteByte('#')
	fmt.Fprintf(&buf, "%d", e.Region)
	if e.Key != nil {
		buf.WriteByte('/')
		buf.WriteString(hexstr(e.Key))
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
		if e.Err != nil {
			buf.WriteString(": ")
			buf.WriteString(e.Err.Error())
		}
	} else if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}
