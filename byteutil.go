package stablestore

import (
	"encoding/binary"
	"io"
	"slices"
)

// Big-endian append helpers. All fixed-width integers in keys and record
// headers are big-endian so they sort numerically.

func appendRaw(buf, chunk []byte) []byte  { return append(buf, chunk...) }
func appendByte(buf []byte, v byte) []byte { return append(buf, v) }

func appendUint16(buf []byte, v uint16) []byte { return binary.BigEndian.AppendUint16(buf, v) }
func appendUint32(buf []byte, v uint32) []byte { return binary.BigEndian.AppendUint32(buf, v) }
func appendUint64(buf []byte, v uint64) []byte { return binary.BigEndian.AppendUint64(buf, v) }

// appendFill appends n copies of v.
func appendFill(buf []byte, v byte, n int) []byte {
	buf = slices.Grow(buf, n)
	for range n {
		buf = append(buf, v)
	}
	return buf
}

// bytesBuilder lets stream encoders append to an existing buffer.
type bytesBuilder struct {
	Buf []byte
}

var _ io.ByteWriter = (*bytesBuilder)(nil)

func (bb *bytesBuilder) Write(b []byte) (int, error) {
	bb.Buf = append(bb.Buf, b...)
	return len(b), nil
}

func (bb *bytesBuilder) WriteByte(v byte) error {
	bb.Buf = append(bb.Buf, v)
	return nil
}

// byteDecoder consumes a buffer front to back. Running out of data yields
// a *DataError pointing at the offending offset.
type byteDecoder struct {
	Orig []byte
	Buf  []byte
}

func makeByteDecoder(buf []byte) byteDecoder {
	return byteDecoder{Orig: buf, Buf: buf}
}

func (d *byteDecoder) Off() int { return len(d.Orig) - len(d.Buf) }

func (d *byteDecoder) Raw(n int) ([]byte, error) {
	if n > len(d.Buf) {
		return nil, dataErrf(d.Orig, d.Off(), nil, "truncated: need %d bytes, have %d", n, len(d.Buf))
	}
	v := d.Buf[:n:n]
	d.Buf = d.Buf[n:]
	return v, nil
}

func (d *byteDecoder) Byte() (byte, error) {
	b, err := d.Raw(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *byteDecoder) Uint16() (uint16, error) {
	b, err := d.Raw(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *byteDecoder) Uint32() (uint32, error) {
	b, err := d.Raw(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *byteDecoder) Uint64() (uint64, error) {
	b, err := d.Raw(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// Done fails if any input is left over.
func (d *byteDecoder) Done() error {
	if n := len(d.Buf); n != 0 {
		return dataErrf(d.Orig, d.Off(), nil, "%d trailing bytes", n)
	}
	return nil
}
