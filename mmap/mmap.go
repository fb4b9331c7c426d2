// Package mmap maps whole files into memory as shared, growable regions.
package mmap

// Options controls how a Region is opened and mapped.
type Options uint

const (
	// Writable maps the file read-write, creating it if necessary.
	Writable Options = 1 << iota

	// SequentialAccess requests aggressive read-ahead (MADV_SEQUENTIAL).
	SequentialAccess

	// RandomAccess turns most read-ahead off (MADV_RANDOM). SequentialAccess
	// wins if both are set.
	RandomAccess

	// Prefault populates the whole mapping up front (MAP_POPULATE, Linux only).
	Prefault
)

func (o Options) Has(v Options) bool {
	return o&v == v
}
