package stablestore

import (
	"slices"
	"sync"
)

const (
	scanBatchSize     = 64
	scanBatchMaxBytes = 1 << 20
)

// Entry is an element of a BTreeMap or UnboundedMap.
type Entry[K, V any] struct {
	Key   K
	Value V
}

// MultiEntry is an element of a full Multimap traversal.
type MultiEntry[K1, K2, V any] struct {
	FirstKey  K1
	SecondKey K2
	Value     V
}

type rawItem struct {
	k, v []byte
}

// Cursor is a lazy, forward-only sequence. Elements are decoded one at a
// time by Next. A cursor reflects the contents of the structure as of each
// underlying read, not a snapshot; create a new one to start over.
//
//	for c := m.Iter(); c.Next(); {
//		e := c.Item()
//		...
//	}
//	if err := c.Err(); err != nil { ... }
type Cursor[E any] struct {
	fetch  func() ([]rawItem, error)
	decode func(k, v []byte) (E, error)
	batch  []rawItem
	pos    int
	item   E
	err    error
	done   bool
}

func newCursor[E any](fetch func() ([]rawItem, error), decode func(k, v []byte) (E, error)) *Cursor[E] {
	return &Cursor[E]{fetch: fetch, decode: decode}
}

func errCursor[E any](err error) *Cursor[E] {
	return &Cursor[E]{err: err}
}

// Next advances to the next element and reports whether there is one.
// After it returns false, Err tells whether the sequence ended or failed.
func (c *Cursor[E]) Next() bool {
	if c.err != nil || c.done {
		return false
	}
	for c.pos >= len(c.batch) {
		batch, err := c.fetch()
		if err != nil {
			c.err = err
			return false
		}
		if len(batch) == 0 {
			c.done = true
			var zero E
			c.item = zero
			return false
		}
		c.batch, c.pos = batch, 0
	}
	it := c.batch[c.pos]
	c.batch[c.pos] = rawItem{}
	c.pos++
	c.item, c.err = c.decode(it.k, it.v)
	return c.err == nil
}

func (c *Cursor[E]) Item() E {
	return c.item
}

func (c *Cursor[E]) Err() error {
	return c.err
}

// All drains c.
func All[E any](c *Cursor[E]) ([]E, error) {
	var result []E
	for c.Next() {
		result = append(result, c.Item())
	}
	return result, c.Err()
}

// rawScanner reads a RawRange of a region in batches, each in its own short
// read transaction under the owning structure's lock, and resumes strictly
// after the last key it returned.
type rawScanner struct {
	region *orderedRegion
	lock   sync.Locker
	rang   RawRange

	// load, if set, produces the value to return for a record; it runs inside
	// the read transaction. Returning nil skips the record.
	load func(b *regionBucket, k, v []byte) ([]byte, error)

	last      []byte
	started   bool
	exhausted bool
}

func (s *rawScanner) next() ([]rawItem, error) {
	if s.exhausted {
		return nil, nil
	}
	s.lock.Lock()
	defer s.lock.Unlock()

	rang := s.rang
	if s.started {
		rang = rang.after(s.last)
	}

	var items []rawItem
	var size int
	err := s.region.view(func(b *regionBucket) error {
		c := rang.newCursor(b.cursor(), s.region.reg.logger)
		for len(items) < scanBatchSize && size < scanBatchMaxBytes && c.Next() {
			k := slices.Clone(c.Key())
			s.last, s.started = k, true
			var v []byte
			if s.load != nil {
				var err error
				v, err = s.load(b, k, c.Value())
				if err != nil {
					return err
				}
				if v == nil {
					continue
				}
			} else {
				v = slices.Clone(c.Value())
			}
			items = append(items, rawItem{k, v})
			size += len(k) + len(v)
		}
		if len(items) < scanBatchSize && size < scanBatchMaxBytes {
			s.exhausted = true
		}
		return nil
	})
	if err != nil {
		s.exhausted = true
		return nil, err
	}
	return items, nil
}
