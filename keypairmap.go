package stablestore

import (
	"slices"
	"sync"
)

// keyPairMap stores values under (first key, second key) pairs packed by a
// keyPairLayout. It does no locking of its own.
type keyPairMap[K1, K2, V any, PK1 BoundedStorable[K1], PK2 BoundedStorable[K2], PV BoundedStorable[V]] struct {
	region *orderedRegion
	layout keyPairLayout
	value  Bound
}

func newKeyPairMap[K1, K2, V any, PK1 BoundedStorable[K1], PK2 BoundedStorable[K2], PV BoundedStorable[V]](reg *Registry, id MemoryID, kind regionKind) (*keyPairMap[K1, K2, V, PK1, PK2, PV], error) {
	layout, err := newKeyPairLayout(boundOf[K1, PK1](), boundOf[K2, PK2]())
	if err != nil {
		return nil, regionErrf(id, kind, nil, err, "invalid key types")
	}
	value := boundOf[V, PV]()
	region, err := bindOrderedRegion(reg, id, regionSpec{
		Kind:        kind,
		KeyMax:      uint32(layout.maxSize),
		ValueMax:    value.MaxSize,
		PrefixWidth: layout.prefixWidth,
	})
	if err != nil {
		return nil, err
	}
	return &keyPairMap[K1, K2, V, PK1, PK2, PV]{
		region: region,
		layout: layout,
		value:  value,
	}, nil
}

func (m *keyPairMap[K1, K2, V, PK1, PK2, PV]) encodeFirst(buf []byte, k1 *K1) ([]byte, error) {
	return encodeBounded[K1, PK1](buf, "first key", k1, m.layout.first)
}

// packKey returns the packed key from the key pool; release it with
// releaseKeyBytes.
func (m *keyPairMap[K1, K2, V, PK1, PK2, PV]) packKey(k1 *K1, k2 *K2) ([]byte, error) {
	enc := getKeyBytes()
	defer func() { releaseKeyBytes(enc) }()
	enc, err := m.encodeFirst(enc, k1)
	if err != nil {
		return nil, err
	}
	n1 := len(enc)
	enc, err = encodeBounded[K2, PK2](enc, "second key", k2, m.layout.second)
	if err != nil {
		return nil, err
	}
	return m.layout.appendKey(getKeyBytes(), enc[:n1], enc[n1:]), nil
}

// bounds returns the inclusive range of packed keys whose first component is k1.
func (m *keyPairMap[K1, K2, V, PK1, PK2, PV]) bounds(k1 *K1) (RawRange, error) {
	enc, err := m.encodeFirst(nil, k1)
	if err != nil {
		return RawRange{}, err
	}
	return RawII(m.layout.appendMinKey(nil, enc), m.layout.appendMaxKey(nil, enc)), nil
}

func (m *keyPairMap[K1, K2, V, PK1, PK2, PV]) insert(k1 K1, k2 K2, v V) (V, bool, error) {
	var zero V
	key, err := m.packKey(&k1, &k2)
	if err != nil {
		return zero, false, err
	}
	defer releaseKeyBytes(key)
	val, err := encodeBounded[V, PV](nil, "value", &v, m.value)
	if err != nil {
		return zero, false, err
	}

	var old []byte
	var found bool
	err = m.region.update(func(b *regionBucket) error {
		var err error
		old, found, err = b.put(key, val, true)
		return err
	})
	if err != nil || !found {
		return zero, false, err
	}
	prev, err := decodeStable[V, PV](old)
	return prev, true, err
}

func (m *keyPairMap[K1, K2, V, PK1, PK2, PV]) get(k1 K1, k2 K2) (V, bool, error) {
	var zero V
	key, err := m.packKey(&k1, &k2)
	if err != nil {
		return zero, false, err
	}
	defer releaseKeyBytes(key)

	var raw []byte
	var found bool
	err = m.region.view(func(b *regionBucket) error {
		raw, found = b.lookup(key)
		raw = slices.Clone(raw)
		return nil
	})
	if err != nil || !found {
		return zero, false, err
	}
	v, err := decodeStable[V, PV](raw)
	return v, true, err
}

func (m *keyPairMap[K1, K2, V, PK1, PK2, PV]) remove(k1 K1, k2 K2) (V, bool, error) {
	var zero V
	key, err := m.packKey(&k1, &k2)
	if err != nil {
		return zero, false, err
	}
	defer releaseKeyBytes(key)

	var old []byte
	var found bool
	err = m.region.update(func(b *regionBucket) error {
		var err error
		old, found, err = b.delete(key, true)
		return err
	})
	if err != nil || !found {
		return zero, false, err
	}
	prev, err := decodeStable[V, PV](old)
	return prev, true, err
}

// removeRange deletes every key in rang, scanBatchSize keys per transaction.
// Batches that already committed stay removed if a later one fails.
func (m *keyPairMap[K1, K2, V, PK1, PK2, PV]) removeRange(rang RawRange) (int, error) {
	var total int
	for {
		var n int
		err := m.region.update(func(b *regionBucket) error {
			keys := make([][]byte, 0, scanBatchSize)
			c := rang.newCursor(b.cursor(), m.region.reg.logger)
			for len(keys) < scanBatchSize && c.Next() {
				keys = append(keys, slices.Clone(c.Key()))
			}
			for _, k := range keys {
				if _, _, err := b.delete(k, true); err != nil {
					return err
				}
			}
			n = len(keys)
			return nil
		})
		if err != nil {
			return total, err
		}
		total += n
		if n < scanBatchSize {
			return total, nil
		}
	}
}

func (m *keyPairMap[K1, K2, V, PK1, PK2, PV]) removePartial(k1 K1) (int, error) {
	rang, err := m.bounds(&k1)
	if err != nil {
		return 0, err
	}
	return m.removeRange(rang)
}

func (m *keyPairMap[K1, K2, V, PK1, PK2, PV]) clear() (int, error) {
	return m.removeRange(RawOO())
}

func (m *keyPairMap[K1, K2, V, PK1, PK2, PV]) len() (uint64, error) {
	var n uint64
	err := m.region.view(func(b *regionBucket) error {
		n = b.entries()
		return nil
	})
	return n, err
}

func (m *keyPairMap[K1, K2, V, PK1, PK2, PV]) rangeCursor(lock sync.Locker, k1 K1, reverse bool) *Cursor[Entry[K2, V]] {
	rang, err := m.bounds(&k1)
	if err != nil {
		return errCursor[Entry[K2, V]](err)
	}
	if reverse {
		rang = rang.Reversed()
	}
	s := &rawScanner{region: m.region, lock: lock, rang: rang}
	return newCursor(s.next, func(k, v []byte) (Entry[K2, V], error) {
		var e Entry[K2, V]
		_, enc2, err := m.layout.split(k)
		if err != nil {
			return e, err
		}
		if e.Key, err = decodeStable[K2, PK2](enc2); err != nil {
			return e, err
		}
		e.Value, err = decodeStable[V, PV](v)
		return e, err
	})
}

func (m *keyPairMap[K1, K2, V, PK1, PK2, PV]) iterCursor(lock sync.Locker) *Cursor[MultiEntry[K1, K2, V]] {
	s := &rawScanner{region: m.region, lock: lock, rang: RawOO()}
	return newCursor(s.next, func(k, v []byte) (MultiEntry[K1, K2, V], error) {
		var e MultiEntry[K1, K2, V]
		enc1, enc2, err := m.layout.split(k)
		if err != nil {
			return e, err
		}
		if e.FirstKey, err = decodeStable[K1, PK1](enc1); err != nil {
			return e, err
		}
		if e.SecondKey, err = decodeStable[K2, PK2](enc2); err != nil {
			return e, err
		}
		e.Value, err = decodeStable[V, PV](v)
		return e, err
	})
}
