package stablestore

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Every record of a map region starts with a tag byte. Besides separating
// UnboundedMap directory records from chunks, it keeps keys non-empty even
// when a key type encodes to nothing.
const (
	recordTagEntry byte = 0x00
	recordTagChunk byte = 0x01
)

var entryRecords = RawPrefix([]byte{recordTagEntry})

// BTreeMap is an ordered map of bounded keys to bounded values, iterated
// in the byte order of the encoded keys.
type BTreeMap[K, V any, PK BoundedStorable[K], PV BoundedStorable[V]] struct {
	mu     sync.Mutex
	region *orderedRegion
	key    Bound
	value  Bound
}

func NewBTreeMap[K, V any, PK BoundedStorable[K], PV BoundedStorable[V]](reg *Registry, id MemoryID) (*BTreeMap[K, V, PK, PV], error) {
	key, value := boundOf[K, PK](), boundOf[V, PV]()
	if uint64(key.MaxSize)+1 > maxStorageKeySize {
		return nil, regionErrf(id, kindBTreeMap, nil, fmt.Errorf("keys can reach %d bytes, storage keys are limited to %d", key.MaxSize, maxStorageKeySize-1), "invalid key type")
	}
	region, err := bindOrderedRegion(reg, id, regionSpec{
		Kind:     kindBTreeMap,
		KeyMax:   key.MaxSize,
		ValueMax: value.MaxSize,
	})
	if err != nil {
		return nil, err
	}
	return &BTreeMap[K, V, PK, PV]{region: region, key: key, value: value}, nil
}

// encodeKey returns the tagged key from the key pool.
func (m *BTreeMap[K, V, PK, PV]) encodeKey(k *K) ([]byte, error) {
	buf := appendByte(getKeyBytes(), recordTagEntry)
	return encodeBounded[K, PK](buf, "key", k, m.key)
}

func (m *BTreeMap[K, V, PK, PV]) Get(k K) (V, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero V
	key, err := m.encodeKey(&k)
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

func (m *BTreeMap[K, V, PK, PV]) ContainsKey(k K) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := m.encodeKey(&k)
	if err != nil {
		return false, err
	}
	defer releaseKeyBytes(key)

	var found bool
	err = m.region.view(func(b *regionBucket) error {
		_, found = b.lookup(key)
		return nil
	})
	return found, err
}

// Insert stores v under k, replacing any previous value. Unlike
// Multimap.Insert, it does not return the replaced value.
func (m *BTreeMap[K, V, PK, PV]) Insert(k K, v V) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := m.encodeKey(&k)
	if err != nil {
		return err
	}
	defer releaseKeyBytes(key)
	val, err := encodeBounded[V, PV](nil, "value", &v, m.value)
	if err != nil {
		return err
	}

	var found bool
	err = m.region.update(func(b *regionBucket) error {
		var err error
		_, found, err = b.put(key, val, true)
		return err
	})
	if err == nil {
		m.logOp("INSERT", key, found)
	}
	return err
}

func (m *BTreeMap[K, V, PK, PV]) Remove(k K) (V, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero V
	key, err := m.encodeKey(&k)
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
	m.logOp("REMOVE", key, true)
	v, err := decodeStable[V, PV](old)
	return v, true, err
}

func (m *BTreeMap[K, V, PK, PV]) Len() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n uint64
	err := m.region.view(func(b *regionBucket) error {
		n = b.entries()
		return nil
	})
	return n, err
}

func (m *BTreeMap[K, V, PK, PV]) IsEmpty() (bool, error) {
	n, err := m.Len()
	return n == 0, err
}

// Iter iterates over all entries in ascending key order.
func (m *BTreeMap[K, V, PK, PV]) Iter() *Cursor[Entry[K, V]] {
	return m.scan(entryRecords)
}

func (m *BTreeMap[K, V, PK, PV]) IterReverse() *Cursor[Entry[K, V]] {
	return m.scan(entryRecords.Reversed())
}

func (m *BTreeMap[K, V, PK, PV]) scan(rang RawRange) *Cursor[Entry[K, V]] {
	s := &rawScanner{region: m.region, lock: &m.mu, rang: rang}
	return newCursor(s.next, func(k, v []byte) (Entry[K, V], error) {
		var e Entry[K, V]
		var err error
		if e.Key, err = decodeStable[K, PK](k[1:]); err != nil {
			return e, err
		}
		e.Value, err = decodeStable[V, PV](v)
		return e, err
	})
}

func (m *BTreeMap[K, V, PK, PV]) logOp(op string, key []byte, existed bool) {
	if reg := m.region.reg; reg.verbose {
		reg.logDebug("stablestore: "+op, slog.Int("region", int(m.region.id)), hexAttr("key", key[1:]), slog.Bool("existed", existed))
	}
}
