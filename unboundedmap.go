package stablestore

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultChunkSize is the size of the chunks UnboundedMap splits values into,
// unless the value implements SlicedStorable.
const DefaultChunkSize = 4096

// An UnboundedMap region holds two kinds of records:
//
//	0x00 key                     -> directory: length:64 chunks:32 checksum:64
//	0x01 keyPair(key, index:32)  -> chunk bytes
//
// All integers are big-endian; checksum is xxhash64 of the whole value.
const unboundedDirSize = 8 + 4 + 8

type unboundedDir struct {
	Length   uint64
	Chunks   uint32
	Checksum uint64
}

func (d unboundedDir) append(buf []byte) []byte {
	buf = appendUint64(buf, d.Length)
	buf = appendUint32(buf, d.Chunks)
	return appendUint64(buf, d.Checksum)
}

func decodeUnboundedDir(data []byte) (unboundedDir, error) {
	var d unboundedDir
	var err error
	dec := makeByteDecoder(data)
	if d.Length, err = dec.Uint64(); err != nil {
		return d, err
	}
	if d.Chunks, err = dec.Uint32(); err != nil {
		return d, err
	}
	if d.Checksum, err = dec.Uint64(); err != nil {
		return d, err
	}
	return d, dec.Done()
}

// UnboundedMap maps bounded keys to values of any size. Values are split
// into chunks stored as separate records next to a small directory record.
type UnboundedMap[K, V any, PK BoundedStorable[K], PV Storable[V]] struct {
	mu     sync.Mutex
	region *orderedRegion
	key    Bound
	chunks keyPairLayout
}

func NewUnboundedMap[K, V any, PK BoundedStorable[K], PV Storable[V]](reg *Registry, id MemoryID) (*UnboundedMap[K, V, PK, PV], error) {
	key := boundOf[K, PK]()
	chunks, err := newKeyPairLayout(key, Uint32(0).StableBound())
	if err == nil && chunks.maxSize+1 > maxStorageKeySize {
		err = fmt.Errorf("chunk keys can reach %d bytes, storage keys are limited to %d", chunks.maxSize+1, maxStorageKeySize)
	}
	if err != nil {
		return nil, regionErrf(id, kindUnboundedMap, nil, err, "invalid key type")
	}
	region, err := bindOrderedRegion(reg, id, regionSpec{
		Kind:        kindUnboundedMap,
		KeyMax:      key.MaxSize,
		PrefixWidth: chunks.prefixWidth,
	})
	if err != nil {
		return nil, err
	}
	return &UnboundedMap[K, V, PK, PV]{region: region, key: key, chunks: chunks}, nil
}

func (m *UnboundedMap[K, V, PK, PV]) encodeKey(k *K) ([]byte, error) {
	return encodeBounded[K, PK](getKeyBytes(), "key", k, m.key)
}

func (m *UnboundedMap[K, V, PK, PV]) appendDirKey(buf, enc []byte) []byte {
	buf = appendByte(buf, recordTagEntry)
	return appendRaw(buf, enc)
}

func (m *UnboundedMap[K, V, PK, PV]) appendChunkKey(buf, enc []byte, i uint32) []byte {
	buf = appendByte(buf, recordTagChunk)
	buf = m.chunks.appendMinKey(buf, enc)
	return appendUint32(buf, i)
}

func chunkSizeOf[V any, PV Storable[V]](v *V) int {
	if s, ok := any(PV(v)).(SlicedStorable); ok {
		if n := s.StableChunkSize(); n > 0 {
			return n
		}
	}
	return DefaultChunkSize
}

// assemble reads and verifies the chunks of the value described by dir.
func (m *UnboundedMap[K, V, PK, PV]) assemble(b *regionBucket, enc []byte, dir unboundedDir) ([]byte, error) {
	key := getKeyBytes()
	defer func() { releaseKeyBytes(key) }()

	out := make([]byte, 0, min(dir.Length, 1<<24))
	for i := uint32(0); i < dir.Chunks; i++ {
		key = m.appendChunkKey(key[:0], enc, i)
		chunk, found := b.lookup(key)
		if !found {
			return nil, regionErrf(m.region.id, m.region.kind, enc, nil, "chunk %d of %d is missing", i, dir.Chunks)
		}
		out = append(out, chunk...)
	}
	if uint64(len(out)) != dir.Length {
		return nil, dataErrf(out, 0, nil, "value is %d bytes, directory says %d", len(out), dir.Length)
	}
	if sum := xxhash.Sum64(out); sum != dir.Checksum {
		return nil, dataErrf(out, 0, nil, "value checksum mismatch (%016x, wanted %016x)", sum, dir.Checksum)
	}
	return out, nil
}

func (m *UnboundedMap[K, V, PK, PV]) lookupDir(b *regionBucket, dirKey []byte) (unboundedDir, bool, error) {
	raw, found := b.lookup(dirKey)
	if !found {
		return unboundedDir{}, false, nil
	}
	dir, err := decodeUnboundedDir(raw)
	if err != nil {
		return dir, true, regionErrf(m.region.id, m.region.kind, dirKey[1:], err, "invalid directory record")
	}
	return dir, true, nil
}

func (m *UnboundedMap[K, V, PK, PV]) Get(k K) (V, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero V
	enc, err := m.encodeKey(&k)
	if err != nil {
		return zero, false, err
	}
	defer releaseKeyBytes(enc)
	dirKey := m.appendDirKey(nil, enc)

	var raw []byte
	var found bool
	err = m.region.view(func(b *regionBucket) error {
		dir, ok, err := m.lookupDir(b, dirKey)
		if err != nil || !ok {
			return err
		}
		found = true
		raw, err = m.assemble(b, enc, dir)
		return err
	})
	if err != nil || !found {
		return zero, false, err
	}
	v, err := decodeStable[V, PV](raw)
	return v, true, err
}

func (m *UnboundedMap[K, V, PK, PV]) ContainsKey(k K) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	enc, err := m.encodeKey(&k)
	if err != nil {
		return false, err
	}
	defer releaseKeyBytes(enc)
	dirKey := m.appendDirKey(nil, enc)

	var found bool
	err = m.region.view(func(b *regionBucket) error {
		_, found = b.lookup(dirKey)
		return nil
	})
	return found, err
}

// Insert stores v under k. The directory record and all chunks are written
// in one transaction, together with the removal of any surplus chunks of
// the previous value.
func (m *UnboundedMap[K, V, PK, PV]) Insert(k K, v V) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	enc, err := m.encodeKey(&k)
	if err != nil {
		return err
	}
	defer releaseKeyBytes(enc)

	data, err := encodeStable[V, PV](nil, &v)
	if err != nil {
		return err
	}
	chunkSize := chunkSizeOf[V, PV](&v)
	nchunks := (len(data) + chunkSize - 1) / chunkSize
	if uint64(nchunks) > uint64(^uint32(0)) {
		return &CapacityError{What: "unbounded value", Size: len(data), Max: ^uint32(0)}
	}
	dir := unboundedDir{
		Length:   uint64(len(data)),
		Chunks:   uint32(nchunks),
		Checksum: xxhash.Sum64(data),
	}
	dirKey := m.appendDirKey(nil, enc)

	var replaced bool
	err = m.region.update(func(b *regionBucket) error {
		old, found, err := m.lookupDir(b, dirKey)
		if err != nil {
			return err
		}
		replaced = found
		if _, _, err := b.put(dirKey, dir.append(nil), true); err != nil {
			return err
		}

		key := getKeyBytes()
		defer func() { releaseKeyBytes(key) }()
		for i := 0; i < nchunks; i++ {
			end := min((i+1)*chunkSize, len(data))
			key = m.appendChunkKey(key[:0], enc, uint32(i))
			if _, _, err := b.put(key, data[i*chunkSize:end], false); err != nil {
				return err
			}
		}
		for i := dir.Chunks; i < old.Chunks; i++ {
			key = m.appendChunkKey(key[:0], enc, i)
			if _, _, err := b.delete(key, false); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		m.logOp("INSERT", enc, replaced, nchunks)
	}
	return err
}

func (m *UnboundedMap[K, V, PK, PV]) Remove(k K) (V, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero V
	enc, err := m.encodeKey(&k)
	if err != nil {
		return zero, false, err
	}
	defer releaseKeyBytes(enc)
	dirKey := m.appendDirKey(nil, enc)

	var raw []byte
	var found bool
	err = m.region.update(func(b *regionBucket) error {
		dir, ok, err := m.lookupDir(b, dirKey)
		if err != nil || !ok {
			return err
		}
		found = true
		raw, err = m.assemble(b, enc, dir)
		if err != nil {
			return err
		}
		key := getKeyBytes()
		defer func() { releaseKeyBytes(key) }()
		for i := uint32(0); i < dir.Chunks; i++ {
			key = m.appendChunkKey(key[:0], enc, i)
			if _, _, err := b.delete(key, false); err != nil {
				return err
			}
		}
		_, _, err = b.delete(dirKey, true)
		return err
	})
	if err != nil || !found {
		return zero, false, err
	}
	m.logOp("REMOVE", enc, true, 0)
	v, err := decodeStable[V, PV](raw)
	return v, true, err
}

func (m *UnboundedMap[K, V, PK, PV]) Len() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n uint64
	err := m.region.view(func(b *regionBucket) error {
		n = b.entries()
		return nil
	})
	return n, err
}

func (m *UnboundedMap[K, V, PK, PV]) IsEmpty() (bool, error) {
	n, err := m.Len()
	return n == 0, err
}

// Iter iterates over all entries in ascending key order. Each batch of
// values is reassembled inside a single read transaction.
func (m *UnboundedMap[K, V, PK, PV]) Iter() *Cursor[Entry[K, V]] {
	s := &rawScanner{
		region: m.region,
		lock:   &m.mu,
		rang:   entryRecords,
		load: func(b *regionBucket, k, v []byte) ([]byte, error) {
			dir, err := decodeUnboundedDir(v)
			if err != nil {
				return nil, regionErrf(m.region.id, m.region.kind, k[1:], err, "invalid directory record")
			}
			return m.assemble(b, k[1:], dir)
		},
	}
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

func (m *UnboundedMap[K, V, PK, PV]) logOp(op string, enc []byte, existed bool, chunks int) {
	if reg := m.region.reg; reg.verbose {
		reg.logDebug("stablestore: "+op, slog.Int("region", int(m.region.id)), hexAttr("key", enc), slog.Bool("existed", existed), slog.Int("chunks", chunks))
	}
}
