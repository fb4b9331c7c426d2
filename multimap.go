package stablestore

import (
	"log/slog"
	"sync"
)

// Multimap maps pairs of bounded keys to bounded values, and supports
// operations on all entries sharing a first key. Entries are ordered by the
// encoded first key's length, then its bytes, then the encoded second key.
//
// The PK1, PK2 and PV type parameters are inferred:
//
//	m, err := stablestore.NewMultimap[Principal, Uint64, Hash](reg, 3)
type Multimap[K1, K2, V any, PK1 BoundedStorable[K1], PK2 BoundedStorable[K2], PV BoundedStorable[V]] struct {
	mu sync.Mutex
	m  *keyPairMap[K1, K2, V, PK1, PK2, PV]
}

// NewMultimap binds region id to a new Multimap, picking up the entries
// already stored there.
func NewMultimap[K1, K2, V any, PK1 BoundedStorable[K1], PK2 BoundedStorable[K2], PV BoundedStorable[V]](reg *Registry, id MemoryID) (*Multimap[K1, K2, V, PK1, PK2, PV], error) {
	m, err := newKeyPairMap[K1, K2, V, PK1, PK2, PV](reg, id, kindMultimap)
	if err != nil {
		return nil, err
	}
	return &Multimap[K1, K2, V, PK1, PK2, PV]{m: m}, nil
}

// Insert stores v under (k1, k2) and returns the value it replaced, if any.
// If the replaced value cannot be decoded, v is still stored and the decoding
// error is returned along with replaced = true.
func (mm *Multimap[K1, K2, V, PK1, PK2, PV]) Insert(k1 K1, k2 K2, v V) (old V, replaced bool, err error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	old, replaced, err = mm.m.insert(k1, k2, v)
	if err == nil {
		mm.logOp("INSERT", replaced)
	}
	return
}

func (mm *Multimap[K1, K2, V, PK1, PK2, PV]) Get(k1 K1, k2 K2) (V, bool, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.m.get(k1, k2)
}

// Remove deletes (k1, k2) and returns the removed value. Removing an absent
// pair is a no-op.
func (mm *Multimap[K1, K2, V, PK1, PK2, PV]) Remove(k1 K1, k2 K2) (old V, found bool, err error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	old, found, err = mm.m.remove(k1, k2)
	if err == nil {
		mm.logOp("REMOVE", found)
	}
	return
}

// RemovePartial deletes every entry whose first key is k1. It works in
// batches; on failure, entries removed by earlier batches stay removed.
func (mm *Multimap[K1, K2, V, PK1, PK2, PV]) RemovePartial(k1 K1) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	n, err := mm.m.removePartial(k1)
	mm.m.region.reg.logDebug("stablestore: REMOVE_PARTIAL", slog.Int("region", int(mm.m.region.id)), slog.Int("removed", n))
	return err
}

// Range iterates over the entries with first key k1, ordered by the encoded
// second key.
func (mm *Multimap[K1, K2, V, PK1, PK2, PV]) Range(k1 K1) *Cursor[Entry[K2, V]] {
	return mm.m.rangeCursor(&mm.mu, k1, false)
}

// RangeReverse is Range in descending order.
func (mm *Multimap[K1, K2, V, PK1, PK2, PV]) RangeReverse(k1 K1) *Cursor[Entry[K2, V]] {
	return mm.m.rangeCursor(&mm.mu, k1, true)
}

func (mm *Multimap[K1, K2, V, PK1, PK2, PV]) Iter() *Cursor[MultiEntry[K1, K2, V]] {
	return mm.m.iterCursor(&mm.mu)
}

func (mm *Multimap[K1, K2, V, PK1, PK2, PV]) Len() (uint64, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.m.len()
}

func (mm *Multimap[K1, K2, V, PK1, PK2, PV]) IsEmpty() (bool, error) {
	n, err := mm.Len()
	return n == 0, err
}

// Clear removes all entries. Like RemovePartial, it is not atomic.
func (mm *Multimap[K1, K2, V, PK1, PK2, PV]) Clear() error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	n, err := mm.m.clear()
	mm.m.region.reg.logDebug("stablestore: CLEAR", slog.Int("region", int(mm.m.region.id)), slog.Int("removed", n))
	return err
}

func (mm *Multimap[K1, K2, V, PK1, PK2, PV]) logOp(op string, existed bool) {
	mm.m.region.reg.logDebug("stablestore: "+op, slog.Int("region", int(mm.m.region.id)), slog.Bool("existed", existed))
}
