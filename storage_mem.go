package stablestore

import (
	"bytes"
	"errors"
	"slices"
	"sync"

	"github.com/tidwall/btree"
)

var errReadOnlyTx = errors.New("read-only transaction")

type memTree = btree.BTreeG[memItem]

type memItem struct {
	key, value []byte
}

func memItemLess(a, b memItem) bool { return bytes.Compare(a.key, b.key) < 0 }

func newMemTree() *memTree {
	return btree.NewBTreeGOptions(memItemLess, btree.Options{Degree: 32, NoLocks: true})
}

// memStore is the transient storage backend. Each tx works on copy-on-write
// clones of the trees, and a commit swaps the clones in. Writers take turns
// through writeSlot.
type memStore struct {
	mu     sync.Mutex
	trees  map[string]*memTree
	closed bool

	writeSlot chan struct{}
	closing   chan struct{}
}

func newMemStorage() storage {
	return &memStore{
		trees:     make(map[string]*memTree),
		writeSlot: make(chan struct{}, 1),
		closing:   make(chan struct{}),
	}
}

func (s *memStore) BeginTx(writable bool) (storageTx, error) {
	if writable {
		select {
		case s.writeSlot <- struct{}{}:
		case <-s.closing:
			return nil, ErrClosed
		}
	}
	tx := &memTx{store: s, writable: writable}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		tx.finish()
		return nil, ErrClosed
	}
	tx.trees = make(map[string]*memTree, len(s.trees))
	for name, t := range s.trees {
		tx.trees[name] = t.Copy()
	}
	return tx, nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.trees = nil
		close(s.closing)
	}
	return nil
}

type memTx struct {
	store    *memStore
	trees    map[string]*memTree
	writable bool
	done     bool
}

func (tx *memTx) finish() {
	if !tx.done {
		tx.done = true
		if tx.writable {
			<-tx.store.writeSlot
		}
	}
}

func (tx *memTx) checkOpen() {
	if tx.done {
		panic("stablestore: use of finished transaction")
	}
}

func (tx *memTx) Writable() bool { return tx.writable }

func (tx *memTx) Size() int64 { return 0 }

func (tx *memTx) Bucket(name string) storageBucket {
	tx.checkOpen()
	if t, ok := tx.trees[name]; ok {
		return memBucket{tx, t}
	}
	return nil
}

func (tx *memTx) CreateBucket(name string) (storageBucket, error) {
	tx.checkOpen()
	if !tx.writable {
		return nil, errReadOnlyTx
	}
	t, ok := tx.trees[name]
	if !ok {
		t = newMemTree()
		tx.trees[name] = t
	}
	return memBucket{tx, t}, nil
}

func (tx *memTx) Commit() error {
	if tx.done {
		return nil
	}
	if !tx.writable {
		return errReadOnlyTx
	}
	defer tx.finish()

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.trees = tx.trees
	return nil
}

func (tx *memTx) Rollback() error {
	tx.finish()
	return nil
}

type memBucket struct {
	tx *memTx
	t  *memTree
}

func (b memBucket) Get(key []byte) []byte {
	if it, ok := b.t.Get(memItem{key: key}); ok {
		return it.value
	}
	return nil
}

// Put copies both slices. A nil value is stored as empty so that Get can
// tell it apart from a missing key.
func (b memBucket) Put(key, value []byte) error {
	if !b.tx.writable {
		return errReadOnlyTx
	}
	if err := checkStorageKey(key); err != nil {
		return err
	}
	v := make([]byte, len(value))
	copy(v, value)
	b.t.Set(memItem{slices.Clone(key), v})
	return nil
}

func (b memBucket) Delete(key []byte) error {
	if !b.tx.writable {
		return errReadOnlyTx
	}
	b.t.Delete(memItem{key: key})
	return nil
}

func (b memBucket) Cursor() storageCursor {
	return &memCursor{t: b.t}
}

func (b memBucket) Stats() bucketStats {
	var payload int64
	b.t.Scan(func(it memItem) bool {
		payload += int64(len(it.key) + len(it.value))
		return true
	})
	return bucketStats{KeyN: b.t.Len(), LeafInuse: payload, LeafAlloc: payload}
}

type cursorState uint8

const (
	cursorUnset cursorState = iota
	cursorAt
	cursorBeforeFirst
	cursorAfterLast
)

// memCursor keeps only the key it sits on and looks up its neighbours on
// every move, so writes through the same tx never invalidate it.
type memCursor struct {
	t     *memTree
	state cursorState
	key   []byte
}

func (c *memCursor) land(it memItem, ok bool, miss cursorState) ([]byte, []byte) {
	if !ok {
		c.state, c.key = miss, nil
		return nil, nil
	}
	c.state, c.key = cursorAt, it.key
	return it.key, it.value
}

// ascend finds the first item >= pivot, or > pivot if strict.
func (c *memCursor) ascend(pivot []byte, strict bool) (found memItem, ok bool) {
	c.t.Ascend(memItem{key: pivot}, func(it memItem) bool {
		if strict && bytes.Equal(it.key, pivot) {
			return true
		}
		found, ok = it, true
		return false
	})
	return
}

// descendBelow finds the last item < pivot.
func (c *memCursor) descendBelow(pivot []byte) (found memItem, ok bool) {
	c.t.Descend(memItem{key: pivot}, func(it memItem) bool {
		if bytes.Equal(it.key, pivot) {
			return true
		}
		found, ok = it, true
		return false
	})
	return
}

func (c *memCursor) First() ([]byte, []byte) {
	it, ok := c.t.Min()
	return c.land(it, ok, cursorAfterLast)
}

func (c *memCursor) Last() ([]byte, []byte) {
	it, ok := c.t.Max()
	return c.land(it, ok, cursorBeforeFirst)
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	it, ok := c.ascend(seek, false)
	return c.land(it, ok, cursorAfterLast)
}

func (c *memCursor) SeekLast(prefix []byte) ([]byte, []byte) {
	limit := bytes.Clone(prefix)
	if len(limit) == 0 || !inc(limit) {
		return c.Last()
	}
	it, ok := c.descendBelow(limit)
	return c.land(it, ok, cursorBeforeFirst)
}

func (c *memCursor) Next() ([]byte, []byte) {
	switch c.state {
	case cursorUnset, cursorBeforeFirst:
		return c.First()
	case cursorAfterLast:
		return nil, nil
	}
	it, ok := c.ascend(c.key, true)
	return c.land(it, ok, cursorAfterLast)
}

func (c *memCursor) Prev() ([]byte, []byte) {
	switch c.state {
	case cursorUnset, cursorBeforeFirst:
		return nil, nil
	case cursorAfterLast:
		return c.Last()
	}
	it, ok := c.descendBelow(c.key)
	return c.land(it, ok, cursorBeforeFirst)
}
