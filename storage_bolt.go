package stablestore

import (
	"bytes"
	"errors"
	"fmt"
	"unsafe"

	"go.etcd.io/bbolt"
)

// boltStore adapts a bbolt database to the storage interface. Regions map to
// root buckets; bbolt provides the snapshot isolation and single-writer
// semantics the in-memory backend emulates.
type boltStore struct {
	db *bbolt.DB
}

func newBoltStorage(db *bbolt.DB) storage {
	return &boltStore{db: db}
}

func (s *boltStore) BeginTx(writable bool) (storageTx, error) {
	tx, err := s.db.Begin(writable)
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return nil, ErrClosed
	} else if err != nil {
		return nil, fmt.Errorf("bolt: begin: %w", err)
	}
	return boltTx{tx}, nil
}

func (s *boltStore) Close() error {
	return s.db.Close()
}

type boltTx struct {
	*bbolt.Tx
}

func (tx boltTx) Bucket(name string) storageBucket {
	if b := tx.Tx.Bucket(stringBytes(name)); b != nil {
		return boltBucket{b}
	}
	return nil
}

func (tx boltTx) CreateBucket(name string) (storageBucket, error) {
	b, err := tx.Tx.CreateBucketIfNotExists([]byte(name))
	if err != nil {
		return nil, fmt.Errorf("bolt: bucket %s: %w", name, err)
	}
	return boltBucket{b}, nil
}

func (tx boltTx) Rollback() error {
	if err := tx.Tx.Rollback(); err != nil && err != bbolt.ErrTxClosed {
		return err
	}
	return nil
}

type boltBucket struct {
	*bbolt.Bucket
}

func (b boltBucket) Put(key, value []byte) error {
	if err := checkStorageKey(key); err != nil {
		return err
	}
	return b.Bucket.Put(key, value)
}

func (b boltBucket) Cursor() storageCursor {
	return boltCursor{b.Bucket.Cursor()}
}

func (b boltBucket) Stats() bucketStats {
	st := b.Bucket.Stats()
	return bucketStats{
		KeyN:        st.KeyN,
		LeafInuse:   int64(st.LeafInuse),
		LeafAlloc:   int64(st.LeafAlloc),
		BranchAlloc: int64(st.BranchAlloc),
	}
}

type boltCursor struct {
	*bbolt.Cursor
}

func (c boltCursor) SeekLast(prefix []byte) ([]byte, []byte) {
	limit := bytes.Clone(prefix)
	if len(limit) == 0 || !inc(limit) {
		// Nothing sorts after an empty or all-0xFF prefix except keys that
		// extend it, so the tail of the bucket is the answer.
		return c.Last()
	}
	if k, _ := c.Seek(limit); k == nil {
		return c.Last()
	}
	return c.Prev()
}

// stringBytes aliases the bytes of s; bbolt only reads bucket names.
func stringBytes(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
