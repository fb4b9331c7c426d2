package stablestore

import "fmt"

// maxStorageKeySize is bbolt's key limit, enforced by both backends.
const maxStorageKeySize = 32768

// storage is an ordered byte map with transactions. Every ordered region
// lives in one root bucket of it.
type storage interface {
	BeginTx(writable bool) (storageTx, error)
	Close() error
}

// storageTx sees a consistent snapshot. At most one writable tx is open at a
// time; read txs never block it.
type storageTx interface {
	Writable() bool

	// Bucket returns nil if the bucket does not exist.
	Bucket(name string) storageBucket
	CreateBucket(name string) (storageBucket, error)

	Commit() error

	// Rollback is a no-op on a finished tx.
	Rollback() error

	// Size is the size of the database file, or 0 for transient backends.
	Size() int64
}

type storageBucket interface {
	// Get returns nil for a missing key. The result is only valid while the
	// tx is open and must not be modified.
	Get(key []byte) []byte

	// Put may retain key and value until the tx ends, as bbolt does, so
	// callers must not reuse the buffers before that.
	Put(key, value []byte) error
	Delete(key []byte) error
	Cursor() storageCursor
	Stats() bucketStats
}

// bucketStats follows bbolt's BucketStats. Transient backends report the
// payload size as both in-use and allocated bytes.
type bucketStats struct {
	KeyN        int
	LeafInuse   int64
	LeafAlloc   int64
	BranchAlloc int64
}

func (s bucketStats) TotalAlloc() int64 { return s.BranchAlloc + s.LeafAlloc }

// storageCursor moves over a bucket in key order. Each move returns the new
// position, or nils past either end.
type storageCursor interface {
	First() (key, value []byte)
	Last() (key, value []byte)

	// Seek positions at the first key >= seek.
	Seek(seek []byte) (key, value []byte)

	// SeekLast positions at the last key that starts with prefix or, if there
	// is none, the last key sorting before prefix.
	SeekLast(prefix []byte) (key, value []byte)

	Next() (key, value []byte)
	Prev() (key, value []byte)
}

func checkStorageKey(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("storage key is empty")
	}
	if len(key) > maxStorageKeySize {
		return &CapacityError{What: "storage key", Size: len(key), Max: maxStorageKeySize}
	}
	return nil
}
