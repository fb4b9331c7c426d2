package stablestore

import (
	"errors"
	"fmt"
	"runtime/debug"
	"syscall"
)

// read runs f in a read-only storage transaction.
func (reg *Registry) read(f func(tx storageTx) error) error {
	reg.lifecycle.RLock()
	defer reg.lifecycle.RUnlock()
	if reg.store == nil {
		return ErrClosed
	}
	tx, err := reg.store.BeginTx(false)
	if err != nil {
		return fmt.Errorf("stablestore: begin read: %w", err)
	}
	defer tx.Rollback()
	reg.ReadCount.Add(1)
	return safelyCall(f, tx)
}

// write runs f in a writable storage transaction and commits it unless f
// fails. Running out of disk space is reported as ErrOutOfMemory.
func (reg *Registry) write(f func(tx storageTx) error) error {
	reg.lifecycle.RLock()
	defer reg.lifecycle.RUnlock()
	if reg.store == nil {
		return ErrClosed
	}
	tx, err := reg.store.BeginTx(true)
	if err != nil {
		return fmt.Errorf("stablestore: begin write: %w", err)
	}
	defer tx.Rollback()
	reg.WriteCount.Add(1)

	if err := safelyCall(f, tx); err != nil {
		return err
	}
	size := tx.Size()
	if err := tx.Commit(); err != nil {
		if errors.Is(err, syscall.ENOSPC) {
			return fmt.Errorf("stablestore: commit: %v: %w", err, ErrOutOfMemory)
		}
		return fmt.Errorf("stablestore: commit: %w", err)
	}
	reg.lastSize.Store(size)
	return nil
}

type panicked struct {
	reason interface{}
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func safelyCall(fn func(storageTx) error, tx storageTx) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(tx)
}
