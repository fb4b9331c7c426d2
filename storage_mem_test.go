package stablestore

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestMemStorage_SnapshotIsolation(t *testing.T) {
	s := newMemStorage()
	fillBucket(t, s, x("01"), []byte("a"))

	rtx := must(s.BeginTx(false))
	defer rtx.Rollback()

	wtx := must(s.BeginTx(true))
	wb := must(wtx.CreateBucket("b"))
	mustPut(t, wb, x("02"), []byte("b"))
	ensure(wb.Delete(x("01")))
	ensure(wtx.Commit())

	rb := rtx.Bucket("b")
	if v := rb.Get(x("01")); string(v) != "a" {
		t.Errorf("old snapshot lost 01: %q", v)
	}
	if v := rb.Get(x("02")); v != nil {
		t.Errorf("old snapshot sees 02: %q", v)
	}
	deepEqual(t, scanValues(t, s, RawOO()), []string{"b"})
}

func TestMemStorage_Rollback(t *testing.T) {
	s := newMemStorage()
	fillBucket(t, s, x("01"), []byte("a"))

	wtx := must(s.BeginTx(true))
	mustPut(t, wtx.Bucket("b"), x("02"), []byte("b"))
	_, err := wtx.CreateBucket("c")
	success(t, err)
	ensure(wtx.Rollback())
	ensure(wtx.Rollback())

	deepEqual(t, scanValues(t, s, RawOO()), []string{"a"})
	rtx := must(s.BeginTx(false))
	defer rtx.Rollback()
	if rtx.Bucket("c") != nil {
		t.Errorf("rolled back bucket exists")
	}
}

func TestMemStorage_SingleWriter(t *testing.T) {
	s := newMemStorage()
	fillBucket(t, s)

	wtx := must(s.BeginTx(true))
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		wtx2 := must(s.BeginTx(true))
		mustPut(t, wtx2.Bucket("b"), x("02"), []byte("second"))
		ensure(wtx2.Commit())
		close(done)
	}()
	<-started

	select {
	case <-done:
		t.Fatalf("second writer did not wait")
	case <-time.After(20 * time.Millisecond):
	}
	mustPut(t, wtx.Bucket("b"), x("01"), []byte("first"))
	ensure(wtx.Commit())
	<-done

	deepEqual(t, scanValues(t, s, RawOO()), []string{"first", "second"})
}

func TestMemStorage_PutCopiesAndValidates(t *testing.T) {
	s := newMemStorage()
	wtx := must(s.BeginTx(true))
	b := must(wtx.CreateBucket("b"))

	k, v := x("0102"), []byte("value")
	mustPut(t, b, k, v)
	k[0], v[0] = 0xFF, 'X'
	if got := b.Get(x("0102")); string(got) != "value" {
		t.Errorf("Get = %q, wanted value", got)
	}

	mustPut(t, b, x("03"), nil)
	if got := b.Get(x("03")); got == nil || len(got) != 0 {
		t.Errorf("empty value = %v, wanted non-nil empty", got)
	}

	if err := b.Put(nil, []byte("x")); err == nil {
		t.Errorf("empty key accepted")
	}
	if err := b.Put(bytes.Repeat([]byte{1}, maxStorageKeySize+1), nil); !errors.Is(err, ErrValueTooLarge) {
		t.Errorf("oversized key accepted")
	}
	ensure(wtx.Rollback())

	rtx := must(s.BeginTx(false))
	defer rtx.Rollback()
	if _, err := rtx.CreateBucket("c"); err == nil {
		t.Errorf("read tx created a bucket")
	}
}

func TestMemStorage_CursorSurvivesModification(t *testing.T) {
	s := newMemStorage()
	wtx := must(s.BeginTx(true))
	b := must(wtx.CreateBucket("b"))
	for _, k := range []string{"01", "02", "03", "04"} {
		mustPut(t, b, x(k), x(k))
	}

	c := b.Cursor()
	k, _ := c.First()
	deepEqual(t, k, x("01"))
	ensure(b.Delete(x("02")))
	k, _ = c.Next()
	deepEqual(t, k, x("03"))
	k, _ = c.Next()
	deepEqual(t, k, x("04"))
	if k, _ = c.Next(); k != nil {
		t.Fatalf("Next past end = %x", k)
	}
	k, _ = c.Prev()
	deepEqual(t, k, x("04"))
	k, _ = c.Prev()
	deepEqual(t, k, x("03"))
	k, _ = c.SeekLast(x("01"))
	deepEqual(t, k, x("01"))
	ensure(wtx.Rollback())
}

func TestMemStorage_Closed(t *testing.T) {
	s := newMemStorage()
	ensure(s.Close())
	_, err := s.BeginTx(false)
	isErr(t, err, ErrClosed)
}

func TestBucketStats(t *testing.T) {
	forEachStorage(t, func(t *testing.T, s storage) {
		fillBucket(t, s, x("01"), []byte("abc"), x("02"), []byte("de"))
		rtx := must(s.BeginTx(false))
		defer rtx.Rollback()
		st := rtx.Bucket("b").Stats()
		deepEqual(t, st.KeyN, 2)
		if st.LeafInuse < 7 {
			t.Errorf("LeafInuse = %d, wanted at least 7", st.LeafInuse)
		}
	})
}
