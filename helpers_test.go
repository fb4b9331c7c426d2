package stablestore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testOptions(t testing.TB) Options {
	return Options{
		Logger: slog.New(slog.NewTextHandler(&logWriter{t}, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})),
		Verbose:   true,
		IsTesting: true,
		Now:       func() time.Time { return testStart },
	}
}

func setup(t testing.TB) *Registry {
	return setupWith(t, testOptions(t))
}

func setupWith(t testing.TB, opt Options) *Registry {
	t.Helper()
	reg := must(OpenMemory(opt))
	t.Cleanup(func() { ensure(reg.Close()) })
	return reg
}

func setupDisk(t testing.TB, dir string) *Registry {
	t.Helper()
	reg := must(Open(dir, testOptions(t)))
	t.Cleanup(func() { ensure(reg.Close()) })
	return reg
}

// forEachBackend runs f against the in-memory and the Bolt storage.
func forEachBackend(t *testing.T, f func(t *testing.T, reg *Registry)) {
	t.Run("mem", func(t *testing.T) {
		f(t, setup(t))
	})
	t.Run("bolt", func(t *testing.T) {
		f(t, setupDisk(t, t.TempDir()))
	})
}

type logWriter struct{ t testing.TB }

func (c *logWriter) Write(buf []byte) (int, error) {
	c.t.Log(strings.TrimSuffix(string(buf), "\n"))
	return len(buf), nil
}

func deepEqual[T any](t testing.TB, a, e T) {
	if diff := cmp.Diff(e, a); diff != "" {
		t.Helper()
		t.Errorf("** got %v, wanted %v, diff (-wanted +got):\n%s", a, e, diff)
	}
}

func isErr(t testing.TB, err, target error) {
	if !errors.Is(err, target) {
		t.Helper()
		t.Fatalf("** got error %v, wanted %v", err, target)
	}
}

func success(t testing.TB, err error) {
	if err != nil {
		t.Helper()
		t.Fatalf("** %v", err)
	}
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}

func assertPanics(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	fn()
}

func x(data string) []byte {
	data = strings.ReplaceAll(data, " ", "")
	return must(hex.DecodeString(data))
}

func all[E any](t testing.TB, c *Cursor[E]) []E {
	t.Helper()
	items, err := All(c)
	success(t, err)
	return items
}

// key2, key3 and key6 are fixed-size byte strings.
type (
	key2 [2]byte
	key3 [3]byte
	key6 [6]byte
)

func (k key2) MarshalStable(buf []byte) []byte    { return append(buf, k[:]...) }
func (k key2) StableBound() Bound                 { return Bound{MaxSize: 2, FixedSize: true} }
func (k *key2) UnmarshalStable(data []byte) error { return unmarshalFixed(k[:], data) }

func (k key3) MarshalStable(buf []byte) []byte    { return append(buf, k[:]...) }
func (k key3) StableBound() Bound                 { return Bound{MaxSize: 3, FixedSize: true} }
func (k *key3) UnmarshalStable(data []byte) error { return unmarshalFixed(k[:], data) }

func (k key6) MarshalStable(buf []byte) []byte    { return append(buf, k[:]...) }
func (k key6) StableBound() Bound                 { return Bound{MaxSize: 6, FixedSize: true} }
func (k *key6) UnmarshalStable(data []byte) error { return unmarshalFixed(k[:], data) }

func unmarshalFixed(dst, data []byte) error {
	if len(data) != len(dst) {
		return fmt.Errorf("wanted %d bytes, got %d", len(dst), len(data))
	}
	copy(dst, data)
	return nil
}

// short is a byte string of up to 4 bytes.
type short []byte

func (k short) MarshalStable(buf []byte) []byte { return append(buf, k...) }
func (k short) StableBound() Bound              { return Bound{MaxSize: 4} }
func (k *short) UnmarshalStable(data []byte) error {
	if len(data) > 4 {
		return fmt.Errorf("%d bytes", len(data))
	}
	*k = append(short{}, data...)
	return nil
}

// wide is a byte string of up to 300 bytes, so it needs a 2-byte size prefix.
type wide []byte

func (k wide) MarshalStable(buf []byte) []byte { return append(buf, k...) }
func (k wide) StableBound() Bound              { return Bound{MaxSize: 300} }
func (k *wide) UnmarshalStable(data []byte) error {
	*k = append(wide{}, data...)
	return nil
}

// liar claims a fixed size it does not honor.
type liar []byte

func (k liar) MarshalStable(buf []byte) []byte { return append(buf, k...) }
func (k liar) StableBound() Bound              { return Bound{MaxSize: 4, FixedSize: true} }
func (k *liar) UnmarshalStable(data []byte) error {
	*k = append(liar{}, data...)
	return nil
}
