package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]KV {
	t.Helper()
	b, err := NewBolt(filepath.Join(t.TempDir(), "test.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return map[string]KV{
		"bolt":   b,
		"memory": NewMemory(),
	}
}

func TestKV(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			bucket := []byte("coins")

			_, err := kv.Get(bucket, []byte("a"))
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, kv.Put(bucket, []byte("b/2"), []byte("two")))
			require.NoError(t, kv.Put(bucket, []byte("b/1"), []byte("one")))
			require.NoError(t, kv.Put(bucket, []byte("c/1"), []byte("other")))

			v, err := kv.Get(bucket, []byte("b/1"))
			require.NoError(t, err)
			require.Equal(t, []byte("one"), v)

			var keys []string
			err = kv.List(bucket, []byte("b/"), func(k, v []byte) error {
				keys = append(keys, string(k))
				return nil
			})
			require.NoError(t, err)
			require.Equal(t, []string{"b/1", "b/2"}, keys)

			require.NoError(t, kv.Delete(bucket, []byte("b/1")))
			_, err = kv.Get(bucket, []byte("b/1"))
			require.ErrorIs(t, err, ErrNotFound)

			// Listing or deleting in a missing bucket is not an error.
			require.NoError(t, kv.List([]byte("none"), nil, func(k, v []byte) error {
				t.Fatalf("unexpected key %s", k)
				return nil
			}))
			require.NoError(t, kv.Delete([]byte("none"), []byte("x")))
		})
	}
}

func TestUpdateAtomic(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			bucket := []byte("spends")
			boom := errors.New("boom")

			err := kv.Update(func(w Writer) error {
				require.NoError(t, w.Put(bucket, []byte("x"), []byte("1")))
				return boom
			})
			require.ErrorIs(t, err, boom)
			_, err = kv.Get(bucket, []byte("x"))
			require.ErrorIs(t, err, ErrNotFound)

			err = kv.Update(func(w Writer) error {
				if err := w.Put(bucket, []byte("x"), []byte("1")); err != nil {
					return err
				}
				return w.Put(bucket, []byte("y"), []byte("2"))
			})
			require.NoError(t, err)

			n := 0
			require.NoError(t, kv.List(bucket, nil, func(k, v []byte) error {
				n++
				return nil
			}))
			require.Equal(t, 2, n)
		})
	}
}
