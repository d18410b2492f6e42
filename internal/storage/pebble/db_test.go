//go:build unit

package pebblestore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDB_SetGetScan(t *testing.T) {
	db, err := Open(Options{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Set([]byte("a/1"), []byte("one")))
	require.NoError(t, db.Set([]byte("a/2"), []byte("two")))
	require.NoError(t, db.Set([]byte("b/1"), []byte("other")))

	v, err := db.Get([]byte("a/2"))
	require.NoError(t, err)
	require.Equal(t, []byte("two"), v)

	_, err = db.Get([]byte("missing"))
	require.True(t, errors.Is(err, ErrNotFound))

	var keys []string
	require.NoError(
		t, db.Scan(
			[]byte("a/"), func(key, value []byte) error {
				keys = append(keys, string(key))
				return nil
			},
		),
	)
	require.Equal(t, []string{"a/1", "a/2"}, keys)
}

func TestDB_BatchIsAtomic(t *testing.T) {
	db, err := Open(Options{DataDir: t.TempDir(), Fsync: FsyncModeNever})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	b := db.NewBatch()
	require.NoError(t, b.Set([]byte("k"), []byte("v"), nil))
	require.NoError(t, b.Close())

	_, err = db.Get([]byte("k"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpen_RequiresDataDir(t *testing.T) {
	_, err := Open(Options{})
	require.Error(t, err)
}

func TestPrefixEnd(t *testing.T) {
	require.Equal(t, []byte("b"), prefixEnd([]byte("a")))
	require.Equal(t, []byte{0x02}, prefixEnd([]byte{0x01, 0xff}))
	require.Nil(t, prefixEnd([]byte{0xff}))
}
