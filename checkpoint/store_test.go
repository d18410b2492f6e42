//go:build unit

package checkpoint_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hugolhafner/go-connect/checkpoint"
	pebblestore "github.com/hugolhafner/go-connect/internal/storage/pebble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_MissingFileLoadsNil(t *testing.T) {
	s, err := checkpoint.NewFileStore(filepath.Join(t.TempDir(), "orders.offset"))
	require.NoError(t, err)

	v, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestFileStore_SaveCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "orders.offset")
	s, err := checkpoint.NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, s.Save([]byte("42")))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "42", string(raw))
}

func TestFileStore_SaveReplacesWholeValue(t *testing.T) {
	s, err := checkpoint.NewFileStore(filepath.Join(t.TempDir(), "orders.offset"))
	require.NoError(t, err)

	require.NoError(t, s.Save([]byte("123456")))
	require.NoError(t, s.Save([]byte("7")))

	v, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "7", string(v))

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files should be left behind")
}

func TestFileStore_EmptyPath(t *testing.T) {
	_, err := checkpoint.NewFileStore("")
	require.Error(t, err)
}

func TestFileStore_SaveFailsWhenParentIsFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s, err := checkpoint.NewFileStore(filepath.Join(blocker, "orders.offset"))
	require.NoError(t, err)
	require.Error(t, s.Save([]byte("1")))
}

func TestMemoryStore_StoresValue(t *testing.T) {
	s := checkpoint.NewMemoryStore()

	v, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, v)

	in := []byte("10")
	require.NoError(t, s.Save(in))
	in[0] = '9'

	v, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, "10", string(v))
	assert.Equal(t, 1, s.Saves())
}

func TestPebbleStore_RoundTripPerTopic(t *testing.T) {
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	orders := checkpoint.NewPebbleStore(db, "orders")
	users := checkpoint.NewPebbleStore(db, "users")

	v, err := orders.Load()
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, orders.Save([]byte("5")))
	require.NoError(t, users.Save([]byte("9")))

	v, err = orders.Load()
	require.NoError(t, err)
	assert.Equal(t, "5", string(v))

	v, err = users.Load()
	require.NoError(t, err)
	assert.Equal(t, "9", string(v))
}

type failingStore struct {
	value   []byte
	saveErr error
	loadErr error
}

func (f *failingStore) Load() ([]byte, error) { return f.value, f.loadErr }

func (f *failingStore) Save(v []byte) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.value = v
	return nil
}

var errDisk = errors.New("disk full")
