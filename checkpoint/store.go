// Package checkpoint persists the connector's position: a single small value
// per stream, read wholesale on startup and rewritten wholesale on every change.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	pebblestore "github.com/hugolhafner/go-connect/internal/storage/pebble"
)

// Store is the backing medium for one checkpoint value. Load returns nil and
// no error when nothing has been written yet.
type Store interface {
	Load() ([]byte, error)
	Save(value []byte) error
}

var _ Store = (*FileStore)(nil)

// FileStore keeps the value in a single file. Saves write a temporary file in
// the same directory and rename it over the target, so readers see either the
// old or the new value, never a partial one.
type FileStore struct {
	path string
	perm os.FileMode
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("checkpoint: empty file path")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: resolve %s: %w", path, err)
	}

	return &FileStore{path: abs, perm: 0o644}, nil
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load() ([]byte, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read %s: %w", s.path, err)
	}
	return b, nil
}

func (s *FileStore) Save(value []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("checkpoint: create dir for %s: %w", s.path, err)
	}
	if err := renameio.WriteFile(s.path, value, s.perm); err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", s.path, err)
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore is the ephemeral Store, for tests and streams that do not need
// to survive a restart.
type MemoryStore struct {
	mu    sync.Mutex
	value []byte
	saves int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.value == nil {
		return nil, nil
	}
	return append([]byte(nil), s.value...), nil
}

func (s *MemoryStore) Save(value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = append([]byte{}, value...)
	s.saves++
	return nil
}

// Saves reports how many times Save has been called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

var _ Store = (*PebbleStore)(nil)

// PebbleStore keeps the value under one key of a Pebble database, for hosts
// that already run a Pebble-backed sink next to the connector.
type PebbleStore struct {
	db  *pebblestore.DB
	key []byte
}

// NewPebbleStore stores the checkpoint for topic under "checkpoint/<topic>".
func NewPebbleStore(db *pebblestore.DB, topic string) *PebbleStore {
	return &PebbleStore{db: db, key: []byte("checkpoint/" + topic)}
}

func (s *PebbleStore) Load() ([]byte, error) {
	v, err := s.db.Get(s.key)
	if errors.Is(err, pebblestore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: pebble get %s: %w", s.key, err)
	}
	return v, nil
}

func (s *PebbleStore) Save(value []byte) error {
	if err := s.db.Set(s.key, value); err != nil {
		return fmt.Errorf("checkpoint: pebble set %s: %w", s.key, err)
	}
	return nil
}
