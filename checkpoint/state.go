package checkpoint

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// State presents a Store's value as bytes, a string or an integer. The value
// is loaded once; every mutation is written through to the store before the
// in-memory copy changes, so a failed write leaves both untouched.
//
// Only Increment takes the lock. The other operations are used by a single
// owner at a time.
type State struct {
	store Store
	value []byte

	incMu sync.Mutex
}

// NewState loads the current value from store.
func NewState(store Store) (*State, error) {
	v, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &State{store: store, value: v}, nil
}

// NewEphemeralState returns a State backed by a fresh MemoryStore.
func NewEphemeralState() *State {
	return &State{store: NewMemoryStore()}
}

// Reload re-reads the value from the store.
func (s *State) Reload() error {
	v, err := s.store.Load()
	if err != nil {
		return err
	}
	s.value = v
	return nil
}

func (s *State) Bytes() []byte {
	return append([]byte(nil), s.value...)
}

func (s *State) SetBytes(b []byte) error {
	cp := append([]byte{}, b...)
	if err := s.store.Save(cp); err != nil {
		return err
	}
	s.value = cp
	return nil
}

func (s *State) String() string {
	return string(s.value)
}

func (s *State) SetString(v string) error {
	return s.SetBytes([]byte(v))
}

// IsEmpty reports whether nothing, or an empty value, has been stored.
func (s *State) IsEmpty() bool {
	return len(strings.TrimSpace(string(s.value))) == 0
}

// Integer parses the value. An empty value reads as 0.
func (s *State) Integer() (int64, error) {
	str := strings.TrimSpace(string(s.value))
	if str == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("checkpoint: value %q is not an integer: %w", str, err)
	}
	return n, nil
}

func (s *State) SetInteger(n int64) error {
	return s.SetString(strconv.FormatInt(n, 10))
}

// Increment adds one to the integer value and returns the new value.
func (s *State) Increment() (int64, error) {
	s.incMu.Lock()
	defer s.incMu.Unlock()

	n, err := s.Integer()
	if err != nil {
		return 0, err
	}
	n++
	if err := s.SetInteger(n); err != nil {
		return 0, err
	}
	return n, nil
}
