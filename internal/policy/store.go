package policy

import (
	"errors"
	"sync/atomic"
)

// Store holds the active snapshot. Reads never block and always see a
// complete snapshot.
type Store struct {
	current atomic.Pointer[Snapshot]
	path    string
}

// NewStore compiles p as the initial snapshot. path is the file ReloadFile
// reads; it may be empty when the policy is built in.
func NewStore(p *Policy, path string) (*Store, error) {
	snap, err := Compile(p)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path}
	s.current.Store(snap)
	return s, nil
}

// Current returns the active snapshot.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Path returns the policy file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Swap compiles p and makes it the active snapshot. On error the previous
// snapshot stays active.
func (s *Store) Swap(p *Policy) (*Snapshot, error) {
	snap, err := Compile(p)
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)
	return snap, nil
}

// ErrNoPolicyFile is returned by ReloadFile when the store has no file.
var ErrNoPolicyFile = errors.New("no policy file configured")

// ReloadFile re-reads the policy file and swaps it in.
func (s *Store) ReloadFile() (*Snapshot, error) {
	if s.path == "" {
		return nil, ErrNoPolicyFile
	}
	p, err := LoadFile(s.path)
	if err != nil {
		return nil, err
	}
	return s.Swap(p)
}
