package budget

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists ledger state as a small JSON document.
//
// Serialization contract: the read-modify-write cycle in Update is guarded
// by an in-process mutex and the document is replaced atomically via a
// temp-file rename. The store assumes a single writing process; deployments
// that share a ledger across processes should use SQLiteStore instead.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates the parent directory if needed and returns a store
// backed by path.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load reads the persisted state. A missing or corrupt file reads as the
// zero state.
func (f *FileStore) Load(_ context.Context) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadLocked(), nil
}

func (f *FileStore) loadLocked() State {
	var st State
	data, err := os.ReadFile(f.path)
	if err != nil {
		return State{}
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}
	}
	if st.Used < 0 {
		st.Used = 0
	}
	return st
}

// Update applies fn under the store lock and persists the result atomically.
func (f *FileStore) Update(_ context.Context, fn func(*State)) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.loadLocked()
	fn(&st)

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return State{}, fmt.Errorf("marshal ledger state: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return State{}, fmt.Errorf("write ledger state: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return State{}, fmt.Errorf("replace ledger state: %w", err)
	}
	return st, nil
}

// Close implements Store. A FileStore holds no resources.
func (f *FileStore) Close() error {
	return nil
}
