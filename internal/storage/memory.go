package storage

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/serroba/taskgrid/internal/project"
)

// ErrInjectedFailure is returned by MemoryStore.Save while failures are enabled.
var ErrInjectedFailure = errors.New("injected save failure")

// storedDocument holds the persisted bytes for a single project.
type storedDocument struct {
	data    []byte
	modTime time.Time
}

// MemoryStore is an in-memory implementation of the Store interface.
// Documents are kept serialized so a Load never aliases a saved document.
// Useful for testing and development.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]storedDocument
	saves map[string]int
	fail  bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[string]storedDocument),
		saves: make(map[string]int),
	}
}

// Load decodes the last saved snapshot of a project.
func (m *MemoryStore) Load(name string) (*project.Document, error) {
	m.mu.RLock()
	stored, exists := m.docs[name]
	m.mu.RUnlock()

	if !exists {
		return nil, ErrDocumentNotFound
	}

	var doc project.Document
	if err := json.Unmarshal(stored.data, &doc); err != nil {
		return nil, err
	}

	return &doc, nil
}

// Save serializes and stores a snapshot.
func (m *MemoryStore) Save(name string, doc *project.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return ErrInjectedFailure
	}

	m.docs[name] = storedDocument{data: data, modTime: time.Now()}
	m.saves[name]++

	return nil
}

// List returns every stored project.
func (m *MemoryStore) List() ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.docs))
	for name, stored := range m.docs {
		infos = append(infos, Info{Name: name, ModTime: stored.modTime})
	}

	return infos, nil
}

// Exists reports whether a project has been saved.
func (m *MemoryStore) Exists(name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.docs[name]

	return ok, nil
}

// SaveCount returns how many successful saves a project has received.
func (m *MemoryStore) SaveCount(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.saves[name]
}

// FailSaves makes subsequent saves fail until called with false.
func (m *MemoryStore) FailSaves(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fail = fail
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
