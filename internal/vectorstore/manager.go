package vectorstore

import (
	"sync"

	"github.com/jenilsoni-ai/chatsphere/internal/config"
)

// Manager holds the process-wide active vector store and supports switching
// backends at runtime. A switch only affects operations started afterwards:
// callers snapshot the store once via Current at the start of an operation and
// keep using that snapshot.
type Manager struct {
	dimensions int

	mu      sync.RWMutex
	current VectorStore
	cfg     config.VectorStoreConfig
}

// NewManager creates the initial store from cfg.
func NewManager(cfg config.VectorStoreConfig, dimensions int) (*Manager, error) {
	store, err := New(cfg, dimensions)
	if err != nil {
		return nil, err
	}
	return &Manager{dimensions: dimensions, current: store, cfg: cfg}, nil
}

// Current returns the active store.
func (m *Manager) Current() VectorStore {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Config returns the active backend configuration.
func (m *Manager) Config() config.VectorStoreConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Switch replaces the active store. The previous store is left to in-flight
// operations that snapshotted it; it is not closed here.
func (m *Manager) Switch(cfg config.VectorStoreConfig) error {
	store, err := New(cfg, m.dimensions)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.current = store
	m.cfg = cfg
	m.mu.Unlock()
	return nil
}

// Close closes the active store.
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Close()
}
