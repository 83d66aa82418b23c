package state

import (
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"fixedcredit/storage"
)

// Manager provides journaled key/value access to ledger state. Writes are
// buffered in memory until Commit flushes them to the backing database, and
// every write is recorded so callers can roll back to a snapshot when an
// operation fails halfway through.
//
// Manager is not safe for concurrent mutation; the owner serialises writers.
type Manager struct {
	mu      sync.RWMutex
	db      storage.Database
	dirty   map[string][]byte
	deleted map[string]bool
	journal []journalEntry
}

type journalEntry struct {
	key        string
	prev       []byte
	wasDirty   bool
	wasDeleted bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

func kvKey(key []byte) string {
	return string(ethcrypto.Keccak256(key))
}

// KVPut stores the RLP encoding of value under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	hashed := kvKey(key)
	m.record(hashed)
	m.dirty[hashed] = encoded
	delete(m.deleted, hashed)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.load(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the key from state.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	hashed := kvKey(key)
	m.record(hashed)
	delete(m.dirty, hashed)
	m.deleted[hashed] = true
	return nil
}

func (m *Manager) load(hashed string) ([]byte, error) {
	m.mu.RLock()
	if m.deleted[hashed] {
		m.mu.RUnlock()
		return nil, nil
	}
	if value, ok := m.dirty[hashed]; ok {
		m.mu.RUnlock()
		return value, nil
	}
	m.mu.RUnlock()
	if m.db == nil {
		return nil, nil
	}
	value, err := m.db.Get([]byte(hashed))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

// record must be called with the write lock held.
func (m *Manager) record(hashed string) {
	prev, wasDirty := m.dirty[hashed]
	m.journal = append(m.journal, journalEntry{
		key:        hashed,
		prev:       prev,
		wasDirty:   wasDirty,
		wasDeleted: m.deleted[hashed],
	})
}

// Snapshot returns an identifier for the current journal position.
func (m *Manager) Snapshot() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.journal)
}

// RevertToSnapshot discards every write made after the snapshot was taken.
func (m *Manager) RevertToSnapshot(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		entry := m.journal[i]
		if entry.wasDirty {
			m.dirty[entry.key] = entry.prev
		} else {
			delete(m.dirty, entry.key)
		}
		if entry.wasDeleted {
			m.deleted[entry.key] = true
		} else {
			delete(m.deleted, entry.key)
		}
	}
	m.journal = m.journal[:id]
}

// Commit flushes buffered writes to the database in one batch and clears the
// journal. Snapshots taken before Commit become invalid.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.dirty) == 0 && len(m.deleted) == 0 {
		m.journal = m.journal[:0]
		return nil
	}
	if m.db != nil {
		batch := make(map[string][]byte, len(m.dirty)+len(m.deleted))
		for key, value := range m.dirty {
			batch[key] = value
		}
		for key := range m.deleted {
			batch[key] = nil
		}
		if err := m.db.Write(batch); err != nil {
			return fmt.Errorf("state: commit: %w", err)
		}
	}
	m.dirty = make(map[string][]byte)
	m.deleted = make(map[string]bool)
	m.journal = m.journal[:0]
	return nil
}

// Pending reports the number of buffered keys awaiting Commit.
func (m *Manager) Pending() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.dirty) + len(m.deleted)
}
