// Package tokenstore holds the session credential pair. Two persistence
// configurations exist behind one interface: memory (lost on restart) and
// durable (Badger-backed, reloaded across restarts).
package tokenstore

import (
	"errors"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
)

// Slot names for the durable store. Fixed so restarts find the tokens.
const (
	slotAccessToken  = "auth.access_token"
	slotRefreshToken = "auth.refresh_token"
)

// Store is the credential pair contract. Implementations carry no retry or
// refresh logic; callers decide when to mutate.
type Store interface {
	// Set replaces both tokens.
	Set(access, refresh string) error
	// Get returns the current pair. Empty strings mean "not present".
	Get() (access, refresh string, err error)
	// Clear removes both tokens.
	Clear() error
	Close() error
}

// MemoryStore keeps tokens for the process lifetime only.
type MemoryStore struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Set(access, refresh string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access = access
	m.refresh = refresh
	return nil
}

func (m *MemoryStore) Get() (string, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access, m.refresh, nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access = ""
	m.refresh = ""
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// DurableStore persists the pair in a Badger database so an existing session
// survives process restarts.
type DurableStore struct {
	db *badger.DB
}

// OpenDurable opens (or creates) the store at path.
func OpenDurable(path string) (*DurableStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("tokenstore: path is required")
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &DurableStore{db: db}, nil
}

func (d *DurableStore) Set(access, refresh string) error {
	return d.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(slotAccessToken), []byte(access)); err != nil {
			return err
		}
		return txn.Set([]byte(slotRefreshToken), []byte(refresh))
	})
}

func (d *DurableStore) Get() (string, string, error) {
	var access, refresh string
	err := d.db.View(func(txn *badger.Txn) error {
		var err error
		if access, err = readSlot(txn, slotAccessToken); err != nil {
			return err
		}
		refresh, err = readSlot(txn, slotRefreshToken)
		return err
	})
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (d *DurableStore) Clear() error {
	return d.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(slotAccessToken)); err != nil {
			return err
		}
		return txn.Delete([]byte(slotRefreshToken))
	})
}

func (d *DurableStore) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func readSlot(txn *badger.Txn, slot string) (string, error) {
	item, err := txn.Get([]byte(slot))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return "", nil
		}
		return "", err
	}
	var out string
	err = item.Value(func(val []byte) error {
		out = string(val)
		return nil
	})
	return out, err
}
