package cache

import (
	"context"
	"sync"
	"time"
)

// Storage is a registry of named caches (namespaces).
// Deleting a namespace drops every entry in it.
//
// Implementations must be thread-safe!
type Storage interface {
	// Open returns the named cache, creating it if needed.
	Open(ctx context.Context, name string) (Cache, error)
	// Names returns every cache name, in creation order.
	Names(ctx context.Context) ([]string, error)
	// Delete removes the named cache and reports whether it existed.
	Delete(ctx context.Context, name string) (bool, error)
	Close() error
}

// Cache stores serialized HTTP responses under opaque keys.
// It remembers the order in which keys were inserted; that order is the only
// notion of age it has. Putting an existing key moves it to the end.
//
// Implementations must be thread-safe! Every single operation is atomic,
// sequences of operations are not.
type Cache interface {
	Name() string
	// Match returns the entry stored under key, if any.
	Match(ctx context.Context, key string) (Entry, bool, error)
	// Put stores bytes under key, replacing any previous entry.
	Put(ctx context.Context, key string, bytes []byte) error
	// Delete removes the entry for key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// Keys returns all keys, oldest insertion first.
	Keys(ctx context.Context) ([]string, error)
}

type Entry struct {
	Key      string
	StoredAt time.Time
	Bytes    []byte
}

type memEntry struct {
	storedAt time.Time
	bytes    []byte
}

// MemStorage keeps every namespace in process memory.
type MemStorage struct {
	mutex  *sync.RWMutex
	caches map[string]*MemCache
	names  []string
}

func NewMemStorage() *MemStorage {
	return &MemStorage{
		mutex:  &sync.RWMutex{},
		caches: make(map[string]*MemCache),
	}
}

func (m *MemStorage) Open(_ context.Context, name string) (Cache, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if c, ok := m.caches[name]; ok {
		return c, nil
	}
	c := newMemCache(name)
	m.caches[name] = c
	m.names = append(m.names, name)
	return c, nil
}

func (m *MemStorage) Names(_ context.Context) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return append([]string(nil), m.names...), nil
}

func (m *MemStorage) Delete(_ context.Context, name string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.caches[name]; !ok {
		return false, nil
	}
	delete(m.caches, name)
	m.names = removeString(m.names, name)
	return true, nil
}

func (m *MemStorage) Close() error {
	return nil
}

// MemCache is an insertion-ordered in-memory cache.
type MemCache struct {
	name  string
	mutex *sync.RWMutex
	db    map[string]memEntry
	order []string
}

func newMemCache(name string) *MemCache {
	return &MemCache{
		name:  name,
		mutex: &sync.RWMutex{},
		db:    make(map[string]memEntry),
	}
}

func (m *MemCache) Name() string {
	return m.name
}

func (m *MemCache) Match(_ context.Context, key string) (Entry, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.db[key]
	if !ok {
		return Entry{}, false, nil
	}
	return Entry{Key: key, StoredAt: entry.storedAt, Bytes: entry.bytes}, true, nil
}

func (m *MemCache) Put(_ context.Context, key string, bytes []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.db[key]; ok {
		m.order = removeString(m.order, key)
	}
	m.db[key] = memEntry{storedAt: time.Now(), bytes: bytes}
	m.order = append(m.order, key)
	return nil
}

func (m *MemCache) Delete(_ context.Context, key string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.db[key]; !ok {
		return false, nil
	}
	delete(m.db, key)
	m.order = removeString(m.order, key)
	return true, nil
}

func (m *MemCache) Keys(_ context.Context) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return append([]string(nil), m.order...), nil
}

func removeString(s []string, v string) []string {
	for i, e := range s {
		if e == v {
			return append(s[:i:i], s[i+1:]...)
		}
	}
	return s
}
