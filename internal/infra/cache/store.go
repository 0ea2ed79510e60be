package cache

import (
	"encoding/json"
	"sync"
	"time"
)

// Entry is one cached aggregate value.
type Entry struct {
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	InsertedAt time.Time       `json:"insertedAt"`
	TTL        time.Duration   `json:"ttl"`
}

// Expired reports whether the entry is stale at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.InsertedAt.Add(e.TTL))
}

// Store persists cache entries. Get returns ok=false on a miss.
type Store interface {
	Get(key string) (Entry, bool, error)
	Put(entry Entry) error
	Delete(key string) error
}

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	entry.Value = append(json.RawMessage(nil), entry.Value...)
	return entry, true, nil
}

func (s *MemoryStore) Put(entry Entry) error {
	entry.Value = append(json.RawMessage(nil), entry.Value...)
	s.mu.Lock()
	s.entries[entry.Key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}
