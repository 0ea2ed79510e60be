package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	ErrStoreClosed = errors.New("cache store is closed")

	entriesBucket = []byte("entries")
)

// BoltStore keeps entries in a bbolt file so warm aggregates survive a restart.
// Expired entries are left in place and overwritten on the next compute.
type BoltStore struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	closed bool
}

func OpenBoltStore(path string) (*BoltStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure cache dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entriesBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init cache db: %w", err)
	}
	return &BoltStore{db: db, path: trimmed}, nil
}

func (s *BoltStore) Path() string {
	return s.path
}

func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *BoltStore) Get(key string) (Entry, bool, error) {
	var (
		entry Entry
		found bool
	)
	err := s.view(func(tx *bolt.Tx) error {
		raw := tx.Bucket(entriesBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("decode cache entry %q: %w", key, err)
		}
		found = true
		return nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	return entry, found, nil
}

func (s *BoltStore) Put(entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry %q: %w", entry.Key, err)
	}
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).Put([]byte(entry.Key), payload)
	})
}

func (s *BoltStore) Delete(key string) error {
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).Delete([]byte(key))
	})
}

func (s *BoltStore) view(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.View(fn)
}

func (s *BoltStore) update(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.Update(fn)
}
