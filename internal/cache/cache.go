package cache

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	badger "github.com/dgraph-io/badger/v4"
)

// Store is a fail-open string key/value cache with per-entry TTL, backed by
// an embedded badger database. When the underlying store cannot be opened
// or an operation fails, the store degrades: Get reports a miss, Set is a
// no-op, and a background goroutine keeps retrying the open until the store
// recovers. Callers never see a cache error.
type Store struct {
	mu       sync.RWMutex
	db       *badger.DB
	dir      string
	degraded bool
	closed   bool
}

// Open creates a cache store at dir. A failed open returns a degraded (but
// usable) store rather than an error.
func Open(dir string) *Store {
	s := &Store{dir: dir}

	db, err := badger.Open(badgerOptions(dir))
	if err != nil {
		log.Printf("[cache] open failed, degrading to pass-through: %v", err)
		s.degraded = true
		go s.recover()
		return s
	}

	s.db = db
	return s
}

func badgerOptions(dir string) badger.Options {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	return opts
}

// Get returns the cached value for key. Expired, absent, and degraded all
// look identical: a miss.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	db := s.db
	degraded := s.degraded
	s.mu.RUnlock()

	if degraded || db == nil {
		return "", false
	}

	var value string
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			value = string(v)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return "", false
	}
	if err != nil {
		s.degrade(err)
		return "", false
	}
	return value, true
}

// Set stores value under key for ttl. Errors degrade the store instead of
// surfacing.
func (s *Store) Set(key, value string, ttl time.Duration) {
	s.mu.RLock()
	db := s.db
	degraded := s.degraded
	s.mu.RUnlock()

	if degraded || db == nil || ttl <= 0 {
		return
	}

	err := db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), []byte(value)).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		s.degrade(err)
	}
}

// Degraded reports whether the store is currently passing through.
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// Close shuts the store down and stops recovery attempts.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	db := s.db
	s.db = nil
	s.mu.Unlock()

	if db != nil {
		return db.Close()
	}
	return nil
}

func (s *Store) degrade(cause error) {
	s.mu.Lock()
	if s.degraded || s.closed {
		s.mu.Unlock()
		return
	}
	log.Printf("[cache] store error, degrading to pass-through: %v", cause)
	s.degraded = true
	db := s.db
	s.db = nil
	s.mu.Unlock()

	if db != nil {
		db.Close()
	}
	go s.recover()
}

// recover retries opening the store with backoff until it succeeds or the
// store is closed.
func (s *Store) recover() {
	err := retry.Do(
		func() error {
			s.mu.RLock()
			closed := s.closed
			s.mu.RUnlock()
			if closed {
				return nil
			}

			db, err := badger.Open(badgerOptions(s.dir))
			if err != nil {
				return err
			}

			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				db.Close()
				return nil
			}
			s.db = db
			s.degraded = false
			s.mu.Unlock()

			log.Printf("[cache] store recovered")
			return nil
		},
		retry.Context(context.Background()),
		retry.Attempts(0), // retry until success
		retry.Delay(5*time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		log.Printf("[cache] recovery abandoned: %v", err)
	}
}
