// Package store is DroneHub's bbolt-backed durable persistence layer. It
// owns no domain semantics itself — internal/registry and
// internal/promptqueue each use it as a bucket-per-concern key-value
// store, following the same atomic JSON-marshal-then-Put idiom the corpus
// uses for its own BoltDB persistence.
package store

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	BucketDrones           = []byte("drones")
	BucketRepos            = []byte("repos")
	BucketChats            = []byte("chats")
	BucketPendingPrompts   = []byte("pending_prompts")
	BucketTerminalSessions = []byte("terminal_sessions")
)

// allBuckets lists every bucket Open must ensure exists.
var allBuckets = [][]byte{
	BucketDrones, BucketRepos, BucketChats, BucketPendingPrompts, BucketTerminalSessions,
}

// Store wraps a BoltDB database for DroneHub persistence.
type Store struct {
	db *bolt.DB
}

// Open creates or opens a BoltDB database at path and ensures all required
// buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying BoltDB.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes raw bytes under key in the given bucket.
func (s *Store) Put(bucket, key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, value)
	})
}

// Get reads raw bytes for key from the given bucket. Returns nil, nil if
// the key does not exist.
func (s *Store) Get(bucket, key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get(key)
		if v == nil {
			return nil
		}
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	return out, err
}

// Delete removes key from the given bucket. Deleting a missing key is a no-op.
func (s *Store) Delete(bucket, key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete(key)
	})
}

// ForEachPrefix calls fn for every key in bucket starting with prefix, in
// key order, until fn returns false or the prefix range ends.
func (s *Store) ForEachPrefix(bucket, prefix []byte, fn func(key, value []byte) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			if !fn(k, v) {
				break
			}
		}
		return nil
	})
}

// ForEach calls fn for every key in bucket, in key order.
func (s *Store) ForEach(bucket []byte, fn func(key, value []byte) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if !fn(k, v) {
				break
			}
		}
		return nil
	})
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
