// Package cache persists JSON values under string keys in a bbolt database.
// It backs the admin view's schema and list caches and the `wisp cache`
// command.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/conneroisu/wisp/internal/errors"
)

const defaultBucket = "wisp"

// Item is one cached key/value pair.
type Item struct {
	Key   string
	Value any
}

// Store is a key/value cache in one bbolt bucket.
type Store struct {
	db     *bolt.DB
	bucket []byte
	owned  bool
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "cannot create cache directory", err)
		}
	}
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "cannot open cache "+path, err)
	}
	s, err := newStore(db, defaultBucket)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// Bucket returns a store sharing this database under another bucket.
func (s *Store) Bucket(name string) (*Store, error) {
	return newStore(s.db, name)
}

func newStore(db *bolt.DB, bucket string) (*Store, error) {
	s := &Store{db: db, bucket: []byte(bucket)}
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeInternalError, "cannot initialize cache bucket", err)
	}
	return s, nil
}

// Close closes the database if this store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Set stores value as JSON and returns it.
func (s *Store) Set(key string, value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeDecode, "cannot encode cache value for "+key, err)
	}
	return value, s.put(key, raw)
}

func (s *Store) put(key string, raw []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), raw)
	})
}

func (s *Store) raw(key string) []byte {
	var out []byte
	_ = s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(s.bucket).Get([]byte(key)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out
}

// Get returns the decoded value for key. A value that is not valid JSON is
// returned as the raw string. Keys that Has reports absent yield false.
func (s *Store) Get(key string) (any, bool) {
	raw := s.raw(key)
	if len(raw) == 0 {
		return nil, false
	}
	return decode(raw), true
}

func decode(raw []byte) any {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}
	return value
}

// Has reports whether key holds a non-empty value.
func (s *Store) Has(key string) bool {
	return len(s.raw(key)) > 0
}

// Remove deletes key.
func (s *Store) Remove(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}

// Clear deletes every key in the store's bucket.
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(s.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(s.bucket)
		return err
	})
}

// Keys returns every key in byte order.
func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// Items returns every pair in key order.
func (s *Store) Items() ([]Item, error) {
	var items []Item
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(k, v []byte) error {
			items = append(items, Item{Key: string(k), Value: decode(v)})
			return nil
		})
	})
	return items, err
}

// Values returns every value in key order.
func (s *Store) Values() ([]any, error) {
	items, err := s.Items()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(items))
	for i, item := range items {
		values[i] = item.Value
	}
	return values, nil
}

// SchemaPrefix namespaces schema entries.
const SchemaPrefix = "DocType/"

// SchemaCache stores document type schemas under SchemaPrefix.
type SchemaCache struct {
	*Store
}

// NewSchemaCache wraps s.
func NewSchemaCache(s *Store) *SchemaCache {
	return &SchemaCache{Store: s}
}

func (c *SchemaCache) Set(doctype string, schema any) (any, error) {
	return c.Store.Set(SchemaPrefix+doctype, schema)
}

func (c *SchemaCache) Get(doctype string) (any, bool) {
	return c.Store.Get(SchemaPrefix + doctype)
}

// Has accepts the doctype with or without the prefix.
func (c *SchemaCache) Has(doctype string) bool {
	if !strings.HasPrefix(doctype, SchemaPrefix) {
		doctype = SchemaPrefix + doctype
	}
	return c.Store.Has(doctype)
}

func (c *SchemaCache) Remove(doctype string) error {
	return c.Store.Remove(SchemaPrefix + doctype)
}
