// Package cache is the embedded cache store driver from spec.md
// §4.3: a bbolt-backed key-value store holding three namespaces
// (episodes, patterns, heuristics), each with TTL expiry and
// capacity-bounded eviction of the oldest-written entries (reads do not
// refresh an entry), read-through via single-flight, and write-through
// invalidation.
package cache

import (
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"
	"golang.org/x/sync/singleflight"

	memerrors "github.com/nexusmem/memengine/infrastructure/errors"
)

var namespaces = [][]byte{[]byte("episodes"), []byte("patterns"), []byte("heuristics")}

type record struct {
	Value    json.RawMessage `json:"value"`
	StoredAt time.Time       `json:"stored_at"`
}

// Store is the embedded KV cache. Safe for concurrent use; bbolt
// serializes writers internally.
type Store struct {
	db         *bbolt.DB
	ttl        time.Duration
	maxEntries int
	group      singleflight.Group
}

// Open creates or opens the bbolt file at path and ensures every
// namespace bucket exists.
func Open(path string, ttl time.Duration, maxEntries int) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, memerrors.Cache("open", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, ns := range namespaces {
			if _, err := tx.CreateBucketIfNotExists(ns); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, memerrors.Cache("init_buckets", err)
	}

	return &Store{db: db, ttl: ttl, maxEntries: maxEntries}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get reads a raw value from namespace, returning (nil, false, nil) on
// a miss or an expired entry.
func (s *Store) Get(namespace, key string) ([]byte, bool, error) {
	var value []byte
	var expired bool

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(key))
		if raw == nil {
			return nil
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return memerrors.Serialization("cache_record", err)
		}
		if s.ttl > 0 && time.Since(rec.StoredAt) > s.ttl {
			expired = true
			return nil
		}
		value = []byte(rec.Value)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if expired {
		_ = s.Delete(namespace, key)
		return nil, false, nil
	}
	return value, value != nil, nil
}

// Set writes a raw value into namespace and evicts the oldest entries
// once the bucket exceeds maxEntries.
func (s *Store) Set(namespace, key string, value []byte) error {
	rec := record{Value: json.RawMessage(value), StoredAt: time.Now()}
	raw, err := json.Marshal(rec)
	if err != nil {
		return memerrors.Serialization("cache_record", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			var err error
			if b, err = tx.CreateBucketIfNotExists([]byte(namespace)); err != nil {
				return memerrors.Cache("create_bucket", err)
			}
		}
		if err := b.Put([]byte(key), raw); err != nil {
			return memerrors.Cache("put", err)
		}
		return evictOldest(b, s.maxEntries)
	})
}

// evictOldest drops the oldest-stored entries in b until its count is
// at or below maxEntries. Recency is approximated by StoredAt since
// bbolt iterates keys in byte order, not insertion order.
func evictOldest(b *bbolt.Bucket, maxEntries int) error {
	if maxEntries <= 0 {
		return nil
	}
	n := b.Stats().KeyN
	if n <= maxEntries {
		return nil
	}

	type agedKey struct {
		key      []byte
		storedAt time.Time
	}
	var aged []agedKey
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var rec record
		if err := json.Unmarshal(v, &rec); err != nil {
			continue
		}
		aged = append(aged, agedKey{key: append([]byte(nil), k...), storedAt: rec.StoredAt})
	}

	for i := 0; i < len(aged) && n > maxEntries; i++ {
		for j := i + 1; j < len(aged); j++ {
			if aged[j].storedAt.Before(aged[i].storedAt) {
				aged[i], aged[j] = aged[j], aged[i]
			}
		}
		if err := b.Delete(aged[i].key); err != nil {
			return err
		}
		n--
	}
	return nil
}

// Delete removes one key from namespace.
func (s *Store) Delete(namespace, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// GetOrLoad reads key from namespace, coalescing concurrent misses for
// the same key via singleflight and populating the cache with loader's
// result on a miss.
func (s *Store) GetOrLoad(namespace, key string, loader func() ([]byte, error)) ([]byte, error) {
	if value, ok, err := s.Get(namespace, key); err != nil {
		return nil, err
	} else if ok {
		return value, nil
	}

	v, err, _ := s.group.Do(namespace+"/"+key, func() (interface{}, error) {
		value, err := loader()
		if err != nil {
			return nil, err
		}
		if err := s.Set(namespace, key, value); err != nil {
			return nil, err
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
