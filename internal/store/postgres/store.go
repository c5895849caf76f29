// Package postgres is the primary store driver: sqlx + lib/pq over a
// schema managed by golang-migrate, implementing store.Driver.
package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/nexusmem/memengine/internal/store/preparedcache"
)

// Store is the primary driver. It satisfies store.Driver.
type Store struct {
	db       *sqlx.DB
	prepared *preparedcache.Cache
	index    VectorIndex
}

// New wraps an already-open *sqlx.DB. Callers obtain one via Open.
func New(db *sqlx.DB, preparedCapacity int) *Store {
	return &Store{
		db:       db,
		prepared: preparedcache.New(preparedCapacity),
		index:    BruteForceIndex{},
	}
}

// WithVectorIndex overrides the similarity search strategy, per
// spec.md §4.8's injectable index design note.
func (s *Store) WithVectorIndex(idx VectorIndex) *Store {
	s.index = idx
	return s
}

// Close releases the prepared-statement cache and the underlying pool.
func (s *Store) Close() error {
	s.prepared.Close()
	return s.db.Close()
}
