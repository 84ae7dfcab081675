// Package store is the key-value substrate the auction commits its state to.
// Every state transition is staged in a Txn and written as one leveldb batch.
package store

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned when a key is absent
var ErrNotFound = errors.New("store: key not found")

// Store is a leveldb-backed key-value store
type Store struct {
	db   *leveldb.DB
	sync bool
}

// Open opens (or creates) a persistent store at path. Writes are fsynced.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}
	return &Store{db: db, sync: true}, nil
}

// OpenMemory opens a store that lives only in memory
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open memory leveldb: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key
func (s *Store) Get(key []byte) ([]byte, error) {
	v, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %x: %w", key, err)
	}
	return v, nil
}

// Has reports whether key is present
func (s *Store) Has(key []byte) (bool, error) {
	ok, err := s.db.Has(key, nil)
	if err != nil {
		return false, fmt.Errorf("has %x: %w", key, err)
	}
	return ok, nil
}

// Iterate calls fn for every key with the given prefix in key order.
// The slices passed to fn are copies and may be retained.
func (s *Store) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	it := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	for it.Next() {
		key := append([]byte(nil), it.Key()...)
		value := append([]byte(nil), it.Value()...)
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return it.Error()
}

// Begin starts a transaction. Reads see the transaction's own pending writes.
// Callers serialize transactions; the store does not detect conflicts.
func (s *Store) Begin() *Txn {
	return &Txn{
		store:   s,
		batch:   new(leveldb.Batch),
		pending: make(map[string][]byte),
	}
}

// Txn stages writes until Commit
type Txn struct {
	store   *Store
	batch   *leveldb.Batch
	pending map[string][]byte // nil value marks a delete
	done    bool
}

// Get returns the value under key, honoring staged writes
func (t *Txn) Get(key []byte) ([]byte, error) {
	if v, ok := t.pending[string(key)]; ok {
		if v == nil {
			return nil, ErrNotFound
		}
		return v, nil
	}
	return t.store.Get(key)
}

// Has reports whether key is present, honoring staged writes
func (t *Txn) Has(key []byte) (bool, error) {
	if v, ok := t.pending[string(key)]; ok {
		return v != nil, nil
	}
	return t.store.Has(key)
}

// Put stages a write
func (t *Txn) Put(key, value []byte) {
	v := append([]byte{}, value...)
	t.pending[string(key)] = v
	t.batch.Put(key, v)
}

// Delete stages a delete
func (t *Txn) Delete(key []byte) {
	t.pending[string(key)] = nil
	t.batch.Delete(key)
}

// Len returns the number of staged operations
func (t *Txn) Len() int {
	return t.batch.Len()
}

// Commit writes all staged operations atomically. A Txn can be committed once.
func (t *Txn) Commit() error {
	if t.done {
		return errors.New("store: transaction already committed")
	}
	t.done = true
	if t.batch.Len() == 0 {
		return nil
	}
	if err := t.store.db.Write(t.batch, &opt.WriteOptions{Sync: t.store.sync}); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}
