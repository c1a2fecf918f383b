package store

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/aiorreal/quota-service/internal/errors"
)

// txMaxAttempts bounds optimistic retries before surfacing ErrConflict.
const txMaxAttempts = 5

type memDoc struct {
	data    map[string]any
	version int64
}

// MemoryStore implements Store using in-memory storage with per-document
// versions for optimistic transaction concurrency.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*memDoc
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]*memDoc),
	}
}

func (s *MemoryStore) collection(name string) map[string]*memDoc {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]*memDoc)
		s.collections[name] = c
	}
	return c
}

// Get retrieves a single document by id
func (s *MemoryStore) Get(ctx context.Context, collection, id string, dest any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return false, nil
	}
	if err := decodeDoc(doc.data, dest); err != nil {
		return false, apperrors.StoreError{Op: "get", Collection: collection, Err: err}
	}
	return true, nil
}

// Set writes a document, replacing it or shallow-merging into the existing one
func (s *MemoryStore) Set(ctx context.Context, collection, id string, doc any, merge bool) error {
	m, err := encodeDoc(doc)
	if err != nil {
		return apperrors.StoreError{Op: "set", Collection: collection, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(collection, id, m, merge)
	return nil
}

// apply writes under the held lock.
func (s *MemoryStore) apply(collection, id string, m map[string]any, merge bool) {
	c := s.collection(collection)
	existing, ok := c[id]
	if ok && merge {
		c[id] = &memDoc{data: mergeDocs(existing.data, m), version: existing.version + 1}
		return
	}
	version := int64(1)
	if ok {
		version = existing.version + 1
	}
	c[id] = &memDoc{data: m, version: version}
}

// Query retrieves documents matching all filters, optionally ordered and
// limited, into dest (a pointer to a slice)
func (s *MemoryStore) Query(ctx context.Context, collection string, filters []Filter, order *Order, limit int, dest any) error {
	s.mu.RLock()

	var result []map[string]any
	for _, doc := range s.collections[collection] {
		ok := true
		for _, f := range filters {
			if !matches(doc.data, f) {
				ok = false
				break
			}
		}
		if ok {
			result = append(result, doc.data)
		}
	}
	s.mu.RUnlock()

	if order != nil {
		sort.SliceStable(result, func(i, j int) bool {
			a, b := orderKey(result[i], order.Field), orderKey(result[j], order.Field)
			if order.Desc {
				return a > b
			}
			return a < b
		})
	}

	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}

	if err := decodeDocs(result, dest); err != nil {
		return apperrors.StoreError{Op: "query", Collection: collection, Err: err}
	}
	return nil
}

type memWrite struct {
	collection string
	id         string
	data       map[string]any
	merge      bool
}

type memBatch struct {
	store  *MemoryStore
	writes []memWrite
	err    error
}

// Batch returns a buffered writer; each applied update is atomic but the
// group is not
func (s *MemoryStore) Batch() Batch {
	return &memBatch{store: s}
}

func (b *memBatch) Set(collection, id string, doc any, merge bool) {
	m, err := encodeDoc(doc)
	if err != nil && b.err == nil {
		b.err = apperrors.StoreError{Op: "batch set", Collection: collection, Err: err}
		return
	}
	b.writes = append(b.writes, memWrite{collection: collection, id: id, data: m, merge: merge})
}

func (b *memBatch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, w := range b.writes {
		b.store.apply(w.collection, w.id, w.data, w.merge)
	}
	b.writes = nil
	return nil
}

type memReadKey struct {
	collection string
	id         string
}

type memTx struct {
	store  *MemoryStore
	reads  map[memReadKey]int64 // version observed, 0 = absent
	writes []memWrite
	err    error
}

func (t *memTx) Get(collection, id string, dest any) (bool, error) {
	t.store.mu.RLock()
	doc, ok := t.store.collections[collection][id]
	var version int64
	var data map[string]any
	if ok {
		version = doc.version
		data = doc.data
	}
	t.store.mu.RUnlock()

	t.reads[memReadKey{collection, id}] = version
	if !ok {
		return false, nil
	}
	if err := decodeDoc(data, dest); err != nil {
		return false, apperrors.StoreError{Op: "tx get", Collection: collection, Err: err}
	}
	return true, nil
}

func (t *memTx) Set(collection, id string, doc any, merge bool) {
	m, err := encodeDoc(doc)
	if err != nil && t.err == nil {
		t.err = apperrors.StoreError{Op: "tx set", Collection: collection, Err: err}
		return
	}
	t.writes = append(t.writes, memWrite{collection: collection, id: id, data: m, merge: merge})
}

// RunTransaction runs fn with optimistic concurrency: reads record document
// versions, writes are buffered, and commit fails if any read document
// changed underneath. The driver retries the closure a bounded number of
// times before surfacing ErrConflict.
func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	for attempt := 0; attempt < txMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx := &memTx{store: s, reads: make(map[memReadKey]int64)}
		if err := fn(tx); err != nil {
			return err
		}
		if tx.err != nil {
			return tx.err
		}

		if s.commit(tx) {
			return nil
		}
	}
	return apperrors.ErrConflict
}

// commit validates the read set and applies buffered writes atomically.
func (s *MemoryStore) commit(tx *memTx) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, version := range tx.reads {
		var current int64
		if doc, ok := s.collections[key.collection][key.id]; ok {
			current = doc.version
		}
		if current != version {
			return false
		}
	}

	for _, w := range tx.writes {
		s.apply(w.collection, w.id, w.data, w.merge)
	}
	return true
}

// Health always returns nil for the in-memory store
func (s *MemoryStore) Health(ctx context.Context) error {
	return nil
}
