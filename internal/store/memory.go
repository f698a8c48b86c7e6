package store

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is the in-process Store implementation. It is the default
// backend for local development and the fixture for every engine test.
// Subscription callbacks fire synchronously after the mutation commits,
// serialized per subscription.
type MemoryStore struct {
	mu      sync.RWMutex
	colls   map[string]map[string]Record
	order   map[string][]string
	subs    map[int]*memorySub
	nextSub int
}

type memorySub struct {
	mu         sync.Mutex
	collection string
	field      string
	value      any
	onChange   func()
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		colls: make(map[string]map[string]Record),
		order: make(map[string][]string),
		subs:  make(map[int]*memorySub),
	}
}

func (s *MemoryStore) Insert(_ context.Context, collection string, rec Record) (string, error) {
	s.mu.Lock()
	id := uuid.NewString()
	s.put(collection, id, maps.Clone(rec))
	changed := maps.Clone(rec)
	s.mu.Unlock()

	s.notify(collection, changed)
	return id, nil
}

func (s *MemoryStore) Update(_ context.Context, collection, key string, patch Record) error {
	s.mu.Lock()
	coll := s.colls[collection]
	if coll == nil {
		coll = make(map[string]Record)
		s.colls[collection] = coll
	}
	rec, ok := coll[key]
	if !ok {
		rec = make(Record)
		s.put(collection, key, rec)
	}
	maps.Copy(rec, patch)
	changed := maps.Clone(rec)
	s.mu.Unlock()

	s.notify(collection, changed)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, collection, key string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.colls[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	return maps.Clone(rec), nil
}

func (s *MemoryStore) QueryByField(_ context.Context, collection, field string, value any) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, key := range s.order[collection] {
		rec := s.colls[collection][key]
		if rec[field] != value {
			continue
		}
		cp := maps.Clone(rec)
		cp[FieldID] = key
		out = append(out, cp)
	}
	return out, nil
}

func (s *MemoryStore) Subscribe(_ context.Context, collection, field string, value any, onChange func()) (CancelFunc, error) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = &memorySub{
		collection: collection,
		field:      field,
		value:      value,
		onChange:   onChange,
	}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}, nil
}

// put assumes s.mu is held.
func (s *MemoryStore) put(collection, key string, rec Record) {
	coll := s.colls[collection]
	if coll == nil {
		coll = make(map[string]Record)
		s.colls[collection] = coll
	}
	if _, exists := coll[key]; !exists {
		s.order[collection] = append(s.order[collection], key)
	}
	coll[key] = rec
}

func (s *MemoryStore) notify(collection string, changed Record) {
	s.mu.RLock()
	var targets []*memorySub
	for _, sub := range s.subs {
		if sub.collection != collection {
			continue
		}
		if sub.field != "" && changed[sub.field] != sub.value {
			continue
		}
		targets = append(targets, sub)
	}
	s.mu.RUnlock()

	for _, sub := range targets {
		sub.mu.Lock()
		sub.onChange()
		sub.mu.Unlock()
	}
}
