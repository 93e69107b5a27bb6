package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is a map-backed DocumentStore used in tests and local runs
// without a database.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]json.RawMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]json.RawMessage),
	}
}

func (s *MemoryStore) Put(ctx context.Context, collection, id string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s/%s: %w", collection, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]json.RawMessage)
	}
	s.collections[collection][id] = data
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string, out any) error {
	s.mu.RLock()
	data, ok := s.collections[collection][id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(data, out)
}

func (s *MemoryStore) Query(ctx context.Context, collection string, filters []Filter, order []Ordering) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type doc struct {
		raw    json.RawMessage
		fields map[string]any
	}

	var docs []doc
	for _, raw := range s.collections[collection] {
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document in %s: %w", collection, err)
		}
		matched := true
		for _, f := range filters {
			eq := jsonEqual(fields[f.Field], f.Value)
			if (f.Op == OpEqual && !eq) || (f.Op == OpNotEqual && eq) {
				matched = false
				break
			}
		}
		if matched {
			docs = append(docs, doc{raw: raw, fields: fields})
		}
	}

	sort.SliceStable(docs, func(i, j int) bool {
		for _, o := range order {
			a := fmt.Sprintf("%v", docs[i].fields[o.Field])
			b := fmt.Sprintf("%v", docs[j].fields[o.Field])
			if a == b {
				continue
			}
			if o.Desc {
				return a > b
			}
			return a < b
		}
		return false
	})

	results := make([]json.RawMessage, 0, len(docs))
	for _, d := range docs {
		results = append(results, d.raw)
	}
	return results, nil
}

func (s *MemoryStore) BatchWrite(ctx context.Context, ops []WriteOp) error {
	for _, op := range ops {
		if err := s.Put(ctx, op.Collection, op.ID, op.Record); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a document. Test helper; the persistent store has no
// delete because application data is only ever soft-deleted.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
}

// Count reports the number of documents in a collection. Test helper.
func (s *MemoryStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// jsonEqual compares two values after JSON normalization so that typed
// records and their decoded map form agree on numbers and booleans.
func jsonEqual(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
