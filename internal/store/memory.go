package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBackend keeps documents in process memory. Identifiers are random UUIDs and
// documents come back in insertion order.
type MemoryBackend struct {
	mu          sync.RWMutex
	name        string
	collections map[string][]Document
}

// NewMemory returns an empty in-memory backend.
func NewMemory(name string) *MemoryBackend {
	if name == "" {
		name = "memory"
	}
	return &MemoryBackend{name: name, collections: make(map[string][]Document)}
}

func (m *MemoryBackend) Name() string {
	return m.name
}

func (m *MemoryBackend) Insert(_ context.Context, collection string, doc Document) (any, error) {
	id := uuid.New()
	stored := make(Document, len(doc)+1)
	for k, v := range doc {
		stored[k] = v
	}
	stored[IDField] = id

	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = append(m.collections[collection], stored)
	return id, nil
}

func (m *MemoryBackend) Find(_ context.Context, collection string, filter Document, limit int) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Document, 0)
	for _, doc := range m.collections[collection] {
		if limit > 0 && len(out) >= limit {
			break
		}
		if matches(doc, filter) {
			out = append(out, clone(doc))
		}
	}
	return out, nil
}

func (m *MemoryBackend) Get(_ context.Context, collection, id string) (Document, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, doc := range m.collections[collection] {
		if doc[IDField] == parsed {
			return clone(doc), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryBackend) Collections(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteOlderThan removes documents whose field holds an RFC3339 timestamp at or before cutoff.
// Documents without a parseable timestamp are kept.
func (m *MemoryBackend) DeleteOlderThan(_ context.Context, collection, field string, cutoff time.Time, _ int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.collections[collection]
	kept := docs[:0]
	var deleted int64
	for _, doc := range docs {
		if ts, ok := timeField(doc[field]); ok && !ts.After(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	m.collections[collection] = kept
	return deleted, nil
}

func timeField(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		ts, err := time.Parse(time.RFC3339Nano, t)
		return ts, err == nil
	default:
		return time.Time{}, false
	}
}

func matches(doc, filter Document) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(got, want) && fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func clone(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
