package rdf

import (
	"fmt"
	"sync"
)

// NoContext is the identifier hosts use for "statement has no named graph".
const NoContext int64 = 0

// Entities resolves host entity identifiers to typed values.
// Implementations are supplied by the host per call and must not be retained
// across transactions.
type Entities interface {
	Get(id int64) (Value, error)
}

// MapEntities is an in-memory Entities backed by a map.
// Safe for concurrent use.
type MapEntities struct {
	mu     sync.RWMutex
	values map[int64]Value
	next   int64
}

// NewMapEntities creates an empty entity pool. Identifiers start at 1 so that
// NoContext never collides with an interned value.
func NewMapEntities() *MapEntities {
	return &MapEntities{values: make(map[int64]Value)}
}

// Put interns v and returns its identifier. Interning the same rendered value
// twice returns the existing identifier.
func (m *MapEntities) Put(v Value) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	text, err := Render(v)
	if err == nil {
		for id, existing := range m.values {
			if t, _ := Render(existing); t == text {
				return id
			}
		}
	}
	m.next++
	m.values[m.next] = v
	return m.next
}

// Get implements Entities.
func (m *MapEntities) Get(id int64) (Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[id]
	if !ok {
		return nil, fmt.Errorf("entity %d not found", id)
	}
	return v, nil
}

// Resolve looks up subject, predicate, object and context in one call.
// A NoContext context resolves to a nil Value.
func Resolve(ents Entities, subj, pred, obj, ctx int64) (s, p, o, c Value, err error) {
	if s, err = ents.Get(subj); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("resolve subject: %w", err)
	}
	if p, err = ents.Get(pred); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("resolve predicate: %w", err)
	}
	if o, err = ents.Get(obj); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("resolve object: %w", err)
	}
	if ctx != NoContext {
		if c, err = ents.Get(ctx); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("resolve context: %w", err)
		}
	}
	return s, p, o, c, nil
}
