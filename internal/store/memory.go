package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/JonMunkholm/foodingest/internal/food"
)

// Memory is an in-process store for local runs and tests. Committed items
// are passed to the OnCommit handler, standing in for a change stream.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]map[string]food.FoodRecord

	onCommit ChangeHandler
}

// NewMemory returns an empty store. onCommit may be nil.
func NewMemory(onCommit ChangeHandler) *Memory {
	return &Memory{
		tables:   make(map[string]map[string]food.FoodRecord),
		onCommit: onCommit,
	}
}

// BatchWrite stores every item, last write wins.
func (m *Memory) BatchWrite(ctx context.Context, table string, items []food.FoodRecord) ([]food.FoodRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, &food.BatchWriteError{Table: table, Size: len(items), Retryable: true, Err: err}
	}

	m.mu.Lock()
	t, ok := m.tables[table]
	if !ok {
		t = make(map[string]food.FoodRecord)
		m.tables[table] = t
	}
	for _, it := range items {
		t[it.FoodName] = it
	}
	m.mu.Unlock()

	if m.onCommit != nil && len(items) > 0 {
		events := make([]food.ChangeEvent, len(items))
		for i, it := range items {
			events[i] = food.ChangeEventFromImage(uuid.NewString(), it.Attributes())
		}
		m.onCommit(ctx, events)
	}
	return nil, nil
}

// Get returns the item stored under name.
func (m *Memory) Get(table, name string) (food.FoodRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.tables[table][name]
	return r, ok
}

// Items returns every item in table ordered by food_name.
func (m *Memory) Items(table string) []food.FoodRecord {
	m.mu.RLock()
	out := make([]food.FoodRecord, 0, len(m.tables[table]))
	for _, r := range m.tables[table] {
		out = append(out, r)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].FoodName < out[j].FoodName })
	return out
}
