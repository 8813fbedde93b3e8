package memory

import (
	"context"
	"sort"
	"sync"
)

// KV is a generic in-memory key-value collection.
type KV[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

// NewKV returns an empty collection.
func NewKV[T any]() *KV[T] {
	return &KV[T]{items: make(map[string]T)}
}

func (kv *KV[T]) GetByID(ctx context.Context, id string) (*T, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	item, ok := kv.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

// GetByIDs preserves input order; missing ids yield nil entries.
func (kv *KV[T]) GetByIDs(ctx context.Context, ids []string) ([]*T, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	out := make([]*T, len(ids))
	for i, id := range ids {
		if item, ok := kv.items[id]; ok {
			cp := item
			out[i] = &cp
		}
	}
	return out, nil
}

func (kv *KV[T]) AllIDs(ctx context.Context) ([]string, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	ids := make([]string, 0, len(kv.items))
	for id := range kv.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (kv *KV[T]) Upsert(ctx context.Context, items map[string]T) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	for id, item := range items {
		kv.items[id] = item
	}
	return nil
}

func (kv *KV[T]) Drop(ctx context.Context) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.items = make(map[string]T)
	return nil
}
