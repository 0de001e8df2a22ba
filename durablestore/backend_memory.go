package durablestore

import (
	"context"
	"sync"
)

// MemoryBackend is the in-memory reference Backend implementation. Every
// method copies bytes in and out so callers can't alias into internal
// state.
type MemoryBackend struct {
	mu    sync.RWMutex
	ready bool
	inv   *Inventory
	// stores maps a logical store name (e.g. "docs", "meta", or a
	// per-collection table name) to its id -> payload map.
	stores map[string]map[string][]byte
}

// NewMemoryBackend returns an unopened MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{stores: make(map[string]map[string][]byte)}
}

func (b *MemoryBackend) Initialize(ctx context.Context) (*Inventory, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready {
		return b.inv, nil
	}
	b.inv = NewInventory()
	b.ready = true
	return b.inv, nil
}

func (b *MemoryBackend) storeLocked(name string) map[string][]byte {
	s, ok := b.stores[name]
	if !ok {
		s = make(map[string][]byte)
		b.stores[name] = s
	}
	return s
}

func (b *MemoryBackend) WriteRecords(ctx context.Context, ws WriteSet) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return ErrNotReady
	}
	// Atomic from the caller's point of view: a single in-process
	// critical section, no partial visibility.
	if ws.MetaStore != "" {
		meta := b.storeLocked(ws.MetaStore)
		for _, r := range ws.Meta {
			meta[r.ID] = append([]byte(nil), r.Payload...)
		}
	}
	if ws.DocsStore != "" {
		docs := b.storeLocked(ws.DocsStore)
		for _, r := range ws.Docs {
			docs[r.ID] = append([]byte(nil), r.Payload...)
		}
	}
	return nil
}

func (b *MemoryBackend) ReadRecord(ctx context.Context, storeName, id string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.stores[storeName]
	if !ok {
		return nil, nil
	}
	payload, ok := s[id]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), payload...), nil
}

func (b *MemoryBackend) ReadRecordsBulk(ctx context.Context, storeName string, ids []string) ([]Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.stores[storeName]
	if !ok {
		return nil, nil
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if payload, ok := s[id]; ok {
			out = append(out, Record{ID: id, Payload: append([]byte(nil), payload...)})
		}
	}
	return out, nil
}

func (b *MemoryBackend) ReadAllRecords(ctx context.Context, storeName string) ([]Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.stores[storeName]
	if !ok {
		return nil, nil
	}
	out := make([]Record, 0, len(s))
	for id, payload := range s {
		out = append(out, Record{ID: id, Payload: append([]byte(nil), payload...)})
	}
	return out, nil
}

func (b *MemoryBackend) DeleteRecord(ctx context.Context, storeName, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.stores[storeName]; ok {
		delete(s, id)
	}
	return nil
}

func (b *MemoryBackend) ClearStore(ctx context.Context, storeName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.stores, storeName)
	return nil
}

func (b *MemoryBackend) ClearAll(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stores = make(map[string]map[string][]byte)
	b.inv = NewInventory()
	return nil
}

func (b *MemoryBackend) IsReady() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready = false
	return nil
}
