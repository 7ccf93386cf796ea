package eventdb

import (
	"context"
	"sync"

	"github.com/Heigvd/mimms-sub001/internal/protocol"
)

// MemoryStore is the in-process event store used by tests and the replay
// tool. Same ordering contract as the SQLite store.
type MemoryStore struct {
	mu     sync.Mutex
	events []protocol.GlobalEvent
	blobs  map[string][]byte
	nextID uint64
}

func NewMemory() *MemoryStore {
	return &MemoryStore{blobs: map[string][]byte{}, nextID: 1}
}

func (m *MemoryStore) SubmitEvent(ctx context.Context, ev protocol.GlobalEvent) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = m.nextID
	m.nextID++
	m.events = append(m.events, ev)
	return ev.ID, nil
}

func (m *MemoryStore) FetchAllEvents(ctx context.Context) ([]protocol.GlobalEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.GlobalEvent, len(m.events))
	copy(out, m.events)
	return out, nil
}

func (m *MemoryStore) ReadConfigBlob(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.blobs[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryStore) WriteConfigBlob(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.blobs[key] = v
	return nil
}
