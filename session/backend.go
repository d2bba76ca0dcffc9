package session

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotFound is returned by Backend.Load when nothing is stored.
	ErrNotFound = errors.New("session record not found")
	// ErrBackendUnavailable wraps I/O failures of a backing store.
	ErrBackendUnavailable = errors.New("session backend unavailable")
)

// Backend is one place a serialized record can live. Implementations hold at
// most one record and must treat Delete of a missing record as success.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Delete(ctx context.Context) error
}

// MemoryBackend keeps the record in process memory. It is the default
// session-backed store and is what tests use for either slot.
type MemoryBackend struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Load(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, ErrNotFound
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

func (m *MemoryBackend) Save(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBackend) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}
