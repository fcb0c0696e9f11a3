package relay

import (
	"context"
	"sync"

	"github.com/solterra-energy/quote-cli/internal/model"
)

// MemoryStorage is an in-memory Storage, used in tests and whenever no
// durable store is configured.
type MemoryStorage struct {
	mu      sync.Mutex
	entries []model.QueuedLead
}

// NewMemoryStorage creates an empty in-memory queue store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) LoadQueue(ctx context.Context) ([]model.QueuedLead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.QueuedLead{}, m.entries...), nil
}

func (m *MemoryStorage) SaveQueue(ctx context.Context, entries []model.QueuedLead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries[:0], entries...)
	return nil
}
