package storage

import (
	"context"
	"sync"

	"github.com/mbflowrt/flowengine/internal/domain"
	"github.com/mbflowrt/flowengine/internal/flowengine"
)

// MemoryStore is an in-process store for flows and executions, used in
// tests and single-process deployments without Postgres.
type MemoryStore struct {
	mu         sync.RWMutex
	flows      map[string]*domain.Flow
	executions map[string]flowengine.ExecutionRecord
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flows:      make(map[string]*domain.Flow),
		executions: make(map[string]flowengine.ExecutionRecord),
	}
}

// SaveFlow stores f under its ID, replacing any prior version.
func (m *MemoryStore) SaveFlow(ctx context.Context, f *domain.Flow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flows[f.ID()] = f
	return nil
}

// LoadFlow retrieves a previously saved flow.
func (m *MemoryStore) LoadFlow(ctx context.Context, id string) (*domain.Flow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.flows[id]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "flow not found: "+id, nil)
	}
	return f, nil
}

// ListFlows returns every saved flow, in no particular order.
func (m *MemoryStore) ListFlows(ctx context.Context) ([]*domain.Flow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Flow, 0, len(m.flows))
	for _, f := range m.flows {
		out = append(out, f)
	}
	return out, nil
}

func (m *MemoryStore) CreateExecution(ctx context.Context, rec flowengine.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[rec.ID] = rec
	return nil
}

func (m *MemoryStore) UpdateExecution(ctx context.Context, rec flowengine.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.executions[rec.ID]
	if !ok {
		m.executions[rec.ID] = rec
		return nil
	}
	if rec.Status != "" {
		existing.Status = rec.Status
	}
	if rec.Outputs != nil {
		existing.Outputs = rec.Outputs
	}
	if rec.NodeResults != nil {
		existing.NodeResults = rec.NodeResults
	}
	if rec.Error != "" {
		existing.Error = rec.Error
	}
	if rec.FinishedAt != 0 {
		existing.FinishedAt = rec.FinishedAt
	}
	m.executions[rec.ID] = existing
	return nil
}

func (m *MemoryStore) GetExecution(ctx context.Context, id string) (*flowengine.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.executions[id]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "execution not found: "+id, nil)
	}
	return &rec, nil
}

func (m *MemoryStore) ListActive(ctx context.Context) ([]flowengine.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]flowengine.ExecutionRecord, 0)
	for _, rec := range m.executions {
		if rec.Status == "pending" || rec.Status == "running" {
			out = append(out, rec)
		}
	}
	return out, nil
}

var _ flowengine.PersistenceCollaborator = (*MemoryStore)(nil)
