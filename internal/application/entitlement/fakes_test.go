package entitlement_test

import (
	"context"
	"sync"

	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
)

type memoryStore struct {
	mu      sync.Mutex
	records map[string]entity.EntitlementRecord
	saves   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]entity.EntitlementRecord{}}
}

func (m *memoryStore) Get(_ context.Context, gate string) (*entity.EntitlementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[gate]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memoryStore) Save(_ context.Context, rec *entity.EntitlementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Gate] = *rec
	m.saves++
	return nil
}

func (m *memoryStore) UpdateRemainingDocs(_ context.Context, gate string, remaining int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[gate]
	rec.Gate = gate
	rec.RemainingDocs = &remaining
	m.records[gate] = rec
	return nil
}

type fixedUsage struct{ used int64 }

func (u fixedUsage) Get(context.Context, string) (int64, error) { return u.used, nil }

type fakeServer struct {
	activated  *entity.EntitlementRecord
	activErr   error
	remaining  int64
	consumeErr error
	consumed   []string
}

func (f *fakeServer) ActivateLicense(_ context.Context, code string) (*entity.EntitlementRecord, error) {
	if f.activErr != nil {
		return nil, f.activErr
	}
	rec := *f.activated
	return &rec, nil
}

func (f *fakeServer) ConsumeDocument(_ context.Context, accessKey string) (int64, error) {
	f.consumed = append(f.consumed, accessKey)
	if f.consumeErr != nil {
		return 0, f.consumeErr
	}
	return f.remaining, nil
}

func (f *fakeServer) MachineID() string { return "ABCD1234" }

func ptr[T any](v T) *T { return &v }
