package emission_test

import (
	"context"
	"sync"
	"time"

	"github.com/jhoicas/facturacion-sri/internal/application/dto"
	"github.com/jhoicas/facturacion-sri/internal/domain"
	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
	"github.com/jhoicas/facturacion-sri/internal/domain/repository"
	"github.com/jhoicas/facturacion-sri/pkg/sri"
)

// store base de datos en memoria compartida por todos los repositorios falsos.
type store struct {
	mu        sync.Mutex
	sales     map[string]*entity.Sale
	notes     map[string]*entity.CreditNote
	customers map[string]*entity.Customer
	next      map[string]int64
	counters  map[string]int64
	saved     []entity.EmissionState

	nextCalls    int
	advanceCalls int
	conflict     bool
	credential   *entity.SigningCredential
}

func newStore() *store {
	return &store{
		sales:      map[string]*entity.Sale{},
		notes:      map[string]*entity.CreditNote{},
		customers:  map[string]*entity.Customer{},
		next:       map[string]int64{},
		counters:   map[string]int64{},
		credential: &entity.SigningCredential{P12: []byte("p12"), Password: "clave"},
	}
}

type salesRepo struct{ s *store }

func (r salesRepo) GetForEmission(_ context.Context, id string) (*entity.Sale, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sale, ok := r.s.sales[id]
	if !ok {
		return nil, nil
	}
	cp := *sale
	return &cp, nil
}

func (r salesRepo) SaveEmission(_ context.Context, id string, st *entity.EmissionState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sale, ok := r.s.sales[id]
	if !ok {
		return domain.ErrNotFound
	}
	if sale.Emission.IsAuthorized() {
		return nil
	}
	sale.Emission = *st
	r.s.saved = append(r.s.saved, *st)
	return nil
}

type notesRepo struct{ s *store }

func (r notesRepo) GetForEmission(_ context.Context, id string) (*entity.CreditNote, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	note, ok := r.s.notes[id]
	if !ok {
		return nil, nil
	}
	cp := *note
	return &cp, nil
}

func (r notesRepo) SaveEmission(_ context.Context, id string, st *entity.EmissionState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	note, ok := r.s.notes[id]
	if !ok {
		return domain.ErrNotFound
	}
	note.Emission = *st
	r.s.saved = append(r.s.saved, *st)
	return nil
}

type customersRepo struct{ s *store }

func (r customersRepo) GetByID(_ context.Context, id string) (*entity.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.customers[id], nil
}

type sequencesRepo struct{ s *store }

func (r sequencesRepo) Next(_ context.Context, series entity.SequenceSeries) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextCalls++
	if n, ok := r.s.next[series.Key()]; ok {
		return n, nil
	}
	return 1, nil
}

func (r sequencesRepo) Advance(_ context.Context, series entity.SequenceSeries, used int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.advanceCalls++
	current, ok := r.s.next[series.Key()]
	if !ok {
		current = 1
	}
	if r.s.conflict || current != used {
		return domain.ErrSequenceConflict
	}
	r.s.next[series.Key()] = used + 1
	return nil
}

type usageRepo struct{ s *store }

func (r usageRepo) Get(_ context.Context, name string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.counters[name], nil
}

func (r usageRepo) Increment(_ context.Context, name string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.counters[name]++
	return r.s.counters[name], nil
}

type credentialsRepo struct{ s *store }

func (r credentialsRepo) GetActive(context.Context) (*entity.SigningCredential, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.credential, nil
}

func (r credentialsRepo) Save(_ context.Context, c *entity.SigningCredential) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.credential = c
	return nil
}

type txRunner struct{ s *store }

// RunEmission falla con un contexto vencido, igual que pgx al abrir la transacción.
func (t txRunner) RunEmission(ctx context.Context, fn func(
	repository.SaleRepository,
	repository.CreditNoteRepository,
	repository.SequenceRepository,
	repository.UsageCounterRepository,
) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(salesRepo{t.s}, notesRepo{t.s}, sequencesRepo{t.s}, usageRepo{t.s})
}

// fakeSigner agrega un comentario al final; el resultado sigue siendo XML legible.
type fakeSigner struct {
	mu    sync.Mutex
	calls int
	roots []sri.RootTag
	err   error
}

func (f *fakeSigner) Sign(_ context.Context, unsigned []byte, cred sri.Credential, root sri.RootTag) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.roots = append(f.roots, root)
	if f.err != nil {
		return nil, f.err
	}
	if cred.Empty() {
		return nil, sri.NewSigningError("sin certificado", nil)
	}
	return append(append([]byte{}, unsigned...), []byte("<!--firmado-->")...), nil
}

// transport respuestas del SRI programables por fase.
type transport struct {
	mu          sync.Mutex
	receiveFn   func(call int) (*sri.AuthorityResult, error)
	authorizeFn func(call int) (*sri.AuthorityResult, error)

	// hold, si no es nil, retiene cada consulta de autorización hasta cerrarse o vencer ctx.
	hold chan struct{}
	// entered recibe una señal cuando una consulta queda retenida.
	entered chan struct{}

	received  [][]byte
	keys      []string
	envs      []sri.Environment
	authCalls int
}

func (t *transport) Receive(_ context.Context, env sri.Environment, signed []byte) (*sri.AuthorityResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	call := len(t.received)
	t.received = append(t.received, append([]byte{}, signed...))
	t.envs = append(t.envs, env)
	return t.receiveFn(call)
}

func (t *transport) Authorize(ctx context.Context, env sri.Environment, key string) (*sri.AuthorityResult, error) {
	t.mu.Lock()
	call := t.authCalls
	t.authCalls++
	t.keys = append(t.keys, key)
	t.envs = append(t.envs, env)
	fn, hold, entered := t.authorizeFn, t.hold, t.entered
	t.mu.Unlock()

	if hold != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return fn(call)
}

func (t *transport) receiveCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.received)
}

type fakeGate struct {
	mu          sync.Mutex
	err         error
	authorized  int
	consumed    []string
	checkResult *dto.EntitlementSnapshot
}

func (g *fakeGate) AuthorizeEmission(context.Context) (*entity.EntitlementSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authorized++
	if g.err != nil {
		return nil, g.err
	}
	return &entity.EntitlementSnapshot{EntitlementRecord: entity.EntitlementRecord{
		Gate: entity.GateSubscription, Authorized: true, Plan: "paquete", Kind: entity.PlanQuota,
	}}, nil
}

func (g *fakeGate) RecordConsumption(_ context.Context, _ *entity.EntitlementSnapshot, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consumed = append(g.consumed, key)
}

func (g *fakeGate) CheckEntitlement(context.Context) (*dto.EntitlementSnapshot, error) {
	return g.checkResult, nil
}

type metricsSpy struct {
	mu       sync.Mutex
	statuses []string
}

func (m *metricsSpy) ObserveEmission(docType, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, docType+":"+status)
}
