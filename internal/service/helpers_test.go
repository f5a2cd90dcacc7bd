package service_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/security-assessment-go/internal/catalog"
	"github.com/boddenberg/security-assessment-go/internal/domain"
	"github.com/boddenberg/security-assessment-go/internal/infra/observability"
	"github.com/boddenberg/security-assessment-go/internal/infra/store"
	"github.com/boddenberg/security-assessment-go/internal/service"

	"go.uber.org/zap"
)

// --- Fixtures ---

var fixedNow = time.Date(2026, 3, 14, 9, 5, 7, 0, time.UTC)

const longText = "Existe um processo formal e documentado de gestao de vulnerabilidades com prazos definidos?"

func testQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Category: "Rede", Group: "G1", Text: "Possui firewall de borda?", Type: domain.TypeYesNo, Small: true, Medium: true, Large: true, Required: true, Order: 10},
		{ID: "q2", Category: "Vulnerabilidades", Group: "G2", Text: longText, Type: domain.TypeMaturity, Medium: true, Large: true, Required: true, Order: 20},
		{ID: "q3", Category: "Rede", Group: "G3", Text: "Quantos links redundantes?", Type: domain.TypeNumber, Large: true, Required: true, Order: 30},
		{ID: "q4", Category: "Governanca", Group: "G1", Text: "Observacoes gerais", Type: domain.TypeText, Small: true, Medium: true, Large: true, Order: 40},
		{ID: "q5", Category: "Nuvem", Group: "G1", Text: "Quais provedores?", Type: domain.TypeMultiSelect, Options: []string{"aws", "azure"}, Large: true, Order: 50},
	}
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(testQuestions())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func fullCompany(employees int) domain.Company {
	c := domain.Company{
		CNPJ:                "11444777000161",
		RazaoSocial:         "ACME SEGURANCA LTDA",
		NomeUsuario:         "Ana Souza",
		EmailCorporativo:    "ana@acme.com.br",
		Telefone:            "11999990000",
		NumeroColaboradores: employees,
		ModeloOperacional:   "hibrido",
		TipoNuvem:           "publica",
		ProvedoresNuvem:     []string{"aws", "azure"},
	}
	c.Normalize()
	return c
}

func level(l domain.MaturityLevel) *domain.MaturityLevel { return &l }

// --- Mocks ---

// faultyStore fails the operations selected by fail.
type faultyStore struct {
	*store.Memory

	mu   sync.Mutex
	fail func(op, key string) error
}

func newFaultyStore() *faultyStore { return &faultyStore{Memory: store.NewMemory()} }

func (f *faultyStore) setFail(fn func(op, key string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fn
}

func (f *faultyStore) check(op, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail == nil {
		return nil
	}
	return f.fail(op, key)
}

func (f *faultyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := f.check("get", key); err != nil {
		return nil, err
	}
	return f.Memory.Get(ctx, key)
}

func (f *faultyStore) Put(ctx context.Context, key string, value []byte) error {
	if err := f.check("put", key); err != nil {
		return err
	}
	return f.Memory.Put(ctx, key, value)
}

func (f *faultyStore) PutIfAbsent(ctx context.Context, key string, value []byte) error {
	if err := f.check("put_if_absent", key); err != nil {
		return err
	}
	return f.Memory.PutIfAbsent(ctx, key, value)
}

func (f *faultyStore) Delete(ctx context.Context, key string) error {
	if err := f.check("delete", key); err != nil {
		return err
	}
	return f.Memory.Delete(ctx, key)
}

var errDown = errors.New("store unavailable")

// failOn returns a fail func matching op and a key prefix.
func failOn(op, keyPrefix string) func(string, string) error {
	return func(o, k string) error {
		if o == op && strings.HasPrefix(k, keyPrefix) {
			return errDown
		}
		return nil
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.CompletedEvent
	err    error
}

func (p *recordingPublisher) PublishCompleted(_ context.Context, evt domain.CompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

// --- Builders ---

type fixture struct {
	cat     *catalog.Catalog
	store   *faultyStore
	index   *service.Index
	events  *recordingPublisher
	metrics *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := newFaultyStore()
	return &fixture{
		cat:     testCatalog(t),
		store:   s,
		index:   service.NewIndex(s, zap.NewNop()),
		events:  &recordingPublisher{},
		metrics: observability.NewMetrics(),
	}
}

func (f *fixture) service(userID string) *service.AssessmentService {
	n := 0
	return service.NewAssessmentService(userID, f.cat, f.store, f.index, f.events, f.metrics, zap.NewNop(),
		service.WithClock(func() time.Time { return fixedNow }),
		service.WithIDGenerator(func() string {
			n++
			return userID + "-assessment-" + strconv.Itoa(n)
		}),
	)
}
