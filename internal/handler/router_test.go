package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/security-assessment-go/internal/catalog"
	"github.com/boddenberg/security-assessment-go/internal/domain"
	"github.com/boddenberg/security-assessment-go/internal/handler"
	"github.com/boddenberg/security-assessment-go/internal/infra/cache"
	"github.com/boddenberg/security-assessment-go/internal/infra/client"
	"github.com/boddenberg/security-assessment-go/internal/infra/observability"
	"github.com/boddenberg/security-assessment-go/internal/infra/resilience"
	"github.com/boddenberg/security-assessment-go/internal/infra/store"
	"github.com/boddenberg/security-assessment-go/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var testSecret = []byte("test-secret")

func TestHealthz(t *testing.T) {
	router := handler.NewRouter(nil, nil, observability.NewMetrics(), handler.RouterConfig{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	router := handler.NewRouter(nil, nil, observability.NewMetrics(), handler.RouterConfig{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router := handler.NewRouter(nil, nil, observability.NewMetrics(), handler.RouterConfig{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

// --- API fixtures ---

type api struct {
	t      *testing.T
	router http.Handler
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]domain.Question{
		{ID: "q1", Category: "Rede", Text: "Possui firewall de borda?", Type: domain.TypeYesNo, Small: true, Medium: true, Large: true, Required: true, Order: 1},
		{ID: "q2", Category: "Vulnerabilidades", Text: "Possui processo de gestao de vulnerabilidades?", Type: domain.TypeMaturity, Medium: true, Large: true, Required: true, Order: 2},
		{ID: "q3", Category: "Governanca", Text: "Observacoes", Type: domain.TypeText, Small: true, Medium: true, Large: true, Order: 3},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func newAPI(t *testing.T, registry *service.RegistryService) *api {
	t.Helper()
	kv := store.NewMemory()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	index := service.NewIndex(kv, logger)
	sessions := service.NewSessions(testCatalog(t), kv, index, nil, metrics, logger)
	router := handler.NewRouter(sessions, registry, metrics, handler.RouterConfig{JWTSecret: testSecret}, logger)
	return &api{t: t, router: router}
}

func token(t *testing.T, secret []byte, sub, role string, expires time.Time) string {
	t.Helper()
	claims := handler.Claims{
		Sub:  sub,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func userToken(t *testing.T, sub string) string {
	return token(t, testSecret, sub, "", time.Now().Add(time.Hour))
}

func (a *api) do(method, path, tok string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func smallCompany() domain.Company {
	return domain.Company{
		CNPJ:                "11444777000161",
		RazaoSocial:         "ACME SEGURANCA LTDA",
		NomeUsuario:         "Ana Souza",
		EmailCorporativo:    "ana@acme.com.br",
		Telefone:            "11999990000",
		NumeroColaboradores: 10,
	}
}

// --- Auth ---

func TestAPI_RejectsMissingOrInvalidToken(t *testing.T) {
	a := newAPI(t, nil)

	cases := []struct {
		name    string
		header  string
		message string
	}{
		{"missing", "", "Token de autenticação não fornecido"},
		{"not bearer", "Basic abc", "Formato de token inválido"},
		{"wrong secret", "Bearer " + token(t, []byte("other"), "u1", "", time.Now().Add(time.Hour)), "Token inválido ou expirado"},
		{"expired", "Bearer " + token(t, testSecret, "u1", "", time.Now().Add(-time.Minute)), "Token inválido ou expirado"},
		{"no subject", "Bearer " + token(t, testSecret, "", "", time.Now().Add(time.Hour)), "Token inválido ou expirado"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/assessment", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			a.router.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
			if body := decode[map[string]string](t, rec); body["error"] != tc.message {
				t.Errorf("expected %q, got %q", tc.message, body["error"])
			}
		})
	}
}

func TestAPI_AdminRequiresRole(t *testing.T) {
	a := newAPI(t, nil)

	rec := a.do(http.MethodGet, "/v1/admin/assessments", userToken(t, "u1"), nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	if body := decode[map[string]string](t, rec); !strings.HasPrefix(body["error"], "forbidden:") {
		t.Errorf("unexpected error body %q", body["error"])
	}

	admin := token(t, testSecret, "root", handler.RoleAdmin, time.Now().Add(time.Hour))
	rec = a.do(http.MethodGet, "/v1/admin/assessments", admin, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

// --- Assessment lifecycle ---

func TestAPI_EmptyState(t *testing.T) {
	a := newAPI(t, nil)

	rec := a.do(http.MethodGet, "/v1/assessment", userToken(t, "u1"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	state := decode[domain.AssessmentState](t, rec)
	if state.Assessment != nil || state.Company != nil {
		t.Errorf("expected empty state, got %+v", state)
	}
	if len(state.MissingFields) != 1 || state.MissingFields[0] != service.NoCompanyField {
		t.Errorf("unexpected missing fields %v", state.MissingFields)
	}

	rec = a.do(http.MethodGet, "/v1/assessment/questions", userToken(t, "u1"), nil)
	list := decode[domain.ListResponse[domain.Question]](t, rec)
	if list.Total != 0 {
		t.Errorf("expected no questions without company, got %d", list.Total)
	}
}

func TestAPI_AnswerBeforeCompanyConflicts(t *testing.T) {
	a := newAPI(t, nil)

	rec := a.do(http.MethodPut, "/v1/assessment/answers/q1", userToken(t, "u1"), map[string]any{"value": true})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestAPI_RoundTrip(t *testing.T) {
	a := newAPI(t, nil)
	tok := userToken(t, "u1")

	rec := a.do(http.MethodPut, "/v1/assessment/company", tok, smallCompany())
	if rec.Code != http.StatusOK {
		t.Fatalf("set company: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	state := decode[domain.AssessmentState](t, rec)
	if state.Assessment == nil || state.Company.TamanhoEmpresa != domain.SizeSmall {
		t.Fatalf("unexpected state after company: %+v", state)
	}
	id := state.Assessment.ID

	rec = a.do(http.MethodGet, "/v1/assessment/questions", tok, nil)
	list := decode[domain.ListResponse[domain.Question]](t, rec)
	if list.Total != 2 {
		t.Errorf("expected 2 questions for a small company, got %d", list.Total)
	}

	rec = a.do(http.MethodPost, "/v1/assessment/submit", tok, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("submit incomplete: expected 422, got %d", rec.Code)
	}
	result := decode[domain.SubmitResult](t, rec)
	if result.Completed || len(result.Missing) != 1 || !strings.HasPrefix(result.Missing[0], "Rede - ") {
		t.Errorf("unexpected incomplete result %+v", result)
	}

	rec = a.do(http.MethodPut, "/v1/assessment/answers/q1", tok, map[string]any{"value": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("set answer: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = a.do(http.MethodGet, "/v1/assessment/answers/q1", tok, nil)
	answer := decode[domain.Answer](t, rec)
	if answer.Value.Kind != domain.KindBool || !answer.Value.Bool {
		t.Errorf("unexpected answer %+v", answer)
	}

	rec = a.do(http.MethodGet, "/v1/assessment/progress", tok, nil)
	if p := decode[map[string]int](t, rec)["progress"]; p != 100 {
		t.Errorf("expected progress 100, got %d", p)
	}

	rec = a.do(http.MethodPost, "/v1/assessment/submit", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	result = decode[domain.SubmitResult](t, rec)
	if !result.Completed || result.Assessment.Status != domain.StatusCompleted {
		t.Errorf("unexpected submit result %+v", result)
	}

	rec = a.do(http.MethodGet, "/v1/assessment/export", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "assessment-"+id+".txt") {
		t.Errorf("unexpected content disposition %q", cd)
	}
	if !strings.Contains(rec.Body.String(), "ACME SEGURANCA LTDA") {
		t.Error("report should contain the company name")
	}

	rec = a.do(http.MethodPut, "/v1/assessment/answers/q3", tok, map[string]any{"value": "tarde demais"})
	if rec.Code != http.StatusConflict {
		t.Errorf("answer after submit: expected 409, got %d", rec.Code)
	}

	admin := token(t, testSecret, "root", handler.RoleAdmin, time.Now().Add(time.Hour))
	rec = a.do(http.MethodGet, "/v1/admin/assessments?q=acme", admin, nil)
	entries := decode[domain.ListResponse[domain.IndexEntry]](t, rec)
	if entries.Total != 1 || entries.Data[0].Status != domain.StatusCompleted {
		t.Errorf("unexpected admin listing %+v", entries)
	}

	rec = a.do(http.MethodGet, "/v1/admin/assessments/"+id+"/export", admin, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("admin export: expected 200, got %d", rec.Code)
	}

	rec = a.do(http.MethodPost, "/v1/assessment/new", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("new: expected 200, got %d", rec.Code)
	}
	if state := decode[domain.AssessmentState](t, rec); state.Assessment != nil {
		t.Error("expected empty state after new assessment")
	}

	rec = a.do(http.MethodPost, "/v1/assessments/"+id+"/load", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("load: expected 200, got %d", rec.Code)
	}
	if state := decode[domain.AssessmentState](t, rec); state.Assessment == nil || state.Assessment.ID != id {
		t.Errorf("expected loaded assessment %s", id)
	}

	rec = a.do(http.MethodPost, "/v1/assessments/"+id+"/load", userToken(t, "intruder"), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign load: expected 404, got %d", rec.Code)
	}
}

func TestAPI_SetAnswerValidation(t *testing.T) {
	a := newAPI(t, nil)
	tok := userToken(t, "u1")
	a.do(http.MethodPut, "/v1/assessment/company", tok, smallCompany())

	cases := []struct {
		name string
		path string
		body any
	}{
		{"unknown question", "/v1/assessment/answers/nope", map[string]any{"value": "x"}},
		{"missing value", "/v1/assessment/answers/q1", map[string]any{}},
		{"bad maturity", "/v1/assessment/answers/q1", map[string]any{"value": "sim", "maturityLevel": 7}},
		{"object value", "/v1/assessment/answers/q1", map[string]any{"value": map[string]any{"a": 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := a.do(http.MethodPut, tc.path, tok, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAPI_ExportWithoutAssessment(t *testing.T) {
	a := newAPI(t, nil)

	rec := a.do(http.MethodGet, "/v1/assessment/export", userToken(t, "u1"), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

// --- Catalog ---

func TestAPI_CatalogQuestions(t *testing.T) {
	a := newAPI(t, nil)
	tok := userToken(t, "u1")

	rec := a.do(http.MethodGet, "/v1/catalog/questions", tok, nil)
	if list := decode[domain.ListResponse[domain.Question]](t, rec); list.Total != 3 {
		t.Errorf("expected 3 questions, got %d", list.Total)
	}

	rec = a.do(http.MethodGet, "/v1/catalog/questions?size=media", tok, nil)
	if list := decode[domain.ListResponse[domain.Question]](t, rec); list.Total != 3 {
		t.Errorf("expected 3 questions for media, got %d", list.Total)
	}

	rec = a.do(http.MethodGet, "/v1/catalog/questions?size=pequena", tok, nil)
	if list := decode[domain.ListResponse[domain.Question]](t, rec); list.Total != 2 {
		t.Errorf("expected 2 questions for pequena, got %d", list.Total)
	}

	rec = a.do(http.MethodGet, "/v1/catalog/questions?size=enorme", tok, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec = a.do(http.MethodGet, "/v1/catalog/categories", tok, nil)
	if list := decode[domain.ListResponse[catalog.Category]](t, rec); list.Total != 3 {
		t.Errorf("expected 3 categories, got %d", list.Total)
	}

	rec = a.do(http.MethodGet, "/v1/catalog/categories/Rede/groups", tok, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if list := decode[domain.ListResponse[string]](t, rec); list.Data == nil || list.Total != 0 {
		t.Errorf("expected empty group list, got %+v", list)
	}

	rec = a.do(http.MethodGet, "/v1/catalog/categories/Inexistente/groups", tok, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	rec = a.do(http.MethodGet, "/v1/catalog/maturity-levels", tok, nil)
	levels := decode[domain.ListResponse[domain.MaturityOption]](t, rec)
	if levels.Total != 5 || levels.Data[0].Label != "Não Implementado" || levels.Data[4].Level != domain.MaturityFull {
		t.Errorf("unexpected maturity levels %+v", levels)
	}
}

// --- Registry ---

func newRegistry(t *testing.T, h http.HandlerFunc) *service.RegistryService {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := cache.New[*domain.RegistryRecord](time.Minute)
	t.Cleanup(c.Close)

	rc := client.NewRegistryClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker(t.Name()),
		resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxConcurrency: 2})
	return service.NewRegistryService(rc, c, observability.NewMetrics(), zap.NewNop())
}

func TestAPI_RegistryLookupAndPrefill(t *testing.T) {
	registry := newRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"cnpj":"11444777000161","razao_social":"EMPRESA DO REGISTRO LTDA"}`))
	})
	a := newAPI(t, registry)
	tok := userToken(t, "u1")

	rec := a.do(http.MethodGet, "/v1/registry/11.444.777.0001-61", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[domain.RegistryRecord](t, rec); got.LegalName != "EMPRESA DO REGISTRO LTDA" || got.FormattedCNPJ != "11.444.777/0001-61" {
		t.Errorf("unexpected record %+v", got)
	}

	rec = a.do(http.MethodGet, "/v1/registry/11444777000162", tok, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid cnpj: expected 400, got %d", rec.Code)
	}

	company := smallCompany()
	company.RazaoSocial = ""
	rec = a.do(http.MethodPut, "/v1/assessment/company", tok, company)
	if rec.Code != http.StatusOK {
		t.Fatalf("set company: expected 200, got %d", rec.Code)
	}
	if state := decode[domain.AssessmentState](t, rec); state.Company.RazaoSocial != "EMPRESA DO REGISTRO LTDA" {
		t.Errorf("expected pre-filled legal name, got %q", state.Company.RazaoSocial)
	}
}

func TestAPI_RegistryOutageDoesNotBlockCompany(t *testing.T) {
	registry := newRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	a := newAPI(t, registry)
	tok := userToken(t, "u1")

	company := smallCompany()
	company.RazaoSocial = ""
	rec := a.do(http.MethodPut, "/v1/assessment/company", tok, company)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	state := decode[domain.AssessmentState](t, rec)
	if state.Company.RazaoSocial != "" {
		t.Errorf("expected empty legal name, got %q", state.Company.RazaoSocial)
	}

	rec = a.do(http.MethodGet, "/v1/registry/11444777000161", tok, nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func TestAPI_RegistryDisabled(t *testing.T) {
	a := newAPI(t, nil)

	rec := a.do(http.MethodGet, "/v1/registry/11444777000161", userToken(t, "u1"), nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}
