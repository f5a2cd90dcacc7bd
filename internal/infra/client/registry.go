// Package client holds HTTP clients for third-party APIs.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/boddenberg/security-assessment-go/internal/domain"
	"github.com/boddenberg/security-assessment-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("client")

// brasilAPIRecord is the BrasilAPI CNPJ payload. The address is flat upstream.
type brasilAPIRecord struct {
	CNPJ                       string `json:"cnpj"`
	RazaoSocial                string `json:"razao_social"`
	NomeFantasia               string `json:"nome_fantasia"`
	DataInicioAtividade        string `json:"data_inicio_atividade"`
	DescricaoSituacaoCadastral string `json:"descricao_situacao_cadastral"`
	CnaeFiscalDescricao        string `json:"cnae_fiscal_descricao"`
	Logradouro                 string `json:"logradouro"`
	Numero                     string `json:"numero"`
	Complemento                string `json:"complemento"`
	Bairro                     string `json:"bairro"`
	Municipio                  string `json:"municipio"`
	UF                         string `json:"uf"`
	CEP                        string `json:"cep"`
	QtdFuncionarios            *int   `json:"qtd_funcionarios"`
}

func (r *brasilAPIRecord) toDomain() *domain.RegistryRecord {
	return &domain.RegistryRecord{
		CNPJ:               r.CNPJ,
		LegalName:          r.RazaoSocial,
		TradeName:          r.NomeFantasia,
		ActivityStartDate:  r.DataInicioAtividade,
		RegistrationStatus: r.DescricaoSituacaoCadastral,
		MainActivity:       r.CnaeFiscalDescricao,
		Address: domain.RegistryAddress{
			Logradouro:  r.Logradouro,
			Numero:      r.Numero,
			Complemento: r.Complemento,
			Bairro:      r.Bairro,
			Municipio:   r.Municipio,
			UF:          r.UF,
			CEP:         r.CEP,
		},
		Employees: r.QtdFuncionarios,
	}
}

// RegistryClient looks up companies in BrasilAPI's public CNPJ registry.
type RegistryClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	cfg        resilience.Config
}

// NewRegistryClient creates a new RegistryClient.
func NewRegistryClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *RegistryClient {
	return &RegistryClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:        cfg,
	}
}

// Lookup fetches the registry record with bulkhead, circuit breaker, retry and
// tracing. cnpj must already be sanitized.
func (c *RegistryClient) Lookup(ctx context.Context, cnpj string) (*domain.RegistryRecord, error) {
	ctx, span := tracer.Start(ctx, "RegistryClient.Lookup")
	defer span.End()
	span.SetAttributes(attribute.String("company.cnpj", cnpj))

	var record brasilAPIRecord

	err := c.bulkhead.Do(ctx, func() error {
		_, err := c.cb.Execute(func() (any, error) {
			return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
				return c.fetch(ctx, cnpj, &record)
			})
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, mapError(cnpj, err)
	}

	return record.toDomain(), nil
}

func (c *RegistryClient) fetch(ctx context.Context, cnpj string, out *brasilAPIRecord) error {
	url := fmt.Sprintf("%s/api/cnpj/v1/%s", c.baseURL, cnpj)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return resilience.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return resilience.Permanent(&domain.ErrNotFound{Resource: "cnpj", ID: cnpj})
	case resp.StatusCode == http.StatusBadRequest:
		return resilience.Permanent(&domain.ErrValidation{Field: "cnpj", Message: "CNPJ rejeitado pelo cadastro"})
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("registry API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resilience.Permanent(fmt.Errorf("decode registry response: %w", err))
	}
	return nil
}

func mapError(cnpj string, err error) error {
	var nf *domain.ErrNotFound
	if errors.As(err, &nf) {
		return nf
	}
	var ve *domain.ErrValidation
	if errors.As(err, &ve) {
		return ve
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: "registry"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ErrTimeout{Operation: "registry lookup " + cnpj}
	}
	return &domain.ErrExternalService{Service: "registry", Err: err}
}
