package service

import (
	"context"
	"errors"

	"github.com/boddenberg/security-assessment-go/internal/cnpj"
	"github.com/boddenberg/security-assessment-go/internal/domain"
	"github.com/boddenberg/security-assessment-go/internal/infra/observability"
	"github.com/boddenberg/security-assessment-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RegistryService resolves CNPJs against the public company registry,
// caching successful lookups.
type RegistryService struct {
	lookup  port.RegistryLookup
	cache   port.Cache[*domain.RegistryRecord]
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewRegistryService creates the registry service.
func NewRegistryService(
	lookup port.RegistryLookup,
	cache port.Cache[*domain.RegistryRecord],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *RegistryService {
	return &RegistryService{lookup: lookup, cache: cache, metrics: metrics, logger: logger}
}

// Lookup validates raw (punctuation allowed) and returns the registry record.
func (r *RegistryService) Lookup(ctx context.Context, raw string) (*domain.RegistryRecord, error) {
	ctx, span := tracer.Start(ctx, "RegistryService.Lookup")
	defer span.End()

	number := cnpj.Sanitize(raw)
	if len(number) != cnpj.Length {
		return nil, &domain.ErrValidation{Field: "cnpj", Message: "CNPJ deve ter 14 dígitos"}
	}
	if !cnpj.Valid(number) {
		return nil, &domain.ErrValidation{Field: "cnpj", Message: "CNPJ inválido"}
	}
	span.SetAttributes(attribute.String("company.cnpj", number))

	if rec, ok := r.cache.Get(number); ok {
		r.metrics.IncrCacheHit("registry")
		return rec, nil
	}
	r.metrics.IncrCacheMiss("registry")

	rec, err := r.lookup.Lookup(ctx, number)
	if err != nil {
		var nf *domain.ErrNotFound
		if !errors.As(err, &nf) {
			r.metrics.IncrExternalError("registry")
		}
		r.logger.Warn("registry lookup failed", zap.String("cnpj", number), zap.Error(err))
		return nil, err
	}
	rec.FormattedCNPJ = cnpj.Format(rec.CNPJ)
	r.cache.Set(number, rec)
	return rec, nil
}

// PrefillCompany copies the registry legal name into an empty RazaoSocial.
// It reports whether the company changed.
func PrefillCompany(c *domain.Company, rec *domain.RegistryRecord) bool {
	if c == nil || rec == nil || c.RazaoSocial != "" || rec.LegalName == "" {
		return false
	}
	c.RazaoSocial = rec.LegalName
	return true
}
