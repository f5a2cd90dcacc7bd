package handler

import (
	"net/http"

	"github.com/boddenberg/security-assessment-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// GET /v1/registry/{cnpj}
// ============================================================

func registryLookupHandler(registry *service.RegistryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/registry/{cnpj}")
		defer span.End()

		if registry == nil {
			writeError(w, http.StatusServiceUnavailable, "consulta de CNPJ indisponível")
			return
		}

		rec, err := registry.Lookup(ctx, chi.URLParam(r, "cnpj"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}
