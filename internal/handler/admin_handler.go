package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/security-assessment-go/internal/domain"
	"github.com/boddenberg/security-assessment-go/internal/infra/observability"
	"github.com/boddenberg/security-assessment-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// GET /v1/admin/assessments?q=
// ============================================================

func adminListHandler(sessions *service.Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/assessments")
		defer span.End()

		query := r.URL.Query().Get("q")
		span.SetAttributes(attribute.String("admin.query", query))

		entries, err := sessions.Index().List(ctx, query)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if entries == nil {
			entries = []domain.IndexEntry{}
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.IndexEntry]{Data: entries, Total: len(entries)})
	}
}

// ============================================================
// GET /v1/admin/assessments/{assessmentId}/export
// ============================================================

func adminExportHandler(sessions *service.Sessions, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/assessments/{assessmentId}/export")
		defer span.End()

		id := chi.URLParam(r, "assessmentId")
		span.SetAttributes(attribute.String("assessment.id", id))

		text, err := service.ExportArchived(ctx, sessions.Store(), sessions.Catalog(), id, time.Now(), logger)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		metrics.IncrReportExported()
		writeReport(w, id, text)
	}
}

// ============================================================
// GET /v1/admin/metrics
// ============================================================

func adminMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}
