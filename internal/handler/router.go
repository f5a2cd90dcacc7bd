package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/security-assessment-go/internal/domain"
	"github.com/boddenberg/security-assessment-go/internal/infra/observability"
	"github.com/boddenberg/security-assessment-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// RouterConfig carries the transport settings of the API.
type RouterConfig struct {
	JWTSecret      []byte
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// NewRouter creates the HTTP router with all routes and middleware.
// registry may be nil, in which case /v1/registry answers 503 and company
// data is saved without pre-fill.
func NewRouter(sessions *service.Sessions, registry *service.RegistryService, metrics *observability.Metrics, cfg RouterConfig, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(cfg.CORSOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(sessions, registry))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(JWTAuthMiddleware(cfg.JWTSecret, logger))
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}

		// =============================================
		// 1. 📝 Assessment em andamento
		// =============================================
		r.Get("/assessment", getAssessmentHandler(sessions, logger))
		r.Put("/assessment/company", setCompanyHandler(sessions, registry, logger))
		r.Get("/assessment/questions", listQuestionsHandler(sessions, logger))
		r.Put("/assessment/answers/{questionId}", setAnswerHandler(sessions, logger))
		r.Get("/assessment/answers/{questionId}", getAnswerHandler(sessions, logger))
		r.Get("/assessment/progress", progressHandler(sessions, logger))
		r.Get("/assessment/missing-fields", missingFieldsHandler(sessions, logger))
		r.Post("/assessment/submit", submitHandler(sessions, logger))
		r.Get("/assessment/export", exportHandler(sessions, logger))
		r.Post("/assessment/new", newAssessmentHandler(sessions, logger))
		r.Post("/assessments/{assessmentId}/load", loadAssessmentHandler(sessions, logger))

		// =============================================
		// 2. 📚 Catálogo de perguntas
		// =============================================
		r.Get("/catalog/questions", catalogQuestionsHandler(sessions))
		r.Get("/catalog/categories", catalogCategoriesHandler(sessions))
		r.Get("/catalog/categories/{category}/groups", categoryGroupsHandler(sessions, logger))
		r.Get("/catalog/maturity-levels", maturityLevelsHandler())
		r.Get("/catalog/cloud-providers", cloudProvidersHandler())

		// =============================================
		// 3. 🏢 Consulta CNPJ
		// =============================================
		r.Get("/registry/{cnpj}", registryLookupHandler(registry, logger))

		// =============================================
		// 4. 🛡️ Administração
		// =============================================
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin(logger))
			r.Get("/assessments", adminListHandler(sessions, logger))
			r.Get("/assessments/{assessmentId}/export", adminExportHandler(sessions, metrics, logger))
			r.Get("/metrics", adminMetricsHandler(metrics))
		})
	})

	return r
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(sessions *service.Sessions, registry *service.RegistryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "assessment-api", Status: "healthy", LastChecked: now},
		}

		if sessions != nil {
			start := time.Now()
			err := sessions.Store().Ping(ctx)
			status := "healthy"
			if err != nil {
				status = "unhealthy"
			}
			services = append(services, domain.ServiceHealth{
				Name: "store", Status: status,
				LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
			})
		}

		registryStatus := "healthy"
		if registry == nil {
			registryStatus = "degraded"
		}
		services = append(services, domain.ServiceHealth{
			Name: "registry", Status: registryStatus, LastChecked: now,
		})

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		code := http.StatusOK
		if overallStatus == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
