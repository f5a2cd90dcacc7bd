package handler

import (
	"net/http"

	"github.com/boddenberg/security-assessment-go/internal/catalog"
	"github.com/boddenberg/security-assessment-go/internal/domain"
	"github.com/boddenberg/security-assessment-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// GET /v1/catalog/questions?size=pequena|media|grande
// ============================================================

func catalogQuestionsHandler(sessions *service.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cat := sessions.Catalog()

		questions := cat.Questions()
		if v := r.URL.Query().Get("size"); v != "" {
			size := domain.CompanySize(v)
			if !size.Valid() {
				writeError(w, http.StatusBadRequest, "size deve ser pequena, media ou grande")
				return
			}
			questions = cat.ForSize(size)
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Question]{Data: questions, Total: len(questions)})
	}
}

// ============================================================
// GET /v1/catalog/categories
// GET /v1/catalog/categories/{category}/groups
// GET /v1/catalog/maturity-levels
// GET /v1/catalog/cloud-providers
// ============================================================

func catalogCategoriesHandler(sessions *service.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories := sessions.Catalog().Categories()
		writeJSON(w, http.StatusOK, domain.ListResponse[catalog.Category]{Data: categories, Total: len(categories)})
	}
}

func categoryGroupsHandler(sessions *service.Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := chi.URLParam(r, "category")
		groups := sessions.Catalog().GroupsByCategory(category)
		if groups == nil {
			handleServiceError(w, &domain.ErrNotFound{Resource: "category", ID: category}, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[string]{Data: groups, Total: len(groups)})
	}
}

func maturityLevelsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		levels := domain.MaturityOptions()
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.MaturityOption]{Data: levels, Total: len(levels)})
	}
}

func cloudProvidersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.CloudProvider]{
			Data:  domain.CloudProviders,
			Total: len(domain.CloudProviders),
		})
	}
}
