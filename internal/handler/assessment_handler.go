package handler

import (
	"net/http"

	"github.com/boddenberg/security-assessment-go/internal/domain"
	"github.com/boddenberg/security-assessment-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// GET /v1/assessment
// ============================================================

func getAssessmentHandler(sessions *service.Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/assessment")
		defer span.End()

		var state domain.AssessmentState
		err := sessions.Do(ctx, UserIDFromContext(ctx), func(a *service.AssessmentService) error {
			state = a.State()
			return nil
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

// ============================================================
// PUT /v1/assessment/company
// ============================================================

func setCompanyHandler(sessions *service.Sessions, registry *service.RegistryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/assessment/company")
		defer span.End()

		var company domain.Company
		if err := decodeJSON(w, r, &company); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		// Pre-fill is best effort: a registry outage never blocks the form.
		if company.RazaoSocial == "" && company.CNPJ != "" && registry != nil {
			rec, err := registry.Lookup(ctx, company.CNPJ)
			if err != nil {
				logger.Warn("registry pre-fill skipped", zap.String("cnpj", company.CNPJ), zap.Error(err))
			} else if service.PrefillCompany(&company, rec) {
				span.SetAttributes(attribute.Bool("company.prefilled", true))
			}
		}

		var state domain.AssessmentState
		err := sessions.Do(ctx, UserIDFromContext(ctx), func(a *service.AssessmentService) error {
			if _, err := a.SetCompany(ctx, company); err != nil {
				return err
			}
			state = a.State()
			return nil
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

// ============================================================
// GET /v1/assessment/questions
// ============================================================

func listQuestionsHandler(sessions *service.Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/assessment/questions")
		defer span.End()

		var questions []domain.Question
		err := sessions.Do(ctx, UserIDFromContext(ctx), func(a *service.AssessmentService) error {
			questions = a.FilteredQuestions()
			return nil
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if questions == nil {
			questions = []domain.Question{}
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Question]{Data: questions, Total: len(questions)})
	}
}

// ============================================================
// PUT /v1/assessment/answers/{questionId}
// GET /v1/assessment/answers/{questionId}
// ============================================================

type answerRequest struct {
	Value         *domain.Value         `json:"value"`
	MaturityLevel *domain.MaturityLevel `json:"maturityLevel,omitempty"`
}

func setAnswerHandler(sessions *service.Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/assessment/answers/{questionId}")
		defer span.End()

		questionID := chi.URLParam(r, "questionId")
		span.SetAttributes(attribute.String("question.id", questionID))

		var req answerRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if req.Value == nil {
			writeError(w, http.StatusBadRequest, "value é obrigatório")
			return
		}

		var answer domain.Answer
		var progress int
		err := sessions.Do(ctx, UserIDFromContext(ctx), func(a *service.AssessmentService) error {
			var err error
			answer, err = a.SetAnswer(ctx, questionID, *req.Value, req.MaturityLevel)
			progress = a.Progress()
			return err
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"answer":   answer,
			"progress": progress,
		})
	}
}

func getAnswerHandler(sessions *service.Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/assessment/answers/{questionId}")
		defer span.End()

		questionID := chi.URLParam(r, "questionId")

		var answer domain.Answer
		var found bool
		err := sessions.Do(ctx, UserIDFromContext(ctx), func(a *service.AssessmentService) error {
			answer, found = a.GetAnswer(questionID)
			return nil
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if !found {
			handleServiceError(w, &domain.ErrNotFound{Resource: "answer", ID: questionID}, logger)
			return
		}
		writeJSON(w, http.StatusOK, answer)
	}
}

// ============================================================
// GET /v1/assessment/progress
// GET /v1/assessment/missing-fields
// ============================================================

func progressHandler(sessions *service.Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/assessment/progress")
		defer span.End()

		var progress int
		err := sessions.Do(ctx, UserIDFromContext(ctx), func(a *service.AssessmentService) error {
			progress = a.Progress()
			return nil
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"progress": progress})
	}
}

func missingFieldsHandler(sessions *service.Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/assessment/missing-fields")
		defer span.End()

		var missing []string
		err := sessions.Do(ctx, UserIDFromContext(ctx), func(a *service.AssessmentService) error {
			missing = a.MissingFields()
			return nil
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if missing == nil {
			missing = []string{}
		}
		writeJSON(w, http.StatusOK, map[string][]string{"missingFields": missing})
	}
}

// ============================================================
// POST /v1/assessment/submit
// ============================================================

func submitHandler(sessions *service.Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/assessment/submit")
		defer span.End()

		var result *domain.SubmitResult
		err := sessions.Do(ctx, UserIDFromContext(ctx), func(a *service.AssessmentService) error {
			var err error
			result, err = a.Submit(ctx)
			return err
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		span.SetAttributes(attribute.Bool("submit.completed", result.Completed))
		if !result.Completed {
			writeJSON(w, http.StatusUnprocessableEntity, result)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// ============================================================
// GET /v1/assessment/export
// ============================================================

func exportHandler(sessions *service.Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/assessment/export")
		defer span.End()

		var text, id string
		err := sessions.Do(ctx, UserIDFromContext(ctx), func(a *service.AssessmentService) error {
			current := a.Assessment()
			if current == nil {
				return &domain.ErrNoAssessment{UserID: a.UserID()}
			}
			id = current.ID
			text = a.ExportText()
			return nil
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeReport(w, id, text)
	}
}

func writeReport(w http.ResponseWriter, id, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+service.ReportFileName(id)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

// ============================================================
// POST /v1/assessment/new
// POST /v1/assessments/{assessmentId}/load
// ============================================================

func newAssessmentHandler(sessions *service.Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/assessment/new")
		defer span.End()

		var state domain.AssessmentState
		err := sessions.Do(ctx, UserIDFromContext(ctx), func(a *service.AssessmentService) error {
			if err := a.CreateNew(ctx); err != nil {
				return err
			}
			state = a.State()
			return nil
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

func loadAssessmentHandler(sessions *service.Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/assessments/{assessmentId}/load")
		defer span.End()

		id := chi.URLParam(r, "assessmentId")
		span.SetAttributes(attribute.String("assessment.id", id))

		var state domain.AssessmentState
		err := sessions.Do(ctx, UserIDFromContext(ctx), func(a *service.AssessmentService) error {
			if err := a.Load(ctx, id); err != nil {
				return err
			}
			state = a.State()
			return nil
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}
