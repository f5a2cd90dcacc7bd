package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/boddenberg/security-assessment-go/internal/catalog"
	"github.com/boddenberg/security-assessment-go/internal/domain"
	"github.com/boddenberg/security-assessment-go/internal/infra/observability"
	"github.com/boddenberg/security-assessment-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("service/assessment")

// DraftKey is the KV key of a user's in-progress assessment.
func DraftKey(userID string) string { return "draft-state:" + userID }

// CompletedKey is the KV key of an archived, write-once assessment.
func CompletedKey(assessmentID string) string { return "completed-state:" + assessmentID }

// Option customizes an AssessmentService.
type Option func(*AssessmentService)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *AssessmentService) { s.now = now }
}

// WithIDGenerator overrides the assessment id generator (uuid v4 by default).
func WithIDGenerator(newID func() string) Option {
	return func(s *AssessmentService) { s.newID = newID }
}

// state is the working memory of a session.
type state struct {
	assessment *domain.Assessment
	company    *domain.Company
	answers    AnswerStore
}

func (st state) clone() state {
	out := state{answers: st.answers.Clone()}
	if st.assessment != nil {
		a := *st.assessment
		a.Company = cloneCompany(a.Company)
		if a.CompletedAt != nil {
			t := *a.CompletedAt
			a.CompletedAt = &t
		}
		out.assessment = &a
	}
	if st.company != nil {
		c := cloneCompany(*st.company)
		out.company = &c
	}
	return out
}

func (st state) snapshot() domain.Snapshot {
	answers := map[string]domain.Answer(st.answers)
	if answers == nil {
		answers = map[string]domain.Answer{}
	}
	return domain.Snapshot{Assessment: st.assessment, Answers: answers, Company: st.company}
}

func cloneCompany(c domain.Company) domain.Company {
	c.ServidoresWindows = append(make([]domain.ServerInfo, 0, len(c.ServidoresWindows)), c.ServidoresWindows...)
	c.ServidoresLinux = append(make([]domain.ServerInfo, 0, len(c.ServidoresLinux)), c.ServidoresLinux...)
	c.ProvedoresNuvem = append(make([]string, 0, len(c.ProvedoresNuvem)), c.ProvedoresNuvem...)
	return c
}

// AssessmentService is the lifecycle manager of one user's assessment:
// no assessment → draft → completed. It is not safe for concurrent use;
// Sessions serializes access per user.
//
// Every mutation is applied to a copy, persisted, and only then committed
// to memory, so a failed write leaves the session unchanged.
type AssessmentService struct {
	userID  string
	catalog *catalog.Catalog
	store   port.KVStore
	index   *Index
	events  port.EventPublisher
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string

	st state
}

// NewAssessmentService creates an empty session for userID. events may be nil.
func NewAssessmentService(
	userID string,
	cat *catalog.Catalog,
	store port.KVStore,
	index *Index,
	events port.EventPublisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts ...Option,
) *AssessmentService {
	s := &AssessmentService{
		userID:  userID,
		catalog: cat,
		store:   store,
		index:   index,
		events:  events,
		metrics: metrics,
		logger:  logger.With(zap.String("user_id", userID)),
		now:     time.Now,
		newID:   uuid.NewString,
		st:      state{answers: AnswerStore{}},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UserID returns the owner of the session.
func (s *AssessmentService) UserID() string { return s.userID }

// ============================================================
// Reads
// ============================================================

// Assessment returns a copy of the current assessment, or nil.
func (s *AssessmentService) Assessment() *domain.Assessment {
	return s.st.clone().assessment
}

// Company returns a copy of the current company, or nil.
func (s *AssessmentService) Company() *domain.Company {
	return s.st.clone().company
}

// Answers returns a copy of the current answers.
func (s *AssessmentService) Answers() map[string]domain.Answer {
	return s.st.answers.Clone()
}

// GetAnswer returns the answer to questionID, if any. It never fails.
func (s *AssessmentService) GetAnswer(questionID string) (domain.Answer, bool) {
	a, ok := s.st.answers.Get(questionID)
	if !ok {
		return domain.Answer{}, false
	}
	return cloneAnswer(a), true
}

// FilteredQuestions returns the catalog questions that apply to the company.
func (s *AssessmentService) FilteredQuestions() []domain.Question {
	return FilteredQuestions(s.catalog.Questions(), s.st.company)
}

// Progress returns the completion percentage.
func (s *AssessmentService) Progress() int {
	return Progress(s.catalog.Questions(), s.st.company, s.st.answers)
}

// MissingFields lists what blocks submission.
func (s *AssessmentService) MissingFields() []string {
	return MissingFields(s.catalog.Questions(), s.st.company, s.st.answers)
}

// State returns the read model served by GET /v1/assessment.
func (s *AssessmentService) State() domain.AssessmentState {
	st := s.st.clone()
	return domain.AssessmentState{
		Assessment:    st.assessment,
		Company:       st.company,
		Answers:       st.snapshot().Answers,
		Progress:      s.Progress(),
		MissingFields: s.MissingFields(),
	}
}

// ExportText renders the report of the current assessment ("" without one).
func (s *AssessmentService) ExportText() string {
	out := ExportText(s.st.assessment, s.st.company, s.st.answers, s.catalog.Questions(), s.now())
	if out != "" {
		s.metrics.IncrReportExported()
	}
	return out
}

// ============================================================
// Mutations
// ============================================================

// SetCompany creates the draft on first use, otherwise replaces the company
// snapshot. Answers are never reset.
func (s *AssessmentService) SetCompany(ctx context.Context, company domain.Company) (*domain.Assessment, error) {
	ctx, span := tracer.Start(ctx, "AssessmentService.SetCompany")
	defer span.End()
	defer s.observe("set_company", time.Now())

	if s.st.assessment.Completed() {
		return nil, &domain.ErrAssessmentCompleted{AssessmentID: s.st.assessment.ID}
	}

	company.Normalize()
	now := s.now()
	next := s.st.clone()
	created := next.assessment == nil
	if created {
		next.assessment = &domain.Assessment{
			ID:        s.newID(),
			UserID:    s.userID,
			Status:    domain.StatusDraft,
			CreatedAt: now,
		}
	}
	c := cloneCompany(company)
	next.company = &c
	next.assessment.Company = cloneCompany(company)
	next.assessment.UpdatedAt = now
	next.assessment.Progress = Progress(s.catalog.Questions(), next.company, next.answers)

	if err := s.saveDraft(ctx, next); err != nil {
		return nil, err
	}
	s.st = next
	s.upsertIndex(ctx)

	if created {
		s.metrics.IncrCreated()
		s.logger.Info("assessment created", zap.String("assessment_id", next.assessment.ID))
	}
	span.SetAttributes(attribute.String("assessment.id", next.assessment.ID))
	return s.Assessment(), nil
}

// SetAnswer upserts the answer to questionID. It requires an open draft, a
// known question id and, when given, a maturity level between 0 and 4.
func (s *AssessmentService) SetAnswer(ctx context.Context, questionID string, value domain.Value, level *domain.MaturityLevel) (domain.Answer, error) {
	ctx, span := tracer.Start(ctx, "AssessmentService.SetAnswer")
	defer span.End()
	span.SetAttributes(attribute.String("question.id", questionID))
	defer s.observe("set_answer", time.Now())

	if s.st.assessment == nil {
		return domain.Answer{}, &domain.ErrNoAssessment{UserID: s.userID}
	}
	if s.st.assessment.Completed() {
		return domain.Answer{}, &domain.ErrAssessmentCompleted{AssessmentID: s.st.assessment.ID}
	}
	if _, ok := s.catalog.Question(questionID); !ok {
		return domain.Answer{}, &domain.ErrValidation{Field: "questionId", Message: "pergunta desconhecida: " + questionID}
	}
	if level != nil && !level.Valid() {
		return domain.Answer{}, &domain.ErrValidation{Field: "maturityLevel", Message: "nível de maturidade deve estar entre 0 e 4"}
	}

	next := s.st.clone()
	answer := next.answers.Set(questionID, value, level)
	next.assessment.UpdatedAt = s.now()
	next.assessment.Progress = Progress(s.catalog.Questions(), next.company, next.answers)

	if err := s.saveDraft(ctx, next); err != nil {
		return domain.Answer{}, err
	}
	s.st = next
	s.upsertIndex(ctx)
	s.metrics.IncrAnswerSaved()

	return cloneAnswer(answer), nil
}

// Submit completes the assessment when nothing is missing. An incomplete
// assessment yields Completed=false with the missing list and no state
// change. The write-once archival record is the commit point: a failure
// before it leaves the draft untouched, and the follow-up writes after it
// (draft, index, event) are logged but do not fail the submission.
func (s *AssessmentService) Submit(ctx context.Context) (*domain.SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "AssessmentService.Submit")
	defer span.End()
	defer s.observe("submit", time.Now())

	if s.st.assessment.Completed() {
		return nil, &domain.ErrAssessmentCompleted{AssessmentID: s.st.assessment.ID}
	}

	if missing := s.MissingFields(); len(missing) > 0 {
		s.metrics.IncrSubmitIncomplete()
		s.logger.Info("submit rejected, assessment incomplete", zap.Int("missing", len(missing)))
		return &domain.SubmitResult{Completed: false, Missing: missing}, nil
	}

	now := s.now()
	next := s.st.clone()
	next.assessment.Status = domain.StatusCompleted
	next.assessment.Progress = 100
	next.assessment.CompletedAt = &now
	next.assessment.UpdatedAt = now
	span.SetAttributes(attribute.String("assessment.id", next.assessment.ID))

	data, err := json.Marshal(next.snapshot())
	if err != nil {
		return nil, err
	}
	key := CompletedKey(next.assessment.ID)
	if err := s.store.PutIfAbsent(ctx, key, data); err != nil {
		if errors.Is(err, port.ErrKeyExists) {
			return s.adoptArchived(ctx, next.assessment.ID)
		}
		s.metrics.IncrStoreError("put_if_absent")
		return nil, &domain.ErrPersistence{Op: "put_if_absent", Key: key, Err: err}
	}
	s.st = next
	s.metrics.IncrCompleted()
	s.logger.Info("assessment completed", zap.String("assessment_id", next.assessment.ID))

	if err := s.saveDraft(ctx, next); err != nil {
		s.logger.Warn("draft not updated after submission", zap.Error(err))
	}
	s.upsertIndex(ctx)
	s.publishCompleted(ctx, next)

	return &domain.SubmitResult{Completed: true, Missing: []string{}, Assessment: s.Assessment()}, nil
}

// CreateNew discards the working assessment and its persisted draft.
// Archived records are not touched.
func (s *AssessmentService) CreateNew(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "AssessmentService.CreateNew")
	defer span.End()
	defer s.observe("create_new", time.Now())

	key := DraftKey(s.userID)
	if err := s.store.Delete(ctx, key); err != nil {
		s.metrics.IncrStoreError("delete")
		return &domain.ErrPersistence{Op: "delete", Key: key, Err: err}
	}
	if err := s.index.RemoveDrafts(ctx, s.userID); err != nil {
		s.logger.Warn("index not updated after reset", zap.Error(err))
	}
	s.st = state{answers: AnswerStore{}}
	return nil
}

// Load replaces the working memory with the archived record id. The record
// must belong to the session user. Missing, foreign or malformed records
// are reported as not found and leave the session unchanged.
func (s *AssessmentService) Load(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "AssessmentService.Load")
	defer span.End()
	span.SetAttributes(attribute.String("assessment.id", id))

	snap, err := ReadArchived(ctx, s.store, id, s.logger)
	if err != nil {
		var pe *domain.ErrPersistence
		if errors.As(err, &pe) {
			s.metrics.IncrStoreError("get")
		}
		return err
	}
	if snap.Assessment.UserID != s.userID {
		return &domain.ErrNotFound{Resource: "assessment", ID: id}
	}
	s.st = stateFrom(snap)
	return nil
}

// Restore loads the persisted draft at session start. A malformed draft is
// treated as absent.
func (s *AssessmentService) Restore(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "AssessmentService.Restore")
	defer span.End()

	key := DraftKey(s.userID)
	data, err := s.store.Get(ctx, key)
	if errors.Is(err, port.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		s.metrics.IncrStoreError("get")
		return &domain.ErrPersistence{Op: "get", Key: key, Err: err}
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil || snap.Assessment == nil {
		s.logger.Warn("ignoring malformed draft", zap.String("key", key), zap.Error(err))
		return nil
	}
	s.st = stateFrom(&snap)
	if s.st.assessment.Completed() {
		return nil
	}

	// A submission whose draft rewrite failed leaves the archive ahead of
	// the draft.
	archived, err := s.ownArchived(ctx, s.st.assessment.ID)
	if err != nil {
		return err
	}
	if archived != nil {
		s.logger.Warn("draft behind archived record, restoring archived state",
			zap.String("assessment_id", archived.Assessment.ID))
		s.st = stateFrom(archived)
		return nil
	}
	s.st.assessment.Progress = s.Progress()
	return nil
}

// adoptArchived resolves a Submit that found completed-state:{id} already
// written. A record owned by this user is the outcome of an earlier submit
// and becomes the committed state; anything else is a conflict.
func (s *AssessmentService) adoptArchived(ctx context.Context, id string) (*domain.SubmitResult, error) {
	archived, err := s.ownArchived(ctx, id)
	if err != nil {
		return nil, err
	}
	if archived == nil || !archived.Assessment.Completed() {
		return nil, &domain.ErrConflict{Message: "assessment " + id + " já foi arquivado"}
	}

	s.st = stateFrom(archived)
	s.logger.Info("submission already archived, adopting archived record", zap.String("assessment_id", id))
	if err := s.saveDraft(ctx, s.st); err != nil {
		s.logger.Warn("draft not updated after submission", zap.Error(err))
	}
	s.upsertIndex(ctx)
	return &domain.SubmitResult{Completed: true, Missing: []string{}, Assessment: s.Assessment()}, nil
}

// ownArchived returns the archived record for id when it exists and belongs
// to this user, nil otherwise.
func (s *AssessmentService) ownArchived(ctx context.Context, id string) (*domain.Snapshot, error) {
	snap, err := ReadArchived(ctx, s.store, id, s.logger)
	var notFound *domain.ErrNotFound
	if errors.As(err, &notFound) {
		return nil, nil
	}
	if err != nil {
		s.metrics.IncrStoreError("get")
		return nil, err
	}
	if snap.Assessment.UserID != s.userID || snap.Assessment.ID != id {
		return nil, nil
	}
	return snap, nil
}

// ============================================================
// Helpers
// ============================================================

// ReadArchived reads and decodes completed-state:{id}.
func ReadArchived(ctx context.Context, store port.KVStore, id string, logger *zap.Logger) (*domain.Snapshot, error) {
	key := CompletedKey(id)
	data, err := store.Get(ctx, key)
	if errors.Is(err, port.ErrKeyNotFound) {
		return nil, &domain.ErrNotFound{Resource: "assessment", ID: id}
	}
	if err != nil {
		return nil, &domain.ErrPersistence{Op: "get", Key: key, Err: err}
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil || snap.Assessment == nil {
		logger.Warn("malformed archived assessment", zap.String("key", key), zap.Error(err))
		return nil, &domain.ErrNotFound{Resource: "assessment", ID: id}
	}
	return &snap, nil
}

func stateFrom(snap *domain.Snapshot) state {
	st := state{assessment: snap.Assessment, company: snap.Company, answers: AnswerStore(snap.Answers)}
	if st.answers == nil {
		st.answers = AnswerStore{}
	}
	if st.company != nil {
		st.company.Normalize()
	}
	return st
}

func (s *AssessmentService) saveDraft(ctx context.Context, st state) error {
	key := DraftKey(s.userID)
	data, err := json.Marshal(st.snapshot())
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, key, data); err != nil {
		s.metrics.IncrStoreError("put")
		s.logger.Error("failed to persist draft", zap.String("key", key), zap.Error(err))
		return &domain.ErrPersistence{Op: "put", Key: key, Err: err}
	}
	return nil
}

func (s *AssessmentService) upsertIndex(ctx context.Context) {
	if s.st.assessment == nil {
		return
	}
	if err := s.index.Upsert(ctx, EntryFor(s.st.assessment)); err != nil {
		s.metrics.IncrStoreError("put")
		s.logger.Warn("failed to update assessment index", zap.Error(err))
	}
}

func (s *AssessmentService) publishCompleted(ctx context.Context, st state) {
	if s.events == nil {
		return
	}
	evt := domain.CompletedEvent{
		Event:        domain.EventAssessmentCompleted,
		AssessmentID: st.assessment.ID,
		UserID:       st.assessment.UserID,
		CNPJ:         st.company.CNPJ,
		CompanyName:  st.company.RazaoSocial,
		CompanySize:  string(st.company.TamanhoEmpresa),
		CompletedAt:  *st.assessment.CompletedAt,
	}
	if err := s.events.PublishCompleted(ctx, evt); err != nil {
		s.metrics.IncrEventFailed()
		s.logger.Warn("failed to publish completion event",
			zap.String("assessment_id", evt.AssessmentID),
			zap.Error(err),
		)
	}
}

func (s *AssessmentService) observe(op string, start time.Time) {
	s.metrics.RecordDuration(op, time.Since(start))
}
