package service

import (
	"context"
	"sync"
	"time"

	"github.com/boddenberg/security-assessment-go/internal/catalog"
	"github.com/boddenberg/security-assessment-go/internal/infra/observability"
	"github.com/boddenberg/security-assessment-go/internal/port"

	"go.uber.org/zap"
)

type session struct {
	mu       sync.Mutex
	svc      *AssessmentService
	restored bool

	// guarded by Sessions.mu
	refs     int
	lastUsed time.Time
}

// Sessions owns one AssessmentService per user. Calls for the same user are
// serialized; different users run concurrently.
type Sessions struct {
	catalog *catalog.Catalog
	store   port.KVStore
	index   *Index
	events  port.EventPublisher
	metrics *observability.Metrics
	logger  *zap.Logger
	opts    []Option

	mu       sync.Mutex
	sessions map[string]*session

	stop     chan struct{}
	stopOnce sync.Once
}

// NewSessions creates the session registry. events may be nil.
func NewSessions(
	cat *catalog.Catalog,
	store port.KVStore,
	index *Index,
	events port.EventPublisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts ...Option,
) *Sessions {
	return &Sessions{
		catalog:  cat,
		store:    store,
		index:    index,
		events:   events,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
		sessions: make(map[string]*session),
		stop:     make(chan struct{}),
	}
}

// Catalog returns the question catalog shared by all sessions.
func (s *Sessions) Catalog() *catalog.Catalog { return s.catalog }

// Store returns the backing KV store.
func (s *Sessions) Store() port.KVStore { return s.store }

// Index returns the assessment index.
func (s *Sessions) Index() *Index { return s.index }

// Do runs fn with userID's session locked. The persisted draft is restored
// on first use; a failed restore is retried on the next call.
func (s *Sessions) Do(ctx context.Context, userID string, fn func(*AssessmentService) error) error {
	sess := s.acquire(userID)
	defer s.release(sess)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if !sess.restored {
		if err := sess.svc.Restore(ctx); err != nil {
			return err
		}
		sess.restored = true
	}
	return fn(sess.svc)
}

// Len returns the number of sessions held in memory.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Evict drops sessions unused for at least idle. Sessions with a call in
// flight are kept. An evicted user is restored from the persisted draft on
// the next call.
func (s *Sessions) Evict(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for userID, sess := range s.sessions {
		if sess.refs == 0 && !sess.lastUsed.After(cutoff) {
			delete(s.sessions, userID)
			n++
		}
	}
	return n
}

// StartEviction runs Evict every interval until Close.
func (s *Sessions) StartEviction(interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				if n := s.Evict(idle); n > 0 {
					s.logger.Debug("idle sessions evicted", zap.Int("evicted", n), zap.Int("remaining", s.Len()))
				}
			}
		}
	}()
}

// Close stops the eviction loop. Safe to call more than once.
func (s *Sessions) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Sessions) acquire(userID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		sess = &session{
			svc: NewAssessmentService(userID, s.catalog, s.store, s.index, s.events, s.metrics, s.logger, s.opts...),
		}
		s.sessions[userID] = sess
	}
	sess.refs++
	return sess
}

func (s *Sessions) release(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.refs--
	sess.lastUsed = time.Now()
}
