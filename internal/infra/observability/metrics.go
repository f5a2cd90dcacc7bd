package observability

import (
	"time"

	"github.com/boddenberg/security-assessment-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the assessment service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	storeErrors       *prometheus.CounterVec
	externalErrors    *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	assessments       *prometheus.CounterVec
	submissions       *prometheus.CounterVec
	answersSaved      prometheus.Counter
	reportsExported   prometheus.Counter
	eventsFailed      prometheus.Counter
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. A private registry lets tests call NewMetrics
// repeatedly without "duplicate collector" panics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assessment_operation_duration_seconds",
				Help:    "Duration of assessment operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assessment_store_errors_total",
				Help: "Total key-value store failures by operation.",
			},
			[]string{"op"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assessment_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assessment_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assessment_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		assessments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assessment_assessments_total",
				Help: "Assessments by lifecycle transition.",
			},
			[]string{"transition"},
		),
		submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assessment_submissions_total",
				Help: "Submit attempts by outcome.",
			},
			[]string{"outcome"},
		),
		answersSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "assessment_answers_saved_total",
			Help: "Total answers persisted.",
		}),
		reportsExported: factory.NewCounter(prometheus.CounterOpts{
			Name: "assessment_reports_exported_total",
			Help: "Total text reports generated.",
		}),
		eventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "assessment_events_failed_total",
			Help: "Completion events that could not be published.",
		}),
	}
}

// RecordDuration records the duration of an operation.
func (m *Metrics) RecordDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrStoreError increments the store error counter.
func (m *Metrics) IncrStoreError(op string) {
	m.storeErrors.WithLabelValues(op).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

func (m *Metrics) IncrCreated() { m.assessments.WithLabelValues("created").Inc() }

func (m *Metrics) IncrCompleted() {
	m.assessments.WithLabelValues("completed").Inc()
	m.submissions.WithLabelValues("completed").Inc()
}

func (m *Metrics) IncrSubmitIncomplete() { m.submissions.WithLabelValues("incomplete").Inc() }

func (m *Metrics) IncrAnswerSaved() { m.answersSaved.Inc() }

func (m *Metrics) IncrReportExported() { m.reportsExported.Inc() }

func (m *Metrics) IncrEventFailed() { m.eventsFailed.Inc() }

// Snapshot returns the cumulative counters for GET /v1/admin/metrics.
func (m *Metrics) Snapshot() *domain.ServiceMetrics {
	hits := getCounterValue(m.cacheHits, "registry")
	misses := getCounterValue(m.cacheMisses, "registry")
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	var storeErrors float64
	for _, op := range []string{"get", "put", "put_if_absent", "delete"} {
		storeErrors += getCounterValue(m.storeErrors, op)
	}

	return &domain.ServiceMetrics{
		AssessmentsCreated:   int64(getCounterValue(m.assessments, "created")),
		AssessmentsCompleted: int64(getCounterValue(m.assessments, "completed")),
		SubmitsIncomplete:    int64(getCounterValue(m.submissions, "incomplete")),
		AnswersSaved:         int64(counterValue(m.answersSaved)),
		ReportsExported:      int64(counterValue(m.reportsExported)),
		StoreErrors:          int64(storeErrors),
		RegistryCacheHitRate: hitRate,
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	return counterValue(cv.WithLabelValues(label))
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
