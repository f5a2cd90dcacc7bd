package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// ServiceMetrics is returned by GET /v1/admin/metrics.
type ServiceMetrics struct {
	AssessmentsCreated   int64   `json:"assessmentsCreated"`
	AssessmentsCompleted int64   `json:"assessmentsCompleted"`
	SubmitsIncomplete    int64   `json:"submitsIncomplete"`
	AnswersSaved         int64   `json:"answersSaved"`
	ReportsExported      int64   `json:"reportsExported"`
	StoreErrors          int64   `json:"storeErrors"`
	RegistryCacheHitRate float64 `json:"registryCacheHitRate"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
