package domain

// ============================================================
// Health & Stats API Responses
// ============================================================

// HealthStatus is returned by GET /healthz and GET /readyz.
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

// OperationStats is returned by GET /v1/admin/stats.
type OperationStats struct {
	Operations   map[string]float64 `json:"operations"`   // "<type>/<outcome>" -> count
	Rejections   map[string]float64 `json:"rejections"`   // reason -> count
	StoreErrors  map[string]float64 `json:"storeErrors"`  // op -> count
	CacheHitRate float64            `json:"cacheHitRate"` // 0..1
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps paginated list results.
type ListResponse[T any] struct {
	Data     []T  `json:"data"`
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasMore  bool `json:"has_more"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
