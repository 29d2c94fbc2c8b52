package models

// Response is the envelope returned by every action endpoint.
type Response struct {
	// Success indicates whether the action completed without errors.
	Success bool `json:"success"`

	// Data carries the action-specific result. Omitted on failure.
	Data any `json:"data,omitempty"`

	// Timing reports how long the action took.
	Timing TimingInfo `json:"timing"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// NavigateResult is the Data of a successful navigation.
type NavigateResult struct {
	URL string `json:"url"`
}

// ElementInfo describes one element matched by a wait.
type ElementInfo struct {
	Text string `json:"text"`
	Href string `json:"href,omitempty"`
}

// WaitResult is the Data of a successful wait.
type WaitResult struct {
	Selector string        `json:"selector"`
	Count    int           `json:"count"`
	Elements []ElementInfo `json:"elements"`
}

// ExportResult is the Data of a successful CSV export.
type ExportResult struct {
	FileName string `json:"file_name"`
	Rows     int    `json:"rows"`
}

// TimingInfo breaks down the time spent serving a request.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"` // "healthy" or "degraded"
	Uptime  string `json:"uptime"`
	Driver  string `json:"driver"`
	Version string `json:"version"`
}
