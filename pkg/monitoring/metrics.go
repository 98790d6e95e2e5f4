package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// ServiceName is used for metrics and health reporting
	ServiceName = "osmosemcp"
)

var (
	// MCP tool metrics
	MCPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmosemcp_mcp_requests_total",
			Help: "Total number of MCP tool calls processed",
		},
		[]string{"tool", "status"},
	)

	MCPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osmosemcp_mcp_request_duration_seconds",
			Help:    "MCP tool call duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"tool"},
	)

	// Remote API metrics
	ExternalServiceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmosemcp_external_service_requests_total",
			Help: "Total number of requests to remote services",
		},
		[]string{"service", "operation", "status"},
	)

	ExternalServiceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osmosemcp_external_service_request_duration_seconds",
			Help:    "Remote service request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"service", "operation"},
	)

	// Element fetch outcomes, labelled by element type and "found" or a failure kind
	ElementFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmosemcp_element_fetches_total",
			Help: "Total number of OSM element fetches by outcome",
		},
		[]string{"type", "result"},
	)

	// Rate limiting metrics
	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmosemcp_rate_limit_exceeded_total",
			Help: "Total number of requests delayed by a rate limiter",
		},
		[]string{"service"},
	)

	RateLimitWaitTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osmosemcp_rate_limit_wait_duration_seconds",
			Help:    "Time spent waiting for rate limits",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"service"},
	)

	// Language negotiation metrics
	UILanguageSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmosemcp_ui_language_selections_total",
			Help: "Total number of interface language selections by chosen language",
		},
		[]string{"language"},
	)

	TranslationSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmosemcp_translation_selections_total",
			Help: "Total number of translation negotiations by outcome",
		},
		[]string{"outcome"},
	)

	// Connection metrics
	ActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "osmosemcp_active_connections",
			Help: "Number of active connections",
		},
		[]string{"transport", "type"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmosemcp_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	SystemInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "osmosemcp_system_info",
			Help: "System information",
		},
		[]string{"version", "go_version", "build_commit", "build_date"},
	)

	GoRoutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "osmosemcp_goroutines",
			Help: "Number of goroutines",
		},
	)

	MemoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "osmosemcp_memory_usage_bytes",
			Help: "Memory usage in bytes",
		},
	)

	GCRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "osmosemcp_gc_runs_total",
			Help: "Total number of garbage collection runs",
		},
	)
)

// TransportInfo holds transport configuration and status
type TransportInfo struct {
	Type     string `json:"type"`                // "sse" or "stdio"
	HTTPAddr string `json:"http_addr,omitempty"` // HTTP address if enabled
}

// ServiceHealth is the body of the /health endpoint.
type ServiceHealth struct {
	Service       string                 `json:"service"`
	Version       string                 `json:"version"`
	Status        string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	Uptime        time.Duration          `json:"uptime"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	StartTime     time.Time              `json:"start_time,omitempty"`
	Connections   map[string]ConnStatus  `json:"connections"`
	Metrics       map[string]interface{} `json:"metrics,omitempty"`
	Transport     *TransportInfo         `json:"transport,omitempty"`
}

// ConnStatus is the last known state of one remote dependency.
type ConnStatus struct {
	Status    string    `json:"status"`               // "connected", "disconnected", "degraded", "error"
	Latency   int64     `json:"latency_ms,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordMCPRequest records one tool call.
func RecordMCPRequest(tool string, duration time.Duration, success bool) {
	MCPRequestsTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	MCPRequestDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordExternalServiceRequest records one completed remote request.
func RecordExternalServiceRequest(service, operation string, duration time.Duration, success bool) {
	ExternalServiceRequestsTotal.WithLabelValues(service, operation, statusLabel(success)).Inc()
	ExternalServiceRequestDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordElementFetch records the outcome of an element fetch.
func RecordElementFetch(elementType, result string) {
	ElementFetchesTotal.WithLabelValues(elementType, result).Inc()
}

func RecordRateLimitExceeded(service string) {
	RateLimitExceeded.WithLabelValues(service).Inc()
}

func RecordRateLimitWait(service string, duration time.Duration) {
	RateLimitWaitTime.WithLabelValues(service).Observe(duration.Seconds())
}

func RecordUILanguage(language string) {
	UILanguageSelections.WithLabelValues(language).Inc()
}

// RecordTranslationSelection records whether a negotiation produced a
// single entry ("negotiated"), the full map ("passthrough") or nothing ("empty").
func RecordTranslationSelection(outcome string) {
	TranslationSelections.WithLabelValues(outcome).Inc()
}

func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

func UpdateActiveConnections(transport, connType string, count int) {
	ActiveConnections.WithLabelValues(transport, connType).Set(float64(count))
}
