package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/osmosemcp/pkg/core"
	"github.com/NERVsystems/osmosemcp/pkg/monitoring"
)

// HTTPTransportConfig holds configuration for the HTTP transport
type HTTPTransportConfig struct {
	Addr           string  `json:"addr"`             // HTTP server address (e.g., ":7082")
	BaseURL        string  `json:"base_url"`         // Base URL for service discovery
	SSEEndpoint    string  `json:"sse_endpoint"`     // SSE endpoint path (default: "/sse")
	MsgEndpoint    string  `json:"msg_endpoint"`     // Message endpoint path (default: "/message")
	RateLimit      float64 `json:"rate_limit"`       // Requests per second per IP (0 = disabled)
	RateBurst      int     `json:"rate_burst"`       // Burst size for rate limiter
	MaxRequestSize int64   `json:"max_request_size"` // Maximum request body size in bytes
	MaxHeaderBytes int     `json:"max_header_bytes"` // Maximum header size in bytes

	// TrustedProxies are the reverse proxies (TLS terminators) allowed to
	// set X-Forwarded-For and X-Forwarded-Proto.
	TrustedProxies TrustedProxies `json:"-"`
}

// DefaultHTTPTransportConfig returns sensible defaults
func DefaultHTTPTransportConfig() HTTPTransportConfig {
	return HTTPTransportConfig{
		Addr:           ":7082",
		SSEEndpoint:    "/sse",
		MsgEndpoint:    "/message",
		RateLimit:      10,
		RateBurst:      20,
		MaxRequestSize: 1 << 20, // 1 MB
		MaxHeaderBytes: 1 << 20, // 1 MB
	}
}

// HTTPTransport serves MCP over HTTP+SSE next to the health endpoints and the
// plain JSON API.
type HTTPTransport struct {
	config        HTTPTransportConfig
	logger        *slog.Logger
	sseServer     *mcpserver.SSEServer
	mux           *http.ServeMux
	httpSrv       *http.Server
	rateLimiter   *RateLimiter
	healthChecker *monitoring.HealthChecker
	mu            sync.RWMutex
}

// NewHTTPTransport creates a new HTTP transport instance. api may be nil.
func NewHTTPTransport(mcpServer *mcpserver.MCPServer, api http.Handler, config HTTPTransportConfig, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}

	sseServer := mcpserver.NewSSEServer(
		mcpServer,
		mcpserver.WithSSEEndpoint(config.SSEEndpoint),
		mcpserver.WithMessageEndpoint(config.MsgEndpoint),
		mcpserver.WithBaseURL(config.BaseURL),
	)

	transport := &HTTPTransport{
		config:    config,
		logger:    logger,
		sseServer: sseServer,
		mux:       http.NewServeMux(),
	}
	if config.RateLimit > 0 {
		transport.rateLimiter = NewRateLimiter(rate.Limit(config.RateLimit), config.RateBurst, config.TrustedProxies)
	}

	transport.setupRoutes(api)

	return transport
}

// SetHealthChecker sets the health checker for the HTTP transport
func (t *HTTPTransport) SetHealthChecker(hc *monitoring.HealthChecker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.healthChecker = hc
}

func (t *HTTPTransport) setupRoutes(api http.Handler) {
	t.mux.HandleFunc("/", t.handleServiceDiscovery)

	t.mux.HandleFunc("/health", t.handleHealth)
	t.mux.HandleFunc("/ready", t.handleReady)
	t.mux.HandleFunc("/live", t.handleLive)

	if api != nil {
		t.mux.Handle("/api/", t.limit(api))
	}

	t.mux.Handle(t.config.SSEEndpoint, t.limit(t.sseServer.SSEHandler()))
	t.mux.Handle(t.config.MsgEndpoint, t.limit(t.sseServer.MessageHandler()))
}

// limit applies the per-client rate limiter when one is configured.
func (t *HTTPTransport) limit(next http.Handler) http.Handler {
	if t.rateLimiter == nil {
		return next
	}
	return t.rateLimiter.Middleware(next)
}

// handleServiceDiscovery tells MCP clients where the transport endpoints are
func (t *HTTPTransport) handleServiceDiscovery(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	baseURL := t.config.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("%s://%s", t.config.TrustedProxies.Scheme(r), r.Host)
	}

	discovery := map[string]interface{}{
		"service":   ServerName,
		"transport": "HTTP+SSE",
		"endpoints": map[string]string{
			"sse":     baseURL + t.config.SSEEndpoint,
			"message": baseURL + t.config.MsgEndpoint,
			"api":     baseURL + "/api/",
		},
		"capabilities": map[string]interface{}{
			"tools": true,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(discovery); err != nil {
		t.logger.Error("failed to encode service discovery response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (t *HTTPTransport) checker() *monitoring.HealthChecker {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.healthChecker
}

func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if hc := t.checker(); hc != nil {
		hc.HealthHandler()(w, r)
		return
	}
	t.writeJSON(w, map[string]interface{}{"status": "ok"})
}

func (t *HTTPTransport) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if hc := t.checker(); hc != nil {
		hc.ReadinessHandler()(w, r)
		return
	}
	t.writeJSON(w, map[string]interface{}{"ready": true, "status": "ok"})
}

func (t *HTTPTransport) handleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if hc := t.checker(); hc != nil {
		hc.LivenessHandler()(w, r)
		return
	}
	t.writeJSON(w, map[string]interface{}{"alive": true})
}

func (t *HTTPTransport) writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		t.logger.Error("failed to encode response", "error", err)
	}
}

// Handler returns the routes wrapped in the middleware chain.
func (t *HTTPTransport) Handler() http.Handler {
	handler := http.Handler(t.mux)
	handler = TracingMiddleware()(handler)
	handler = LoggingMiddleware(t.logger)(handler)
	handler = SecurityHeaders(handler)
	if t.config.MaxRequestSize > 0 {
		handler = RequestSizeLimiter(t.config.MaxRequestSize)(handler)
	}
	return handler
}

// Start begins serving HTTP requests. It blocks until Shutdown.
func (t *HTTPTransport) Start() error {
	t.mu.Lock()

	if t.httpSrv != nil {
		t.mu.Unlock()
		return core.NewError(core.ErrInternalError, "HTTP transport already started").
			WithGuidance("The HTTP transport is already running. Stop it before starting again.")
	}

	t.httpSrv = &http.Server{
		Addr:              t.config.Addr,
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    t.config.MaxHeaderBytes,
	}
	srv := t.httpSrv

	if t.healthChecker != nil {
		t.healthChecker.SetTransport(monitoring.TransportInfo{Type: "sse", HTTPAddr: t.config.Addr})
	}

	t.logger.Info("starting HTTP transport",
		"addr", t.config.Addr,
		"sse_endpoint", t.config.SSEEndpoint,
		"message_endpoint", t.config.MsgEndpoint,
		"base_url", t.config.BaseURL,
		"rate_limit", t.config.RateLimit,
		"trusted_proxies", len(t.config.TrustedProxies))

	t.mu.Unlock()

	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP transport
func (t *HTTPTransport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rateLimiter != nil {
		t.rateLimiter.Stop()
		t.rateLimiter = nil
	}

	if t.httpSrv == nil {
		return nil
	}

	t.logger.Info("shutting down HTTP transport")

	if err := t.sseServer.Shutdown(ctx); err != nil {
		t.logger.Error("failed to shutdown SSE server", "error", err)
	}

	err := t.httpSrv.Shutdown(ctx)
	t.httpSrv = nil
	return err
}
