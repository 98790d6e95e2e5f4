// Package registration announces the server to a service registry so that
// frontends can discover the MCP and API endpoints. Announcing is best effort:
// the server keeps working when the registry is down.
package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/osmosemcp/pkg/monitoring"
	"github.com/NERVsystems/osmosemcp/pkg/tracing"
	"github.com/NERVsystems/osmosemcp/pkg/version"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultTimeout           = 5 * time.Second

	serviceRegistry = "registry"
)

// Service describes the announced server.
type Service struct {
	Name         string                 `json:"name"`
	Type         string                 `json:"type"`
	URL          string                 `json:"url"`
	HealthURL    string                 `json:"health_url"`
	InternalURL  string                 `json:"internal_url,omitempty"`
	Version      string                 `json:"version"`
	Capabilities []string               `json:"capabilities,omitempty"`
	Tools        []string               `json:"tools,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Ack is the registry's reply to an announcement.
type Ack struct {
	Status          string    `json:"status"`
	Name            string    `json:"name"`
	TTLSeconds      int       `json:"ttl_seconds"`
	NextHeartbeatBy time.Time `json:"next_heartbeat_by"`
}

// Announcer periodically posts a Service to {registry}/api/register and
// removes it with DELETE {registry}/api/register/{name} on exit.
type Announcer struct {
	registryURL string
	service     Service
	interval    time.Duration
	timeout     time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
	registered  atomic.Bool
}

// Option configures an Announcer.
type Option func(*Announcer)

// WithInterval sets the heartbeat interval.
func WithInterval(d time.Duration) Option {
	return func(a *Announcer) { a.interval = d }
}

// WithTimeout bounds each registry request.
func WithTimeout(d time.Duration) Option {
	return func(a *Announcer) { a.timeout = d }
}

// WithHTTPClient sets the HTTP client used for registry requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *Announcer) { a.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Announcer) { a.logger = logger }
}

// NewAnnouncer creates an announcer for svc. An empty svc.Type means "mcp".
func NewAnnouncer(registryURL string, svc Service, opts ...Option) *Announcer {
	if svc.Type == "" {
		svc.Type = "mcp"
	}
	if svc.Version == "" {
		svc.Version = version.BuildVersion
	}
	a := &Announcer{
		registryURL: strings.TrimRight(registryURL, "/"),
		service:     svc,
		interval:    DefaultHeartbeatInterval,
		timeout:     DefaultTimeout,
		httpClient:  &http.Client{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Registered reports whether the last announcement was accepted.
func (a *Announcer) Registered() bool {
	return a.registered.Load()
}

// Run announces immediately, then on every heartbeat until ctx is done, and
// finally deregisters. Registry failures are logged, never returned.
func (a *Announcer) Run(ctx context.Context) error {
	a.heartbeat(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.heartbeat(ctx)
		case <-ctx.Done():
			// the parent context is gone, deregister on a fresh one
			dctx, cancel := context.WithTimeout(context.Background(), a.timeout)
			defer cancel()
			if err := a.Deregister(dctx); err != nil {
				a.logger.Debug("deregistration failed", "registry", a.registryURL, "error", err)
			}
			return nil
		}
	}
}

func (a *Announcer) heartbeat(ctx context.Context) {
	wasRegistered := a.Registered()

	ack, err := a.Announce(ctx)
	if err != nil {
		a.registered.Store(false)
		a.logger.Debug("registration failed (registry may be unavailable)",
			"registry", a.registryURL,
			"error", err)
		return
	}

	a.registered.Store(true)
	if !wasRegistered {
		a.logger.Info("registered with service registry",
			"registry", a.registryURL,
			"name", a.service.Name,
			"ttl_seconds", ack.TTLSeconds)
	}
}

// Announce posts the service description once.
func (a *Announcer) Announce(ctx context.Context) (*Ack, error) {
	body, err := json.Marshal(a.service)
	if err != nil {
		return nil, fmt.Errorf("encoding registration: %w", err)
	}

	resp, err := a.send(ctx, "register", http.MethodPost, a.registryURL+"/api/register", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("registry returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var ack Ack
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, fmt.Errorf("decoding registry reply: %w", err)
	}
	return &ack, nil
}

// Deregister removes the service from the registry. It is a no-op when the
// service is not registered.
func (a *Announcer) Deregister(ctx context.Context) error {
	if !a.registered.Load() {
		return nil
	}

	resp, err := a.send(ctx, "deregister", http.MethodDelete, a.registryURL+"/api/register/"+a.service.Name, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	a.registered.Store(false)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registry returned status %d", resp.StatusCode)
	}
	a.logger.Info("deregistered from service registry", "name", a.service.Name)
	return nil
}

func (a *Announcer) send(ctx context.Context, operation, method, url string, body []byte) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)

	ctx, span := tracing.StartSpan(ctx, "registry."+operation,
		trace.WithAttributes(
			attribute.String(tracing.AttrServiceName, serviceRegistry),
			attribute.String(tracing.AttrServiceOperation, operation),
			attribute.String(tracing.AttrServiceURL, url),
		),
	)

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		span.End()
		cancel()
		return nil, fmt.Errorf("creating %s request: %w", operation, err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	monitoring.RecordExternalServiceRequest(serviceRegistry, operation, time.Since(start), err == nil && resp.StatusCode == http.StatusOK)
	if err != nil {
		monitoring.RecordError(serviceRegistry, "request_error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		cancel()
		return nil, fmt.Errorf("%s request: %w", operation, err)
	}
	span.SetAttributes(attribute.Int(tracing.AttrServiceStatus, resp.StatusCode))
	span.End()

	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelBody releases the request context once the body is closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
