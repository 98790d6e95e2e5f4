package osm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/osmosemcp/pkg/osm/osmxml"
	"github.com/NERVsystems/osmosemcp/pkg/tracing"
)

const (
	// DefaultUserAgent is the default User-Agent string
	DefaultUserAgent = "osmosemcp/0.1.0"

	// DefaultBaseURL is the read endpoint of the main OSM instance
	DefaultBaseURL = "https://www.openstreetmap.org/"

	// Default request rate against the API
	DefaultRPS   = 2.0
	DefaultBurst = 4

	apiPrefix = "api/0.6"
)

// Client reads elements from an OSM API instance.
// It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	hooks      *MonitoringHooks
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRateLimit sets the request rate limit against the API host.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithMonitoringHooks installs request monitoring callbacks.
func WithMonitoringHooks(hooks *MonitoringHooks) Option {
	return func(c *Client) { c.hooks = hooks }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for the API rooted at baseURL
// (for example "https://www.openstreetmap.org/").
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/",
		// No overall timeout: callers bound requests with their context.
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:   rate.NewLimiter(rate.Limit(DefaultRPS), DefaultBurst),
		userAgent: DefaultUserAgent,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client reads from.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ElementURL builds the URL of an element. The "/full" suffix, which adds the
// way's nodes to the response, is only used for ways.
func (c *Client) ElementURL(t ElementType, id int64, full bool) string {
	u := c.baseURL + apiPrefix + "/" + string(t) + "/" + strconv.FormatInt(id, 10)
	if t == Way && full {
		u += "/full"
	}
	return u
}

// FetchData downloads an element and decodes the response. The returned data
// always holds at least one element of type t; every failure is reported as
// a *FetchError.
func (c *Client) FetchData(ctx context.Context, t ElementType, id int64, full bool) (osmxml.Data, error) {
	elemURL := c.ElementURL(t, id, full)

	ctx, span := tracing.StartSpan(ctx, "osm.fetch_element",
		trace.WithAttributes(
			attribute.String(tracing.AttrOSMElementType, string(t)),
			attribute.Int64(tracing.AttrOSMElementID, id),
			attribute.Bool(tracing.AttrOSMElementFull, full),
			attribute.String(tracing.AttrServiceURL, elemURL),
		),
	)
	defer span.End()

	data, err := c.fetch(ctx, t, elemURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int(tracing.AttrOSMElementCount, data.Len()))
	span.SetStatus(codes.Ok, "")
	return data, nil
}

func (c *Client) fetch(ctx context.Context, t ElementType, elemURL string) (osmxml.Data, error) {
	if _, err := ParseElementType(string(t)); err != nil {
		return nil, &FetchError{Kind: FailureRequest, URL: elemURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, elemURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: FailureRequest, URL: elemURL, Err: err}
	}

	resp, err := c.do(ctx, req, "fetch_element")
	if err != nil {
		return nil, &FetchError{Kind: FailureTransport, URL: elemURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Kind: FailureStatus, URL: elemURL, StatusCode: resp.StatusCode}
	}

	data, err := osmxml.Decode(ctx, resp.Body)
	if err != nil {
		c.reportError("parse_error")
		return nil, &FetchError{Kind: FailureParse, URL: elemURL, StatusCode: resp.StatusCode, Err: err}
	}

	if data.First(t.Kind()) == nil {
		return nil, &FetchError{Kind: FailureEmpty, URL: elemURL, StatusCode: resp.StatusCode}
	}

	return data, nil
}

// FetchElement returns the first element of type t in the API response, or
// nil when it could not be fetched for any reason.
func (c *Client) FetchElement(ctx context.Context, t ElementType, id int64, full bool) *osmxml.Element {
	data, err := c.FetchData(ctx, t, id, full)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			c.logger.Debug("osm element unavailable",
				"type", t,
				"id", id,
				"reason", fe.Kind,
				"status", fe.StatusCode,
				"error", err)
		}
		return nil
	}
	return data.First(t.Kind())
}

// FetchElementSummary is FetchElement without the way's node geometry.
func (c *Client) FetchElementSummary(ctx context.Context, t ElementType, id int64) *osmxml.Element {
	return c.FetchElement(ctx, t, id, false)
}

// CheckHealth queries the API capabilities document.
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPrefix+"/capabilities", nil)
	if err != nil {
		return fmt.Errorf("failed to create osm api health check request: %w", err)
	}

	resp, err := c.do(ctx, req, "capabilities")
	if err != nil {
		return fmt.Errorf("osm api health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("osm api health check returned status %d", resp.StatusCode)
	}
	return nil
}

// hostFromURL extracts the host from a URL string
func hostFromURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Host
}
