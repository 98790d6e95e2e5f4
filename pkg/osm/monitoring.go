package osm

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/osmosemcp/pkg/tracing"
)

// MonitoringHooks defines hooks for monitoring HTTP requests
type MonitoringHooks struct {
	// OnRequest is called before making an HTTP request
	OnRequest func(service, operation string)

	// OnResponse is called after receiving an HTTP response
	OnResponse func(service, operation string, duration time.Duration, success bool)

	// OnRateLimit is called when a request had to wait for the rate limiter
	OnRateLimit func(service string, waitTime time.Duration)

	// OnError is called when an error occurs
	OnError func(service, errorType string)
}

// do performs req against the API with rate limiting and monitoring.
func (c *Client) do(ctx context.Context, req *http.Request, operation string) (*http.Response, error) {
	service := c.serviceFor(req)
	hooks := c.hooks

	req.Header.Set("User-Agent", c.userAgent)

	if hooks != nil && hooks.OnRequest != nil {
		hooks.OnRequest(service, operation)
	}

	if err := c.waitForRateLimit(ctx, req, service); err != nil {
		c.reportError("rate_limit_wait_error")
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	success := err == nil && resp.StatusCode < 400
	if err == nil {
		tracing.SetAttributes(ctx, tracing.ServiceAttributes(service, operation, req.URL.String(), resp.StatusCode)...)
	} else {
		tracing.SetAttributes(ctx, tracing.ErrorAttributes(err)...)
	}
	if hooks != nil && hooks.OnResponse != nil {
		hooks.OnResponse(service, operation, duration, success)
	}

	// HTTP error statuses are not errors here, only transport failures
	if err != nil {
		c.reportError("request_error")
	}

	return resp, err
}

// waitForRateLimit blocks until the limiter admits a request to the API host.
// Requests to other hosts are not limited.
func (c *Client) waitForRateLimit(ctx context.Context, req *http.Request, service string) error {
	if service != tracing.ServiceOSMAPI {
		return nil
	}

	if c.limiter.Allow() {
		return nil
	}

	startWait := time.Now()
	tracing.AddEvent(ctx, "rate_limit_wait",
		trace.WithAttributes(
			attribute.String(tracing.AttrRateLimitService, service),
		),
	)

	err := c.limiter.Wait(ctx)

	waitDuration := time.Since(startWait)
	tracing.SetAttributes(ctx,
		attribute.String(tracing.AttrRateLimitService, service),
		attribute.Int64(tracing.AttrRateLimitWaitMs, waitDuration.Milliseconds()),
	)
	if c.hooks != nil && c.hooks.OnRateLimit != nil {
		c.hooks.OnRateLimit(service, waitDuration)
	}

	return err
}

func (c *Client) reportError(errorType string) {
	if c.hooks != nil && c.hooks.OnError != nil {
		c.hooks.OnError(tracing.ServiceOSMAPI, errorType)
	}
}

// serviceFor determines which service is being called based on the request URL
func (c *Client) serviceFor(req *http.Request) string {
	if req.URL.Host == hostFromURL(c.baseURL) {
		return tracing.ServiceOSMAPI
	}
	return "unknown"
}
