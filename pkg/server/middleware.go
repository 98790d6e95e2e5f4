package server

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/osmosemcp/pkg/monitoring"
	"github.com/NERVsystems/osmosemcp/pkg/tracing"
)

type contextKey string

const requestIDKey contextKey = "request_id"

const (
	maxClients = 10000
	clientIdle = 3 * time.Minute
)

var requestCounter atomic.Uint64

func generateRequestID() string {
	return fmt.Sprintf("%s-%06d", time.Now().UTC().Format("20060102150405"), requestCounter.Add(1))
}

// RequestID returns the request identifier stored by LoggingMiddleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// RateLimiter keeps one token bucket per client address. Clients idle for
// clientIdle are forgotten, and at most maxClients are tracked; the least
// recently seen goes first.
type RateLimiter struct {
	rate    rate.Limit
	burst   int
	proxies TrustedProxies

	mu      sync.Mutex
	clients *expirable.LRU[string, *rate.Limiter]
}

// NewRateLimiter creates a limiter allowing r requests per second with burst
// b per client. proxies decides which forwarding headers are believed.
func NewRateLimiter(r rate.Limit, b int, proxies TrustedProxies) *RateLimiter {
	return newRateLimiter(r, b, proxies, maxClients)
}

func newRateLimiter(r rate.Limit, b int, proxies TrustedProxies, size int) *RateLimiter {
	return &RateLimiter{
		rate:    r,
		burst:   b,
		proxies: proxies,
		clients: expirable.NewLRU[string, *rate.Limiter](size, nil, clientIdle),
	}
}

// Stop drops all tracked clients.
func (rl *RateLimiter) Stop() {
	rl.clients.Purge()
}

func (rl *RateLimiter) limiter(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	lim, ok := rl.clients.Get(client)
	if !ok {
		lim = rate.NewLimiter(rl.rate, rl.burst)
	}
	// re-adding renews the idle deadline
	rl.clients.Add(client, lim)
	return lim
}

// Middleware rejects requests over the client's budget with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter(rl.proxies.ClientIP(r)).Allow() {
			monitoring.RecordRateLimitExceeded("http")
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestSizeLimiter caps request bodies at maxBytes.
func RequestSizeLimiter(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets the response headers browsers act on.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware tags each request with an ID (kept from X-Request-ID when
// the caller sends one) and logs it.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	var inflight atomic.Int64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newResponseWriter(w)

			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = generateRequestID()
			}
			rec.Header().Set("X-Request-ID", id)
			r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))

			monitoring.UpdateActiveConnections("http", "request", int(inflight.Add(1)))
			defer func() {
				monitoring.UpdateActiveConnections("http", "request", int(inflight.Add(-1)))
			}()

			next.ServeHTTP(rec, r)

			logger.Info("http request",
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"status", rec.statusCode,
				"duration", time.Since(start),
				"bytes", rec.bytesWritten)
		})
	}
}

// responseWriter records the status and size of a response. It forwards
// Flush and Hijack, which the SSE stream needs.
type responseWriter struct {
	http.ResponseWriter
	statusCode    int
	bytesWritten  int64
	headerWritten bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.headerWritten {
		return
	}
	rw.statusCode = code
	rw.headerWritten = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.headerWritten {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// TracingMiddleware opens a span per request. MCP message posts carry the
// session in the sessionId query parameter.
func TracingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attrs := []attribute.KeyValue{
				attribute.String(tracing.AttrHTTPMethod, r.Method),
				attribute.String(tracing.AttrHTTPPath, r.URL.Path),
			}
			if session := r.URL.Query().Get("sessionId"); session != "" {
				attrs = append(attrs, attribute.String(tracing.AttrHTTPSessionID, session))
			}

			ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+r.URL.Path, trace.WithAttributes(attrs...))
			defer span.End()

			rec := newResponseWriter(w)
			next.ServeHTTP(rec, r.WithContext(ctx))

			span.SetAttributes(attribute.Int(tracing.AttrHTTPStatusCode, rec.statusCode))
			if rec.statusCode >= 400 {
				span.SetStatus(codes.Error, http.StatusText(rec.statusCode))
			}
		})
	}
}
