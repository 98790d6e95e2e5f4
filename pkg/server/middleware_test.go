package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/time/rate"
)

func limitedHandler(rl *RateLimiter) http.Handler {
	return rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1, nil)
	defer rl.Stop()
	handler := limitedHandler(rl)

	request := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := request("10.0.0.1"); code != http.StatusOK {
		t.Errorf("first request from 10.0.0.1 = %d", code)
	}
	if code := request("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("second request from 10.0.0.1 = %d, want 429", code)
	}
	if code := request("10.0.0.2"); code != http.StatusOK {
		t.Errorf("first request from 10.0.0.2 = %d", code)
	}
}

func TestRateLimiterIgnoresSpoofedForwarding(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1, nil)
	defer rl.Stop()
	handler := limitedHandler(rl)

	for i, xff := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"} {
		req := httptest.NewRequest(http.MethodGet, "/api/languages", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		req.Header.Set("X-Forwarded-For", xff)
		req.Header.Set("X-Real-IP", xff)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		want := http.StatusTooManyRequests
		if i == 0 {
			want = http.StatusOK
		}
		if rec.Code != want {
			t.Errorf("request %d with X-Forwarded-For %s: status %d, want %d", i, xff, rec.Code, want)
		}
	}
}

func TestRateLimiterBehindProxy(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatal(err)
	}
	rl := NewRateLimiter(rate.Limit(1), 1, proxies)
	defer rl.Stop()
	handler := limitedHandler(rl)

	request := func(client string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.5:443"
		req.Header.Set("X-Forwarded-For", client)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := request("203.0.113.1"); code != http.StatusOK {
		t.Errorf("first client = %d", code)
	}
	if code := request("203.0.113.2"); code != http.StatusOK {
		t.Errorf("second client behind the same proxy = %d", code)
	}
	if code := request("203.0.113.1"); code != http.StatusTooManyRequests {
		t.Errorf("repeat of first client = %d, want 429", code)
	}
}

func TestRateLimiterEviction(t *testing.T) {
	rl := newRateLimiter(rate.Limit(10), 1, nil, 2)
	defer rl.Stop()

	rl.limiter("10.0.0.1")
	rl.limiter("10.0.0.2")
	rl.limiter("10.0.0.1")
	rl.limiter("10.0.0.3")

	if n := rl.clients.Len(); n != 2 {
		t.Fatalf("expected 2 clients, got %d", n)
	}
	if rl.clients.Contains("10.0.0.2") {
		t.Error("least recently seen client should have been evicted")
	}
	if !rl.clients.Contains("10.0.0.1") {
		t.Error("recently seen client should be kept")
	}
}

func TestRateLimiterKeepsBucket(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1, nil)
	defer rl.Stop()

	if rl.limiter("10.0.0.1") != rl.limiter("10.0.0.1") {
		t.Error("the same client must get the same bucket")
	}
}

func TestLoggingMiddlewareRequestID(t *testing.T) {
	var seen string
	handler := LoggingMiddleware(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	id := rec.Header().Get("X-Request-ID")
	if id == "" || id != seen {
		t.Errorf("request id header %q, context %q", id, seen)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "upstream-1" || seen != "upstream-1" {
		t.Errorf("upstream request id not kept: header %q, context %q", got, seen)
	}
}

func TestGenerateRequestIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := generateRequestID()
		if seen[id] {
			t.Fatalf("duplicate request id %q", id)
		}
		seen[id] = true
	}
}

func TestResponseWriterFlusher(t *testing.T) {
	var flushed bool
	handler := LoggingMiddleware(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Error("wrapped writer should implement http.Flusher")
			return
		}
		io.WriteString(w, "data: hello\n\n")
		f.Flush()
		flushed = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sse", nil))

	if !flushed || !rec.Flushed {
		t.Error("flush should reach the underlying writer")
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Strict-Transport-Security", "Content-Security-Policy"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing %s header", h)
		}
	}
}

func TestRequestSizeLimiter(t *testing.T) {
	handler := RequestSizeLimiter(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, "too large", http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		body string
		want int
	}{
		{"short", http.StatusOK},
		{strings.Repeat("x", 64), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(tt.body)))
		if rec.Code != tt.want {
			t.Errorf("body of %d bytes: status %d, want %d", len(tt.body), rec.Code, tt.want)
		}
	}
}

func TestTracingMiddlewarePassesThrough(t *testing.T) {
	handler := TracingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/message?sessionId=abc", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}
