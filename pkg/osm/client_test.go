package osm

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NERVsystems/osmosemcp/pkg/osm/osmxml"
)

const nodeXML = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
 <node id="123" visible="true" version="3" changeset="99" user="alice" uid="1" lat="43.6" lon="1.44">
  <tag k="amenity" v="cafe"/>
 </node>
</osm>`

const wayFullXML = `<osm version="0.6">
 <node id="1" lat="0" lon="0"/>
 <node id="2" lat="1" lon="1"/>
 <way id="42" version="7">
  <nd ref="1"/>
  <nd ref="2"/>
  <tag k="highway" v="service"/>
 </way>
</osm>`

const waySummaryXML = `<osm version="0.6">
 <way id="42" version="7">
  <nd ref="1"/>
  <nd ref="2"/>
 </way>
</osm>`

func newTestAPI(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/0.6/node/123", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		w.Write([]byte(nodeXML))
	})
	mux.HandleFunc("/api/0.6/way/42/full", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(wayFullXML))
	})
	mux.HandleFunc("/api/0.6/way/42", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(waySummaryXML))
	})
	mux.HandleFunc("/api/0.6/node/404", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	})
	mux.HandleFunc("/api/0.6/node/410", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusGone)
	})
	mux.HandleFunc("/api/0.6/node/500", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("<html><body>oops</body></html>"))
	})
	mux.HandleFunc("/api/0.6/relation/1", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`<osm version="0.6"/>`))
	})
	mux.HandleFunc("/api/0.6/capabilities", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<osm version="0.6"><api/></osm>`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &hits
}

func newTestClient(baseURL string, opts ...Option) *Client {
	opts = append([]Option{WithRateLimit(math.MaxFloat64, 1)}, opts...)
	return NewClient(baseURL, opts...)
}

func TestElementURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		typ  ElementType
		id   int64
		full bool
		want string
	}{
		{"node", "https://www.openstreetmap.org/", Node, 1, true, "https://www.openstreetmap.org/api/0.6/node/1"},
		{"way full", "https://www.openstreetmap.org/", Way, 42, true, "https://www.openstreetmap.org/api/0.6/way/42/full"},
		{"way summary", "https://www.openstreetmap.org/", Way, 42, false, "https://www.openstreetmap.org/api/0.6/way/42"},
		{"relation ignores full", "https://www.openstreetmap.org/", Relation, 7, true, "https://www.openstreetmap.org/api/0.6/relation/7"},
		{"base without slash", "http://opengeofiction.net", Node, 5, false, "http://opengeofiction.net/api/0.6/node/5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.base)
			if got := c.ElementURL(tt.typ, tt.id, tt.full); got != tt.want {
				t.Errorf("ElementURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseElementType(t *testing.T) {
	for _, s := range []string{"node", "way", "relation"} {
		if _, err := ParseElementType(s); err != nil {
			t.Errorf("ParseElementType(%q) error: %v", s, err)
		}
	}
	for _, s := range []string{"", "Node", "area", "changeset"} {
		if _, err := ParseElementType(s); err == nil {
			t.Errorf("ParseElementType(%q) should fail", s)
		}
	}
}

func TestFetchElement(t *testing.T) {
	server, _ := newTestAPI(t)
	c := newTestClient(server.URL)

	elem := c.FetchElement(context.Background(), Node, 123, true)
	if elem == nil {
		t.Fatal("expected element")
	}
	if elem.ID() != 123 || elem.Attrs["user"] != "alice" || elem.Attrs["lat"] != "43.6" {
		t.Errorf("unexpected attributes: %v", elem.Attrs)
	}
	if elem.Tags["amenity"] != "cafe" {
		t.Errorf("unexpected tags: %v", elem.Tags)
	}
}

func TestFetchWayFull(t *testing.T) {
	server, _ := newTestAPI(t)
	c := newTestClient(server.URL)

	data, err := c.FetchData(context.Background(), Way, 42, true)
	if err != nil {
		t.Fatalf("FetchData() error: %v", err)
	}
	if len(data[osmxml.KindNode]) != 2 {
		t.Errorf("expected child nodes with full geometry, got %d", len(data[osmxml.KindNode]))
	}

	summary := c.FetchElementSummary(context.Background(), Way, 42)
	if summary == nil {
		t.Fatal("expected summary element")
	}
	if len(summary.Nodes) != 2 || len(summary.Tags) != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestFetchFailuresAreAbsent(t *testing.T) {
	server, _ := newTestAPI(t)
	c := newTestClient(server.URL)

	tests := []struct {
		name string
		typ  ElementType
		id   int64
		kind FailureKind
	}{
		{"not found", Node, 404, FailureStatus},
		{"gone", Node, 410, FailureStatus},
		{"malformed body", Node, 500, FailureParse},
		{"no elements", Relation, 1, FailureEmpty},
		{"invalid type", ElementType("area"), 1, FailureRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if elem := c.FetchElement(context.Background(), tt.typ, tt.id, true); elem != nil {
				t.Errorf("expected nil element, got %+v", elem)
			}

			_, err := c.FetchData(context.Background(), tt.typ, tt.id, true)
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FetchError, got %v", err)
			}
			if fe.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", fe.Kind, tt.kind)
			}
		})
	}
}

func TestFetchTransportFailure(t *testing.T) {
	var errorType string
	c := newTestClient("http://127.0.0.1:1/", WithMonitoringHooks(&MonitoringHooks{
		OnError: func(service, et string) { errorType = et },
	}))

	if elem := c.FetchElement(context.Background(), Node, 1, false); elem != nil {
		t.Error("expected nil element on connection failure")
	}

	_, err := c.FetchData(context.Background(), Node, 1, false)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != FailureTransport {
		t.Fatalf("expected transport failure, got %v", err)
	}
	if errorType != "request_error" {
		t.Errorf("expected request_error hook, got %q", errorType)
	}
}

func TestFetchCancelledContext(t *testing.T) {
	server, hits := newTestAPI(t)
	c := newTestClient(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if elem := c.FetchElement(ctx, Node, 123, false); elem != nil {
		t.Error("expected nil element with cancelled context")
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Error("request should not reach the server")
	}
}

func TestMonitoringHooks(t *testing.T) {
	server, _ := newTestAPI(t)

	var (
		requested bool
		service   string
		operation string
		success   bool
		duration  time.Duration
	)
	c := newTestClient(server.URL, WithMonitoringHooks(&MonitoringHooks{
		OnRequest: func(s, op string) {
			requested = true
			service, operation = s, op
		},
		OnResponse: func(s, op string, d time.Duration, ok bool) {
			success, duration = ok, d
		},
	}))

	c.FetchElement(context.Background(), Node, 123, false)

	if !requested {
		t.Fatal("OnRequest should have been called")
	}
	if service != "osm_api" || operation != "fetch_element" {
		t.Errorf("unexpected service/operation: %s/%s", service, operation)
	}
	if !success || duration <= 0 {
		t.Errorf("unexpected response report: success=%v duration=%v", success, duration)
	}

	c.FetchElement(context.Background(), Node, 404, false)
	if success {
		t.Error("404 should be reported as unsuccessful")
	}
}

func TestUserAgent(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.UserAgent()
		w.Write([]byte(nodeXML))
	}))
	defer server.Close()

	c := newTestClient(server.URL, WithUserAgent("osmose-test/1.0"))
	c.FetchElement(context.Background(), Node, 123, false)

	if got != "osmose-test/1.0" {
		t.Errorf("User-Agent = %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	server, _ := newTestAPI(t)

	var waited time.Duration
	c := NewClient(server.URL,
		WithRateLimit(5, 1),
		WithMonitoringHooks(&MonitoringHooks{
			OnRateLimit: func(service string, wait time.Duration) { waited = wait },
		}))

	for i := 0; i < 2; i++ {
		if c.FetchElement(context.Background(), Node, 123, false) == nil {
			t.Fatalf("request %d failed", i)
		}
	}

	if waited < 100*time.Millisecond {
		t.Errorf("second request should wait for the limiter, waited %v", waited)
	}
}

func TestCheckHealth(t *testing.T) {
	server, _ := newTestAPI(t)

	if err := newTestClient(server.URL).CheckHealth(context.Background()); err != nil {
		t.Errorf("CheckHealth() error: %v", err)
	}
	if err := newTestClient("http://127.0.0.1:1").CheckHealth(context.Background()); err == nil {
		t.Error("expected health check failure")
	}
}
