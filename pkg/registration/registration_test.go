package registration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeRegistry struct {
	mu        sync.Mutex
	announced []Service
	deleted   []string
	status    int
	agent     string
}

func (f *fakeRegistry) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/register", func(w http.ResponseWriter, r *http.Request) {
		var svc Service
		json.NewDecoder(r.Body).Decode(&svc)

		f.mu.Lock()
		f.announced = append(f.announced, svc)
		f.agent = r.UserAgent()
		status := f.status
		f.mu.Unlock()

		if status != 0 && status != http.StatusOK {
			http.Error(w, "registry unavailable", status)
			return
		}
		json.NewEncoder(w).Encode(Ack{Status: "registered", Name: svc.Name, TTLSeconds: 90})
	})
	mux.HandleFunc("DELETE /api/register/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deleted = append(f.deleted, r.PathValue("name"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (f *fakeRegistry) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.announced), len(f.deleted)
}

func testService() Service {
	return Service{
		Name:         "osmosemcp",
		URL:          "http://localhost:7082",
		HealthURL:    "http://localhost:7082/health",
		Capabilities: []string{"languages", "osm-elements"},
		Tools:        []string{"list_languages", "fetch_osm_element"},
	}
}

func newTestAnnouncer(url string, opts ...Option) *Announcer {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewAnnouncer(url, testService(), opts...)
}

func TestAnnounce(t *testing.T) {
	reg := &fakeRegistry{}
	ts := httptest.NewServer(reg.handler())
	defer ts.Close()

	a := newTestAnnouncer(ts.URL + "/")
	ack, err := a.Announce(context.Background())
	if err != nil {
		t.Fatalf("Announce() error: %v", err)
	}
	if ack.TTLSeconds != 90 || ack.Name != "osmosemcp" {
		t.Errorf("unexpected ack: %+v", ack)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	got := reg.announced[0]
	if got.Type != "mcp" || got.Version == "" || len(got.Tools) != 2 {
		t.Errorf("unexpected announcement: %+v", got)
	}
	if reg.agent == "" {
		t.Error("expected a User-Agent header")
	}
}

func TestAnnounceRejected(t *testing.T) {
	reg := &fakeRegistry{status: http.StatusServiceUnavailable}
	ts := httptest.NewServer(reg.handler())
	defer ts.Close()

	if _, err := newTestAnnouncer(ts.URL).Announce(context.Background()); err == nil {
		t.Error("expected error on 503 reply")
	}
}

func TestRunHeartbeatAndDeregister(t *testing.T) {
	reg := &fakeRegistry{}
	ts := httptest.NewServer(reg.handler())
	defer ts.Close()

	a := newTestAnnouncer(ts.URL, WithInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if n, _ := reg.counts(); n >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected repeated heartbeats")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !a.Registered() {
		t.Error("announcer should be registered")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return")
	}

	if _, deleted := reg.counts(); deleted != 1 {
		t.Errorf("expected one deregistration, got %d", deleted)
	}
	if a.Registered() {
		t.Error("announcer should no longer be registered")
	}
}

func TestRunRegistryDown(t *testing.T) {
	a := newTestAnnouncer("http://127.0.0.1:1", WithTimeout(200*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		t.Errorf("Run() should not fail when the registry is down: %v", err)
	}
	if a.Registered() {
		t.Error("announcer should not be registered")
	}
}

func TestDeregisterWhenNotRegistered(t *testing.T) {
	reg := &fakeRegistry{}
	ts := httptest.NewServer(reg.handler())
	defer ts.Close()

	if err := newTestAnnouncer(ts.URL).Deregister(context.Background()); err != nil {
		t.Errorf("Deregister() error: %v", err)
	}
	if _, deleted := reg.counts(); deleted != 0 {
		t.Error("no request expected when not registered")
	}
}
