package probe

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hamed0406/pingbase/internal/domain"
)

func monitorFor(url string) *domain.Monitor {
	return &domain.Monitor{
		ID:             "M1",
		URL:            url,
		Method:         http.MethodGet,
		ExpectedStatus: 200,
		TimeoutMS:      2000,
	}
}

func TestHTTPProber_StatusMatchesExpected(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer s.Close()

	out := NewHTTPProber().Probe(context.Background(), monitorFor(s.URL))
	if !out.Up() {
		t.Fatalf("want up, got %+v", out)
	}
	if out.StatusCode != 200 || out.Error != "" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.ResponseTimeMS < 0 {
		t.Fatalf("response time should be >= 0, got %d", out.ResponseTimeMS)
	}
}

func TestHTTPProber_UnexpectedStatus(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", 500)
	}))
	defer s.Close()

	out := NewHTTPProber().Probe(context.Background(), monitorFor(s.URL))
	if out.Up() {
		t.Fatalf("want down, got %+v", out)
	}
	if out.StatusCode != 500 {
		t.Fatalf("want status 500, got %d", out.StatusCode)
	}
	if out.Error != "Expected status 200, got 500" {
		t.Fatalf("unexpected error: %q", out.Error)
	}
}

func TestHTTPProber_NonDefaultExpectedStatus(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer s.Close()

	m := monitorFor(s.URL)
	m.ExpectedStatus = 204
	if out := NewHTTPProber().Probe(context.Background(), m); !out.Up() {
		t.Fatalf("204 expected and received, got %+v", out)
	}

	m.ExpectedStatus = 200
	out := NewHTTPProber().Probe(context.Background(), m)
	if out.Up() || out.Error != "Expected status 200, got 204" {
		t.Fatalf("want mismatch, got %+v", out)
	}
}

func TestHTTPProber_TimeoutIsNotImmediate(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer s.Close()

	m := monitorFor(s.URL)
	m.TimeoutMS = 300

	start := time.Now()
	out := NewHTTPProber().Probe(context.Background(), m)
	took := time.Since(start)

	if out.Up() {
		t.Fatalf("want down due to timeout, got %+v", out)
	}
	if out.Error != TimeoutMessage {
		t.Fatalf("want %q, got %q", TimeoutMessage, out.Error)
	}
	if out.StatusCode != 0 {
		t.Fatalf("want status 0 on timeout, got %d", out.StatusCode)
	}
	if took < 250*time.Millisecond {
		t.Fatalf("timed out too early: %v", took)
	}
	if took > 2*time.Second {
		t.Fatalf("timeout not enforced: %v", took)
	}
}

func TestHTTPProber_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	out := NewHTTPProber().Probe(context.Background(), monitorFor("http://"+addr))
	if out.Up() {
		t.Fatalf("want down, got %+v", out)
	}
	if out.Error == "" || out.Error == TimeoutMessage {
		t.Fatalf("want transport error message, got %q", out.Error)
	}
	if out.StatusCode != 0 {
		t.Fatalf("want status 0, got %d", out.StatusCode)
	}
	if out.DNSClass != "" {
		t.Fatalf("ip literal should skip dns diagnosis, got %q", out.DNSClass)
	}
}

func TestHTTPProber_MethodHeadersAndBody(t *testing.T) {
	type seen struct {
		method, token, body string
	}
	got := make(chan seen, 1)
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- seen{r.Method, r.Header.Get("X-Token"), string(b)}
		w.WriteHeader(201)
	}))
	defer s.Close()

	m := monitorFor(s.URL)
	m.Method = http.MethodPost
	m.ExpectedStatus = 201
	m.Headers = `{"X-Token":"secret"}`
	m.Body = `{"ping":true}`

	if out := NewHTTPProber().Probe(context.Background(), m); !out.Up() {
		t.Fatalf("want up, got %+v", out)
	}
	g := <-got
	if g.method != "POST" || g.token != "secret" || g.body != `{"ping":true}` {
		t.Fatalf("unexpected request: %+v", g)
	}

	// body is dropped for GET; malformed headers are ignored
	m.Method = http.MethodGet
	m.Headers = "{broken"
	NewHTTPProber().Probe(context.Background(), m)
	g = <-got
	if g.method != "GET" || g.body != "" || g.token != "" {
		t.Fatalf("unexpected GET request: %+v", g)
	}
}

func TestHTTPProber_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	})
	s := httptest.NewServer(mux)
	defer s.Close()

	out := NewHTTPProber().Probe(context.Background(), monitorFor(s.URL+"/old"))
	if !out.Up() || out.StatusCode != 200 {
		t.Fatalf("redirect should be followed, got %+v", out)
	}
}

func TestHTTPProber_InvalidURL(t *testing.T) {
	out := NewHTTPProber().Probe(context.Background(), monitorFor("http://bad host/"))
	if out.Up() || out.Error == "" {
		t.Fatalf("want down with message, got %+v", out)
	}
}
